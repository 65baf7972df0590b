// SPDX-License-Identifier: GPL-3.0-or-later

/*
Package sqlitestore persists trace events into a SQLite database.

We use GORM with the pure Go SQLite driver, so no cgo is required.
Events are buffered and written in batches. Call [*Store.Flush] to write
the buffered events and [*Store.Close] to flush and close the database.
*/
package sqlitestore

import (
	"database/sql"
	"fmt"
	"log/slog"
	"time"

	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
	_ "modernc.org/sqlite"

	"github.com/rbmk-project/wlansim/packet"
	"github.com/rbmk-project/wlansim/trace"
)

// BatchSize is the number of events buffered before writing.
const BatchSize = 512

// eventRecord is the database row of a [trace.Event].
type eventRecord struct {
	ID     uint   `gorm:"primaryKey"`
	At     int64  `gorm:"index"` // nanoseconds
	Node   uint32 `gorm:"index"`
	Kind   string `gorm:"index;size:16"`
	Link   int
	Src    uint32
	Dst    uint32
	Seq    uint8
	Size   int
	Reason string `gorm:"size:32"`
}

// TableName implements GORM's tabler interface.
func (eventRecord) TableName() string {
	return "events"
}

func newRecord(ev trace.Event) eventRecord {
	return eventRecord{
		At:     int64(ev.At),
		Node:   uint32(ev.Node),
		Kind:   string(ev.Kind),
		Link:   ev.Link,
		Src:    uint32(ev.Src),
		Dst:    uint32(ev.Dst),
		Seq:    ev.Seq,
		Size:   ev.Size,
		Reason: ev.Reason,
	}
}

func (r *eventRecord) event() trace.Event {
	return trace.Event{
		At:     time.Duration(r.At),
		Node:   packet.Addr(r.Node),
		Kind:   trace.Kind(r.Kind),
		Link:   r.Link,
		Src:    packet.Addr(r.Src),
		Dst:    packet.Addr(r.Dst),
		Seq:    r.Seq,
		Size:   r.Size,
		Reason: r.Reason,
	}
}

// Store is a [trace.Recorder] writing to SQLite.
//
// Construct using [Open].
type Store struct {
	db      *gorm.DB
	err     error
	logger  *slog.Logger
	pending []eventRecord
}

var _ trace.Recorder = &Store{}

// Open opens or creates the database at path and migrates its schema.
// The logger is optional and receives GORM warnings.
func Open(path string, log *slog.Logger) (*Store, error) {
	gormLog := logger.Default.LogMode(logger.Silent)
	if log != nil {
		gormLog = logger.New(
			slog.NewLogLogger(log.Handler(), slog.LevelWarn),
			logger.Config{
				LogLevel:                  logger.Warn,
				IgnoreRecordNotFoundError: true,
				Colorful:                  false,
			},
		)
	}

	// Pure Go SQLite driver
	dialector := sqlite.Dialector{
		DriverName: "sqlite",
		DSN:        path,
	}
	db, err := gorm.Open(dialector, &gorm.Config{Logger: gormLog})
	if err != nil {
		return nil, fmt.Errorf("sqlitestore: open %s: %w", path, err)
	}
	sqlDB, err := db.DB()
	if err != nil {
		return nil, err
	}
	if err := configureSQLite(sqlDB); err != nil {
		sqlDB.Close()
		return nil, err
	}
	if err := db.AutoMigrate(&eventRecord{}); err != nil {
		sqlDB.Close()
		return nil, fmt.Errorf("sqlitestore: migrate: %w", err)
	}
	if log != nil {
		log.Debug("traceStoreOpen", slog.String("path", path))
	}
	return &Store{db: db, logger: log}, nil
}

// configureSQLite applies the settings for a write-mostly workload.
func configureSQLite(sqlDB *sql.DB) error {
	pragmaSettings := []string{
		"PRAGMA journal_mode=WAL",
		"PRAGMA synchronous=NORMAL",
		"PRAGMA busy_timeout=5000",
		"PRAGMA temp_store=memory",
	}
	for _, pragma := range pragmaSettings {
		if _, err := sqlDB.Exec(pragma); err != nil {
			return fmt.Errorf("sqlitestore: %s: %w", pragma, err)
		}
	}
	return nil
}

// Record implements [trace.Recorder]. Write errors are sticky and
// returned by [*Store.Err], [*Store.Flush], and [*Store.Close].
func (s *Store) Record(ev trace.Event) {
	s.pending = append(s.pending, newRecord(ev))
	if len(s.pending) >= BatchSize {
		s.Flush()
	}
}

// Flush writes the buffered events.
func (s *Store) Flush() error {
	if s.err != nil || len(s.pending) <= 0 {
		return s.err
	}
	if err := s.db.CreateInBatches(s.pending, BatchSize).Error; err != nil {
		s.err = fmt.Errorf("sqlitestore: write: %w", err)
		if s.logger != nil {
			s.logger.Warn("traceStoreWriteFailed", slog.Any("err", err), slog.Int("events", len(s.pending)))
		}
	}
	s.pending = s.pending[:0]
	return s.err
}

// Err returns the first write error, if any.
func (s *Store) Err() error {
	return s.err
}

// Counts flushes the buffered events and returns the number
// of events stored for each kind.
func (s *Store) Counts() (map[trace.Kind]int64, error) {
	if err := s.Flush(); err != nil {
		return nil, err
	}
	var rows []struct {
		Kind  string
		Count int64
	}
	err := s.db.Model(&eventRecord{}).
		Select("kind, count(*) AS count").
		Group("kind").
		Scan(&rows).Error
	if err != nil {
		return nil, fmt.Errorf("sqlitestore: counts: %w", err)
	}
	counts := make(map[trace.Kind]int64, len(rows))
	for _, row := range rows {
		counts[trace.Kind(row.Kind)] = row.Count
	}
	return counts, nil
}

// Events flushes the buffered events and returns the stored events
// of the given kind emitted by node in time order.
func (s *Store) Events(node packet.Addr, kind trace.Kind) ([]trace.Event, error) {
	if err := s.Flush(); err != nil {
		return nil, err
	}
	var records []eventRecord
	err := s.db.Where("node = ? AND kind = ?", uint32(node), string(kind)).
		Order("at, id").
		Find(&records).Error
	if err != nil {
		return nil, fmt.Errorf("sqlitestore: events: %w", err)
	}
	out := make([]trace.Event, 0, len(records))
	for idx := range records {
		out = append(out, records[idx].event())
	}
	return out, nil
}

// Close flushes the buffered events and closes the database.
func (s *Store) Close() error {
	flushErr := s.Flush()
	sqlDB, err := s.db.DB()
	if err != nil {
		return err
	}
	if err := sqlDB.Close(); err != nil {
		return err
	}
	return flushErr
}
