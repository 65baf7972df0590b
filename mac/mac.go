// SPDX-License-Identifier: GPL-3.0-or-later

/*
Package mac implements medium access control for wired and wireless links.

[*Ethernet] drives a shared wired segment with carrier sense and
collision detection. A busy line is retried after the interframe gap
and a collision triggers truncated binary exponential backoff. The
frame is dropped after [MaxCollisions] consecutive collisions.

[*WiFi] drives a wireless cell with carrier sense only. A busy line
triggers exponential backoff and the frame is dropped after [MaxBusy]
consecutive busy deferrals. A WiFi engine belonging to the distribution
system (an access point) ignores frames sent by other access points.

Each engine owns a pending slot and a bounded backlog. Frames waiting
in the backlog are sent in order once the pending frame has been
transmitted or dropped. Frames read from the medium are decoded,
filtered by destination hardware address, and passed to a [Receiver].
Malformed frames are silently dropped.

[*Link] is a tagged variant selecting the engine from the host link
type, and [Table] dispatches host events to the right link.
*/
package mac

import (
	"errors"
	"log/slog"
	"time"

	"github.com/rbmk-project/common/errclass"
	"github.com/rbmk-project/wlansim/frame"
	"github.com/rbmk-project/wlansim/host"
	"github.com/rbmk-project/wlansim/trace"
)

// DefaultQueueLen is the default backlog length.
const DefaultQueueLen = 16

// ErrQueueFull indicates that the backlog is full and the frame was dropped.
var ErrQueueFull = errors.New("mac: queue full")

// Receiver receives payloads read from a link.
type Receiver interface {
	FromLink(link int, payload []byte)
}

// ReceiverFunc adapts a function to the [Receiver] interface.
type ReceiverFunc func(link int, payload []byte)

// FromLink implements [Receiver].
func (fx ReceiverFunc) FromLink(link int, payload []byte) {
	fx(link, payload)
}

// Config contains optional settings shared by the engines.
//
// The zero value is ready to use.
type Config struct {
	// Logger is the optional structured logger. If this field
	// is nil, we do not emit any log message.
	Logger *slog.Logger

	// QueueLen is the maximum number of frames waiting behind the
	// pending frame. If zero, we use [DefaultQueueLen].
	QueueLen int

	// Recorder receives trace events. If nil, we discard them.
	Recorder trace.Recorder
}

func (c *Config) queueLen() int {
	if c == nil || c.QueueLen <= 0 {
		return DefaultQueueLen
	}
	return c.QueueLen
}

func (c *Config) logger() *slog.Logger {
	if c == nil {
		return nil
	}
	return c.Logger
}

func (c *Config) recorder() trace.Recorder {
	if c == nil {
		return trace.Discard
	}
	return trace.OrDiscard(c.Recorder)
}

// State is the state of an engine.
type State int

const (
	// StateIdle means no frame is pending.
	StateIdle State = iota

	// StateDeferred means the pending frame waits for the line to clear.
	StateDeferred

	// StateBackoff means the pending frame waits for a backoff timer.
	StateBackoff

	// StateTransmitting means the pending frame is on the medium.
	StateTransmitting
)

// String implements [fmt.Stringer].
func (s State) String() string {
	switch s {
	case StateDeferred:
		return "deferred"
	case StateBackoff:
		return "backoff"
	case StateTransmitting:
		return "transmitting"
	default:
		return "idle"
	}
}

// outFrame is an encoded frame waiting for transmission.
type outFrame struct {
	dst frame.NICAddr
	raw []byte
}

// engine contains the state common to [*Ethernet] and [*WiFi].
type engine struct {
	backlog  []outFrame
	closed   bool
	host     host.Host
	info     host.LinkInfo
	link     int
	logger   *slog.Logger
	maxQueue int
	pending  *outFrame
	recorder trace.Recorder
	recv     Receiver
	state    State
	timer    host.TimerID
}

func newEngine(h host.Host, link int, recv Receiver, cfg *Config) engine {
	return engine{
		host:     h,
		info:     h.Links()[link],
		link:     link,
		logger:   cfg.logger(),
		maxQueue: cfg.queueLen(),
		recorder: cfg.recorder(),
		recv:     recv,
	}
}

// enqueue stores f in the pending slot, or in the backlog when
// a frame is already pending, and returns whether f went in the
// pending slot.
func (e *engine) enqueue(f outFrame) (bool, error) {
	if e.pending == nil {
		e.pending = &f
		return true, nil
	}
	if len(e.backlog) >= e.maxQueue {
		e.drop(len(f.raw), "queueFull")
		return false, ErrQueueFull
	}
	e.backlog = append(e.backlog, f)
	return false, nil
}

// next moves the first backlog frame into the pending slot and
// returns whether there is a pending frame.
func (e *engine) next() bool {
	e.pending = nil
	e.state = StateIdle
	if len(e.backlog) <= 0 {
		return false
	}
	f := e.backlog[0]
	e.backlog = e.backlog[1:]
	e.pending = &f
	return true
}

// arm arms the engine timer, cancelling the previous one.
func (e *engine) arm(d time.Duration, fn func()) {
	e.host.StopTimer(e.timer)
	e.timer = e.host.StartTimer(d, fn)
}

// write writes the pending frame on the medium.
func (e *engine) write() error {
	size := len(e.pending.raw)
	if err := e.host.WritePhysical(e.link, e.pending.raw); err != nil {
		if e.logger != nil {
			e.logger.Warn(
				"writePhysicalFailed",
				slog.Any("err", err),
				slog.String("errClass", errclass.New(err)),
				slog.Int("link", e.link),
				slog.Int("frameSize", size),
				slog.Duration("t", e.host.Now()),
			)
		}
		e.drop(size, "writeFailed")
		return err
	}
	e.recorder.Record(trace.Event{
		At:   e.host.Now(),
		Node: e.host.Address(),
		Kind: trace.KindTx,
		Link: e.link,
		Size: size,
	})
	if e.logger != nil {
		e.logger.Debug(
			"frameTx",
			slog.Int("link", e.link),
			slog.String("dst", e.pending.dst.String()),
			slog.Int("frameSize", size),
			slog.Duration("t", e.host.Now()),
		)
	}
	e.state = StateTransmitting
	return nil
}

// drop records a dropped frame.
func (e *engine) drop(size int, reason string) {
	e.recorder.Record(trace.Event{
		At:     e.host.Now(),
		Node:   e.host.Address(),
		Kind:   trace.KindDrop,
		Link:   e.link,
		Size:   size,
		Reason: reason,
	})
	if e.logger != nil {
		e.logger.Debug(
			"frameDropped",
			slog.Int("link", e.link),
			slog.Int("frameSize", size),
			slog.String("reason", reason),
			slog.Duration("t", e.host.Now()),
		)
	}
}

// deliver filters a decoded frame by destination and passes it up.
func (e *engine) deliver(dst frame.NICAddr, payload []byte) {
	if dst != e.info.NICAddr && !dst.IsBroadcast() {
		return
	}
	if e.recv != nil {
		e.recv.FromLink(e.link, payload)
	}
}

// Busy returns whether a frame is pending.
func (e *engine) Busy() bool {
	return e.pending != nil
}

// State returns the current engine state.
func (e *engine) State() State {
	return e.state
}

// Queued returns the number of frames in the backlog.
func (e *engine) Queued() int {
	return len(e.backlog)
}

// Close cancels the timer and discards pending frames. After
// Close, writes fail with [host.ENETDOWN] and reads are ignored.
func (e *engine) Close() error {
	e.host.StopTimer(e.timer)
	e.timer = 0
	e.closed = true
	e.pending = nil
	e.backlog = nil
	e.state = StateIdle
	return nil
}

// backoffSlots returns a random number of slots in [0, 2^min(n, 10)).
func (e *engine) backoffSlots(n int) time.Duration {
	const maxExponent = 10
	n = min(n, maxExponent)
	return time.Duration(e.host.Rand().Intn(1 << n))
}
