// SPDX-License-Identifier: GPL-3.0-or-later

package sim

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/rbmk-project/common/runtimex"
	"github.com/rbmk-project/wlansim/arq"
	"github.com/rbmk-project/wlansim/config"
	"github.com/rbmk-project/wlansim/host"
	"github.com/rbmk-project/wlansim/packet"
	"github.com/rbmk-project/wlansim/relay"
	"github.com/rbmk-project/wlansim/station"
	"github.com/rbmk-project/wlansim/trace"
)

// Scenario is a network built from a [config.Scenario] where access
// points relay traffic between their links and mobile stations
// exchange messages generated by a [*Traffic].
//
// Construct using [NewScenario] or [MustNewScenario].
type Scenario struct {
	cfg      *config.Scenario
	logger   *slog.Logger
	names    []string
	net      *Network
	nodes    map[string]*Node
	relays   map[string]*relay.Relay
	stations map[string]*station.Station
	traffic  map[string]*Traffic
}

// NewScenario builds the network described by cfg. The logger and the
// recorder are optional.
func NewScenario(cfg *config.Scenario, logger *slog.Logger, rec trace.Recorder) (*Scenario, error) {
	s := &Scenario{
		cfg:    cfg,
		logger: logger,
		net: NewNetwork(&Config{
			Logger:   logger,
			Recorder: rec,
			Seed:     cfg.Seed,
		}),
		nodes:    map[string]*Node{},
		relays:   map[string]*relay.Relay{},
		stations: map[string]*station.Station{},
		traffic:  map[string]*Traffic{},
	}
	if err := s.build(rec); err != nil {
		s.net.Close()
		return nil, err
	}
	for _, name := range s.names {
		if tr, found := s.traffic[name]; found {
			tr.Start(s.stations[name])
		}
	}
	return s, nil
}

// MustNewScenario is like [NewScenario] but panics on error.
func MustNewScenario(cfg *config.Scenario, logger *slog.Logger, rec trace.Recorder) *Scenario {
	return runtimex.Try1(NewScenario(cfg, logger, rec))
}

func (s *Scenario) build(rec trace.Recorder) error {
	media := map[string]Medium{}
	for _, mc := range s.cfg.Segments {
		media[mc.Name] = s.net.NewSegment(mc.Name, mc.Bandwidth, mc.PropagationDelay)
	}
	for _, mc := range s.cfg.Cells {
		media[mc.Name] = s.net.NewCell(mc.Name, mc.Bandwidth, mc.PropagationDelay, RangeChannel(mc.Range))
	}

	var mobiles []packet.Addr
	for _, nc := range s.cfg.Mobiles() {
		mobiles = append(mobiles, packet.Addr(nc.Address))
	}

	for _, nc := range s.cfg.Nodes {
		pos := host.Position{X: nc.Position.X, Y: nc.Position.Y}
		node, err := s.net.NewNode(packet.Addr(nc.Address), pos)
		if err != nil {
			return fmt.Errorf("node %s: %w", nc.Name, err)
		}
		for _, name := range nc.Links {
			m, found := media[name]
			if !found {
				return fmt.Errorf("node %s: no such segment or cell: %s", nc.Name, name)
			}
			s.net.Attach(node, m)
		}
		s.names = append(s.names, nc.Name)
		s.nodes[nc.Name] = node

		switch nc.Role {
		case config.RoleAccessPoint:
			r, err := relay.New(node, &relay.Config{
				Logger:   s.logger,
				QueueLen: s.cfg.MAC.QueueLen,
				Recorder: rec,
			})
			if err != nil {
				return fmt.Errorf("node %s: %w", nc.Name, err)
			}
			node.SetHandler(r)
			s.net.AddCloser(r)
			s.relays[nc.Name] = r

		case config.RoleMobile:
			tr := NewTraffic(node, &TrafficConfig{
				Interval: s.cfg.Traffic.Interval,
				Limit:    s.cfg.Traffic.Limit,
				Logger:   s.logger,
				Peers:    peersOf(mobiles, node.Address()),
				Size:     s.cfg.Traffic.Size,
			})
			st, err := station.New(node, tr, &station.Config{
				ARQ: arq.Config{
					DupCacheSize:     s.cfg.ARQ.DupCacheSize,
					MaxPeers:         s.cfg.ARQ.MaxPeers,
					NACKOnCorruption: s.cfg.ARQ.NACKOnCorruption,
					TimeoutScale:     s.cfg.ARQ.TimeoutScale,
				},
				Logger:   s.logger,
				QueueLen: s.cfg.MAC.QueueLen,
				Recorder: rec,
			})
			if err != nil {
				return fmt.Errorf("node %s: %w", nc.Name, err)
			}
			node.SetHandler(st)
			s.net.AddCloser(st)
			s.net.AddCloser(tr)
			s.stations[nc.Name] = st
			s.traffic[nc.Name] = tr

		default:
			return fmt.Errorf("node %s: invalid role: %q", nc.Name, nc.Role)
		}
	}
	return nil
}

// peersOf returns all the addresses except self.
func peersOf(all []packet.Addr, self packet.Addr) []packet.Addr {
	var out []packet.Addr
	for _, addr := range all {
		if addr != self {
			out = append(out, addr)
		}
	}
	return out
}

// Network returns the underlying [*Network].
func (s *Scenario) Network() *Network {
	return s.net
}

// Node returns the node with the given name or nil.
func (s *Scenario) Node(name string) *Node {
	return s.nodes[name]
}

// Relay returns the access point relay with the given name or nil.
func (s *Scenario) Relay(name string) *relay.Relay {
	return s.relays[name]
}

// Station returns the mobile station with the given name or nil.
func (s *Scenario) Station(name string) *station.Station {
	return s.stations[name]
}

// Traffic returns the traffic generator of the given mobile or nil.
func (s *Scenario) Traffic(name string) *Traffic {
	return s.traffic[name]
}

// Run runs the scenario until its configured duration elapses or
// the context is done.
func (s *Scenario) Run(ctx context.Context) error {
	if s.logger != nil {
		s.logger.Info(
			"scenarioStart",
			slog.Int("nodes", len(s.nodes)),
			slog.Int("media", len(s.net.Media())),
			slog.Duration("duration", s.cfg.Duration),
			slog.Uint64("seed", s.cfg.Seed),
		)
	}
	t0 := time.Now()
	err := s.net.Run(ctx, s.cfg.Duration)
	if s.logger != nil {
		stats := s.Stats()
		s.logger.Info(
			"scenarioDone",
			slog.Any("err", err),
			slog.Int("sent", stats.Sent),
			slog.Int("delivered", stats.Delivered),
			slog.Duration("t", s.net.Now()),
			slog.Duration("elapsed", time.Since(t0)),
		)
	}
	return err
}

// NodeStats contains the traffic counters of a mobile.
type NodeStats struct {
	Name      string
	Address   packet.Addr
	Sent      int
	Delivered int
}

// Stats contains the traffic counters of a scenario.
type Stats struct {
	// At is the simulated time when the stats were collected.
	At time.Duration

	// Sent is the number of messages accepted for sending.
	Sent int

	// Delivered is the number of messages delivered.
	Delivered int

	// Nodes contains the per-mobile counters in configuration order.
	Nodes []NodeStats
}

// Stats returns the current traffic counters.
func (s *Scenario) Stats() Stats {
	stats := Stats{At: s.net.Now()}
	for _, name := range s.names {
		tr, found := s.traffic[name]
		if !found {
			continue
		}
		stats.Sent += tr.Sent()
		stats.Delivered += tr.Delivered()
		stats.Nodes = append(stats.Nodes, NodeStats{
			Name:      name,
			Address:   s.nodes[name].Address(),
			Sent:      tr.Sent(),
			Delivered: tr.Delivered(),
		})
	}
	return stats
}

// Close releases the resources of the scenario.
func (s *Scenario) Close() error {
	return s.net.Close()
}
