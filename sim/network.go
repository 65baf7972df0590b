// SPDX-License-Identifier: GPL-3.0-or-later

/*
Package sim is a single-threaded discrete-event host for the protocol core.

A [*Network] owns a [*Scheduler], the shared media, and the nodes. A
[*Segment] is a wired bus with collision detection and a [*Cell] is a
wireless cell where receptions overlapping at a receiver corrupt each
other. Each [*Node] implements [host.Host] and forwards the physical
events to its [host.Handler].

A [*Scenario] builds a network from a [config.Scenario], attaching
access points and mobile stations, and drives the [*Traffic] generators.

Every callback runs on the goroutine that runs the scheduler.
*/
package sim

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"slices"
	"time"

	"golang.org/x/exp/rand"

	"github.com/rbmk-project/wlansim/frame"
	"github.com/rbmk-project/wlansim/host"
	"github.com/rbmk-project/wlansim/packet"
	"github.com/rbmk-project/wlansim/trace"
)

// ErrDuplicateAddress indicates that a node address is already in use.
var ErrDuplicateAddress = errors.New("sim: duplicate address")

// DropFunc decides whether a frame sent by from and arriving
// at to over the given medium is lost.
type DropFunc func(m Medium, from, to *Node, raw []byte) bool

// Config contains optional [*Network] settings.
//
// The zero value is ready to use.
type Config struct {
	// Logger is the optional structured logger.
	Logger *slog.Logger

	// Recorder receives the events emitted by the media. If nil,
	// we discard them.
	Recorder trace.Recorder

	// Seed seeds the network and the per-node random sources.
	Seed uint64
}

// Network is a simulated network.
//
// Construct using [NewNetwork].
type Network struct {
	// Drop, if not nil, is the loss injection hook invoked for
	// every frame that would otherwise be delivered.
	Drop DropFunc

	closers  []io.Closer
	logger   *slog.Logger
	media    []Medium
	nextNIC  uint32
	nodes    map[packet.Addr]*Node
	recorder trace.Recorder
	rng      *rand.Rand
	sched    *Scheduler
	seed     uint64
}

// NewNetwork creates a new [*Network].
func NewNetwork(cfg *Config) *Network {
	if cfg == nil {
		cfg = &Config{}
	}
	return &Network{
		logger:   cfg.Logger,
		nodes:    map[packet.Addr]*Node{},
		recorder: trace.OrDiscard(cfg.Recorder),
		rng:      rand.New(rand.NewSource(cfg.Seed)),
		sched:    NewScheduler(),
		seed:     cfg.Seed,
	}
}

// Scheduler returns the network scheduler.
func (n *Network) Scheduler() *Scheduler {
	return n.sched
}

// Now returns the current virtual time.
func (n *Network) Now() time.Duration {
	return n.sched.Now()
}

// Rand returns the network random source, which is distinct
// from the per-node random sources.
func (n *Network) Rand() *rand.Rand {
	return n.rng
}

// LossRate returns a [DropFunc] losing each frame with probability p
// using the network random source.
func (n *Network) LossRate(p float64) DropFunc {
	return func(Medium, *Node, *Node, []byte) bool {
		return n.rng.Float64() < p
	}
}

// NewSegment creates a wired [*Segment].
func (n *Network) NewSegment(name string, bandwidth int64, delay time.Duration) *Segment {
	seg := &Segment{baseMedium: n.newBaseMedium(name, bandwidth, delay)}
	n.media = append(n.media, seg)
	return seg
}

// NewCell creates a wireless [*Cell]. A nil channel means that every
// frame reaches every node of the cell.
func (n *Network) NewCell(name string, bandwidth int64, delay time.Duration, channel ChannelFunc) *Cell {
	if channel == nil {
		channel = func(host.Position, host.Position) bool { return true }
	}
	cell := &Cell{
		baseMedium: n.newBaseMedium(name, bandwidth, delay),
		channel:    channel,
		rx:         map[*port][]*reception{},
		txEnd:      map[*port]time.Duration{},
	}
	n.media = append(n.media, cell)
	return cell
}

func (n *Network) newBaseMedium(name string, bandwidth int64, delay time.Duration) baseMedium {
	return baseMedium{bandwidth: bandwidth, delay: delay, name: name, net: n}
}

// Media returns the media in creation order.
func (n *Network) Media() []Medium {
	return n.media
}

// NewNode creates a [*Node] with the given address and position. The
// node random source is seeded from the network seed and the node
// count, so scenarios built in the same order are reproducible.
func (n *Network) NewNode(addr packet.Addr, pos host.Position) (*Node, error) {
	if addr == packet.Broadcast {
		return nil, fmt.Errorf("sim: invalid address: %s", addr)
	}
	if _, found := n.nodes[addr]; found {
		return nil, fmt.Errorf("%w: %s", ErrDuplicateAddress, addr)
	}
	node := &Node{
		addr:   addr,
		links:  []host.LinkInfo{{Type: host.LinkUnsupported}},
		net:    n,
		ports:  []*port{nil},
		pos:    pos,
		rng:    rand.New(rand.NewSource(n.seed + uint64(len(n.nodes)) + 1)),
		timers: map[host.TimerID]struct{}{},
	}
	n.nodes[addr] = node
	n.closers = append(n.closers, node)
	return node, nil
}

// Node returns the node with the given address or nil.
func (n *Network) Node(addr packet.Addr) *Node {
	return n.nodes[addr]
}

// Attach attaches node to m and returns the new link number. Each
// attachment gets its own locally administered hardware address.
func (n *Network) Attach(node *Node, m Medium) int {
	n.nextNIC++
	nic := frame.NICAddr{
		0x02, 0x00,
		byte(n.nextNIC >> 24), byte(n.nextNIC >> 16), byte(n.nextNIC >> 8), byte(n.nextNIC),
	}
	p := &port{link: len(node.ports), medium: m, nic: nic, node: node}
	node.ports = append(node.ports, p)
	node.links = append(node.links, host.LinkInfo{
		Type:             m.Type(),
		NICAddr:          nic,
		Bandwidth:        m.Bandwidth(),
		PropagationDelay: m.PropagationDelay(),
	})
	m.attach(p)
	if n.logger != nil {
		n.logger.Debug(
			"nodeAttached",
			slog.String("node", node.addr.String()),
			slog.String("medium", m.Name()),
			slog.String("linkType", m.Type().String()),
			slog.Int("link", p.link),
			slog.String("nic", nic.String()),
		)
	}
	return p.link
}

// AddCloser registers an [io.Closer] to close with the network.
func (n *Network) AddCloser(c io.Closer) {
	n.closers = append(n.closers, c)
}

// RunFor runs the simulation for the given duration.
func (n *Network) RunFor(d time.Duration) int {
	return n.sched.RunFor(d)
}

// Run runs the simulation until the given time or until the
// context is done.
func (n *Network) Run(ctx context.Context, until time.Duration) error {
	return n.sched.Run(ctx, until)
}

// Close closes the registered closers in backward order, so what
// was registered last is closed first, and joins their errors.
func (n *Network) Close() error {
	closers := n.closers
	n.closers = nil
	var errv []error
	for _, c := range slices.Backward(closers) {
		if err := c.Close(); err != nil {
			errv = append(errv, err)
		}
	}
	return errors.Join(errv...)
}
