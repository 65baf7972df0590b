// SPDX-License-Identifier: GPL-3.0-or-later

package sim

import (
	"time"

	"github.com/rbmk-project/wlansim/frame"
	"github.com/rbmk-project/wlansim/host"
	"github.com/rbmk-project/wlansim/trace"
)

// Medium is a shared medium nodes attach to.
//
// The implementations are [*Segment] and [*Cell].
type Medium interface {
	// Name returns the medium name.
	Name() string

	// Type returns the type of the links attached to this medium.
	Type() host.LinkType

	// Bandwidth returns the bandwidth in bits per second.
	Bandwidth() int64

	// PropagationDelay returns the one-way propagation delay.
	PropagationDelay() time.Duration

	attach(p *port)
	busy(p *port) bool
	headerLen() int
	maxFrame() int
	transmit(p *port, raw []byte)
}

// port is the attachment of a node link to a medium.
type port struct {
	link   int
	medium Medium
	nic    frame.NICAddr
	node   *Node
}

// baseMedium contains the fields every medium shares.
type baseMedium struct {
	bandwidth int64
	delay     time.Duration
	name      string
	net       *Network
	ports     []*port
}

// Name implements [Medium].
func (m *baseMedium) Name() string {
	return m.name
}

// Bandwidth implements [Medium].
func (m *baseMedium) Bandwidth() int64 {
	return m.bandwidth
}

// PropagationDelay implements [Medium].
func (m *baseMedium) PropagationDelay() time.Duration {
	return m.delay
}

func (m *baseMedium) attach(p *port) {
	m.ports = append(m.ports, p)
}

// duration returns the time it takes to clock size bytes out.
func (m *baseMedium) duration(size int) time.Duration {
	if m.bandwidth <= 0 {
		return 0
	}
	return time.Duration(int64(size) * 8 * int64(time.Second) / m.bandwidth)
}

// accepts returns whether the port should receive a frame for dst.
func accepts(p *port, dst frame.NICAddr) bool {
	return dst == p.nic || dst.IsBroadcast()
}

// deliver hands a frame to the receiving port unless the loss
// hook drops it.
func (m *baseMedium) deliver(self Medium, from, to *port, raw []byte) {
	if m.net.Drop != nil && m.net.Drop(self, from.node, to.node, raw) {
		m.net.recorder.Record(trace.Event{
			At:     m.net.sched.Now(),
			Node:   to.node.addr,
			Kind:   trace.KindDrop,
			Link:   to.link,
			Size:   len(raw),
			Reason: "loss",
		})
		return
	}
	to.node.physicalReady(to.link, raw)
}

// wiredTx is a transmission on a [*Segment].
type wiredTx struct {
	collided bool
	end      time.Duration
	port     *port
	start    time.Duration
}

// Segment is a shared wired bus.
//
// A port senses the carrier while the signal of another port's
// transmission is present at it, that is, from the start of the
// transmission plus the propagation delay until its end plus the
// propagation delay. A transmission starting while another port's
// signal is still on the bus collides with it: neither frame is
// delivered and both transmitters are notified through
// [host.Handler.FrameCollision] once they see the other signal.
//
// Construct using [*Network.NewSegment].
type Segment struct {
	baseMedium
	active []*wiredTx
}

var _ Medium = &Segment{}

// Type implements [Medium].
func (s *Segment) Type() host.LinkType {
	return host.LinkWired
}

func (s *Segment) headerLen() int {
	return frame.WiredHeaderLen
}

func (s *Segment) maxFrame() int {
	return frame.WiredMaxFrame
}

// prune forgets the transmissions whose signal left the bus.
func (s *Segment) prune(now time.Duration) {
	active := s.active[:0]
	for _, tx := range s.active {
		if tx.end+s.delay > now {
			active = append(active, tx)
		}
	}
	s.active = active
}

func (s *Segment) busy(p *port) bool {
	now := s.net.sched.Now()
	for _, tx := range s.active {
		if tx.port == p {
			if now < tx.end {
				return true
			}
			continue
		}
		if now >= tx.start+s.delay && now < tx.end+s.delay {
			return true
		}
	}
	return false
}

func (s *Segment) transmit(p *port, raw []byte) {
	now := s.net.sched.Now()
	s.prune(now)
	tx := &wiredTx{end: now + s.duration(len(raw)), port: p, start: now}
	deliverAt := tx.end + s.delay

	for _, other := range s.active {
		if other.port == p {
			continue
		}
		// We see the other signal when it reaches us and the other
		// transmitter sees ours after one propagation delay.
		seen := max(now, other.start+s.delay)
		tx.collided = true
		tx.end = min(tx.end, seen)
		if !other.collided {
			other.collided = true
			other.end = min(other.end, now+s.delay)
			s.collide(other.port, now+s.delay)
		}
	}
	if tx.collided {
		s.collide(p, tx.end)
	}
	s.active = append(s.active, tx)

	var dst frame.NICAddr
	copy(dst[:], raw[:6])
	s.net.sched.At(deliverAt, func() {
		if tx.collided {
			return
		}
		for _, q := range s.ports {
			if q != p && accepts(q, dst) {
				s.deliver(s, p, q, raw)
			}
		}
	})
}

// collide notifies the transmitter attached to p at the given time.
func (s *Segment) collide(p *port, at time.Duration) {
	s.net.sched.At(at, func() {
		p.node.frameCollision(p.link)
	})
}

// reception is a frame arriving at a [*Cell] port.
type reception struct {
	corrupted bool
	end       time.Duration
	start     time.Duration
}

// overlaps returns whether the reception overlaps [start, end).
func (r *reception) overlaps(start, end time.Duration) bool {
	return r.start < end && start < r.end
}

// ChannelFunc decides whether a transmission from a node at position
// from reaches a node at position to.
type ChannelFunc func(from, to host.Position) bool

// RangeChannel returns a [ChannelFunc] where frames reach every node
// within the given distance in meters.
func RangeChannel(meters float64) ChannelFunc {
	return func(from, to host.Position) bool {
		dx, dy := from.X-to.X, from.Y-to.Y
		return dx*dx+dy*dy <= meters*meters
	}
}

// Cell is a wireless cell.
//
// A transmission reaches the ports for which the [ChannelFunc] holds,
// evaluated at the time the transmission starts. Receptions that
// overlap at a receiver corrupt each other and so does a receiver
// transmitting while receiving. Corrupted frames are silently lost.
// A port senses the carrier while transmitting or while receiving.
// Since only the receivers sense the carrier, hidden terminals
// emerge from the node positions.
//
// Construct using [*Network.NewCell].
type Cell struct {
	baseMedium
	channel ChannelFunc
	rx      map[*port][]*reception
	txEnd   map[*port]time.Duration
}

var _ Medium = &Cell{}

// Type implements [Medium].
func (c *Cell) Type() host.LinkType {
	return host.LinkWireless
}

func (c *Cell) headerLen() int {
	return frame.WirelessHeaderLen
}

func (c *Cell) maxFrame() int {
	return frame.WirelessMaxFrame
}

func (c *Cell) busy(p *port) bool {
	now := c.net.sched.Now()
	if c.txEnd[p] > now {
		return true
	}
	for _, r := range c.rx[p] {
		if r.start <= now && now < r.end {
			return true
		}
	}
	return false
}

func (c *Cell) transmit(p *port, raw []byte) {
	now := c.net.sched.Now()
	end := now + c.duration(len(raw))
	c.txEnd[p] = max(c.txEnd[p], end)

	// Half duplex: transmitting corrupts what we are receiving.
	for _, r := range c.rx[p] {
		if r.overlaps(now, end) {
			r.corrupted = true
		}
	}

	var dst frame.NICAddr
	copy(dst[:], raw[3:9])
	from := p.node.Position()
	for _, q := range c.ports {
		if q == p || !c.channel(from, q.node.Position()) {
			continue
		}
		r := &reception{start: now + c.delay, end: end + c.delay}
		for _, other := range c.rx[q] {
			if other.overlaps(r.start, r.end) {
				other.corrupted = true
				r.corrupted = true
			}
		}
		if c.txEnd[q] > r.start {
			r.corrupted = true
		}
		c.rx[q] = append(c.rx[q], r)
		c.net.sched.At(r.end, func() {
			c.received(p, q, r, dst, raw)
		})
	}
}

// received completes a reception at q.
func (c *Cell) received(from, q *port, r *reception, dst frame.NICAddr, raw []byte) {
	rxs := c.rx[q][:0]
	for _, other := range c.rx[q] {
		if other != r {
			rxs = append(rxs, other)
		}
	}
	c.rx[q] = rxs
	if !accepts(q, dst) {
		return
	}
	if r.corrupted {
		c.net.recorder.Record(trace.Event{
			At:     c.net.sched.Now(),
			Node:   q.node.addr,
			Kind:   trace.KindDrop,
			Link:   q.link,
			Size:   len(raw),
			Reason: "interference",
		})
		return
	}
	c.deliver(c, from, q, raw)
}
