// SPDX-License-Identifier: GPL-3.0-or-later

package sim

import (
	"fmt"
	"time"

	"golang.org/x/exp/rand"

	"github.com/rbmk-project/wlansim/host"
	"github.com/rbmk-project/wlansim/packet"
)

// Node is a simulated node implementing [host.Host].
//
// Link zero is the loopback link, which the protocol core does not
// drive. [*Network.Attach] adds the other links in order.
//
// Construct using [*Network.NewNode].
type Node struct {
	addr    packet.Addr
	closed  bool
	handler host.Handler
	links   []host.LinkInfo
	net     *Network
	ports   []*port
	pos     host.Position
	rng     *rand.Rand
	timers  map[host.TimerID]struct{}
}

var _ host.Host = &Node{}

// SetHandler sets the [host.Handler] receiving the physical events.
func (n *Node) SetHandler(h host.Handler) {
	n.handler = h
}

// Address implements [host.Host].
func (n *Node) Address() packet.Addr {
	return n.addr
}

// Links implements [host.Host].
func (n *Node) Links() []host.LinkInfo {
	return n.links
}

// WritePhysical implements [host.Host].
func (n *Node) WritePhysical(link int, raw []byte) error {
	if n.closed || link < 0 || link >= len(n.ports) {
		return host.ENETDOWN
	}
	p := n.ports[link]
	if p == nil {
		return fmt.Errorf("%w: link %d", host.EPROTONOSUPPORT, link)
	}
	if len(raw) < p.medium.headerLen() || len(raw) > p.medium.maxFrame() {
		return fmt.Errorf("%w: %d bytes on %s", host.EMSGSIZE, len(raw), p.medium.Name())
	}
	p.medium.transmit(p, append([]byte{}, raw...))
	return nil
}

// CarrierSense implements [host.Host].
func (n *Node) CarrierSense(link int) bool {
	if link < 0 || link >= len(n.ports) || n.ports[link] == nil {
		return false
	}
	p := n.ports[link]
	return p.medium.busy(p)
}

// StartTimer implements [host.Host].
func (n *Node) StartTimer(d time.Duration, fn func()) host.TimerID {
	var id host.TimerID
	id = n.net.sched.Schedule(d, func() {
		delete(n.timers, id)
		fn()
	})
	n.timers[id] = struct{}{}
	return id
}

// StopTimer implements [host.Host].
func (n *Node) StopTimer(id host.TimerID) bool {
	if _, found := n.timers[id]; !found {
		return false
	}
	delete(n.timers, id)
	return n.net.sched.Cancel(id)
}

// Now implements [host.Host].
func (n *Node) Now() time.Duration {
	return n.net.sched.Now()
}

// Rand implements [host.Host].
func (n *Node) Rand() *rand.Rand {
	return n.rng
}

// Position implements [host.Host].
func (n *Node) Position() host.Position {
	return n.pos
}

// SetPosition implements [host.Host].
func (n *Node) SetPosition(pos host.Position) {
	n.pos = pos
}

// Close cancels the node timers and detaches it from the physical
// events. Writing after Close fails with [host.ENETDOWN].
func (n *Node) Close() error {
	for id := range n.timers {
		n.net.sched.Cancel(id)
	}
	clear(n.timers)
	n.closed = true
	return nil
}

func (n *Node) physicalReady(link int, raw []byte) {
	if !n.closed && n.handler != nil {
		n.handler.PhysicalReady(link, raw)
	}
}

func (n *Node) frameCollision(link int) {
	if !n.closed && n.handler != nil {
		n.handler.FrameCollision(link)
	}
}
