// SPDX-License-Identifier: GPL-3.0-or-later

/*
Package host defines the contract between the protocol core and the
platform hosting a node.

The protocol packages never touch a real or simulated medium directly.
They receive a [Host] providing the node address, the link table, a way
to write frames and to sense the carrier, timers, a clock, and a random
source. The host invokes a [Handler] when a frame arrives or when a
wired transmission collides.

Every callback runs to completion on the host's single event loop. The
protocol packages therefore contain no locks. Errors returned by
[Host.WritePhysical] are the [syscall.Errno] values the kernel would
return in similar cases (we use the [x/sys] repository to pull
system-dependent error values).
*/
package host

import (
	"fmt"
	"time"

	"golang.org/x/exp/rand"

	"github.com/rbmk-project/wlansim/frame"
	"github.com/rbmk-project/wlansim/packet"
)

// LinkType is the type of a link.
type LinkType int

const (
	// LinkUnsupported is a link the protocol core does not drive, such
	// as the loopback link.
	LinkUnsupported LinkType = iota

	// LinkWired is a shared wired segment.
	LinkWired

	// LinkWireless is a wireless cell.
	LinkWireless
)

// String implements [fmt.Stringer].
func (lt LinkType) String() string {
	switch lt {
	case LinkWired:
		return "wired"
	case LinkWireless:
		return "wireless"
	default:
		return "unsupported"
	}
}

// LinkInfo describes a link attached to a node.
type LinkInfo struct {
	// Type is the link type.
	Type LinkType

	// NICAddr is the hardware address of the link interface.
	NICAddr frame.NICAddr

	// Bandwidth is the link bandwidth in bits per second.
	Bandwidth int64

	// PropagationDelay is the one-way propagation delay.
	PropagationDelay time.Duration
}

// Airtime returns the time it takes to transmit size bytes
// and to propagate them to the other end of the link.
func (li LinkInfo) Airtime(size int) time.Duration {
	if li.Bandwidth <= 0 {
		return li.PropagationDelay
	}
	bits := int64(size) * 8
	return time.Duration(bits*int64(time.Second)/li.Bandwidth) + li.PropagationDelay
}

// TimerID identifies a pending timer. The zero value is never
// returned by [Host.StartTimer] and is safe to pass to [Host.StopTimer].
type TimerID uint64

// Position is the location of a node in the plane, in meters.
type Position struct {
	X, Y float64
}

// String implements [fmt.Stringer].
func (p Position) String() string {
	return fmt.Sprintf("(%.1f, %.1f)", p.X, p.Y)
}

// Host is the platform hosting a node.
type Host interface {
	// Address returns the node network address.
	Address() packet.Addr

	// Links returns the link table. The index of a [LinkInfo] is
	// its link number and link zero is the loopback link.
	Links() []LinkInfo

	// WritePhysical writes a frame on the given link.
	WritePhysical(link int, frame []byte) error

	// CarrierSense returns whether the given link is busy.
	CarrierSense(link int) bool

	// StartTimer arranges for fn to run after d elapses.
	StartTimer(d time.Duration, fn func()) TimerID

	// StopTimer cancels a pending timer and returns whether
	// the timer was still pending.
	StopTimer(id TimerID) bool

	// Now returns the current time since the host started.
	Now() time.Duration

	// Rand returns the node random source.
	Rand() *rand.Rand

	// Position returns the node location.
	Position() Position

	// SetPosition moves the node.
	SetPosition(pos Position)
}

// Handler receives physical layer events from a [Host].
type Handler interface {
	// PhysicalReady is invoked when a frame arrives on link.
	PhysicalReady(link int, frame []byte)

	// FrameCollision is invoked when our own wired transmission
	// on link collided with another transmission.
	FrameCollision(link int)
}
