// SPDX-License-Identifier: GPL-3.0-or-later

/*
Package trace records protocol events emitted by simulated nodes.

The MAC, reliable delivery, and relay layers emit an [Event] for every
transmission, collision, drop, delivery, and retransmission. A
[Recorder] receives them. Use [Discard] to ignore events, [*Memory] to
inspect them in tests, and the sqlitestore subpackage to persist them.
*/
package trace

import (
	"time"

	"github.com/rbmk-project/wlansim/packet"
)

// Kind is the kind of a trace event.
type Kind string

const (
	// KindTx is a frame written to the physical layer.
	KindTx = Kind("tx")

	// KindCollision is a wired collision seen by a transmitter.
	KindCollision = Kind("collision")

	// KindDrop is a frame or packet discarded by the protocol.
	KindDrop = Kind("drop")

	// KindDeliver is a message handed to the application.
	KindDeliver = Kind("deliver")

	// KindRetransmit is a reliable delivery retransmission.
	KindRetransmit = Kind("retransmit")
)

// Event is a single protocol event.
type Event struct {
	// At is the simulated time of the event.
	At time.Duration

	// Node is the address of the node emitting the event.
	Node packet.Addr

	// Kind is the event kind.
	Kind Kind

	// Link is the link number or zero when not applicable.
	Link int

	// Src is the packet source, when known.
	Src packet.Addr

	// Dst is the packet destination, when known.
	Dst packet.Addr

	// Seq is the packet sequence bit, when known.
	Seq uint8

	// Size is the frame or payload size in bytes.
	Size int

	// Reason explains drop events.
	Reason string
}

// Recorder receives trace events.
type Recorder interface {
	Record(ev Event)
}

// Discard is a [Recorder] ignoring all events.
var Discard Recorder = discard{}

type discard struct{}

func (discard) Record(Event) {}

// Tee returns a [Recorder] forwarding events to all the given recorders.
func Tee(recorders ...Recorder) Recorder {
	return tee(recorders)
}

type tee []Recorder

func (t tee) Record(ev Event) {
	for _, r := range t {
		r.Record(ev)
	}
}

// OrDiscard returns r or [Discard] when r is nil.
func OrDiscard(r Recorder) Recorder {
	if r == nil {
		return Discard
	}
	return r
}

// Memory is a [Recorder] keeping events in memory.
//
// The zero value is ready to use. A nil *Memory discards events.
type Memory struct {
	// Events contains the recorded events in order.
	Events []Event
}

var _ Recorder = &Memory{}

// Record implements [Recorder].
func (m *Memory) Record(ev Event) {
	if m == nil {
		return
	}
	m.Events = append(m.Events, ev)
}

// Filter returns the events of the given kind emitted by node.
func (m *Memory) Filter(node packet.Addr, kind Kind) []Event {
	var out []Event
	if m == nil {
		return out
	}
	for _, ev := range m.Events {
		if ev.Node == node && ev.Kind == kind {
			out = append(out, ev)
		}
	}
	return out
}

// Count returns the number of events of the given kind.
func (m *Memory) Count(kind Kind) int {
	var count int
	if m == nil {
		return 0
	}
	for _, ev := range m.Events {
		if ev.Kind == kind {
			count++
		}
	}
	return count
}
