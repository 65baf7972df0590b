// SPDX-License-Identifier: GPL-3.0-or-later

// Package hosttest provides a scripted [host.Host] for unit tests.
package hosttest

import (
	"time"

	"golang.org/x/exp/rand"

	"github.com/rbmk-project/wlansim/host"
	"github.com/rbmk-project/wlansim/packet"
)

// Write is a frame written by the code under test.
type Write struct {
	At    time.Duration
	Link  int
	Frame []byte
}

type timer struct {
	at time.Duration
	fn func()
	id host.TimerID
}

// Host is a [host.Host] with a manual clock.
//
// Construct using [New].
type Host struct {
	// Carrier contains the links whose carrier is busy.
	Carrier map[int]bool

	// WriteErr, if not nil, is returned by WritePhysical.
	WriteErr error

	// Writes contains the frames written so far.
	Writes []Write

	addr   packet.Addr
	links  []host.LinkInfo
	nextID host.TimerID
	now    time.Duration
	pos    host.Position
	rng    *rand.Rand
	timers map[host.TimerID]*timer
}

var _ host.Host = &Host{}

// New creates a [*Host] with the given address and links. Link zero
// is an unsupported loopback link and links are numbered from one.
func New(addr packet.Addr, links ...host.LinkInfo) *Host {
	return &Host{
		Carrier: map[int]bool{},
		addr:    addr,
		links:   append([]host.LinkInfo{{Type: host.LinkUnsupported}}, links...),
		rng:     rand.New(rand.NewSource(uint64(addr) + 1)),
		timers:  map[host.TimerID]*timer{},
	}
}

// Address implements [host.Host].
func (h *Host) Address() packet.Addr {
	return h.addr
}

// Links implements [host.Host].
func (h *Host) Links() []host.LinkInfo {
	return h.links
}

// WritePhysical implements [host.Host].
func (h *Host) WritePhysical(link int, frame []byte) error {
	if h.WriteErr != nil {
		return h.WriteErr
	}
	h.Writes = append(h.Writes, Write{At: h.now, Link: link, Frame: append([]byte{}, frame...)})
	return nil
}

// CarrierSense implements [host.Host].
func (h *Host) CarrierSense(link int) bool {
	return h.Carrier[link]
}

// StartTimer implements [host.Host].
func (h *Host) StartTimer(d time.Duration, fn func()) host.TimerID {
	h.nextID++
	h.timers[h.nextID] = &timer{at: h.now + max(d, 0), fn: fn, id: h.nextID}
	return h.nextID
}

// StopTimer implements [host.Host].
func (h *Host) StopTimer(id host.TimerID) bool {
	_, found := h.timers[id]
	delete(h.timers, id)
	return found
}

// Now implements [host.Host].
func (h *Host) Now() time.Duration {
	return h.now
}

// Rand implements [host.Host].
func (h *Host) Rand() *rand.Rand {
	return h.rng
}

// Position implements [host.Host].
func (h *Host) Position() host.Position {
	return h.pos
}

// SetPosition implements [host.Host].
func (h *Host) SetPosition(pos host.Position) {
	h.pos = pos
}

// Pending returns the number of pending timers.
func (h *Host) Pending() int {
	return len(h.timers)
}

// earliest returns the earliest pending timer or nil.
func (h *Host) earliest() *timer {
	var first *timer
	for _, t := range h.timers {
		if first == nil || t.at < first.at || (t.at == first.at && t.id < first.id) {
			first = t
		}
	}
	return first
}

// FireNext advances the clock to the earliest pending timer and
// runs it, returning false when no timer is pending.
func (h *Host) FireNext() bool {
	t := h.earliest()
	if t == nil {
		return false
	}
	delete(h.timers, t.id)
	h.now = t.at
	t.fn()
	return true
}

// Advance runs the timers expiring within d and moves the clock forward by d.
func (h *Host) Advance(d time.Duration) {
	end := h.now + d
	for {
		t := h.earliest()
		if t == nil || t.at > end {
			break
		}
		delete(h.timers, t.id)
		h.now = t.at
		t.fn()
	}
	h.now = end
}

// Reset forgets the frames written so far.
func (h *Host) Reset() {
	h.Writes = nil
}
