// SPDX-License-Identifier: GPL-3.0-or-later

package mac

import (
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/rbmk-project/wlansim/frame"
	"github.com/rbmk-project/wlansim/host"
	"github.com/rbmk-project/wlansim/trace"
)

const (
	// InterframeGap is the wait before retrying on a busy wired line.
	InterframeGap = 9600 * time.Nanosecond

	// WiredSlot is the wired backoff slot time.
	WiredSlot = 51200 * time.Nanosecond

	// MaxCollisions is the number of consecutive collisions after
	// which the next collision drops the frame.
	MaxCollisions = 16
)

// Ethernet is the MAC engine for a wired link.
type Ethernet struct {
	engine
	collisions int
}

// NewEthernet creates a new [*Ethernet] for the given wired link.
func NewEthernet(h host.Host, link int, recv Receiver, cfg *Config) (*Ethernet, error) {
	if err := checkLink(h, link, host.LinkWired); err != nil {
		return nil, err
	}
	return &Ethernet{engine: newEngine(h, link, recv, cfg)}, nil
}

// checkLink ensures that link exists and has the expected type.
func checkLink(h host.Host, link int, expect host.LinkType) error {
	links := h.Links()
	if link <= 0 || link >= len(links) {
		return fmt.Errorf("mac: no such link: %d", link)
	}
	if lt := links[link].Type; lt != expect {
		return fmt.Errorf("%w: link %d is %s, expected %s", host.EPROTONOSUPPORT, link, lt, expect)
	}
	return nil
}

// encodeError maps a frame encoding error to the error we return.
func encodeError(err error) error {
	if errors.Is(err, frame.ErrPayloadTooLarge) {
		return fmt.Errorf("%w: %w", host.EMSGSIZE, err)
	}
	return err
}

// Collisions returns the current consecutive collisions count.
func (e *Ethernet) Collisions() int {
	return e.collisions
}

// Write encodes a frame for dst and schedules its transmission.
func (e *Ethernet) Write(dst frame.NICAddr, payload []byte) error {
	if e.closed {
		return host.ENETDOWN
	}
	raw, err := frame.EncodeWired(dst, e.info.NICAddr, payload)
	if err != nil {
		return encodeError(err)
	}
	started, err := e.enqueue(outFrame{dst: dst, raw: raw})
	if started {
		e.collisions = 0
		e.attempt()
	}
	return err
}

// attempt transmits the pending frame unless the line is busy.
func (e *Ethernet) attempt() {
	if e.closed || e.pending == nil {
		return
	}
	if e.host.CarrierSense(e.link) {
		e.state = StateDeferred
		e.arm(InterframeGap, e.attempt)
		return
	}
	if err := e.write(); err != nil {
		e.advance()
		return
	}

	// A collision may be reported until our last bit has reached
	// the far end of the segment and the jam has come back.
	e.arm(e.info.Airtime(len(e.pending.raw))+e.info.PropagationDelay, e.transmitted)
}

// transmitted is invoked when the pending frame left without collisions.
func (e *Ethernet) transmitted() {
	e.advance()
}

// advance moves to the next frame in the backlog, if any.
func (e *Ethernet) advance() {
	if e.next() {
		e.collisions = 0
		e.attempt()
	}
}

// Collision handles a collision reported by the host.
func (e *Ethernet) Collision() {
	if e.closed || e.state != StateTransmitting {
		return
	}
	e.host.StopTimer(e.timer)
	e.collisions++
	size := len(e.pending.raw)
	e.recorder.Record(trace.Event{
		At:   e.host.Now(),
		Node: e.host.Address(),
		Kind: trace.KindCollision,
		Link: e.link,
		Size: size,
	})
	if e.collisions > MaxCollisions {
		e.collisions = 0
		e.drop(size, "tooManyCollisions")
		e.advance()
		return
	}
	backoff := WiredSlot * e.backoffSlots(e.collisions)
	if e.logger != nil {
		e.logger.Debug(
			"collisionBackoff",
			slog.Int("link", e.link),
			slog.Int("collisions", e.collisions),
			slog.Duration("backoff", backoff),
			slog.Duration("t", e.host.Now()),
		)
	}
	e.state = StateBackoff
	e.arm(backoff, e.attempt)
}

// Read decodes a frame read from the medium and passes its payload up.
func (e *Ethernet) Read(raw []byte) {
	if e.closed {
		return
	}
	wired, err := frame.DecodeWired(raw)
	if err != nil {
		e.drop(len(raw), "malformed")
		return
	}
	e.deliver(wired.Dst, wired.Payload)
}
