// SPDX-License-Identifier: GPL-3.0-or-later

/*
Package reservation implements the RTS/CTS channel reservation handshake.

A station wanting to send a DATA packet buffers it in its [*Requester]
and broadcasts an RTS. An access point hearing the RTS answers with a
CTS naming the sender, using its [*Responder], provided that the link
the RTS arrived on is not busy forwarding. Every station overhearing the
CTS either transmits its buffered packet, when it is the grantee, or
holds off for a while.

There is no CTS timeout. A station that never hears a CTS never
transmits the buffered packet. The reliable delivery layer recovers
from this condition by requesting the channel again on retransmission.
*/
package reservation

import (
	"log/slog"
	"time"

	"github.com/rbmk-project/common/errclass"
	"github.com/rbmk-project/wlansim/frame"
	"github.com/rbmk-project/wlansim/host"
	"github.com/rbmk-project/wlansim/packet"
)

// Transmitter transmits a network packet on the wireless medium.
type Transmitter interface {
	Transmit(raw []byte) error
}

// TransmitterFunc adapts a function to the [Transmitter] interface.
type TransmitterFunc func(raw []byte) error

// Transmit implements [Transmitter].
func (fx TransmitterFunc) Transmit(raw []byte) error {
	return fx(raw)
}

// DefaultHold returns the hold time for a link, which is the time it
// takes to transmit a maximum size wireless frame on it.
func DefaultHold(info host.LinkInfo) time.Duration {
	return info.Airtime(frame.WirelessMaxFrame)
}

// Config contains optional settings for a [*Requester].
//
// The zero value is ready to use.
type Config struct {
	// Hold is how long we refrain from transmitting after overhearing
	// a CTS granting the channel to another station. If zero, we use
	// [DefaultHold] for the first wireless link of the host.
	Hold time.Duration

	// Logger is the optional structured logger.
	Logger *slog.Logger
}

// request is a packet waiting for a CTS.
type request struct {
	dst packet.Addr
	raw []byte
}

// Requester is the station side of the handshake.
type Requester struct {
	buffered []request
	hold     time.Duration
	held     bool
	host     host.Host
	logger   *slog.Logger
	postpone bool
	timer    host.TimerID
	tx       Transmitter
}

// NewRequester creates a new [*Requester].
func NewRequester(h host.Host, tx Transmitter, cfg *Config) *Requester {
	r := &Requester{host: h, tx: tx}
	if cfg != nil {
		r.hold = cfg.Hold
		r.logger = cfg.Logger
	}
	if r.hold <= 0 {
		for _, info := range h.Links() {
			if info.Type == host.LinkWireless {
				r.hold = DefaultHold(info)
				break
			}
		}
	}
	return r
}

// Request buffers raw, a packet for dst, and broadcasts an RTS. A
// packet already buffered for dst is replaced in place, so that a
// retransmission does not queue the same exchange twice.
func (r *Requester) Request(dst packet.Addr, raw []byte) {
	replaced := false
	for idx := range r.buffered {
		if r.buffered[idx].dst == dst {
			r.buffered[idx].raw = raw
			replaced = true
			break
		}
	}
	if !replaced {
		r.buffered = append(r.buffered, request{dst: dst, raw: raw})
	}
	r.sendRTS()
}

// sendRTS broadcasts an RTS unless we are holding off.
func (r *Requester) sendRTS() {
	if r.held {
		r.postpone = true
		return
	}
	raw, err := NewRTS(r.host.Address()).Marshal()
	if err != nil {
		return
	}
	r.transmit("rtsTx", raw)
}

// HandleCTS handles an overheard CTS granting the channel to grantee.
func (r *Requester) HandleCTS(grantee packet.Addr) {
	if grantee != r.host.Address() {
		r.holdOff()
		return
	}
	if len(r.buffered) <= 0 {
		return
	}
	next := r.buffered[0]
	r.buffered = r.buffered[1:]
	r.transmit("dataTx", next.raw)
	if len(r.buffered) > 0 {
		r.sendRTS()
	}
}

// holdOff refrains from transmitting for the hold time.
func (r *Requester) holdOff() {
	r.held = true
	r.host.StopTimer(r.timer)
	r.timer = r.host.StartTimer(r.hold, r.release)
	if r.logger != nil {
		r.logger.Debug(
			"reservationHold",
			slog.Duration("hold", r.hold),
			slog.Duration("t", r.host.Now()),
		)
	}
}

// release ends the hold and sends the RTS we postponed, if any.
func (r *Requester) release() {
	r.held = false
	r.timer = 0
	if r.postpone {
		r.postpone = false
		if len(r.buffered) > 0 {
			r.sendRTS()
		}
	}
}

func (r *Requester) transmit(event string, raw []byte) {
	err := r.tx.Transmit(raw)
	if r.logger != nil {
		r.logger.Debug(
			event,
			slog.Any("err", err),
			slog.String("errClass", errclass.New(err)),
			slog.Int("packetSize", len(raw)),
			slog.Duration("t", r.host.Now()),
		)
	}
}

// Held returns whether we are holding off after a foreign CTS.
func (r *Requester) Held() bool {
	return r.held
}

// Buffered returns the number of packets waiting for a CTS.
func (r *Requester) Buffered() int {
	return len(r.buffered)
}

// Close cancels the hold timer and discards buffered packets.
func (r *Requester) Close() error {
	r.host.StopTimer(r.timer)
	r.timer = 0
	r.held = false
	r.postpone = false
	r.buffered = nil
	return nil
}
