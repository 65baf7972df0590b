// SPDX-License-Identifier: GPL-3.0-or-later

package mac

import (
	"log/slog"
	"time"

	"github.com/rbmk-project/wlansim/frame"
	"github.com/rbmk-project/wlansim/host"
)

const (
	// WirelessSlot is the wireless backoff slot time.
	WirelessSlot = 39 * time.Microsecond

	// MaxBusy is the number of consecutive busy deferrals after
	// which the next deferral drops the frame.
	MaxBusy = 16
)

// WiFi is the MAC engine for a wireless link.
type WiFi struct {
	engine
	busy int
	isDS bool
}

// NewWiFi creates a new [*WiFi] for the given wireless link. Set isDS
// when the node is part of the distribution system (an access point).
func NewWiFi(h host.Host, link int, recv Receiver, isDS bool, cfg *Config) (*WiFi, error) {
	if err := checkLink(h, link, host.LinkWireless); err != nil {
		return nil, err
	}
	return &WiFi{engine: newEngine(h, link, recv, cfg), isDS: isDS}, nil
}

// BusyCount returns the current consecutive busy deferrals count.
func (w *WiFi) BusyCount() int {
	return w.busy
}

// IsDS returns whether this engine belongs to the distribution system.
func (w *WiFi) IsDS() bool {
	return w.isDS
}

// Write encodes a frame for dst and schedules its transmission.
func (w *WiFi) Write(dst frame.NICAddr, payload []byte) error {
	if w.closed {
		return host.ENETDOWN
	}
	raw, err := frame.EncodeWireless(w.isDS, dst, w.info.NICAddr, payload)
	if err != nil {
		return encodeError(err)
	}
	started, err := w.enqueue(outFrame{dst: dst, raw: raw})
	if started {
		w.attempt()
	}
	return err
}

// attempt transmits the pending frame unless the line is busy.
func (w *WiFi) attempt() {
	if w.closed || w.pending == nil {
		return
	}
	if w.host.CarrierSense(w.link) {
		w.busy++
		if w.busy > MaxBusy {
			w.busy = 0
			w.drop(len(w.pending.raw), "tooManyDeferrals")
			w.advance()
			return
		}
		backoff := WirelessSlot * w.backoffSlots(w.busy)
		if w.logger != nil {
			w.logger.Debug(
				"busyBackoff",
				slog.Int("link", w.link),
				slog.Int("busy", w.busy),
				slog.Duration("backoff", backoff),
				slog.Duration("t", w.host.Now()),
			)
		}
		w.state = StateBackoff
		w.arm(backoff, w.attempt)
		return
	}
	w.busy = 0
	if err := w.write(); err != nil {
		w.advance()
		return
	}
	w.arm(w.info.Airtime(len(w.pending.raw)), w.advance)
}

// advance moves to the next frame in the backlog, if any.
func (w *WiFi) advance() {
	if w.next() {
		w.attempt()
	}
}

// Read verifies a frame read from the medium and passes its payload up.
func (w *WiFi) Read(raw []byte) {
	if w.closed {
		return
	}
	wireless, err := frame.DecodeWireless(raw)
	if err != nil {
		w.drop(len(raw), "malformed")
		return
	}
	if wireless.FromDS && w.isDS {
		return
	}
	w.deliver(wireless.Dst, wireless.Payload)
}
