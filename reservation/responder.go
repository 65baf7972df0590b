// SPDX-License-Identifier: GPL-3.0-or-later

package reservation

import (
	"log/slog"

	"github.com/rbmk-project/common/errclass"
	"github.com/rbmk-project/wlansim/frame"
	"github.com/rbmk-project/wlansim/host"
	"github.com/rbmk-project/wlansim/mac"
	"github.com/rbmk-project/wlansim/packet"
)

// Responder is the access point side of the handshake.
type Responder struct {
	host   host.Host
	logger *slog.Logger
}

// NewResponder creates a new [*Responder]. The logger may be nil.
func NewResponder(h host.Host, logger *slog.Logger) *Responder {
	return &Responder{host: h, logger: logger}
}

// HandleRTS answers an RTS from src heard on link and returns whether
// it sent a CTS. We only answer on wireless links that are not busy.
func (r *Responder) HandleRTS(link *mac.Link, src packet.Addr) bool {
	if link == nil || link.Type() != host.LinkWireless || link.Busy() {
		return false
	}
	raw, err := NewCTS(r.host.Address(), src).Marshal()
	if err == nil {
		err = link.Write(frame.BroadcastNIC, raw)
	}
	if r.logger != nil {
		r.logger.Debug(
			"ctsTx",
			slog.Any("err", err),
			slog.String("errClass", errclass.New(err)),
			slog.Int("link", link.Index()),
			slog.String("grantee", src.String()),
			slog.Duration("t", r.host.Now()),
		)
	}
	return err == nil
}
