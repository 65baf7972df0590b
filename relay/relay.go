// SPDX-License-Identifier: GPL-3.0-or-later

/*
Package relay implements the access point bridging wired and wireless links.

A [*Relay] drives one MAC per link. It answers RTS packets with a CTS on
the wireless link they arrived on and it rebroadcasts every other packet:

  - packets arriving on a wireless link go out on every other wired
    and wireless link;

  - packets arriving on a wired link go out on every wireless link,
    because every station on the wired segment already saw them.

The relay never forwards CTS packets and keeps no sequence state.
Frames sent by other access points on wireless links are filtered by
the MAC, which prevents forwarding loops.
*/
package relay

import (
	"log/slog"

	"github.com/rbmk-project/common/errclass"
	"github.com/rbmk-project/wlansim/frame"
	"github.com/rbmk-project/wlansim/host"
	"github.com/rbmk-project/wlansim/mac"
	"github.com/rbmk-project/wlansim/packet"
	"github.com/rbmk-project/wlansim/reservation"
	"github.com/rbmk-project/wlansim/trace"
)

// Config contains optional [*Relay] settings.
//
// The zero value is ready to use.
type Config struct {
	// Logger is the optional structured logger.
	Logger *slog.Logger

	// QueueLen is the per-link MAC backlog length.
	QueueLen int

	// Recorder receives trace events. If nil, we discard them.
	Recorder trace.Recorder
}

// Relay is an access point.
type Relay struct {
	host      host.Host
	links     mac.Table
	logger    *slog.Logger
	recorder  trace.Recorder
	responder *reservation.Responder
}

var _ host.Handler = &Relay{}

// New creates a new [*Relay] for the links of the given host.
func New(h host.Host, cfg *Config) (*Relay, error) {
	if cfg == nil {
		cfg = &Config{}
	}
	r := &Relay{
		host:      h,
		logger:    cfg.Logger,
		recorder:  trace.OrDiscard(cfg.Recorder),
		responder: reservation.NewResponder(h, cfg.Logger),
	}
	links, err := mac.NewTable(h, mac.ReceiverFunc(r.fromLink), true, &mac.Config{
		Logger:   cfg.Logger,
		QueueLen: cfg.QueueLen,
		Recorder: cfg.Recorder,
	})
	if err != nil {
		return nil, err
	}
	r.links = links
	return r, nil
}

// Links returns the MAC table.
func (r *Relay) Links() mac.Table {
	return r.links
}

// PhysicalReady implements [host.Handler].
func (r *Relay) PhysicalReady(link int, raw []byte) {
	r.links.PhysicalReady(link, raw)
}

// FrameCollision implements [host.Handler].
func (r *Relay) FrameCollision(link int) {
	r.links.FrameCollision(link)
}

// fromLink handles a payload read from the given link.
func (r *Relay) fromLink(link int, payload []byte) {
	if len(payload) > packet.MaxLen {
		r.drop(link, len(payload), "oversize")
		return
	}
	ingress := r.links.Get(link)
	if ingress == nil {
		return
	}
	if pkt, err := packet.Parse(payload); err == nil {
		if reservation.IsRTS(pkt) {
			r.responder.HandleRTS(ingress, pkt.Src)
			return
		}
		if _, ok := reservation.ParseCTS(pkt); ok {
			return
		}
	}
	r.forward(ingress, payload)
}

// forward rebroadcasts payload according to the ingress link type.
func (r *Relay) forward(ingress *mac.Link, payload []byte) {
	for _, out := range r.links {
		if out == nil || out.Index() == ingress.Index() {
			continue
		}
		switch out.Type() {
		case host.LinkUnsupported:
			continue
		case host.LinkWired:
			if ingress.Type() == host.LinkWired {
				continue
			}
		}
		err := out.Write(frame.BroadcastNIC, payload)
		if r.logger != nil {
			r.logger.Debug(
				"relayForward",
				slog.Any("err", err),
				slog.String("errClass", errclass.New(err)),
				slog.Int("ingress", ingress.Index()),
				slog.Int("egress", out.Index()),
				slog.Int("packetSize", len(payload)),
				slog.Duration("t", r.host.Now()),
			)
		}
	}
}

func (r *Relay) drop(link, size int, reason string) {
	r.recorder.Record(trace.Event{
		At:     r.host.Now(),
		Node:   r.host.Address(),
		Kind:   trace.KindDrop,
		Link:   link,
		Size:   size,
		Reason: reason,
	})
}

// Close closes every link.
func (r *Relay) Close() error {
	return r.links.Close()
}
