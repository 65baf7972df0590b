// SPDX-License-Identifier: GPL-3.0-or-later

/*
Package station implements a mobile station.

A [*Station] drives a [*mac.WiFi] on each of its wireless links and
broadcasts every packet on all of them. Outgoing DATA packets go through
the RTS/CTS handshake, while ACK and NACK packets are sent directly.
Incoming packets are dispatched in this order: packets failing the
checksum go to the reliable delivery engine for optional NACK handling,
CTS packets go to the reservation requester, RTS packets are ignored,
and the remaining packets go to the reliable delivery engine, which
filters by destination address.
*/
package station

import (
	"errors"
	"log/slog"

	"github.com/rbmk-project/wlansim/arq"
	"github.com/rbmk-project/wlansim/frame"
	"github.com/rbmk-project/wlansim/host"
	"github.com/rbmk-project/wlansim/mac"
	"github.com/rbmk-project/wlansim/packet"
	"github.com/rbmk-project/wlansim/reservation"
	"github.com/rbmk-project/wlansim/trace"
)

// ErrNoWirelessLink indicates a host without wireless links.
var ErrNoWirelessLink = errors.New("station: no wireless link")

// Config contains optional [*Station] settings.
//
// The zero value is ready to use.
type Config struct {
	// ARQ contains the reliable delivery settings. The Logger and
	// Recorder fields are inherited from this struct when empty.
	ARQ arq.Config

	// Logger is the optional structured logger.
	Logger *slog.Logger

	// QueueLen is the per-link MAC backlog length.
	QueueLen int

	// Recorder receives trace events. If nil, we discard them.
	Recorder trace.Recorder

	// Reservation contains the RTS/CTS settings.
	Reservation reservation.Config
}

// Station is a mobile station.
type Station struct {
	engine    *arq.Engine
	host      host.Host
	links     mac.Table
	requester *reservation.Requester
	wireless  []*mac.Link
}

var _ host.Handler = &Station{}

// New creates a new [*Station] delivering messages to app.
func New(h host.Host, app arq.Application, cfg *Config) (*Station, error) {
	if cfg == nil {
		cfg = &Config{}
	}
	s := &Station{host: h}
	macConfig := &mac.Config{
		Logger:   cfg.Logger,
		QueueLen: cfg.QueueLen,
		Recorder: cfg.Recorder,
	}
	links := h.Links()
	s.links = make(mac.Table, len(links))
	for index, info := range links {
		if info.Type != host.LinkWireless {
			s.links[index] = mac.NewUnsupportedLink(index)
			continue
		}
		l, err := mac.NewLink(h, index, mac.ReceiverFunc(s.fromLink), false, macConfig)
		if err != nil {
			s.links.Close()
			return nil, err
		}
		s.links[index] = l
		s.wireless = append(s.wireless, l)
	}
	if len(s.wireless) <= 0 {
		return nil, ErrNoWirelessLink
	}

	resvConfig := cfg.Reservation
	if resvConfig.Logger == nil {
		resvConfig.Logger = cfg.Logger
	}
	s.requester = reservation.NewRequester(h, reservation.TransmitterFunc(s.broadcast), &resvConfig)

	arqConfig := cfg.ARQ
	if arqConfig.Logger == nil {
		arqConfig.Logger = cfg.Logger
	}
	if arqConfig.Recorder == nil {
		arqConfig.Recorder = cfg.Recorder
	}
	if arqConfig.Link.Type == host.LinkUnsupported {
		arqConfig.Link = links[s.wireless[0].Index()]
	}
	s.engine = arq.NewEngine(h, (*transport)(s), app, &arqConfig)
	return s, nil
}

// Send sends payload to dst. It returns [arq.ErrBusy] while the
// previous message for dst is outstanding.
func (s *Station) Send(dst packet.Addr, payload []byte) error {
	return s.engine.Send(dst, payload)
}

// CanSend returns whether [*Station.Send] would accept a message for dst.
func (s *Station) CanSend(dst packet.Addr) bool {
	return s.engine.CanSend(dst)
}

// Engine returns the reliable delivery engine.
func (s *Station) Engine() *arq.Engine {
	return s.engine
}

// Requester returns the reservation requester.
func (s *Station) Requester() *reservation.Requester {
	return s.requester
}

// Links returns the MAC table.
func (s *Station) Links() mac.Table {
	return s.links
}

// PhysicalReady implements [host.Handler].
func (s *Station) PhysicalReady(link int, raw []byte) {
	s.links.PhysicalReady(link, raw)
}

// FrameCollision implements [host.Handler].
func (s *Station) FrameCollision(link int) {
	s.links.FrameCollision(link)
}

// fromLink dispatches a packet read from a wireless link.
func (s *Station) fromLink(link int, payload []byte) {
	if len(payload) > packet.MaxLen {
		return
	}
	pkt, err := packet.Parse(payload)
	if err != nil {
		s.engine.Receive(payload)
		return
	}
	if grantee, ok := reservation.ParseCTS(pkt); ok {
		s.requester.HandleCTS(grantee)
		return
	}
	if reservation.IsRTS(pkt) {
		return
	}
	s.engine.Receive(payload)
}

// broadcast writes a packet on every wireless link.
func (s *Station) broadcast(raw []byte) error {
	var errv []error
	for _, l := range s.wireless {
		if err := l.Write(frame.BroadcastNIC, raw); err != nil {
			errv = append(errv, err)
		}
	}
	return errors.Join(errv...)
}

// Close cancels every timer and tears down the links.
func (s *Station) Close() error {
	s.engine.Close()
	s.requester.Close()
	return s.links.Close()
}

// transport implements [arq.Transport] for a [*Station].
type transport Station

// SendData implements [arq.Transport].
func (t *transport) SendData(dst packet.Addr, raw []byte) error {
	(*Station)(t).requester.Request(dst, raw)
	return nil
}

// SendControl implements [arq.Transport].
func (t *transport) SendControl(dst packet.Addr, raw []byte) error {
	return (*Station)(t).broadcast(raw)
}
