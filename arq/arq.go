// SPDX-License-Identifier: GPL-3.0-or-later

/*
Package arq implements stop-and-wait reliable delivery with
alternating-bit sequencing.

An [*Engine] keeps, for each peer, the next sequence bit to send and
the sequence bit it expects to receive. [*Engine.Send] accepts one
message per peer at a time: the DATA packet is retained and
retransmitted when its timer expires, until the peer acknowledges it.
[*Engine.Receive] acknowledges every valid DATA packet, including
duplicates, and delivers a packet to the [Application] only when its
sequence bit is the expected one and its checksum is not in the
[*DupCache].

There is no retry cap: a peer that never answers is retried forever.
*/
package arq

import (
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/rbmk-project/common/errclass"
	"github.com/rbmk-project/wlansim/frame"
	"github.com/rbmk-project/wlansim/host"
	"github.com/rbmk-project/wlansim/packet"
	"github.com/rbmk-project/wlansim/reservation"
	"github.com/rbmk-project/wlansim/trace"
)

const (
	// DefaultMaxPeers is the default maximum number of peers.
	DefaultMaxPeers = 64

	// DefaultTimeoutScale is the default retransmission timeout scale.
	DefaultTimeoutScale = 4
)

var (
	// ErrBusy indicates that an exchange with the peer is outstanding.
	ErrBusy = errors.New("arq: exchange in progress")

	// ErrTooManyPeers indicates that the peer table is full.
	ErrTooManyPeers = errors.New("arq: too many peers")

	// ErrInvalidPeer indicates a destination we cannot exchange with.
	ErrInvalidPeer = errors.New("arq: invalid peer")

	// ErrReservedPayload indicates a payload the receivers would
	// take for an RTS or a CTS packet.
	ErrReservedPayload = errors.New("arq: reserved payload")
)

// Application receives delivered messages and readiness notifications.
type Application interface {
	// Deliver is invoked once per uniquely received message.
	Deliver(src packet.Addr, payload []byte)

	// Ready is invoked when a new message for peer can be sent.
	Ready(peer packet.Addr)
}

// Transport moves network packets to the medium.
type Transport interface {
	// SendData sends a DATA packet, reserving the channel if needed.
	SendData(dst packet.Addr, raw []byte) error

	// SendControl sends an ACK or NACK packet directly.
	SendControl(dst packet.Addr, raw []byte) error
}

// Config contains optional [*Engine] settings.
//
// The zero value is ready to use.
type Config struct {
	// DupCacheSize is the duplicate cache capacity. If zero, we
	// use [DefaultDupCacheSize].
	DupCacheSize int

	// Link describes the link used to size the retransmission
	// timeout. If its type is [host.LinkUnsupported], we use the
	// first supported link of the host.
	Link host.LinkInfo

	// Logger is the optional structured logger.
	Logger *slog.Logger

	// MaxPeers is the maximum number of peers. If zero, we use
	// [DefaultMaxPeers].
	MaxPeers int

	// NACKOnCorruption enables replying NACK to packets failing
	// the checksum verification.
	NACKOnCorruption bool

	// Recorder receives trace events. If nil, we discard them.
	Recorder trace.Recorder

	// TimeoutScale multiplies the expected transmission time to get
	// the retransmission timeout. If zero, we use [DefaultTimeoutScale].
	TimeoutScale int
}

// peer is the per-peer state.
type peer struct {
	expectSeq uint8
	retained  []byte
	sendSeq   uint8
	timer     host.TimerID
}

// Engine is the reliable delivery engine of a node.
type Engine struct {
	app      Application
	dups     *DupCache
	host     host.Host
	link     host.LinkInfo
	logger   *slog.Logger
	maxPeers int
	nack     bool
	peers    map[packet.Addr]*peer
	recorder trace.Recorder
	scale    int
	tx       Transport
}

// NewEngine creates a new [*Engine].
func NewEngine(h host.Host, tx Transport, app Application, cfg *Config) *Engine {
	if cfg == nil {
		cfg = &Config{}
	}
	e := &Engine{
		app:      app,
		dups:     NewDupCache(cfg.DupCacheSize),
		host:     h,
		link:     cfg.Link,
		logger:   cfg.Logger,
		maxPeers: cfg.MaxPeers,
		nack:     cfg.NACKOnCorruption,
		peers:    map[packet.Addr]*peer{},
		recorder: trace.OrDiscard(cfg.Recorder),
		scale:    cfg.TimeoutScale,
		tx:       tx,
	}
	if e.maxPeers <= 0 {
		e.maxPeers = DefaultMaxPeers
	}
	if e.scale <= 0 {
		e.scale = DefaultTimeoutScale
	}
	if e.link.Type == host.LinkUnsupported {
		for _, info := range h.Links() {
			if info.Type != host.LinkUnsupported {
				e.link = info
				break
			}
		}
	}
	return e
}

// Timeout returns the retransmission timeout for a packet of the given size.
func (e *Engine) Timeout(packetSize int) time.Duration {
	overhead := frame.WirelessHeaderLen
	if e.link.Type == host.LinkWired {
		overhead = frame.WiredHeaderLen
	}
	return time.Duration(e.scale) * e.link.Airtime(packetSize+overhead)
}

// lookup returns the state of the given peer, creating it if needed.
func (e *Engine) lookup(addr packet.Addr) (*peer, error) {
	if p, found := e.peers[addr]; found {
		return p, nil
	}
	if len(e.peers) >= e.maxPeers {
		return nil, ErrTooManyPeers
	}
	p := &peer{}
	e.peers[addr] = p
	return p, nil
}

// CanSend returns whether a new message for dst would be accepted.
func (e *Engine) CanSend(dst packet.Addr) bool {
	if p, found := e.peers[dst]; found {
		return p.retained == nil
	}
	return len(e.peers) < e.maxPeers
}

// Send sends payload to dst. It returns [ErrBusy] when the previous
// message for dst has not been acknowledged yet and [ErrReservedPayload]
// when payload looks like an RTS or a CTS.
func (e *Engine) Send(dst packet.Addr, payload []byte) error {
	if dst == packet.Broadcast || dst == e.host.Address() {
		return fmt.Errorf("%w: %s", ErrInvalidPeer, dst)
	}
	if len(payload) > packet.MaxPayload {
		return fmt.Errorf("%w: %w", host.EMSGSIZE, packet.ErrTooLarge)
	}
	if reservation.IsMarkerPayload(payload) {
		return ErrReservedPayload
	}
	p, err := e.lookup(dst)
	if err != nil {
		return err
	}
	if p.retained != nil {
		return ErrBusy
	}
	pkt := &packet.Packet{
		Dst:     dst,
		Src:     e.host.Address(),
		Kind:    packet.KindData,
		Seq:     p.sendSeq,
		Payload: payload,
	}
	raw, err := pkt.Marshal()
	if err != nil {
		return err
	}
	p.retained = raw
	e.transmit(dst, p)
	return nil
}

// transmit sends the retained packet and arms the retransmission timer.
func (e *Engine) transmit(dst packet.Addr, p *peer) {
	if err := e.tx.SendData(dst, p.retained); err != nil && e.logger != nil {
		e.logger.Debug(
			"sendDataFailed",
			slog.Any("err", err),
			slog.String("errClass", errclass.New(err)),
			slog.String("dst", dst.String()),
			slog.Duration("t", e.host.Now()),
		)
	}
	e.host.StopTimer(p.timer)
	p.timer = e.host.StartTimer(e.Timeout(len(p.retained)), func() {
		e.retransmit(dst, p)
	})
}

// retransmit resends the retained packet unchanged.
func (e *Engine) retransmit(dst packet.Addr, p *peer) {
	p.timer = 0
	if p.retained == nil {
		return
	}
	e.recorder.Record(trace.Event{
		At:   e.host.Now(),
		Node: e.host.Address(),
		Kind: trace.KindRetransmit,
		Src:  e.host.Address(),
		Dst:  dst,
		Seq:  p.sendSeq,
		Size: len(p.retained),
	})
	if e.logger != nil {
		e.logger.Debug(
			"dataRetransmit",
			slog.String("dst", dst.String()),
			slog.Int("seq", int(p.sendSeq)),
			slog.Duration("t", e.host.Now()),
		)
	}
	e.transmit(dst, p)
}

// Receive handles a network packet read from the medium.
func (e *Engine) Receive(raw []byte) {
	pkt, err := packet.Parse(raw)
	if err != nil {
		e.corrupted(raw, err)
		return
	}
	if pkt.Dst != e.host.Address() {
		return
	}
	switch pkt.Kind {
	case packet.KindData:
		e.receiveData(pkt)
	case packet.KindACK:
		e.receiveACK(pkt)
	case packet.KindNACK:
		e.receiveNACK(pkt)
	}
}

// corrupted handles a packet failing validation.
func (e *Engine) corrupted(raw []byte, err error) {
	e.recorder.Record(trace.Event{
		At:     e.host.Now(),
		Node:   e.host.Address(),
		Kind:   trace.KindDrop,
		Size:   len(raw),
		Reason: "corrupted",
	})
	if !e.nack || !errors.Is(err, packet.ErrChecksum) {
		return
	}
	src, dst, seq, ok := packet.PeekHeader(raw)
	if !ok || dst != e.host.Address() || src == packet.Broadcast {
		return
	}
	e.sendControl(src, packet.KindNACK, seq&1)
}

func (e *Engine) receiveData(pkt *packet.Packet) {
	p, err := e.lookup(pkt.Src)
	if err != nil {
		return
	}
	if pkt.Seq == p.expectSeq {
		p.expectSeq ^= 1
		if !e.dups.Contains(pkt.Checksum) {
			e.dups.Add(pkt.Checksum)
			e.recorder.Record(trace.Event{
				At:   e.host.Now(),
				Node: e.host.Address(),
				Kind: trace.KindDeliver,
				Src:  pkt.Src,
				Dst:  pkt.Dst,
				Seq:  pkt.Seq,
				Size: len(pkt.Payload),
			})
			if e.app != nil {
				e.app.Deliver(pkt.Src, pkt.Payload)
			}
		}
	}
	e.sendControl(pkt.Src, packet.KindACK, pkt.Seq)
}

func (e *Engine) receiveACK(pkt *packet.Packet) {
	p, found := e.peers[pkt.Src]
	if !found || p.retained == nil || pkt.Seq != p.sendSeq {
		return
	}
	e.host.StopTimer(p.timer)
	p.timer = 0
	p.retained = nil
	p.sendSeq ^= 1
	if e.app != nil {
		e.app.Ready(pkt.Src)
	}
}

func (e *Engine) receiveNACK(pkt *packet.Packet) {
	p, found := e.peers[pkt.Src]
	if !found || p.retained == nil || pkt.Seq != p.sendSeq {
		return
	}
	e.host.StopTimer(p.timer)
	e.retransmit(pkt.Src, p)
}

// sendControl sends an ACK or NACK packet.
func (e *Engine) sendControl(dst packet.Addr, kind packet.Kind, seq uint8) {
	pkt := &packet.Packet{Dst: dst, Src: e.host.Address(), Kind: kind, Seq: seq}
	raw, err := pkt.Marshal()
	if err == nil {
		err = e.tx.SendControl(dst, raw)
	}
	if e.logger != nil {
		e.logger.Debug(
			"controlTx",
			slog.Any("err", err),
			slog.String("errClass", errclass.New(err)),
			slog.String("dst", dst.String()),
			slog.String("kind", kind.String()),
			slog.Int("seq", int(seq)),
			slog.Duration("t", e.host.Now()),
		)
	}
}

// Outstanding returns whether an exchange with dst is outstanding.
func (e *Engine) Outstanding(dst packet.Addr) bool {
	p, found := e.peers[dst]
	return found && p.retained != nil
}

// Peers returns the number of known peers.
func (e *Engine) Peers() int {
	return len(e.peers)
}

// Close cancels every retransmission timer.
func (e *Engine) Close() error {
	for _, p := range e.peers {
		e.host.StopTimer(p.timer)
		p.timer = 0
		p.retained = nil
	}
	return nil
}
