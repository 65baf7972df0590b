// SPDX-License-Identifier: GPL-3.0-or-later

package sim

import (
	"encoding/binary"
	"log/slog"
	"time"

	"github.com/rbmk-project/common/errclass"
	"github.com/rbmk-project/wlansim/arq"
	"github.com/rbmk-project/wlansim/host"
	"github.com/rbmk-project/wlansim/packet"
)

// Sender is the reliable delivery service a [*Traffic] drives.
type Sender interface {
	CanSend(dst packet.Addr) bool
	Send(dst packet.Addr, payload []byte) error
}

// TrafficConfig configures a [*Traffic].
type TrafficConfig struct {
	// Interval is the mean time between two messages. The actual
	// interval is uniformly distributed in [0, 2*Interval).
	Interval time.Duration

	// Limit is the maximum number of messages to send. Zero
	// means no limit.
	Limit int

	// Logger is the optional structured logger.
	Logger *slog.Logger

	// Peers contains the candidate destinations.
	Peers []packet.Addr

	// Size is the message size. Messages are never shorter than
	// the eight bytes carrying the message counter.
	Size int
}

// counterLen is the size of the message counter.
const counterLen = 8

// Traffic generates application messages towards random peers and
// counts the messages delivered to its node.
//
// Each message starts with a counter so that no two messages from the
// same node are identical, which keeps the duplicate cache of the
// receiver from discarding them.
//
// Construct using [NewTraffic].
type Traffic struct {
	cfg       TrafficConfig
	count     uint64
	delivered int
	byPeer    map[packet.Addr]int
	host      host.Host
	sender    Sender
	sent      int
	timer     host.TimerID
}

var _ arq.Application = &Traffic{}

// NewTraffic creates a new [*Traffic] for the given host. Use
// [*Traffic.Start] once the [Sender] exists.
func NewTraffic(h host.Host, cfg *TrafficConfig) *Traffic {
	return &Traffic{cfg: *cfg, byPeer: map[packet.Addr]int{}, host: h}
}

// Start starts generating messages sent through s.
func (t *Traffic) Start(s Sender) {
	t.sender = s
	t.schedule()
}

// schedule arms the generation timer unless it is already armed.
func (t *Traffic) schedule() {
	if t.timer != 0 || t.sender == nil || t.exhausted() {
		return
	}
	var d time.Duration
	if t.cfg.Interval > 0 {
		d = time.Duration(t.host.Rand().Int63n(int64(2 * t.cfg.Interval)))
	}
	t.timer = t.host.StartTimer(d, t.generate)
}

func (t *Traffic) exhausted() bool {
	return t.cfg.Limit > 0 && t.sent >= t.cfg.Limit
}

// generate sends a message to a random ready peer. When no peer is
// ready, we wait for [*Traffic.Ready].
func (t *Traffic) generate() {
	t.timer = 0
	var ready []packet.Addr
	for _, peer := range t.cfg.Peers {
		if t.sender.CanSend(peer) {
			ready = append(ready, peer)
		}
	}
	if len(ready) <= 0 {
		return
	}
	dst := ready[t.host.Rand().Intn(len(ready))]
	t.count++
	payload := make([]byte, max(t.cfg.Size, counterLen))
	binary.BigEndian.PutUint64(payload, t.count)
	for idx := counterLen; idx < len(payload); idx++ {
		payload[idx] = byte(idx)
	}
	err := t.sender.Send(dst, payload)
	if t.cfg.Logger != nil {
		t.cfg.Logger.Debug(
			"messageGenerated",
			slog.Any("err", err),
			slog.String("errClass", errclass.New(err)),
			slog.String("src", t.host.Address().String()),
			slog.String("dst", dst.String()),
			slog.Int("size", len(payload)),
			slog.Duration("t", t.host.Now()),
		)
	}
	if err == nil {
		t.sent++
	}
	t.schedule()
}

// Deliver implements [arq.Application].
func (t *Traffic) Deliver(src packet.Addr, payload []byte) {
	t.delivered++
	t.byPeer[src]++
}

// Ready implements [arq.Application].
func (t *Traffic) Ready(peer packet.Addr) {
	t.schedule()
}

// Sent returns the number of messages accepted by the [Sender].
func (t *Traffic) Sent() int {
	return t.sent
}

// Delivered returns the number of messages delivered to this node.
func (t *Traffic) Delivered() int {
	return t.delivered
}

// DeliveredFrom returns the number of messages delivered from src.
func (t *Traffic) DeliveredFrom(src packet.Addr) int {
	return t.byPeer[src]
}

// Close stops generating messages.
func (t *Traffic) Close() error {
	t.host.StopTimer(t.timer)
	t.timer = 0
	t.sender = nil
	return nil
}
