// SPDX-License-Identifier: GPL-3.0-or-later

package station

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rbmk-project/wlansim/arq"
	"github.com/rbmk-project/wlansim/frame"
	"github.com/rbmk-project/wlansim/host"
	"github.com/rbmk-project/wlansim/host/hosttest"
	"github.com/rbmk-project/wlansim/packet"
	"github.com/rbmk-project/wlansim/reservation"
)

const (
	self = packet.Addr(7)
	peer = packet.Addr(9)
	ap   = packet.Addr(100)
)

var apNIC = frame.NICAddr{0x02, 0, 0, 0, 0, 0x64}

type app struct {
	delivered [][]byte
	ready     []packet.Addr
}

func (a *app) Deliver(src packet.Addr, payload []byte) { a.delivered = append(a.delivered, payload) }
func (a *app) Ready(peer packet.Addr)                { a.ready = append(a.ready, peer) }

func newTestStation(t *testing.T) (*Station, *hosttest.Host, *app) {
	h := hosttest.New(self, host.LinkInfo{
		Type:             host.LinkWireless,
		NICAddr:          frame.NICAddr{0x02, 0, 0, 0, 0, 0x07},
		Bandwidth:        11_000_000,
		PropagationDelay: time.Microsecond,
	})
	a := &app{}
	s, err := New(h, a, nil)
	require.NoError(t, err)
	return s, h, a
}

// inject delivers a packet to the station as if an access point sent it.
func inject(t *testing.T, s *Station, pkt *packet.Packet) {
	raw, err := pkt.Marshal()
	require.NoError(t, err)
	wf, err := frame.EncodeWireless(true, frame.BroadcastNIC, apNIC, raw)
	require.NoError(t, err)
	s.PhysicalReady(1, wf)
}

// sent decodes the packets the station wrote.
func sent(t *testing.T, h *hosttest.Host) []*packet.Packet {
	var out []*packet.Packet
	for _, w := range h.Writes {
		wf, err := frame.DecodeWireless(w.Frame)
		require.NoError(t, err)
		assert.False(t, wf.FromDS)
		pkt, err := packet.Parse(wf.Payload)
		require.NoError(t, err)
		out = append(out, pkt)
	}
	return out
}

func TestStationSendExchange(t *testing.T) {
	s, h, a := newTestStation(t)

	require.NoError(t, s.Send(peer, []byte("hello")))
	assert.False(t, s.CanSend(peer))
	pkts := sent(t, h)
	require.Len(t, pkts, 1)
	assert.True(t, reservation.IsRTS(pkts[0]))

	inject(t, s, reservation.NewCTS(ap, self))
	h.Advance(60 * time.Microsecond)
	pkts = sent(t, h)
	require.Len(t, pkts, 2)
	assert.Equal(t, packet.KindData, pkts[1].Kind)
	assert.Equal(t, peer, pkts[1].Dst)
	assert.Equal(t, []byte("hello"), pkts[1].Payload)

	inject(t, s, &packet.Packet{Dst: self, Src: peer, Kind: packet.KindACK, Seq: 0})
	assert.True(t, s.CanSend(peer))
	assert.Equal(t, []packet.Addr{peer}, a.ready)
	assert.Equal(t, 0, h.Pending())
}

func TestStationReceive(t *testing.T) {
	s, h, a := newTestStation(t)

	inject(t, s, &packet.Packet{Dst: self, Src: peer, Kind: packet.KindData, Payload: []byte("hi")})
	require.Len(t, a.delivered, 1)
	pkts := sent(t, h)
	require.Len(t, pkts, 1)
	assert.Equal(t, packet.KindACK, pkts[0].Kind)
	assert.Equal(t, peer, pkts[0].Dst)

	// packets for other stations and RTS are ignored
	inject(t, s, &packet.Packet{Dst: 11, Src: peer, Kind: packet.KindData, Payload: []byte("no")})
	inject(t, s, reservation.NewRTS(11))
	assert.Len(t, a.delivered, 1)
	assert.Len(t, h.Writes, 1)
}

func TestStationReceivesMarkerLikeData(t *testing.T) {
	s, h, a := newTestStation(t)

	inject(t, s, &packet.Packet{Dst: self, Src: peer, Kind: packet.KindData, Payload: []byte("RTS")})
	require.Len(t, a.delivered, 1)
	assert.Equal(t, []byte("RTS"), a.delivered[0])
	pkts := sent(t, h)
	require.Len(t, pkts, 1)
	assert.Equal(t, packet.KindACK, pkts[0].Kind)

	assert.ErrorIs(t, s.Send(peer, []byte("RTS")), arq.ErrReservedPayload)
}

func TestStationForeignCTSBlocksTransmission(t *testing.T) {
	s, h, _ := newTestStation(t)

	require.NoError(t, s.Send(peer, []byte("hello")))
	inject(t, s, reservation.NewCTS(ap, 11))
	assert.True(t, s.Requester().Held())

	h.Advance(50 * time.Microsecond)
	pkts := sent(t, h)
	require.Len(t, pkts, 1)
	assert.True(t, reservation.IsRTS(pkts[0]))
	assert.Equal(t, 1, s.Requester().Buffered())
}

func TestStationRetransmitRequestsAgain(t *testing.T) {
	s, h, _ := newTestStation(t)

	require.NoError(t, s.Send(peer, []byte("hello")))
	h.Advance(s.Engine().Timeout(packet.HeaderLen + 5))
	pkts := sent(t, h)
	require.Len(t, pkts, 2)
	assert.True(t, reservation.IsRTS(pkts[0]))
	assert.True(t, reservation.IsRTS(pkts[1]))
	assert.Equal(t, 1, s.Requester().Buffered())
}

func TestStationRequiresWireless(t *testing.T) {
	h := hosttest.New(self, host.LinkInfo{Type: host.LinkWired, Bandwidth: 10_000_000})
	_, err := New(h, nil, nil)
	assert.ErrorIs(t, err, ErrNoWirelessLink)
}

func TestStationClose(t *testing.T) {
	s, h, _ := newTestStation(t)
	require.NoError(t, s.Send(peer, []byte("hello")))
	require.NoError(t, s.Close())
	assert.Equal(t, 0, h.Pending())
}
