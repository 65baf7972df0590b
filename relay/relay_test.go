// SPDX-License-Identifier: GPL-3.0-or-later

package relay

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rbmk-project/wlansim/frame"
	"github.com/rbmk-project/wlansim/host"
	"github.com/rbmk-project/wlansim/host/hosttest"
	"github.com/rbmk-project/wlansim/packet"
	"github.com/rbmk-project/wlansim/reservation"
	"github.com/rbmk-project/wlansim/trace"
)

var station = frame.NICAddr{0x02, 0, 0, 0, 0, 0x77}

// newTestRelay returns a relay with links 1 and 5 wired, links 2 and
// 3 wireless, and link 4 unsupported.
func newTestRelay(t *testing.T, mem *trace.Memory) (*Relay, *hosttest.Host) {
	nic := func(n byte) frame.NICAddr { return frame.NICAddr{0x02, 0, 0, 0, 1, n} }
	wired := func(n byte) host.LinkInfo {
		return host.LinkInfo{Type: host.LinkWired, NICAddr: nic(n), Bandwidth: 10_000_000}
	}
	wireless := func(n byte) host.LinkInfo {
		return host.LinkInfo{
			Type:             host.LinkWireless,
			NICAddr:          nic(n),
			Bandwidth:        11_000_000,
			PropagationDelay: time.Microsecond,
		}
	}
	h := hosttest.New(100,
		wired(1),
		wireless(2),
		wireless(3),
		host.LinkInfo{Type: host.LinkUnsupported},
		wired(5),
	)
	cfg := &Config{}
	if mem != nil {
		cfg.Recorder = mem
	}
	r, err := New(h, cfg)
	require.NoError(t, err)
	return r, h
}

func marshal(t *testing.T, pkt *packet.Packet) []byte {
	raw, err := pkt.Marshal()
	require.NoError(t, err)
	return raw
}

func wirelessFrame(t *testing.T, fromDS bool, payload []byte) []byte {
	raw, err := frame.EncodeWireless(fromDS, frame.BroadcastNIC, station, payload)
	require.NoError(t, err)
	return raw
}

func writtenLinks(h *hosttest.Host) []int {
	var links []int
	for _, w := range h.Writes {
		links = append(links, w.Link)
	}
	return links
}

func TestRelayWirelessIngress(t *testing.T) {
	r, h := newTestRelay(t, nil)
	data := marshal(t, &packet.Packet{Dst: 42, Src: 7, Kind: packet.KindData, Payload: []byte("hello")})

	r.PhysicalReady(2, wirelessFrame(t, false, data))
	assert.Equal(t, []int{1, 3, 5}, writtenLinks(h))

	// the egress frames carry the unchanged packet with from-DS set
	wired, err := frame.DecodeWired(h.Writes[0].Frame)
	require.NoError(t, err)
	assert.Equal(t, data, wired.Payload)
	wf, err := frame.DecodeWireless(h.Writes[1].Frame)
	require.NoError(t, err)
	assert.True(t, wf.FromDS)
	assert.Equal(t, data, wf.Payload)
}

func TestRelayWiredIngress(t *testing.T) {
	r, h := newTestRelay(t, nil)
	data := marshal(t, &packet.Packet{Dst: 42, Src: 7, Kind: packet.KindACK})
	raw, err := frame.EncodeWired(frame.BroadcastNIC, station, data)
	require.NoError(t, err)

	r.PhysicalReady(1, raw)
	assert.Equal(t, []int{2, 3}, writtenLinks(h))
}

func TestRelayNilMemoryRecorder(t *testing.T) {
	h := hosttest.New(100,
		host.LinkInfo{Type: host.LinkWired, Bandwidth: 10_000_000},
		host.LinkInfo{Type: host.LinkWireless, Bandwidth: 11_000_000},
	)
	var mem *trace.Memory
	r, err := New(h, &Config{Recorder: mem})
	require.NoError(t, err)
	data := marshal(t, &packet.Packet{Dst: 42, Src: 7, Kind: packet.KindData, Payload: []byte("hello")})
	assert.NotPanics(t, func() {
		r.PhysicalReady(2, wirelessFrame(t, false, data))
	})
	assert.Equal(t, []int{1}, writtenLinks(h))
}

func TestRelayReservation(t *testing.T) {
	t.Run("RTS is answered on the ingress link only", func(t *testing.T) {
		r, h := newTestRelay(t, nil)
		r.PhysicalReady(3, wirelessFrame(t, false, marshal(t, reservation.NewRTS(7))))
		require.Equal(t, []int{3}, writtenLinks(h))

		wf, err := frame.DecodeWireless(h.Writes[0].Frame)
		require.NoError(t, err)
		pkt, err := packet.Parse(wf.Payload)
		require.NoError(t, err)
		grantee, ok := reservation.ParseCTS(pkt)
		assert.True(t, ok)
		assert.Equal(t, packet.Addr(7), grantee)
	})

	t.Run("RTS is ignored while the ingress link is busy", func(t *testing.T) {
		r, h := newTestRelay(t, nil)
		data := marshal(t, &packet.Packet{Dst: 42, Src: 8, Kind: packet.KindData, Payload: []byte("x")})
		r.PhysicalReady(1, mustWired(t, data))
		h.Reset()

		r.PhysicalReady(2, wirelessFrame(t, false, marshal(t, reservation.NewRTS(7))))
		assert.Empty(t, h.Writes)
	})

	t.Run("unicast data carrying the RTS marker is forwarded", func(t *testing.T) {
		r, h := newTestRelay(t, nil)
		data := marshal(t, &packet.Packet{Dst: 42, Src: 7, Kind: packet.KindData, Payload: []byte("RTS")})
		r.PhysicalReady(2, wirelessFrame(t, false, data))
		assert.Equal(t, []int{1, 3, 5}, writtenLinks(h))
	})

	t.Run("CTS is never relayed", func(t *testing.T) {
		r, h := newTestRelay(t, nil)
		r.PhysicalReady(2, wirelessFrame(t, false, marshal(t, reservation.NewCTS(101, 7))))
		assert.Empty(t, h.Writes)
	})
}

func mustWired(t *testing.T, payload []byte) []byte {
	raw, err := frame.EncodeWired(frame.BroadcastNIC, station, payload)
	require.NoError(t, err)
	return raw
}

func TestRelayDrops(t *testing.T) {
	t.Run("frames from other access points", func(t *testing.T) {
		r, h := newTestRelay(t, nil)
		data := marshal(t, &packet.Packet{Dst: 42, Src: 7, Kind: packet.KindData, Payload: []byte("hello")})
		r.PhysicalReady(2, wirelessFrame(t, true, data))
		assert.Empty(t, h.Writes)
	})

	t.Run("oversize payloads", func(t *testing.T) {
		mem := &trace.Memory{}
		r, h := newTestRelay(t, mem)
		r.PhysicalReady(2, wirelessFrame(t, false, make([]byte, packet.MaxLen+1)))
		assert.Empty(t, h.Writes)
		drops := mem.Filter(100, trace.KindDrop)
		require.Len(t, drops, 1)
		assert.Equal(t, "oversize", drops[0].Reason)
	})

	t.Run("unsupported and unknown links", func(t *testing.T) {
		r, h := newTestRelay(t, nil)
		data := marshal(t, &packet.Packet{Dst: 42, Src: 7, Kind: packet.KindData, Payload: []byte("hello")})
		r.PhysicalReady(4, wirelessFrame(t, false, data))
		r.PhysicalReady(0, wirelessFrame(t, false, data))
		r.PhysicalReady(9, wirelessFrame(t, false, data))
		assert.Empty(t, h.Writes)
	})
}

func TestRelayClose(t *testing.T) {
	r, h := newTestRelay(t, nil)
	r.FrameCollision(1)
	data := marshal(t, &packet.Packet{Dst: 42, Src: 7, Kind: packet.KindData, Payload: []byte("hello")})
	r.PhysicalReady(2, wirelessFrame(t, false, data))
	require.NoError(t, r.Close())
	assert.Equal(t, 0, h.Pending())
	assert.False(t, r.Links().Get(1).Busy())
}
