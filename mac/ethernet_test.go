// SPDX-License-Identifier: GPL-3.0-or-later

package mac

import (
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rbmk-project/wlansim/frame"
	"github.com/rbmk-project/wlansim/host"
	"github.com/rbmk-project/wlansim/host/hosttest"
	"github.com/rbmk-project/wlansim/trace"
)

var (
	nicSelf  = frame.NICAddr{0x02, 0, 0, 0, 0, 0x01}
	nicOther = frame.NICAddr{0x02, 0, 0, 0, 0, 0x02}
	nicThird = frame.NICAddr{0x02, 0, 0, 0, 0, 0x03}
)

func wiredLink() host.LinkInfo {
	return host.LinkInfo{
		Type:             host.LinkWired,
		NICAddr:          nicSelf,
		Bandwidth:        10_000_000,
		PropagationDelay: 5 * time.Microsecond,
	}
}

// received collects the payloads passed up by an engine.
type received struct {
	links    []int
	payloads [][]byte
}

func (r *received) FromLink(link int, payload []byte) {
	r.links = append(r.links, link)
	r.payloads = append(r.payloads, payload)
}

func newTestEthernet(t *testing.T, cfg *Config) (*Ethernet, *hosttest.Host, *received) {
	h := hosttest.New(1, wiredLink())
	recv := &received{}
	eth, err := NewEthernet(h, 1, recv, cfg)
	require.NoError(t, err)
	return eth, h, recv
}

func TestEthernetWriteIdleLine(t *testing.T) {
	eth, h, _ := newTestEthernet(t, nil)

	require.NoError(t, eth.Write(nicOther, []byte("hello")))
	require.Len(t, h.Writes, 1)
	assert.Equal(t, 1, h.Writes[0].Link)
	assert.Len(t, h.Writes[0].Frame, frame.WiredMinFrame)
	assert.Equal(t, StateTransmitting, eth.State())
	assert.True(t, eth.Busy())

	wired, err := frame.DecodeWired(h.Writes[0].Frame)
	require.NoError(t, err)
	assert.Equal(t, nicOther, wired.Dst)
	assert.Equal(t, nicSelf, wired.Src)
	assert.Equal(t, []byte("hello"), wired.Payload)

	h.Advance(time.Millisecond)
	assert.False(t, eth.Busy())
	assert.Equal(t, StateIdle, eth.State())
}

func TestEthernetBusyLineRetryAfterGap(t *testing.T) {
	eth, h, _ := newTestEthernet(t, nil)
	h.Carrier[1] = true

	require.NoError(t, eth.Write(nicOther, []byte("hello")))
	assert.Empty(t, h.Writes)
	assert.Equal(t, StateDeferred, eth.State())

	// still busy after the first gap
	h.Advance(InterframeGap)
	assert.Empty(t, h.Writes)

	h.Carrier[1] = false
	h.Advance(InterframeGap)
	require.Len(t, h.Writes, 1)
	assert.Equal(t, 2*InterframeGap, h.Writes[0].At)
	assert.Equal(t, 0, eth.Collisions())
}

func TestEthernetCollisionsDropAndReset(t *testing.T) {
	mem := &trace.Memory{}
	eth, h, _ := newTestEthernet(t, &Config{Recorder: mem})

	require.NoError(t, eth.Write(nicOther, []byte("hello")))
	require.Len(t, h.Writes, 1)

	for idx := 1; idx <= MaxCollisions; idx++ {
		eth.Collision()
		assert.Equal(t, idx, eth.Collisions())
		assert.Equal(t, StateBackoff, eth.State())
		require.True(t, h.FireNext())
		require.Len(t, h.Writes, idx+1, "collision %d", idx)
	}

	// the seventeenth collision drops the frame and resets the counter
	eth.Collision()
	assert.Equal(t, 0, eth.Collisions())
	assert.False(t, eth.Busy())
	assert.Equal(t, StateIdle, eth.State())
	assert.Equal(t, 0, h.Pending())
	assert.Equal(t, MaxCollisions+1, mem.Count(trace.KindCollision))
	drops := mem.Filter(1, trace.KindDrop)
	require.Len(t, drops, 1)
	assert.Equal(t, "tooManyCollisions", drops[0].Reason)
	assert.Len(t, h.Writes, MaxCollisions+1)
}

func TestEthernetBackoffIsBounded(t *testing.T) {
	eth, h, _ := newTestEthernet(t, nil)
	require.NoError(t, eth.Write(nicOther, []byte("hello")))

	for idx := 1; idx <= MaxCollisions; idx++ {
		before := h.Now()
		eth.Collision()
		require.True(t, h.FireNext())
		waited := h.Now() - before
		limit := WiredSlot * time.Duration(1<<min(idx, 10))
		assert.Less(t, waited, limit, "collision %d", idx)
		assert.Zero(t, waited%WiredSlot)
	}
}

func TestEthernetCollisionIgnoredWhenNotTransmitting(t *testing.T) {
	eth, h, _ := newTestEthernet(t, nil)
	eth.Collision()
	assert.Equal(t, 0, eth.Collisions())

	h.Carrier[1] = true
	require.NoError(t, eth.Write(nicOther, []byte("hello")))
	eth.Collision()
	assert.Equal(t, 0, eth.Collisions())
	assert.Equal(t, StateDeferred, eth.State())
}

func TestEthernetFreshFrameResetsCollisions(t *testing.T) {
	eth, h, _ := newTestEthernet(t, nil)

	require.NoError(t, eth.Write(nicOther, []byte("first")))
	require.NoError(t, eth.Write(nicOther, []byte("second")))
	assert.Equal(t, 1, eth.Queued())

	eth.Collision()
	require.True(t, h.FireNext())
	eth.Collision()
	assert.Equal(t, 2, eth.Collisions())

	// the retransmission succeeds and the backlog frame starts fresh
	require.True(t, h.FireNext())
	h.Advance(time.Millisecond)
	assert.Equal(t, 0, eth.Collisions())
	assert.Equal(t, 0, eth.Queued())
	require.Len(t, h.Writes, 4)
	wired, err := frame.DecodeWired(h.Writes[3].Frame)
	require.NoError(t, err)
	assert.Equal(t, []byte("second"), wired.Payload)
}

func TestEthernetQueueFull(t *testing.T) {
	mem := &trace.Memory{}
	eth, _, _ := newTestEthernet(t, &Config{QueueLen: 1, Recorder: mem})

	require.NoError(t, eth.Write(nicOther, []byte("first")))
	require.NoError(t, eth.Write(nicOther, []byte("second")))
	err := eth.Write(nicOther, []byte("third"))
	assert.ErrorIs(t, err, ErrQueueFull)
	assert.Equal(t, 1, mem.Count(trace.KindDrop))
}

func TestEthernetWriteErrors(t *testing.T) {
	t.Run("oversize payload", func(t *testing.T) {
		eth, h, _ := newTestEthernet(t, nil)
		err := eth.Write(nicOther, make([]byte, frame.WiredMaxPayload+1))
		assert.ErrorIs(t, err, host.EMSGSIZE)
		assert.ErrorIs(t, err, frame.ErrPayloadTooLarge)
		assert.Empty(t, h.Writes)
	})

	t.Run("physical write failure drops the frame", func(t *testing.T) {
		eth, h, _ := newTestEthernet(t, nil)
		h.WriteErr = errors.New("mocked error")
		require.NoError(t, eth.Write(nicOther, []byte("hello")))
		assert.False(t, eth.Busy())
	})

	t.Run("closed link", func(t *testing.T) {
		eth, h, _ := newTestEthernet(t, nil)
		h.Carrier[1] = true
		require.NoError(t, eth.Write(nicOther, []byte("hello")))
		require.NoError(t, eth.Close())
		assert.Equal(t, 0, h.Pending())
		assert.ErrorIs(t, eth.Write(nicOther, []byte("hello")), host.ENETDOWN)
	})
}

func TestEthernetRead(t *testing.T) {
	eth, _, recv := newTestEthernet(t, nil)

	for _, dst := range []frame.NICAddr{nicSelf, frame.BroadcastNIC, nicThird} {
		raw, err := frame.EncodeWired(dst, nicOther, []byte("payload"))
		require.NoError(t, err)
		eth.Read(raw)
	}

	// malformed frames are silently dropped
	eth.Read([]byte{0x01, 0x02})
	eth.Read(make([]byte, frame.WiredMaxFrame+1))

	require.Len(t, recv.payloads, 2)
	assert.Equal(t, []int{1, 1}, recv.links)
	assert.Equal(t, []byte("payload"), recv.payloads[0])
}

func TestNewEthernetWrongLink(t *testing.T) {
	h := hosttest.New(1, host.LinkInfo{Type: host.LinkWireless})

	_, err := NewEthernet(h, 1, nil, nil)
	assert.ErrorIs(t, err, host.EPROTONOSUPPORT)

	_, err = NewEthernet(h, 0, nil, nil)
	assert.Error(t, err)

	_, err = NewEthernet(h, 7, nil, nil)
	assert.Error(t, err)
}
