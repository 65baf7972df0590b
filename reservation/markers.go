// SPDX-License-Identifier: GPL-3.0-or-later

package reservation

import (
	"bytes"
	"encoding/binary"

	"github.com/rbmk-project/wlansim/packet"
)

var (
	// rtsMarker is the payload of an RTS packet.
	rtsMarker = []byte("RTS")

	// ctsMarker prefixes the payload of a CTS packet.
	ctsMarker = []byte("CTS")
)

// ctsLen is the payload length of a CTS packet.
const ctsLen = 3 + 4

// NewRTS returns the RTS packet a station broadcasts.
func NewRTS(src packet.Addr) *packet.Packet {
	return &packet.Packet{
		Dst:     packet.Broadcast,
		Src:     src,
		Kind:    packet.KindData,
		Payload: append([]byte{}, rtsMarker...),
	}
}

// IsRTS returns whether pkt is an RTS packet. RTS packets are
// always broadcast.
func IsRTS(pkt *packet.Packet) bool {
	return pkt.Kind == packet.KindData && pkt.Dst == packet.Broadcast &&
		bytes.Equal(pkt.Payload, rtsMarker)
}

// NewCTS returns the CTS packet an access point sends to grant
// the channel to grantee.
func NewCTS(src, grantee packet.Addr) *packet.Packet {
	payload := make([]byte, ctsLen)
	copy(payload, ctsMarker)
	binary.BigEndian.PutUint32(payload[len(ctsMarker):], uint32(grantee))
	return &packet.Packet{
		Dst:     grantee,
		Src:     src,
		Kind:    packet.KindData,
		Payload: payload,
	}
}

// ParseCTS returns the grantee of a CTS packet. The boolean is
// false when pkt is not a CTS packet.
func ParseCTS(pkt *packet.Packet) (packet.Addr, bool) {
	if pkt.Kind != packet.KindData || len(pkt.Payload) != ctsLen {
		return 0, false
	}
	if !bytes.HasPrefix(pkt.Payload, ctsMarker) {
		return 0, false
	}
	grantee := packet.Addr(binary.BigEndian.Uint32(pkt.Payload[len(ctsMarker):]))
	return grantee, grantee == pkt.Dst
}

// IsMarkerPayload returns whether payload could be mistaken for the
// payload of an RTS or a CTS packet.
func IsMarkerPayload(payload []byte) bool {
	if bytes.Equal(payload, rtsMarker) {
		return true
	}
	return len(payload) == ctsLen && bytes.HasPrefix(payload, ctsMarker)
}

// IsReservation returns whether pkt is an RTS or a CTS packet.
func IsReservation(pkt *packet.Packet) bool {
	if IsRTS(pkt) {
		return true
	}
	_, ok := ParseCTS(pkt)
	return ok
}
