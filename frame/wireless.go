// SPDX-License-Identifier: GPL-3.0-or-later

package frame

import (
	"encoding/binary"
	"hash/crc32"
)

const (
	// WirelessHeaderLen is the size of the wireless frame header.
	WirelessHeaderLen = 19

	// WirelessMaxPayload is the maximum wireless payload size.
	WirelessMaxPayload = 2312

	// WirelessMaxFrame is the maximum size of a wireless frame.
	WirelessMaxFrame = WirelessHeaderLen + WirelessMaxPayload
)

const (
	// controlFromDS is the from-distribution-system control bit.
	controlFromDS = 1 << 0

	// wirelessChecksumOffset is where the checksum lives.
	wirelessChecksumOffset = 15
)

// Wireless is a decoded wireless frame.
type Wireless struct {
	// FromDS is true when an access point transmitted the frame.
	FromDS bool

	// Dst is the destination hardware address.
	Dst NICAddr

	// Src is the source hardware address.
	Src NICAddr

	// Checksum is the verified frame checksum.
	Checksum uint32

	// Payload is the frame payload.
	Payload []byte
}

// EncodeWireless encodes a wireless frame and computes its checksum.
func EncodeWireless(fromDS bool, dst, src NICAddr, payload []byte) ([]byte, error) {
	if len(payload) <= 0 {
		return nil, ErrEmptyPayload
	}
	if len(payload) > WirelessMaxPayload {
		return nil, ErrPayloadTooLarge
	}
	raw := make([]byte, WirelessHeaderLen+len(payload))
	if fromDS {
		raw[0] |= controlFromDS
	}
	binary.BigEndian.PutUint16(raw[1:3], uint16(len(payload)))
	copy(raw[3:9], dst[:])
	copy(raw[9:15], src[:])
	copy(raw[WirelessHeaderLen:], payload)
	binary.BigEndian.PutUint32(raw[wirelessChecksumOffset:], wirelessChecksum(raw))
	return raw, nil
}

// DecodeWireless verifies and decodes a wireless frame.
func DecodeWireless(raw []byte) (*Wireless, error) {
	if len(raw) > WirelessMaxFrame {
		return nil, ErrFrameTooLarge
	}
	if len(raw) < WirelessHeaderLen {
		return nil, ErrFrameTooShort
	}
	length := int(binary.BigEndian.Uint16(raw[1:3]))
	if length <= 0 || WirelessHeaderLen+length != len(raw) {
		return nil, ErrLength
	}
	checksum := binary.BigEndian.Uint32(raw[wirelessChecksumOffset:])
	if checksum != wirelessChecksum(raw) {
		return nil, ErrChecksum
	}
	frame := &Wireless{
		FromDS:   raw[0]&controlFromDS != 0,
		Checksum: checksum,
		Payload:  append([]byte{}, raw[WirelessHeaderLen:]...),
	}
	copy(frame.Dst[:], raw[3:9])
	copy(frame.Src[:], raw[9:15])
	return frame, nil
}

// wirelessChecksum computes the checksum of a wireless frame
// treating the checksum field as zero.
func wirelessChecksum(raw []byte) uint32 {
	var zero [4]byte
	sum := crc32.Update(0, crc32.IEEETable, raw[:wirelessChecksumOffset])
	sum = crc32.Update(sum, crc32.IEEETable, zero[:])
	return crc32.Update(sum, crc32.IEEETable, raw[wirelessChecksumOffset+4:])
}
