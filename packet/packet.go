// SPDX-License-Identifier: GPL-3.0-or-later

// Package packet contains the network layer [*Packet] and its wire format.
//
// The wire format is, with all multi-byte fields in network byte order:
//
//	dest[4] | src[4] | checksum[4] | length[2] | kind[1] | seq[1] | payload
//
// The checksum is CRC-32 (IEEE) over the whole packet computed while the
// checksum field is zero. [Parse] always verifies the checksum before
// trusting any other field.
package packet

import (
	"encoding/binary"
	"errors"
	"fmt"
	"hash/crc32"
)

// Addr is the network address of a node.
type Addr uint32

// Broadcast is the network address naming every node.
const Broadcast = Addr(0xffffffff)

// String returns the string representation of the address.
func (a Addr) String() string {
	if a == Broadcast {
		return "*"
	}
	return fmt.Sprintf("%d", uint32(a))
}

// Kind is the message kind of a [*Packet].
type Kind uint8

const (
	// KindData is a DATA packet carrying application payload.
	KindData = Kind(0)

	// KindACK acknowledges a DATA packet.
	KindACK = Kind(1)

	// KindNACK asks the peer to retransmit a DATA packet.
	KindNACK = Kind(2)
)

// String returns the string representation of the kind.
func (k Kind) String() string {
	switch k {
	case KindData:
		return "DATA"

	case KindACK:
		return "ACK"

	case KindNACK:
		return "NACK"

	default:
		return "unknown"
	}
}

const (
	// HeaderLen is the size of the fixed packet header.
	HeaderLen = 16

	// MaxPayload is the maximum payload size.
	MaxPayload = 1024

	// MaxLen is the maximum size of an encoded packet.
	MaxLen = HeaderLen + MaxPayload

	// checksumOffset is where the checksum lives within the header.
	checksumOffset = 8
)

var (
	// ErrTooShort indicates the input is smaller than a header.
	ErrTooShort = errors.New("packet: too short")

	// ErrTooLarge indicates the input or payload exceeds the limits.
	ErrTooLarge = errors.New("packet: too large")

	// ErrChecksum indicates the checksum does not match the content.
	ErrChecksum = errors.New("packet: checksum mismatch")

	// ErrLength indicates the length field is inconsistent with the input.
	ErrLength = errors.New("packet: inconsistent length")

	// ErrKind indicates an unknown message kind.
	ErrKind = errors.New("packet: unknown kind")

	// ErrSeq indicates a sequence field other than zero or one.
	ErrSeq = errors.New("packet: invalid sequence bit")
)

// Packet is a network layer packet.
type Packet struct {
	// Dst is the destination address.
	Dst Addr

	// Src is the source address.
	Src Addr

	// Checksum is the packet checksum. [*Packet.Marshal] computes it
	// and [Parse] fills it after verification.
	Checksum uint32

	// Kind is the message kind.
	Kind Kind

	// Seq is the alternating sequence bit (zero or one).
	Seq uint8

	// Payload is the packet payload.
	Payload []byte
}

// Len returns the encoded size of the packet.
func (p *Packet) Len() int {
	return HeaderLen + len(p.Payload)
}

// Marshal encodes the packet, computes the checksum, stores it
// inside the Checksum field, and returns the encoded bytes.
func (p *Packet) Marshal() ([]byte, error) {
	if len(p.Payload) > MaxPayload {
		return nil, ErrTooLarge
	}
	raw := make([]byte, p.Len())
	binary.BigEndian.PutUint32(raw[0:4], uint32(p.Dst))
	binary.BigEndian.PutUint32(raw[4:8], uint32(p.Src))
	binary.BigEndian.PutUint16(raw[12:14], uint16(len(p.Payload)))
	raw[14] = byte(p.Kind)
	raw[15] = p.Seq & 1
	copy(raw[HeaderLen:], p.Payload)
	p.Checksum = Checksum(raw)
	binary.BigEndian.PutUint32(raw[checksumOffset:checksumOffset+4], p.Checksum)
	return raw, nil
}

// Checksum computes the checksum of an encoded packet treating
// the checksum field as zero. The input is not modified.
func Checksum(raw []byte) uint32 {
	if len(raw) < HeaderLen {
		return crc32.ChecksumIEEE(raw)
	}
	var zero [4]byte
	sum := crc32.Update(0, crc32.IEEETable, raw[:checksumOffset])
	sum = crc32.Update(sum, crc32.IEEETable, zero[:])
	return crc32.Update(sum, crc32.IEEETable, raw[checksumOffset+4:])
}

// Verify returns whether the stored checksum matches the content.
func Verify(raw []byte) bool {
	if len(raw) < HeaderLen {
		return false
	}
	return binary.BigEndian.Uint32(raw[checksumOffset:checksumOffset+4]) == Checksum(raw)
}

// Parse verifies and decodes an encoded packet. Trailing bytes
// beyond the length field are ignored, since link layers may pad.
func Parse(raw []byte) (*Packet, error) {
	if len(raw) < HeaderLen {
		return nil, ErrTooShort
	}
	length := int(binary.BigEndian.Uint16(raw[12:14]))
	if length > MaxPayload {
		return nil, ErrTooLarge
	}
	if HeaderLen+length > len(raw) {
		return nil, ErrLength
	}
	raw = raw[:HeaderLen+length]
	if !Verify(raw) {
		return nil, ErrChecksum
	}
	pkt := &Packet{
		Dst:      Addr(binary.BigEndian.Uint32(raw[0:4])),
		Src:      Addr(binary.BigEndian.Uint32(raw[4:8])),
		Checksum: binary.BigEndian.Uint32(raw[checksumOffset : checksumOffset+4]),
		Kind:     Kind(raw[14]),
		Seq:      raw[15],
		Payload:  append([]byte{}, raw[HeaderLen:]...),
	}
	if pkt.Kind > KindNACK {
		return nil, ErrKind
	}
	if pkt.Seq > 1 {
		return nil, ErrSeq
	}
	return pkt, nil
}

// PeekHeader decodes the header fields WITHOUT verifying the checksum.
//
// Use this function only where corrupted content is acceptable, for
// example to address a NACK to the claimed source of a damaged packet.
func PeekHeader(raw []byte) (src, dst Addr, seq uint8, ok bool) {
	if len(raw) < HeaderLen {
		return 0, 0, 0, false
	}
	dst = Addr(binary.BigEndian.Uint32(raw[0:4]))
	src = Addr(binary.BigEndian.Uint32(raw[4:8]))
	seq = raw[15] & 1
	return src, dst, seq, true
}

// String returns the string representation of the packet.
func (p *Packet) String() string {
	return fmt.Sprintf(
		"%s -> %s %s seq=%d length=%d checksum=%08x",
		p.Src,
		p.Dst,
		p.Kind,
		p.Seq,
		len(p.Payload),
		p.Checksum,
	)
}
