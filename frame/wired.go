// SPDX-License-Identifier: GPL-3.0-or-later

package frame

import (
	"fmt"

	"github.com/google/gopacket"
	"github.com/google/gopacket/layers"
)

const (
	// WiredHeaderLen is the size of the wired frame header.
	WiredHeaderLen = 14

	// WiredMaxPayload is the maximum wired payload size.
	WiredMaxPayload = 1500

	// WiredMinFrame is the minimum size of a wired frame on the wire.
	WiredMinFrame = 64

	// WiredMaxFrame is the maximum size of a wired frame on the wire.
	WiredMaxFrame = WiredHeaderLen + WiredMaxPayload
)

// Wired is a decoded wired frame.
type Wired struct {
	// Dst is the destination hardware address.
	Dst NICAddr

	// Src is the source hardware address.
	Src NICAddr

	// Payload is the frame payload without padding.
	Payload []byte
}

// EncodeWired encodes a wired frame carrying the given payload and
// pads the result up to [WiredMinFrame] bytes.
func EncodeWired(dst, src NICAddr, payload []byte) ([]byte, error) {
	if len(payload) <= 0 {
		return nil, ErrEmptyPayload
	}
	if len(payload) > WiredMaxPayload {
		return nil, ErrPayloadTooLarge
	}
	eth := &layers.Ethernet{
		DstMAC:       dst.HardwareAddr(),
		SrcMAC:       src.HardwareAddr(),
		EthernetType: layers.EthernetTypeLLC,
	}
	buf := gopacket.NewSerializeBuffer()
	opts := gopacket.SerializeOptions{FixLengths: true}
	if err := gopacket.SerializeLayers(buf, opts, eth, gopacket.Payload(payload)); err != nil {
		return nil, fmt.Errorf("frame: cannot serialize wired frame: %w", err)
	}
	raw := append([]byte{}, buf.Bytes()...)
	if len(raw) < WiredMinFrame {
		raw = append(raw, make([]byte, WiredMinFrame-len(raw))...)
	}
	return raw, nil
}

// DecodeWired decodes a wired frame and strips the padding.
func DecodeWired(raw []byte) (*Wired, error) {
	if len(raw) > WiredMaxFrame {
		return nil, ErrFrameTooLarge
	}
	if len(raw) < WiredHeaderLen {
		return nil, ErrFrameTooShort
	}
	var eth layers.Ethernet
	if err := eth.DecodeFromBytes(raw, gopacket.NilDecodeFeedback); err != nil {
		return nil, fmt.Errorf("%w: %s", ErrLength, err.Error())
	}

	// A type value above the length range means this is not one
	// of our frames, and a length larger than the remaining bytes
	// means the frame has been truncated in transit.
	if eth.EthernetType != layers.EthernetTypeLLC || eth.Length <= 0 {
		return nil, ErrLength
	}
	if int(eth.Length) != len(eth.Payload) {
		return nil, ErrLength
	}

	frame := &Wired{Payload: append([]byte{}, eth.Payload...)}
	copy(frame.Dst[:], eth.DstMAC)
	copy(frame.Src[:], eth.SrcMAC)
	return frame, nil
}
