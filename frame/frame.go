// SPDX-License-Identifier: GPL-3.0-or-later

/*
Package frame contains the wired and wireless link layer frame codecs.

# Wired frames

Wired frames use IEEE 802.3 length framing:

	dest[6] | src[6] | length[2] | payload | padding

Encoded frames are padded up to [WiredMinFrame] bytes. The padding is
never interpreted: decoding truncates the payload to the length field.

# Wireless frames

Wireless frames use the following layout, in network byte order:

	control[1] | length[2] | dest[6] | src[6] | checksum[4] | payload

Bit zero of the control byte is the from-distribution-system flag,
which access points set on every frame they transmit. The checksum is
CRC-32 (IEEE) over the complete frame with the checksum field zeroed
and [DecodeWireless] rejects frames whose checksum does not match.

# Errors

Decoding errors are sentinel values. The MAC layer treats all of them
as a reason to silently drop the frame.
*/
package frame

import "errors"

var (
	// ErrFrameTooLarge indicates the input exceeds the maximum frame size.
	ErrFrameTooLarge = errors.New("frame: too large")

	// ErrFrameTooShort indicates the input is smaller than a header.
	ErrFrameTooShort = errors.New("frame: too short")

	// ErrPayloadTooLarge indicates the payload exceeds the link maximum.
	ErrPayloadTooLarge = errors.New("frame: payload too large")

	// ErrEmptyPayload indicates an attempt to send an empty payload.
	ErrEmptyPayload = errors.New("frame: empty payload")

	// ErrLength indicates a length field inconsistent with the input.
	ErrLength = errors.New("frame: inconsistent length")

	// ErrChecksum indicates a wireless frame checksum mismatch.
	ErrChecksum = errors.New("frame: checksum mismatch")
)
