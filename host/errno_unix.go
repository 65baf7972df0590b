//go:build unix

//
// SPDX-License-Identifier: GPL-3.0-or-later
//
// UNIX errno definitions.
//

package host

import "golang.org/x/sys/unix"

const (
	// EMSGSIZE is the message too long error.
	EMSGSIZE = unix.EMSGSIZE

	// ENETDOWN is the network is down error.
	ENETDOWN = unix.ENETDOWN

	// EPROTONOSUPPORT is the protocol not supported error.
	EPROTONOSUPPORT = unix.EPROTONOSUPPORT
)
