//go:build windows

//
// SPDX-License-Identifier: GPL-3.0-or-later
//
// Windows errno definitions.
//

package host

import "golang.org/x/sys/windows"

const (
	// EMSGSIZE is the message too long error.
	EMSGSIZE = windows.WSAEMSGSIZE

	// ENETDOWN is the network is down error.
	ENETDOWN = windows.WSAENETDOWN

	// EPROTONOSUPPORT is the protocol not supported error.
	EPROTONOSUPPORT = windows.WSAEPROTONOSUPPORT
)
