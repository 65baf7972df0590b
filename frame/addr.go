// SPDX-License-Identifier: GPL-3.0-or-later

package frame

import (
	"fmt"
	"net"
)

// NICAddr is the 48-bit hardware address of a network interface.
type NICAddr [6]byte

// BroadcastNIC is the hardware broadcast address.
var BroadcastNIC = NICAddr{0xff, 0xff, 0xff, 0xff, 0xff, 0xff}

// ParseNICAddr parses a colon separated hardware address.
func ParseNICAddr(s string) (NICAddr, error) {
	hw, err := net.ParseMAC(s)
	if err != nil {
		return NICAddr{}, err
	}
	if len(hw) != len(NICAddr{}) {
		return NICAddr{}, fmt.Errorf("frame: not a 48-bit address: %s", s)
	}
	var addr NICAddr
	copy(addr[:], hw)
	return addr, nil
}

// IsBroadcast returns whether this is the broadcast address.
func (a NICAddr) IsBroadcast() bool {
	return a == BroadcastNIC
}

// HardwareAddr returns a copy of the address as a [net.HardwareAddr].
func (a NICAddr) HardwareAddr() net.HardwareAddr {
	return append(net.HardwareAddr{}, a[:]...)
}

// String returns the string representation of the address.
func (a NICAddr) String() string {
	return net.HardwareAddr(a[:]).String()
}
