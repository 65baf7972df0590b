// SPDX-License-Identifier: GPL-3.0-or-later

package mac

import (
	"github.com/rbmk-project/wlansim/frame"
	"github.com/rbmk-project/wlansim/host"
)

// Link is the MAC for a single link: an [*Ethernet] for wired
// links, a [*WiFi] for wireless links, or nothing for links
// the protocol does not drive.
type Link struct {
	eth   *Ethernet
	index int
	kind  host.LinkType
	wifi  *WiFi
}

// NewLink creates the MAC matching the type of the given link. The
// isDS flag applies to wireless links only.
func NewLink(h host.Host, index int, recv Receiver, isDS bool, cfg *Config) (*Link, error) {
	links := h.Links()
	l := NewUnsupportedLink(index)
	if index <= 0 || index >= len(links) {
		return l, nil
	}
	switch links[index].Type {
	case host.LinkWired:
		eth, err := NewEthernet(h, index, recv, cfg)
		if err != nil {
			return nil, err
		}
		l.eth, l.kind = eth, host.LinkWired
	case host.LinkWireless:
		wifi, err := NewWiFi(h, index, recv, isDS, cfg)
		if err != nil {
			return nil, err
		}
		l.wifi, l.kind = wifi, host.LinkWireless
	}
	return l, nil
}

// NewUnsupportedLink returns a [*Link] that drives nothing. Writes
// fail and frames read from it are dropped.
func NewUnsupportedLink(index int) *Link {
	return &Link{index: index, kind: host.LinkUnsupported}
}

// Index returns the link number.
func (l *Link) Index() int {
	return l.index
}

// Type returns the link type.
func (l *Link) Type() host.LinkType {
	return l.kind
}

// Ethernet returns the wired engine or nil.
func (l *Link) Ethernet() *Ethernet {
	return l.eth
}

// WiFi returns the wireless engine or nil.
func (l *Link) WiFi() *WiFi {
	return l.wifi
}

// Write transmits payload to dst. Unsupported links fail
// with [host.EPROTONOSUPPORT].
func (l *Link) Write(dst frame.NICAddr, payload []byte) error {
	switch l.kind {
	case host.LinkWired:
		return l.eth.Write(dst, payload)
	case host.LinkWireless:
		return l.wifi.Write(dst, payload)
	default:
		return host.EPROTONOSUPPORT
	}
}

// Read handles a frame arriving on the link. Frames arriving
// on unsupported links are dropped.
func (l *Link) Read(raw []byte) {
	switch l.kind {
	case host.LinkWired:
		l.eth.Read(raw)
	case host.LinkWireless:
		l.wifi.Read(raw)
	}
}

// Collision forwards a collision to the wired engine.
func (l *Link) Collision() {
	if l.kind == host.LinkWired {
		l.eth.Collision()
	}
}

// Busy returns whether a frame is pending on the link.
func (l *Link) Busy() bool {
	switch l.kind {
	case host.LinkWired:
		return l.eth.Busy()
	case host.LinkWireless:
		return l.wifi.Busy()
	default:
		return false
	}
}

// Close tears down the link engine.
func (l *Link) Close() error {
	switch l.kind {
	case host.LinkWired:
		return l.eth.Close()
	case host.LinkWireless:
		return l.wifi.Close()
	default:
		return nil
	}
}

// Table contains a [*Link] for every link of a host, indexed by
// link number, and implements [host.Handler].
type Table []*Link

var _ host.Handler = Table{}

// NewTable creates a [*Link] for every link of the given host.
func NewTable(h host.Host, recv Receiver, isDS bool, cfg *Config) (Table, error) {
	links := h.Links()
	table := make(Table, len(links))
	for index := range links {
		l, err := NewLink(h, index, recv, isDS, cfg)
		if err != nil {
			table.Close()
			return nil, err
		}
		table[index] = l
	}
	return table, nil
}

// Get returns the given link or nil.
func (t Table) Get(index int) *Link {
	if index < 0 || index >= len(t) {
		return nil
	}
	return t[index]
}

// OfType returns the links with the given type in index order.
func (t Table) OfType(kind host.LinkType) []*Link {
	var out []*Link
	for _, l := range t {
		if l != nil && l.kind == kind {
			out = append(out, l)
		}
	}
	return out
}

// PhysicalReady implements [host.Handler].
func (t Table) PhysicalReady(link int, raw []byte) {
	if l := t.Get(link); l != nil {
		l.Read(raw)
	}
}

// FrameCollision implements [host.Handler].
func (t Table) FrameCollision(link int) {
	if l := t.Get(link); l != nil {
		l.Collision()
	}
}

// Close closes every link.
func (t Table) Close() error {
	for _, l := range t {
		if l != nil {
			l.Close()
		}
	}
	return nil
}
