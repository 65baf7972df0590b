// SPDX-License-Identifier: GPL-3.0-or-later

package arq

// DefaultDupCacheSize is the default [*DupCache] capacity.
const DefaultDupCacheSize = 1024

// DupCache remembers the checksums of recently delivered packets.
//
// The cache is a fixed size ring: once full, adding a checksum evicts
// the oldest one, which can then be delivered again.
type DupCache struct {
	count int
	next  int
	slots []uint32
}

// NewDupCache creates a new [*DupCache] with the given capacity. A
// capacity lower than one selects [DefaultDupCacheSize].
func NewDupCache(capacity int) *DupCache {
	if capacity < 1 {
		capacity = DefaultDupCacheSize
	}
	return &DupCache{slots: make([]uint32, capacity)}
}

// Contains returns whether the checksum is in the cache.
func (dc *DupCache) Contains(checksum uint32) bool {
	for idx := 0; idx < dc.count; idx++ {
		if dc.slots[idx] == checksum {
			return true
		}
	}
	return false
}

// Add adds the checksum, evicting the oldest one when full.
func (dc *DupCache) Add(checksum uint32) {
	dc.slots[dc.next] = checksum
	dc.next = (dc.next + 1) % len(dc.slots)
	dc.count = min(dc.count+1, len(dc.slots))
}

// Len returns the number of checksums in the cache.
func (dc *DupCache) Len() int {
	return dc.count
}

// Cap returns the cache capacity.
func (dc *DupCache) Cap() int {
	return len(dc.slots)
}
