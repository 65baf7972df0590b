// SPDX-License-Identifier: GPL-3.0-or-later

package trace

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestMemory(t *testing.T) {
	var mem Memory
	mem.Record(Event{Node: 1, Kind: KindTx, Size: 64})
	mem.Record(Event{Node: 2, Kind: KindTx, Size: 64})
	mem.Record(Event{Node: 1, Kind: KindDrop, Reason: "queueFull"})

	assert.Equal(t, 2, mem.Count(KindTx))
	assert.Equal(t, 0, mem.Count(KindDeliver))
	assert.Len(t, mem.Filter(1, KindTx), 1)
	assert.Len(t, mem.Filter(1, KindDrop), 1)
	assert.Empty(t, mem.Filter(3, KindTx))
}

func TestTee(t *testing.T) {
	var a, b Memory
	r := Tee(&a, Discard, &b)
	r.Record(Event{Kind: KindCollision})
	assert.Len(t, a.Events, 1)
	assert.Len(t, b.Events, 1)
}

func TestOrDiscard(t *testing.T) {
	assert.Equal(t, Discard, OrDiscard(nil))
	mem := &Memory{}
	assert.Equal(t, Recorder(mem), OrDiscard(mem))
}

func TestMemoryNil(t *testing.T) {
	var mem *Memory
	r := OrDiscard(mem)
	assert.NotPanics(t, func() {
		r.Record(Event{Kind: KindTx})
	})
	assert.Equal(t, 0, mem.Count(KindTx))
	assert.Empty(t, mem.Filter(1, KindTx))
}
