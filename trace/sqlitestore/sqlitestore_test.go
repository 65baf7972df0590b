// SPDX-License-Identifier: GPL-3.0-or-later

package sqlitestore

import (
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rbmk-project/wlansim/trace"
)

func TestStore(t *testing.T) {
	path := filepath.Join(t.TempDir(), "trace.db")
	store, err := Open(path, nil)
	require.NoError(t, err)

	store.Record(trace.Event{At: time.Microsecond, Node: 1, Kind: trace.KindTx, Link: 1, Size: 64})
	store.Record(trace.Event{At: 2 * time.Microsecond, Node: 1, Kind: trace.KindCollision, Link: 1, Size: 64})
	store.Record(trace.Event{At: 3 * time.Microsecond, Node: 1, Kind: trace.KindTx, Link: 1, Size: 64})
	store.Record(trace.Event{At: 4 * time.Microsecond, Node: 2, Kind: trace.KindDeliver, Src: 1, Dst: 2, Seq: 1, Size: 5})
	store.Record(trace.Event{At: 5 * time.Microsecond, Node: 2, Kind: trace.KindDrop, Reason: "interference"})

	counts, err := store.Counts()
	require.NoError(t, err)
	assert.Equal(t, map[trace.Kind]int64{
		trace.KindTx:        2,
		trace.KindCollision: 1,
		trace.KindDeliver:   1,
		trace.KindDrop:      1,
	}, counts)

	delivered, err := store.Events(2, trace.KindDeliver)
	require.NoError(t, err)
	require.Len(t, delivered, 1)
	assert.Equal(t, trace.Event{
		At: 4 * time.Microsecond, Node: 2, Kind: trace.KindDeliver, Src: 1, Dst: 2, Seq: 1, Size: 5,
	}, delivered[0])

	txs, err := store.Events(1, trace.KindTx)
	require.NoError(t, err)
	require.Len(t, txs, 2)
	assert.Less(t, txs[0].At, txs[1].At)
	require.NoError(t, store.Close())

	// reopening keeps the stored events
	store, err = Open(path, nil)
	require.NoError(t, err)
	defer store.Close()
	counts, err = store.Counts()
	require.NoError(t, err)
	assert.Equal(t, int64(2), counts[trace.KindTx])
}

func TestStoreBatches(t *testing.T) {
	store, err := Open(filepath.Join(t.TempDir(), "trace.db"), nil)
	require.NoError(t, err)
	defer store.Close()

	for idx := 0; idx < BatchSize+10; idx++ {
		store.Record(trace.Event{At: time.Duration(idx), Node: 1, Kind: trace.KindTx})
	}
	assert.Len(t, store.pending, 10)
	require.NoError(t, store.Err())

	counts, err := store.Counts()
	require.NoError(t, err)
	assert.Equal(t, int64(BatchSize+10), counts[trace.KindTx])
	assert.Empty(t, store.pending)
}
