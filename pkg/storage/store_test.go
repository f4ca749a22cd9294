package storage

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/cuemby/murmesh/pkg/types"
)

func newTestStore(t *testing.T) *BoltStore {
	t.Helper()
	store, err := NewBoltStore(t.TempDir(), types.ReplicaID(0))
	require.NoError(t, err)
	t.Cleanup(func() { _ = store.Close() })
	return store
}

func TestSaveAndGetCommittedEntry(t *testing.T) {
	store := newTestStore(t)

	entry := CommittedEntry{
		OpNum:    3,
		Requests: []types.Request{{ClientID: 1, RequestNum: 1, Op: []byte("op")}},
		Replies:  []types.Reply{{RequestNum: 1, Result: []byte("result")}},
	}
	require.NoError(t, store.SaveCommittedEntry(entry))

	got, ok, err := store.GetCommittedEntry(3)
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, entry, got)
}

func TestGetCommittedEntryMissing(t *testing.T) {
	store := newTestStore(t)

	_, ok, err := store.GetCommittedEntry(42)
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestLastCommittedOpNumTracksHighestKey(t *testing.T) {
	store := newTestStore(t)

	_, ok, err := store.LastCommittedOpNum()
	require.NoError(t, err)
	assert.False(t, ok, "an empty log has no last op num")

	require.NoError(t, store.SaveCommittedEntry(CommittedEntry{OpNum: 5}))
	require.NoError(t, store.SaveCommittedEntry(CommittedEntry{OpNum: 2}))
	require.NoError(t, store.SaveCommittedEntry(CommittedEntry{OpNum: 9}))

	last, ok, err := store.LastCommittedOpNum()
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, uint32(9), last)
}

func TestSaveAndGetClientRecord(t *testing.T) {
	store := newTestStore(t)

	reply := types.Reply{RequestNum: 7, Result: []byte("ok")}
	record := ClientRecord{ClientID: 42, LastRequestNum: 7, CachedReply: &reply}
	require.NoError(t, store.SaveClientRecord(record))

	got, ok, err := store.GetClientRecord(42)
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, record, got)
}

func TestGetClientRecordMissing(t *testing.T) {
	store := newTestStore(t)

	_, ok, err := store.GetClientRecord(999)
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestSaveClientRecordUpserts(t *testing.T) {
	store := newTestStore(t)

	require.NoError(t, store.SaveClientRecord(ClientRecord{ClientID: 1, LastRequestNum: 1}))
	require.NoError(t, store.SaveClientRecord(ClientRecord{ClientID: 1, LastRequestNum: 2}))

	got, ok, err := store.GetClientRecord(1)
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, uint64(2), got.LastRequestNum)
}
