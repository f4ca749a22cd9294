package app

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func mustOp(t *testing.T, o Op) []byte {
	t.Helper()
	b, err := EncodeOp(o)
	require.NoError(t, err)
	return b
}

func TestKVStoreInsertThenRead(t *testing.T) {
	store := NewKVStore()

	_, err := store.Execute(mustOp(t, Op{Kind: OpInsert, Key: "user1", Fields: map[string][]byte{"name": []byte("ada")}}))
	require.NoError(t, err)

	raw, err := store.Execute(mustOp(t, Op{Kind: OpRead, Key: "user1"}))
	require.NoError(t, err)
	res, err := DecodeResult(raw)
	require.NoError(t, err)
	assert.True(t, res.Found)
	assert.Equal(t, []byte("ada"), res.Fields["name"])
}

func TestKVStoreReadMissingKey(t *testing.T) {
	store := NewKVStore()
	raw, err := store.Execute(mustOp(t, Op{Kind: OpRead, Key: "missing"}))
	require.NoError(t, err)
	res, err := DecodeResult(raw)
	require.NoError(t, err)
	assert.False(t, res.Found)
}

func TestKVStoreReadModifyWriteReturnsPriorValue(t *testing.T) {
	store := NewKVStore()
	_, err := store.Execute(mustOp(t, Op{Kind: OpInsert, Key: "counter", Fields: map[string][]byte{"n": []byte("1")}}))
	require.NoError(t, err)

	raw, err := store.Execute(mustOp(t, Op{Kind: OpReadModifyWrite, Key: "counter", Fields: map[string][]byte{"n": []byte("2")}}))
	require.NoError(t, err)
	res, err := DecodeResult(raw)
	require.NoError(t, err)
	assert.Equal(t, []byte("1"), res.Fields["n"])

	raw, err = store.Execute(mustOp(t, Op{Kind: OpRead, Key: "counter"}))
	require.NoError(t, err)
	res, err = DecodeResult(raw)
	require.NoError(t, err)
	assert.Equal(t, []byte("2"), res.Fields["n"])
}

func TestKVStoreScanIsOrderedByKey(t *testing.T) {
	store := NewKVStore()
	for _, k := range []string{"b", "a", "c"} {
		_, err := store.Execute(mustOp(t, Op{Kind: OpInsert, Key: k, Fields: map[string][]byte{"k": []byte(k)}}))
		require.NoError(t, err)
	}

	raw, err := store.Execute(mustOp(t, Op{Kind: OpScan, Key: "a", ScanCount: 10}))
	require.NoError(t, err)
	res, err := DecodeResult(raw)
	require.NoError(t, err)
	require.Len(t, res.Scanned, 3)
	assert.Equal(t, []byte("a"), res.Scanned[0]["k"])
	assert.Equal(t, []byte("b"), res.Scanned[1]["k"])
	assert.Equal(t, []byte("c"), res.Scanned[2]["k"])
}

func TestKVStoreDeterministicAcrossIndependentInstances(t *testing.T) {
	ops := []Op{
		{Kind: OpInsert, Key: "x", Fields: map[string][]byte{"v": []byte("1")}},
		{Kind: OpUpdate, Key: "x", Fields: map[string][]byte{"v": []byte("2")}},
		{Kind: OpRead, Key: "x"},
	}
	run := func() []byte {
		store := NewKVStore()
		var last []byte
		for _, o := range ops {
			r, err := store.Execute(mustOp(t, o))
			require.NoError(t, err)
			last = r
		}
		return last
	}
	assert.Equal(t, run(), run())
}
