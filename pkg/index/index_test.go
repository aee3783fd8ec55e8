package index_test

import (
	"testing"

	"github.com/kesh-dev/tabula/pkg/index"
	"github.com/kesh-dev/tabula/pkg/types"
	"github.com/stretchr/testify/require"
)

func TestAddAndGetBucketInsertionOrder(t *testing.T) {
	idx := index.New()
	idx.Add(types.Int(7), 2)
	idx.Add(types.Int(7), 0)
	idx.Add(types.Int(7), 5)

	positions, ok := idx.Get(types.Int(7))
	require.True(t, ok)
	require.Equal(t, []int{2, 0, 5}, positions)
}

func TestGetMissingKey(t *testing.T) {
	idx := index.New()
	idx.Add(types.String("a"), 0)

	_, ok := idx.Get(types.String("b"))
	require.False(t, ok)
}

func TestKeysAreAscending(t *testing.T) {
	idx := index.New()
	idx.Add(types.Int(30), 0)
	idx.Add(types.Int(10), 1)
	idx.Add(types.Int(20), 2)

	keys := idx.Keys()
	require.Len(t, keys, 3)
	require.Equal(t, int64(10), keys[0].AsInt())
	require.Equal(t, int64(20), keys[1].AsInt())
	require.Equal(t, int64(30), keys[2].AsInt())
}

func TestRemoveDropsEmptyBucket(t *testing.T) {
	idx := index.New()
	idx.Add(types.Int(1), 0)
	idx.Remove(types.Int(1), 0)

	_, ok := idx.Get(types.Int(1))
	require.False(t, ok)
	require.Equal(t, 0, idx.Len())
}

func TestRemoveOnlyTargetPositionFromBucket(t *testing.T) {
	idx := index.New()
	idx.Add(types.Int(1), 0)
	idx.Add(types.Int(1), 1)
	idx.Remove(types.Int(1), 0)

	positions, ok := idx.Get(types.Int(1))
	require.True(t, ok)
	require.Equal(t, []int{1}, positions)
}

func TestRangeFromStartVisitsAscendingKeysOnly(t *testing.T) {
	idx := index.New()
	idx.Add(types.Int(10), 0)
	idx.Add(types.Int(20), 1)
	idx.Add(types.Int(30), 2)

	start := types.Int(20)
	var seen []int64
	idx.Range(&start, func(key types.Value, positions []int) bool {
		seen = append(seen, key.AsInt())
		return true
	})

	require.Equal(t, []int64{20, 30}, seen)
}

func TestRangeStopsEarlyWhenCallbackReturnsFalse(t *testing.T) {
	idx := index.New()
	idx.Add(types.Int(10), 0)
	idx.Add(types.Int(20), 1)
	idx.Add(types.Int(30), 2)

	var seen []int64
	idx.Range(nil, func(key types.Value, positions []int) bool {
		seen = append(seen, key.AsInt())
		return key.AsInt() < 20
	})

	require.Equal(t, []int64{10, 20}, seen)
}

func TestRebuildFromGroupsByEqualityPreservingRowOrder(t *testing.T) {
	rebuilt := index.RebuildFrom([]struct {
		Position int
		Key      types.Value
	}{
		{Position: 0, Key: types.String("b")},
		{Position: 1, Key: types.String("a")},
		{Position: 2, Key: types.String("b")},
	})

	keys := rebuilt.Keys()
	require.Equal(t, []string{"a", "b"}, []string{keys[0].AsString(), keys[1].AsString()})

	bPositions, ok := rebuilt.Get(types.String("b"))
	require.True(t, ok)
	require.Equal(t, []int{0, 2}, bPositions)
}

func TestCrossVariantKeysNeverCollide(t *testing.T) {
	idx := index.New()
	idx.Add(types.Int(1), 0)
	idx.Add(types.String("1"), 1)

	require.Equal(t, 2, idx.Len())
	intPositions, ok := idx.Get(types.Int(1))
	require.True(t, ok)
	require.Equal(t, []int{0}, intPositions)
}
