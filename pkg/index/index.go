// Package index implements the per-column secondary index (spec §4.3, C5):
// an ordered map from types.Value to an insertion-ordered list of row
// positions, supporting point and range lookup.
//
// Adapted from the teacher's B+Tree (sorted-slice-per-node, sort.Search for
// position-finding, RWMutex-guarded mutation), simplified to a single sorted
// slice because the spec's maintenance policy (§4.3) rebuilds an index from
// scratch on update/delete rather than patching individual keys in place.
package index

import (
	"sort"
	"sync"

	"github.com/kesh-dev/tabula/pkg/types"
)

// entry is one key and its bucket of row positions, kept in insertion order.
type entry struct {
	key       types.Value
	positions []int
}

// Index is a thread-safe ordered map keyed by types.Value.
type Index struct {
	mu      sync.RWMutex
	entries []entry
}

func New() *Index {
	return &Index{}
}

// compareKeys orders index keys by variant first (in Kind order) and by the
// total order within a variant second, so an index holding keys of more than
// one variant (e.g. Null beside Int) stays sorted for search.
func compareKeys(a, b types.Value) int {
	if a.Kind() != b.Kind() {
		if a.Kind() < b.Kind() {
			return -1
		}
		return 1
	}
	return a.Compare(b)
}

// search returns the position in i.entries where key is, or would be
// inserted. Entries are grouped by variant and ordered within a variant by
// Value.Compare; cross-variant keys never compare equal to an existing
// entry's key.
func (i *Index) search(key types.Value) (idx int, found bool) {
	idx = sort.Search(len(i.entries), func(j int) bool {
		return compareKeys(i.entries[j].key, key) >= 0
	})
	if idx < len(i.entries) && compareKeys(i.entries[idx].key, key) == 0 {
		return idx, true
	}
	return idx, false
}

// Add appends pos to the bucket for key, in insertion order (spec §4.3:
// "On insert: append the new row position to the bucket").
func (i *Index) Add(key types.Value, pos int) {
	i.mu.Lock()
	defer i.mu.Unlock()

	idx, found := i.search(key)
	if found {
		i.entries[idx].positions = append(i.entries[idx].positions, pos)
		return
	}
	i.entries = append(i.entries, entry{})
	copy(i.entries[idx+1:], i.entries[idx:])
	i.entries[idx] = entry{key: key, positions: []int{pos}}
}

// Get returns the bucket of positions for key, in insertion order.
func (i *Index) Get(key types.Value) ([]int, bool) {
	i.mu.RLock()
	defer i.mu.RUnlock()

	idx, found := i.search(key)
	if !found {
		return nil, false
	}
	out := make([]int, len(i.entries[idx].positions))
	copy(out, i.entries[idx].positions)
	return out, true
}

// Remove deletes pos from key's bucket; the bucket entry is dropped entirely
// once empty.
func (i *Index) Remove(key types.Value, pos int) {
	i.mu.Lock()
	defer i.mu.Unlock()

	idx, found := i.search(key)
	if !found {
		return
	}
	bucket := i.entries[idx].positions
	for j, p := range bucket {
		if p == pos {
			bucket = append(bucket[:j], bucket[j+1:]...)
			break
		}
	}
	if len(bucket) == 0 {
		i.entries = append(i.entries[:idx], i.entries[idx+1:]...)
		return
	}
	i.entries[idx].positions = bucket
}

// Keys returns every distinct key currently indexed, in ascending order.
func (i *Index) Keys() []types.Value {
	i.mu.RLock()
	defer i.mu.RUnlock()

	out := make([]types.Value, len(i.entries))
	for j, e := range i.entries {
		out[j] = e.key
	}
	return out
}

// Len returns the number of distinct keys.
func (i *Index) Len() int {
	i.mu.RLock()
	defer i.mu.RUnlock()
	return len(i.entries)
}

// Range calls fn for every entry with key >= start (or from the beginning,
// if start is nil), in ascending order, stopping early if fn returns false.
// Used by the evaluator for Gt/Gte scans.
func (i *Index) Range(start *types.Value, fn func(key types.Value, positions []int) bool) {
	i.mu.RLock()
	defer i.mu.RUnlock()

	from := 0
	if start != nil {
		from, _ = i.search(*start)
	}
	for j := from; j < len(i.entries); j++ {
		if !fn(i.entries[j].key, i.entries[j].positions) {
			return
		}
	}
}

// Rebuild replaces the index contents wholesale, used after updates/deletes
// per spec §4.3 ("every index for columns touched ... is rebuilt from
// scratch"). newEntries may arrive in any key order and are sorted here;
// each key's positions must already be grouped and in row insertion order,
// as RebuildFrom builds them.
func (i *Index) Rebuild(newEntries []struct {
	Key       types.Value
	Positions []int
}) {
	i.mu.Lock()
	defer i.mu.Unlock()

	i.entries = make([]entry, len(newEntries))
	for j, e := range newEntries {
		i.entries[j] = entry{key: e.Key, positions: e.Positions}
	}
	sort.SliceStable(i.entries, func(a, b int) bool {
		return compareKeys(i.entries[a].key, i.entries[b].key) < 0
	})
}

// RebuildFrom rebuilds the index from a full (position -> key) scan, e.g. a
// table's row vector projected onto the indexed column, preserving row
// insertion order within each bucket.
func RebuildFrom(keyed []struct {
	Position int
	Key      types.Value
}) *Index {
	buckets := make(map[uint64][]struct {
		Key       types.Value
		Positions []int
	})
	order := make([]uint64, 0)

	for _, kv := range keyed {
		h := kv.Key.Hash()
		group, ok := buckets[h]
		placed := false
		for gi := range group {
			if group[gi].Key.Equal(kv.Key) {
				group[gi].Positions = append(group[gi].Positions, kv.Position)
				placed = true
				break
			}
		}
		if !placed {
			if _, seen := buckets[h]; !seen {
				order = append(order, h)
			}
			buckets[h] = append(buckets[h], struct {
				Key       types.Value
				Positions []int
			}{Key: kv.Key, Positions: []int{kv.Position}})
		} else {
			buckets[h] = group
		}
	}

	flat := make([]struct {
		Key       types.Value
		Positions []int
	}, 0, len(keyed))
	for _, h := range order {
		flat = append(flat, buckets[h]...)
	}

	idx := New()
	idx.Rebuild(flat)
	return idx
}
