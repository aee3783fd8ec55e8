// Package storage implements the table, transaction, and database façade
// (spec §4, C6-C12): row storage with secondary indexes, query evaluation,
// joins, aggregates, single-shot transactions, and snapshot persistence.
package storage

import (
	"sync"

	"github.com/kesh-dev/tabula/pkg/codec"
	tabulaerrors "github.com/kesh-dev/tabula/pkg/errors"
	"github.com/kesh-dev/tabula/pkg/index"
	"github.com/kesh-dev/tabula/pkg/merkletree"
	"github.com/kesh-dev/tabula/pkg/types"
)

// Table holds one table's schema, row vector, and per-column secondary
// indexes. Row positions are stable slice indices; a deleted row's slot is
// compacted and every later row's position shifts down by one, with every
// index rebuilt to match (spec §4.3).
type Table struct {
	mu      sync.RWMutex
	Name    string
	Columns []types.Column
	Rows    []types.Row

	indexes map[string]*index.Index
	root    []byte
}

func newTable(name string, columns []types.Column) *Table {
	return &Table{
		Name:    name,
		Columns: append([]types.Column(nil), columns...),
		indexes: make(map[string]*index.Index),
	}
}

func (t *Table) column(name string) (types.Column, bool) {
	for _, c := range t.Columns {
		if c.Name == name {
			return c, true
		}
	}
	return types.Column{}, false
}

// CreateIndex builds a secondary index for column from the current rows.
func (t *Table) CreateIndex(column string) error {
	t.mu.Lock()
	defer t.mu.Unlock()

	if _, ok := t.column(column); !ok {
		return tabulaerrors.NotFound("column %q on table %q", column, t.Name)
	}
	if _, exists := t.indexes[column]; exists {
		return tabulaerrors.AlreadyExists("index on column %q", column)
	}

	t.indexes[column] = t.buildIndexLocked(column)
	return nil
}

func (t *Table) buildIndexLocked(column string) *index.Index {
	keyed := make([]struct {
		Position int
		Key      types.Value
	}, 0, len(t.Rows))
	for pos, row := range t.Rows {
		keyed = append(keyed, struct {
			Position int
			Key      types.Value
		}{Position: pos, Key: row[column]})
	}
	return index.RebuildFrom(keyed)
}

// HasIndex reports whether column carries a secondary index, used by the
// query planner's cost function.
func (t *Table) HasIndex(column string) bool {
	t.mu.RLock()
	defer t.mu.RUnlock()
	_, ok := t.indexes[column]
	return ok
}

func (t *Table) indexFor(column string) (*index.Index, bool) {
	idx, ok := t.indexes[column]
	return idx, ok
}

// rebuildIndexesLocked rebuilds every index from scratch, per spec §4.3's
// maintenance policy for update/delete. Callers must hold t.mu.
func (t *Table) rebuildIndexesLocked() {
	for column := range t.indexes {
		t.indexes[column] = t.buildIndexLocked(column)
	}
}

// rebuildMerkleLocked recomputes the table's Merkle root over every row's
// canonical serialization, in row order. Callers must hold t.mu.
func (t *Table) rebuildMerkleLocked() error {
	leaves := make([][]byte, len(t.Rows))
	for i, row := range t.Rows {
		data, err := codec.MarshalRow(row)
		if err != nil {
			return err
		}
		leaves[i] = data
	}
	t.root = merkletree.Root(leaves)
	return nil
}

// MerkleRoot returns the table's current Merkle root.
func (t *Table) MerkleRoot() []byte {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return t.root
}

// insertLocked appends row, adds it to every index, and refreshes the
// Merkle root. Callers must hold t.mu and have already run constraint
// checks.
func (t *Table) insertLocked(row types.Row) error {
	pos := len(t.Rows)
	t.Rows = append(t.Rows, row)
	for column, idx := range t.indexes {
		idx.Add(row[column], pos)
	}
	return t.rebuildMerkleLocked()
}

// updateLocked applies fn to every row at positions, then rebuilds every
// index and the Merkle root from scratch (spec §4.3).
func (t *Table) updateLocked(positions []int, fn func(types.Row) types.Row) error {
	for _, pos := range positions {
		t.Rows[pos] = fn(t.Rows[pos])
	}
	t.rebuildIndexesLocked()
	return t.rebuildMerkleLocked()
}

// deleteLocked removes the rows at positions (given in any order), shifts
// later rows down to keep positions dense, then rebuilds every index and
// the Merkle root.
func (t *Table) deleteLocked(positions []int) error {
	toDelete := make(map[int]bool, len(positions))
	for _, p := range positions {
		toDelete[p] = true
	}

	kept := make([]types.Row, 0, len(t.Rows)-len(toDelete))
	for pos, row := range t.Rows {
		if !toDelete[pos] {
			kept = append(kept, row)
		}
	}
	t.Rows = kept
	t.rebuildIndexesLocked()
	return t.rebuildMerkleLocked()
}

// clone returns a deep copy of the table for transaction rollback: a new
// Rows slice with every row map copied (not shared), and fresh index
// objects, so an Update mutator that mutates its argument in place can never
// corrupt the live table if the transaction later aborts.
func (t *Table) clone() *Table {
	t.mu.RLock()
	defer t.mu.RUnlock()

	cp := &Table{
		Name:    t.Name,
		Columns: append([]types.Column(nil), t.Columns...),
		Rows:    make([]types.Row, len(t.Rows)),
		indexes: make(map[string]*index.Index, len(t.indexes)),
		root:    append([]byte(nil), t.root...),
	}
	for i, row := range t.Rows {
		cp.Rows[i] = cloneRow(row)
	}
	for column := range t.indexes {
		cp.indexes[column] = cp.buildIndexLocked(column)
	}
	return cp
}

func cloneRow(row types.Row) types.Row {
	cp := make(types.Row, len(row))
	for k, v := range row {
		cp[k] = v
	}
	return cp
}
