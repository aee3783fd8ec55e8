package storage

import (
	"fmt"
	"sync"

	tabulaerrors "github.com/kesh-dev/tabula/pkg/errors"
	"github.com/kesh-dev/tabula/pkg/query"
	"github.com/kesh-dev/tabula/pkg/types"
)

// opKind tags a buffered Transaction operation.
type opKind int

const (
	opInsert opKind = iota
	opUpdate
	opDelete
)

// writeOp is one buffered mutation awaiting commit (spec §4.9).
type writeOp struct {
	kind    opKind
	table   string
	row     types.Row          // opInsert
	filter  query.Query        // opUpdate / opDelete
	mutator func(types.Row) types.Row // opUpdate
}

// Transaction accumulates Insert/Update/Delete operations for a single
// atomic commit (spec §4.9: "single-shot", no nested reads mid-transaction).
// Its methods are serialized by an internal mutex.
type Transaction struct {
	db        *Database
	writeSet  []writeOp
	committed bool
	aborted   bool
	mu        sync.Mutex
}

func newTransaction(db *Database) *Transaction {
	return &Transaction{db: db, writeSet: make([]writeOp, 0)}
}

func (tx *Transaction) checkOpen() error {
	if tx.committed || tx.aborted {
		return tabulaerrors.Unsupported("transaction already finished")
	}
	return nil
}

// Insert buffers an insert of row into table.
func (tx *Transaction) Insert(table string, row types.Row) error {
	tx.mu.Lock()
	defer tx.mu.Unlock()
	if err := tx.checkOpen(); err != nil {
		return err
	}
	tx.writeSet = append(tx.writeSet, writeOp{kind: opInsert, table: table, row: row})
	return nil
}

// Update buffers an update of every row matching filter in table, applying
// mutator to each.
func (tx *Transaction) Update(table string, filter query.Query, mutator func(types.Row) types.Row) error {
	tx.mu.Lock()
	defer tx.mu.Unlock()
	if err := tx.checkOpen(); err != nil {
		return err
	}
	tx.writeSet = append(tx.writeSet, writeOp{kind: opUpdate, table: table, filter: filter, mutator: mutator})
	return nil
}

// Delete buffers a delete of every row matching filter in table.
func (tx *Transaction) Delete(table string, filter query.Query) error {
	tx.mu.Lock()
	defer tx.mu.Unlock()
	if err := tx.checkOpen(); err != nil {
		return err
	}
	tx.writeSet = append(tx.writeSet, writeOp{kind: opDelete, table: table, filter: filter})
	return nil
}

// Rollback discards every buffered operation without applying any of them.
func (tx *Transaction) Rollback() error {
	tx.mu.Lock()
	defer tx.mu.Unlock()
	if err := tx.checkOpen(); err != nil {
		return err
	}
	tx.aborted = true
	return nil
}

// Commit applies every buffered operation to the database as a single unit:
// it clones the affected tables, writes a WAL record for each operation, then
// applies operations against the clones, rolling back to the
// pre-commit state at the first error (spec §4.9's WAL-write-then-apply
// protocol, mirrored from the teacher's write-ahead-then-upsert ordering in
// engine.go's Put/InsertRow/Del).
func (tx *Transaction) Commit() error {
	tx.mu.Lock()
	defer tx.mu.Unlock()
	if err := tx.checkOpen(); err != nil {
		return err
	}

	db := tx.db
	db.mu.Lock()
	defer db.mu.Unlock()

	touched := make(map[string]*Table)
	for _, op := range tx.writeSet {
		if _, ok := touched[op.table]; ok {
			continue
		}
		table, err := db.tableLocked(op.table)
		if err != nil {
			return err
		}
		touched[op.table] = table
	}

	clones := make(map[string]*Table, len(touched))
	for name, table := range touched {
		clones[name] = table.clone()
	}

	for i, op := range tx.writeSet {
		if err := db.writeWALLocked(op); err != nil {
			return fmt.Errorf("wal write failed at operation %d: %w", i, err)
		}
	}

	for i, op := range tx.writeSet {
		target := clones[op.table]
		if err := applyOp(db, target, op); err != nil {
			tx.aborted = true
			return fmt.Errorf("commit failed at operation %d, rolled back: %w", i, err)
		}
	}

	for name, clone := range clones {
		db.tables[name] = clone
	}

	tx.committed = true
	return nil
}

// applyOp executes a single buffered operation against target, running
// constraint checks exactly as a direct Database call would.
func applyOp(db *Database, target *Table, op writeOp) error {
	switch op.kind {
	case opInsert:
		if err := target.checkConstraints(op.row, -1, db.resolveForeignKey); err != nil {
			return err
		}
		return target.insertLocked(op.row)
	case opUpdate:
		positions, err := target.evalLocked(op.filter)
		if err != nil {
			return err
		}
		for _, pos := range positions {
			candidate := op.mutator(cloneRow(target.Rows[pos]))
			if err := target.checkConstraints(candidate, pos, db.resolveForeignKey); err != nil {
				return err
			}
		}
		return target.updateLocked(positions, op.mutator)
	case opDelete:
		positions, err := target.evalLocked(op.filter)
		if err != nil {
			return err
		}
		return target.deleteLocked(positions)
	default:
		return tabulaerrors.Unsupported("unknown transaction operation kind %v", op.kind)
	}
}
