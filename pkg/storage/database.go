package storage

import (
	"fmt"
	"io"
	"os"
	"sync"

	"github.com/kesh-dev/tabula/pkg/codec"
	tabulaerrors "github.com/kesh-dev/tabula/pkg/errors"
	"github.com/kesh-dev/tabula/pkg/query"
	"github.com/kesh-dev/tabula/pkg/snapshot"
	"github.com/kesh-dev/tabula/pkg/types"
	"github.com/kesh-dev/tabula/pkg/wal"
	"go.mongodb.org/mongo-driver/v2/bson"
)

// Database is the single-process, multi-table façade (spec §5): one
// process-wide RWMutex guards the table map, writes go to the WAL before
// they are applied, and Save/Load move the whole database through the
// snapshot envelope.
type Database struct {
	mu     sync.RWMutex
	tables map[string]*Table

	wal  *wal.Writer
	opts Options
	lsn  uint64

	shardResolver ShardResolver
}

// NewDatabase opens (or creates) a Database per opts. A Database opened
// with no WALPath runs in-memory only.
func NewDatabase(opts Options) (*Database, error) {
	db := &Database{tables: make(map[string]*Table), opts: opts}

	if opts.WALPath != "" {
		w, err := wal.NewWriter(opts.WALPath, opts.WALOptions)
		if err != nil {
			return nil, err
		}
		db.wal = w
	}

	return db, nil
}

// Close flushes and closes the WAL, if any.
func (db *Database) Close() error {
	if db.wal == nil {
		return nil
	}
	return db.wal.Close()
}

// SetShardResolver installs the optional external routing hook (spec
// supplemented feature). The database never invokes it.
func (db *Database) SetShardResolver(r ShardResolver) {
	db.mu.Lock()
	defer db.mu.Unlock()
	db.shardResolver = r
}

func (db *Database) ShardResolver() ShardResolver {
	db.mu.RLock()
	defer db.mu.RUnlock()
	return db.shardResolver
}

func (db *Database) tableLocked(name string) (*Table, error) {
	t, ok := db.tables[name]
	if !ok {
		return nil, tabulaerrors.NotFound("table %q", name)
	}
	return t, nil
}

func (db *Database) nextLSNLocked() uint64 {
	db.lsn++
	return db.lsn
}

// CreateTable registers a new table with the given schema, WAL-logging the
// definition before making it visible (spec §4.1).
func (db *Database) CreateTable(name string, columns []types.Column) error {
	db.mu.Lock()
	defer db.mu.Unlock()

	if _, exists := db.tables[name]; exists {
		return tabulaerrors.AlreadyExists("table %q", name)
	}

	if db.wal != nil {
		payload, err := wal.EncodeCreateTable(name, columns)
		if err != nil {
			return err
		}
		entry := wal.NewEntry(wal.EntryCreateTable, db.nextLSNLocked(), payload)
		err = db.wal.WriteEntry(entry)
		wal.ReleaseEntry(entry)
		if err != nil {
			return fmt.Errorf("wal write failed: %w", err)
		}
	}

	db.tables[name] = newTable(name, columns)
	return nil
}

// CreateIndex builds a secondary index on table.column from its current
// rows. Index definitions are not WAL-logged (spec §4.8 names only the four
// row/schema EntryType values); an index created since the last snapshot
// must be re-created after a crash recovery.
func (db *Database) CreateIndex(table, column string) error {
	db.mu.RLock()
	t, err := db.tableLocked(table)
	db.mu.RUnlock()
	if err != nil {
		return err
	}
	return t.CreateIndex(column)
}

// Insert adds row to table as a single-operation, auto-committed
// transaction.
func (db *Database) Insert(table string, row types.Row) error {
	tx := db.BeginTransaction()
	if err := tx.Insert(table, row); err != nil {
		return err
	}
	return tx.Commit()
}

// Update applies mutator to every row in table matching filter, as a
// single-operation, auto-committed transaction.
func (db *Database) Update(table string, filter query.Query, mutator func(types.Row) types.Row) error {
	tx := db.BeginTransaction()
	if err := tx.Update(table, filter, mutator); err != nil {
		return err
	}
	return tx.Commit()
}

// Delete removes every row in table matching filter, as a
// single-operation, auto-committed transaction.
func (db *Database) Delete(table string, filter query.Query) error {
	tx := db.BeginTransaction()
	if err := tx.Delete(table, filter); err != nil {
		return err
	}
	return tx.Commit()
}

// BeginTransaction starts a buffered, single-shot transaction (spec §4.9).
func (db *Database) BeginTransaction() *Transaction {
	return newTransaction(db)
}

// Select plans and evaluates q against table, returning the matching rows
// in position order.
func (db *Database) Select(table string, q query.Query) ([]types.Row, error) {
	db.mu.RLock()
	defer db.mu.RUnlock()

	t, err := db.tableLocked(table)
	if err != nil {
		return nil, err
	}

	planned := query.Plan(q, t.HasIndex)
	positions, err := t.Eval(planned)
	if err != nil {
		return nil, err
	}

	rows := make([]types.Row, len(positions))
	t.mu.RLock()
	for i, pos := range positions {
		rows[i] = t.Rows[pos]
	}
	t.mu.RUnlock()
	return rows, nil
}

// Join evaluates leftFilter against leftTable, then equi-joins the matching
// rows against joinQuery.TargetTable per joinQuery.JoinType (spec §4.6).
func (db *Database) Join(leftTable string, leftFilter query.Query, joinQuery query.Query) ([]types.Row, error) {
	if joinQuery.Kind != query.KindJoin {
		return nil, tabulaerrors.Unsupported("Join requires a KindJoin query, got %v", joinQuery.Kind)
	}

	db.mu.RLock()
	defer db.mu.RUnlock()

	left, err := db.tableLocked(leftTable)
	if err != nil {
		return nil, err
	}
	right, err := db.tableLocked(joinQuery.TargetTable)
	if err != nil {
		return nil, err
	}

	planned := query.Plan(leftFilter, left.HasIndex)
	positions, err := left.Eval(planned)
	if err != nil {
		return nil, err
	}

	return Join(left, positions, right, joinQuery.JoinType, joinQuery.LeftColumn, joinQuery.RightColumn)
}

// Aggregate computes q against table (spec §4.7).
func (db *Database) Aggregate(table string, q query.Query) (types.Value, error) {
	db.mu.RLock()
	defer db.mu.RUnlock()

	t, err := db.tableLocked(table)
	if err != nil {
		return types.Value{}, err
	}

	if q.Filter != nil {
		planned := query.Plan(*q.Filter, t.HasIndex)
		q.Filter = &planned
	}

	return t.Aggregate(q)
}

// resolveForeignKey scans table for a row whose column equals value. Called
// with db.mu already held by the transaction commit path.
func (db *Database) resolveForeignKey(table, column string, value types.Value) (bool, error) {
	target, ok := db.tables[table]
	if !ok {
		return false, tabulaerrors.NotFound("referenced table %q", table)
	}
	target.mu.RLock()
	defer target.mu.RUnlock()
	for _, row := range target.Rows {
		if row[column].Equal(value) {
			return true, nil
		}
	}
	return false, nil
}

// writeWALLocked appends one WAL entry for op. Called with db.mu already
// held, before op is applied to any table (spec §4.9's write-then-apply
// ordering).
func (db *Database) writeWALLocked(op writeOp) error {
	if db.wal == nil {
		return nil
	}

	var entryType wal.EntryType
	var payload []byte
	var err error

	switch op.kind {
	case opInsert:
		entryType = wal.EntryInsert
		payload, err = wal.EncodeInsert(op.table, op.row)
	case opUpdate:
		entryType = wal.EntryUpdate
		var qBytes []byte
		qBytes, err = encodeQuery(op.filter)
		if err == nil {
			payload, err = wal.EncodeQueryRecord(op.table, qBytes)
		}
	case opDelete:
		entryType = wal.EntryDelete
		var qBytes []byte
		qBytes, err = encodeQuery(op.filter)
		if err == nil {
			payload, err = wal.EncodeQueryRecord(op.table, qBytes)
		}
	default:
		return tabulaerrors.Unsupported("unknown write op kind %v", op.kind)
	}
	if err != nil {
		return err
	}

	entry := wal.NewEntry(entryType, db.nextLSNLocked(), payload)
	err = db.wal.WriteEntry(entry)
	wal.ReleaseEntry(entry)
	return err
}

// tableSnapshot and databaseSnapshot are the BSON shapes persisted by
// Save/Load. Indexes records which columns carried a secondary index, so
// Load can rebuild them.
type tableSnapshot struct {
	Name    string   `bson:"name"`
	Columns bson.A   `bson:"columns"`
	Rows    []bson.D `bson:"rows"`
	Indexes []string `bson:"indexes"`
}

type databaseSnapshot struct {
	Tables []tableSnapshot `bson:"tables"`
}

// Save serializes every table, seals the result (gzip then AES-256-GCM),
// and atomically replaces opts.SnapshotPath (write-temp-then-rename,
// mirroring the teacher's checkpoint writer). On success the WAL is
// truncated, since the snapshot now covers everything it recorded (spec
// §4.2).
func (db *Database) Save() error {
	db.mu.Lock()
	defer db.mu.Unlock()

	if db.opts.SnapshotPath == "" {
		return tabulaerrors.Unsupported("no snapshot path configured")
	}

	snap := databaseSnapshot{}
	for name, t := range db.tables {
		t.mu.RLock()
		cols, err := codec.EncodeColumns(t.Columns)
		if err != nil {
			t.mu.RUnlock()
			return err
		}
		rows := make([]bson.D, 0, len(t.Rows))
		for _, row := range t.Rows {
			rowDoc, err := codec.EncodeRow(row)
			if err != nil {
				t.mu.RUnlock()
				return err
			}
			rows = append(rows, rowDoc)
		}
		indexNames := make([]string, 0, len(t.indexes))
		for col := range t.indexes {
			indexNames = append(indexNames, col)
		}
		t.mu.RUnlock()

		snap.Tables = append(snap.Tables, tableSnapshot{
			Name:    name,
			Columns: cols,
			Rows:    rows,
			Indexes: indexNames,
		})
	}

	plaintext, err := bson.Marshal(snap)
	if err != nil {
		return tabulaerrors.Codec(err, "marshal database snapshot")
	}

	sealed, err := snapshot.Seal(plaintext, db.opts.SnapshotKey)
	if err != nil {
		return err
	}

	tmpPath := db.opts.SnapshotPath + ".tmp"
	if err := os.WriteFile(tmpPath, sealed, 0644); err != nil {
		return tabulaerrors.Io(err, "write temp snapshot file")
	}
	if err := os.Rename(tmpPath, db.opts.SnapshotPath); err != nil {
		return tabulaerrors.Io(err, "rename snapshot file")
	}

	if db.wal != nil {
		if err := db.wal.Truncate(); err != nil {
			return err
		}
		db.lsn = 0
	}

	return nil
}

// Load replaces the in-memory database with the contents of
// opts.SnapshotPath, rebuilding every table's indexes and Merkle root.
func (db *Database) Load() error {
	db.mu.Lock()
	defer db.mu.Unlock()

	if db.opts.SnapshotPath == "" {
		return tabulaerrors.Unsupported("no snapshot path configured")
	}

	sealed, err := os.ReadFile(db.opts.SnapshotPath)
	if err != nil {
		return tabulaerrors.Io(err, "read snapshot file")
	}

	plaintext, err := snapshot.Open(sealed, db.opts.SnapshotKey)
	if err != nil {
		return err
	}

	var snap databaseSnapshot
	if err := bson.Unmarshal(plaintext, &snap); err != nil {
		return tabulaerrors.Codec(err, "unmarshal database snapshot")
	}

	tables := make(map[string]*Table, len(snap.Tables))
	for _, ts := range snap.Tables {
		cols, err := codec.DecodeColumns(ts.Columns)
		if err != nil {
			return err
		}
		t := newTable(ts.Name, cols)
		for _, rowDoc := range ts.Rows {
			row, err := decodeRowDoc(rowDoc)
			if err != nil {
				return err
			}
			t.Rows = append(t.Rows, row)
		}
		for _, col := range ts.Indexes {
			t.indexes[col] = t.buildIndexLocked(col)
		}
		if err := t.rebuildMerkleLocked(); err != nil {
			return err
		}
		tables[ts.Name] = t
	}

	db.tables = tables
	return nil
}

// VerifyIntegrity recomputes every table's Merkle root and compares it
// against the cached value, returning the first mismatch found.
func (db *Database) VerifyIntegrity() error {
	db.mu.RLock()
	names := make([]string, 0, len(db.tables))
	for name := range db.tables {
		names = append(names, name)
	}
	db.mu.RUnlock()

	for _, name := range names {
		if err := db.VerifyTable(name); err != nil {
			return err
		}
	}
	return nil
}

// VerifyTable recomputes table's Merkle root from its current rows and
// compares it against the cached root.
func (db *Database) VerifyTable(name string) error {
	db.mu.RLock()
	t, err := db.tableLocked(name)
	db.mu.RUnlock()
	if err != nil {
		return err
	}

	t.mu.Lock()
	cached := append([]byte(nil), t.root...)
	recomputeErr := t.rebuildMerkleLocked()
	recomputed := append([]byte(nil), t.root...)
	t.root = cached
	t.mu.Unlock()

	if recomputeErr != nil {
		return recomputeErr
	}
	if string(cached) != string(recomputed) {
		return tabulaerrors.IntegrityMismatch("table %q merkle root mismatch", name)
	}
	return nil
}

// Recover rebuilds the database from the configured snapshot (if any) and
// replays the WAL on top of it. Update entries are skipped: the WAL records
// the query an Update ran, not the mutator function, so an Update cannot be
// reconstructed from its log record alone (spec §9, option (b)).
func (db *Database) Recover() error {
	if db.opts.SnapshotPath != "" {
		if _, err := os.Stat(db.opts.SnapshotPath); err == nil {
			if err := db.Load(); err != nil {
				return err
			}
		}
	}

	if db.opts.WALPath == "" {
		return nil
	}
	if _, err := os.Stat(db.opts.WALPath); os.IsNotExist(err) {
		return nil
	}

	reader, err := wal.NewReader(db.opts.WALPath)
	if err != nil {
		return err
	}
	defer reader.Close()

	db.mu.Lock()
	defer db.mu.Unlock()

	var maxLSN uint64
	applied, skipped := 0, 0

	for {
		entry, err := reader.ReadEntry()
		if err == io.EOF {
			break
		}
		if err != nil {
			return fmt.Errorf("recovery error at entry %d: %w", applied+skipped, err)
		}

		if entry.Header.LSN > maxLSN {
			maxLSN = entry.Header.LSN
		}

		switch entry.Header.EntryType {
		case wal.EntryCreateTable:
			record, err := wal.DecodeCreateTable(entry.Payload)
			if err != nil {
				wal.ReleaseEntry(entry)
				return err
			}
			if _, exists := db.tables[record.Table]; !exists {
				db.tables[record.Table] = newTable(record.Table, record.Columns)
			}
			applied++

		case wal.EntryInsert:
			record, err := wal.DecodeInsert(entry.Payload)
			if err != nil {
				wal.ReleaseEntry(entry)
				return err
			}
			t, err := db.tableLocked(record.Table)
			if err != nil {
				wal.ReleaseEntry(entry)
				continue
			}
			if err := t.insertLocked(record.Row); err != nil {
				wal.ReleaseEntry(entry)
				return err
			}
			applied++

		case wal.EntryDelete:
			qr, err := wal.DecodeQueryRecord(entry.Payload)
			if err != nil {
				wal.ReleaseEntry(entry)
				return err
			}
			t, err := db.tableLocked(qr.Table)
			if err != nil {
				wal.ReleaseEntry(entry)
				continue
			}
			filter, err := decodeQuery(qr.QueryBSON)
			if err != nil {
				wal.ReleaseEntry(entry)
				return err
			}
			positions, err := t.evalLocked(filter)
			if err != nil {
				wal.ReleaseEntry(entry)
				return err
			}
			if err := t.deleteLocked(positions); err != nil {
				wal.ReleaseEntry(entry)
				return err
			}
			applied++

		case wal.EntryUpdate:
			skipped++
			fmt.Printf("recover: skipped Update entry at LSN %d (mutator not replayable)\n", entry.Header.LSN)
		}

		wal.ReleaseEntry(entry)
	}

	db.lsn = maxLSN
	fmt.Printf("recover: applied %d entries, skipped %d, current LSN %d\n", applied, skipped, maxLSN)
	return nil
}

// decodeRowDoc reverses codec.EncodeRow for a row already unmarshaled into
// a bson.D (as opposed to codec.UnmarshalRow, which starts from bytes).
func decodeRowDoc(doc bson.D) (types.Row, error) {
	row := make(types.Row, len(doc))
	for _, e := range doc {
		inner, ok := e.Value.(bson.D)
		if !ok {
			return nil, tabulaerrors.Codec(nil, "malformed snapshot value for column %q", e.Key)
		}
		v, err := codec.DecodeValue(inner)
		if err != nil {
			return nil, err
		}
		row[e.Key] = v
	}
	return row, nil
}
