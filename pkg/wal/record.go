package wal

import (
	"github.com/kesh-dev/tabula/pkg/codec"
	tabulaerrors "github.com/kesh-dev/tabula/pkg/errors"
	"github.com/kesh-dev/tabula/pkg/types"
	"go.mongodb.org/mongo-driver/v2/bson"
)

// CreateTableRecord, InsertRecord, and QueryRecord (shared by Update and
// Delete) are the payload shapes for the four EntryType values (spec §4.8).
// Update records the query it ran, never the mutator function — the
// documented replay gap (spec §9).

type CreateTableRecord struct {
	Table   string
	Columns []types.Column
}

type InsertRecord struct {
	Table string
	Row   types.Row
}

// QueryRecord is an opaque, codec-serialized predicate tree, used for both
// Update and Delete records. It is decoded by the storage package, which
// owns the query codec; decoding it here would need pkg/wal to import
// pkg/storage, which already imports pkg/wal.
type QueryRecord struct {
	Table     string
	QueryBSON []byte
}

func EncodeCreateTable(table string, columns []types.Column) ([]byte, error) {
	cols, err := codec.EncodeColumns(columns)
	if err != nil {
		return nil, err
	}
	doc := bson.D{{Key: "table", Value: table}, {Key: "columns", Value: cols}}
	data, err := bson.Marshal(doc)
	if err != nil {
		return nil, tabulaerrors.Codec(err, "marshal create-table record")
	}
	return data, nil
}

func DecodeCreateTable(data []byte) (CreateTableRecord, error) {
	var raw struct {
		Table   string `bson:"table"`
		Columns bson.A `bson:"columns"`
	}
	if err := bson.Unmarshal(data, &raw); err != nil {
		return CreateTableRecord{}, tabulaerrors.Codec(err, "unmarshal create-table record")
	}
	cols, err := codec.DecodeColumns(raw.Columns)
	if err != nil {
		return CreateTableRecord{}, err
	}
	return CreateTableRecord{Table: raw.Table, Columns: cols}, nil
}

func EncodeInsert(table string, row types.Row) ([]byte, error) {
	rowDoc, err := codec.EncodeRow(row)
	if err != nil {
		return nil, err
	}
	doc := bson.D{{Key: "table", Value: table}, {Key: "row", Value: rowDoc}}
	data, err := bson.Marshal(doc)
	if err != nil {
		return nil, tabulaerrors.Codec(err, "marshal insert record")
	}
	return data, nil
}

func DecodeInsert(data []byte) (InsertRecord, error) {
	var raw struct {
		Table string `bson:"table"`
		Row   bson.D `bson:"row"`
	}
	if err := bson.Unmarshal(data, &raw); err != nil {
		return InsertRecord{}, tabulaerrors.Codec(err, "unmarshal insert record")
	}
	row := make(types.Row, len(raw.Row))
	for _, e := range raw.Row {
		inner, ok := e.Value.(bson.D)
		if !ok {
			return InsertRecord{}, tabulaerrors.Codec(nil, "malformed row value for %q", e.Key)
		}
		v, err := codec.DecodeValue(inner)
		if err != nil {
			return InsertRecord{}, err
		}
		row[e.Key] = v
	}
	return InsertRecord{Table: raw.Table, Row: row}, nil
}

// EncodeQueryRecord stores table name plus an opaque, already-serialized
// query payload (produced by the storage package's query codec).
func EncodeQueryRecord(table string, queryBSON []byte) ([]byte, error) {
	doc := bson.D{{Key: "table", Value: table}, {Key: "query", Value: queryBSON}}
	data, err := bson.Marshal(doc)
	if err != nil {
		return nil, tabulaerrors.Codec(err, "marshal query record")
	}
	return data, nil
}

func DecodeQueryRecord(data []byte) (QueryRecord, error) {
	var raw struct {
		Table string `bson:"table"`
		Query []byte `bson:"query"`
	}
	if err := bson.Unmarshal(data, &raw); err != nil {
		return QueryRecord{}, tabulaerrors.Codec(err, "unmarshal query record")
	}
	return QueryRecord{Table: raw.Table, QueryBSON: raw.Query}, nil
}
