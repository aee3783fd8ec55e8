package storage

import (
	"github.com/kesh-dev/tabula/pkg/codec"
	tabulaerrors "github.com/kesh-dev/tabula/pkg/errors"
	"github.com/kesh-dev/tabula/pkg/query"
	"go.mongodb.org/mongo-driver/v2/bson"
)

// queryDoc mirrors query.Query for BSON round-tripping. Children/Filter
// recurse through the same shape, matching the flat, Kind-tagged struct the
// query package itself uses.
type queryDoc struct {
	Kind   int      `bson:"kind"`
	Column string   `bson:"column,omitempty"`
	Op     int      `bson:"op,omitempty"`
	Value  bson.D   `bson:"value,omitempty"`

	Children []queryDoc `bson:"children,omitempty"`

	JoinType    int    `bson:"join_type,omitempty"`
	TargetTable string `bson:"target_table,omitempty"`
	LeftColumn  string `bson:"left_column,omitempty"`
	RightColumn string `bson:"right_column,omitempty"`

	AggFunc   int       `bson:"agg_func,omitempty"`
	AggColumn string    `bson:"agg_column,omitempty"`
	Filter    *queryDoc `bson:"filter,omitempty"`
}

func toQueryDoc(q query.Query) (queryDoc, error) {
	doc := queryDoc{
		Kind:        int(q.Kind),
		Column:      q.Column,
		Op:          int(q.Op),
		JoinType:    int(q.JoinType),
		TargetTable: q.TargetTable,
		LeftColumn:  q.LeftColumn,
		RightColumn: q.RightColumn,
		AggFunc:     int(q.AggFunc),
		AggColumn:   q.AggColumn,
	}

	valDoc, err := codec.EncodeValue(q.Value)
	if err != nil {
		return queryDoc{}, err
	}
	doc.Value = valDoc

	for _, c := range q.Children {
		cd, err := toQueryDoc(c)
		if err != nil {
			return queryDoc{}, err
		}
		doc.Children = append(doc.Children, cd)
	}

	if q.Filter != nil {
		fd, err := toQueryDoc(*q.Filter)
		if err != nil {
			return queryDoc{}, err
		}
		doc.Filter = &fd
	}

	return doc, nil
}

func fromQueryDoc(d queryDoc) (query.Query, error) {
	value, err := codec.DecodeValue(d.Value)
	if err != nil {
		return query.Query{}, err
	}

	q := query.Query{
		Kind:        query.Kind(d.Kind),
		Column:      d.Column,
		Op:          query.Op(d.Op),
		Value:       value,
		JoinType:    query.JoinType(d.JoinType),
		TargetTable: d.TargetTable,
		LeftColumn:  d.LeftColumn,
		RightColumn: d.RightColumn,
		AggFunc:     query.AggFunc(d.AggFunc),
		AggColumn:   d.AggColumn,
	}

	for _, cd := range d.Children {
		c, err := fromQueryDoc(cd)
		if err != nil {
			return query.Query{}, err
		}
		q.Children = append(q.Children, c)
	}

	if d.Filter != nil {
		f, err := fromQueryDoc(*d.Filter)
		if err != nil {
			return query.Query{}, err
		}
		q.Filter = &f
	}

	return q, nil
}

// encodeQuery renders q to canonical BSON bytes, the opaque payload stored
// inside a wal.QueryRecord for Update/Delete entries.
func encodeQuery(q query.Query) ([]byte, error) {
	doc, err := toQueryDoc(q)
	if err != nil {
		return nil, err
	}
	data, err := bson.Marshal(doc)
	if err != nil {
		return nil, tabulaerrors.Codec(err, "marshal query")
	}
	return data, nil
}

// decodeQuery reverses encodeQuery.
func decodeQuery(data []byte) (query.Query, error) {
	var doc queryDoc
	if err := bson.Unmarshal(data, &doc); err != nil {
		return query.Query{}, tabulaerrors.Codec(err, "unmarshal query")
	}
	return fromQueryDoc(doc)
}
