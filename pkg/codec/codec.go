// Package codec implements the deterministic, length-prefixed binary
// encoding (spec §4.1) used for rows, tables, and WAL records. Determinism
// is load-bearing: Merkle leaves are hashes of a row's canonical bytes, so
// map-shaped data is always emitted with lexicographically sorted keys.
package codec

import (
	"encoding/json"
	"fmt"
	"sort"
	"time"

	tabulaerrors "github.com/kesh-dev/tabula/pkg/errors"
	"github.com/kesh-dev/tabula/pkg/types"
	"github.com/google/uuid"
	"go.mongodb.org/mongo-driver/v2/bson"
)

// kind tags matching types.Kind, pinned here so the wire format never shifts
// under a future reordering of the Kind enum.
const (
	wireNull = iota
	wireInt
	wireString
	wireFloat
	wireBool
	wireTimestamp
	wireUUID
	wireJSON
)

// EncodeValue renders a Value as a self-describing BSON document
// {"k": <tag>, "v": <payload>}.
func EncodeValue(v types.Value) (bson.D, error) {
	switch v.Kind() {
	case types.KindNull:
		return bson.D{{Key: "k", Value: wireNull}}, nil
	case types.KindInt:
		return bson.D{{Key: "k", Value: wireInt}, {Key: "v", Value: v.AsInt()}}, nil
	case types.KindString:
		return bson.D{{Key: "k", Value: wireString}, {Key: "v", Value: v.AsString()}}, nil
	case types.KindFloat:
		return bson.D{{Key: "k", Value: wireFloat}, {Key: "v", Value: v.AsFloat()}}, nil
	case types.KindBool:
		return bson.D{{Key: "k", Value: wireBool}, {Key: "v", Value: v.AsBool()}}, nil
	case types.KindTimestamp:
		return bson.D{{Key: "k", Value: wireTimestamp}, {Key: "v", Value: v.AsTimestamp().UnixNano()}}, nil
	case types.KindUUID:
		return bson.D{{Key: "k", Value: wireUUID}, {Key: "v", Value: v.AsUUID().String()}}, nil
	case types.KindJSON:
		return bson.D{{Key: "k", Value: wireJSON}, {Key: "v", Value: string(v.AsJSON())}}, nil
	default:
		return nil, tabulaerrors.Codec(nil, "unknown value kind %v", v.Kind())
	}
}

// DecodeValue reverses EncodeValue.
func DecodeValue(d bson.D) (types.Value, error) {
	m := docToMap(d)
	tagRaw, ok := m["k"]
	if !ok {
		return types.Value{}, tabulaerrors.Codec(nil, "value document missing tag")
	}
	tag, err := toInt(tagRaw)
	if err != nil {
		return types.Value{}, tabulaerrors.Codec(err, "invalid value tag")
	}

	switch tag {
	case wireNull:
		return types.Null(), nil
	case wireInt:
		n, err := toInt(m["v"])
		if err != nil {
			return types.Value{}, tabulaerrors.Codec(err, "decode int value")
		}
		return types.Int(n), nil
	case wireString:
		s, _ := m["v"].(string)
		return types.String(s), nil
	case wireFloat:
		f, err := toFloat(m["v"])
		if err != nil {
			return types.Value{}, tabulaerrors.Codec(err, "decode float value")
		}
		return types.Float(f), nil
	case wireBool:
		b, _ := m["v"].(bool)
		return types.Bool(b), nil
	case wireTimestamp:
		n, err := toInt(m["v"])
		if err != nil {
			return types.Value{}, tabulaerrors.Codec(err, "decode timestamp value")
		}
		return types.Timestamp(time.Unix(0, n).UTC()), nil
	case wireUUID:
		s, _ := m["v"].(string)
		id, err := uuid.Parse(s)
		if err != nil {
			return types.Value{}, tabulaerrors.Codec(err, "decode uuid value")
		}
		return types.UUID(id), nil
	case wireJSON:
		s, _ := m["v"].(string)
		val, err := types.JSON([]byte(s))
		if err != nil {
			return types.Value{}, tabulaerrors.Codec(err, "decode json value")
		}
		return val, nil
	default:
		return types.Value{}, tabulaerrors.Codec(nil, "unknown wire tag %d", tag)
	}
}

// EncodeRow renders a Row as a BSON document with lexicographically sorted
// column names, making the bytes canonical across runs for equal inputs.
func EncodeRow(row types.Row) (bson.D, error) {
	names := make([]string, 0, len(row))
	for name := range row {
		names = append(names, name)
	}
	sort.Strings(names)

	doc := make(bson.D, 0, len(names))
	for _, name := range names {
		valDoc, err := EncodeValue(row[name])
		if err != nil {
			return nil, err
		}
		doc = append(doc, bson.E{Key: name, Value: valDoc})
	}
	return doc, nil
}

// MarshalRow returns the canonical bytes for a row. Two equal rows always
// produce identical bytes because map keys are sorted before emission.
func MarshalRow(row types.Row) ([]byte, error) {
	doc, err := EncodeRow(row)
	if err != nil {
		return nil, err
	}
	data, err := bson.Marshal(doc)
	if err != nil {
		return nil, tabulaerrors.Codec(err, "marshal row")
	}
	return data, nil
}

// UnmarshalRow reverses MarshalRow.
func UnmarshalRow(data []byte) (types.Row, error) {
	var doc bson.D
	if err := bson.Unmarshal(data, &doc); err != nil {
		return nil, tabulaerrors.Codec(err, "unmarshal row")
	}
	row := make(types.Row, len(doc))
	for _, e := range doc {
		inner, ok := e.Value.(bson.D)
		if !ok {
			return nil, tabulaerrors.Codec(nil, "malformed value document for column %q", e.Key)
		}
		v, err := DecodeValue(inner)
		if err != nil {
			return nil, err
		}
		row[e.Key] = v
	}
	return row, nil
}

func docToMap(d bson.D) map[string]interface{} {
	m := make(map[string]interface{}, len(d))
	for _, e := range d {
		m[e.Key] = e.Value
	}
	return m
}

func toInt(v interface{}) (int64, error) {
	switch n := v.(type) {
	case int64:
		return n, nil
	case int32:
		return int64(n), nil
	case int:
		return int64(n), nil
	case float64:
		return int64(n), nil
	default:
		return 0, fmt.Errorf("not an integer: %T", v)
	}
}

func toFloat(v interface{}) (float64, error) {
	switch n := v.(type) {
	case float64:
		return n, nil
	case float32:
		return float64(n), nil
	case int64:
		return float64(n), nil
	case int32:
		return float64(n), nil
	default:
		return 0, fmt.Errorf("not a float: %T", v)
	}
}

// MarshalJSONCanonical is a convenience wrapper exposed for tests that want
// to compare canonical JSON bytes directly, independent of the row codec.
func MarshalJSONCanonical(v interface{}) ([]byte, error) {
	return json.Marshal(v)
}
