// Package types defines the tagged value variants, declared column types,
// and constraints shared by the query and storage layers.
package types

import (
	"encoding/json"
	"fmt"
	"math"
	"time"

	"github.com/google/uuid"
)

// Kind tags the concrete variant held by a Value.
type Kind uint8

const (
	KindNull Kind = iota
	KindInt
	KindString
	KindFloat
	KindBool
	KindTimestamp
	KindUUID
	KindJSON
)

func (k Kind) String() string {
	switch k {
	case KindNull:
		return "NULL"
	case KindInt:
		return "INT"
	case KindString:
		return "STRING"
	case KindFloat:
		return "FLOAT"
	case KindBool:
		return "BOOL"
	case KindTimestamp:
		return "TIMESTAMP"
	case KindUUID:
		return "UUID"
	case KindJSON:
		return "JSON"
	default:
		return "UNKNOWN"
	}
}

// Value is a tagged sum over the eight variants the engine understands.
// Exactly one of the typed fields is meaningful, selected by Kind.
type Value struct {
	kind Kind
	i    int64
	s    string
	f    float64
	b    bool
	t    time.Time
	u    uuid.UUID
	j    json.RawMessage
}

// floatEpsilon is the tolerance used for float equality, per spec §3.
const floatEpsilon = 1e-9

func Null() Value                    { return Value{kind: KindNull} }
func Int(v int64) Value              { return Value{kind: KindInt, i: v} }
func String(v string) Value          { return Value{kind: KindString, s: v} }
func Float(v float64) Value          { return Value{kind: KindFloat, f: v} }
func Bool(v bool) Value              { return Value{kind: KindBool, b: v} }
func Timestamp(v time.Time) Value    { return Value{kind: KindTimestamp, t: v.UTC()} }
func UUID(v uuid.UUID) Value         { return Value{kind: KindUUID, u: v} }

// JSON canonicalizes raw into a deterministic form (stable key order at
// every nesting level) and stores it. An invalid document yields an error.
func JSON(raw []byte) (Value, error) {
	canon, err := CanonicalJSON(raw)
	if err != nil {
		return Value{}, err
	}
	return Value{kind: KindJSON, j: canon}, nil
}

// CanonicalJSON decodes raw into generic Go values and re-encodes it, which
// is sufficient for determinism because encoding/json sorts map keys at
// every level it marshals.
func CanonicalJSON(raw []byte) (json.RawMessage, error) {
	var v interface{}
	if err := json.Unmarshal(raw, &v); err != nil {
		return nil, fmt.Errorf("invalid json document: %w", err)
	}
	out, err := json.Marshal(v)
	if err != nil {
		return nil, err
	}
	return json.RawMessage(out), nil
}

func (v Value) Kind() Kind       { return v.kind }
func (v Value) IsNull() bool     { return v.kind == KindNull }
func (v Value) AsInt() int64     { return v.i }
func (v Value) AsString() string { return v.s }
func (v Value) AsFloat() float64 { return v.f }
func (v Value) AsBool() bool     { return v.b }
func (v Value) AsTimestamp() time.Time {
	return v.t
}
func (v Value) AsUUID() uuid.UUID      { return v.u }
func (v Value) AsJSON() json.RawMessage { return v.j }

// Numeric reports whether the value is Int or Float and returns it widened
// to float64; used by Sum/Avg which coerce both to double precision.
func (v Value) Numeric() (float64, bool) {
	switch v.kind {
	case KindInt:
		return float64(v.i), true
	case KindFloat:
		return v.f, true
	default:
		return 0, false
	}
}

func (v Value) String() string {
	switch v.kind {
	case KindNull:
		return "NULL"
	case KindInt:
		return fmt.Sprintf("%d", v.i)
	case KindString:
		return v.s
	case KindFloat:
		return fmt.Sprintf("%g", v.f)
	case KindBool:
		return fmt.Sprintf("%t", v.b)
	case KindTimestamp:
		return v.t.Format(time.RFC3339Nano)
	case KindUUID:
		return v.u.String()
	case KindJSON:
		return string(v.j)
	default:
		return "?"
	}
}

// Equal implements structural equality with float epsilon tolerance.
// Values of different Kind are never equal, including Null vs anything.
func (v Value) Equal(o Value) bool {
	if v.kind != o.kind {
		return false
	}
	switch v.kind {
	case KindNull:
		return true
	case KindInt:
		return v.i == o.i
	case KindString:
		return v.s == o.s
	case KindFloat:
		return math.Abs(v.f-o.f) < floatEpsilon
	case KindBool:
		return v.b == o.b
	case KindTimestamp:
		return v.t.Equal(o.t)
	case KindUUID:
		return v.u == o.u
	case KindJSON:
		return string(v.j) == string(o.j)
	default:
		return false
	}
}

// Compare defines a total order within a single variant. -2 is returned for
// cross-variant comparisons, which callers must treat as "unordered" (the
// predicate evaluates to false per spec §3/§9) rather than a real result.
const Incomparable = -2

func (v Value) Compare(o Value) int {
	if v.kind != o.kind {
		return Incomparable
	}
	switch v.kind {
	case KindNull:
		return 0
	case KindInt:
		return cmpInt64(v.i, o.i)
	case KindString:
		return cmpString(v.s, o.s)
	case KindFloat:
		if math.Abs(v.f-o.f) < floatEpsilon {
			return 0
		}
		return cmpFloat64(v.f, o.f)
	case KindBool:
		if v.b == o.b {
			return 0
		}
		if !v.b && o.b {
			return -1
		}
		return 1
	case KindTimestamp:
		if v.t.Equal(o.t) {
			return 0
		}
		if v.t.Before(o.t) {
			return -1
		}
		return 1
	case KindUUID:
		return cmpString(v.u.String(), o.u.String())
	case KindJSON:
		return cmpString(string(v.j), string(o.j))
	default:
		return Incomparable
	}
}

func cmpInt64(a, b int64) int {
	switch {
	case a < b:
		return -1
	case a > b:
		return 1
	default:
		return 0
	}
}

func cmpFloat64(a, b float64) int {
	switch {
	case a < b:
		return -1
	case a > b:
		return 1
	default:
		return 0
	}
}

func cmpString(a, b string) int {
	switch {
	case a < b:
		return -1
	case a > b:
		return 1
	default:
		return 0
	}
}

// Hash is a variant-tagged, stable hash used to bucket keys when an index is
// rebuilt and when a join looks up right-side rows. Floats hash by
// raw bit pattern, JSON by its canonical string form, null to zero.
func (v Value) Hash() uint64 {
	h := fnvOffset
	h = fnvMix(h, uint64(v.kind))
	switch v.kind {
	case KindNull:
		return 0
	case KindInt:
		h = fnvMix(h, uint64(v.i))
	case KindString:
		h = fnvBytes(h, []byte(v.s))
	case KindFloat:
		h = fnvMix(h, math.Float64bits(v.f))
	case KindBool:
		if v.b {
			h = fnvMix(h, 1)
		} else {
			h = fnvMix(h, 0)
		}
	case KindTimestamp:
		h = fnvMix(h, uint64(v.t.UnixNano()))
	case KindUUID:
		h = fnvBytes(h, v.u[:])
	case KindJSON:
		h = fnvBytes(h, v.j)
	}
	return h
}

const (
	fnvOffset = 14695981039346656037
	fnvPrime  = 1099511628211
)

func fnvMix(h, x uint64) uint64 {
	for i := 0; i < 8; i++ {
		h ^= (x >> (8 * i)) & 0xff
		h *= fnvPrime
	}
	return h
}

func fnvBytes(h uint64, b []byte) uint64 {
	for _, c := range b {
		h ^= uint64(c)
		h *= fnvPrime
	}
	return h
}

// MatchesDataType reports whether the value's variant agrees with the
// column's declared type (I1). Null matches any type.
func (v Value) MatchesDataType(d DataType) bool {
	if v.kind == KindNull {
		return true
	}
	return kindForDataType(d) == v.kind
}

func kindForDataType(d DataType) Kind {
	switch d {
	case DataTypeInt:
		return KindInt
	case DataTypeString:
		return KindString
	case DataTypeFloat:
		return KindFloat
	case DataTypeBool:
		return KindBool
	case DataTypeTimestamp:
		return KindTimestamp
	case DataTypeUUID:
		return KindUUID
	case DataTypeJSON:
		return KindJSON
	default:
		return KindNull
	}
}
