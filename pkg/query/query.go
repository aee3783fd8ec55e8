// Package query defines the predicate-tree Query value (spec §4.6) and the
// index-affinity planner (spec §4.5). Evaluation lives in pkg/storage,
// which owns the Table/Index types a Query runs against.
package query

import "github.com/kesh-dev/tabula/pkg/types"

// Op is a condition comparison operator.
type Op int

const (
	Eq Op = iota
	NotEq
	Gt
	Gte
	Lt
	Lte
)

func (o Op) String() string {
	switch o {
	case Eq:
		return "="
	case NotEq:
		return "!="
	case Gt:
		return ">"
	case Gte:
		return ">="
	case Lt:
		return "<"
	case Lte:
		return "<="
	default:
		return "?"
	}
}

// JoinType selects inner/left/right equi-join semantics (spec §4.6).
type JoinType int

const (
	InnerJoin JoinType = iota
	LeftJoin
	RightJoin
)

// AggFunc is a scalar aggregate function.
type AggFunc int

const (
	Count AggFunc = iota
	Sum
	Avg
	Min
	Max
)

// Kind tags which shape of Query a given value holds.
type Kind int

const (
	KindMatchAll Kind = iota
	KindCondition
	KindAnd
	KindOr
	KindJoin
	KindAggregate
)

// Query is a structured predicate tree. Only the fields relevant to Kind
// are meaningful; this mirrors the spec's "structured value" query
// construction (no SQL parser, §1 Non-goals).
type Query struct {
	Kind Kind

	// Condition
	Column string
	Op     Op
	Value  types.Value

	// And / Or
	Children []Query

	// Join
	JoinType    JoinType
	TargetTable string
	LeftColumn  string
	RightColumn string

	// Aggregate
	AggFunc   AggFunc
	AggColumn string
	Filter    *Query
}

func MatchAll() Query { return Query{Kind: KindMatchAll} }

func Condition(column string, op Op, value types.Value) Query {
	return Query{Kind: KindCondition, Column: column, Op: op, Value: value}
}

func And(children ...Query) Query { return Query{Kind: KindAnd, Children: children} }
func Or(children ...Query) Query  { return Query{Kind: KindOr, Children: children} }

func Join(joinType JoinType, targetTable, leftColumn, rightColumn string) Query {
	return Query{
		Kind:        KindJoin,
		JoinType:    joinType,
		TargetTable: targetTable,
		LeftColumn:  leftColumn,
		RightColumn: rightColumn,
	}
}

func Aggregate(fn AggFunc, column string, filter *Query) Query {
	return Query{Kind: KindAggregate, AggFunc: fn, AggColumn: column, Filter: filter}
}
