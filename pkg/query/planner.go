package query

import "sort"

// unsupportedCost is the sentinel cost assigned to any node the planner does
// not know how to reorder (spec §4.5): joins, aggregates, and nested And/Or
// nodes, whose branches must all be evaluated regardless of order.
const unsupportedCost = 1 << 30

// IndexedFunc reports whether column has a secondary index, used by the
// planner to prefer cheap leaves first within a conjunction.
type IndexedFunc func(column string) bool

// Plan rewrites q so that every And node's children are sorted ascending by
// estimated cost (1 for an indexed Condition or MatchAll, 10 for an
// unindexed Condition, a high sentinel for anything else). Or children are left in place because disjunctions
// must evaluate every branch. Joins and aggregates pass through unchanged,
// though their Filter/nested queries are still planned.
func Plan(q Query, indexed IndexedFunc) Query {
	switch q.Kind {
	case KindAnd:
		children := make([]Query, len(q.Children))
		for i, c := range q.Children {
			children[i] = Plan(c, indexed)
		}
		sort.SliceStable(children, func(i, j int) bool {
			return cost(children[i], indexed) < cost(children[j], indexed)
		})
		return Query{Kind: KindAnd, Children: children}
	case KindOr:
		children := make([]Query, len(q.Children))
		for i, c := range q.Children {
			children[i] = Plan(c, indexed)
		}
		return Query{Kind: KindOr, Children: children}
	case KindAggregate:
		planned := q
		if q.Filter != nil {
			f := Plan(*q.Filter, indexed)
			planned.Filter = &f
		}
		return planned
	default:
		return q
	}
}

// cost estimates the relative selectivity of evaluating node first within a
// conjunction.
func cost(q Query, indexed IndexedFunc) int {
	switch q.Kind {
	case KindCondition:
		if indexed != nil && indexed(q.Column) {
			return 1
		}
		return 10
	case KindMatchAll:
		return 1
	default:
		return unsupportedCost
	}
}
