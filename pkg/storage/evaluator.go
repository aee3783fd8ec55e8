package storage

import (
	"sort"

	tabulaerrors "github.com/kesh-dev/tabula/pkg/errors"
	"github.com/kesh-dev/tabula/pkg/query"
	"github.com/kesh-dev/tabula/pkg/types"
)

// matches reports whether value satisfies op against target, mirroring the
// teacher's ScanCondition.Matches. Incomparable cross-variant pairs never
// satisfy any operator, including NotEq (spec §9: "a predicate across
// variants simply evaluates to false").
func matches(value types.Value, op query.Op, target types.Value) bool {
	cmp := value.Compare(target)
	if cmp == types.Incomparable {
		return false
	}
	switch op {
	case query.Eq:
		return cmp == 0
	case query.NotEq:
		return cmp != 0
	case query.Gt:
		return cmp > 0
	case query.Gte:
		return cmp >= 0
	case query.Lt:
		return cmp < 0
	case query.Lte:
		return cmp <= 0
	default:
		return false
	}
}

// Eval runs q (already planned or not) against t and returns the matching
// row positions in ascending order.
func (t *Table) Eval(q query.Query) ([]int, error) {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return t.evalLocked(q)
}

func (t *Table) evalLocked(q query.Query) ([]int, error) {
	switch q.Kind {
	case query.KindMatchAll:
		all := make([]int, len(t.Rows))
		for i := range t.Rows {
			all[i] = i
		}
		return all, nil
	case query.KindCondition:
		return t.evalConditionLocked(q)
	case query.KindAnd:
		return t.evalAndLocked(q.Children)
	case query.KindOr:
		return t.evalOrLocked(q.Children)
	default:
		return nil, tabulaerrors.Unsupported("query kind %v cannot be evaluated directly against a table", q.Kind)
	}
}

// evalConditionLocked prefers an index seek when the column is indexed and
// the operator supports it (Eq/Gt/Gte benefit from starting at the key;
// NotEq/Lt/Lte fall back to a full scan since they need keys the index
// iterates past or never reaches from a single seek point). A Null target
// also scans, because the index files rows lacking the column under Null; a
// row that lacks the column never matches.
func (t *Table) evalConditionLocked(q query.Query) ([]int, error) {
	if idx, ok := t.indexFor(q.Column); ok && !q.Value.IsNull() {
		switch q.Op {
		case query.Eq:
			positions, _ := idx.Get(q.Value)
			out := append([]int(nil), positions...)
			sort.Ints(out)
			return out, nil
		case query.Gt, query.Gte:
			var out []int
			start := q.Value
			idx.Range(&start, func(key types.Value, positions []int) bool {
				if matches(key, q.Op, q.Value) {
					out = append(out, positions...)
				}
				return true
			})
			sort.Ints(out)
			return out, nil
		}
	}

	var out []int
	for pos, row := range t.Rows {
		if v, present := row[q.Column]; present && matches(v, q.Op, q.Value) {
			out = append(out, pos)
		}
	}
	return out, nil
}

// evalAndLocked intersects children's position sets, starting from the
// smallest to minimize comparisons (mirrors the planner's cost ordering,
// but re-derives the smallest set directly in case children weren't
// planned). An empty conjunction matches every row, same as MatchAll.
func (t *Table) evalAndLocked(children []query.Query) ([]int, error) {
	if len(children) == 0 {
		return t.evalLocked(query.MatchAll())
	}

	sets := make([][]int, len(children))
	for i, c := range children {
		s, err := t.evalLocked(c)
		if err != nil {
			return nil, err
		}
		sets[i] = s
	}

	sort.Slice(sets, func(i, j int) bool { return len(sets[i]) < len(sets[j]) })

	result := toSet(sets[0])
	for _, s := range sets[1:] {
		next := toSet(s)
		for pos := range result {
			if !next[pos] {
				delete(result, pos)
			}
		}
	}
	return sortedKeys(result), nil
}

// evalOrLocked unions children's position sets and returns them sorted.
func (t *Table) evalOrLocked(children []query.Query) ([]int, error) {
	result := make(map[int]bool)
	for _, c := range children {
		s, err := t.evalLocked(c)
		if err != nil {
			return nil, err
		}
		for _, pos := range s {
			result[pos] = true
		}
	}
	return sortedKeys(result), nil
}

func toSet(positions []int) map[int]bool {
	s := make(map[int]bool, len(positions))
	for _, p := range positions {
		s[p] = true
	}
	return s
}

func sortedKeys(s map[int]bool) []int {
	out := make([]int, 0, len(s))
	for pos := range s {
		out = append(out, pos)
	}
	sort.Ints(out)
	return out
}
