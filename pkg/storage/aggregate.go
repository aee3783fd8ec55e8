package storage

import (
	tabulaerrors "github.com/kesh-dev/tabula/pkg/errors"
	"github.com/kesh-dev/tabula/pkg/query"
	"github.com/kesh-dev/tabula/pkg/types"
)

// Aggregate computes q (a KindAggregate query) against t, applying q.Filter
// first if present (spec §4.7). Count/Sum/Avg return 0 over an empty input;
// Min/Max return an error, since there is no identity value for them.
func (t *Table) Aggregate(q query.Query) (types.Value, error) {
	t.mu.RLock()
	defer t.mu.RUnlock()

	var positions []int
	if q.Filter != nil {
		p, err := t.evalLocked(*q.Filter)
		if err != nil {
			return types.Value{}, err
		}
		positions = p
	} else {
		positions = make([]int, len(t.Rows))
		for i := range t.Rows {
			positions[i] = i
		}
	}

	switch q.AggFunc {
	case query.Count:
		return types.Int(int64(t.countPresent(positions, q.AggColumn))), nil
	case query.Sum:
		sum, _ := t.numericFold(positions, q.AggColumn, 0, func(acc, v float64) float64 { return acc + v })
		return types.Float(sum), nil
	case query.Avg:
		if len(positions) == 0 {
			return types.Float(0), nil
		}
		sum, count := t.numericFold(positions, q.AggColumn, 0, func(acc, v float64) float64 { return acc + v })
		if count == 0 {
			return types.Float(0), nil
		}
		return types.Float(sum / float64(count)), nil
	case query.Min:
		return t.extreme(positions, q.AggColumn, -1)
	case query.Max:
		return t.extreme(positions, q.AggColumn, 1)
	default:
		return types.Value{}, tabulaerrors.Unsupported("aggregate function %v", q.AggFunc)
	}
}

// countPresent counts positions whose row actually carries column, mirroring
// the presence check numericFold applies to Sum/Avg (spec §4.6: "Count
// returns the integer count of rows whose column entry exists").
func (t *Table) countPresent(positions []int, column string) int {
	count := 0
	for _, pos := range positions {
		if _, ok := t.Rows[pos][column]; ok {
			count++
		}
	}
	return count
}

// numericFold folds every non-null numeric value at column across positions,
// returning the accumulated value and how many values were folded.
func (t *Table) numericFold(positions []int, column string, init float64, fn func(acc, v float64) float64) (float64, int) {
	acc := init
	count := 0
	for _, pos := range positions {
		v, ok := t.Rows[pos][column].Numeric()
		if !ok {
			continue
		}
		acc = fn(acc, v)
		count++
	}
	return acc, count
}

// extreme returns the min (sign=-1) or max (sign=1) value at column across
// positions, comparing within whatever variant the first non-null value
// holds; cross-variant rows are skipped since they are incomparable.
func (t *Table) extreme(positions []int, column string, sign int) (types.Value, error) {
	var best *types.Value
	for _, pos := range positions {
		v := t.Rows[pos][column]
		if v.IsNull() {
			continue
		}
		if best == nil {
			b := v
			best = &b
			continue
		}
		cmp := v.Compare(*best)
		if cmp == types.Incomparable {
			continue
		}
		if cmp*sign > 0 {
			b := v
			best = &b
		}
	}
	if best == nil {
		return types.Value{}, tabulaerrors.NotFound("no values to aggregate in column %q", column)
	}
	return *best, nil
}
