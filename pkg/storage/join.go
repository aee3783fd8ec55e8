package storage

import (
	"github.com/kesh-dev/tabula/pkg/query"
	"github.com/kesh-dev/tabula/pkg/types"
)

// Join materializes an equi-join between left's rows at leftPositions and
// right's full row set, joining on leftColumn = rightColumn (spec §4.6).
// For LeftJoin/RightJoin, unmatched rows on the preserved side are padded
// with Null for every column of the other side. On a key collision (more
// than one match), every matching pair is emitted; spec §9 resolves ties
// within a single merged row by letting the right row's columns win. This
// holds for every join type, including a LeftJoin row padded with Nulls,
// where the Null placeholder replaces the left row's value for any column
// name both tables share.
func Join(left *Table, leftPositions []int, right *Table, jt query.JoinType, leftColumn, rightColumn string) ([]types.Row, error) {
	left.mu.RLock()
	right.mu.RLock()
	defer left.mu.RUnlock()
	defer right.mu.RUnlock()

	rightByKey := make(map[uint64][]int)
	for pos, row := range right.Rows {
		key := row[rightColumn]
		h := key.Hash()
		rightByKey[h] = append(rightByKey[h], pos)
	}

	matchRight := func(leftRow types.Row) []int {
		key := leftRow[leftColumn]
		var matched []int
		for _, pos := range rightByKey[key.Hash()] {
			if right.Rows[pos][rightColumn].Equal(key) {
				matched = append(matched, pos)
			}
		}
		return matched
	}

	var out []types.Row

	switch jt {
	case query.InnerJoin, query.LeftJoin:
		for _, lpos := range leftPositions {
			leftRow := left.Rows[lpos]
			matched := matchRight(leftRow)
			if len(matched) == 0 {
				if jt == query.LeftJoin {
					out = append(out, mergeRows(leftRow, nullRow(right.Columns)))
				}
				continue
			}
			for _, rpos := range matched {
				out = append(out, mergeRows(leftRow, right.Rows[rpos]))
			}
		}
	case query.RightJoin:
		leftSet := make(map[int]bool, len(leftPositions))
		for _, p := range leftPositions {
			leftSet[p] = true
		}
		for _, rightRow := range right.Rows {
			var matched []int
			key := rightRow[rightColumn]
			for lpos := range leftSet {
				if left.Rows[lpos][leftColumn].Equal(key) {
					matched = append(matched, lpos)
				}
			}
			if len(matched) == 0 {
				out = append(out, mergeRows(nullRow(left.Columns), rightRow))
				continue
			}
			for _, lpos := range matched {
				out = append(out, mergeRows(left.Rows[lpos], rightRow))
			}
		}
	}

	return out, nil
}

// mergeRows combines left and right into one row; on a shared column name,
// right's value wins (spec §9).
func mergeRows(left, right types.Row) types.Row {
	merged := make(types.Row, len(left)+len(right))
	for k, v := range left {
		merged[k] = v
	}
	for k, v := range right {
		merged[k] = v
	}
	return merged
}

func nullRow(columns []types.Column) types.Row {
	row := make(types.Row, len(columns))
	for _, c := range columns {
		row[c.Name] = types.Null()
	}
	return row
}
