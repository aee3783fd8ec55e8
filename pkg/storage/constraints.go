package storage

import (
	tabulaerrors "github.com/kesh-dev/tabula/pkg/errors"
	"github.com/kesh-dev/tabula/pkg/types"
)

// checkConstraints validates row against t's schema in NotNull -> Unique ->
// ForeignKey order (spec §4.4). excludePos is the position of the row being
// updated, so a Unique check does not reject a row against its own prior
// value; pass -1 for inserts.
func (t *Table) checkConstraints(row types.Row, excludePos int, resolve func(table, column string, value types.Value) (bool, error)) error {
	for _, col := range t.Columns {
		value, present := row[col.Name]
		if !present {
			value = types.Null()
		}

		if col.HasConstraint(types.ConstraintNotNull) && value.IsNull() {
			return tabulaerrors.ConstraintViolation("column %q on table %q must not be null", col.Name, t.Name)
		}

		if !value.MatchesDataType(col.Type) {
			return tabulaerrors.SchemaMismatch("column %q on table %q declared %v, got value %s", col.Name, t.Name, col.Type, value.String())
		}
	}

	for _, col := range t.Columns {
		if !col.HasConstraint(types.ConstraintUnique) {
			continue
		}
		value, present := row[col.Name]
		if !present || value.IsNull() {
			continue
		}
		for pos, other := range t.Rows {
			if pos == excludePos {
				continue
			}
			if other[col.Name].Equal(value) {
				return tabulaerrors.ConstraintViolation("column %q on table %q must be unique: %s", col.Name, t.Name, value.String())
			}
		}
	}

	for _, col := range t.Columns {
		fk, ok := col.ForeignKeyConstraint()
		if !ok {
			continue
		}
		value, present := row[col.Name]
		if !present || value.IsNull() {
			continue
		}
		if resolve == nil {
			return tabulaerrors.Unsupported("foreign key on column %q requires a resolver", col.Name)
		}
		found, err := resolve(fk.ReferencedTable, fk.ReferencedColumn, value)
		if err != nil {
			return err
		}
		if !found {
			return tabulaerrors.ConstraintViolation(
				"column %q on table %q references missing %s.%s = %s",
				col.Name, t.Name, fk.ReferencedTable, fk.ReferencedColumn, value.String())
		}
	}

	return nil
}
