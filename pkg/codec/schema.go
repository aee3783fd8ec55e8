package codec

import (
	tabulaerrors "github.com/kesh-dev/tabula/pkg/errors"
	"github.com/kesh-dev/tabula/pkg/types"
	"go.mongodb.org/mongo-driver/v2/bson"
)

// columnDoc/constraintDoc mirror types.Column/types.Constraint for BSON
// round-tripping via struct tags, since schema metadata has no variant
// ambiguity the way row Values do.
type constraintDoc struct {
	Kind             int    `bson:"kind"`
	ReferencedTable  string `bson:"ref_table,omitempty"`
	ReferencedColumn string `bson:"ref_column,omitempty"`
}

type columnDoc struct {
	Name        string          `bson:"name"`
	Type        int             `bson:"type"`
	Constraints []constraintDoc `bson:"constraints"`
}

// EncodeColumns renders an ordered column list to BSON, preserving order
// (column order is semantically significant and is not sorted).
func EncodeColumns(cols []types.Column) (bson.A, error) {
	out := make(bson.A, 0, len(cols))
	for _, c := range cols {
		cs := make([]constraintDoc, 0, len(c.Constraints))
		for _, con := range c.Constraints {
			cs = append(cs, constraintDoc{
				Kind:             int(con.Kind),
				ReferencedTable:  con.ReferencedTable,
				ReferencedColumn: con.ReferencedColumn,
			})
		}
		out = append(out, columnDoc{Name: c.Name, Type: int(c.Type), Constraints: cs})
	}
	return out, nil
}

// DecodeColumns reverses EncodeColumns.
func DecodeColumns(raw bson.A) ([]types.Column, error) {
	cols := make([]types.Column, 0, len(raw))
	for _, item := range raw {
		data, err := bson.Marshal(item)
		if err != nil {
			return nil, tabulaerrors.Codec(err, "re-marshal column document")
		}
		var cd columnDoc
		if err := bson.Unmarshal(data, &cd); err != nil {
			return nil, tabulaerrors.Codec(err, "decode column document")
		}
		constraints := make([]types.Constraint, 0, len(cd.Constraints))
		for _, con := range cd.Constraints {
			constraints = append(constraints, types.Constraint{
				Kind:             types.ConstraintKind(con.Kind),
				ReferencedTable:  con.ReferencedTable,
				ReferencedColumn: con.ReferencedColumn,
			})
		}
		cols = append(cols, types.Column{
			Name:        cd.Name,
			Type:        types.DataType(cd.Type),
			Constraints: constraints,
		})
	}
	return cols, nil
}
