package storage_test

import (
	"testing"

	"github.com/kesh-dev/tabula/pkg/query"
	"github.com/kesh-dev/tabula/pkg/storage"
	"github.com/kesh-dev/tabula/pkg/types"
	"github.com/stretchr/testify/require"
)

func usersColumns() []types.Column {
	return []types.Column{
		{Name: "id", Type: types.DataTypeInt, Constraints: []types.Constraint{types.NotNull(), types.Unique()}},
		{Name: "name", Type: types.DataTypeString, Constraints: []types.Constraint{types.NotNull()}},
		{Name: "age", Type: types.DataTypeInt},
	}
}

func newMemoryDB(t *testing.T) *storage.Database {
	t.Helper()
	db, err := storage.NewDatabase(storage.Options{})
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	return db
}

func TestCreateTableAndInsertSelect(t *testing.T) {
	db := newMemoryDB(t)
	require.NoError(t, db.CreateTable("users", usersColumns()))

	require.NoError(t, db.Insert("users", types.Row{"id": types.Int(1), "name": types.String("ada"), "age": types.Int(30)}))
	require.NoError(t, db.Insert("users", types.Row{"id": types.Int(2), "name": types.String("bob"), "age": types.Int(25)}))

	rows, err := db.Select("users", query.MatchAll())
	require.NoError(t, err)
	require.Len(t, rows, 2)
}

func TestUniqueConstraintRejectsDuplicate(t *testing.T) {
	db := newMemoryDB(t)
	require.NoError(t, db.CreateTable("users", usersColumns()))
	require.NoError(t, db.Insert("users", types.Row{"id": types.Int(1), "name": types.String("ada"), "age": types.Int(30)}))

	err := db.Insert("users", types.Row{"id": types.Int(1), "name": types.String("eve"), "age": types.Int(22)})
	require.Error(t, err)
}

func TestNotNullConstraintRejectsNull(t *testing.T) {
	db := newMemoryDB(t)
	require.NoError(t, db.CreateTable("users", usersColumns()))

	err := db.Insert("users", types.Row{"id": types.Int(1), "age": types.Int(22)})
	require.Error(t, err)
}

func TestForeignKeyConstraintEnforced(t *testing.T) {
	db := newMemoryDB(t)
	require.NoError(t, db.CreateTable("users", usersColumns()))
	require.NoError(t, db.CreateTable("posts", []types.Column{
		{Name: "id", Type: types.DataTypeInt},
		{Name: "author_id", Type: types.DataTypeInt, Constraints: []types.Constraint{types.ForeignKey("users", "id")}},
	}))

	err := db.Insert("posts", types.Row{"id": types.Int(1), "author_id": types.Int(99)})
	require.Error(t, err)

	require.NoError(t, db.Insert("users", types.Row{"id": types.Int(1), "name": types.String("ada"), "age": types.Int(30)}))
	require.NoError(t, db.Insert("posts", types.Row{"id": types.Int(1), "author_id": types.Int(1)}))
}

func TestIndexedAndNonIndexedSelectAgree(t *testing.T) {
	db := newMemoryDB(t)
	require.NoError(t, db.CreateTable("users", usersColumns()))
	require.NoError(t, db.Insert("users", types.Row{"id": types.Int(1), "name": types.String("ada"), "age": types.Int(30)}))
	require.NoError(t, db.Insert("users", types.Row{"id": types.Int(2), "name": types.String("bob"), "age": types.Int(25)}))
	require.NoError(t, db.Insert("users", types.Row{"id": types.Int(3), "name": types.String("cid"), "age": types.Int(30)}))

	rowsBefore, err := db.Select("users", query.Condition("age", query.Eq, types.Int(30)))
	require.NoError(t, err)
	require.Len(t, rowsBefore, 2)

	require.NoError(t, db.CreateIndex("users", "age"))

	rowsAfter, err := db.Select("users", query.Condition("age", query.Eq, types.Int(30)))
	require.NoError(t, err)
	require.Len(t, rowsAfter, 2)
}

func TestAndOrConjunctionsEvaluate(t *testing.T) {
	db := newMemoryDB(t)
	require.NoError(t, db.CreateTable("users", usersColumns()))
	require.NoError(t, db.Insert("users", types.Row{"id": types.Int(1), "name": types.String("ada"), "age": types.Int(30)}))
	require.NoError(t, db.Insert("users", types.Row{"id": types.Int(2), "name": types.String("bob"), "age": types.Int(25)}))

	andQ := query.And(
		query.Condition("name", query.Eq, types.String("ada")),
		query.Condition("age", query.Gte, types.Int(18)),
	)
	rows, err := db.Select("users", andQ)
	require.NoError(t, err)
	require.Len(t, rows, 1)

	orQ := query.Or(
		query.Condition("name", query.Eq, types.String("ada")),
		query.Condition("name", query.Eq, types.String("bob")),
	)
	rows, err = db.Select("users", orQ)
	require.NoError(t, err)
	require.Len(t, rows, 2)
}

func TestUpdateAndDelete(t *testing.T) {
	db := newMemoryDB(t)
	require.NoError(t, db.CreateTable("users", usersColumns()))
	require.NoError(t, db.Insert("users", types.Row{"id": types.Int(1), "name": types.String("ada"), "age": types.Int(30)}))

	err := db.Update("users", query.Condition("id", query.Eq, types.Int(1)), func(r types.Row) types.Row {
		r["age"] = types.Int(31)
		return r
	})
	require.NoError(t, err)

	rows, err := db.Select("users", query.Condition("id", query.Eq, types.Int(1)))
	require.NoError(t, err)
	require.True(t, rows[0]["age"].Equal(types.Int(31)))

	require.NoError(t, db.Delete("users", query.Condition("id", query.Eq, types.Int(1))))

	rows, err = db.Select("users", query.MatchAll())
	require.NoError(t, err)
	require.Empty(t, rows)
}

func TestInnerLeftRightJoin(t *testing.T) {
	db := newMemoryDB(t)
	require.NoError(t, db.CreateTable("users", []types.Column{
		{Name: "id", Type: types.DataTypeInt},
		{Name: "name", Type: types.DataTypeString},
	}))
	require.NoError(t, db.CreateTable("posts", []types.Column{
		{Name: "id", Type: types.DataTypeInt},
		{Name: "author_id", Type: types.DataTypeInt},
	}))

	require.NoError(t, db.Insert("users", types.Row{"id": types.Int(1), "name": types.String("ada")}))
	require.NoError(t, db.Insert("users", types.Row{"id": types.Int(2), "name": types.String("bob")}))
	require.NoError(t, db.Insert("posts", types.Row{"id": types.Int(10), "author_id": types.Int(1)}))

	joinQ := query.Join(query.InnerJoin, "posts", "id", "author_id")
	rows, err := db.Join("users", query.MatchAll(), joinQ)
	require.NoError(t, err)
	require.Len(t, rows, 1)

	leftRows, err := db.Join("users", query.MatchAll(), query.Join(query.LeftJoin, "posts", "id", "author_id"))
	require.NoError(t, err)
	require.Len(t, leftRows, 2)

	rightRows, err := db.Join("users", query.MatchAll(), query.Join(query.RightJoin, "posts", "id", "author_id"))
	require.NoError(t, err)
	require.Len(t, rightRows, 1)
}

func TestAggregates(t *testing.T) {
	db := newMemoryDB(t)
	require.NoError(t, db.CreateTable("users", usersColumns()))
	require.NoError(t, db.Insert("users", types.Row{"id": types.Int(1), "name": types.String("ada"), "age": types.Int(30)}))
	require.NoError(t, db.Insert("users", types.Row{"id": types.Int(2), "name": types.String("bob"), "age": types.Int(20)}))

	count, err := db.Aggregate("users", query.Aggregate(query.Count, "id", nil))
	require.NoError(t, err)
	require.Equal(t, int64(2), count.AsInt())

	sum, err := db.Aggregate("users", query.Aggregate(query.Sum, "age", nil))
	require.NoError(t, err)
	require.Equal(t, 50.0, sum.AsFloat())

	avg, err := db.Aggregate("users", query.Aggregate(query.Avg, "age", nil))
	require.NoError(t, err)
	require.Equal(t, 25.0, avg.AsFloat())

	min, err := db.Aggregate("users", query.Aggregate(query.Min, "age", nil))
	require.NoError(t, err)
	require.True(t, min.Equal(types.Int(20)))

	max, err := db.Aggregate("users", query.Aggregate(query.Max, "age", nil))
	require.NoError(t, err)
	require.True(t, max.Equal(types.Int(30)))
}

func TestAggregateOnEmptyTable(t *testing.T) {
	db := newMemoryDB(t)
	require.NoError(t, db.CreateTable("users", usersColumns()))

	count, err := db.Aggregate("users", query.Aggregate(query.Count, "id", nil))
	require.NoError(t, err)
	require.Equal(t, int64(0), count.AsInt())

	_, err = db.Aggregate("users", query.Aggregate(query.Min, "age", nil))
	require.Error(t, err)
}

func TestTransactionRollbackLeavesNoTrace(t *testing.T) {
	db := newMemoryDB(t)
	require.NoError(t, db.CreateTable("users", usersColumns()))
	require.NoError(t, db.Insert("users", types.Row{"id": types.Int(1), "name": types.String("ada"), "age": types.Int(30)}))

	tx := db.BeginTransaction()
	require.NoError(t, tx.Insert("users", types.Row{"id": types.Int(2), "name": types.String("bob"), "age": types.Int(20)}))
	require.NoError(t, tx.Rollback())

	rows, err := db.Select("users", query.MatchAll())
	require.NoError(t, err)
	require.Len(t, rows, 1)
}

func TestTransactionCommitAppliesAllOrNothing(t *testing.T) {
	db := newMemoryDB(t)
	require.NoError(t, db.CreateTable("users", usersColumns()))
	require.NoError(t, db.Insert("users", types.Row{"id": types.Int(1), "name": types.String("ada"), "age": types.Int(30)}))

	tx := db.BeginTransaction()
	require.NoError(t, tx.Insert("users", types.Row{"id": types.Int(2), "name": types.String("bob"), "age": types.Int(20)}))
	require.NoError(t, tx.Insert("users", types.Row{"id": types.Int(1), "name": types.String("dup"), "age": types.Int(1)})) // violates unique id

	err := tx.Commit()
	require.Error(t, err)

	rows, err := db.Select("users", query.MatchAll())
	require.NoError(t, err)
	require.Len(t, rows, 1, "a failed commit must not apply any buffered operation")
}

func TestVerifyIntegrityDetectsNoMismatchOnUntouchedTable(t *testing.T) {
	db := newMemoryDB(t)
	require.NoError(t, db.CreateTable("users", usersColumns()))
	require.NoError(t, db.Insert("users", types.Row{"id": types.Int(1), "name": types.String("ada"), "age": types.Int(30)}))

	require.NoError(t, db.VerifyIntegrity())
	require.NoError(t, db.VerifyTable("users"))
}
