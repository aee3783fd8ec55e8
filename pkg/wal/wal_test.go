package wal_test

import (
	"io"
	"os"
	"path/filepath"
	"testing"

	"github.com/kesh-dev/tabula/pkg/types"
	"github.com/kesh-dev/tabula/pkg/wal"
	"github.com/stretchr/testify/require"
)

func readFile(path string) ([]byte, error)          { return os.ReadFile(path) }
func writeFile(path string, data []byte) error       { return os.WriteFile(path, data, 0644) }

func TestWriterReaderRoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "wal.log")

	w, err := wal.NewWriter(path, wal.DefaultOptions())
	require.NoError(t, err)

	payload, err := wal.EncodeInsert("users", types.Row{"id": types.Int(1)})
	require.NoError(t, err)

	entry := wal.NewEntry(wal.EntryInsert, 1, payload)
	require.NoError(t, w.WriteEntry(entry))
	wal.ReleaseEntry(entry)
	require.NoError(t, w.Close())

	r, err := wal.NewReader(path)
	require.NoError(t, err)
	defer r.Close()

	got, err := r.ReadEntry()
	require.NoError(t, err)
	require.Equal(t, wal.EntryInsert, got.Header.EntryType)
	require.Equal(t, uint64(1), got.Header.LSN)

	record, err := wal.DecodeInsert(got.Payload)
	require.NoError(t, err)
	require.Equal(t, "users", record.Table)
	require.True(t, record.Row["id"].Equal(types.Int(1)))

	_, err = r.ReadEntry()
	require.ErrorIs(t, err, io.EOF)
}

func TestReaderDetectsChecksumCorruption(t *testing.T) {
	path := filepath.Join(t.TempDir(), "wal.log")

	w, err := wal.NewWriter(path, wal.DefaultOptions())
	require.NoError(t, err)
	payload, err := wal.EncodeInsert("users", types.Row{"id": types.Int(1)})
	require.NoError(t, err)
	entry := wal.NewEntry(wal.EntryInsert, 1, payload)
	require.NoError(t, w.WriteEntry(entry))
	require.NoError(t, w.Close())

	raw, err := readFile(path)
	require.NoError(t, err)
	raw[wal.HeaderSize] ^= 0xFF // flip a payload byte, leaving the stored CRC stale
	require.NoError(t, writeFile(path, raw))

	r, err := wal.NewReader(path)
	require.NoError(t, err)
	defer r.Close()

	_, err = r.ReadEntry()
	require.Error(t, err)
}

func TestTruncateResetsWALToEmpty(t *testing.T) {
	path := filepath.Join(t.TempDir(), "wal.log")

	w, err := wal.NewWriter(path, wal.DefaultOptions())
	require.NoError(t, err)
	payload, err := wal.EncodeInsert("users", types.Row{"id": types.Int(1)})
	require.NoError(t, err)
	entry := wal.NewEntry(wal.EntryInsert, 1, payload)
	require.NoError(t, w.WriteEntry(entry))
	require.NoError(t, w.Truncate())
	require.NoError(t, w.Close())

	r, err := wal.NewReader(path)
	require.NoError(t, err)
	defer r.Close()

	_, err = r.ReadEntry()
	require.ErrorIs(t, err, io.EOF)
}

func TestCreateTableRecordRoundTrip(t *testing.T) {
	cols := []types.Column{
		{Name: "id", Type: types.DataTypeInt, Constraints: []types.Constraint{types.NotNull()}},
	}
	payload, err := wal.EncodeCreateTable("users", cols)
	require.NoError(t, err)

	record, err := wal.DecodeCreateTable(payload)
	require.NoError(t, err)
	require.Equal(t, "users", record.Table)
	require.Len(t, record.Columns, 1)
	require.True(t, record.Columns[0].HasConstraint(types.ConstraintNotNull))
}
