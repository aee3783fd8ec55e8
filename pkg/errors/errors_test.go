package errors_test

import (
	"errors"
	"testing"

	tabulaerrors "github.com/kesh-dev/tabula/pkg/errors"
	"github.com/stretchr/testify/require"
)

func TestErrorsIsMatchesByKindOnly(t *testing.T) {
	err := tabulaerrors.NotFound("table %q", "users")
	require.True(t, errors.Is(err, tabulaerrors.ErrNotFound))
	require.False(t, errors.Is(err, tabulaerrors.ErrAlreadyExists))
}

func TestKindOfIgnoresErrorsThatOnlyCopyTheMessage(t *testing.T) {
	base := tabulaerrors.ConstraintViolation("unique column %q", "email")
	wrapped := errors.New("outer: " + base.Error())

	_, ok := tabulaerrors.KindOf(wrapped)
	require.False(t, ok, "plain errors.New does not carry a Kind")

	kind, ok := tabulaerrors.KindOf(base)
	require.True(t, ok)
	require.Equal(t, tabulaerrors.ConstraintViolationKind, kind)
}

func TestCauseIsPreservedAndUnwrappable(t *testing.T) {
	cause := errors.New("disk full")
	err := tabulaerrors.Io(cause, "write wal segment")

	require.ErrorIs(t, err, cause)
	require.Contains(t, err.Error(), "disk full")
}

func TestKindStringsAreDistinct(t *testing.T) {
	kinds := []tabulaerrors.Kind{
		tabulaerrors.NotFoundKind, tabulaerrors.AlreadyExistsKind, tabulaerrors.SchemaMismatchKind,
		tabulaerrors.ConstraintViolationKind, tabulaerrors.IoKind, tabulaerrors.CodecKind,
		tabulaerrors.CryptoKind, tabulaerrors.IntegrityMismatchKind, tabulaerrors.UnsupportedKind,
	}
	seen := make(map[string]bool)
	for _, k := range kinds {
		require.False(t, seen[k.String()], "duplicate Kind string: %s", k)
		seen[k.String()] = true
	}
}
