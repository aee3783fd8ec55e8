package types_test

import (
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/kesh-dev/tabula/pkg/types"
	"github.com/stretchr/testify/require"
)

func TestEqualAcrossVariantsIsAlwaysFalse(t *testing.T) {
	require.False(t, types.Int(1).Equal(types.String("1")))
	require.False(t, types.Null().Equal(types.Int(0)))
}

func TestFloatEqualityUsesEpsilon(t *testing.T) {
	a := types.Float(1.0000000001)
	b := types.Float(1.0000000002)
	require.True(t, a.Equal(b))
	require.False(t, a.Equal(types.Float(1.1)))
}

func TestCompareCrossVariantIsIncomparable(t *testing.T) {
	require.Equal(t, types.Incomparable, types.Int(1).Compare(types.String("1")))
}

func TestCompareOrdersWithinVariant(t *testing.T) {
	require.Equal(t, -1, types.Int(1).Compare(types.Int(2)))
	require.Equal(t, 1, types.String("b").Compare(types.String("a")))
	require.Equal(t, 0, types.Bool(true).Compare(types.Bool(true)))
	require.Equal(t, -1, types.Bool(false).Compare(types.Bool(true)))
}

func TestTimestampStoredAsUTC(t *testing.T) {
	loc := time.FixedZone("UTC+3", 3*60*60)
	local := time.Date(2024, 1, 1, 12, 0, 0, 0, loc)
	v := types.Timestamp(local)
	require.Equal(t, time.UTC, v.AsTimestamp().Location())
	require.True(t, v.AsTimestamp().Equal(local))
}

func TestUUIDRoundTrip(t *testing.T) {
	id := uuid.New()
	v := types.UUID(id)
	require.Equal(t, id, v.AsUUID())
}

func TestJSONCanonicalizesKeyOrder(t *testing.T) {
	a, err := types.JSON([]byte(`{"b":1,"a":2}`))
	require.NoError(t, err)
	b, err := types.JSON([]byte(`{"a":2,"b":1}`))
	require.NoError(t, err)
	require.True(t, a.Equal(b))
}

func TestJSONRejectsInvalidDocument(t *testing.T) {
	_, err := types.JSON([]byte(`{not json`))
	require.Error(t, err)
}

func TestHashIsStableAndVariantTagged(t *testing.T) {
	require.Equal(t, types.Int(1).Hash(), types.Int(1).Hash())
	require.NotEqual(t, types.Int(1).Hash(), types.String("1").Hash())
}

func TestNumericWidensIntAndFloat(t *testing.T) {
	f, ok := types.Int(3).Numeric()
	require.True(t, ok)
	require.Equal(t, 3.0, f)

	_, ok = types.String("x").Numeric()
	require.False(t, ok)
}

func TestMatchesDataType(t *testing.T) {
	require.True(t, types.Int(1).MatchesDataType(types.DataTypeInt))
	require.False(t, types.Int(1).MatchesDataType(types.DataTypeString))
	require.True(t, types.Null().MatchesDataType(types.DataTypeString))
}
