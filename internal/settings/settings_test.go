package settings

import (
	"math"
	"testing"

	"github.com/stretchr/testify/require"

	ferrors "git.home.luguber.info/inful/stepd-host/internal/foundation/errors"
)

func TestSnapshotIsIsolated(t *testing.T) {
	src := map[string]any{KeyPort: "/dev/ttyACM0"}
	s := Snapshot(src)
	src[KeyPort] = "/dev/null"

	require.Equal(t, "/dev/ttyACM0", s.String(KeyPort))

	m := s.Map()
	m[KeyPort] = "changed"
	require.Equal(t, "/dev/ttyACM0", s.String(KeyPort))
}

func TestDefaultsApplyToMissingKeys(t *testing.T) {
	var s Settings
	require.Equal(t, "SP_4x2_256", s.String(KeyFormat))

	baud, err := s.Int(KeyBaud)
	require.NoError(t, err)
	require.Equal(t, 500000, baud)

	jerk, err := s.FloatList(KeyJerk)
	require.NoError(t, err)
	require.Equal(t, []float64{1e8, 1e7, 1e6, 1e10}, jerk)
}

func TestIntAcceptsNumericForms(t *testing.T) {
	cases := []struct {
		name string
		in   any
		want int
	}{
		{"int", 61440, 61440},
		{"float", float64(200), 200},
		{"string", " 250000 ", 250000},
		{"exponent string", "6.144e4", 61440},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			got, err := Snapshot(map[string]any{KeyTickRate: tc.in}).Int(KeyTickRate)
			require.NoError(t, err)
			require.Equal(t, tc.want, got)
		})
	}
}

func TestMalformedValuesNameTheField(t *testing.T) {
	_, err := Snapshot(map[string]any{KeyBedX: "wide"}).Int(KeyBedX)
	require.Error(t, err)
	ce, ok := ferrors.AsClassified(err)
	require.True(t, ok)
	require.Equal(t, ferrors.CategoryConfig, ce.Category())
	field, _ := ce.Context().GetString("field")
	require.Equal(t, KeyBedX, field)

	_, err = Snapshot(map[string]any{KeyJerk: "1e8,,1e6"}).FloatList(KeyJerk)
	require.Error(t, err)
	require.True(t, ferrors.HasCategory(err, ferrors.CategoryConfig))
}

func TestFloatListFromSequence(t *testing.T) {
	got, err := Snapshot(map[string]any{KeyJerk: []any{1e8, 10, "1e6"}}).FloatList(KeyJerk)
	require.NoError(t, err)
	require.Equal(t, []float64{1e8, 10, 1e6}, got)
}

func TestFloatListAcceptsSingleNumber(t *testing.T) {
	for _, in := range []any{1e8, 200, int64(7), uint64(9)} {
		got, err := Snapshot(map[string]any{KeyJerk: in}).FloatList(KeyJerk)
		require.NoError(t, err)
		require.Len(t, got, 1)
	}
}

func TestSequenceErrorCarriesIndex(t *testing.T) {
	_, err := Snapshot(map[string]any{KeyJerk: []any{1e8, "fast"}}).FloatList(KeyJerk)
	require.Error(t, err)
	ce, ok := ferrors.AsClassified(err)
	require.True(t, ok)
	idx, ok := ce.Context().Get("index")
	require.True(t, ok)
	require.Equal(t, 1, idx)
	field, _ := ce.Context().GetString("field")
	require.Equal(t, KeyJerk, field)
}

func TestIntRejectsOutOfRangeAndNonFinite(t *testing.T) {
	for _, in := range []any{uint64(math.MaxUint64), 1e300, "NaN", "inf", math.Inf(-1), "1e19"} {
		_, err := Snapshot(map[string]any{KeyBaud: in}).Int(KeyBaud)
		require.Error(t, err, "%v", in)
		require.True(t, ferrors.HasCategory(err, ferrors.CategoryConfig))
	}
}

func TestFloatRejectsNonFinite(t *testing.T) {
	for _, in := range []any{"NaN", "inf", "-Infinity", math.NaN(), math.Inf(1)} {
		_, err := Snapshot(map[string]any{KeyBedX: in}).Float(KeyBedX)
		require.Error(t, err, "%v", in)
		field, _ := mustClassified(t, err).Context().GetString("field")
		require.Equal(t, KeyBedX, field)
	}
}

func mustClassified(t *testing.T, err error) *ferrors.ClassifiedError {
	t.Helper()
	ce, ok := ferrors.AsClassified(err)
	require.True(t, ok)
	return ce
}
