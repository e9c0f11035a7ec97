package daemonconfig

import (
	"encoding/json"
	"math"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"

	ferrors "git.home.luguber.info/inful/stepd-host/internal/foundation/errors"
	"git.home.luguber.info/inful/stepd-host/internal/settings"
)

func TestWritePrinterScenario(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.json")
	s := settings.Snapshot(map[string]any{
		settings.KeyJerk:     "1e8,1e7,1e6,1e10",
		settings.KeyTickRate: 61440,
		settings.KeyBedX:     200,
		settings.KeyBedY:     200,
	})

	_, err := Write(s, path)
	require.NoError(t, err)

	raw, err := os.ReadFile(path)
	require.NoError(t, err)

	var doc map[string]any
	require.NoError(t, json.Unmarshal(raw, &doc))
	require.Equal(t, []any{1e8, 1e7, 1e6, 1e10}, doc["sjerk"])
	require.Equal(t, float64(61440), doc["ticks-per-second"])
	require.Equal(t, []any{float64(200), float64(200)}, doc["bed-max"])
	require.Equal(t, "SP_4x2_256", doc["format"])
	require.Equal(t, BedSamplesPath, doc["bed-samples-path"])
}

func TestJerkRoundTripIsValueStable(t *testing.T) {
	inputs := []string{
		"1e8, 1e7, 1e6, 1e10",
		"0.5,2.25,-3",
		"12345678901234",
		"1.7976931348623157e308, 5e-324",
	}
	for _, in := range inputs {
		t.Run(in, func(t *testing.T) {
			want, err := settings.ParseFloatList(settings.KeyJerk, in)
			require.NoError(t, err)

			path := filepath.Join(t.TempDir(), "config.json")
			_, err = Write(settings.Snapshot(map[string]any{settings.KeyJerk: in}), path)
			require.NoError(t, err)

			cfg, err := Read(path)
			require.NoError(t, err)
			require.Equal(t, want, cfg.Jerk)

			parts := make([]string, len(cfg.Jerk))
			for i, f := range cfg.Jerk {
				parts[i] = strconv.FormatFloat(f, 'g', -1, 64)
			}
			again, err := settings.ParseFloatList(settings.KeyJerk, strings.Join(parts, ","))
			require.NoError(t, err)
			require.Equal(t, cfg.Jerk, again)
		})
	}
}

func TestWriteRejectsMalformedJerk(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.json")
	_, err := Write(settings.Snapshot(map[string]any{settings.KeyJerk: "1e8, fast"}), path)
	require.Error(t, err)

	ce, ok := ferrors.AsClassified(err)
	require.True(t, ok)
	require.Equal(t, ferrors.CategoryConfig, ce.Category())
	field, _ := ce.Context().GetString("field")
	require.Equal(t, settings.KeyJerk, field)

	_, statErr := os.Stat(path)
	require.True(t, os.IsNotExist(statErr), "no file should be written for invalid settings")
}

func TestWriteRejectsUnknownFormat(t *testing.T) {
	_, err := Write(settings.Snapshot(map[string]any{settings.KeyFormat: "SP_8x8_64"}), filepath.Join(t.TempDir(), "c.json"))
	require.Error(t, err)
	ce, ok := ferrors.AsClassified(err)
	require.True(t, ok)
	field, _ := ce.Context().GetString("field")
	require.Equal(t, settings.KeyFormat, field)
}

func TestWriteFailsOnUnwritablePath(t *testing.T) {
	dir := t.TempDir()
	blocker := filepath.Join(dir, "file")
	require.NoError(t, os.WriteFile(blocker, []byte("x"), 0o644))

	_, err := Write(settings.Snapshot(nil), filepath.Join(blocker, "config.json"))
	require.Error(t, err)
	require.True(t, ferrors.HasCategory(err, ferrors.CategoryFileSystem))
}

func TestWriteReplacesExistingFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.json")
	require.NoError(t, os.WriteFile(path, []byte("stale"), 0o644))

	_, err := Write(settings.Snapshot(map[string]any{settings.KeyTickRate: "30720"}), path)
	require.NoError(t, err)

	cfg, err := Read(path)
	require.NoError(t, err)
	require.Equal(t, 30720, cfg.TicksPerSecond)

	entries, err := os.ReadDir(dir)
	require.NoError(t, err)
	require.Len(t, entries, 1, "temporary files must not be left behind")
}

func TestArgs(t *testing.T) {
	args, err := Args(settings.Snapshot(map[string]any{settings.KeyPort: "/dev/ttyACM0", settings.KeyBaud: "250000"}), "config.json")
	require.NoError(t, err)
	require.Equal(t, []string{"device=/dev/ttyACM0", "baud=250000", "config=config.json"}, args)

	args, err = Args(settings.Snapshot(nil), "config.json")
	require.NoError(t, err)
	require.Equal(t, []string{"device=/dev/ttyUSB0", "baud=500000", "config=config.json"}, args)
}

func TestWriteRejectsNonFiniteNumbers(t *testing.T) {
	cases := []struct {
		name   string
		values map[string]any
		field  string
	}{
		{"nan in jerk", map[string]any{settings.KeyJerk: "1e8, NaN, 1e6, 1e10"}, settings.KeyJerk},
		{"infinite jerk", map[string]any{settings.KeyJerk: "-Inf"}, settings.KeyJerk},
		{"inf bed x", map[string]any{settings.KeyBedX: "inf"}, settings.KeyBedX},
		{"nan bed y", map[string]any{settings.KeyBedY: math.NaN()}, settings.KeyBedY},
		{"infinite tick rate", map[string]any{settings.KeyTickRate: "+Inf"}, settings.KeyTickRate},
		{"nan in sequence", map[string]any{settings.KeyJerk: []any{1e8, "nan"}}, settings.KeyJerk},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			path := filepath.Join(t.TempDir(), "config.json")
			_, err := Write(settings.Snapshot(tc.values), path)
			require.Error(t, err)

			ce, ok := ferrors.AsClassified(err)
			require.True(t, ok)
			require.Equal(t, ferrors.CategoryConfig, ce.Category())
			field, _ := ce.Context().GetString("field")
			require.Equal(t, tc.field, field)

			_, statErr := os.Stat(path)
			require.True(t, os.IsNotExist(statErr))
		})
	}
}

func TestWriteAcceptsSingleJerkNumber(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.json")
	cfg, err := Write(settings.Snapshot(map[string]any{settings.KeyJerk: 1e8}), path)
	require.NoError(t, err)
	require.Equal(t, []float64{1e8}, cfg.Jerk)
}

func TestArgsRejectsBadBaud(t *testing.T) {
	cases := []struct {
		name string
		baud any
	}{
		{"zero", 0},
		{"negative", "-9600"},
		{"wraps int", uint64(math.MaxUint64)},
		{"huge float", 1e300},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := Args(settings.Snapshot(map[string]any{settings.KeyBaud: tc.baud}), "config.json")
			require.Error(t, err)
			ce, ok := ferrors.AsClassified(err)
			require.True(t, ok)
			field, _ := ce.Context().GetString("field")
			require.Equal(t, settings.KeyBaud, field)
		})
	}
}
