package commands

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/alecthomas/kong"
	prom "github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"git.home.luguber.info/inful/stepd-host/internal/config"
	"git.home.luguber.info/inful/stepd-host/internal/daemonconfig"
	"git.home.luguber.info/inful/stepd-host/internal/eventstore"
	"git.home.luguber.info/inful/stepd-host/internal/host"
	"git.home.luguber.info/inful/stepd-host/internal/settings"
	"git.home.luguber.info/inful/stepd-host/internal/supervisor"
)

func runCLI(t *testing.T, args ...string) error {
	t.Helper()
	cli := &CLI{}
	parser, err := kong.New(cli, kong.Vars{"version": "test"}, kong.Exit(func(int) { t.Fatal("unexpected exit") }))
	require.NoError(t, err)
	kctx, err := parser.Parse(args)
	if err != nil {
		return err
	}
	return kctx.Run(&Global{Logger: cli.Logger()}, cli)
}

func TestWriteConfigCommand(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, host.WriteSettings(filepath.Join(dir, config.DefaultSettingsFile), map[string]any{
		settings.KeyTickRate: 30720,
	}))

	err := runCLI(t, "-c", filepath.Join(dir, "missing.yaml"), "-d", dir, "write-config")
	require.NoError(t, err)

	cfg, err := daemonconfig.Read(filepath.Join(dir, config.DefaultDaemonConfig))
	require.NoError(t, err)
	assert.Equal(t, 30720, cfg.TicksPerSecond)
	assert.Equal(t, [2]float64{200, 200}, cfg.BedMax)
}

func TestHistoryCommand(t *testing.T) {
	dir := t.TempDir()
	store, err := eventstore.NewSQLiteStore(filepath.Join(dir, config.DefaultEventStore))
	require.NoError(t, err)
	require.NoError(t, store.Record(context.Background(), eventstore.Event{
		CycleID:   "cycle-1",
		Type:      eventstore.StateChanged,
		State:     "running",
		Timestamp: time.Now(),
	}))
	require.NoError(t, store.Close())

	require.NoError(t, runCLI(t, "-c", filepath.Join(dir, "missing.yaml"), "-d", dir, "history", "-n", "5"))
	require.NoError(t, runCLI(t, "-c", filepath.Join(dir, "missing.yaml"), "-d", dir, "history", "--cycle", "cycle-1", "--json"))
}

func TestHistoryWithoutStore(t *testing.T) {
	dir := t.TempDir()
	err := runCLI(t, "-c", filepath.Join(dir, "missing.yaml"), "-d", dir, "history")
	require.Error(t, err)
}

func TestNewLoggerFormats(t *testing.T) {
	var buf bytes.Buffer
	newLogger(&buf, config.MonitoringConfig{LogFormat: config.LogFormatJSON}, false).Info("hello")
	assert.True(t, json.Valid(bytes.TrimSpace(buf.Bytes())))

	buf.Reset()
	l := newLogger(&buf, config.MonitoringConfig{LogLevel: config.LogLevelWarn}, false)
	l.Info("hidden")
	assert.Empty(t, buf.String())
	newLogger(&buf, config.MonitoringConfig{LogLevel: config.LogLevelWarn}, true).Debug("shown")
	assert.Contains(t, buf.String(), "msg=shown")
}

func TestOpenSinks(t *testing.T) {
	sink, closeAll := openSinks("", "", "", nil)
	assert.Nil(t, sink)
	closeAll()

	sink, closeAll = openSinks(filepath.Join(t.TempDir(), "events.db"), "", "", nil)
	require.NotNil(t, sink)
	require.NoError(t, sink.Record(context.Background(), eventstore.Event{CycleID: "c", Type: eventstore.CycleRequested}))
	closeAll()
}

type staticHost struct{ dir string }

func (h staticHost) Settings() (settings.Settings, error) { return settings.WithDefaults(nil), nil }
func (h staticHost) DataDir() string                       { return h.dir }
func (h staticHost) OnReady(*supervisor.Cycle)             {}

func TestMonitoringServerStatus(t *testing.T) {
	sup, err := supervisor.New(staticHost{dir: t.TempDir()}, supervisor.Options{})
	require.NoError(t, err)
	t.Cleanup(func() { _ = sup.Close() })

	srv := newMonitoringServer("127.0.0.1:0", prom.NewRegistry(), sup)
	rec := httptest.NewRecorder()
	srv.Handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/status", nil))
	require.Equal(t, http.StatusOK, rec.Code)

	var st supervisor.Status
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &st))
	assert.Equal(t, "starting", st.State)
	assert.Equal(t, "Starting...", st.Text)

	rec = httptest.NewRecorder()
	srv.Handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	require.Equal(t, http.StatusOK, rec.Code)
	assert.True(t, strings.HasPrefix(rec.Header().Get("Content-Type"), "text/plain"))
}
