package agentapp

import (
	"context"
	"encoding/json"
	"net/http"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	hclog "github.com/hashicorp/go-hclog"
	"github.com/stretchr/testify/require"
)

// fakeAdvertiser stands in for the real mDNS advertiser in tests, since
// binding a genuine multicast socket is exactly the kind of real-network
// dependency this repo's tests otherwise avoid (see discovery's own tests).
type fakeAdvertiser struct {
	mu      sync.Mutex
	started bool
	port    int
}

func (f *fakeAdvertiser) Start(port int, authRequired bool) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.started = true
	f.port = port
	return nil
}

func (f *fakeAdvertiser) Reconfigure(port int, authRequired bool) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.port = port
	return nil
}

func (f *fakeAdvertiser) Stop() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.started = false
	return nil
}

func newTestApp(t *testing.T) (*App, string) {
	t.Helper()
	dir := t.TempDir()

	app, err := New(Options{
		ConfigDir: dir,
		BindAddr:  "127.0.0.1",
		BindPort:  0,
		Log:       hclog.NewNullLogger(),
	})
	require.NoError(t, err)

	// Swap in a fake advertiser so Run doesn't need a real mDNS socket.
	app.advertiser = &fakeAdvertiser{}
	return app, dir
}

func waitHealthy(t *testing.T, app *App) string {
	t.Helper()
	base := "http://" + app.server.Addr().String()
	require.Eventually(t, func() bool {
		resp, err := http.Get(base + "/api/health")
		if err != nil {
			return false
		}
		defer resp.Body.Close()
		return resp.StatusCode == http.StatusOK
	}, 2*time.Second, 10*time.Millisecond)
	return base
}

func TestApp_RunServesHealthAndStopsCleanly(t *testing.T) {
	app, _ := newTestApp(t)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- app.Run(ctx) }()

	base := waitHealthy(t, app)

	resp, err := http.Get(base + "/api/health")
	require.NoError(t, err)
	defer resp.Body.Close()

	var body map[string]interface{}
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&body))
	require.Equal(t, "ok", body["status"])
	require.Equal(t, app.identity.UUID, body["uuid"])

	cancel()
	require.Eventually(t, func() bool {
		select {
		case <-done:
			return true
		default:
			return false
		}
	}, 2*time.Second, 10*time.Millisecond)
}

func TestApp_ReloadPicksUpWhitelistChangeFromDisk(t *testing.T) {
	app, dir := newTestApp(t)

	cfg := app.cfgStore.Snapshot()
	cfg.CommandWhitelist = append(cfg.CommandWhitelist, "ipconfig")
	raw, err := json.MarshalIndent(cfg, "", "  ")
	require.NoError(t, err)
	require.NoError(t, os.WriteFile(filepath.Join(dir, "config.json"), raw, 0o644))

	app.reload()

	got := app.cfgStore.Snapshot()
	require.Contains(t, got.CommandWhitelist, "ipconfig")
}

func TestApp_ReloadRejectsInvalidConfigOnDisk(t *testing.T) {
	app, dir := newTestApp(t)
	before := app.cfgStore.Snapshot()

	cfg := before
	cfg.APIPort = 1 // out of [1024, 65535]
	raw, err := json.MarshalIndent(cfg, "", "  ")
	require.NoError(t, err)
	require.NoError(t, os.WriteFile(filepath.Join(dir, "config.json"), raw, 0o644))

	app.reload()

	got := app.cfgStore.Snapshot()
	require.Equal(t, before.APIPort, got.APIPort, "invalid reloaded config must not replace the live one")
}
