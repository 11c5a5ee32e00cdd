// Package controllerapp wires together every controller-side package --
// the saved-device registry, mDNS browsing, reachability probing, and the
// per-device credential cache -- into the process that command/controller.go
// runs (spec.md §4.7). Unlike the agent, the controller has no HTTP server
// of its own: it is purely a client driving agents discovered on the LAN.
// Its lifecycle shape is adapted from agentapp.App, which is in turn
// adapted from the teacher's agent.Agent.
package controllerapp

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	hclog "github.com/hashicorp/go-hclog"

	"github.com/lanreach/lanreach/discovery"
	"github.com/lanreach/lanreach/registry"
)

// Options configures a new App.
type Options struct {
	ConfigDir string
	Log       hclog.Logger

	// ProbeConcurrency bounds simultaneous reachability probes (spec.md
	// §5 "default 16"). Zero uses registry's own default.
	ProbeConcurrency int64
}

// App is the running controller: the device registry, mDNS browser,
// reachability prober, and credential cache, tied together.
type App struct {
	log hclog.Logger

	configDir string

	registry *registry.Registry
	browser  *discovery.Browser
	prober   *registry.Prober
	creds    *registry.CredentialCache
}

// New builds an App from opts. It does not start browsing the LAN yet --
// call Run for that.
func New(opts Options) (*App, error) {
	log := opts.Log
	if log == nil {
		log = hclog.NewNullLogger()
	}
	log = log.Named("controller")

	if opts.ConfigDir == "" {
		return nil, fmt.Errorf("controllerapp: ConfigDir is required")
	}
	if err := os.MkdirAll(opts.ConfigDir, 0o755); err != nil {
		return nil, fmt.Errorf("controllerapp: creating config dir: %w", err)
	}

	devStore, err := registry.Store(opts.ConfigDir)
	if err != nil {
		return nil, fmt.Errorf("controllerapp: opening device store: %w", err)
	}
	reg := registry.New(log, devStore)

	creds, err := registry.OpenCredentialCache(opts.ConfigDir)
	if err != nil {
		return nil, fmt.Errorf("controllerapp: opening credential cache: %w", err)
	}

	a := &App{
		log:       log,
		configDir: opts.ConfigDir,
		registry:  reg,
		creds:     creds,
		prober:    registry.NewProber(registry.NewClient("controller-prober"), opts.ProbeConcurrency),
	}
	a.browser = discovery.NewBrowser(log, a.onFound, a.onRemoved)

	return a, nil
}

func (a *App) onFound(rec discovery.Record) {
	matched, err := a.registry.Observe(rec)
	if err != nil {
		a.log.Warn("reconciling discovered record failed", "record", rec.InstanceName, "error", err)
		return
	}
	if matched {
		a.log.Debug("saved device seen on LAN", "uuid", rec.UUID, "host", rec.Host, "port", rec.Port)
	} else {
		a.log.Info("new device discoverable", "uuid", rec.UUID, "name", rec.DeviceName, "host", rec.Host)
	}
}

func (a *App) onRemoved(key string) {
	a.registry.Forget(key)
	a.log.Info("device no longer advertising on LAN", "key", key)
}

// Run starts the mDNS browser and blocks until ctx is cancelled.
func (a *App) Run(ctx context.Context) error {
	go a.browser.Run(ctx)
	a.log.Info("controller started")
	a.handleSignals(ctx)
	a.log.Info("controller stopped")
	return nil
}

func (a *App) handleSignals(ctx context.Context) {
	signalCh := make(chan os.Signal, 3)
	signal.Notify(signalCh, os.Interrupt, syscall.SIGTERM, syscall.SIGHUP)
	defer signal.Stop(signalCh)

	for {
		select {
		case <-ctx.Done():
			return
		case sig := <-signalCh:
			switch sig {
			case syscall.SIGHUP:
				a.log.Info("SIGHUP received, restarting LAN browser")
				a.browser.Restart()
			default:
				return
			}
		}
	}
}

// Devices returns the persisted saved-device list.
func (a *App) Devices() []registry.SavedDevice {
	return a.registry.Devices()
}

// Discoverable returns devices seen on the LAN that are not yet saved.
func (a *App) Discoverable() []discovery.Record {
	return a.registry.Discoverable()
}

// AddDevice saves a discovered record under displayName (spec.md §4.7 "on
// explicit add").
func (a *App) AddDevice(rec discovery.Record, displayName string) error {
	return a.registry.AddDevice(rec, displayName)
}

// DeleteDevice removes a saved device and its cached credential/token
// (spec.md §8 invariant 12 -- registry itself only owns the device list,
// so this is the one call site responsible for also clearing credentials).
func (a *App) DeleteDevice(key string) error {
	if err := a.registry.DeleteDevice(key); err != nil {
		return err
	}
	return a.creds.Clear(key)
}

// RefreshReachability probes every saved device and returns its current
// status, "on explicit refresh and whenever the UI view is entered"
// (spec.md §4.7).
func (a *App) RefreshReachability(ctx context.Context) map[string]registry.Status {
	return a.prober.ProbeAll(ctx, a.registry.Devices())
}

// Connect drives the credential flow on connect for the saved device
// matching key (spec.md §4.7), returning a bearer token usable against
// the device's API (empty if it requires no authentication). On success
// it advances the device's last_connected timestamp.
func (a *App) Connect(ctx context.Context, key string, promptFn func() (password string, ok bool)) (string, error) {
	var target *registry.SavedDevice
	for _, d := range a.registry.Devices() {
		d := d
		if d.UUID == key || d.DisplayID == key {
			target = &d
			break
		}
	}
	if target == nil {
		return "", fmt.Errorf("controllerapp: no saved device matches %s", key)
	}

	client := registry.NewClient(target.UUID)
	token, err := registry.Connect(ctx, client, *target, a.creds, promptFn)
	if err != nil {
		return "", err
	}

	if err := a.registry.Touch(key); err != nil {
		a.log.Warn("updating last_connected failed", "key", key, "error", err)
	}
	return token, nil
}

// Client builds an HTTP client suited for driving the saved device
// matching key -- used once Connect has produced a token.
func (a *App) Client(key string) *registry.Client {
	return registry.NewClient(key)
}
