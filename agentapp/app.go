// Package agentapp wires together every agent-side package -- identity,
// configuration, authentication, logging, command execution, the HTTP
// server, and mDNS advertisement -- into the process that command/agent.go
// runs (spec.md §3, §4). Its Run/stop/reload shape is adapted from the
// teacher's agent.Agent.
package agentapp

import (
	"context"
	"fmt"
	"net"
	"os"
	"os/signal"
	"syscall"

	hclog "github.com/hashicorp/go-hclog"

	"github.com/lanreach/lanreach/agentconfig"
	"github.com/lanreach/lanreach/auth"
	"github.com/lanreach/lanreach/command_run"
	"github.com/lanreach/lanreach/configstore"
	"github.com/lanreach/lanreach/discovery"
	"github.com/lanreach/lanreach/httpapi"
	"github.com/lanreach/lanreach/identity"
	"github.com/lanreach/lanreach/logbuf"
	"github.com/lanreach/lanreach/metrics"
)

// Options configures a new App. BindPort, if non-zero, overrides the
// api_port carried in config.json -- the CLI flag takes precedence over
// the persisted document so an operator can always recover a misconfigured
// agent without hand-editing its config file.
type Options struct {
	ConfigDir string
	BindAddr  string
	BindPort  int
	Log       hclog.Logger
}

// lanAdvertiser is the subset of *discovery.Advertiser App depends on,
// narrowed so tests can substitute a fake and avoid binding a real mDNS
// socket -- the same real-network avoidance the teacher's own Consul
// lifecycle tests show (spec.md §8, discovery's own tests).
type lanAdvertiser interface {
	Start(port int, authRequired bool) error
	Reconfigure(port int, authRequired bool) error
	Stop() error
}

// App is the running agent: every collaborator package, tied together.
type App struct {
	log hclog.Logger

	configDir string
	bindAddr  string

	identity *identity.DeviceIdentity
	cfgStore *configstore.Store[agentconfig.Config]
	auth     *auth.Engine
	logs     *logbuf.Store
	executor *command_run.Executor

	server     *httpapi.Server
	advertiser lanAdvertiser
}

// New constructs an App but does not yet start serving -- Run does that.
func New(opts Options) (*App, error) {
	if opts.ConfigDir == "" {
		return nil, fmt.Errorf("agentapp: config dir is required")
	}
	if opts.BindAddr == "" {
		opts.BindAddr = "0.0.0.0"
	}
	log := opts.Log
	if log == nil {
		log = hclog.NewNullLogger()
	}

	id, err := identity.Load(opts.ConfigDir)
	if err != nil {
		return nil, fmt.Errorf("agentapp: loading identity: %w", err)
	}

	cfgStore, err := agentconfig.Store(opts.ConfigDir)
	if err != nil {
		return nil, fmt.Errorf("agentapp: opening config store: %w", err)
	}
	cfg := cfgStore.Snapshot()
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("agentapp: invalid config: %w", err)
	}

	if opts.BindPort != 0 {
		cfg.APIPort = opts.BindPort
	}

	authEngine := auth.New(cfg.AuthRequired())

	logs := logbuf.NewStore(cfg.LogBufferSize)
	if cfg.EnableLogFile {
		sink, err := logbuf.NewFileSink(logFilePath(opts.ConfigDir, cfg.LogFilePath), cfg.LogFileMaxSize)
		if err != nil {
			return nil, fmt.Errorf("agentapp: opening log file sink: %w", err)
		}
		logs.SetFileSink(sink)
	}

	if _, err := metrics.Setup("lanreach_agent"); err != nil {
		return nil, fmt.Errorf("agentapp: setting up metrics: %w", err)
	}

	executor := command_run.NewExecutor()

	server, err := httpapi.New(opts.BindAddr, cfg.APIPort, httpapi.Deps{
		Identity: id,
		CfgStore: cfgStore,
		Auth:     authEngine,
		Logs:     logs,
		Executor: executor,
		Log:      log,
	})
	if err != nil {
		return nil, fmt.Errorf("agentapp: building http server: %w", err)
	}

	advertiser := discovery.New(log, id.UUID, id.ShortPrefix(), id.DisplayName, identity.ProtocolVersion)

	return &App{
		log:        log.Named("agent"),
		configDir:  opts.ConfigDir,
		bindAddr:   opts.BindAddr,
		identity:   id,
		cfgStore:   cfgStore,
		auth:       authEngine,
		logs:       logs,
		executor:   executor,
		server:     server,
		advertiser: advertiser,
	}, nil
}

// Run starts the HTTP server and mDNS advertisement, then blocks handling
// signals until it is told to exit (spec.md §4.1 "advertiser starts
// alongside the HTTP listener").
func (a *App) Run(ctx context.Context) error {
	defer a.stop()

	go a.server.Start()

	port := a.portFromAddr()
	if err := a.advertiser.Start(port, a.auth.IsAuthRequired()); err != nil {
		return fmt.Errorf("agentapp: starting mdns advertiser: %w", err)
	}

	a.logs.Append("info", "agent", "agent started", map[string]any{
		"uuid": a.identity.UUID,
		"port": port,
	})

	a.handleSignals(ctx)
	return nil
}

// portFromAddr reads back the port the HTTP listener actually bound to, so
// the advertisement always carries the port in use rather than whatever
// config.json says now.
func (a *App) portFromAddr() int {
	if tcpAddr, ok := a.server.Addr().(*net.TCPAddr); ok {
		return tcpAddr.Port
	}
	return 0
}

// stop shuts the HTTP server down first, then unregisters the mDNS
// advertisement, matching the "HTTP stop, then mDNS unregister" order
// spec.md §4.4 requires so a controller mid-request never sees the device
// vanish from discovery before its connection is closed out from under it.
func (a *App) stop() {
	a.server.Stop()
	if err := a.advertiser.Stop(); err != nil {
		a.log.Warn("error stopping mdns advertiser", "error", err)
	}
}

// handleSignals blocks until SIGINT/SIGTERM (return, triggering deferred
// stop) or repeatedly handles SIGHUP (reload) in between, adapted from the
// teacher's Agent.handleSignals.
func (a *App) handleSignals(ctx context.Context) {
	signalCh := make(chan os.Signal, 3)
	signal.Notify(signalCh, os.Interrupt, syscall.SIGTERM, syscall.SIGHUP)
	defer signal.Stop(signalCh)

	for {
		select {
		case <-ctx.Done():
			return
		case sig := <-signalCh:
			a.log.Info("caught signal", "signal", sig.String())
			switch sig {
			case syscall.SIGHUP:
				a.reload()
			default:
				return
			}
		}
	}
}

// reload re-reads config.json from disk and republishes the mDNS
// advertisement with the port the HTTP listener is bound to. A changed
// api_port is only logged: the listener is not rebound and the new port is
// not advertised until the agent restarts. The IP blacklist and command
// whitelist are read from the store on every request, so they take effect
// at once; the log buffer size and log file settings are applied only at
// startup and do not change on reload. A password set or cleared on disk outside of SetPassword/
// ClearPassword never takes hold this way; auth state only ever changes
// through the engine's own methods, never by hand-editing config.json.
func (a *App) reload() {
	before := a.cfgStore.Snapshot()

	fresh, err := agentconfig.Store(a.configDir)
	if err != nil {
		a.log.Error("reload: failed to re-open config store", "error", err)
		return
	}
	after := fresh.Snapshot()
	if err := after.Validate(); err != nil {
		a.log.Error("reload: refusing invalid config", "error", err)
		return
	}

	if err := a.cfgStore.Mutate(func(c *agentconfig.Config) error {
		*c = after
		return nil
	}); err != nil {
		a.log.Error("reload: failed to apply reloaded config", "error", err)
		return
	}

	if after.APIPort != before.APIPort {
		a.log.Warn("reload: api_port changed on disk but requires a restart to rebind the listener", "old", before.APIPort, "new", after.APIPort)
	}

	if err := a.advertiser.Reconfigure(a.portFromAddr(), a.auth.IsAuthRequired()); err != nil {
		a.log.Warn("reload: failed to republish mdns advertisement", "error", err)
	}

	a.logs.Append("info", "agent", "configuration reloaded", nil)
}

func logFilePath(configDir, configured string) string {
	if configured == "" {
		return ""
	}
	if os.IsPathSeparator(configured[0]) {
		return configured
	}
	return configDir + string(os.PathSeparator) + configured
}
