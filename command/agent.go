package command

import (
	"context"
	"flag"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/hashicorp/go-hclog"

	"github.com/lanreach/lanreach/agentapp"
)

// configDirOnce caches the resolved default config directory so repeated
// lookups (e.g. from both the agent and controller flag parsing) don't call
// os.UserConfigDir twice.
var (
	configDirOnce  sync.Once
	configDirValue string
	configDirErr   error
)

func defaultConfigDir() (string, error) {
	configDirOnce.Do(func() {
		base, err := os.UserConfigDir()
		if err != nil {
			configDirErr = err
			return
		}
		configDirValue = filepath.Join(base, "lanreach")
	})
	return configDirValue, configDirErr
}

// AgentCommand runs the agent process: the HTTP API, command engine, and
// mDNS advertisement (spec.md §2, §6).
type AgentCommand struct {
	Ctx context.Context

	args []string
}

// Help should return long-form help text that includes the command-line
// usage, a brief few sentences explaining the function of the command,
// and the complete list of flags the command accepts.
func (c *AgentCommand) Help() string {
	helpText := `
Usage: lanreach agent [options]

  Starts the lanreach agent and runs until an interrupt is received. The
  agent exposes an authenticated HTTP+WebSocket API for inspection,
  command execution, and power control, and advertises itself on the LAN
  via mDNS.

Options:

  -config-dir=<path>
    Directory holding the agent's device-id, config.json, and log files.
    Defaults to a per-user config directory.

  -bind-port=<port>
    Overrides the persisted api_port for this run without rewriting
    config.json.

  -headless
    Accepted for parity with other lanreach tooling; this binary never
    starts a GUI.

  -log-level=<level>
    Specify the verbosity of the agent's own process logs: TRACE, DEBUG,
    INFO, WARN, or ERROR. The default is INFO.

  -log-json
    Output process logs in JSON format. The default is false.
`
	return strings.TrimSpace(helpText)
}

// Synopsis should return a one-line, short synopsis of the command.
func (c *AgentCommand) Synopsis() string {
	return "Runs a lanreach agent"
}

// Run should run the actual command with the given CLI instance and
// command-line arguments. It returns the exit status when it is finished.
func (c *AgentCommand) Run(args []string) int {
	c.args = args

	opts, logLevel, logJSON, err := c.parseFlags()
	if err != nil {
		fmt.Printf("Error parsing command arguments: %v\n", err)
		fmt.Println(c.Help())
		return 1
	}

	logger := hclog.NewInterceptLogger(&hclog.LoggerOptions{
		Name:       "agent",
		Level:      hclog.LevelFromString(logLevel),
		JSONFormat: logJSON,
	})
	opts.Log = logger

	a, err := agentapp.New(opts)
	if err != nil {
		logger.Error("failed to build agent", "error", err)
		return 1
	}

	ctx := c.Ctx
	if ctx == nil {
		ctx = context.Background()
	}

	if err := a.Run(ctx); err != nil {
		logger.Error("agent exited with error", "error", err)
		return 1
	}
	return 0
}

func (c *AgentCommand) parseFlags() (agentapp.Options, string, bool, error) {
	var (
		configDir string
		bindPort  int
		headless  bool
		logLevel  string
		logJSON   bool
	)

	flags := flag.NewFlagSet("agent", flag.ContinueOnError)
	flags.Usage = func() { fmt.Println(c.Help()) }

	flags.StringVar(&configDir, "config-dir", "", "")
	flags.IntVar(&bindPort, "bind-port", 0, "")
	flags.BoolVar(&headless, "headless", false, "")
	flags.StringVar(&logLevel, "log-level", "INFO", "")
	flags.BoolVar(&logJSON, "log-json", false, "")

	if err := flags.Parse(c.args); err != nil {
		return agentapp.Options{}, "", false, err
	}

	if configDir == "" {
		dir, err := defaultConfigDir()
		if err != nil {
			return agentapp.Options{}, "", false, fmt.Errorf("resolving default config directory: %w", err)
		}
		configDir = dir
	}

	return agentapp.Options{
		ConfigDir: configDir,
		BindAddr:  "0.0.0.0",
		BindPort:  bindPort,
	}, logLevel, logJSON, nil
}
