package command

import (
	"context"
	"flag"
	"fmt"
	"strings"

	"github.com/hashicorp/go-hclog"

	"github.com/lanreach/lanreach/controllerapp"
)

// ControllerCommand runs the controller process: LAN discovery, the saved-
// device registry, and reachability probing (spec.md §2, §4.7, §6).
type ControllerCommand struct {
	Ctx context.Context

	args []string
}

func (c *ControllerCommand) Help() string {
	helpText := `
Usage: lanreach controller [options]

  Starts the lanreach controller and runs until an interrupt is received.
  The controller discovers agents on the local network via mDNS, persists
  a saved-device list, and drives agents' HTTP APIs on behalf of whatever
  front end is talking to it.

Options:

  -config-dir=<path>
    Directory holding devices.json, credentials.json, and credentials.key.
    Defaults to a per-user config directory.

  -bind-port=<port>
    Accepted for parity with the agent command; the controller has no
    HTTP server of its own and ignores this flag.

  -headless
    Accepted for parity with other lanreach tooling; this binary never
    starts a GUI.

  -log-level=<level>
    Specify the verbosity of the controller's own process logs: TRACE,
    DEBUG, INFO, WARN, or ERROR. The default is INFO.

  -log-json
    Output process logs in JSON format. The default is false.
`
	return strings.TrimSpace(helpText)
}

func (c *ControllerCommand) Synopsis() string {
	return "Runs a lanreach controller"
}

func (c *ControllerCommand) Run(args []string) int {
	c.args = args

	configDir, _, _, logLevel, logJSON, err := c.parseFlags()
	if err != nil {
		fmt.Printf("Error parsing command arguments: %v\n", err)
		fmt.Println(c.Help())
		return 1
	}

	logger := hclog.NewInterceptLogger(&hclog.LoggerOptions{
		Name:       "controller",
		Level:      hclog.LevelFromString(logLevel),
		JSONFormat: logJSON,
	})

	a, err := controllerapp.New(controllerapp.Options{
		ConfigDir: configDir,
		Log:       logger,
	})
	if err != nil {
		logger.Error("failed to build controller", "error", err)
		return 1
	}

	ctx := c.Ctx
	if ctx == nil {
		ctx = context.Background()
	}

	if err := a.Run(ctx); err != nil {
		logger.Error("controller exited with error", "error", err)
		return 1
	}
	return 0
}

func (c *ControllerCommand) parseFlags() (configDir string, bindPort int, headless bool, logLevel string, logJSON bool, err error) {
	flags := flag.NewFlagSet("controller", flag.ContinueOnError)
	flags.Usage = func() { fmt.Println(c.Help()) }

	logLevel = "INFO"
	flags.StringVar(&configDir, "config-dir", "", "")
	flags.IntVar(&bindPort, "bind-port", 0, "")
	flags.BoolVar(&headless, "headless", false, "")
	flags.StringVar(&logLevel, "log-level", "INFO", "")
	flags.BoolVar(&logJSON, "log-json", false, "")

	if parseErr := flags.Parse(c.args); parseErr != nil {
		return "", 0, false, "", false, parseErr
	}

	if configDir == "" {
		dir, dirErr := defaultConfigDir()
		if dirErr != nil {
			return "", 0, false, "", false, fmt.Errorf("resolving default config directory: %w", dirErr)
		}
		configDir = dir
	}

	return configDir, bindPort, headless, logLevel, logJSON, nil
}
