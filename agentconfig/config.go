// Package agentconfig defines AgentConfig, the agent's mutable runtime
// configuration document (spec.md §3), persisted as config.json through
// configstore.Store.
package agentconfig

import (
	"fmt"
	"path/filepath"

	"github.com/hashicorp/go-multierror"
	"github.com/lanreach/lanreach/configstore"
)

// customToken is the whitelist entry that gates free-form command
// execution (spec.md §4.5).
const customToken = "custom"

// Config is the agent's persisted, mutable configuration (spec.md §3
// "AgentConfig"). Zero value is not valid; use Default().
type Config struct {
	APIPort int `json:"api_port"`

	// PasswordHash is a self-describing Argon2id verifier string.
	// Absent (empty) means authentication is disabled.
	PasswordHash string `json:"password_hash"`

	CommandWhitelist []string `json:"command_whitelist"`
	CustomCommands   []string `json:"custom_commands"`

	IPBlacklist      []string `json:"ip_blacklist"`
	EnableIPBlacklist bool    `json:"enable_ip_blacklist"`

	LogBufferSize   int    `json:"log_buffer_size"`
	EnableLogFile   bool   `json:"enable_log_file"`
	LogFilePath     string `json:"log_file_path"`
	LogFileMaxSize  int64  `json:"log_file_max_size"`

	AutoStartAPI   bool `json:"auto_start_api"`
	AutoStartOnBoot bool `json:"auto_start_on_boot"`

	// Presentation is an opaque bag for GUI-only fields this core never
	// interprets (spec.md §3 "opaque presentation fields ignored by the
	// core").
	Presentation map[string]any `json:"presentation,omitempty"`
}

// Default returns the configuration used when no config.json exists yet.
func Default() Config {
	return Config{
		APIPort:           8642,
		CommandWhitelist:  []string{"systeminfo", "lock"},
		CustomCommands:    []string{},
		IPBlacklist:       []string{},
		EnableIPBlacklist: false,
		LogBufferSize:     500,
		EnableLogFile:     false,
		LogFilePath:       "logs/app.log",
		LogFileMaxSize:    10 * 1024 * 1024,
		AutoStartAPI:      true,
		AutoStartOnBoot:   false,
	}
}

// AuthRequired reports whether the agent currently requires
// authentication, i.e. whether a password has been set (spec.md §4.3).
func (c Config) AuthRequired() bool {
	return c.PasswordHash != ""
}

// AllowsCustom reports whether the "custom" master-switch token is
// whitelisted.
func (c Config) AllowsCustom() bool {
	return contains(c.CommandWhitelist, customToken)
}

// Validate enforces the invariants from spec.md §3: the whitelist contains
// "custom" iff free-form commands are permitted (here: iff AllowsCustom,
// which is the same field -- the invariant is actually about whether the
// whitelist's "custom" entry and the presence of CustomCommands agree with
// operator intent, so Validate only checks port range and structural
// well-formedness; business logic for whitelist composition lives in
// command_run.Whitelist).
func (c Config) Validate() error {
	var result *multierror.Error

	if c.APIPort < 1024 || c.APIPort > 65535 {
		result = multierror.Append(result, fmt.Errorf("api_port %d out of range [1024, 65535]", c.APIPort))
	}
	if c.LogBufferSize <= 0 {
		result = multierror.Append(result, fmt.Errorf("log_buffer_size must be positive, got %d", c.LogBufferSize))
	}
	if c.EnableLogFile && c.LogFilePath == "" {
		result = multierror.Append(result, fmt.Errorf("log_file_path must be set when enable_log_file is true"))
	}
	if c.EnableLogFile && c.LogFileMaxSize <= 0 {
		result = multierror.Append(result, fmt.Errorf("log_file_max_size must be positive when enable_log_file is true"))
	}

	return result.ErrorOrNil()
}

// Store opens (or seeds) the config.json document at dir/config.json.
func Store(dir string) (*configstore.Store[Config], error) {
	return configstore.Open(configPath(dir), Default())
}

func configPath(dir string) string {
	return filepath.Join(dir, "config.json")
}

func contains(set []string, v string) bool {
	for _, s := range set {
		if s == v {
			return true
		}
	}
	return false
}
