package agentconfig

import (
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestConfig_RoundTrip(t *testing.T) {
	dir := t.TempDir()

	s, err := Store(dir)
	require.NoError(t, err)

	want := Default()
	want.APIPort = 9999
	want.PasswordHash = "argon2id$v=19$m=65536,t=3,p=4$c2FsdA$dGFn"
	want.CommandWhitelist = []string{"shutdown", "custom"}
	want.CustomCommands = []string{"ipconfig"}
	want.IPBlacklist = []string{"10.1.2.*"}
	want.EnableIPBlacklist = true

	require.NoError(t, s.Mutate(func(c *Config) error {
		*c = want
		return nil
	}))

	reopened, err := Store(dir)
	require.NoError(t, err)

	got := reopened.Snapshot()
	if diff := cmp.Diff(want, got); diff != "" {
		t.Fatalf("config round-trip mismatch (-want +got):\n%s", diff)
	}
}

func TestConfig_Validate(t *testing.T) {
	cases := []struct {
		name    string
		mutate  func(*Config)
		wantErr bool
	}{
		{"defaults are valid", func(c *Config) {}, false},
		{"port too low", func(c *Config) { c.APIPort = 80 }, true},
		{"port too high", func(c *Config) { c.APIPort = 70000 }, true},
		{"zero log buffer", func(c *Config) { c.LogBufferSize = 0 }, true},
		{"file sink enabled without path", func(c *Config) {
			c.EnableLogFile = true
			c.LogFilePath = ""
		}, true},
		{"file sink enabled with path and size", func(c *Config) {
			c.EnableLogFile = true
			c.LogFilePath = "logs/app.log"
			c.LogFileMaxSize = 1024
		}, false},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			cfg := Default()
			tc.mutate(&cfg)
			err := cfg.Validate()
			if tc.wantErr {
				assert.Error(t, err)
			} else {
				assert.NoError(t, err)
			}
		})
	}
}

func TestConfig_AuthRequired(t *testing.T) {
	cfg := Default()
	assert.False(t, cfg.AuthRequired())

	cfg.PasswordHash = "argon2id$v=19$m=65536,t=3,p=4$c2FsdA$dGFn"
	assert.True(t, cfg.AuthRequired())
}

func TestConfig_AllowsCustom(t *testing.T) {
	cfg := Default()
	assert.False(t, cfg.AllowsCustom())

	cfg.CommandWhitelist = append(cfg.CommandWhitelist, "custom")
	assert.True(t, cfg.AllowsCustom())
}
