package registry

import (
	"context"
	"net"
	"strconv"
	"strings"
	"testing"
	"time"

	hclog "github.com/hashicorp/go-hclog"
	"github.com/stretchr/testify/require"

	"github.com/lanreach/lanreach/agentconfig"
	"github.com/lanreach/lanreach/auth"
	"github.com/lanreach/lanreach/command_run"
	"github.com/lanreach/lanreach/httpapi"
	"github.com/lanreach/lanreach/identity"
	"github.com/lanreach/lanreach/logbuf"
)

// newTestAgent starts a real httpapi.Server (the same package an actual
// agent runs) so registry's controller-side code is exercised against real
// HTTP responses rather than a hand-rolled stub.
func newTestAgent(t *testing.T, password string) (SavedDevice, *auth.Engine) {
	t.Helper()
	dir := t.TempDir()

	cfgStore, err := agentconfig.Store(dir)
	require.NoError(t, err)

	id, err := identity.Load(dir)
	require.NoError(t, err)

	eng := auth.New(password != "")
	if password != "" {
		hash, err := eng.SetPassword(password)
		require.NoError(t, err)
		require.NoError(t, cfgStore.Mutate(func(c *agentconfig.Config) error {
			c.PasswordHash = hash
			return nil
		}))
	}

	logs := logbuf.NewStore(100)
	srv, err := httpapi.New("127.0.0.1", 0, httpapi.Deps{
		Identity: id,
		CfgStore: cfgStore,
		Auth:     eng,
		Logs:     logs,
		Executor: command_run.NewExecutor(),
		Log:      hclog.NewNullLogger(),
	})
	require.NoError(t, err)

	go srv.Start()
	t.Cleanup(srv.Stop)

	host, portStr, err := net.SplitHostPort(srv.Addr().String())
	require.NoError(t, err)
	port, err := strconv.Atoi(portStr)
	require.NoError(t, err)

	d := SavedDevice{UUID: id.UUID, Name: id.DisplayName, IP: host, Port: port, AuthRequired: password != ""}

	require.Eventually(t, func() bool {
		_, _, err := NewClient(id.UUID).Health(context.Background(), d)
		return err == nil
	}, 2*time.Second, 10*time.Millisecond)

	return d, eng
}

func TestConnect_NoPasswordOpensWithoutCredentials(t *testing.T) {
	d, _ := newTestAgent(t, "")
	cache, err := OpenCredentialCache(t.TempDir())
	require.NoError(t, err)

	client := NewClient(d.UUID)
	token, err := Connect(context.Background(), client, d, cache, nil)
	require.NoError(t, err)
	require.Empty(t, token)
}

func TestConnect_PromptsThenCachesOnSuccess(t *testing.T) {
	d, _ := newTestAgent(t, "hunter2")
	cache, err := OpenCredentialCache(t.TempDir())
	require.NoError(t, err)

	client := NewClient(d.UUID)
	token, err := Connect(context.Background(), client, d, cache, func() (string, bool) {
		return "hunter2", true
	})
	require.NoError(t, err)
	require.NotEmpty(t, token)

	cached, ok := cache.Get(d.matchKey())
	require.True(t, ok)
	require.Equal(t, "hunter2", cached)

	cachedTok, ok := cache.Token(d.matchKey())
	require.True(t, ok)
	require.Equal(t, token, cachedTok)
}

func TestConnect_StalePasswordIsCleared(t *testing.T) {
	d, _ := newTestAgent(t, "hunter2")
	cache, err := OpenCredentialCache(t.TempDir())
	require.NoError(t, err)
	require.NoError(t, cache.Set(d.matchKey(), "wrong-password"))

	client := NewClient(d.UUID)
	prompted := false
	token, err := Connect(context.Background(), client, d, cache, func() (string, bool) {
		prompted = true
		return "hunter2", true
	})
	require.NoError(t, err)
	require.NotEmpty(t, token)
	require.True(t, prompted, "a stale cached password must be cleared and fall through to the prompt")
}

func TestConnect_NoPromptFnReturnsAuthRequiredError(t *testing.T) {
	d, _ := newTestAgent(t, "hunter2")
	cache, err := OpenCredentialCache(t.TempDir())
	require.NoError(t, err)

	client := NewClient(d.UUID)
	_, err = Connect(context.Background(), client, d, cache, nil)
	require.ErrorIs(t, err, ErrAuthRequired)
}

func TestProber_ClassifiesOnlineAndOffline(t *testing.T) {
	online, _ := newTestAgent(t, "")
	offline := SavedDevice{UUID: "ghost", IP: "127.0.0.1", Port: 1}

	prober := NewProber(NewClient("probe"), 4)
	results := prober.ProbeAll(context.Background(), []SavedDevice{online, offline})

	require.Equal(t, StatusOnline, results[online.matchKey()])
	require.Equal(t, StatusOffline, results[offline.matchKey()])
}

func TestApiError_ErrorStringIncludesTagAndMessage(t *testing.T) {
	err := &apiError{Status: 403, Tag: "ip_blacklisted", Message: "nope"}
	require.True(t, strings.Contains(err.Error(), "ip_blacklisted"))
	require.True(t, strings.Contains(err.Error(), "nope"))
}
