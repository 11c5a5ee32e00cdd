package httpapi

import (
	"bytes"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/json"
	"fmt"
	"net/http"
	"testing"
	"time"

	hclog "github.com/hashicorp/go-hclog"
	"github.com/stretchr/testify/require"

	"github.com/lanreach/lanreach/agentconfig"
	"github.com/lanreach/lanreach/auth"
	"github.com/lanreach/lanreach/command_run"
	"github.com/lanreach/lanreach/identity"
	"github.com/lanreach/lanreach/logbuf"
)

func newTestServer(t *testing.T, mutate func(*agentconfig.Config)) (*Server, string) {
	t.Helper()

	dir := t.TempDir()
	cfgStore, err := agentconfig.Store(dir)
	require.NoError(t, err)

	if mutate != nil {
		require.NoError(t, cfgStore.Mutate(func(c *agentconfig.Config) error {
			mutate(c)
			return nil
		}))
	}

	id, err := identity.Load(dir)
	require.NoError(t, err)

	eng := auth.New(false)
	logs := logbuf.NewStore(100)

	s, err := New("127.0.0.1", 0, Deps{
		Identity: id,
		CfgStore: cfgStore,
		Auth:     eng,
		Logs:     logs,
		Executor: command_run.NewExecutor(),
		Log:      hclog.NewNullLogger(),
	})
	require.NoError(t, err)

	go s.Start()
	t.Cleanup(s.Stop)

	base := fmt.Sprintf("http://%s", s.Addr().String())
	require.Eventually(t, func() bool {
		resp, err := http.Get(base + "/api/health")
		if err != nil {
			return false
		}
		resp.Body.Close()
		return true
	}, time.Second, 10*time.Millisecond)

	return s, base
}

func TestHandleHealth_ReportsAuthRequired(t *testing.T) {
	_, base := newTestServer(t, nil)

	resp, err := http.Get(base + "/api/health")
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)

	var body map[string]interface{}
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&body))
	require.Equal(t, false, body["auth_required"])
}

// TestHandleHealth_BlacklistedPeerIsRejected covers spec.md §8 scenario S3,
// using loopback addresses (the only peer address available to an
// in-process test) as the literal/wildcard match target.
func TestHandleHealth_BlacklistedPeerIsRejected(t *testing.T) {
	_, base := newTestServer(t, func(c *agentconfig.Config) {
		c.EnableIPBlacklist = true
		c.IPBlacklist = []string{"127.0.0.1"}
	})

	resp, err := http.Get(base + "/api/health")
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, http.StatusForbidden, resp.StatusCode)

	var body map[string]string
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&body))
	require.Equal(t, "ip_blacklisted", body["error"])
}

func TestAuthFlow_ChallengeVerifyThenProtectedRoute(t *testing.T) {
	s, base := newTestServer(t, nil)
	_, err := s.auth.SetPassword("hunter2")
	require.NoError(t, err)

	resp, err := http.Post(base+"/api/auth/challenge", "application/json", nil)
	require.NoError(t, err)
	var challenge map[string]interface{}
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&challenge))
	resp.Body.Close()
	nonce := challenge["nonce"].(string)

	mac := hmac.New(sha256.New, []byte("hunter2"))
	mac.Write([]byte(nonce))

	verifyBody, _ := json.Marshal(map[string]interface{}{
		"nonce":    nonce,
		"response": mac.Sum(nil),
	})
	resp, err = http.Post(base+"/api/auth/verify", "application/json", bytes.NewReader(verifyBody))
	require.NoError(t, err)
	require.Equal(t, http.StatusOK, resp.StatusCode)

	var verified map[string]interface{}
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&verified))
	resp.Body.Close()
	token := verified["token"].(string)
	require.NotEmpty(t, token)

	req, _ := http.NewRequest(http.MethodGet, base+"/api/system/info", nil)
	req.Header.Set("Authorization", "Bearer "+token)
	resp, err = http.DefaultClient.Do(req)
	require.NoError(t, err)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	resp.Body.Close()

	req2, _ := http.NewRequest(http.MethodGet, base+"/api/system/info", nil)
	resp, err = http.DefaultClient.Do(req2)
	require.NoError(t, err)
	require.Equal(t, http.StatusUnauthorized, resp.StatusCode)
	resp.Body.Close()
}

// TestCommandExecute_WhitelistGate covers spec.md §8 scenario S4.
func TestCommandExecute_WhitelistGate(t *testing.T) {
	_, base := newTestServer(t, func(c *agentconfig.Config) {
		c.CommandWhitelist = []string{"shutdown"}
		c.CustomCommands = nil
	})

	body, _ := json.Marshal(map[string]interface{}{"command": "custom", "args": []string{"ipconfig"}})
	resp, err := http.Post(base+"/api/command/execute", "application/json", bytes.NewReader(body))
	require.NoError(t, err)
	require.Equal(t, http.StatusForbidden, resp.StatusCode)
	resp.Body.Close()
}
