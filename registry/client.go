package registry

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net"
	"net/http"
	"strconv"
	"time"

	gometrics "github.com/armon/go-metrics"
	cleanhttp "github.com/hashicorp/go-cleanhttp"
	"golang.org/x/time/rate"

	"github.com/lanreach/lanreach/command_run"
	"github.com/lanreach/lanreach/sysinfo"
)

// instrumentedRoundTripper rate limits and emits armon/go-metrics timing and
// counter measurements for every outbound request, adapted from the
// teacher's rate_limiter.CustomRoundTripper with "source" relabeled to the
// target device's uuid.
type instrumentedRoundTripper struct {
	rt      http.RoundTripper
	source  string
	limiter *rate.Limiter
}

func (t *instrumentedRoundTripper) RoundTrip(req *http.Request) (*http.Response, error) {
	if t.limiter != nil {
		if err := t.limiter.Wait(req.Context()); err != nil {
			return nil, fmt.Errorf("registry: rate limit wait: %w", err)
		}
	}

	labels := []gometrics.Label{
		{Name: "method", Value: req.Method},
		{Name: "device", Value: t.source},
	}
	defer gometrics.MeasureSinceWithLabels([]string{"registry", "client", "dur"}, time.Now(), labels)

	resp, err := t.rt.RoundTrip(req)
	if err == nil && resp != nil {
		gometrics.IncrCounterWithLabels([]string{"registry", "client", "req"}, 1, labels)
	}
	return resp, err
}

// newAgentHTTPClient builds the shared cleanhttp-pooled client instrumented
// and rate limited per target device (ratePerSec <= 0 disables limiting).
func newAgentHTTPClient(deviceUUID string, ratePerSec int) *http.Client {
	httpClient := cleanhttp.DefaultPooledClient()
	httpClient.Transport.(*http.Transport).MaxConnsPerHost = 8
	httpClient.Timeout = 10 * time.Second

	crt := &instrumentedRoundTripper{rt: httpClient.Transport, source: deviceUUID}
	if ratePerSec > 0 {
		crt.limiter = rate.NewLimiter(rate.Limit(ratePerSec), ratePerSec)
	}
	httpClient.Transport = crt
	return httpClient
}

// Client talks to a single agent's HTTP API from the controller side
// (spec.md §6). The controller builds one Client per saved device it
// connects to; the Prober shares a single Client across all devices.
type Client struct {
	httpClient *http.Client
}

// NewClient builds a Client with its own pooled connections, labelling its
// request metrics with deviceUUID and limiting everything sent through it
// to 20 requests per second.
func NewClient(deviceUUID string) *Client {
	return &Client{httpClient: newAgentHTTPClient(deviceUUID, 20)}
}

func deviceBaseURL(d SavedDevice) string {
	return "http://" + net.JoinHostPort(d.IP, strconv.Itoa(d.Port))
}

func (c *Client) do(ctx context.Context, method, url string, body, out interface{}, bearer string) error {
	var reader *bytes.Reader
	if body != nil {
		raw, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("registry: encoding request: %w", err)
		}
		reader = bytes.NewReader(raw)
	} else {
		reader = bytes.NewReader(nil)
	}

	req, err := http.NewRequestWithContext(ctx, method, url, reader)
	if err != nil {
		return fmt.Errorf("registry: building request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	if bearer != "" {
		req.Header.Set("Authorization", "Bearer "+bearer)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("registry: request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 400 {
		var envelope struct {
			Error   string `json:"error"`
			Message string `json:"message"`
		}
		_ = json.NewDecoder(resp.Body).Decode(&envelope)
		return &apiError{Status: resp.StatusCode, Tag: envelope.Error, Message: envelope.Message}
	}

	if out == nil {
		return nil
	}
	return json.NewDecoder(resp.Body).Decode(out)
}

// apiError carries an agent's {error,message} envelope back to the
// controller so it can classify it per spec.md §7's controller-side
// mapping (auth/connection/network/server/permission/unknown).
type apiError struct {
	Status  int
	Tag     string
	Message string
}

func (e *apiError) Error() string { return fmt.Sprintf("%s: %s", e.Tag, e.Message) }

// Health asks whether the device is alive and whether it requires
// authentication (spec.md §4.7 "credential flow on connect" step 1).
func (c *Client) Health(ctx context.Context, d SavedDevice) (alive bool, authRequired bool, err error) {
	var out struct {
		Status       string `json:"status"`
		UUID         string `json:"uuid"`
		AuthRequired bool   `json:"auth_required"`
	}
	if err := c.do(ctx, http.MethodGet, deviceBaseURL(d)+"/api/health", nil, &out, ""); err != nil {
		return false, false, err
	}
	return out.Status == "ok", out.AuthRequired, nil
}

// Challenge requests a fresh nonce.
func (c *Client) Challenge(ctx context.Context, d SavedDevice) (nonce string, ttl time.Duration, err error) {
	var out struct {
		Nonce      string `json:"nonce"`
		TTLSeconds int    `json:"ttl_seconds"`
	}
	if err := c.do(ctx, http.MethodPost, deviceBaseURL(d)+"/api/auth/challenge", nil, &out, ""); err != nil {
		return "", 0, err
	}
	return out.Nonce, time.Duration(out.TTLSeconds) * time.Second, nil
}

// Verify posts the HMAC response for nonce and returns the session token.
func (c *Client) Verify(ctx context.Context, d SavedDevice, nonce string, response []byte) (token string, expiresIn time.Duration, err error) {
	body := struct {
		Nonce    string `json:"nonce"`
		Response []byte `json:"response"`
	}{Nonce: nonce, Response: response}

	var out struct {
		Token     string `json:"token"`
		ExpiresIn int    `json:"expires_in"`
	}
	if err := c.do(ctx, http.MethodPost, deviceBaseURL(d)+"/api/auth/verify", body, &out, ""); err != nil {
		return "", 0, err
	}
	return out.Token, time.Duration(out.ExpiresIn) * time.Second, nil
}

// Logout revokes token on the device.
func (c *Client) Logout(ctx context.Context, d SavedDevice, token string) error {
	return c.do(ctx, http.MethodPost, deviceBaseURL(d)+"/api/auth/logout", nil, nil, token)
}

// SystemInfo fetches the device's host snapshot.
func (c *Client) SystemInfo(ctx context.Context, d SavedDevice, token string) (sysinfo.Snapshot, error) {
	var out sysinfo.Snapshot
	err := c.do(ctx, http.MethodGet, deviceBaseURL(d)+"/api/system/info", nil, &out, token)
	return out, err
}

// ExecuteCommandResult is the controller-side shape of a command execution
// response.
type ExecuteCommandResult struct {
	Stdout          string `json:"stdout"`
	Stderr          string `json:"stderr"`
	ExitCode        *int   `json:"exit_code"`
	TimedOut        bool   `json:"timed_out"`
	Truncated       bool   `json:"truncated"`
	ExecutionTimeMs int64  `json:"execution_time_ms"`
}

// Execute runs a whitelisted command on the device.
func (c *Client) Execute(ctx context.Context, d SavedDevice, token string, req command_run.Request, timeoutMs int64) (ExecuteCommandResult, error) {
	body := struct {
		Command   string   `json:"command"`
		Args      []string `json:"args"`
		TimeoutMs int64    `json:"timeout_ms"`
	}{Command: req.Command, Args: req.Args, TimeoutMs: timeoutMs}

	var out ExecuteCommandResult
	err := c.do(ctx, http.MethodPost, deviceBaseURL(d)+"/api/command/execute", body, &out, token)
	return out, err
}
