package httpapi

import (
	"encoding/json"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/gorilla/websocket"

	"github.com/lanreach/lanreach/command_run"
	"github.com/lanreach/lanreach/metrics"
	"github.com/lanreach/lanreach/sysinfo"
)

func (s *Server) registerRoutes() {
	s.mux.HandleFunc("/api/health", s.wrap("/api/health", s.handleHealth))
	s.mux.HandleFunc("/api/auth/challenge", s.wrap("/api/auth/challenge", s.handleAuthChallenge))
	s.mux.HandleFunc("/api/auth/verify", s.wrap("/api/auth/verify", s.handleAuthVerify))
	s.mux.HandleFunc("/api/auth/logout", s.wrap("/api/auth/logout", s.handleAuthLogout))
	s.mux.HandleFunc("/api/system/info", s.wrap("/api/system/info", s.handleSystemInfo))
	s.mux.HandleFunc("/api/command/execute", s.wrap("/api/command/execute", s.handleCommandExecute))
	s.mux.HandleFunc("/api/system/shutdown", s.wrap("/api/system/shutdown", s.shortcutHandler("shutdown")))
	s.mux.HandleFunc("/api/system/restart", s.wrap("/api/system/restart", s.shortcutHandler("restart")))
	s.mux.HandleFunc("/api/system/sleep", s.wrap("/api/system/sleep", s.shortcutHandler("sleep")))
	s.mux.HandleFunc("/api/system/lock", s.wrap("/api/system/lock", s.shortcutHandler("lock")))
	s.mux.HandleFunc("/api/logs", s.wrap("/api/logs", s.handleLogs))
	s.mux.HandleFunc("/ws", s.wrap("/ws", s.handleWebSocket))
	s.mux.Handle("/api/metrics", metrics.PrometheusHandler())
}

func decodeJSONBody(r *http.Request, v interface{}) error {
	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()
	if err := dec.Decode(v); err != nil {
		return errBadRequest("malformed request body")
	}
	return nil
}

func requireMethod(r *http.Request, method string) error {
	if r.Method != method {
		return errBadRequest("method not allowed on this route")
	}
	return nil
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) (interface{}, error) {
	if err := requireMethod(r, http.MethodGet); err != nil {
		return nil, err
	}
	return map[string]interface{}{
		"status":        "ok",
		"uuid":          s.identity.UUID,
		"auth_required": s.auth.IsAuthRequired(),
	}, nil
}

func (s *Server) handleAuthChallenge(w http.ResponseWriter, r *http.Request) (interface{}, error) {
	if err := requireMethod(r, http.MethodPost); err != nil {
		return nil, err
	}
	c, err := s.auth.IssueChallenge()
	if err != nil {
		return nil, errInternal(err.Error())
	}
	return map[string]interface{}{
		"nonce":       c.Nonce,
		"ttl_seconds": int(c.TTL.Seconds()),
	}, nil
}

type verifyRequest struct {
	Nonce    string `json:"nonce"`
	Response []byte `json:"response"`
}

func (s *Server) handleAuthVerify(w http.ResponseWriter, r *http.Request) (interface{}, error) {
	if err := requireMethod(r, http.MethodPost); err != nil {
		return nil, err
	}

	var req verifyRequest
	if err := decodeJSONBody(r, &req); err != nil {
		return nil, err
	}

	tok, err := s.auth.VerifyResponse(req.Nonce, req.Response, peerAddr(r))
	if err != nil {
		return nil, translateAuthError(err)
	}

	return map[string]interface{}{
		"token":      tok.Token,
		"expires_in": int(tok.ExpiresAt.Sub(tok.IssuedAt).Seconds()),
	}, nil
}

func (s *Server) handleAuthLogout(w http.ResponseWriter, r *http.Request) (interface{}, error) {
	if err := requireMethod(r, http.MethodPost); err != nil {
		return nil, err
	}
	s.auth.RevokeToken(bearerToken(r))
	return map[string]interface{}{"status": "ok"}, nil
}

func (s *Server) handleSystemInfo(w http.ResponseWriter, r *http.Request) (interface{}, error) {
	if err := requireMethod(r, http.MethodGet); err != nil {
		return nil, err
	}
	snap, err := sysinfo.Collect()
	if err != nil {
		return nil, errInternal(err.Error())
	}
	return snap, nil
}

type executeRequest struct {
	Command   string   `json:"command"`
	Args      []string `json:"args"`
	TimeoutMs int64    `json:"timeout_ms"`
}

func (s *Server) handleCommandExecute(w http.ResponseWriter, r *http.Request) (interface{}, error) {
	if err := requireMethod(r, http.MethodPost); err != nil {
		return nil, err
	}

	var req executeRequest
	if err := decodeJSONBody(r, &req); err != nil {
		return nil, err
	}

	return s.runCommand(r, command_run.Request{Command: req.Command, Args: req.Args}, req.TimeoutMs)
}

// shortcutHandler builds a handler for the POST /api/system/{shutdown,
// restart,sleep,lock} routes, each a fixed shortcut for its matching
// built-in command (spec.md §6).
func (s *Server) shortcutHandler(token string) func(w http.ResponseWriter, r *http.Request) (interface{}, error) {
	return func(w http.ResponseWriter, r *http.Request) (interface{}, error) {
		if err := requireMethod(r, http.MethodPost); err != nil {
			return nil, err
		}
		return s.runCommand(r, command_run.Request{Command: token}, 0)
	}
}

func (s *Server) runCommand(r *http.Request, req command_run.Request, timeoutMs int64) (interface{}, error) {
	cfg := s.cfgStore.Snapshot()

	allowed := command_run.Allows(req, cfg.CommandWhitelist, cfg.CustomCommands)

	s.logs.Append("info", "command", "command execution attempt", map[string]any{
		"peer":    peerAddr(r),
		"command": req.Command,
		"args":    req.Args,
		"allowed": allowed,
	})

	if !allowed {
		return nil, errCommandNotAllowed()
	}

	resolved, err := command_run.Resolve(req)
	if err != nil {
		return nil, errBadRequest(err.Error())
	}

	var timeout time.Duration
	if timeoutMs > 0 {
		timeout = time.Duration(timeoutMs) * time.Millisecond
	}

	result, err := s.executor.Run(r.Context(), resolved, timeout)
	if err != nil {
		return nil, errInternal(err.Error())
	}

	return map[string]interface{}{
		"stdout":             result.Stdout,
		"stderr":             result.Stderr,
		"exit_code":          result.ExitCode,
		"timed_out":          result.TimedOut,
		"truncated":          result.Truncated,
		"execution_time_ms":  result.ExecutionTimeMs,
	}, nil
}

func (s *Server) handleLogs(w http.ResponseWriter, r *http.Request) (interface{}, error) {
	if err := requireMethod(r, http.MethodGet); err != nil {
		return nil, err
	}

	q := r.URL.Query()
	limit := 100
	if raw := q.Get("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n < 0 {
			return nil, errBadRequest("limit must be a non-negative integer")
		}
		limit = n
	}

	level := q.Get("level")
	substr := q.Get("q")

	records := s.logs.Ring.Snapshot(0)
	filtered := make([]interface{}, 0, limit)
	for _, rec := range records {
		if level != "" && !strings.EqualFold(rec.Level, level) {
			continue
		}
		if substr != "" && !strings.Contains(rec.Message, substr) {
			continue
		}
		filtered = append(filtered, rec)
		if len(filtered) >= limit {
			break
		}
	}

	return map[string]interface{}{"records": filtered}, nil
}

var upgrader = websocket.Upgrader{
	CheckOrigin: func(r *http.Request) bool { return true },
}

func (s *Server) handleWebSocket(w http.ResponseWriter, r *http.Request) (interface{}, error) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		return nil, errBadRequest("websocket upgrade failed")
	}
	s.logs.Hub.Serve(conn)
	return nil, nil
}
