// Package runlog posts pipeline run reports to an external log service.
// Every call is best effort: a missing or failing sink never affects a run.
package runlog

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"strings"
	"sync"
	"time"
)

const (
	EnvBaseURL = "IPO_RUNLOG_BASE"
	EnvAPIKey  = "IPO_RUNLOG_API_KEY"
	EnvAgent   = "IPO_RUNLOG_AGENT"

	defaultAgent = "ipo-tracker"
)

type Client struct {
	BaseURL string
	APIKey  string
	Agent   string

	mu        sync.RWMutex
	token     string
	expiresAt time.Time

	HTTP *http.Client
}

// FromEnv returns a client when both the base URL and the API key are set,
// nil otherwise.
func FromEnv() *Client {
	base := strings.TrimSpace(os.Getenv(EnvBaseURL))
	key := strings.TrimSpace(os.Getenv(EnvAPIKey))
	if base == "" || key == "" {
		return nil
	}
	return &Client{BaseURL: base, APIKey: key, Agent: strings.TrimSpace(os.Getenv(EnvAgent))}
}

type loginResponse struct {
	Token     string `json:"token"`
	ExpiresAt string `json:"expires_at"`
}

const (
	pathLogin = "/api/v1/auth/login"
	pathLogs  = "/api/v1/logs"
)

// errUnauthorized marks a rejected bearer token so CreateLog can log in again.
var errUnauthorized = errors.New("runlog token rejected")

func (c *Client) Login(ctx context.Context) error {
	apiKey := strings.TrimSpace(c.APIKey)
	if apiKey == "" {
		return errors.New("runlog api key is empty")
	}

	var lr loginResponse
	if err := c.postJSON(ctx, pathLogin, "", map[string]any{"api_key": apiKey}, &lr); err != nil {
		return fmt.Errorf("runlog login: %w", err)
	}
	exp, _ := time.Parse(time.RFC3339, strings.TrimSpace(lr.ExpiresAt))

	c.mu.Lock()
	c.token = strings.TrimSpace(lr.Token)
	c.expiresAt = exp
	c.mu.Unlock()
	return nil
}

func (c *Client) Token() string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.token
}

// EnsureToken logs in when there is no token or it expires within two minutes.
func (c *Client) EnsureToken(ctx context.Context) error {
	c.mu.RLock()
	tok, exp := c.token, c.expiresAt
	c.mu.RUnlock()
	if tok == "" || (!exp.IsZero() && time.Until(exp) < 2*time.Minute) {
		return c.Login(ctx)
	}
	return nil
}

type CreateLogRequest struct {
	Agent      string         `json:"agent"`
	Action     string         `json:"action"`
	Level      string         `json:"level"`
	Details    map[string]any `json:"details"`
	SessionKey string         `json:"session_key"`
	Metadata   map[string]any `json:"metadata"`
}

// CreateLog posts one report. A token the sink no longer accepts is replaced
// by a fresh login and the post is retried once.
func (c *Client) CreateLog(ctx context.Context, req CreateLogRequest) error {
	if err := c.EnsureToken(ctx); err != nil {
		return err
	}
	err := c.postJSON(ctx, pathLogs, c.Token(), req, nil)
	if errors.Is(err, errUnauthorized) {
		if err := c.Login(ctx); err != nil {
			return err
		}
		err = c.postJSON(ctx, pathLogs, c.Token(), req, nil)
	}
	if err != nil {
		return fmt.Errorf("runlog create log: %w", err)
	}
	return nil
}

func (c *Client) postJSON(ctx context.Context, path, token string, in, out any) error {
	base := strings.TrimRight(strings.TrimSpace(c.BaseURL), "/")
	if base == "" {
		return errors.New("runlog base url is empty")
	}
	body, err := json.Marshal(in)
	if err != nil {
		return err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, base+path, bytes.NewReader(body))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}

	resp, err := c.httpClient().Do(req)
	if err != nil {
		return err
	}
	defer func() { _ = resp.Body.Close() }()
	b, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return err
	}
	if resp.StatusCode == http.StatusUnauthorized && token != "" {
		return errUnauthorized
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return fmt.Errorf("http %d: %s", resp.StatusCode, strings.TrimSpace(string(b)))
	}
	if out == nil {
		return nil
	}
	return json.Unmarshal(b, out)
}

// Report sends one run report with a short timeout of its own. A nil client
// does nothing.
func (c *Client) Report(action, level string, details map[string]any) error {
	if c == nil {
		return nil
	}
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	if details == nil {
		details = map[string]any{}
	}
	return c.CreateLog(ctx, CreateLogRequest{
		Agent:    c.agent(),
		Action:   action,
		Level:    level,
		Details:  details,
		Metadata: map[string]any{},
	})
}

// LevelFor maps a run error to a report level.
func LevelFor(err error) string {
	if err != nil {
		return "error"
	}
	return "info"
}

func (c *Client) agent() string {
	if a := strings.TrimSpace(c.Agent); a != "" {
		return a
	}
	return defaultAgent
}

func (c *Client) httpClient() *http.Client {
	if c.HTTP != nil {
		return c.HTTP
	}
	return &http.Client{Timeout: 10 * time.Second}
}
