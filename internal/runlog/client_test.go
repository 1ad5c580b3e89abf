package runlog

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"
)

type fakeSink struct {
	mu     sync.Mutex
	logins int
	logs   []CreateLogRequest
	auth   []string
}

func (f *fakeSink) handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/api/v1/auth/login", func(w http.ResponseWriter, r *http.Request) {
		f.mu.Lock()
		f.logins++
		f.mu.Unlock()
		_ = json.NewEncoder(w).Encode(map[string]string{
			"token":      "tok-1",
			"expires_at": time.Now().Add(time.Hour).UTC().Format(time.RFC3339),
		})
	})
	mux.HandleFunc("/api/v1/logs", func(w http.ResponseWriter, r *http.Request) {
		var req CreateLogRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}
		f.mu.Lock()
		f.logs = append(f.logs, req)
		f.auth = append(f.auth, r.Header.Get("Authorization"))
		f.mu.Unlock()
		w.WriteHeader(http.StatusCreated)
	})
	return mux
}

func (f *fakeSink) snapshot() (int, []CreateLogRequest, []string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.logins, append([]CreateLogRequest(nil), f.logs...), append([]string(nil), f.auth...)
}

func TestReportLogsInOnce(t *testing.T) {
	sink := &fakeSink{}
	srv := httptest.NewServer(sink.handler())
	defer srv.Close()

	c := &Client{BaseURL: srv.URL + "/", APIKey: "k"}
	for i := 0; i < 2; i++ {
		if err := c.Report("ipo_discovery", "info", map[string]any{"staged": 3}); err != nil {
			t.Fatalf("report: %v", err)
		}
	}

	logins, logs, auth := sink.snapshot()
	if logins != 1 {
		t.Fatalf("logins = %d, want 1", logins)
	}
	if len(logs) != 2 {
		t.Fatalf("logs = %d, want 2", len(logs))
	}
	if logs[0].Agent != defaultAgent || logs[0].Action != "ipo_discovery" {
		t.Fatalf("unexpected log %+v", logs[0])
	}
	if auth[1] != "Bearer tok-1" {
		t.Fatalf("authorization = %q", auth[1])
	}
}

func TestNilClientIsNoop(t *testing.T) {
	var c *Client
	if err := c.Report("x", "info", nil); err != nil {
		t.Fatalf("nil client report: %v", err)
	}
	ReportCtx(context.Background(), "x", "info", nil)
}

func TestFromEnvRequiresBothValues(t *testing.T) {
	t.Setenv(EnvBaseURL, "http://runlog.local")
	t.Setenv(EnvAPIKey, "")
	if FromEnv() != nil {
		t.Fatalf("expected nil client without api key")
	}
	t.Setenv(EnvAPIKey, "secret")
	if c := FromEnv(); c == nil || c.APIKey != "secret" {
		t.Fatalf("expected configured client, got %+v", c)
	}
}

func TestLoginFailureIsReported(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "bad key", http.StatusUnauthorized)
	}))
	defer srv.Close()

	c := &Client{BaseURL: srv.URL, APIKey: "k"}
	if err := c.Report("ipo_enrichment", "error", nil); err == nil {
		t.Fatalf("expected login error")
	}
}

func TestCreateLogLogsInAgainAfterRejectedToken(t *testing.T) {
	var (
		mu      sync.Mutex
		logins  int
		posts   int
		rejects = 1
	)
	mux := http.NewServeMux()
	mux.HandleFunc("/api/v1/auth/login", func(w http.ResponseWriter, r *http.Request) {
		mu.Lock()
		logins++
		mu.Unlock()
		_ = json.NewEncoder(w).Encode(map[string]string{"token": "tok"})
	})
	mux.HandleFunc("/api/v1/logs", func(w http.ResponseWriter, r *http.Request) {
		mu.Lock()
		defer mu.Unlock()
		if rejects > 0 {
			rejects--
			w.WriteHeader(http.StatusUnauthorized)
			return
		}
		posts++
		w.WriteHeader(http.StatusCreated)
	})
	srv := httptest.NewServer(mux)
	defer srv.Close()

	c := &Client{BaseURL: srv.URL, APIKey: "k"}
	if err := c.Report("ipo_reconciliation", "info", nil); err != nil {
		t.Fatalf("report: %v", err)
	}

	mu.Lock()
	defer mu.Unlock()
	if logins != 2 || posts != 1 {
		t.Fatalf("logins = %d posts = %d, want 2 and 1", logins, posts)
	}
}
