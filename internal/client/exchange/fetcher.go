package exchange

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/http/cookiejar"
	"net/url"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"
	"golang.org/x/net/publicsuffix"
	"golang.org/x/time/rate"
)

// ErrBlocked is returned once every retry of a transient refusal (403, 429,
// 503, bot challenge, transport failure) has been used up.
var ErrBlocked = errors.New("exchange kept refusing requests")

type APIError struct {
	Status int
	Body   string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("API error (%d): %s", e.Status, e.Body)
}

type FetcherConfig struct {
	BaseURL     string
	Referer     string
	UserAgent   string
	Timeout     time.Duration
	MaxRetries  int
	BaseBackoff time.Duration

	RatePerSecond float64
	Burst         int

	// WarmupURL is fetched to collect session cookies after a 403.
	WarmupURL      string
	BrowserWarmup  bool
	BrowserTimeout time.Duration
}

// Fetcher performs paced GET requests against one exchange host and retries
// transient refusals with increasing backoff.
type Fetcher struct {
	cfg     FetcherConfig
	client  *http.Client
	limiter *rate.Limiter
	logger  *zap.Logger

	// browserCookies is swapped out in tests.
	browserCookies func(ctx context.Context, pageURL string, timeout time.Duration) ([]*http.Cookie, error)

	warmMu   sync.Mutex
	warmedAt time.Time
}

func NewFetcher(cfg FetcherConfig, logger *zap.Logger) (*Fetcher, error) {
	cfg.BaseURL = strings.TrimRight(strings.TrimSpace(cfg.BaseURL), "/")
	if cfg.BaseURL == "" {
		return nil, errors.New("exchange base url is empty")
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 20 * time.Second
	}
	if cfg.MaxRetries < 0 {
		cfg.MaxRetries = 0
	}
	if cfg.BaseBackoff <= 0 {
		cfg.BaseBackoff = time.Second
	}
	if cfg.BrowserTimeout <= 0 {
		cfg.BrowserTimeout = 45 * time.Second
	}
	limit := rate.Inf
	if cfg.RatePerSecond > 0 {
		limit = rate.Limit(cfg.RatePerSecond)
	}
	burst := cfg.Burst
	if burst <= 0 {
		burst = 1
	}
	jar, err := cookiejar.New(&cookiejar.Options{PublicSuffixList: publicsuffix.List})
	if err != nil {
		return nil, err
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Fetcher{
		cfg:            cfg,
		client:         &http.Client{Timeout: cfg.Timeout, Jar: jar},
		limiter:        rate.NewLimiter(limit, burst),
		logger:         logger,
		browserCookies: browserSessionCookies,
	}, nil
}

func (f *Fetcher) BaseURL() string {
	return f.cfg.BaseURL
}

// Get fetches path (relative to the base URL) and returns the body of the
// first successful response.
func (f *Fetcher) Get(ctx context.Context, path string, query url.Values) ([]byte, error) {
	fullURL := f.cfg.BaseURL + path
	if len(query) > 0 {
		fullURL += "?" + query.Encode()
	}

	attempts := f.cfg.MaxRetries + 1
	var lastErr error
	for attempt := 0; attempt < attempts; attempt++ {
		if err := f.limiter.Wait(ctx); err != nil {
			return nil, err
		}
		body, status, err := f.do(ctx, fullURL)
		switch {
		case err != nil:
			if ctx.Err() != nil {
				return nil, ctx.Err()
			}
			lastErr = err
		case isChallenge(status, body):
			lastErr = fmt.Errorf("bot challenge (%d)", status)
			f.warmup(ctx)
		case status == http.StatusForbidden:
			lastErr = &APIError{Status: status, Body: snippet(body)}
			f.warmup(ctx)
		case status == http.StatusTooManyRequests || status == http.StatusServiceUnavailable:
			lastErr = &APIError{Status: status, Body: snippet(body)}
		case status < 200 || status >= 300:
			return nil, &APIError{Status: status, Body: snippet(body)}
		default:
			return body, nil
		}

		if attempt == attempts-1 {
			break
		}
		backoff := f.cfg.BaseBackoff * time.Duration(attempt+1)
		f.logger.Debug("exchange request refused, backing off",
			zap.String("url", fullURL),
			zap.Int("attempt", attempt+1),
			zap.Duration("backoff", backoff),
			zap.Error(lastErr),
		)
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-time.After(backoff):
		}
	}
	return nil, fmt.Errorf("%w: %s after %d attempts: %v", ErrBlocked, path, attempts, lastErr)
}

func (f *Fetcher) do(ctx context.Context, fullURL string) ([]byte, int, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, fullURL, nil)
	if err != nil {
		return nil, 0, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Accept", "application/json, text/plain, */*")
	req.Header.Set("Accept-Language", "en-US,en;q=0.9")
	if f.cfg.UserAgent != "" {
		req.Header.Set("User-Agent", f.cfg.UserAgent)
	}
	if f.cfg.Referer != "" {
		req.Header.Set("Referer", f.cfg.Referer)
	}
	resp, err := f.client.Do(req)
	if err != nil {
		return nil, 0, fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()
	body, err := io.ReadAll(io.LimitReader(resp.Body, 16<<20))
	if err != nil {
		return nil, resp.StatusCode, fmt.Errorf("failed to read response: %w", err)
	}
	return body, resp.StatusCode, nil
}

// warmup refreshes session cookies at most once a minute: first with a plain
// page load, then with a headless browser when enabled.
func (f *Fetcher) warmup(ctx context.Context) {
	if f.cfg.WarmupURL == "" {
		return
	}
	f.warmMu.Lock()
	defer f.warmMu.Unlock()
	if time.Since(f.warmedAt) < time.Minute {
		return
	}
	f.warmedAt = time.Now()

	_, status, err := f.do(ctx, f.cfg.WarmupURL)
	if err == nil && status >= 200 && status < 300 {
		return
	}
	if !f.cfg.BrowserWarmup || f.browserCookies == nil {
		return
	}
	cookies, err := f.browserCookies(ctx, f.cfg.WarmupURL, f.cfg.BrowserTimeout)
	if err != nil {
		f.logger.Warn("browser cookie warmup failed", zap.String("url", f.cfg.WarmupURL), zap.Error(err))
		return
	}
	u, err := url.Parse(f.cfg.BaseURL)
	if err != nil {
		return
	}
	f.client.Jar.SetCookies(u, cookies)
	f.logger.Info("browser cookie warmup ok", zap.Int("cookies", len(cookies)))
}

var challengeMarkers = [][]byte{
	[]byte("captcha"),
	[]byte("access denied"),
	[]byte("just a moment"),
	[]byte("challenge"),
}

// isChallenge spots interstitial HTML served in place of a JSON payload.
func isChallenge(status int, body []byte) bool {
	if status < 200 || status >= 300 {
		return false
	}
	trimmed := bytes.TrimSpace(body)
	if len(trimmed) == 0 || trimmed[0] != '<' {
		return false
	}
	lower := bytes.ToLower(trimmed)
	for _, marker := range challengeMarkers {
		if bytes.Contains(lower, marker) {
			return true
		}
	}
	return false
}

func snippet(body []byte) string {
	s := strings.TrimSpace(string(body))
	if len(s) > 256 {
		return s[:256]
	}
	return s
}
