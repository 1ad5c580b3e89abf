package service

import (
	"context"
	"sync"
	"testing"
	"time"

	dto "github.com/prometheus/client_model/go"

	"ipotracker/internal/client/exchange"
	"ipotracker/internal/metrics"
	gormrepository "ipotracker/internal/repository/gorm"
	"ipotracker/internal/sebi"
	"ipotracker/internal/testutil"
)

// testNow is Wednesday 10 December 2025, 12:00 IST.
var testNow = time.Date(2025, 12, 10, 6, 30, 0, 0, time.UTC)

func fixedNow() time.Time { return testNow }

func day(y int, m time.Month, d int) *time.Time {
	t := time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
	return &t
}

func newTestStore(t *testing.T) *gormrepository.Store {
	t.Helper()
	return gormrepository.New(testutil.NewSQLiteDB(t).Gorm)
}

func newTestCalendar(t *testing.T, holidays ...string) *sebi.Calendar {
	t.Helper()
	cal, err := sebi.NewCalendar(sebi.DefaultTimezone, holidays)
	if err != nil {
		t.Fatalf("calendar: %v", err)
	}
	return cal
}

// stubClient serves canned listings and details. When gate is set,
// FetchDetail blocks until it is closed.
type stubClient struct {
	source      exchange.Source
	current     []exchange.Listing
	upcoming    []exchange.Listing
	currentErr  error
	upcomingErr error
	details     map[string]*exchange.Detail
	detailErr   error
	gate        chan struct{}
	started     chan struct{}

	mu          sync.Mutex
	detailCalls int
}

func (c *stubClient) Source() exchange.Source { return c.source }

func (c *stubClient) ListCurrent(ctx context.Context) ([]exchange.Listing, error) {
	return c.current, c.currentErr
}

func (c *stubClient) ListUpcoming(ctx context.Context) ([]exchange.Listing, error) {
	return c.upcoming, c.upcomingErr
}

func (c *stubClient) ListPast(ctx context.Context) ([]exchange.Listing, error) {
	return nil, nil
}

func (c *stubClient) FetchDetail(ctx context.Context, symbolOrCode, seriesHint string) (*exchange.Detail, error) {
	c.mu.Lock()
	c.detailCalls++
	c.mu.Unlock()
	if c.started != nil {
		select {
		case c.started <- struct{}{}:
		default:
		}
	}
	if c.gate != nil {
		select {
		case <-c.gate:
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
	if c.detailErr != nil {
		return nil, c.detailErr
	}
	return c.details[symbolOrCode], nil
}

func (c *stubClient) calls() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.detailCalls
}

func counterValue(t *testing.T, m *metrics.Pipeline, name string) float64 {
	t.Helper()
	families, err := m.Registry().Gather()
	if err != nil {
		t.Fatalf("gather: %v", err)
	}
	var total float64
	for _, family := range families {
		if family.GetName() != name {
			continue
		}
		for _, metric := range family.GetMetric() {
			total += counterOf(metric)
		}
	}
	return total
}

func counterOf(m *dto.Metric) float64 {
	if m.GetCounter() == nil {
		return 0
	}
	return m.GetCounter().GetValue()
}
