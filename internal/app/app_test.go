package app

import (
	"context"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/bobmcallan/folio/internal/common"
	"github.com/bobmcallan/folio/internal/interfaces"
	"github.com/bobmcallan/folio/internal/models"
)

// newTestBroker serves one deposit and one AAPL holding.
func newTestBroker(t *testing.T) *httptest.Server {
	t.Helper()
	mux := http.NewServeMux()
	mux.HandleFunc("/users/profile/", func(w http.ResponseWriter, r *http.Request) {
		_, _ = io.WriteString(w, `{"balance":"8500.00"}`)
	})
	mux.HandleFunc("/holdings/", func(w http.ResponseWriter, r *http.Request) {
		_, _ = io.WriteString(w, `[{"stock":"AAPL","quantity":10,"buying_price":"150.00","current_price":"160.00"}]`)
	})
	mux.HandleFunc("/transactions/", func(w http.ResponseWriter, r *http.Request) {
		_, _ = io.WriteString(w, `[
			{"id":2,"transaction_type":"buy","debit":"1500.00","credit":"0.00","description":"Bought 10 shares of AAPL at $150.00 per share","date":"2024-03-01T10:01:00Z","balance_after":"8500.00"},
			{"id":1,"transaction_type":"deposit","debit":"0.00","credit":"10000.00","description":"Initial deposit","date":"2024-03-01T10:00:00Z","balance_after":"10000.00"}]`)
	})
	mux.HandleFunc("/signals/unread_count/", func(w http.ResponseWriter, r *http.Request) {
		_, _ = io.WriteString(w, `{"unread_count":3}`)
	})
	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)
	return srv
}

func newTestApp(t *testing.T, baseURL, dataDir string) *App {
	t.Helper()
	cfg := common.NewDefaultConfig()
	cfg.API.BaseURL = baseURL
	cfg.API.Token = "test-token"
	cfg.API.RateLimit = 1000
	cfg.Storage.Path = dataDir

	a, err := NewAppWithConfig(cfg, common.NewSilentLogger())
	require.NoError(t, err)
	return a
}

func TestNewAppWithConfig_InitializesAllServices(t *testing.T) {
	srv := newTestBroker(t)
	a := newTestApp(t, srv.URL, filepath.Join(t.TempDir(), "data"))
	defer a.Close()

	assert.NotNil(t, a.Storage)
	assert.NotNil(t, a.Broker)
	assert.NotNil(t, a.AccountService)
	assert.NotNil(t, a.Coordinator)
	assert.NotNil(t, a.TradeService)
	assert.NotNil(t, a.TimeSeriesService)
	assert.False(t, a.StartupTime.IsZero())
}

func TestApp_SnapshotSurvivesRestart(t *testing.T) {
	srv := newTestBroker(t)
	dataDir := filepath.Join(t.TempDir(), "data")

	first := newTestApp(t, srv.URL, dataDir)
	snap, err := first.Coordinator.Snapshot.Get(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "10100.00", snap.NetWorth.String())

	count, err := first.Coordinator.Signals.Get(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 3, count)
	first.Close()

	// The broker is gone; the stored snapshot is still served, marked stale.
	srv.Close()
	second := newTestApp(t, srv.URL, dataDir)
	defer second.Close()
	second.Restore(context.Background())

	restored, status := second.AccountService.Current()
	require.NotNil(t, restored)
	assert.Equal(t, "8500.00", restored.CashBalance.String())
	assert.True(t, status.Stale)
}

func TestApp_StartAndCloseBackground(t *testing.T) {
	srv := newTestBroker(t)
	a := newTestApp(t, srv.URL, filepath.Join(t.TempDir(), "data"))
	a.StartBackground()
	a.Close()
	a.Close()
}

type stubTrades struct {
	interfaces.TradeService
	outcomes map[string]models.ReconcileOutcome
	err      error
	calls    int
}

func (s *stubTrades) ReconcilePending(context.Context) (map[string]models.ReconcileOutcome, error) {
	s.calls++
	return s.outcomes, s.err
}

func TestReconcilePending_LogsOutcomes(t *testing.T) {
	trades := &stubTrades{outcomes: map[string]models.ReconcileOutcome{
		"a": models.OutcomeRecorded,
		"b": models.OutcomeNotRecorded,
	}}
	reconcilePending(context.Background(), trades, common.NewSilentLogger())
	assert.Equal(t, 1, trades.calls)

	trades.err = errors.New("offline")
	reconcilePending(context.Background(), trades, common.NewSilentLogger())
	assert.Equal(t, 2, trades.calls)
}
