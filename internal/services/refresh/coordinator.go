package refresh

import (
	"context"
	"sync"
	"time"

	"github.com/bobmcallan/folio/internal/common"
	"github.com/bobmcallan/folio/internal/interfaces"
	"github.com/bobmcallan/folio/internal/models"
)

// Compile-time interface check
var _ interfaces.SnapshotRefresher = (*Resource[*models.AccountSnapshot])(nil)

// Coordinator owns the shared snapshot and signal-count resources and the
// fixed-period pollers that keep them current.
type Coordinator struct {
	Snapshot *Resource[*models.AccountSnapshot]
	Signals  *Resource[int]

	snapshotInterval time.Duration
	signalsInterval  time.Duration
	logger           *common.Logger

	mu     sync.Mutex
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// NewCoordinator creates a coordinator over the account service and broker
func NewCoordinator(accounts interfaces.AccountService, broker interfaces.BrokerClient, config *common.Config, logger *common.Logger) *Coordinator {
	debounce := config.Refresh.GetDebounce()
	return &Coordinator{
		Snapshot:         NewResource("snapshot", accounts.Refresh, debounce, logger),
		Signals:          NewResource("signals", broker.GetUnreadSignalCount, debounce, logger),
		snapshotInterval: config.Refresh.GetSnapshotInterval(),
		signalsInterval:  config.Refresh.GetSignalsInterval(),
		logger:           logger,
	}
}

// Start launches the pollers. They run until Stop is called or ctx is done.
func (c *Coordinator) Start(ctx context.Context) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.cancel != nil {
		return
	}
	ctx, c.cancel = context.WithCancel(ctx)

	c.wg.Add(2)
	go func() {
		defer c.wg.Done()
		poll(ctx, c.Snapshot, c.snapshotInterval, c.logger)
	}()
	go func() {
		defer c.wg.Done()
		poll(ctx, c.Signals, c.signalsInterval, c.logger)
	}()

	c.logger.Info().
		Dur("snapshot_interval", c.snapshotInterval).
		Dur("signals_interval", c.signalsInterval).
		Msg("Refresh pollers started")
}

// Stop cancels the pollers and waits for them to exit
func (c *Coordinator) Stop() {
	c.mu.Lock()
	cancel := c.cancel
	c.cancel = nil
	c.mu.Unlock()
	if cancel == nil {
		return
	}
	cancel()
	c.wg.Wait()
}

// poll refreshes r on a fixed interval, whether or not anyone is subscribed.
func poll[T any](ctx context.Context, r *Resource[T], interval time.Duration, logger *common.Logger) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			logger.Info().Str("resource", r.name).Msg("Poller: stopped")
			return
		case <-ticker.C:
			start := time.Now()
			r.Invalidate()
			if _, err := r.Get(ctx); err != nil {
				logger.Warn().Err(err).Str("resource", r.name).Msg("Poller: refresh failed")
				continue
			}
			logger.Debug().Str("resource", r.name).Dur("elapsed", time.Since(start)).Msg("Poller: refreshed")
		}
	}
}
