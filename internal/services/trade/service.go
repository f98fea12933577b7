// Package trade submits trades and cash movements to the system of record
package trade

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/bobmcallan/folio/internal/common"
	"github.com/bobmcallan/folio/internal/interfaces"
	"github.com/bobmcallan/folio/internal/models"
	"github.com/bobmcallan/folio/internal/services/holdings"
)

// Compile-time interface check
var _ interfaces.TradeService = (*Service)(nil)

// clockSkew bounds how far the remote ledger clock may lag the local one when
// matching a pending submission to a ledger entry.
const clockSkew = 2 * time.Minute

// Service executes writes against the broker. It never mutates local state:
// a confirmed write is followed by an invalidate and refresh, and a write with
// an unknown outcome is recorded as pending for reconciliation.
type Service struct {
	broker        interfaces.BrokerClient
	accounts      interfaces.AccountService
	refresher     interfaces.SnapshotRefresher
	pending       interfaces.PendingStore
	account       string
	clientChecks  bool
	submitTimeout time.Duration
	ledgerWindow  int
	logger        *common.Logger
	now           func() time.Time
}

// NewService creates a new trade service. pending may be nil, in which case
// ambiguous submissions are only reported to the caller.
func NewService(broker interfaces.BrokerClient, accounts interfaces.AccountService, refresher interfaces.SnapshotRefresher, pending interfaces.PendingStore, config *common.Config, logger *common.Logger) *Service {
	return &Service{
		broker:        broker,
		accounts:      accounts,
		refresher:     refresher,
		pending:       pending,
		account:       config.Account,
		clientChecks:  config.Trading.ClientChecks,
		submitTimeout: config.Trading.GetSubmitTimeout(),
		ledgerWindow:  config.Refresh.LedgerWindow,
		logger:        logger,
		now:           time.Now,
	}
}

func validateTrade(symbol string, quantity int64, price models.Money) (string, error) {
	symbol = models.NormalizeSymbol(symbol)
	if symbol == "" {
		return "", fmt.Errorf("%w: symbol is required", models.ErrInvalidQuantity)
	}
	if quantity <= 0 {
		return "", fmt.Errorf("%w: quantity must be positive, got %d", models.ErrInvalidQuantity, quantity)
	}
	if err := models.RequirePositive(price, "price"); err != nil {
		return "", err
	}
	return symbol, nil
}

// fresh returns the published snapshot when client checks are enabled and it
// is current. A stale or missing snapshot defers every check to the server.
func (s *Service) fresh() *models.AccountSnapshot {
	if !s.clientChecks {
		return nil
	}
	snap, status := s.accounts.Current()
	if snap == nil || status.Stale {
		return nil
	}
	return snap
}

// Buy purchases quantity shares of symbol at price
func (s *Service) Buy(ctx context.Context, symbol string, quantity int64, price models.Money) (*models.TradeResult, error) {
	symbol, err := validateTrade(symbol, quantity, price)
	if err != nil {
		return nil, err
	}
	cost := price.Mul(quantity)
	if snap := s.fresh(); snap != nil && cost.GreaterThan(snap.CashBalance) {
		return nil, fmt.Errorf("%w: required %s, available %s", models.ErrInsufficientBalance, cost, snap.CashBalance)
	}

	p := models.PendingSubmission{Kind: models.SubmissionBuy, Symbol: symbol, Quantity: quantity, Price: price, Amount: cost}
	return s.submit(ctx, p, func(ctx context.Context) (*models.TradeReceipt, error) {
		return s.broker.SubmitTrade(ctx, symbol, models.SideBuy, quantity, price)
	})
}

// Sell disposes of quantity shares of symbol at price
func (s *Service) Sell(ctx context.Context, symbol string, quantity int64, price models.Money) (*models.TradeResult, error) {
	symbol, err := validateTrade(symbol, quantity, price)
	if err != nil {
		return nil, err
	}
	if snap := s.fresh(); snap != nil {
		if held := snap.HeldQuantity(symbol); quantity > held {
			return nil, fmt.Errorf("%w: %s held %d, requested %d", models.ErrInsufficientShares, symbol, held, quantity)
		}
	}

	p := models.PendingSubmission{Kind: models.SubmissionSell, Symbol: symbol, Quantity: quantity, Price: price, Amount: price.Mul(quantity)}
	return s.submit(ctx, p, func(ctx context.Context) (*models.TradeReceipt, error) {
		return s.broker.SubmitTrade(ctx, symbol, models.SideSell, quantity, price)
	})
}

// Deposit adds cash to the account
func (s *Service) Deposit(ctx context.Context, amount models.Money, description string) (*models.TradeResult, error) {
	if err := models.RequirePositive(amount, "amount"); err != nil {
		return nil, err
	}
	description = describe(description, "Deposit")

	p := models.PendingSubmission{Kind: models.SubmissionDeposit, Amount: amount, Description: description}
	return s.submit(ctx, p, func(ctx context.Context) (*models.TradeReceipt, error) {
		return s.broker.RecordCashMovement(ctx, models.EntryDeposit, amount, description)
	})
}

// Withdraw removes cash from the account
func (s *Service) Withdraw(ctx context.Context, amount models.Money, description string) (*models.TradeResult, error) {
	if err := models.RequirePositive(amount, "amount"); err != nil {
		return nil, err
	}
	if snap := s.fresh(); snap != nil && amount.GreaterThan(snap.CashBalance) {
		return nil, fmt.Errorf("%w: required %s, available %s", models.ErrInsufficientBalance, amount, snap.CashBalance)
	}
	description = describe(description, "Withdrawal")

	p := models.PendingSubmission{Kind: models.SubmissionWithdrawal, Amount: amount, Description: description}
	return s.submit(ctx, p, func(ctx context.Context) (*models.TradeReceipt, error) {
		return s.broker.RecordCashMovement(ctx, models.EntryWithdrawal, amount, description)
	})
}

// describe returns the trimmed description, or fallback when it is blank.
// The ledger rejects empty descriptions.
func describe(description, fallback string) string {
	if d := strings.TrimSpace(description); d != "" {
		return d
	}
	return fallback
}

// definitive returns true when err proves the write was not recorded.
func definitive(err error) bool {
	var rejected *models.RemoteRejectedError
	return errors.Is(err, models.ErrInsufficientBalance) ||
		errors.Is(err, models.ErrInsufficientShares) ||
		errors.Is(err, models.ErrUnauthorized) ||
		errors.Is(err, models.ErrInvalidAmount) ||
		errors.Is(err, models.ErrInvalidQuantity) ||
		errors.As(err, &rejected)
}

// submit sends one write exactly once and refreshes on confirmation.
func (s *Service) submit(ctx context.Context, p models.PendingSubmission, send func(context.Context) (*models.TradeReceipt, error)) (*models.TradeResult, error) {
	p.ID = uuid.NewString()
	p.Account = s.account
	p.SubmittedAt = s.now()
	if snap, _ := s.accounts.Current(); snap != nil {
		if tail, ok := snap.Tail(); ok {
			p.PriorTailID = tail.ID
		}
	}

	sctx, cancel := context.WithTimeout(ctx, s.submitTimeout)
	receipt, err := send(sctx)
	timedOut := errors.Is(sctx.Err(), context.DeadlineExceeded)
	cancel()

	if err != nil {
		if definitive(err) {
			s.logger.Info().Err(err).Str("kind", string(p.Kind)).Str("symbol", p.Symbol).Msg("Submission rejected")
			return nil, err
		}
		if timedOut && !errors.Is(err, models.ErrTimeout) {
			err = fmt.Errorf("%w: %w", models.ErrTimeout, err)
		}
		p.Err = err.Error()
		s.recordPending(ctx, &p)
		s.refresher.Invalidate()
		s.logger.Warn().Err(err).
			Str("pending_id", p.ID).
			Str("kind", string(p.Kind)).
			Str("symbol", p.Symbol).
			Str("amount", p.Amount.String()).
			Msg("Submission outcome unknown")
		return nil, &models.AmbiguousSubmissionError{Pending: p, Cause: err}
	}

	s.logger.Info().
		Str("kind", string(p.Kind)).
		Str("symbol", p.Symbol).
		Int64("quantity", p.Quantity).
		Str("amount", p.Amount.String()).
		Str("transaction_id", receipt.TransactionID).
		Msg("Submission confirmed")

	s.refresher.Invalidate()
	result := &models.TradeResult{Receipt: *receipt}
	snap, err := s.refresher.Get(ctx)
	if err != nil {
		s.logger.Warn().Err(err).Msg("Post-trade refresh failed")
		result.RefreshErr = err
		return result, nil
	}
	result.Snapshot = snap
	return result, nil
}

func (s *Service) recordPending(ctx context.Context, p *models.PendingSubmission) {
	if s.pending == nil {
		return
	}
	if err := s.pending.SavePending(context.WithoutCancel(ctx), p); err != nil {
		s.logger.Error().Err(err).Str("pending_id", p.ID).Msg("Failed to store pending submission")
	}
}

// Preview projects a trade against the published holdings. The result is
// labelled as a projection and never published.
func (s *Service) Preview(side models.TradeSide, symbol string, quantity int64, price models.Money) (*models.TradePreview, error) {
	symbol, err := validateTrade(symbol, quantity, price)
	if err != nil {
		return nil, err
	}

	book := holdings.NewBook()
	if snap, _ := s.accounts.Current(); snap != nil {
		if book, err = holdings.FromHoldings(snap.Holdings); err != nil {
			return nil, err
		}
	}

	before, _ := book.Get(symbol)
	preview := &models.TradePreview{Side: side, Symbol: symbol, Before: before, IsProjection: true}
	total := price.Mul(quantity)

	switch side {
	case models.SideBuy:
		after, err := book.ApplyBuy(symbol, quantity, price)
		if err != nil {
			return nil, err
		}
		preview.After = after
		preview.CashChange = total.Neg()
	case models.SideSell:
		realized, err := book.ApplySell(symbol, quantity, price)
		if err != nil {
			return nil, err
		}
		after, ok := book.Get(symbol)
		if !ok {
			after = models.Holding{Symbol: symbol}
		}
		preview.After = after
		preview.CashChange = total
		preview.RealizedPL = realized
	default:
		return nil, fmt.Errorf("%w: unknown trade side %q", models.ErrInvalidQuantity, side)
	}
	return preview, nil
}

// Reconcile refreshes the snapshot and decides from the ledger tail whether
// an ambiguous submission was recorded. A resolved submission is removed
// from the pending store.
func (s *Service) Reconcile(ctx context.Context, pending models.PendingSubmission) (models.ReconcileOutcome, error) {
	snap, err := s.refreshForReconcile(ctx)
	if err != nil {
		return "", err
	}
	outcome := s.resolve(ctx, snap, &pending, map[string]bool{})
	return outcome, nil
}

// ReconcilePending reconciles every stored pending submission for the account
// against one refreshed snapshot.
func (s *Service) ReconcilePending(ctx context.Context) (map[string]models.ReconcileOutcome, error) {
	outcomes := make(map[string]models.ReconcileOutcome)
	if s.pending == nil {
		return outcomes, nil
	}
	list, err := s.pending.ListPending(ctx, s.account)
	if err != nil {
		return nil, fmt.Errorf("failed to list pending submissions: %w", err)
	}
	if len(list) == 0 {
		return outcomes, nil
	}

	snap, err := s.refreshForReconcile(ctx)
	if err != nil {
		return nil, err
	}
	claimed := make(map[string]bool)
	for _, p := range list {
		outcomes[p.ID] = s.resolve(ctx, snap, p, claimed)
	}
	return outcomes, nil
}

func (s *Service) refreshForReconcile(ctx context.Context) (*models.AccountSnapshot, error) {
	s.refresher.Invalidate()
	snap, err := s.refresher.Get(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to refresh for reconciliation: %w", err)
	}
	return snap, nil
}

// resolve matches p against the snapshot's ledger window. A decided
// submission is dropped from the pending store; an undecided one is kept for
// the next pass. Entries in claimed already resolved another submission.
func (s *Service) resolve(ctx context.Context, snap *models.AccountSnapshot, p *models.PendingSubmission, claimed map[string]bool) models.ReconcileOutcome {
	id, outcome := match(snap.RecentEntries, p, claimed, s.ledgerWindow)
	if outcome == models.OutcomeRecorded {
		claimed[id] = true
	}

	if outcome != models.OutcomeUnknown && s.pending != nil {
		if err := s.pending.DeletePending(ctx, p.ID); err != nil {
			s.logger.Warn().Err(err).Str("pending_id", p.ID).Msg("Failed to delete reconciled submission")
		}
	}
	s.logger.Info().
		Str("pending_id", p.ID).
		Str("kind", string(p.Kind)).
		Str("outcome", string(outcome)).
		Msg("Submission reconciled")
	return outcome
}

// match finds the ledger entry a pending submission produced. entries are
// newest first; the scan stops at the tail known when it was submitted.
// Without a match the verdict is not_recorded only when the window provably
// reaches back past the submission: it contains the prior tail, an entry
// older than the submission, or the whole ledger. Otherwise it is unknown.
func match(entries []models.LedgerEntry, p *models.PendingSubmission, claimed map[string]bool, window int) (string, models.ReconcileOutcome) {
	earliest := p.SubmittedAt.Add(-clockSkew)
	covered := window > 0 && len(entries) < window
	for _, e := range entries {
		if p.PriorTailID != "" && e.ID == p.PriorTailID {
			covered = true
			break
		}
		if !p.SubmittedAt.IsZero() && e.Timestamp.Before(earliest) {
			covered = true
			continue
		}
		if claimed[e.ID] || e.Type != p.Kind.EntryType() || !e.Amount().Equal(p.Amount) {
			continue
		}
		if p.Symbol != "" && !mentionsSymbol(e.Description, p.Symbol) {
			continue
		}
		return e.ID, models.OutcomeRecorded
	}
	if covered {
		return "", models.OutcomeNotRecorded
	}
	return "", models.OutcomeUnknown
}

// mentionsSymbol reports whether symbol appears as a whole word in desc.
func mentionsSymbol(desc, symbol string) bool {
	for _, word := range strings.Fields(desc) {
		if strings.EqualFold(strings.Trim(word, ",;:()'\""), symbol) {
			return true
		}
	}
	return false
}
