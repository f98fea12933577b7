package models

import (
	"time"
)

// TradeSide is buy or sell.
type TradeSide string

const (
	SideBuy  TradeSide = "buy"
	SideSell TradeSide = "sell"
)

// EntryType returns the ledger entry type a confirmed trade on this side produces.
func (s TradeSide) EntryType() EntryType {
	if s == SideSell {
		return EntrySell
	}
	return EntryBuy
}

// TradeReceipt is the remote confirmation of a recorded trade or cash movement.
type TradeReceipt struct {
	Message       string `json:"message"`
	TransactionID string `json:"transaction_id"`
	HoldingID     string `json:"holding_id,omitempty"`
	NewBalance    Money  `json:"new_balance"`
	Total         Money  `json:"total"`
}

// TradeResult is what the executor returns after a confirmed submission.
// Snapshot is the authoritative post-trade state; nil when RefreshErr is set.
type TradeResult struct {
	Receipt    TradeReceipt
	Snapshot   *AccountSnapshot
	RefreshErr error
}

// TradePreview is a local projection of a trade. It is never published.
type TradePreview struct {
	Side         TradeSide
	Symbol       string
	Before       Holding
	After        Holding
	CashChange   Money
	RealizedPL   Money
	IsProjection bool
}

// SubmissionKind names the kind of write a pending submission carries.
type SubmissionKind string

const (
	SubmissionBuy        SubmissionKind = "buy"
	SubmissionSell       SubmissionKind = "sell"
	SubmissionDeposit    SubmissionKind = "deposit"
	SubmissionWithdrawal SubmissionKind = "withdrawal"
)

// EntryType returns the ledger entry type the submission would create if recorded.
func (k SubmissionKind) EntryType() EntryType {
	return EntryType(k)
}

// PendingSubmission is a write whose outcome is unknown. It is kept locally
// until reconciliation against the ledger tail resolves it.
type PendingSubmission struct {
	ID          string         `json:"id" badgerhold:"key"`
	Account     string         `json:"account" badgerhold:"index"`
	Kind        SubmissionKind `json:"kind"`
	Symbol      string         `json:"symbol,omitempty"`
	Quantity    int64          `json:"quantity,omitempty"`
	Price       Money          `json:"price"`
	Amount      Money          `json:"amount"`
	Description string         `json:"description,omitempty"`
	SubmittedAt time.Time      `json:"submitted_at"`
	PriorTailID string         `json:"prior_tail_id,omitempty"` // newest ledger entry known at submission
	Err         string         `json:"error"`
}

// ReconcileOutcome is the verdict on a pending submission.
type ReconcileOutcome string

const (
	OutcomeRecorded    ReconcileOutcome = "recorded"
	OutcomeNotRecorded ReconcileOutcome = "not_recorded"
	// OutcomeUnknown means the ledger window did not reach back to the
	// submission. The pending record is kept.
	OutcomeUnknown ReconcileOutcome = "unknown"
)
