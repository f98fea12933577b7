// Package broker provides a client for the brokerage REST API that is the
// system of record for cash, holdings and the transaction ledger.
package broker

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
	"golang.org/x/time/rate"

	"github.com/bobmcallan/folio/internal/common"
	"github.com/bobmcallan/folio/internal/interfaces"
	"github.com/bobmcallan/folio/internal/models"
)

const (
	DefaultBaseURL   = "http://localhost:8000/api"
	DefaultTimeout   = 30 * time.Second
	DefaultRateLimit = 5 // requests per second
)

// Compile-time interface check
var _ interfaces.BrokerClient = (*Client)(nil)

// Client implements the BrokerClient interface
type Client struct {
	baseURL    string
	tokens     interfaces.TokenSource
	httpClient *http.Client
	logger     *common.Logger
	limiter    *rate.Limiter
}

// ClientOption configures the client
type ClientOption func(*Client)

// WithBaseURL sets the base URL
func WithBaseURL(baseURL string) ClientOption {
	return func(c *Client) {
		c.baseURL = strings.TrimRight(baseURL, "/")
	}
}

// WithLogger sets the logger
func WithLogger(logger *common.Logger) ClientOption {
	return func(c *Client) {
		c.logger = logger
	}
}

// WithRateLimit sets the rate limit
func WithRateLimit(requestsPerSecond int) ClientOption {
	return func(c *Client) {
		if requestsPerSecond > 0 {
			c.limiter = rate.NewLimiter(rate.Limit(requestsPerSecond), requestsPerSecond)
		}
	}
}

// WithTimeout sets the HTTP timeout
func WithTimeout(timeout time.Duration) ClientOption {
	return func(c *Client) {
		c.httpClient.Timeout = timeout
	}
}

// NewClient creates a new broker client. Every request asks tokens for the
// current auth token.
func NewClient(tokens interfaces.TokenSource, opts ...ClientOption) *Client {
	c := &Client{
		baseURL: DefaultBaseURL,
		tokens:  tokens,
		httpClient: &http.Client{
			Timeout: DefaultTimeout,
		},
		limiter: rate.NewLimiter(rate.Limit(DefaultRateLimit), DefaultRateLimit),
		logger:  common.NewSilentLogger(),
	}

	for _, opt := range opts {
		opt(c)
	}

	return c
}

// StaticToken is a TokenSource that always returns the same token.
type StaticToken string

// Token returns the token, or ErrUnauthorized when it is empty.
func (t StaticToken) Token(context.Context) (string, error) {
	if t == "" {
		return "", fmt.Errorf("%w: no API token configured", models.ErrUnauthorized)
	}
	return string(t), nil
}

// APIError is a non-definitive failure reported by the API, such as a 5xx.
// Whether a write was recorded is unknown.
type APIError struct {
	StatusCode int
	Message    string
	Endpoint   string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("broker API error: %s (status: %d, endpoint: %s)", e.Message, e.StatusCode, e.Endpoint)
}

// rejection is the 400 body the trading endpoints return.
type rejection struct {
	Error     string          `json:"error"`
	Detail    string          `json:"detail"`
	Required  json.RawMessage `json:"required"`
	Available json.RawMessage `json:"available"`
}

// do performs a rate-limited request and decodes a 2xx body into result.
func (c *Client) do(ctx context.Context, method, path string, body, result any) error {
	if err := c.limiter.Wait(ctx); err != nil {
		return classifyTransport(ctx, method, path, fmt.Errorf("rate limit wait: %w", err))
	}

	token, err := c.tokens.Token(ctx)
	if err != nil {
		return err
	}

	var reader io.Reader
	if body != nil {
		payload, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("failed to encode request: %w", err)
		}
		reader = bytes.NewReader(payload)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reader)
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}

	requestID := uuid.NewString()
	req.Header.Set("Authorization", "Token "+token)
	req.Header.Set("Accept", "application/json")
	req.Header.Set("X-Request-ID", requestID)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	start := time.Now()
	c.logger.Debug().Str("method", method).Str("url", path).Str("request_id", requestID).Msg("Broker API request")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return classifyTransport(ctx, method, path, err)
	}
	defer resp.Body.Close()

	c.logger.Debug().
		Str("method", method).
		Str("url", path).
		Int("status", resp.StatusCode).
		Dur("elapsed", time.Since(start)).
		Msg("Broker API response")

	switch {
	case resp.StatusCode == http.StatusUnauthorized || resp.StatusCode == http.StatusForbidden:
		return fmt.Errorf("%w: %s %s returned %d", models.ErrUnauthorized, method, path, resp.StatusCode)
	case resp.StatusCode >= 200 && resp.StatusCode < 300:
		if result == nil {
			return nil
		}
		if err := json.NewDecoder(resp.Body).Decode(result); err != nil {
			return fmt.Errorf("failed to decode response from %s: %w", path, err)
		}
		return nil
	case resp.StatusCode >= 400 && resp.StatusCode < 500 && resp.StatusCode != http.StatusTooManyRequests && resp.StatusCode != http.StatusRequestTimeout:
		data, _ := io.ReadAll(resp.Body)
		return decodeRejection(resp.StatusCode, data)
	default:
		data, _ := io.ReadAll(resp.Body)
		return &APIError{StatusCode: resp.StatusCode, Message: strings.TrimSpace(string(data)), Endpoint: path}
	}
}

// classifyTransport maps deadline failures to ErrTimeout.
func classifyTransport(ctx context.Context, method, path string, err error) error {
	var netErr net.Error
	if errors.Is(err, context.DeadlineExceeded) || errors.Is(ctx.Err(), context.DeadlineExceeded) ||
		(errors.As(err, &netErr) && netErr.Timeout()) {
		return fmt.Errorf("%w: %s %s: %w", models.ErrTimeout, method, path, err)
	}
	return fmt.Errorf("failed to execute %s %s: %w", method, path, err)
}

// decodeRejection turns a definitive 4xx into the matching typed error.
func decodeRejection(status int, data []byte) error {
	var r rejection
	_ = json.Unmarshal(data, &r)

	reason := r.Error
	if reason == "" {
		reason = r.Detail
	}
	if reason == "" {
		reason = strings.TrimSpace(string(data))
	}
	if reason == "" {
		reason = http.StatusText(status)
	}

	lower := strings.ToLower(reason)
	detail := ""
	if len(r.Required) > 0 || len(r.Available) > 0 {
		detail = fmt.Sprintf(" (required %s, available %s)", trimJSON(r.Required), trimJSON(r.Available))
	}
	switch {
	case strings.Contains(lower, "insufficient balance"):
		return fmt.Errorf("%w: %s%s", models.ErrInsufficientBalance, reason, detail)
	case strings.Contains(lower, "insufficient shares"), strings.Contains(lower, "do not own any shares"):
		return fmt.Errorf("%w: %s%s", models.ErrInsufficientShares, reason, detail)
	default:
		return &models.RemoteRejectedError{StatusCode: status, Reason: reason}
	}
}

func trimJSON(raw json.RawMessage) string {
	if len(raw) == 0 {
		return "?"
	}
	return strings.Trim(string(raw), `"`)
}

// flexID accepts a JSON number or string identifier.
type flexID string

func (f *flexID) UnmarshalJSON(data []byte) error {
	s := strings.Trim(string(bytes.TrimSpace(data)), `"`)
	if s == "null" {
		s = ""
	}
	*f = flexID(s)
	return nil
}

// flexTime accepts RFC 3339 timestamps, naive timestamps (taken as UTC) and bare dates.
type flexTime time.Time

var timeLayouts = []string{time.RFC3339Nano, "2006-01-02T15:04:05.999999", "2006-01-02 15:04:05", "2006-01-02"}

func (f *flexTime) UnmarshalJSON(data []byte) error {
	s := strings.Trim(string(bytes.TrimSpace(data)), `"`)
	if s == "" || s == "null" {
		*f = flexTime{}
		return nil
	}
	for _, layout := range timeLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			*f = flexTime(t)
			return nil
		}
	}
	return fmt.Errorf("unrecognised timestamp %q", s)
}

// page accepts either a bare JSON array or a paginated {"results": [...]} envelope.
type page[T any] struct {
	Items []T
}

func (p *page[T]) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	if len(data) > 0 && data[0] == '[' {
		return json.Unmarshal(data, &p.Items)
	}
	var env struct {
		Results []T `json:"results"`
	}
	if err := json.Unmarshal(data, &env); err != nil {
		return err
	}
	p.Items = env.Results
	return nil
}

// GetBalance retrieves the cash balance from the user profile
func (c *Client) GetBalance(ctx context.Context) (models.Money, error) {
	var resp profileResponse
	if err := c.do(ctx, http.MethodGet, "/users/profile/", nil, &resp); err != nil {
		return models.Money{}, err
	}
	return resp.Balance, nil
}

type profileResponse struct {
	Username string       `json:"username"`
	Balance  models.Money `json:"balance"`
}

// ListHoldings retrieves every open position
func (c *Client) ListHoldings(ctx context.Context) ([]models.Holding, error) {
	var resp page[holdingRow]
	if err := c.do(ctx, http.MethodGet, "/holdings/", nil, &resp); err != nil {
		return nil, err
	}

	holdings := make([]models.Holding, 0, len(resp.Items))
	for _, h := range resp.Items {
		holdings = append(holdings, models.Holding{
			Symbol:      models.NormalizeSymbol(h.Stock),
			Quantity:    h.Quantity,
			AverageCost: h.BuyingPrice,
			MarkPrice:   h.CurrentPrice,
		})
	}
	return holdings, nil
}

type holdingRow struct {
	Stock        string       `json:"stock"`
	Quantity     int64        `json:"quantity"`
	BuyingPrice  models.Money `json:"buying_price"`
	CurrentPrice models.Money `json:"current_price"`
}

// ListLedgerEntries retrieves up to limit transactions, newest first
func (c *Client) ListLedgerEntries(ctx context.Context, limit int) ([]models.LedgerEntry, error) {
	path := "/transactions/"
	if limit > 0 {
		path += "?limit=" + strconv.Itoa(limit)
	}

	var resp page[transactionRow]
	if err := c.do(ctx, http.MethodGet, path, nil, &resp); err != nil {
		return nil, err
	}

	rows := resp.Items
	if limit > 0 && len(rows) > limit {
		rows = rows[:limit]
	}
	entries := make([]models.LedgerEntry, len(rows))
	for i, r := range rows {
		entries[i] = r.toEntry()
	}
	return entries, nil
}

type transactionRow struct {
	ID           flexID           `json:"id"`
	Type         models.EntryType `json:"transaction_type"`
	Debit        models.Money     `json:"debit"`
	Credit       models.Money     `json:"credit"`
	Description  string           `json:"description"`
	Date         flexTime         `json:"date"`
	BalanceAfter models.Money     `json:"balance_after"`
}

func (r transactionRow) toEntry() models.LedgerEntry {
	return models.LedgerEntry{
		ID:           string(r.ID),
		Type:         r.Type,
		Debit:        r.Debit,
		Credit:       r.Credit,
		Description:  r.Description,
		Timestamp:    time.Time(r.Date),
		BalanceAfter: r.BalanceAfter,
	}
}

// SubmitTrade posts a buy or sell. It is never retried.
func (c *Client) SubmitTrade(ctx context.Context, symbol string, side models.TradeSide, quantity int64, price models.Money) (*models.TradeReceipt, error) {
	if side != models.SideBuy && side != models.SideSell {
		return nil, fmt.Errorf("%w: unknown trade side %q", models.ErrInvalidQuantity, side)
	}

	req := tradeRequest{Stock: models.NormalizeSymbol(symbol), Quantity: quantity, Price: price}
	var resp tradeResponse
	if err := c.do(ctx, http.MethodPost, "/trading/"+string(side)+"/", req, &resp); err != nil {
		return nil, err
	}

	total := resp.TotalCost
	if side == models.SideSell {
		total = resp.TotalProceeds
	}
	c.logger.Info().
		Str("side", string(side)).
		Str("symbol", req.Stock).
		Int64("quantity", quantity).
		Str("price", price.String()).
		Str("transaction_id", string(resp.TransactionID)).
		Msg("Trade recorded")

	return &models.TradeReceipt{
		Message:       resp.Message,
		TransactionID: string(resp.TransactionID),
		HoldingID:     string(resp.HoldingID),
		NewBalance:    resp.NewBalance,
		Total:         total,
	}, nil
}

type tradeRequest struct {
	Stock    string       `json:"stock"`
	Quantity int64        `json:"quantity"`
	Price    models.Money `json:"price"`
}

type tradeResponse struct {
	Message       string       `json:"message"`
	TransactionID flexID       `json:"transaction_id"`
	HoldingID     flexID       `json:"holding_id"`
	NewBalance    models.Money `json:"new_balance"`
	TotalCost     models.Money `json:"total_cost"`
	TotalProceeds models.Money `json:"total_proceeds"`
}

// RecordCashMovement posts a deposit or withdrawal. It is never retried.
func (c *Client) RecordCashMovement(ctx context.Context, entryType models.EntryType, amount models.Money, description string) (*models.TradeReceipt, error) {
	req := cashRequest{Type: entryType, Description: description}
	switch entryType {
	case models.EntryDeposit:
		req.Credit = amount
	case models.EntryWithdrawal:
		req.Debit = amount
	default:
		return nil, fmt.Errorf("%w: %q is not a cash movement", models.ErrInvalidAmount, entryType)
	}

	var resp transactionRow
	if err := c.do(ctx, http.MethodPost, "/transactions/", req, &resp); err != nil {
		return nil, err
	}

	c.logger.Info().
		Str("type", string(entryType)).
		Str("amount", amount.String()).
		Str("transaction_id", string(resp.ID)).
		Msg("Cash movement recorded")

	return &models.TradeReceipt{
		Message:       resp.Description,
		TransactionID: string(resp.ID),
		NewBalance:    resp.BalanceAfter,
		Total:         amount,
	}, nil
}

type cashRequest struct {
	Type        models.EntryType `json:"transaction_type"`
	Debit       models.Money     `json:"debit"`
	Credit      models.Money     `json:"credit"`
	Description string           `json:"description"`
}

// GetValuationHistory retrieves raw whole-portfolio valuations, oldest first
func (c *Client) GetValuationHistory(ctx context.Context, hint models.Timeframe) ([]models.TimeSeriesPoint, error) {
	path := "/portfolio/history/"
	if hint != "" {
		path += "?period=" + url.QueryEscape(string(hint))
	}

	var resp struct {
		Data []struct {
			Date       flexTime     `json:"date"`
			TotalValue models.Money `json:"total_value"`
		} `json:"data"`
	}
	if err := c.do(ctx, http.MethodGet, path, nil, &resp); err != nil {
		return nil, err
	}

	points := make([]models.TimeSeriesPoint, len(resp.Data))
	for i, d := range resp.Data {
		points[i] = models.TimeSeriesPoint{Timestamp: time.Time(d.Date), Value: d.TotalValue}
	}
	return points, nil
}

// GetSymbolHistory retrieves raw value/price points for one symbol, oldest first
func (c *Client) GetSymbolHistory(ctx context.Context, symbol string, hint models.Timeframe) ([]models.TimeSeriesPoint, error) {
	q := url.Values{}
	q.Set("stock", models.NormalizeSymbol(symbol))
	if hint != "" {
		q.Set("period", string(hint))
	}

	var resp struct {
		Data []struct {
			Date  flexTime     `json:"date"`
			Value models.Money `json:"value"`
			Price models.Money `json:"price"`
		} `json:"data"`
	}
	if err := c.do(ctx, http.MethodGet, "/portfolio/stock_history/?"+q.Encode(), nil, &resp); err != nil {
		return nil, err
	}

	points := make([]models.TimeSeriesPoint, len(resp.Data))
	for i, d := range resp.Data {
		price := d.Price
		points[i] = models.TimeSeriesPoint{Timestamp: time.Time(d.Date), Value: d.Value, Price: &price}
	}
	return points, nil
}

// GetUnreadSignalCount retrieves the number of unread trading signals
func (c *Client) GetUnreadSignalCount(ctx context.Context) (int, error) {
	var resp struct {
		UnreadCount *int `json:"unread_count"`
		Count       *int `json:"count"`
	}
	if err := c.do(ctx, http.MethodGet, "/signals/unread_count/", nil, &resp); err != nil {
		return 0, err
	}
	switch {
	case resp.UnreadCount != nil:
		return *resp.UnreadCount, nil
	case resp.Count != nil:
		return *resp.Count, nil
	default:
		return 0, nil
	}
}
