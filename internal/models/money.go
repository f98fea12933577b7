package models

import (
	"bytes"
	"encoding/binary"
	"fmt"
	"math"
	"strings"

	"github.com/Rhymond/go-money"
	"github.com/shopspring/decimal"
)

// MoneyScale is the number of minor-unit digits. All amounts are USD cents.
const MoneyScale = 2

// AccountCurrency is the single currency the ledger is kept in.
const AccountCurrency = money.USD

// Money is an exact amount held as integer minor units.
// Arithmetic never rounds; rounding happens only when dividing for display
// (PercentOf) and when averaging a cost basis (DivQuantity).
type Money struct {
	minor int64
}

// NewMoney returns an amount of minor units (cents).
func NewMoney(minor int64) Money { return Money{minor: minor} }

// Dollars is shorthand for whole major units, mostly for tests and fixtures.
func Dollars(major int64) Money { return Money{minor: major * 100} }

// MoneyFromDecimal converts an exact decimal. Values carrying more precision
// than the minor unit are rejected rather than silently rounded.
func MoneyFromDecimal(d decimal.Decimal) (Money, error) {
	shifted := d.Shift(MoneyScale)
	if !shifted.IsInteger() {
		return Money{}, fmt.Errorf("%w: %s has more than %d decimal places", ErrInvalidAmount, d, MoneyScale)
	}
	if shifted.Abs().GreaterThan(decimal.NewFromInt(math.MaxInt64)) {
		return Money{}, fmt.Errorf("%w: %s out of range", ErrInvalidAmount, d)
	}
	return Money{minor: shifted.IntPart()}, nil
}

// ParseMoney parses a decimal string such as "150.25".
func ParseMoney(s string) (Money, error) {
	d, err := decimal.NewFromString(strings.TrimSpace(s))
	if err != nil {
		return Money{}, fmt.Errorf("%w: %q", ErrInvalidAmount, s)
	}
	return MoneyFromDecimal(d)
}

// MoneyFromFloat converts a binary float, rounding half away from zero to the
// minor unit. Non-finite input fails with ErrInvalidAmount.
func MoneyFromFloat(f float64) (Money, error) {
	if math.IsNaN(f) || math.IsInf(f, 0) {
		return Money{}, fmt.Errorf("%w: non-finite value %v", ErrInvalidAmount, f)
	}
	return MoneyFromDecimal(decimal.NewFromFloat(f).Round(MoneyScale))
}

// RequirePositive fails with ErrInvalidAmount unless m > 0.
func RequirePositive(m Money, what string) error {
	if m.minor <= 0 {
		return fmt.Errorf("%w: %s must be positive, got %s", ErrInvalidAmount, what, m)
	}
	return nil
}

// RequireNonNegative fails with ErrInvalidAmount when m < 0.
func RequireNonNegative(m Money, what string) error {
	if m.minor < 0 {
		return fmt.Errorf("%w: %s must not be negative, got %s", ErrInvalidAmount, what, m)
	}
	return nil
}

// Minor returns the amount in cents.
func (m Money) Minor() int64 { return m.minor }

// Add returns m + n.
func (m Money) Add(n Money) Money { return Money{minor: m.minor + n.minor} }

// Sub returns m - n.
func (m Money) Sub(n Money) Money { return Money{minor: m.minor - n.minor} }

// Mul returns m times a share count.
func (m Money) Mul(quantity int64) Money { return Money{minor: m.minor * quantity} }

// Neg returns -m.
func (m Money) Neg() Money { return Money{minor: -m.minor} }

// Abs returns |m|.
func (m Money) Abs() Money { return Money{minor: abs64(m.minor)} }

// IsZero reports m == 0.
func (m Money) IsZero() bool { return m.minor == 0 }

// IsPositive reports m > 0.
func (m Money) IsPositive() bool { return m.minor > 0 }

// IsNegative reports m < 0.
func (m Money) IsNegative() bool { return m.minor < 0 }

// Equal reports whether both amounts hold the same number of cents.
func (m Money) Equal(n Money) bool { return m.minor == n.minor }

// LessThan reports m < n.
func (m Money) LessThan(n Money) bool { return m.minor < n.minor }

// GreaterThan reports m > n.
func (m Money) GreaterThan(n Money) bool { return m.minor > n.minor }

// Decimal returns the exact amount in major units.
func (m Money) Decimal() decimal.Decimal { return decimal.New(m.minor, -MoneyScale) }

// InexactFloat64 is for chart plotting only.
func (m Money) InexactFloat64() float64 { return m.Decimal().InexactFloat64() }

// String formats with two decimals and no currency symbol, e.g. "-12.50".
func (m Money) String() string { return m.Decimal().StringFixed(MoneyScale) }

func abs64(v int64) int64 {
	if v < 0 {
		return -v
	}
	return v
}

// Cmp returns -1, 0 or +1.
func (m Money) Cmp(n Money) int {
	switch {
	case m.minor < n.minor:
		return -1
	case m.minor > n.minor:
		return 1
	default:
		return 0
	}
}

// DivQuantity divides by a share count, rounding half away from zero to the
// minor unit. Used only to derive an average cost.
func (m Money) DivQuantity(quantity int64) Money {
	if quantity == 0 {
		return Money{}
	}
	q := m.Decimal().Div(decimal.NewFromInt(quantity)).Round(MoneyScale)
	return Money{minor: q.Shift(MoneyScale).IntPart()}
}

// PercentOf returns part/whole as a percentage rounded to 2 places.
// A zero whole yields zero. Presentation only: never persist or compare the result.
func PercentOf(part, whole Money) decimal.Decimal {
	if whole.IsZero() {
		return decimal.Zero
	}
	return part.Decimal().Div(whole.Decimal()).Mul(decimal.NewFromInt(100)).Round(2)
}

type localeFormat struct {
	decimal  string
	thousand string
	template string
}

var localeFormats = map[string]localeFormat{
	"en-US": {decimal: ".", thousand: ",", template: "$1"},
	"en-GB": {decimal: ".", thousand: ",", template: "$1"},
	"en-AU": {decimal: ".", thousand: ",", template: "$1"},
	"de-DE": {decimal: ",", thousand: ".", template: "1 $"},
	"fr-FR": {decimal: ",", thousand: " ", template: "1 $"},
}

// DisplayString formats the amount for a locale, e.g. "$1,234.50" for en-US
// or "1.234,50 $" for de-DE. Unknown locales fall back to en-US.
func (m Money) DisplayString(locale string) string {
	lf, ok := localeFormats[locale]
	if !ok {
		lf = localeFormats["en-US"]
	}
	cur := money.GetCurrency(AccountCurrency)
	f := money.NewFormatter(cur.Fraction, lf.decimal, lf.thousand, cur.Grapheme, lf.template)
	return f.Format(m.minor)
}

// MarshalJSON encodes as a fixed two-decimal string, the way the remote API does.
func (m Money) MarshalJSON() ([]byte, error) {
	return []byte(`"` + m.String() + `"`), nil
}

// UnmarshalJSON accepts a decimal string or a JSON number.
func (m *Money) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	if bytes.Equal(data, []byte("null")) {
		*m = Money{}
		return nil
	}
	s := strings.Trim(string(data), `"`)
	if s == "" {
		*m = Money{}
		return nil
	}
	d, err := decimal.NewFromString(s)
	if err != nil {
		return fmt.Errorf("%w: %q", ErrInvalidAmount, s)
	}
	// Remote floats such as new_balance may carry binary noise; clamp to cents.
	parsed, err := MoneyFromDecimal(d.Round(MoneyScale))
	if err != nil {
		return err
	}
	*m = parsed
	return nil
}

// GobEncode lets the local store persist Money without exporting its field.
func (m Money) GobEncode() ([]byte, error) {
	return binary.AppendVarint(nil, m.minor), nil
}

// GobDecode is the inverse of GobEncode.
func (m *Money) GobDecode(data []byte) error {
	v, n := binary.Varint(data)
	if n <= 0 {
		return fmt.Errorf("%w: corrupt encoded amount", ErrInvalidAmount)
	}
	m.minor = v
	return nil
}
