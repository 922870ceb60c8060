package cryptotax

import (
	"fmt"

	gomoney "github.com/Rhymond/go-money"
	"github.com/shopspring/decimal"
)

// Money is an exact monetary value in a single currency. All engine
// totals are Money in the configured profit currency.
type Money struct {
	value decimal.Decimal
	cur   string
}

// M creates a Money value.
func M(value decimal.Decimal, currency string) Money {
	return Money{value: value, cur: currency}
}

func (m Money) Currency() string         { return m.cur }
func (m Money) Decimal() decimal.Decimal { return m.value }
func (m Money) IsZero() bool             { return m.value.IsZero() }
func (m Money) IsPositive() bool         { return m.value.IsPositive() }
func (m Money) IsNegative() bool         { return m.value.IsNegative() }
func (m Money) Neg() Money               { return Money{value: m.value.Neg(), cur: m.cur} }
func (m Money) Equal(n Money) bool       { return m.value.Equal(n.value) && m.cur == n.cur }

// binary operators.
func (m Money) Add(n Money) Money { return Money{value: m.value.Add(n.value), cur: moneyCur(m, n)} }
func (m Money) Sub(n Money) Money { return Money{value: m.value.Sub(n.value), cur: moneyCur(m, n)} }

// makes the "" currency totally weak.
func moneyCur(a, b Money) string {
	if a.cur == "" {
		return b.cur
	}
	if b.cur == "" {
		return a.cur
	}
	if a.cur != b.cur {
		panic("currency mismatch " + a.cur + "!=" + b.cur)
	}
	return a.cur
}

// String returns the raw decimal representation, the form the overview
// exposes to callers.
func (m Money) String() string { return m.value.String() }

// Display formats the value with the currency's symbol and fraction
// digits, for human-readable rendering.
func (m Money) Display() string {
	cur := gomoney.GetCurrency(m.cur)
	if cur == nil {
		return fmt.Sprintf("%s %s", m.value.StringFixed(2), m.cur)
	}
	shifted := m.value.Shift(int32(cur.Fraction))
	return gomoney.New(shifted.IntPart(), m.cur).Display()
}

// ValidateCurrency reports whether the currency code is a known ISO
// currency usable as profit currency.
func ValidateCurrency(code string) error {
	if gomoney.GetCurrency(code) == nil {
		return fmt.Errorf("unknown currency code %q", code)
	}
	return nil
}
