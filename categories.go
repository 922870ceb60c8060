package cryptotax

import (
	"fmt"

	"github.com/shopspring/decimal"
)

// Category identifies one profit/loss bucket of the overview. Trading
// carries two running totals, the jurisdiction-agnostic general P&L and
// the holding-period-aware taxable P&L.
type Category int

const (
	CategoryTradingGeneral Category = iota
	CategoryTradingTaxable
	CategoryMargin
	CategoryLoan
	CategoryStaking
	CategoryDefi
	CategoryLedgerActions
	CategoryGasCosts
	CategoryMovementFees
	CategorySettlementLosses
)

func (c Category) String() string {
	switch c {
	case CategoryTradingGeneral:
		return "general trading profit/loss"
	case CategoryTradingTaxable:
		return "taxable trading profit/loss"
	case CategoryMargin:
		return "margin positions profit"
	case CategoryLoan:
		return "loan profit"
	case CategoryStaking:
		return "staking profit"
	case CategoryDefi:
		return "defi profit/loss"
	case CategoryLedgerActions:
		return "ledger actions profit/loss"
	case CategoryGasCosts:
		return "transaction gas costs"
	case CategoryMovementFees:
		return "asset movement fees"
	case CategorySettlementLosses:
		return "settlement losses"
	default:
		return fmt.Sprintf("category(%d)", int(c))
	}
}

// CategoryTotals maps every category to its accumulated signed total in
// profit currency.
type CategoryTotals map[Category]decimal.Decimal

// Total returns the category's total, zero when nothing accumulated.
func (t CategoryTotals) Total(c Category) decimal.Decimal {
	return t[c]
}

// CategoryAggregator accumulates per-category profit/loss totals during
// one run. It does no computation beyond addition; the overview's
// derived sums live on Report.
type CategoryAggregator struct {
	totals CategoryTotals
}

// NewCategoryAggregator creates an aggregator with all totals zeroed.
func NewCategoryAggregator() *CategoryAggregator {
	return &CategoryAggregator{totals: make(CategoryTotals)}
}

// Reset zeroes all totals.
func (a *CategoryAggregator) Reset() {
	a.totals = make(CategoryTotals)
}

// Add accumulates a signed amount into the category.
func (a *CategoryAggregator) Add(c Category, amount decimal.Decimal) {
	a.totals[c] = a.totals[c].Add(amount)
}

// Total returns the category's running total.
func (a *CategoryAggregator) Total(c Category) decimal.Decimal {
	return a.totals[c]
}

// Snapshot returns a copy of the totals, read once at the end of a run
// to build the overview.
func (a *CategoryAggregator) Snapshot() CategoryTotals {
	out := make(CategoryTotals, len(a.totals))
	for c, v := range a.totals {
		out[c] = v
	}
	return out
}
