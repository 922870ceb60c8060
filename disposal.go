package cryptotax

import "github.com/shopspring/decimal"

// DisposalResult is the profit/loss split of one disposal.
type DisposalResult struct {
	// TaxableGain is the sale value of the taxable portion, its share of
	// the fee deducted.
	TaxableGain decimal.Decimal
	// TaxableProfitLoss is the jurisdiction-specific taxable P&L:
	// taxable gain minus the taxable portion's acquisition cost.
	TaxableProfitLoss decimal.Decimal
	// GeneralProfitLoss is the jurisdiction-agnostic total P&L,
	// holding period ignored.
	GeneralProfitLoss decimal.Decimal
	// SettlementLoss is the loss charged for a forced settlement
	// disposal: the full sale value plus the fee. Zero for ordinary
	// disposals.
	SettlementLoss decimal.Decimal
}

// DisposalCalculator turns a cost-basis reduction and the sale proceeds
// into taxable and general profit/loss.
type DisposalCalculator struct {
	// countProfitForSettlements also computes ordinary profit/loss for
	// settlement disposals, on top of the settlement loss.
	countProfitForSettlements bool
}

// NewDisposalCalculator creates a calculator.
func NewDisposalCalculator(countProfitForSettlements bool) *DisposalCalculator {
	return &DisposalCalculator{countProfitForSettlements: countProfitForSettlements}
}

// Compute calculates the profit/loss of disposing disposalAmount of an
// asset for saleProceeds (in profit currency), given the cost-basis
// reduction of the disposed amount.
//
// rateInProfitCurrency is the per-unit sale rate. The fee is pro-rated
// between the taxable and tax-free quantity by amount, never counted
// twice. A settlement is by policy a pure loss of proceeds plus fee.
func (c *DisposalCalculator) Compute(
	red Reduction,
	rateInProfitCurrency decimal.Decimal,
	saleProceeds decimal.Decimal,
	totalFeeInProfitCurrency decimal.Decimal,
	disposalAmount decimal.Decimal,
	settlement bool,
) DisposalResult {
	var res DisposalResult
	if settlement {
		// Forced sale to repay a loan/margin obligation: charged both
		// the sale value and the fee.
		res.SettlementLoss = saleProceeds.Add(totalFeeInProfitCurrency)
	}

	if settlement && !c.countProfitForSettlements {
		return res
	}

	feeShare := decimal.Zero
	if !disposalAmount.IsZero() {
		feeShare = totalFeeInProfitCurrency.Mul(red.TaxableAmount).Div(disposalAmount)
	}
	res.TaxableGain = rateInProfitCurrency.Mul(red.TaxableAmount).Sub(feeShare)
	res.GeneralProfitLoss = saleProceeds.Sub(
		red.TaxableCost.Add(red.TaxFreeCost).Add(totalFeeInProfitCurrency),
	)
	res.TaxableProfitLoss = res.TaxableGain.Sub(red.TaxableCost)
	return res
}
