package cryptotax

import (
	"log"

	"github.com/shopspring/decimal"
)

// lot records a single acquisition of an asset: the remaining amount,
// its acquisition time, the rate in profit currency per unit, and the
// acquisition fee per unit.
type lot struct {
	amount  decimal.Decimal
	time    Timestamp
	rate    decimal.Decimal
	feeRate decimal.Decimal
}

// cost is the acquisition cost in profit currency of the lot's remaining
// amount, fee included.
func (l lot) cost() decimal.Decimal {
	return l.amount.Mul(l.rate).Add(l.amount.Mul(l.feeRate))
}

// lotQueue is the FIFO of acquisition lots for one asset: front is the
// oldest. Eviction advances a cursor so that full consumption and
// partial shrinking are two separate operations.
type lotQueue struct {
	lots  []lot
	front int
}

func (q *lotQueue) push(l lot)    { q.lots = append(q.lots, l) }
func (q *lotQueue) len() int      { return len(q.lots) - q.front }
func (q *lotQueue) empty() bool   { return q.len() == 0 }
func (q *lotQueue) at(i int) *lot { return &q.lots[q.front+i] }

// evict removes the n oldest lots. The consumed prefix is dropped for
// good once it outgrows the live part.
func (q *lotQueue) evict(n int) {
	q.front += n
	if q.front > len(q.lots)/2 {
		q.lots = append(q.lots[:0], q.lots[q.front:]...)
		q.front = 0
	}
}

// Reduction is the outcome of consuming acquisition lots for one
// disposal: how much of the disposed amount is taxable under the holding
// period rule, and what the consumed lots cost in profit currency.
//
// Complete is false when no or not enough acquisitions were documented;
// the undocumented remainder is taxed in full with zero deducted cost.
type Reduction struct {
	TaxableAmount decimal.Decimal
	TaxFreeAmount decimal.Decimal
	TaxableCost   decimal.Decimal
	TaxFreeCost   decimal.Decimal
	Complete      bool
}

// CostBasisTracker owns, per asset, the FIFO queue of acquisition lots
// for one accounting run.
type CostBasisTracker struct {
	taxFreeAfter int64 // seconds; holding period after which a lot is tax-free
	queues       map[string]*lotQueue
}

// NewCostBasisTracker creates a tracker with the given holding period in
// seconds.
func NewCostBasisTracker(taxFreeAfterSeconds int64) *CostBasisTracker {
	return &CostBasisTracker{
		taxFreeAfter: taxFreeAfterSeconds,
		queues:       make(map[string]*lotQueue),
	}
}

// Reset discards all lot queues, preparing the tracker for a new run.
func (t *CostBasisTracker) Reset() {
	t.queues = make(map[string]*lotQueue)
}

func (t *CostBasisTracker) queue(asset string) *lotQueue {
	q, ok := t.queues[asset]
	if !ok {
		q = &lotQueue{}
		t.queues[asset] = q
	}
	return q
}

// Obtain appends a new acquisition lot for the asset.
//
// rate is the profit-currency price per unit; feeInProfitCurrency is the
// total acquisition fee, spread per unit across the lot.
func (t *CostBasisTracker) Obtain(asset string, amount decimal.Decimal, ts Timestamp, rate, feeInProfitCurrency decimal.Decimal) {
	feeRate := decimal.Zero
	if !amount.IsZero() {
		feeRate = feeInProfitCurrency.Div(amount)
	}
	t.queue(asset).push(lot{amount: amount, time: ts, rate: rate, feeRate: feeRate})
}

// taxFreeAt reports whether a lot acquired at acquired participates
// tax-free in a disposal at ts. A disposal at exactly acquired+period is
// still taxable.
func (t *CostBasisTracker) taxFreeAt(acquired, ts Timestamp) bool {
	return acquired.Add(t.taxFreeAfter).Before(ts)
}

// Reduce consumes lots from the front of the asset's queue to satisfy a
// disposal of the given amount at ts, splitting amount and cost into
// taxable and tax-free buckets per lot.
//
// Fully consumed lots are evicted; a lot that only partially covers the
// remainder is shrunk in place and kept. When no acquisition is
// documented at all, the entire amount is taxable with zero cost: no
// cost basis means no deduction.
func (t *CostBasisTracker) Reduce(asset string, amount decimal.Decimal, ts Timestamp) Reduction {
	q, ok := t.queues[asset]
	if !ok || q.empty() {
		log.Printf("CRITICAL: no documented acquisition found for %q before %s", asset, ts)
		return Reduction{TaxableAmount: amount}
	}

	var red Reduction
	remaining := amount
	evicted := 0
	satisfied := false
	for i := 0; i < q.len(); i++ {
		l := q.at(i)
		taxFree := t.taxFreeAt(l.time, ts)

		if remaining.LessThan(l.amount) {
			// The boundary lot: take the consumed portion's pro-rated
			// cost and shrink the lot in place.
			cost := remaining.Mul(l.rate).Sub(remaining.Mul(l.feeRate))
			if taxFree {
				red.TaxFreeAmount = red.TaxFreeAmount.Add(remaining)
				red.TaxFreeCost = red.TaxFreeCost.Add(cost)
			} else {
				red.TaxableAmount = red.TaxableAmount.Add(remaining)
				red.TaxableCost = red.TaxableCost.Add(cost)
			}
			l.amount = l.amount.Sub(remaining)
			remaining = decimal.Zero
			satisfied = true
			break
		}

		// Full consumption of this lot.
		if taxFree {
			red.TaxFreeAmount = red.TaxFreeAmount.Add(l.amount)
			red.TaxFreeCost = red.TaxFreeCost.Add(l.cost())
		} else {
			red.TaxableAmount = red.TaxableAmount.Add(l.amount)
			red.TaxableCost = red.TaxableCost.Add(l.cost())
		}
		remaining = remaining.Sub(l.amount)
		evicted = i + 1
		if remaining.IsZero() {
			satisfied = true
			break
		}
	}
	q.evict(evicted)

	if !satisfied && remaining.IsPositive() {
		log.Printf(
			"CRITICAL: not enough documented acquisitions for %q before %s: found %s, missing %s",
			asset, ts, amount.Sub(remaining), remaining,
		)
		// the undocumented remainder is fully taxable with no cost
		red.TaxableAmount = amount.Sub(red.TaxFreeAmount)
		return red
	}
	red.Complete = true
	return red
}

// Amount returns the total remaining acquired amount of the asset.
func (t *CostBasisTracker) Amount(asset string) decimal.Decimal {
	total := decimal.Zero
	q, ok := t.queues[asset]
	if !ok {
		return total
	}
	for i := 0; i < q.len(); i++ {
		total = total.Add(q.at(i).amount)
	}
	return total
}

// AssetDetail summarizes the still-open lots of one asset.
type AssetDetail struct {
	Amount        decimal.Decimal // total remaining amount
	TaxFreeAmount decimal.Decimal // part already aged past the holding period
	AverageRate   decimal.Decimal // amount-weighted acquisition rate
}

// Details computes, per asset, what amount has been untouched for the
// holding period (and is hence tax-free as of now) and the average
// acquisition rate.
func (t *CostBasisTracker) Details(now Timestamp) map[string]AssetDetail {
	details := make(map[string]AssetDetail, len(t.queues))
	for asset, q := range t.queues {
		var d AssetDetail
		weighted := decimal.Zero
		for i := 0; i < q.len(); i++ {
			l := q.at(i)
			if t.taxFreeAt(l.time, now) {
				d.TaxFreeAmount = d.TaxFreeAmount.Add(l.amount)
			}
			d.Amount = d.Amount.Add(l.amount)
			weighted = weighted.Add(l.amount.Mul(l.rate))
		}
		if !d.Amount.IsZero() {
			d.AverageRate = weighted.Div(d.Amount)
		}
		details[asset] = d
	}
	return details
}
