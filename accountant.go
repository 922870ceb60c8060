package cryptotax

import (
	"context"
	"errors"
	"fmt"
	"log"
	"time"

	"github.com/shopspring/decimal"
)

// RunState is the lifecycle state of the Accountant.
type RunState int

const (
	StateIdle RunState = iota
	StateRunning
	StateDone
	StateFailed
)

func (s RunState) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateRunning:
		return "running"
	case StateDone:
		return "done"
	case StateFailed:
		return "failed"
	default:
		return fmt.Sprintf("state(%d)", int(s))
	}
}

// ProgressFunc is invoked by the fold loop at a fixed cadence. In a
// cooperative scheduler it is a yield point; elsewhere it can drive a
// progress display. It must not mutate the history.
type ProgressFunc func(processed int)

// progressEvery is the fold-loop cadence of progress callbacks and the
// granularity of cancellation checks.
const progressEvery = 500

// defaultGasPrice is carried forward for gas costs recorded without a
// price, until a transaction with one is seen.
var defaultGasPrice = decimal.New(2, 9) // 2000000000 wei

var weiPerEth = decimal.New(1, 18)

// Accountant orchestrates one accounting run: it sequences the history,
// dispatches every action to the cost-basis tracker, the disposal
// calculator and the category aggregator, and assembles the Report.
//
// An Accountant is not safe for concurrent use; all per-run state is
// reset at the start of ProcessHistory.
type Accountant struct {
	settings   Settings
	oracle     RateOracle
	registry   *AssetRegistry
	costBasis  *CostBasisTracker
	disposals  *DisposalCalculator
	categories *CategoryAggregator
	progress   ProgressFunc

	// per-run state
	state        RunState
	window       Window
	events       []EventRecord
	lastGasPrice decimal.Decimal
}

// NewAccountant wires an accountant from its collaborators. A nil
// registry falls back to the default fiat set.
func NewAccountant(settings Settings, oracle RateOracle, registry *AssetRegistry) (*Accountant, error) {
	if err := settings.Validate(); err != nil {
		return nil, err
	}
	if oracle == nil {
		return nil, errors.New("rate oracle is required")
	}
	if registry == nil {
		registry = DefaultAssetRegistry()
	}
	return &Accountant{
		settings:   settings,
		oracle:     oracle,
		registry:   registry,
		costBasis:  NewCostBasisTracker(settings.TaxFreeAfterSeconds),
		disposals:  NewDisposalCalculator(settings.CountProfitForSettlements),
		categories: NewCategoryAggregator(),
		state:      StateIdle,
	}, nil
}

// OnProgress installs the progress/yield callback.
func (a *Accountant) OnProgress(fn ProgressFunc) { a.progress = fn }

// State returns the lifecycle state of the last run.
func (a *Accountant) State() RunState { return a.state }

// reset clears all per-run state before a run.
func (a *Accountant) reset(window Window) {
	a.costBasis.Reset()
	a.categories.Reset()
	a.events = nil
	a.lastGasPrice = defaultGasPrice
	a.window = window
}

// ProcessHistory processes the entire history of actions in ascending
// time order and returns the profit/loss report for the window.
//
// Actions after the window's end are not processed. Actions before the
// window's start still mutate cost basis (warming it up from before the
// window) but contribute nothing to the categories. Each action is
// applied atomically relative to cancellation: ctx is only checked
// between actions.
func (a *Accountant) ProcessHistory(ctx context.Context, window Window, history History) (*Report, error) {
	a.reset(window)
	a.state = StateRunning

	if err := a.processActions(ctx, Sequence(history)); err != nil {
		a.state = StateFailed
		return nil, err
	}

	a.state = StateDone
	return &Report{
		Window:         window,
		ProfitCurrency: a.settings.ProfitCurrency,
		Overview:       NewOverview(a.categories.Snapshot(), a.settings.ProfitCurrency),
		Events:         a.events,
		AssetDetails:   a.costBasis.Details(TS(time.Now())),
	}, nil
}

// processActions folds an already time-sorted action stream. It asserts
// the ascending order it requires; a violation is fatal.
func (a *Accountant) processActions(ctx context.Context, actions []Action) error {
	var prev Timestamp
	for i, action := range actions {
		if err := ctx.Err(); err != nil {
			return fmt.Errorf("history processing aborted: %w", err)
		}
		if a.progress != nil && (i+1)%progressEvery == 0 {
			a.progress(i + 1)
		}

		ts := action.When()
		if ts.Before(prev) {
			return OutOfOrderError{Action: action.Kind(), At: ts, Previous: prev}
		}
		prev = ts

		if ts.After(a.window.End) {
			return nil
		}

		first, second := action.Assets()
		if a.settings.ignored(first) || a.settings.ignored(second) {
			log.Printf("ignoring %s with %s %s", action.Kind(), first, second)
			continue
		}

		if err := a.processAction(action); err != nil {
			return fmt.Errorf("%s: %w", describeAction(action), err)
		}
	}
	return nil
}

func (a *Accountant) processAction(action Action) error {
	switch v := action.(type) {
	case Trade:
		return a.processTrade(v)
	case LoanClose:
		return a.processLoan(v)
	case AssetMovement:
		return a.processMovement(v)
	case MarginPosition:
		return a.processMargin(v)
	case GasCost:
		return a.processGasCost(v)
	case LedgerAction:
		return a.processLedgerAction(v)
	case DefiEvent:
		return a.processDefiEvent(v)
	default:
		return fmt.Errorf("unexpected action type %T", action)
	}
}

// rateInProfitCurrency resolves an asset's rate into the profit
// currency; self-conversion short-circuits to exactly 1.
func (a *Accountant) rateInProfitCurrency(asset string, ts Timestamp) (decimal.Decimal, error) {
	if asset == a.settings.ProfitCurrency {
		return decimal.New(1, 0), nil
	}
	rate, err := a.oracle.RateAt(asset, a.settings.ProfitCurrency, ts)
	if err != nil {
		return decimal.Decimal{}, fmt.Errorf("rate %s->%s at %s: %w", asset, a.settings.ProfitCurrency, ts, err)
	}
	return rate, nil
}

// feeInProfitCurrency converts a fee into the profit currency; a zero
// fee never hits the oracle, its currency may be unset.
func (a *Accountant) feeInProfitCurrency(fee decimal.Decimal, feeCurrency string, ts Timestamp) (decimal.Decimal, error) {
	if fee.IsZero() {
		return decimal.Zero, nil
	}
	rate, err := a.rateInProfitCurrency(feeCurrency, ts)
	if err != nil {
		return decimal.Decimal{}, err
	}
	return rate.Mul(fee), nil
}

func (a *Accountant) processTrade(t Trade) error {
	if err := t.validateCost(); err != nil {
		return err
	}

	switch t.Type {
	case TradeBuy:
		return a.addBuyAndCorrespondingSell(t)
	case TradeSell:
		return a.tradeToSell(t, false)
	case TradeSettlementSell:
		// a settlement sells some asset to repay a loan
		return a.tradeToSell(t, true)
	case TradeSettlementBuy:
		// a settlement buy pays with the cost-currency asset to repay a
		// loan, so in essence it disposes of the cost currency
		sellingAsset := t.CostCurrency
		sellingAssetRate, err := a.rateInProfitCurrency(sellingAsset, t.Time)
		if err != nil {
			return err
		}
		sellingRate := sellingAssetRate.Mul(t.Rate)
		totalFee, err := a.feeInProfitCurrency(t.Fee, t.FeeCurrency, t.Time)
		if err != nil {
			return err
		}
		gain := sellingRate.Mul(t.Amount)
		return a.addSell(sellParams{
			asset:        sellingAsset,
			amount:       t.Cost,
			gain:         gain,
			totalFee:     totalFee,
			rateInProfit: sellingRate,
			ts:           t.Time,
			settlement:   true,
		})
	default:
		return fmt.Errorf("unknown trade type %q", t.Type)
	}
}

// addBuy acquires a lot for boughtAsset, with the rate converted through
// the paid asset and the fee converted to profit currency.
func (a *Accountant) addBuy(boughtAsset string, boughtAmount decimal.Decimal, paidWithAsset string, tradeRate, tradeFee decimal.Decimal, feeCurrency string, ts Timestamp, virtual bool) error {
	paidAssetRate, err := a.rateInProfitCurrency(paidWithAsset, ts)
	if err != nil {
		return err
	}
	buyRate := paidAssetRate.Mul(tradeRate)

	feeCost, err := a.feeInProfitCurrency(tradeFee, feeCurrency, ts)
	if err != nil {
		return err
	}

	grossCost := boughtAmount.Mul(buyRate)
	cost := grossCost.Add(feeCost)
	a.costBasis.Obtain(boughtAsset, boughtAmount, ts, buyRate, feeCost)

	log.Printf("buying %s %q with %q for %s %s per unit at %s",
		boughtAmount, boughtAsset, paidWithAsset, buyRate, a.settings.ProfitCurrency, ts)

	a.events = append(a.events, EventRecord{
		Type:                 "buy",
		PaidInProfitCurrency: cost,
		PaidAsset:            paidWithAsset,
		PaidInAsset:          tradeRate.Mul(boughtAmount),
		ReceivedAsset:        boughtAsset,
		ReceivedInAsset:      boughtAmount,
		Time:                 ts,
		Virtual:              virtual,
	})
	return nil
}

// addBuyAndCorrespondingSell handles a genuine buy trade: acquire the
// bought asset and, for crypto-to-crypto trades, synthesize the virtual
// disposal of the paid asset.
func (a *Accountant) addBuyAndCorrespondingSell(t Trade) error {
	boughtAsset := t.Pair.Other(t.CostCurrency)
	if err := a.addBuy(boughtAsset, t.Amount, t.CostCurrency, t.Rate, t.Fee, t.FeeCurrency, t.Time, false); err != nil {
		return err
	}

	if a.registry.IsFiat(t.CostCurrency) {
		return nil
	}
	if t.Rate.IsZero() {
		// a zero-rate buy pays nothing, there is no disposal to record
		return nil
	}
	// Paid with another crypto asset: this trade also disposes of it.
	boughtAssetRate, err := a.rateInProfitCurrency(boughtAsset, t.Time)
	haveBoughtRate := err == nil
	if err != nil && !errors.Is(err, ErrNoPriceForTimestamp) && !errors.Is(err, ErrUnsupportedAsset) {
		return err
	}

	soldAmount := t.Rate.Mul(t.Amount)
	soldAssetRate, err := a.rateInProfitCurrency(t.CostCurrency, t.Time)
	if err != nil {
		return err
	}
	withSoldAssetGain := soldAssetRate.Mul(soldAmount)

	// Value the sell at whichever leg gives the least profit: both legs
	// are priced independently and may disagree, and taking the larger
	// would recognize phantom gains.
	receivingAsset := boughtAsset
	receivingAmount := t.Amount
	tradeRate := t.Rate
	var rateInProfit, gain decimal.Decimal
	if haveBoughtRate {
		withBoughtAssetGain := boughtAssetRate.Mul(t.Amount)
		rateInProfit = boughtAssetRate.Div(t.Rate)
		gain = withBoughtAssetGain
	}
	if !haveBoughtRate || withSoldAssetGain.LessThan(gain) {
		receivingAsset = a.settings.ProfitCurrency
		receivingAmount = withSoldAssetGain
		tradeRate = soldAssetRate
		rateInProfit = soldAssetRate
		gain = withSoldAssetGain
	}

	feeInProfit, err := a.feeInProfitCurrency(t.Fee, t.FeeCurrency, t.Time)
	if err != nil {
		return err
	}

	return a.addSell(sellParams{
		asset:           t.CostCurrency,
		amount:          soldAmount,
		receivingAsset:  receivingAsset,
		receivingAmount: receivingAmount,
		gain:            gain,
		totalFee:        feeInProfit,
		tradeRate:       tradeRate,
		rateInProfit:    rateInProfit,
		ts:              t.Time,
		virtual:         true,
	})
}

// tradeToSell handles a sell or settlement-sell trade.
func (a *Accountant) tradeToSell(t Trade, settlement bool) error {
	sellingAsset := t.Pair.Other(t.CostCurrency)
	costCurrencyRate, err := a.rateInProfitCurrency(t.CostCurrency, t.Time)
	if err != nil {
		return err
	}
	sellingRate := costCurrencyRate.Mul(t.Rate)
	totalFee, err := a.feeInProfitCurrency(t.Fee, t.FeeCurrency, t.Time)
	if err != nil {
		return err
	}
	gain := sellingRate.Mul(t.Amount)

	if err := a.addSell(sellParams{
		asset:           sellingAsset,
		amount:          t.Amount,
		receivingAsset:  t.CostCurrency,
		receivingAmount: t.Cost,
		gain:            gain,
		totalFee:        totalFee,
		tradeRate:       t.Rate,
		rateInProfit:    sellingRate,
		ts:              t.Time,
		settlement:      settlement,
	}); err != nil {
		return err
	}

	if settlement || a.registry.IsFiat(t.CostCurrency) || t.Rate.IsZero() {
		return nil
	}
	// Receiving another crypto asset: the sell also buys it. The virtual
	// buy carries no fee, the fee is already accounted on the sell side.
	return a.addBuy(t.CostCurrency, t.Cost, sellingAsset, decimal.New(1, 0).Div(t.Rate), decimal.Zero, "", t.Time, true)
}

// sellParams bundles the arguments of one disposal.
type sellParams struct {
	asset           string
	amount          decimal.Decimal
	receivingAsset  string
	receivingAmount decimal.Decimal
	gain            decimal.Decimal // sale proceeds in profit currency
	totalFee        decimal.Decimal // in profit currency
	tradeRate       decimal.Decimal
	rateInProfit    decimal.Decimal
	ts              Timestamp
	settlement      bool
	virtual         bool
}

// addSell reduces the disposed asset's cost basis, computes the
// disposal's profit/loss and routes it into the categories.
func (a *Accountant) addSell(p sellParams) error {
	// stopped at the main loop, violation means corrupted dispatch
	if p.ts.After(a.window.End) {
		return fmt.Errorf("disposal at %s after window end %s", p.ts, a.window.End)
	}

	red := a.costBasis.Reduce(p.asset, p.amount, p.ts)
	res := a.disposals.Compute(red, p.rateInProfit, p.gain, p.totalFee, p.amount, p.settlement)

	if p.settlement {
		log.Printf("settlement selling %s %q for %s %s at %s",
			p.amount, p.asset, p.gain, a.settings.ProfitCurrency, p.ts)
	} else {
		log.Printf("selling %s %q for %s %q (gain %s %s, fee %s) at %s",
			p.amount, p.asset, p.receivingAmount, p.receivingAsset,
			p.gain, a.settings.ProfitCurrency, p.totalFee, p.ts)
	}

	if p.ts < a.window.Start {
		return nil
	}

	if p.settlement {
		a.categories.Add(CategorySettlementLosses, res.SettlementLoss)
	}
	a.categories.Add(CategoryTradingGeneral, res.GeneralProfitLoss)
	a.categories.Add(CategoryTradingTaxable, res.TaxableProfitLoss)

	typ := "sell"
	if p.settlement {
		typ = "settlement"
	}
	a.events = append(a.events, EventRecord{
		Type:                     typ,
		PaidAsset:                p.asset,
		PaidInAsset:              p.amount,
		TaxableAmount:            red.TaxableAmount,
		TaxableBoughtCost:        red.TaxableCost,
		ReceivedAsset:            p.receivingAsset,
		ReceivedInAsset:          p.receivingAmount,
		ReceivedInProfitCurrency: p.gain,
		NetProfitLoss:            res.GeneralProfitLoss.Sub(res.SettlementLoss),
		Time:                     p.ts,
		Virtual:                  p.virtual,
	})
	return nil
}

func (a *Accountant) processLoan(l LoanClose) error {
	ts := l.CloseTime
	rate, err := a.rateInProfitCurrency(l.Asset, ts)
	if err != nil {
		return err
	}
	netGain := l.Earned.Sub(l.Fee)
	gainInProfit := netGain.Mul(rate)
	a.costBasis.Obtain(l.Asset, netGain, ts, rate, decimal.Zero)

	if ts < a.window.Start {
		return nil
	}
	a.categories.Add(CategoryLoan, gainInProfit)
	a.events = append(a.events, EventRecord{
		Type:                     "loan_profit",
		ReceivedAsset:            l.Asset,
		ReceivedInAsset:          netGain,
		ReceivedInProfitCurrency: gainInProfit,
		NetProfitLoss:            gainInProfit,
		Time:                     ts,
	})
	return nil
}

func (a *Accountant) processMovement(m AssetMovement) error {
	// deposits and withdrawals only matter for their fee
	if m.Fee.IsZero() {
		return nil
	}
	rate, err := a.rateInProfitCurrency(m.Asset, m.Time)
	if err != nil {
		return err
	}
	feeInProfit := m.Fee.Mul(rate)

	if m.Time < a.window.Start {
		return nil
	}
	a.categories.Add(CategoryMovementFees, feeInProfit)
	a.events = append(a.events, EventRecord{
		Type:                 string(m.Category) + "_fee",
		PaidInProfitCurrency: feeInProfit,
		PaidAsset:            m.Asset,
		PaidInAsset:          m.Fee,
		NetProfitLoss:        feeInProfit.Neg(),
		Time:                 m.Time,
	})
	return nil
}

func (a *Accountant) processMargin(m MarginPosition) error {
	ts := m.CloseTime
	rate, err := a.rateInProfitCurrency(m.PLAsset, ts)
	if err != nil {
		return err
	}

	switch {
	case m.ProfitLoss.IsPositive():
		a.costBasis.Obtain(m.PLAsset, m.ProfitLoss, ts, rate, decimal.Zero)
	case m.ProfitLoss.IsNegative():
		a.costBasis.Reduce(m.PLAsset, m.ProfitLoss.Neg(), ts)
	}

	feeInProfit := decimal.Zero
	if !m.Fee.IsZero() {
		feeRate, err := a.rateInProfitCurrency(m.FeeAsset, ts)
		if err != nil {
			return err
		}
		feeInProfit = m.Fee.Mul(feeRate)
		a.costBasis.Reduce(m.FeeAsset, m.Fee, ts)
	}

	if ts < a.window.Start {
		return nil
	}
	net := m.ProfitLoss.Mul(rate).Sub(feeInProfit)
	a.categories.Add(CategoryMargin, net)
	a.events = append(a.events, EventRecord{
		Type:                     "margin_position",
		ReceivedAsset:            m.PLAsset,
		ReceivedInAsset:          m.ProfitLoss,
		ReceivedInProfitCurrency: m.ProfitLoss.Mul(rate),
		PaidInProfitCurrency:     feeInProfit,
		NetProfitLoss:            net,
		Time:                     ts,
	})
	return nil
}

func (a *Accountant) processGasCost(g GasCost) error {
	gasPrice := g.GasPrice
	if gasPrice.IsPositive() {
		a.lastGasPrice = gasPrice
	} else {
		// price missing from historical data, carry the last one forward
		gasPrice = a.lastGasPrice
	}

	rate, err := a.rateInProfitCurrency("ETH", g.Time)
	if err != nil {
		return err
	}
	ethBurned := g.GasUsed.Mul(gasPrice).Div(weiPerEth)
	cost := ethBurned.Mul(rate)

	if g.Time < a.window.Start {
		return nil
	}
	a.categories.Add(CategoryGasCosts, cost)
	a.events = append(a.events, EventRecord{
		Type:                 "tx_gas_cost",
		PaidInProfitCurrency: cost,
		PaidAsset:            "ETH",
		PaidInAsset:          ethBurned,
		NetProfitLoss:        cost.Neg(),
		Time:                 g.Time,
	})
	return nil
}

func (a *Accountant) processLedgerAction(l LedgerAction) error {
	rate := l.Rate
	if rate.IsZero() {
		var err error
		rate, err = a.rateInProfitCurrency(l.Asset, l.Time)
		if err != nil {
			return err
		}
	} else if l.RateAsset != "" && l.RateAsset != a.settings.ProfitCurrency {
		// the given rate is denominated in another asset, cross through
		cross, err := a.rateInProfitCurrency(l.RateAsset, l.Time)
		if err != nil {
			return err
		}
		rate = rate.Mul(cross)
	}

	// cost basis must stay correct even for untaxed types and periods
	switch {
	case l.Amount.IsPositive():
		a.costBasis.Obtain(l.Asset, l.Amount, l.Time, rate, decimal.Zero)
	case l.Amount.IsNegative():
		a.costBasis.Reduce(l.Asset, l.Amount.Neg(), l.Time)
	}

	if l.Time < a.window.Start || !a.settings.taxable(l.Type) {
		return nil
	}
	profit := l.Amount.Mul(rate)
	category := CategoryLedgerActions
	if l.Type == ActionStaking {
		category = CategoryStaking
	}
	a.categories.Add(category, profit)
	a.events = append(a.events, EventRecord{
		Type:                     "ledger_action/" + string(l.Type),
		ReceivedAsset:            l.Asset,
		ReceivedInAsset:          l.Amount,
		ReceivedInProfitCurrency: profit,
		NetProfitLoss:            profit,
		Time:                     l.Time,
	})
	return nil
}

func (a *Accountant) processDefiEvent(d DefiEvent) error {
	// cost basis effects always apply, even outside the window
	if d.GotAsset != "" && d.GotAmount.IsPositive() {
		rate, err := a.rateInProfitCurrency(d.GotAsset, d.Time)
		if err != nil {
			return err
		}
		a.costBasis.Obtain(d.GotAsset, d.GotAmount, d.Time, rate, decimal.Zero)
	}
	if d.SpentAsset != "" && d.SpentAmount.IsPositive() {
		a.costBasis.Reduce(d.SpentAsset, d.SpentAmount, d.Time)
	}

	if d.Time < a.window.Start || len(d.PnL) == 0 {
		return nil
	}
	net := decimal.Zero
	for _, p := range d.PnL {
		rate, err := a.rateInProfitCurrency(p.Asset, d.Time)
		if err != nil {
			return err
		}
		net = net.Add(p.Amount.Mul(rate))
	}
	a.categories.Add(CategoryDefi, net)
	a.events = append(a.events, EventRecord{
		Type:            "defi_event",
		ReceivedAsset:   d.GotAsset,
		ReceivedInAsset: d.GotAmount,
		PaidAsset:       d.SpentAsset,
		PaidInAsset:     d.SpentAmount,
		NetProfitLoss:   net,
		Time:            d.Time,
	})
	return nil
}
