package cryptotax

import (
	"context"
	"errors"
	"testing"
)

// newTestAccountant wires an accountant over an in-memory rate database
// with EUR profit currency and a one year holding period.
func newTestAccountant(t *testing.T, settings Settings, rates *Rates) *Accountant {
	t.Helper()
	a, err := NewAccountant(settings, rates, nil)
	if err != nil {
		t.Fatalf("NewAccountant() error = %v", err)
	}
	return a
}

func TestAccountant_SaleAfterHoldingPeriod(t *testing.T) {
	// Bought 10 ETH at 2 EUR, sold 400 days later at 3 EUR: the whole
	// gain is realized but none of it is taxable.
	h := History{Trades: []Trade{
		{Time: 1000, Pair: Pair{"ETH", "EUR"}, Type: TradeBuy, Amount: d("10"), Rate: d("2"), Cost: d("20"), CostCurrency: "EUR"},
		{Time: 34561000, Pair: Pair{"ETH", "EUR"}, Type: TradeSell, Amount: d("10"), Rate: d("3"), Cost: d("30"), CostCurrency: "EUR"},
	}}

	a := newTestAccountant(t, DefaultSettings(), NewRates())
	report, err := a.ProcessHistory(context.Background(), Window{Start: 0, End: 40000000}, h)
	if err != nil {
		t.Fatalf("ProcessHistory() error = %v", err)
	}
	if a.State() != StateDone {
		t.Errorf("State() = %s, want %s", a.State(), StateDone)
	}

	o := report.Overview
	if o.GeneralTradeProfitLoss != "10" {
		t.Errorf("GeneralTradeProfitLoss = %s, want 10", o.GeneralTradeProfitLoss)
	}
	if o.TaxableTradeProfitLoss != "0" {
		t.Errorf("TaxableTradeProfitLoss = %s, want 0", o.TaxableTradeProfitLoss)
	}
	if o.TotalProfitLoss != "10" {
		t.Errorf("TotalProfitLoss = %s, want 10", o.TotalProfitLoss)
	}
	if o.TotalTaxableProfitLoss != "0" {
		t.Errorf("TotalTaxableProfitLoss = %s, want 0", o.TotalTaxableProfitLoss)
	}
	if len(report.Events) != 2 {
		t.Errorf("got %d events, want a buy and a sell", len(report.Events))
	}
}

func TestAccountant_SaleWithinHoldingPeriod(t *testing.T) {
	h := History{Trades: []Trade{
		{Time: 1000, Pair: Pair{"BTC", "EUR"}, Type: TradeBuy, Amount: d("1"), Rate: d("1000"), Cost: d("1000"), CostCurrency: "EUR"},
		{Time: 2000, Pair: Pair{"BTC", "EUR"}, Type: TradeSell, Amount: d("1"), Rate: d("1200"), Cost: d("1200"), CostCurrency: "EUR", Fee: d("10"), FeeCurrency: "EUR"},
	}}

	a := newTestAccountant(t, DefaultSettings(), NewRates())
	report, err := a.ProcessHistory(context.Background(), Window{Start: 0, End: 10000}, h)
	if err != nil {
		t.Fatalf("ProcessHistory() error = %v", err)
	}

	o := report.Overview
	// 1200 - (1000 + 10), fully taxable within the holding period
	if o.GeneralTradeProfitLoss != "190" {
		t.Errorf("GeneralTradeProfitLoss = %s, want 190", o.GeneralTradeProfitLoss)
	}
	if o.TaxableTradeProfitLoss != "190" {
		t.Errorf("TaxableTradeProfitLoss = %s, want 190", o.TaxableTradeProfitLoss)
	}
}

func cryptoToCryptoHistory() History {
	return History{Trades: []Trade{
		// funding: 0.1 BTC bought with fiat
		{Time: 1000, Pair: Pair{"BTC", "EUR"}, Type: TradeBuy, Amount: d("0.1"), Rate: d("1000"), Cost: d("100"), CostCurrency: "EUR"},
		// 2 ETH bought with that BTC
		{Time: 2000, Pair: Pair{"ETH", "BTC"}, Type: TradeBuy, Amount: d("2"), Rate: d("0.05"), Cost: d("0.1"), CostCurrency: "BTC"},
	}}
}

func TestAccountant_CryptoToCryptoBuy(t *testing.T) {
	rates := NewRates()
	rates.Append("BTC", "EUR", 0, d("1900"))
	rates.Append("ETH", "EUR", 0, d("100"))

	a := newTestAccountant(t, DefaultSettings(), rates)
	report, err := a.ProcessHistory(context.Background(), Window{Start: 0, End: 10000}, cryptoToCryptoHistory())
	if err != nil {
		t.Fatalf("ProcessHistory() error = %v", err)
	}

	// The virtual BTC sale is valued at the cheaper leg: 0.1 BTC at
	// 1900 = 190, below the 2 ETH at 100 = 200. Basis was 100.
	o := report.Overview
	if o.GeneralTradeProfitLoss != "90" {
		t.Errorf("GeneralTradeProfitLoss = %s, want 90", o.GeneralTradeProfitLoss)
	}
	if o.TaxableTradeProfitLoss != "90" {
		t.Errorf("TaxableTradeProfitLoss = %s, want 90", o.TaxableTradeProfitLoss)
	}

	// buy BTC, buy ETH, virtual sell BTC
	if len(report.Events) != 3 {
		t.Fatalf("got %d events, want 3", len(report.Events))
	}
	if !report.Events[2].Virtual {
		t.Errorf("the BTC disposal is not flagged virtual")
	}

	eth := report.AssetDetails["ETH"]
	if !eth.Amount.Equal(d("2")) {
		t.Errorf("remaining ETH = %s, want 2", eth.Amount)
	}
	// acquired through BTC: 1900 * 0.05
	if !eth.AverageRate.Equal(d("95")) {
		t.Errorf("ETH average rate = %s, want 95", eth.AverageRate)
	}
}

func TestAccountant_CryptoToCryptoBuyWithoutBoughtLegPrice(t *testing.T) {
	// No ETH price at all: the virtual sale falls back to the sold
	// leg's value instead of failing the run.
	rates := NewRates()
	rates.Append("BTC", "EUR", 0, d("1900"))

	a := newTestAccountant(t, DefaultSettings(), rates)
	report, err := a.ProcessHistory(context.Background(), Window{Start: 0, End: 10000}, cryptoToCryptoHistory())
	if err != nil {
		t.Fatalf("ProcessHistory() error = %v", err)
	}
	if got := report.Overview.GeneralTradeProfitLoss; got != "90" {
		t.Errorf("GeneralTradeProfitLoss = %s, want 90", got)
	}
	if got := report.Events[2].ReceivedAsset; got != "EUR" {
		t.Errorf("virtual sale received asset = %s, want the profit currency", got)
	}
}

func TestAccountant_ZeroRateCryptoBuy(t *testing.T) {
	// A giveaway recorded as a zero-rate trade: nothing was paid, so no
	// virtual disposal of the paying asset happens.
	rates := NewRates()
	rates.Append("BTC", "EUR", 0, d("1900"))

	h := History{Trades: []Trade{
		{Time: 1000, Pair: Pair{"FREE", "BTC"}, Type: TradeBuy, Amount: d("10"), Rate: d("0"), Cost: d("0"), CostCurrency: "BTC"},
	}}
	a := newTestAccountant(t, DefaultSettings(), rates)
	report, err := a.ProcessHistory(context.Background(), Window{Start: 0, End: 10000}, h)
	if err != nil {
		t.Fatalf("ProcessHistory() error = %v", err)
	}
	if a.State() != StateDone {
		t.Errorf("State() = %s, want %s", a.State(), StateDone)
	}
	if len(report.Events) != 1 {
		t.Fatalf("got %d events, want only the buy", len(report.Events))
	}
	if got := report.Overview.TotalProfitLoss; got != "0" {
		t.Errorf("TotalProfitLoss = %s, want 0", got)
	}
	free := report.AssetDetails["FREE"]
	if !free.Amount.Equal(d("10")) {
		t.Errorf("remaining FREE = %s, want 10", free.Amount)
	}
}

func TestAccountant_ZeroRateCryptoSell(t *testing.T) {
	// A zero-rate sell receives nothing, so no virtual acquisition of the
	// cost currency happens.
	rates := NewRates()
	rates.Append("BTC", "EUR", 0, d("1900"))
	rates.Append("FREE", "EUR", 0, d("1"))

	h := History{Trades: []Trade{
		{Time: 1000, Pair: Pair{"FREE", "BTC"}, Type: TradeBuy, Amount: d("10"), Rate: d("0"), Cost: d("0"), CostCurrency: "BTC"},
		{Time: 2000, Pair: Pair{"FREE", "BTC"}, Type: TradeSell, Amount: d("10"), Rate: d("0"), Cost: d("0"), CostCurrency: "BTC"},
	}}
	a := newTestAccountant(t, DefaultSettings(), rates)
	report, err := a.ProcessHistory(context.Background(), Window{Start: 0, End: 10000}, h)
	if err != nil {
		t.Fatalf("ProcessHistory() error = %v", err)
	}
	if len(report.Events) != 2 {
		t.Fatalf("got %d events, want the buy and the sell", len(report.Events))
	}
	// zero basis disposed for zero proceeds
	if got := report.Overview.GeneralTradeProfitLoss; got != "0" {
		t.Errorf("GeneralTradeProfitLoss = %s, want 0", got)
	}
	btc := report.AssetDetails["BTC"]
	if !btc.Amount.IsZero() {
		t.Errorf("BTC = %s, want no virtual acquisition", btc.Amount)
	}
}

func TestAccountant_SettlementSell(t *testing.T) {
	h := History{Trades: []Trade{
		{Time: 1000, Pair: Pair{"BTC", "EUR"}, Type: TradeBuy, Amount: d("1"), Rate: d("100"), Cost: d("100"), CostCurrency: "EUR"},
		{Time: 2000, Pair: Pair{"BTC", "EUR"}, Type: TradeSettlementSell, Amount: d("1"), Rate: d("120"), Cost: d("120"), CostCurrency: "EUR", Fee: d("5"), FeeCurrency: "EUR"},
	}}

	a := newTestAccountant(t, DefaultSettings(), NewRates())
	report, err := a.ProcessHistory(context.Background(), Window{Start: 0, End: 10000}, h)
	if err != nil {
		t.Fatalf("ProcessHistory() error = %v", err)
	}

	o := report.Overview
	if o.SettlementLosses != "125" {
		t.Errorf("SettlementLosses = %s, want 125", o.SettlementLosses)
	}
	// settlements are a pure loss unless opted in
	if o.GeneralTradeProfitLoss != "0" {
		t.Errorf("GeneralTradeProfitLoss = %s, want 0", o.GeneralTradeProfitLoss)
	}
	if o.TotalProfitLoss != "-125" {
		t.Errorf("TotalProfitLoss = %s, want -125", o.TotalProfitLoss)
	}
	if o.TotalTaxableProfitLoss != "-125" {
		t.Errorf("TotalTaxableProfitLoss = %s, want -125", o.TotalTaxableProfitLoss)
	}
}

func TestAccountant_WindowWarmUp(t *testing.T) {
	// Activity before the window still moves the cost basis but
	// contributes no profit/loss.
	h := History{Trades: []Trade{
		{Time: 1000, Pair: Pair{"BTC", "EUR"}, Type: TradeBuy, Amount: d("1"), Rate: d("100"), Cost: d("100"), CostCurrency: "EUR"},
		{Time: 2000, Pair: Pair{"BTC", "EUR"}, Type: TradeSell, Amount: d("0.5"), Rate: d("300"), Cost: d("150"), CostCurrency: "EUR"},
		{Time: 6000, Pair: Pair{"BTC", "EUR"}, Type: TradeSell, Amount: d("0.5"), Rate: d("150"), Cost: d("75"), CostCurrency: "EUR"},
	}}

	a := newTestAccountant(t, DefaultSettings(), NewRates())
	report, err := a.ProcessHistory(context.Background(), Window{Start: 5000, End: 10000}, h)
	if err != nil {
		t.Fatalf("ProcessHistory() error = %v", err)
	}

	// Only the second sale counts: 75 proceeds against the remaining
	// half of the lot, 50.
	if got := report.Overview.GeneralTradeProfitLoss; got != "25" {
		t.Errorf("GeneralTradeProfitLoss = %s, want 25", got)
	}
}

func TestAccountant_StopsAtWindowEnd(t *testing.T) {
	h := History{Trades: []Trade{
		{Time: 1000, Pair: Pair{"BTC", "EUR"}, Type: TradeBuy, Amount: d("1"), Rate: d("100"), Cost: d("100"), CostCurrency: "EUR"},
		{Time: 20000, Pair: Pair{"BTC", "EUR"}, Type: TradeSell, Amount: d("1"), Rate: d("300"), Cost: d("300"), CostCurrency: "EUR"},
	}}

	a := newTestAccountant(t, DefaultSettings(), NewRates())
	report, err := a.ProcessHistory(context.Background(), Window{Start: 0, End: 10000}, h)
	if err != nil {
		t.Fatalf("ProcessHistory() error = %v", err)
	}
	if got := report.Overview.TotalProfitLoss; got != "0" {
		t.Errorf("TotalProfitLoss = %s, want 0 when the sale is past the window end", got)
	}
	btc := report.AssetDetails["BTC"]
	if !btc.Amount.Equal(d("1")) {
		t.Errorf("remaining BTC = %s, want the untouched lot", btc.Amount)
	}
}

func TestAccountant_Cancellation(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	h := History{Trades: []Trade{
		{Time: 1000, Pair: Pair{"BTC", "EUR"}, Type: TradeBuy, Amount: d("1"), Rate: d("100"), Cost: d("100"), CostCurrency: "EUR"},
	}}
	a := newTestAccountant(t, DefaultSettings(), NewRates())
	_, err := a.ProcessHistory(ctx, Window{Start: 0, End: 10000}, h)
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("ProcessHistory() error = %v, want context.Canceled", err)
	}
	if a.State() != StateFailed {
		t.Errorf("State() = %s, want %s", a.State(), StateFailed)
	}
}

func TestAccountant_OutOfOrderStreamIsFatal(t *testing.T) {
	// The fold requires a time-sorted stream; feed it one directly,
	// bypassing the sequencer's sort.
	a := newTestAccountant(t, DefaultSettings(), NewRates())
	a.reset(Window{Start: 0, End: 10000})

	actions := []Action{
		Trade{Time: 2000, Pair: Pair{"BTC", "EUR"}, Type: TradeBuy, Amount: d("1"), Rate: d("100"), Cost: d("100"), CostCurrency: "EUR"},
		Trade{Time: 1000, Pair: Pair{"BTC", "EUR"}, Type: TradeBuy, Amount: d("1"), Rate: d("100"), Cost: d("100"), CostCurrency: "EUR"},
	}
	err := a.processActions(context.Background(), actions)
	var ooo OutOfOrderError
	if !errors.As(err, &ooo) {
		t.Fatalf("processActions() error = %v, want an OutOfOrderError", err)
	}
	if ooo.Action != KindTrade {
		t.Errorf("offending kind = %s, want %s", ooo.Action, KindTrade)
	}
	if ooo.At != 1000 || ooo.Previous != 2000 {
		t.Errorf("offending times = %s after %s, want 1000 after 2000", ooo.At, ooo.Previous)
	}
}

func TestAccountant_CorruptTradeIsFatal(t *testing.T) {
	h := History{Trades: []Trade{
		{Time: 1000, Pair: Pair{"BTC", "EUR"}, Type: TradeBuy, Amount: d("1"), Rate: d("100"), Cost: d("999"), CostCurrency: "EUR"},
	}}
	a := newTestAccountant(t, DefaultSettings(), NewRates())
	_, err := a.ProcessHistory(context.Background(), Window{Start: 0, End: 10000}, h)
	var corrupt CorruptTradeError
	if !errors.As(err, &corrupt) {
		t.Fatalf("ProcessHistory() error = %v, want a CorruptTradeError", err)
	}
	if a.State() != StateFailed {
		t.Errorf("State() = %s, want %s", a.State(), StateFailed)
	}
}

func TestAccountant_MissingRateIsFatal(t *testing.T) {
	// A sell of an asset priced in an unknown currency cannot be valued.
	h := History{Trades: []Trade{
		{Time: 1000, Pair: Pair{"BTC", "USD"}, Type: TradeBuy, Amount: d("1"), Rate: d("100"), Cost: d("100"), CostCurrency: "USD"},
	}}
	a := newTestAccountant(t, DefaultSettings(), NewRates())
	_, err := a.ProcessHistory(context.Background(), Window{Start: 0, End: 10000}, h)
	if !errors.Is(err, ErrUnsupportedAsset) {
		t.Fatalf("ProcessHistory() error = %v, want ErrUnsupportedAsset", err)
	}
	if a.State() != StateFailed {
		t.Errorf("State() = %s, want %s", a.State(), StateFailed)
	}
}

func TestAccountant_IgnoredAssets(t *testing.T) {
	settings := DefaultSettings()
	settings.IgnoredAssets = []string{"SCAM"}

	h := History{Trades: []Trade{
		// would fail on the missing SCAM rate if it were processed
		{Time: 1000, Pair: Pair{"SCAM", "BTC"}, Type: TradeBuy, Amount: d("1000"), Rate: d("0.1"), Cost: d("100"), CostCurrency: "BTC"},
	}}
	a := newTestAccountant(t, settings, NewRates())
	report, err := a.ProcessHistory(context.Background(), Window{Start: 0, End: 10000}, h)
	if err != nil {
		t.Fatalf("ProcessHistory() error = %v", err)
	}
	if len(report.Events) != 0 {
		t.Errorf("got %d events for an ignored asset, want none", len(report.Events))
	}
}

func TestAccountant_GasCostCarryForward(t *testing.T) {
	rates := NewRates()
	rates.Append("ETH", "EUR", 0, d("1000"))

	h := History{GasCosts: []GasCost{
		{Time: 1000, GasUsed: d("21000"), GasPrice: d("3000000000")},
		{Time: 2000, GasUsed: d("21000")}, // price unknown, reuse the last one
	}}
	a := newTestAccountant(t, DefaultSettings(), rates)
	report, err := a.ProcessHistory(context.Background(), Window{Start: 0, End: 10000}, h)
	if err != nil {
		t.Fatalf("ProcessHistory() error = %v", err)
	}
	// 2 * 21000*3e9 wei = 2 * 0.000063 ETH at 1000
	if got := report.Overview.EthereumTransactionGasCosts; got != "0.126" {
		t.Errorf("EthereumTransactionGasCosts = %s, want 0.126", got)
	}
	if got := report.Overview.TotalProfitLoss; got != "-0.126" {
		t.Errorf("TotalProfitLoss = %s, want -0.126", got)
	}
}

func TestAccountant_LedgerActions(t *testing.T) {
	rates := NewRates()
	rates.Append("ETH", "EUR", 0, d("100"))

	h := History{LedgerActions: []LedgerAction{
		{Time: 1000, Asset: "ETH", Amount: d("1"), Type: ActionStaking},
		{Time: 2000, Asset: "ETH", Amount: d("2"), Type: ActionAirdrop},
		{Time: 3000, Asset: "ETH", Amount: d("1"), Type: ActionGift}, // untaxed by default
	}}
	a := newTestAccountant(t, DefaultSettings(), rates)
	report, err := a.ProcessHistory(context.Background(), Window{Start: 0, End: 10000}, h)
	if err != nil {
		t.Fatalf("ProcessHistory() error = %v", err)
	}

	o := report.Overview
	if o.StakingProfit != "100" {
		t.Errorf("StakingProfit = %s, want 100", o.StakingProfit)
	}
	if o.LedgerActionsProfitLoss != "200" {
		t.Errorf("LedgerActionsProfitLoss = %s, want 200", o.LedgerActionsProfitLoss)
	}
	// ledger action lines are reported but not folded into the totals
	if o.TotalProfitLoss != "0" {
		t.Errorf("TotalProfitLoss = %s, want 0", o.TotalProfitLoss)
	}

	// untaxed actions still feed the cost basis
	eth := report.AssetDetails["ETH"]
	if !eth.Amount.Equal(d("4")) {
		t.Errorf("remaining ETH = %s, want 4", eth.Amount)
	}
}

func TestAccountant_LoanMovementMargin(t *testing.T) {
	rates := NewRates()
	rates.Append("BTC", "EUR", 0, d("100"))

	h := History{
		Loans: []LoanClose{
			{OpenTime: 500, CloseTime: 1000, Asset: "BTC", LentAmount: d("10"), Earned: d("0.2"), Fee: d("0.05")},
		},
		AssetMovements: []AssetMovement{
			{Time: 2000, Category: MovementWithdrawal, Asset: "BTC", Amount: d("1"), Fee: d("0.01")},
		},
		MarginPositions: []MarginPosition{
			{CloseTime: 3000, ProfitLoss: d("0.5"), PLAsset: "BTC", Fee: d("0.1"), FeeAsset: "BTC"},
		},
	}
	a := newTestAccountant(t, DefaultSettings(), rates)
	report, err := a.ProcessHistory(context.Background(), Window{Start: 0, End: 10000}, h)
	if err != nil {
		t.Fatalf("ProcessHistory() error = %v", err)
	}

	o := report.Overview
	// net interest 0.15 BTC at 100
	if o.LoanProfit != "15" {
		t.Errorf("LoanProfit = %s, want 15", o.LoanProfit)
	}
	if o.AssetMovementFees != "1" {
		t.Errorf("AssetMovementFees = %s, want 1", o.AssetMovementFees)
	}
	// 0.5 BTC gained minus 0.1 BTC fee, at 100
	if o.MarginPositionsProfit != "40" {
		t.Errorf("MarginPositionsProfit = %s, want 40", o.MarginPositionsProfit)
	}
	// 40 + 15 - 1
	if o.TotalProfitLoss != "54" {
		t.Errorf("TotalProfitLoss = %s, want 54", o.TotalProfitLoss)
	}
	if o.TotalTaxableProfitLoss != "54" {
		t.Errorf("TotalTaxableProfitLoss = %s, want 54", o.TotalTaxableProfitLoss)
	}
}

func TestAccountant_DefiEvent(t *testing.T) {
	rates := NewRates()
	rates.Append("DAI", "EUR", 0, d("0.9"))
	rates.Append("aDAI", "EUR", 0, d("0.9"))

	h := History{DefiEvents: []DefiEvent{
		{Time: 1000, GotAsset: "aDAI", GotAmount: d("100"), SpentAsset: "DAI", SpentAmount: d("100"), PnL: []DefiPnL{{Asset: "DAI", Amount: d("2")}}},
	}}
	a := newTestAccountant(t, DefaultSettings(), rates)
	report, err := a.ProcessHistory(context.Background(), Window{Start: 0, End: 10000}, h)
	if err != nil {
		t.Fatalf("ProcessHistory() error = %v", err)
	}

	if got := report.Overview.DefiProfitLoss; got != "1.8" {
		t.Errorf("DefiProfitLoss = %s, want 1.8", got)
	}
	adai := report.AssetDetails["aDAI"]
	if !adai.Amount.Equal(d("100")) {
		t.Errorf("remaining aDAI = %s, want 100", adai.Amount)
	}
}

func TestAccountant_RoundTripIdentity(t *testing.T) {
	// Buying and fully selling at the same rate with no fee nets to
	// exactly zero, no rounding residue.
	h := History{Trades: []Trade{
		{Time: 1000, Pair: Pair{"ETH", "EUR"}, Type: TradeBuy, Amount: d("3.123456789"), Rate: d("1234.5678"), Cost: d("3856.1191763907942"), CostCurrency: "EUR"},
		{Time: 2000, Pair: Pair{"ETH", "EUR"}, Type: TradeSell, Amount: d("3.123456789"), Rate: d("1234.5678"), Cost: d("3856.1191763907942"), CostCurrency: "EUR"},
	}}
	a := newTestAccountant(t, DefaultSettings(), NewRates())
	report, err := a.ProcessHistory(context.Background(), Window{Start: 0, End: 10000}, h)
	if err != nil {
		t.Fatalf("ProcessHistory() error = %v", err)
	}
	if got := report.Overview.TotalProfitLoss; got != "0" {
		t.Errorf("TotalProfitLoss = %s, want exactly 0", got)
	}
	if got := report.Overview.TaxableTradeProfitLoss; got != "0" {
		t.Errorf("TaxableTradeProfitLoss = %s, want exactly 0", got)
	}
}
