package cryptotax

import (
	"fmt"

	"github.com/shopspring/decimal"
)

// ActionKind is a typed string identifying an action variant.
type ActionKind string

// Action kinds, one per variant of the history stream.
const (
	KindTrade          ActionKind = "trade"
	KindLoan           ActionKind = "loan"
	KindAssetMovement  ActionKind = "asset_movement"
	KindMarginPosition ActionKind = "margin_position"
	KindGasCost        ActionKind = "gas_cost"
	KindLedgerAction   ActionKind = "ledger_action"
	KindDefiEvent      ActionKind = "defi_event"
)

// Action is the common interface of every entry in the merged history
// stream. The sequencer orders actions by When; the accountant uses
// Assets to match against the ignored-assets list.
type Action interface {
	Kind() ActionKind
	When() Timestamp
	Assets() (first, second string)
}

// TradeType identifies the side of a trade.
type TradeType string

const (
	TradeBuy            TradeType = "buy"
	TradeSell           TradeType = "sell"
	TradeSettlementBuy  TradeType = "settlement_buy"
	TradeSettlementSell TradeType = "settlement_sell"
)

// Pair is the asset pair of a trade: Base priced in Quote.
type Pair struct {
	Base  string `json:"base"`
	Quote string `json:"quote"`
}

func (p Pair) String() string { return p.Base + "_" + p.Quote }

// Other returns the pair member that is not the given asset.
func (p Pair) Other(asset string) string {
	if p.Base == asset {
		return p.Quote
	}
	return p.Base
}

// Trade is an exchange trade. Cost must equal Amount*Rate within a small
// tolerance; a violation is treated as corrupt upstream data and aborts
// the run.
type Trade struct {
	Time         Timestamp       `json:"timestamp"`
	Pair         Pair            `json:"pair"`
	Type         TradeType       `json:"type"`
	Amount       decimal.Decimal `json:"amount"` // amount of the non-cost-currency asset
	Rate         decimal.Decimal `json:"rate"`   // cost currency per unit
	Cost         decimal.Decimal `json:"cost"`   // total in cost currency
	CostCurrency string          `json:"cost_currency"`
	Fee          decimal.Decimal `json:"fee"`
	FeeCurrency  string          `json:"fee_currency"`
}

func (t Trade) Kind() ActionKind { return KindTrade }
func (t Trade) When() Timestamp  { return t.Time }
func (t Trade) Assets() (string, string) {
	return t.Pair.Base, t.Pair.Quote
}

// costRateTolerance is the maximum accepted difference between the
// reported trade cost and amount*rate.
var costRateTolerance = decimal.RequireFromString("1e-5")

// validateCost checks the trade's internal consistency.
func (t Trade) validateCost() error {
	diff := t.Cost.Sub(t.Amount.Mul(t.Rate)).Abs()
	if diff.GreaterThan(costRateTolerance) {
		return CorruptTradeError{Trade: t}
	}
	return nil
}

// MovementCategory distinguishes exchange deposits from withdrawals.
type MovementCategory string

const (
	MovementDeposit    MovementCategory = "deposit"
	MovementWithdrawal MovementCategory = "withdrawal"
)

// AssetMovement is a deposit to or withdrawal from an exchange. Only its
// fee affects profit/loss.
type AssetMovement struct {
	Time     Timestamp        `json:"timestamp"`
	Category MovementCategory `json:"category"`
	Exchange string           `json:"exchange,omitempty"`
	Asset    string           `json:"asset"`
	Amount   decimal.Decimal  `json:"amount"`
	Fee      decimal.Decimal  `json:"fee"` // in Asset
}

func (m AssetMovement) Kind() ActionKind         { return KindAssetMovement }
func (m AssetMovement) When() Timestamp          { return m.Time }
func (m AssetMovement) Assets() (string, string) { return m.Asset, "" }

// MarginPosition is a closed margin position, reported by its net
// profit/loss in PLAsset at close time. OpenTime may be zero when the
// exchange does not report it.
type MarginPosition struct {
	OpenTime   Timestamp       `json:"open_time,omitempty"`
	CloseTime  Timestamp       `json:"close_time"`
	ProfitLoss decimal.Decimal `json:"profit_loss"` // signed, in PLAsset
	PLAsset    string          `json:"pl_asset"`
	Fee        decimal.Decimal `json:"fee"`
	FeeAsset   string          `json:"fee_asset"`
	Notes      string          `json:"notes,omitempty"`
}

func (m MarginPosition) Kind() ActionKind         { return KindMarginPosition }
func (m MarginPosition) When() Timestamp          { return m.CloseTime }
func (m MarginPosition) Assets() (string, string) { return m.PLAsset, m.FeeAsset }

// LoanClose is a closed lending position: interest Earned in Asset minus
// the lending Fee.
type LoanClose struct {
	OpenTime   Timestamp       `json:"open_time"`
	CloseTime  Timestamp       `json:"close_time"`
	Asset      string          `json:"asset"`
	LentAmount decimal.Decimal `json:"lent_amount"`
	Earned     decimal.Decimal `json:"earned"`
	Fee        decimal.Decimal `json:"fee"`
}

func (l LoanClose) Kind() ActionKind         { return KindLoan }
func (l LoanClose) When() Timestamp          { return l.CloseTime }
func (l LoanClose) Assets() (string, string) { return l.Asset, "" }

// LedgerActionType classifies manually entered ledger actions. Which
// types are taxable is configured per run.
type LedgerActionType string

const (
	ActionIncome   LedgerActionType = "income"
	ActionExpense  LedgerActionType = "expense"
	ActionLoss     LedgerActionType = "loss"
	ActionDividend LedgerActionType = "dividends income"
	ActionDonation LedgerActionType = "donation received"
	ActionAirdrop  LedgerActionType = "airdrop"
	ActionGift     LedgerActionType = "gift"
	ActionGrant    LedgerActionType = "grant"
	ActionStaking  LedgerActionType = "staking income"
)

// LedgerAction is a manually entered gain or loss of an asset. A
// positive Amount acquires cost basis, a negative one disposes of it.
// Rate, when set, overrides the oracle price and is denominated in
// RateAsset (converted to the profit currency if they differ).
type LedgerAction struct {
	Time      Timestamp        `json:"timestamp"`
	Asset     string           `json:"asset"`
	Amount    decimal.Decimal  `json:"amount"` // signed
	Type      LedgerActionType `json:"action_type"`
	Rate      decimal.Decimal  `json:"rate,omitempty"`       // optional, zero means "ask the oracle"
	RateAsset string           `json:"rate_asset,omitempty"` // optional, denomination of Rate
}

func (a LedgerAction) Kind() ActionKind         { return KindLedgerAction }
func (a LedgerAction) When() Timestamp          { return a.Time }
func (a LedgerAction) Assets() (string, string) { return a.Asset, "" }

// GasCost is the gas burned by one on-chain transaction. A zero GasPrice
// means the price was not recorded; the engine carries the last seen
// price forward.
type GasCost struct {
	Time     Timestamp       `json:"timestamp"`
	GasUsed  decimal.Decimal `json:"gas_used"`
	GasPrice decimal.Decimal `json:"gas_price,omitempty"` // in wei, zero when unknown
	TxHash   string          `json:"tx_hash,omitempty"`
}

func (g GasCost) Kind() ActionKind         { return KindGasCost }
func (g GasCost) When() Timestamp          { return g.Time }
func (g GasCost) Assets() (string, string) { return "ETH", "" }

// DefiPnL is one profit/loss entry attached to a DeFi event.
type DefiPnL struct {
	Asset  string          `json:"asset"`
	Amount decimal.Decimal `json:"amount"` // signed, in Asset
}

// DefiEvent is a decoded on-chain DeFi interaction: optionally an asset
// received, an asset spent, and a list of profit/loss entries. Cost
// basis effects always apply; profit/loss is recognized only inside the
// report window.
type DefiEvent struct {
	Time        Timestamp       `json:"timestamp"`
	GotAsset    string          `json:"got_asset,omitempty"`
	GotAmount   decimal.Decimal `json:"got_amount,omitempty"`
	SpentAsset  string          `json:"spent_asset,omitempty"`
	SpentAmount decimal.Decimal `json:"spent_amount,omitempty"`
	PnL         []DefiPnL       `json:"pnl,omitempty"`
}

func (d DefiEvent) Kind() ActionKind { return KindDefiEvent }
func (d DefiEvent) When() Timestamp  { return d.Time }
func (d DefiEvent) Assets() (string, string) {
	return d.GotAsset, d.SpentAsset
}

// describeAction identifies an action in error messages so that a failed
// run points at the upstream record to fix.
func describeAction(a Action) string {
	return fmt.Sprintf("%s at %s", a.Kind(), a.When())
}
