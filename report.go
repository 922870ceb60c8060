package cryptotax

import "github.com/shopspring/decimal"

// Overview is the category roll-up of one accounting run. Values are
// string-formatted decimals in the profit currency.
//
// DeFi, staking and ledger-action results are reported as independent
// lines and deliberately not folded into the taxable/total summary
// adjustment; only margin, loan, settlement, movement-fee and gas-cost
// totals are.
type Overview struct {
	LoanProfit                  string `json:"loan_profit"`
	MarginPositionsProfit       string `json:"margin_positions_profit"`
	SettlementLosses            string `json:"settlement_losses"`
	EthereumTransactionGasCosts string `json:"ethereum_transaction_gas_costs"`
	AssetMovementFees           string `json:"asset_movement_fees"`
	LedgerActionsProfitLoss     string `json:"ledger_actions_profit_loss"`
	StakingProfit               string `json:"staking_profit"`
	DefiProfitLoss              string `json:"defi_profit_loss"`
	GeneralTradeProfitLoss      string `json:"general_trade_profit_loss"`
	TaxableTradeProfitLoss      string `json:"taxable_trade_profit_loss"`
	TotalTaxableProfitLoss      string `json:"total_taxable_profit_loss"`
	TotalProfitLoss             string `json:"total_profit_loss"`
}

// NewOverview derives the overview from the raw category totals, all in
// the given profit currency.
func NewOverview(t CategoryTotals, currency string) Overview {
	total := func(c Category) Money { return M(t.Total(c), currency) }

	sumOther := total(CategoryMargin).
		Add(total(CategoryLoan)).
		Sub(total(CategorySettlementLosses)).
		Sub(total(CategoryMovementFees)).
		Sub(total(CategoryGasCosts))

	return Overview{
		LoanProfit:                  total(CategoryLoan).String(),
		MarginPositionsProfit:       total(CategoryMargin).String(),
		SettlementLosses:            total(CategorySettlementLosses).String(),
		EthereumTransactionGasCosts: total(CategoryGasCosts).String(),
		AssetMovementFees:           total(CategoryMovementFees).String(),
		LedgerActionsProfitLoss:     total(CategoryLedgerActions).String(),
		StakingProfit:               total(CategoryStaking).String(),
		DefiProfitLoss:              total(CategoryDefi).String(),
		GeneralTradeProfitLoss:      total(CategoryTradingGeneral).String(),
		TaxableTradeProfitLoss:      total(CategoryTradingTaxable).String(),
		TotalTaxableProfitLoss:      total(CategoryTradingTaxable).Add(sumOther).String(),
		TotalProfitLoss:             total(CategoryTradingGeneral).Add(sumOther).String(),
	}
}

// EventRecord is one row of the per-event ledger, sufficient for
// external CSV/report rendering. Monetary columns are in profit
// currency unless the column names an asset.
type EventRecord struct {
	Type                     string          `json:"type"`
	PaidInProfitCurrency     decimal.Decimal `json:"paid_in_profit_currency"`
	PaidAsset                string          `json:"paid_asset"`
	PaidInAsset              decimal.Decimal `json:"paid_in_asset"`
	TaxableAmount            decimal.Decimal `json:"taxable_amount"`
	TaxableBoughtCost        decimal.Decimal `json:"taxable_bought_cost_in_profit_currency"`
	ReceivedAsset            string          `json:"received_asset"`
	ReceivedInAsset          decimal.Decimal `json:"received_in_asset"`
	ReceivedInProfitCurrency decimal.Decimal `json:"received_in_profit_currency"`
	NetProfitLoss            decimal.Decimal `json:"net_profit_or_loss"`
	Time                     Timestamp       `json:"time"`
	Virtual                  bool            `json:"is_virtual"`
}

// Report is the result of one accounting run.
type Report struct {
	Window         Window                 `json:"-"`
	ProfitCurrency string                 `json:"profit_currency"`
	Overview       Overview               `json:"overview"`
	Events         []EventRecord          `json:"all_events"`
	AssetDetails   map[string]AssetDetail `json:"-"`
}
