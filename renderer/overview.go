// Package renderer formats accounting reports for human and machine
// consumption: markdown overviews, CSV event exports, json.
package renderer

import (
	"bytes"
	"fmt"
	"sort"

	"github.com/etnz/cryptotax"
	md "github.com/nao1215/markdown"
)

// OverviewMarkdown renders the profit/loss overview of a run as a
// markdown document.
func OverviewMarkdown(r *cryptotax.Report) string {
	var buf bytes.Buffer
	doc := md.NewMarkdown(&buf)

	doc.H1(fmt.Sprintf("Profit/Loss Report from %s to %s", r.Window.Start, r.Window.End))
	doc.PlainText(fmt.Sprintf("Profit currency: %s", r.ProfitCurrency))

	doc.H2("Overview")
	o := r.Overview
	table := md.TableSet{
		Header: []string{"Category", fmt.Sprintf("Amount (%s)", r.ProfitCurrency)},
		Rows: [][]string{
			{"Loan profit", o.LoanProfit},
			{"Margin positions", o.MarginPositionsProfit},
			{"Settlement losses", o.SettlementLosses},
			{"Transaction gas costs", o.EthereumTransactionGasCosts},
			{"Asset movement fees", o.AssetMovementFees},
			{"Ledger actions", o.LedgerActionsProfitLoss},
			{"Staking profit", o.StakingProfit},
			{"DeFi", o.DefiProfitLoss},
			{"General trading", o.GeneralTradeProfitLoss},
			{"Taxable trading", o.TaxableTradeProfitLoss},
			{"**Total taxable**", fmt.Sprintf("**%s**", o.TotalTaxableProfitLoss)},
			{"**Total**", fmt.Sprintf("**%s**", o.TotalProfitLoss)},
		},
	}
	doc.Table(table)

	if len(r.AssetDetails) > 0 {
		doc.H2("Remaining Holdings")
		holdings := md.TableSet{
			Header: []string{"Asset", "Amount", "Tax-free Amount", "Average Rate"},
		}
		for _, asset := range sortedAssets(r.AssetDetails) {
			d := r.AssetDetails[asset]
			holdings.Rows = append(holdings.Rows, []string{
				asset,
				d.Amount.String(),
				d.TaxFreeAmount.String(),
				d.AverageRate.String(),
			})
		}
		doc.Table(holdings)
	}

	return doc.String()
}

func sortedAssets(details map[string]cryptotax.AssetDetail) []string {
	assets := make([]string, 0, len(details))
	for asset := range details {
		assets = append(assets, asset)
	}
	sort.Strings(assets)
	return assets
}
