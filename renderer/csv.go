package renderer

import (
	"encoding/csv"
	"fmt"
	"io"
	"strconv"

	"github.com/etnz/cryptotax"
)

// eventHeader is the column layout of the all-events export, one row
// per processed action inside the reporting window.
var eventHeader = []string{
	"type",
	"paid_in_profit_currency",
	"paid_asset",
	"paid_in_asset",
	"taxable_amount",
	"taxable_bought_cost_in_profit_currency",
	"received_asset",
	"received_in_asset",
	"received_in_profit_currency",
	"net_profit_or_loss",
	"time",
	"is_virtual",
}

// EventsCSV writes the report's event log as CSV.
func EventsCSV(w io.Writer, r *cryptotax.Report) error {
	cw := csv.NewWriter(w)
	if err := cw.Write(eventHeader); err != nil {
		return fmt.Errorf("export error: cannot write csv header: %w", err)
	}
	for _, e := range r.Events {
		record := []string{
			e.Type,
			e.PaidInProfitCurrency.String(),
			e.PaidAsset,
			e.PaidInAsset.String(),
			e.TaxableAmount.String(),
			e.TaxableBoughtCost.String(),
			e.ReceivedAsset,
			e.ReceivedInAsset.String(),
			e.ReceivedInProfitCurrency.String(),
			e.NetProfitLoss.String(),
			e.Time.String(),
			strconv.FormatBool(e.Virtual),
		}
		if err := cw.Write(record); err != nil {
			return fmt.Errorf("export error: cannot write csv record: %w", err)
		}
	}
	cw.Flush()
	return cw.Error()
}
