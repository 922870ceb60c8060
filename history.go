package cryptotax

import (
	"fmt"
	"io"

	json "github.com/goccy/go-json"
)

// History is the full set of per-variant action collections for one
// accounting run. Each collection is homogeneous and produced by an
// external collaborator (exchange client, chain decoder, manual entry).
type History struct {
	Trades          []Trade          `json:"trades,omitempty"`
	Loans           []LoanClose      `json:"loans,omitempty"`
	AssetMovements  []AssetMovement  `json:"asset_movements,omitempty"`
	MarginPositions []MarginPosition `json:"margin_positions,omitempty"`
	GasCosts        []GasCost        `json:"gas_costs,omitempty"`
	LedgerActions   []LedgerAction   `json:"ledger_actions,omitempty"`
	DefiEvents      []DefiEvent      `json:"defi_events,omitempty"`
}

// Len returns the total number of actions across all collections.
func (h History) Len() int {
	return len(h.Trades) + len(h.Loans) + len(h.AssetMovements) +
		len(h.MarginPositions) + len(h.GasCosts) + len(h.LedgerActions) +
		len(h.DefiEvents)
}

// DecodeHistory reads a history document from r. The document is a
// single JSON object with one array per action variant; decimal values
// may be JSON numbers or strings.
func DecodeHistory(r io.Reader) (History, error) {
	var h History
	dec := json.NewDecoder(r)
	dec.DisallowUnknownFields()
	if err := dec.Decode(&h); err != nil {
		return History{}, fmt.Errorf("could not decode history: %w", err)
	}
	for i, t := range h.Trades {
		switch t.Type {
		case TradeBuy, TradeSell, TradeSettlementBuy, TradeSettlementSell:
		default:
			return History{}, fmt.Errorf("trade %d: unknown trade type %q", i, t.Type)
		}
	}
	return h, nil
}

// EncodeHistory writes the history document to w.
func EncodeHistory(w io.Writer, h History) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	if err := enc.Encode(h); err != nil {
		return fmt.Errorf("could not encode history: %w", err)
	}
	return nil
}
