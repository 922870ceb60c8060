package cryptotax

import "sort"

// Sequence merges the per-variant collections of a History into a
// single stream sorted ascending by timestamp.
//
// The sort is stable over a fixed concatenation order (trades, loans,
// asset movements, margin positions, gas costs, ledger actions, DeFi
// events), so actions sharing a timestamp keep a reproducible relative
// order across runs.
func Sequence(h History) []Action {
	actions := make([]Action, 0, h.Len())
	for _, a := range h.Trades {
		actions = append(actions, a)
	}
	for _, a := range h.Loans {
		actions = append(actions, a)
	}
	for _, a := range h.AssetMovements {
		actions = append(actions, a)
	}
	for _, a := range h.MarginPositions {
		actions = append(actions, a)
	}
	for _, a := range h.GasCosts {
		actions = append(actions, a)
	}
	for _, a := range h.LedgerActions {
		actions = append(actions, a)
	}
	for _, a := range h.DefiEvents {
		actions = append(actions, a)
	}

	sort.SliceStable(actions, func(i, j int) bool {
		return actions[i].When().Before(actions[j].When())
	})
	return actions
}
