package cryptotax

import (
	"errors"
	"fmt"
)

// Recoverable oracle failures. The engine does not retry; retry policy
// belongs to the oracle implementation.
var (
	// ErrNoPriceForTimestamp reports that the oracle has no price for the
	// asset at the requested time.
	ErrNoPriceForTimestamp = errors.New("no price found for timestamp")
	// ErrUnsupportedAsset reports that the oracle does not know the asset
	// at all.
	ErrUnsupportedAsset = errors.New("unsupported asset")
)

// CorruptTradeError is a fatal data-corruption error: a trade whose cost
// is not amount*rate within tolerance. The run must not be retried
// before the upstream data is fixed.
type CorruptTradeError struct {
	Trade Trade
}

func (e CorruptTradeError) Error() string {
	return fmt.Sprintf(
		"trade %s at %s has cost %s not equal to amount(%s) * rate(%s)",
		e.Trade.Pair, e.Trade.Time, e.Trade.Cost, e.Trade.Amount, e.Trade.Rate,
	)
}

// OutOfOrderError is a fatal ordering error: the sorted action stream
// produced a timestamp smaller than its predecessor. It defends against
// a non-total-order bug upstream, not against unsorted input.
type OutOfOrderError struct {
	Action   ActionKind
	At       Timestamp
	Previous Timestamp
}

func (e OutOfOrderError) Error() string {
	return fmt.Sprintf(
		"history processing found %s at %s before previous action at %s: stream is not in ascending time order",
		e.Action, e.At, e.Previous,
	)
}
