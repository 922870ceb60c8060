package cryptotax

import "github.com/shopspring/decimal"

// RateOracle answers historical exchange-rate queries. Implementations
// may hit the network; batching and caching are their concern, the
// engine issues one synchronous query per conversion.
//
// RateAt must fail with an error wrapping ErrNoPriceForTimestamp or
// ErrUnsupportedAsset so the engine can pick its documented fallbacks.
type RateOracle interface {
	RateAt(from, to string, ts Timestamp) (decimal.Decimal, error)
}

// AssetRegistry is the process-wide immutable asset knowledge injected
// into the engine: which symbols are fiat currencies. Crypto-to-crypto
// trades synthesize a virtual disposal/acquisition for the non-fiat leg.
type AssetRegistry struct {
	fiat map[string]struct{}
}

// NewAssetRegistry creates a registry with the given fiat symbols.
func NewAssetRegistry(fiat ...string) *AssetRegistry {
	r := &AssetRegistry{fiat: make(map[string]struct{}, len(fiat))}
	for _, f := range fiat {
		r.fiat[f] = struct{}{}
	}
	return r
}

// DefaultAssetRegistry covers the fiat currencies the engine can report
// in.
func DefaultAssetRegistry() *AssetRegistry {
	return NewAssetRegistry("USD", "EUR", "GBP", "JPY", "CNY", "CAD", "KRW")
}

// IsFiat reports whether the symbol is a known fiat currency.
func (r *AssetRegistry) IsFiat(asset string) bool {
	_, ok := r.fiat[asset]
	return ok
}
