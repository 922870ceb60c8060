package cryptotax

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// Settings is the per-run configuration of the engine.
type Settings struct {
	// ProfitCurrency is the fiat currency all rates and totals are
	// expressed in.
	ProfitCurrency string `yaml:"profit_currency"`
	// TaxFreeAfterSeconds is the holding period after which a lot's
	// disposal is exempt from taxable profit/loss.
	TaxFreeAfterSeconds int64 `yaml:"tax_free_after_seconds"`
	// CountProfitForSettlements also computes ordinary profit/loss for
	// forced settlement sales, on top of the settlement loss.
	CountProfitForSettlements bool `yaml:"count_profit_for_settlements"`
	// IgnoredAssets lists assets whose actions are skipped entirely,
	// with no cost-basis or profit/loss effect.
	IgnoredAssets []string `yaml:"ignored_assets"`
	// TaxableLedgerActions is the allow-list of ledger action types
	// that contribute to profit/loss. Cost basis is tracked for all
	// ledger actions regardless.
	TaxableLedgerActions []LedgerActionType `yaml:"taxable_ledger_actions"`
}

// DefaultSettings returns the engine defaults: EUR reporting, the
// one-year holding period, settlement profits not counted.
func DefaultSettings() Settings {
	return Settings{
		ProfitCurrency:      "EUR",
		TaxFreeAfterSeconds: YearInSeconds,
		TaxableLedgerActions: []LedgerActionType{
			ActionIncome, ActionDividend, ActionAirdrop, ActionGrant, ActionStaking,
		},
	}
}

// Validate checks the settings for consistency.
func (s Settings) Validate() error {
	if err := ValidateCurrency(s.ProfitCurrency); err != nil {
		return fmt.Errorf("invalid profit currency: %w", err)
	}
	if s.TaxFreeAfterSeconds < 0 {
		return fmt.Errorf("tax free period must not be negative, got %d", s.TaxFreeAfterSeconds)
	}
	return nil
}

// taxable reports whether the ledger action type is in the allow-list.
func (s Settings) taxable(t LedgerActionType) bool {
	for _, a := range s.TaxableLedgerActions {
		if a == t {
			return true
		}
	}
	return false
}

// ignored reports whether the asset is on the ignore list. The empty
// asset (absent pair member) is never ignored.
func (s Settings) ignored(asset string) bool {
	if asset == "" {
		return false
	}
	for _, a := range s.IgnoredAssets {
		if a == asset {
			return true
		}
	}
	return false
}

// LoadSettings reads settings from a yaml file, applying defaults for
// absent fields.
func LoadSettings(path string) (Settings, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return Settings{}, fmt.Errorf("could not read settings: %w", err)
	}
	s := DefaultSettings()
	if err := yaml.Unmarshal(data, &s); err != nil {
		return Settings{}, fmt.Errorf("could not parse settings %q: %w", path, err)
	}
	if err := s.Validate(); err != nil {
		return Settings{}, err
	}
	return s, nil
}
