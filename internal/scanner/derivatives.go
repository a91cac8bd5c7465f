package scanner

import (
	"context"
	"fmt"
	"math"

	"coinscout/internal/domain"
	"coinscout/internal/strategy"
)

const (
	derivMinFundingRate = 0.0003 // per 8h funding period
	derivPeriodsPerYear = 3 * 365
	derivTimeline       = "funding cycles (8h)"
)

// Derivatives looks for funding-rate carry: when perpetual funding is
// persistently positive, holding spot long and perp short collects funding
// while staying delta-neutral.
type Derivatives struct{}

func NewDerivatives() *Derivatives { return &Derivatives{} }

func (d *Derivatives) ID() string   { return "derivatives" }
func (d *Derivatives) Name() string { return "Derivatives Carry" }
func (d *Derivatives) Cost() int    { return 1 }

func (d *Derivatives) Scan(ctx context.Context, symbols []string, snapshot domain.MarketSnapshot, params strategy.Params) ([]domain.Opportunity, error) {
	return scanSymbols(ctx, symbols, snapshot, params, d.scanSymbol)
}

func (d *Derivatives) scanSymbol(data domain.SymbolData, params strategy.Params) (domain.Opportunity, bool) {
	rate := data.FundingRate
	if math.Abs(rate) < derivMinFundingRate {
		return domain.Opportunity{}, false
	}

	// Weekly carry at the current rate; both legs tie up capital.
	weeklyCarry := math.Abs(rate) * 21
	annualized := math.Abs(rate) * derivPeriodsPerYear
	confidence := clampConfidence(60 + math.Abs(rate)*20000)
	if confidence > 87 {
		confidence = 87
	}

	side := "long_spot_short_perp"
	if rate < 0 {
		side = "short_spot_long_perp"
	}

	return domain.Opportunity{
		StrategyID:         d.ID(),
		StrategyName:       d.Name(),
		Symbol:             data.Symbol,
		OpportunityType:    "funding_carry",
		ProfitPotentialUSD: params.CapitalUSD * weeklyCarry,
		ConfidenceScore:    confidence,
		Risk:               domain.RiskLow,
		RequiredCapitalUSD: params.CapitalUSD * 2,
		EstimatedTimeframe: derivTimeline,
		EntryPrice:         data.LastPrice,
		Metadata: map[string]string{
			"funding_rate":   fmt.Sprintf("%.5f", rate),
			"annualized_pct": fmt.Sprintf("%.2f", annualized*100),
			"structure":      side,
		},
	}, true
}
