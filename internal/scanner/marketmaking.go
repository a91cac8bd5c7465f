package scanner

import (
	"context"
	"fmt"

	"coinscout/internal/domain"
	"coinscout/internal/strategy"
)

const (
	mmVolatilityWindow = 20
	mmMaxDailyVolPct   = 0.015
	mmMinVolume24h     = 5_000_000
	mmTimeline         = "intraday"
)

// MarketMaking flags calm, liquid symbols where quoting both sides of the
// book earns spread without outsized inventory risk: low realized
// volatility, deep 24h volume.
type MarketMaking struct{}

func NewMarketMaking() *MarketMaking { return &MarketMaking{} }

func (m *MarketMaking) ID() string   { return "market_making" }
func (m *MarketMaking) Name() string { return "Market Making" }
func (m *MarketMaking) Cost() int    { return 1 }

func (m *MarketMaking) Scan(ctx context.Context, symbols []string, snapshot domain.MarketSnapshot, params strategy.Params) ([]domain.Opportunity, error) {
	return scanSymbols(ctx, symbols, snapshot, params, m.scanSymbol)
}

func (m *MarketMaking) scanSymbol(data domain.SymbolData, params strategy.Params) (domain.Opportunity, bool) {
	if data.Volume24h < mmMinVolume24h {
		return domain.Opportunity{}, false
	}

	rets := returnsSeries(closes(data.Candles))
	window := lastN(rets, mmVolatilityWindow)
	_, vol := meanStd(window)
	if vol == 0 || vol > mmMaxDailyVolPct {
		return domain.Opportunity{}, false
	}

	// Daily capture estimate: a few turns of a spread proportional to
	// realized volatility.
	spreadPct := vol * 0.5
	turns := 4.0
	expectedMove := spreadPct * turns
	calmness := (mmMaxDailyVolPct - vol) / mmMaxDailyVolPct
	confidence := clampConfidence(55 + calmness*25)

	return domain.Opportunity{
		StrategyID:         m.ID(),
		StrategyName:       m.Name(),
		Symbol:             data.Symbol,
		OpportunityType:    "spread_capture",
		ProfitPotentialUSD: params.CapitalUSD * expectedMove,
		ConfidenceScore:    confidence,
		Risk:               domain.RiskLow,
		RequiredCapitalUSD: params.CapitalUSD,
		EstimatedTimeframe: mmTimeline,
		EntryPrice:         data.LastPrice,
		Metadata: map[string]string{
			"realized_vol": fmt.Sprintf("%.4f", vol),
			"volume_24h":   fmt.Sprintf("%.0f", data.Volume24h),
		},
	}, true
}
