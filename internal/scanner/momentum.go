package scanner

import (
	"context"
	"fmt"

	"coinscout/internal/domain"
	"coinscout/internal/strategy"
)

const (
	momentumFastPeriod   = 12
	momentumSlowPeriod   = 26
	momentumRSIPeriod    = 14
	momentumRSIFloor     = 50.0
	momentumRSICeiling   = 75.0
	momentumMinTrendPct  = 0.02
	momentumHoldTimeline = "2-5 days"
)

// Momentum looks for symbols in an established uptrend that has not yet
// overheated: fast EMA above slow EMA, positive trend over the lookback,
// RSI confirming without being overbought.
type Momentum struct{}

func NewMomentum() *Momentum { return &Momentum{} }

func (m *Momentum) ID() string   { return "momentum" }
func (m *Momentum) Name() string { return "Momentum" }
func (m *Momentum) Cost() int    { return 1 }

func (m *Momentum) Scan(ctx context.Context, symbols []string, snapshot domain.MarketSnapshot, params strategy.Params) ([]domain.Opportunity, error) {
	return scanSymbols(ctx, symbols, snapshot, params, m.scanSymbol)
}

func (m *Momentum) scanSymbol(data domain.SymbolData, params strategy.Params) (domain.Opportunity, bool) {
	prices := closes(data.Candles)
	fast := emaSeries(prices, momentumFastPeriod)
	slow := emaSeries(prices, momentumSlowPeriod)
	last := len(prices) - 1

	if fast[last] <= slow[last] {
		return domain.Opportunity{}, false
	}

	trendPct := 0.0
	if slow[last] > 0 {
		trendPct = fast[last]/slow[last] - 1
	}
	if trendPct < momentumMinTrendPct {
		return domain.Opportunity{}, false
	}

	rsi := rsiSeries(prices, momentumRSIPeriod)
	if len(rsi) == 0 {
		return domain.Opportunity{}, false
	}
	currRSI := rsi[len(rsi)-1]
	if currRSI < momentumRSIFloor || currRSI > momentumRSICeiling {
		return domain.Opportunity{}, false
	}

	// Confidence grows with trend strength, capped well below certainty.
	confidence := clampConfidence(55 + trendPct*400)
	if confidence > 90 {
		confidence = 90
	}
	expectedMove := trendPct * 0.5
	entry := prices[last]

	return domain.Opportunity{
		StrategyID:         m.ID(),
		StrategyName:       m.Name(),
		Symbol:             data.Symbol,
		OpportunityType:    "trend_continuation",
		ProfitPotentialUSD: params.CapitalUSD * expectedMove,
		ConfidenceScore:    confidence,
		Risk:               momentumRisk(trendPct),
		RequiredCapitalUSD: params.CapitalUSD,
		EstimatedTimeframe: momentumHoldTimeline,
		EntryPrice:         entry,
		ExitPrice:          entry * (1 + expectedMove),
		Metadata: map[string]string{
			"trend_pct": fmt.Sprintf("%.4f", trendPct),
			"rsi":       fmt.Sprintf("%.2f", currRSI),
		},
	}, true
}

func momentumRisk(trendPct float64) domain.RiskLevel {
	switch {
	case trendPct > 0.08:
		return domain.RiskHigh
	case trendPct > 0.04:
		return domain.RiskMedium
	default:
		return domain.RiskLow
	}
}
