package scanner

import (
	"context"
	"fmt"
	"math"

	"coinscout/internal/domain"
	"coinscout/internal/strategy"
)

const (
	reversionWindow     = 20
	reversionZThreshold = 2.0
	reversionRSIPeriod  = 14
	reversionRSILimit   = 32.0
	reversionTimeline   = "1-3 days"
)

// MeanReversion looks for oversold symbols stretched far below their rolling
// mean, where price has historically snapped back.
type MeanReversion struct{}

func NewMeanReversion() *MeanReversion { return &MeanReversion{} }

func (m *MeanReversion) ID() string   { return "mean_reversion" }
func (m *MeanReversion) Name() string { return "Mean Reversion" }
func (m *MeanReversion) Cost() int    { return 1 }

func (m *MeanReversion) Scan(ctx context.Context, symbols []string, snapshot domain.MarketSnapshot, params strategy.Params) ([]domain.Opportunity, error) {
	return scanSymbols(ctx, symbols, snapshot, params, m.scanSymbol)
}

func (m *MeanReversion) scanSymbol(data domain.SymbolData, params strategy.Params) (domain.Opportunity, bool) {
	prices := closes(data.Candles)
	window := lastN(prices, reversionWindow)
	mean, std := meanStd(window)
	if std == 0 || mean == 0 {
		return domain.Opportunity{}, false
	}

	curr := prices[len(prices)-1]
	z := (curr - mean) / std
	if z > -reversionZThreshold {
		return domain.Opportunity{}, false
	}

	rsi := rsiSeries(prices, reversionRSIPeriod)
	if len(rsi) == 0 {
		return domain.Opportunity{}, false
	}
	currRSI := rsi[len(rsi)-1]
	if math.IsNaN(currRSI) || currRSI > reversionRSILimit {
		return domain.Opportunity{}, false
	}

	// Target is the rolling mean; expected move is the gap back to it.
	expectedMove := (mean - curr) / curr
	confidence := clampConfidence(50 + math.Abs(z)*10)
	if confidence > 88 {
		confidence = 88
	}

	return domain.Opportunity{
		StrategyID:         m.ID(),
		StrategyName:       m.Name(),
		Symbol:             data.Symbol,
		OpportunityType:    "oversold_bounce",
		ProfitPotentialUSD: params.CapitalUSD * expectedMove,
		ConfidenceScore:    confidence,
		Risk:               domain.RiskMedium,
		RequiredCapitalUSD: params.CapitalUSD,
		EstimatedTimeframe: reversionTimeline,
		EntryPrice:         curr,
		ExitPrice:          mean,
		Metadata: map[string]string{
			"zscore": fmt.Sprintf("%.2f", z),
			"rsi":    fmt.Sprintf("%.2f", currRSI),
		},
	}, true
}
