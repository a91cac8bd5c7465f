package scanner

import (
	"context"
	"fmt"

	"coinscout/internal/domain"
	"coinscout/internal/strategy"
)

const (
	hedgeVolWindow      = 20
	hedgeVolSpikeFactor = 1.8
	hedgeTimeline       = "1-2 weeks"
)

// Hedging flags symbols whose realized volatility recently expanded well
// beyond its own baseline, a cue to buy downside protection before the
// regime fully shifts.
type Hedging struct{}

func NewHedging() *Hedging { return &Hedging{} }

func (h *Hedging) ID() string   { return "hedging" }
func (h *Hedging) Name() string { return "Hedging" }
func (h *Hedging) Cost() int    { return 1 }

func (h *Hedging) Scan(ctx context.Context, symbols []string, snapshot domain.MarketSnapshot, params strategy.Params) ([]domain.Opportunity, error) {
	return scanSymbols(ctx, symbols, snapshot, params, h.scanSymbol)
}

func (h *Hedging) scanSymbol(data domain.SymbolData, params strategy.Params) (domain.Opportunity, bool) {
	rets := returnsSeries(closes(data.Candles))
	if len(rets) < hedgeVolWindow*2 {
		return domain.Opportunity{}, false
	}

	recent := rets[len(rets)-hedgeVolWindow:]
	baseline := rets[len(rets)-hedgeVolWindow*2 : len(rets)-hedgeVolWindow]
	_, recentVol := meanStd(recent)
	_, baseVol := meanStd(baseline)
	if baseVol == 0 {
		return domain.Opportunity{}, false
	}

	ratio := recentVol / baseVol
	if ratio < hedgeVolSpikeFactor {
		return domain.Opportunity{}, false
	}

	// Value of the hedge is the tail move it protects against, not a
	// profit target in the usual sense.
	protectedMove := recentVol * 3
	confidence := clampConfidence(52 + (ratio-hedgeVolSpikeFactor)*20)
	if confidence > 80 {
		confidence = 80
	}

	return domain.Opportunity{
		StrategyID:         h.ID(),
		StrategyName:       h.Name(),
		Symbol:             data.Symbol,
		OpportunityType:    "volatility_hedge",
		ProfitPotentialUSD: params.CapitalUSD * protectedMove,
		ConfidenceScore:    confidence,
		Risk:               domain.RiskLow,
		RequiredCapitalUSD: params.CapitalUSD * 0.1, // hedge premium
		EstimatedTimeframe: hedgeTimeline,
		EntryPrice:         data.LastPrice,
		Metadata: map[string]string{
			"vol_ratio":    fmt.Sprintf("%.2f", ratio),
			"recent_vol":   fmt.Sprintf("%.4f", recentVol),
			"baseline_vol": fmt.Sprintf("%.4f", baseVol),
		},
	}, true
}
