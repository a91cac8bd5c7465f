package scanner

import (
	"context"
	"fmt"

	"coinscout/internal/domain"
	"coinscout/internal/strategy"
)

const (
	breakoutBandPeriod   = 20
	breakoutBandStdDevs  = 2.0
	breakoutSqueezeWidth = 0.08
	breakoutVolumeWindow = 20
	breakoutVolumeZ      = 1.5
	breakoutTimeline     = "1-2 days"
)

// Breakout detects a volatility squeeze resolving upward through the upper
// band with volume confirmation.
type Breakout struct{}

func NewBreakout() *Breakout { return &Breakout{} }

func (b *Breakout) ID() string   { return "breakout" }
func (b *Breakout) Name() string { return "Breakout" }
func (b *Breakout) Cost() int    { return 1 }

func (b *Breakout) Scan(ctx context.Context, symbols []string, snapshot domain.MarketSnapshot, params strategy.Params) ([]domain.Opportunity, error) {
	return scanSymbols(ctx, symbols, snapshot, params, b.scanSymbol)
}

func (b *Breakout) scanSymbol(data domain.SymbolData, params strategy.Params) (domain.Opportunity, bool) {
	prices := closes(data.Candles)
	if len(prices) < breakoutBandPeriod+1 {
		return domain.Opportunity{}, false
	}

	prevIdx := len(prices) - 2
	currIdx := len(prices) - 1

	prevMean, prevStd := meanStd(prices[prevIdx-breakoutBandPeriod+1 : prevIdx+1])
	currMean, currStd := meanStd(prices[currIdx-breakoutBandPeriod+1 : currIdx+1])
	if prevMean == 0 || currMean == 0 {
		return domain.Opportunity{}, false
	}

	prevUpper := prevMean + breakoutBandStdDevs*prevStd
	prevLower := prevMean - breakoutBandStdDevs*prevStd
	currUpper := currMean + breakoutBandStdDevs*currStd
	prevWidth := (prevUpper - prevLower) / prevMean

	// Only squeezes are interesting; wide bands break out all the time.
	if prevWidth > breakoutSqueezeWidth {
		return domain.Opportunity{}, false
	}
	if prices[prevIdx] > prevUpper || prices[currIdx] <= currUpper {
		return domain.Opportunity{}, false
	}

	vols := volumes(data.Candles)
	if len(vols) < breakoutVolumeWindow+1 {
		return domain.Opportunity{}, false
	}
	volWindow := vols[len(vols)-1-breakoutVolumeWindow : len(vols)-1]
	volMean, volStd := meanStd(volWindow)
	if volStd == 0 {
		return domain.Opportunity{}, false
	}
	volZ := (vols[len(vols)-1] - volMean) / volStd
	if volZ < breakoutVolumeZ {
		return domain.Opportunity{}, false
	}

	entry := prices[currIdx]
	// Measured move: squeezes tend to resolve by roughly the band width.
	expectedMove := prevWidth
	confidence := clampConfidence(58 + volZ*8)
	if confidence > 92 {
		confidence = 92
	}

	return domain.Opportunity{
		StrategyID:         b.ID(),
		StrategyName:       b.Name(),
		Symbol:             data.Symbol,
		OpportunityType:    "squeeze_breakout",
		ProfitPotentialUSD: params.CapitalUSD * expectedMove,
		ConfidenceScore:    confidence,
		Risk:               domain.RiskHigh,
		RequiredCapitalUSD: params.CapitalUSD,
		EstimatedTimeframe: breakoutTimeline,
		EntryPrice:         entry,
		ExitPrice:          entry * (1 + expectedMove),
		Metadata: map[string]string{
			"band_width": fmt.Sprintf("%.4f", prevWidth),
			"volume_z":   fmt.Sprintf("%.2f", volZ),
		},
	}, true
}
