package scanner

import (
	"context"
	"fmt"
	"math"

	"coinscout/internal/domain"
	"coinscout/internal/strategy"

	"gonum.org/v1/gonum/stat"
)

const (
	pairsMaxSymbols     = 20
	pairsMinCorrelation = 0.8
	pairsSpreadWindow   = 30
	pairsZThreshold     = 2.0
	pairsTimeline       = "3-7 days"
)

// PairsTrading finds highly correlated pairs whose price ratio has diverged
// from its rolling mean: long the laggard, short the leader.
type PairsTrading struct{}

func NewPairsTrading() *PairsTrading { return &PairsTrading{} }

func (p *PairsTrading) ID() string   { return "pairs_trading" }
func (p *PairsTrading) Name() string { return "Pairs Trading" }
func (p *PairsTrading) Cost() int    { return 2 }

func (p *PairsTrading) Scan(ctx context.Context, symbols []string, snapshot domain.MarketSnapshot, params strategy.Params) ([]domain.Opportunity, error) {
	eligible := make([]domain.SymbolData, 0, pairsMaxSymbols)
	for _, symbol := range symbols {
		data, ok := snapshot.Data(symbol)
		if !ok || len(data.Candles) < pairsSpreadWindow+1 {
			continue
		}
		eligible = append(eligible, data)
		if len(eligible) == pairsMaxSymbols {
			break
		}
	}

	var out []domain.Opportunity
	for i := 0; i < len(eligible); i++ {
		select {
		case <-ctx.Done():
			return out, ctx.Err()
		default:
		}
		for j := i + 1; j < len(eligible); j++ {
			opp, found := p.scanPair(eligible[i], eligible[j], snapshot, params)
			if !found || opp.ConfidenceScore < params.MinConfidence {
				continue
			}
			out = append(out, opp)
		}
	}
	return out, nil
}

func (p *PairsTrading) scanPair(a, b domain.SymbolData, snapshot domain.MarketSnapshot, params strategy.Params) (domain.Opportunity, bool) {
	pricesA := closes(a.Candles)
	pricesB := closes(b.Candles)
	n := len(pricesA)
	if len(pricesB) < n {
		n = len(pricesB)
	}
	pricesA = lastN(pricesA, n)
	pricesB = lastN(pricesB, n)

	retA := returnsSeries(pricesA)
	retB := returnsSeries(pricesB)
	if len(retA) < pairsSpreadWindow || len(retA) != len(retB) {
		return domain.Opportunity{}, false
	}

	corr := stat.Correlation(retA, retB, nil)
	if math.IsNaN(corr) || corr < pairsMinCorrelation {
		return domain.Opportunity{}, false
	}

	ratios := make([]float64, n)
	for i := 0; i < n; i++ {
		if pricesB[i] == 0 {
			return domain.Opportunity{}, false
		}
		ratios[i] = pricesA[i] / pricesB[i]
	}
	window := lastN(ratios, pairsSpreadWindow)
	mean, std := meanStd(window)
	if std == 0 {
		return domain.Opportunity{}, false
	}
	z := (ratios[n-1] - mean) / std
	if math.Abs(z) < pairsZThreshold {
		return domain.Opportunity{}, false
	}

	long, short := a, b
	if z > 0 {
		// A is rich relative to B: long B, short A.
		long, short = b, a
	}

	// Expect the ratio to close roughly the stretch beyond one sigma.
	expectedMove := (math.Abs(z) - 1) * std / mean
	if expectedMove <= 0 {
		return domain.Opportunity{}, false
	}
	confidence := clampConfidence(48 + math.Abs(z)*9 + (corr-pairsMinCorrelation)*50)
	if confidence > 85 {
		confidence = 85
	}

	return domain.Opportunity{
		StrategyID:         p.ID(),
		StrategyName:       p.Name(),
		Symbol:             long.Symbol,
		Exchange:           exchangeOf(long),
		OpportunityType:    "pair_divergence",
		ProfitPotentialUSD: params.CapitalUSD * expectedMove,
		ConfidenceScore:    confidence,
		Risk:               domain.RiskMedium,
		RequiredCapitalUSD: params.CapitalUSD * 2, // both legs
		EstimatedTimeframe: pairsTimeline,
		Metadata: map[string]string{
			"long_leg":    long.Symbol,
			"short_leg":   short.Symbol,
			"correlation": fmt.Sprintf("%.3f", corr),
			"ratio_z":     fmt.Sprintf("%.2f", z),
		},
		DiscoveredAt: snapshot.TakenAt,
	}, true
}
