package scanner

import (
	"context"
	"fmt"
	"sort"

	"coinscout/internal/domain"
	"coinscout/internal/strategy"
)

const (
	optLookback    = 30
	optMinSharpe   = 1.0
	optMaxPicks    = 3
	optTimeline    = "2-4 weeks"
	optAnnualizing = 19.1 // sqrt(365)
)

// PortfolioOptimization ranks the universe by trailing risk-adjusted return
// and proposes adding the best candidates, sized inversely to volatility.
type PortfolioOptimization struct{}

func NewPortfolioOptimization() *PortfolioOptimization { return &PortfolioOptimization{} }

func (p *PortfolioOptimization) ID() string   { return "portfolio_optimization" }
func (p *PortfolioOptimization) Name() string { return "Portfolio Optimization" }
func (p *PortfolioOptimization) Cost() int    { return 2 }

type optCandidate struct {
	data   domain.SymbolData
	sharpe float64
	vol    float64
}

func (p *PortfolioOptimization) Scan(ctx context.Context, symbols []string, snapshot domain.MarketSnapshot, params strategy.Params) ([]domain.Opportunity, error) {
	candidates := make([]optCandidate, 0, len(symbols))
	for _, symbol := range symbols {
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		default:
		}
		data, ok := snapshot.Data(symbol)
		if !ok || len(data.Candles) < optLookback+1 {
			continue
		}
		rets := lastN(returnsSeries(closes(data.Candles)), optLookback)
		mean, vol := meanStd(rets)
		if vol == 0 {
			continue
		}
		sharpe := mean / vol * optAnnualizing
		if sharpe < optMinSharpe {
			continue
		}
		candidates = append(candidates, optCandidate{data: data, sharpe: sharpe, vol: vol})
	}

	sort.Slice(candidates, func(i, j int) bool {
		if candidates[i].sharpe != candidates[j].sharpe {
			return candidates[i].sharpe > candidates[j].sharpe
		}
		return candidates[i].data.Symbol < candidates[j].data.Symbol
	})
	if len(candidates) > optMaxPicks {
		candidates = candidates[:optMaxPicks]
	}

	var out []domain.Opportunity
	for _, c := range candidates {
		// Inverse-volatility sizing against a 2% daily risk budget.
		sizing := 0.02 / c.vol
		if sizing > 1 {
			sizing = 1
		}
		confidence := clampConfidence(55 + c.sharpe*8)
		if confidence > 85 {
			confidence = 85
		}
		if confidence < params.MinConfidence {
			continue
		}
		expectedMove := c.vol * c.sharpe / optAnnualizing * optLookback * 0.5
		out = append(out, domain.Opportunity{
			StrategyID:         p.ID(),
			StrategyName:       p.Name(),
			Symbol:             c.data.Symbol,
			Exchange:           exchangeOf(c.data),
			OpportunityType:    "allocation_increase",
			ProfitPotentialUSD: params.CapitalUSD * sizing * expectedMove,
			ConfidenceScore:    confidence,
			Risk:               domain.RiskLow,
			RequiredCapitalUSD: params.CapitalUSD * sizing,
			EstimatedTimeframe: optTimeline,
			EntryPrice:         c.data.LastPrice,
			Metadata: map[string]string{
				"sharpe":       fmt.Sprintf("%.2f", c.sharpe),
				"daily_vol":    fmt.Sprintf("%.4f", c.vol),
				"sizing_ratio": fmt.Sprintf("%.2f", sizing),
			},
			DiscoveredAt: snapshot.TakenAt,
		})
	}
	return out, nil
}
