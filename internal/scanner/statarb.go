package scanner

import (
	"context"
	"fmt"
	"sort"

	"coinscout/internal/domain"
	"coinscout/internal/strategy"
)

const (
	statArbLookback  = 30
	statArbMinGapPct = 0.025
	statArbTimeline  = "hours"
)

// StatArb ranks symbols by short-horizon return relative to the cross-section
// and flags laggards trailing the basket by a wide margin, betting on
// convergence toward the basket mean.
type StatArb struct{}

func NewStatArb() *StatArb { return &StatArb{} }

func (s *StatArb) ID() string   { return "stat_arb" }
func (s *StatArb) Name() string { return "Statistical Arbitrage" }
func (s *StatArb) Cost() int    { return 2 }

type statArbEntry struct {
	data   domain.SymbolData
	retPct float64
}

func (s *StatArb) Scan(ctx context.Context, symbols []string, snapshot domain.MarketSnapshot, params strategy.Params) ([]domain.Opportunity, error) {
	entries := make([]statArbEntry, 0, len(symbols))
	for _, symbol := range symbols {
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		default:
		}
		data, ok := snapshot.Data(symbol)
		if !ok || len(data.Candles) < statArbLookback+1 {
			continue
		}
		prices := closes(data.Candles)
		base := prices[len(prices)-1-statArbLookback]
		if base == 0 {
			continue
		}
		entries = append(entries, statArbEntry{
			data:   data,
			retPct: prices[len(prices)-1]/base - 1,
		})
	}
	if len(entries) < 5 {
		return nil, nil
	}

	rets := make([]float64, len(entries))
	for i := range entries {
		rets[i] = entries[i].retPct
	}
	basketMean, basketStd := meanStd(rets)
	if basketStd == 0 {
		return nil, nil
	}

	sort.Slice(entries, func(i, j int) bool { return entries[i].retPct < entries[j].retPct })

	var out []domain.Opportunity
	for _, e := range entries {
		gap := basketMean - e.retPct
		if gap < statArbMinGapPct {
			break // sorted ascending, every later entry has a smaller gap
		}
		z := gap / basketStd
		if z < 1.5 {
			continue
		}
		confidence := clampConfidence(50 + z*12)
		if confidence > 82 {
			confidence = 82
		}
		if confidence < params.MinConfidence {
			continue
		}
		entry := e.data.LastPrice
		expectedMove := gap * 0.6
		out = append(out, domain.Opportunity{
			StrategyID:         s.ID(),
			StrategyName:       s.Name(),
			Symbol:             e.data.Symbol,
			Exchange:           exchangeOf(e.data),
			OpportunityType:    "basket_convergence",
			ProfitPotentialUSD: params.CapitalUSD * expectedMove,
			ConfidenceScore:    confidence,
			Risk:               domain.RiskMedium,
			RequiredCapitalUSD: params.CapitalUSD,
			EstimatedTimeframe: statArbTimeline,
			EntryPrice:         entry,
			ExitPrice:          entry * (1 + expectedMove),
			Metadata: map[string]string{
				"basket_gap": fmt.Sprintf("%.4f", gap),
				"gap_z":      fmt.Sprintf("%.2f", z),
			},
			DiscoveredAt: snapshot.TakenAt,
		})
	}
	return out, nil
}
