package scanner

import (
	"context"

	"coinscout/internal/domain"
	"coinscout/internal/strategy"
)

const (
	defaultExchange  = "binance"
	minCandleHistory = 30
)

// symbolScan inspects one symbol's market data and either emits an
// opportunity or reports false. Implementations must not return
// zero-confidence placeholders; low-conviction symbols are omitted.
type symbolScan func(data domain.SymbolData, params strategy.Params) (domain.Opportunity, bool)

// scanSymbols runs fn over each symbol with data in the snapshot, skipping
// symbols without usable history and checking for cancellation between
// symbols. A single bad symbol never fails the whole scan.
func scanSymbols(ctx context.Context, symbols []string, snapshot domain.MarketSnapshot, params strategy.Params, fn symbolScan) ([]domain.Opportunity, error) {
	var out []domain.Opportunity
	for _, symbol := range symbols {
		select {
		case <-ctx.Done():
			return out, ctx.Err()
		default:
		}

		data, ok := snapshot.Data(symbol)
		if !ok || len(data.Candles) < minCandleHistory {
			continue
		}
		opp, found := fn(data, params)
		if !found {
			continue
		}
		if opp.ConfidenceScore < params.MinConfidence {
			continue
		}
		opp.ConfidenceScore = clampConfidence(opp.ConfidenceScore)
		if opp.ProfitPotentialUSD < 0 {
			opp.ProfitPotentialUSD = 0
		}
		if opp.Exchange == "" {
			opp.Exchange = exchangeOf(data)
		}
		if opp.DiscoveredAt.IsZero() {
			opp.DiscoveredAt = snapshot.TakenAt
		}
		out = append(out, opp)
	}
	return out, nil
}

func exchangeOf(data domain.SymbolData) string {
	if data.Exchange != "" {
		return data.Exchange
	}
	return defaultExchange
}

// DefaultSet returns one scanner per strategy family, ready for registry
// construction at startup.
func DefaultSet() []strategy.Scanner {
	return []strategy.Scanner{
		NewMomentum(),
		NewMeanReversion(),
		NewBreakout(),
		NewPairsTrading(),
		NewStatArb(),
		NewMarketMaking(),
		NewDerivatives(),
		NewHedging(),
		NewRiskManagement(),
		NewPortfolioOptimization(),
	}
}
