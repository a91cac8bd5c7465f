package rank

import (
	"sort"

	"coinscout/internal/domain"
)

// Ranker deduplicates and orders candidate opportunities with a total,
// deterministic ordering: floating scores alone do not totally order the
// set, so strategy id breaks the final tie.
type Ranker struct{}

func NewRanker() *Ranker {
	return &Ranker{}
}

type dedupeKey struct {
	strategyID string
	symbol     string
	exchange   string
}

func (r *Ranker) Rank(candidates []domain.Opportunity) []domain.Opportunity {
	best := make(map[dedupeKey]domain.Opportunity, len(candidates))
	for _, c := range candidates {
		key := dedupeKey{strategyID: c.StrategyID, symbol: c.Symbol, exchange: c.Exchange}
		existing, seen := best[key]
		if !seen || c.ConfidenceScore > existing.ConfidenceScore {
			best[key] = c
		}
	}

	out := make([]domain.Opportunity, 0, len(best))
	for _, c := range best {
		out = append(out, c)
	}

	sort.Slice(out, func(i, j int) bool {
		if out[i].ProfitPotentialUSD != out[j].ProfitPotentialUSD {
			return out[i].ProfitPotentialUSD > out[j].ProfitPotentialUSD
		}
		if out[i].ConfidenceScore != out[j].ConfidenceScore {
			return out[i].ConfidenceScore > out[j].ConfidenceScore
		}
		if out[i].StrategyID != out[j].StrategyID {
			return out[i].StrategyID < out[j].StrategyID
		}
		if out[i].Symbol != out[j].Symbol {
			return out[i].Symbol < out[j].Symbol
		}
		return out[i].Exchange < out[j].Exchange
	})
	return out
}
