package strategy

import (
	"context"
	"fmt"
	"sort"
	"strings"

	"coinscout/internal/domain"
)

// Params carries per-scan tuning shared by every scanner invocation.
type Params struct {
	CapitalUSD    float64
	MinConfidence float64
}

func DefaultParams() Params {
	return Params{
		CapitalUSD:    10_000,
		MinConfidence: 55,
	}
}

// Scanner is one pluggable strategy family. Implementations are pure with
// respect to their inputs and must honor ctx cancellation between symbols.
type Scanner interface {
	ID() string
	Name() string
	Cost() int
	Scan(ctx context.Context, symbols []string, snapshot domain.MarketSnapshot, params Params) ([]domain.Opportunity, error)
}

// Registry is the closed mapping from persisted strategy identifiers to
// scanner implementations, resolved once at startup.
type Registry struct {
	scanners map[string]Scanner
	aliases  map[string]string
}

// Legacy identifiers still present in persisted strategy records. Kept as an
// explicit table so a mismatch is a startup error, not a silent skip.
var legacyAliases = map[string]string{
	"ai_momentum":       "momentum",
	"ai_mean_reversion": "mean_reversion",
	"ai_breakout":       "breakout",
	"grid_trading":      "market_making",
	"options_flow":      "derivatives",
}

// KnownStrategyIDs is the full set of identifiers the ownership service may
// hand us. NewRegistry fails if any of them has no registered scanner.
var KnownStrategyIDs = []string{
	"momentum",
	"mean_reversion",
	"breakout",
	"pairs_trading",
	"stat_arb",
	"market_making",
	"derivatives",
	"hedging",
	"risk_management",
	"portfolio_optimization",
}

func NewRegistry(scanners ...Scanner) (*Registry, error) {
	byID := make(map[string]Scanner, len(scanners))
	for _, s := range scanners {
		id := strings.ToLower(strings.TrimSpace(s.ID()))
		if id == "" {
			return nil, fmt.Errorf("scanner %q has an empty id", s.Name())
		}
		if _, dup := byID[id]; dup {
			return nil, fmt.Errorf("duplicate scanner id %q", id)
		}
		byID[id] = s
	}

	var unmapped []string
	for _, id := range KnownStrategyIDs {
		if _, ok := byID[id]; !ok {
			unmapped = append(unmapped, id)
		}
	}
	for alias, target := range legacyAliases {
		if _, ok := byID[target]; !ok {
			unmapped = append(unmapped, fmt.Sprintf("%s (alias %s)", target, alias))
		}
	}
	if len(unmapped) > 0 {
		sort.Strings(unmapped)
		return nil, fmt.Errorf("strategy identifiers without a registered scanner: %s", strings.Join(unmapped, ", "))
	}

	return &Registry{scanners: byID, aliases: legacyAliases}, nil
}

// Resolve maps persisted strategy identifiers to scanners, following the
// alias table, deduplicating, and reporting identifiers it cannot map.
func (r *Registry) Resolve(ids []string) ([]Scanner, []string) {
	resolved := make([]Scanner, 0, len(ids))
	seen := make(map[string]struct{}, len(ids))
	var missing []string

	for _, raw := range ids {
		id := strings.ToLower(strings.TrimSpace(raw))
		if id == "" {
			continue
		}
		if target, ok := r.aliases[id]; ok {
			id = target
		}
		s, ok := r.scanners[id]
		if !ok {
			missing = append(missing, raw)
			continue
		}
		if _, dup := seen[id]; dup {
			continue
		}
		seen[id] = struct{}{}
		resolved = append(resolved, s)
	}

	sort.Slice(resolved, func(i, j int) bool { return resolved[i].ID() < resolved[j].ID() })
	return resolved, missing
}

func (r *Registry) Get(id string) (Scanner, bool) {
	s, ok := r.scanners[strings.ToLower(strings.TrimSpace(id))]
	return s, ok
}

func (r *Registry) Size() int {
	return len(r.scanners)
}
