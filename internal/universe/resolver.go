package universe

import (
	"coinscout/internal/domain"
)

// Asset tiers: 1 = major-cap, 2 = mid-cap, 3 = long-tail. Ordering within a
// tier is by market-cap rank so a capped universe is always the same prefix.
var (
	tier1Symbols = []string{"BTC", "ETH", "SOL", "BNB", "XRP", "ADA", "DOGE", "AVAX", "DOT", "LINK"}
	tier2Symbols = []string{"MATIC", "UNI", "ATOM", "LTC", "NEAR", "APT", "ARB", "OP", "FIL", "INJ",
		"AAVE", "ALGO", "VET", "FTM", "GRT", "SAND", "MANA", "XLM", "ICP", "HBAR"}
	tier3Symbols = []string{"RUNE", "KAVA", "ZIL", "ENJ", "CHZ", "BAT", "CRV", "COMP", "SNX", "SUSHI",
		"YFI", "1INCH", "LRC", "OCEAN", "ANKR", "STORJ", "SKL", "CELR", "IMX", "DYDX",
		"GMX", "LDO", "RPL", "FXS", "PENDLE", "JTO", "SEI", "TIA", "PYTH", "WIF"}
)

type tierLimits struct {
	maxAssetTier int
	maxSymbols   int
}

var limitsByTier = map[domain.UserTier]tierLimits{
	domain.TierFree:  {maxAssetTier: 1, maxSymbols: 10},
	domain.TierBasic: {maxAssetTier: 2, maxSymbols: 20},
	domain.TierPro:   {maxAssetTier: 3, maxSymbols: 40},
	domain.TierElite: {maxAssetTier: 3, maxSymbols: 60},
}

// Resolver maps a user tier to the bounded, ranked asset universe that tier
// is allowed to scan. Resolution is deterministic: same tier, same list.
type Resolver struct{}

func NewResolver() *Resolver {
	return &Resolver{}
}

func (r *Resolver) Resolve(tier domain.UserTier) []string {
	limits, ok := limitsByTier[tier]
	if !ok {
		limits = limitsByTier[domain.TierFree]
	}

	ranked := make([]string, 0, limits.maxSymbols)
	for assetTier, symbols := range [][]string{tier1Symbols, tier2Symbols, tier3Symbols} {
		if assetTier+1 > limits.maxAssetTier {
			break
		}
		ranked = append(ranked, symbols...)
	}
	if len(ranked) > limits.maxSymbols {
		ranked = ranked[:limits.maxSymbols]
	}

	out := make([]string, len(ranked))
	copy(out, ranked)
	return out
}

// MaxAssetTier reports the highest asset tier reachable for a user tier.
func (r *Resolver) MaxAssetTier(tier domain.UserTier) int {
	limits, ok := limitsByTier[tier]
	if !ok {
		return limitsByTier[domain.TierFree].maxAssetTier
	}
	return limits.maxAssetTier
}
