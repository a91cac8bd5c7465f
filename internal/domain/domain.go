package domain

import (
	"strings"
	"time"
)

type UserTier string

const (
	TierFree  UserTier = "free"
	TierBasic UserTier = "basic"
	TierPro   UserTier = "pro"
	TierElite UserTier = "elite"
)

func (t UserTier) IsValid() bool {
	switch t {
	case TierFree, TierBasic, TierPro, TierElite:
		return true
	default:
		return false
	}
}

type RiskLevel string

const (
	RiskLow    RiskLevel = "low"
	RiskMedium RiskLevel = "medium"
	RiskHigh   RiskLevel = "high"
)

func (r RiskLevel) IsValid() bool {
	switch r {
	case RiskLow, RiskMedium, RiskHigh:
		return true
	default:
		return false
	}
}

type ScanStatus string

const (
	ScanInitiated ScanStatus = "initiated"
	ScanScanning  ScanStatus = "scanning"
	ScanCompleted ScanStatus = "completed"
	ScanFailed    ScanStatus = "failed"
	ScanTimedOut  ScanStatus = "timed_out"
)

func (s ScanStatus) IsTerminal() bool {
	switch s {
	case ScanCompleted, ScanFailed, ScanTimedOut:
		return true
	default:
		return false
	}
}

// ScanRequest is immutable once created.
type ScanRequest struct {
	UserID                 string    `json:"user_id"`
	ForceRefresh           bool      `json:"force_refresh"`
	IncludeRecommendations bool      `json:"include_recommendations"`
	RequestedAt            time.Time `json:"requested_at"`
}

type ScanState struct {
	ScanID              string     `json:"scan_id"`
	UserID              string     `json:"user_id"`
	Status              ScanStatus `json:"status"`
	ProgressPct         int        `json:"progress_percentage"`
	StrategiesCompleted int        `json:"strategies_completed"`
	StrategiesTotal     int        `json:"strategies_total"`
	CreatedAt           time.Time  `json:"created_at"`
	UpdatedAt           time.Time  `json:"updated_at"`
	Error               string     `json:"error,omitempty"`
}

type Opportunity struct {
	StrategyID         string            `json:"strategy_id"`
	StrategyName       string            `json:"strategy_name"`
	Symbol             string            `json:"symbol"`
	Exchange           string            `json:"exchange"`
	OpportunityType    string            `json:"opportunity_type"`
	ProfitPotentialUSD float64           `json:"profit_potential_usd"`
	ConfidenceScore    float64           `json:"confidence_score"`
	Risk               RiskLevel         `json:"risk_level"`
	RequiredCapitalUSD float64           `json:"required_capital_usd"`
	EstimatedTimeframe string            `json:"estimated_timeframe"`
	EntryPrice         float64           `json:"entry_price,omitempty"`
	ExitPrice          float64           `json:"exit_price,omitempty"`
	Metadata           map[string]string `json:"metadata,omitempty"`
	DiscoveredAt       time.Time         `json:"discovered_at"`
}

// StrategyResult records the per-strategy outcome of one scan.
type StrategyResult struct {
	StrategyID         string        `json:"strategy_id"`
	OpportunitiesFound int           `json:"opportunities_found"`
	Error              string        `json:"error,omitempty"`
	Duration           time.Duration `json:"duration_ns,omitempty"`
}

type ScanResults struct {
	ScanID          string                    `json:"scan_id"`
	Success         bool                      `json:"success"`
	Total           int                       `json:"total_opportunities"`
	Opportunities   []Opportunity             `json:"opportunities"`
	StrategyResults map[string]StrategyResult `json:"strategy_results"`
	Consensus       *Consensus                `json:"consensus,omitempty"`
}

// UserStrategyProfile is a read-only snapshot derived per scan.
type UserStrategyProfile struct {
	UserID              string   `json:"user_id"`
	Tier                UserTier `json:"user_tier"`
	ActiveStrategyCount int      `json:"active_strategy_count"`
	StrategyIDs         []string `json:"strategy_ids"`
	MaxAssetTier        int      `json:"max_asset_tier"`
	ScanLimit           int      `json:"opportunity_scan_limit"`
	MonthlyStrategyCost float64  `json:"monthly_strategy_cost"`
}

type Consensus struct {
	Available      bool    `json:"available"`
	Score          float64 `json:"consensus_score"`
	Recommendation string  `json:"recommendation"`
	LowAgreement   bool    `json:"low_agreement"`
	Opinions       int     `json:"opinions"`
}

type TradeAction string

const (
	ActionBuy  TradeAction = "BUY"
	ActionSell TradeAction = "SELL"
)

type Trade struct {
	Symbol         string      `json:"symbol"`
	Action         TradeAction `json:"action"`
	CurrentValue   float64     `json:"current_value_usd"`
	TargetValue    float64     `json:"target_value_usd"`
	ValueChangeUSD float64     `json:"value_change_usd"`
	CurrentWeight  float64     `json:"current_weight"`
	TargetWeight   float64     `json:"target_weight"`
}

type RebalancePlan struct {
	NeedsRebalancing  bool    `json:"needs_rebalancing"`
	DeviationScore    float64 `json:"deviation_score"`
	RecommendedTrades []Trade `json:"recommended_trades"`
}

type Position struct {
	Symbol   string  `json:"symbol"`
	Exchange string  `json:"exchange,omitempty"`
	Quantity float64 `json:"quantity,omitempty"`
	ValueUSD float64 `json:"value_usd"`
	Weight   float64 `json:"weight"`
}

type PortfolioSnapshot struct {
	Positions  []Position `json:"positions"`
	TotalValue float64    `json:"total_value"`
}

type Candle struct {
	Symbol   string    `json:"symbol"`
	OpenTime time.Time `json:"open_time"`
	Open     float64   `json:"open"`
	High     float64   `json:"high"`
	Low      float64   `json:"low"`
	Close    float64   `json:"close"`
	Volume   float64   `json:"volume"`
}

type SymbolData struct {
	Symbol      string   `json:"symbol"`
	Exchange    string   `json:"exchange"`
	LastPrice   float64  `json:"last_price"`
	Volume24h   float64  `json:"volume_24h"`
	FundingRate float64  `json:"funding_rate,omitempty"`
	Candles     []Candle `json:"candles"`
}

// MarketSnapshot is the point-in-time market view a scan runs against.
type MarketSnapshot struct {
	TakenAt time.Time             `json:"taken_at"`
	Symbols map[string]SymbolData `json:"symbols"`
}

func (m MarketSnapshot) Data(symbol string) (SymbolData, bool) {
	d, ok := m.Symbols[symbol]
	return d, ok
}

var quoteSuffixes = []string{"USDT", "USDC", "BUSD", "USD", "EUR"}

// NormalizeSymbol canonicalizes a trading symbol for map lookups: uppercase,
// separators removed, quote currency stripped. All symbol matching between
// portfolios, target weights and market data goes through this one function.
func NormalizeSymbol(symbol string) string {
	s := strings.ToUpper(strings.TrimSpace(symbol))
	s = strings.NewReplacer("-", "", "_", "", "/", "").Replace(s)
	for _, q := range quoteSuffixes {
		if strings.HasSuffix(s, q) && len(s) > len(q) {
			return s[:len(s)-len(q)]
		}
	}
	return s
}
