package scanner

import (
	"context"
	"testing"
	"time"

	"coinscout/internal/domain"
	"coinscout/internal/strategy"
)

func candlesFromCloses(symbol string, closes []float64, vols []float64) []domain.Candle {
	out := make([]domain.Candle, len(closes))
	start := time.Date(2026, 8, 1, 0, 0, 0, 0, time.UTC)
	for i, c := range closes {
		open := c
		if i > 0 {
			open = closes[i-1]
		}
		vol := 1000.0
		if vols != nil {
			vol = vols[i]
		}
		out[i] = domain.Candle{
			Symbol:   symbol,
			OpenTime: start.Add(time.Duration(i) * time.Hour),
			Open:     open,
			High:     c * 1.01,
			Low:      c * 0.99,
			Close:    c,
			Volume:   vol,
		}
	}
	return out
}

func snapshotWith(entries ...domain.SymbolData) domain.MarketSnapshot {
	symbols := make(map[string]domain.SymbolData, len(entries))
	for _, e := range entries {
		symbols[e.Symbol] = e
	}
	return domain.MarketSnapshot{
		TakenAt: time.Date(2026, 8, 28, 12, 0, 0, 0, time.UTC),
		Symbols: symbols,
	}
}

func trendingCloses(n int, start, up, down float64) []float64 {
	out := make([]float64, n)
	price := start
	for i := 0; i < n; i++ {
		if i%2 == 0 {
			price *= 1 + up
		} else {
			price *= 1 - down
		}
		out[i] = price
	}
	return out
}

func flatCloses(n int, value float64) []float64 {
	out := make([]float64, n)
	for i := range out {
		out[i] = value
	}
	return out
}

func TestScanSymbolsSkipsMissingAndShortHistory(t *testing.T) {
	snap := snapshotWith(domain.SymbolData{
		Symbol:    "BTC",
		LastPrice: 100,
		Candles:   candlesFromCloses("BTC", flatCloses(5, 100), nil),
	})
	calls := 0
	got, err := scanSymbols(context.Background(), []string{"BTC", "ETH"}, snap, strategy.DefaultParams(),
		func(data domain.SymbolData, params strategy.Params) (domain.Opportunity, bool) {
			calls++
			return domain.Opportunity{}, false
		})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if calls != 0 {
		t.Fatalf("expected no scan calls for short/missing histories, got %d", calls)
	}
	if len(got) != 0 {
		t.Fatalf("expected no opportunities, got %d", len(got))
	}
}

func TestScanSymbolsFiltersLowConfidence(t *testing.T) {
	snap := snapshotWith(domain.SymbolData{
		Symbol:  "BTC",
		Candles: candlesFromCloses("BTC", flatCloses(40, 100), nil),
	})
	got, err := scanSymbols(context.Background(), []string{"BTC"}, snap, strategy.DefaultParams(),
		func(data domain.SymbolData, params strategy.Params) (domain.Opportunity, bool) {
			return domain.Opportunity{ConfidenceScore: 10}, true
		})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(got) != 0 {
		t.Fatal("expected low-confidence opportunity to be dropped")
	}
}

func TestScanSymbolsHonorsCancellation(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	snap := snapshotWith(domain.SymbolData{
		Symbol:  "BTC",
		Candles: candlesFromCloses("BTC", flatCloses(40, 100), nil),
	})
	_, err := scanSymbols(ctx, []string{"BTC"}, snap, strategy.DefaultParams(),
		func(data domain.SymbolData, params strategy.Params) (domain.Opportunity, bool) {
			t.Fatal("scan func should not run after cancellation")
			return domain.Opportunity{}, false
		})
	if err == nil {
		t.Fatal("expected context error")
	}
}

func TestMomentumDetectsUptrend(t *testing.T) {
	snap := snapshotWith(domain.SymbolData{
		Symbol:    "BTC",
		LastPrice: 100,
		Volume24h: 1_000_000,
		Candles:   candlesFromCloses("BTC", trendingCloses(80, 100, 0.015, 0.007), nil),
	})

	got, err := NewMomentum().Scan(context.Background(), []string{"BTC"}, snap, strategy.DefaultParams())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(got) != 1 {
		t.Fatalf("expected 1 momentum opportunity, got %d", len(got))
	}
	opp := got[0]
	if opp.StrategyID != "momentum" || opp.Symbol != "BTC" {
		t.Fatalf("unexpected opportunity identity: %+v", opp)
	}
	if opp.ProfitPotentialUSD <= 0 {
		t.Fatal("expected positive profit potential")
	}
	if opp.ConfidenceScore < 55 || opp.ConfidenceScore > 100 {
		t.Fatalf("confidence out of range: %f", opp.ConfidenceScore)
	}
	if opp.DiscoveredAt.IsZero() {
		t.Fatal("expected discovered_at to be stamped from snapshot")
	}
}

func TestMomentumIgnoresFlatMarket(t *testing.T) {
	snap := snapshotWith(domain.SymbolData{
		Symbol:  "BTC",
		Candles: candlesFromCloses("BTC", flatCloses(80, 100), nil),
	})
	got, err := NewMomentum().Scan(context.Background(), []string{"BTC"}, snap, strategy.DefaultParams())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(got) != 0 {
		t.Fatalf("expected no opportunities in a flat market, got %d", len(got))
	}
}

func TestMeanReversionDetectsOversoldPlunge(t *testing.T) {
	prices := flatCloses(40, 100)
	prices[37] = 95
	prices[38] = 90
	prices[39] = 85

	snap := snapshotWith(domain.SymbolData{
		Symbol:  "ETH",
		Candles: candlesFromCloses("ETH", prices, nil),
	})
	got, err := NewMeanReversion().Scan(context.Background(), []string{"ETH"}, snap, strategy.DefaultParams())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(got) != 1 {
		t.Fatalf("expected 1 mean-reversion opportunity, got %d", len(got))
	}
	if got[0].OpportunityType != "oversold_bounce" {
		t.Fatalf("unexpected type %s", got[0].OpportunityType)
	}
	if got[0].ExitPrice <= got[0].EntryPrice {
		t.Fatal("expected exit above entry for an oversold bounce")
	}
}

func TestBreakoutRequiresVolumeConfirmation(t *testing.T) {
	prices := make([]float64, 41)
	vols := make([]float64, 41)
	for i := range prices {
		if i%2 == 0 {
			prices[i] = 100
			vols[i] = 1000
		} else {
			prices[i] = 100.5
			vols[i] = 1100
		}
	}
	prices[40] = 110

	// No volume spike: no opportunity.
	snap := snapshotWith(domain.SymbolData{
		Symbol:  "SOL",
		Candles: candlesFromCloses("SOL", prices, vols),
	})
	got, err := NewBreakout().Scan(context.Background(), []string{"SOL"}, snap, strategy.DefaultParams())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(got) != 0 {
		t.Fatal("expected no breakout without volume confirmation")
	}

	// Volume spike on the breakout candle: opportunity.
	vols[40] = 5000
	snap = snapshotWith(domain.SymbolData{
		Symbol:  "SOL",
		Candles: candlesFromCloses("SOL", prices, vols),
	})
	got, err = NewBreakout().Scan(context.Background(), []string{"SOL"}, snap, strategy.DefaultParams())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(got) != 1 {
		t.Fatalf("expected 1 breakout opportunity, got %d", len(got))
	}
	if got[0].Risk != domain.RiskHigh {
		t.Fatalf("expected high risk, got %s", got[0].Risk)
	}
}

func TestPairsTradingDetectsDivergence(t *testing.T) {
	n := 60
	pricesA := make([]float64, n)
	pricesB := make([]float64, n)
	pa, pb := 100.0, 50.0
	for i := 0; i < n; i++ {
		base := -0.02
		if i%2 == 0 {
			base = 0.02
		}
		bump := 0.0
		if i >= n-10 {
			bump = 0.003
		}
		pa *= 1 + base + bump
		pb *= 1 + base
		pricesA[i] = pa
		pricesB[i] = pb
	}

	snap := snapshotWith(
		domain.SymbolData{Symbol: "AAA", LastPrice: pa, Candles: candlesFromCloses("AAA", pricesA, nil)},
		domain.SymbolData{Symbol: "BBB", LastPrice: pb, Candles: candlesFromCloses("BBB", pricesB, nil)},
	)
	got, err := NewPairsTrading().Scan(context.Background(), []string{"AAA", "BBB"}, snap, strategy.DefaultParams())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(got) != 1 {
		t.Fatalf("expected 1 pair opportunity, got %d", len(got))
	}
	opp := got[0]
	if opp.Metadata["long_leg"] != "BBB" || opp.Metadata["short_leg"] != "AAA" {
		t.Fatalf("expected long BBB / short AAA, got %v", opp.Metadata)
	}
	if opp.RequiredCapitalUSD <= strategy.DefaultParams().CapitalUSD {
		t.Fatal("expected pair trade to require capital for both legs")
	}
}

func TestStatArbFlagsLaggard(t *testing.T) {
	symbols := []string{"AAA", "BBB", "CCC", "DDD", "EEE", "LAG"}
	entries := make([]domain.SymbolData, 0, len(symbols))
	for _, sym := range symbols {
		target := 0.10
		if sym == "LAG" {
			target = -0.05
		}
		prices := make([]float64, 40)
		for i := range prices {
			prices[i] = 100 * (1 + target*float64(i)/39)
		}
		entries = append(entries, domain.SymbolData{
			Symbol:    sym,
			LastPrice: prices[39],
			Candles:   candlesFromCloses(sym, prices, nil),
		})
	}

	snap := snapshotWith(entries...)
	got, err := NewStatArb().Scan(context.Background(), symbols, snap, strategy.DefaultParams())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(got) != 1 {
		t.Fatalf("expected only the laggard flagged, got %d", len(got))
	}
	if got[0].Symbol != "LAG" {
		t.Fatalf("expected LAG, got %s", got[0].Symbol)
	}
}

func TestMarketMakingWantsCalmLiquidSymbols(t *testing.T) {
	calm := trendingCloses(40, 100, 0.001, 0.001)
	snap := snapshotWith(
		domain.SymbolData{Symbol: "BTC", LastPrice: 100, Volume24h: 10_000_000, Candles: candlesFromCloses("BTC", calm, nil)},
		domain.SymbolData{Symbol: "PEPE", LastPrice: 1, Volume24h: 50_000, Candles: candlesFromCloses("PEPE", calm, nil)},
	)
	got, err := NewMarketMaking().Scan(context.Background(), []string{"BTC", "PEPE"}, snap, strategy.DefaultParams())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(got) != 1 || got[0].Symbol != "BTC" {
		t.Fatalf("expected only liquid BTC flagged, got %+v", got)
	}
	if got[0].Risk != domain.RiskLow {
		t.Fatalf("expected low risk, got %s", got[0].Risk)
	}
}

func TestDerivativesNeedsMeaningfulFunding(t *testing.T) {
	candles := candlesFromCloses("BTC", flatCloses(40, 100), nil)
	snap := snapshotWith(
		domain.SymbolData{Symbol: "BTC", LastPrice: 100, FundingRate: 0.0008, Candles: candles},
		domain.SymbolData{Symbol: "ETH", LastPrice: 100, FundingRate: 0.00001, Candles: candlesFromCloses("ETH", flatCloses(40, 100), nil)},
	)
	got, err := NewDerivatives().Scan(context.Background(), []string{"BTC", "ETH"}, snap, strategy.DefaultParams())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(got) != 1 || got[0].Symbol != "BTC" {
		t.Fatalf("expected only BTC funding carry, got %+v", got)
	}
	if got[0].Metadata["structure"] != "long_spot_short_perp" {
		t.Fatalf("unexpected structure: %s", got[0].Metadata["structure"])
	}
}

func TestHedgingDetectsVolatilityExpansion(t *testing.T) {
	prices := make([]float64, 41)
	price := 100.0
	prices[0] = price
	for i := 1; i <= 20; i++ {
		if i%2 == 0 {
			price *= 1.005
		} else {
			price *= 0.995
		}
		prices[i] = price
	}
	for i := 21; i <= 40; i++ {
		if i%2 == 0 {
			price *= 1.02
		} else {
			price *= 0.98
		}
		prices[i] = price
	}

	snap := snapshotWith(domain.SymbolData{
		Symbol: "BTC", LastPrice: price, Candles: candlesFromCloses("BTC", prices, nil),
	})
	got, err := NewHedging().Scan(context.Background(), []string{"BTC"}, snap, strategy.DefaultParams())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(got) != 1 {
		t.Fatalf("expected 1 hedge opportunity, got %d", len(got))
	}
	if got[0].OpportunityType != "volatility_hedge" {
		t.Fatalf("unexpected type %s", got[0].OpportunityType)
	}
}

func TestPortfolioOptimizationPicksBestSharpe(t *testing.T) {
	strong := trendingCloses(40, 100, 0.015, -0.005) // up 1.5%, then up 0.5%
	weak := trendingCloses(40, 100, 0.02, 0.02)

	snap := snapshotWith(
		domain.SymbolData{Symbol: "WIN", LastPrice: 120, Candles: candlesFromCloses("WIN", strong, nil)},
		domain.SymbolData{Symbol: "CHOP", LastPrice: 100, Candles: candlesFromCloses("CHOP", weak, nil)},
	)
	got, err := NewPortfolioOptimization().Scan(context.Background(), []string{"WIN", "CHOP"}, snap, strategy.DefaultParams())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(got) != 1 || got[0].Symbol != "WIN" {
		t.Fatalf("expected only WIN picked, got %+v", got)
	}
	if got[0].RequiredCapitalUSD > strategy.DefaultParams().CapitalUSD {
		t.Fatal("expected sized-down allocation")
	}
}

func TestRiskManagementNeedsHistory(t *testing.T) {
	snap := snapshotWith(domain.SymbolData{
		Symbol:  "BTC",
		Candles: candlesFromCloses("BTC", flatCloses(30, 100), nil),
	})
	got, err := NewRiskManagement().Scan(context.Background(), []string{"BTC"}, snap, strategy.DefaultParams())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(got) != 0 {
		t.Fatalf("expected no anomaly alerts on short history, got %d", len(got))
	}
}

func TestFeatureRowsSkipsZeroPrices(t *testing.T) {
	candles := candlesFromCloses("BTC", []float64{100, 0, 102, 103}, nil)
	rows := featureRows(candles)
	// Transitions touching the zero close are dropped.
	if len(rows) != 1 {
		t.Fatalf("expected 1 usable feature row, got %d", len(rows))
	}
	if len(rows[0]) != riskFeatureCount {
		t.Fatalf("expected %d features, got %d", riskFeatureCount, len(rows[0]))
	}
}

func TestDefaultSetCoversAllKnownStrategies(t *testing.T) {
	reg, err := strategy.NewRegistry(DefaultSet()...)
	if err != nil {
		t.Fatalf("unexpected registry error: %v", err)
	}
	if reg.Size() != len(strategy.KnownStrategyIDs) {
		t.Fatalf("expected %d scanners, got %d", len(strategy.KnownStrategyIDs), reg.Size())
	}
}
