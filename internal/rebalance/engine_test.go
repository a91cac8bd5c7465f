package rebalance

import (
	"math"
	"testing"

	"coinscout/internal/domain"
)

func findTrade(t *testing.T, trades []domain.Trade, symbol string) domain.Trade {
	t.Helper()
	for _, tr := range trades {
		if tr.Symbol == symbol {
			return tr
		}
	}
	t.Fatalf("no trade for %s in %+v", symbol, trades)
	return domain.Trade{}
}

func TestGenerateTradesFiftyFiftySplit(t *testing.T) {
	e := NewEngine(0, 0)
	snapshot := domain.PortfolioSnapshot{
		Positions: []domain.Position{
			{Symbol: "BTC", ValueUSD: 800, Weight: 0.8},
			{Symbol: "ETH", ValueUSD: 200, Weight: 0.2},
		},
		TotalValue: 1000,
	}
	plan, err := e.GenerateTrades(snapshot, map[string]float64{"BTC": 0.5, "ETH": 0.5})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !plan.NeedsRebalancing {
		t.Fatal("expected rebalancing to be needed")
	}

	btc := findTrade(t, plan.RecommendedTrades, "BTC")
	if btc.Action != domain.ActionSell || btc.ValueChangeUSD != -300 {
		t.Fatalf("expected SELL BTC -300, got %+v", btc)
	}
	eth := findTrade(t, plan.RecommendedTrades, "ETH")
	if eth.Action != domain.ActionBuy || eth.ValueChangeUSD != 300 {
		t.Fatalf("expected BUY ETH +300, got %+v", eth)
	}
}

func TestGenerateTradesZeroSum(t *testing.T) {
	e := NewEngine(0, 0)
	snapshot := domain.PortfolioSnapshot{
		Positions: []domain.Position{
			{Symbol: "BTC", ValueUSD: 500},
			{Symbol: "ETH", ValueUSD: 300},
			{Symbol: "SOL", ValueUSD: 200},
		},
		TotalValue: 1000,
	}
	plan, err := e.GenerateTrades(snapshot, map[string]float64{
		"BTC": 0.25, "ETH": 0.25, "SOL": 0.25, "ADA": 0.25,
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	sum := 0.0
	for _, tr := range plan.RecommendedTrades {
		sum += tr.ValueChangeUSD
	}
	if math.Abs(sum)/1000 > 1e-9 {
		t.Fatalf("expected zero-sum trades, net change %f", sum)
	}
}

func TestGenerateTradesBuyFromZero(t *testing.T) {
	e := NewEngine(0, 0)
	snapshot := domain.PortfolioSnapshot{
		Positions: []domain.Position{
			{Symbol: "BTC", ValueUSD: 900},
			{Symbol: "ETH", ValueUSD: 100},
		},
		TotalValue: 1000,
	}
	plan, err := e.GenerateTrades(snapshot, map[string]float64{"BTC": 0.8, "ETH": 0.1, "SOL": 0.1})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	sol := findTrade(t, plan.RecommendedTrades, "SOL")
	if sol.Action != domain.ActionBuy {
		t.Fatalf("expected BUY for unheld target symbol, got %s", sol.Action)
	}
	if sol.CurrentValue != 0 || sol.TargetValue != 100 || sol.ValueChangeUSD != 100 {
		t.Fatalf("expected buy-in from zero to $100, got %+v", sol)
	}
}

func TestGenerateTradesFullLiquidation(t *testing.T) {
	e := NewEngine(0, 0)
	snapshot := domain.PortfolioSnapshot{
		Positions: []domain.Position{
			{Symbol: "BTC", ValueUSD: 700},
			{Symbol: "DOGE", ValueUSD: 300},
		},
		TotalValue: 1000,
	}
	plan, err := e.GenerateTrades(snapshot, map[string]float64{"BTC": 1.0})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	doge := findTrade(t, plan.RecommendedTrades, "DOGE")
	if doge.Action != domain.ActionSell || doge.TargetValue != 0 || doge.ValueChangeUSD != -300 {
		t.Fatalf("expected full liquidation of DOGE, got %+v", doge)
	}
}

func TestGenerateTradesNormalizesSymbols(t *testing.T) {
	e := NewEngine(0, 0)
	snapshot := domain.PortfolioSnapshot{
		Positions: []domain.Position{
			{Symbol: "BTCUSDT", ValueUSD: 800},
			{Symbol: "eth-usd", ValueUSD: 200},
		},
		TotalValue: 1000,
	}
	plan, err := e.GenerateTrades(snapshot, map[string]float64{"btc": 0.5, "ETH": 0.5})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(plan.RecommendedTrades) != 2 {
		t.Fatalf("expected 2 trades, got %+v", plan.RecommendedTrades)
	}
	btc := findTrade(t, plan.RecommendedTrades, "BTC")
	if btc.ValueChangeUSD != -300 {
		t.Fatalf("expected quote-stripped BTC match to sell 300, got %+v", btc)
	}
}

func TestGenerateTradesSkipsDust(t *testing.T) {
	e := NewEngine(1, 0)
	snapshot := domain.PortfolioSnapshot{
		Positions: []domain.Position{
			{Symbol: "BTC", ValueUSD: 500.4},
			{Symbol: "ETH", ValueUSD: 499.6},
		},
		TotalValue: 1000,
	}
	plan, err := e.GenerateTrades(snapshot, map[string]float64{"BTC": 0.5, "ETH": 0.5})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(plan.RecommendedTrades) != 0 {
		t.Fatalf("expected dust trades to be skipped, got %+v", plan.RecommendedTrades)
	}
	if plan.NeedsRebalancing {
		t.Fatal("expected balanced portfolio to not need rebalancing")
	}
}

func TestGenerateTradesSellsBeforeBuys(t *testing.T) {
	e := NewEngine(0, 0)
	snapshot := domain.PortfolioSnapshot{
		Positions: []domain.Position{
			{Symbol: "BTC", ValueUSD: 600},
			{Symbol: "ETH", ValueUSD: 400},
		},
		TotalValue: 1000,
	}
	plan, err := e.GenerateTrades(snapshot, map[string]float64{"BTC": 0.4, "ETH": 0.6})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(plan.RecommendedTrades) != 2 {
		t.Fatalf("expected 2 trades, got %d", len(plan.RecommendedTrades))
	}
	if plan.RecommendedTrades[0].Action != domain.ActionSell {
		t.Fatalf("expected sell first, got %+v", plan.RecommendedTrades)
	}
}

func TestGenerateTradesEmptyPortfolio(t *testing.T) {
	e := NewEngine(0, 0)
	if _, err := e.GenerateTrades(domain.PortfolioSnapshot{}, map[string]float64{"BTC": 1}); err == nil {
		t.Fatal("expected error for valueless portfolio")
	}
}

func TestGenerateTradesDeviationScore(t *testing.T) {
	e := NewEngine(0, 0)
	snapshot := domain.PortfolioSnapshot{
		Positions:  []domain.Position{{Symbol: "BTC", ValueUSD: 1000}},
		TotalValue: 1000,
	}
	plan, err := e.GenerateTrades(snapshot, map[string]float64{"BTC": 0.5, "ETH": 0.5})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if math.Abs(plan.DeviationScore-0.5) > 1e-9 {
		t.Fatalf("expected deviation 0.5, got %f", plan.DeviationScore)
	}
}
