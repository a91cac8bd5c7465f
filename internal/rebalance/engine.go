package rebalance

import (
	"fmt"
	"log"
	"math"
	"sort"

	"coinscout/internal/domain"
)

const (
	defaultMinTradeUSD        = 1.0
	defaultDeviationThreshold = 0.05
)

// Engine converts a target portfolio-weight vector plus a live position
// snapshot into concrete buy/sell trade instructions. All symbol matching
// runs through domain.NormalizeSymbol; an unmatched symbol is an explicit
// branch (full buy-in or full liquidation), never a silent $0 trade.
type Engine struct {
	minTradeUSD        float64
	deviationThreshold float64
}

func NewEngine(minTradeUSD, deviationThreshold float64) *Engine {
	if minTradeUSD <= 0 {
		minTradeUSD = defaultMinTradeUSD
	}
	if deviationThreshold <= 0 {
		deviationThreshold = defaultDeviationThreshold
	}
	return &Engine{minTradeUSD: minTradeUSD, deviationThreshold: deviationThreshold}
}

func (e *Engine) GenerateTrades(snapshot domain.PortfolioSnapshot, targetWeights map[string]float64) (domain.RebalancePlan, error) {
	totalValue := snapshot.TotalValue
	if totalValue <= 0 {
		for _, p := range snapshot.Positions {
			totalValue += p.ValueUSD
		}
	}
	if totalValue <= 0 {
		return domain.RebalancePlan{}, fmt.Errorf("portfolio has no value to rebalance")
	}

	currentByKey := make(map[string]domain.Position, len(snapshot.Positions))
	allKeys := make(map[string]struct{}, len(snapshot.Positions)+len(targetWeights))
	for _, p := range snapshot.Positions {
		key := domain.NormalizeSymbol(p.Symbol)
		merged := currentByKey[key]
		merged.Symbol = key
		merged.ValueUSD += p.ValueUSD
		currentByKey[key] = merged
		allKeys[key] = struct{}{}
	}

	targetByKey := make(map[string]float64, len(targetWeights))
	for symbol, weight := range targetWeights {
		key := domain.NormalizeSymbol(symbol)
		targetByKey[key] += weight
		allKeys[key] = struct{}{}
	}

	keys := make([]string, 0, len(allKeys))
	for key := range allKeys {
		keys = append(keys, key)
	}
	sort.Strings(keys)

	var trades []domain.Trade
	deviation := 0.0
	for _, key := range keys {
		current, held := currentByKey[key]
		targetWeight, targeted := targetByKey[key]

		currentValue := current.ValueUSD
		currentWeight := currentValue / totalValue

		if !held && targeted {
			log.Printf("rebalance: %s targeted at %.4f but not held, buying in from zero", key, targetWeight)
		}
		if held && !targeted {
			log.Printf("rebalance: %s held at $%.2f with no target weight, liquidating", key, currentValue)
		}

		targetValue := targetWeight * totalValue
		valueChange := targetValue - currentValue
		deviation += math.Abs(currentWeight - targetWeight)

		if math.Abs(valueChange) < e.minTradeUSD {
			continue
		}

		action := domain.ActionBuy
		if valueChange < 0 {
			action = domain.ActionSell
		}
		trades = append(trades, domain.Trade{
			Symbol:         key,
			Action:         action,
			CurrentValue:   currentValue,
			TargetValue:    targetValue,
			ValueChangeUSD: valueChange,
			CurrentWeight:  currentWeight,
			TargetWeight:   targetWeight,
		})
	}
	deviation /= 2

	// Sells first so the buys are funded, largest moves first.
	sort.Slice(trades, func(i, j int) bool {
		if trades[i].Action != trades[j].Action {
			return trades[i].Action == domain.ActionSell
		}
		ci := math.Abs(trades[i].ValueChangeUSD)
		cj := math.Abs(trades[j].ValueChangeUSD)
		if ci != cj {
			return ci > cj
		}
		return trades[i].Symbol < trades[j].Symbol
	})

	return domain.RebalancePlan{
		NeedsRebalancing:  deviation > e.deviationThreshold,
		DeviationScore:    deviation,
		RecommendedTrades: trades,
	}, nil
}
