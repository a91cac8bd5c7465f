package scanner

import (
	"context"
	"fmt"
	"math"

	"coinscout/internal/domain"
	"coinscout/internal/strategy"

	goiforest "github.com/narumiruna/go-iforest/pkg/iforest"
)

const (
	riskMinSamples    = 60
	riskAnomalyThresh = 0.62
	riskIForestTrees  = 100
	riskIForestSample = 64
	riskTimeline      = "immediate"
	riskFeatureCount  = 3
)

// RiskManagement trains an isolation forest over each symbol's recent
// (return, volume, range) behavior and flags symbols whose latest candle is
// an outlier against their own history. The emitted opportunity is a
// de-risking alert: the profit figure estimates the drawdown avoided by
// cutting exposure before an abnormal move resolves.
type RiskManagement struct{}

func NewRiskManagement() *RiskManagement { return &RiskManagement{} }

func (r *RiskManagement) ID() string   { return "risk_management" }
func (r *RiskManagement) Name() string { return "Risk Management" }
func (r *RiskManagement) Cost() int    { return 2 }

func (r *RiskManagement) Scan(ctx context.Context, symbols []string, snapshot domain.MarketSnapshot, params strategy.Params) ([]domain.Opportunity, error) {
	return scanSymbols(ctx, symbols, snapshot, params, r.scanSymbol)
}

func (r *RiskManagement) scanSymbol(data domain.SymbolData, params strategy.Params) (domain.Opportunity, bool) {
	samples := featureRows(data.Candles)
	if len(samples) < riskMinSamples {
		return domain.Opportunity{}, false
	}

	history := samples[:len(samples)-1]
	latest := samples[len(samples)-1]

	means, stds := fitFeatureScaler(history)
	normalized := make([][]float64, len(history))
	for i := range history {
		normalized[i] = scaleFeatures(history[i], means, stds)
	}

	forest := goiforest.NewWithOptions(goiforest.Options{
		DetectionType: goiforest.DetectionTypeThreshold,
		Threshold:     riskAnomalyThresh,
		NumTrees:      riskIForestTrees,
		SampleSize:    riskIForestSample,
	})
	forest.Fit(normalized)

	scores := forest.Score([][]float64{scaleFeatures(latest, means, stds)})
	if len(scores) == 0 {
		return domain.Opportunity{}, false
	}
	score := scores[0]
	if math.IsNaN(score) || score < riskAnomalyThresh {
		return domain.Opportunity{}, false
	}

	rets := returnsSeries(closes(data.Candles))
	_, vol := meanStd(lastN(rets, 20))
	avoidedMove := vol * 4 * score

	return domain.Opportunity{
		StrategyID:         r.ID(),
		StrategyName:       r.Name(),
		Symbol:             data.Symbol,
		OpportunityType:    "anomaly_alert",
		ProfitPotentialUSD: params.CapitalUSD * avoidedMove,
		ConfidenceScore:    clampConfidence(score * 100),
		Risk:               domain.RiskHigh,
		RequiredCapitalUSD: 0,
		EstimatedTimeframe: riskTimeline,
		EntryPrice:         data.LastPrice,
		Metadata: map[string]string{
			"anomaly_score": fmt.Sprintf("%.3f", score),
			"action":        "reduce_exposure",
		},
	}, true
}

// featureRows builds one (return, volume, range) vector per candle.
func featureRows(candles []domain.Candle) [][]float64 {
	if len(candles) < 2 {
		return nil
	}
	rows := make([][]float64, 0, len(candles)-1)
	for i := 1; i < len(candles); i++ {
		prev := candles[i-1]
		curr := candles[i]
		if prev.Close == 0 || curr.Close == 0 {
			continue
		}
		ret := curr.Close/prev.Close - 1
		rangePct := (curr.High - curr.Low) / curr.Close
		rows = append(rows, []float64{ret, curr.Volume, rangePct})
	}
	return rows
}

func fitFeatureScaler(samples [][]float64) ([]float64, []float64) {
	means := make([]float64, riskFeatureCount)
	stds := make([]float64, riskFeatureCount)
	for j := 0; j < riskFeatureCount; j++ {
		col := make([]float64, len(samples))
		for i := range samples {
			col[i] = samples[i][j]
		}
		m, s := meanStd(col)
		if s == 0 {
			s = 1
		}
		means[j] = m
		stds[j] = s
	}
	return means, stds
}

func scaleFeatures(in, means, stds []float64) []float64 {
	out := make([]float64, len(in))
	for i := range in {
		out[i] = (in[i] - means[i]) / stds[i]
	}
	return out
}
