package consensus

import (
	"context"
	"log"
	"time"

	"coinscout/internal/domain"

	"go.opentelemetry.io/otel/trace"
	"gonum.org/v1/gonum/stat"
)

const (
	defaultDisagreement = 20.0
	opinionTimeout      = 20 * time.Second
)

// Opinion is one model's independent view of a ranked opportunity set.
type Opinion struct {
	Provider       string  `json:"provider"`
	Score          float64 `json:"score"`
	Recommendation string  `json:"recommendation"`
}

type OpinionProvider interface {
	Name() string
	Opine(ctx context.Context, opportunities []domain.Opportunity) (Opinion, error)
}

// Scorer aggregates independent model opinions into one consensus score.
// Callers should treat a low_agreement consensus as lower confidence even
// when the numeric score is high.
type Scorer struct {
	tracer               trace.Tracer
	providers            []OpinionProvider
	disagreementStdLimit float64
}

func NewScorer(tracer trace.Tracer, disagreementStdLimit float64, providers ...OpinionProvider) *Scorer {
	if disagreementStdLimit <= 0 {
		disagreementStdLimit = defaultDisagreement
	}
	return &Scorer{
		tracer:               tracer,
		providers:            providers,
		disagreementStdLimit: disagreementStdLimit,
	}
}

func (s *Scorer) Score(ctx context.Context, opportunities []domain.Opportunity) domain.Consensus {
	ctx, span := s.tracer.Start(ctx, "consensus.score")
	defer span.End()

	opinions := make([]Opinion, 0, len(s.providers))
	for _, p := range s.providers {
		opCtx, cancel := context.WithTimeout(ctx, opinionTimeout)
		op, err := p.Opine(opCtx, opportunities)
		cancel()
		if err != nil {
			log.Printf("consensus opinion from %s failed: %v", p.Name(), err)
			continue
		}
		op.Score = clampScore(op.Score)
		opinions = append(opinions, op)
	}

	switch len(opinions) {
	case 0:
		return domain.Consensus{Available: false}
	case 1:
		// A single opinion passes through unchanged.
		return domain.Consensus{
			Available:      true,
			Score:          opinions[0].Score,
			Recommendation: opinions[0].Recommendation,
			Opinions:       1,
		}
	}

	scores := make([]float64, len(opinions))
	for i, op := range opinions {
		scores[i] = op.Score
	}
	mean := stat.Mean(scores, nil)
	std := stat.StdDev(scores, nil)

	return domain.Consensus{
		Available:      true,
		Score:          mean,
		Recommendation: recommendationFor(mean),
		LowAgreement:   std > s.disagreementStdLimit,
		Opinions:       len(opinions),
	}
}

func recommendationFor(score float64) string {
	switch {
	case score >= 80:
		return "strong_buy"
	case score >= 60:
		return "buy"
	case score >= 40:
		return "hold"
	default:
		return "avoid"
	}
}

func clampScore(v float64) float64 {
	if v < 0 {
		return 0
	}
	if v > 100 {
		return 100
	}
	return v
}

// HeuristicProvider is a deterministic rule-based opinion used alongside the
// LLM provider, and on its own when no API key is configured.
type HeuristicProvider struct{}

func NewHeuristicProvider() *HeuristicProvider { return &HeuristicProvider{} }

func (h *HeuristicProvider) Name() string { return "heuristic" }

func (h *HeuristicProvider) Opine(ctx context.Context, opportunities []domain.Opportunity) (Opinion, error) {
	if len(opportunities) == 0 {
		return Opinion{Provider: h.Name(), Score: 0, Recommendation: "avoid"}, nil
	}

	var weighted, weightTotal float64
	for _, o := range opportunities {
		weight := 1 + o.ProfitPotentialUSD/1000
		weighted += o.ConfidenceScore * weight
		weightTotal += weight
	}
	score := clampScore(weighted / weightTotal)
	return Opinion{
		Provider:       h.Name(),
		Score:          score,
		Recommendation: recommendationFor(score),
	}, nil
}

var _ OpinionProvider = (*HeuristicProvider)(nil)
