package consensus

import (
	"context"
	"errors"
	"testing"

	"coinscout/internal/domain"

	"go.opentelemetry.io/otel/trace"
)

type stubProvider struct {
	name    string
	opinion Opinion
	err     error
}

func (s *stubProvider) Name() string { return s.name }
func (s *stubProvider) Opine(ctx context.Context, opportunities []domain.Opportunity) (Opinion, error) {
	if s.err != nil {
		return Opinion{}, s.err
	}
	return s.opinion, nil
}

func testTracer() trace.Tracer {
	return trace.NewNoopTracerProvider().Tracer("test")
}

func TestScoreNoProvidersUnavailable(t *testing.T) {
	s := NewScorer(testTracer(), 0)
	got := s.Score(context.Background(), nil)
	if got.Available {
		t.Fatal("expected consensus to be unavailable with no opinions")
	}
}

func TestScoreSingleOpinionPassesThrough(t *testing.T) {
	s := NewScorer(testTracer(), 0, &stubProvider{
		name:    "only",
		opinion: Opinion{Provider: "only", Score: 73, Recommendation: "buy"},
	})
	got := s.Score(context.Background(), nil)
	if !got.Available || got.Score != 73 || got.Recommendation != "buy" {
		t.Fatalf("expected pass-through opinion, got %+v", got)
	}
	if got.LowAgreement {
		t.Fatal("single opinion cannot disagree with itself")
	}
}

func TestScoreAveragesAndFlagsDisagreement(t *testing.T) {
	s := NewScorer(testTracer(), 20,
		&stubProvider{name: "a", opinion: Opinion{Score: 90}},
		&stubProvider{name: "b", opinion: Opinion{Score: 30}},
	)
	got := s.Score(context.Background(), nil)
	if !got.Available || got.Opinions != 2 {
		t.Fatalf("expected 2 opinions, got %+v", got)
	}
	if got.Score != 60 {
		t.Fatalf("expected mean score 60, got %f", got.Score)
	}
	if !got.LowAgreement {
		t.Fatal("expected low_agreement flag for widely split opinions")
	}
	if got.Recommendation != "buy" {
		t.Fatalf("unexpected recommendation: %s", got.Recommendation)
	}
}

func TestScoreAgreementNotFlagged(t *testing.T) {
	s := NewScorer(testTracer(), 20,
		&stubProvider{name: "a", opinion: Opinion{Score: 70}},
		&stubProvider{name: "b", opinion: Opinion{Score: 74}},
	)
	got := s.Score(context.Background(), nil)
	if got.LowAgreement {
		t.Fatal("expected close opinions to agree")
	}
}

func TestScoreSkipsFailingProviders(t *testing.T) {
	s := NewScorer(testTracer(), 20,
		&stubProvider{name: "broken", err: errors.New("upstream down")},
		&stubProvider{name: "ok", opinion: Opinion{Score: 55, Recommendation: "hold"}},
	)
	got := s.Score(context.Background(), nil)
	if !got.Available || got.Opinions != 1 {
		t.Fatalf("expected single surviving opinion, got %+v", got)
	}
	if got.Score != 55 {
		t.Fatalf("expected pass-through score 55, got %f", got.Score)
	}
}

func TestHeuristicProviderWeighsByProfit(t *testing.T) {
	p := NewHeuristicProvider()
	op, err := p.Opine(context.Background(), []domain.Opportunity{
		{ConfidenceScore: 90, ProfitPotentialUSD: 9000},
		{ConfidenceScore: 30, ProfitPotentialUSD: 0},
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if op.Score <= 60 {
		t.Fatalf("expected profit-weighted score above plain mean, got %f", op.Score)
	}
}

func TestHeuristicProviderEmptySet(t *testing.T) {
	p := NewHeuristicProvider()
	op, err := p.Opine(context.Background(), nil)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if op.Score != 0 || op.Recommendation != "avoid" {
		t.Fatalf("expected avoid opinion for empty scan, got %+v", op)
	}
}

func TestParseOpinionHandlesFencedJSON(t *testing.T) {
	op, err := parseOpinion("openai:test", "```json\n{\"score\": 82, \"recommendation\": \"strong_buy\"}\n```")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if op.Score != 82 || op.Recommendation != "strong_buy" {
		t.Fatalf("unexpected opinion: %+v", op)
	}
}

func TestParseOpinionRejectsProse(t *testing.T) {
	if _, err := parseOpinion("openai:test", "I think this looks great!"); err == nil {
		t.Fatal("expected parse error for non-JSON reply")
	}
}
