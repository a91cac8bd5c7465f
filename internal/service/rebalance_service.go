package service

import (
	"context"
	"fmt"
	"math"
	"strings"

	"coinscout/internal/domain"

	"go.opentelemetry.io/otel/trace"
)

const weightSumTolerance = 0.01

type PortfolioProvider interface {
	Portfolio(ctx context.Context, userID string) (domain.PortfolioSnapshot, error)
}

type TradeGenerator interface {
	GenerateTrades(snapshot domain.PortfolioSnapshot, targetWeights map[string]float64) (domain.RebalancePlan, error)
}

// RebalanceService validates target allocations and turns them into a trade
// plan against the user's live portfolio.
type RebalanceService struct {
	tracer    trace.Tracer
	portfolio PortfolioProvider
	engine    TradeGenerator
}

func NewRebalanceService(tracer trace.Tracer, portfolio PortfolioProvider, engine TradeGenerator) *RebalanceService {
	return &RebalanceService{tracer: tracer, portfolio: portfolio, engine: engine}
}

func (s *RebalanceService) PlanRebalance(ctx context.Context, userID string, targetWeights map[string]float64) (domain.RebalancePlan, error) {
	ctx, span := s.tracer.Start(ctx, "rebalance-service.plan-rebalance")
	defer span.End()

	if strings.TrimSpace(userID) == "" {
		return domain.RebalancePlan{}, fmt.Errorf("%w: missing user id", ErrInvalidRequest)
	}
	if err := validateWeights(targetWeights); err != nil {
		return domain.RebalancePlan{}, err
	}

	snapshot, err := s.portfolio.Portfolio(ctx, userID)
	if err != nil {
		return domain.RebalancePlan{}, fmt.Errorf("fetch portfolio: %w", err)
	}
	return s.engine.GenerateTrades(snapshot, targetWeights)
}

func validateWeights(weights map[string]float64) error {
	if len(weights) == 0 {
		return fmt.Errorf("%w: no target weights", ErrInvalidRequest)
	}
	sum := 0.0
	for symbol, w := range weights {
		if strings.TrimSpace(symbol) == "" {
			return fmt.Errorf("%w: empty symbol in target weights", ErrInvalidRequest)
		}
		if w < 0 {
			return fmt.Errorf("%w: negative weight for %s", ErrInvalidRequest, symbol)
		}
		sum += w
	}
	if math.Abs(sum-1) > weightSumTolerance {
		return fmt.Errorf("%w: target weights sum to %.4f, expected 1.0", ErrInvalidRequest, sum)
	}
	return nil
}
