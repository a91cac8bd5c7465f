package service

import (
	"context"
	"errors"
	"fmt"
	"log"
	"strings"
	"time"

	"coinscout/internal/domain"
	"coinscout/internal/scan"
	"coinscout/internal/strategy"

	"github.com/redis/go-redis/v9"
	"go.opentelemetry.io/otel/trace"
)

const (
	dedupeKeyPrefix = "scan:active:"
	dedupeTTL       = 60 * time.Second
	persistTimeout  = 15 * time.Second
)

var (
	ErrNoActiveStrategies = errors.New("user has no active strategies")
	ErrInvalidRequest     = errors.New("invalid scan request")
)

type ScanOrchestrator interface {
	Start(ctx context.Context, in scan.StartInput) (domain.ScanState, error)
	Status(ctx context.Context, scanID string) (domain.ScanState, error)
	Results(ctx context.Context, scanID string) (domain.ScanResults, error)
	Cancel(ctx context.Context, scanID string) error
}

type ProfileProvider interface {
	StrategyProfile(ctx context.Context, userID string) (domain.UserStrategyProfile, error)
}

type UniverseResolver interface {
	Resolve(tier domain.UserTier) []string
}

type OpportunityWriter interface {
	InsertScanOpportunities(ctx context.Context, scanID, userID string, opportunities []domain.Opportunity) error
	ListRecent(ctx context.Context, userID string, limit int) ([]domain.Opportunity, error)
}

type AlertNotifier interface {
	ScanCompleted(userID string, results domain.ScanResults)
}

// DiscoveryService fronts the scan orchestrator with request validation,
// duplicate-scan suppression and completion side effects: opportunity
// history persistence and user alerts. History and alerts are both
// optional, everything else is required.
type DiscoveryService struct {
	tracer       trace.Tracer
	orchestrator ScanOrchestrator
	profiles     ProfileProvider
	universe     UniverseResolver
	registry     *strategy.Registry
	dedupe       redis.Cmdable
	history      OpportunityWriter
	alerts       AlertNotifier
	downstream   scan.ProgressNotifier
}

func NewDiscoveryService(
	tracer trace.Tracer,
	orchestrator ScanOrchestrator,
	profiles ProfileProvider,
	universe UniverseResolver,
	registry *strategy.Registry,
) *DiscoveryService {
	return &DiscoveryService{
		tracer:       tracer,
		orchestrator: orchestrator,
		profiles:     profiles,
		universe:     universe,
		registry:     registry,
	}
}

// WithDedupe suppresses duplicate scans per user for the dedupe TTL.
func (s *DiscoveryService) WithDedupe(client redis.Cmdable) *DiscoveryService {
	s.dedupe = client
	return s
}

// WithHistory persists completed scan opportunities.
func (s *DiscoveryService) WithHistory(history OpportunityWriter) *DiscoveryService {
	s.history = history
	return s
}

// WithAlerts notifies the user when their scan completes.
func (s *DiscoveryService) WithAlerts(alerts AlertNotifier) *DiscoveryService {
	s.alerts = alerts
	return s
}

// WithProgressForwarding forwards scan progress to a downstream notifier,
// typically the websocket hub.
func (s *DiscoveryService) WithProgressForwarding(n scan.ProgressNotifier) *DiscoveryService {
	s.downstream = n
	return s
}

// StartScan validates the request, resolves the user's strategy profile and
// tier universe, and hands a fully resolved scan to the orchestrator. When a
// recent scan for the same user is still running the existing scan is
// returned instead, unless the caller forces a refresh.
func (s *DiscoveryService) StartScan(ctx context.Context, req domain.ScanRequest) (domain.ScanState, error) {
	ctx, span := s.tracer.Start(ctx, "discovery-service.start-scan")
	defer span.End()

	userID := strings.TrimSpace(req.UserID)
	if userID == "" {
		return domain.ScanState{}, fmt.Errorf("%w: missing user id", ErrInvalidRequest)
	}

	if !req.ForceRefresh {
		if state, ok := s.reuseActiveScan(ctx, userID); ok {
			return state, nil
		}
	}

	profile, err := s.profiles.StrategyProfile(ctx, userID)
	if err != nil {
		return domain.ScanState{}, fmt.Errorf("resolve strategy profile: %w", err)
	}

	scanners, missing := s.registry.Resolve(profile.StrategyIDs)
	if len(missing) > 0 {
		log.Printf("user %s owns unknown strategies, skipping: %v", userID, missing)
	}
	if len(scanners) == 0 {
		return domain.ScanState{}, ErrNoActiveStrategies
	}

	symbols := s.universe.Resolve(profile.Tier)
	if profile.ScanLimit > 0 && len(symbols) > profile.ScanLimit {
		symbols = symbols[:profile.ScanLimit]
	}

	state, err := s.orchestrator.Start(ctx, scan.StartInput{
		UserID:        userID,
		Tier:          profile.Tier,
		Scanners:      scanners,
		Symbols:       symbols,
		Params:        strategy.DefaultParams(),
		WithConsensus: req.IncludeRecommendations,
	})
	if err != nil {
		return domain.ScanState{}, err
	}

	s.rememberActiveScan(ctx, userID, state.ScanID)
	return state, nil
}

// Status returns scan state, hiding scans that belong to other users.
func (s *DiscoveryService) Status(ctx context.Context, userID, scanID string) (domain.ScanState, error) {
	state, err := s.orchestrator.Status(ctx, scanID)
	if err != nil {
		return domain.ScanState{}, err
	}
	if state.UserID != userID {
		return domain.ScanState{}, scan.ErrNotFound
	}
	return state, nil
}

func (s *DiscoveryService) Results(ctx context.Context, userID, scanID string) (domain.ScanResults, error) {
	state, err := s.orchestrator.Status(ctx, scanID)
	if err != nil {
		return domain.ScanResults{}, err
	}
	if state.UserID != userID {
		return domain.ScanResults{}, scan.ErrNotFound
	}
	return s.orchestrator.Results(ctx, scanID)
}

func (s *DiscoveryService) Cancel(ctx context.Context, userID, scanID string) error {
	state, err := s.orchestrator.Status(ctx, scanID)
	if err != nil {
		return err
	}
	if state.UserID != userID {
		return scan.ErrNotFound
	}
	return s.orchestrator.Cancel(ctx, scanID)
}

// RecentOpportunities reads persisted scan history.
func (s *DiscoveryService) RecentOpportunities(ctx context.Context, userID string, limit int) ([]domain.Opportunity, error) {
	_, span := s.tracer.Start(ctx, "discovery-service.recent-opportunities")
	defer span.End()

	if s.history == nil {
		return nil, nil
	}
	return s.history.ListRecent(ctx, userID, limit)
}

// NotifyProgress implements scan.ProgressNotifier. Completed scans trigger
// persistence and alerts off the orchestrator's goroutine; everything is
// forwarded downstream for live progress streaming.
func (s *DiscoveryService) NotifyProgress(state domain.ScanState) {
	if s.downstream != nil {
		s.downstream.NotifyProgress(state)
	}
	if state.Status == domain.ScanCompleted {
		go s.persistCompleted(state)
	}
}

func (s *DiscoveryService) persistCompleted(state domain.ScanState) {
	ctx, cancel := context.WithTimeout(context.Background(), persistTimeout)
	defer cancel()

	results, err := s.orchestrator.Results(ctx, state.ScanID)
	if err != nil {
		log.Printf("scan %s: completed but results unavailable for persistence: %v", state.ScanID, err)
		return
	}
	if s.history != nil {
		if err := s.history.InsertScanOpportunities(ctx, state.ScanID, state.UserID, results.Opportunities); err != nil {
			log.Printf("scan %s: failed to persist opportunity history: %v", state.ScanID, err)
		}
	}
	if s.alerts != nil {
		s.alerts.ScanCompleted(state.UserID, results)
	}
}

func (s *DiscoveryService) reuseActiveScan(ctx context.Context, userID string) (domain.ScanState, bool) {
	if s.dedupe == nil {
		return domain.ScanState{}, false
	}
	scanID, err := s.dedupe.Get(ctx, dedupeKeyPrefix+userID).Result()
	if err != nil {
		if !errors.Is(err, redis.Nil) {
			log.Printf("scan dedupe lookup for %s failed: %v", userID, err)
		}
		return domain.ScanState{}, false
	}
	state, err := s.orchestrator.Status(ctx, scanID)
	if err != nil || state.Status.IsTerminal() {
		return domain.ScanState{}, false
	}
	return state, true
}

func (s *DiscoveryService) rememberActiveScan(ctx context.Context, userID, scanID string) {
	if s.dedupe == nil {
		return
	}
	if err := s.dedupe.Set(ctx, dedupeKeyPrefix+userID, scanID, dedupeTTL).Err(); err != nil {
		log.Printf("scan dedupe store for %s failed: %v", userID, err)
	}
}
