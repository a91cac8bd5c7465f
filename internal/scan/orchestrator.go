package scan

import (
	"context"
	"fmt"
	"log"
	"sync"
	"time"

	"coinscout/internal/domain"
	"coinscout/internal/rank"
	"coinscout/internal/strategy"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
)

const (
	defaultScanTimeout    = 120 * time.Second
	defaultScannerTimeout = 15 * time.Second
)

var workersByTier = map[domain.UserTier]int{
	domain.TierFree:  2,
	domain.TierBasic: 4,
	domain.TierPro:   6,
	domain.TierElite: 10,
}

// MarketProvider supplies the point-in-time market snapshot a scan runs
// against. The orchestrator fetches it once per scan so every strategy sees
// the same data.
type MarketProvider interface {
	Snapshot(ctx context.Context, symbols []string) (domain.MarketSnapshot, error)
}

// ConsensusScorer annotates a ranked opportunity set with a consensus view.
type ConsensusScorer interface {
	Score(ctx context.Context, opportunities []domain.Opportunity) domain.Consensus
}

// ProgressNotifier receives every state transition of a running scan.
type ProgressNotifier interface {
	NotifyProgress(state domain.ScanState)
}

// Config tunes orchestrator timeouts. Zero values take defaults.
type Config struct {
	ScanTimeout    time.Duration
	ScannerTimeout time.Duration
}

// StartInput is a fully resolved scan: the caller has already validated the
// user, resolved strategy ownership to scanners and bounded the universe.
type StartInput struct {
	UserID        string
	Tier          domain.UserTier
	Scanners      []strategy.Scanner
	Symbols       []string
	Params        strategy.Params
	WithConsensus bool
}

type runningScan struct {
	cancel    context.CancelFunc
	once      sync.Once
	mu        sync.Mutex
	cancelled bool
	// Highest StrategiesCompleted written so far. Progress snapshots are
	// computed under a different lock than the store write, so writes can
	// arrive out of order.
	lastCompleted int
}

// Orchestrator runs the scan lifecycle: initiated -> scanning -> one of
// completed, failed, timed_out. Strategy failures never fail the scan; the
// only failed scans are setup errors and user cancellations.
type Orchestrator struct {
	tracer   trace.Tracer
	store    Store
	market   MarketProvider
	ranker   *rank.Ranker
	scorer   ConsensusScorer
	notifier ProgressNotifier

	scanTimeout    time.Duration
	scannerTimeout time.Duration

	mu      sync.Mutex
	running map[string]*runningScan

	now   func() time.Time
	newID func() string
}

func NewOrchestrator(tracer trace.Tracer, store Store, market MarketProvider, scorer ConsensusScorer, cfg Config) *Orchestrator {
	if cfg.ScanTimeout <= 0 {
		cfg.ScanTimeout = defaultScanTimeout
	}
	if cfg.ScannerTimeout <= 0 {
		cfg.ScannerTimeout = defaultScannerTimeout
	}
	return &Orchestrator{
		tracer:         tracer,
		store:          store,
		market:         market,
		ranker:         rank.NewRanker(),
		scorer:         scorer,
		scanTimeout:    cfg.ScanTimeout,
		scannerTimeout: cfg.ScannerTimeout,
		running:        make(map[string]*runningScan),
		now:            time.Now,
		newID:          uuid.NewString,
	}
}

// SetProgressNotifier must be called before the first Start.
func (o *Orchestrator) SetProgressNotifier(n ProgressNotifier) {
	o.notifier = n
}

// Start persists the initiated state before returning, so a status poll
// issued the moment the caller gets the scan id always finds it. The scan
// itself runs on a detached context: the HTTP request ending must not kill
// an in-flight scan.
func (o *Orchestrator) Start(ctx context.Context, in StartInput) (domain.ScanState, error) {
	ctx, span := o.tracer.Start(ctx, "scan.start")
	defer span.End()

	scanID := o.newID()
	span.SetAttributes(
		attribute.String("scan.id", scanID),
		attribute.String("user.id", in.UserID),
		attribute.Int("scan.strategies", len(in.Scanners)),
	)

	now := o.now()
	state := domain.ScanState{
		ScanID:          scanID,
		UserID:          in.UserID,
		Status:          domain.ScanInitiated,
		StrategiesTotal: len(in.Scanners),
		CreatedAt:       now,
		UpdatedAt:       now,
	}
	if err := o.store.PutState(ctx, state); err != nil {
		return domain.ScanState{}, fmt.Errorf("failed to persist initial scan state: %w", err)
	}
	o.notify(state)

	runCtx, cancel := context.WithTimeout(context.Background(), o.scanTimeout)
	rs := &runningScan{cancel: cancel}
	o.mu.Lock()
	o.running[scanID] = rs
	o.mu.Unlock()

	go o.run(runCtx, rs, state, in)
	return state, nil
}

// Status reads the current lifecycle state of a scan.
func (o *Orchestrator) Status(ctx context.Context, scanID string) (domain.ScanState, error) {
	return o.store.GetState(ctx, scanID)
}

// Results returns the stored results of a finished scan. A running scan is
// ErrNotReady, a failed scan surfaces its stored error, and timed-out scans
// return whatever partial results were collected.
func (o *Orchestrator) Results(ctx context.Context, scanID string) (domain.ScanResults, error) {
	state, err := o.store.GetState(ctx, scanID)
	if err != nil {
		return domain.ScanResults{}, err
	}
	switch state.Status {
	case domain.ScanInitiated, domain.ScanScanning:
		return domain.ScanResults{}, ErrNotReady
	case domain.ScanFailed:
		return domain.ScanResults{}, &FailedError{ScanID: scanID, Reason: state.Error}
	}
	return o.store.GetResults(ctx, scanID)
}

// Cancel stops a running scan. The terminal failed state is written here so
// the caller observes it immediately; the worker goroutines unwind on their
// own once the context dies.
func (o *Orchestrator) Cancel(ctx context.Context, scanID string) error {
	state, err := o.store.GetState(ctx, scanID)
	if err != nil {
		return err
	}
	if state.Status.IsTerminal() {
		return ErrAlreadyTerminal
	}

	o.mu.Lock()
	rs, ok := o.running[scanID]
	o.mu.Unlock()
	if !ok {
		// Started by another replica. Best effort: mark it failed in the
		// shared store and let that replica's workers notice the state.
		return o.finalizeState(ctx, nil, state, domain.ScanFailed, "scan cancelled")
	}

	// The flag and the terminal write share rs.mu with every progress
	// write, so a worker can never resurrect a cancelled scan.
	rs.mu.Lock()
	rs.cancelled = true
	err = o.finalizeState(ctx, rs, state, domain.ScanFailed, "scan cancelled")
	rs.mu.Unlock()
	rs.cancel()
	return err
}

func (o *Orchestrator) run(ctx context.Context, rs *runningScan, state domain.ScanState, in StartInput) {
	ctx, span := o.tracer.Start(ctx, "scan.run")
	defer span.End()
	defer o.forget(state.ScanID)

	snapshot, err := o.market.Snapshot(ctx, in.Symbols)
	if err != nil {
		// Degrade rather than fail: scanners see no history and emit
		// nothing, the scan completes empty.
		log.Printf("scan %s: market snapshot failed, proceeding without data: %v", state.ScanID, err)
		snapshot = domain.MarketSnapshot{TakenAt: o.now()}
	}

	state.Status = domain.ScanScanning
	state.UpdatedAt = o.now()
	o.putStateGuarded(ctx, rs, state)

	var (
		resMu          sync.Mutex
		candidates     []domain.Opportunity
		strategyResult = make(map[string]domain.StrategyResult, len(in.Scanners))
	)

	jobs := make(chan strategy.Scanner)
	workers := workersByTier[in.Tier]
	if workers <= 0 {
		workers = workersByTier[domain.TierFree]
	}

	var wg sync.WaitGroup
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for s := range jobs {
				found, result := o.runScanner(ctx, s, in, snapshot)

				resMu.Lock()
				candidates = append(candidates, found...)
				strategyResult[s.ID()] = result
				state.StrategiesCompleted = len(strategyResult)
				state.ProgressPct = 100 * state.StrategiesCompleted / state.StrategiesTotal
				state.UpdatedAt = o.now()
				progress := state
				resMu.Unlock()

				o.putStateGuarded(ctx, rs, progress)
			}
		}()
	}

dispatch:
	for _, s := range in.Scanners {
		select {
		case jobs <- s:
		case <-ctx.Done():
			break dispatch
		}
	}
	close(jobs)
	wg.Wait()

	o.finalize(ctx, rs, state, in, candidates, strategyResult)
}

// runScanner isolates one strategy: its own timeout, its own panic boundary.
// One misbehaving strategy costs the scan that strategy's results, nothing
// more.
func (o *Orchestrator) runScanner(ctx context.Context, s strategy.Scanner, in StartInput, snapshot domain.MarketSnapshot) (found []domain.Opportunity, result domain.StrategyResult) {
	ctx, cancel := context.WithTimeout(ctx, o.scannerTimeout)
	defer cancel()
	ctx, span := o.tracer.Start(ctx, "scan.strategy", trace.WithAttributes(
		attribute.String("strategy.id", s.ID()),
	))
	defer span.End()

	started := o.now()
	result = domain.StrategyResult{StrategyID: s.ID()}
	defer func() {
		if r := recover(); r != nil {
			log.Printf("strategy %s panicked: %v", s.ID(), r)
			found = nil
			result.OpportunitiesFound = 0
			result.Error = fmt.Sprintf("panic: %v", r)
		}
		result.Duration = o.now().Sub(started)
	}()

	found, err := s.Scan(ctx, in.Symbols, snapshot, in.Params)
	if err != nil {
		log.Printf("strategy %s failed: %v", s.ID(), err)
		return nil, domain.StrategyResult{StrategyID: s.ID(), Error: err.Error()}
	}
	result.OpportunitiesFound = len(found)
	return found, result
}

func (o *Orchestrator) finalize(ctx context.Context, rs *runningScan, state domain.ScanState, in StartInput, candidates []domain.Opportunity, strategyResult map[string]domain.StrategyResult) {
	// The run context may already be dead; terminal writes get their own.
	storeCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	rs.mu.Lock()
	cancelled := rs.cancelled
	rs.mu.Unlock()
	if cancelled {
		// Cancel already wrote the terminal state through the once.
		return
	}

	ranked := o.ranker.Rank(candidates)
	results := domain.ScanResults{
		ScanID:          state.ScanID,
		Success:         true,
		Total:           len(ranked),
		Opportunities:   ranked,
		StrategyResults: strategyResult,
	}
	if in.WithConsensus && o.scorer != nil {
		c := o.scorer.Score(storeCtx, ranked)
		results.Consensus = &c
	}
	if err := o.store.PutResults(storeCtx, state.ScanID, results); err != nil {
		log.Printf("scan %s: failed to persist results: %v", state.ScanID, err)
	}

	status := domain.ScanCompleted
	if ctx.Err() == context.DeadlineExceeded {
		status = domain.ScanTimedOut
	}
	if err := o.finalizeState(storeCtx, rs, state, status, ""); err != nil {
		log.Printf("scan %s: failed to persist terminal state: %v", state.ScanID, err)
	}
}

// finalizeState writes the terminal state exactly once per scan.
func (o *Orchestrator) finalizeState(ctx context.Context, rs *runningScan, state domain.ScanState, status domain.ScanStatus, reason string) error {
	write := func() error {
		state.Status = status
		state.Error = reason
		state.UpdatedAt = o.now()
		if status == domain.ScanCompleted {
			state.ProgressPct = 100
		}
		if err := o.store.PutState(ctx, state); err != nil {
			return err
		}
		o.notify(state)
		return nil
	}
	if rs == nil {
		return write()
	}
	var err error
	rs.once.Do(func() { err = write() })
	return err
}

// putStateGuarded writes a progress update unless the scan has been
// cancelled in the meantime or a newer snapshot already landed; dropping
// stale snapshots keeps strategies_completed non-decreasing across status
// reads.
func (o *Orchestrator) putStateGuarded(ctx context.Context, rs *runningScan, state domain.ScanState) {
	rs.mu.Lock()
	defer rs.mu.Unlock()
	if rs.cancelled || state.StrategiesCompleted < rs.lastCompleted {
		return
	}
	rs.lastCompleted = state.StrategiesCompleted
	if err := o.store.PutState(ctx, state); err != nil {
		log.Printf("scan %s: failed to persist progress: %v", state.ScanID, err)
		return
	}
	o.notify(state)
}

func (o *Orchestrator) notify(state domain.ScanState) {
	if o.notifier != nil {
		o.notifier.NotifyProgress(state)
	}
}

func (o *Orchestrator) forget(scanID string) {
	o.mu.Lock()
	delete(o.running, scanID)
	o.mu.Unlock()
}
