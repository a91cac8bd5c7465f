package job

import (
	"context"
	"log"
	"time"

	"coinscout/internal/domain"

	"go.opentelemetry.io/otel/trace"
)

const (
	defaultReapInterval = 5 * time.Minute
	defaultStaleAfter   = 10 * time.Minute
)

type ScanStateStore interface {
	ListStates(ctx context.Context) ([]domain.ScanState, error)
	PutState(ctx context.Context, state domain.ScanState) error
}

// ScanReaper sweeps the scan store for scans stuck in a non-terminal state,
// usually left behind by a crashed replica, and fails them so clients stop
// polling forever.
type ScanReaper struct {
	tracer     trace.Tracer
	store      ScanStateStore
	interval   time.Duration
	staleAfter time.Duration
	now        func() time.Time
}

func NewScanReaper(tracer trace.Tracer, store ScanStateStore, interval, staleAfter time.Duration) *ScanReaper {
	if interval <= 0 {
		interval = defaultReapInterval
	}
	if staleAfter <= 0 {
		staleAfter = defaultStaleAfter
	}
	return &ScanReaper{
		tracer:     tracer,
		store:      store,
		interval:   interval,
		staleAfter: staleAfter,
		now:        time.Now,
	}
}

// Start blocks until ctx is cancelled.
func (r *ScanReaper) Start(ctx context.Context) {
	log.Println("Scan reaper starting...")

	ticker := time.NewTicker(r.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			log.Println("Scan reaper stopped")
			return
		case <-ticker.C:
			if n := r.ReapOnce(ctx); n > 0 {
				log.Printf("Scan reaper failed %d stale scans", n)
			}
		}
	}
}

// ReapOnce marks every stale running scan as timed out and reports how many
// it touched.
func (r *ScanReaper) ReapOnce(ctx context.Context) int {
	ctx, span := r.tracer.Start(ctx, "job.scan-reaper")
	defer span.End()

	states, err := r.store.ListStates(ctx)
	if err != nil {
		log.Printf("scan reaper list error: %v", err)
		return 0
	}

	reaped := 0
	cutoff := r.now().Add(-r.staleAfter)
	for _, state := range states {
		if state.Status.IsTerminal() || state.UpdatedAt.After(cutoff) {
			continue
		}
		state.Status = domain.ScanTimedOut
		state.Error = "scan abandoned, no progress updates"
		state.UpdatedAt = r.now()
		if err := r.store.PutState(ctx, state); err != nil {
			log.Printf("scan reaper failed to update %s: %v", state.ScanID, err)
			continue
		}
		reaped++
	}
	return reaped
}
