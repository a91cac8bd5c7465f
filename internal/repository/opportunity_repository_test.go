package repository

import (
	"context"
	"fmt"
	"testing"
	"time"

	"coinscout/internal/domain"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"go.opentelemetry.io/otel/trace"
)

func TestOpportunityRunMigrationsExecutesSchema(t *testing.T) {
	pool := &opportunityStubPool{}
	repo := NewOpportunityRepository(pool, trace.NewNoopTracerProvider().Tracer("test"))

	if err := repo.RunMigrations(context.Background()); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(pool.execSQL) == 0 {
		t.Fatal("expected Exec to be called")
	}
}

func TestOpportunityInsertBatchesStatements(t *testing.T) {
	batchResults := &opportunityStubBatchResults{}
	pool := &opportunityStubPool{batchResults: batchResults}
	repo := NewOpportunityRepository(pool, trace.NewNoopTracerProvider().Tracer("test"))

	opportunities := []domain.Opportunity{
		{
			StrategyID:         "momentum",
			Symbol:             "BTC",
			Exchange:           "binance",
			OpportunityType:    "momentum_long",
			ProfitPotentialUSD: 420,
			ConfidenceScore:    72,
			Risk:               domain.RiskMedium,
			DiscoveredAt:       time.Unix(0, 0).UTC(),
		},
		{
			StrategyID:      "breakout",
			Symbol:          "ETH",
			Exchange:        "binance",
			OpportunityType: "breakout_long",
			ConfidenceScore: 61,
			Risk:            domain.RiskHigh,
			Metadata:        map[string]string{"band_width": "0.05"},
			DiscoveredAt:    time.Unix(3600, 0).UTC(),
		},
	}
	if err := repo.InsertScanOpportunities(context.Background(), "scan-1", "user-1", opportunities); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if pool.queuedBatch == nil || pool.queuedBatch.Len() != len(opportunities) {
		t.Fatalf("expected batch of size %d", len(opportunities))
	}
	if batchResults.execCalls != len(opportunities) {
		t.Fatalf("expected %d Exec calls, got %d", len(opportunities), batchResults.execCalls)
	}
}

func TestOpportunityInsertEmptyIsNoop(t *testing.T) {
	pool := &opportunityStubPool{}
	repo := NewOpportunityRepository(pool, trace.NewNoopTracerProvider().Tracer("test"))

	if err := repo.InsertScanOpportunities(context.Background(), "scan-1", "user-1", nil); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if pool.queuedBatch != nil {
		t.Fatal("expected no batch for empty insert")
	}
}

func TestOpportunityListRecentReturnsRows(t *testing.T) {
	now := time.Now().UTC().Truncate(time.Second)
	rows := [][]any{{
		"momentum", "BTC", "binance", "momentum_long", float64(420), float64(72),
		"medium", float64(10000), "1-3 days", float64(50000), float64(52000), []byte(`{"trend":"0.03"}`), now,
	}}
	pool := &opportunityStubPool{rowsData: rows}
	repo := NewOpportunityRepository(pool, trace.NewNoopTracerProvider().Tracer("test"))

	opportunities, err := repo.ListRecent(context.Background(), "user-1", 10)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(opportunities) != 1 {
		t.Fatalf("expected 1 opportunity, got %d", len(opportunities))
	}
	o := opportunities[0]
	if o.Symbol != "BTC" || o.Risk != domain.RiskMedium || o.ConfidenceScore != 72 {
		t.Fatalf("unexpected opportunity payload: %+v", o)
	}
	if o.Metadata["trend"] != "0.03" {
		t.Fatalf("expected metadata to be decoded, got %+v", o.Metadata)
	}
}

type opportunityStubPool struct {
	execSQL      []string
	batchResults pgx.BatchResults
	queuedBatch  *pgx.Batch
	rowsData     [][]any
}

func (s *opportunityStubPool) Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error) {
	s.execSQL = append(s.execSQL, sql)
	return pgconn.CommandTag{}, nil
}

func (s *opportunityStubPool) SendBatch(ctx context.Context, b *pgx.Batch) pgx.BatchResults {
	s.queuedBatch = b
	if s.batchResults != nil {
		return s.batchResults
	}
	return &opportunityStubBatchResults{}
}

func (s *opportunityStubPool) Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error) {
	if s.rowsData == nil {
		return &opportunityStubRows{}, nil
	}
	dataCopy := make([][]any, len(s.rowsData))
	for i := range s.rowsData {
		row := make([]any, len(s.rowsData[i]))
		copy(row, s.rowsData[i])
		dataCopy[i] = row
	}
	return &opportunityStubRows{data: dataCopy}, nil
}

func (s *opportunityStubPool) QueryRow(ctx context.Context, sql string, args ...any) pgx.Row {
	return &opportunityStubRow{}
}

type opportunityStubBatchResults struct {
	execCalls int
}

func (s *opportunityStubBatchResults) Exec() (pgconn.CommandTag, error) {
	s.execCalls++
	return pgconn.CommandTag{}, nil
}

func (s *opportunityStubBatchResults) Query() (pgx.Rows, error) { return &opportunityStubRows{}, nil }

func (s *opportunityStubBatchResults) QueryRow() pgx.Row { return &opportunityStubRow{} }

func (s *opportunityStubBatchResults) Close() error { return nil }

type opportunityStubRows struct {
	data [][]any
	idx  int
}

func (r *opportunityStubRows) Close() {}

func (r *opportunityStubRows) Err() error { return nil }

func (r *opportunityStubRows) CommandTag() pgconn.CommandTag { return pgconn.CommandTag{} }

func (r *opportunityStubRows) FieldDescriptions() []pgconn.FieldDescription { return nil }

func (r *opportunityStubRows) Next() bool {
	if len(r.data) == 0 || r.idx >= len(r.data) {
		return false
	}
	r.idx++
	return true
}

func (r *opportunityStubRows) Scan(dest ...any) error {
	if r.idx == 0 || r.idx > len(r.data) {
		return fmt.Errorf("invalid scan index")
	}
	row := r.data[r.idx-1]
	for i, d := range dest {
		switch ptr := d.(type) {
		case *string:
			*ptr = row[i].(string)
		case *float64:
			*ptr = row[i].(float64)
		case *[]byte:
			*ptr = row[i].([]byte)
		case *time.Time:
			*ptr = row[i].(time.Time)
		default:
			return fmt.Errorf("unsupported dest type %T", d)
		}
	}
	return nil
}

func (r *opportunityStubRows) Values() ([]any, error) { return nil, nil }

func (r *opportunityStubRows) RawValues() [][]byte { return nil }

func (r *opportunityStubRows) Conn() *pgx.Conn { return nil }

type opportunityStubRow struct{}

func (opportunityStubRow) Scan(dest ...any) error { return nil }
