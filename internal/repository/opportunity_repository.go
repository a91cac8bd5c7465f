package repository

import (
	"context"
	"encoding/json"
	"time"

	"coinscout/internal/domain"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"go.opentelemetry.io/otel/trace"
)

type PgxPool interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	SendBatch(ctx context.Context, b *pgx.Batch) pgx.BatchResults
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

// OpportunityRepository persists discovered opportunities so users can
// review past scans after the hot scan state has expired from Redis.
type OpportunityRepository struct {
	pool   PgxPool
	tracer trace.Tracer
}

func NewOpportunityRepository(pool PgxPool, tracer trace.Tracer) *OpportunityRepository {
	return &OpportunityRepository{pool: pool, tracer: tracer}
}

func (r *OpportunityRepository) RunMigrations(ctx context.Context) error {
	_, err := r.pool.Exec(ctx, `
		CREATE TABLE IF NOT EXISTS opportunities (
			id BIGSERIAL PRIMARY KEY,
			scan_id TEXT NOT NULL,
			user_id TEXT NOT NULL,
			strategy_id TEXT NOT NULL,
			symbol TEXT NOT NULL,
			exchange TEXT NOT NULL DEFAULT '',
			opportunity_type TEXT NOT NULL,
			profit_potential_usd DOUBLE PRECISION NOT NULL,
			confidence_score DOUBLE PRECISION NOT NULL,
			risk_level TEXT NOT NULL,
			required_capital_usd DOUBLE PRECISION NOT NULL,
			timeframe TEXT NOT NULL DEFAULT '',
			entry_price DOUBLE PRECISION,
			exit_price DOUBLE PRECISION,
			metadata JSONB,
			discovered_at TIMESTAMPTZ NOT NULL,
			UNIQUE (scan_id, strategy_id, symbol, exchange)
		);
		CREATE INDEX IF NOT EXISTS idx_opportunities_user_discovered
			ON opportunities (user_id, discovered_at DESC);
	`)
	return err
}

func (r *OpportunityRepository) InsertScanOpportunities(ctx context.Context, scanID, userID string, opportunities []domain.Opportunity) error {
	if len(opportunities) == 0 {
		return nil
	}

	_, span := r.tracer.Start(ctx, "opportunity-repo.insert-scan-opportunities")
	defer span.End()

	batch := &pgx.Batch{}
	for _, o := range opportunities {
		var metadata []byte
		if len(o.Metadata) > 0 {
			metadata, _ = json.Marshal(o.Metadata)
		}
		batch.Queue(
			`INSERT INTO opportunities (scan_id, user_id, strategy_id, symbol, exchange, opportunity_type,
			     profit_potential_usd, confidence_score, risk_level, required_capital_usd, timeframe,
			     entry_price, exit_price, metadata, discovered_at)
			 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15)
			 ON CONFLICT (scan_id, strategy_id, symbol, exchange) DO UPDATE SET
			     profit_potential_usd = EXCLUDED.profit_potential_usd,
			     confidence_score = EXCLUDED.confidence_score,
			     metadata = EXCLUDED.metadata`,
			scanID,
			userID,
			o.StrategyID,
			o.Symbol,
			o.Exchange,
			o.OpportunityType,
			o.ProfitPotentialUSD,
			o.ConfidenceScore,
			string(o.Risk),
			o.RequiredCapitalUSD,
			o.EstimatedTimeframe,
			o.EntryPrice,
			o.ExitPrice,
			metadata,
			o.DiscoveredAt.UTC(),
		)
	}

	br := r.pool.SendBatch(ctx, batch)
	defer br.Close()

	for range opportunities {
		if _, err := br.Exec(); err != nil {
			return err
		}
	}
	return nil
}

func (r *OpportunityRepository) ListRecent(ctx context.Context, userID string, limit int) ([]domain.Opportunity, error) {
	_, span := r.tracer.Start(ctx, "opportunity-repo.list-recent")
	defer span.End()

	if limit <= 0 {
		limit = 50
	}
	if limit > 200 {
		limit = 200
	}

	rows, err := r.pool.Query(ctx,
		`SELECT strategy_id, symbol, exchange, opportunity_type, profit_potential_usd, confidence_score,
		        risk_level, required_capital_usd, timeframe,
		        COALESCE(entry_price, 0), COALESCE(exit_price, 0), COALESCE(metadata, 'null'), discovered_at
		 FROM opportunities
		 WHERE user_id = $1
		 ORDER BY discovered_at DESC
		 LIMIT $2`,
		userID, limit,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	opportunities := make([]domain.Opportunity, 0, limit)
	for rows.Next() {
		var o domain.Opportunity
		var risk string
		var metadata []byte
		var discoveredAt time.Time

		if err := rows.Scan(
			&o.StrategyID,
			&o.Symbol,
			&o.Exchange,
			&o.OpportunityType,
			&o.ProfitPotentialUSD,
			&o.ConfidenceScore,
			&risk,
			&o.RequiredCapitalUSD,
			&o.EstimatedTimeframe,
			&o.EntryPrice,
			&o.ExitPrice,
			&metadata,
			&discoveredAt,
		); err != nil {
			return nil, err
		}
		o.Risk = domain.RiskLevel(risk)
		o.DiscoveredAt = discoveredAt.UTC()
		if len(metadata) > 0 {
			_ = json.Unmarshal(metadata, &o.Metadata)
		}
		opportunities = append(opportunities, o)
	}
	return opportunities, rows.Err()
}
