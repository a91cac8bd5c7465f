package provider

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"time"

	"coinscout/internal/domain"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
)

// UserServiceProvider talks to the internal user service for strategy
// ownership and portfolio holdings. Both reads are snapshots: a profile
// fetched at scan start stays fixed for that scan even if the user edits
// their strategies mid-flight.
type UserServiceProvider struct {
	tracer  trace.Tracer
	client  *http.Client
	baseURL string
}

func NewUserServiceProvider(tracer trace.Tracer, baseURL string, client *http.Client) *UserServiceProvider {
	if client == nil {
		client = &http.Client{Timeout: 5 * time.Second}
	}
	return &UserServiceProvider{tracer: tracer, client: client, baseURL: baseURL}
}

func (p *UserServiceProvider) StrategyProfile(ctx context.Context, userID string) (domain.UserStrategyProfile, error) {
	ctx, span := p.tracer.Start(ctx, "provider.strategy-profile", trace.WithAttributes(
		attribute.String("user.id", userID),
	))
	defer span.End()

	var profile domain.UserStrategyProfile
	endpoint := fmt.Sprintf("%s/internal/users/%s/strategy-profile", p.baseURL, url.PathEscape(userID))
	if err := p.getJSON(ctx, endpoint, &profile); err != nil {
		return domain.UserStrategyProfile{}, err
	}
	if !profile.Tier.IsValid() {
		profile.Tier = domain.TierFree
	}
	return profile, nil
}

func (p *UserServiceProvider) Portfolio(ctx context.Context, userID string) (domain.PortfolioSnapshot, error) {
	ctx, span := p.tracer.Start(ctx, "provider.portfolio", trace.WithAttributes(
		attribute.String("user.id", userID),
	))
	defer span.End()

	var snapshot domain.PortfolioSnapshot
	endpoint := fmt.Sprintf("%s/internal/users/%s/portfolio", p.baseURL, url.PathEscape(userID))
	if err := p.getJSON(ctx, endpoint, &snapshot); err != nil {
		return domain.PortfolioSnapshot{}, err
	}
	return snapshot, nil
}

func (p *UserServiceProvider) getJSON(ctx context.Context, endpoint string, out any) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return err
	}
	resp, err := p.client.Do(req)
	if err != nil {
		return fmt.Errorf("user service unreachable: %w", err)
	}
	defer resp.Body.Close()

	switch resp.StatusCode {
	case http.StatusOK:
	case http.StatusNotFound:
		return ErrUserNotFound
	default:
		return fmt.Errorf("user service returned %d", resp.StatusCode)
	}
	return json.NewDecoder(resp.Body).Decode(out)
}
