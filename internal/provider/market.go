package provider

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"net/http"
	"net/url"
	"sync"
	"time"

	"coinscout/internal/domain"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
)

const (
	defaultCandleLimit    = 100
	defaultCandleInterval = "1h"
	marketFetchWorkers    = 4
)

// MarketDataProvider builds point-in-time market snapshots from the upstream
// market data API. Per-symbol failures are logged and skipped so one thin
// order book never empties the whole snapshot.
type MarketDataProvider struct {
	tracer   trace.Tracer
	client   *http.Client
	baseURL  string
	interval string
	limit    int
	now      func() time.Time
}

func NewMarketDataProvider(tracer trace.Tracer, baseURL string, client *http.Client) *MarketDataProvider {
	if client == nil {
		client = &http.Client{Timeout: 10 * time.Second}
	}
	return &MarketDataProvider{
		tracer:   tracer,
		client:   client,
		baseURL:  baseURL,
		interval: defaultCandleInterval,
		limit:    defaultCandleLimit,
		now:      time.Now,
	}
}

type symbolPayload struct {
	Symbol      string  `json:"symbol"`
	Exchange    string  `json:"exchange"`
	LastPrice   float64 `json:"last_price"`
	Volume24h   float64 `json:"volume_24h"`
	FundingRate float64 `json:"funding_rate"`
	Candles     []struct {
		OpenTime int64   `json:"open_time"`
		Open     float64 `json:"open"`
		High     float64 `json:"high"`
		Low      float64 `json:"low"`
		Close    float64 `json:"close"`
		Volume   float64 `json:"volume"`
	} `json:"candles"`
}

// Snapshot fetches all symbols concurrently and assembles one immutable
// snapshot. It only fails when the context dies; an upstream that answers
// for no symbols yields an empty snapshot.
func (p *MarketDataProvider) Snapshot(ctx context.Context, symbols []string) (domain.MarketSnapshot, error) {
	ctx, span := p.tracer.Start(ctx, "provider.market-snapshot", trace.WithAttributes(
		attribute.Int("market.symbols", len(symbols)),
	))
	defer span.End()

	if err := ctx.Err(); err != nil {
		return domain.MarketSnapshot{}, err
	}

	snapshot := domain.MarketSnapshot{
		TakenAt: p.now(),
		Symbols: make(map[string]domain.SymbolData, len(symbols)),
	}

	var (
		mu   sync.Mutex
		wg   sync.WaitGroup
		jobs = make(chan string)
	)
	for i := 0; i < marketFetchWorkers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for symbol := range jobs {
				data, err := p.fetchSymbol(ctx, symbol)
				if err != nil {
					log.Printf("market data for %s unavailable: %v", symbol, err)
					continue
				}
				mu.Lock()
				snapshot.Symbols[symbol] = data
				mu.Unlock()
			}
		}()
	}

	for _, symbol := range symbols {
		select {
		case jobs <- symbol:
		case <-ctx.Done():
			close(jobs)
			wg.Wait()
			return domain.MarketSnapshot{}, ctx.Err()
		}
	}
	close(jobs)
	wg.Wait()

	span.SetAttributes(attribute.Int("market.symbols_fetched", len(snapshot.Symbols)))
	return snapshot, nil
}

func (p *MarketDataProvider) fetchSymbol(ctx context.Context, symbol string) (domain.SymbolData, error) {
	endpoint := fmt.Sprintf("%s/v1/market/%s?interval=%s&limit=%d",
		p.baseURL, url.PathEscape(symbol), p.interval, p.limit)

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return domain.SymbolData{}, err
	}
	resp, err := p.client.Do(req)
	if err != nil {
		return domain.SymbolData{}, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return domain.SymbolData{}, fmt.Errorf("market api returned %d for %s", resp.StatusCode, symbol)
	}

	var payload symbolPayload
	if err := json.NewDecoder(resp.Body).Decode(&payload); err != nil {
		return domain.SymbolData{}, fmt.Errorf("decode market payload for %s: %w", symbol, err)
	}

	data := domain.SymbolData{
		Symbol:      symbol,
		Exchange:    payload.Exchange,
		LastPrice:   payload.LastPrice,
		Volume24h:   payload.Volume24h,
		FundingRate: payload.FundingRate,
		Candles:     make([]domain.Candle, 0, len(payload.Candles)),
	}
	for _, c := range payload.Candles {
		data.Candles = append(data.Candles, domain.Candle{
			Symbol:   symbol,
			OpenTime: time.UnixMilli(c.OpenTime).UTC(),
			Open:     c.Open,
			High:     c.High,
			Low:      c.Low,
			Close:    c.Close,
			Volume:   c.Volume,
		})
	}
	return data, nil
}
