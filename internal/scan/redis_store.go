package scan

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"coinscout/internal/domain"

	"github.com/redis/go-redis/v9"
)

const (
	stateKeyPrefix   = "scan:state:"
	resultsKeyPrefix = "scan:results:"
)

// RedisStore persists scan state as JSON values in Redis so that any API
// replica can answer status and results calls for a scan another replica is
// running. Terminal scans get a retention TTL on both keys.
type RedisStore struct {
	client    redis.Cmdable
	retention time.Duration
}

func NewRedisStore(client redis.Cmdable, retention time.Duration) *RedisStore {
	if retention <= 0 {
		retention = time.Hour
	}
	return &RedisStore{client: client, retention: retention}
}

func (s *RedisStore) PutState(ctx context.Context, state domain.ScanState) error {
	payload, err := json.Marshal(state)
	if err != nil {
		return fmt.Errorf("failed to marshal scan state: %w", err)
	}
	key := stateKeyPrefix + state.ScanID
	if !state.Status.IsTerminal() {
		return s.client.Set(ctx, key, payload, 0).Err()
	}
	if err := s.client.Set(ctx, key, payload, s.retention).Err(); err != nil {
		return err
	}
	return s.client.Expire(ctx, resultsKeyPrefix+state.ScanID, s.retention).Err()
}

func (s *RedisStore) GetState(ctx context.Context, scanID string) (domain.ScanState, error) {
	payload, err := s.client.Get(ctx, stateKeyPrefix+scanID).Bytes()
	if errors.Is(err, redis.Nil) {
		return domain.ScanState{}, ErrNotFound
	}
	if err != nil {
		return domain.ScanState{}, fmt.Errorf("failed to read scan state: %w", err)
	}
	var state domain.ScanState
	if err := json.Unmarshal(payload, &state); err != nil {
		return domain.ScanState{}, fmt.Errorf("failed to unmarshal scan state: %w", err)
	}
	return state, nil
}

func (s *RedisStore) PutResults(ctx context.Context, scanID string, results domain.ScanResults) error {
	payload, err := json.Marshal(results)
	if err != nil {
		return fmt.Errorf("failed to marshal scan results: %w", err)
	}
	return s.client.Set(ctx, resultsKeyPrefix+scanID, payload, 0).Err()
}

func (s *RedisStore) GetResults(ctx context.Context, scanID string) (domain.ScanResults, error) {
	payload, err := s.client.Get(ctx, resultsKeyPrefix+scanID).Bytes()
	if errors.Is(err, redis.Nil) {
		return domain.ScanResults{}, ErrNotFound
	}
	if err != nil {
		return domain.ScanResults{}, fmt.Errorf("failed to read scan results: %w", err)
	}
	var results domain.ScanResults
	if err := json.Unmarshal(payload, &results); err != nil {
		return domain.ScanResults{}, fmt.Errorf("failed to unmarshal scan results: %w", err)
	}
	return results, nil
}

func (s *RedisStore) ListStates(ctx context.Context) ([]domain.ScanState, error) {
	var states []domain.ScanState
	iter := s.client.Scan(ctx, 0, stateKeyPrefix+"*", 100).Iterator()
	for iter.Next(ctx) {
		payload, err := s.client.Get(ctx, iter.Val()).Bytes()
		if errors.Is(err, redis.Nil) {
			continue
		}
		if err != nil {
			return nil, fmt.Errorf("failed to read scan state: %w", err)
		}
		var state domain.ScanState
		if err := json.Unmarshal(payload, &state); err != nil {
			return nil, fmt.Errorf("failed to unmarshal scan state: %w", err)
		}
		states = append(states, state)
	}
	if err := iter.Err(); err != nil {
		return nil, fmt.Errorf("failed to scan state keys: %w", err)
	}
	return states, nil
}

func (s *RedisStore) Delete(ctx context.Context, scanID string) error {
	return s.client.Del(ctx, stateKeyPrefix+scanID, resultsKeyPrefix+scanID).Err()
}
