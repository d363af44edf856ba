package db

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/extra/redisotel/v9"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/patrickwarner/adsimulator/internal/quality"
	"github.com/patrickwarner/adsimulator/internal/rsa"
)

// ErrSnapshotNotFound is returned when no snapshot exists under a key.
var ErrSnapshotNotFound = errors.New("snapshot not found")

const (
	qualityKeyPrefix = "adsim:qs:"
	adKeyPrefix      = "adsim:rsa:"
)

// SnapshotStore persists engine state to Redis as JSON documents.
type SnapshotStore struct {
	Client *redis.Client
	// TTL applied to every written snapshot. Zero keeps keys forever.
	TTL time.Duration
}

// InitRedis connects to Redis and returns a SnapshotStore.
func InitRedis(ctx context.Context, addr string, ttl time.Duration) (*SnapshotStore, error) {
	s := &SnapshotStore{
		Client: redis.NewClient(&redis.Options{Addr: addr}),
		TTL:    ttl,
	}

	if err := redisotel.InstrumentTracing(s.Client); err != nil {
		return nil, fmt.Errorf("failed to instrument redis tracing: %w", err)
	}

	if err := s.Client.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("failed to connect to Redis: %w", err)
	}
	zap.L().Info("Connected to Redis", zap.String("addr", addr), zap.Duration("snapshot_ttl", ttl))
	return s, nil
}

// NewSnapshotStore wraps an existing client.
func NewSnapshotStore(client *redis.Client, ttl time.Duration) *SnapshotStore {
	return &SnapshotStore{Client: client, TTL: ttl}
}

// SaveQualityScores stores the keyword states of a simulation run.
func (s *SnapshotStore) SaveQualityScores(ctx context.Context, runID string, states []quality.KeywordState) error {
	return s.put(ctx, qualityKeyPrefix+runID, states)
}

// LoadQualityScores returns the keyword states saved for a run.
func (s *SnapshotStore) LoadQualityScores(ctx context.Context, runID string) ([]quality.KeywordState, error) {
	var states []quality.KeywordState
	if err := s.get(ctx, qualityKeyPrefix+runID, &states); err != nil {
		return nil, err
	}
	return states, nil
}

// SaveAd stores a responsive search ad with its asset counters.
func (s *SnapshotStore) SaveAd(ctx context.Context, ad *rsa.Ad) error {
	if ad == nil {
		return errors.New("save ad: nil ad")
	}
	return s.put(ctx, adKeyPrefix+ad.ID, ad)
}

// LoadAd returns a previously saved ad.
func (s *SnapshotStore) LoadAd(ctx context.Context, adID string) (*rsa.Ad, error) {
	var ad rsa.Ad
	if err := s.get(ctx, adKeyPrefix+adID, &ad); err != nil {
		return nil, err
	}
	return &ad, nil
}

func (s *SnapshotStore) put(ctx context.Context, key string, v any) error {
	payload, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("encode %s: %w", key, err)
	}
	if err := s.Client.Set(ctx, key, payload, s.TTL).Err(); err != nil {
		return fmt.Errorf("write %s: %w", key, err)
	}
	return nil
}

func (s *SnapshotStore) get(ctx context.Context, key string, v any) error {
	payload, err := s.Client.Get(ctx, key).Bytes()
	if errors.Is(err, redis.Nil) {
		return fmt.Errorf("%s: %w", key, ErrSnapshotNotFound)
	}
	if err != nil {
		return fmt.Errorf("read %s: %w", key, err)
	}
	if err := json.Unmarshal(payload, v); err != nil {
		return fmt.Errorf("decode %s: %w", key, err)
	}
	return nil
}

// Close shuts down the Redis client.
func (s *SnapshotStore) Close() {
	if s != nil && s.Client != nil {
		if err := s.Client.Close(); err != nil {
			zap.L().Error("redis close", zap.Error(err))
		}
	}
}
