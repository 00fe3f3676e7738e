package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
	"github.com/stemsi/exstem-engine/internal/config"
	"github.com/stemsi/exstem-engine/internal/model"
	"github.com/stemsi/exstem-engine/internal/repository"
)

// SnapshotStore keeps autosave snapshots hot in Redis and queues them for
// PostgreSQL. Reads fall back to PostgreSQL when Redis has nothing.
type SnapshotStore struct {
	rdb         *redis.Client
	attemptRepo *repository.AttemptRepository
	ttl         time.Duration
	log         zerolog.Logger
}

// NewSnapshotStore creates a new SnapshotStore.
func NewSnapshotStore(rdb *redis.Client, attemptRepo *repository.AttemptRepository, ttl time.Duration, log zerolog.Logger) *SnapshotStore {
	return &SnapshotStore{
		rdb:         rdb,
		attemptRepo: attemptRepo,
		ttl:         ttl,
		log:         log.With().Str("component", "snapshot_store").Logger(),
	}
}

// Save stores the latest snapshot of an attempt.
func (s *SnapshotStore) Save(ctx context.Context, attemptID string, snapshot *model.Snapshot) error {
	raw, err := json.Marshal(snapshot)
	if err != nil {
		return fmt.Errorf("marshal snapshot: %w", err)
	}
	job, _ := json.Marshal(model.SnapshotJob{AttemptID: attemptID, Payload: raw})

	pipe := s.rdb.TxPipeline()
	pipe.Set(ctx, config.CacheKey.AttemptSnapshotKey(attemptID), raw, s.ttl)
	pipe.RPush(ctx, config.WorkerKey.PersistSnapshotsQueue, job)
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("save snapshot: %w", err)
	}
	return nil
}

// Load returns the stored snapshot, or nil when the attempt has none.
func (s *SnapshotStore) Load(ctx context.Context, attemptID string) (*model.Snapshot, error) {
	key := config.CacheKey.AttemptSnapshotKey(attemptID)
	raw, err := s.rdb.Get(ctx, key).Bytes()
	switch {
	case err == nil:
		var snap model.Snapshot
		if err := json.Unmarshal(raw, &snap); err != nil {
			return nil, fmt.Errorf("decode snapshot: %w", err)
		}
		return &snap, nil
	case !errors.Is(err, redis.Nil):
		return nil, fmt.Errorf("get snapshot: %w", err)
	}

	id, err := uuid.Parse(attemptID)
	if err != nil {
		return nil, nil
	}
	snap, err := s.attemptRepo.GetSnapshot(ctx, id)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get persisted snapshot: %w", err)
	}

	if fresh, err := json.Marshal(snap); err == nil {
		_ = s.rdb.Set(ctx, key, fresh, s.ttl)
	}
	s.log.Debug().Str("attempt_id", attemptID).Msg("Snapshot restored from PostgreSQL")
	return snap, nil
}

// Discard drops every stored snapshot of an attempt.
func (s *SnapshotStore) Discard(ctx context.Context, attemptID string) error {
	job, _ := json.Marshal(model.SnapshotJob{AttemptID: attemptID})

	pipe := s.rdb.TxPipeline()
	pipe.Del(ctx, config.CacheKey.AttemptSnapshotKey(attemptID))
	pipe.RPush(ctx, config.WorkerKey.PersistSnapshotsQueue, job)
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("discard snapshot: %w", err)
	}
	return nil
}
