package worker

import (
	"context"
	"encoding/json"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
	"github.com/stemsi/exstem-engine/internal/config"
	"github.com/stemsi/exstem-engine/internal/model"
)

// PollTimeout must be >= 1s to satisfy Redis.
const PollTimeout = 1 * time.Second

// AutosaveWorker consumes persist_snapshots_queue and UPSERTs snapshots to
// PostgreSQL. Jobs are batched; within a batch only the newest job per
// attempt is written.
type AutosaveWorker struct {
	pool         *pgxpool.Pool
	rdb          *redis.Client
	log          zerolog.Logger
	batchSize    int
	batchTimeout time.Duration
}

// NewAutosaveWorker creates a new AutosaveWorker.
func NewAutosaveWorker(pool *pgxpool.Pool, rdb *redis.Client, cfg *config.Config, log zerolog.Logger) *AutosaveWorker {
	return &AutosaveWorker{
		pool:         pool,
		rdb:          rdb,
		log:          log.With().Str("component", "autosave_worker").Logger(),
		batchSize:    cfg.WorkerBatchSize,
		batchTimeout: cfg.WorkerBatchTimeout,
	}
}

// Start begins the infinite worker loop. Call in a goroutine.
func (w *AutosaveWorker) Start(ctx context.Context) {
	w.log.Info().Msg("Worker started")

	batch := make([]model.SnapshotJob, 0, w.batchSize)
	lastFlush := time.Now()

	for {
		if len(batch) > 0 &&
			(len(batch) >= w.batchSize || time.Since(lastFlush) >= w.batchTimeout) {
			w.flush(ctx, batch)
			batch = batch[:0]
			lastFlush = time.Now()
		}

		select {
		case <-ctx.Done():
			w.log.Info().Msg("Worker stopping...")
			w.flush(context.Background(), batch)
			w.drain(context.Background())
			w.log.Info().Msg("Worker stopped")
			return
		default:
			item, err := w.rdb.BLPop(ctx, PollTimeout, config.WorkerKey.PersistSnapshotsQueue).Result()
			if err != nil {
				if err != redis.Nil && ctx.Err() == nil {
					w.log.Error().Err(err).Msg("BLPop error")
				}
				continue
			}
			if len(item) < 2 {
				continue
			}

			var job model.SnapshotJob
			if err := json.Unmarshal([]byte(item[1]), &job); err != nil {
				w.log.Error().Err(err).Msg("Unmarshal error")
				continue
			}
			batch = append(batch, job)
		}
	}
}

// flush writes the batch in one transaction. On failure the jobs go back
// to the queue.
func (w *AutosaveWorker) flush(ctx context.Context, batch []model.SnapshotJob) {
	jobs := latestPerAttempt(batch)
	if len(jobs) == 0 {
		return
	}

	if err := w.persist(ctx, jobs); err != nil {
		w.log.Error().Err(err).Int("count", len(jobs)).Msg("Persist error, requeueing")
		w.requeue(ctx, jobs)
		return
	}
	w.log.Debug().Int("count", len(jobs)).Msg("Snapshots persisted")
}

func (w *AutosaveWorker) persist(ctx context.Context, jobs []model.SnapshotJob) error {
	b := &pgx.Batch{}
	for _, job := range jobs {
		id, err := uuid.Parse(job.AttemptID)
		if err != nil {
			w.log.Warn().Str("attempt_id", job.AttemptID).Msg("Dropping snapshot with invalid attempt id")
			continue
		}
		if len(job.Payload) == 0 {
			b.Queue(`DELETE FROM attempt_snapshots WHERE attempt_id = $1`, id)
			continue
		}
		b.Queue(
			`INSERT INTO attempt_snapshots (attempt_id, payload)
			 VALUES ($1, $2)
			 ON CONFLICT (attempt_id) DO UPDATE
			 SET payload = EXCLUDED.payload, updated_at = NOW()`,
			id, []byte(job.Payload),
		)
	}
	if b.Len() == 0 {
		return nil
	}
	return w.pool.SendBatch(ctx, b).Close()
}

func (w *AutosaveWorker) requeue(ctx context.Context, jobs []model.SnapshotJob) {
	pipe := w.rdb.Pipeline()
	for _, job := range jobs {
		raw, _ := json.Marshal(job)
		pipe.RPush(ctx, config.WorkerKey.PersistSnapshotsQueue, raw)
	}
	_, _ = pipe.Exec(ctx)
}

// drain processes all remaining items in the queue before shutdown.
func (w *AutosaveWorker) drain(ctx context.Context) {
	var jobs []model.SnapshotJob
	for {
		result, err := w.rdb.LPop(ctx, config.WorkerKey.PersistSnapshotsQueue).Result()
		if err != nil {
			break
		}
		var job model.SnapshotJob
		if err := json.Unmarshal([]byte(result), &job); err != nil {
			w.log.Error().Err(err).Msg("Drain unmarshal error")
			continue
		}
		jobs = append(jobs, job)
	}

	if len(jobs) > 0 {
		w.flush(ctx, jobs)
		w.log.Info().Int("count", len(jobs)).Msg("Drained remaining items")
	}
}

// latestPerAttempt keeps the last job of every attempt, ordered by each
// attempt's final position in the batch.
func latestPerAttempt(batch []model.SnapshotJob) []model.SnapshotJob {
	last := make(map[string]int, len(batch))
	for i, job := range batch {
		last[job.AttemptID] = i
	}
	out := make([]model.SnapshotJob, 0, len(last))
	for i, job := range batch {
		if last[job.AttemptID] == i {
			out = append(out, job)
		}
	}
	return out
}
