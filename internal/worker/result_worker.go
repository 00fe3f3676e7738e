package worker

import (
	"context"
	"encoding/json"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
	"github.com/stemsi/exstem-engine/internal/config"
	"github.com/stemsi/exstem-engine/internal/model"
)

type ResultWorker struct {
	pool         *pgxpool.Pool
	rdb          *redis.Client
	log          zerolog.Logger
	batchSize    int
	batchTimeout time.Duration
}

func NewResultWorker(pool *pgxpool.Pool, rdb *redis.Client, cfg *config.Config, log zerolog.Logger) *ResultWorker {
	return &ResultWorker{
		pool:         pool,
		rdb:          rdb,
		log:          log.With().Str("component", "result_worker").Logger(),
		batchSize:    cfg.WorkerBatchSize,
		batchTimeout: cfg.WorkerBatchTimeout,
	}
}

// ----------------------------------------------------------------
// Worker loop with batching
// ----------------------------------------------------------------

func (w *ResultWorker) Start(ctx context.Context) {
	w.log.Info().Msg("ResultWorker started")

	batch := make([]*model.ResultJob, 0, w.batchSize)
	lastFlush := time.Now()

	for {
		if len(batch) > 0 &&
			(len(batch) >= w.batchSize || time.Since(lastFlush) >= w.batchTimeout) {

			w.flushSafe(ctx, batch)
			batch = batch[:0]
			lastFlush = time.Now()
		}

		select {
		case <-ctx.Done():
			w.log.Info().Msg("Shutdown requested. Flushing remaining batch...")
			w.flushSafe(context.Background(), batch)
			return

		default:
			item, err := w.rdb.BLPop(ctx, PollTimeout, config.WorkerKey.PersistResultsQueue).Result()
			if err != nil {
				if err != redis.Nil && ctx.Err() == nil {
					w.log.Error().Err(err).Msg("BLPop error")
				}
				continue
			}

			if len(item) < 2 {
				continue
			}

			var p model.ResultJob
			if err := json.Unmarshal([]byte(item[1]), &p); err != nil {
				w.log.Error().Err(err).Msg("Invalid JSON payload")
				continue
			}

			batch = append(batch, &p)
		}
	}
}

// ----------------------------------------------------------------
// Batch update wrapper
// ----------------------------------------------------------------

func (w *ResultWorker) flushSafe(ctx context.Context, batch []*model.ResultJob) {
	if len(batch) == 0 {
		return
	}

	if err := w.bulkComplete(ctx, batch); err != nil {
		w.log.Warn().Err(err).Msg("bulk result update failed, using fallback")

		for _, p := range batch {
			if err := w.persistSingle(ctx, p); err != nil {
				w.log.Error().Err(err).Str("attempt_id", p.AttemptID).Msg("persistSingle failed, requeueing")
				raw, _ := json.Marshal(p)
				w.rdb.RPush(ctx, config.WorkerKey.PersistResultsQueue, raw)
			}
		}
		return
	}

	// Completed attempts no longer need their autosave snapshot.
	w.bulkClearSnapshots(ctx, batch)
}

// resultColumns is a batch split into UNNEST-ready column arrays. Jobs
// with unparseable attempt ids are left out.
type resultColumns struct {
	ids         []uuid.UUID
	scores      []float64
	correct     []int
	timeSpent   []int
	answers     [][]byte
	finishedAts []time.Time
}

func columnsOf(batch []*model.ResultJob) resultColumns {
	n := len(batch)
	cols := resultColumns{
		ids:         make([]uuid.UUID, 0, n),
		scores:      make([]float64, 0, n),
		correct:     make([]int, 0, n),
		timeSpent:   make([]int, 0, n),
		answers:     make([][]byte, 0, n),
		finishedAts: make([]time.Time, 0, n),
	}
	for _, p := range batch {
		id, err := uuid.Parse(p.AttemptID)
		if err != nil {
			continue
		}
		raw, err := json.Marshal(p.Answers)
		if err != nil {
			raw = []byte("{}")
		}
		finished := p.FinishedAt
		if finished.IsZero() {
			finished = time.Now()
		}
		cols.ids = append(cols.ids, id)
		cols.scores = append(cols.scores, p.Score)
		cols.correct = append(cols.correct, p.CorrectAnswers)
		cols.timeSpent = append(cols.timeSpent, p.TimeSpentSeconds)
		cols.answers = append(cols.answers, raw)
		cols.finishedAts = append(cols.finishedAts, finished)
	}
	return cols
}

// ----------------------------------------------------------------
// BULK PostgreSQL UPDATE using UNNEST + alias
// ----------------------------------------------------------------

func (w *ResultWorker) bulkComplete(ctx context.Context, batch []*model.ResultJob) error {
	cols := columnsOf(batch)
	if len(cols.ids) == 0 {
		return nil
	}

	query := `
		UPDATE exam_attempts AS a
		SET status = 'COMPLETED',
		    score = t.score,
		    correct_answers = t.correct,
		    time_spent_seconds = t.time_spent,
		    answers = t.answers,
		    finished_at = t.finished_at
		FROM (
			SELECT
				u.id,
				u.score,
				u.correct,
				u.time_spent,
				u.answers,
				u.finished_at
			FROM UNNEST(
				$1::uuid[],
				$2::float8[],
				$3::int[],
				$4::int[],
				$5::jsonb[],
				$6::timestamptz[]
			) AS u (id, score, correct, time_spent, answers, finished_at)
		) AS t
		WHERE a.id = t.id
		  AND a.status <> 'COMPLETED'
	`

	_, err := w.pool.Exec(ctx, query, cols.ids, cols.scores, cols.correct, cols.timeSpent, cols.answers, cols.finishedAts)
	return err
}

// ----------------------------------------------------------------
// BULK cleanup of autosave snapshots
// ----------------------------------------------------------------

func (w *ResultWorker) bulkClearSnapshots(ctx context.Context, batch []*model.ResultJob) {
	pipe := w.rdb.Pipeline()
	for _, p := range batch {
		pipe.Del(ctx, config.CacheKey.AttemptSnapshotKey(p.AttemptID))
	}
	_, _ = pipe.Exec(ctx)

	cols := columnsOf(batch)
	if len(cols.ids) == 0 {
		return
	}
	if _, err := w.pool.Exec(ctx, `DELETE FROM attempt_snapshots WHERE attempt_id = ANY($1::uuid[])`, cols.ids); err != nil {
		w.log.Warn().Err(err).Msg("Failed to delete persisted snapshots")
	}
}

// ----------------------------------------------------------------
// FALLBACK single update
// ----------------------------------------------------------------

func (w *ResultWorker) persistSingle(ctx context.Context, p *model.ResultJob) error {
	id, err := uuid.Parse(p.AttemptID)
	if err != nil {
		return err
	}
	raw, _ := json.Marshal(p.Answers)

	_, err = w.pool.Exec(ctx,
		`UPDATE exam_attempts
		 SET status = 'COMPLETED',
		     score = $1,
		     correct_answers = $2,
		     time_spent_seconds = $3,
		     answers = $4,
		     finished_at = NOW()
		 WHERE id = $5 AND status <> 'COMPLETED'`,
		p.Score, p.CorrectAnswers, p.TimeSpentSeconds, raw, id,
	)
	return err
}
