package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
	"github.com/stemsi/exstem-engine/internal/config"
	"github.com/stemsi/exstem-engine/internal/engine"
	"github.com/stemsi/exstem-engine/internal/model"
	"github.com/stemsi/exstem-engine/internal/repository"
)

// Attempt errors surfaced to handlers.
var (
	ErrNoQuestions     = errors.New("no questions match the requested exam")
	ErrAttemptNotFound = errors.New("attempt not found")
	ErrNotAttemptOwner = errors.New("attempt belongs to another student")
	ErrResultNotReady  = errors.New("attempt has not been graded yet")
)

// AttemptService starts, grades and reports exam attempts. Grading runs in
// RAM against the answer key cached at start; durable writes go through
// the results queue.
type AttemptService struct {
	questionRepo *repository.QuestionRepository
	attemptRepo  *repository.AttemptRepository
	rdb          *redis.Client
	ttl          time.Duration
	log          zerolog.Logger
}

// NewAttemptService creates a new AttemptService.
func NewAttemptService(
	questionRepo *repository.QuestionRepository,
	attemptRepo *repository.AttemptRepository,
	rdb *redis.Client,
	ttl time.Duration,
	log zerolog.Logger,
) *AttemptService {
	return &AttemptService{
		questionRepo: questionRepo,
		attemptRepo:  attemptRepo,
		rdb:          rdb,
		ttl:          ttl,
		log:          log.With().Str("component", "attempt_service").Logger(),
	}
}

// ForStudent returns the exam backend a session machine uses on behalf of
// one student.
func (s *AttemptService) ForStudent(studentID int) engine.ExamBackend {
	return &studentBackend{svc: s, studentID: studentID}
}

type studentBackend struct {
	svc       *AttemptService
	studentID int
}

func (b *studentBackend) StartAttempt(ctx context.Context, cfg model.ExamConfig) (*model.Attempt, error) {
	attempt, err := b.svc.Resume(ctx, b.studentID, cfg)
	if err != nil {
		b.svc.log.Warn().Err(err).Int("student_id", b.studentID).Msg("Resume failed, starting fresh")
	}
	if attempt != nil {
		return attempt, nil
	}
	return b.svc.Start(ctx, b.studentID, cfg)
}

func (b *studentBackend) SubmitAttempt(ctx context.Context, attemptID string, answers map[string]string, timeSpentSeconds int) (*model.Result, error) {
	return b.svc.Submit(ctx, b.studentID, attemptID, answers, timeSpentSeconds)
}

func (b *studentBackend) FetchDetailedResults(ctx context.Context, attemptID string) ([]model.DetailedResult, error) {
	res, err := b.svc.Result(ctx, b.studentID, attemptID)
	if err != nil {
		return nil, err
	}
	return res.Details, nil
}

// Start picks questions, records the attempt and caches what grading needs.
func (s *AttemptService) Start(ctx context.Context, studentID int, cfg model.ExamConfig) (*model.Attempt, error) {
	questions, err := s.questionRepo.PickForConfig(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("pick questions: %w", err)
	}
	if len(questions) == 0 {
		return nil, ErrNoQuestions
	}

	ids := make([]string, len(questions))
	for i, q := range questions {
		ids[i] = q.ID.String()
	}

	record := &model.AttemptRecord{
		ID:              uuid.New(),
		StudentID:       studentID,
		Content:         cfg.Content,
		QuestionType:    cfg.Type,
		Difficulty:      cfg.Difficulty,
		DurationSeconds: cfg.TimeLimitSeconds,
		QuestionIDs:     ids,
	}
	if err := s.attemptRepo.Create(ctx, record); err != nil {
		return nil, fmt.Errorf("create attempt: %w", err)
	}

	attemptID := record.ID.String()
	if err := s.cacheAttempt(ctx, attemptID, studentID, record.DurationSeconds, questions); err != nil {
		// Submit falls back to PostgreSQL on a cache miss.
		s.log.Warn().Err(err).Str("attempt_id", attemptID).Msg("Failed to cache attempt")
	}

	s.log.Info().
		Str("attempt_id", attemptID).
		Int("student_id", studentID).
		Int("questions", len(questions)).
		Msg("Attempt created")

	paper := make([]model.Question, len(questions))
	for i, q := range questions {
		paper[i] = q.ForStudent()
	}
	return &model.Attempt{ID: attemptID, Questions: paper, DurationSeconds: record.DurationSeconds}, nil
}

// Resume returns the student's running attempt for the same content with
// the time it has left, or nil when there is nothing to resume. A running
// attempt whose time is up is abandoned.
func (s *AttemptService) Resume(ctx context.Context, studentID int, cfg model.ExamConfig) (*model.Attempt, error) {
	attemptID, err := s.rdb.Get(ctx, config.CacheKey.StudentActiveAttemptKey(studentID)).Result()
	if errors.Is(err, redis.Nil) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get active attempt: %w", err)
	}

	record, err := s.record(ctx, attemptID)
	if errors.Is(err, ErrAttemptNotFound) {
		s.rdb.Del(ctx, config.CacheKey.StudentActiveAttemptKey(studentID))
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	if record.StudentID != studentID || record.Status != model.AttemptStatusInProgress || record.Content != cfg.Content {
		return nil, nil
	}

	remaining := remainingSeconds(record, time.Now())
	if remaining <= 0 {
		s.log.Info().Str("attempt_id", attemptID).Msg("Active attempt ran out of time, abandoning")
		return nil, s.Abandon(ctx, studentID, attemptID)
	}

	questions, err := s.questions(ctx, attemptID)
	if err != nil {
		return nil, err
	}
	paper := make([]model.Question, len(questions))
	for i, q := range questions {
		paper[i] = q.ForStudent()
	}

	s.log.Info().
		Str("attempt_id", attemptID).
		Int("remaining_seconds", remaining).
		Msg("Attempt resumed")
	return &model.Attempt{
		ID:              attemptID,
		Questions:       paper,
		DurationSeconds: record.DurationSeconds,
		ElapsedSeconds:  record.DurationSeconds - remaining,
	}, nil
}

func remainingSeconds(record *model.AttemptRecord, now time.Time) int {
	elapsed := int(now.Sub(record.StartedAt).Seconds())
	if elapsed < 0 {
		elapsed = 0
	}
	return record.DurationSeconds - elapsed
}

func (s *AttemptService) cacheAttempt(ctx context.Context, attemptID string, studentID, duration int, questions []model.Question) error {
	raw, err := json.Marshal(questions)
	if err != nil {
		return err
	}

	pipe := s.rdb.TxPipeline()
	metaKey := config.CacheKey.AttemptMetaKey(attemptID)
	pipe.HSet(ctx, metaKey, "student_id", studentID, "duration_seconds", duration)
	pipe.Expire(ctx, metaKey, s.ttl)
	pipe.Set(ctx, config.CacheKey.AttemptQuestionsKey(attemptID), raw, s.ttl)
	pipe.Set(ctx, config.CacheKey.StudentActiveAttemptKey(studentID), attemptID, s.ttl)
	_, err = pipe.Exec(ctx)
	return err
}

// Submit grades an attempt. A second submit of the same attempt returns the
// first result unchanged.
func (s *AttemptService) Submit(ctx context.Context, studentID int, attemptID string, answers map[string]string, timeSpentSeconds int) (*model.Result, error) {
	if err := s.authorize(ctx, studentID, attemptID); err != nil {
		return nil, err
	}

	if cached, err := s.cachedResult(ctx, attemptID); err == nil {
		return cached, nil
	}

	questions, err := s.questions(ctx, attemptID)
	if err != nil {
		return nil, err
	}

	details, tally := engine.NewReconciler(nil, s.log).Build(questions, answers)
	result := &model.Result{
		RawScore:         float64(tally.Correct),
		MaxScore:         float64(len(questions)),
		TotalQuestions:   len(questions),
		CorrectAnswers:   tally.Correct,
		IncorrectAnswers: tally.Incorrect,
		SkippedAnswers:   tally.Skipped,
		TimeSpentSeconds: timeSpentSeconds,
		Details:          details,
	}
	result.Score = engine.NormalizeScore(result.RawScore, result.MaxScore, 0, tally.Correct, len(questions))

	raw, err := json.Marshal(result)
	if err != nil {
		return nil, fmt.Errorf("marshal result: %w", err)
	}
	stored, err := s.rdb.SetNX(ctx, config.CacheKey.AttemptResultKey(attemptID), raw, s.ttl).Result()
	if err != nil {
		return nil, fmt.Errorf("store result: %w", err)
	}
	if !stored {
		// A concurrent submit won the race.
		return s.cachedResult(ctx, attemptID)
	}

	payload, _ := json.Marshal(model.ResultJob{
		AttemptID:        attemptID,
		StudentID:        studentID,
		Score:            result.Score,
		CorrectAnswers:   tally.Correct,
		TimeSpentSeconds: timeSpentSeconds,
		Answers:          answers,
		FinishedAt:       time.Now(),
	})
	if err := s.rdb.RPush(ctx, config.WorkerKey.PersistResultsQueue, payload).Err(); err != nil {
		s.log.Error().Err(err).Str("attempt_id", attemptID).Msg("Failed to queue result")
	}
	s.rdb.Del(ctx, config.CacheKey.StudentActiveAttemptKey(studentID))

	s.log.Info().
		Str("attempt_id", attemptID).
		Float64("score", result.Score).
		Int("correct", tally.Correct).
		Int("total", len(questions)).
		Msg("Attempt submitted and graded")

	return result, nil
}

// Result returns the graded result of an attempt. A completed attempt whose
// cached details have expired is reported from PostgreSQL without details.
func (s *AttemptService) Result(ctx context.Context, studentID int, attemptID string) (*model.Result, error) {
	if err := s.authorize(ctx, studentID, attemptID); err != nil {
		return nil, err
	}
	if res, err := s.cachedResult(ctx, attemptID); err == nil {
		return res, nil
	} else if !errors.Is(err, redis.Nil) {
		return nil, fmt.Errorf("get cached result: %w", err)
	}

	record, err := s.record(ctx, attemptID)
	if err != nil {
		return nil, err
	}
	if record.Status != model.AttemptStatusCompleted || record.Score == nil {
		return nil, ErrResultNotReady
	}
	res := &model.Result{
		Score:          *record.Score,
		TotalQuestions: len(record.QuestionIDs),
	}
	if record.TimeSpentSeconds != nil {
		res.TimeSpentSeconds = *record.TimeSpentSeconds
	}
	return res, nil
}

// History lists a student's most recent attempts.
func (s *AttemptService) History(ctx context.Context, studentID, limit int) ([]model.AttemptRecord, error) {
	attempts, err := s.attemptRepo.ListByStudent(ctx, studentID, limit)
	if err != nil {
		return nil, fmt.Errorf("list attempts: %w", err)
	}
	return attempts, nil
}

// Abandon records that the student left an attempt without submitting.
func (s *AttemptService) Abandon(ctx context.Context, studentID int, attemptID string) error {
	if err := s.authorize(ctx, studentID, attemptID); err != nil {
		return err
	}
	id, err := uuid.Parse(attemptID)
	if err != nil {
		return ErrAttemptNotFound
	}
	if err := s.attemptRepo.Abandon(ctx, id); err != nil {
		return fmt.Errorf("abandon attempt: %w", err)
	}
	s.rdb.Del(ctx,
		config.CacheKey.StudentActiveAttemptKey(studentID),
		config.CacheKey.AttemptQuestionsKey(attemptID),
		config.CacheKey.AttemptMetaKey(attemptID),
	)
	return nil
}

// authorize checks that attemptID belongs to studentID, reading the cached
// owner first and PostgreSQL on a miss.
func (s *AttemptService) authorize(ctx context.Context, studentID int, attemptID string) error {
	owner, err := s.rdb.HGet(ctx, config.CacheKey.AttemptMetaKey(attemptID), "student_id").Result()
	if err == nil {
		if owner != strconv.Itoa(studentID) {
			return ErrNotAttemptOwner
		}
		return nil
	}
	if !errors.Is(err, redis.Nil) {
		return fmt.Errorf("get attempt owner: %w", err)
	}

	record, err := s.record(ctx, attemptID)
	if err != nil {
		return err
	}
	if record.StudentID != studentID {
		return ErrNotAttemptOwner
	}
	return nil
}

func (s *AttemptService) record(ctx context.Context, attemptID string) (*model.AttemptRecord, error) {
	id, err := uuid.Parse(attemptID)
	if err != nil {
		return nil, ErrAttemptNotFound
	}
	record, err := s.attemptRepo.GetByID(ctx, id)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrAttemptNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get attempt: %w", err)
	}
	return record, nil
}

// questions loads the full questions of an attempt, self-healing the cache
// from PostgreSQL on a miss.
func (s *AttemptService) questions(ctx context.Context, attemptID string) ([]model.Question, error) {
	key := config.CacheKey.AttemptQuestionsKey(attemptID)
	raw, err := s.rdb.Get(ctx, key).Bytes()
	if err == nil {
		var qs []model.Question
		if err := json.Unmarshal(raw, &qs); err == nil {
			return qs, nil
		}
	} else if !errors.Is(err, redis.Nil) {
		return nil, fmt.Errorf("get cached questions: %w", err)
	}

	record, err := s.record(ctx, attemptID)
	if err != nil {
		return nil, err
	}
	qs, err := s.questionRepo.ListByIDs(ctx, record.QuestionIDs)
	if err != nil {
		return nil, fmt.Errorf("list questions: %w", err)
	}
	if fresh, err := json.Marshal(qs); err == nil {
		_ = s.rdb.Set(ctx, key, fresh, s.ttl)
	}
	return qs, nil
}

func (s *AttemptService) cachedResult(ctx context.Context, attemptID string) (*model.Result, error) {
	raw, err := s.rdb.Get(ctx, config.CacheKey.AttemptResultKey(attemptID)).Bytes()
	if err != nil {
		return nil, err
	}
	var res model.Result
	if err := json.Unmarshal(raw, &res); err != nil {
		return nil, fmt.Errorf("decode cached result: %w", err)
	}
	return &res, nil
}
