package engine_test

import (
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stemsi/exstem-engine/internal/engine"
	"github.com/stemsi/exstem-engine/internal/model"
	"github.com/stemsi/exstem-engine/internal/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fixture struct {
	sched    *testutil.FakeScheduler
	backend  *testutil.FakeBackend
	sink     *testutil.FakeSink
	platform *testutil.FakePlatform
	machine  *engine.Machine

	mu     sync.Mutex
	states []engine.State
}

func questions(n int) []model.Question {
	qs := make([]model.Question, n)
	for i := range qs {
		qs[i] = model.Question{
			ID:   model.QuestionID(fmt.Sprint(i + 1)),
			Text: fmt.Sprintf("Soal %d", i+1),
			Options: []model.Option{
				{ID: "A", Text: "Benar"},
				{ID: "B", Text: "Salah"},
			},
			CorrectOption: "A",
		}
	}
	return qs
}

func config(n, seconds int) model.ExamConfig {
	return model.ExamConfig{
		Type:             model.QuestionTypeMultipleChoice,
		Content:          "matematika",
		TimeLimitSeconds: seconds,
		QuestionCount:    n,
		Difficulty:       model.DifficultyMedium,
	}
}

func newFixture(t *testing.T, n, seconds int) *fixture {
	t.Helper()
	f := &fixture{
		sched:    testutil.NewFakeScheduler(),
		sink:     testutil.NewFakeSink(),
		platform: testutil.NewFakePlatform(true),
		backend: &testutil.FakeBackend{
			Attempt: &model.Attempt{ID: "att-1", Questions: questions(n), DurationSeconds: seconds},
			Result:  &model.Result{RawScore: 0, MaxScore: float64(n)},
		},
	}
	f.machine = engine.NewMachine(f.backend, f.sink, f.platform,
		engine.WithScheduler(f.sched),
		engine.WithObserver(func(s engine.State) {
			f.mu.Lock()
			f.states = append(f.states, s)
			f.mu.Unlock()
		}),
	)
	t.Cleanup(f.machine.Close)
	return f
}

func (f *fixture) start(t *testing.T, n, seconds int) {
	t.Helper()
	require.NoError(t, f.machine.Start(testutil.Context(t), config(n, seconds)))
}

func (f *fixture) published() []engine.State {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]engine.State(nil), f.states...)
}

func assertGuardMatchesStatus(t *testing.T, f *fixture) {
	t.Helper()
	st := f.machine.State()
	unload, route := f.platform.Registered()
	if st.Status.Live() && !st.Closed {
		assert.True(t, st.GuardArmed, "guard armed while %s", st.Status)
		assert.Equal(t, 1, unload)
		assert.Equal(t, 1, route)
	} else {
		assert.False(t, st.GuardArmed, "guard disarmed while %s", st.Status)
		assert.Zero(t, unload)
		assert.Zero(t, route)
	}
}

func TestMachine_StartEntersInProgress(t *testing.T) {
	f := newFixture(t, 3, 60)
	assert.Equal(t, engine.StatusSetup, f.machine.State().Status)

	f.start(t, 3, 60)

	st := f.machine.State()
	assert.Equal(t, engine.StatusInProgress, st.Status)
	assert.Equal(t, "att-1", st.AttemptID)
	assert.Len(t, st.Questions, 3)
	assert.Equal(t, 60, st.RemainingSeconds)
	assert.Equal(t, 3, st.Unanswered)
	assertGuardMatchesStatus(t, f)

	err := f.machine.Start(testutil.Context(t), config(3, 60))
	assert.ErrorIs(t, err, engine.ErrInvalidTransition)
	assert.Equal(t, 1, f.backend.Starts())
}

func TestMachine_StartRejectsBadConfig(t *testing.T) {
	tests := []struct {
		name    string
		cfg     model.ExamConfig
		attempt *model.Attempt
	}{
		{name: "zero questions requested", cfg: config(0, 60)},
		{name: "non-positive time limit", cfg: config(3, 0)},
		{name: "unknown type", cfg: model.ExamConfig{Type: "essay", QuestionCount: 1, TimeLimitSeconds: 60}},
		{name: "backend returns no questions", cfg: config(3, 60), attempt: &model.Attempt{ID: "att-1"}},
		{
			name:    "duplicate question ids",
			cfg:     config(2, 60),
			attempt: &model.Attempt{ID: "att-1", Questions: append(questions(1), questions(1)...)},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newFixture(t, 3, 60)
			if tt.attempt != nil {
				f.backend.Attempt = tt.attempt
			}

			err := f.machine.Start(testutil.Context(t), tt.cfg)
			require.Error(t, err)
			assert.True(t, engine.IsConfigError(err), "got %v", err)
			assert.Equal(t, engine.StatusSetup, f.machine.State().Status)
			assert.Zero(t, f.sched.Pending())
		})
	}
}

func TestMachine_StartFallsBackToConfiguredDuration(t *testing.T) {
	f := newFixture(t, 2, 0)
	f.start(t, 2, 90)
	assert.Equal(t, 90, f.machine.State().DurationSeconds)
}

func TestMachine_StartBackendError(t *testing.T) {
	f := newFixture(t, 2, 60)
	f.backend.StartErr = errors.New("connection refused")

	err := f.machine.Start(testutil.Context(t), config(2, 60))
	require.Error(t, err)
	assert.False(t, engine.IsConfigError(err))

	f.backend.StartErr = nil
	f.start(t, 2, 60)
	assert.Equal(t, engine.StatusInProgress, f.machine.State().Status)
}

// Expiry with nothing answered submits on its own and scores every
// question as skipped.
func TestMachine_ExpiryForcesSubmission(t *testing.T) {
	f := newFixture(t, 5, 60)
	f.start(t, 5, 60)

	f.sched.Advance(59 * time.Second)
	assert.Empty(t, f.backend.Submits())

	f.sched.Advance(time.Second)
	f.machine.Wait()

	submits := f.backend.Submits()
	require.Len(t, submits, 1)
	assert.Empty(t, submits[0].Answers)
	assert.Equal(t, 60, submits[0].TimeSpentSeconds)
	assert.Empty(t, f.platform.Prompts(), "forced submission never asks")

	st := f.machine.State()
	assert.Equal(t, engine.StatusCompleted, st.Status)
	require.NotNil(t, st.Result)
	assert.Equal(t, 5, st.Result.SkippedAnswers)
	assert.Equal(t, 5, st.Result.TotalQuestions)
	assert.Zero(t, st.Result.Score)
	assertGuardMatchesStatus(t, f)
	assert.Equal(t, []string{"att-1"}, f.sink.Discarded())
}

func TestMachine_ResumedAttemptCountsEarlierTime(t *testing.T) {
	f := newFixture(t, 2, 60)
	f.backend.Attempt.ElapsedSeconds = 30
	f.start(t, 2, 60)

	st := f.machine.State()
	assert.Equal(t, 60, st.DurationSeconds)
	assert.Equal(t, 30, st.RemainingSeconds)

	f.sched.Advance(10 * time.Second)
	require.NoError(t, f.machine.SubmitAnswer("1", "A"))
	require.NoError(t, f.machine.SubmitAnswer("2", "A"))
	_, err := f.machine.RequestSubmit()
	require.NoError(t, err)
	f.machine.Wait()

	submits := f.backend.Submits()
	require.Len(t, submits, 1)
	assert.Equal(t, 40, submits[0].TimeSpentSeconds)
	require.NotNil(t, f.machine.State().Result)
	assert.Equal(t, 40, f.machine.State().Result.TimeSpentSeconds)
}

func TestMachine_ResumedAttemptExpiresOnOriginalDeadline(t *testing.T) {
	f := newFixture(t, 2, 60)
	f.backend.Attempt.ElapsedSeconds = 50
	f.start(t, 2, 60)

	f.sched.Advance(10 * time.Second)
	f.machine.Wait()

	submits := f.backend.Submits()
	require.Len(t, submits, 1)
	assert.Equal(t, 60, submits[0].TimeSpentSeconds)
	assert.Equal(t, engine.StatusCompleted, f.machine.State().Status)
}

func TestMachine_StartRejectsElapsedBeyondDuration(t *testing.T) {
	f := newFixture(t, 2, 60)
	f.backend.Attempt.ElapsedSeconds = 60

	err := f.machine.Start(testutil.Context(t), config(2, 60))
	assert.True(t, engine.IsConfigError(err))
	assert.Equal(t, engine.StatusSetup, f.machine.State().Status)
}

func TestMachine_ConfirmExitAbandons(t *testing.T) {
	f := newFixture(t, 3, 60)
	f.start(t, 3, 60)
	require.NoError(t, f.machine.SubmitAnswer("1", "A"))
	f.sched.Advance(10 * time.Second)

	require.NoError(t, f.machine.ConfirmExit())

	st := f.machine.State()
	assert.Equal(t, engine.StatusAborted, st.Status)
	assert.Empty(t, st.Answers)
	assert.Empty(t, st.Questions)
	assertGuardMatchesStatus(t, f)
	assert.Zero(t, f.sched.Pending(), "timer and autosave are cancelled")

	f.sched.Advance(time.Hour)
	assert.Empty(t, f.backend.Submits())
	assert.Equal(t, []string{"att-1"}, f.sink.Discarded())

	assert.ErrorIs(t, f.machine.ConfirmExit(), engine.ErrInvalidTransition)
	_, err := f.machine.RequestSubmit()
	assert.ErrorIs(t, err, engine.ErrInvalidTransition)
}

func TestMachine_RequestExit(t *testing.T) {
	f := newFixture(t, 2, 60)
	f.start(t, 2, 60)

	f.platform.SetReply(false)
	left, err := f.machine.RequestExit()
	require.NoError(t, err)
	assert.False(t, left)
	assert.Equal(t, engine.StatusInProgress, f.machine.State().Status)

	f.platform.SetReply(true)
	left, err = f.machine.RequestExit()
	require.NoError(t, err)
	assert.True(t, left)
	assert.Equal(t, engine.StatusAborted, f.machine.State().Status)
	assert.Equal(t, []string{engine.DefaultExitMessage, engine.DefaultExitMessage}, f.platform.Prompts())
}

func TestMachine_ConfirmedRouteChangeAbandons(t *testing.T) {
	f := newFixture(t, 2, 60)
	f.start(t, 2, 60)

	f.platform.SetReply(false)
	assert.False(t, f.platform.Navigate("/dashboard"))
	assert.Equal(t, engine.StatusInProgress, f.machine.State().Status)

	f.platform.SetReply(true)
	assert.True(t, f.platform.Navigate("/dashboard"))
	assert.Equal(t, engine.StatusAborted, f.machine.State().Status)
	assertGuardMatchesStatus(t, f)
}

func TestMachine_SubmitIsAtMostOnce(t *testing.T) {
	f := newFixture(t, 2, 60)
	f.backend.Gate = make(chan struct{})
	f.start(t, 2, 60)
	require.NoError(t, f.machine.SubmitAnswer("1", "A"))
	require.NoError(t, f.machine.SubmitAnswer("2", "B"))

	started, err := f.machine.RequestSubmit()
	require.NoError(t, err)
	assert.True(t, started)
	assert.Equal(t, engine.StatusSubmitting, f.machine.State().Status)
	assertGuardMatchesStatus(t, f)

	started, err = f.machine.RequestSubmit()
	require.NoError(t, err)
	assert.False(t, started)

	f.sched.Advance(2 * time.Minute)
	assert.Equal(t, engine.StatusSubmitting, f.machine.State().Status)

	close(f.backend.Gate)
	f.machine.Wait()

	assert.Len(t, f.backend.Submits(), 1)
	st := f.machine.State()
	assert.Equal(t, engine.StatusCompleted, st.Status)
	assert.Equal(t, 1, st.Result.CorrectAnswers)
	assert.Equal(t, 1, st.Result.IncorrectAnswers)
}

func TestMachine_SubmitWithUnansweredAsksFirst(t *testing.T) {
	f := newFixture(t, 3, 60)
	f.start(t, 3, 60)
	require.NoError(t, f.machine.SubmitAnswer("1", "A"))

	f.platform.SetReply(false)
	started, err := f.machine.RequestSubmit()
	require.NoError(t, err)
	assert.False(t, started)
	assert.Equal(t, engine.StatusInProgress, f.machine.State().Status)
	assert.Equal(t, []string{"Masih ada 2 soal yang belum dijawab. Tetap kumpulkan?"}, f.platform.Prompts())

	f.platform.SetReply(true)
	started, err = f.machine.RequestSubmit()
	require.NoError(t, err)
	assert.True(t, started)
	f.machine.Wait()
	assert.Equal(t, engine.StatusCompleted, f.machine.State().Status)
}

func TestMachine_SubmitFailureIsRetryable(t *testing.T) {
	f := newFixture(t, 1, 60)
	f.backend.SubmitErrs = []error{errors.New("503 service unavailable")}
	f.backend.Result = &model.Result{RawScore: 1, MaxScore: 1}
	f.start(t, 1, 60)
	require.NoError(t, f.machine.SubmitAnswer("1", "A"))
	f.sched.Advance(5 * time.Second)

	_, err := f.machine.RequestSubmit()
	require.NoError(t, err)
	f.machine.Wait()

	st := f.machine.State()
	assert.Equal(t, engine.StatusInProgress, st.Status)
	assert.Contains(t, st.Notice, "503")
	assert.Equal(t, "A", st.Answers["1"])
	assertGuardMatchesStatus(t, f)

	f.sched.Advance(time.Second)
	assert.Equal(t, 54, f.machine.State().RemainingSeconds, "timer resumed")

	_, err = f.machine.RequestSubmit()
	require.NoError(t, err)
	f.machine.Wait()

	st = f.machine.State()
	assert.Equal(t, engine.StatusCompleted, st.Status)
	assert.Empty(t, st.Notice)
	assert.Len(t, f.backend.Submits(), 2)
	assert.Equal(t, 100.0, st.Result.Score)
}

func TestMachine_AnswersLockedAfterExpiry(t *testing.T) {
	f := newFixture(t, 2, 10)
	f.backend.SubmitErrs = []error{errors.New("timeout")}
	f.start(t, 2, 10)

	f.sched.Advance(10 * time.Second)
	f.machine.Wait()

	st := f.machine.State()
	require.Equal(t, engine.StatusInProgress, st.Status)
	assert.True(t, st.TimeExpired)
	assert.ErrorIs(t, f.machine.SubmitAnswer("1", "A"), engine.ErrTimeExpired)

	_, err := f.machine.RequestSubmit()
	require.NoError(t, err)
	f.machine.Wait()
	assert.Equal(t, engine.StatusCompleted, f.machine.State().Status)
}

func TestMachine_ActionErrors(t *testing.T) {
	f := newFixture(t, 3, 60)

	assert.ErrorIs(t, f.machine.SubmitAnswer("1", "A"), engine.ErrInvalidTransition)

	f.start(t, 3, 60)
	assert.ErrorIs(t, f.machine.SubmitAnswer("99", "A"), engine.ErrUnknownQuestion)
	_, err := f.machine.ToggleFlag("99")
	assert.ErrorIs(t, err, engine.ErrUnknownQuestion)
	assert.ErrorIs(t, f.machine.Navigate(3), engine.ErrIndexOutOfRange)
	assert.ErrorIs(t, f.machine.Navigate(-1), engine.ErrIndexOutOfRange)
	assert.ErrorIs(t, f.machine.CloseReview(), engine.ErrInvalidTransition)
}

func TestMachine_ReviewOverlay(t *testing.T) {
	f := newFixture(t, 3, 60)
	f.start(t, 3, 60)

	require.NoError(t, f.machine.OpenReview())
	assert.Equal(t, engine.StatusReviewing, f.machine.State().Status)
	assertGuardMatchesStatus(t, f)
	assert.ErrorIs(t, f.machine.SubmitAnswer("1", "A"), engine.ErrInvalidTransition)

	f.sched.Advance(5 * time.Second)
	assert.Equal(t, 55, f.machine.State().RemainingSeconds, "clock runs during review")

	require.NoError(t, f.machine.CloseReview())
	require.NoError(t, f.machine.OpenReview())

	started, err := f.machine.RequestSubmit()
	require.NoError(t, err)
	assert.True(t, started)
	f.machine.Wait()
	assert.Equal(t, engine.StatusCompleted, f.machine.State().Status)
}

func TestMachine_NavigationAndFlags(t *testing.T) {
	f := newFixture(t, 4, 60)
	f.start(t, 4, 60)

	require.NoError(t, f.machine.SubmitAnswer("2", "A"))
	require.NoError(t, f.machine.Navigate(1))

	next, ok := f.machine.NextUnanswered()
	require.True(t, ok)
	assert.Equal(t, 2, next)

	flagged, err := f.machine.ToggleFlag("3")
	require.NoError(t, err)
	assert.True(t, flagged)
	assert.Equal(t, []string{"3"}, f.machine.State().Flags)

	st := f.machine.State()
	current, ok := st.Current()
	require.True(t, ok)
	assert.Equal(t, model.QuestionID("2"), current.ID)

	require.NoError(t, f.machine.SubmitAnswer("2", ""))
	assert.Equal(t, 4, f.machine.State().Unanswered)

	for _, id := range []string{"1", "2", "3", "4"} {
		require.NoError(t, f.machine.SubmitAnswer(id, "A"))
	}
	_, ok = f.machine.NextUnanswered()
	assert.False(t, ok)
}

func TestMachine_AutosaveDebouncesEdits(t *testing.T) {
	f := newFixture(t, 3, 60)
	f.start(t, 3, 60)

	require.NoError(t, f.machine.SubmitAnswer("1", "A"))
	require.NoError(t, f.machine.SubmitAnswer("1", "B"))
	require.NoError(t, f.machine.Navigate(2))
	assert.Empty(t, f.sink.Saves())

	f.sched.Advance(engine.DefaultAutosaveDelay)

	saves := f.sink.Saves()
	require.Len(t, saves, 1)
	assert.Equal(t, "B", saves[0].Answers["1"])
	assert.Equal(t, 2, saves[0].Cursor)
}

func TestMachine_StartRestoresAutosave(t *testing.T) {
	f := newFixture(t, 3, 60)
	f.sink.Put(&model.Snapshot{
		AttemptID: "att-1",
		Answers:   map[string]string{"1": "A", "ghost": "B"},
		Flags:     []string{"2"},
		Cursor:    2,
	})

	f.start(t, 3, 60)

	st := f.machine.State()
	assert.Equal(t, map[string]string{"1": "A"}, st.Answers)
	assert.Equal(t, []string{"2"}, st.Flags)
	assert.Equal(t, 2, st.Cursor)
}

func TestMachine_DetailsUnavailableStillCompletes(t *testing.T) {
	f := newFixture(t, 2, 60)
	f.backend.DetailsErr = errors.New("404")
	f.start(t, 2, 60)
	require.NoError(t, f.machine.SubmitAnswer("1", "A"))
	require.NoError(t, f.machine.SubmitAnswer("2", "A"))

	_, err := f.machine.RequestSubmit()
	require.NoError(t, err)
	f.machine.Wait()

	st := f.machine.State()
	require.Equal(t, engine.StatusCompleted, st.Status)
	assert.Equal(t, 2, st.Result.CorrectAnswers)
	for _, row := range st.Result.Details {
		assert.Equal(t, "Benar", row.CorrectAnswer)
	}
}

func TestMachine_DetailsUnavailableUsesSubmitResponse(t *testing.T) {
	f := newFixture(t, 2, 60)
	for i := range f.backend.Attempt.Questions {
		f.backend.Attempt.Questions[i].CorrectOption = ""
	}
	f.backend.DetailsErr = errors.New("502")
	f.backend.Result = &model.Result{
		RawScore: 1,
		MaxScore: 2,
		Details: []model.DetailedResult{
			{QuestionID: "1", CorrectAnswer: "B"},
			{QuestionID: "2", CorrectAnswer: "A"},
		},
	}
	f.start(t, 2, 60)
	require.NoError(t, f.machine.SubmitAnswer("1", "B"))
	require.NoError(t, f.machine.SubmitAnswer("2", "B"))

	_, err := f.machine.RequestSubmit()
	require.NoError(t, err)
	f.machine.Wait()

	res := f.machine.State().Result
	require.NotNil(t, res)
	assert.Equal(t, 1, res.CorrectAnswers)
	assert.Equal(t, 1, res.IncorrectAnswers)
	assert.Equal(t, 50.0, res.Score)
	assert.Equal(t, "Salah", res.Details[0].CorrectAnswer)
}

func TestMachine_CloseFlushesAndRejects(t *testing.T) {
	f := newFixture(t, 2, 60)
	f.start(t, 2, 60)
	require.NoError(t, f.machine.SubmitAnswer("1", "A"))

	f.machine.Close()

	assert.Len(t, f.sink.Saves(), 1)
	assert.Zero(t, f.sched.Pending())
	st := f.machine.State()
	assert.Equal(t, engine.StatusInProgress, st.Status)
	assert.True(t, st.Closed)
	assert.False(t, st.GuardArmed)
	states := f.published()
	assert.True(t, states[len(states)-1].Closed, "close publishes a final state")
	assertGuardMatchesStatus(t, f)
	assert.ErrorIs(t, f.machine.SubmitAnswer("2", "A"), engine.ErrClosed)
	_, err := f.machine.RequestSubmit()
	assert.ErrorIs(t, err, engine.ErrClosed)
}

func TestMachine_PublishesStateChanges(t *testing.T) {
	f := newFixture(t, 2, 60)
	f.start(t, 2, 60)
	require.NoError(t, f.machine.SubmitAnswer("1", "A"))
	require.NoError(t, f.machine.ConfirmExit())

	states := f.published()
	require.Len(t, states, 3)
	assert.Equal(t, engine.StatusInProgress, states[0].Status)
	assert.Equal(t, 1, states[1].Answered)
	assert.Equal(t, engine.StatusAborted, states[2].Status)
	assert.Less(t, states[0].Version, states[2].Version)
}

func TestMachine_AnsweredPlusUnansweredCoversEveryQuestion(t *testing.T) {
	f := newFixture(t, 4, 60)
	f.sink.Put(&model.Snapshot{
		AttemptID: "att-1",
		Answers:   map[string]string{"2": "B", "ghost": "A"},
		Cursor:    1,
	})
	f.start(t, 4, 60)

	steps := []struct {
		name     string
		action   func() error
		answered int
	}{
		{"restored", func() error { return nil }, 1},
		{"answer", func() error { return f.machine.SubmitAnswer("1", "A") }, 2},
		{"change answer", func() error { return f.machine.SubmitAnswer("1", "B") }, 2},
		{"clear by empty value", func() error { return f.machine.SubmitAnswer("2", "") }, 1},
		{"navigate", func() error { return f.machine.Navigate(3) }, 1},
		{"flag", func() error { _, err := f.machine.ToggleFlag("4"); return err }, 1},
		{"answer last", func() error { return f.machine.SubmitAnswer("4", "A") }, 2},
		{"open review", f.machine.OpenReview, 2},
		{"close review", f.machine.CloseReview, 2},
		{"answer rest", func() error {
			if err := f.machine.SubmitAnswer("2", "A"); err != nil {
				return err
			}
			return f.machine.SubmitAnswer("3", "A")
		}, 4},
	}

	for _, step := range steps {
		require.NoError(t, step.action(), step.name)
		st := f.machine.State()
		assert.Equal(t, step.answered, st.Answered, step.name)
		assert.Equal(t, len(st.Questions), st.Answered+st.Unanswered, step.name)
	}
	for _, st := range f.published() {
		assert.Equal(t, len(st.Questions), st.Answered+st.Unanswered, "version %d", st.Version)
	}
}
