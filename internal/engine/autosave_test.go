package engine

import (
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stemsi/exstem-engine/internal/model"
	"github.com/stemsi/exstem-engine/internal/testutil"
	"github.com/stretchr/testify/assert"
)

func snapshotWith(answers map[string]string) *model.Snapshot {
	return &model.Snapshot{AttemptID: "att-1", Answers: answers}
}

// Three edits inside one window persist exactly once, with the last state.
func TestAutoSave_DebouncesToLatest(t *testing.T) {
	sched := testutil.NewFakeScheduler()
	a := NewAutoSaveScheduler(sched, zerolog.Nop())

	var saved []*model.Snapshot
	persist := func(s *model.Snapshot) error { saved = append(saved, s); return nil }

	a.Schedule(snapshotWith(map[string]string{"1": "A"}), persist, 2*time.Second)
	sched.Advance(time.Second)
	a.Schedule(snapshotWith(map[string]string{"1": "B"}), persist, 2*time.Second)
	sched.Advance(time.Second)
	a.Schedule(snapshotWith(map[string]string{"1": "C"}), persist, 2*time.Second)

	sched.Advance(1999 * time.Millisecond)
	assert.Empty(t, saved)
	assert.True(t, a.Pending())

	sched.Advance(time.Millisecond)
	if assert.Len(t, saved, 1) {
		assert.Equal(t, "C", saved[0].Answers["1"])
	}
	assert.False(t, a.Pending())

	sched.Advance(10 * time.Second)
	assert.Len(t, saved, 1)
}

func TestAutoSave_FlushNowAndCancel(t *testing.T) {
	sched := testutil.NewFakeScheduler()
	a := NewAutoSaveScheduler(sched, zerolog.Nop())

	saves := 0
	persist := func(*model.Snapshot) error { saves++; return nil }

	assert.False(t, a.FlushNow())

	a.Schedule(snapshotWith(nil), persist, time.Second)
	assert.True(t, a.FlushNow())
	assert.Equal(t, 1, saves)
	sched.Advance(5 * time.Second)
	assert.Equal(t, 1, saves, "flushed window does not fire again")

	a.Schedule(snapshotWith(nil), persist, time.Second)
	a.Cancel()
	sched.Advance(5 * time.Second)
	assert.Equal(t, 1, saves)
	assert.Zero(t, sched.Pending())
}

func TestAutoSave_PersistErrorIsSwallowed(t *testing.T) {
	sched := testutil.NewFakeScheduler()
	a := NewAutoSaveScheduler(sched, zerolog.Nop())

	calls := 0
	a.Schedule(snapshotWith(nil), func(*model.Snapshot) error {
		calls++
		return errors.New("disk full")
	}, 0)

	assert.NotPanics(t, func() { sched.Advance(DefaultAutosaveDelay) })
	assert.Equal(t, 1, calls)
	assert.False(t, a.Pending())
}

// A flush racing a slow window write must leave the newer snapshot stored.
func TestAutoSave_FlushDuringSlowWriteKeepsLatest(t *testing.T) {
	sched := testutil.NewFakeScheduler()
	a := NewAutoSaveScheduler(sched, zerolog.Nop())

	var mu sync.Mutex
	var stored []string
	entered := make(chan struct{})
	release := make(chan struct{})
	persist := func(s *model.Snapshot) error {
		if s.Answers["1"] == "old" {
			close(entered)
			<-release
		}
		mu.Lock()
		stored = append(stored, s.Answers["1"])
		mu.Unlock()
		return nil
	}

	a.Schedule(snapshotWith(map[string]string{"1": "old"}), persist, time.Second)
	fired := make(chan struct{})
	go func() {
		sched.Advance(time.Second)
		close(fired)
	}()
	<-entered

	a.Schedule(snapshotWith(map[string]string{"1": "new"}), persist, time.Second)
	flushed := make(chan bool)
	go func() { flushed <- a.FlushNow() }()

	close(release)
	<-fired
	assert.True(t, <-flushed)

	mu.Lock()
	defer mu.Unlock()
	if assert.NotEmpty(t, stored) {
		assert.Equal(t, "new", stored[len(stored)-1])
	}
}

// A snapshot taken before a newer one was written is never persisted.
func TestAutoSave_SkipsSupersededSnapshot(t *testing.T) {
	a := NewAutoSaveScheduler(testutil.NewFakeScheduler(), zerolog.Nop())

	var stored []string
	persist := func(s *model.Snapshot) error { stored = append(stored, s.Answers["1"]); return nil }

	a.run(snapshotWith(map[string]string{"1": "new"}), persist, 2)
	a.run(snapshotWith(map[string]string{"1": "old"}), persist, 1)

	assert.Equal(t, []string{"new"}, stored)
}
