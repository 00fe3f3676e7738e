package engine

import (
	"context"

	"github.com/stemsi/exstem-engine/internal/model"
)

// ExamBackend creates, grades and explains attempts.
type ExamBackend interface {
	StartAttempt(ctx context.Context, cfg model.ExamConfig) (*model.Attempt, error)
	// SubmitAttempt is not idempotent; the machine never has two in flight.
	SubmitAttempt(ctx context.Context, attemptID string, answers map[string]string, timeSpentSeconds int) (*model.Result, error)
	FetchDetailedResults(ctx context.Context, attemptID string) ([]model.DetailedResult, error)
}

// PersistenceSink stores autosaved progress. Load returns nil, nil when
// nothing was saved for the attempt.
type PersistenceSink interface {
	Save(ctx context.Context, attemptID string, snapshot *model.Snapshot) error
	Load(ctx context.Context, attemptID string) (*model.Snapshot, error)
	Discard(ctx context.Context, attemptID string) error
}

// PlatformNavigation is the presentation layer's navigation surface.
//
// A before-unload handler returns the prompt to show, or "" to let the
// page go. A route-change handler returns whether the change may proceed.
// Confirm blocks until the user decides.
type PlatformNavigation interface {
	OnBeforeUnload(handler func() string) (unregister func())
	OnRouteChange(handler func(to string) bool) (unregister func())
	Confirm(message string) bool
}
