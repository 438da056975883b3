// Package store persists evaluation run history.
package store

import (
	"context"
	"errors"
	"time"

	"github.com/stellarlinkco/agent-evo/internal/evaluator"
)

// ErrRunNotFound is returned by GetRun for unknown run ids.
var ErrRunNotFound = errors.New("store: run not found")

// RunRecord is one persisted evaluation run. Report is populated only
// when the record is loaded individually.
type RunRecord struct {
	ID             string
	StartedAt      time.Time
	FinishedAt     time.Time
	Total          int
	Passed         int
	Failed         int
	Errors         int
	PassRate       float64
	ReleaseBlocked bool
	Optimized      bool

	Report *evaluator.EvalReport
}

// RunFilter narrows run listings.
type RunFilter struct {
	Since time.Time
	Until time.Time
	Limit int
}

// Store persists and queries run history.
type Store interface {
	SaveRun(ctx context.Context, id string, report *evaluator.EvalReport) error
	GetRun(ctx context.Context, id string) (*RunRecord, error)
	ListRuns(ctx context.Context, filter RunFilter) ([]*RunRecord, error)
	Close() error
}
