// Package embody applies or stages the recommended action set of an
// executable resolution and records the outcome as an EmbodimentManifest.
//
// Action execution itself belongs to external collaborators behind the
// Executor interface; this package records results. Partial failures become
// follow_ups, never errors: the transmit stage must always run.
package embody

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/tequmsa/awareness/pkg/contracts"
)

// Result is what an executor reports for a single action.
type Result struct {
	FilesWritten  []string
	LabelsApplied []string
}

// Executor runs one recommended action. Implementations live outside this
// core (webhook relays, repo writers, schedulers).
type Executor interface {
	Execute(ctx context.Context, ev *contracts.CollapseEvent, action string) (Result, error)
}

// Embodier builds manifests from executable resolutions.
type Embodier struct {
	executor Executor
	clock    func() time.Time
}

// New builds an Embodier. A nil executor stages actions instead of applying
// them.
func New(executor Executor) *Embodier {
	return &Embodier{executor: executor, clock: time.Now}
}

// WithClock overrides the clock for testing.
func (e *Embodier) WithClock(clock func() time.Time) *Embodier {
	e.clock = clock
	return e
}

// Embody executes the resolution's recommended actions and returns the
// manifest. Returns (nil, nil) when the resolution is not executable; the
// skip is a normal abstain path, not an error.
func (e *Embodier) Embody(ctx context.Context, ev *contracts.CollapseEvent, res *contracts.RecognitionResolution) (*contracts.EmbodimentManifest, error) {
	if res == nil || !res.Executable() {
		return nil, nil
	}

	m := &contracts.EmbodimentManifest{
		ManifestID:     uuid.New().String(),
		CollapseID:     res.CollapseID,
		ResolutionID:   res.ID,
		ActionsApplied: []string{},
		FilesWritten:   []string{},
		LabelsApplied:  []string{},
		FollowUps:      []string{},
		GeneratedAt:    e.clock().UTC(),
	}

	if e.executor == nil {
		// No executor wired: record the action set as staged.
		m.ActionsApplied = append(m.ActionsApplied, res.RecommendedActions...)
		m.Status = contracts.ManifestStaged
		return m, nil
	}

	applied := 0
	for _, action := range res.RecommendedActions {
		if err := ctx.Err(); err != nil {
			m.FollowUps = append(m.FollowUps, fmt.Sprintf("action %q not attempted: %v", action, err))
			continue
		}
		result, err := e.executor.Execute(ctx, ev, action)
		if err != nil {
			m.FollowUps = append(m.FollowUps, fmt.Sprintf("action %q failed: %v", action, err))
			continue
		}
		applied++
		m.ActionsApplied = append(m.ActionsApplied, action)
		m.FilesWritten = append(m.FilesWritten, result.FilesWritten...)
		m.LabelsApplied = append(m.LabelsApplied, result.LabelsApplied...)
	}

	switch {
	case applied == 0 && len(res.RecommendedActions) > 0:
		m.Status = contracts.ManifestAborted
	default:
		m.Status = contracts.ManifestApplied
	}
	return m, nil
}
