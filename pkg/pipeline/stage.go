// Package pipeline is the dependency-graph stage scheduler. Stages
// declare upstream dependencies and an activation predicate over the run
// mode; the scheduler runs independent stages in parallel, reuses cached
// artifacts, isolates failures to the dependent branch and reduces
// everything into one run report.
package pipeline

import (
	"context"
	"time"

	"github.com/yumyai/ecophylo/pkg/mode"
)

// State is the lifecycle of one stage.
//
//	Pending -> Skipped                      (inactive in this mode, or cached)
//	Pending -> Running -> Succeeded|Failed
//	Pending -> Blocked                      (an upstream stage failed)
type State string

const (
	Pending   State = "pending"
	Running   State = "running"
	Skipped   State = "skipped"
	Succeeded State = "succeeded"
	Failed    State = "failed"
	Blocked   State = "blocked"
)

// Terminal tells whether a stage in this state is finished for good.
func (s State) Terminal() bool {
	switch s {
	case Skipped, Succeeded, Failed, Blocked:
		return true
	default:
		return false
	}
}

// Satisfies tells whether a dependency in this state lets a dependent
// start. A skipped stage counts: either it is inactive in this mode (so
// no active stage should need its output) or its output came from cache.
func (s State) Satisfies() bool {
	return s == Succeeded || s == Skipped
}

// Stage is one unit of work in the graph.
type Stage struct {
	// Name keys the stage in the graph, the store and the report.
	Name string

	// Deps are upstream stage names that must reach a satisfying
	// terminal state first.
	Deps []string

	// WaitAll relaxes Deps: the stage waits until every dependency is
	// terminal but runs even if some failed. Merge stages use this to
	// aggregate recorded per-unit failures instead of being blocked by
	// them.
	WaitAll bool

	// ActiveIf gates the stage on the run mode; nil means always active.
	ActiveIf func(m mode.RunMode) bool

	// Fingerprint is the content-addressed cache key (parameters plus
	// input fingerprints). Empty disables caching for this stage.
	Fingerprint string

	// Final marks a stage whose failure fails the whole run rather than
	// just one branch.
	Final bool

	// Run does the work and returns the produced artifact path, which
	// may be empty for stages that only validate.
	Run func(ctx context.Context) (string, error)
}

func (st *Stage) active(m mode.RunMode) bool {
	return st.ActiveIf == nil || st.ActiveIf(m)
}

// Result is the terminal record of one stage.
type Result struct {
	Name     string        `json:"name"`
	State    State         `json:"state"`
	Reason   string        `json:"reason,omitempty"`
	Artifact string        `json:"artifact,omitempty"`
	Duration time.Duration `json:"duration_ns"`
}
