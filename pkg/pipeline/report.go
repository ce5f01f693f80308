package pipeline

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/google/uuid"

	"github.com/yumyai/ecophylo/pkg/mode"
)

// Overall run verdicts. A run is partially succeeded when some isolated
// branch failed but every stage required for the final outputs made it.
const (
	RunSucceeded          = "succeeded"
	RunPartiallySucceeded = "partially_succeeded"
	RunFailed             = "failed"
)

// RunReport enumerates every stage's terminal state and the reason for
// any failure or block, so the usable outputs of a partial run are
// distinguishable from the missing ones.
type RunReport struct {
	RunID      string       `json:"run_id"`
	Mode       mode.RunMode `json:"mode"`
	Status     string       `json:"status"`
	StartedAt  time.Time    `json:"started_at"`
	FinishedAt time.Time    `json:"finished_at"`
	Stages     []Result     `json:"stages"`
}

func newRunReport(m mode.RunMode) *RunReport {
	return &RunReport{
		RunID:     uuid.NewString(),
		Mode:      m,
		StartedAt: time.Now(),
	}
}

func (r *RunReport) finish(g *Graph, results map[string]*Result) {

	r.FinishedAt = time.Now()

	anyBad := false
	finalBad := false
	for _, st := range g.Stages() {
		res := results[st.Name]
		r.Stages = append(r.Stages, *res)

		if res.State == Failed || res.State == Blocked {
			anyBad = true
			if st.Final {
				finalBad = true
			}
		}
	}

	switch {
	case finalBad:
		r.Status = RunFailed
	case anyBad:
		r.Status = RunPartiallySucceeded
	default:
		r.Status = RunSucceeded
	}
}

// Render writes the human-readable terminal-state table.
func (r *RunReport) Render(w io.Writer) error {

	if _, err := fmt.Fprintf(w, "run %s (%s): %s\n", r.RunID, r.Mode, r.Status); err != nil {
		return err
	}

	for _, res := range r.Stages {
		line := fmt.Sprintf("  %-40s %-10s", res.Name, res.State)
		if res.Reason != "" {
			line += "  " + res.Reason
		}
		if _, err := fmt.Fprintln(w, line); err != nil {
			return err
		}
	}
	return nil
}

// WriteJSON persists the report as an artifact of the run itself.
func (r *RunReport) WriteJSON(path string) error {
	f, err := os.Create(path)
	if err != nil {
		return err
	}

	enc := json.NewEncoder(f)
	enc.SetIndent("", "  ")
	if err := enc.Encode(r); err != nil {
		f.Close()
		return err
	}
	return f.Close()
}

// Succeeded tells whether the run produced all final outputs.
func (r *RunReport) Succeeded() bool {
	return r.Status == RunSucceeded || r.Status == RunPartiallySucceeded
}
