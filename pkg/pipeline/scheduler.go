package pipeline

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/yumyai/ecophylo/logger"
	"github.com/yumyai/ecophylo/pkg/fault"
	"github.com/yumyai/ecophylo/pkg/mode"
	"github.com/yumyai/ecophylo/pkg/store"
)

// Scheduler executes a stage graph for one resolved run mode.
type Scheduler struct {
	Store        *store.Store
	Mode         mode.RunMode
	Workers      int
	StageTimeout time.Duration
}

type doneMsg struct {
	name     string
	artifact string
	err      error
	duration time.Duration
}

// Run drives the graph to completion. Cancellation of ctx stops new
// stages from being scheduled; in-flight stages run to completion (their
// own context is the run context, so tools observing it may stop early)
// and their artifacts stay in the store for a resumed run.
func (s *Scheduler) Run(ctx context.Context, g *Graph) *RunReport {

	report := newRunReport(s.Mode)

	results := make(map[string]*Result, len(g.Stages()))
	for _, st := range g.Stages() {
		results[st.Name] = &Result{Name: st.Name, State: Pending}
	}

	s.skipInactiveAndCached(ctx, g, results)

	workers := s.Workers
	if workers <= 0 {
		workers = 1
	}

	var eg errgroup.Group
	eg.SetLimit(workers)

	// Buffered so a finishing stage never blocks on the control loop.
	done := make(chan doneMsg, len(g.Stages()))
	running := 0
	fatal := false

	for {
		progress := false

		for _, st := range g.Stages() {
			r := results[st.Name]
			if r.State != Pending {
				continue
			}

			if fatal {
				r.State = Blocked
				r.Reason = "run aborted by configuration error"
				progress = true
				continue
			}

			if blockedBy := s.failedDep(g, results, st); blockedBy != "" {
				r.State = Blocked
				r.Reason = fmt.Sprintf("upstream stage %q did not succeed", blockedBy)
				progress = true
				continue
			}

			if !s.depsSatisfied(results, st) {
				continue
			}

			if ctx.Err() != nil {
				r.State = Blocked
				r.Reason = "run cancelled before stage started"
				progress = true
				continue
			}

			r.State = Running
			running++
			progress = true
			stage := st
			eg.Go(func() error {
				started := time.Now()
				artifact, err := s.runStage(ctx, stage)
				done <- doneMsg{
					name:     stage.Name,
					artifact: artifact,
					err:      err,
					duration: time.Since(started),
				}
				return nil
			})
		}

		if running == 0 {
			if !progress {
				break
			}
			continue
		}

		msg := <-done
		running--
		s.applyDone(results, g, msg)

		// A configuration error is never branch-local: stop launching
		// stages and block whatever is still pending.
		if msg.err != nil && fault.IsFatalForRun(msg.err) {
			fatal = true
		}
	}

	eg.Wait()

	report.finish(g, results)
	return report
}

// skipInactiveAndCached settles, before anything runs, the stages the
// mode deactivates and the stages whose output is already in the store
// under a matching fingerprint.
func (s *Scheduler) skipInactiveAndCached(ctx context.Context, g *Graph, results map[string]*Result) {

	for _, st := range g.Stages() {
		r := results[st.Name]

		if !st.active(s.Mode) {
			r.State = Skipped
			r.Reason = fmt.Sprintf("not active in %s mode", s.Mode)
			continue
		}

		if s.Store == nil || st.Fingerprint == "" {
			continue
		}

		artifact, ok, err := s.Store.Lookup(ctx, st.Name, st.Fingerprint)
		if err != nil {
			logger.Warn("artifact lookup failed, stage will run",
				zap.String("stage", st.Name), zap.Error(err))
			continue
		}
		if ok {
			r.State = Skipped
			r.Reason = "reused cached artifact"
			r.Artifact = artifact.Path
		}
	}
}

func (s *Scheduler) depsSatisfied(results map[string]*Result, st *Stage) bool {
	for _, dep := range st.Deps {
		state := results[dep].State
		if st.WaitAll {
			if !state.Terminal() {
				return false
			}
			continue
		}
		if !state.Satisfies() {
			return false
		}
	}
	return true
}

// failedDep returns the name of a failed or blocked dependency, if any.
// WaitAll stages tolerate failed dependencies by design.
func (s *Scheduler) failedDep(g *Graph, results map[string]*Result, st *Stage) string {
	if st.WaitAll {
		return ""
	}
	for _, dep := range st.Deps {
		if state := results[dep].State; state == Failed || state == Blocked {
			return dep
		}
	}
	return ""
}

func (s *Scheduler) runStage(ctx context.Context, st *Stage) (string, error) {

	logger.Info("stage started", zap.String("stage", st.Name))

	runCtx := ctx
	if s.StageTimeout > 0 {
		var cancel context.CancelFunc
		runCtx, cancel = context.WithTimeout(ctx, s.StageTimeout)
		defer cancel()
	}

	artifact, err := st.Run(runCtx)
	if err != nil {
		// A deadline on the stage context, with the run context still
		// live, is a per-stage timeout.
		if errors.Is(err, context.DeadlineExceeded) && ctx.Err() == nil {
			err = &fault.StageTimeoutError{Stage: st.Name, Timeout: s.StageTimeout}
		}
		return "", err
	}

	return artifact, nil
}

func (s *Scheduler) applyDone(results map[string]*Result, g *Graph, msg doneMsg) {

	r := results[msg.name]
	r.Duration = msg.duration

	if msg.err != nil {
		r.State = Failed
		r.Reason = msg.err.Error()
		logger.Error("stage failed", zap.String("stage", msg.name), zap.Error(msg.err))
		return
	}

	r.State = Succeeded
	r.Artifact = msg.artifact
	logger.Info("stage succeeded", zap.String("stage", msg.name),
		zap.Duration("took", msg.duration))

	st, _ := g.Lookup(msg.name)
	if s.Store != nil && st.Fingerprint != "" && msg.artifact != "" {
		// Registration survives run cancellation so a resumed run can
		// pick the artifact up.
		if _, err := s.Store.Put(context.Background(), st.Name, st.Fingerprint, msg.artifact); err != nil {
			logger.Warn("artifact registration failed",
				zap.String("stage", st.Name), zap.Error(err))
		}
	}
}
