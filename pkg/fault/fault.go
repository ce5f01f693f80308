// Package fault defines the pipeline error taxonomy.
//
// ConfigError aborts the whole run: at load time before any stage runs,
// and the scheduler stops launching stages when one surfaces later. The
// other kinds are
// scoped to a branch of the stage graph: an InputValidationError kills one
// assembly's branch, a ThresholdViolationError one gene model's branch,
// and a ToolExecutionError the invoking stage (its dependents become
// blocked). Per-assembly and per-sample failures are collected into the
// run report instead of aborting the run.
package fault

import (
	"errors"
	"fmt"
	"time"
)

// ConfigError reports an invalid or contradictory configuration.
type ConfigError struct {
	Msg string
}

func (e *ConfigError) Error() string {
	return fmt.Sprintf("ConfigError: %s", e.Msg)
}

func Configf(format string, args ...any) *ConfigError {
	return &ConfigError{Msg: fmt.Sprintf(format, args...)}
}

// InputValidationError reports an assembly that failed its sanity check.
type InputValidationError struct {
	Assembly string
	Reason   string
}

func (e *InputValidationError) Error() string {
	return fmt.Sprintf("InputValidationError: assembly %q: %s", e.Assembly, e.Reason)
}

// ThresholdViolationError reports a filtering or clustering stage that
// produced an empty or degenerate result for one gene model.
type ThresholdViolationError struct {
	GeneModel string
	Stage     string
	Reason    string
}

func (e *ThresholdViolationError) Error() string {
	return fmt.Sprintf("ThresholdViolationError: gene model %q at %s: %s",
		e.GeneModel, e.Stage, e.Reason)
}

// ToolExecutionError reports an external tool that exited abnormally.
type ToolExecutionError struct {
	Tool   string
	Args   []string
	Stderr string
	Err    error
}

func (e *ToolExecutionError) Error() string {
	if e.Stderr != "" {
		return fmt.Sprintf("ToolExecutionError: %s: %v: %s", e.Tool, e.Err, e.Stderr)
	}
	return fmt.Sprintf("ToolExecutionError: %s: %v", e.Tool, e.Err)
}

func (e *ToolExecutionError) Unwrap() error {
	return e.Err
}

// StageTimeoutError is treated as a ToolExecutionError for propagation:
// the stage fails and its dependents are blocked.
type StageTimeoutError struct {
	Stage   string
	Timeout time.Duration
}

func (e *StageTimeoutError) Error() string {
	return fmt.Sprintf("StageTimeoutError: stage %q exceeded %s", e.Stage, e.Timeout)
}

// IsFatalForRun tells whether an error must abort the whole run rather
// than one branch of it.
func IsFatalForRun(err error) bool {
	var ce *ConfigError
	return errors.As(err, &ce)
}
