// Package tool wraps the external collaborators (hmmsearch, mmseqs,
// FastTree, minimap2, samtools) behind one Runner seam so stages stay
// testable without the binaries installed.
package tool

import (
	"bytes"
	"context"
	"io"
	"os/exec"
	"strings"

	"go.uber.org/zap"

	"github.com/yumyai/ecophylo/logger"
	"github.com/yumyai/ecophylo/pkg/fault"
)

// Runner executes one external command and returns its stdout.
type Runner interface {
	Run(ctx context.Context, name string, args []string, stdin io.Reader) ([]byte, error)
}

// ExecRunner is the real os/exec backed Runner.
type ExecRunner struct{}

func (ExecRunner) Run(ctx context.Context, name string, args []string, stdin io.Reader) ([]byte, error) {

	logger.Debug("exec", zap.String("cmd", name), zap.String("args", strings.Join(args, " ")))

	cmd := exec.CommandContext(ctx, name, args...)
	if stdin != nil {
		cmd.Stdin = stdin
	}

	var out bytes.Buffer
	var errbuf bytes.Buffer
	cmd.Stdout = &out
	cmd.Stderr = &errbuf

	if err := cmd.Run(); err != nil {
		// Cancellation and timeouts surface through the context so the
		// scheduler can tell them apart from tool failures.
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		return nil, &fault.ToolExecutionError{
			Tool:   name,
			Args:   args,
			Stderr: strings.TrimSpace(errbuf.String()),
			Err:    err,
		}
	}

	return out.Bytes(), nil
}
