// Package tree wraps the external alignment and tree-inference tools and
// validates the NEWICK artifact they hand back.
package tree

import (
	"context"
	"fmt"
	"os"
	"strings"

	"github.com/yumyai/ecophylo/pkg/tool"
)

// Tool infers a phylogenetic tree over an amino-acid FASTA and returns
// NEWICK text.
type Tool interface {
	Infer(ctx context.Context, fastaPath, workPrefix string) ([]byte, error)
}

// FastTree aligns with muscle and infers with FastTree.
type FastTree struct {
	Runner tool.Runner
}

func (f FastTree) Infer(ctx context.Context, fastaPath, workPrefix string) ([]byte, error) {

	aligned := workPrefix + "_aligned.faa"

	_, err := f.Runner.Run(ctx, "muscle",
		[]string{"-align", fastaPath, "-output", aligned}, nil)
	if err != nil {
		return nil, err
	}

	newick, err := f.Runner.Run(ctx, "FastTree", []string{aligned}, nil)
	if err != nil {
		return nil, err
	}

	return newick, nil
}

// ValidateNewick runs the structural checks a downstream viewer relies
// on: non-empty, balanced parentheses, terminated by a semicolon.
func ValidateNewick(newick []byte) error {

	text := strings.TrimSpace(string(newick))
	if text == "" {
		return fmt.Errorf("newick: empty tree")
	}
	if !strings.HasSuffix(text, ";") {
		return fmt.Errorf("newick: missing terminating semicolon")
	}

	depth := 0
	for _, r := range text {
		switch r {
		case '(':
			depth++
		case ')':
			depth--
			if depth < 0 {
				return fmt.Errorf("newick: unbalanced parentheses")
			}
		}
	}
	if depth != 0 {
		return fmt.Errorf("newick: unbalanced parentheses")
	}

	return nil
}

// WriteNewick validates and persists the tree artifact.
func WriteNewick(path string, newick []byte) error {
	if err := ValidateNewick(newick); err != nil {
		return err
	}
	return os.WriteFile(path, newick, 0644)
}
