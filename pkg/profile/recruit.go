// Package profile drives per-sample read recruitment against the
// nucleotide representatives and merges the per-sequence coverage into
// one profile store.
package profile

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"

	"github.com/yumyai/ecophylo/pkg/config"
	"github.com/yumyai/ecophylo/pkg/tool"
)

// Coverage is the mapping statistics of one representative in one sample.
type Coverage struct {
	Representative string
	Depth          float64
	Detection      float64
}

// Recruiter maps one sample's reads onto the representative sequences
// and reports per-representative coverage.
type Recruiter interface {
	Recruit(ctx context.Context, refFasta string, sample config.Sample, workPrefix string) ([]Coverage, error)
}

// Minimap2 recruits with minimap2 and summarizes with samtools coverage.
type Minimap2 struct {
	Runner tool.Runner
}

func (m Minimap2) Recruit(ctx context.Context, refFasta string, sample config.Sample, workPrefix string) ([]Coverage, error) {

	if len(sample.Reads) == 0 {
		return nil, fmt.Errorf("sample %s has no read files", sample.Name)
	}

	args := append([]string{"-ax", "sr", refFasta}, sample.Reads...)
	sam, err := m.Runner.Run(ctx, "minimap2", args, nil)
	if err != nil {
		return nil, err
	}

	samPath := workPrefix + ".sam"
	if err := os.WriteFile(samPath, sam, 0644); err != nil {
		return nil, err
	}

	bamPath := workPrefix + ".bam"
	if _, err := m.Runner.Run(ctx, "samtools",
		[]string{"sort", "-O", "bam", "-o", bamPath, samPath}, nil); err != nil {
		return nil, err
	}

	covOut, err := m.Runner.Run(ctx, "samtools", []string{"coverage", bamPath}, nil)
	if err != nil {
		return nil, err
	}

	return ParseSamtoolsCoverage(strings.NewReader(string(covOut)))
}

// ParseSamtoolsCoverage reads the `samtools coverage` table: rname,
// startpos, endpos, numreads, covbases, coverage, meandepth, meanbaseq,
// meanmapq. Detection is the covered fraction, depth the mean depth.
func ParseSamtoolsCoverage(r io.Reader) ([]Coverage, error) {

	var out []Coverage

	scanner := bufio.NewScanner(r)
	lineno := 0
	for scanner.Scan() {
		lineno++
		line := strings.TrimSpace(scanner.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}

		cols := strings.Split(line, "\t")
		if len(cols) < 9 {
			return nil, fmt.Errorf("coverage table line %d: expected 9 columns, got %d", lineno, len(cols))
		}

		covPct, err1 := strconv.ParseFloat(cols[5], 64)
		depth, err2 := strconv.ParseFloat(cols[6], 64)
		if err1 != nil || err2 != nil {
			return nil, fmt.Errorf("coverage table line %d: bad numeric field", lineno)
		}

		out = append(out, Coverage{
			Representative: cols[0],
			Depth:          depth,
			Detection:      covPct / 100.0,
		})
	}

	if err := scanner.Err(); err != nil {
		return nil, err
	}
	return out, nil
}
