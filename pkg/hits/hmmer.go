package hits

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"

	"github.com/yumyai/ecophylo/pkg/tool"
)

// RunHmmsearch searches one gene model against one assembly's predicted
// proteins and writes the per-domain table to domtblPath.
func RunHmmsearch(ctx context.Context, runner tool.Runner, hmmPath, proteinFasta, domtblPath string) error {

	args := []string{
		"--domtblout", domtblPath,
		"--cpu", "1",
		"--noali",
		hmmPath,
		proteinFasta,
	}

	// hmmsearch prints the human-readable report to stdout; only the
	// domain table matters here.
	_, err := runner.Run(ctx, "hmmsearch", args, nil)
	return err
}

// ParseDomtbl reads a hmmsearch --domtblout table into hits. Alignment
// coordinates come back in residues and are converted to nucleotide
// positions on the gene call. Completeness is looked up from the gene
// calls of the same assembly.
func ParseDomtbl(r io.Reader, assembly string, calls map[string]GeneCall) ([]Hit, error) {

	var out []Hit

	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 0, 64*1024), 4*1024*1024)

	lineno := 0
	for scanner.Scan() {
		lineno++
		line := scanner.Text()
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}

		cols := strings.Fields(line)
		if len(cols) < 22 {
			return nil, fmt.Errorf("domtblout line %d: expected 22+ columns, got %d", lineno, len(cols))
		}

		geneCallID := cols[0]
		model := cols[3]
		qlen, err1 := strconv.Atoi(cols[5])
		score, err2 := strconv.ParseFloat(cols[13], 64)
		hmmFrom, err3 := strconv.Atoi(cols[15])
		hmmTo, err4 := strconv.Atoi(cols[16])
		aliFrom, err5 := strconv.Atoi(cols[17])
		aliTo, err6 := strconv.Atoi(cols[18])
		if err1 != nil || err2 != nil || err3 != nil || err4 != nil || err5 != nil || err6 != nil {
			return nil, fmt.Errorf("domtblout line %d: bad numeric field", lineno)
		}
		if qlen <= 0 {
			return nil, fmt.Errorf("domtblout line %d: model length %d", lineno, qlen)
		}

		call, ok := calls[geneCallID]
		if !ok {
			return nil, fmt.Errorf("domtblout line %d: unknown gene call %q", lineno, geneCallID)
		}

		out = append(out, Hit{
			ID:            fmt.Sprintf("%s_%s_%d", assembly, geneCallID, aliFrom),
			GeneModel:     model,
			GeneCallID:    geneCallID,
			Assembly:      assembly,
			BitScore:      score,
			ModelCoverage: float64(hmmTo-hmmFrom+1) / float64(qlen),
			AliFromNt:     (aliFrom-1)*3 + 1,
			AliToNt:       aliTo * 3,
			Complete:      call.Complete(),
		})
	}

	if err := scanner.Err(); err != nil {
		return nil, err
	}
	return out, nil
}

// ParseDomtblFile is the path-based wrapper around ParseDomtbl.
func ParseDomtblFile(path, assembly string, calls map[string]GeneCall) ([]Hit, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	hitList, err := ParseDomtbl(f, assembly, calls)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return hitList, nil
}
