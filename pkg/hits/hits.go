// Package hits models gene calls and HMM hits and implements the hit
// quality filter that sits between homology search and clustering.
package hits

import (
	"bufio"
	"fmt"
	"os"
	"strconv"
	"strings"

	"github.com/yumyai/ecophylo/pkg/fault"
)

// GeneCall is one predicted coding region within an assembly. Gene
// prediction happens upstream; these records are read-only here.
type GeneCall struct {
	ID        string
	Assembly  string
	Contig    string
	Start     int
	Stop      int
	Direction string
	Partial   bool
}

// Complete tells whether both start and stop codon evidence is present.
func (g GeneCall) Complete() bool {
	return !g.Partial
}

// Hit associates a gene call with a target gene model. Alignment
// coordinates are nucleotide positions on the gene call; ModelCoverage is
// the fraction of the model length the alignment spans.
type Hit struct {
	ID            string
	GeneModel     string
	GeneCallID    string
	Assembly      string
	BitScore      float64
	ModelCoverage float64
	AliFromNt     int
	AliToNt       int
	Complete      bool

	// Sequence views, attached after gene export. Which one feeds
	// clustering depends on the run mode.
	SeqNT string
	SeqAA string
}

// Key qualifies the gene call id with its assembly; gene ids repeat
// across assemblies.
func (h Hit) Key() string {
	return h.Assembly + "|" + h.GeneCallID
}

// ReadGeneCalls parses the gene-calls table emitted by the upstream gene
// predictor: gene_id, contig, start, stop, direction, partial(0|1).
func ReadGeneCalls(path string, assembly string) (map[string]GeneCall, error) {

	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open gene calls: %w", err)
	}
	defer f.Close()

	calls := make(map[string]GeneCall)

	scanner := bufio.NewScanner(f)
	lineno := 0
	for scanner.Scan() {
		lineno++
		line := strings.TrimSpace(scanner.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}

		cols := strings.Split(line, "\t")
		if lineno == 1 && strings.EqualFold(cols[0], "gene_id") {
			continue
		}
		if len(cols) < 6 {
			return nil, fmt.Errorf("%s line %d: expected 6 columns", path, lineno)
		}

		start, err1 := strconv.Atoi(cols[2])
		stop, err2 := strconv.Atoi(cols[3])
		partial, err3 := strconv.Atoi(cols[5])
		if err1 != nil || err2 != nil || err3 != nil {
			return nil, fmt.Errorf("%s line %d: bad numeric field", path, lineno)
		}

		calls[cols[0]] = GeneCall{
			ID:        cols[0],
			Assembly:  assembly,
			Contig:    cols[1],
			Start:     start,
			Stop:      stop,
			Direction: cols[4],
			Partial:   partial != 0,
		}
	}

	if err := scanner.Err(); err != nil {
		return nil, err
	}
	return calls, nil
}

// AttachSequences fills the NT and AA views of each hit from the exported
// gene FASTA records, keyed by assembly-qualified gene call id (see
// SequenceMap). Hits whose gene call has no exported sequence are an
// input inconsistency.
func AttachSequences(hitList []Hit, nt map[string]string, aa map[string]string) error {
	for i := range hitList {
		h := &hitList[i]
		seqNT, okNT := nt[h.Key()]
		seqAA, okAA := aa[h.Key()]
		if !okNT || !okAA {
			return fmt.Errorf("no exported sequence for gene call %q (hit %s)", h.Key(), h.ID)
		}
		h.SeqNT = seqNT
		h.SeqAA = seqAA
	}
	return nil
}

// SanityCheckAssembly verifies that an assembly path exists and starts
// with a FASTA header. Failures are isolated to that assembly's branch.
func SanityCheckAssembly(name, path string) error {

	f, err := os.Open(path)
	if err != nil {
		return &fault.InputValidationError{Assembly: name, Reason: err.Error()}
	}
	defer f.Close()

	scanner := bufio.NewScanner(f)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}
		if !strings.HasPrefix(line, ">") {
			return &fault.InputValidationError{Assembly: name, Reason: "not a FASTA file"}
		}
		return nil
	}

	return &fault.InputValidationError{Assembly: name, Reason: "empty file"}
}
