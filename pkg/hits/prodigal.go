package hits

import (
	"context"
	"fmt"
	"os"
	"sort"
	"strconv"
	"strings"

	"github.com/yumyai/ecophylo/pkg/seqio"
	"github.com/yumyai/ecophylo/pkg/tool"
)

// RunProdigal predicts genes on one assembly and returns the nucleotide
// and protein FASTA paths. Prodigal encodes start/stop evidence in the
// `partial=` header flag, which is where completeness comes from.
func RunProdigal(ctx context.Context, runner tool.Runner, assemblyFasta, outPrefix string) (string, string, error) {

	ntPath := outPrefix + "_genes.fna"
	aaPath := outPrefix + "_genes.faa"

	args := []string{
		"-i", assemblyFasta,
		"-d", ntPath,
		"-a", aaPath,
		"-p", "meta",
		"-q",
		"-o", os.DevNull,
	}

	if _, err := runner.Run(ctx, "prodigal", args, nil); err != nil {
		return "", "", err
	}

	return ntPath, aaPath, nil
}

// ParseProdigalCalls derives gene calls from prodigal FASTA headers:
//
//	>contig_1_2 # 517 # 1689 # 1 # ID=1_2;partial=00;start_type=ATG;...
//
// partial=00 means both gene edges are present.
func ParseProdigalCalls(path, assembly string) (map[string]GeneCall, error) {

	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}

	calls := make(map[string]GeneCall)

	for _, line := range strings.Split(string(raw), "\n") {
		if !strings.HasPrefix(line, ">") {
			continue
		}

		parts := strings.Split(line[1:], " # ")
		if len(parts) < 5 {
			return nil, fmt.Errorf("%s: malformed prodigal header %q", path, line)
		}

		id := strings.Fields(parts[0])[0]
		start, err1 := strconv.Atoi(parts[1])
		stop, err2 := strconv.Atoi(parts[2])
		if err1 != nil || err2 != nil {
			return nil, fmt.Errorf("%s: bad coordinates in header %q", path, line)
		}

		direction := "f"
		if strings.TrimSpace(parts[3]) == "-1" {
			direction = "r"
		}

		partial := true
		for _, attr := range strings.Split(parts[4], ";") {
			if rest, ok := strings.CutPrefix(attr, "partial="); ok {
				partial = rest != "00"
			}
		}

		// Prodigal names genes <contig>_<n>.
		contig := id
		if cut := strings.LastIndex(id, "_"); cut > 0 {
			contig = id[:cut]
		}

		calls[id] = GeneCall{
			ID:        id,
			Assembly:  assembly,
			Contig:    contig,
			Start:     start,
			Stop:      stop,
			Direction: direction,
			Partial:   partial,
		}
	}

	return calls, nil
}

// WriteGeneCalls persists calls in the normalized table ReadGeneCalls
// understands, so a cached prediction stage can be reloaded.
func WriteGeneCalls(path string, calls map[string]GeneCall) error {

	f, err := os.Create(path)
	if err != nil {
		return err
	}

	ids := make([]string, 0, len(calls))
	for id := range calls {
		ids = append(ids, id)
	}
	sort.Strings(ids)

	if _, err := fmt.Fprintln(f, "gene_id\tcontig\tstart\tstop\tdirection\tpartial"); err != nil {
		f.Close()
		return err
	}

	for _, id := range ids {
		c := calls[id]
		partial := 0
		if c.Partial {
			partial = 1
		}
		if _, err := fmt.Fprintf(f, "%s\t%s\t%d\t%d\t%s\t%d\n",
			c.ID, c.Contig, c.Start, c.Stop, c.Direction, partial); err != nil {
			f.Close()
			return err
		}
	}

	return f.Close()
}

// SequenceMap indexes FASTA records by assembly-qualified gene call id.
func SequenceMap(assembly string, records []seqio.Record) map[string]string {
	out := make(map[string]string, len(records))
	for _, rec := range records {
		out[assembly+"|"+rec.ID] = strings.TrimSuffix(rec.Seq, "*")
	}
	return out
}
