package hits

import (
	"bufio"
	"fmt"
	"io"
	"os"
	"sort"
	"strconv"
	"strings"

	"github.com/yumyai/ecophylo/internal/util"
	"github.com/yumyai/ecophylo/pkg/fault"
)

// FilteredHitSet is the immutable snapshot of hits surviving the quality
// filter for one gene model, versioned by the parameters that produced it.
type FilteredHitSet struct {
	GeneModel   string
	Coverage    float64
	MergeGapNt  int
	DropPartial bool
	Hits        []Hit
}

// Fingerprint covers the filter parameters and the surviving hit ids, so
// the artifact store can tell two filter runs apart.
func (s *FilteredHitSet) Fingerprint() string {
	var b strings.Builder
	fmt.Fprintf(&b, "%s|%g|%d|%t", s.GeneModel, s.Coverage, s.MergeGapNt, s.DropPartial)
	for _, h := range s.Hits {
		b.WriteString("|")
		b.WriteString(h.ID)
	}
	return util.Sha256Hex([]byte(b.String()))
}

// Filter applies the hit quality filter to one gene model's hits:
// fragmented alignments of the same gene call are merged when their
// nucleotide gap is within mergeGapNt, then hits below the model-coverage
// threshold are dropped, then (optionally) hits on partial gene calls.
//
// The result is a strict subset of the input and independent of input
// order. An empty result is a ThresholdViolationError for this gene
// model; clustering must never see an empty set silently.
func Filter(geneModel string, in []Hit, coverage float64, mergeGapNt int, dropPartial bool) (*FilteredHitSet, error) {

	for _, h := range in {
		if h.GeneModel != geneModel {
			// The search tool reports the NAME field from inside the HMM
			// file; when that differs from the list entry the list is
			// wrong, not the hits.
			return nil, fault.Configf("gene model list names %q but search results carry %q (hit %s); the list name must match the HMM NAME field",
				geneModel, h.GeneModel, h.ID)
		}
	}

	merged := mergeFragments(in, mergeGapNt)

	kept := make([]Hit, 0, len(merged))
	for _, h := range merged {
		if h.ModelCoverage < coverage {
			continue
		}
		if dropPartial && !h.Complete {
			continue
		}
		kept = append(kept, h)
	}

	if len(kept) == 0 {
		return nil, &fault.ThresholdViolationError{
			GeneModel: geneModel,
			Stage:     "filter_hmm_hits_by_model_coverage",
			Reason: fmt.Sprintf("no hits left after coverage >= %g (drop_partial=%t), had %d",
				coverage, dropPartial, len(in)),
		}
	}

	sort.Slice(kept, func(i, j int) bool { return kept[i].ID < kept[j].ID })

	return &FilteredHitSet{
		GeneModel:   geneModel,
		Coverage:    coverage,
		MergeGapNt:  mergeGapNt,
		DropPartial: dropPartial,
		Hits:        kept,
	}, nil
}

// mergeFragments joins hits of the same gene call whose aligned ranges
// sit within gapNt of each other, summing model coverage (capped at 1.0)
// and bit score. gapNt 0 disables merging.
func mergeFragments(in []Hit, gapNt int) []Hit {

	if gapNt <= 0 {
		out := make([]Hit, len(in))
		copy(out, in)
		sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
		return out
	}

	byCall := make(map[string][]Hit)
	for _, h := range in {
		byCall[h.GeneCallID] = append(byCall[h.GeneCallID], h)
	}

	callIDs := make([]string, 0, len(byCall))
	for id := range byCall {
		callIDs = append(callIDs, id)
	}
	sort.Strings(callIDs)

	var out []Hit
	for _, callID := range callIDs {
		group := byCall[callID]
		sort.Slice(group, func(i, j int) bool {
			if group[i].AliFromNt != group[j].AliFromNt {
				return group[i].AliFromNt < group[j].AliFromNt
			}
			return group[i].ID < group[j].ID
		})

		current := group[0]
		for _, next := range group[1:] {
			gap := next.AliFromNt - current.AliToNt - 1
			if gap <= gapNt {
				if next.ID < current.ID {
					current.ID = next.ID
				}
				if next.AliToNt > current.AliToNt {
					current.AliToNt = next.AliToNt
				}
				current.ModelCoverage += next.ModelCoverage
				if current.ModelCoverage > 1.0 {
					current.ModelCoverage = 1.0
				}
				current.BitScore += next.BitScore
				continue
			}
			out = append(out, current)
			current = next
		}
		out = append(out, current)
	}

	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

// WriteTSV persists the filtered set for inspection and reuse.
func (s *FilteredHitSet) WriteTSV(w io.Writer) error {

	if _, err := fmt.Fprintln(w, "hit_id\tgene_model\tgene_call\tassembly\tbit_score\tmodel_coverage\tali_from_nt\tali_to_nt\tcomplete"); err != nil {
		return err
	}

	for _, h := range s.Hits {
		_, err := fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%.1f\t%.4f\t%d\t%d\t%t\n",
			h.ID, h.GeneModel, h.GeneCallID, h.Assembly, h.BitScore, h.ModelCoverage,
			h.AliFromNt, h.AliToNt, h.Complete)
		if err != nil {
			return err
		}
	}
	return nil
}

// WriteTSVFile writes the table to path.
func (s *FilteredHitSet) WriteTSVFile(path string) error {
	f, err := os.Create(path)
	if err != nil {
		return err
	}
	if err := s.WriteTSV(f); err != nil {
		f.Close()
		return err
	}
	return f.Close()
}

// ReadFilteredTSV loads a persisted filtered-hit table back, so a run
// resuming from cached artifacts does not depend on in-memory state.
// Sequence views are not stored in the table and must be re-attached.
func ReadFilteredTSV(path string) ([]Hit, error) {

	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	var out []Hit

	scanner := bufio.NewScanner(f)
	lineno := 0
	for scanner.Scan() {
		lineno++
		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}

		cols := strings.Split(line, "\t")
		if lineno == 1 && cols[0] == "hit_id" {
			continue
		}
		if len(cols) != 9 {
			return nil, fmt.Errorf("%s line %d: expected 9 columns, got %d", path, lineno, len(cols))
		}

		score, err1 := strconv.ParseFloat(cols[4], 64)
		coverage, err2 := strconv.ParseFloat(cols[5], 64)
		from, err3 := strconv.Atoi(cols[6])
		to, err4 := strconv.Atoi(cols[7])
		complete, err5 := strconv.ParseBool(cols[8])
		if err1 != nil || err2 != nil || err3 != nil || err4 != nil || err5 != nil {
			return nil, fmt.Errorf("%s line %d: bad field", path, lineno)
		}

		out = append(out, Hit{
			ID:            cols[0],
			GeneModel:     cols[1],
			GeneCallID:    cols[2],
			Assembly:      cols[3],
			BitScore:      score,
			ModelCoverage: coverage,
			AliFromNt:     from,
			AliToNt:       to,
			Complete:      complete,
		})
	}

	if err := scanner.Err(); err != nil {
		return nil, err
	}
	return out, nil
}
