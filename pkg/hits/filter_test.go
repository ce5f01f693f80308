package hits

import (
	"errors"
	"math"
	"math/rand"
	"strings"
	"testing"

	"github.com/yumyai/ecophylo/pkg/fault"
)

func mkHit(id string, coverage float64, complete bool) Hit {
	return Hit{
		ID:            id,
		GeneModel:     "rpoB",
		GeneCallID:    "gc_" + id,
		Assembly:      "asm1",
		ModelCoverage: coverage,
		AliFromNt:     1,
		AliToNt:       300,
		Complete:      complete,
	}
}

func TestFilterCoverageThreshold(t *testing.T) {

	in := []Hit{
		mkHit("a", 0.95, true),
		mkHit("b", 0.79, true),
		mkHit("c", 0.80, true),
	}

	set, err := Filter("rpoB", in, 0.8, 0, false)
	if err != nil {
		t.Fatalf("Filter: %v", err)
	}

	if len(set.Hits) != 2 {
		t.Fatalf("got %d hits, want 2", len(set.Hits))
	}
	for _, h := range set.Hits {
		if h.ModelCoverage < 0.8 {
			t.Errorf("hit %s below threshold: %g", h.ID, h.ModelCoverage)
		}
	}
}

func TestFilterDropPartial(t *testing.T) {

	in := []Hit{
		mkHit("a", 0.95, true),
		mkHit("b", 0.95, false),
	}

	set, err := Filter("rpoB", in, 0.8, 0, true)
	if err != nil {
		t.Fatalf("Filter: %v", err)
	}

	if len(set.Hits) != 1 || set.Hits[0].ID != "a" {
		t.Fatalf("expected only the complete hit, got %+v", set.Hits)
	}
}

// The scenario from the acceptance checklist: 5 hits, one removed by the
// coverage/partial filter, leaving 4 for clustering.
func TestFilterScenarioFiveHits(t *testing.T) {

	in := []Hit{
		mkHit("h1", 0.91, true),
		mkHit("h2", 0.88, true),
		mkHit("h3", 0.95, true),
		mkHit("h4", 0.85, true),
		mkHit("h5", 0.92, false), // partial, dropped
	}

	set, err := Filter("rpoB", in, 0.8, 0, true)
	if err != nil {
		t.Fatalf("Filter: %v", err)
	}
	if len(set.Hits) != 4 {
		t.Fatalf("got %d hits, want 4", len(set.Hits))
	}
}

func TestFilterOrderIndependent(t *testing.T) {

	in := []Hit{
		mkHit("a", 0.95, true),
		mkHit("b", 0.70, true),
		mkHit("c", 0.85, false),
		mkHit("d", 0.99, true),
		mkHit("e", 0.81, true),
	}

	first, err := Filter("rpoB", in, 0.8, 0, true)
	if err != nil {
		t.Fatalf("Filter: %v", err)
	}

	shuffled := make([]Hit, len(in))
	copy(shuffled, in)
	rand.New(rand.NewSource(42)).Shuffle(len(shuffled), func(i, j int) {
		shuffled[i], shuffled[j] = shuffled[j], shuffled[i]
	})

	second, err := Filter("rpoB", shuffled, 0.8, 0, true)
	if err != nil {
		t.Fatalf("Filter: %v", err)
	}

	if len(first.Hits) != len(second.Hits) {
		t.Fatalf("order changed the result size: %d vs %d", len(first.Hits), len(second.Hits))
	}
	for i := range first.Hits {
		if first.Hits[i].ID != second.Hits[i].ID {
			t.Errorf("position %d: %s vs %s", i, first.Hits[i].ID, second.Hits[i].ID)
		}
	}
	if first.Fingerprint() != second.Fingerprint() {
		t.Errorf("fingerprints differ across input orders")
	}
}

func TestFilterMergesFragments(t *testing.T) {

	// Two fragments of the same gene call, 90 nt apart, each covering
	// under the threshold but jointly above it.
	frag1 := Hit{
		ID: "h1", GeneModel: "rpoB", GeneCallID: "gc1", Assembly: "asm1",
		ModelCoverage: 0.5, BitScore: 100, AliFromNt: 1, AliToNt: 600, Complete: true,
	}
	frag2 := Hit{
		ID: "h2", GeneModel: "rpoB", GeneCallID: "gc1", Assembly: "asm1",
		ModelCoverage: 0.45, BitScore: 80, AliFromNt: 691, AliToNt: 1200, Complete: true,
	}
	other := Hit{
		ID: "h3", GeneModel: "rpoB", GeneCallID: "gc2", Assembly: "asm1",
		ModelCoverage: 0.9, BitScore: 300, AliFromNt: 1, AliToNt: 1200, Complete: true,
	}

	set, err := Filter("rpoB", []Hit{frag1, frag2, other}, 0.8, 100, false)
	if err != nil {
		t.Fatalf("Filter: %v", err)
	}

	if len(set.Hits) != 2 {
		t.Fatalf("got %d hits, want 2 (merged + other): %+v", len(set.Hits), set.Hits)
	}

	var merged *Hit
	for i := range set.Hits {
		if set.Hits[i].GeneCallID == "gc1" {
			merged = &set.Hits[i]
		}
	}
	if merged == nil {
		t.Fatalf("merged hit missing")
	}
	if merged.ID != "h1" || merged.AliFromNt != 1 || merged.AliToNt != 1200 {
		t.Errorf("merged hit: %+v", merged)
	}
	if math.Abs(merged.ModelCoverage-0.95) > 1e-9 {
		t.Errorf("merged coverage: got %g, want 0.95", merged.ModelCoverage)
	}
}

func TestFilterMergeRespectsGap(t *testing.T) {

	frag1 := Hit{
		ID: "h1", GeneModel: "rpoB", GeneCallID: "gc1", Assembly: "asm1",
		ModelCoverage: 0.5, AliFromNt: 1, AliToNt: 600, Complete: true,
	}
	frag2 := Hit{
		ID: "h2", GeneModel: "rpoB", GeneCallID: "gc1", Assembly: "asm1",
		ModelCoverage: 0.45, AliFromNt: 1000, AliToNt: 1500, Complete: true,
	}

	// Gap is 399 nt, merge window only 100: both fragments stay apart
	// and both fall under the coverage threshold.
	_, err := Filter("rpoB", []Hit{frag1, frag2}, 0.8, 100, false)
	var tv *fault.ThresholdViolationError
	if !errors.As(err, &tv) {
		t.Fatalf("expected ThresholdViolationError, got %v", err)
	}
}

func TestFilterModelNameMismatch(t *testing.T) {

	in := []Hit{mkHit("a", 0.95, true)}
	in[0].GeneModel = "PF04563.15"

	_, err := Filter("rpoB", in, 0.8, 0, false)
	var ce *fault.ConfigError
	if !errors.As(err, &ce) {
		t.Fatalf("expected ConfigError for model name mismatch, got %v", err)
	}
	if !strings.Contains(err.Error(), "rpoB") || !strings.Contains(err.Error(), "PF04563.15") {
		t.Errorf("error must name both the list entry and the HMM NAME: %v", err)
	}
}

func TestFilterEmptyResultFailsFast(t *testing.T) {

	in := []Hit{mkHit("a", 0.5, true)}

	_, err := Filter("rpoB", in, 0.8, 0, false)
	var tv *fault.ThresholdViolationError
	if !errors.As(err, &tv) {
		t.Fatalf("expected ThresholdViolationError, got %v", err)
	}
	if tv.GeneModel != "rpoB" {
		t.Errorf("error must name the gene model, got %q", tv.GeneModel)
	}
}

func TestFilteredTSVRoundTrip(t *testing.T) {

	set, err := Filter("rpoB", []Hit{mkHit("a", 0.95, true), mkHit("b", 0.85, false)}, 0.8, 0, false)
	if err != nil {
		t.Fatalf("Filter: %v", err)
	}

	var buf strings.Builder
	if err := set.WriteTSV(&buf); err != nil {
		t.Fatalf("WriteTSV: %v", err)
	}

	p := t.TempDir() + "/filtered.tsv"
	if err := set.WriteTSVFile(p); err != nil {
		t.Fatalf("WriteTSVFile: %v", err)
	}

	back, err := ReadFilteredTSV(p)
	if err != nil {
		t.Fatalf("ReadFilteredTSV: %v", err)
	}
	if len(back) != len(set.Hits) {
		t.Fatalf("got %d hits back, want %d", len(back), len(set.Hits))
	}
	for i := range back {
		if back[i].ID != set.Hits[i].ID || back[i].ModelCoverage != set.Hits[i].ModelCoverage ||
			back[i].Complete != set.Hits[i].Complete {
			t.Errorf("row %d mismatch: %+v vs %+v", i, back[i], set.Hits[i])
		}
	}
}
