package cluster

import (
	"errors"
	"strings"
	"testing"

	"github.com/yumyai/ecophylo/pkg/fault"
	"github.com/yumyai/ecophylo/pkg/hits"
	"github.com/yumyai/ecophylo/pkg/seqio"
)

func TestValidateThresholds(t *testing.T) {

	if err := ValidateThresholds([]float64{0.99, 0.98, 0.97}); err != nil {
		t.Fatalf("descending set rejected: %v", err)
	}

	var ce *fault.ConfigError
	if err := ValidateThresholds([]float64{0.97, 0.98}); !errors.As(err, &ce) {
		t.Errorf("ascending set: expected ConfigError, got %v", err)
	}
	if err := ValidateThresholds([]float64{0.98, 0.98}); !errors.As(err, &ce) {
		t.Errorf("duplicate set: expected ConfigError, got %v", err)
	}
	if err := ValidateThresholds(nil); !errors.As(err, &ce) {
		t.Errorf("empty set: expected ConfigError, got %v", err)
	}
}

func TestParseClusterTSVDeterministic(t *testing.T) {

	tsv := "repA\trepA\nrepA\th2\nrepA\th3\nrepB\trepB\n"
	reversed := "repB\trepB\nrepA\th3\nrepA\th2\nrepA\trepA\n"

	first, err := ParseClusterTSV(strings.NewReader(tsv), 0.94)
	if err != nil {
		t.Fatalf("ParseClusterTSV: %v", err)
	}
	second, err := ParseClusterTSV(strings.NewReader(reversed), 0.94)
	if err != nil {
		t.Fatalf("ParseClusterTSV: %v", err)
	}

	if len(first) != 2 || len(second) != 2 {
		t.Fatalf("cluster counts: %d, %d", len(first), len(second))
	}
	for i := range first {
		if first[i].ID() != second[i].ID() {
			t.Errorf("cluster %d id differs across input orders: %s vs %s", i, first[i].ID(), second[i].ID())
		}
		if strings.Join(first[i].Members, ",") != strings.Join(second[i].Members, ",") {
			t.Errorf("cluster %d members differ", i)
		}
	}
}

func filteredSet(hitList []hits.Hit) *hits.FilteredHitSet {
	return &hits.FilteredHitSet{GeneModel: "rpoB", Hits: hitList}
}

// Scenario: clusters of size 3 and 1 at the primary threshold yield
// exactly one representative, from the size-3 cluster.
func TestSelectRepresentativesSizeRule(t *testing.T) {

	hitList := []hits.Hit{
		{ID: "h1", GeneModel: "rpoB", SeqNT: "ATGAAAGGG", SeqAA: "MKG"},
		{ID: "h2", GeneModel: "rpoB", SeqNT: "ATGAAAGGC", SeqAA: "MKG"},
		{ID: "h3", GeneModel: "rpoB", SeqNT: "ATGAAAGGA", SeqAA: "MKG"},
		{ID: "h4", GeneModel: "rpoB", SeqNT: "ATGCCCTTT", SeqAA: "MPF"},
	}

	clusters := []Cluster{
		{Threshold: 0.94, Centroid: "h1", Members: []string{"h1", "h2", "h3"}},
		{Threshold: 0.94, Centroid: "h4", Members: []string{"h4"}},
	}

	reps, err := SelectRepresentatives(clusters, filteredSet(hitList), seqio.NT)
	if err != nil {
		t.Fatalf("SelectRepresentatives: %v", err)
	}

	if len(reps) != 1 {
		t.Fatalf("got %d representatives, want 1", len(reps))
	}
	if reps[0].HitID != "h1" {
		t.Errorf("representative: got %s, want centroid h1", reps[0].HitID)
	}
	if len(reps[0].Members) != 3 {
		t.Errorf("provenance members: %v", reps[0].Members)
	}
}

func TestSelectRepresentativesSizeTwoExcluded(t *testing.T) {

	hitList := []hits.Hit{
		{ID: "h1", GeneModel: "rpoB", SeqNT: "ATG", SeqAA: "M"},
		{ID: "h2", GeneModel: "rpoB", SeqNT: "ATG", SeqAA: "M"},
	}
	clusters := []Cluster{
		{Threshold: 0.94, Centroid: "h1", Members: []string{"h1", "h2"}},
	}

	_, err := SelectRepresentatives(clusters, filteredSet(hitList), seqio.NT)
	var tv *fault.ThresholdViolationError
	if !errors.As(err, &tv) {
		t.Fatalf("doubleton-only input: expected ThresholdViolationError, got %v", err)
	}
}

func TestSelectRepresentativesNTModeTranslates(t *testing.T) {

	hitList := []hits.Hit{
		{ID: "h1", GeneModel: "rpoB", SeqNT: "ATGAAATTTTAA"},
		{ID: "h2", GeneModel: "rpoB", SeqNT: "ATGAAATTTTAA"},
		{ID: "h3", GeneModel: "rpoB", SeqNT: "ATGAAATTTTAA"},
	}
	clusters := []Cluster{
		{Threshold: 0.94, Centroid: "h2", Members: []string{"h1", "h2", "h3"}},
	}

	reps, err := SelectRepresentatives(clusters, filteredSet(hitList), seqio.NT)
	if err != nil {
		t.Fatalf("SelectRepresentatives: %v", err)
	}

	if reps[0].SeqNT != "ATGAAATTTTAA" {
		t.Errorf("nucleotide view must be retained for read recruitment")
	}
	if reps[0].SeqAA != "MKF" {
		t.Errorf("translated view: got %q, want MKF", reps[0].SeqAA)
	}
}

func TestPickMemberFallback(t *testing.T) {

	hitList := []hits.Hit{
		{ID: "h1", GeneModel: "rpoB", SeqNT: "ATGATG", SeqAA: "MM"},
		{ID: "h2", GeneModel: "rpoB", SeqNT: "ATGATGATG", SeqAA: "MMM"},
		{ID: "h3", GeneModel: "rpoB", SeqNT: "ATGATGATG", SeqAA: "MMM"},
	}

	// Centroid points at a sequence the tool dropped: fall back to the
	// longest member, ties broken by smallest id.
	clusters := []Cluster{
		{Threshold: 0.94, Centroid: "gone", Members: []string{"h1", "h2", "h3"}},
	}

	reps, err := SelectRepresentatives(clusters, filteredSet(hitList), seqio.NT)
	if err != nil {
		t.Fatalf("SelectRepresentatives: %v", err)
	}
	if reps[0].HitID != "h2" {
		t.Errorf("fallback pick: got %s, want h2", reps[0].HitID)
	}
}

func TestSelectRepresentativesDeterministic(t *testing.T) {

	hitList := []hits.Hit{
		{ID: "h1", GeneModel: "rpoB", SeqNT: "ATGAAA"},
		{ID: "h2", GeneModel: "rpoB", SeqNT: "ATGAAA"},
		{ID: "h3", GeneModel: "rpoB", SeqNT: "ATGAAA"},
		{ID: "h4", GeneModel: "rpoB", SeqNT: "ATGCCC"},
		{ID: "h5", GeneModel: "rpoB", SeqNT: "ATGCCC"},
		{ID: "h6", GeneModel: "rpoB", SeqNT: "ATGCCC"},
	}
	clusters := []Cluster{
		{Threshold: 0.94, Centroid: "h4", Members: []string{"h4", "h5", "h6"}},
		{Threshold: 0.94, Centroid: "h1", Members: []string{"h1", "h2", "h3"}},
	}

	first, err := SelectRepresentatives(clusters, filteredSet(hitList), seqio.NT)
	if err != nil {
		t.Fatalf("SelectRepresentatives: %v", err)
	}
	second, err := SelectRepresentatives(clusters, filteredSet(hitList), seqio.NT)
	if err != nil {
		t.Fatalf("SelectRepresentatives: %v", err)
	}

	if len(first) != len(second) {
		t.Fatalf("rerun changed the count")
	}
	for i := range first {
		if first[i].HitID != second[i].HitID || first[i].ClusterID != second[i].ClusterID {
			t.Errorf("rerun changed representative %d", i)
		}
	}
}
