package profile

import (
	"context"
	"database/sql"
	"strings"
	"testing"

	_ "modernc.org/sqlite"
)

const coverageSample = `#rname	startpos	endpos	numreads	covbases	coverage	meandepth	meanbaseq	meanmapq
asm1_12_10	1	1200	340	1140	95	12.4	35.1	58.2
asm2_4_1	1	900	0	0	0	0	0	0
`

func TestParseSamtoolsCoverage(t *testing.T) {

	covs, err := ParseSamtoolsCoverage(strings.NewReader(coverageSample))
	if err != nil {
		t.Fatalf("ParseSamtoolsCoverage: %v", err)
	}

	if len(covs) != 2 {
		t.Fatalf("got %d rows, want 2", len(covs))
	}

	first := covs[0]
	if first.Representative != "asm1_12_10" {
		t.Errorf("representative: %q", first.Representative)
	}
	if first.Depth != 12.4 {
		t.Errorf("depth: %g", first.Depth)
	}
	if first.Detection != 0.95 {
		t.Errorf("detection: %g", first.Detection)
	}

	if covs[1].Depth != 0 || covs[1].Detection != 0 {
		t.Errorf("unmapped representative: %+v", covs[1])
	}
}

func TestParseSamtoolsCoverageRejectsShortRows(t *testing.T) {
	if _, err := ParseSamtoolsCoverage(strings.NewReader("asm1_1_1\t1\t100\n")); err == nil {
		t.Fatalf("expected error for truncated row")
	}
}

func testProfileDB(t *testing.T) *DB {
	t.Helper()

	raw, err := sql.Open("sqlite", ":memory:")
	if err != nil {
		t.Fatalf("open sqlite: %v", err)
	}
	t.Cleanup(func() { raw.Close() })

	p, err := New(raw)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	return p
}

func TestAddSampleAndEntries(t *testing.T) {

	p := testProfileDB(t)
	ctx := context.Background()

	covs := []Coverage{
		{Representative: "repA", Depth: 10.5, Detection: 0.9},
		{Representative: "repB", Depth: 2.0, Detection: 0.4},
	}
	if err := p.AddSample(ctx, "s01", covs); err != nil {
		t.Fatalf("AddSample: %v", err)
	}

	entries, err := p.Entries(ctx)
	if err != nil {
		t.Fatalf("Entries: %v", err)
	}
	if len(entries) != 2 {
		t.Fatalf("got %d entries, want 2", len(entries))
	}
	if entries[0].Representative != "repA" || entries[0].Sample != "s01" ||
		entries[0].Depth != 10.5 || entries[0].Missing {
		t.Errorf("first entry: %+v", entries[0])
	}
}

// Re-adding a sample must not overwrite the first write.
func TestAddSampleAppendOnly(t *testing.T) {

	p := testProfileDB(t)
	ctx := context.Background()

	if err := p.AddSample(ctx, "s01", []Coverage{{Representative: "repA", Depth: 5}}); err != nil {
		t.Fatalf("AddSample: %v", err)
	}
	if err := p.AddSample(ctx, "s01", []Coverage{{Representative: "repA", Depth: 99}}); err != nil {
		t.Fatalf("second AddSample: %v", err)
	}

	entries, err := p.Entries(ctx)
	if err != nil {
		t.Fatalf("Entries: %v", err)
	}
	if len(entries) != 1 || entries[0].Depth != 5 {
		t.Errorf("second write overwrote: %+v", entries)
	}
}

// One failed sample out of three leaves the other two usable and its own
// cells explicitly marked, never silently absent.
func TestMarkMissingIsolatesFailedSample(t *testing.T) {

	p := testProfileDB(t)
	ctx := context.Background()

	reps := []string{"repA", "repB"}

	if err := p.AddSample(ctx, "s01", []Coverage{
		{Representative: "repA", Depth: 8, Detection: 0.8},
		{Representative: "repB", Depth: 3, Detection: 0.5},
	}); err != nil {
		t.Fatalf("AddSample s01: %v", err)
	}
	if err := p.MarkMissing(ctx, "s02", reps, "read recruitment failed"); err != nil {
		t.Fatalf("MarkMissing: %v", err)
	}
	if err := p.AddSample(ctx, "s03", []Coverage{
		{Representative: "repA", Depth: 1, Detection: 0.2},
		{Representative: "repB", Depth: 0, Detection: 0},
	}); err != nil {
		t.Fatalf("AddSample s03: %v", err)
	}

	present, err := p.SamplesPresent(ctx)
	if err != nil {
		t.Fatalf("SamplesPresent: %v", err)
	}
	for _, s := range []string{"s01", "s02", "s03"} {
		if !present[s] {
			t.Errorf("sample %s absent from profile", s)
		}
	}

	entries, err := p.Entries(ctx)
	if err != nil {
		t.Fatalf("Entries: %v", err)
	}
	if len(entries) != 6 {
		t.Fatalf("got %d cells, want 6", len(entries))
	}

	missing := 0
	for _, e := range entries {
		if e.Sample == "s02" {
			if !e.Missing || e.Reason != "read recruitment failed" {
				t.Errorf("failed sample cell: %+v", e)
			}
			missing++
			continue
		}
		if e.Missing {
			t.Errorf("healthy sample marked missing: %+v", e)
		}
	}
	if missing != len(reps) {
		t.Errorf("got %d missing markers, want %d", missing, len(reps))
	}
}
