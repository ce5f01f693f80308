package mode

import (
	"errors"
	"strings"
	"testing"

	"github.com/yumyai/ecophylo/pkg/config"
	"github.com/yumyai/ecophylo/pkg/fault"
	"github.com/yumyai/ecophylo/pkg/seqio"
)

func someAssemblies() []config.Assembly {
	return []config.Assembly{{Name: "asm1", Path: "/data/asm1.fa"}}
}

func someModels() []config.GeneModel {
	return []config.GeneModel{{Name: "rpoB", Path: "/hmm/rpoB.hmm"}}
}

func TestResolveTreeNT(t *testing.T) {

	m, err := Resolve(Inputs{Assemblies: someAssemblies(), GeneModels: someModels()})
	if err != nil {
		t.Fatalf("Resolve: %v", err)
	}
	if m != TreeNT {
		t.Errorf("got %s, want %s", m, TreeNT)
	}
	if m.ProfileEnabled() {
		t.Errorf("tree mode must not enable profiling")
	}
	if m.SequenceKind() != seqio.NT {
		t.Errorf("sequence kind: got %s", m.SequenceKind())
	}
}

func TestResolveTreeAA(t *testing.T) {

	m, err := Resolve(Inputs{Assemblies: someAssemblies(), GeneModels: someModels(), AAMode: true})
	if err != nil {
		t.Fatalf("Resolve: %v", err)
	}
	if m != TreeAA || m.SequenceKind() != seqio.AA {
		t.Errorf("got %s / %s", m, m.SequenceKind())
	}
}

func TestResolveProfile(t *testing.T) {

	samples := []config.Sample{{Name: "s01", Reads: []string{"/reads/s01.fastq.gz"}}}

	m, err := Resolve(Inputs{Assemblies: someAssemblies(), GeneModels: someModels(), Samples: samples})
	if err != nil {
		t.Fatalf("Resolve: %v", err)
	}
	if m != ProfileNT || !m.ProfileEnabled() {
		t.Errorf("got %s", m)
	}
	// Profile mode clusters nucleotides no matter what.
	if m.SequenceKind() != seqio.NT {
		t.Errorf("sequence kind: got %s", m.SequenceKind())
	}
}

func TestResolveProfileRejectsAAMode(t *testing.T) {

	samples := []config.Sample{{Name: "s01"}}

	_, err := Resolve(Inputs{Assemblies: someAssemblies(), GeneModels: someModels(), Samples: samples, AAMode: true})
	var ce *fault.ConfigError
	if !errors.As(err, &ce) {
		t.Fatalf("expected ConfigError, got %v", err)
	}
	if !strings.Contains(err.Error(), "AA-mode clustering incompatible with profile mode") {
		t.Errorf("unexpected message: %v", err)
	}
}

func TestResolveNoAssemblies(t *testing.T) {

	_, err := Resolve(Inputs{GeneModels: someModels()})
	var ce *fault.ConfigError
	if !errors.As(err, &ce) {
		t.Fatalf("expected ConfigError, got %v", err)
	}
	if !strings.Contains(err.Error(), "no assemblies provided") {
		t.Errorf("unexpected message: %v", err)
	}
}

func TestResolveNoGeneModels(t *testing.T) {

	_, err := Resolve(Inputs{Assemblies: someAssemblies()})
	if err == nil || !strings.Contains(err.Error(), "no target gene model") {
		t.Fatalf("expected no-gene-model ConfigError, got %v", err)
	}
}
