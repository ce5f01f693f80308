// Package mode decides which shape of the pipeline a configuration asks
// for. The decision happens once, before any stage runs, and the result
// is passed by value through the scheduler so every component sees the
// same answer.
package mode

import (
	"github.com/yumyai/ecophylo/pkg/config"
	"github.com/yumyai/ecophylo/pkg/fault"
	"github.com/yumyai/ecophylo/pkg/seqio"
)

// RunMode is the resolved pipeline shape.
type RunMode string

const (
	// TreeNT clusters nucleotide sequences and builds a tree.
	TreeNT RunMode = "tree_nt"

	// TreeAA clusters amino-acid sequences and builds a tree.
	TreeAA RunMode = "tree_aa"

	// ProfileNT is TreeNT plus per-sample read recruitment. Profile mode
	// needs nucleotide-level divergence between representatives so reads
	// do not cross-map between genes, hence no AA variant exists.
	ProfileNT RunMode = "profile_nt"
)

func (m RunMode) String() string {
	return string(m)
}

// ProfileEnabled tells whether the read-recruitment branch is active.
func (m RunMode) ProfileEnabled() bool {
	return m == ProfileNT
}

// SequenceKind is the sequence view used for clustering and
// representative extraction.
func (m RunMode) SequenceKind() seqio.Kind {
	if m == TreeAA {
		return seqio.AA
	}
	return seqio.NT
}

// Inputs carries the already-loaded list files the resolver decides over.
type Inputs struct {
	Assemblies []config.Assembly
	GeneModels []config.GeneModel
	Samples    []config.Sample
	AAMode     bool
}

// Resolve validates the input combination and derives the RunMode.
// Validation order follows the user-facing contract: assemblies first,
// then gene models, then the sample/AA interaction.
func Resolve(in Inputs) (RunMode, error) {

	if len(in.Assemblies) == 0 {
		return "", fault.Configf("no assemblies provided")
	}

	if len(in.GeneModels) == 0 {
		return "", fault.Configf("no target gene model")
	}

	if len(in.Samples) > 0 {
		if in.AAMode {
			return "", fault.Configf("AA-mode clustering incompatible with profile mode")
		}
		return ProfileNT, nil
	}

	if in.AAMode {
		return TreeAA, nil
	}
	return TreeNT, nil
}
