package cluster

import (
	"context"
	"fmt"
	"path"
	"strconv"

	"github.com/yumyai/ecophylo/pkg/fault"
	"github.com/yumyai/ecophylo/pkg/hits"
	"github.com/yumyai/ecophylo/pkg/seqio"
	"github.com/yumyai/ecophylo/pkg/tool"
)

// Tool is the clustering collaborator. The real implementation shells out
// to mmseqs; tests fake it.
type Tool interface {
	// EasyCluster clusters fastaPath at minSeqID and returns the path of
	// the centroid/member TSV it produced.
	EasyCluster(ctx context.Context, fastaPath, outPrefix, tmpDir string, minSeqID float64, covMode int) (string, error)
}

// MMseqs wraps `mmseqs easy-cluster`.
type MMseqs struct {
	Runner tool.Runner
}

func (m MMseqs) EasyCluster(ctx context.Context, fastaPath, outPrefix, tmpDir string, minSeqID float64, covMode int) (string, error) {

	args := []string{
		"easy-cluster", fastaPath, outPrefix, tmpDir,
		"--min-seq-id", strconv.FormatFloat(minSeqID, 'f', -1, 64),
		"--cov-mode", strconv.Itoa(covMode),
		"--threads", "1",
	}

	if _, err := m.Runner.Run(ctx, "mmseqs", args, nil); err != nil {
		return "", err
	}

	return outPrefix + "_cluster.tsv", nil
}

// sequenceOf returns the clustering view of a hit for the given kind.
func sequenceOf(h hits.Hit, kind seqio.Kind) string {
	if kind == seqio.AA {
		return h.SeqAA
	}
	return h.SeqNT
}

// AtThresholds writes the filtered hits as FASTA in the requested
// sequence view and partitions them once per threshold, highest first.
// Partitions are independent of each other; nothing is refined
// incrementally.
func AtThresholds(ctx context.Context, t Tool, set *hits.FilteredHitSet, kind seqio.Kind,
	thresholds []float64, covMode int, workDir string) (map[float64][]Cluster, error) {

	if err := ValidateThresholds(thresholds); err != nil {
		return nil, err
	}

	records := make([]seqio.Record, 0, len(set.Hits))
	for _, h := range set.Hits {
		seq := sequenceOf(h, kind)
		if seq == "" {
			return nil, fmt.Errorf("hit %s has no %s sequence attached", h.ID, kind)
		}
		records = append(records, seqio.Record{ID: h.ID, Seq: seq})
	}

	fastaPath := path.Join(workDir, fmt.Sprintf("%s_filtered_%s.fasta", set.GeneModel, kind))
	if err := seqio.WriteFastaFile(fastaPath, records); err != nil {
		return nil, err
	}

	out := make(map[float64][]Cluster, len(thresholds))
	for _, threshold := range thresholds {
		prefix := path.Join(workDir, fmt.Sprintf("%s_clu_%.3f", set.GeneModel, threshold))
		tmpDir := prefix + "_tmp"

		tsvPath, err := t.EasyCluster(ctx, fastaPath, prefix, tmpDir, threshold, covMode)
		if err != nil {
			return nil, err
		}

		clusters, err := ParseClusterTSVFile(tsvPath, threshold)
		if err != nil {
			return nil, err
		}
		if len(clusters) == 0 {
			return nil, &fault.ThresholdViolationError{
				GeneModel: set.GeneModel,
				Stage:     "cluster_X_percent_sim_mmseqs",
				Reason:    fmt.Sprintf("clustering at %.3f produced no clusters", threshold),
			}
		}

		out[threshold] = clusters
	}

	return out, nil
}
