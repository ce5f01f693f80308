package cluster

import (
	"fmt"
	"sort"

	"github.com/yumyai/ecophylo/pkg/fault"
	"github.com/yumyai/ecophylo/pkg/hits"
	"github.com/yumyai/ecophylo/pkg/seqio"
)

// Representative is the single sequence standing in for one qualifying
// cluster. In NT mode both views are kept: the nucleotide form feeds read
// recruitment, the translated form feeds tree inference. In AA mode only
// the amino-acid view exists.
type Representative struct {
	ClusterID string
	HitID     string
	SeqNT     string
	SeqAA     string
	Members   []string
}

// minClusterSize is the smallest member count that yields a
// representative. Singleton and doubleton clusters contribute nothing so
// near-unique sequences do not bias the tree.
const minClusterSize = 3

// SelectRepresentatives picks one representative per qualifying cluster
// of the primary threshold. The tie-break chain is deterministic: the
// centroid reported by the clustering tool, else the longest member, else
// the lexicographically smallest hit id.
func SelectRepresentatives(clusters []Cluster, set *hits.FilteredHitSet, kind seqio.Kind) ([]Representative, error) {

	byID := make(map[string]hits.Hit, len(set.Hits))
	for _, h := range set.Hits {
		byID[h.ID] = h
	}

	var reps []Representative
	for _, c := range clusters {
		if c.Size() < minClusterSize {
			continue
		}

		chosenID, err := pickMember(c, byID, kind)
		if err != nil {
			return nil, err
		}
		chosen := byID[chosenID]

		rep := Representative{
			ClusterID: c.ID(),
			HitID:     chosenID,
			SeqAA:     chosen.SeqAA,
			Members:   append([]string(nil), c.Members...),
		}
		if kind == seqio.NT {
			rep.SeqNT = chosen.SeqNT
			rep.SeqAA = seqio.Translate(chosen.SeqNT)
		}
		reps = append(reps, rep)
	}

	if len(reps) == 0 {
		return nil, &fault.ThresholdViolationError{
			GeneModel: set.GeneModel,
			Stage:     "select_representatives",
			Reason:    fmt.Sprintf("no cluster with >= %d members among %d clusters", minClusterSize, len(clusters)),
		}
	}

	sort.Slice(reps, func(i, j int) bool { return reps[i].ClusterID < reps[j].ClusterID })
	return reps, nil
}

func pickMember(c Cluster, byID map[string]hits.Hit, kind seqio.Kind) (string, error) {

	if _, ok := byID[c.Centroid]; ok {
		return c.Centroid, nil
	}

	// No usable centroid: fall back to the longest member, breaking
	// length ties with the smallest hit id.
	best := ""
	bestLen := -1
	for _, m := range c.Members {
		h, ok := byID[m]
		if !ok {
			return "", fmt.Errorf("cluster %s references unknown hit %q", c.ID(), m)
		}
		l := len(sequenceOf(h, kind))
		if l > bestLen || (l == bestLen && m < best) {
			best = m
			bestLen = l
		}
	}

	if best == "" {
		return "", fmt.Errorf("cluster %s has no members", c.ID())
	}
	return best, nil
}

// FastaNT renders the nucleotide view for read recruitment. Only valid
// in NT mode.
func FastaNT(reps []Representative) []seqio.Record {
	records := make([]seqio.Record, 0, len(reps))
	for _, r := range reps {
		records = append(records, seqio.Record{ID: r.HitID, Seq: r.SeqNT})
	}
	return records
}

// FastaAA renders the amino-acid view for tree inference.
func FastaAA(reps []Representative) []seqio.Record {
	records := make([]seqio.Record, 0, len(reps))
	for _, r := range reps {
		records = append(records, seqio.Record{ID: r.HitID, Seq: r.SeqAA})
	}
	return records
}
