// Package cluster drives the external similarity clustering over filtered
// hits and picks representative sequences for the tree.
package cluster

import (
	"bufio"
	"fmt"
	"io"
	"os"
	"sort"
	"strings"

	"github.com/yumyai/ecophylo/pkg/fault"
)

// Cluster is one similarity cluster at one identity threshold. Its
// identity is fully determined by the threshold and the member set; the
// centroid reported by the clustering tool doubles as the cluster id so
// re-clustering the same input yields the same ids.
type Cluster struct {
	Threshold float64
	Centroid  string
	Members   []string
}

// ID names the cluster for tables and provenance.
func (c Cluster) ID() string {
	return fmt.Sprintf("%s@%.3f", c.Centroid, c.Threshold)
}

// Size is the member count, centroid included.
func (c Cluster) Size() int {
	return len(c.Members)
}

// ValidateThresholds enforces the strictly-descending, duplicate-free
// contract on the threshold set.
func ValidateThresholds(thresholds []float64) error {
	if len(thresholds) == 0 {
		return fault.Configf("empty clustering threshold set")
	}
	for i := 1; i < len(thresholds); i++ {
		if thresholds[i] >= thresholds[i-1] {
			return fault.Configf("clustering thresholds must be strictly descending, got %v", thresholds)
		}
	}
	return nil
}

// ParseClusterTSV reads the two-column `centroid<TAB>member` table the
// clustering tool emits, one row per member. Output is sorted by centroid
// and member so identical inputs produce identical cluster lists.
func ParseClusterTSV(r io.Reader, threshold float64) ([]Cluster, error) {

	byCentroid := make(map[string][]string)

	scanner := bufio.NewScanner(r)
	lineno := 0
	for scanner.Scan() {
		lineno++
		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}

		cols := strings.Split(line, "\t")
		if len(cols) != 2 {
			return nil, fmt.Errorf("cluster tsv line %d: expected 2 columns, got %d", lineno, len(cols))
		}
		byCentroid[cols[0]] = append(byCentroid[cols[0]], cols[1])
	}

	if err := scanner.Err(); err != nil {
		return nil, err
	}

	centroids := make([]string, 0, len(byCentroid))
	for c := range byCentroid {
		centroids = append(centroids, c)
	}
	sort.Strings(centroids)

	clusters := make([]Cluster, 0, len(centroids))
	for _, c := range centroids {
		members := byCentroid[c]
		sort.Strings(members)
		clusters = append(clusters, Cluster{Threshold: threshold, Centroid: c, Members: members})
	}

	return clusters, nil
}

// ParseClusterTSVFile is the path-based wrapper around ParseClusterTSV.
func ParseClusterTSVFile(path string, threshold float64) ([]Cluster, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	clusters, err := ParseClusterTSV(f, threshold)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return clusters, nil
}

// WriteOTUTable persists one threshold's partition as an auxiliary OTU
// table: cluster id, centroid, size, members.
func WriteOTUTable(w io.Writer, clusters []Cluster) error {

	if _, err := fmt.Fprintln(w, "cluster_id\tcentroid\tsize\tmembers"); err != nil {
		return err
	}

	for _, c := range clusters {
		_, err := fmt.Fprintf(w, "%s\t%s\t%d\t%s\n",
			c.ID(), c.Centroid, c.Size(), strings.Join(c.Members, ","))
		if err != nil {
			return err
		}
	}
	return nil
}

// WriteOTUTableFile writes the table to path.
func WriteOTUTableFile(path string, clusters []Cluster) error {
	f, err := os.Create(path)
	if err != nil {
		return err
	}
	if err := WriteOTUTable(f, clusters); err != nil {
		f.Close()
		return err
	}
	return f.Close()
}
