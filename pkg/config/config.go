// Package config parses the pipeline configuration document and the
// tabular input lists it points at.
package config

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"

	"github.com/yumyai/ecophylo/pkg/fault"
)

// FilterParams is the `filter_hmm_hits_by_model_coverage` block.
type FilterParams struct {
	ModelCoverage      float64 `yaml:"--model-coverage"`
	FilterOutPartial   bool    `yaml:"--filter-out-partial-gene-calls"`
	MergeHitsWithinNts int     `yaml:"--merge-partial-hits-within-X-nts"`
}

// ClusterParams is the `cluster_X_percent_sim_mmseqs` block.
type ClusterParams struct {
	MinSeqID      float64   `yaml:"--min-seq-id"`
	CovMode       int       `yaml:"--cov-mode"`
	OTUThresholds []float64 `yaml:"clustering_threshold_for_OTUs"`
	AAMode        bool      `yaml:"AA_mode"`
}

// Config is the parsed configuration document.
type Config struct {
	Metagenomes     string `yaml:"metagenomes"`
	ExternalGenomes string `yaml:"external_genomes"`
	HmmList         string `yaml:"hmm_list"`
	SamplesTxt      string `yaml:"samples_txt"`

	RunGenomesSanityCheck *bool `yaml:"run_genomes_sanity_check"`

	Filter  FilterParams  `yaml:"filter_hmm_hits_by_model_coverage"`
	Cluster ClusterParams `yaml:"cluster_X_percent_sim_mmseqs"`

	// Scheduler knobs.
	NumThreads          int `yaml:"num_threads"`
	StageTimeoutMinutes int `yaml:"stage_timeout_minutes"`

	// Where artifacts and the store index live.
	WorkDir string `yaml:"work_dir"`
}

const (
	defaultModelCoverage = 0.8
	defaultNumThreads    = 4
	defaultWorkDir       = "ECOPHYLO_WORKDIR"
)

// Load reads and decodes path, applies defaults and runs the structural
// checks that do not depend on the referenced list files.
func Load(path string) (*Config, error) {

	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config: %w", err)
	}

	var cfg Config
	if err := yaml.Unmarshal(raw, &cfg); err != nil {
		return nil, fault.Configf("cannot parse %s: %v", path, err)
	}

	cfg.applyDefaults()

	if err := cfg.validate(); err != nil {
		return nil, err
	}

	return &cfg, nil
}

func (c *Config) applyDefaults() {
	if c.Filter.ModelCoverage == 0 {
		c.Filter.ModelCoverage = defaultModelCoverage
	}
	if c.NumThreads <= 0 {
		c.NumThreads = defaultNumThreads
	}
	if c.WorkDir == "" {
		c.WorkDir = defaultWorkDir
	}
	if c.RunGenomesSanityCheck == nil {
		yes := true
		c.RunGenomesSanityCheck = &yes
	}
}

func (c *Config) validate() error {

	if c.Filter.ModelCoverage < 0 || c.Filter.ModelCoverage > 1 {
		return fault.Configf("--model-coverage must be within [0,1], got %g", c.Filter.ModelCoverage)
	}
	if c.Filter.MergeHitsWithinNts < 0 {
		return fault.Configf("--merge-partial-hits-within-X-nts must be >= 0, got %d", c.Filter.MergeHitsWithinNts)
	}
	if c.Cluster.MinSeqID <= 0 || c.Cluster.MinSeqID > 1 {
		return fault.Configf("--min-seq-id must be within (0,1], got %g", c.Cluster.MinSeqID)
	}

	// OTU thresholds must be strictly descending, no duplicates.
	for i := 1; i < len(c.Cluster.OTUThresholds); i++ {
		if c.Cluster.OTUThresholds[i] >= c.Cluster.OTUThresholds[i-1] {
			return fault.Configf("clustering_threshold_for_OTUs must be strictly descending, got %v",
				c.Cluster.OTUThresholds)
		}
	}
	for _, t := range c.Cluster.OTUThresholds {
		if t <= 0 || t > 1 {
			return fault.Configf("clustering threshold %g outside (0,1]", t)
		}
	}

	return nil
}

// SanityCheckEnabled reports the `run_genomes_sanity_check` toggle.
func (c *Config) SanityCheckEnabled() bool {
	return c.RunGenomesSanityCheck == nil || *c.RunGenomesSanityCheck
}

// PrimaryThreshold is the threshold whose clusters drive representative
// selection. When no OTU thresholds are configured the mmseqs
// --min-seq-id doubles as the only level.
func (c *Config) PrimaryThreshold() float64 {
	if len(c.Cluster.OTUThresholds) > 0 {
		return c.Cluster.OTUThresholds[0]
	}
	return c.Cluster.MinSeqID
}
