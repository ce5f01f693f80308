package pipeline

import (
	"context"
	"fmt"
	"os"
	"path"
	"strings"

	"github.com/yumyai/ecophylo/internal/util"
	"github.com/yumyai/ecophylo/pkg/cluster"
	"github.com/yumyai/ecophylo/pkg/config"
	"github.com/yumyai/ecophylo/pkg/hits"
	"github.com/yumyai/ecophylo/pkg/mode"
	"github.com/yumyai/ecophylo/pkg/profile"
	"github.com/yumyai/ecophylo/pkg/seqio"
	"github.com/yumyai/ecophylo/pkg/store"
	"github.com/yumyai/ecophylo/pkg/tool"
	"github.com/yumyai/ecophylo/pkg/tree"
)

// Env wires the resolved inputs and the external collaborators into a
// stage graph. Stage functions communicate through files under WorkDir
// with deterministic names, so a stage resolved from cache needs no
// in-memory state from its upstreams.
type Env struct {
	Cfg        *config.Config
	Mode       mode.RunMode
	Assemblies []config.Assembly
	GeneModels []config.GeneModel
	Samples    []config.Sample

	Runner    tool.Runner
	Clusterer cluster.Tool
	TreeTool  tree.Tool
	Recruiter profile.Recruiter
	Profile   *profile.DB

	WorkDir string
}

func (e *Env) genesDir() string   { return path.Join(e.WorkDir, "genes") }
func (e *Env) hitsDir() string    { return path.Join(e.WorkDir, "hits") }
func (e *Env) clusterDir() string { return path.Join(e.WorkDir, "clusters") }
func (e *Env) repsDir() string    { return path.Join(e.WorkDir, "reps") }
func (e *Env) treesDir() string   { return path.Join(e.WorkDir, "trees") }
func (e *Env) profileDir() string { return path.Join(e.WorkDir, "profile") }

func (e *Env) genePrefix(asm string) string { return path.Join(e.genesDir(), asm) }

func (e *Env) geneCallsPath(asm string) string {
	return path.Join(e.genesDir(), asm+"_genecalls.tsv")
}
func (e *Env) domtblPath(model, asm, fingerprint string) string {
	return path.Join(e.hitsDir(), model+"_"+asm+"_"+shortFingerprint(fingerprint)+".domtbl")
}
func (e *Env) filteredPath(model string) string {
	return path.Join(e.hitsDir(), model+"_filtered.tsv")
}
func (e *Env) repsPathAA(model string) string { return path.Join(e.repsDir(), model+"_reps.faa") }
func (e *Env) repsPathNT(model string) string { return path.Join(e.repsDir(), model+"_reps.fna") }
func (e *Env) newickPath(model string) string { return path.Join(e.treesDir(), model+".nwk") }
func (e *Env) coveragePath(model, sample, fingerprint string) string {
	return path.Join(e.profileDir(), model+"_"+sample+"_"+shortFingerprint(fingerprint)+"_coverage.tsv")
}

// shortFingerprint keys an artifact file name by its input fingerprint,
// so a leftover table from an earlier run with different inputs is never
// mistaken for this run's output.
func shortFingerprint(fp string) string {
	if len(fp) > 12 {
		return fp[:12]
	}
	return fp
}

// BuildGraph lays out the full stage graph for the resolved mode:
// per-assembly sanity checks and gene prediction, per-(model, assembly)
// homology searches, per-model filtering, clustering, representative
// selection and tree inference, plus per-sample read recruitment and the
// coverage merge when profile mode is on.
func BuildGraph(env *Env) (*Graph, error) {

	for _, dir := range []string{
		env.genesDir(), env.hitsDir(), env.clusterDir(),
		env.repsDir(), env.treesDir(), env.profileDir(),
	} {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return nil, err
		}
	}

	var stages []*Stage

	// Hash the gene models once; they are small and their content is
	// part of every downstream fingerprint.
	hmmHash := make(map[string]string, len(env.GeneModels))
	for _, gm := range env.GeneModels {
		h, err := util.Sha256File(gm.Path)
		if err != nil {
			return nil, fmt.Errorf("gene model %s: %w", gm.Name, err)
		}
		hmmHash[gm.Name] = h
	}

	predictFp := make(map[string]string, len(env.Assemblies))
	for _, asm := range env.Assemblies {
		stages = append(stages, env.assemblyStages(asm, predictFp)...)
	}

	for _, gm := range env.GeneModels {
		stages = append(stages, env.modelStages(gm, hmmHash[gm.Name], predictFp)...)
	}

	return NewGraph(stages)
}

// assemblyStages emits the sanity check (when enabled) and the gene
// prediction stage for one assembly.
func (e *Env) assemblyStages(asm config.Assembly, predictFp map[string]string) []*Stage {

	var out []*Stage
	var predictDeps []string

	if e.Cfg.SanityCheckEnabled() {
		name := "sanity_check_" + asm.Name
		predictDeps = append(predictDeps, name)
		out = append(out, &Stage{
			Name: name,
			Run: func(ctx context.Context) (string, error) {
				return "", hits.SanityCheckAssembly(asm.Name, asm.Path)
			},
		})
	}

	fp := store.Fingerprint("predict_genes", util.FileStamp(asm.Path))
	predictFp[asm.Name] = fp

	out = append(out, &Stage{
		Name:        "predict_genes_" + asm.Name,
		Deps:        predictDeps,
		Fingerprint: fp,
		Run: func(ctx context.Context) (string, error) {
			_, aaPath, err := hits.RunProdigal(ctx, e.Runner, asm.Path, e.genePrefix(asm.Name))
			if err != nil {
				return "", err
			}

			calls, err := hits.ParseProdigalCalls(aaPath, asm.Name)
			if err != nil {
				return "", err
			}

			callsPath := e.geneCallsPath(asm.Name)
			if err := hits.WriteGeneCalls(callsPath, calls); err != nil {
				return "", err
			}
			return callsPath, nil
		},
	})

	return out
}

// modelStages emits the per-model branch: searches against every
// assembly, the filter barrier, clustering/representative selection, the
// tree, and the profile stages when samples are configured.
func (e *Env) modelStages(gm config.GeneModel, hmmHash string, predictFp map[string]string) []*Stage {

	var out []*Stage

	var searchNames []string
	var searchFps []string
	domtbls := make(map[string]string, len(e.Assemblies))
	for _, asm := range e.Assemblies {
		asm := asm
		name := fmt.Sprintf("hmmsearch_%s_%s", gm.Name, asm.Name)
		fp := store.Fingerprint("hmmsearch", hmmHash, predictFp[asm.Name])
		domtbl := e.domtblPath(gm.Name, asm.Name, fp)
		searchNames = append(searchNames, name)
		searchFps = append(searchFps, fp)
		domtbls[asm.Name] = domtbl

		out = append(out, &Stage{
			Name:        name,
			Deps:        []string{"predict_genes_" + asm.Name},
			Fingerprint: fp,
			Run: func(ctx context.Context) (string, error) {
				aaPath := e.genePrefix(asm.Name) + "_genes.faa"
				if err := hits.RunHmmsearch(ctx, e.Runner, gm.Path, aaPath, domtbl); err != nil {
					return "", err
				}
				return domtbl, nil
			},
		})
	}

	filterName := "filter_" + gm.Name
	filterFp := store.Fingerprint(append([]string{
		"filter",
		fmt.Sprintf("%g|%d|%t", e.Cfg.Filter.ModelCoverage, e.Cfg.Filter.MergeHitsWithinNts, e.Cfg.Filter.FilterOutPartial),
	}, searchFps...)...)

	out = append(out, &Stage{
		Name: filterName,
		// The filter is a barrier over every assembly's search, but a
		// failed assembly branch only shrinks its input instead of
		// blocking the model.
		Deps:        searchNames,
		WaitAll:     true,
		Fingerprint: filterFp,
		Run: func(ctx context.Context) (string, error) {
			return e.runFilter(gm, domtbls)
		},
	})

	clusterName := "cluster_" + gm.Name
	clusterFp := store.Fingerprint("cluster",
		fmt.Sprintf("%g|%d|%v|%s", e.Cfg.Cluster.MinSeqID, e.Cfg.Cluster.CovMode, e.Cfg.Cluster.OTUThresholds, e.Mode.SequenceKind()),
		filterFp)

	out = append(out, &Stage{
		Name:        clusterName,
		Deps:        []string{filterName},
		Fingerprint: clusterFp,
		Run: func(ctx context.Context) (string, error) {
			return e.runCluster(ctx, gm)
		},
	})

	treeName := "tree_" + gm.Name
	treeFp := store.Fingerprint("tree", clusterFp)

	out = append(out, &Stage{
		Name:        treeName,
		Deps:        []string{clusterName},
		Fingerprint: treeFp,
		Final:       true,
		Run: func(ctx context.Context) (string, error) {
			newick, err := e.TreeTool.Infer(ctx, e.repsPathAA(gm.Name), path.Join(e.treesDir(), gm.Name))
			if err != nil {
				return "", err
			}
			nwkPath := e.newickPath(gm.Name)
			if err := tree.WriteNewick(nwkPath, newick); err != nil {
				return "", err
			}
			return nwkPath, nil
		},
	})

	if !e.Mode.ProfileEnabled() {
		return out
	}

	var recruitNames []string
	var recruitFps []string
	covPaths := make(map[string]string, len(e.Samples))
	for _, sample := range e.Samples {
		sample := sample
		name := fmt.Sprintf("recruit_%s_%s", gm.Name, sample.Name)
		stamps := make([]string, 0, len(sample.Reads))
		for _, r := range sample.Reads {
			stamps = append(stamps, util.FileStamp(r))
		}
		fp := store.Fingerprint(append([]string{"recruit", treeFp}, stamps...)...)
		covPath := e.coveragePath(gm.Name, sample.Name, fp)
		recruitNames = append(recruitNames, name)
		recruitFps = append(recruitFps, fp)
		covPaths[sample.Name] = covPath

		out = append(out, &Stage{
			Name: name,
			// Coverage profiling starts only once the representatives
			// and the tree exist.
			Deps:        []string{treeName},
			ActiveIf:    func(m mode.RunMode) bool { return m.ProfileEnabled() },
			Fingerprint: fp,
			Run: func(ctx context.Context) (string, error) {
				covs, err := e.Recruiter.Recruit(ctx, e.repsPathNT(gm.Name), sample,
					path.Join(e.profileDir(), gm.Name+"_"+sample.Name))
				if err != nil {
					return "", err
				}

				if err := writeCoverageTSV(covPath, covs); err != nil {
					return "", err
				}
				return covPath, nil
			},
		})
	}

	out = append(out, &Stage{
		Name:        "merge_profile_" + gm.Name,
		Deps:        recruitNames,
		WaitAll:     true,
		ActiveIf:    func(m mode.RunMode) bool { return m.ProfileEnabled() },
		Fingerprint: store.Fingerprint(append([]string{"merge_profile"}, recruitFps...)...),
		Final:       true,
		Run: func(ctx context.Context) (string, error) {
			return e.runMergeProfile(ctx, gm, covPaths)
		},
	})

	return out
}

// runFilter gathers every available search result for one gene model and
// applies the hit quality filter. A failed assembly branch leaves no
// domain table at its fingerprint-keyed path and simply contributes
// nothing; tables from earlier runs with other inputs live under other
// fingerprints and are never picked up.
func (e *Env) runFilter(gm config.GeneModel, domtbls map[string]string) (string, error) {

	var all []hits.Hit
	for _, asm := range e.Assemblies {
		domtbl := domtbls[asm.Name]
		if !util.FileExists(domtbl) {
			continue
		}

		calls, err := hits.ReadGeneCalls(e.geneCallsPath(asm.Name), asm.Name)
		if err != nil {
			return "", err
		}

		found, err := hits.ParseDomtblFile(domtbl, asm.Name, calls)
		if err != nil {
			return "", err
		}
		all = append(all, found...)
	}

	set, err := hits.Filter(gm.Name, all,
		e.Cfg.Filter.ModelCoverage, e.Cfg.Filter.MergeHitsWithinNts, e.Cfg.Filter.FilterOutPartial)
	if err != nil {
		return "", err
	}

	outPath := e.filteredPath(gm.Name)
	if err := set.WriteTSVFile(outPath); err != nil {
		return "", err
	}
	return outPath, nil
}

// runCluster reloads the filtered set, re-attaches sequences, partitions
// at every configured threshold (highest first drives representative
// selection, the rest are reported as OTU tables) and writes the
// representative FASTA views.
func (e *Env) runCluster(ctx context.Context, gm config.GeneModel) (string, error) {

	hitList, err := hits.ReadFilteredTSV(e.filteredPath(gm.Name))
	if err != nil {
		return "", err
	}

	ntSeqs := make(map[string]string)
	aaSeqs := make(map[string]string)
	seen := make(map[string]bool)
	for _, h := range hitList {
		if seen[h.Assembly] {
			continue
		}
		seen[h.Assembly] = true

		ntRecords, err := seqio.ReadFastaFile(e.genePrefix(h.Assembly) + "_genes.fna")
		if err != nil {
			return "", err
		}
		aaRecords, err := seqio.ReadFastaFile(e.genePrefix(h.Assembly) + "_genes.faa")
		if err != nil {
			return "", err
		}
		for k, v := range hits.SequenceMap(h.Assembly, ntRecords) {
			ntSeqs[k] = v
		}
		for k, v := range hits.SequenceMap(h.Assembly, aaRecords) {
			aaSeqs[k] = v
		}
	}

	if err := hits.AttachSequences(hitList, ntSeqs, aaSeqs); err != nil {
		return "", err
	}

	set := &hits.FilteredHitSet{GeneModel: gm.Name, Hits: hitList}
	kind := e.Mode.SequenceKind()

	thresholds := e.Cfg.Cluster.OTUThresholds
	if len(thresholds) == 0 {
		thresholds = []float64{e.Cfg.PrimaryThreshold()}
	}

	partitions, err := cluster.AtThresholds(ctx, e.Clusterer, set, kind,
		thresholds, e.Cfg.Cluster.CovMode, e.clusterDir())
	if err != nil {
		return "", err
	}

	for threshold, clusters := range partitions {
		otuPath := path.Join(e.clusterDir(), fmt.Sprintf("%s_otu_%.3f.tsv", gm.Name, threshold))
		if err := cluster.WriteOTUTableFile(otuPath, clusters); err != nil {
			return "", err
		}
	}

	reps, err := cluster.SelectRepresentatives(partitions[e.Cfg.PrimaryThreshold()], set, kind)
	if err != nil {
		return "", err
	}

	if err := seqio.WriteFastaFile(e.repsPathAA(gm.Name), cluster.FastaAA(reps)); err != nil {
		return "", err
	}
	if kind == seqio.NT {
		if err := seqio.WriteFastaFile(e.repsPathNT(gm.Name), cluster.FastaNT(reps)); err != nil {
			return "", err
		}
	}

	return e.repsPathAA(gm.Name), nil
}

// runMergeProfile folds every sample's recruitment outcome into the
// merged coverage store: parsed rows for the samples that made it,
// explicit missing markers for the ones that did not.
func (e *Env) runMergeProfile(ctx context.Context, gm config.GeneModel, covPaths map[string]string) (string, error) {

	reps, err := seqio.ReadFastaFile(e.repsPathNT(gm.Name))
	if err != nil {
		return "", err
	}
	repIDs := make([]string, 0, len(reps))
	for _, r := range reps {
		repIDs = append(repIDs, r.ID)
	}

	var failed []string
	for _, sample := range e.Samples {
		covPath := covPaths[sample.Name]
		if !util.FileExists(covPath) {
			failed = append(failed, sample.Name)
			if err := e.Profile.MarkMissing(ctx, sample.Name, repIDs, "read recruitment failed"); err != nil {
				return "", err
			}
			continue
		}

		covs, err := readCoverageTSV(covPath)
		if err != nil {
			return "", err
		}
		if err := e.Profile.AddSample(ctx, sample.Name, covs); err != nil {
			return "", err
		}
	}

	// Isolated sample failures leave markers and the run counts as
	// partially succeeded; only a fully empty profile is degenerate.
	if len(failed) == len(e.Samples) {
		return "", fmt.Errorf("recruitment failed for every sample: %s", strings.Join(failed, ", "))
	}

	return path.Join(e.WorkDir, "profile.db"), nil
}

func writeCoverageTSV(path string, covs []profile.Coverage) error {
	f, err := os.Create(path)
	if err != nil {
		return err
	}

	if _, err := fmt.Fprintln(f, "representative\tdepth\tdetection"); err != nil {
		f.Close()
		return err
	}
	for _, c := range covs {
		if _, err := fmt.Fprintf(f, "%s\t%g\t%g\n", c.Representative, c.Depth, c.Detection); err != nil {
			f.Close()
			return err
		}
	}
	return f.Close()
}

func readCoverageTSV(path string) ([]profile.Coverage, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}

	var out []profile.Coverage
	for i, line := range strings.Split(strings.TrimSpace(string(raw)), "\n") {
		if i == 0 || strings.TrimSpace(line) == "" {
			continue
		}
		cols := strings.Split(line, "\t")
		if len(cols) != 3 {
			return nil, fmt.Errorf("%s line %d: expected 3 columns", path, i+1)
		}

		var depth, detection float64
		if _, err := fmt.Sscanf(cols[1], "%g", &depth); err != nil {
			return nil, fmt.Errorf("%s line %d: bad depth", path, i+1)
		}
		if _, err := fmt.Sscanf(cols[2], "%g", &detection); err != nil {
			return nil, fmt.Errorf("%s line %d: bad detection", path, i+1)
		}
		out = append(out, profile.Coverage{Representative: cols[0], Depth: depth, Detection: detection})
	}
	return out, nil
}
