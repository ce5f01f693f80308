package main

import (
	"context"
	"database/sql"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"path"
	"syscall"
	"time"

	"github.com/joho/godotenv"

	"github.com/yumyai/ecophylo/logger"
	"github.com/yumyai/ecophylo/pkg/cluster"
	"github.com/yumyai/ecophylo/pkg/config"
	"github.com/yumyai/ecophylo/pkg/mode"
	"github.com/yumyai/ecophylo/pkg/pipeline"
	"github.com/yumyai/ecophylo/pkg/profile"
	"github.com/yumyai/ecophylo/pkg/store"
	"github.com/yumyai/ecophylo/pkg/tool"
	"github.com/yumyai/ecophylo/pkg/tree"
	"go.uber.org/zap"

	_ "modernc.org/sqlite"
)

func main() {

	VERSION := "0.1.0"

	configPath := flag.String("config", "ecophylo.yaml", "pipeline configuration document")
	workDir := flag.String("workdir", "", "override work_dir from the configuration")
	flag.Parse()

	if err := logger.InitLogger(logger.LevelFromEnv()); err != nil {
		panic(err)
	}

	// Try load env
	if err := godotenv.Load(); err != nil {
		logger.Warn("No .env found, using local environment")
	}

	defer logger.Sync() // Make sure that the buffered is flushed.

	logger.Info("Start:", zap.String("Version", VERSION))

	report, err := run(*configPath, *workDir)
	if err != nil {
		logger.Error("run aborted", zap.Error(err))
		os.Exit(1)
	}

	report.Render(os.Stdout)
	if !report.Succeeded() {
		os.Exit(1)
	}
}

func run(configPath, workDirOverride string) (*pipeline.RunReport, error) {

	cfg, err := config.Load(configPath)
	if err != nil {
		return nil, err
	}
	if workDirOverride != "" {
		cfg.WorkDir = workDirOverride
	}

	if err := os.MkdirAll(cfg.WorkDir, 0755); err != nil {
		return nil, err
	}

	inputs, err := loadInputs(cfg)
	if err != nil {
		return nil, err
	}

	runMode, err := mode.Resolve(inputs)
	if err != nil {
		return nil, err
	}
	logger.Info("Resolved run mode", zap.String("mode", runMode.String()),
		zap.Int("assemblies", len(inputs.Assemblies)),
		zap.Int("gene_models", len(inputs.GeneModels)),
		zap.Int("samples", len(inputs.Samples)))

	artifactDB, err := sql.Open("sqlite", path.Join(cfg.WorkDir, "artifacts.db"))
	if err != nil {
		return nil, err
	}
	defer artifactDB.Close()

	artifacts, err := store.New(artifactDB)
	if err != nil {
		return nil, err
	}

	profileDB, err := sql.Open("sqlite", path.Join(cfg.WorkDir, "profile.db"))
	if err != nil {
		return nil, err
	}
	defer profileDB.Close()

	coverage, err := profile.New(profileDB)
	if err != nil {
		return nil, err
	}

	runner := tool.ExecRunner{}
	env := &pipeline.Env{
		Cfg:        cfg,
		Mode:       runMode,
		Assemblies: inputs.Assemblies,
		GeneModels: inputs.GeneModels,
		Samples:    inputs.Samples,
		Runner:     runner,
		Clusterer:  cluster.MMseqs{Runner: runner},
		TreeTool:   tree.FastTree{Runner: runner},
		Recruiter:  profile.Minimap2{Runner: runner},
		Profile:    coverage,
		WorkDir:    cfg.WorkDir,
	}

	graph, err := pipeline.BuildGraph(env)
	if err != nil {
		return nil, err
	}

	// SIGINT stops scheduling; stages already running finish and their
	// artifacts stay registered for a resumed run.
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	sched := &pipeline.Scheduler{
		Store:        artifacts,
		Mode:         runMode,
		Workers:      cfg.NumThreads,
		StageTimeout: time.Duration(cfg.StageTimeoutMinutes) * time.Minute,
	}

	report := sched.Run(ctx, graph)

	reportPath := path.Join(cfg.WorkDir, fmt.Sprintf("run_report_%s.json", report.RunID))
	if err := report.WriteJSON(reportPath); err != nil {
		logger.Warn("could not persist run report", zap.Error(err))
	} else {
		logger.Info("Run report written", zap.String("path", reportPath))
	}

	return report, nil
}

func loadInputs(cfg *config.Config) (mode.Inputs, error) {

	var in mode.Inputs
	in.AAMode = cfg.Cluster.AAMode

	if cfg.Metagenomes != "" {
		assemblies, err := config.ReadAssemblyList(cfg.Metagenomes, false)
		if err != nil {
			return in, err
		}
		in.Assemblies = append(in.Assemblies, assemblies...)
	}

	if cfg.ExternalGenomes != "" {
		assemblies, err := config.ReadAssemblyList(cfg.ExternalGenomes, true)
		if err != nil {
			return in, err
		}
		in.Assemblies = append(in.Assemblies, assemblies...)
	}

	if cfg.HmmList != "" {
		models, err := config.ReadGeneModelList(cfg.HmmList)
		if err != nil {
			return in, err
		}
		in.GeneModels = models
	}

	if cfg.SamplesTxt != "" {
		samples, err := config.ReadSampleList(cfg.SamplesTxt)
		if err != nil {
			return in, err
		}
		in.Samples = samples
	}

	return in, nil
}
