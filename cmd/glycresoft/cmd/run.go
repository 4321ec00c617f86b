package cmd

import (
	"context"
	"fmt"
	"sort"

	"github.com/spf13/cobra"

	"github.com/BostonUniversityCBMS/glycresoft-sqlalchemy-sub000/pkg/fdr"
	"github.com/BostonUniversityCBMS/glycresoft-sqlalchemy-sub000/pkg/pipeline"
	"github.com/BostonUniversityCBMS/glycresoft-sqlalchemy-sub000/pkg/scoring"
	"github.com/BostonUniversityCBMS/glycresoft-sqlalchemy-sub000/pkg/store/sqlite"
)

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Match, select, score and estimate FDR for a hypothesis sample match",
	Long: `Run the identification pipeline for one hypothesis sample match.

Examples:
  # Run with default settings
  glycresoft run --db run.db --hsm 1

  # Spectrum-centric chunking with a wider fragment tolerance
  glycresoft run --db run.db --hsm 1 --strategy spectrum --ms2-tolerance 3e-5 --workers 8`,
	RunE: runPipeline,
}

var fdrCmd = &cobra.Command{
	Use:   "fdr",
	Short: "Recompute q-values and p-values of an existing run",
	RunE:  runFDR,
}

func pipelineConfig() (pipeline.Config, error) {
	cfg := pipeline.DefaultConfig()
	s, err := pipeline.ParseStrategy(strategy)
	if err != nil {
		return cfg, err
	}
	cfg.Strategy = s
	cfg.Workers = workers
	cfg.ChunkSize = chunkSize
	cfg.CommitInterval = commitInterval
	cfg.ProgressInterval = progressInterval
	cfg.MS1Tolerance = ms1Tolerance
	cfg.MS2Tolerance = ms2Tolerance
	cfg.Weights = scoring.Weights{Backbone: backboneWeight, HexNAc: hexnacWeight, Stub: stubWeight}
	cfg.Filter.TopN = topN
	cfg.Filter.MedianFloor = !noMedianFloor
	cfg.MaxRetries = maxRetries
	return cfg, nil
}

func runPipeline(cmd *cobra.Command, args []string) error {
	ctx := context.Background()

	cfg, err := pipelineConfig()
	if err != nil {
		return err
	}

	db, err := sqlite.Open(ctx, dbFile)
	if err != nil {
		return err
	}
	defer db.Close()

	o, err := pipeline.New(db.Factory(), cfg)
	if err != nil {
		return err
	}

	fmt.Printf("Running hypothesis sample match %d from %s...\n", hsmID, dbFile)
	fmt.Printf("Strategy: %s\n", cfg.Strategy)
	fmt.Printf("Workers: %d\n", cfg.Workers)
	fmt.Printf("Tolerances: MS1 %g, MS2 %g\n", cfg.MS1Tolerance, cfg.MS2Tolerance)

	r, err := o.Run(ctx, hsmID)
	if r != nil {
		fmt.Printf("\nSpectrum matches: %d\n", r.SpectrumMatches)
		fmt.Printf("Scans selected: %d\n", r.ScansSelected)
		fmt.Printf("Glycopeptide matches: %d\n", r.GlycopeptideMatches)
		fmt.Printf("Processed: %d items in %v\n", r.Processed(), r.Elapsed)
	}
	if err != nil {
		return err
	}
	printFDR(r.FDR)
	return nil
}

func runFDR(cmd *cobra.Command, args []string) error {
	ctx := context.Background()

	db, err := sqlite.Open(ctx, dbFile)
	if err != nil {
		return err
	}
	defer db.Close()

	cfg := pipeline.DefaultConfig()
	cfg.CommitInterval = commitInterval
	cfg.MaxRetries = maxRetries
	o, err := pipeline.New(db.Factory(), cfg)
	if err != nil {
		return err
	}

	sess, err := db.Session(ctx)
	if err != nil {
		return err
	}
	hsm, err := sess.HypothesisSampleMatch(ctx, hsmID)
	sess.Close()
	if err != nil {
		return err
	}

	res, n, err := o.FDR(ctx, hsm)
	if err != nil {
		return err
	}
	fmt.Printf("Updated: %d glycopeptide matches\n", n)
	printFDR(res)
	return nil
}

func printFDR(res *fdr.Result) {
	if res == nil {
		return
	}
	fmt.Printf("\nTargets: %d\n", res.TotalTargets)
	fmt.Printf("Decoys: %d\n", res.TotalDecoys)

	levels := append([]float64(nil), fdr.Levels...)
	sort.Float64s(levels)
	for _, level := range levels {
		if s, ok := res.Thresholds[level]; ok {
			fmt.Printf("q <= %g: %d targets (score >= %.4f)\n", level, res.Passing[level], s)
		} else {
			fmt.Printf("q <= %g: no targets\n", level)
		}
	}
}
