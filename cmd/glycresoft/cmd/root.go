// Package cmd provides CLI command implementations
package cmd

import (
	"github.com/spf13/cobra"

	"github.com/BostonUniversityCBMS/glycresoft-sqlalchemy-sub000/pkg/pipeline"
	"github.com/BostonUniversityCBMS/glycresoft-sqlalchemy-sub000/pkg/tolerance"
)

var (
	// Shared flags
	dbFile string

	// Flags for import commands
	inputFile          string
	hypothesisID       int64
	hypothesisName     string
	decoy              bool
	monosaccharideCSV  string
	sampleRunID        int64
	hsmID              int64
	targetHypothesisID int64
	decoyHypothesisID  int64

	// Flags for run and fdr commands
	workers          int
	chunkSize        int
	commitInterval   int
	progressInterval int
	ms1Tolerance     float64
	ms2Tolerance     float64
	strategy         string
	backboneWeight   float64
	hexnacWeight     float64
	stubWeight       float64
	topN             int
	noMedianFloor    bool
	maxRetries       int
)

var rootCmd = &cobra.Command{
	Use:   "glycresoft",
	Short: "glycresoft - Glycopeptide identification from tandem mass spectra",
	Long: `glycresoft matches observed MS2 peak lists against theoretical glycopeptide
fragment libraries, scores the best evidence per glycopeptide and estimates
false discovery rates by target-decoy analysis.

Workflow:
- import candidates into a store (once for targets, once for decoys)
- import spectra for a sample run
- import hsm to pair target and decoy hypotheses with the run
- run the identification pipeline`,
	Version:      "0.1.0",
	SilenceUsage: true,
}

func Execute() error {
	return rootCmd.Execute()
}

func init() {
	rootCmd.PersistentFlags().StringVar(&dbFile, "db", "", "SQLite store file (required)")
	rootCmd.MarkPersistentFlagRequired("db")

	rootCmd.AddCommand(importCmd)
	rootCmd.AddCommand(runCmd)
	rootCmd.AddCommand(fdrCmd)
	importCmd.AddCommand(importCandidatesCmd)
	importCmd.AddCommand(importSpectraCmd)
	importCmd.AddCommand(importHSMCmd)

	// Import candidates flags
	importCandidatesCmd.Flags().StringVarP(&inputFile, "in", "i", "", "Candidate library file (required)")
	importCandidatesCmd.Flags().Int64Var(&hypothesisID, "hypothesis", 0, "Hypothesis id for entries without Hypothesis= (required)")
	importCandidatesCmd.Flags().StringVar(&hypothesisName, "name", "", "Hypothesis name")
	importCandidatesCmd.Flags().BoolVar(&decoy, "decoy", false, "Mark entries without Decoy= as decoys")
	importCandidatesCmd.Flags().StringVar(&monosaccharideCSV, "monosaccharides", "", "CSV of extra monosaccharide residue masses (name,mass)")
	importCandidatesCmd.MarkFlagRequired("in")
	importCandidatesCmd.MarkFlagRequired("hypothesis")

	// Import spectra flags
	importSpectraCmd.Flags().StringVarP(&inputFile, "in", "i", "", "Peak list file (required)")
	importSpectraCmd.Flags().Int64Var(&sampleRunID, "sample-run", 0, "Sample run id (required)")
	importSpectraCmd.MarkFlagRequired("in")
	importSpectraCmd.MarkFlagRequired("sample-run")

	// Import hsm flags
	importHSMCmd.Flags().Int64Var(&hsmID, "id", 0, "Hypothesis sample match id (required)")
	importHSMCmd.Flags().Int64Var(&targetHypothesisID, "target", 0, "Target hypothesis id (required)")
	importHSMCmd.Flags().Int64Var(&decoyHypothesisID, "decoy", 0, "Decoy hypothesis id (required)")
	importHSMCmd.Flags().Int64Var(&sampleRunID, "sample-run", 0, "Sample run id (required)")
	for _, name := range []string{"id", "target", "decoy", "sample-run"} {
		importHSMCmd.MarkFlagRequired(name)
	}

	// Run flags
	defaults := pipeline.DefaultConfig()
	for _, c := range []*cobra.Command{runCmd, fdrCmd} {
		c.Flags().Int64Var(&hsmID, "hsm", 0, "Hypothesis sample match id (required)")
		c.Flags().IntVar(&maxRetries, "max-retries", defaults.MaxRetries, "Retries of a batch after a transient store error")
		c.Flags().IntVar(&commitInterval, "commit-interval", defaults.CommitInterval, "Results per batch commit")
		c.MarkFlagRequired("hsm")
	}
	runCmd.Flags().IntVar(&workers, "workers", defaults.Workers, "Number of worker goroutines")
	runCmd.Flags().IntVar(&chunkSize, "chunk-size", defaults.ChunkSize, "Items per work unit")
	runCmd.Flags().IntVar(&progressInterval, "progress-interval", defaults.ProgressInterval, "Results between progress log lines")
	runCmd.Flags().Float64Var(&ms1Tolerance, "ms1-tolerance", tolerance.DefaultMS1, "Precursor mass tolerance (ppm fraction)")
	runCmd.Flags().Float64Var(&ms2Tolerance, "ms2-tolerance", tolerance.DefaultMS2, "Fragment mass tolerance (ppm fraction)")
	runCmd.Flags().StringVar(&strategy, "strategy", string(defaults.Strategy), "Chunking strategy: candidate or spectrum")
	runCmd.Flags().Float64Var(&backboneWeight, "backbone-weight", defaults.Weights.Backbone, "Backbone coverage weight")
	runCmd.Flags().Float64Var(&hexnacWeight, "hexnac-weight", defaults.Weights.HexNAc, "Glycosylated fragment coverage weight")
	runCmd.Flags().Float64Var(&stubWeight, "stub-weight", defaults.Weights.Stub, "Stub ion weight")
	runCmd.Flags().IntVar(&topN, "top-n", 0, "Keep only top N most intense peaks (0 = no limit)")
	runCmd.Flags().BoolVar(&noMedianFloor, "no-median-floor", false, "Disable the median intensity noise floor")
}
