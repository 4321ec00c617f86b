package cmd

import (
	"context"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/BostonUniversityCBMS/glycresoft-sqlalchemy-sub000/pkg/core"
	"github.com/BostonUniversityCBMS/glycresoft-sqlalchemy-sub000/pkg/reader/msp"
	"github.com/BostonUniversityCBMS/glycresoft-sqlalchemy-sub000/pkg/reader/sptxt"
	"github.com/BostonUniversityCBMS/glycresoft-sqlalchemy-sub000/pkg/store/sqlite"
)

var importCmd = &cobra.Command{
	Use:   "import",
	Short: "Import candidates, spectra or hypothesis sample matches into a store",
}

var importCandidatesCmd = &cobra.Command{
	Use:   "candidates",
	Short: "Import a theoretical candidate library",
	Long: `Import glycopeptide candidates with their annotated theoretical fragments.

Examples:
  glycresoft import candidates --db run.db --in targets.msp --hypothesis 1 --name targets
  glycresoft import candidates --db run.db --in decoys.msp --hypothesis 2 --decoy`,
	RunE: runImportCandidates,
}

var importSpectraCmd = &cobra.Command{
	Use:   "spectra",
	Short: "Import deconvoluted MS2 peak lists for a sample run",
	Long: `Import observed spectra with neutral precursor and fragment masses.

Example:
  glycresoft import spectra --db run.db --in sample.sptxt --sample-run 1`,
	RunE: runImportSpectra,
}

var importHSMCmd = &cobra.Command{
	Use:   "hsm",
	Short: "Pair a target and a decoy hypothesis with a sample run",
	Long: `Create the hypothesis sample match that scopes one identification run.

Example:
  glycresoft import hsm --db run.db --id 1 --target 1 --decoy 2 --sample-run 1`,
	RunE: runImportHSM,
}

func loadMonosaccharides() (*core.MonosaccharideDatabase, error) {
	db := core.DefaultMonosaccharideDatabase()
	if monosaccharideCSV == "" {
		return db, nil
	}
	f, err := os.Open(monosaccharideCSV)
	if err != nil {
		return nil, fmt.Errorf("failed to open monosaccharide CSV: %w", err)
	}
	defer f.Close()
	if err := db.LoadFromCSV(f); err != nil {
		return nil, fmt.Errorf("failed to load monosaccharide CSV: %w", err)
	}
	return db, nil
}

func runImportCandidates(cmd *cobra.Command, args []string) error {
	ctx := context.Background()

	inFile, err := os.Open(inputFile)
	if err != nil {
		return fmt.Errorf("failed to open input file: %w", err)
	}
	defer inFile.Close()

	glycans, err := loadMonosaccharides()
	if err != nil {
		return err
	}

	db, err := sqlite.Open(ctx, dbFile)
	if err != nil {
		return err
	}
	defer db.Close()

	imp, err := db.NewImporter(ctx)
	if err != nil {
		return err
	}
	defer imp.Rollback()

	name := hypothesisName
	if name == "" {
		name = inputFile
	}
	if err := imp.WriteHypothesis(ctx, core.Hypothesis{ID: hypothesisID, Name: name, IsDecoy: decoy}); err != nil {
		return err
	}

	reader := msp.NewReader(inFile, glycans)
	reader.HypothesisID = hypothesisID
	reader.IsDecoy = decoy

	fmt.Printf("Importing %s into %s...\n", inputFile, dbFile)
	count, skipped := 0, 0
	for reader.Next() {
		c := reader.Candidate()
		if err := c.Validate(); err != nil {
			fmt.Fprintf(os.Stderr, "Warning: invalid candidate %s: %v\n", c.Name(), err)
			skipped++
			continue
		}
		if err := imp.WriteCandidate(ctx, c); err != nil {
			return fmt.Errorf("failed to write candidate %s: %w", c.Name(), err)
		}
		count++
		if count%1000 == 0 {
			fmt.Printf("Processed %d candidates...\n", count)
		}
	}
	if err := reader.Err(); err != nil {
		return fmt.Errorf("error reading input file: %w", err)
	}
	if err := imp.Commit(); err != nil {
		return err
	}

	fmt.Printf("\nImport complete!\n")
	fmt.Printf("Imported: %d candidates\n", count)
	if skipped > 0 {
		fmt.Printf("Skipped: %d candidates (validation errors)\n", skipped)
	}
	return nil
}

func runImportSpectra(cmd *cobra.Command, args []string) error {
	ctx := context.Background()

	inFile, err := os.Open(inputFile)
	if err != nil {
		return fmt.Errorf("failed to open input file: %w", err)
	}
	defer inFile.Close()

	db, err := sqlite.Open(ctx, dbFile)
	if err != nil {
		return err
	}
	defer db.Close()

	imp, err := db.NewImporter(ctx)
	if err != nil {
		return err
	}
	defer imp.Rollback()

	reader := sptxt.NewReader(inFile, sampleRunID)

	fmt.Printf("Importing %s into %s...\n", inputFile, dbFile)
	count, skipped := 0, 0
	for reader.Next() {
		spec := reader.Spectrum()
		if err := spec.Validate(); err != nil {
			fmt.Fprintf(os.Stderr, "Warning: invalid spectrum %s: %v\n", spec.Name(), err)
			skipped++
			continue
		}
		if err := imp.WriteSpectrum(ctx, spec); err != nil {
			return fmt.Errorf("failed to write spectrum %s: %w", spec.Name(), err)
		}
		count++
		if count%1000 == 0 {
			fmt.Printf("Processed %d spectra...\n", count)
		}
	}
	if err := reader.Err(); err != nil {
		return fmt.Errorf("error reading input file: %w", err)
	}
	if err := imp.Commit(); err != nil {
		return err
	}

	fmt.Printf("\nImport complete!\n")
	fmt.Printf("Imported: %d spectra\n", count)
	if skipped > 0 {
		fmt.Printf("Skipped: %d spectra (validation errors)\n", skipped)
	}
	return nil
}

func runImportHSM(cmd *cobra.Command, args []string) error {
	ctx := context.Background()

	db, err := sqlite.Open(ctx, dbFile)
	if err != nil {
		return err
	}
	defer db.Close()

	imp, err := db.NewImporter(ctx)
	if err != nil {
		return err
	}
	defer imp.Rollback()

	hsm := core.HypothesisSampleMatch{
		ID:                 hsmID,
		TargetHypothesisID: targetHypothesisID,
		DecoyHypothesisID:  decoyHypothesisID,
		SampleRunID:        sampleRunID,
	}
	if err := imp.WriteHypothesisSampleMatch(ctx, hsm); err != nil {
		return err
	}
	if err := imp.Commit(); err != nil {
		return err
	}
	fmt.Printf("Hypothesis sample match %d: target %d, decoy %d, sample run %d\n",
		hsm.ID, hsm.TargetHypothesisID, hsm.DecoyHypothesisID, hsm.SampleRunID)
	return nil
}
