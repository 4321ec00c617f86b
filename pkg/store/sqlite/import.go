package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/BostonUniversityCBMS/glycresoft-sqlalchemy-sub000/pkg/core"
)

// Importer writes hypotheses, candidates and spectra in one transaction.
type Importer struct {
	tx            *sql.Tx
	candidateStmt *sql.Stmt
	spectrumStmt  *sql.Stmt
	candidates    int
	spectra       int
}

// NewImporter starts an import transaction.
func (d *DB) NewImporter(ctx context.Context) (*Importer, error) {
	tx, err := d.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, transient("begin import", err)
	}

	imp := &Importer{tx: tx}
	if err := imp.prepareStatements(ctx); err != nil {
		rollback(tx, "begin import", err)
		return nil, err
	}
	return imp, nil
}

// prepareStatements prepares SQL statements for batch insertion
func (imp *Importer) prepareStatements(ctx context.Context) error {
	var err error

	imp.candidateStmt, err = imp.tx.PrepareContext(ctx, `
		INSERT OR REPLACE INTO candidate (`+candidateColumns+`)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
	`)
	if err != nil {
		return fmt.Errorf("failed to prepare candidate statement: %w", err)
	}

	imp.spectrumStmt, err = imp.tx.PrepareContext(ctx, `
		INSERT OR REPLACE INTO spectrum (`+spectrumColumns+`)
		VALUES (?, ?, ?, ?, ?, ?, ?)
	`)
	if err != nil {
		return fmt.Errorf("failed to prepare spectrum statement: %w", err)
	}

	return nil
}

// WriteHypothesis writes a hypothesis row.
func (imp *Importer) WriteHypothesis(ctx context.Context, h core.Hypothesis) error {
	_, err := imp.tx.ExecContext(ctx, `
		INSERT OR REPLACE INTO hypothesis (id, name, is_decoy) VALUES (?, ?, ?)
	`, h.ID, h.Name, h.IsDecoy)
	if err != nil {
		return fmt.Errorf("failed to insert hypothesis: %w", err)
	}
	return nil
}

// WriteHypothesisSampleMatch writes an analysis scope row.
func (imp *Importer) WriteHypothesisSampleMatch(ctx context.Context, h core.HypothesisSampleMatch) error {
	_, err := imp.tx.ExecContext(ctx, `
		INSERT OR REPLACE INTO hypothesis_sample_match (id, target_hypothesis_id, decoy_hypothesis_id, sample_run_id)
		VALUES (?, ?, ?, ?)
	`, h.ID, h.TargetHypothesisID, h.DecoyHypothesisID, h.SampleRunID)
	if err != nil {
		return fmt.Errorf("failed to insert hypothesis sample match: %w", err)
	}
	return nil
}

// WriteCandidate writes a single candidate with its ion lists.
func (imp *Importer) WriteCandidate(ctx context.Context, c *core.TheoreticalCandidate) error {
	blob, err := encodeIonLists(c.IonLists)
	if err != nil {
		return fmt.Errorf("failed to encode ions of %s: %w", c.Name(), err)
	}

	_, err = imp.candidateStmt.ExecContext(ctx,
		c.ID,
		c.HypothesisID,
		c.IsDecoy,
		c.Sequence,
		c.GlycanComposition,
		joinInts(c.GlycosylationSites),
		c.PrecursorMass,
		blob,
	)
	if err != nil {
		return fmt.Errorf("failed to insert candidate: %w", err)
	}
	imp.candidates++
	return nil
}

// WriteSpectrum writes a single spectrum. Peaks are sorted by mass first.
func (imp *Importer) WriteSpectrum(ctx context.Context, spec *core.ObservedSpectrum) error {
	if !spec.ArePeaksSorted() {
		spec.SortPeaks()
	}

	// Encode peaks as binary blobs (little-endian float64)
	massBlob := encodePeaksFloat64(spec.Peaks, true)
	intBlob := encodePeaksFloat64(spec.Peaks, false)

	_, err := imp.spectrumStmt.ExecContext(ctx,
		spec.SampleRunID,
		spec.ID,
		spec.ScanTime,
		spec.PrecursorNeutralMass,
		spec.PrecursorCharge,
		massBlob,
		intBlob,
	)
	if err != nil {
		return fmt.Errorf("failed to insert spectrum: %w", err)
	}
	imp.spectra++
	return nil
}

// Counts returns the number of candidates and spectra written so far.
func (imp *Importer) Counts() (candidates, spectra int) {
	return imp.candidates, imp.spectra
}

// Commit commits the import.
func (imp *Importer) Commit() error {
	imp.closeStatements()
	if err := imp.tx.Commit(); err != nil {
		return transient("commit import", err)
	}
	return nil
}

// Rollback discards the import. It is a no-op after Commit, so it can be
// deferred.
func (imp *Importer) Rollback() error {
	imp.closeStatements()
	if err := imp.tx.Rollback(); err != nil && !errors.Is(err, sql.ErrTxDone) {
		return transient("rollback import", err)
	}
	return nil
}

func (imp *Importer) closeStatements() {
	if imp.candidateStmt != nil {
		imp.candidateStmt.Close()
	}
	if imp.spectrumStmt != nil {
		imp.spectrumStmt.Close()
	}
}
