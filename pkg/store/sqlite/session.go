package sqlite

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/grailbio/base/log"

	"github.com/BostonUniversityCBMS/glycresoft-sqlalchemy-sub000/pkg/core"
	"github.com/BostonUniversityCBMS/glycresoft-sqlalchemy-sub000/pkg/store"
)

const candidateColumns = `id, hypothesis_id, is_decoy, sequence, glycan_composition,
	glycosylation_sites, precursor_mass, blob_ions`

const spectrumColumns = `sample_run_id, scan_id, scan_time, precursor_neutral_mass,
	precursor_charge, blob_mass, blob_intensity`

const spectrumMatchColumns = `hsm_id, candidate_id, spectrum_id, precursor_ppm_error,
	peaks_explained, peaks_unexplained, best_match, blob_ion_matches`

const glycopeptideMatchColumns = `hsm_id, candidate_id, is_decoy, sequence, glycan_composition,
	precursor_mass, precursor_ppm_error, best_scan_id, scan_ids, blob_ion_matches,
	mean_coverage, mean_hexnac_coverage, stub_score, ms2_score, q_value, p_value`

// Session is a store.Session bound to one database connection.
type Session struct {
	conn *sql.Conn
}

var _ store.Session = (*Session)(nil)

// Close releases the connection.
func (s *Session) Close() error {
	return s.conn.Close()
}

// rollback aborts tx after cause. A failed rollback is logged; cause is
// what the caller reports.
func rollback(tx *sql.Tx, op string, cause error) {
	if err := tx.Rollback(); err != nil {
		log.Error.Printf("%s: rollback after %v failed: %v", op, cause, err)
	}
}

// inTx runs fn in a transaction, rolling back on error.
func (s *Session) inTx(ctx context.Context, op string, fn func(*sql.Tx) error) error {
	tx, err := s.conn.BeginTx(ctx, nil)
	if err != nil {
		return transient(op, err)
	}
	if err := fn(tx); err != nil {
		rollback(tx, op, err)
		return transient(op, err)
	}
	if err := tx.Commit(); err != nil {
		return transient(op, err)
	}
	return nil
}

type scanner interface {
	Scan(dest ...interface{}) error
}

func scanCandidate(row scanner) (*core.TheoreticalCandidate, error) {
	var (
		c     core.TheoreticalCandidate
		sites string
		blob  []byte
	)
	if err := row.Scan(&c.ID, &c.HypothesisID, &c.IsDecoy, &c.Sequence, &c.GlycanComposition,
		&sites, &c.PrecursorMass, &blob); err != nil {
		return nil, err
	}
	var err error
	if c.GlycosylationSites, err = splitInts(sites); err != nil {
		return nil, err
	}
	if err := decodeIonLists(blob, &c); err != nil {
		return nil, fmt.Errorf("candidate %d: %w", c.ID, err)
	}
	return &c, nil
}

func (s *Session) queryCandidates(ctx context.Context, op, query string, args ...interface{}) ([]*core.TheoreticalCandidate, error) {
	rows, err := s.conn.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, transient(op, err)
	}
	defer rows.Close()

	var out []*core.TheoreticalCandidate
	for rows.Next() {
		c, err := scanCandidate(rows)
		if err != nil {
			return nil, transient(op, err)
		}
		out = append(out, c)
	}
	if err := rows.Err(); err != nil {
		return nil, transient(op, err)
	}
	return out, nil
}

func (s *Session) IterCandidates(ctx context.Context, hypothesisID int64, fn func(*core.TheoreticalCandidate) error) error {
	// Rows are buffered so fn may use the session.
	cs, err := s.queryCandidates(ctx, "iterate candidates",
		`SELECT `+candidateColumns+` FROM candidate WHERE hypothesis_id = ? ORDER BY id`, hypothesisID)
	if err != nil {
		return err
	}
	for _, c := range cs {
		if err := fn(c); err != nil {
			return err
		}
	}
	return nil
}

func (s *Session) FetchCandidatesByPrecursorRange(ctx context.Context, hypothesisIDs []int64, lo, hi float64) ([]*core.TheoreticalCandidate, error) {
	if len(hypothesisIDs) == 0 {
		return nil, nil
	}
	args := append(int64Args(hypothesisIDs), lo, hi)
	return s.queryCandidates(ctx, "fetch candidates by precursor range",
		`SELECT `+candidateColumns+` FROM candidate
		WHERE hypothesis_id IN (`+placeholders(len(hypothesisIDs))+`)
		AND precursor_mass BETWEEN ? AND ? ORDER BY id`, args...)
}

func (s *Session) FetchCandidates(ctx context.Context, ids []int64) ([]*core.TheoreticalCandidate, error) {
	if len(ids) == 0 {
		return nil, nil
	}
	return s.queryCandidates(ctx, "fetch candidates",
		`SELECT `+candidateColumns+` FROM candidate WHERE id IN (`+placeholders(len(ids))+`) ORDER BY id`,
		int64Args(ids)...)
}

func scanSpectrum(row scanner) (*core.ObservedSpectrum, error) {
	var (
		sp              core.ObservedSpectrum
		scanTime        sql.NullFloat64
		charge          sql.NullInt64
		massBlob, inten []byte
	)
	if err := row.Scan(&sp.SampleRunID, &sp.ID, &scanTime, &sp.PrecursorNeutralMass, &charge,
		&massBlob, &inten); err != nil {
		return nil, err
	}
	sp.ScanTime = scanTime.Float64
	sp.PrecursorCharge = int(charge.Int64)

	var err error
	if sp.Peaks, err = decodePeaksFloat64(massBlob, inten); err != nil {
		return nil, fmt.Errorf("spectrum %s: %w", sp.Name(), err)
	}
	return &sp, nil
}

func (s *Session) querySpectra(ctx context.Context, op, query string, args ...interface{}) ([]*core.ObservedSpectrum, error) {
	rows, err := s.conn.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, transient(op, err)
	}
	defer rows.Close()

	var out []*core.ObservedSpectrum
	for rows.Next() {
		sp, err := scanSpectrum(rows)
		if err != nil {
			return nil, transient(op, err)
		}
		out = append(out, sp)
	}
	if err := rows.Err(); err != nil {
		return nil, transient(op, err)
	}
	return out, nil
}

func (s *Session) IterSpectra(ctx context.Context, sampleRunID int64, fn func(*core.ObservedSpectrum) error) error {
	ss, err := s.querySpectra(ctx, "iterate spectra",
		`SELECT `+spectrumColumns+` FROM spectrum WHERE sample_run_id = ? ORDER BY scan_id`, sampleRunID)
	if err != nil {
		return err
	}
	for _, sp := range ss {
		if err := fn(sp); err != nil {
			return err
		}
	}
	return nil
}

func (s *Session) FetchByScanIDs(ctx context.Context, sampleRunID int64, ids []int64) ([]*core.ObservedSpectrum, error) {
	if len(ids) == 0 {
		return nil, nil
	}
	args := append([]interface{}{sampleRunID}, int64Args(ids)...)
	return s.querySpectra(ctx, "fetch spectra by scan id",
		`SELECT `+spectrumColumns+` FROM spectrum
		WHERE sample_run_id = ? AND scan_id IN (`+placeholders(len(ids))+`) ORDER BY scan_id`, args...)
}

func (s *Session) FetchSpectraByPrecursorRange(ctx context.Context, sampleRunID int64, lo, hi float64) ([]*core.ObservedSpectrum, error) {
	return s.querySpectra(ctx, "fetch spectra by precursor range",
		`SELECT `+spectrumColumns+` FROM spectrum
		WHERE sample_run_id = ? AND precursor_neutral_mass BETWEEN ? AND ? ORDER BY scan_id`,
		sampleRunID, lo, hi)
}

func (s *Session) UpsertSpectrumMatch(ctx context.Context, m *core.SpectrumMatch) error {
	return s.UpsertSpectrumMatches(ctx, []*core.SpectrumMatch{m})
}

func (s *Session) UpsertSpectrumMatches(ctx context.Context, ms []*core.SpectrumMatch) error {
	return s.inTx(ctx, "upsert spectrum matches", func(tx *sql.Tx) error {
		stmt, err := tx.PrepareContext(ctx, `
			INSERT INTO spectrum_match (`+spectrumMatchColumns+`)
			VALUES (?, ?, ?, ?, ?, ?, ?, ?)
			ON CONFLICT (hsm_id, candidate_id, spectrum_id) DO UPDATE SET
				precursor_ppm_error = excluded.precursor_ppm_error,
				peaks_explained = excluded.peaks_explained,
				peaks_unexplained = excluded.peaks_unexplained,
				best_match = excluded.best_match,
				blob_ion_matches = excluded.blob_ion_matches
		`)
		if err != nil {
			return err
		}
		defer stmt.Close()

		for _, m := range ms {
			blob, err := encodeIonMatches(m.Matches())
			if err != nil {
				return err
			}
			if _, err := stmt.ExecContext(ctx,
				m.HypothesisSampleMatchID, m.CandidateID, m.SpectrumID, m.PrecursorPPMError,
				m.PeaksExplained, m.PeaksUnexplained, m.BestMatch, blob,
			); err != nil {
				return err
			}
		}
		return nil
	})
}

func (s *Session) UpsertGlycopeptideMatch(ctx context.Context, g *core.GlycopeptideMatch) error {
	return s.UpsertGlycopeptideMatches(ctx, []*core.GlycopeptideMatch{g})
}

func (s *Session) UpsertGlycopeptideMatches(ctx context.Context, gs []*core.GlycopeptideMatch) error {
	return s.inTx(ctx, "upsert glycopeptide matches", func(tx *sql.Tx) error {
		stmt, err := tx.PrepareContext(ctx, `
			INSERT INTO glycopeptide_match (`+glycopeptideMatchColumns+`)
			VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
			ON CONFLICT (hsm_id, candidate_id) DO UPDATE SET
				is_decoy = excluded.is_decoy,
				sequence = excluded.sequence,
				glycan_composition = excluded.glycan_composition,
				precursor_mass = excluded.precursor_mass,
				precursor_ppm_error = excluded.precursor_ppm_error,
				best_scan_id = excluded.best_scan_id,
				scan_ids = excluded.scan_ids,
				blob_ion_matches = excluded.blob_ion_matches,
				mean_coverage = excluded.mean_coverage,
				mean_hexnac_coverage = excluded.mean_hexnac_coverage,
				stub_score = excluded.stub_score,
				ms2_score = excluded.ms2_score,
				q_value = excluded.q_value,
				p_value = excluded.p_value
		`)
		if err != nil {
			return err
		}
		defer stmt.Close()

		for _, g := range gs {
			blob, err := encodeIonMatches(flattenByKind(g.IonMatches))
			if err != nil {
				return err
			}
			if _, err := stmt.ExecContext(ctx,
				g.HypothesisSampleMatchID, g.CandidateID, g.IsDecoy, g.Sequence, g.GlycanComposition,
				g.PrecursorMass, g.PrecursorPPMError, g.BestScanID, joinIDs(g.ScanIDs), blob,
				g.MeanCoverage, g.MeanHexNAcCoverage, g.StubScore, g.MS2Score,
				nullable(g.QValue), nullable(g.PValue),
			); err != nil {
				return err
			}
		}
		return nil
	})
}

func nullable(v *float64) sql.NullFloat64 {
	if v == nil {
		return sql.NullFloat64{}
	}
	return sql.NullFloat64{Float64: *v, Valid: true}
}

func pointer(v sql.NullFloat64) *float64 {
	if !v.Valid {
		return nil
	}
	f := v.Float64
	return &f
}

func (s *Session) UpdateBestMatchFlags(ctx context.Context, hsmID, scanID int64, candidateIDs []int64) error {
	return s.UpdateBestMatchFlagsBatch(ctx, hsmID, []store.BestMatchUpdate{{ScanID: scanID, CandidateIDs: candidateIDs}})
}

func (s *Session) UpdateBestMatchFlagsBatch(ctx context.Context, hsmID int64, updates []store.BestMatchUpdate) error {
	return s.inTx(ctx, "update best match flags", func(tx *sql.Tx) error {
		clearStmt, err := tx.PrepareContext(ctx,
			`UPDATE spectrum_match SET best_match = 0 WHERE hsm_id = ? AND spectrum_id = ?`)
		if err != nil {
			return err
		}
		defer clearStmt.Close()
		setStmt, err := tx.PrepareContext(ctx,
			`UPDATE spectrum_match SET best_match = 1 WHERE hsm_id = ? AND spectrum_id = ? AND candidate_id = ?`)
		if err != nil {
			return err
		}
		defer setStmt.Close()

		for _, u := range updates {
			if _, err := clearStmt.ExecContext(ctx, hsmID, u.ScanID); err != nil {
				return err
			}
			for _, id := range u.CandidateIDs {
				if _, err := setStmt.ExecContext(ctx, hsmID, u.ScanID, id); err != nil {
					return err
				}
			}
		}
		return nil
	})
}

func (s *Session) UpdateScoreFields(ctx context.Context, hsmID, candidateID int64, fields core.ScoreFields) error {
	return s.UpdateScoreFieldsBatch(ctx, hsmID, []store.ScoreUpdate{{CandidateID: candidateID, Fields: fields}})
}

func (s *Session) UpdateScoreFieldsBatch(ctx context.Context, hsmID int64, updates []store.ScoreUpdate) error {
	return s.inTx(ctx, "update score fields", func(tx *sql.Tx) error {
		stmt, err := tx.PrepareContext(ctx, `
			UPDATE glycopeptide_match SET
				mean_coverage = ?, mean_hexnac_coverage = ?, stub_score = ?, ms2_score = ?,
				q_value = ?, p_value = ?
			WHERE hsm_id = ? AND candidate_id = ?
		`)
		if err != nil {
			return err
		}
		defer stmt.Close()

		for _, u := range updates {
			f := u.Fields
			res, err := stmt.ExecContext(ctx, f.MeanCoverage, f.MeanHexNAcCoverage, f.StubScore, f.MS2Score,
				nullable(f.QValue), nullable(f.PValue), hsmID, u.CandidateID)
			if err != nil {
				return err
			}
			if n, err := res.RowsAffected(); err == nil && n == 0 {
				return &core.DataIntegrityError{
					Field:   "glycopeptide_match",
					Message: fmt.Sprintf("no match for candidate %d", u.CandidateID),
				}
			}
		}
		return nil
	})
}

func (s *Session) HypothesisSampleMatch(ctx context.Context, id int64) (*core.HypothesisSampleMatch, error) {
	var h core.HypothesisSampleMatch
	err := s.conn.QueryRowContext(ctx, `
		SELECT id, target_hypothesis_id, decoy_hypothesis_id, sample_run_id
		FROM hypothesis_sample_match WHERE id = ?
	`, id).Scan(&h.ID, &h.TargetHypothesisID, &h.DecoyHypothesisID, &h.SampleRunID)
	if err == sql.ErrNoRows {
		return nil, &core.DataIntegrityError{Field: "hypothesis_sample_match", Message: fmt.Sprintf("unknown id %d", id)}
	}
	if err != nil {
		return nil, transient("read hypothesis sample match", err)
	}
	return &h, nil
}

func (s *Session) queryIDs(ctx context.Context, op, query string, args ...interface{}) ([]int64, error) {
	rows, err := s.conn.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, transient(op, err)
	}
	defer rows.Close()

	var out []int64
	for rows.Next() {
		var id int64
		if err := rows.Scan(&id); err != nil {
			return nil, transient(op, err)
		}
		out = append(out, id)
	}
	if err := rows.Err(); err != nil {
		return nil, transient(op, err)
	}
	return out, nil
}

func (s *Session) ScanIDsWithMatches(ctx context.Context, hsmID int64) ([]int64, error) {
	return s.queryIDs(ctx, "list matched scans",
		`SELECT DISTINCT spectrum_id FROM spectrum_match WHERE hsm_id = ? ORDER BY spectrum_id`, hsmID)
}

func (s *Session) CandidateIDsWithBestMatches(ctx context.Context, hsmID int64) ([]int64, error) {
	return s.queryIDs(ctx, "list best-matched candidates",
		`SELECT DISTINCT candidate_id FROM spectrum_match WHERE hsm_id = ? AND best_match = 1 ORDER BY candidate_id`, hsmID)
}

func scanSpectrumMatch(row scanner) (*core.SpectrumMatch, error) {
	var (
		m    core.SpectrumMatch
		blob []byte
	)
	if err := row.Scan(&m.HypothesisSampleMatchID, &m.CandidateID, &m.SpectrumID, &m.PrecursorPPMError,
		&m.PeaksExplained, &m.PeaksUnexplained, &m.BestMatch, &blob); err != nil {
		return nil, err
	}
	matches, err := decodeIonMatches(blob)
	if err != nil {
		return nil, err
	}
	m.IonMatches = core.GroupByPeak(matches)
	return &m, nil
}

func (s *Session) querySpectrumMatches(ctx context.Context, op, query string, args ...interface{}) ([]*core.SpectrumMatch, error) {
	rows, err := s.conn.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, transient(op, err)
	}
	defer rows.Close()

	var out []*core.SpectrumMatch
	for rows.Next() {
		m, err := scanSpectrumMatch(rows)
		if err != nil {
			return nil, transient(op, err)
		}
		out = append(out, m)
	}
	if err := rows.Err(); err != nil {
		return nil, transient(op, err)
	}
	return out, nil
}

func (s *Session) SpectrumMatchesForScan(ctx context.Context, hsmID, scanID int64) ([]*core.SpectrumMatch, error) {
	return s.querySpectrumMatches(ctx, "read spectrum matches for scan",
		`SELECT `+spectrumMatchColumns+` FROM spectrum_match
		WHERE hsm_id = ? AND spectrum_id = ? ORDER BY candidate_id`, hsmID, scanID)
}

func (s *Session) BestSpectrumMatchesForCandidate(ctx context.Context, hsmID, candidateID int64) ([]*core.SpectrumMatch, error) {
	return s.querySpectrumMatches(ctx, "read best spectrum matches",
		`SELECT `+spectrumMatchColumns+` FROM spectrum_match
		WHERE hsm_id = ? AND candidate_id = ? AND best_match = 1 ORDER BY spectrum_id`, hsmID, candidateID)
}

func (s *Session) GlycopeptideMatches(ctx context.Context, hsmID int64) ([]*core.GlycopeptideMatch, error) {
	const op = "read glycopeptide matches"
	rows, err := s.conn.QueryContext(ctx,
		`SELECT `+glycopeptideMatchColumns+` FROM glycopeptide_match WHERE hsm_id = ? ORDER BY candidate_id`, hsmID)
	if err != nil {
		return nil, transient(op, err)
	}
	defer rows.Close()

	var out []*core.GlycopeptideMatch
	for rows.Next() {
		var (
			g      core.GlycopeptideMatch
			scans  string
			blob   []byte
			qv, pv sql.NullFloat64
		)
		if err := rows.Scan(&g.HypothesisSampleMatchID, &g.CandidateID, &g.IsDecoy, &g.Sequence,
			&g.GlycanComposition, &g.PrecursorMass, &g.PrecursorPPMError, &g.BestScanID, &scans, &blob,
			&g.MeanCoverage, &g.MeanHexNAcCoverage, &g.StubScore, &g.MS2Score, &qv, &pv); err != nil {
			return nil, transient(op, err)
		}
		if g.ScanIDs, err = splitIDs(scans); err != nil {
			return nil, err
		}
		matches, err := decodeIonMatches(blob)
		if err != nil {
			return nil, err
		}
		g.IonMatches = make(map[core.IonKind][]core.IonMatch)
		for _, im := range matches {
			g.IonMatches[im.Kind] = append(g.IonMatches[im.Kind], im)
		}
		g.QValue, g.PValue = pointer(qv), pointer(pv)
		out = append(out, &g)
	}
	if err := rows.Err(); err != nil {
		return nil, transient(op, err)
	}
	return out, nil
}
