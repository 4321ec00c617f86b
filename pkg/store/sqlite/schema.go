package sqlite

import (
	"context"
	"database/sql"
	"fmt"
	"time"
)

const (
	schemaVersion = 1
	// Date format for store_info (ISO 8601)
	infoDateFormat = "2006-01-02"
)

const schema = `
CREATE TABLE IF NOT EXISTS hypothesis (
	id INTEGER PRIMARY KEY,
	name TEXT,
	is_decoy BOOL NOT NULL DEFAULT 0
);

CREATE TABLE IF NOT EXISTS hypothesis_sample_match (
	id INTEGER PRIMARY KEY,
	target_hypothesis_id INTEGER NOT NULL REFERENCES hypothesis(id),
	decoy_hypothesis_id INTEGER NOT NULL REFERENCES hypothesis(id),
	sample_run_id INTEGER NOT NULL
);

CREATE TABLE IF NOT EXISTS candidate (
	id INTEGER PRIMARY KEY,
	hypothesis_id INTEGER NOT NULL REFERENCES hypothesis(id),
	is_decoy BOOL NOT NULL DEFAULT 0,
	sequence TEXT,
	glycan_composition TEXT,
	glycosylation_sites TEXT,
	precursor_mass DOUBLE NOT NULL,
	blob_ions BLOB
);
CREATE INDEX IF NOT EXISTS candidate_mass ON candidate(hypothesis_id, precursor_mass);

CREATE TABLE IF NOT EXISTS spectrum (
	sample_run_id INTEGER NOT NULL,
	scan_id INTEGER NOT NULL,
	scan_time DOUBLE,
	precursor_neutral_mass DOUBLE NOT NULL,
	precursor_charge INTEGER,
	blob_mass BLOB,
	blob_intensity BLOB,
	PRIMARY KEY (sample_run_id, scan_id)
);
CREATE INDEX IF NOT EXISTS spectrum_mass ON spectrum(sample_run_id, precursor_neutral_mass);

CREATE TABLE IF NOT EXISTS spectrum_match (
	hsm_id INTEGER NOT NULL,
	candidate_id INTEGER NOT NULL,
	spectrum_id INTEGER NOT NULL,
	precursor_ppm_error DOUBLE,
	peaks_explained INTEGER,
	peaks_unexplained INTEGER,
	best_match BOOL NOT NULL DEFAULT 0,
	blob_ion_matches BLOB,
	PRIMARY KEY (hsm_id, candidate_id, spectrum_id)
);
CREATE INDEX IF NOT EXISTS spectrum_match_scan ON spectrum_match(hsm_id, spectrum_id);

CREATE TABLE IF NOT EXISTS glycopeptide_match (
	hsm_id INTEGER NOT NULL,
	candidate_id INTEGER NOT NULL,
	is_decoy BOOL NOT NULL DEFAULT 0,
	sequence TEXT,
	glycan_composition TEXT,
	precursor_mass DOUBLE,
	precursor_ppm_error DOUBLE,
	best_scan_id INTEGER,
	scan_ids TEXT,
	blob_ion_matches BLOB,
	mean_coverage DOUBLE,
	mean_hexnac_coverage DOUBLE,
	stub_score DOUBLE,
	ms2_score DOUBLE,
	q_value DOUBLE,
	p_value DOUBLE,
	PRIMARY KEY (hsm_id, candidate_id)
);

CREATE TABLE IF NOT EXISTS store_info (
	version INTEGER NOT NULL DEFAULT 0,
	creation_date TEXT,
	description TEXT
);
`

// createTables creates the required database schema
func createTables(ctx context.Context, db *sql.DB) error {
	if _, err := db.ExecContext(ctx, schema); err != nil {
		return fmt.Errorf("failed to create tables: %w", err)
	}

	var n int
	if err := db.QueryRowContext(ctx, `SELECT COUNT(*) FROM store_info`).Scan(&n); err != nil {
		return fmt.Errorf("failed to read store info: %w", err)
	}
	if n > 0 {
		return nil
	}
	_, err := db.ExecContext(ctx, `
		INSERT INTO store_info (version, creation_date, description)
		VALUES (?, ?, ?)
	`, schemaVersion, time.Now().Format(infoDateFormat), "glycopeptide identification store")
	if err != nil {
		return fmt.Errorf("failed to insert store info: %w", err)
	}
	return nil
}
