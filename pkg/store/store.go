// Package store defines the read-only providers and the result sink the
// matching pipeline works against. Implementations live in subpackages.
package store

import (
	"context"

	"github.com/BostonUniversityCBMS/glycresoft-sqlalchemy-sub000/pkg/core"
)

// CandidateProvider reads theoretical candidates.
type CandidateProvider interface {
	// IterCandidates calls fn for every candidate of a hypothesis, in id order.
	IterCandidates(ctx context.Context, hypothesisID int64, fn func(*core.TheoreticalCandidate) error) error
	// FetchCandidatesByPrecursorRange returns the candidates of the given
	// hypotheses with lo <= precursor mass <= hi.
	FetchCandidatesByPrecursorRange(ctx context.Context, hypothesisIDs []int64, lo, hi float64) ([]*core.TheoreticalCandidate, error)
	// FetchCandidates returns candidates by id. Unknown ids are skipped.
	FetchCandidates(ctx context.Context, ids []int64) ([]*core.TheoreticalCandidate, error)
}

// SpectrumStore reads observed spectra.
type SpectrumStore interface {
	// IterSpectra calls fn for every spectrum of a sample run, in scan order.
	IterSpectra(ctx context.Context, sampleRunID int64, fn func(*core.ObservedSpectrum) error) error
	// FetchByScanIDs returns spectra of a sample run by scan id.
	FetchByScanIDs(ctx context.Context, sampleRunID int64, ids []int64) ([]*core.ObservedSpectrum, error)
	// FetchSpectraByPrecursorRange returns the spectra of a sample run with
	// lo <= precursor neutral mass <= hi.
	FetchSpectraByPrecursorRange(ctx context.Context, sampleRunID int64, lo, hi float64) ([]*core.ObservedSpectrum, error)
}

// BestMatchUpdate sets the best-match candidates of one scan. Every other
// candidate matched to the scan loses its flag.
type BestMatchUpdate struct {
	ScanID       int64
	CandidateIDs []int64
}

// ScoreUpdate writes score fields of one GlycopeptideMatch.
type ScoreUpdate struct {
	CandidateID int64
	Fields      core.ScoreFields
}

// ResultSink writes results. Rows are keyed by (hsm, candidate, spectrum) and
// (hsm, candidate), so writes are idempotent.
type ResultSink interface {
	UpsertSpectrumMatch(ctx context.Context, m *core.SpectrumMatch) error
	UpsertSpectrumMatches(ctx context.Context, ms []*core.SpectrumMatch) error
	UpsertGlycopeptideMatch(ctx context.Context, g *core.GlycopeptideMatch) error
	UpsertGlycopeptideMatches(ctx context.Context, gs []*core.GlycopeptideMatch) error
	UpdateBestMatchFlags(ctx context.Context, hsmID, scanID int64, candidateIDs []int64) error
	UpdateBestMatchFlagsBatch(ctx context.Context, hsmID int64, updates []BestMatchUpdate) error
	UpdateScoreFields(ctx context.Context, hsmID, candidateID int64, fields core.ScoreFields) error
	UpdateScoreFieldsBatch(ctx context.Context, hsmID int64, updates []ScoreUpdate) error
}

// ResultReader reads back results written through a ResultSink.
type ResultReader interface {
	HypothesisSampleMatch(ctx context.Context, id int64) (*core.HypothesisSampleMatch, error)
	// ScanIDsWithMatches lists scans with at least one spectrum match, ascending.
	ScanIDsWithMatches(ctx context.Context, hsmID int64) ([]int64, error)
	SpectrumMatchesForScan(ctx context.Context, hsmID, scanID int64) ([]*core.SpectrumMatch, error)
	// CandidateIDsWithBestMatches lists candidates flagged best for some scan, ascending.
	CandidateIDsWithBestMatches(ctx context.Context, hsmID int64) ([]int64, error)
	BestSpectrumMatchesForCandidate(ctx context.Context, hsmID, candidateID int64) ([]*core.SpectrumMatch, error)
	GlycopeptideMatches(ctx context.Context, hsmID int64) ([]*core.GlycopeptideMatch, error)
}

// Session is one worker's handle on the store. Sessions are not shared
// between workers.
type Session interface {
	CandidateProvider
	SpectrumStore
	ResultSink
	ResultReader
	Close() error
}

// Factory opens a new Session.
type Factory func(ctx context.Context) (Session, error)
