// Package memstore is an in-memory store. All sessions opened from one Store
// share its state.
package memstore

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"github.com/BostonUniversityCBMS/glycresoft-sqlalchemy-sub000/pkg/core"
	"github.com/BostonUniversityCBMS/glycresoft-sqlalchemy-sub000/pkg/store"
)

type matchKey struct {
	hsm, candidate, spectrum int64
}

type aggregateKey struct {
	hsm, candidate int64
}

// Store holds candidates, spectra and results in memory.
type Store struct {
	mu         sync.RWMutex
	hsms       map[int64]core.HypothesisSampleMatch
	candidates map[int64]*core.TheoreticalCandidate
	spectra    map[int64]map[int64]*core.ObservedSpectrum // run -> scan -> spectrum
	matches    map[matchKey]core.SpectrumMatch
	aggregates map[aggregateKey]core.GlycopeptideMatch

	// Fault, when set, is called before every operation; a non-nil result
	// is returned instead of performing it.
	Fault func(op string) error
}

// New returns an empty Store.
func New() *Store {
	return &Store{
		hsms:       make(map[int64]core.HypothesisSampleMatch),
		candidates: make(map[int64]*core.TheoreticalCandidate),
		spectra:    make(map[int64]map[int64]*core.ObservedSpectrum),
		matches:    make(map[matchKey]core.SpectrumMatch),
		aggregates: make(map[aggregateKey]core.GlycopeptideMatch),
	}
}

// AddHypothesisSampleMatch registers an analysis scope.
func (s *Store) AddHypothesisSampleMatch(h core.HypothesisSampleMatch) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.hsms[h.ID] = h
}

// AddCandidate stores a candidate.
func (s *Store) AddCandidate(c *core.TheoreticalCandidate) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.candidates[c.ID] = c
}

// AddSpectrum stores a spectrum.
func (s *Store) AddSpectrum(sp *core.ObservedSpectrum) {
	s.mu.Lock()
	defer s.mu.Unlock()
	run, ok := s.spectra[sp.SampleRunID]
	if !ok {
		run = make(map[int64]*core.ObservedSpectrum)
		s.spectra[sp.SampleRunID] = run
	}
	run[sp.ID] = sp
}

// Factory returns a store.Factory opening sessions on s.
func (s *Store) Factory() store.Factory {
	return func(ctx context.Context) (store.Session, error) {
		if err := s.fault("open"); err != nil {
			return nil, err
		}
		return &session{s: s}, nil
	}
}

// SpectrumMatchCount returns the number of stored spectrum matches.
func (s *Store) SpectrumMatchCount() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.matches)
}

// SpectrumMatches returns every stored spectrum match of an hsm ordered by
// candidate, then spectrum.
func (s *Store) SpectrumMatches(hsmID int64) []*core.SpectrumMatch {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []*core.SpectrumMatch
	for k, m := range s.matches {
		if k.hsm == hsmID {
			m := m
			out = append(out, &m)
		}
	}
	sortMatches(out)
	return out
}

func (s *Store) fault(op string) error {
	if s.Fault == nil {
		return nil
	}
	return s.Fault(op)
}

func sortMatches(ms []*core.SpectrumMatch) {
	sort.Slice(ms, func(i, j int) bool {
		if ms[i].CandidateID != ms[j].CandidateID {
			return ms[i].CandidateID < ms[j].CandidateID
		}
		return ms[i].SpectrumID < ms[j].SpectrumID
	})
}

func sortedIDs(set map[int64]struct{}) []int64 {
	out := make([]int64, 0, len(set))
	for id := range set {
		out = append(out, id)
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}

type session struct {
	s      *Store
	closed bool
}

var _ store.Session = (*session)(nil)

func (x *session) check(op string) error {
	if x.closed {
		return fmt.Errorf("%s on closed session", op)
	}
	return x.s.fault(op)
}

func (x *session) Close() error {
	x.closed = true
	return nil
}

func (x *session) IterCandidates(ctx context.Context, hypothesisID int64, fn func(*core.TheoreticalCandidate) error) error {
	if err := x.check("iter_candidates"); err != nil {
		return err
	}
	x.s.mu.RLock()
	var cs []*core.TheoreticalCandidate
	for _, c := range x.s.candidates {
		if c.HypothesisID == hypothesisID {
			cs = append(cs, c)
		}
	}
	x.s.mu.RUnlock()

	sort.Slice(cs, func(i, j int) bool { return cs[i].ID < cs[j].ID })
	for _, c := range cs {
		if err := ctx.Err(); err != nil {
			return err
		}
		if err := fn(c); err != nil {
			return err
		}
	}
	return nil
}

func (x *session) FetchCandidatesByPrecursorRange(ctx context.Context, hypothesisIDs []int64, lo, hi float64) ([]*core.TheoreticalCandidate, error) {
	if err := x.check("fetch_candidates_by_precursor_range"); err != nil {
		return nil, err
	}
	want := make(map[int64]bool, len(hypothesisIDs))
	for _, id := range hypothesisIDs {
		want[id] = true
	}
	x.s.mu.RLock()
	defer x.s.mu.RUnlock()
	var out []*core.TheoreticalCandidate
	for _, c := range x.s.candidates {
		if want[c.HypothesisID] && c.PrecursorMass >= lo && c.PrecursorMass <= hi {
			out = append(out, c)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (x *session) FetchCandidates(ctx context.Context, ids []int64) ([]*core.TheoreticalCandidate, error) {
	if err := x.check("fetch_candidates"); err != nil {
		return nil, err
	}
	x.s.mu.RLock()
	defer x.s.mu.RUnlock()
	var out []*core.TheoreticalCandidate
	for _, id := range ids {
		if c, ok := x.s.candidates[id]; ok {
			out = append(out, c)
		}
	}
	return out, nil
}

func (x *session) IterSpectra(ctx context.Context, sampleRunID int64, fn func(*core.ObservedSpectrum) error) error {
	if err := x.check("iter_spectra"); err != nil {
		return err
	}
	x.s.mu.RLock()
	var ss []*core.ObservedSpectrum
	for _, sp := range x.s.spectra[sampleRunID] {
		ss = append(ss, sp)
	}
	x.s.mu.RUnlock()

	sort.Slice(ss, func(i, j int) bool { return ss[i].ID < ss[j].ID })
	for _, sp := range ss {
		if err := ctx.Err(); err != nil {
			return err
		}
		if err := fn(sp); err != nil {
			return err
		}
	}
	return nil
}

func (x *session) FetchByScanIDs(ctx context.Context, sampleRunID int64, ids []int64) ([]*core.ObservedSpectrum, error) {
	if err := x.check("fetch_by_scan_ids"); err != nil {
		return nil, err
	}
	x.s.mu.RLock()
	defer x.s.mu.RUnlock()
	var out []*core.ObservedSpectrum
	for _, id := range ids {
		if sp, ok := x.s.spectra[sampleRunID][id]; ok {
			out = append(out, sp)
		}
	}
	return out, nil
}

func (x *session) FetchSpectraByPrecursorRange(ctx context.Context, sampleRunID int64, lo, hi float64) ([]*core.ObservedSpectrum, error) {
	if err := x.check("fetch_spectra_by_precursor_range"); err != nil {
		return nil, err
	}
	x.s.mu.RLock()
	defer x.s.mu.RUnlock()
	var out []*core.ObservedSpectrum
	for _, sp := range x.s.spectra[sampleRunID] {
		if sp.PrecursorNeutralMass >= lo && sp.PrecursorNeutralMass <= hi {
			out = append(out, sp)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (x *session) UpsertSpectrumMatch(ctx context.Context, m *core.SpectrumMatch) error {
	return x.UpsertSpectrumMatches(ctx, []*core.SpectrumMatch{m})
}

func (x *session) UpsertSpectrumMatches(ctx context.Context, ms []*core.SpectrumMatch) error {
	if err := x.check("upsert_spectrum_matches"); err != nil {
		return err
	}
	x.s.mu.Lock()
	defer x.s.mu.Unlock()
	for _, m := range ms {
		x.s.matches[matchKey{m.HypothesisSampleMatchID, m.CandidateID, m.SpectrumID}] = *m
	}
	return nil
}

func (x *session) UpsertGlycopeptideMatch(ctx context.Context, g *core.GlycopeptideMatch) error {
	return x.UpsertGlycopeptideMatches(ctx, []*core.GlycopeptideMatch{g})
}

func (x *session) UpsertGlycopeptideMatches(ctx context.Context, gs []*core.GlycopeptideMatch) error {
	if err := x.check("upsert_glycopeptide_matches"); err != nil {
		return err
	}
	x.s.mu.Lock()
	defer x.s.mu.Unlock()
	for _, g := range gs {
		x.s.aggregates[aggregateKey{g.HypothesisSampleMatchID, g.CandidateID}] = *g
	}
	return nil
}

func (x *session) UpdateBestMatchFlags(ctx context.Context, hsmID, scanID int64, candidateIDs []int64) error {
	return x.UpdateBestMatchFlagsBatch(ctx, hsmID, []store.BestMatchUpdate{{ScanID: scanID, CandidateIDs: candidateIDs}})
}

func (x *session) UpdateBestMatchFlagsBatch(ctx context.Context, hsmID int64, updates []store.BestMatchUpdate) error {
	if err := x.check("update_best_match_flags"); err != nil {
		return err
	}
	x.s.mu.Lock()
	defer x.s.mu.Unlock()
	for _, u := range updates {
		best := make(map[int64]bool, len(u.CandidateIDs))
		for _, id := range u.CandidateIDs {
			best[id] = true
		}
		for k, m := range x.s.matches {
			if k.hsm == hsmID && k.spectrum == u.ScanID {
				m.BestMatch = best[k.candidate]
				x.s.matches[k] = m
			}
		}
	}
	return nil
}

func (x *session) UpdateScoreFields(ctx context.Context, hsmID, candidateID int64, fields core.ScoreFields) error {
	return x.UpdateScoreFieldsBatch(ctx, hsmID, []store.ScoreUpdate{{CandidateID: candidateID, Fields: fields}})
}

func (x *session) UpdateScoreFieldsBatch(ctx context.Context, hsmID int64, updates []store.ScoreUpdate) error {
	if err := x.check("update_score_fields"); err != nil {
		return err
	}
	x.s.mu.Lock()
	defer x.s.mu.Unlock()
	for _, u := range updates {
		k := aggregateKey{hsmID, u.CandidateID}
		g, ok := x.s.aggregates[k]
		if !ok {
			return &core.DataIntegrityError{Field: "glycopeptide_match", Message: fmt.Sprintf("no match for candidate %d", u.CandidateID)}
		}
		g.ScoreFields = u.Fields
		x.s.aggregates[k] = g
	}
	return nil
}

func (x *session) HypothesisSampleMatch(ctx context.Context, id int64) (*core.HypothesisSampleMatch, error) {
	if err := x.check("hypothesis_sample_match"); err != nil {
		return nil, err
	}
	x.s.mu.RLock()
	defer x.s.mu.RUnlock()
	h, ok := x.s.hsms[id]
	if !ok {
		return nil, &core.DataIntegrityError{Field: "hypothesis_sample_match", Message: fmt.Sprintf("unknown id %d", id)}
	}
	return &h, nil
}

func (x *session) ScanIDsWithMatches(ctx context.Context, hsmID int64) ([]int64, error) {
	if err := x.check("scan_ids_with_matches"); err != nil {
		return nil, err
	}
	x.s.mu.RLock()
	defer x.s.mu.RUnlock()
	set := make(map[int64]struct{})
	for k := range x.s.matches {
		if k.hsm == hsmID {
			set[k.spectrum] = struct{}{}
		}
	}
	return sortedIDs(set), nil
}

func (x *session) SpectrumMatchesForScan(ctx context.Context, hsmID, scanID int64) ([]*core.SpectrumMatch, error) {
	if err := x.check("spectrum_matches_for_scan"); err != nil {
		return nil, err
	}
	x.s.mu.RLock()
	defer x.s.mu.RUnlock()
	var out []*core.SpectrumMatch
	for k, m := range x.s.matches {
		if k.hsm == hsmID && k.spectrum == scanID {
			m := m
			out = append(out, &m)
		}
	}
	sortMatches(out)
	return out, nil
}

func (x *session) CandidateIDsWithBestMatches(ctx context.Context, hsmID int64) ([]int64, error) {
	if err := x.check("candidate_ids_with_best_matches"); err != nil {
		return nil, err
	}
	x.s.mu.RLock()
	defer x.s.mu.RUnlock()
	set := make(map[int64]struct{})
	for k, m := range x.s.matches {
		if k.hsm == hsmID && m.BestMatch {
			set[k.candidate] = struct{}{}
		}
	}
	return sortedIDs(set), nil
}

func (x *session) BestSpectrumMatchesForCandidate(ctx context.Context, hsmID, candidateID int64) ([]*core.SpectrumMatch, error) {
	if err := x.check("best_spectrum_matches_for_candidate"); err != nil {
		return nil, err
	}
	x.s.mu.RLock()
	defer x.s.mu.RUnlock()
	var out []*core.SpectrumMatch
	for k, m := range x.s.matches {
		if k.hsm == hsmID && k.candidate == candidateID && m.BestMatch {
			m := m
			out = append(out, &m)
		}
	}
	sortMatches(out)
	return out, nil
}

func (x *session) GlycopeptideMatches(ctx context.Context, hsmID int64) ([]*core.GlycopeptideMatch, error) {
	if err := x.check("glycopeptide_matches"); err != nil {
		return nil, err
	}
	x.s.mu.RLock()
	defer x.s.mu.RUnlock()
	var out []*core.GlycopeptideMatch
	for k, g := range x.s.aggregates {
		if k.hsm == hsmID {
			g := g
			out = append(out, &g)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CandidateID < out[j].CandidateID })
	return out, nil
}
