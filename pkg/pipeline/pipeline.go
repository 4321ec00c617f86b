// Package pipeline runs glycopeptide identification for one
// HypothesisSampleMatch: fragment matching, best-match selection, scoring
// and target-decoy FDR estimation.
package pipeline

import (
	"context"
	"fmt"
	"time"

	"github.com/grailbio/base/log"
	"github.com/pkg/errors"

	"github.com/BostonUniversityCBMS/glycresoft-sqlalchemy-sub000/pkg/core"
	"github.com/BostonUniversityCBMS/glycresoft-sqlalchemy-sub000/pkg/fdr"
	"github.com/BostonUniversityCBMS/glycresoft-sqlalchemy-sub000/pkg/match"
	"github.com/BostonUniversityCBMS/glycresoft-sqlalchemy-sub000/pkg/scoring"
	"github.com/BostonUniversityCBMS/glycresoft-sqlalchemy-sub000/pkg/selection"
	"github.com/BostonUniversityCBMS/glycresoft-sqlalchemy-sub000/pkg/store"
	"github.com/BostonUniversityCBMS/glycresoft-sqlalchemy-sub000/pkg/tolerance"
)

// Phase names.
const (
	PhaseMatch  = "match"
	PhaseSelect = "select"
	PhaseScore  = "score"
	PhaseFDR    = "fdr"
)

// Result summarizes a run. Counts are filled in as phases complete, so a
// failed run reports how far it got.
type Result struct {
	HypothesisSampleMatchID int64
	SpectrumMatches         int // Matches written by the match phase
	ScansSelected           int
	GlycopeptideMatches     int
	ScoreUpdates            int
	FDR                     *fdr.Result
	Elapsed                 time.Duration
}

// Processed returns the total number of items processed.
func (r *Result) Processed() int {
	return r.SpectrumMatches + r.ScansSelected + r.GlycopeptideMatches + r.ScoreUpdates
}

// Orchestrator drives the phases against sessions from a store.Factory.
type Orchestrator struct {
	cfg     Config
	factory store.Factory
	scorer  *scoring.Scorer
}

// New returns an Orchestrator. The configuration is validated.
func New(factory store.Factory, cfg Config) (*Orchestrator, error) {
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	return &Orchestrator{cfg: cfg, factory: factory, scorer: scoring.NewScorer(cfg.Weights)}, nil
}

// Config returns the orchestrator settings.
func (o *Orchestrator) Config() Config { return o.cfg }

func (o *Orchestrator) engine() *match.Engine {
	e := match.NewEngine(o.cfg.MS2Tolerance)
	e.Filter = o.cfg.Filter
	return e
}

// Run executes all four phases for one HypothesisSampleMatch. On a fatal
// error the run stops and the error carries the offending item.
func (o *Orchestrator) Run(ctx context.Context, hsmID int64) (*Result, error) {
	start := time.Now()
	r := &Result{HypothesisSampleMatchID: hsmID}
	err := o.run(ctx, hsmID, r)
	r.Elapsed = time.Since(start)
	if err != nil {
		log.Error.Printf("run of hypothesis sample match %d failed: %+v", hsmID, err)
		return r, err
	}
	log.Printf("hypothesis sample match %d: %d spectrum matches, %d glycopeptide matches in %v",
		hsmID, r.SpectrumMatches, r.GlycopeptideMatches, r.Elapsed)
	return r, nil
}

func (o *Orchestrator) run(ctx context.Context, hsmID int64, r *Result) error {
	hsm, err := o.hypothesisSampleMatch(ctx, hsmID)
	if err != nil {
		return err
	}
	if r.SpectrumMatches, err = o.Match(ctx, hsm); err != nil {
		return err
	}
	if r.ScansSelected, err = o.Select(ctx, hsm); err != nil {
		return err
	}
	if r.GlycopeptideMatches, err = o.Score(ctx, hsm); err != nil {
		return err
	}
	if r.FDR, r.ScoreUpdates, err = o.FDR(ctx, hsm); err != nil {
		return err
	}
	return nil
}

func (o *Orchestrator) hypothesisSampleMatch(ctx context.Context, hsmID int64) (*core.HypothesisSampleMatch, error) {
	var hsm *core.HypothesisSampleMatch
	err := o.withSession(ctx, "load hypothesis sample match", func(sess store.Session) error {
		var err error
		hsm, err = sess.HypothesisSampleMatch(ctx, hsmID)
		return err
	})
	return hsm, err
}

// withSession opens a coordinator session and runs fn with retries.
func (o *Orchestrator) withSession(ctx context.Context, op string, fn func(store.Session) error) error {
	return o.retry(ctx, op, func() error {
		sess, err := o.factory(ctx)
		if err != nil {
			return err
		}
		defer sess.Close()
		return fn(sess)
	})
}

// Match computes SpectrumMatches for every candidate/spectrum pair within
// MS1 tolerance that passes the oxonium gate.
func (o *Orchestrator) Match(ctx context.Context, hsm *core.HypothesisSampleMatch) (int, error) {
	var (
		ids  []int64
		work func(context.Context, store.Session, []int64) ([]*core.SpectrumMatch, error)
	)
	err := o.withSession(ctx, "list match items", func(sess store.Session) error {
		ids = ids[:0]
		if o.cfg.Strategy == SpectrumCentric {
			return sess.IterSpectra(ctx, hsm.SampleRunID, func(s *core.ObservedSpectrum) error {
				ids = append(ids, s.ID)
				return nil
			})
		}
		for _, hypID := range hsm.HypothesisIDs() {
			err := sess.IterCandidates(ctx, hypID, func(c *core.TheoreticalCandidate) error {
				ids = append(ids, c.ID)
				return nil
			})
			if err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return 0, errors.Wrap(err, PhaseMatch)
	}

	if o.cfg.Strategy == SpectrumCentric {
		work = o.spectrumCentric(hsm)
	} else {
		work = o.candidateCentric(hsm)
	}
	log.Printf("%s: %d %s items in chunks of %d on %d workers",
		PhaseMatch, len(ids), o.cfg.Strategy, o.cfg.ChunkSize, o.cfg.Workers)
	return runPool(ctx, o, PhaseMatch, chunkIDs(ids, o.cfg.ChunkSize), work,
		func(ctx context.Context, sess store.Session, ms []*core.SpectrumMatch) error {
			return sess.UpsertSpectrumMatches(ctx, ms)
		})
}

// widen pads a query range so that floating point error at the bounds
// cannot drop a pair; pairs are filtered exactly afterwards.
func widen(lo, hi float64) (float64, float64) {
	const eps = 1e-9
	return lo * (1 - eps), hi * (1 + eps)
}

func (o *Orchestrator) candidateCentric(hsm *core.HypothesisSampleMatch) func(context.Context, store.Session, []int64) ([]*core.SpectrumMatch, error) {
	return func(ctx context.Context, sess store.Session, ids []int64) ([]*core.SpectrumMatch, error) {
		eng := o.engine()
		peaks := newPeakCache(eng)
		cands, err := sess.FetchCandidates(ctx, ids)
		if err != nil {
			return nil, err
		}

		var out []*core.SpectrumMatch
		for _, c := range cands {
			if err := c.Validate(); err != nil {
				return nil, itemError(PhaseMatch, "candidate "+c.Name(), err)
			}
			lo, hi := widen(tolerance.ObservedRange(c.PrecursorMass, o.cfg.MS1Tolerance))
			spectra, err := sess.FetchSpectraByPrecursorRange(ctx, hsm.SampleRunID, lo, hi)
			if err != nil {
				return nil, itemError(PhaseMatch, "candidate "+c.Name(), err)
			}
			for _, s := range spectra {
				if !tolerance.Within(s.PrecursorNeutralMass, c.PrecursorMass, o.cfg.MS1Tolerance) {
					continue
				}
				filtered, err := peaks.get(s)
				if err != nil {
					return nil, itemError(PhaseMatch, "spectrum "+s.Name(), err)
				}
				if m, ok := eng.MatchFiltered(c, s, filtered); ok {
					m.HypothesisSampleMatchID = hsm.ID
					out = append(out, m)
				}
			}
		}
		return out, nil
	}
}

func (o *Orchestrator) spectrumCentric(hsm *core.HypothesisSampleMatch) func(context.Context, store.Session, []int64) ([]*core.SpectrumMatch, error) {
	return func(ctx context.Context, sess store.Session, ids []int64) ([]*core.SpectrumMatch, error) {
		eng := o.engine()
		spectra, err := sess.FetchByScanIDs(ctx, hsm.SampleRunID, ids)
		if err != nil {
			return nil, err
		}

		var out []*core.SpectrumMatch
		for _, s := range spectra {
			if err := s.Validate(); err != nil {
				return nil, itemError(PhaseMatch, "spectrum "+s.Name(), err)
			}
			filtered := eng.Filter.Apply(s)
			lo, hi := widen(tolerance.TheoreticalRange(s.PrecursorNeutralMass, o.cfg.MS1Tolerance))
			cands, err := sess.FetchCandidatesByPrecursorRange(ctx, hsm.HypothesisIDs(), lo, hi)
			if err != nil {
				return nil, itemError(PhaseMatch, "spectrum "+s.Name(), err)
			}
			for _, c := range cands {
				if !tolerance.Within(s.PrecursorNeutralMass, c.PrecursorMass, o.cfg.MS1Tolerance) {
					continue
				}
				if err := c.Validate(); err != nil {
					return nil, itemError(PhaseMatch, "candidate "+c.Name(), err)
				}
				if m, ok := eng.MatchFiltered(c, s, filtered); ok {
					m.HypothesisSampleMatchID = hsm.ID
					out = append(out, m)
				}
			}
		}
		return out, nil
	}
}

// peakCache holds the filtered peaks of spectra already seen by one worker
// chunk. Neighboring candidates share most of their spectra.
type peakCache struct {
	eng   *match.Engine
	peaks map[int64][]core.ObservedPeak
}

func newPeakCache(eng *match.Engine) *peakCache {
	return &peakCache{eng: eng, peaks: make(map[int64][]core.ObservedPeak)}
}

func (c *peakCache) get(s *core.ObservedSpectrum) ([]core.ObservedPeak, error) {
	if p, ok := c.peaks[s.ID]; ok {
		return p, nil
	}
	if err := s.Validate(); err != nil {
		return nil, err
	}
	p := c.eng.Filter.Apply(s)
	c.peaks[s.ID] = p
	return p, nil
}

// Select flags, for every scan, the spectrum matches explaining the most
// peaks. It returns the number of scans processed.
func (o *Orchestrator) Select(ctx context.Context, hsm *core.HypothesisSampleMatch) (int, error) {
	var scans []int64
	err := o.withSession(ctx, "list matched scans", func(sess store.Session) error {
		var err error
		scans, err = sess.ScanIDsWithMatches(ctx, hsm.ID)
		return err
	})
	if err != nil {
		return 0, errors.Wrap(err, PhaseSelect)
	}

	work := func(ctx context.Context, sess store.Session, ids []int64) ([]store.BestMatchUpdate, error) {
		out := make([]store.BestMatchUpdate, 0, len(ids))
		for _, scanID := range ids {
			matches, err := sess.SpectrumMatchesForScan(ctx, hsm.ID, scanID)
			if err != nil {
				return nil, itemError(PhaseSelect, fmt.Sprintf("scan %d", scanID), err)
			}
			out = append(out, store.BestMatchUpdate{ScanID: scanID, CandidateIDs: selection.SelectBestForScan(matches)})
		}
		return out, nil
	}
	return runPool(ctx, o, PhaseSelect, chunkIDs(scans, o.cfg.ChunkSize), work,
		func(ctx context.Context, sess store.Session, us []store.BestMatchUpdate) error {
			return sess.UpdateBestMatchFlagsBatch(ctx, hsm.ID, us)
		})
}

// Score builds the GlycopeptideMatch of every candidate flagged best for at
// least one scan. It returns the number of aggregates written.
func (o *Orchestrator) Score(ctx context.Context, hsm *core.HypothesisSampleMatch) (int, error) {
	var cands []int64
	err := o.withSession(ctx, "list best-matched candidates", func(sess store.Session) error {
		var err error
		cands, err = sess.CandidateIDsWithBestMatches(ctx, hsm.ID)
		return err
	})
	if err != nil {
		return 0, errors.Wrap(err, PhaseScore)
	}

	work := func(ctx context.Context, sess store.Session, ids []int64) ([]*core.GlycopeptideMatch, error) {
		cs, err := sess.FetchCandidates(ctx, ids)
		if err != nil {
			return nil, err
		}
		out := make([]*core.GlycopeptideMatch, 0, len(cs))
		for _, c := range cs {
			rows, err := sess.BestSpectrumMatchesForCandidate(ctx, hsm.ID, c.ID)
			if err != nil {
				return nil, itemError(PhaseScore, "candidate "+c.Name(), err)
			}
			best, ok := selection.SelectBestForCandidate(c, rows, o.scorer)
			if !ok {
				continue
			}
			scans := make([]int64, len(rows))
			for i, m := range rows {
				scans[i] = m.SpectrumID
			}
			out = append(out, selection.Aggregate(hsm, c, best, scans))
		}
		return out, nil
	}
	return runPool(ctx, o, PhaseScore, chunkIDs(cands, o.cfg.ChunkSize), work,
		func(ctx context.Context, sess store.Session, gs []*core.GlycopeptideMatch) error {
			return sess.UpsertGlycopeptideMatches(ctx, gs)
		})
}

// FDR runs the target-decoy analysis over every GlycopeptideMatch of the
// HypothesisSampleMatch and writes q-values and p-values back to the
// targets. It runs single-threaded after the other phases.
func (o *Orchestrator) FDR(ctx context.Context, hsm *core.HypothesisSampleMatch) (*fdr.Result, int, error) {
	var matches []*core.GlycopeptideMatch
	err := o.withSession(ctx, "read glycopeptide matches", func(sess store.Session) error {
		var err error
		matches, err = sess.GlycopeptideMatches(ctx, hsm.ID)
		return err
	})
	if err != nil {
		return nil, 0, errors.Wrap(err, PhaseFDR)
	}

	res, err := fdr.Analyze(matches)
	if err != nil {
		return nil, 0, itemError(PhaseFDR, fmt.Sprintf("hypothesis sample match %d", hsm.ID), err)
	}

	fields := res.Updates(matches)
	var updates []store.ScoreUpdate
	for _, m := range matches {
		if f, ok := fields[m.CandidateID]; ok {
			updates = append(updates, store.ScoreUpdate{CandidateID: m.CandidateID, Fields: f})
		}
	}

	written := 0
	for len(updates) > 0 {
		n := o.cfg.CommitInterval
		if n > len(updates) {
			n = len(updates)
		}
		batch := updates[:n]
		err := o.withSession(ctx, PhaseFDR+" commit", func(sess store.Session) error {
			return sess.UpdateScoreFieldsBatch(ctx, hsm.ID, batch)
		})
		if err != nil {
			return res, written, errors.Wrapf(err, "%s: commit of %d score updates", PhaseFDR, n)
		}
		written += n
		updates = updates[n:]
	}

	log.Printf("%s: %d targets, %d decoys, %d targets at q <= 0.01, %d at q <= 0.05",
		PhaseFDR, res.TotalTargets, res.TotalDecoys, res.Passing[0.01], res.Passing[0.05])
	return res, written, nil
}
