package pipeline

import (
	"context"
	"errors"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/BostonUniversityCBMS/glycresoft-sqlalchemy-sub000/pkg/core"
	"github.com/BostonUniversityCBMS/glycresoft-sqlalchemy-sub000/pkg/store/memstore"
)

const (
	testHSM     = 1
	testRun     = 5
	targetHyp   = 10
	decoyHyp    = 20
	numTargets  = 12
	numDecoys   = 4
	hexNAcMass  = 204.0867
	precursorPP = 2e-6
)

func testSpectrum(id int64, precursor, offset float64) *core.ObservedSpectrum {
	s := &core.ObservedSpectrum{ID: id, SampleRunID: testRun, PrecursorNeutralMass: precursor * (1 + precursorPP)}
	masses := []float64{138.0550, hexNAcMass, 250.5, 300 + offset, 350.5, 400 + offset, 450.5}
	intensities := []float64{100, 100, 1, 100, 1, 100, 1}
	for i := range masses {
		s.Peaks = append(s.Peaks, core.ObservedPeak{Index: i, NeutralMass: masses[i], Intensity: intensities[i]})
	}
	return s
}

func testCandidate(id, hyp int64, precursor float64, ions map[string]float64) *core.TheoreticalCandidate {
	c := &core.TheoreticalCandidate{
		ID: id, HypothesisID: hyp, IsDecoy: hyp == decoyHyp,
		Sequence: "NVTKAR", GlycanComposition: "HexNAc2Hex5", GlycosylationSites: []int{0},
		PrecursorMass: precursor,
	}
	for label, mass := range ions {
		c.AddIon(core.NewTheoreticalIon(label, mass))
	}
	return c
}

func targetCandidate(i int) *core.TheoreticalCandidate {
	off := float64(i)
	ions := map[string]float64{"HexNAc": hexNAcMass, "b2": 300 + off}
	if i%3 != 0 {
		ions["y3"] = 400 + off
	}
	return testCandidate(int64(i+1), targetHyp, 1000+10*off, ions)
}

func decoyCandidate(j int) *core.TheoreticalCandidate {
	off := float64(j)
	return testCandidate(int64(200+j), decoyHyp, 2000+10*off, map[string]float64{"HexNAc": hexNAcMass, "b2": 300 + off})
}

func competingDecoy() *core.TheoreticalCandidate {
	return testCandidate(100, decoyHyp, 1000, map[string]float64{"HexNAc": hexNAcMass, "b2": 300})
}

// newTestStore builds targets 1..12 with one scan each, a decoy (100)
// competing with target 1 for scan 1, and decoys 200..203 with scans of
// their own.
func newTestStore(withDecoys bool) *memstore.Store {
	s := memstore.New()
	s.AddHypothesisSampleMatch(core.HypothesisSampleMatch{ID: testHSM, TargetHypothesisID: targetHyp, DecoyHypothesisID: decoyHyp, SampleRunID: testRun})

	for i := 0; i < numTargets; i++ {
		off := float64(i)
		s.AddCandidate(targetCandidate(i))
		s.AddSpectrum(testSpectrum(int64(i+1), 1000+10*off, off))
	}
	if !withDecoys {
		return s
	}

	s.AddCandidate(competingDecoy())
	for j := 0; j < numDecoys; j++ {
		off := float64(j)
		s.AddCandidate(decoyCandidate(j))
		s.AddSpectrum(testSpectrum(int64(101+j), 2000+10*off, off))
	}
	return s
}

func testConfig(strategy Strategy) Config {
	cfg := DefaultConfig()
	cfg.Workers = 3
	cfg.ChunkSize = 2
	cfg.CommitInterval = 3
	cfg.ProgressInterval = 5
	cfg.Strategy = strategy
	cfg.RetryBackoff = time.Millisecond
	return cfg
}

func TestStrategiesProduceSamePopulation(t *testing.T) {
	ctx := context.Background()
	byStrategy := map[Strategy]*memstore.Store{}

	for _, strategy := range []Strategy{CandidateCentric, SpectrumCentric} {
		s := newTestStore(true)
		o, err := New(s.Factory(), testConfig(strategy))
		require.NoError(t, err)

		hsm := &core.HypothesisSampleMatch{ID: testHSM, TargetHypothesisID: targetHyp, DecoyHypothesisID: decoyHyp, SampleRunID: testRun}
		n, err := o.Match(ctx, hsm)
		require.NoError(t, err)
		assert.Equal(t, numTargets+1+numDecoys, n, "strategy %s", strategy)
		byStrategy[strategy] = s
	}

	want := byStrategy[CandidateCentric].SpectrumMatches(testHSM)
	got := byStrategy[SpectrumCentric].SpectrumMatches(testHSM)
	if diff := cmp.Diff(want, got); diff != "" {
		t.Errorf("spectrum-centric population differs (-candidate +spectrum):\n%s", diff)
	}
	for _, m := range got {
		assert.Equal(t, int64(testHSM), m.HypothesisSampleMatchID)
		assert.Equal(t, 4, m.PeaksExplained+m.PeaksUnexplained)
	}
}

func TestRun(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(true)
	o, err := New(s.Factory(), testConfig(CandidateCentric))
	require.NoError(t, err)

	r, err := o.Run(ctx, testHSM)
	require.NoError(t, err)
	assert.Equal(t, numTargets+1+numDecoys, r.SpectrumMatches)
	assert.Equal(t, numTargets+numDecoys, r.ScansSelected)
	assert.Equal(t, numTargets+1+numDecoys, r.GlycopeptideMatches)
	assert.Equal(t, numTargets, r.ScoreUpdates)
	require.NotNil(t, r.FDR)
	assert.Equal(t, numTargets, r.FDR.TotalTargets)
	assert.Equal(t, numDecoys+1, r.FDR.TotalDecoys)

	sess, err := s.Factory()(ctx)
	require.NoError(t, err)
	defer sess.Close()

	// Target 1 and decoy 100 explain the same peak of scan 1; both stay best.
	scan1, err := sess.SpectrumMatchesForScan(ctx, testHSM, 1)
	require.NoError(t, err)
	require.Len(t, scan1, 2)
	assert.True(t, scan1[0].BestMatch)
	assert.True(t, scan1[1].BestMatch)

	gs, err := sess.GlycopeptideMatches(ctx, testHSM)
	require.NoError(t, err)
	for _, g := range gs {
		if g.IsDecoy {
			assert.Nil(t, g.QValue, "decoy %d", g.CandidateID)
			continue
		}
		require.NotNil(t, g.QValue, "target %d", g.CandidateID)
		require.NotNil(t, g.PValue, "target %d", g.CandidateID)
		assert.GreaterOrEqual(t, *g.QValue, 0.0)
		assert.LessOrEqual(t, *g.QValue, 1.0)
		assert.Greater(t, g.MS2Score, 0.0)
		assert.Equal(t, []int64{g.CandidateID}, g.ScanIDs)
	}
}

func TestDecoyRoleFollowsHypothesis(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(true)
	// Decoy library imported without its flag, and a target carrying one.
	unflagged := []*core.TheoreticalCandidate{competingDecoy()}
	for j := 0; j < numDecoys; j++ {
		unflagged = append(unflagged, decoyCandidate(j))
	}
	for _, c := range unflagged {
		c.IsDecoy = false
		s.AddCandidate(c)
	}
	flagged := targetCandidate(2)
	flagged.IsDecoy = true
	s.AddCandidate(flagged)

	o, err := New(s.Factory(), testConfig(CandidateCentric))
	require.NoError(t, err)
	r, err := o.Run(ctx, testHSM)
	require.NoError(t, err)
	assert.Equal(t, numTargets, r.FDR.TotalTargets)
	assert.Equal(t, numDecoys+1, r.FDR.TotalDecoys)
	assert.Equal(t, numTargets, r.ScoreUpdates)

	sess, err := s.Factory()(ctx)
	require.NoError(t, err)
	defer sess.Close()
	gs, err := sess.GlycopeptideMatches(ctx, testHSM)
	require.NoError(t, err)
	for _, g := range gs {
		wantDecoy := g.CandidateID >= 100
		assert.Equal(t, wantDecoy, g.IsDecoy, "candidate %d", g.CandidateID)
		assert.Equal(t, wantDecoy, g.QValue == nil, "candidate %d", g.CandidateID)
	}
}

func TestTransientErrorsAreRetried(t *testing.T) {
	s := newTestStore(true)
	var failures int32
	s.Fault = func(op string) error {
		if op == "upsert_spectrum_matches" && atomic.AddInt32(&failures, 1) <= 2 {
			return &core.TransientIOError{Op: op, Err: errors.New("database is locked")}
		}
		return nil
	}

	o, err := New(s.Factory(), testConfig(SpectrumCentric))
	require.NoError(t, err)
	r, err := o.Run(context.Background(), testHSM)
	require.NoError(t, err)
	assert.Equal(t, numTargets+1+numDecoys, r.SpectrumMatches)
	assert.Equal(t, numTargets+1+numDecoys, s.SpectrumMatchCount())
}

func TestRetriesExhausted(t *testing.T) {
	s := newTestStore(true)
	s.Fault = func(op string) error {
		if op == "scan_ids_with_matches" {
			return &core.TransientIOError{Op: op, Err: errors.New("database is locked")}
		}
		return nil
	}

	cfg := testConfig(CandidateCentric)
	cfg.MaxRetries = 1
	o, err := New(s.Factory(), cfg)
	require.NoError(t, err)
	r, err := o.Run(context.Background(), testHSM)
	require.Error(t, err)
	assert.True(t, core.IsTransient(err))
	assert.Equal(t, numTargets+1+numDecoys, r.SpectrumMatches)
	assert.Zero(t, r.ScansSelected)
}

func TestFailFastOnInvalidSpectrum(t *testing.T) {
	for _, strategy := range []Strategy{CandidateCentric, SpectrumCentric} {
		t.Run(string(strategy), func(t *testing.T) {
			s := newTestStore(true)
			s.AddSpectrum(&core.ObservedSpectrum{ID: 50, SampleRunID: testRun, PrecursorNeutralMass: 1030})

			o, err := New(s.Factory(), testConfig(strategy))
			require.NoError(t, err)
			_, err = o.Run(context.Background(), testHSM)
			require.Error(t, err)

			var ie *ItemError
			require.True(t, errors.As(err, &ie), "got %v", err)
			assert.Equal(t, PhaseMatch, ie.Phase)
			assert.True(t, strings.HasPrefix(ie.Item, "spectrum 5/50"), "item %q", ie.Item)
			assert.True(t, core.IsDataIntegrity(err))
		})
	}
}

func TestNoDecoysIsFatal(t *testing.T) {
	s := newTestStore(false)
	o, err := New(s.Factory(), testConfig(CandidateCentric))
	require.NoError(t, err)

	r, err := o.Run(context.Background(), testHSM)
	require.Error(t, err)
	assert.True(t, core.IsDataIntegrity(err), "got %v", err)

	var ie *ItemError
	require.True(t, errors.As(err, &ie))
	assert.Equal(t, PhaseFDR, ie.Phase)
	assert.Equal(t, numTargets, r.GlycopeptideMatches)
	assert.Nil(t, r.FDR)
}

func TestUnknownHypothesisSampleMatch(t *testing.T) {
	o, err := New(newTestStore(true).Factory(), testConfig(CandidateCentric))
	require.NoError(t, err)
	_, err = o.Run(context.Background(), 99)
	assert.True(t, core.IsDataIntegrity(err))
}

func TestChunkIDs(t *testing.T) {
	got := chunkIDs([]int64{1, 2, 3, 4, 5}, 2)
	want := [][]int64{{1, 2}, {3, 4}, {5}}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Errorf("chunkIDs() mismatch (-want +got):\n%s", diff)
	}
	assert.Empty(t, chunkIDs(nil, 3))
}

func TestConfigValidate(t *testing.T) {
	tests := []struct {
		name   string
		modify func(*Config)
	}{
		{"zero workers", func(c *Config) { c.Workers = 0 }},
		{"zero chunk size", func(c *Config) { c.ChunkSize = 0 }},
		{"zero commit interval", func(c *Config) { c.CommitInterval = 0 }},
		{"negative tolerance", func(c *Config) { c.MS2Tolerance = -1 }},
		{"zero tolerance", func(c *Config) { c.MS1Tolerance = 0 }},
		{"unknown strategy", func(c *Config) { c.Strategy = "peptide" }},
		{"bad weight", func(c *Config) { c.Weights.Stub = 2 }},
		{"negative retries", func(c *Config) { c.MaxRetries = -1 }},
	}

	require.NoError(t, DefaultConfig().Validate())
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := DefaultConfig()
			tt.modify(&cfg)
			assert.Error(t, cfg.Validate())
			_, err := New(nil, cfg)
			assert.Error(t, err)
		})
	}
}
