package sqlite

import (
	"context"
	"errors"
	"path/filepath"
	"testing"

	"github.com/mattn/go-sqlite3"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/BostonUniversityCBMS/glycresoft-sqlalchemy-sub000/pkg/core"
	"github.com/BostonUniversityCBMS/glycresoft-sqlalchemy-sub000/pkg/store"
)

func openSeeded(t *testing.T) (*DB, *Session) {
	t.Helper()
	ctx := context.Background()

	db, err := Open(ctx, filepath.Join(t.TempDir(), "test.db"))
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })

	imp, err := db.NewImporter(ctx)
	require.NoError(t, err)
	require.NoError(t, imp.WriteHypothesis(ctx, core.Hypothesis{ID: 1, Name: "target"}))
	require.NoError(t, imp.WriteHypothesis(ctx, core.Hypothesis{ID: 2, Name: "decoy", IsDecoy: true}))
	require.NoError(t, imp.WriteHypothesisSampleMatch(ctx, core.HypothesisSampleMatch{ID: 9, TargetHypothesisID: 1, DecoyHypothesisID: 2, SampleRunID: 4}))

	target := &core.TheoreticalCandidate{
		ID: 1, HypothesisID: 1, Sequence: "NVTK", GlycanComposition: "HexNAc2Hex5",
		GlycosylationSites: []int{0}, PrecursorMass: 1500.5,
	}
	for label, mass := range map[string]float64{"HexNAc": 204.0867, "b2": 214.1, "y1+HexNAc": 350.2, "pep+HexNAc": 650.3} {
		target.AddIon(core.NewTheoreticalIon(label, mass))
	}
	decoy := &core.TheoreticalCandidate{ID: 2, HypothesisID: 2, IsDecoy: true, Sequence: "KTVN", PrecursorMass: 1500.6}
	require.NoError(t, imp.WriteCandidate(ctx, target))
	require.NoError(t, imp.WriteCandidate(ctx, decoy))

	spec := &core.ObservedSpectrum{ID: 100, SampleRunID: 4, ScanTime: 12.5, PrecursorNeutralMass: 1500.51, PrecursorCharge: 3,
		Peaks: []core.ObservedPeak{{Index: 0, NeutralMass: 300, Intensity: 5}, {Index: 1, NeutralMass: 204.087, Intensity: 10}}}
	require.NoError(t, imp.WriteSpectrum(ctx, spec))
	require.NoError(t, imp.WriteSpectrum(ctx, &core.ObservedSpectrum{ID: 101, SampleRunID: 4, PrecursorNeutralMass: 900}))

	c, s := imp.Counts()
	assert.Equal(t, 2, c)
	assert.Equal(t, 2, s)
	require.NoError(t, imp.Commit())

	sess, err := db.Session(ctx)
	require.NoError(t, err)
	t.Cleanup(func() { sess.Close() })
	return db, sess
}

func TestCandidateRoundTrip(t *testing.T) {
	ctx := context.Background()
	_, sess := openSeeded(t)

	cs, err := sess.FetchCandidatesByPrecursorRange(ctx, []int64{1, 2}, 1500, 1501)
	require.NoError(t, err)
	require.Len(t, cs, 2)

	c := cs[0]
	assert.Equal(t, "NVTK{HexNAc2Hex5}", c.Name())
	assert.Equal(t, []int{0}, c.GlycosylationSites)
	require.Len(t, c.Ions(core.GlycosylatedY), 1)
	assert.Equal(t, 1, c.Ions(core.GlycosylatedY)[0].Position)
	assert.Len(t, c.Ions(core.Oxonium), 1)
	assert.Len(t, c.Ions(core.Stub), 1)
	assert.True(t, cs[1].IsDecoy)

	var ids []int64
	require.NoError(t, sess.IterCandidates(ctx, 2, func(c *core.TheoreticalCandidate) error {
		ids = append(ids, c.ID)
		return nil
	}))
	assert.Equal(t, []int64{2}, ids)
}

func TestSpectrumRoundTrip(t *testing.T) {
	ctx := context.Background()
	_, sess := openSeeded(t)

	ss, err := sess.FetchByScanIDs(ctx, 4, []int64{100})
	require.NoError(t, err)
	require.Len(t, ss, 1)
	sp := ss[0]
	assert.Equal(t, 12.5, sp.ScanTime)
	assert.Equal(t, 3, sp.PrecursorCharge)
	require.Len(t, sp.Peaks, 2)
	assert.Equal(t, 204.087, sp.Peaks[0].NeutralMass)
	assert.Equal(t, 10.0, sp.Peaks[0].Intensity)
	assert.True(t, sp.ArePeaksSorted())

	ss, err = sess.FetchSpectraByPrecursorRange(ctx, 4, 800, 1000)
	require.NoError(t, err)
	require.Len(t, ss, 1)
	assert.Equal(t, int64(101), ss[0].ID)
	assert.Empty(t, ss[0].Peaks)
}

func TestResultsRoundTrip(t *testing.T) {
	ctx := context.Background()
	_, sess := openSeeded(t)

	h, err := sess.HypothesisSampleMatch(ctx, 9)
	require.NoError(t, err)
	assert.Equal(t, int64(4), h.SampleRunID)

	_, err = sess.HypothesisSampleMatch(ctx, 99)
	assert.True(t, core.IsDataIntegrity(err))

	ims := []core.IonMatch{
		{Label: "HexNAc", Kind: core.Oxonium, PeakIndex: 0, ObservedMass: 204.087, PPMError: 1e-6, Intensity: 10},
		{Label: "y1+HexNAc", Kind: core.GlycosylatedY, Position: 1, PeakIndex: 1, ObservedMass: 350.2, Intensity: 5},
	}
	m := &core.SpectrumMatch{
		HypothesisSampleMatchID: 9, CandidateID: 1, SpectrumID: 100,
		IonMatches: core.GroupByPeak(ims), PrecursorPPMError: 6e-6, PeaksExplained: 1, PeaksUnexplained: 1,
	}
	require.NoError(t, sess.UpsertSpectrumMatch(ctx, m))
	require.NoError(t, sess.UpsertSpectrumMatch(ctx, m))
	require.NoError(t, sess.UpsertSpectrumMatch(ctx, &core.SpectrumMatch{HypothesisSampleMatchID: 9, CandidateID: 2, SpectrumID: 100}))

	scans, err := sess.ScanIDsWithMatches(ctx, 9)
	require.NoError(t, err)
	assert.Equal(t, []int64{100}, scans)

	require.NoError(t, sess.UpdateBestMatchFlags(ctx, 9, 100, []int64{1}))
	cands, err := sess.CandidateIDsWithBestMatches(ctx, 9)
	require.NoError(t, err)
	assert.Equal(t, []int64{1}, cands)

	best, err := sess.BestSpectrumMatchesForCandidate(ctx, 9, 1)
	require.NoError(t, err)
	require.Len(t, best, 1)
	assert.True(t, best[0].BestMatch)
	assert.Equal(t, m.Matches(), best[0].Matches())

	g := &core.GlycopeptideMatch{
		HypothesisSampleMatchID: 9, CandidateID: 1, Sequence: "NVTK", BestScanID: 100, ScanIDs: []int64{100},
		IonMatches:  map[core.IonKind][]core.IonMatch{core.Oxonium: ims[:1], core.GlycosylatedY: ims[1:]},
		ScoreFields: core.ScoreFields{MS2Score: 0.7},
	}
	require.NoError(t, sess.UpsertGlycopeptideMatch(ctx, g))

	q, p := 0.01, 0.5
	require.NoError(t, sess.UpdateScoreFields(ctx, 9, 1, core.ScoreFields{MS2Score: 0.7, QValue: &q, PValue: &p}))
	err = sess.UpdateScoreFields(ctx, 9, 2, core.ScoreFields{})
	assert.True(t, core.IsDataIntegrity(err), "got %v", err)

	gs, err := sess.GlycopeptideMatches(ctx, 9)
	require.NoError(t, err)
	require.Len(t, gs, 1)
	assert.Equal(t, []int64{100}, gs[0].ScanIDs)
	assert.Equal(t, g.IonMatches, gs[0].IonMatches)
	require.NotNil(t, gs[0].QValue)
	assert.Equal(t, 0.01, *gs[0].QValue)
	assert.Equal(t, 0.5, *gs[0].PValue)
}

func TestFailedBatchRollsBack(t *testing.T) {
	ctx := context.Background()
	_, sess := openSeeded(t)

	g := &core.GlycopeptideMatch{HypothesisSampleMatchID: 9, CandidateID: 1, BestScanID: 100, ScoreFields: core.ScoreFields{MS2Score: 0.7}}
	require.NoError(t, sess.UpsertGlycopeptideMatch(ctx, g))

	// Candidate 2 has no aggregate, so the whole batch is discarded.
	q := 0.01
	err := sess.UpdateScoreFieldsBatch(ctx, 9, []store.ScoreUpdate{
		{CandidateID: 1, Fields: core.ScoreFields{MS2Score: 0.9, QValue: &q}},
		{CandidateID: 2, Fields: core.ScoreFields{MS2Score: 0.1}},
	})
	assert.True(t, core.IsDataIntegrity(err), "got %v", err)

	gs, err := sess.GlycopeptideMatches(ctx, 9)
	require.NoError(t, err)
	require.Len(t, gs, 1)
	assert.Equal(t, 0.7, gs[0].MS2Score)
	assert.Nil(t, gs[0].QValue)

	// The session stays usable after the rollback.
	require.NoError(t, sess.UpdateScoreFields(ctx, 9, 1, core.ScoreFields{MS2Score: 0.9, QValue: &q}))
}

func TestImporterRollbackAfterCommit(t *testing.T) {
	ctx := context.Background()
	db, _ := openSeeded(t)

	imp, err := db.NewImporter(ctx)
	require.NoError(t, err)
	require.NoError(t, imp.WriteHypothesis(ctx, core.Hypothesis{ID: 3, Name: "extra"}))
	require.NoError(t, imp.Commit())
	assert.NoError(t, imp.Rollback())

	imp, err = db.NewImporter(ctx)
	require.NoError(t, err)
	require.NoError(t, imp.WriteCandidate(ctx, &core.TheoreticalCandidate{ID: 50, HypothesisID: 3, Sequence: "AAA", PrecursorMass: 200}))
	require.NoError(t, imp.Rollback())

	sess, err := db.Session(ctx)
	require.NoError(t, err)
	defer sess.Close()
	cs, err := sess.FetchCandidates(ctx, []int64{50})
	require.NoError(t, err)
	assert.Empty(t, cs)
}

func TestTransientMapping(t *testing.T) {
	busy := sqlite3.Error{Code: sqlite3.ErrBusy}
	assert.True(t, core.IsTransient(transient("write", busy)))

	locked := sqlite3.Error{Code: sqlite3.ErrLocked}
	assert.True(t, core.IsTransient(transient("write", locked)))

	other := transient("write", errors.New("disk full"))
	assert.False(t, core.IsTransient(other))
	assert.EqualError(t, other, "failed to write: disk full")
	assert.Nil(t, transient("write", nil))
}

func TestPeakBlobs(t *testing.T) {
	peaks := []core.ObservedPeak{{NeutralMass: 100.5, Intensity: 3}, {NeutralMass: 200.25, Intensity: 0.5}}
	got, err := decodePeaksFloat64(encodePeaksFloat64(peaks, true), encodePeaksFloat64(peaks, false))
	require.NoError(t, err)
	assert.Equal(t, []core.ObservedPeak{{Index: 0, NeutralMass: 100.5, Intensity: 3}, {Index: 1, NeutralMass: 200.25, Intensity: 0.5}}, got)

	_, err = decodePeaksFloat64(make([]byte, 8), nil)
	assert.Error(t, err)
}
