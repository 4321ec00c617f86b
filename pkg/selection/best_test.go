package selection

import (
	"testing"

	"github.com/google/go-cmp/cmp"

	"github.com/BostonUniversityCBMS/glycresoft-sqlalchemy-sub000/pkg/core"
	"github.com/BostonUniversityCBMS/glycresoft-sqlalchemy-sub000/pkg/scoring"
)

func sm(cand, spec int64, explained int) *core.SpectrumMatch {
	return &core.SpectrumMatch{CandidateID: cand, SpectrumID: spec, PeaksExplained: explained, PeaksUnexplained: 5 - explained}
}

func TestSelectBestForScanKeepsTies(t *testing.T) {
	a, b, c := sm(1, 100, 5), sm(2, 100, 5), sm(3, 100, 2)
	c.BestMatch = true

	got := SelectBestForScan([]*core.SpectrumMatch{c, b, a})
	if diff := cmp.Diff([]int64{1, 2}, got); diff != "" {
		t.Errorf("SelectBestForScan() mismatch (-want +got):\n%s", diff)
	}
	if !a.BestMatch || !b.BestMatch {
		t.Error("tied candidates were not both flagged")
	}
	if c.BestMatch {
		t.Error("losing candidate kept its flag")
	}
}

func TestSelectBestForScanEmpty(t *testing.T) {
	if got := SelectBestForScan(nil); got != nil {
		t.Errorf("SelectBestForScan(nil) = %v", got)
	}
}

func withIons(m *core.SpectrumMatch, labels ...string) *core.SpectrumMatch {
	var ims []core.IonMatch
	for i, l := range labels {
		info := core.ClassifyIonLabel(l)
		ims = append(ims, core.IonMatch{Label: l, Kind: info.Kind, Position: info.Number, PeakIndex: i})
	}
	m.IonMatches = core.GroupByPeak(ims)
	return m
}

func TestSelectBestForCandidate(t *testing.T) {
	c := &core.TheoreticalCandidate{ID: 1, Sequence: "NVTK", GlycosylationSites: []int{0}}
	scorer := scoring.NewScorer(scoring.DefaultWeights())

	weak := withIons(sm(1, 10, 2), "HexNAc", "b1", "y1")
	strong := withIons(sm(1, 20, 4), "HexNAc", "b1", "b2", "y1", "y2", "pep+HexNAc")
	notBest := withIons(sm(1, 30, 5), "HexNAc", "b1", "b2", "b3", "y1", "y2", "y3")
	tiedLater := withIons(sm(1, 40, 4), "HexNAc", "b1", "b2", "y1", "y2", "pep+HexNAc")
	other := withIons(sm(2, 50, 5), "HexNAc", "b1", "b2", "b3", "y1", "y2", "y3")
	for _, m := range []*core.SpectrumMatch{weak, strong, tiedLater, other} {
		m.BestMatch = true
	}

	best, ok := SelectBestForCandidate(c, []*core.SpectrumMatch{tiedLater, weak, notBest, strong, other}, scorer)
	if !ok {
		t.Fatal("SelectBestForCandidate() found nothing")
	}
	if best.Match != strong {
		t.Errorf("picked spectrum %d, want 20", best.Match.SpectrumID)
	}
	if best.Score.MS2Score <= 0 {
		t.Errorf("MS2Score = %v", best.Score.MS2Score)
	}

	if _, ok := SelectBestForCandidate(c, []*core.SpectrumMatch{notBest}, scorer); ok {
		t.Error("SelectBestForCandidate() used a row without BestMatch")
	}
}

func TestAggregate(t *testing.T) {
	c := &core.TheoreticalCandidate{ID: 7, HypothesisID: 2, Sequence: "NVTK", GlycanComposition: "HexNAc1", PrecursorMass: 1000}
	hsm := &core.HypothesisSampleMatch{ID: 9, TargetHypothesisID: 1, DecoyHypothesisID: 2}
	m := withIons(sm(7, 20, 2), "HexNAc", "b1", "y1")
	m.BestMatch = true
	m.PrecursorPPMError = 3e-6
	best := Scored{Match: m, Score: scoring.Result{MS2Score: 0.4}}

	g := Aggregate(hsm, c, best, []int64{30, 20})
	if g.HypothesisSampleMatchID != 9 || g.CandidateID != 7 || !g.IsDecoy || g.BestScanID != 20 {
		t.Errorf("Aggregate() = %+v", g)
	}
	if diff := cmp.Diff([]int64{20, 30}, g.ScanIDs); diff != "" {
		t.Errorf("ScanIDs mismatch (-want +got):\n%s", diff)
	}
	if len(g.IonMatches[core.Oxonium]) != 1 || len(g.IonMatches[core.BareB]) != 1 || len(g.IonMatches[core.BareY]) != 1 {
		t.Errorf("IonMatches = %+v", g.IonMatches)
	}
	if g.MS2Score != 0.4 || g.Name() != "NVTK{HexNAc1}" {
		t.Errorf("score/name = %v/%s", g.MS2Score, g.Name())
	}
}
