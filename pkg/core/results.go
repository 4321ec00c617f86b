package core

import (
	"fmt"
	"sort"
)

// IonMatch is one theoretical ion matched to one observed peak.
type IonMatch struct {
	Label        string
	Kind         IonKind
	Position     int
	PeakIndex    int
	ObservedMass float64
	PPMError     float64
	Intensity    float64
}

// SpectrumMatch is the evidence for one candidate in one spectrum.
type SpectrumMatch struct {
	HypothesisSampleMatchID int64
	CandidateID             int64
	SpectrumID              int64
	IonMatches              map[int][]IonMatch // peak index -> matches
	PrecursorPPMError       float64
	PeaksExplained          int
	PeaksUnexplained        int
	BestMatch               bool
}

// Key identifies the result row of a spectrum match.
func (m *SpectrumMatch) Key() string {
	return fmt.Sprintf("%d:%d:%d", m.HypothesisSampleMatchID, m.CandidateID, m.SpectrumID)
}

// Matches flattens IonMatches ordered by peak index, then label.
func (m *SpectrumMatch) Matches() []IonMatch {
	peaks := make([]int, 0, len(m.IonMatches))
	for idx := range m.IonMatches {
		peaks = append(peaks, idx)
	}
	sort.Ints(peaks)

	var out []IonMatch
	for _, idx := range peaks {
		group := append([]IonMatch(nil), m.IonMatches[idx]...)
		sort.SliceStable(group, func(i, j int) bool { return group[i].Label < group[j].Label })
		out = append(out, group...)
	}
	return out
}

// GroupByPeak builds the peak index -> matches map used by SpectrumMatch.
func GroupByPeak(matches []IonMatch) map[int][]IonMatch {
	out := make(map[int][]IonMatch)
	for _, im := range matches {
		out[im.PeakIndex] = append(out[im.PeakIndex], im)
	}
	return out
}

// ScoreFields are the score attributes of a GlycopeptideMatch that the
// scoring and FDR passes write back.
type ScoreFields struct {
	MeanCoverage       float64
	MeanHexNAcCoverage float64
	StubScore          float64
	MS2Score           float64
	QValue             *float64
	PValue             *float64
}

// GlycopeptideMatch aggregates the best evidence for one candidate within
// one HypothesisSampleMatch.
type GlycopeptideMatch struct {
	HypothesisSampleMatchID int64
	CandidateID             int64
	IsDecoy                 bool
	Sequence                string
	GlycanComposition       string
	PrecursorMass           float64
	PrecursorPPMError       float64
	BestScanID              int64
	ScanIDs                 []int64 // Scans where the candidate was a best match
	IonMatches              map[IonKind][]IonMatch
	ScoreFields
}

// Name returns the match name in format "SEQUENCE{glycan}"
func (g *GlycopeptideMatch) Name() string {
	if g.GlycanComposition == "" {
		return g.Sequence
	}
	return fmt.Sprintf("%s{%s}", g.Sequence, g.GlycanComposition)
}
