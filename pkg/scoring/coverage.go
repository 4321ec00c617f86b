// Package scoring combines backbone coverage, glycosylated backbone coverage
// and stub ion evidence into a single MS2 score.
package scoring

import (
	"fmt"
	"math"

	"gonum.org/v1/gonum/floats"

	"github.com/BostonUniversityCBMS/glycresoft-sqlalchemy-sub000/pkg/core"
)

// MaxStubClasses is the number of stub glycan-loss classes that saturates the
// stub score.
const MaxStubClasses = 3

// Weights of the score components.
type Weights struct {
	Backbone float64
	HexNAc   float64
	Stub     float64
}

// DefaultWeights returns backbone 0.5, hexnac 0.5, stub 0.2.
func DefaultWeights() Weights {
	return Weights{Backbone: 0.5, HexNAc: 0.5, Stub: 0.2}
}

// Validate checks that every weight lies in [0, 1].
func (w Weights) Validate() error {
	for name, v := range map[string]float64{"backbone": w.Backbone, "hexnac": w.HexNAc, "stub": w.Stub} {
		if v < 0 || v > 1 || math.IsNaN(v) {
			return fmt.Errorf("%s weight %v outside [0, 1]", name, v)
		}
	}
	return nil
}

// Result holds the score components of one candidate's evidence.
type Result struct {
	MeanCoverage       float64
	MeanHexNAcCoverage float64
	StubScore          float64
	MS2Score           float64
}

// Fields converts the result to store score fields.
func (r Result) Fields() core.ScoreFields {
	return core.ScoreFields{
		MeanCoverage:       r.MeanCoverage,
		MeanHexNAcCoverage: r.MeanHexNAcCoverage,
		StubScore:          r.StubScore,
		MS2Score:           r.MS2Score,
	}
}

// Scorer computes coverage scores.
type Scorer struct {
	Weights Weights
}

// NewScorer returns a Scorer with the given weights.
func NewScorer(w Weights) *Scorer {
	return &Scorer{Weights: w}
}

// Score scores the ion matches of candidate c.
func (s *Scorer) Score(c *core.TheoreticalCandidate, matches []core.IonMatch) Result {
	r := Result{
		MeanCoverage:       MeanCoverage(len(c.Sequence), matches),
		MeanHexNAcCoverage: MeanHexNAcCoverage(c, matches),
		StubScore:          StubScore(matches),
	}
	r.MS2Score = s.Combine(r.MeanCoverage, r.MeanHexNAcCoverage, r.StubScore)
	return r
}

// ScoreSpectrumMatch scores the ion matches of one spectrum match.
func (s *Scorer) ScoreSpectrumMatch(c *core.TheoreticalCandidate, m *core.SpectrumMatch) Result {
	return s.Score(c, m.Matches())
}

// Combine is (coverage*wBackbone + hexnac*wHexNAc)*(1-wStub) + stub*wStub.
func (s *Scorer) Combine(coverage, hexnac, stub float64) float64 {
	w := s.Weights
	return (coverage*w.Backbone+hexnac*w.HexNAc)*(1-w.Stub) + stub*w.Stub
}

// CoverageVector returns, per backbone position, how many termini (0, 1 or
// 2) have a b or y ion covering it. b ions index from the N-terminus
// (position n-1), y ions from the C-terminus (position length-n).
func CoverageVector(length int, matches []core.IonMatch) []float64 {
	if length <= 0 {
		return nil
	}
	nTerm := make([]float64, length)
	cTerm := make([]float64, length)
	for _, im := range matches {
		if !im.Kind.IsBackbone() || im.Position < 1 || im.Position > length {
			continue
		}
		if im.Kind.IsNTerminal() {
			nTerm[im.Position-1] = 1
		} else {
			cTerm[length-im.Position] = 1
		}
	}
	floats.Add(nTerm, cTerm)
	return nTerm
}

// MeanCoverage averages log2(1+count)/log2(3) over the coverage vector. It
// lies in [0, 1] and is 1 when every position is covered from both termini.
func MeanCoverage(length int, matches []core.IonMatch) float64 {
	v := CoverageVector(length, matches)
	if len(v) == 0 {
		return 0
	}
	for i, count := range v {
		v[i] = math.Log2(1+count) / math.Log2(3)
	}
	return floats.Sum(v) / float64(length)
}

type backbonePosition struct {
	nTerminal bool
	number    int
}

// MeanHexNAcCoverage is the fraction of theoretically possible glycosylated
// backbone positions that were observed. Candidates without glycosylation
// sites score 0.
func MeanHexNAcCoverage(c *core.TheoreticalCandidate, matches []core.IonMatch) float64 {
	possible := possibleGlycosylatedPositions(c)
	if possible == 0 {
		return 0
	}
	observed := make(map[backbonePosition]struct{})
	for _, im := range matches {
		if im.Kind.IsGlycosylated() {
			observed[backbonePosition{im.Kind.IsNTerminal(), im.Position}] = struct{}{}
		}
	}
	return math.Min(1, float64(len(observed))/float64(possible))
}

// possibleGlycosylatedPositions counts the distinct glycosylated backbone
// positions of the candidate's theoretical ion lists. Without theoretical
// glycosylated ions, it counts the b and y ions that would contain a
// glycosylation site.
func possibleGlycosylatedPositions(c *core.TheoreticalCandidate) int {
	if len(c.GlycosylationSites) == 0 {
		return 0
	}
	positions := make(map[backbonePosition]struct{})
	for _, kind := range []core.IonKind{core.GlycosylatedB, core.GlycosylatedY} {
		for _, ion := range c.Ions(kind) {
			positions[backbonePosition{kind.IsNTerminal(), ion.Position}] = struct{}{}
		}
	}
	if len(positions) > 0 {
		return len(positions)
	}

	length := len(c.Sequence)
	first, last := c.GlycosylationSites[0], c.GlycosylationSites[0]
	for _, site := range c.GlycosylationSites {
		first = min(first, site)
		last = max(last, site)
	}
	// b_n contains site s when n > s; y_n contains s when n >= length-s.
	n := 0
	if bs := length - 1 - first; bs > 0 {
		n += bs
	}
	if ys := last; ys > 0 {
		n += ys
	}
	return n
}

// StubScore is the number of distinct stub classes observed over
// MaxStubClasses, capped at 1.
func StubScore(matches []core.IonMatch) float64 {
	classes := make(map[string]struct{})
	for _, im := range matches {
		if im.Kind == core.Stub {
			classes[core.StubClass(im.Label)] = struct{}{}
		}
	}
	return math.Min(1, float64(len(classes))/MaxStubClasses)
}
