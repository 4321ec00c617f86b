// Package match matches theoretical glycopeptide fragment ions against
// observed MS2 peaks.
package match

import (
	"github.com/BostonUniversityCBMS/glycresoft-sqlalchemy-sub000/pkg/core"
	"github.com/BostonUniversityCBMS/glycresoft-sqlalchemy-sub000/pkg/filter"
	"github.com/BostonUniversityCBMS/glycresoft-sqlalchemy-sub000/pkg/tolerance"
)

// Engine matches one candidate's ion lists against one spectrum.
type Engine struct {
	Matcher tolerance.Matcher
	Filter  filter.Config
}

// NewEngine returns an Engine with the given MS2 tolerance and the median
// intensity noise floor.
func NewEngine(ms2Tolerance float64) *Engine {
	return &Engine{
		Matcher: tolerance.NewMatcher(ms2Tolerance),
		Filter:  filter.DefaultConfig(),
	}
}

// Match returns the spectrum match of c against s. The second result is
// false when no oxonium ion matched, in which case no match is produced.
// The spectrum and candidate are not modified.
func (e *Engine) Match(c *core.TheoreticalCandidate, s *core.ObservedSpectrum) (*core.SpectrumMatch, bool) {
	peaks := e.Filter.Apply(s)
	return e.MatchFiltered(c, s, peaks)
}

// MatchFiltered is Match with peaks already filtered. Callers matching many
// candidates against one spectrum filter once and reuse the peaks.
func (e *Engine) MatchFiltered(c *core.TheoreticalCandidate, s *core.ObservedSpectrum, peaks []core.ObservedPeak) (*core.SpectrumMatch, bool) {
	oxonium := e.matchIons(c.Ions(core.Oxonium), peaks)
	if len(oxonium) == 0 {
		return nil, false
	}

	matches := oxonium
	for _, kind := range core.IonKinds {
		if kind == core.Oxonium {
			continue
		}
		matches = append(matches, e.matchIons(c.Ions(kind), peaks)...)
	}
	matches = MergeIonMatches(matches)

	explained := make(map[int]struct{})
	for _, im := range matches {
		if im.Kind != core.Oxonium {
			explained[im.PeakIndex] = struct{}{}
		}
	}

	return &core.SpectrumMatch{
		CandidateID:       c.ID,
		SpectrumID:        s.ID,
		IonMatches:        core.GroupByPeak(matches),
		PrecursorPPMError: tolerance.PPMError(s.PrecursorNeutralMass, c.PrecursorMass),
		PeaksExplained:    len(explained),
		PeaksUnexplained:  len(peaks) - len(explained),
	}, true
}

func (e *Engine) matchIons(ions []core.TheoreticalIon, peaks []core.ObservedPeak) []core.IonMatch {
	var out []core.IonMatch
	for _, ion := range ions {
		if ion.MonoisotopicMass <= 0 {
			continue
		}
		for _, i := range e.Matcher.Search(peaks, ion.MonoisotopicMass) {
			p := peaks[i]
			out = append(out, core.IonMatch{
				Label:        ion.Label,
				Kind:         ion.Kind,
				Position:     ion.Position,
				PeakIndex:    p.Index,
				ObservedMass: p.NeutralMass,
				PPMError:     tolerance.PPMError(p.NeutralMass, ion.MonoisotopicMass),
				Intensity:    p.Intensity,
			})
		}
	}
	return out
}
