// Package selection picks best matches at two scopes: the best candidates
// for one scan, and the best evidence spectrum for one candidate.
package selection

import (
	"sort"

	"github.com/BostonUniversityCBMS/glycresoft-sqlalchemy-sub000/pkg/core"
	"github.com/BostonUniversityCBMS/glycresoft-sqlalchemy-sub000/pkg/match"
	"github.com/BostonUniversityCBMS/glycresoft-sqlalchemy-sub000/pkg/scoring"
)

// SelectBestForScan sets BestMatch on every match, from competing candidates
// for the same scan, that explains the most peaks, and clears it on the
// rest. Ties are all kept. It returns the flagged candidate ids, ascending.
func SelectBestForScan(matches []*core.SpectrumMatch) []int64 {
	if len(matches) == 0 {
		return nil
	}
	top := matches[0].PeaksExplained
	for _, m := range matches[1:] {
		if m.PeaksExplained > top {
			top = m.PeaksExplained
		}
	}

	var best []int64
	for _, m := range matches {
		m.BestMatch = m.PeaksExplained == top
		if m.BestMatch {
			best = append(best, m.CandidateID)
		}
	}
	sort.Slice(best, func(i, j int) bool { return best[i] < best[j] })
	return best
}

// Scored pairs a spectrum match with its coverage score.
type Scored struct {
	Match *core.SpectrumMatch
	Score scoring.Result
}

// SelectBestForCandidate scores the candidate's best-match rows and returns
// the one with the highest MS2 score. Rows without BestMatch are ignored.
// Ties go to the lowest spectrum id. ok is false when no row qualifies.
func SelectBestForCandidate(c *core.TheoreticalCandidate, matches []*core.SpectrumMatch, scorer *scoring.Scorer) (best Scored, ok bool) {
	for _, m := range matches {
		if !m.BestMatch || m.CandidateID != c.ID {
			continue
		}
		s := Scored{Match: m, Score: scorer.ScoreSpectrumMatch(c, m)}
		if !ok ||
			s.Score.MS2Score > best.Score.MS2Score ||
			(s.Score.MS2Score == best.Score.MS2Score && m.SpectrumID < best.Match.SpectrumID) {
			best, ok = s, true
		}
	}
	return best, ok
}

// Aggregate builds the GlycopeptideMatch of a candidate from its best
// evidence row. scans lists every scan where the candidate was a best match.
// The match is a decoy when the candidate belongs to the decoy hypothesis of
// hsm.
func Aggregate(hsm *core.HypothesisSampleMatch, c *core.TheoreticalCandidate, best Scored, scans []int64) *core.GlycopeptideMatch {
	scanIDs := append([]int64(nil), scans...)
	sort.Slice(scanIDs, func(i, j int) bool { return scanIDs[i] < scanIDs[j] })

	return &core.GlycopeptideMatch{
		HypothesisSampleMatchID: hsm.ID,
		CandidateID:             c.ID,
		IsDecoy:                 hsm.IsDecoyHypothesis(c.HypothesisID),
		Sequence:                c.Sequence,
		GlycanComposition:       c.GlycanComposition,
		PrecursorMass:           c.PrecursorMass,
		PrecursorPPMError:       best.Match.PrecursorPPMError,
		BestScanID:              best.Match.SpectrumID,
		ScanIDs:                 scanIDs,
		IonMatches:              match.MergeByKind(best.Match.Matches()),
		ScoreFields:             best.Score.Fields(),
	}
}
