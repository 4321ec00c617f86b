// Package fdr estimates false discovery rates, q-values and p-values by
// target-decoy analysis.
package fdr

import (
	"math"
	"sort"

	"gonum.org/v1/gonum/floats"

	"github.com/BostonUniversityCBMS/glycresoft-sqlalchemy-sub000/pkg/core"
)

// Levels are the FDR levels reported by Analyze.
var Levels = []float64{0.01, 0.05}

type tail struct {
	targets, decoys int
}

// Analyzer holds the target and decoy score populations of one
// HypothesisSampleMatch. It is not safe for concurrent use.
type Analyzer struct {
	scores       []float64 // distinct scores, ascending
	targetTail   []float64 // targets with score >= scores[i]
	decoyTail    []float64 // decoys with score >= scores[i]
	totalTargets int
	totalDecoys  int

	memo    map[float64]tail
	qvalues []float64 // smoothed, parallel to scores
}

// NewAnalyzer builds per-score histograms of both populations. An empty decoy
// population is a DataIntegrityError: no FDR can be estimated from it.
func NewAnalyzer(targetScores, decoyScores []float64) (*Analyzer, error) {
	if len(decoyScores) == 0 {
		return nil, &core.DataIntegrityError{Field: "decoys", Message: "decoy population is empty"}
	}
	for _, s := range append(append([]float64(nil), targetScores...), decoyScores...) {
		if math.IsNaN(s) {
			return nil, &core.DataIntegrityError{Field: "scores", Message: "NaN score"}
		}
	}

	targets := histogram(targetScores)
	decoys := histogram(decoyScores)

	seen := make(map[float64]struct{}, len(targets)+len(decoys))
	var scores []float64
	for _, h := range []map[float64]int{targets, decoys} {
		for s := range h {
			if _, ok := seen[s]; !ok {
				seen[s] = struct{}{}
				scores = append(scores, s)
			}
		}
	}
	sort.Float64s(scores)

	a := &Analyzer{
		scores:       scores,
		targetTail:   tailCounts(scores, targets),
		decoyTail:    tailCounts(scores, decoys),
		totalTargets: len(targetScores),
		totalDecoys:  len(decoyScores),
		memo:         make(map[float64]tail),
	}
	a.qvalues = a.smoothQValues()
	return a, nil
}

func histogram(scores []float64) map[float64]int {
	h := make(map[float64]int)
	for _, s := range scores {
		h[s]++
	}
	return h
}

// tailCounts returns, for each ascending score, the count of values at or
// above it: a cumulative sum taken from the top score down.
func tailCounts(scores []float64, h map[float64]int) []float64 {
	n := len(scores)
	desc := make([]float64, n)
	for i, s := range scores {
		desc[n-1-i] = float64(h[s])
	}
	cum := make([]float64, n)
	floats.CumSum(cum, desc)
	out := make([]float64, n)
	for i := range cum {
		out[n-1-i] = cum[i]
	}
	return out
}

func (a *Analyzer) at(threshold float64) tail {
	if t, ok := a.memo[threshold]; ok {
		return t
	}
	var t tail
	if i := sort.SearchFloat64s(a.scores, threshold); i < len(a.scores) {
		t = tail{targets: int(a.targetTail[i]), decoys: int(a.decoyTail[i])}
	}
	a.memo[threshold] = t
	return t
}

// TotalTargets is the size of the target population.
func (a *Analyzer) TotalTargets() int { return a.totalTargets }

// TotalDecoys is the size of the decoy population.
func (a *Analyzer) TotalDecoys() int { return a.totalDecoys }

// TargetsAt counts targets scoring at least threshold.
func (a *Analyzer) TargetsAt(threshold float64) int { return a.at(threshold).targets }

// DecoysAt counts decoys scoring at least threshold.
func (a *Analyzer) DecoysAt(threshold float64) int { return a.at(threshold).decoys }

// FDR is decoys_at / max(targets_at, 1).
func (a *Analyzer) FDR(threshold float64) float64 {
	t := a.at(threshold)
	return float64(t.decoys) / float64(max(t.targets, 1))
}

// PercentIncorrect is the ratio of targets to decoys scoring below
// threshold. It is 1 when no decoy scores below threshold. The ratio is not
// bounded above.
func (a *Analyzer) PercentIncorrect(threshold float64) float64 {
	t := a.at(threshold)
	below := a.totalDecoys - t.decoys
	if below == 0 {
		return 1
	}
	return float64(a.totalTargets-t.targets) / float64(below)
}

// RawQValue is PercentIncorrect * FDR, before monotonic smoothing.
func (a *Analyzer) RawQValue(threshold float64) float64 {
	return a.PercentIncorrect(threshold) * a.FDR(threshold)
}

// smoothQValues scans scores ascending and clamps each q-value to the one
// before it, so q-values never increase with score.
func (a *Analyzer) smoothQValues() []float64 {
	q := make([]float64, len(a.scores))
	for i, s := range a.scores {
		q[i] = a.RawQValue(s)
		if i > 0 && q[i] > q[i-1] {
			q[i] = q[i-1]
		}
	}
	return q
}

// QValue returns the smoothed q-value at score. Scores between observed
// values take the q-value of the next observed score above them; scores
// above every observed score have q-value 0.
func (a *Analyzer) QValue(score float64) float64 {
	i := sort.SearchFloat64s(a.scores, score)
	if i == len(a.scores) {
		return 0
	}
	return a.qvalues[i]
}

// PValue is decoys_at(score) / total decoys.
func (a *Analyzer) PValue(score float64) float64 {
	return float64(a.DecoysAt(score)) / float64(a.totalDecoys)
}

// Threshold returns the lowest observed score whose q-value is at most level.
func (a *Analyzer) Threshold(level float64) (float64, bool) {
	for i, q := range a.qvalues {
		if q <= level {
			return a.scores[i], true
		}
	}
	return 0, false
}

// Result is the outcome of one target-decoy analysis.
type Result struct {
	TotalTargets int
	TotalDecoys  int
	QValues      map[int64]float64 // target candidate id -> q-value
	PValues      map[int64]float64 // target candidate id -> p-value
	Thresholds   map[float64]float64
	Passing      map[float64]int // level -> targets with q-value <= level
}

// Updates returns the score field writeback for every target.
func (r *Result) Updates(matches []*core.GlycopeptideMatch) map[int64]core.ScoreFields {
	out := make(map[int64]core.ScoreFields, len(r.QValues))
	for _, m := range matches {
		q, ok := r.QValues[m.CandidateID]
		if !ok || m.IsDecoy {
			continue
		}
		p := r.PValues[m.CandidateID]
		f := m.ScoreFields
		f.QValue, f.PValue = &q, &p
		out[m.CandidateID] = f
	}
	return out
}

// Analyze runs the target-decoy analysis over the GlycopeptideMatches of one
// HypothesisSampleMatch, scored by MS2Score.
func Analyze(matches []*core.GlycopeptideMatch) (*Result, error) {
	var targets, decoys []*core.GlycopeptideMatch
	for _, m := range matches {
		if m.IsDecoy {
			decoys = append(decoys, m)
		} else {
			targets = append(targets, m)
		}
	}

	a, err := NewAnalyzer(scoresOf(targets), scoresOf(decoys))
	if err != nil {
		return nil, err
	}

	r := &Result{
		TotalTargets: a.TotalTargets(),
		TotalDecoys:  a.TotalDecoys(),
		QValues:      make(map[int64]float64, len(targets)),
		PValues:      make(map[int64]float64, len(targets)),
		Thresholds:   make(map[float64]float64),
		Passing:      make(map[float64]int),
	}

	// Walk targets by descending score; tied scores reuse the decoy count.
	sorted := append([]*core.GlycopeptideMatch(nil), targets...)
	sort.SliceStable(sorted, func(i, j int) bool { return sorted[i].MS2Score > sorted[j].MS2Score })
	lastScore, lastDecoys := math.Inf(1), 0
	for _, m := range sorted {
		if m.MS2Score != lastScore {
			lastScore, lastDecoys = m.MS2Score, a.DecoysAt(m.MS2Score)
		}
		r.PValues[m.CandidateID] = float64(lastDecoys) / float64(a.TotalDecoys())
		r.QValues[m.CandidateID] = a.QValue(m.MS2Score)
	}

	for _, level := range Levels {
		if s, ok := a.Threshold(level); ok {
			r.Thresholds[level] = s
		}
		for _, q := range r.QValues {
			if q <= level {
				r.Passing[level]++
			}
		}
	}
	return r, nil
}

func scoresOf(ms []*core.GlycopeptideMatch) []float64 {
	out := make([]float64, len(ms))
	for i, m := range ms {
		out[i] = m.MS2Score
	}
	return out
}
