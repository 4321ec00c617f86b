// Package tolerance implements ppm based mass matching over sorted peak
// arrays.
package tolerance

import (
	"math"
	"sort"

	"github.com/BostonUniversityCBMS/glycresoft-sqlalchemy-sub000/pkg/core"
)

// Default tolerances, as ppm fractions.
const (
	DefaultMS1 = 1e-5
	DefaultMS2 = 2e-5
)

// SafetyMargin is the absolute mass distance (Da) beyond which a peak cannot
// match any target at realistic tolerances. The scan window is widened when
// target*tol exceeds it.
const SafetyMargin = 10.0

// PPMError returns the relative mass error (observed - theoretical) / theoretical.
func PPMError(observed, theoretical float64) float64 {
	return (observed - theoretical) / theoretical
}

// Within reports whether observed is within tol of theoretical.
func Within(observed, theoretical, tol float64) bool {
	return math.Abs(PPMError(observed, theoretical)) <= tol
}

// ObservedRange returns the interval of observed masses that can lie within
// tol of theoretical.
func ObservedRange(theoretical, tol float64) (lo, hi float64) {
	return theoretical * (1 - tol), theoretical * (1 + tol)
}

// TheoreticalRange returns the interval of theoretical masses that observed can
// lie within tol of. It is the inverse of ObservedRange.
func TheoreticalRange(observed, tol float64) (lo, hi float64) {
	lo = observed / (1 + tol)
	if tol >= 1 {
		return lo, math.Inf(1)
	}
	return lo, observed / (1 - tol)
}

func margin(target, tol float64) float64 {
	if m := math.Abs(target) * tol * 1.5; m > SafetyMargin {
		return m
	}
	return SafetyMargin
}

// Search returns the positions in peaks, which must be sorted ascending by
// mass, of every peak within tol of target.
func Search(peaks []core.ObservedPeak, target, tol float64) []int {
	m := margin(target, tol)
	start := sort.Search(len(peaks), func(i int) bool {
		return peaks[i].NeutralMass >= target-m
	})

	var hits []int
	for i := start; i < len(peaks); i++ {
		if peaks[i].NeutralMass > target+m {
			break
		}
		if Within(peaks[i].NeutralMass, target, tol) {
			hits = append(hits, i)
		}
	}
	return hits
}

// LinearSearch is the unbounded reference scan. It returns exactly what
// Search returns.
func LinearSearch(peaks []core.ObservedPeak, target, tol float64) []int {
	var hits []int
	for i, p := range peaks {
		if Within(p.NeutralMass, target, tol) {
			hits = append(hits, i)
		}
	}
	return hits
}

// Matcher binds a tolerance to the search functions.
type Matcher struct {
	Tolerance float64
}

// NewMatcher returns a Matcher, using DefaultMS2 when tol is not positive.
func NewMatcher(tol float64) Matcher {
	if tol <= 0 {
		tol = DefaultMS2
	}
	return Matcher{Tolerance: tol}
}

// Search is tolerance.Search with the matcher's tolerance.
func (m Matcher) Search(peaks []core.ObservedPeak, target float64) []int {
	return Search(peaks, target, m.Tolerance)
}

// Within is tolerance.Within with the matcher's tolerance.
func (m Matcher) Within(observed, theoretical float64) bool {
	return Within(observed, theoretical, m.Tolerance)
}
