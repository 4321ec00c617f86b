// Package filter provides peak preprocessing applied before fragment matching
package filter

import (
	"sort"

	"gonum.org/v1/gonum/stat"

	"github.com/BostonUniversityCBMS/glycresoft-sqlalchemy-sub000/pkg/core"
)

// Config holds filtering configuration
type Config struct {
	MedianFloor bool // Drop peaks below the spectrum's median intensity
	TopN        int  // Keep only top N most intense peaks (0 = no limit)
}

// DefaultConfig is the noise suppression used by the match engine.
func DefaultConfig() Config {
	return Config{MedianFloor: true}
}

// Apply returns the filtered peaks of spec, sorted by mass. The spectrum is
// not modified; peaks keep their original Index.
func (c Config) Apply(spec *core.ObservedSpectrum) []core.ObservedPeak {
	peaks := RemoveZeroIntensityPeaks(spec.Peaks)

	if c.MedianFloor {
		peaks = filterByIntensity(peaks, MedianIntensity(peaks))
	}

	if c.TopN > 0 {
		peaks = filterTopN(peaks, c.TopN)
	}

	// Ensure peaks are sorted after all filtering
	sort.SliceStable(peaks, func(i, j int) bool {
		return peaks[i].NeutralMass < peaks[j].NeutralMass
	})
	return peaks
}

// MedianIntensity returns the empirical (lower) median of the peak
// intensities, or 0 for no peaks.
func MedianIntensity(peaks []core.ObservedPeak) float64 {
	if len(peaks) == 0 {
		return 0
	}
	intensities := make([]float64, len(peaks))
	for i, p := range peaks {
		intensities[i] = p.Intensity
	}
	sort.Float64s(intensities)
	return stat.Quantile(0.5, stat.Empirical, intensities, nil)
}

// filterByIntensity keeps peaks at or above the floor
func filterByIntensity(peaks []core.ObservedPeak, floor float64) []core.ObservedPeak {
	filtered := make([]core.ObservedPeak, 0, len(peaks))
	for _, peak := range peaks {
		if peak.Intensity >= floor {
			filtered = append(filtered, peak)
		}
	}
	return filtered
}

// filterTopN keeps only the N most intense peaks
func filterTopN(peaks []core.ObservedPeak, n int) []core.ObservedPeak {
	if len(peaks) <= n {
		return peaks
	}

	// Create a copy and sort by intensity descending
	sorted := make([]core.ObservedPeak, len(peaks))
	copy(sorted, peaks)

	sort.SliceStable(sorted, func(i, j int) bool {
		return sorted[i].Intensity > sorted[j].Intensity
	})

	return sorted[:n]
}

// RemoveZeroIntensityPeaks returns the peaks with positive intensity
func RemoveZeroIntensityPeaks(peaks []core.ObservedPeak) []core.ObservedPeak {
	filtered := make([]core.ObservedPeak, 0, len(peaks))
	for _, peak := range peaks {
		if peak.Intensity > 0 {
			filtered = append(filtered, peak)
		}
	}
	return filtered
}
