// Package core provides the data model, ion label parsing and validation logic
// shared by the glycopeptide matching, scoring and FDR packages.
package core

import (
	"fmt"
	"math"
	"sort"
	"strings"
)

// ObservedSpectrum is a deconvoluted MS2 spectrum. Peak masses are neutral.
type ObservedSpectrum struct {
	ID                   int64   // Scan id, unique within the sample run
	SampleRunID          int64   // Sample run the scan was acquired in
	ScanTime             float64 // Retention time
	PrecursorNeutralMass float64
	PrecursorCharge      int
	Peaks                []ObservedPeak // Sorted ascending by NeutralMass
}

// ObservedPeak is a single deconvoluted peak.
type ObservedPeak struct {
	Index       int // Position of the peak in the unfiltered peak list
	NeutralMass float64
	Intensity   float64
}

// Validate checks that a spectrum meets all requirements for matching.
// An empty peak list is reported as a DataIntegrityError.
func (s *ObservedSpectrum) Validate() error {
	var errs []string

	if s.PrecursorNeutralMass <= 0 || math.IsNaN(s.PrecursorNeutralMass) || math.IsInf(s.PrecursorNeutralMass, 0) {
		errs = append(errs, "precursor neutral mass must be positive")
	}
	if len(s.Peaks) == 0 {
		errs = append(errs, "at least one peak is required")
	}

	for i, peak := range s.Peaks {
		if math.IsNaN(peak.NeutralMass) || math.IsInf(peak.NeutralMass, 0) {
			errs = append(errs, fmt.Sprintf("peak %d has invalid mass", i))
		}
		if math.IsNaN(peak.Intensity) || math.IsInf(peak.Intensity, 0) {
			errs = append(errs, fmt.Sprintf("peak %d has invalid intensity", i))
		}
		if peak.NeutralMass <= 0 {
			errs = append(errs, fmt.Sprintf("peak %d mass must be positive", i))
		}
		if peak.Intensity < 0 {
			errs = append(errs, fmt.Sprintf("peak %d intensity must be non-negative", i))
		}
	}

	if !s.ArePeaksSorted() {
		errs = append(errs, "peaks must be sorted by mass")
	}

	if len(errs) > 0 {
		return &DataIntegrityError{
			Field:   s.Name(),
			Message: strings.Join(errs, "; "),
		}
	}

	return nil
}

// ArePeaksSorted checks if peaks are sorted by mass in ascending order.
func (s *ObservedSpectrum) ArePeaksSorted() bool {
	for i := 1; i < len(s.Peaks); i++ {
		if s.Peaks[i].NeutralMass < s.Peaks[i-1].NeutralMass {
			return false
		}
	}
	return true
}

// SortPeaks sorts peaks by mass in ascending order.
func (s *ObservedSpectrum) SortPeaks() {
	sort.SliceStable(s.Peaks, func(i, j int) bool {
		return s.Peaks[i].NeutralMass < s.Peaks[j].NeutralMass
	})
}

// ReindexPeaks assigns each peak its current position as Index.
func (s *ObservedSpectrum) ReindexPeaks() {
	for i := range s.Peaks {
		s.Peaks[i].Index = i
	}
}

// Name returns the spectrum name in format "run/scan"
func (s *ObservedSpectrum) Name() string {
	return fmt.Sprintf("%d/%d", s.SampleRunID, s.ID)
}
