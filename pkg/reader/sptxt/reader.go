// Package sptxt provides a streaming reader for deconvoluted MS2 peak lists.
package sptxt

import (
	"bufio"
	"fmt"
	"io"
	"strconv"
	"strings"

	"github.com/BostonUniversityCBMS/glycresoft-sqlalchemy-sub000/pkg/core"
)

// Reader provides streaming access to peak list files. Every spectrum read
// is assigned the reader's sample run.
type Reader struct {
	scanner     *bufio.Scanner
	sampleRunID int64
	lineNum     int
	current     *core.ObservedSpectrum
	err         error
}

// NewReader creates a new peak list reader
func NewReader(r io.Reader, sampleRunID int64) *Reader {
	return &Reader{
		scanner:     bufio.NewScanner(r),
		sampleRunID: sampleRunID,
	}
}

// Next advances to the next spectrum. Returns false when no more spectra or error.
func (r *Reader) Next() bool {
	r.current = nil

	spec, err := r.readSpectrum()
	if err != nil {
		if err != io.EOF {
			r.err = err
		}
		return false
	}

	r.current = spec
	return true
}

// Spectrum returns the current spectrum
func (r *Reader) Spectrum() *core.ObservedSpectrum {
	return r.current
}

// Err returns any error encountered during reading
func (r *Reader) Err() error {
	return r.err
}

// readSpectrum reads one block:
//
//	Name: 1402
//	ScanTime: 23.71
//	PrecursorMass: 2204.9312
//	Charge: 3
//	NumPeaks: 2
//	204.0867	1520.5
//	366.1396	980.1
//
// PrecursorMZ may replace PrecursorMass; the neutral mass is then derived
// from the charge.
func (r *Reader) readSpectrum() (*core.ObservedSpectrum, error) {
	spec := &core.ObservedSpectrum{SampleRunID: r.sampleRunID}

	var (
		numPeaks, peaksRead int
		precursorMZ         float64
		started, inPeaks    bool
	)

	for r.scanner.Scan() {
		r.lineNum++
		line := strings.TrimSpace(r.scanner.Text())

		// Skip comments and empty lines
		if line == "" || strings.HasPrefix(line, "###") {
			continue
		}

		if inPeaks {
			peak, err := parsePeak(line)
			if err != nil {
				return nil, fmt.Errorf("line %d: %w", r.lineNum, err)
			}
			spec.Peaks = append(spec.Peaks, peak)
			peaksRead++
			if peaksRead >= numPeaks {
				return r.finish(spec, precursorMZ)
			}
			continue
		}

		key, value, ok := strings.Cut(line, ":")
		if !ok {
			return nil, fmt.Errorf("line %d: expected 'Key: value', got %q", r.lineNum, line)
		}
		value = strings.TrimSpace(value)

		var err error
		switch key {
		case "Name":
			spec.ID, err = strconv.ParseInt(value, 10, 64)
			started = true
		case "ScanTime":
			spec.ScanTime, err = strconv.ParseFloat(value, 64)
		case "PrecursorMass":
			spec.PrecursorNeutralMass, err = strconv.ParseFloat(value, 64)
		case "PrecursorMZ":
			precursorMZ, err = strconv.ParseFloat(value, 64)
		case "Charge":
			spec.PrecursorCharge, err = strconv.Atoi(strings.TrimSuffix(value, "+"))
		case "NumPeaks":
			if !started {
				return nil, fmt.Errorf("line %d: peak count before Name", r.lineNum)
			}
			numPeaks, err = strconv.Atoi(value)
			if err == nil && numPeaks == 0 {
				return r.finish(spec, precursorMZ)
			}
			inPeaks = true
		}
		if err != nil {
			return nil, fmt.Errorf("line %d: invalid %s value %q: %w", r.lineNum, key, value, err)
		}
	}

	if err := r.scanner.Err(); err != nil {
		return nil, err
	}
	if started {
		return nil, fmt.Errorf("line %d: scan %d ended after %d of %d peaks", r.lineNum, spec.ID, peaksRead, numPeaks)
	}
	return nil, io.EOF
}

func (r *Reader) finish(spec *core.ObservedSpectrum, precursorMZ float64) (*core.ObservedSpectrum, error) {
	if spec.PrecursorNeutralMass == 0 && precursorMZ > 0 {
		if spec.PrecursorCharge == 0 {
			return nil, fmt.Errorf("line %d: scan %d has PrecursorMZ without Charge", r.lineNum, spec.ID)
		}
		spec.PrecursorNeutralMass = core.NeutralMassFromMZ(precursorMZ, spec.PrecursorCharge)
	}
	if !spec.ArePeaksSorted() {
		spec.SortPeaks()
	}
	spec.ReindexPeaks()
	return spec, nil
}

// parsePeak parses a single peak line (format: "mass\tintensity")
func parsePeak(line string) (core.ObservedPeak, error) {
	fields := strings.Fields(line)
	if len(fields) < 2 {
		return core.ObservedPeak{}, fmt.Errorf("invalid peak format, expected at least 2 fields")
	}

	mass, err := strconv.ParseFloat(fields[0], 64)
	if err != nil {
		return core.ObservedPeak{}, fmt.Errorf("invalid mass value: %w", err)
	}

	intensity, err := strconv.ParseFloat(fields[1], 64)
	if err != nil {
		return core.ObservedPeak{}, fmt.Errorf("invalid intensity value: %w", err)
	}

	return core.ObservedPeak{NeutralMass: mass, Intensity: intensity}, nil
}
