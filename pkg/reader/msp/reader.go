// Package msp provides a streaming reader for candidate libraries in MSP
// style: one glycopeptide per entry with its annotated theoretical fragments.
package msp

import (
	"bufio"
	"fmt"
	"io"
	"strconv"
	"strings"

	"github.com/BostonUniversityCBMS/glycresoft-sqlalchemy-sub000/pkg/core"
)

// Reader provides streaming access to candidate library files
type Reader struct {
	scanner *bufio.Scanner
	glycans *core.MonosaccharideDatabase
	lineNum int
	nextID  int64
	current *core.TheoreticalCandidate
	err     error

	// HypothesisID and IsDecoy apply to entries whose comment does not set
	// Hypothesis= or Decoy=.
	HypothesisID int64
	IsDecoy      bool
}

// NewReader creates a new candidate library reader. Precursor masses missing
// from the library are computed with glycans.
func NewReader(r io.Reader, glycans *core.MonosaccharideDatabase) *Reader {
	if glycans == nil {
		glycans = core.DefaultMonosaccharideDatabase()
	}

	return &Reader{
		scanner: bufio.NewScanner(r),
		glycans: glycans,
		nextID:  1,
	}
}

// Next advances to the next candidate. Returns false when no more candidates or error.
func (r *Reader) Next() bool {
	r.current = nil

	c, err := r.readCandidate()
	if err != nil {
		if err != io.EOF {
			r.err = err
		}
		return false
	}

	r.current = c
	return true
}

// Candidate returns the current candidate
func (r *Reader) Candidate() *core.TheoreticalCandidate {
	return r.current
}

// Err returns any error encountered during reading
func (r *Reader) Err() error {
	return r.err
}

type entry struct {
	c         *core.TheoreticalCandidate
	hasID     bool
	hasMass   bool
	hasHyp    bool
	hasDecoy  bool
	numPeaks  int
	peaksRead int
}

func (r *Reader) readCandidate() (*core.TheoreticalCandidate, error) {
	e := &entry{c: &core.TheoreticalCandidate{IonLists: make(map[core.IonKind][]core.TheoreticalIon)}}
	started := false
	inPeaks := false

	for r.scanner.Scan() {
		r.lineNum++
		line := strings.TrimSpace(r.scanner.Text())

		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}

		if !inPeaks {
			switch {
			case strings.HasPrefix(line, "Name:"):
				if err := parseName(e.c, strings.TrimSpace(strings.TrimPrefix(line, "Name:"))); err != nil {
					return nil, fmt.Errorf("line %d: %w", r.lineNum, err)
				}
				started = true
			case strings.HasPrefix(line, "Comment:"):
				if err := parseComment(e, strings.TrimPrefix(line, "Comment:")); err != nil {
					return nil, fmt.Errorf("line %d: %w", r.lineNum, err)
				}
			case strings.HasPrefix(line, "Num peaks:"):
				if !started {
					return nil, fmt.Errorf("line %d: peak count before Name", r.lineNum)
				}
				n, err := strconv.Atoi(strings.TrimSpace(strings.TrimPrefix(line, "Num peaks:")))
				if err != nil || n < 0 {
					return nil, fmt.Errorf("line %d: invalid num peaks %q", r.lineNum, line)
				}
				e.numPeaks = n
				if n == 0 {
					return r.finish(e)
				}
				inPeaks = true
			}
			continue
		}

		ion, err := parseIon(line)
		if err != nil {
			return nil, fmt.Errorf("line %d: %w", r.lineNum, err)
		}
		e.c.AddIon(ion)
		e.peaksRead++
		if e.peaksRead >= e.numPeaks {
			return r.finish(e)
		}
	}

	if err := r.scanner.Err(); err != nil {
		return nil, err
	}
	if started {
		return nil, fmt.Errorf("line %d: entry %s ended after %d of %d peaks",
			r.lineNum, e.c.Name(), e.peaksRead, e.numPeaks)
	}
	return nil, io.EOF
}

// finish applies defaults to a complete entry.
func (r *Reader) finish(e *entry) (*core.TheoreticalCandidate, error) {
	c := e.c
	if !e.hasID {
		c.ID = r.nextID
	}
	if c.ID >= r.nextID {
		r.nextID = c.ID + 1
	}
	if !e.hasHyp {
		c.HypothesisID = r.HypothesisID
	}
	if !e.hasDecoy {
		c.IsDecoy = r.IsDecoy
	}
	if !e.hasMass {
		mass, err := r.glycans.GlycopeptideNeutralMass(c.Sequence, c.GlycanComposition)
		if err != nil {
			return nil, fmt.Errorf("line %d: %s: %w", r.lineNum, c.Name(), err)
		}
		c.PrecursorMass = mass
	}
	return c, nil
}

// parseName splits "SEQUENCE{glycan}" into sequence and glycan composition.
func parseName(c *core.TheoreticalCandidate, name string) error {
	open := strings.IndexByte(name, '{')
	if open < 0 {
		c.Sequence = name
		return nil
	}
	if !strings.HasSuffix(name, "}") {
		return fmt.Errorf("invalid name format '%s', expected 'SEQUENCE{glycan}'", name)
	}
	c.Sequence = name[:open]
	c.GlycanComposition = name[open+1 : len(name)-1]
	if c.Sequence == "" {
		return fmt.Errorf("invalid name format '%s', missing sequence", name)
	}
	return nil
}

// parseComment reads key=value fields.
// Example: Id=12 Hypothesis=1 Decoy=0 Mass=2204.93 Sites=0,5
func parseComment(e *entry, comment string) error {
	for _, field := range strings.Fields(comment) {
		parts := strings.SplitN(field, "=", 2)
		if len(parts) != 2 {
			continue
		}
		key, value := parts[0], parts[1]

		var err error
		switch key {
		case "Id":
			e.c.ID, err = strconv.ParseInt(value, 10, 64)
			e.hasID = true
		case "Hypothesis":
			e.c.HypothesisID, err = strconv.ParseInt(value, 10, 64)
			e.hasHyp = true
		case "Decoy":
			e.c.IsDecoy, err = strconv.ParseBool(value)
			e.hasDecoy = true
		case "Mass":
			e.c.PrecursorMass, err = strconv.ParseFloat(value, 64)
			e.hasMass = true
		case "Sites":
			e.c.GlycosylationSites, err = parseSites(value)
		}
		if err != nil {
			return fmt.Errorf("invalid %s value %q: %w", key, value, err)
		}
	}
	return nil
}

func parseSites(value string) ([]int, error) {
	if value == "" {
		return nil, nil
	}
	var sites []int
	for _, s := range strings.Split(value, ",") {
		site, err := strconv.Atoi(s)
		if err != nil {
			return nil, err
		}
		sites = append(sites, site)
	}
	return sites, nil
}

// parseIon parses a fragment line (format: "mass\tintensity\t\"label\"").
// The intensity column is ignored.
func parseIon(line string) (core.TheoreticalIon, error) {
	fields := strings.Fields(line)
	if len(fields) < 3 {
		return core.TheoreticalIon{}, fmt.Errorf("invalid fragment format, expected mass, intensity and label")
	}

	mass, err := strconv.ParseFloat(fields[0], 64)
	if err != nil {
		return core.TheoreticalIon{}, fmt.Errorf("invalid mass value: %w", err)
	}

	label := strings.Trim(strings.Join(fields[2:], " "), "\"")
	if label == "" {
		return core.TheoreticalIon{}, fmt.Errorf("empty fragment label")
	}
	return core.NewTheoreticalIon(label, mass), nil
}
