package core

import (
	"bufio"
	"fmt"
	"io"
	"regexp"
	"sort"
	"strconv"
	"strings"
)

// MonosaccharideDatabase stores monosaccharide residue masses
type MonosaccharideDatabase struct {
	residues map[string]float64 // name -> residue mass
}

// NewMonosaccharideDatabase creates an empty database
func NewMonosaccharideDatabase() *MonosaccharideDatabase {
	return &MonosaccharideDatabase{
		residues: make(map[string]float64),
	}
}

// LoadFromCSV loads residues from a CSV file (format: name,mass)
func (db *MonosaccharideDatabase) LoadFromCSV(r io.Reader) error {
	scanner := bufio.NewScanner(r)

	// Skip header line
	scanner.Scan()

	lineNum := 1
	for scanner.Scan() {
		lineNum++
		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}

		parts := strings.Split(line, ",")
		if len(parts) < 2 {
			return fmt.Errorf("line %d: invalid format, expected at least 2 comma-separated fields", lineNum)
		}

		name := strings.TrimSpace(parts[0])
		massStr := strings.TrimSpace(parts[1])

		mass, err := strconv.ParseFloat(massStr, 64)
		if err != nil {
			return fmt.Errorf("line %d: invalid mass value '%s': %w", lineNum, massStr, err)
		}

		db.residues[name] = mass
	}

	if err := scanner.Err(); err != nil {
		return fmt.Errorf("error reading CSV: %w", err)
	}

	return nil
}

// GetMass returns the residue mass of a monosaccharide
func (db *MonosaccharideDatabase) GetMass(name string) (float64, bool) {
	mass, ok := db.residues[name]
	return mass, ok
}

// Add adds or updates a monosaccharide
func (db *MonosaccharideDatabase) Add(name string, mass float64) {
	db.residues[name] = mass
}

var compositionTermRe = regexp.MustCompile(`([A-Za-z][A-Za-z0-9]*?[A-Za-z])(\d+)`)

// ParseComposition parses a composition string like "HexNAc2Hex5Fuc1" or
// "HexNAc:2;Hex:5" into residue counts.
func (db *MonosaccharideDatabase) ParseComposition(comp string) (map[string]int, error) {
	counts := make(map[string]int)
	comp = strings.TrimSpace(comp)
	if comp == "" {
		return counts, nil
	}

	if strings.Contains(comp, ":") {
		for _, part := range strings.Split(comp, ";") {
			part = strings.TrimSpace(part)
			if part == "" {
				continue
			}
			kv := strings.SplitN(part, ":", 2)
			if len(kv) != 2 {
				return nil, fmt.Errorf("invalid composition term '%s', expected 'name:count'", part)
			}
			n, err := strconv.Atoi(strings.TrimSpace(kv[1]))
			if err != nil {
				return nil, fmt.Errorf("invalid count in '%s': %w", part, err)
			}
			name := strings.TrimSpace(kv[0])
			if _, ok := db.GetMass(name); !ok {
				return nil, fmt.Errorf("unknown monosaccharide '%s'", name)
			}
			counts[name] += n
		}
		return counts, nil
	}

	rest := comp
	for _, m := range compositionTermRe.FindAllStringSubmatch(comp, -1) {
		name := m[1]
		if _, ok := db.GetMass(name); !ok {
			return nil, fmt.Errorf("unknown monosaccharide '%s'", name)
		}
		n, _ := strconv.Atoi(m[2])
		counts[name] += n
		rest = strings.Replace(rest, m[0], "", 1)
	}
	if rest != "" {
		return nil, fmt.Errorf("invalid composition '%s': unparsed '%s'", comp, rest)
	}
	return counts, nil
}

// CompositionMass returns the summed residue mass of a composition string.
func (db *MonosaccharideDatabase) CompositionMass(comp string) (float64, error) {
	counts, err := db.ParseComposition(comp)
	if err != nil {
		return 0, err
	}
	names := make([]string, 0, len(counts))
	for name := range counts {
		names = append(names, name)
	}
	sort.Strings(names)

	mass := 0.0
	for _, name := range names {
		m, _ := db.GetMass(name)
		mass += m * float64(counts[name])
	}
	return mass, nil
}

// GlycopeptideNeutralMass is the peptide mass plus the glycan residue mass.
func (db *MonosaccharideDatabase) GlycopeptideNeutralMass(sequence, glycan string) (float64, error) {
	g, err := db.CompositionMass(glycan)
	if err != nil {
		return 0, err
	}
	return PeptideNeutralMass(sequence) + g, nil
}

// DefaultMonosaccharideDatabase returns a database pre-loaded with common
// monosaccharide residues
func DefaultMonosaccharideDatabase() *MonosaccharideDatabase {
	db := NewMonosaccharideDatabase()

	db.Add("Hex", 162.052824)
	db.Add("HexNAc", 203.079373)
	db.Add("dHex", 146.057909)
	db.Add("Fuc", 146.057909)
	db.Add("NeuAc", 291.095417)
	db.Add("NeuGc", 307.090331)
	db.Add("Pent", 132.042259)
	db.Add("HexA", 176.032088)
	db.Add("Kdn", 250.068868)
	db.Add("Sulfo", 79.956815)
	db.Add("Phospho", 79.966331)

	return db
}
