package core

import (
	"fmt"
	"math"
	"strings"
)

// IonKind classifies a theoretical or matched fragment ion.
type IonKind int

const (
	Oxonium IonKind = iota
	BareB
	BareY
	GlycosylatedB
	GlycosylatedY
	Stub
)

// IonKinds lists every kind in matching order. Oxonium comes first because it
// gates the rest.
var IonKinds = []IonKind{Oxonium, BareB, BareY, GlycosylatedB, GlycosylatedY, Stub}

var ionKindNames = [...]string{
	Oxonium:       "oxonium",
	BareB:         "bare_b",
	BareY:         "bare_y",
	GlycosylatedB: "glycosylated_b",
	GlycosylatedY: "glycosylated_y",
	Stub:          "stub",
}

func (k IonKind) String() string {
	if k < 0 || int(k) >= len(ionKindNames) {
		return fmt.Sprintf("IonKind(%d)", int(k))
	}
	return ionKindNames[k]
}

// ParseIonKind is the inverse of IonKind.String.
func ParseIonKind(s string) (IonKind, error) {
	for i, name := range ionKindNames {
		if name == s {
			return IonKind(i), nil
		}
	}
	return Oxonium, fmt.Errorf("unknown ion kind %q", s)
}

// IsBackbone reports whether the kind is a b or y series ion.
func (k IonKind) IsBackbone() bool {
	return k == BareB || k == BareY || k == GlycosylatedB || k == GlycosylatedY
}

// IsGlycosylated reports whether the kind is a backbone ion retaining glycan.
func (k IonKind) IsGlycosylated() bool {
	return k == GlycosylatedB || k == GlycosylatedY
}

// IsNTerminal reports whether the kind is indexed from the N-terminus.
func (k IonKind) IsNTerminal() bool {
	return k == BareB || k == GlycosylatedB
}

// TheoreticalIon is one theoretical fragment of a candidate.
type TheoreticalIon struct {
	Label            string
	MonoisotopicMass float64
	Kind             IonKind
	Position         int // Backbone ion number for b/y series, 0 otherwise
}

// NewTheoreticalIon builds an ion whose kind and position are derived from
// its label.
func NewTheoreticalIon(label string, mass float64) TheoreticalIon {
	info := ClassifyIonLabel(label)
	return TheoreticalIon{
		Label:            label,
		MonoisotopicMass: mass,
		Kind:             info.Kind,
		Position:         info.Number,
	}
}

// TheoreticalCandidate is an immutable glycopeptide hypothesis with its
// precomputed fragment ion lists.
type TheoreticalCandidate struct {
	ID                 int64
	HypothesisID       int64
	IsDecoy            bool
	Sequence           string
	GlycanComposition  string
	GlycosylationSites []int // 0-based sequence positions
	PrecursorMass      float64
	IonLists           map[IonKind][]TheoreticalIon
}

// Ions returns the ion list of one kind.
func (c *TheoreticalCandidate) Ions(kind IonKind) []TheoreticalIon {
	if c.IonLists == nil {
		return nil
	}
	return c.IonLists[kind]
}

// AddIon appends an ion to the list of its kind.
func (c *TheoreticalCandidate) AddIon(ion TheoreticalIon) {
	if c.IonLists == nil {
		c.IonLists = make(map[IonKind][]TheoreticalIon)
	}
	c.IonLists[ion.Kind] = append(c.IonLists[ion.Kind], ion)
}

// Validate checks that a candidate can be matched.
func (c *TheoreticalCandidate) Validate() error {
	var errs []string

	if c.PrecursorMass <= 0 || math.IsNaN(c.PrecursorMass) || math.IsInf(c.PrecursorMass, 0) {
		errs = append(errs, "precursor mass must be positive")
	}
	for _, site := range c.GlycosylationSites {
		if site < 0 || site >= len(c.Sequence) {
			errs = append(errs, fmt.Sprintf("glycosylation site %d outside sequence", site))
		}
	}
	for kind, ions := range c.IonLists {
		for _, ion := range ions {
			if ion.Kind != kind {
				errs = append(errs, fmt.Sprintf("ion %s listed as %s", ion.Label, kind))
			}
			if ion.MonoisotopicMass <= 0 {
				errs = append(errs, fmt.Sprintf("ion %s mass must be positive", ion.Label))
			}
		}
	}

	if len(errs) > 0 {
		return &DataIntegrityError{
			Field:   c.Name(),
			Message: strings.Join(errs, "; "),
		}
	}
	return nil
}

// Name returns the candidate name in format "SEQUENCE{glycan}"
func (c *TheoreticalCandidate) Name() string {
	if c.GlycanComposition == "" {
		return c.Sequence
	}
	return fmt.Sprintf("%s{%s}", c.Sequence, c.GlycanComposition)
}

// Hypothesis is a set of candidates, either target or decoy.
type Hypothesis struct {
	ID      int64
	Name    string
	IsDecoy bool
}

// HypothesisSampleMatch pairs a target and a decoy hypothesis with one sample
// run. It scopes one FDR analysis.
type HypothesisSampleMatch struct {
	ID                 int64
	TargetHypothesisID int64
	DecoyHypothesisID  int64
	SampleRunID        int64
}

// IsDecoyHypothesis reports whether hypothesisID is the decoy hypothesis of h.
func (h *HypothesisSampleMatch) IsDecoyHypothesis(hypothesisID int64) bool {
	return hypothesisID == h.DecoyHypothesisID
}

// HypothesisIDs returns the target and decoy hypothesis ids.
func (h *HypothesisSampleMatch) HypothesisIDs() []int64 {
	return []int64{h.TargetHypothesisID, h.DecoyHypothesisID}
}
