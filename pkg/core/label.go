package core

import (
	"regexp"
	"strconv"
	"strings"
)

var (
	glycosylatedBackboneRe = regexp.MustCompile(`^[czby](\d+)\+(.+)$`)
	bareBackboneRe         = regexp.MustCompile(`^[czby](\d+)$`)
	danglingGlycanRe       = regexp.MustCompile(`^[czby]\d+\+$`)
)

// StubPrefix marks peptide+partial glycan (stub) ion labels.
const StubPrefix = "pep"

// IonLabelInfo is the result of parsing an ion label.
type IonLabelInfo struct {
	Kind   IonKind
	Number int    // Backbone ion number, 0 for non-backbone ions
	Glycan string // Glycan part of a glycosylated backbone label
}

// ParseIonLabel classifies an ion label. Precedence: "pep" prefix is a stub
// ion, then glycosylated backbone, then bare backbone, else oxonium.
// Empty labels and backbone labels with an empty glycan part are reported as a
// ComputationError together with the oxonium default.
func ParseIonLabel(label string) (IonLabelInfo, error) {
	if label == "" {
		return IonLabelInfo{Kind: Oxonium}, &ComputationError{Label: label, Message: "empty ion label"}
	}
	if strings.HasPrefix(label, StubPrefix) {
		return IonLabelInfo{Kind: Stub}, nil
	}
	if m := glycosylatedBackboneRe.FindStringSubmatch(label); m != nil {
		n, _ := strconv.Atoi(m[1])
		kind := GlycosylatedY
		if isNTerminalSeries(label[0]) {
			kind = GlycosylatedB
		}
		return IonLabelInfo{Kind: kind, Number: n, Glycan: m[2]}, nil
	}
	if m := bareBackboneRe.FindStringSubmatch(label); m != nil {
		n, _ := strconv.Atoi(m[1])
		kind := BareY
		if isNTerminalSeries(label[0]) {
			kind = BareB
		}
		return IonLabelInfo{Kind: kind, Number: n}, nil
	}
	if danglingGlycanRe.MatchString(label) {
		return IonLabelInfo{Kind: Oxonium}, &ComputationError{Label: label, Message: "backbone label with empty glycan"}
	}
	return IonLabelInfo{Kind: Oxonium}, nil
}

// ClassifyIonLabel is ParseIonLabel with the error dropped. Callers that need
// to report unclassifiable labels use ParseIonLabel.
func ClassifyIonLabel(label string) IonLabelInfo {
	info, _ := ParseIonLabel(label)
	return info
}

func isNTerminalSeries(c byte) bool {
	return c == 'b' || c == 'c'
}

// StubClass returns the glycan-loss class of a stub ion label: the label up
// to the first ':'.
func StubClass(label string) string {
	if i := strings.IndexByte(label, ':'); i >= 0 {
		return label[:i]
	}
	return label
}
