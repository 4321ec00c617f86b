package msp

import (
	"math"
	"strings"
	"testing"

	"github.com/google/go-cmp/cmp"

	"github.com/BostonUniversityCBMS/glycresoft-sqlalchemy-sub000/pkg/core"
)

const library = `# candidate library
Name: NVTK{HexNAc1}
Comment: Id=7 Hypothesis=3 Decoy=0 Mass=1500.25 Sites=0
Num peaks: 4
204.0867	0	"HexNAc"
214.1190	0	"b2"
350.2000	0	"y1+HexNAc"
650.3000	0	"pep+HexNAc"

Name: KTVN
Comment: Decoy=1
Num peaks: 1
147.1128	0	"y1"

Name: AAA
Num peaks: 0

Name: NVTK{HexNAc2Hex5}
Comment: Sites=0
Num peaks: 0
`

func TestReader(t *testing.T) {
	r := NewReader(strings.NewReader(library), nil)
	r.HypothesisID = 9

	var got []*core.TheoreticalCandidate
	for r.Next() {
		got = append(got, r.Candidate())
	}
	if err := r.Err(); err != nil {
		t.Fatalf("Err() = %v", err)
	}
	if len(got) != 4 {
		t.Fatalf("read %d candidates, want 4", len(got))
	}

	first := got[0]
	if first.ID != 7 || first.HypothesisID != 3 || first.IsDecoy {
		t.Errorf("first candidate header = %+v", first)
	}
	if first.Name() != "NVTK{HexNAc1}" || first.PrecursorMass != 1500.25 {
		t.Errorf("first candidate = %s at %v", first.Name(), first.PrecursorMass)
	}
	if diff := cmp.Diff([]int{0}, first.GlycosylationSites); diff != "" {
		t.Errorf("sites mismatch (-want +got):\n%s", diff)
	}
	want := map[core.IonKind][]core.TheoreticalIon{
		core.Oxonium:       {{Label: "HexNAc", MonoisotopicMass: 204.0867, Kind: core.Oxonium}},
		core.BareB:         {{Label: "b2", MonoisotopicMass: 214.1190, Kind: core.BareB, Position: 2}},
		core.GlycosylatedY: {{Label: "y1+HexNAc", MonoisotopicMass: 350.2, Kind: core.GlycosylatedY, Position: 1}},
		core.Stub:          {{Label: "pep+HexNAc", MonoisotopicMass: 650.3, Kind: core.Stub}},
	}
	if diff := cmp.Diff(want, first.IonLists); diff != "" {
		t.Errorf("ion lists mismatch (-want +got):\n%s", diff)
	}

	second := got[1]
	if second.ID != 8 || second.HypothesisID != 9 || !second.IsDecoy {
		t.Errorf("second candidate defaults = id %d hyp %d decoy %v", second.ID, second.HypothesisID, second.IsDecoy)
	}
	wantMass := core.PeptideNeutralMass("KTVN")
	if math.Abs(second.PrecursorMass-wantMass) > 1e-9 {
		t.Errorf("computed mass = %v, want %v", second.PrecursorMass, wantMass)
	}

	if got[2].ID != 9 || len(got[2].IonLists) != 0 {
		t.Errorf("third candidate = %+v", got[2])
	}

	glyco := got[3]
	wantMass = core.PeptideNeutralMass("NVTK") + 2*203.079373 + 5*162.052824
	if glyco.ID != 10 || glyco.GlycanComposition != "HexNAc2Hex5" {
		t.Errorf("fourth candidate = %s (id %d)", glyco.Name(), glyco.ID)
	}
	if math.Abs(glyco.PrecursorMass-wantMass) > 1e-9 {
		t.Errorf("computed glycopeptide mass = %v, want %v", glyco.PrecursorMass, wantMass)
	}
}

func TestReaderErrors(t *testing.T) {
	tests := []struct {
		name  string
		input string
	}{
		{"bad peak count", "Name: AAA\nNum peaks: x\n"},
		{"bad mass", "Name: AAA\nNum peaks: 1\nabc\t0\t\"b1\"\n"},
		{"missing label", "Name: AAA\nNum peaks: 1\n100.0\t0\n"},
		{"truncated", "Name: AAA\nNum peaks: 2\n100.0\t0\t\"b1\"\n"},
		{"unclosed glycan", "Name: AAA{Hex1\nNum peaks: 0\n"},
		{"bad decoy flag", "Name: AAA\nComment: Decoy=maybe\nNum peaks: 0\n"},
		{"unknown monosaccharide", "Name: AAA{Foo1}\nNum peaks: 0\n"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r := NewReader(strings.NewReader(tt.input), nil)
			for r.Next() {
			}
			if r.Err() == nil {
				t.Error("Err() = nil, want an error")
			}
		})
	}
}
