package core

import (
	"errors"
	"testing"
)

func TestParseIonLabel(t *testing.T) {
	tests := []struct {
		label      string
		wantKind   IonKind
		wantNumber int
		wantErr    bool
	}{
		{"b3", BareB, 3, false},
		{"c12", BareB, 12, false},
		{"y5", BareY, 5, false},
		{"z2", BareY, 2, false},
		{"b4+HexNAc", GlycosylatedB, 4, false},
		{"y7+HexNAc1Hex2", GlycosylatedY, 7, false},
		{"pep+HexNAc", Stub, 0, false},
		{"pepY1", Stub, 0, false},
		{"peptide", Stub, 0, false},
		{"HexNAc", Oxonium, 0, false},
		{"NeuAc-H2O", Oxonium, 0, false},
		{"b", Oxonium, 0, false},
		{"a3", Oxonium, 0, false},
		{"B3", Oxonium, 0, false},
		{"b3-H2O", Oxonium, 0, false},
		{"y3+", Oxonium, 0, true},
		{"", Oxonium, 0, true},
	}

	for _, tt := range tests {
		t.Run(tt.label, func(t *testing.T) {
			info, err := ParseIonLabel(tt.label)
			if (err != nil) != tt.wantErr {
				t.Fatalf("ParseIonLabel(%q) error = %v, wantErr %v", tt.label, err, tt.wantErr)
			}
			if err != nil {
				var ce *ComputationError
				if !errors.As(err, &ce) {
					t.Errorf("Expected ComputationError, got %T", err)
				}
			}
			if info.Kind != tt.wantKind {
				t.Errorf("ParseIonLabel(%q) kind = %v, want %v", tt.label, info.Kind, tt.wantKind)
			}
			if info.Number != tt.wantNumber {
				t.Errorf("ParseIonLabel(%q) number = %d, want %d", tt.label, info.Number, tt.wantNumber)
			}
		})
	}
}

func TestStubClass(t *testing.T) {
	tests := map[string]string{
		"pep+HexNAc":   "pep+HexNAc",
		"pep+HexNAc:2": "pep+HexNAc",
		"pep:":         "pep",
	}
	for label, want := range tests {
		if got := StubClass(label); got != want {
			t.Errorf("StubClass(%q) = %q, want %q", label, got, want)
		}
	}
}

func TestIonKindRoundTrip(t *testing.T) {
	for _, k := range IonKinds {
		got, err := ParseIonKind(k.String())
		if err != nil || got != k {
			t.Errorf("ParseIonKind(%q) = %v, %v", k.String(), got, err)
		}
	}
	if _, err := ParseIonKind("precursor"); err == nil {
		t.Error("Expected error for unknown kind")
	}
}
