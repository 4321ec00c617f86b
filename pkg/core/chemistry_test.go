package core

import (
	"math"
	"strings"
	"testing"
)

func TestPeptideNeutralMass(t *testing.T) {
	tests := []struct {
		name      string
		sequence  string
		wantMass  float64
		tolerance float64
	}{
		{"simple tripeptide", "AAA", 231.1219, 0.001},
		{"PEPTIDE", "PEPTIDE", 799.360, 0.001},
		{"empty is water", "", 18.0106, 0.0001},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := PeptideNeutralMass(tt.sequence)
			if math.Abs(got-tt.wantMass) > tt.tolerance {
				t.Errorf("PeptideNeutralMass() = %.4f, want %.4f (within %.4f)", got, tt.wantMass, tt.tolerance)
			}
		})
	}
}

func TestNeutralMassFromMZ(t *testing.T) {
	got := NeutralMassFromMZ(400.5, 2)
	want := 801.0 - 2*ProtonMass
	if math.Abs(got-want) > 1e-9 {
		t.Errorf("NeutralMassFromMZ() = %v, want %v", got, want)
	}
}

func TestCompositionMass(t *testing.T) {
	db := DefaultMonosaccharideDatabase()

	tests := []struct {
		name    string
		comp    string
		want    float64
		wantErr bool
	}{
		{"packed", "HexNAc2Hex5", 2*203.079373 + 5*162.052824, false},
		{"separated", "HexNAc:2; Hex:5", 2*203.079373 + 5*162.052824, false},
		{"with fucose", "HexNAc4Hex5Fuc1", 4*203.079373 + 5*162.052824 + 146.057909, false},
		{"empty", "", 0, false},
		{"unknown residue", "Foo2", 0, true},
		{"garbage", "HexNAc2??", 0, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := db.CompositionMass(tt.comp)
			if (err != nil) != tt.wantErr {
				t.Fatalf("CompositionMass() error = %v, wantErr %v", err, tt.wantErr)
			}
			if !tt.wantErr && math.Abs(got-tt.want) > 1e-9 {
				t.Errorf("CompositionMass() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestLoadMonosaccharidesFromCSV(t *testing.T) {
	db := NewMonosaccharideDatabase()
	csv := "name,mass\nHexNAc,203.079373\n\nKdn,250.068868\n"
	if err := db.LoadFromCSV(strings.NewReader(csv)); err != nil {
		t.Fatalf("LoadFromCSV() error: %v", err)
	}
	if m, ok := db.GetMass("Kdn"); !ok || m != 250.068868 {
		t.Errorf("GetMass(Kdn) = %v, %v", m, ok)
	}

	if err := db.LoadFromCSV(strings.NewReader("name,mass\nHex,abc\n")); err == nil {
		t.Error("Expected error for invalid mass")
	}
}
