package core

// Atomic masses (monoisotopic)
const (
	MassH = 1.0078250321
	MassC = 12.0000000000
	MassN = 14.0030740052
	MassO = 15.9949146221
	MassS = 31.9720706900

	// Proton mass for charge calculations
	ProtonMass = 1.00727646688

	MassH2O = 2*MassH + MassO
)

// Composition stores elemental composition
type Composition struct {
	C, H, N, O, S int
}

// Mass returns the monoisotopic mass of the composition.
func (c Composition) Mass() float64 {
	return float64(c.C)*MassC +
		float64(c.H)*MassH +
		float64(c.N)*MassN +
		float64(c.O)*MassO +
		float64(c.S)*MassS
}

// Add returns the element-wise sum of two compositions.
func (c Composition) Add(o Composition) Composition {
	return Composition{C: c.C + o.C, H: c.H + o.H, N: c.N + o.N, O: c.O + o.O, S: c.S + o.S}
}

// AminoAcidResidues maps amino acid one-letter codes to residue composition
var AminoAcidResidues = map[rune]Composition{
	'A': {C: 3, H: 5, N: 1, O: 1},
	'R': {C: 6, H: 12, N: 4, O: 1},
	'N': {C: 4, H: 6, N: 2, O: 2},
	'D': {C: 4, H: 5, N: 1, O: 3},
	'C': {C: 3, H: 5, N: 1, O: 1, S: 1},
	'E': {C: 5, H: 7, N: 1, O: 3},
	'Q': {C: 5, H: 8, N: 2, O: 2},
	'G': {C: 2, H: 3, N: 1, O: 1},
	'H': {C: 6, H: 7, N: 3, O: 1},
	'I': {C: 6, H: 11, N: 1, O: 1},
	'L': {C: 6, H: 11, N: 1, O: 1},
	'K': {C: 6, H: 12, N: 2, O: 1},
	'M': {C: 5, H: 9, N: 1, O: 1, S: 1},
	'F': {C: 9, H: 9, N: 1, O: 1},
	'P': {C: 5, H: 7, N: 1, O: 1},
	'S': {C: 3, H: 5, N: 1, O: 2},
	'T': {C: 4, H: 7, N: 1, O: 2},
	'W': {C: 11, H: 10, N: 2, O: 1},
	'Y': {C: 9, H: 9, N: 1, O: 2},
	'V': {C: 5, H: 9, N: 1, O: 1},
}

// PeptideNeutralMass computes the neutral monoisotopic mass of an unmodified
// peptide. Unknown residues are ignored.
func PeptideNeutralMass(sequence string) float64 {
	comp := Composition{H: 2, O: 1} // Add water
	for _, aa := range sequence {
		if res, ok := AminoAcidResidues[aa]; ok {
			comp = comp.Add(res)
		}
	}
	return comp.Mass()
}

// NeutralMassFromMZ converts an observed m/z at charge z to a neutral mass.
func NeutralMassFromMZ(mz float64, charge int) float64 {
	return mz*float64(charge) - float64(charge)*ProtonMass
}
