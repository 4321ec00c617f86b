package sqlite

import (
	"encoding/binary"
	"encoding/json"
	"fmt"
	"math"
	"sort"
	"strconv"
	"strings"

	"github.com/golang/snappy"

	"github.com/BostonUniversityCBMS/glycresoft-sqlalchemy-sub000/pkg/core"
	"github.com/BostonUniversityCBMS/glycresoft-sqlalchemy-sub000/pkg/match"
)

// storedIon is the persisted form of a TheoreticalIon. Kind and position are
// derived from the label when the ion is read back.
type storedIon struct {
	Label string  `json:"l"`
	Mass  float64 `json:"m"`
}

// storedIonMatch is the persisted form of an IonMatch. The kind is not
// stored; it is reclassified from the label on read.
type storedIonMatch struct {
	Label        string  `json:"l"`
	PeakIndex    int     `json:"p"`
	ObservedMass float64 `json:"o"`
	PPMError     float64 `json:"e"`
	Intensity    float64 `json:"i"`
}

// encodePeaksFloat64 encodes peak data as little-endian float64 blob
func encodePeaksFloat64(peaks []core.ObservedPeak, useMass bool) []byte {
	buf := make([]byte, len(peaks)*8)
	for i, peak := range peaks {
		value := peak.Intensity
		if useMass {
			value = peak.NeutralMass
		}
		binary.LittleEndian.PutUint64(buf[i*8:], math.Float64bits(value))
	}
	return buf
}

// decodePeaksFloat64 rebuilds peaks from mass and intensity blobs.
func decodePeaksFloat64(massBlob, intensityBlob []byte) ([]core.ObservedPeak, error) {
	if len(massBlob)%8 != 0 || len(massBlob) != len(intensityBlob) {
		return nil, fmt.Errorf("peak blob lengths %d and %d do not match", len(massBlob), len(intensityBlob))
	}
	n := len(massBlob) / 8
	peaks := make([]core.ObservedPeak, n)
	for i := 0; i < n; i++ {
		peaks[i] = core.ObservedPeak{
			Index:       i,
			NeutralMass: math.Float64frombits(binary.LittleEndian.Uint64(massBlob[i*8:])),
			Intensity:   math.Float64frombits(binary.LittleEndian.Uint64(intensityBlob[i*8:])),
		}
	}
	return peaks, nil
}

func encodeCompressed(v interface{}) ([]byte, error) {
	raw, err := json.Marshal(v)
	if err != nil {
		return nil, err
	}
	return snappy.Encode(nil, raw), nil
}

func decodeCompressed(blob []byte, v interface{}) error {
	if len(blob) == 0 {
		return nil
	}
	raw, err := snappy.Decode(nil, blob)
	if err != nil {
		return fmt.Errorf("failed to decompress blob: %w", err)
	}
	return json.Unmarshal(raw, v)
}

// encodeIonLists flattens a candidate's ion lists in kind order.
func encodeIonLists(lists map[core.IonKind][]core.TheoreticalIon) ([]byte, error) {
	var ions []storedIon
	for _, kind := range core.IonKinds {
		for _, ion := range lists[kind] {
			ions = append(ions, storedIon{Label: ion.Label, Mass: ion.MonoisotopicMass})
		}
	}
	return encodeCompressed(ions)
}

func decodeIonLists(blob []byte, c *core.TheoreticalCandidate) error {
	var ions []storedIon
	if err := decodeCompressed(blob, &ions); err != nil {
		return err
	}
	for _, ion := range ions {
		c.AddIon(core.NewTheoreticalIon(ion.Label, ion.Mass))
	}
	return nil
}

func encodeIonMatches(matches []core.IonMatch) ([]byte, error) {
	stored := make([]storedIonMatch, len(matches))
	for i, im := range matches {
		stored[i] = storedIonMatch{
			Label:        im.Label,
			PeakIndex:    im.PeakIndex,
			ObservedMass: im.ObservedMass,
			PPMError:     im.PPMError,
			Intensity:    im.Intensity,
		}
	}
	return encodeCompressed(stored)
}

func decodeIonMatches(blob []byte) ([]core.IonMatch, error) {
	var stored []storedIonMatch
	if err := decodeCompressed(blob, &stored); err != nil {
		return nil, err
	}
	out := make([]core.IonMatch, len(stored))
	for i, s := range stored {
		out[i] = core.IonMatch{
			Label:        s.Label,
			PeakIndex:    s.PeakIndex,
			ObservedMass: s.ObservedMass,
			PPMError:     s.PPMError,
			Intensity:    s.Intensity,
		}
	}
	match.Reclassify(out)
	return out, nil
}

// flattenByKind lists aggregated ion matches in kind order.
func flattenByKind(byKind map[core.IonKind][]core.IonMatch) []core.IonMatch {
	var out []core.IonMatch
	for _, kind := range core.IonKinds {
		out = append(out, byKind[kind]...)
	}
	return out
}

func joinInts(values []int) string {
	parts := make([]string, len(values))
	for i, v := range values {
		parts[i] = strconv.Itoa(v)
	}
	return strings.Join(parts, ",")
}

func splitInts(s string) ([]int, error) {
	if s == "" {
		return nil, nil
	}
	var out []int
	for _, part := range strings.Split(s, ",") {
		v, err := strconv.Atoi(strings.TrimSpace(part))
		if err != nil {
			return nil, fmt.Errorf("invalid integer list %q: %w", s, err)
		}
		out = append(out, v)
	}
	return out, nil
}

func joinIDs(ids []int64) string {
	parts := make([]string, len(ids))
	for i, v := range ids {
		parts[i] = strconv.FormatInt(v, 10)
	}
	return strings.Join(parts, ",")
}

func splitIDs(s string) ([]int64, error) {
	if s == "" {
		return nil, nil
	}
	var out []int64
	for _, part := range strings.Split(s, ",") {
		v, err := strconv.ParseInt(strings.TrimSpace(part), 10, 64)
		if err != nil {
			return nil, fmt.Errorf("invalid id list %q: %w", s, err)
		}
		out = append(out, v)
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out, nil
}

// placeholders returns "?, ?, ..." with n markers.
func placeholders(n int) string {
	if n <= 0 {
		return ""
	}
	return strings.Repeat("?, ", n-1) + "?"
}

func int64Args(ids []int64) []interface{} {
	args := make([]interface{}, len(ids))
	for i, id := range ids {
		args[i] = id
	}
	return args
}
