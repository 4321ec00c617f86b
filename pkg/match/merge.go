package match

import (
	"math"

	"github.com/grailbio/base/log"

	"github.com/BostonUniversityCBMS/glycresoft-sqlalchemy-sub000/pkg/core"
)

// MergeIonMatches keeps, for each label, the match with the smallest
// absolute ppm error. Ties keep the first match seen. The result lists labels
// in the order they first appear, so merging a merged list is a no-op.
func MergeIonMatches(matches []core.IonMatch) []core.IonMatch {
	if len(matches) == 0 {
		return nil
	}
	best := make(map[string]int, len(matches))
	out := make([]core.IonMatch, 0, len(matches))
	for _, im := range matches {
		i, ok := best[im.Label]
		if !ok {
			best[im.Label] = len(out)
			out = append(out, im)
			continue
		}
		if math.Abs(im.PPMError) < math.Abs(out[i].PPMError) {
			out[i] = im
		}
	}
	return out
}

// MergeByKind merges matches and groups them by ion kind.
func MergeByKind(matches []core.IonMatch) map[core.IonKind][]core.IonMatch {
	out := make(map[core.IonKind][]core.IonMatch)
	for _, im := range MergeIonMatches(matches) {
		out[im.Kind] = append(out[im.Kind], im)
	}
	return out
}

// ClassifyLabel parses an ion label read back from storage. Unclassifiable
// labels are logged at debug level and treated as oxonium ions.
func ClassifyLabel(label string) core.IonLabelInfo {
	info, err := core.ParseIonLabel(label)
	if err != nil {
		log.Debug.Printf("%v; treating as oxonium", err)
	}
	return info
}

// Reclassify assigns Kind and Position to matches from their labels.
func Reclassify(matches []core.IonMatch) {
	for i := range matches {
		info := ClassifyLabel(matches[i].Label)
		matches[i].Kind = info.Kind
		matches[i].Position = info.Number
	}
}
