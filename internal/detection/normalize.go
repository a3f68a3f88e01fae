package detection

import (
	"sort"

	"github.com/pesoscan/pesoscan/internal/models"
)

// Source identifies which detector produced a box
type Source string

const (
	SourcePesoFeature     Source = "peso-feature"
	SourceSecurityFeature Source = "security-feature"
	SourceYOLO            Source = "yolo"
	SourceLegacySingle    Source = "legacy-single"
)

const (
	// MaxBoxes bounds how many overlays a result renders
	MaxBoxes = 8
	// MinExtent is the smallest width/height a box may have
	MinExtent = 0.01
)

// Box is a normalized detection ready for overlay rendering
type Box struct {
	Source     Source     `json:"source" yaml:"source"`
	Label      string     `json:"label" yaml:"label"`
	Confidence float64    `json:"confidence" yaml:"confidence"`
	BBox       [4]float64 `json:"bbox" yaml:"bbox"`
}

// Width of the box in unit-square coordinates
func (b Box) Width() float64 { return b.BBox[2] - b.BBox[0] }

// Height of the box in unit-square coordinates
func (b Box) Height() float64 { return b.BBox[3] - b.BBox[1] }

// Normalize converts raw detections from one source into clamped boxes.
// Detections without four usable bbox values are dropped. Input order is kept.
func Normalize(raw []models.RawDetection, source Source) []Box {
	boxes := make([]Box, 0, len(raw))
	for _, d := range raw {
		corners, ok := d.BBox.Corners()
		if !ok {
			continue
		}
		boxes = append(boxes, Box{
			Source:     source,
			Label:      label(d, source),
			Confidence: d.Confidence,
			BBox:       clampBox(corners),
		})
	}
	return boxes
}

// FromPayload picks exactly one detection tier from a raw result, normalizes
// it and returns the top MaxBoxes boxes by confidence.
//
// Tier order: combined peso+security features, the peso scanner's detection
// list, the basic result's detection list, then the legacy single detection.
func FromPayload(raw *models.RawResult) []Box {
	if raw == nil {
		return []Box{}
	}

	var boxes []Box
	switch {
	case raw.CombinedDetections != nil:
		boxes = append(boxes, Normalize(raw.CombinedDetections.PesoFeatures, SourcePesoFeature)...)
		boxes = append(boxes, Normalize(raw.CombinedDetections.SecurityFeatures, SourceSecurityFeature)...)
	case raw.PesoScan != nil && raw.PesoScan.Result != nil && len(raw.PesoScan.Result.Detections) > 0:
		boxes = Normalize(raw.PesoScan.Result.Detections, SourceYOLO)
	case raw.Result != nil && len(raw.Result.Detections) > 0:
		boxes = Normalize(raw.Result.Detections, SourceYOLO)
	case raw.Result != nil && raw.Result.Detection != nil:
		boxes = Normalize([]models.RawDetection{*raw.Result.Detection}, SourceLegacySingle)
	}

	return Rank(boxes)
}

// Rank sorts boxes by descending confidence, keeping source order for ties,
// and truncates to MaxBoxes.
func Rank(boxes []Box) []Box {
	ranked := make([]Box, len(boxes))
	copy(ranked, boxes)
	sort.SliceStable(ranked, func(i, j int) bool {
		return ranked[i].Confidence > ranked[j].Confidence
	})
	if len(ranked) > MaxBoxes {
		ranked = ranked[:MaxBoxes]
	}
	return ranked
}

func label(d models.RawDetection, source Source) string {
	switch source {
	case SourcePesoFeature:
		if d.FeatureName != "" {
			return d.FeatureName
		}
		if d.ClassName != "" {
			return "₱" + d.ClassName
		}
		return d.Feature
	case SourceSecurityFeature:
		if d.FeatureName != "" {
			return d.FeatureName
		}
		if d.Feature != "" {
			return d.Feature
		}
		return d.ClassName
	default:
		if d.FeatureName != "" {
			return d.FeatureName
		}
		if d.ClassName != "" {
			return d.ClassName
		}
		return d.Feature
	}
}

func clampBox(c [4]float64) [4]float64 {
	x1, x2 := clampAxis(c[0], c[2])
	y1, y2 := clampAxis(c[1], c[3])
	return [4]float64{x1, y1, x2, y2}
}

// clampAxis keeps lo < hi inside [0,1] with at least MinExtent between them
func clampAxis(lo, hi float64) (float64, float64) {
	lo = clamp01(lo)
	hi = clamp01(hi)
	// a box starting at the far edge has no room left; pull it back
	if lo > 1-MinExtent {
		lo = 1 - MinExtent
	}
	if hi < lo+MinExtent {
		hi = min(1, lo+MinExtent)
	}
	return lo, hi
}

func clamp01(v float64) float64 {
	if v != v { // NaN
		return 0
	}
	return max(0, min(1, v))
}
