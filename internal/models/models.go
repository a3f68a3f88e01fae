package models

import (
	"encoding/json"
	"fmt"
	"math"
	"strconv"
	"strings"
)

// ScanType selects which backend payload shape a raw result follows
type ScanType string

const (
	ScanTypeBasic         ScanType = "basic"
	ScanTypeComprehensive ScanType = "comprehensive"
)

// ScanMode records how the image was acquired
type ScanMode string

const (
	ModeCamera ScanMode = "camera"
	ModeUpload ScanMode = "upload"
)

// RawResult is the backend payload as received. Basic scans fill Result;
// comprehensive scans fill the assessment, analysis and combined detection
// sections. Every section is optional.
type RawResult struct {
	ID                  string               `json:"id,omitempty"`
	ScanID              string               `json:"scan_id,omitempty"`
	Timestamp           string               `json:"timestamp,omitempty"`
	Result              *BasicResult         `json:"result,omitempty"`
	PesoScan            *PesoScan            `json:"peso_scan,omitempty"`
	CounterfeitAnalysis *CounterfeitAnalysis `json:"counterfeit_analysis,omitempty"`
	OverallAssessment   *OverallAssessment   `json:"overall_assessment,omitempty"`
	CombinedDetections  *CombinedDetections  `json:"combined_detections,omitempty"`
	ProcessingTime      float64              `json:"processing_time,omitempty"`
	Filename            string               `json:"filename,omitempty"`
	Message             string               `json:"message,omitempty"`
}

// BasicResult is the flat result object of the basic scan endpoints
type BasicResult struct {
	Authentic    bool             `json:"authentic"`
	Confidence   float64          `json:"confidence"`
	Denomination Denomination     `json:"denomination,omitempty"`
	Features     SecurityFeatures `json:"features"`
	SeriesYear   string           `json:"series_year,omitempty"`
	Detection    *RawDetection    `json:"detection,omitempty"`
	Detections   []RawDetection   `json:"detections,omitempty"`
}

// PesoScan wraps the peso detector's own scan response inside a
// comprehensive payload
type PesoScan struct {
	ID             string       `json:"id,omitempty"`
	Timestamp      string       `json:"timestamp,omitempty"`
	Result         *BasicResult `json:"result,omitempty"`
	ProcessingTime float64      `json:"processing_time,omitempty"`
}

// OverallAssessment is the summary block of a comprehensive scan
type OverallAssessment struct {
	PesoDetected           bool         `json:"peso_detected"`
	Denomination           Denomination `json:"denomination,omitempty"`
	AuthenticityScore      float64      `json:"authenticity_score"`
	CounterfeitProbability float64      `json:"counterfeit_probability"`
	Recommendation         string       `json:"recommendation,omitempty"`
	TotalFeaturesDetected  int          `json:"total_features_detected,omitempty"`
}

// CounterfeitAnalysis is the security model's output
type CounterfeitAnalysis struct {
	AuthenticityScore      float64          `json:"authenticity_score"`
	CounterfeitProbability float64          `json:"counterfeit_probability"`
	DetectedFeatures       []RawDetection   `json:"detected_features,omitempty"`
	SecurityAnalysis       SecurityFeatures `json:"security_analysis"`
	Recommendations        []string         `json:"recommendations,omitempty"`
}

// CombinedDetections merges peso and security model boxes in one block
type CombinedDetections struct {
	PesoFeatures     []RawDetection `json:"peso_features"`
	SecurityFeatures []RawDetection `json:"security_features"`
	TotalCount       int            `json:"total_count,omitempty"`
}

// RawDetection is one detector hit before normalization
type RawDetection struct {
	ClassName   string  `json:"class_name,omitempty"`
	FeatureName string  `json:"feature_name,omitempty"`
	Feature     string  `json:"feature,omitempty"`
	Confidence  float64 `json:"confidence"`
	BBox        BBox    `json:"bbox"`
	ModelSource string  `json:"model_source,omitempty"`
}

// SecurityFeatures holds the six security flags. The detector backends
// spell them either bare ("watermark") or with a "_present" suffix.
type SecurityFeatures struct {
	SecurityThread   bool `json:"security_thread"`
	Watermark        bool `json:"watermark"`
	Microprinting    bool `json:"microprinting"`
	ColorChangingInk bool `json:"color_changing_ink"`
	UVFeatures       bool `json:"uv_features"`
	RaisedPrinting   bool `json:"raised_printing"`
}

func (f *SecurityFeatures) UnmarshalJSON(data []byte) error {
	var fields map[string]json.RawMessage
	if err := json.Unmarshal(data, &fields); err != nil {
		// null or a non-object leaves every flag false
		return nil
	}

	flag := func(name string) bool {
		return truthy(fields[name]) || truthy(fields[name+"_present"])
	}

	f.SecurityThread = flag("security_thread")
	f.Watermark = flag("watermark")
	f.Microprinting = flag("microprinting")
	f.ColorChangingInk = flag("color_changing_ink")
	f.UVFeatures = flag("uv_features")
	f.RaisedPrinting = flag("raised_printing")
	return nil
}

// Count returns how many of the six flags are set
func (f SecurityFeatures) Count() int {
	n := 0
	for _, v := range []bool{f.SecurityThread, f.Watermark, f.Microprinting, f.ColorChangingInk, f.UVFeatures, f.RaisedPrinting} {
		if v {
			n++
		}
	}
	return n
}

func truthy(raw json.RawMessage) bool {
	var b bool
	if err := json.Unmarshal(raw, &b); err != nil {
		return false
	}
	return b
}

// Denomination keeps the denomination field as text. The backend sends it as
// a string, a number or null depending on the endpoint.
type Denomination string

func (d *Denomination) UnmarshalJSON(data []byte) error {
	trimmed := strings.TrimSpace(string(data))
	switch {
	case trimmed == "null" || trimmed == "":
		*d = ""
	case strings.HasPrefix(trimmed, `"`):
		var s string
		if err := json.Unmarshal(data, &s); err != nil {
			return fmt.Errorf("failed to decode denomination: %w", err)
		}
		*d = Denomination(s)
	default:
		var n json.Number
		if err := json.Unmarshal(data, &n); err != nil {
			*d = ""
			return nil
		}
		*d = Denomination(integralNumber(n))
	}
	return nil
}

// integralNumber renders 50.0 or 5e1 as "50"; other numbers keep their text
func integralNumber(n json.Number) string {
	if _, err := n.Int64(); err == nil {
		return n.String()
	}
	f, err := n.Float64()
	if err != nil || f < 0 || f != math.Trunc(f) || f > math.MaxInt32 {
		return n.String()
	}
	return strconv.FormatInt(int64(f), 10)
}

// Int parses the denomination as a plain non-negative integer string
func (d Denomination) Int() (int, bool) {
	s := string(d)
	if s == "" {
		return 0, false
	}
	for _, r := range s {
		if r < '0' || r > '9' {
			return 0, false
		}
	}
	v, err := strconv.Atoi(s)
	if err != nil {
		return 0, false
	}
	return v, true
}

// BBox accepts either a corner array [x1, y1, x2, y2] or an
// {x, y, width, height} object. Values holds the four corners in order and
// is nil when the box is unusable. Only the first four array positions
// count; a non-number among them makes the box unusable.
type BBox struct {
	Values []float64
}

func (b *BBox) UnmarshalJSON(data []byte) error {
	b.Values = nil

	var arr []any
	if err := json.Unmarshal(data, &arr); err == nil {
		if len(arr) < 4 {
			return nil
		}
		values := make([]float64, 0, 4)
		for _, v := range arr[:4] {
			f, ok := v.(float64)
			if !ok {
				return nil
			}
			values = append(values, f)
		}
		b.Values = values
		return nil
	}

	var obj struct {
		X      *float64 `json:"x"`
		Y      *float64 `json:"y"`
		Width  *float64 `json:"width"`
		Height *float64 `json:"height"`
	}
	if err := json.Unmarshal(data, &obj); err != nil {
		return nil
	}
	if obj.X == nil || obj.Y == nil || obj.Width == nil || obj.Height == nil {
		return nil
	}
	b.Values = []float64{*obj.X, *obj.Y, *obj.X + *obj.Width, *obj.Y + *obj.Height}
	return nil
}

func (b BBox) MarshalJSON() ([]byte, error) {
	if b.Values == nil {
		return []byte("null"), nil
	}
	return json.Marshal(b.Values)
}

// Corners returns the first four usable values
func (b BBox) Corners() ([4]float64, bool) {
	var c [4]float64
	if len(b.Values) < 4 {
		return c, false
	}
	copy(c[:], b.Values[:4])
	return c, true
}

// HistoryRecord is one saved scan. Result keeps the backend payload verbatim.
type HistoryRecord struct {
	ID             string          `json:"id"`
	Timestamp      string          `json:"timestamp"`
	Result         json.RawMessage `json:"result"`
	ImageURL       string          `json:"imageUrl,omitempty"`
	Mode           ScanMode        `json:"mode,omitempty"`
	ProcessingTime *float64        `json:"processingTime,omitempty"`
}
