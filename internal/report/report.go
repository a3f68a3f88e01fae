package report

import (
	"encoding/json"
	"fmt"
	"io"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/pesoscan/pesoscan/internal/classify"
	"github.com/pesoscan/pesoscan/internal/detection"
	"github.com/pesoscan/pesoscan/internal/models"
)

type Format string

const (
	FormatText Format = "text"
	FormatJSON Format = "json"
	FormatYAML Format = "yaml"
	FormatCSV  Format = "csv"
)

// ParseFormat validates s against the formats a command supports
func ParseFormat(s string, allowed ...Format) (Format, error) {
	names := make([]string, len(allowed))
	for i, f := range allowed {
		if string(f) == s {
			return f, nil
		}
		names[i] = string(f)
	}
	return "", fmt.Errorf("unsupported format: %s (supported: %s)", s, strings.Join(names, ", "))
}

// Scan is the rendered outcome of one scan: the classified view plus the
// overlay boxes
type Scan struct {
	ScanID               string          `json:"scanId,omitempty" yaml:"scanid,omitempty"`
	Timestamp            string          `json:"timestamp,omitempty" yaml:"timestamp,omitempty"`
	Filename             string          `json:"filename,omitempty" yaml:"filename,omitempty"`
	View                 classify.Result `json:"view" yaml:"view"`
	SecurityScorePercent int             `json:"securityScorePercent" yaml:"securityscorepercent"`
	SecurityGrade        string          `json:"securityGrade" yaml:"securitygrade"`
	Detections           []detection.Box `json:"detections" yaml:"detections"`
	Message              string          `json:"message,omitempty" yaml:"message,omitempty"`
}

// NewScan classifies raw and prepares its overlay boxes
func NewScan(raw *models.RawResult, scanType models.ScanType) Scan {
	if raw == nil {
		raw = &models.RawResult{}
	}
	view := classify.Classify(raw, scanType)
	boxes := detection.FromPayload(raw)
	if boxes == nil {
		boxes = []detection.Box{}
	}
	return Scan{
		ScanID:               firstNonEmpty(raw.ScanID, raw.ID),
		Timestamp:            raw.Timestamp,
		Filename:             raw.Filename,
		View:                 view,
		SecurityScorePercent: view.SecurityScorePercent(),
		SecurityGrade:        view.SecurityGrade(),
		Detections:           boxes,
		Message:              raw.Message,
	}
}

// WriteScan renders s as text, json or yaml
func WriteScan(w io.Writer, s Scan, format Format) error {
	switch format {
	case FormatJSON:
		return writeJSON(w, s)
	case FormatYAML:
		return writeYAML(w, s)
	case FormatText, "":
		return writeScanText(w, s)
	default:
		return fmt.Errorf("unsupported format: %s", format)
	}
}

var featureNames = []struct {
	name string
	get  func(models.SecurityFeatures) bool
}{
	{"Security thread", func(f models.SecurityFeatures) bool { return f.SecurityThread }},
	{"Watermark", func(f models.SecurityFeatures) bool { return f.Watermark }},
	{"Microprinting", func(f models.SecurityFeatures) bool { return f.Microprinting }},
	{"Color-changing ink", func(f models.SecurityFeatures) bool { return f.ColorChangingInk }},
	{"UV features", func(f models.SecurityFeatures) bool { return f.UVFeatures }},
	{"Raised printing", func(f models.SecurityFeatures) bool { return f.RaisedPrinting }},
}

func writeScanText(w io.Writer, s Scan) error {
	v := s.View
	p := &printer{w: w}

	p.println("========================================")
	p.printf("PesoScan Result (%s scan)\n", v.ScanType)
	p.println("========================================")
	if s.ScanID != "" {
		p.printf("Scan ID:        %s\n", s.ScanID)
	}
	if s.Filename != "" {
		p.printf("File:           %s\n", s.Filename)
	}
	p.printf("Status:         %s\n", v.Label)
	p.printf("Authentic:      %s\n", yesNo(v.IsAuthentic))
	p.printf("Confidence:     %d%%\n", v.ConfidencePercent)
	p.printf("Counterfeit:    %d%%\n", v.CounterfeitProbabilityPercent)
	p.printf("Denomination:   %s\n", Denomination(v.Denomination))
	p.printf("Security score: %d%% (%s)\n", s.SecurityScorePercent, s.SecurityGrade)
	for _, f := range featureNames {
		mark := "✗"
		if f.get(v.SecurityFeatures) {
			mark = "✓"
		}
		p.printf("  %s %s\n", mark, f.name)
	}
	if v.Recommendation != "" {
		p.printf("Recommendation: %s\n", v.Recommendation)
	}
	if v.ProcessingTimeSeconds > 0 {
		p.printf("Processing:     %.2fs\n", v.ProcessingTimeSeconds)
	}

	p.printf("\nDetections (%d):\n", len(s.Detections))
	for i, b := range s.Detections {
		p.printf("  [%d] %-24s %3.0f%%  %-16s (%.3f, %.3f)-(%.3f, %.3f)\n",
			i+1, truncate(b.Label, 24), b.Confidence*100, b.Source,
			b.BBox[0], b.BBox[1], b.BBox[2], b.BBox[3])
	}
	return p.err
}

// Denomination formats an optional bill value for display
func Denomination(d *int) string {
	if d == nil {
		return "Unknown"
	}
	return fmt.Sprintf("₱%d", *d)
}

func writeJSON(w io.Writer, v any) error {
	encoder := json.NewEncoder(w)
	encoder.SetIndent("", "  ")
	return encoder.Encode(v)
}

func writeYAML(w io.Writer, v any) error {
	encoder := yaml.NewEncoder(w)
	encoder.SetIndent(2)
	if err := encoder.Encode(v); err != nil {
		return fmt.Errorf("failed to encode yaml: %w", err)
	}
	return encoder.Close()
}

// printer remembers the first write error so text renderers can stay linear
type printer struct {
	w   io.Writer
	err error
}

func (p *printer) printf(format string, args ...any) {
	if p.err != nil {
		return
	}
	_, p.err = fmt.Fprintf(p.w, format, args...)
}

func (p *printer) println(s string) {
	p.printf("%s\n", s)
}

func yesNo(b bool) string {
	if b {
		return "yes"
	}
	return "no"
}

func truncate(s string, maxLen int) string {
	r := []rune(s)
	if len(r) <= maxLen {
		return s
	}
	return string(r[:maxLen-3]) + "..."
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v != "" {
			return v
		}
	}
	return ""
}
