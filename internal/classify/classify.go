package classify

import (
	"math"
	"regexp"
	"strconv"
	"strings"

	"github.com/pesoscan/pesoscan/internal/models"
)

// Status labels shown to the user
const (
	LabelAuthentic         = "Authentic"
	LabelLikelyAuthentic   = "Likely Authentic"
	LabelSuspicious        = "Suspicious"
	LabelLikelyCounterfeit = "Likely Counterfeit"
	LabelCounterfeit       = "Counterfeit"
)

// Score thresholds for comprehensive scans. AuthenticCutoff drives the
// boolean and is deliberately independent of the label bands.
const (
	AuthenticBand       = 0.75
	LikelyAuthenticBand = 0.55
	SuspiciousBand      = 0.35
	AuthenticCutoff     = 0.55
)

// Denominations lists the peso bill values the scanner recognises
var Denominations = []int{1, 5, 10, 20, 50, 100, 200, 500, 1000}

var firstNumber = regexp.MustCompile(`\d+`)

// Result is the classified view of a raw backend payload
type Result struct {
	ScanType                      models.ScanType         `json:"scanType" yaml:"scantype"`
	IsAuthentic                   bool                    `json:"isAuthentic" yaml:"isauthentic"`
	Label                         string                  `json:"label" yaml:"label"`
	StatusClass                   string                  `json:"statusClass" yaml:"statusclass"`
	ConfidencePercent             int                     `json:"confidencePercent" yaml:"confidencepercent"`
	CounterfeitProbabilityPercent int                     `json:"counterfeitProbabilityPercent" yaml:"counterfeitprobabilitypercent"`
	Denomination                  *int                    `json:"denomination" yaml:"denomination"`
	SecurityFeatures              models.SecurityFeatures `json:"securityFeatures" yaml:"securityfeatures"`
	Recommendation                string                  `json:"recommendation,omitempty" yaml:"recommendation,omitempty"`
	ProcessingTimeSeconds         float64                 `json:"processingTimeSeconds" yaml:"processingtimeseconds"`
}

// SecurityScorePercent is derived from SecurityFeatures on every call
func (r Result) SecurityScorePercent() int {
	return int(math.Round(100 * float64(r.SecurityFeatures.Count()) / 6))
}

// SecurityGrade buckets the security score for display
func (r Result) SecurityGrade() string {
	score := r.SecurityScorePercent()
	switch {
	case score >= 80:
		return "excellent"
	case score >= 60:
		return "good"
	case score >= 40:
		return "fair"
	default:
		return "poor"
	}
}

// Classify derives display fields from a raw payload. It never fails: missing
// sections degrade to zero values.
func Classify(raw *models.RawResult, scanType models.ScanType) Result {
	if raw == nil {
		raw = &models.RawResult{}
	}

	var r Result
	switch scanType {
	case models.ScanTypeComprehensive:
		r = decodeComprehensive(raw)
	default:
		r = decodeBasic(raw)
	}

	r.Denomination = extractDenomination(raw, scanType)
	r.ProcessingTimeSeconds = raw.ProcessingTime
	return r
}

func decodeBasic(raw *models.RawResult) Result {
	basic := raw.Result
	if basic == nil {
		basic = &models.BasicResult{}
	}

	confidence := int(math.Round(basic.Confidence))
	r := Result{
		ScanType:                      models.ScanTypeBasic,
		IsAuthentic:                   basic.Authentic,
		ConfidencePercent:             confidence,
		CounterfeitProbabilityPercent: 100 - confidence,
		SecurityFeatures:              basic.Features,
	}
	if basic.Authentic {
		r.Label, r.StatusClass = LabelAuthentic, "authentic"
	} else {
		r.Label, r.StatusClass = LabelCounterfeit, "counterfeit"
	}
	return r
}

func decodeComprehensive(raw *models.RawResult) Result {
	assessment := raw.OverallAssessment
	if assessment == nil {
		assessment = &models.OverallAssessment{}
	}

	score := assessment.AuthenticityScore
	r := Result{
		ScanType:                      models.ScanTypeComprehensive,
		IsAuthentic:                   score >= AuthenticCutoff,
		ConfidencePercent:             int(math.Round(score * 100)),
		CounterfeitProbabilityPercent: int(math.Round(assessment.CounterfeitProbability * 100)),
		Recommendation:                assessment.Recommendation,
	}
	r.Label, r.StatusClass = Band(score)
	if raw.CounterfeitAnalysis != nil {
		r.SecurityFeatures = raw.CounterfeitAnalysis.SecurityAnalysis
	}
	return r
}

// Band maps an authenticity score to its label and styling class
func Band(score float64) (label, class string) {
	switch {
	case score >= AuthenticBand:
		return LabelAuthentic, "authentic"
	case score >= LikelyAuthenticBand:
		return LabelLikelyAuthentic, "likely-authentic"
	case score >= SuspiciousBand:
		return LabelSuspicious, "suspicious"
	default:
		return LabelLikelyCounterfeit, "counterfeit"
	}
}

// extractDenomination walks the sources in precedence order and stops at the
// first hit
func extractDenomination(raw *models.RawResult, scanType models.ScanType) *int {
	var official models.Denomination
	if scanType == models.ScanTypeComprehensive {
		if raw.OverallAssessment != nil {
			official = raw.OverallAssessment.Denomination
		}
	} else if raw.Result != nil {
		official = raw.Result.Denomination
	}
	if v, ok := official.Int(); ok {
		return &v
	}

	if raw.PesoScan != nil && raw.PesoScan.Result != nil {
		if v, ok := leadingInt(string(raw.PesoScan.Result.Denomination)); ok && IsDenomination(v) {
			return &v
		}
		for _, d := range raw.PesoScan.Result.Detections {
			if v, ok := FromLabel(firstNonEmpty(d.ClassName, d.FeatureName)); ok {
				return &v
			}
		}
	}

	if raw.CombinedDetections != nil {
		for _, d := range raw.CombinedDetections.PesoFeatures {
			if v, ok := FromLabel(firstNonEmpty(d.FeatureName, d.Feature)); ok {
				return &v
			}
		}
	}

	if raw.Result != nil {
		for _, d := range raw.Result.Detections {
			if v, ok := FromLabel(firstNonEmpty(d.ClassName, d.FeatureName)); ok {
				return &v
			}
		}
	}

	return nil
}

// FromLabel reads the first integer embedded in a label and accepts it only
// when it is a known denomination
func FromLabel(label string) (int, bool) {
	match := firstNumber.FindString(label)
	if match == "" {
		return 0, false
	}
	v, err := strconv.Atoi(match)
	if err != nil || !IsDenomination(v) {
		return 0, false
	}
	return v, true
}

// IsDenomination reports whether v is a recognised bill value
func IsDenomination(v int) bool {
	for _, d := range Denominations {
		if d == v {
			return true
		}
	}
	return false
}

// leadingInt parses the digits at the start of s, ignoring whatever follows
func leadingInt(s string) (int, bool) {
	s = strings.TrimSpace(s)
	end := 0
	for end < len(s) && s[end] >= '0' && s[end] <= '9' {
		end++
	}
	if end == 0 {
		return 0, false
	}
	v, err := strconv.Atoi(s[:end])
	if err != nil {
		return 0, false
	}
	return v, true
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v != "" {
			return v
		}
	}
	return ""
}
