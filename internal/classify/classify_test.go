package classify

import (
	"encoding/json"
	"testing"

	"github.com/pesoscan/pesoscan/internal/models"
)

func decode(t *testing.T, data string) *models.RawResult {
	t.Helper()
	var raw models.RawResult
	if err := json.Unmarshal([]byte(data), &raw); err != nil {
		t.Fatalf("Failed to decode payload: %v", err)
	}
	return &raw
}

func comprehensive(score float64) *models.RawResult {
	return &models.RawResult{
		OverallAssessment: &models.OverallAssessment{
			AuthenticityScore:      score,
			CounterfeitProbability: 1 - score,
		},
	}
}

func TestClassifyComprehensiveBands(t *testing.T) {
	tests := []struct {
		score       float64
		label       string
		class       string
		isAuthentic bool
	}{
		{score: 1.0, label: LabelAuthentic, class: "authentic", isAuthentic: true},
		{score: 0.85, label: LabelAuthentic, class: "authentic", isAuthentic: true},
		{score: 0.75, label: LabelAuthentic, class: "authentic", isAuthentic: true},
		{score: 0.7499, label: LabelLikelyAuthentic, class: "likely-authentic", isAuthentic: true},
		{score: 0.55, label: LabelLikelyAuthentic, class: "likely-authentic", isAuthentic: true},
		{score: 0.5499, label: LabelSuspicious, class: "suspicious", isAuthentic: false},
		{score: 0.40, label: LabelSuspicious, class: "suspicious", isAuthentic: false},
		{score: 0.35, label: LabelSuspicious, class: "suspicious", isAuthentic: false},
		{score: 0.3499, label: LabelLikelyCounterfeit, class: "counterfeit", isAuthentic: false},
		{score: 0, label: LabelLikelyCounterfeit, class: "counterfeit", isAuthentic: false},
	}

	for _, tt := range tests {
		r := Classify(comprehensive(tt.score), models.ScanTypeComprehensive)
		if r.Label != tt.label {
			t.Errorf("score %.4f: expected label %q, got %q", tt.score, tt.label, r.Label)
		}
		if r.StatusClass != tt.class {
			t.Errorf("score %.4f: expected class %q, got %q", tt.score, tt.class, r.StatusClass)
		}
		if r.IsAuthentic != tt.isAuthentic {
			t.Errorf("score %.4f: expected isAuthentic=%v, got %v", tt.score, tt.isAuthentic, r.IsAuthentic)
		}
	}
}

func TestClassifyComprehensiveScenario(t *testing.T) {
	raw := decode(t, `{
		"overall_assessment": {
			"authenticity_score": 0.85,
			"counterfeit_probability": 0.15,
			"denomination": "100",
			"recommendation": "AUTHENTIC BILL - Safe to accept"
		},
		"counterfeit_analysis": {
			"security_analysis": {"watermark_present": true, "security_thread_present": true, "microprinting": true}
		},
		"processing_time": 1.25
	}`)

	r := Classify(raw, models.ScanTypeComprehensive)
	if r.Label != LabelAuthentic || !r.IsAuthentic {
		t.Errorf("Expected authentic result, got %+v", r)
	}
	if r.ConfidencePercent != 85 {
		t.Errorf("Expected confidence 85, got %d", r.ConfidencePercent)
	}
	if r.CounterfeitProbabilityPercent != 15 {
		t.Errorf("Expected counterfeit probability 15, got %d", r.CounterfeitProbabilityPercent)
	}
	if r.Denomination == nil || *r.Denomination != 100 {
		t.Errorf("Expected denomination 100, got %v", r.Denomination)
	}
	if r.SecurityFeatures.Count() != 3 {
		t.Errorf("Expected 3 security features, got %d", r.SecurityFeatures.Count())
	}
	if r.SecurityScorePercent() != 50 {
		t.Errorf("Expected security score 50, got %d", r.SecurityScorePercent())
	}
	if r.Recommendation == "" {
		t.Errorf("Expected recommendation to be carried over")
	}
	if r.ProcessingTimeSeconds != 1.25 {
		t.Errorf("Expected processing time 1.25, got %v", r.ProcessingTimeSeconds)
	}
}

func TestClassifySuspiciousScenario(t *testing.T) {
	r := Classify(comprehensive(0.40), models.ScanTypeComprehensive)
	if r.Label != LabelSuspicious {
		t.Errorf("Expected Suspicious, got %q", r.Label)
	}
	if r.IsAuthentic {
		t.Errorf("Expected isAuthentic=false for score 0.40")
	}
	if r.ConfidencePercent != 40 {
		t.Errorf("Expected confidence 40, got %d", r.ConfidencePercent)
	}
}

func TestClassifyBasic(t *testing.T) {
	raw := decode(t, `{
		"result": {
			"authentic": true,
			"confidence": 87.6,
			"denomination": "500",
			"features": {"security_thread": true, "watermark": false, "microprinting": true, "color_changing_ink": true, "uv_features": null}
		}
	}`)

	r := Classify(raw, models.ScanTypeBasic)
	if !r.IsAuthentic || r.Label != LabelAuthentic {
		t.Errorf("Expected authentic basic result, got %+v", r)
	}
	if r.ConfidencePercent != 88 {
		t.Errorf("Expected confidence 88, got %d", r.ConfidencePercent)
	}
	if r.CounterfeitProbabilityPercent != 12 {
		t.Errorf("Expected counterfeit probability 12, got %d", r.CounterfeitProbabilityPercent)
	}
	if r.Denomination == nil || *r.Denomination != 500 {
		t.Errorf("Expected denomination 500, got %v", r.Denomination)
	}
	if r.SecurityScorePercent() != 50 {
		t.Errorf("Expected security score 50, got %d", r.SecurityScorePercent())
	}

	raw.Result.Authentic = false
	if r := Classify(raw, models.ScanTypeBasic); r.Label != LabelCounterfeit || r.StatusClass != "counterfeit" {
		t.Errorf("Expected Counterfeit label, got %q/%q", r.Label, r.StatusClass)
	}
}

func TestClassifyMissingDataNeverFails(t *testing.T) {
	for _, scanType := range []models.ScanType{models.ScanTypeBasic, models.ScanTypeComprehensive} {
		for _, raw := range []*models.RawResult{nil, {}, decode(t, `{"result": null, "overall_assessment": null}`)} {
			r := Classify(raw, scanType)
			if r.IsAuthentic || r.ConfidencePercent != 0 || r.Denomination != nil || r.SecurityScorePercent() != 0 {
				t.Errorf("Expected zero-valued result for %s, got %+v", scanType, r)
			}
		}
	}
}

func TestSecurityScore(t *testing.T) {
	expected := []int{0, 17, 33, 50, 67, 83, 100}
	flags := []func(*models.SecurityFeatures){
		func(f *models.SecurityFeatures) { f.SecurityThread = true },
		func(f *models.SecurityFeatures) { f.Watermark = true },
		func(f *models.SecurityFeatures) { f.Microprinting = true },
		func(f *models.SecurityFeatures) { f.ColorChangingInk = true },
		func(f *models.SecurityFeatures) { f.UVFeatures = true },
		func(f *models.SecurityFeatures) { f.RaisedPrinting = true },
	}

	var r Result
	for n := 0; n <= 6; n++ {
		if n > 0 {
			flags[n-1](&r.SecurityFeatures)
		}
		if got := r.SecurityScorePercent(); got != expected[n] {
			t.Errorf("%d flags: expected score %d, got %d", n, expected[n], got)
		}
	}
	if r.SecurityGrade() != "excellent" {
		t.Errorf("Expected excellent grade, got %s", r.SecurityGrade())
	}
}

func TestDenominationPrecedence(t *testing.T) {
	tests := []struct {
		name     string
		scanType models.ScanType
		data     string
		expected int
	}{
		{
			name:     "explicit numeric field",
			scanType: models.ScanTypeComprehensive,
			data:     `{"overall_assessment":{"denomination":200},"peso_scan":{"result":{"denomination":"50"}}}`,
			expected: 200,
		},
		{
			name:     "explicit integral float field",
			scanType: models.ScanTypeComprehensive,
			data:     `{"overall_assessment":{"denomination":50.0},"peso_scan":{"result":{"denomination":"20"}}}`,
			expected: 50,
		},
		{
			name:     "explicit fractional field falls through to peso scan",
			scanType: models.ScanTypeComprehensive,
			data:     `{"overall_assessment":{"denomination":50.5},"peso_scan":{"result":{"denomination":"20"}}}`,
			expected: 20,
		},
		{
			name:     "explicit non numeric field falls through to peso scan",
			scanType: models.ScanTypeComprehensive,
			data:     `{"overall_assessment":{"denomination":"1000_peso"},"peso_scan":{"result":{"denomination":"50"}}}`,
			expected: 50,
		},
		{
			name:     "peso scan value outside the set falls through to detections",
			scanType: models.ScanTypeComprehensive,
			data:     `{"peso_scan":{"result":{"denomination":"3","detections":[{"class_name":"20_peso","confidence":0.5,"bbox":[0,0,1,1]}]}}}`,
			expected: 20,
		},
		{
			name:     "combined peso features",
			scanType: models.ScanTypeComprehensive,
			data:     `{"combined_detections":{"peso_features":[{"feature_name":"Front 7 bill","confidence":0.9},{"feature_name":"500 peso","confidence":0.9}]}}`,
			expected: 500,
		},
		{
			name:     "label substring in basic detections",
			scanType: models.ScanTypeBasic,
			data:     `{"result":{"detections":[{"class_name":"1000 Peso Bill","confidence":0.9,"bbox":[0,0,1,1]}]}}`,
			expected: 1000,
		},
		{
			name:     "feature name used when class name is empty",
			scanType: models.ScanTypeBasic,
			data:     `{"result":{"detections":[{"feature_name":"peso_10","confidence":0.9}]}}`,
			expected: 10,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r := Classify(decode(t, tt.data), tt.scanType)
			if r.Denomination == nil {
				t.Fatalf("Expected denomination %d, got nil", tt.expected)
			}
			if *r.Denomination != tt.expected {
				t.Errorf("Expected denomination %d, got %d", tt.expected, *r.Denomination)
			}
		})
	}
}

func TestDenominationAbsent(t *testing.T) {
	raw := decode(t, `{"result":{"detections":[{"class_name":"watermark","confidence":0.9},{"class_name":"serial 12345","confidence":0.8}]}}`)
	if r := Classify(raw, models.ScanTypeBasic); r.Denomination != nil {
		t.Errorf("Expected no denomination, got %d", *r.Denomination)
	}
}

func TestFromLabel(t *testing.T) {
	tests := []struct {
		label string
		value int
		ok    bool
	}{
		{"1000 Peso Bill", 1000, true},
		{"₱50", 50, true},
		{"peso-5-front", 5, true},
		{"2024 series 100", 0, false},
		{"no digits", 0, false},
		{"", 0, false},
	}

	for _, tt := range tests {
		v, ok := FromLabel(tt.label)
		if v != tt.value || ok != tt.ok {
			t.Errorf("FromLabel(%q) = %d, %v; expected %d, %v", tt.label, v, ok, tt.value, tt.ok)
		}
	}
}
