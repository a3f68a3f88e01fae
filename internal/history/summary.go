package history

import (
	"encoding/json"

	"github.com/pesoscan/pesoscan/internal/classify"
	"github.com/pesoscan/pesoscan/internal/models"
)

// Summary is what filtering, sorting and tabular exports read from a record
type Summary struct {
	ScanType     models.ScanType
	Authentic    bool
	Confidence   float64
	Label        string
	Denomination *int
}

// Summarize inspects a stored result. Three shapes are understood: the flat
// classification object saved by older clients ({"authentic": ...}), a full
// basic payload ({"result": {...}}) and a comprehensive payload. Anything else
// summarizes as a non-authentic zero-confidence record.
func Summarize(result json.RawMessage) Summary {
	var probe map[string]json.RawMessage
	if err := json.Unmarshal(result, &probe); err != nil {
		return Summary{ScanType: models.ScanTypeBasic, Label: classify.LabelCounterfeit}
	}

	if _, flat := probe["authentic"]; flat {
		var basic models.BasicResult
		_ = json.Unmarshal(result, &basic)
		c := classify.Classify(&models.RawResult{Result: &basic}, models.ScanTypeBasic)
		return Summary{
			ScanType:     models.ScanTypeBasic,
			Authentic:    basic.Authentic,
			Confidence:   basic.Confidence,
			Label:        c.Label,
			Denomination: c.Denomination,
		}
	}

	var raw models.RawResult
	_ = json.Unmarshal(result, &raw)

	if raw.OverallAssessment != nil {
		c := classify.Classify(&raw, models.ScanTypeComprehensive)
		return Summary{
			ScanType:     models.ScanTypeComprehensive,
			Authentic:    c.IsAuthentic,
			Confidence:   raw.OverallAssessment.AuthenticityScore * 100,
			Label:        c.Label,
			Denomination: c.Denomination,
		}
	}

	c := classify.Classify(&raw, models.ScanTypeBasic)
	s := Summary{
		ScanType:     models.ScanTypeBasic,
		Authentic:    c.IsAuthentic,
		Label:        c.Label,
		Denomination: c.Denomination,
	}
	if raw.Result != nil {
		s.Confidence = raw.Result.Confidence
	}
	return s
}
