package report

import (
	"encoding/json"
	"fmt"
	"io"

	"github.com/pesoscan/pesoscan/internal/history"
	"github.com/pesoscan/pesoscan/internal/models"
	"github.com/pesoscan/pesoscan/internal/scanner"
)

// Record is a saved history entry re-rendered for display
type Record struct {
	ID             string   `json:"id" yaml:"id"`
	Timestamp      string   `json:"timestamp" yaml:"timestamp"`
	Mode           string   `json:"mode" yaml:"mode"`
	ImageURL       string   `json:"imageUrl,omitempty" yaml:"imageurl,omitempty"`
	ProcessingTime *float64 `json:"processingTime,omitempty" yaml:"processingtime,omitempty"`
	Scan           Scan     `json:"scan" yaml:"scan"`
}

// NewRecord classifies the stored result again with the scan type it was
// saved under
func NewRecord(rec models.HistoryRecord) (Record, error) {
	var raw models.RawResult
	if err := json.Unmarshal(rec.Result, &raw); err != nil {
		return Record{}, fmt.Errorf("failed to decode stored result %s: %w", rec.ID, err)
	}
	summary := history.Summarize(rec.Result)
	return Record{
		ID:             rec.ID,
		Timestamp:      rec.Timestamp,
		Mode:           string(rec.Mode),
		ImageURL:       rec.ImageURL,
		ProcessingTime: rec.ProcessingTime,
		Scan:           NewScan(&raw, summary.ScanType),
	}, nil
}

func WriteRecord(w io.Writer, r Record, format Format) error {
	switch format {
	case FormatJSON:
		return writeJSON(w, r)
	case FormatYAML:
		return writeYAML(w, r)
	case FormatText, "":
		p := &printer{w: w}
		p.printf("Record:     %s\n", r.ID)
		p.printf("Saved:      %s\n", r.Timestamp)
		p.printf("Mode:       %s\n", valueOr(r.Mode, "-"))
		if r.ImageURL != "" {
			p.printf("Image:      %s\n", r.ImageURL)
		}
		if r.ProcessingTime != nil {
			p.printf("Processing: %.3fs\n", *r.ProcessingTime)
		}
		p.println("")
		if p.err != nil {
			return p.err
		}
		return writeScanText(w, r.Scan)
	default:
		return fmt.Errorf("unsupported format: %s", format)
	}
}

// WriteHealth renders the backend health answer
func WriteHealth(w io.Writer, h *scanner.Health, format Format) error {
	switch format {
	case FormatJSON:
		return writeJSON(w, h)
	case FormatYAML:
		return writeYAML(w, h)
	case FormatText, "":
		p := &printer{w: w}
		p.printf("Status:  %s\n", h.Status)
		if h.Error != "" {
			p.printf("Error:   %s\n", h.Error)
		}
		if h.Version != "" {
			p.printf("Version: %s\n", h.Version)
		}
		if h.Uptime > 0 {
			p.printf("Uptime:  %.0fs\n", h.Uptime)
		}
		for _, model := range []string{"yolo", "cnn"} {
			if loaded, ok := h.ModelsLoaded[model]; ok {
				p.printf("Model %-4s loaded: %s\n", model, yesNo(loaded))
			}
		}
		return p.err
	default:
		return fmt.Errorf("unsupported format: %s", format)
	}
}
