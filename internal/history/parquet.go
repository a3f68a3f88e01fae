package history

import (
	"fmt"
	"io"
	"log/slog"

	"github.com/parquet-go/parquet-go"

	"github.com/pesoscan/pesoscan/internal/models"
)

// Row is the flattened form of a record used by tabular exports
type Row struct {
	ID             string  `json:"id" parquet:"id"`
	Timestamp      string  `json:"timestamp" parquet:"timestamp"`
	Mode           string  `json:"mode" parquet:"mode"`
	ScanType       string  `json:"scan_type" parquet:"scan_type"`
	Label          string  `json:"label" parquet:"label"`
	Authentic      bool    `json:"authentic" parquet:"authentic"`
	Confidence     float64 `json:"confidence" parquet:"confidence"`
	Denomination   int32   `json:"denomination" parquet:"denomination"` // 0 when unknown
	ProcessingTime float64 `json:"processing_time" parquet:"processing_time"`
	ImageURL       string  `json:"image_url" parquet:"image_url"`
}

// Rows flattens the full stored list, newest first
func (s *Store) Rows() ([]Row, error) {
	records, err := s.All()
	if err != nil {
		return nil, err
	}
	return Flatten(records), nil
}

// Flatten summarizes each record into a Row, keeping the given order
func Flatten(records []models.HistoryRecord) []Row {
	rows := make([]Row, 0, len(records))
	for _, r := range records {
		sum := Summarize(r.Result)
		row := Row{
			ID:         r.ID,
			Timestamp:  r.Timestamp,
			Mode:       string(r.Mode),
			ScanType:   string(sum.ScanType),
			Label:      sum.Label,
			Authentic:  sum.Authentic,
			Confidence: sum.Confidence,
			ImageURL:   r.ImageURL,
		}
		if sum.Denomination != nil {
			row.Denomination = int32(*sum.Denomination)
		}
		if r.ProcessingTime != nil {
			row.ProcessingTime = *r.ProcessingTime
		}
		rows = append(rows, row)
	}
	return rows
}

// ExportParquet writes the flattened history as a Parquet file
func (s *Store) ExportParquet(w io.Writer) error {
	rows, err := s.Rows()
	if err != nil {
		return err
	}

	writer := parquet.NewGenericWriter[Row](w)
	if _, err := writer.Write(rows); err != nil {
		writer.Close()
		return fmt.Errorf("failed to write parquet rows: %w", err)
	}
	if err := writer.Close(); err != nil {
		return fmt.Errorf("failed to finish parquet file: %w", err)
	}

	slog.Debug("History exported as parquet", "rows", len(rows))
	return nil
}
