package report

import (
	"encoding/csv"
	"fmt"
	"io"
	"strconv"
	"text/tabwriter"

	"github.com/pesoscan/pesoscan/internal/history"
	"github.com/pesoscan/pesoscan/internal/models"
)

// WriteHistory renders a listing in text, json, yaml or csv. JSON output is
// the records themselves; the other formats use the flattened rows.
func WriteHistory(w io.Writer, records []models.HistoryRecord, format Format) error {
	switch format {
	case FormatJSON:
		if records == nil {
			records = []models.HistoryRecord{}
		}
		return writeJSON(w, records)
	case FormatYAML:
		return writeYAML(w, history.Flatten(records))
	case FormatCSV:
		return writeHistoryCSV(w, history.Flatten(records))
	case FormatText, "":
		return writeHistoryText(w, history.Flatten(records))
	default:
		return fmt.Errorf("unsupported format: %s", format)
	}
}

func writeHistoryText(w io.Writer, rows []history.Row) error {
	if len(rows) == 0 {
		_, err := fmt.Fprintln(w, "No scans in history.")
		return err
	}

	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, "ID\tTIMESTAMP\tMODE\tSTATUS\tCONFIDENCE\tDENOMINATION")
	for _, r := range rows {
		fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%.0f%%\t%s\n",
			r.ID, r.Timestamp, valueOr(r.Mode, "-"), r.Label, r.Confidence, rowDenomination(r))
	}
	if err := tw.Flush(); err != nil {
		return err
	}
	_, err := fmt.Fprintf(w, "\n%d scan(s)\n", len(rows))
	return err
}

func writeHistoryCSV(w io.Writer, rows []history.Row) error {
	writer := csv.NewWriter(w)

	header := []string{"ID", "Timestamp", "Mode", "Scan Type", "Label", "Authentic", "Confidence", "Denomination", "Processing Time", "Image URL"}
	if err := writer.Write(header); err != nil {
		return err
	}

	for _, r := range rows {
		denomination := ""
		if r.Denomination > 0 {
			denomination = strconv.Itoa(int(r.Denomination))
		}
		row := []string{
			r.ID,
			r.Timestamp,
			r.Mode,
			r.ScanType,
			r.Label,
			strconv.FormatBool(r.Authentic),
			fmt.Sprintf("%.2f", r.Confidence),
			denomination,
			fmt.Sprintf("%.3f", r.ProcessingTime),
			r.ImageURL,
		}
		if err := writer.Write(row); err != nil {
			return err
		}
	}

	writer.Flush()
	return writer.Error()
}

func rowDenomination(r history.Row) string {
	if r.Denomination <= 0 {
		return "Unknown"
	}
	return fmt.Sprintf("₱%d", r.Denomination)
}

func valueOr(s, fallback string) string {
	if s == "" {
		return fallback
	}
	return s
}
