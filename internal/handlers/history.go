package handlers

import (
	"bytes"
	"encoding/json"
	"log/slog"
	"net/http"
	"strings"

	"github.com/pesoscan/pesoscan/internal/history"
	"github.com/pesoscan/pesoscan/internal/metrics"
	"github.com/pesoscan/pesoscan/internal/report"
)

// HandleHistory lists (GET), saves (POST) or clears (DELETE) the history
func (h *Handler) HandleHistory(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodGet:
		filter, err := history.ParseFilter(r.URL.Query().Get("filter"))
		if err != nil {
			h.writeError(w, err.Error(), http.StatusBadRequest)
			return
		}
		order, err := history.ParseSort(r.URL.Query().Get("sort"))
		if err != nil {
			h.writeError(w, err.Error(), http.StatusBadRequest)
			return
		}
		records, err := h.history.List(filter, order)
		if err != nil {
			h.writeError(w, "Failed to load history: "+err.Error(), http.StatusInternalServerError)
			return
		}
		h.writeJSON(w, records)
	case http.MethodPost:
		h.saveRecord(w, r)
	case http.MethodDelete:
		if err := h.history.Clear(); err != nil {
			h.writeError(w, err.Error(), http.StatusInternalServerError)
			return
		}
		metrics.HistoryOperationsTotal.WithLabelValues("clear").Inc()
		h.refreshHistoryGauge()
		h.writeJSON(w, map[string]any{"message": "History cleared"})
	default:
		h.writeError(w, "Method not allowed", http.StatusMethodNotAllowed)
	}
}

func (h *Handler) saveRecord(w http.ResponseWriter, r *http.Request) {
	var request struct {
		Result   json.RawMessage `json:"result"`
		ImageURL string          `json:"imageUrl"`
		Mode     string          `json:"mode"`
	}
	if err := json.NewDecoder(r.Body).Decode(&request); err != nil {
		h.writeError(w, "Invalid JSON: "+err.Error(), http.StatusBadRequest)
		return
	}

	trimmed := bytes.TrimSpace(request.Result)
	if len(trimmed) == 0 || trimmed[0] != '{' {
		h.writeError(w, "result must be a JSON object", http.StatusBadRequest)
		return
	}

	rec := history.NewRecord(trimmed, request.ImageURL, parseMode(request.Mode), h.now())
	if err := h.history.Add(rec); err != nil {
		h.writeError(w, "Failed to save to history: "+err.Error(), http.StatusInternalServerError)
		return
	}
	metrics.HistoryOperationsTotal.WithLabelValues("add").Inc()
	h.refreshHistoryGauge()

	h.writeJSONStatus(w, http.StatusCreated, rec)
}

// HandleHistoryDetail reads or deletes one record at /api/history/{id}
func (h *Handler) HandleHistoryDetail(w http.ResponseWriter, r *http.Request) {
	id := strings.TrimPrefix(r.URL.Path, "/api/history/")
	if id == "" {
		h.HandleHistory(w, r)
		return
	}

	switch r.Method {
	case http.MethodGet:
		rec, found, err := h.history.Get(id)
		if err != nil {
			h.writeError(w, "Failed to load history: "+err.Error(), http.StatusInternalServerError)
			return
		}
		if !found {
			h.writeError(w, "Record not found", http.StatusNotFound)
			return
		}
		h.writeJSON(w, rec)
	case http.MethodDelete:
		removed, err := h.history.Remove(id)
		if err != nil {
			h.writeError(w, err.Error(), http.StatusInternalServerError)
			return
		}
		if !removed {
			h.writeError(w, "Record not found", http.StatusNotFound)
			return
		}
		metrics.HistoryOperationsTotal.WithLabelValues("remove").Inc()
		h.refreshHistoryGauge()
		h.writeJSON(w, map[string]any{"message": "Record deleted", "id": id})
	default:
		h.writeError(w, "Method not allowed", http.StatusMethodNotAllowed)
	}
}

// HandleHistoryExport downloads the full history as json (default), csv or
// parquet
func (h *Handler) HandleHistoryExport(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		h.writeError(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	format := r.URL.Query().Get("format")
	if format == "" {
		format = "json"
	}
	filename := strings.TrimSuffix(history.ExportFilename(h.now()), ".json")

	var (
		buf         bytes.Buffer
		contentType string
	)
	switch format {
	case "json":
		data, err := h.history.Export()
		if err != nil {
			h.writeError(w, err.Error(), http.StatusInternalServerError)
			return
		}
		buf.Write(data)
		contentType = "application/json"
	case "csv":
		records, err := h.history.All()
		if err != nil {
			h.writeError(w, err.Error(), http.StatusInternalServerError)
			return
		}
		if err := report.WriteHistory(&buf, records, report.FormatCSV); err != nil {
			h.writeError(w, err.Error(), http.StatusInternalServerError)
			return
		}
		contentType = "text/csv"
	case "parquet":
		if err := h.history.ExportParquet(&buf); err != nil {
			h.writeError(w, err.Error(), http.StatusInternalServerError)
			return
		}
		contentType = "application/vnd.apache.parquet"
	default:
		h.writeError(w, "Unsupported format: "+format+" (supported: json, csv, parquet)", http.StatusBadRequest)
		return
	}
	metrics.HistoryOperationsTotal.WithLabelValues("export_" + format).Inc()

	w.Header().Set("Content-Type", contentType)
	w.Header().Set("Content-Disposition", `attachment; filename="`+filename+"."+format+`"`)
	if _, err := w.Write(buf.Bytes()); err != nil {
		slog.Error("Unable to write history export", "format", format, "err", err)
	}
}
