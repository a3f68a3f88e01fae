package handlers

import (
	"encoding/json"
	"log/slog"
	"net/http"
	"os"
	"time"

	"github.com/pesoscan/pesoscan/internal/history"
	"github.com/pesoscan/pesoscan/internal/imaging"
	"github.com/pesoscan/pesoscan/internal/metrics"
	"github.com/pesoscan/pesoscan/internal/scanner"
)

// Config wires a Handler to its collaborators. Empty directories fall back
// to "uploads" and "static" relative to the working directory.
type Config struct {
	History    *history.Store
	Scanner    *scanner.Client
	Fetcher    *imaging.Fetcher
	UploadsDir string
	StaticDir  string
}

type Handler struct {
	history    *history.Store
	scanner    *scanner.Client
	fetcher    *imaging.Fetcher
	uploadsDir string
	staticDir  string
	now        func() time.Time
}

func New(cfg Config) *Handler {
	h := &Handler{
		history:    cfg.History,
		scanner:    cfg.Scanner,
		fetcher:    cfg.Fetcher,
		uploadsDir: cfg.UploadsDir,
		staticDir:  cfg.StaticDir,
		now:        time.Now,
	}
	if h.fetcher == nil {
		h.fetcher = imaging.NewFetcher()
	}
	if h.uploadsDir == "" {
		h.uploadsDir = "uploads"
	}
	if h.staticDir == "" {
		h.staticDir = "static"
	}
	return h
}

// Response helpers
func (h *Handler) writeJSON(w http.ResponseWriter, data interface{}) {
	h.writeJSONStatus(w, http.StatusOK, data)
}

func (h *Handler) writeJSONStatus(w http.ResponseWriter, code int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	if err := json.NewEncoder(w).Encode(data); err != nil {
		slog.Error("Unable to encode JSON response", "err", err)
	}
}

func (h *Handler) writeError(w http.ResponseWriter, message string, code int) {
	if code >= http.StatusInternalServerError {
		slog.Error(message, "status", code)
	} else {
		slog.Warn(message, "status", code)
	}
	http.Error(w, message, code)
}

// File operation helpers
func (h *Handler) ensureUploadsDir() error {
	return os.MkdirAll(h.uploadsDir, 0755)
}

// refreshHistoryGauge keeps the records gauge in line with the store
func (h *Handler) refreshHistoryGauge() {
	records, err := h.history.All()
	if err != nil {
		slog.Warn("Unable to count history records", "err", err)
		return
	}
	metrics.HistoryRecords.Set(float64(len(records)))
}
