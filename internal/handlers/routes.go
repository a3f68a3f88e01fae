package handlers

import (
	"log/slog"
	"net/http"

	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Routes registers every endpoint of the serve command
func (h *Handler) Routes() *http.ServeMux {
	mux := http.NewServeMux()
	mux.HandleFunc("/api/scan", h.HandleScan)
	mux.HandleFunc("/api/history", h.HandleHistory)
	mux.HandleFunc("/api/history/export", h.HandleHistoryExport)
	mux.HandleFunc("/api/history/", h.HandleHistoryDetail)
	mux.Handle("/metrics", promhttp.Handler())
	mux.HandleFunc("/healthcheck", func(w http.ResponseWriter, r *http.Request) {
		if _, err := w.Write([]byte("OK")); err != nil {
			slog.Error("Unable to write healthcheck", "err", err)
		}
	})
	mux.HandleFunc("/", h.HandleStatic)
	return mux
}
