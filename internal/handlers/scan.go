package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strings"

	"github.com/pesoscan/pesoscan/internal/imaging"
	"github.com/pesoscan/pesoscan/internal/metrics"
	"github.com/pesoscan/pesoscan/internal/models"
	"github.com/pesoscan/pesoscan/internal/report"
	"github.com/pesoscan/pesoscan/internal/scanner"
)

// HandleScan accepts a bill image, either as multipart "file" or as JSON
// {"image_url": ...}, submits it to the backend and returns the raw payload
// next to its classified view.
func (h *Handler) HandleScan(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		h.writeError(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	var (
		img  *imaging.Image
		mode models.ScanMode
		ok   bool
	)
	if strings.Contains(r.Header.Get("Content-Type"), "application/json") {
		img, mode, ok = h.readURLImage(w, r)
	} else {
		img, mode, ok = h.readFileImage(w, r)
	}
	if !ok {
		return
	}

	resp, err := h.scanner.Submit(r.Context(), img)
	if err != nil {
		h.writeError(w, scanner.UserMessage(err), scanStatus(err))
		return
	}

	// only scans that produced a result keep their image
	saved, err := h.saveImage(img)
	if err != nil {
		h.writeError(w, err.Error(), http.StatusInternalServerError)
		return
	}

	scan := report.NewScan(&resp.Payload, models.ScanTypeComprehensive)
	metrics.VerdictsTotal.WithLabelValues(scan.View.StatusClass).Inc()

	h.writeJSON(w, map[string]any{
		"result":               resp.Body,
		"view":                 scan.View,
		"securityScorePercent": scan.SecurityScorePercent,
		"securityGrade":        scan.SecurityGrade,
		"detections":           scan.Detections,
		"imageUrl":             saved.URL,
		"image":                saved,
		"mode":                 mode,
		"scanType":             models.ScanTypeComprehensive,
	})
}

func (h *Handler) readURLImage(w http.ResponseWriter, r *http.Request) (*imaging.Image, models.ScanMode, bool) {
	var request struct {
		ImageURL string `json:"image_url"`
		Mode     string `json:"mode"`
	}
	if err := json.NewDecoder(r.Body).Decode(&request); err != nil {
		h.writeError(w, "Invalid JSON: "+err.Error(), http.StatusBadRequest)
		return nil, "", false
	}
	if request.ImageURL == "" {
		h.writeError(w, scanner.MessageNoImage, http.StatusBadRequest)
		return nil, "", false
	}

	img, err := h.fetcher.Load(r.Context(), request.ImageURL)
	if err != nil {
		h.writeError(w, "Failed to process image URL: "+err.Error(), http.StatusBadRequest)
		return nil, "", false
	}
	return img, parseMode(request.Mode), true
}

func (h *Handler) readFileImage(w http.ResponseWriter, r *http.Request) (*imaging.Image, models.ScanMode, bool) {
	file, header, err := r.FormFile("file")
	if err != nil {
		file, header, err = r.FormFile("files")
		if err != nil {
			h.writeError(w, scanner.MessageNoImage, http.StatusBadRequest)
			return nil, "", false
		}
	}
	defer file.Close()

	data, err := io.ReadAll(io.LimitReader(file, imaging.MaxImageBytes+1))
	if err != nil {
		h.writeError(w, "Failed to read file contents: "+err.Error(), http.StatusInternalServerError)
		return nil, "", false
	}

	img, err := imaging.New(header.Filename, data)
	switch {
	case errors.Is(err, imaging.ErrEmptyImage):
		h.writeError(w, scanner.MessageNoImage, http.StatusBadRequest)
		return nil, "", false
	case errors.Is(err, imaging.ErrImageTooLarge):
		h.writeError(w, "File too large (max 10MB)", http.StatusRequestEntityTooLarge)
		return nil, "", false
	case err != nil:
		h.writeError(w, err.Error(), http.StatusBadRequest)
		return nil, "", false
	}
	return img, parseMode(r.FormValue("mode")), true
}

// scanStatus maps the scan error taxonomy onto HTTP status codes
func scanStatus(err error) int {
	var serverErr *scanner.ServerError
	switch {
	case errors.Is(err, scanner.ErrNoImage):
		return http.StatusBadRequest
	case errors.Is(err, scanner.ErrScanInProgress):
		return http.StatusConflict
	case errors.Is(err, scanner.ErrTimeout):
		return http.StatusGatewayTimeout
	case errors.As(err, &serverErr), errors.Is(err, scanner.ErrUnreachable):
		return http.StatusBadGateway
	case errors.Is(err, context.Canceled):
		// client went away
		return 499
	default:
		return http.StatusInternalServerError
	}
}

func parseMode(s string) models.ScanMode {
	if models.ScanMode(s) == models.ModeCamera {
		return models.ModeCamera
	}
	return models.ModeUpload
}
