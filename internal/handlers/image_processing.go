package handlers

import (
	"bytes"
	"fmt"
	"image"
	_ "image/gif"
	_ "image/jpeg"
	_ "image/png"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"github.com/google/uuid"

	"github.com/pesoscan/pesoscan/internal/imaging"
)

// SavedImage describes an upload kept on disk for later display
type SavedImage struct {
	Filename string `json:"filename"`
	URL      string `json:"url"`
	Width    int    `json:"width,omitempty"`
	Height   int    `json:"height,omitempty"`
}

var extensions = map[string]string{
	"image/jpeg": ".jpg",
	"image/png":  ".png",
	"image/gif":  ".gif",
	"image/webp": ".webp",
	"image/bmp":  ".bmp",
}

// saveImage writes img under the uploads directory with a random name so the
// history can point back at it
func (h *Handler) saveImage(img *imaging.Image) (*SavedImage, error) {
	if err := h.ensureUploadsDir(); err != nil {
		return nil, fmt.Errorf("failed to create uploads directory: %w", err)
	}

	ext := strings.ToLower(filepath.Ext(img.Filename))
	if known, ok := extensions[img.ContentType]; ok {
		ext = known
	}
	if ext == "" {
		ext = ".bin"
	}

	filename := uuid.NewString() + ext
	if err := os.WriteFile(filepath.Join(h.uploadsDir, filename), img.Data, 0644); err != nil {
		return nil, fmt.Errorf("failed to save image: %w", err)
	}

	slog.Info("Image saved", "filename", filename, "original", img.Filename, "bytes", len(img.Data))

	width, height, err := imageDimensions(img.Data)
	if err != nil {
		slog.Debug("Failed to get image dimensions", "filename", filename, "err", err)
	}

	return &SavedImage{
		Filename: filename,
		URL:      "/static/uploads/" + filename,
		Width:    width,
		Height:   height,
	}, nil
}

func imageDimensions(data []byte) (int, int, error) {
	cfg, _, err := image.DecodeConfig(bytes.NewReader(data))
	if err != nil {
		return 0, 0, err
	}
	return cfg.Width, cfg.Height, nil
}
