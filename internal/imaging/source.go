package imaging

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"os"
	"path"
	"path/filepath"
	"strings"
	"time"
)

// MaxImageBytes caps how much image data is read from any source
const MaxImageBytes = 10 * 1024 * 1024

var (
	ErrEmptyImage    = errors.New("image is empty")
	ErrImageTooLarge = errors.New("image too large (max 10MB)")
)

// Image is a captured or uploaded bill photo ready to submit
type Image struct {
	Filename    string
	ContentType string
	Data        []byte
}

// New wraps raw bytes, sniffing the content type
func New(filename string, data []byte) (*Image, error) {
	if len(data) == 0 {
		return nil, ErrEmptyImage
	}
	if len(data) > MaxImageBytes {
		return nil, ErrImageTooLarge
	}
	if filename == "" {
		filename = "capture.jpg"
	}
	return &Image{
		Filename:    filename,
		ContentType: http.DetectContentType(data),
		Data:        data,
	}, nil
}

// IsImage reports whether the sniffed content type is an image
func (i *Image) IsImage() bool {
	return strings.HasPrefix(i.ContentType, "image/")
}

// Fetcher loads images from local paths or http(s) URLs
type Fetcher struct {
	HTTPClient *http.Client
}

func NewFetcher() *Fetcher {
	return &Fetcher{
		HTTPClient: &http.Client{
			Timeout: 30 * time.Second,
		},
	}
}

// Load reads an image from a file path or downloads it when source is a URL
func (f *Fetcher) Load(ctx context.Context, source string) (*Image, error) {
	if u, err := url.Parse(source); err == nil && (u.Scheme == "http" || u.Scheme == "https") {
		return f.download(ctx, u)
	}
	return f.readFile(source)
}

func (f *Fetcher) readFile(p string) (*Image, error) {
	file, err := os.Open(p)
	if err != nil {
		return nil, fmt.Errorf("failed to open image: %w", err)
	}
	defer file.Close()

	data, err := readLimited(file)
	if err != nil {
		return nil, err
	}

	slog.Debug("Image loaded", "path", p, "bytes", len(data))
	return New(filepath.Base(p), data)
}

func (f *Fetcher) download(ctx context.Context, u *url.URL) (*Image, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u.String(), nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}

	resp, err := f.HTTPClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("failed to download image: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("failed to download image: HTTP %d", resp.StatusCode)
	}

	data, err := readLimited(resp.Body)
	if err != nil {
		return nil, err
	}

	name := path.Base(u.Path)
	if name == "." || name == "/" {
		name = ""
	}

	slog.Debug("Image downloaded", "url", u.String(), "bytes", len(data))
	return New(name, data)
}

func readLimited(r io.Reader) ([]byte, error) {
	data, err := io.ReadAll(io.LimitReader(r, MaxImageBytes+1))
	if err != nil {
		return nil, fmt.Errorf("failed to read image data: %w", err)
	}
	if len(data) > MaxImageBytes {
		return nil, ErrImageTooLarge
	}
	return data, nil
}
