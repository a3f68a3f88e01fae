package imaging

import (
	"bytes"
	"fmt"
	"image"
	_ "image/gif"
	"image/jpeg"
	_ "image/png"
	"log/slog"

	"github.com/rwcarlsen/goexif/exif"
	"golang.org/x/image/draw"
)

const jpegQuality = 85

// Orientation returns the EXIF orientation tag, 1 when absent or unreadable
func Orientation(data []byte) int {
	x, err := exif.Decode(bytes.NewReader(data))
	if err != nil {
		return 1
	}
	tag, err := x.Get(exif.Orientation)
	if err != nil {
		return 1
	}
	v, err := tag.Int(0)
	if err != nil {
		return 1
	}
	return v
}

// CorrectOrientation returns img transformed so that it displays upright for
// the given EXIF orientation value
func CorrectOrientation(img image.Image, orientation int) image.Image {
	if orientation < 2 || orientation > 8 {
		return img
	}

	b := img.Bounds()
	w, h := b.Dx(), b.Dy()

	dstW, dstH := w, h
	if orientation >= 5 {
		dstW, dstH = h, w
	}
	dst := image.NewRGBA(image.Rect(0, 0, dstW, dstH))

	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			var dx, dy int
			switch orientation {
			case 2: // mirror horizontal
				dx, dy = w-1-x, y
			case 3: // rotate 180
				dx, dy = w-1-x, h-1-y
			case 4: // mirror vertical
				dx, dy = x, h-1-y
			case 5: // transpose
				dx, dy = y, x
			case 6: // rotate 90 clockwise
				dx, dy = h-1-y, x
			case 7: // transverse
				dx, dy = h-1-y, w-1-x
			case 8: // rotate 90 counter-clockwise
				dx, dy = y, w-1-x
			}
			dst.Set(dx, dy, img.At(b.Min.X+x, b.Min.Y+y))
		}
	}
	return dst
}

// Prepare uprights and down-scales a JPEG whose longest side exceeds
// maxDimension. Anything else, including undecodable data, is returned as-is
// with changed=false.
func Prepare(img *Image, maxDimension int) (out *Image, changed bool, err error) {
	if maxDimension <= 0 || img.ContentType != "image/jpeg" {
		return img, false, nil
	}

	cfg, _, err := image.DecodeConfig(bytes.NewReader(img.Data))
	if err != nil {
		slog.Debug("Image not decodable, sending unchanged", "filename", img.Filename, "err", err)
		return img, false, nil
	}
	if cfg.Width <= maxDimension && cfg.Height <= maxDimension {
		return img, false, nil
	}

	decoded, _, err := image.Decode(bytes.NewReader(img.Data))
	if err != nil {
		slog.Debug("Image not decodable, sending unchanged", "filename", img.Filename, "err", err)
		return img, false, nil
	}

	orientation := Orientation(img.Data)
	if orientation != 1 {
		decoded = CorrectOrientation(decoded, orientation)
	}

	bounds := decoded.Bounds()
	width, height := bounds.Dx(), bounds.Dy()
	scale := float64(maxDimension) / float64(width)
	if s := float64(maxDimension) / float64(height); s < scale {
		scale = s
	}
	newWidth := max(1, min(maxDimension, int(float64(width)*scale)))
	newHeight := max(1, min(maxDimension, int(float64(height)*scale)))

	scaled := image.NewRGBA(image.Rect(0, 0, newWidth, newHeight))
	draw.ApproxBiLinear.Scale(scaled, scaled.Bounds(), decoded, bounds, draw.Over, nil)

	var buf bytes.Buffer
	if err := jpeg.Encode(&buf, scaled, &jpeg.Options{Quality: jpegQuality}); err != nil {
		return nil, false, fmt.Errorf("failed to encode resized image: %w", err)
	}

	slog.Info("Image resized before upload",
		"filename", img.Filename,
		"original", fmt.Sprintf("%dx%d", width, height),
		"resized", fmt.Sprintf("%dx%d", newWidth, newHeight),
		"orientation", orientation,
		"bytes_before", len(img.Data),
		"bytes_after", buf.Len())

	return &Image{
		Filename:    img.Filename,
		ContentType: "image/jpeg",
		Data:        buf.Bytes(),
	}, true, nil
}
