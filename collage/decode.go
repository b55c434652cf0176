package collage

import (
	"bytes"
	"fmt"
	"image"
	_ "image/gif"
	_ "image/jpeg"
	_ "image/png"

	_ "golang.org/x/image/webp"
)

// DecodeResult is the outcome of decoding one input blob.
// Exactly one of Image and Err is set.
type DecodeResult struct {
	Index  int
	Image  image.Image
	Format string
	Err    error
}

func (r DecodeResult) OK() bool {
	return r.Err == nil && r.Image != nil
}

// DecodeAll decodes every blob in order. Failures are reported per item.
// Sources over opts.MaxSourcePixels, or whose slot at opts.Width would exceed
// opts.MaxCanvasPixels, are rejected from their header alone.
func DecodeAll(blobs [][]byte, opts Options) []DecodeResult {
	out := make([]DecodeResult, 0, len(blobs))
	for i, raw := range blobs {
		img, format, err := decodeOne(raw, opts)
		if err != nil {
			out = append(out, DecodeResult{Index: i, Err: &ImageDecodeError{Index: i, Err: err}})
			continue
		}
		out = append(out, DecodeResult{Index: i, Image: img, Format: format})
	}
	return out
}

func decodeOne(raw []byte, opts Options) (image.Image, string, error) {
	if len(raw) == 0 {
		return nil, "", fmt.Errorf("empty input")
	}
	cfg, _, err := image.DecodeConfig(bytes.NewReader(raw))
	if err != nil {
		return nil, "", err
	}
	if cfg.Width <= 0 || cfg.Height <= 0 {
		return nil, "", fmt.Errorf("invalid dimensions %dx%d", cfg.Width, cfg.Height)
	}
	if opts.MaxSourcePixels > 0 && int64(cfg.Width)*int64(cfg.Height) > opts.MaxSourcePixels {
		return nil, "", fmt.Errorf("image too large (%dx%d > %d pixels)", cfg.Width, cfg.Height, opts.MaxSourcePixels)
	}
	if opts.MaxCanvasPixels > 0 && opts.Width > 0 {
		h := ScaledHeight(cfg.Width, cfg.Height, opts.Width)
		if slot := int64(opts.Width+2*opts.Margin) * int64(h+2*opts.Margin); slot > opts.MaxCanvasPixels {
			return nil, "", fmt.Errorf("image aspect ratio too extreme (%dx%d scales to %dx%d, canvas limit %d pixels)", cfg.Width, cfg.Height, opts.Width, h, opts.MaxCanvasPixels)
		}
	}
	img, format, err := image.Decode(bytes.NewReader(raw))
	if err != nil {
		return nil, "", err
	}
	b := img.Bounds()
	if b.Dx() <= 0 || b.Dy() <= 0 {
		return nil, "", fmt.Errorf("invalid dimensions %dx%d", b.Dx(), b.Dy())
	}
	return img, format, nil
}

// Decoded filters the successful results, keeping input order.
func Decoded(results []DecodeResult) []image.Image {
	out := make([]image.Image, 0, len(results))
	for _, r := range results {
		if r.OK() {
			out = append(out, r.Image)
		}
	}
	return out
}

// Failed filters the failed results, keeping input order.
func Failed(results []DecodeResult) []DecodeResult {
	var out []DecodeResult
	for _, r := range results {
		if !r.OK() {
			out = append(out, r)
		}
	}
	return out
}
