package collage

import (
	"fmt"
	"image/color"
	"strconv"
	"strings"

	"golang.org/x/image/draw"
)

const (
	DefaultWidth           = 700
	DefaultMargin          = 16
	DefaultQuality         = 85
	DefaultResample        = "catmullrom"
	DefaultMaxSourcePixels = int64(50 * 1000 * 1000)
	DefaultMaxCanvasPixels = int64(40 * 1000 * 1000)
)

// Options controls collage geometry and encoding.
type Options struct {
	// Width every photo is resized to, before margins.
	Width int
	// Margin is the gap around and between photos.
	Margin int
	// Quality is the JPEG quality (1..100).
	Quality    int
	Background color.Color
	// Resample picks the scaling kernel: catmullrom|bilinear|approxbilinear|nearest.
	Resample string
	// MaxSourcePixels rejects oversized sources before a full decode. <=0 disables the guard.
	MaxSourcePixels int64
	// MaxCanvasPixels caps the output canvas. A photo whose scaled slot alone
	// exceeds it is skipped; <=0 disables the cap.
	MaxCanvasPixels int64
}

func DefaultOptions() Options {
	return Options{
		Width:           DefaultWidth,
		Margin:          DefaultMargin,
		Quality:         DefaultQuality,
		Background:      color.White,
		Resample:        DefaultResample,
		MaxSourcePixels: DefaultMaxSourcePixels,
		MaxCanvasPixels: DefaultMaxCanvasPixels,
	}
}

func (o Options) Validate() error {
	if o.Width <= 0 {
		return fmt.Errorf("%w: width must be > 0 (got %d)", ErrInvalidOptions, o.Width)
	}
	if o.Margin < 0 {
		return fmt.Errorf("%w: margin must be >= 0 (got %d)", ErrInvalidOptions, o.Margin)
	}
	if o.Quality < 1 || o.Quality > 100 {
		return fmt.Errorf("%w: quality must be in 1..100 (got %d)", ErrInvalidOptions, o.Quality)
	}
	if _, ok := interpolatorFor(o.Resample); !ok {
		return fmt.Errorf("%w: unknown resample kernel %q", ErrInvalidOptions, o.Resample)
	}
	return nil
}

func (o Options) withDefaults() Options {
	if o.Background == nil {
		o.Background = color.White
	}
	if strings.TrimSpace(o.Resample) == "" {
		o.Resample = DefaultResample
	}
	return o
}

func interpolatorFor(name string) (draw.Interpolator, bool) {
	switch strings.ToLower(strings.TrimSpace(name)) {
	case "", "catmullrom", "catmull-rom":
		return draw.CatmullRom, true
	case "bilinear":
		return draw.BiLinear, true
	case "approxbilinear", "approx-bilinear":
		return draw.ApproxBiLinear, true
	case "nearest", "nearestneighbor":
		return draw.NearestNeighbor, true
	default:
		return nil, false
	}
}

// ParseColor reads "#rrggbb" or "#rgb" (leading '#' optional).
func ParseColor(s string) (color.Color, error) {
	hex := strings.TrimPrefix(strings.TrimSpace(s), "#")
	if len(hex) == 3 {
		hex = string([]byte{hex[0], hex[0], hex[1], hex[1], hex[2], hex[2]})
	}
	if len(hex) != 6 {
		return nil, fmt.Errorf("%w: invalid color %q", ErrInvalidOptions, s)
	}
	v, err := strconv.ParseUint(hex, 16, 32)
	if err != nil {
		return nil, fmt.Errorf("%w: invalid color %q", ErrInvalidOptions, s)
	}
	return color.RGBA{R: uint8(v >> 16), G: uint8(v >> 8), B: uint8(v), A: 0xff}, nil
}
