package collage

import (
	"bytes"
	"fmt"
	"image"
	"image/jpeg"

	"golang.org/x/image/draw"
)

// Result is an encoded collage.
type Result struct {
	JPEG   []byte
	Width  int
	Height int
	// Composed is the number of photos stacked into the collage.
	Composed int
	// Skipped lists the inputs that could not be decoded.
	Skipped []DecodeResult
}

// Compose decodes blobs, stacks the decodable ones top to bottom and encodes
// the canvas as JPEG. Undecodable inputs are skipped; ErrNoValidImages is
// returned only when nothing could be decoded.
func Compose(blobs [][]byte, opts Options) (Result, error) {
	opts = opts.withDefaults()
	if err := opts.Validate(); err != nil {
		return Result{}, err
	}

	results := DecodeAll(blobs, opts)
	images := Decoded(results)
	skipped := Failed(results)
	if len(images) == 0 {
		return Result{Skipped: skipped}, ErrNoValidImages
	}

	canvas, err := Render(images, opts)
	if err != nil {
		return Result{Skipped: skipped}, err
	}

	var buf bytes.Buffer
	if err := jpeg.Encode(&buf, canvas, &jpeg.Options{Quality: opts.Quality}); err != nil {
		return Result{Skipped: skipped}, err
	}
	b := canvas.Bounds()
	return Result{
		JPEG:     buf.Bytes(),
		Width:    b.Dx(),
		Height:   b.Dy(),
		Composed: len(images),
		Skipped:  skipped,
	}, nil
}

// Render lays out already decoded images on an opaque canvas.
func Render(images []image.Image, opts Options) (*image.RGBA, error) {
	opts = opts.withDefaults()
	if err := opts.Validate(); err != nil {
		return nil, err
	}
	if len(images) == 0 {
		return nil, ErrNoValidImages
	}
	scaler, _ := interpolatorFor(opts.Resample)

	layout := Layout(sizesOf(images), opts.Width, opts.Margin)
	if total := int64(layout.Width) * int64(layout.Height); opts.MaxCanvasPixels > 0 && total > opts.MaxCanvasPixels {
		return nil, fmt.Errorf("%w: %dx%d exceeds %d pixels", ErrCanvasTooLarge, layout.Width, layout.Height, opts.MaxCanvasPixels)
	}
	canvas := image.NewRGBA(image.Rect(0, 0, layout.Width, layout.Height))
	draw.Draw(canvas, canvas.Bounds(), image.NewUniform(opts.Background), image.Point{}, draw.Src)

	for i, img := range images {
		// Over flattens any alpha onto the background.
		scaler.Scale(canvas, layout.Slots[i], img, img.Bounds(), draw.Over, nil)
	}
	return canvas, nil
}

// Geometry is the computed placement of every photo on the canvas.
type Geometry struct {
	Width  int
	Height int
	Slots  []image.Rectangle
}

// Layout computes the canvas size and the destination rectangle of each
// source size, given the target width and margin.
func Layout(sizes []image.Point, width, margin int) Geometry {
	g := Geometry{
		Width: width + 2*margin,
		Slots: make([]image.Rectangle, 0, len(sizes)),
	}
	y := margin
	for _, sz := range sizes {
		h := ScaledHeight(sz.X, sz.Y, width)
		g.Slots = append(g.Slots, image.Rect(margin, y, margin+width, y+h))
		y += h + margin
	}
	g.Height = y
	return g
}

// ScaledHeight returns round(height * target / width), at least 1.
func ScaledHeight(width, height, target int) int {
	if width <= 0 || height <= 0 || target <= 0 {
		return 0
	}
	w := int64(width)
	h := (2*int64(height)*int64(target) + w) / (2 * w)
	if h < 1 {
		h = 1
	}
	return int(h)
}

func sizesOf(images []image.Image) []image.Point {
	out := make([]image.Point, 0, len(images))
	for _, img := range images {
		b := img.Bounds()
		out = append(out, image.Pt(b.Dx(), b.Dy()))
	}
	return out
}
