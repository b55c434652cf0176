package collage

import (
	"bytes"
	"errors"
	"image"
	"image/color"
	"image/jpeg"
	"image/png"
	"testing"
)

func pngBytes(t *testing.T, w, h int, c color.Color) []byte {
	t.Helper()
	img := image.NewNRGBA(image.Rect(0, 0, w, h))
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			img.Set(x, y, c)
		}
	}
	var buf bytes.Buffer
	if err := png.Encode(&buf, img); err != nil {
		t.Fatalf("png.Encode() error = %v", err)
	}
	return buf.Bytes()
}

func decodeJPEG(t *testing.T, raw []byte) image.Image {
	t.Helper()
	img, err := jpeg.Decode(bytes.NewReader(raw))
	if err != nil {
		t.Fatalf("jpeg.Decode() error = %v", err)
	}
	return img
}

func TestScaledHeight(t *testing.T) {
	cases := []struct {
		name   string
		w, h   int
		target int
		want   int
	}{
		{name: "portrait", w: 100, h: 200, target: 700, want: 1400},
		{name: "square", w: 300, h: 300, target: 700, want: 700},
		{name: "rounds half up", w: 3, h: 1, target: 700, want: 233},
		{name: "rounds up", w: 3, h: 2, target: 700, want: 467},
		{name: "never zero", w: 10000, h: 1, target: 700, want: 1},
		{name: "invalid width", w: 0, h: 10, target: 700, want: 0},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if got := ScaledHeight(tc.w, tc.h, tc.target); got != tc.want {
				t.Fatalf("ScaledHeight(%d, %d, %d) = %d, want %d", tc.w, tc.h, tc.target, got, tc.want)
			}
		})
	}
}

func TestLayout(t *testing.T) {
	g := Layout([]image.Point{{X: 100, Y: 200}, {X: 300, Y: 300}}, 700, 16)
	if g.Width != 732 || g.Height != 2148 {
		t.Fatalf("geometry mismatch: got %dx%d", g.Width, g.Height)
	}
	want := []image.Rectangle{
		image.Rect(16, 16, 716, 1416),
		image.Rect(16, 1432, 716, 2132),
	}
	for i, r := range want {
		if g.Slots[i] != r {
			t.Fatalf("slot %d mismatch: got %v want %v", i, g.Slots[i], r)
		}
	}
}

func TestComposeSkipsUndecodableInput(t *testing.T) {
	blobs := [][]byte{
		pngBytes(t, 100, 200, color.RGBA{R: 255, A: 255}),
		pngBytes(t, 300, 300, color.RGBA{B: 255, A: 255}),
		[]byte("definitely not an image"),
	}
	res, err := Compose(blobs, DefaultOptions())
	if err != nil {
		t.Fatalf("Compose() error = %v", err)
	}
	if res.Width != 732 || res.Height != 2148 {
		t.Fatalf("collage size mismatch: got %dx%d", res.Width, res.Height)
	}
	if res.Composed != 2 {
		t.Fatalf("composed count mismatch: got %d", res.Composed)
	}
	if len(res.Skipped) != 1 || res.Skipped[0].Index != 2 {
		t.Fatalf("skipped mismatch: %+v", res.Skipped)
	}
	var decErr *ImageDecodeError
	if !errors.As(res.Skipped[0].Err, &decErr) || decErr.Index != 2 {
		t.Fatalf("expected ImageDecodeError for index 2, got %v", res.Skipped[0].Err)
	}

	out := decodeJPEG(t, res.JPEG)
	if b := out.Bounds(); b.Dx() != 732 || b.Dy() != 2148 {
		t.Fatalf("encoded size mismatch: got %dx%d", b.Dx(), b.Dy())
	}
	// Top photo is red, bottom photo is blue, margins stay white.
	assertNear(t, out.At(366, 700), color.RGBA{R: 255, A: 255})
	assertNear(t, out.At(366, 1800), color.RGBA{B: 255, A: 255})
	assertNear(t, out.At(4, 4), color.White)
	assertNear(t, out.At(8, 1800), color.White)
}

func TestComposeWidthIsConstantAcrossAspectRatios(t *testing.T) {
	sizes := []image.Point{{X: 40, Y: 10}, {X: 10, Y: 40}, {X: 1234, Y: 567}, {X: 1, Y: 1}}
	var blobs [][]byte
	sum := 0
	for _, sz := range sizes {
		blobs = append(blobs, pngBytes(t, sz.X, sz.Y, color.Gray{Y: 128}))
		sum += ScaledHeight(sz.X, sz.Y, 120)
	}
	opts := DefaultOptions()
	opts.Width = 120
	opts.Margin = 5
	res, err := Compose(blobs, opts)
	if err != nil {
		t.Fatalf("Compose() error = %v", err)
	}
	if res.Width != 130 {
		t.Fatalf("width mismatch: got %d", res.Width)
	}
	if want := sum + 5*(len(sizes)+1); res.Height != want {
		t.Fatalf("height mismatch: got %d want %d", res.Height, want)
	}
}

func TestComposeAllInvalid(t *testing.T) {
	blobs := [][]byte{[]byte("a"), nil, []byte("c")}
	res, err := Compose(blobs, DefaultOptions())
	if !errors.Is(err, ErrNoValidImages) {
		t.Fatalf("expected ErrNoValidImages, got %v", err)
	}
	if len(res.Skipped) != 3 {
		t.Fatalf("expected 3 skipped, got %d", len(res.Skipped))
	}
}

func TestComposeFlattensAlpha(t *testing.T) {
	blobs := [][]byte{pngBytes(t, 10, 10, color.NRGBA{})}
	opts := DefaultOptions()
	opts.Width = 20
	opts.Margin = 2
	opts.Resample = "nearest"
	res, err := Compose(blobs, opts)
	if err != nil {
		t.Fatalf("Compose() error = %v", err)
	}
	assertNear(t, decodeJPEG(t, res.JPEG).At(12, 12), color.White)
}

func TestComposeIsDeterministic(t *testing.T) {
	blobs := [][]byte{
		pngBytes(t, 64, 48, color.RGBA{G: 200, A: 255}),
		pngBytes(t, 48, 64, color.RGBA{R: 20, B: 90, A: 255}),
	}
	a, err := Compose(blobs, DefaultOptions())
	if err != nil {
		t.Fatalf("Compose() error = %v", err)
	}
	b, err := Compose(blobs, DefaultOptions())
	if err != nil {
		t.Fatalf("Compose() error = %v", err)
	}
	if !bytes.Equal(a.JPEG, b.JPEG) {
		t.Fatalf("expected identical output for identical input")
	}
}

func TestComposeRejectsOversizedSource(t *testing.T) {
	opts := DefaultOptions()
	opts.MaxSourcePixels = 100
	res, err := Compose([][]byte{pngBytes(t, 20, 20, color.Black), pngBytes(t, 5, 5, color.Black)}, opts)
	if err != nil {
		t.Fatalf("Compose() error = %v", err)
	}
	if res.Composed != 1 || len(res.Skipped) != 1 || res.Skipped[0].Index != 0 {
		t.Fatalf("expected first image skipped, got composed=%d skipped=%+v", res.Composed, res.Skipped)
	}
}

// grayPNG encodes a black w x h image; cheap even for very long strips.
func grayPNG(t *testing.T, w, h int) []byte {
	t.Helper()
	var buf bytes.Buffer
	if err := png.Encode(&buf, image.NewGray(image.Rect(0, 0, w, h))); err != nil {
		t.Fatalf("png.Encode() error = %v", err)
	}
	return buf.Bytes()
}

func TestComposeExtremeAspectRatios(t *testing.T) {
	cases := []struct {
		name        string
		src         []byte
		wantSkipped bool
		wantHeight  int
	}{
		// 1x200000 would need a 732x140000032 canvas.
		{name: "tall narrow strip", src: grayPNG(t, 1, 200000), wantSkipped: true, wantHeight: 16 + 700 + 16},
		{name: "wide thin strip", src: grayPNG(t, 200000, 1), wantHeight: 16 + 1 + 16 + 700 + 16},
		{name: "tall within limit", src: grayPNG(t, 10, 200), wantHeight: 16 + 14000 + 16 + 700 + 16},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			res, err := Compose([][]byte{tc.src, grayPNG(t, 100, 100)}, DefaultOptions())
			if err != nil {
				t.Fatalf("Compose() error = %v", err)
			}
			if gotSkipped := len(res.Skipped) == 1; gotSkipped != tc.wantSkipped {
				t.Fatalf("skipped = %+v, want skipped=%v", res.Skipped, tc.wantSkipped)
			}
			if tc.wantSkipped {
				var decodeErr *ImageDecodeError
				if !errors.As(res.Skipped[0].Err, &decodeErr) || decodeErr.Index != 0 {
					t.Fatalf("skipped error = %v, want *ImageDecodeError for index 0", res.Skipped[0].Err)
				}
			}
			if res.Width != 732 || res.Height != tc.wantHeight {
				t.Fatalf("collage = %dx%d, want 732x%d", res.Width, res.Height, tc.wantHeight)
			}
		})
	}
}

func TestComposeAllSourcesOverCanvasLimit(t *testing.T) {
	strip := grayPNG(t, 1, 200000)
	res, err := Compose([][]byte{strip, strip, strip}, DefaultOptions())
	if !errors.Is(err, ErrNoValidImages) {
		t.Fatalf("Compose() error = %v, want ErrNoValidImages", err)
	}
	if len(res.Skipped) != 3 {
		t.Fatalf("skipped = %d, want 3", len(res.Skipped))
	}
}

func TestComposeRejectsCanvasOverTotalLimit(t *testing.T) {
	opts := DefaultOptions()
	// Each 100x100 slot (732x732 with margins) fits; the stacked pair does not.
	opts.MaxCanvasPixels = 732 * 800
	_, err := Compose([][]byte{grayPNG(t, 100, 100), grayPNG(t, 100, 100)}, opts)
	if !errors.Is(err, ErrCanvasTooLarge) {
		t.Fatalf("Compose() error = %v, want ErrCanvasTooLarge", err)
	}

	opts.MaxCanvasPixels = 0
	res, err := Compose([][]byte{grayPNG(t, 100, 100), grayPNG(t, 100, 100)}, opts)
	if err != nil {
		t.Fatalf("Compose() with cap disabled error = %v", err)
	}
	if res.Height != 16+700+16+700+16 {
		t.Fatalf("height = %d", res.Height)
	}
}

func TestOptionsValidate(t *testing.T) {
	cases := []struct {
		name string
		mut  func(*Options)
	}{
		{name: "zero width", mut: func(o *Options) { o.Width = 0 }},
		{name: "negative margin", mut: func(o *Options) { o.Margin = -1 }},
		{name: "quality too low", mut: func(o *Options) { o.Quality = 0 }},
		{name: "quality too high", mut: func(o *Options) { o.Quality = 101 }},
		{name: "unknown kernel", mut: func(o *Options) { o.Resample = "lanczos9" }},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			opts := DefaultOptions()
			tc.mut(&opts)
			if err := opts.Validate(); !errors.Is(err, ErrInvalidOptions) {
				t.Fatalf("Validate() expected ErrInvalidOptions, got %v", err)
			}
		})
	}
	if err := DefaultOptions().Validate(); err != nil {
		t.Fatalf("DefaultOptions().Validate() error = %v", err)
	}
}

func TestParseColor(t *testing.T) {
	cases := []struct {
		in      string
		want    color.RGBA
		wantErr bool
	}{
		{in: "#ffffff", want: color.RGBA{R: 0xff, G: 0xff, B: 0xff, A: 0xff}},
		{in: "000", want: color.RGBA{A: 0xff}},
		{in: " #1a2B3c ", want: color.RGBA{R: 0x1a, G: 0x2b, B: 0x3c, A: 0xff}},
		{in: "#12345", wantErr: true},
		{in: "#gggggg", wantErr: true},
	}
	for _, tc := range cases {
		got, err := ParseColor(tc.in)
		if tc.wantErr {
			if !errors.Is(err, ErrInvalidOptions) {
				t.Fatalf("ParseColor(%q) err = %v, want ErrInvalidOptions", tc.in, err)
			}
			continue
		}
		if err != nil {
			t.Fatalf("ParseColor(%q) error = %v", tc.in, err)
		}
		if got != tc.want {
			t.Fatalf("ParseColor(%q) = %v, want %v", tc.in, got, tc.want)
		}
	}
}

func assertNear(t *testing.T, got color.Color, want color.Color) {
	t.Helper()
	gr, gg, gb, _ := got.RGBA()
	wr, wg, wb, _ := want.RGBA()
	if absDiff(gr, wr) > 0x1800 || absDiff(gg, wg) > 0x1800 || absDiff(gb, wb) > 0x1800 {
		t.Fatalf("color mismatch: got %v want %v", got, want)
	}
}

func absDiff(a, b uint32) uint32 {
	if a > b {
		return a - b
	}
	return b - a
}
