package collage

import (
	"errors"
	"fmt"
)

var (
	ErrNoValidImages  = errors.New("no valid images to compose")
	ErrInvalidOptions = errors.New("invalid collage options")
	ErrCanvasTooLarge = errors.New("collage canvas too large")
)

// ImageDecodeError reports a single input that could not be used.
// It never aborts a batch on its own.
type ImageDecodeError struct {
	Index int
	Err   error
}

func (e *ImageDecodeError) Error() string {
	if e == nil {
		return "image decode failed"
	}
	return fmt.Sprintf("image %d: decode failed: %v", e.Index, e.Err)
}

func (e *ImageDecodeError) Unwrap() error {
	if e == nil {
		return nil
	}
	return e.Err
}
