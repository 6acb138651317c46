package frame

import (
	"errors"
	"fmt"
	"time"
)

// PixelFormat identifies the layout of raw frame bytes
type PixelFormat int

const (
	// FormatRGB24 is packed 8-bit RGB
	FormatRGB24 PixelFormat = iota
	// FormatRGBA is packed 8-bit RGBA
	FormatRGBA
	// FormatBGRA is packed 8-bit BGRA (iOS camera order)
	FormatBGRA
	// FormatYUV420 is planar Y then U then V, chroma subsampled 2x2
	FormatYUV420
	// FormatNV21 is planar Y then interleaved VU (Android camera order)
	FormatNV21
)

// String returns the format name
func (f PixelFormat) String() string {
	switch f {
	case FormatRGB24:
		return "RGB24"
	case FormatRGBA:
		return "RGBA"
	case FormatBGRA:
		return "BGRA"
	case FormatYUV420:
		return "YUV420"
	case FormatNV21:
		return "NV21"
	}
	return fmt.Sprintf("PixelFormat(%d)", int(f))
}

// Input errors. These are caller errors and are never retried internally.
var (
	ErrInvalidDimensions = errors.New("frame: non-positive width or height")
	ErrUnsupportedFormat = errors.New("frame: unsupported pixel format")
	ErrBufferTooSmall    = errors.New("frame: buffer smaller than dimensions imply")
	ErrInvalidRotation   = errors.New("frame: rotation must be 0, 90, 180 or 270")
)

// Frame is a single raw image buffer handed in by the caller.
// The caller owns Data until the frame is passed to Normalize; Normalize
// never writes into it.
type Frame struct {
	Width     int
	Height    int
	Format    PixelFormat
	Data      []byte
	Timestamp time.Time
	// Rotation is a capture hint in degrees clockwise (0, 90, 180, 270),
	// applied during normalization.
	Rotation int
}

// requiredBytes returns the minimum buffer length for the given dimensions
// and format. Chroma planes of subsampled formats round up on odd dimensions.
func requiredBytes(width, height int, format PixelFormat) (int, error) {
	switch format {
	case FormatRGB24:
		return width * height * 3, nil
	case FormatRGBA, FormatBGRA:
		return width * height * 4, nil
	case FormatYUV420, FormatNV21:
		luma := width * height
		chroma := ((width + 1) / 2) * ((height + 1) / 2)
		return luma + 2*chroma, nil
	}
	return 0, fmt.Errorf("%w: %s", ErrUnsupportedFormat, format)
}

// Validate checks the frame dimensions, rotation hint and buffer length
// against the declared format.
func (f *Frame) Validate() error {
	if f.Width <= 0 || f.Height <= 0 {
		return fmt.Errorf("%w: %dx%d", ErrInvalidDimensions, f.Width, f.Height)
	}
	switch f.Rotation {
	case 0, 90, 180, 270:
	default:
		return fmt.Errorf("%w: %d", ErrInvalidRotation, f.Rotation)
	}
	need, err := requiredBytes(f.Width, f.Height, f.Format)
	if err != nil {
		return err
	}
	if len(f.Data) < need {
		return fmt.Errorf("%w: have %d bytes, need %d for %dx%d %s",
			ErrBufferTooSmall, len(f.Data), need, f.Width, f.Height, f.Format)
	}
	return nil
}
