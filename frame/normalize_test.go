package frame

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNormalizeRGB24CopiesPixels(t *testing.T) {
	f := Frame{
		Width:  2,
		Height: 1,
		Format: FormatRGB24,
		Data:   []byte{10, 20, 30, 40, 50, 60},
	}
	img, err := Normalize(f)
	require.NoError(t, err)
	assert.Equal(t, 2, img.Width)
	assert.Equal(t, 1, img.Height)
	assert.Equal(t, f.Data, img.Pix)

	// The output never aliases the input buffer
	img.Pix[0] = 99
	assert.Equal(t, byte(10), f.Data[0])
}

func TestNormalizeRGBADropsAlpha(t *testing.T) {
	f := Frame{
		Width:  1,
		Height: 2,
		Format: FormatRGBA,
		Data:   []byte{1, 2, 3, 255, 4, 5, 6, 128},
	}
	img, err := Normalize(f)
	require.NoError(t, err)
	assert.Equal(t, []byte{1, 2, 3, 4, 5, 6}, img.Pix)
}

func TestNormalizeBGRASwapsChannels(t *testing.T) {
	f := Frame{
		Width:  1,
		Height: 1,
		Format: FormatBGRA,
		Data:   []byte{30, 20, 10, 255},
	}
	img, err := Normalize(f)
	require.NoError(t, err)
	assert.Equal(t, []byte{10, 20, 30}, img.Pix)
}

func TestNormalizeYUV420Grayscale(t *testing.T) {
	// Neutral chroma (128) must map Y straight through to R=G=B
	f := Frame{
		Width:  2,
		Height: 2,
		Format: FormatYUV420,
		Data:   []byte{0, 64, 128, 200, 128, 128},
	}
	img, err := Normalize(f)
	require.NoError(t, err)
	wantY := []byte{0, 64, 128, 200}
	for p, y := range wantY {
		r, g, b := img.RGBAt(p%2, p/2)
		assert.Equal(t, y, r, "pixel %d red", p)
		assert.Equal(t, y, g, "pixel %d green", p)
		assert.Equal(t, y, b, "pixel %d blue", p)
	}
}

func TestNormalizeNV21RedChroma(t *testing.T) {
	// V above neutral pushes red up and green down and leaves blue at Y
	f := Frame{
		Width:  2,
		Height: 2,
		Format: FormatNV21,
		Data:   []byte{100, 100, 100, 100, 228, 128},
	}
	img, err := Normalize(f)
	require.NoError(t, err)
	r, g, b := img.RGBAt(0, 0)
	assert.Greater(t, r, uint8(100))
	assert.Less(t, g, uint8(100))
	assert.Equal(t, uint8(100), b)
}

func TestNormalizeCanonicalLength(t *testing.T) {
	// Regardless of input format the output is always 3 bytes per pixel
	formats := []PixelFormat{FormatRGB24, FormatRGBA, FormatBGRA, FormatYUV420, FormatNV21}
	for _, format := range formats {
		need, err := requiredBytes(7, 5, format)
		require.NoError(t, err)
		f := Frame{Width: 7, Height: 5, Format: format, Data: make([]byte, need)}
		img, err := Normalize(f)
		require.NoError(t, err, format)
		assert.Len(t, img.Pix, 7*5*CanonicalBytesPerPixel, format)
	}
}

func TestNormalizeRotate90(t *testing.T) {
	// 2x1 red,green rotated 90 clockwise becomes 1x2 with red on top
	f := Frame{
		Width:    2,
		Height:   1,
		Format:   FormatRGB24,
		Data:     []byte{255, 0, 0, 0, 255, 0},
		Rotation: 90,
	}
	img, err := Normalize(f)
	require.NoError(t, err)
	assert.Equal(t, 1, img.Width)
	assert.Equal(t, 2, img.Height)
	r, _, _ := img.RGBAt(0, 0)
	assert.Equal(t, uint8(255), r)
	_, g, _ := img.RGBAt(0, 1)
	assert.Equal(t, uint8(255), g)
}

func TestNormalizeRotate180(t *testing.T) {
	f := Frame{
		Width:    2,
		Height:   1,
		Format:   FormatRGB24,
		Data:     []byte{255, 0, 0, 0, 255, 0},
		Rotation: 180,
	}
	img, err := Normalize(f)
	require.NoError(t, err)
	assert.Equal(t, 2, img.Width)
	_, g, _ := img.RGBAt(0, 0)
	assert.Equal(t, uint8(255), g)
	r, _, _ := img.RGBAt(1, 0)
	assert.Equal(t, uint8(255), r)
}

func TestNormalizeRotate270(t *testing.T) {
	f := Frame{
		Width:    2,
		Height:   1,
		Format:   FormatRGB24,
		Data:     []byte{255, 0, 0, 0, 255, 0},
		Rotation: 270,
	}
	img, err := Normalize(f)
	require.NoError(t, err)
	assert.Equal(t, 1, img.Width)
	assert.Equal(t, 2, img.Height)
	_, g, _ := img.RGBAt(0, 0)
	assert.Equal(t, uint8(255), g)
	r, _, _ := img.RGBAt(0, 1)
	assert.Equal(t, uint8(255), r)
}

func TestNormalizeRejectsInvalidFrame(t *testing.T) {
	f := Frame{Width: 4, Height: 4, Format: FormatRGB24, Data: []byte{1}}
	_, err := Normalize(f)
	assert.ErrorIs(t, err, ErrBufferTooSmall)
}

func TestRGBAtOutOfRange(t *testing.T) {
	img := &NormalizedImage{Width: 1, Height: 1, Pix: []byte{9, 9, 9}, Timestamp: time.Now()}
	r, g, b := img.RGBAt(-1, 0)
	assert.Zero(t, r)
	assert.Zero(t, g)
	assert.Zero(t, b)
	r, _, _ = img.RGBAt(1, 0)
	assert.Zero(t, r)
}
