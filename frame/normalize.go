package frame

import "time"

// CanonicalBytesPerPixel is the pixel stride of the canonical format.
// Every downstream stage consumes packed 8-bit RGB.
const CanonicalBytesPerPixel = 3

// NormalizedImage is the canonical internal representation produced by
// Normalize: packed 8-bit RGB, rotation already applied. It is owned by the
// pipeline for the duration of one invocation and never aliases the source
// frame's buffer.
type NormalizedImage struct {
	Width     int
	Height    int
	Pix       []byte
	Timestamp time.Time
}

// RGBAt returns the pixel at (x, y). Out-of-range coordinates return black.
func (n *NormalizedImage) RGBAt(x, y int) (r, g, b uint8) {
	if x < 0 || y < 0 || x >= n.Width || y >= n.Height {
		return 0, 0, 0
	}
	i := (y*n.Width + x) * CanonicalBytesPerPixel
	return n.Pix[i], n.Pix[i+1], n.Pix[i+2]
}

// Normalize validates a frame and converts it into the canonical RGB
// representation, applying the rotation hint. It is a pure function of its
// input: the only side effect is allocating the output buffer.
func Normalize(f Frame) (*NormalizedImage, error) {
	if err := f.Validate(); err != nil {
		return nil, err
	}

	var pix []byte
	switch f.Format {
	case FormatRGB24:
		pix = make([]byte, f.Width*f.Height*CanonicalBytesPerPixel)
		copy(pix, f.Data[:len(pix)])
	case FormatRGBA:
		pix = packedToRGB(f.Data, f.Width, f.Height, 0, 1, 2, 4)
	case FormatBGRA:
		pix = packedToRGB(f.Data, f.Width, f.Height, 2, 1, 0, 4)
	case FormatYUV420:
		pix = yuv420ToRGB(f.Data, f.Width, f.Height)
	case FormatNV21:
		pix = nv21ToRGB(f.Data, f.Width, f.Height)
	}

	img := &NormalizedImage{
		Width:     f.Width,
		Height:    f.Height,
		Pix:       pix,
		Timestamp: f.Timestamp,
	}
	if f.Rotation != 0 {
		img = rotate(img, f.Rotation)
	}
	return img, nil
}

// packedToRGB converts any packed byte-per-channel format to RGB given the
// source channel offsets and stride.
func packedToRGB(src []byte, width, height, rOff, gOff, bOff, stride int) []byte {
	dst := make([]byte, width*height*CanonicalBytesPerPixel)
	di := 0
	for p := 0; p < width*height; p++ {
		si := p * stride
		dst[di] = src[si+rOff]
		dst[di+1] = src[si+gOff]
		dst[di+2] = src[si+bOff]
		di += CanonicalBytesPerPixel
	}
	return dst
}

// clampByte clamps a BT.601 conversion result into [0, 255]
func clampByte(v float32) uint8 {
	if v < 0 {
		return 0
	}
	if v > 255 {
		return 255
	}
	return uint8(v)
}

// yuvPixel converts one BT.601 YUV sample to RGB
func yuvPixel(yv, uv, vv float32) (uint8, uint8, uint8) {
	r := clampByte(yv + 1.402*vv)
	g := clampByte(yv - 0.344*uv - 0.714*vv)
	b := clampByte(yv + 1.772*uv)
	return r, g, b
}

// yuv420ToRGB converts planar I420 (Y plane, U plane, V plane) to RGB
func yuv420ToRGB(src []byte, width, height int) []byte {
	luma := width * height
	chromaW := (width + 1) / 2
	chroma := chromaW * ((height + 1) / 2)
	uPlane := src[luma : luma+chroma]
	vPlane := src[luma+chroma : luma+2*chroma]

	dst := make([]byte, width*height*CanonicalBytesPerPixel)
	for y := 0; y < height; y++ {
		for x := 0; x < width; x++ {
			ci := (y/2)*chromaW + x/2
			yv := float32(src[y*width+x])
			uv := float32(uPlane[ci]) - 128
			vv := float32(vPlane[ci]) - 128
			r, g, b := yuvPixel(yv, uv, vv)
			di := (y*width + x) * CanonicalBytesPerPixel
			dst[di], dst[di+1], dst[di+2] = r, g, b
		}
	}
	return dst
}

// nv21ToRGB converts NV21 (Y plane, then interleaved VU) to RGB
func nv21ToRGB(src []byte, width, height int) []byte {
	luma := width * height
	chromaW := (width + 1) / 2
	vu := src[luma:]

	dst := make([]byte, width*height*CanonicalBytesPerPixel)
	for y := 0; y < height; y++ {
		for x := 0; x < width; x++ {
			ci := ((y/2)*chromaW + x/2) * 2
			yv := float32(src[y*width+x])
			vv := float32(vu[ci]) - 128
			uv := float32(vu[ci+1]) - 128
			r, g, b := yuvPixel(yv, uv, vv)
			di := (y*width + x) * CanonicalBytesPerPixel
			dst[di], dst[di+1], dst[di+2] = r, g, b
		}
	}
	return dst
}

// rotate returns a new image rotated clockwise by 90, 180 or 270 degrees
func rotate(img *NormalizedImage, degrees int) *NormalizedImage {
	w, h := img.Width, img.Height
	outW, outH := w, h
	if degrees == 90 || degrees == 270 {
		outW, outH = h, w
	}

	dst := make([]byte, len(img.Pix))
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			var dx, dy int
			switch degrees {
			case 90:
				dx, dy = h-1-y, x
			case 180:
				dx, dy = w-1-x, h-1-y
			case 270:
				dx, dy = y, w-1-x
			}
			si := (y*w + x) * CanonicalBytesPerPixel
			di := (dy*outW + dx) * CanonicalBytesPerPixel
			copy(dst[di:di+CanonicalBytesPerPixel], img.Pix[si:si+CanonicalBytesPerPixel])
		}
	}
	return &NormalizedImage{Width: outW, Height: outH, Pix: dst, Timestamp: img.Timestamp}
}
