package hub75

import (
	"errors"
	"fmt"
	"image"
	"image/color"
)

var (
	// ErrBufferSize is returned when pixel data does not match the target area
	ErrBufferSize = errors.New("hub75: pixel buffer size mismatch")
	// ErrAreaBounds is returned for an inverted or off-panel area
	ErrAreaBounds = errors.New("hub75: area out of bounds")
)

// Update replaces the whole frame from tightly packed RGB bytes, row-major
func (d *Driver) Update(src []byte) error {
	return d.update(src, 0, 2)
}

// UpdateBGR replaces the whole frame from tightly packed BGR bytes, row-major
func (d *Driver) UpdateBGR(src []byte) error {
	return d.update(src, 2, 0)
}

func (d *Driver) update(src []byte, ri, bi int) error {
	n := d.width * d.height
	if len(src) != n*3 {
		return fmt.Errorf("%w: got %d bytes, want %d for %dx%d", ErrBufferSize, len(src), n*3, d.width, d.height)
	}

	half := n / 2
	for p := 0; p < n; p++ {
		k := p * 3
		w := Pack(src[k+ri], src[k+1], src[k+bi])
		if p < half {
			d.fb.buf.Store(p*2, w)
		} else {
			d.fb.buf.Store((p-half)*2+1, w)
		}
	}
	return nil
}

// UpdateArea replaces the inclusive rectangle (x1, y1)-(x2, y2) from tightly
// packed BGR bytes, row-major. Pixels outside the rectangle are untouched.
func (d *Driver) UpdateArea(src []byte, x1, y1, x2, y2 int) error {
	if x1 < 0 || y1 < 0 || x2 >= d.width || y2 >= d.height || x1 > x2 || y1 > y2 {
		return fmt.Errorf("%w: (%d,%d)-(%d,%d) on %dx%d panel", ErrAreaBounds, x1, y1, x2, y2, d.width, d.height)
	}
	w := x2 - x1 + 1
	h := y2 - y1 + 1
	if len(src) != w*h*3 {
		return fmt.Errorf("%w: got %d bytes, want %d for %dx%d area", ErrBufferSize, len(src), w*h*3, w, h)
	}

	k := 0
	for y := y1; y <= y2; y++ {
		for x := x1; x <= x2; x++ {
			d.fb.Set(x, y, Pack(src[k+2], src[k+1], src[k]))
			k += 3
		}
	}
	return nil
}

// UpdateImage replaces the whole frame from img, which must match the panel
// size. Alpha is ignored.
func (d *Driver) UpdateImage(img image.Image) error {
	b := img.Bounds()
	if b.Dx() != d.width || b.Dy() != d.height {
		return fmt.Errorf("%w: image is %dx%d, panel is %dx%d", ErrBufferSize, b.Dx(), b.Dy(), d.width, d.height)
	}

	if rgba, ok := img.(*image.RGBA); ok {
		for y := 0; y < d.height; y++ {
			row := rgba.Pix[y*rgba.Stride:]
			for x := 0; x < d.width; x++ {
				p := row[x*4:]
				d.fb.Set(x, y, Pack(p[0], p[1], p[2]))
			}
		}
		return nil
	}

	for y := 0; y < d.height; y++ {
		for x := 0; x < d.width; x++ {
			c := color.RGBAModel.Convert(img.At(b.Min.X+x, b.Min.Y+y)).(color.RGBA)
			d.fb.Set(x, y, Pack(c.R, c.G, c.B))
		}
	}
	return nil
}

// Clear blanks the frame
func (d *Driver) Clear() {
	for i := 0; i < d.fb.Len(); i++ {
		d.fb.buf.Store(i, 0)
	}
}
