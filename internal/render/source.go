package render

import (
	"bytes"
	"fmt"
	"image"
	"image/color"
	"image/draw"
	_ "image/gif"
	_ "image/jpeg"
	_ "image/png"
	"io"
	"os"
	"time"

	"github.com/srwiley/oksvg"
	"github.com/srwiley/rasterx"
	xdraw "golang.org/x/image/draw"
	"golang.org/x/image/font"
	"golang.org/x/image/font/basicfont"
	"golang.org/x/image/math/fixed"
)

// Source draws one frame of content for elapsed time t
type Source interface {
	Name() string
	Draw(dst *image.RGBA, t time.Duration)
}

// Bars is a colour check pattern: eight saturated bars over a grey ramp
type Bars struct{}

var barColors = []color.RGBA{
	{255, 255, 255, 255},
	{255, 255, 0, 255},
	{0, 255, 255, 255},
	{0, 255, 0, 255},
	{255, 0, 255, 255},
	{255, 0, 0, 255},
	{0, 0, 255, 255},
	{0, 0, 0, 255},
}

func (Bars) Name() string { return "bars" }

func (Bars) Draw(dst *image.RGBA, _ time.Duration) {
	b := dst.Bounds()
	w, h := b.Dx(), b.Dy()
	split := h - h/4
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			var c color.RGBA
			if y < split {
				c = barColors[x*len(barColors)/w]
			} else {
				v := uint8(0)
				if w > 1 {
					v = uint8(x * 255 / (w - 1))
				}
				c = color.RGBA{v, v, v, 255}
			}
			dst.SetRGBA(b.Min.X+x, b.Min.Y+y, c)
		}
	}
}

// Text scrolls a line of text from right to left
type Text struct {
	text  string
	color color.RGBA
	speed float64 // pixels per second
	face  font.Face
}

// NewText returns a scrolling text source
func NewText(text string, c color.RGBA) *Text {
	return &Text{text: text, color: c, speed: 20, face: basicfont.Face7x13}
}

func (s *Text) Name() string { return "text" }

func (s *Text) Draw(dst *image.RGBA, t time.Duration) {
	b := dst.Bounds()
	draw.Draw(dst, b, image.Black, image.Point{}, draw.Src)

	width := font.MeasureString(s.face, s.text).Ceil()
	span := b.Dx() + width
	offset := int(t.Seconds()*s.speed) % span

	m := s.face.Metrics()
	baseline := b.Min.Y + (b.Dy()+m.Ascent.Ceil()-m.Descent.Ceil())/2
	d := font.Drawer{
		Dst:  dst,
		Src:  image.NewUniform(s.color),
		Face: s.face,
		Dot:  fixed.P(b.Max.X-offset, baseline),
	}
	d.DrawString(s.text)
}

// Still shows a fixed picture scaled to the panel
type Still struct {
	name  string
	frame *image.RGBA
}

func (s *Still) Name() string { return s.name }

func (s *Still) Draw(dst *image.RGBA, _ time.Duration) {
	draw.Draw(dst, dst.Bounds(), s.frame, image.Point{}, draw.Src)
}

// NewImage scales src to width x height
func NewImage(src image.Image, width, height int) *Still {
	frame := image.NewRGBA(image.Rect(0, 0, width, height))
	xdraw.CatmullRom.Scale(frame, frame.Bounds(), src, src.Bounds(), xdraw.Src, nil)
	return &Still{name: "image", frame: frame}
}

// LoadImage decodes a PNG, JPEG or GIF file and scales it to width x height
func LoadImage(path string, width, height int) (*Still, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	src, _, err := image.Decode(f)
	if err != nil {
		return nil, fmt.Errorf("failed to decode %s: %w", path, err)
	}
	return NewImage(src, width, height), nil
}

// NewSVG rasterises an SVG document at width x height
func NewSVG(r io.Reader, width, height int) (*Still, error) {
	icon, err := oksvg.ReadIconStream(r, oksvg.WarnErrorMode)
	if err != nil {
		return nil, fmt.Errorf("failed to parse svg: %w", err)
	}
	icon.SetTarget(0, 0, float64(width), float64(height))

	frame := image.NewRGBA(image.Rect(0, 0, width, height))
	draw.Draw(frame, frame.Bounds(), image.Black, image.Point{}, draw.Src)
	scanner := rasterx.NewScannerGV(width, height, frame, frame.Bounds())
	icon.Draw(rasterx.NewDasher(width, height, scanner), 1)
	return &Still{name: "svg", frame: frame}, nil
}

// LoadSVG rasterises the SVG file at path
func LoadSVG(path string, width, height int) (*Still, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	return NewSVG(bytes.NewReader(data), width, height)
}
