package emu

import (
	"fmt"
	"image"
	"image/color"
	"sync"
)

// levelMax is the full-scale level reported by Level
const levelMax = 1023

// PanelConfig describes the panel and the GPIOs its inputs are wired to
type PanelConfig struct {
	Width    int
	Height   int
	DataBase uint8
	RowBase  uint8
}

func (c PanelConfig) validate() error {
	if c.Width <= 0 || c.Height <= 0 || c.Height%2 != 0 {
		return fmt.Errorf("emu: invalid panel size %dx%d", c.Width, c.Height)
	}
	if c.DataBase == c.RowBase {
		return fmt.Errorf("emu: data and row pins both start at GPIO%d", c.DataBase)
	}
	return nil
}

// Panel models a HUB75 panel: a column shift register for each half, loaded
// one pixel pair per clock, and LEDs that integrate light while OEn is
// asserted on the latched row.
type Panel struct {
	mu  *sync.Mutex
	cfg PanelConfig

	shift   []uint32 // six colour bits per column
	shifted int

	acc     [][3]uint64 // on-cycles per pixel and channel
	weight  []uint64    // on-cycles per scan row
	latches uint64
}

func newPanel(mu *sync.Mutex, cfg PanelConfig) *Panel {
	return &Panel{
		mu:     mu,
		cfg:    cfg,
		shift:  make([]uint32, cfg.Width),
		acc:    make([][3]uint64, cfg.Width*cfg.Height),
		weight: make([]uint64, cfg.Height/2),
	}
}

// clock shifts in one column. Bit 0, 10 and 20 of each word are the red,
// green and blue inputs of the top and bottom half. Clocks past the panel
// width since the last latch fall off the end.
func (p *Panel) clock(top, bottom uint32) {
	if p.shifted >= p.cfg.Width {
		return
	}
	var bits uint32
	for c := 0; c < 3; c++ {
		bits |= (top >> (10 * c) & 1) << c
		bits |= (bottom >> (10 * c) & 1) << (c + 3)
	}
	p.shift[p.shifted] = bits
	p.shifted++
}

// latch shows the shift register on scan row row for on cycles
func (p *Panel) latch(row int, on uint64) error {
	defer func() { p.shifted = 0 }()

	rows := p.cfg.Height / 2
	if row >= rows {
		return fmt.Errorf("row address %d beyond %d scan rows", row, rows)
	}
	if p.shifted < p.cfg.Width {
		return fmt.Errorf("row %d latched after %d of %d columns", row, p.shifted, p.cfg.Width)
	}

	p.latches++
	p.weight[row] += on
	for x := 0; x < p.cfg.Width; x++ {
		bits := p.shift[x]
		top := &p.acc[row*p.cfg.Width+x]
		bottom := &p.acc[(row+rows)*p.cfg.Width+x]
		for c := 0; c < 3; c++ {
			if bits&(1<<c) != 0 {
				top[c] += on
			}
			if bits&(1<<(c+3)) != 0 {
				bottom[c] += on
			}
		}
	}
	return nil
}

// Size returns the panel size
func (p *Panel) Size() (width, height int) {
	return p.cfg.Width, p.cfg.Height
}

// Latches returns the number of rows shown so far
func (p *Panel) Latches() uint64 {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.latches
}

// Level returns the average brightness of pixel (x, y) per channel since the
// last Reset, scaled to 0..1023 and rounded.
func (p *Panel) Level(x, y int) (r, g, b uint16) {
	p.mu.Lock()
	defer p.mu.Unlock()
	l := p.level(x, y)
	return l[0], l[1], l[2]
}

func (p *Panel) level(x, y int) [3]uint16 {
	var out [3]uint16
	w := p.weight[y%(p.cfg.Height/2)]
	if w == 0 {
		return out
	}
	acc := p.acc[y*p.cfg.Width+x]
	for c := range out {
		out[c] = uint16((acc[c]*levelMax + w/2) / w)
	}
	return out
}

// Image renders the panel brightness since the last Reset
func (p *Panel) Image() *image.RGBA {
	p.mu.Lock()
	defer p.mu.Unlock()

	img := image.NewRGBA(image.Rect(0, 0, p.cfg.Width, p.cfg.Height))
	for y := 0; y < p.cfg.Height; y++ {
		for x := 0; x < p.cfg.Width; x++ {
			l := p.level(x, y)
			img.SetRGBA(x, y, color.RGBA{
				R: uint8(uint32(l[0]) * 255 / levelMax),
				G: uint8(uint32(l[1]) * 255 / levelMax),
				B: uint8(uint32(l[2]) * 255 / levelMax),
				A: 0xff,
			})
		}
	}
	return img
}

// Reset forgets the accumulated brightness
func (p *Panel) Reset() {
	p.mu.Lock()
	defer p.mu.Unlock()

	for i := range p.acc {
		p.acc[i] = [3]uint64{}
	}
	for i := range p.weight {
		p.weight[i] = 0
	}
	p.latches = 0
}
