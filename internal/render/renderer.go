// Package render produces frames for the panel when nothing is streaming to
// it: a playlist of sources shown in turn, with an optional text overlay.
package render

import (
	"context"
	"errors"
	"fmt"
	"image"
	"image/color"
	"log"
	"sync"
	"sync/atomic"
	"time"

	"github.com/fkcurrie/hub75-golang/internal/config"
	"tinygo.org/x/drivers"
	"tinygo.org/x/tinyfont"
	"tinygo.org/x/tinyfont/proggy"
)

// Sink receives rendered frames
type Sink interface {
	UpdateImage(img image.Image) error
}

// Options paces the renderer
type Options struct {
	FPS     int
	Dwell   time.Duration
	Overlay string
}

// Renderer handles the display rendering logic
type Renderer struct {
	sink    Sink
	opts    Options
	sources []Source
	frame   *image.RGBA

	mu      sync.Mutex
	current int

	hold atomic.Int64 // unix nanos until which rendering is suspended
}

// NewRenderer creates a renderer cycling through sources
func NewRenderer(sink Sink, width, height int, opts Options, sources ...Source) (*Renderer, error) {
	if len(sources) == 0 {
		return nil, errors.New("render: no sources")
	}
	if opts.FPS <= 0 {
		return nil, fmt.Errorf("render: invalid fps %d", opts.FPS)
	}
	return &Renderer{
		sink:    sink,
		opts:    opts,
		sources: sources,
		frame:   image.NewRGBA(image.Rect(0, 0, width, height)),
		current: -1,
	}, nil
}

// FromConfig builds the sources named in cfg
func FromConfig(cfg config.RenderConfig, width, height int) ([]Source, error) {
	var sources []Source
	for _, name := range cfg.Sources {
		switch name {
		case "bars":
			sources = append(sources, Bars{})
		case "text":
			sources = append(sources, NewText(cfg.Text, color.RGBA{255, 160, 0, 255}))
		case "svg":
			s, err := LoadSVG(cfg.SVGPath, width, height)
			if err != nil {
				return nil, err
			}
			sources = append(sources, s)
		case "image":
			s, err := LoadImage(cfg.Image, width, height)
			if err != nil {
				return nil, err
			}
			sources = append(sources, s)
		default:
			return nil, fmt.Errorf("render: unknown source %q", name)
		}
	}
	return sources, nil
}

// Hold suspends rendering until t, letting another producer own the panel
func (r *Renderer) Hold(until time.Time) {
	r.hold.Store(until.UnixNano())
}

// Start renders at the configured rate until ctx is done
func (r *Renderer) Start(ctx context.Context) error {
	ticker := time.NewTicker(time.Second / time.Duration(r.opts.FPS))
	defer ticker.Stop()

	start := time.Now()
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case now := <-ticker.C:
			if now.UnixNano() < r.hold.Load() {
				continue
			}
			if err := r.render(now.Sub(start)); err != nil {
				log.Printf("Failed to render: %v", err)
			}
		}
	}
}

// render draws the source due at elapsed and pushes it to the sink
func (r *Renderer) render(elapsed time.Duration) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	i := 0
	if r.opts.Dwell > 0 {
		i = int(elapsed/r.opts.Dwell) % len(r.sources)
	}
	if i != r.current {
		log.Printf("Showing %s", r.sources[i].Name())
		r.current = i
	}

	r.sources[i].Draw(r.frame, elapsed)
	if r.opts.Overlay != "" {
		tinyfont.WriteLine(canvas{r.frame}, &proggy.TinySZ8pt7b,
			1, int16(r.frame.Bounds().Dy()-2), r.opts.Overlay, color.RGBA{255, 255, 255, 255})
	}
	return r.sink.UpdateImage(r.frame)
}

// canvas lets tinyfont draw into an RGBA image
type canvas struct {
	img *image.RGBA
}

var _ drivers.Displayer = canvas{}

func (c canvas) Size() (x, y int16) {
	b := c.img.Bounds()
	return int16(b.Dx()), int16(b.Dy())
}

func (c canvas) SetPixel(x, y int16, col color.RGBA) {
	c.img.SetRGBA(int(x), int(y), col)
}

func (c canvas) Display() error { return nil }
