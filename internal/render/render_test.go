package render

import (
	"context"
	"errors"
	"image"
	"image/color"
	"image/png"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/fkcurrie/hub75-golang/internal/config"
)

type fakeSink struct {
	mu     sync.Mutex
	frames []*image.RGBA
}

func (s *fakeSink) UpdateImage(img image.Image) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	frame := image.NewRGBA(img.Bounds())
	for y := img.Bounds().Min.Y; y < img.Bounds().Max.Y; y++ {
		for x := img.Bounds().Min.X; x < img.Bounds().Max.X; x++ {
			frame.Set(x, y, img.At(x, y))
		}
	}
	s.frames = append(s.frames, frame)
	return nil
}

func (s *fakeSink) count() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.frames)
}

// solid fills the frame with one colour
type solid struct {
	name string
	c    color.RGBA
}

func (s solid) Name() string { return s.name }

func (s solid) Draw(dst *image.RGBA, _ time.Duration) {
	for i := 0; i < len(dst.Pix); i += 4 {
		dst.Pix[i], dst.Pix[i+1], dst.Pix[i+2], dst.Pix[i+3] = s.c.R, s.c.G, s.c.B, 255
	}
}

func near(a, b uint8) bool {
	return a-b < 3 || b-a < 3
}

func TestBars(t *testing.T) {
	dst := image.NewRGBA(image.Rect(0, 0, 64, 32))
	Bars{}.Draw(dst, 0)

	tests := []struct {
		x, y int
		want color.RGBA
	}{
		{0, 0, color.RGBA{255, 255, 255, 255}},
		{8, 10, color.RGBA{255, 255, 0, 255}},
		{40, 0, color.RGBA{255, 0, 0, 255}},
		{63, 23, color.RGBA{0, 0, 0, 255}},
		{0, 24, color.RGBA{0, 0, 0, 255}},
		{63, 31, color.RGBA{255, 255, 255, 255}},
	}
	for _, tt := range tests {
		if got := dst.RGBAAt(tt.x, tt.y); got != tt.want {
			t.Errorf("pixel (%d, %d) = %v, want %v", tt.x, tt.y, got, tt.want)
		}
	}
}

func TestText(t *testing.T) {
	s := NewText("HUB75", color.RGBA{255, 160, 0, 255})
	dst := image.NewRGBA(image.Rect(0, 0, 64, 16))

	lit := func() int {
		n := 0
		for i := 0; i < len(dst.Pix); i += 4 {
			if dst.Pix[i] != 0 {
				n++
			}
		}
		return n
	}

	s.Draw(dst, 0)
	if n := lit(); n != 0 {
		t.Errorf("text visible before scrolling in: %d pixels", n)
	}
	s.Draw(dst, 2*time.Second)
	if lit() == 0 {
		t.Error("no text drawn after two seconds")
	}
}

func TestSVG(t *testing.T) {
	doc := `<svg xmlns="http://www.w3.org/2000/svg" width="10" height="10" viewBox="0 0 10 10">
<rect x="0" y="0" width="10" height="5" fill="#ff0000"/>
<rect x="0" y="5" width="10" height="5" fill="#0000ff"/>
</svg>`
	s, err := NewSVG(strings.NewReader(doc), 8, 8)
	if err != nil {
		t.Fatalf("NewSVG() error = %v", err)
	}

	dst := image.NewRGBA(image.Rect(0, 0, 8, 8))
	s.Draw(dst, 0)
	if c := dst.RGBAAt(4, 1); c.R < 200 || c.B > 50 {
		t.Errorf("top half = %v, want red", c)
	}
	if c := dst.RGBAAt(4, 6); c.B < 200 || c.R > 50 {
		t.Errorf("bottom half = %v, want blue", c)
	}

	if _, err := NewSVG(strings.NewReader("<svg"), 8, 8); err == nil {
		t.Error("NewSVG() accepted truncated document")
	}
}

func TestLoadImage(t *testing.T) {
	src := image.NewRGBA(image.Rect(0, 0, 3, 3))
	for i := 0; i < len(src.Pix); i += 4 {
		src.Pix[i], src.Pix[i+1], src.Pix[i+2], src.Pix[i+3] = 10, 200, 90, 255
	}
	path := filepath.Join(t.TempDir(), "still.png")
	f, err := os.Create(path)
	if err != nil {
		t.Fatal(err)
	}
	if err := png.Encode(f, src); err != nil {
		t.Fatal(err)
	}
	f.Close()

	s, err := LoadImage(path, 16, 8)
	if err != nil {
		t.Fatalf("LoadImage() error = %v", err)
	}
	dst := image.NewRGBA(image.Rect(0, 0, 16, 8))
	s.Draw(dst, 0)
	for _, p := range []image.Point{{0, 0}, {15, 7}, {8, 4}} {
		c := dst.RGBAAt(p.X, p.Y)
		if !near(c.R, 10) || !near(c.G, 200) || !near(c.B, 90) {
			t.Errorf("pixel %v = %v, want about {10 200 90}", p, c)
		}
	}

	if _, err := LoadImage(filepath.Join(t.TempDir(), "missing.png"), 16, 8); err == nil {
		t.Error("LoadImage() of missing file succeeded")
	}
}

func TestFromConfig(t *testing.T) {
	tests := []struct {
		name    string
		sources []string
		want    []string
		wantErr bool
	}{
		{"default", []string{"bars", "text"}, []string{"bars", "text"}, false},
		{"unknown", []string{"bars", "fire"}, nil, true},
		{"svg without file", []string{"svg"}, nil, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := config.DefaultConfig().Render
			cfg.Sources = tt.sources
			cfg.SVGPath = filepath.Join(t.TempDir(), "none.svg")
			got, err := FromConfig(cfg, 32, 16)
			if (err != nil) != tt.wantErr {
				t.Fatalf("FromConfig() error = %v, wantErr %v", err, tt.wantErr)
			}
			for i, s := range got {
				if s.Name() != tt.want[i] {
					t.Errorf("source %d = %s, want %s", i, s.Name(), tt.want[i])
				}
			}
		})
	}
}

func TestRendererPlaylist(t *testing.T) {
	sink := &fakeSink{}
	red := solid{"red", color.RGBA{255, 0, 0, 255}}
	green := solid{"green", color.RGBA{0, 255, 0, 255}}

	r, err := NewRenderer(sink, 4, 2, Options{FPS: 30, Dwell: 15 * time.Second}, red, green)
	if err != nil {
		t.Fatal(err)
	}

	tests := []struct {
		elapsed time.Duration
		want    color.RGBA
	}{
		{0, red.c},
		{14 * time.Second, red.c},
		{15 * time.Second, green.c},
		{31 * time.Second, red.c},
	}
	for _, tt := range tests {
		if err := r.render(tt.elapsed); err != nil {
			t.Fatal(err)
		}
		last := sink.frames[len(sink.frames)-1]
		if got := last.RGBAAt(3, 1); got != tt.want {
			t.Errorf("frame at %v = %v, want %v", tt.elapsed, got, tt.want)
		}
	}
}

func TestRendererOverlay(t *testing.T) {
	sink := &fakeSink{}
	black := solid{"black", color.RGBA{0, 0, 0, 255}}
	r, err := NewRenderer(sink, 32, 16, Options{FPS: 30, Overlay: "8"}, black)
	if err != nil {
		t.Fatal(err)
	}
	if err := r.render(0); err != nil {
		t.Fatal(err)
	}

	lit := 0
	frame := sink.frames[0]
	for i := 0; i < len(frame.Pix); i += 4 {
		if frame.Pix[i] == 255 {
			lit++
		}
	}
	if lit == 0 {
		t.Error("overlay drew nothing")
	}
}

func TestRendererHoldAndStop(t *testing.T) {
	sink := &fakeSink{}
	r, err := NewRenderer(sink, 4, 2, Options{FPS: 200}, solid{"red", color.RGBA{255, 0, 0, 255}})
	if err != nil {
		t.Fatal(err)
	}

	r.Hold(time.Now().Add(time.Hour))
	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()
	if err := r.Start(ctx); !errors.Is(err, context.DeadlineExceeded) {
		t.Errorf("Start() error = %v, want DeadlineExceeded", err)
	}
	if n := sink.count(); n != 0 {
		t.Errorf("rendered %d frames while held", n)
	}

	r.Hold(time.Now())
	ctx, cancel = context.WithTimeout(context.Background(), 100*time.Millisecond)
	defer cancel()
	r.Start(ctx)
	if sink.count() == 0 {
		t.Error("no frames rendered after hold expired")
	}
}

func TestNewRendererInvalid(t *testing.T) {
	if _, err := NewRenderer(&fakeSink{}, 4, 2, Options{FPS: 30}); err == nil {
		t.Error("NewRenderer() without sources succeeded")
	}
	if _, err := NewRenderer(&fakeSink{}, 4, 2, Options{}, Bars{}); err == nil {
		t.Error("NewRenderer() with zero fps succeeded")
	}
}
