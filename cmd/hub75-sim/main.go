// Command hub75-sim runs the panel driver against the emulated chip and shows
// the panel in a window.
package main

import (
	"context"
	"flag"
	"fmt"
	"log"

	"github.com/fkcurrie/hub75-golang/internal/config"
	"github.com/fkcurrie/hub75-golang/internal/emu"
	"github.com/fkcurrie/hub75-golang/internal/render"
	"github.com/fkcurrie/hub75-golang/internal/stream"
	"github.com/fkcurrie/hub75-golang/pkg/hub75"
	"github.com/hajimehoshi/ebiten/v2"
)

func main() {
	configPath := flag.String("config", "", "Path to configuration file (defaults when empty)")
	scale := flag.Int("scale", 8, "Window pixels per panel pixel")
	listen := flag.String("listen", "", "Serve the frame stream on this address")
	flag.Parse()

	cfg := config.DefaultConfig()
	if *configPath != "" {
		var err error
		if cfg, err = config.LoadConfig(*configPath); err != nil {
			log.Fatalf("Failed to load configuration: %v", err)
		}
	}

	if err := run(cfg, *scale, *listen); err != nil {
		log.Fatalf("Simulator failed: %v", err)
	}
}

func run(cfg *config.Config, scale int, listen string) error {
	hcfg, err := cfg.HUB75()
	if err != nil {
		return err
	}

	m, err := emu.New(emu.Config{Panel: emu.PanelConfig{
		Width:    hcfg.Width,
		Height:   hcfg.Height,
		DataBase: hcfg.Wiring.DataBase,
		RowBase:  hcfg.Wiring.RowBase,
	}})
	if err != nil {
		return err
	}

	d, err := hub75.New(hub75.Hardware{
		PIO:    m.Blocks(),
		DMA:    m.Controller(),
		IRQ:    m,
		Memory: m.Memory(),
	}, hcfg)
	if err != nil {
		return err
	}
	defer d.Close()

	dwell, err := cfg.Dwell()
	if err != nil {
		return err
	}
	sources, err := render.FromConfig(cfg.Render, d.Width(), d.Height())
	if err != nil {
		return err
	}
	r, err := render.NewRenderer(d, d.Width(), d.Height(), render.Options{
		FPS:     cfg.Render.FPS,
		Dwell:   dwell,
		Overlay: cfg.Render.Overlay,
	}, sources...)
	if err != nil {
		return err
	}

	if err := d.Start(); err != nil {
		return err
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go r.Start(ctx)
	if listen != "" {
		s := stream.NewServer(d, r, d.Width(), d.Height())
		go func() {
			if err := s.ListenAndServe(ctx, listen); err != nil && ctx.Err() == nil {
				log.Printf("Frame stream stopped: %v", err)
			}
		}()
	}

	g := &panelGame{m: m, rows: hcfg.Height / 2}
	ebiten.SetWindowTitle(fmt.Sprintf("HUB75 %dx%d", hcfg.Width, hcfg.Height))
	ebiten.SetWindowSize(hcfg.Width*scale, hcfg.Height*scale)
	ebiten.SetTPS(60)
	return ebiten.RunGame(g)
}

// panelGame advances the emulated scan one refresh per tick and shows the
// light the panel emitted during it.
type panelGame struct {
	m    *emu.Machine
	rows int
	img  *ebiten.Image
}

func (g *panelGame) Update() error {
	g.m.RunRows(g.rows * hub75.BitDepth)
	if faults := g.m.Faults(); len(faults) > 0 {
		return fmt.Errorf("emulated hardware fault: %v", faults[0])
	}
	return nil
}

func (g *panelGame) Draw(screen *ebiten.Image) {
	p := g.m.Panel()
	w, h := p.Size()
	if g.img == nil {
		g.img = ebiten.NewImage(w, h)
	}
	g.img.WritePixels(p.Image().Pix)
	p.Reset()
	screen.DrawImage(g.img, nil)
}

func (g *panelGame) Layout(_, _ int) (int, int) {
	return g.m.Panel().Size()
}
