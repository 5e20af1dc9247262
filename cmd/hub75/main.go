//go:build linux

package main

import (
	"context"
	"errors"
	"flag"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/fkcurrie/hub75-golang/internal/board"
	"github.com/fkcurrie/hub75-golang/internal/config"
	"github.com/fkcurrie/hub75-golang/internal/render"
	"github.com/fkcurrie/hub75-golang/internal/stream"
	"github.com/fkcurrie/hub75-golang/pkg/hub75"
	"periph.io/x/host/v3"
	"periph.io/x/host/v3/rpi"
)

func main() {
	configPath := flag.String("config", "", "Path to configuration file (defaults when empty)")
	statsEvery := flag.Duration("stats", 10*time.Second, "Interval between scan statistics, 0 to disable")
	flag.Parse()

	cfg := config.DefaultConfig()
	if *configPath != "" {
		var err error
		if cfg, err = config.LoadConfig(*configPath); err != nil {
			log.Fatalf("Failed to load configuration: %v", err)
		}
	}

	if _, err := host.Init(); err != nil {
		log.Printf("Warning: failed to initialize periph.io: %v", err)
	}
	if !rpi.Present() {
		log.Println("Warning: not running on a Raspberry Pi, register addresses come from the configuration")
	}

	if err := run(cfg, *statsEvery); err != nil && !errors.Is(err, context.Canceled) {
		log.Fatalf("Failed to run panel: %v", err)
	}
	log.Println("Shutting down...")
}

func run(cfg *config.Config, statsEvery time.Duration) error {
	hcfg, err := cfg.HUB75()
	if err != nil {
		return err
	}

	if err := board.Blank(cfg.Board.GPIOChip, cfg.Wiring); err != nil {
		return err
	}
	b, err := board.Open(cfg.Board)
	if err != nil {
		return err
	}
	defer b.Close()

	d, err := hub75.New(b.Hardware(), hcfg)
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

	// Handle shutdown gracefully
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		<-sigChan
		cancel()
	}()

	errc := make(chan error, 2)
	go func() { errc <- r.Start(ctx) }()
	if cfg.Stream.Enabled {
		s := stream.NewServer(d, r, d.Width(), d.Height())
		go func() { errc <- s.ListenAndServe(ctx, cfg.Stream.Listen) }()
	}
	if statsEvery > 0 {
		go logStats(ctx, d, statsEvery)
	}

	err = <-errc
	cancel()
	return err
}

// logStats reports the refresh rate the scan is achieving
func logStats(ctx context.Context, d *hub75.Driver, every time.Duration) {
	ticker := time.NewTicker(every)
	defer ticker.Stop()

	last := d.Stats()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			s := d.Stats()
			rate := float64(s.Refreshes-last.Refreshes) / every.Seconds()
			log.Printf("Scan: %.1f refreshes/s, %d row cycles, at %+v", rate, s.RowCycles, d.Position())
			last = s
		}
	}
}
