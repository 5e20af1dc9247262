//go:build linux

package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/fkcurrie/hub75-golang/internal/board"
	"github.com/fkcurrie/hub75-golang/internal/config"
	"github.com/fkcurrie/hub75-golang/pkg/gpio"
	"github.com/fkcurrie/hub75-golang/pkg/hub75"
)

func main() {
	configPath := flag.String("config", "", "Path to configuration file (defaults when empty)")
	dwell := flag.Duration("dwell", time.Second, "How long each line is toggled")
	loops := flag.Int("loops", 1, "Number of passes over the lines, 0 to run until interrupted")
	flag.Parse()

	cfg := config.DefaultConfig()
	if *configPath != "" {
		var err error
		if cfg, err = config.LoadConfig(*configPath); err != nil {
			log.Fatalf("Failed to load configuration: %v", err)
		}
	}

	// Set up signal handler for graceful shutdown
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		<-sigChan
		log.Println("Received shutdown signal")
		cancel()
	}()

	offsets, idle := board.IdleLevels(cfg.Wiring)
	if err := gpio.CheckFree(cfg.Board.GPIOChip, offsets); err != nil {
		log.Fatalf("Wiring lines unavailable: %v", err)
	}
	lines, err := gpio.Request(cfg.Board.GPIOChip, offsets, idle)
	if err != nil {
		log.Fatalf("Failed to request lines: %v", err)
	}
	defer lines.Close()

	names := labels(cfg.Wiring)
	for pass := 0; *loops == 0 || pass < *loops; pass++ {
		err := lines.Walk(ctx, *dwell, func(offset int) {
			log.Printf("Toggling GPIO%d (%s)", offset, names[offset])
		})
		if errors.Is(err, context.Canceled) {
			break
		}
		if err != nil {
			log.Printf("Failed to toggle lines: %v", err)
			return
		}
	}
	log.Println("Shutting down...")
}

// labels names each wiring line after its HUB75 connector signal
func labels(w hub75.Wiring) map[int]string {
	names := map[int]string{
		int(w.Clock):        "CLK",
		int(w.Strobe):       "LAT",
		int(w.OutputEnable): "OE",
	}
	for i, n := range []string{"R1", "G1", "B1", "R2", "G2", "B2"} {
		names[int(w.DataBase)+i] = n
	}
	for i := 0; i < int(w.RowPins); i++ {
		names[int(w.RowBase)+i] = fmt.Sprintf("%c", 'A'+i)
	}
	return names
}
