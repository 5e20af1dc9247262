package config

import (
	"encoding/json"
	"fmt"
	"os"
	"time"

	"github.com/fkcurrie/hub75-golang/pkg/hub75"
	"periph.io/x/conn/v3/physic"
)

// Config represents the application configuration
type Config struct {
	Panel  PanelConfig  `json:"panel"`
	Wiring hub75.Wiring `json:"wiring"`
	Board  BoardConfig  `json:"board"`
	Render RenderConfig `json:"render"`
	Stream StreamConfig `json:"stream"`
}

// PanelConfig is the panel geometry
type PanelConfig struct {
	Width  int `json:"width"`
	Height int `json:"height"`
}

// BoardConfig locates the scan hardware
type BoardConfig struct {
	// MemDevice is mapped for register and transfer memory access
	MemDevice string `json:"mem_device"`
	GPIOChip  string `json:"gpio_chip"`

	PIOBases  []uint32 `json:"pio_bases"`
	DMABase   uint32   `json:"dma_base"`
	IOBank0   uint32   `json:"io_bank0_base"`
	SRAMBase  uint32   `json:"sram_base"`
	SRAMWords int      `json:"sram_words"`

	// SysClock and PixelClock are frequency strings such as "125MHz"
	SysClock   string `json:"sys_clock"`
	PixelClock string `json:"pixel_clock"`
}

// RenderConfig selects what is drawn when nothing is streaming
type RenderConfig struct {
	Sources []string `json:"sources"`
	FPS     int      `json:"fps"`
	Dwell   string   `json:"dwell"`
	SVGPath string   `json:"svg_path"`
	Image   string   `json:"image_path"`
	Text    string   `json:"text"`
	Overlay string   `json:"overlay"`
}

// StreamConfig is the websocket frame server
type StreamConfig struct {
	Enabled bool   `json:"enabled"`
	Listen  string `json:"listen"`
}

// LoadConfig loads the configuration from a file, filling unset fields from
// DefaultConfig.
func LoadConfig(path string) (*Config, error) {
	file, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer file.Close()

	config := DefaultConfig()
	dec := json.NewDecoder(file)
	dec.DisallowUnknownFields()
	if err := dec.Decode(config); err != nil {
		return nil, fmt.Errorf("failed to parse %s: %w", path, err)
	}
	if err := config.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config %s: %w", path, err)
	}
	return config, nil
}

// DefaultConfig returns the default configuration
func DefaultConfig() *Config {
	return &Config{
		Panel: PanelConfig{
			Width:  64,
			Height: 64,
		},
		Wiring: hub75.DefaultWiring(),
		Board: BoardConfig{
			MemDevice: "/dev/mem",
			GPIOChip:  "gpiochip0",
			PIOBases:  []uint32{0x50200000, 0x50300000},
			DMABase:   0x50000000,
			IOBank0:   0x40014000,
			SRAMBase:  0x20030000,
			SRAMWords: 16 * 1024,
			SysClock:  "125MHz",
		},
		Render: RenderConfig{
			Sources: []string{"bars", "text"},
			FPS:     30,
			Dwell:   "15s",
			Text:    "HUB75",
		},
		Stream: StreamConfig{
			Listen: ":8075",
		},
	}
}

// Validate checks that every string-encoded value parses
func (c *Config) Validate() error {
	if _, err := c.HUB75(); err != nil {
		return err
	}
	if _, err := c.Dwell(); err != nil {
		return err
	}
	if c.Render.FPS <= 0 {
		return fmt.Errorf("render fps %d must be positive", c.Render.FPS)
	}
	if len(c.Board.PIOBases) == 0 {
		return fmt.Errorf("no PIO blocks configured")
	}
	return nil
}

// HUB75 returns the driver configuration
func (c *Config) HUB75() (hub75.Config, error) {
	cfg := hub75.Config{
		Width:  c.Panel.Width,
		Height: c.Panel.Height,
		Wiring: c.Wiring,
	}
	if err := parseFrequency(c.Board.SysClock, &cfg.SysClock); err != nil {
		return cfg, fmt.Errorf("sys_clock: %w", err)
	}
	if err := parseFrequency(c.Board.PixelClock, &cfg.PixelClock); err != nil {
		return cfg, fmt.Errorf("pixel_clock: %w", err)
	}
	return cfg, cfg.Validate()
}

// Dwell returns how long each render source is shown
func (c *Config) Dwell() (time.Duration, error) {
	return parseDuration(c.Render.Dwell)
}

func parseFrequency(s string, f *physic.Frequency) error {
	if s == "" {
		*f = 0
		return nil
	}
	return f.Set(s)
}

func parseDuration(s string) (time.Duration, error) {
	if s == "" {
		return 0, nil
	}
	d, err := time.ParseDuration(s)
	if err != nil {
		return 0, err
	}
	if d < 0 {
		return 0, fmt.Errorf("negative duration %s", s)
	}
	return d, nil
}
