package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"periph.io/x/conn/v3/physic"
)

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.json")
	if err := os.WriteFile(path, []byte(body), 0o644); err != nil {
		t.Fatal(err)
	}
	return path
}

func TestDefaultConfig(t *testing.T) {
	c := DefaultConfig()
	if err := c.Validate(); err != nil {
		t.Fatalf("Validate() error = %v", err)
	}

	hc, err := c.HUB75()
	if err != nil {
		t.Fatal(err)
	}
	if hc.SysClock != 125*physic.MegaHertz {
		t.Errorf("SysClock = %s, want 125MHz", hc.SysClock)
	}
	if hc.PixelClock != 0 {
		t.Errorf("PixelClock = %s, want 0", hc.PixelClock)
	}
	if d, _ := c.Dwell(); d != 15*time.Second {
		t.Errorf("Dwell() = %v, want 15s", d)
	}
}

func TestLoadConfig(t *testing.T) {
	tests := []struct {
		name    string
		body    string
		check   func(t *testing.T, c *Config)
		wantErr bool
	}{
		{
			name: "partial override",
			body: `{"panel": {"width": 32, "height": 16}, "board": {"pixel_clock": "25MHz"}}`,
			check: func(t *testing.T, c *Config) {
				if c.Panel.Width != 32 || c.Panel.Height != 16 {
					t.Errorf("panel = %+v", c.Panel)
				}
				if c.Board.SysClock != "125MHz" {
					t.Errorf("sys_clock default lost: %q", c.Board.SysClock)
				}
				hc, _ := c.HUB75()
				if hc.PixelClock != 25*physic.MegaHertz {
					t.Errorf("PixelClock = %s", hc.PixelClock)
				}
			},
		},
		{
			name: "custom wiring",
			body: `{"wiring": {"data_base": 2, "row_base": 8, "row_pins": 5, "clock": 13, "strobe": 14, "output_enable": 15}}`,
			check: func(t *testing.T, c *Config) {
				if c.Wiring.DataBase != 2 || c.Wiring.OutputEnable != 15 {
					t.Errorf("wiring = %+v", c.Wiring)
				}
			},
		},
		{name: "unknown field", body: `{"panel": {"depth": 3}}`, wantErr: true},
		{name: "bad frequency", body: `{"board": {"sys_clock": "fast"}}`, wantErr: true},
		{name: "bad dwell", body: `{"render": {"dwell": "-1s"}}`, wantErr: true},
		{name: "odd height", body: `{"panel": {"width": 64, "height": 31}}`, wantErr: true},
		{name: "no fps", body: `{"render": {"fps": 0}}`, wantErr: true},
		{name: "not json", body: `panel: 64`, wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c, err := LoadConfig(writeConfig(t, tt.body))
			if (err != nil) != tt.wantErr {
				t.Fatalf("LoadConfig() error = %v, wantErr %v", err, tt.wantErr)
			}
			if tt.check != nil {
				tt.check(t, c)
			}
		})
	}
}

func TestLoadConfigMissing(t *testing.T) {
	if _, err := LoadConfig(filepath.Join(t.TempDir(), "nope.json")); !os.IsNotExist(err) {
		t.Errorf("LoadConfig() error = %v, want not exist", err)
	}
}
