package hub75

import (
	"fmt"
	"log"

	"periph.io/x/conn/v3/physic"
)

const (
	// BitDepth is the number of bit-planes per colour channel
	BitDepth = 10

	// RowAddressBits is the width of the row field in a pulse descriptor
	RowAddressBits = 5

	// MaxRowPins is the number of row address lines the row program drives
	MaxRowPins = 5

	// FillerWords is the number of dummy words clocked out after each row
	FillerWords = 8

	numGPIO = 30
)

// Wiring is the fixed pin assignment: six consecutive colour lines
// (R0 G0 B0 R1 G1 B1), consecutive row address lines, the pixel clock and the
// strobe/OEn pair, which must be consecutive.
type Wiring struct {
	DataBase     uint8 `json:"data_base"`
	RowBase      uint8 `json:"row_base"`
	RowPins      uint8 `json:"row_pins"`
	Clock        uint8 `json:"clock"`
	Strobe       uint8 `json:"strobe"`
	OutputEnable uint8 `json:"output_enable"`
}

// DefaultWiring returns the wiring of the reference board
func DefaultWiring() Wiring {
	return Wiring{
		DataBase:     0,
		RowBase:      6,
		RowPins:      5,
		Clock:        11,
		Strobe:       12,
		OutputEnable: 13,
	}
}

// Pins returns every pin the wiring uses
func (w Wiring) Pins() []uint8 {
	pins := make([]uint8, 0, 9+w.RowPins)
	for i := uint8(0); i < 6; i++ {
		pins = append(pins, w.DataBase+i)
	}
	for i := uint8(0); i < w.RowPins; i++ {
		pins = append(pins, w.RowBase+i)
	}
	return append(pins, w.Clock, w.Strobe, w.OutputEnable)
}

// Validate checks the wiring for overlapping or unreachable pins
func (w Wiring) Validate() error {
	if w.RowPins == 0 || w.RowPins > MaxRowPins {
		return fmt.Errorf("hub75: %d row pins, want 1 to %d", w.RowPins, MaxRowPins)
	}
	if w.OutputEnable != w.Strobe+1 {
		return fmt.Errorf("hub75: output enable on GPIO%d must follow strobe on GPIO%d", w.OutputEnable, w.Strobe)
	}

	var used uint32
	for _, pin := range w.Pins() {
		if pin >= numGPIO {
			return fmt.Errorf("hub75: GPIO%d out of range", pin)
		}
		if used&(1<<pin) != 0 {
			return fmt.Errorf("hub75: GPIO%d assigned twice", pin)
		}
		used |= 1 << pin
	}
	return nil
}

// Config describes the panel and how it is driven
type Config struct {
	Width  int
	Height int
	Wiring Wiring

	// PixelClock is the data state machine clock; zero runs it at SysClock
	PixelClock physic.Frequency
	SysClock   physic.Frequency

	// Logger receives diagnostics; nil uses the standard logger
	Logger *log.Logger
}

// DefaultConfig returns the configuration of a 64x64 panel on the reference
// board.
func DefaultConfig() Config {
	return Config{
		Width:    64,
		Height:   64,
		Wiring:   DefaultWiring(),
		SysClock: 125 * physic.MegaHertz,
	}
}

// Validate checks panel geometry against the wiring
func (c Config) Validate() error {
	if c.Width <= 0 || c.Height <= 0 {
		return fmt.Errorf("hub75: invalid panel size %dx%d", c.Width, c.Height)
	}
	if c.Height%2 != 0 {
		return fmt.Errorf("hub75: panel height %d is not even", c.Height)
	}
	if err := c.Wiring.Validate(); err != nil {
		return err
	}
	if rows := c.Height / 2; rows > 1<<c.Wiring.RowPins {
		return fmt.Errorf("hub75: %d scan rows need more than %d row pins", rows, c.Wiring.RowPins)
	}
	if c.PixelClock > 0 && c.SysClock <= 0 {
		return fmt.Errorf("hub75: pixel clock %s set without system clock", c.PixelClock)
	}
	return nil
}

func (c Config) logger() *log.Logger {
	if c.Logger != nil {
		return c.Logger
	}
	return log.Default()
}
