// Package hub75 drives a HUB75 RGB LED matrix with two PIO state machines and
// four chained DMA channels.
//
// The panel has no memory of its own, so it is scanned continuously: each
// half-height row is shown once per bit-plane for a time proportional to the
// plane's weight, giving BitDepth bits per colour channel. Scanning runs
// entirely from the DMA completion interrupt once Start is called. Frames are
// written from any goroutine with Update, UpdateBGR, UpdateArea or
// UpdateImage; there is no locking between the two sides.
package hub75

import (
	"errors"
	"fmt"
	"log"
	"sync"
	"sync/atomic"

	"github.com/fkcurrie/hub75-golang/pkg/dma"
	"github.com/fkcurrie/hub75-golang/pkg/pio"
)

// ErrStarted is returned by a second call to Start
var ErrStarted = errors.New("hub75: driver already started")

// ErrClosed is returned by Start once the driver has been closed
var ErrClosed = errors.New("hub75: driver closed")

// Hardware is everything the driver claims resources from
type Hardware struct {
	PIO    []*pio.Block
	DMA    *dma.Controller
	IRQ    dma.InterruptLine
	Memory dma.Allocator
}

// Stats counts scan progress since Start
type Stats struct {
	RowCycles uint64 // completed OEn pulses
	Refreshes uint64 // completed passes over every row and plane
}

// Driver owns the claimed state machines, channels and transfer memory for one
// panel.
type Driver struct {
	cfg    Config
	log    *log.Logger
	width  int
	height int
	rows   int
	clkDiv uint32

	dma *dma.Controller
	irq dma.InterruptLine

	dataSM  *pio.StateMachine
	dataOff uint8
	rowSM   *pio.StateMachine
	rowOff  uint8
	ch      channels

	fb     *FrameBuffer
	filler dma.Buffer
	pulse  dma.Buffer
	sink   dma.Buffer

	pos       atomic.Uint32
	rowCycles atomic.Uint64
	refreshes atomic.Uint64

	mu      sync.Mutex
	started bool
	closed  bool
	release []func()
}

// New claims the scan programs, four DMA channels and the frame buffer, and
// installs the interrupt handler. The panel stays dark until Start.
func New(hw Hardware, cfg Config) (*Driver, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if hw.DMA == nil || hw.IRQ == nil || hw.Memory == nil || len(hw.PIO) == 0 {
		return nil, fmt.Errorf("hub75: incomplete hardware")
	}

	d := &Driver{
		cfg:    cfg,
		log:    cfg.logger(),
		width:  cfg.Width,
		height: cfg.Height,
		rows:   cfg.Height / 2,
		dma:    hw.DMA,
		irq:    hw.IRQ,
	}

	if cfg.PixelClock > 0 {
		c := pio.DefaultSMConfig()
		if err := c.SetClockFrequency(cfg.SysClock, cfg.PixelClock); err != nil {
			return nil, fmt.Errorf("hub75: %w", err)
		}
		d.clkDiv = c.ClkDiv
	}

	steps := []func() error{
		func() error { return d.claimPrograms(hw.PIO) },
		d.claimChannels,
		func() error { return d.allocBuffers(hw.Memory) },
		d.initPrograms,
		d.setupChain,
		d.installHandler,
	}
	for _, step := range steps {
		if err := step(); err != nil {
			d.Close()
			return nil, err
		}
	}

	d.log.Printf("hub75: driver ready for %dx%d panel, %d scan rows, %d bit-planes",
		d.width, d.height, d.rows, BitDepth)
	return d, nil
}

func (d *Driver) onClose(f func()) {
	d.release = append(d.release, f)
}

// Start begins scanning from row 0 of plane 0
func (d *Driver) Start() error {
	d.mu.Lock()
	defer d.mu.Unlock()

	if d.closed {
		return ErrClosed
	}
	if d.started {
		return ErrStarted
	}
	d.started = true

	pos := unpackPosition(d.pos.Load())
	d.dma.SetWriteAddr(d.ch.oenDone, d.sink.Addr(), true)
	d.dma.SetReadAddr(d.ch.pixel, d.fb.RowAddr(pos.Row), true)
	return nil
}

// Close stops scanning and releases everything New claimed, in reverse order
func (d *Driver) Close() error {
	d.mu.Lock()
	defer d.mu.Unlock()

	d.closed = true
	for i := len(d.release) - 1; i >= 0; i-- {
		d.release[i]()
	}
	d.release = nil
	return nil
}

// Width returns the panel width in pixels
func (d *Driver) Width() int {
	return d.width
}

// Height returns the panel height in pixels
func (d *Driver) Height() int {
	return d.height
}

// FrameBuffer returns the frame buffer the scan reads from
func (d *Driver) FrameBuffer() *FrameBuffer {
	return d.fb
}

// Position returns the row and plane being shown
func (d *Driver) Position() ScanPosition {
	return unpackPosition(d.pos.Load())
}

// Stats returns scan counters
func (d *Driver) Stats() Stats {
	return Stats{
		RowCycles: d.rowCycles.Load(),
		Refreshes: d.refreshes.Load(),
	}
}
