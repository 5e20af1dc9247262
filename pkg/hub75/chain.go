package hub75

import (
	"fmt"

	"github.com/fkcurrie/hub75-golang/pkg/dma"
)

// channels is the roster of the four chained transfers
type channels struct {
	pixel   int // frame buffer row to data state machine
	filler  int // zero words that push the last pixels through
	oen     int // pulse descriptor to row state machine
	oenDone int // row state machine completion word, raises the interrupt
}

func (d *Driver) claimChannel(name string) (int, error) {
	ch, err := d.dma.Claim()
	if err != nil {
		d.log.Printf("hub75: cannot claim DMA channel for %s: %v", name, err)
		return -1, fmt.Errorf("hub75: %s channel: %w", name, err)
	}
	d.onClose(func() {
		d.dma.Abort(ch)
		d.dma.Unclaim(ch)
	})
	return ch, nil
}

func (d *Driver) claimChannels() error {
	var err error
	if d.ch.pixel, err = d.claimChannel("pixel"); err != nil {
		return err
	}
	if d.ch.filler, err = d.claimChannel("filler"); err != nil {
		return err
	}
	if d.ch.oen, err = d.claimChannel("output enable"); err != nil {
		return err
	}
	if d.ch.oenDone, err = d.claimChannel("output enable done"); err != nil {
		return err
	}
	d.log.Printf("hub75: DMA channels pixel=%d filler=%d oen=%d oen_done=%d",
		d.ch.pixel, d.ch.filler, d.ch.oen, d.ch.oenDone)
	return nil
}

// allocBuffers takes the frame buffer and the chain's control words from
// transfer memory.
func (d *Driver) allocBuffers(mem dma.Allocator) error {
	fb, err := newFrameBuffer(mem, d.width, d.height)
	if err != nil {
		return fmt.Errorf("hub75: frame buffer: %w", err)
	}
	d.fb = fb

	if d.filler, err = mem.Alloc(FillerWords); err != nil {
		return fmt.Errorf("hub75: filler words: %w", err)
	}
	if d.pulse, err = mem.Alloc(1); err != nil {
		return fmt.Errorf("hub75: pulse descriptor: %w", err)
	}
	if d.sink, err = mem.Alloc(1); err != nil {
		return fmt.Errorf("hub75: completion word: %w", err)
	}
	return nil
}

// setupChain programs all four channels without starting them. The pixel
// channel chains to the filler, which chains to the OEn channel. The OEn
// channel ends the chain; the interrupt handler re-points it for every row.
func (d *Driver) setupChain() error {
	data := d.dataSM
	row := d.rowSM

	pixel := dma.DefaultConfig(d.ch.pixel)
	pixel.Treq = data.DreqTx()
	pixel.ChainTo = d.ch.filler
	if err := d.dma.Configure(d.ch.pixel, pixel, data.TxFIFOAddr(), d.fb.RowAddr(0), uint32(2*d.width), false); err != nil {
		return fmt.Errorf("hub75: %w", err)
	}

	filler := dma.DefaultConfig(d.ch.filler)
	filler.IncrRead = false
	filler.Treq = data.DreqTx()
	filler.ChainTo = d.ch.oen
	if err := d.dma.Configure(d.ch.filler, filler, data.TxFIFOAddr(), d.filler.Addr(), FillerWords, false); err != nil {
		return fmt.Errorf("hub75: %w", err)
	}

	d.pulse.Store(0, PulseDescriptor(0, 0))
	oen := dma.DefaultConfig(d.ch.oen)
	oen.Treq = row.DreqTx()
	if err := d.dma.Configure(d.ch.oen, oen, row.TxFIFOAddr(), d.pulse.Addr(), 1, false); err != nil {
		return fmt.Errorf("hub75: %w", err)
	}

	done := dma.DefaultConfig(d.ch.oenDone)
	done.IncrRead = false
	done.Treq = row.DreqRx()
	if err := d.dma.Configure(d.ch.oenDone, done, d.sink.Addr(), row.RxFIFOAddr(), 1, false); err != nil {
		return fmt.Errorf("hub75: %w", err)
	}
	return nil
}

// installHandler hands the completion interrupt to the scan stepper
func (d *Driver) installHandler() error {
	if err := d.irq.SetHandler(d.onOutputEnableDone); err != nil {
		return fmt.Errorf("hub75: %w", err)
	}
	d.dma.SetIRQ0Enabled(d.ch.oenDone, true)
	d.onClose(func() {
		d.dma.SetIRQ0Enabled(d.ch.oenDone, false)
		d.irq.ClearHandler()
	})
	return nil
}
