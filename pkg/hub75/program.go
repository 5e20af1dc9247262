package hub75

import (
	"fmt"

	"github.com/fkcurrie/hub75-golang/pkg/pio"
)

// ErrNoStateMachine is returned when no PIO block can host a scan program
var ErrNoStateMachine = pio.ErrNoStateMachine

// claimPrograms finds a state machine and instruction memory for both scan
// programs.
func (d *Driver) claimPrograms(blocks []*pio.Block) error {
	dataSM, dataOff, err := pio.ClaimAndAddProgram(blocks, &pio.HUB75DataProgram)
	if err != nil {
		d.log.Printf("hub75: cannot place data program: %v", err)
		return fmt.Errorf("hub75: data program: %w", err)
	}
	d.dataSM, d.dataOff = dataSM, dataOff
	d.onClose(func() {
		dataSM.Unclaim()
		dataSM.Block().RemoveProgram(&pio.HUB75DataProgram, dataOff)
	})

	rowSM, rowOff, err := pio.ClaimAndAddProgram(blocks, &pio.HUB75RowProgram)
	if err != nil {
		d.log.Printf("hub75: cannot place row program: %v", err)
		return fmt.Errorf("hub75: row program: %w", err)
	}
	d.rowSM, d.rowOff = rowSM, rowOff
	d.onClose(func() {
		rowSM.Unclaim()
		rowSM.Block().RemoveProgram(&pio.HUB75RowProgram, rowOff)
	})

	d.log.Printf("hub75: data program on PIO%d SM%d at %d, row program on PIO%d SM%d at %d",
		d.dataSM.Block().Index(), d.dataSM.Index(), d.dataOff,
		d.rowSM.Block().Index(), d.rowSM.Index(), d.rowOff)
	return nil
}

// initPrograms binds the scan programs to the wiring and starts both state
// machines. They stall on empty FIFOs until the chain runs.
func (d *Driver) initPrograms() error {
	w := d.cfg.Wiring
	if err := pio.InitHUB75Data(d.dataSM, d.dataOff, w.DataBase, w.Clock); err != nil {
		return fmt.Errorf("hub75: %w", err)
	}
	if d.clkDiv != 0 {
		d.dataSM.SetClkDiv(d.clkDiv)
	}
	if err := pio.InitHUB75Row(d.rowSM, d.rowOff, w.RowBase, w.RowPins, w.Strobe); err != nil {
		return fmt.Errorf("hub75: %w", err)
	}
	return nil
}

// setShift patches both shift slots of the data program to output plane
func (d *Driver) setShift(plane int) {
	instr := pio.DataShiftInstr(uint8(plane))
	b := d.dataSM.Block()
	b.WriteInstr(d.dataOff+pio.HUB75DataShift0, instr)
	b.WriteInstr(d.dataOff+pio.HUB75DataShift1, instr)
}
