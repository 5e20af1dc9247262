package hub75

// ScanPosition is the row and bit-plane currently being shown
type ScanPosition struct {
	Row   int
	Plane int
}

// Next returns the position after p on a panel with rows scan rows. wrapped
// is set when the row wrapped to 0 and the plane advanced.
func (p ScanPosition) Next(rows int) (next ScanPosition, wrapped bool) {
	next = p
	next.Row++
	if next.Row >= rows {
		next.Row = 0
		next.Plane++
		if next.Plane >= BitDepth {
			next.Plane = 0
		}
		wrapped = true
	}
	return next, wrapped
}

func (p ScanPosition) pack() uint32 {
	return uint32(p.Row) | uint32(p.Plane)<<16
}

func unpackPosition(v uint32) ScanPosition {
	return ScanPosition{Row: int(v & 0xffff), Plane: int(v >> 16)}
}

// PulseDescriptor returns the word the row program consumes for row in plane:
// the row address in the low RowAddressBits bits and the OEn pulse length,
// 6<<plane cycles, above it.
func PulseDescriptor(row, plane int) uint32 {
	return uint32(row) | (6<<uint(plane))<<RowAddressBits
}

// DecodePulseDescriptor splits a descriptor into row address and pulse length
func DecodePulseDescriptor(d uint32) (row int, pulse uint32) {
	return int(d & (1<<RowAddressBits - 1)), d >> RowAddressBits
}

// onOutputEnableDone runs on the interrupt line each time the row program
// finishes an OEn pulse. It must not block, allocate or fail.
func (d *Driver) onOutputEnableDone() {
	d.dma.AckIRQ0(d.ch.oenDone)

	pos, wrapped := unpackPosition(d.pos.Load()).Next(d.rows)
	if wrapped {
		d.setShift(pos.Plane)
		if pos.Plane == 0 {
			d.refreshes.Add(1)
		}
	}
	d.pos.Store(pos.pack())
	d.rowCycles.Add(1)

	d.pulse.Store(0, PulseDescriptor(pos.Row, pos.Plane))
	d.dma.SetReadAddr(d.ch.oen, d.pulse.Addr(), false)

	d.dma.SetWriteAddr(d.ch.oenDone, d.sink.Addr(), true)
	d.dma.SetReadAddr(d.ch.pixel, d.fb.RowAddr(pos.Row), true)
}
