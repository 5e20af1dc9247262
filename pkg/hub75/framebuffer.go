package hub75

import (
	"github.com/fkcurrie/hub75-golang/pkg/dma"
)

// FrameBuffer holds one packed word per pixel in scan order: word 2i is pixel
// i of the top half, word 2i+1 is pixel i of the bottom half. Scan row r is
// the run of 2*width words starting at r*2*width.
//
// Words are read and written atomically. There is no consistency across words,
// so the scan may show a frame that is partly old and partly new.
type FrameBuffer struct {
	buf    dma.Buffer
	width  int
	height int
}

func newFrameBuffer(mem dma.Allocator, width, height int) (*FrameBuffer, error) {
	buf, err := mem.Alloc(width * height)
	if err != nil {
		return nil, err
	}
	return &FrameBuffer{buf: buf, width: width, height: height}, nil
}

// Index returns the word holding pixel (x, y)
func (f *FrameBuffer) Index(x, y int) int {
	half := f.height / 2
	if y < half {
		return (y*f.width + x) * 2
	}
	return ((y-half)*f.width+x)*2 + 1
}

// Set stores a packed word for pixel (x, y)
func (f *FrameBuffer) Set(x, y int, w uint32) {
	f.buf.Store(f.Index(x, y), w)
}

// At returns the packed word for pixel (x, y)
func (f *FrameBuffer) At(x, y int) uint32 {
	return f.buf.Load(f.Index(x, y))
}

// Word returns word i in scan order
func (f *FrameBuffer) Word(i int) uint32 {
	return f.buf.Load(i)
}

// Len returns the number of words
func (f *FrameBuffer) Len() int {
	return f.buf.Len()
}

// RowAddr returns the bus address of the first word of scan row r
func (f *FrameBuffer) RowAddr(r int) uint32 {
	return f.buf.AddrOf(r * 2 * f.width)
}
