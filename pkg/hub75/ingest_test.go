package hub75

import (
	"errors"
	"image"
	"image/color"
	"testing"
)

const white = 1023 | 1023<<10 | 1023<<20

func TestUpdateAllWhite(t *testing.T) {
	d, _ := newTestDriver(t, 64, 64)

	src := make([]byte, 64*64*3)
	for i := range src {
		src[i] = 255
	}
	if err := d.Update(src); err != nil {
		t.Fatalf("Update() error = %v", err)
	}

	fb := d.FrameBuffer()
	if fb.Len() != 64*64 {
		t.Fatalf("frame buffer has %d words, want %d", fb.Len(), 64*64)
	}
	for i := 0; i < fb.Len(); i++ {
		if w := fb.Word(i); w != white {
			t.Fatalf("word %d = 0x%08x, want 0x%08x", i, w, white)
		}
	}
}

func TestUpdateInterleave(t *testing.T) {
	const width, height = 8, 4
	d, _ := newTestDriver(t, width, height)

	src := pattern(width, height)
	if err := d.Update(src); err != nil {
		t.Fatalf("Update() error = %v", err)
	}

	half := width * height / 2
	fb := d.FrameBuffer()
	for i := 0; i < half; i++ {
		top := Pack(src[i*3], src[i*3+1], src[i*3+2])
		j := i + half
		bottom := Pack(src[j*3], src[j*3+1], src[j*3+2])
		if got := fb.Word(2 * i); got != top {
			t.Errorf("word %d = 0x%08x, want top pixel %d 0x%08x", 2*i, got, i, top)
		}
		if got := fb.Word(2*i + 1); got != bottom {
			t.Errorf("word %d = 0x%08x, want bottom pixel %d 0x%08x", 2*i+1, got, j, bottom)
		}
	}

	// the pixels either side of the split
	if got, want := fb.At(width-1, height/2-1), Pack(src[(half-1)*3], src[(half-1)*3+1], src[(half-1)*3+2]); got != want {
		t.Errorf("last top pixel = 0x%08x, want 0x%08x", got, want)
	}
	if got, want := fb.Word(1), Pack(src[half*3], src[half*3+1], src[half*3+2]); got != want {
		t.Errorf("first bottom pixel = 0x%08x, want 0x%08x", got, want)
	}

	// row r starts at word r*2*width
	if fb.RowAddr(1)-fb.RowAddr(0) != uint32(2*width*4) {
		t.Errorf("row stride = %d bytes, want %d", fb.RowAddr(1)-fb.RowAddr(0), 2*width*4)
	}
}

func TestUpdateBGR(t *testing.T) {
	d, _ := newTestDriver(t, 2, 2)

	src := []byte{
		255, 0, 0, 0, 255, 0,
		0, 0, 255, 10, 20, 30,
	}
	if err := d.UpdateBGR(src); err != nil {
		t.Fatalf("UpdateBGR() error = %v", err)
	}

	fb := d.FrameBuffer()
	tests := []struct {
		x, y int
		want uint32
	}{
		{0, 0, Pack(0, 0, 255)},
		{1, 0, Pack(0, 255, 0)},
		{0, 1, Pack(255, 0, 0)},
		{1, 1, Pack(30, 20, 10)},
	}
	for _, tt := range tests {
		if got := fb.At(tt.x, tt.y); got != tt.want {
			t.Errorf("At(%d, %d) = 0x%08x, want 0x%08x", tt.x, tt.y, got, tt.want)
		}
	}
}

func TestUpdateArea(t *testing.T) {
	const width, height = 8, 8
	d, _ := newTestDriver(t, width, height)

	base := make([]byte, width*height*3)
	for i := range base {
		base[i] = 17
	}
	if err := d.Update(base); err != nil {
		t.Fatal(err)
	}
	before := Pack(17, 17, 17)

	// 2x2 BGR block at (3,3)-(4,4) straddles the half split at y=4
	area := []byte{
		1, 2, 3, 4, 5, 6,
		7, 8, 9, 10, 11, 12,
	}
	if err := d.UpdateArea(area, 3, 3, 4, 4); err != nil {
		t.Fatalf("UpdateArea() error = %v", err)
	}

	fb := d.FrameBuffer()
	want := map[[2]int]uint32{
		{3, 3}: Pack(3, 2, 1),
		{4, 3}: Pack(6, 5, 4),
		{3, 4}: Pack(9, 8, 7),
		{4, 4}: Pack(12, 11, 10),
	}
	for y := 0; y < height; y++ {
		for x := 0; x < width; x++ {
			w, ok := want[[2]int{x, y}]
			if !ok {
				w = before
			}
			if got := fb.At(x, y); got != w {
				t.Errorf("At(%d, %d) = 0x%08x, want 0x%08x", x, y, got, w)
			}
		}
	}

	// (3,4) is the first bottom-half row, stored in the odd word of row 0
	if got := fb.Word((0*width+3)*2 + 1); got != Pack(9, 8, 7) {
		t.Errorf("interleaved word for (3,4) = 0x%08x, want 0x%08x", got, Pack(9, 8, 7))
	}
}

func TestIngestValidation(t *testing.T) {
	const width, height = 4, 4
	d, _ := newTestDriver(t, width, height)

	tests := []struct {
		name    string
		call    func() error
		wantErr error
	}{
		{"short frame", func() error { return d.Update(make([]byte, width*height*3-1)) }, ErrBufferSize},
		{"long frame", func() error { return d.UpdateBGR(make([]byte, width*height*3+3)) }, ErrBufferSize},
		{"inverted x", func() error { return d.UpdateArea(make([]byte, 3), 2, 0, 1, 0) }, ErrAreaBounds},
		{"inverted y", func() error { return d.UpdateArea(make([]byte, 3), 0, 2, 0, 1) }, ErrAreaBounds},
		{"negative", func() error { return d.UpdateArea(make([]byte, 3), -1, 0, 0, 0) }, ErrAreaBounds},
		{"past right edge", func() error { return d.UpdateArea(make([]byte, 6), 3, 0, 4, 0) }, ErrAreaBounds},
		{"past bottom edge", func() error { return d.UpdateArea(make([]byte, 6), 0, 3, 0, 4) }, ErrAreaBounds},
		{"odd area short", func() error { return d.UpdateArea(make([]byte, 3*3*3-1), 0, 0, 2, 2) }, ErrBufferSize},
		{"image size", func() error { return d.UpdateImage(image.NewRGBA(image.Rect(0, 0, 4, 3))) }, ErrBufferSize},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if err := tt.call(); !errors.Is(err, tt.wantErr) {
				t.Errorf("error = %v, want %v", err, tt.wantErr)
			}
			for i := 0; i < d.FrameBuffer().Len(); i++ {
				if d.FrameBuffer().Word(i) != 0 {
					t.Fatalf("rejected input wrote word %d", i)
				}
			}
		})
	}
}

func TestUpdateImage(t *testing.T) {
	const width, height = 4, 4
	d, _ := newTestDriver(t, width, height)

	// an offset paletted image takes the generic path
	pal := image.NewPaletted(image.Rect(10, 10, 10+width, 10+height), color.Palette{
		color.RGBA{0, 0, 0, 255},
		color.RGBA{200, 100, 50, 255},
	})
	pal.SetColorIndex(11, 12, 1)
	if err := d.UpdateImage(pal); err != nil {
		t.Fatalf("UpdateImage() error = %v", err)
	}

	fb := d.FrameBuffer()
	if got := fb.At(1, 2); got != Pack(200, 100, 50) {
		t.Errorf("At(1, 2) = 0x%08x, want 0x%08x", got, Pack(200, 100, 50))
	}
	if got := fb.At(0, 0); got != 0 {
		t.Errorf("At(0, 0) = 0x%08x, want 0", got)
	}

	d.Clear()
	for i := 0; i < fb.Len(); i++ {
		if fb.Word(i) != 0 {
			t.Fatalf("word %d not cleared", i)
		}
	}
}

func TestUpdateAreaCorner(t *testing.T) {
	d, _ := newTestDriver(t, 64, 64)
	fb := d.FrameBuffer()

	area := []byte{
		0, 0, 255, 0, 255, 0,
		255, 0, 0, 255, 255, 255,
	}
	if err := d.UpdateArea(area, 0, 0, 1, 1); err != nil {
		t.Fatalf("UpdateArea() error = %v", err)
	}

	want := map[int]uint32{
		fb.Index(0, 0): Pack(255, 0, 0),
		fb.Index(1, 0): Pack(0, 255, 0),
		fb.Index(0, 1): Pack(0, 0, 255),
		fb.Index(1, 1): white,
	}
	for i := 0; i < fb.Len(); i++ {
		if got := fb.Word(i); got != want[i] {
			t.Errorf("word %d = 0x%08x, want 0x%08x", i, got, want[i])
		}
	}
}
