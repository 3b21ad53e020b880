package detection

import (
	"reflect"
	"testing"

	"github.com/ironsheep/thermal-dots-mcp/internal/imaging"
)

func TestHueRanges(t *testing.T) {
	tests := []struct {
		name string
		h    int
		tol  int
		want [][2]int
	}{
		{"inside", 90, 10, [][2]int{{80, 100}}},
		{"underflow", 2, 10, [][2]int{{0, 12}, {172, 179}}},
		{"overflow", 175, 10, [][2]int{{165, 179}, {0, 5}}},
		{"touching zero", 10, 10, [][2]int{{0, 20}}},
		{"touching max", 169, 10, [][2]int{{159, 179}}},
		{"full circle", 40, 95, [][2]int{{0, 179}}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := hueRanges(tt.h, tt.tol); !reflect.DeepEqual(got, tt.want) {
				t.Errorf("hueRanges(%d,%d): got %v, want %v", tt.h, tt.tol, got, tt.want)
			}
		})
	}
}

func TestColorMask_HueWraparound(t *testing.T) {
	hues := []uint8{176, 8, 90, 0, 179, 13, 171}
	want := []bool{true, true, false, true, true, false, false}

	planes := &imaging.HSVPlanes{
		Width:  len(hues),
		Height: 1,
		H:      hues,
		S:      make([]uint8, len(hues)),
		V:      make([]uint8, len(hues)),
	}
	for i := range planes.S {
		planes.S[i] = 200
	}

	m := colorMask(planes, imaging.HSVColor{H: 2, S: 200, V: 255}, 10)
	for i, h := range hues {
		if m.fg[i] != want[i] {
			t.Errorf("hue %d: got %v, want %v", h, m.fg[i], want[i])
		}
	}
}

func TestColorMask_Saturation(t *testing.T) {
	planes := &imaging.HSVPlanes{
		Width:  3,
		Height: 1,
		H:      []uint8{50, 50, 50},
		S:      []uint8{110, 130, 250},
		V:      []uint8{0, 255, 10},
	}

	m := colorMask(planes, imaging.HSVColor{H: 50, S: 120}, 15)
	want := []bool{true, true, false}
	if !reflect.DeepEqual(m.fg, want) {
		t.Errorf("got %v, want %v", m.fg, want)
	}
}

func TestReferenceMask(t *testing.T) {
	planes := &imaging.HSVPlanes{Width: 4, Height: 1, V: []uint8{100, 129, 130, 255}}

	m := referenceMask(planes, 100, 30)
	if want := []bool{false, false, true, true}; !reflect.DeepEqual(m.fg, want) {
		t.Errorf("got %v, want %v", m.fg, want)
	}

	// A saturated cutoff keeps only full brightness.
	m = referenceMask(planes, 240, 30)
	if want := []bool{false, false, false, true}; !reflect.DeepEqual(m.fg, want) {
		t.Errorf("saturated: got %v, want %v", m.fg, want)
	}
}

func TestMaskClean_RemovesSpeckle(t *testing.T) {
	m := createMask(40, 40, func(x, y int) bool {
		dx, dy := x-20, y-20
		return dx*dx+dy*dy <= 64 || (x == 3 && y == 3)
	})

	cleaned := m.clean()
	if cleaned.at(3, 3) {
		t.Error("isolated speckle survived opening")
	}
	if !cleaned.at(20, 20) {
		t.Error("dot center removed by cleaning")
	}
}
