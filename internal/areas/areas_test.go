package areas

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type pt struct{ x, y float64 }

func (p pt) Center() (float64, float64) { return p.x, p.y }

func TestNamedArea_ContainsIsInclusive(t *testing.T) {
	a := NamedArea{Name: "A", X: 10, Y: 20, Width: 30, Height: 40}

	tests := []struct {
		name string
		x, y float64
		want bool
	}{
		{"top-left corner", 10, 20, true},
		{"bottom-right corner", 40, 60, true},
		{"inside", 25.5, 33.3, true},
		{"left of", 9.99, 30, false},
		{"right of", 40.01, 30, false},
		{"above", 20, 19.5, false},
		{"below", 20, 60.5, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, a.Contains(tt.x, tt.y))
		})
	}
}

func TestGroupByArea(t *testing.T) {
	list := []NamedArea{
		{Name: "left", X: 0, Y: 0, Width: 50, Height: 50},
		{Name: "overlap", X: 40, Y: 0, Width: 20, Height: 50},
		{Name: "empty", X: 200, Y: 200, Width: 5, Height: 5},
	}
	marks := []pt{{10, 10}, {45, 25}, {55, 5}, {100, 100}}

	groups := GroupByArea(marks, list)

	require.Len(t, groups, 3)
	assert.Equal(t, []pt{{10, 10}, {45, 25}}, groups["left"])
	assert.Equal(t, []pt{{45, 25}, {55, 5}}, groups["overlap"])
	assert.NotNil(t, groups["empty"])
	assert.Empty(t, groups["empty"])

	assert.Equal(t, map[string]int{"left": 2, "overlap": 2, "empty": 0}, Counts(groups))
}

func TestGroupByArea_NoAreas(t *testing.T) {
	groups := GroupByArea([]pt{{1, 1}}, nil)
	assert.Empty(t, groups)
}

func TestNamedArea_Validate(t *testing.T) {
	tests := []struct {
		name    string
		area    NamedArea
		wantErr bool
	}{
		{"ok", NamedArea{Name: "a", Width: 1, Height: 1}, false},
		{"empty name", NamedArea{Width: 1, Height: 1}, true},
		{"negative x", NamedArea{Name: "a", X: -1, Width: 1, Height: 1}, true},
		{"zero width", NamedArea{Name: "a", Height: 1}, true},
		{"zero height", NamedArea{Name: "a", Width: 1}, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.area.Validate()
			if tt.wantErr {
				assert.ErrorIs(t, err, ErrInvalidArea)
			} else {
				assert.NoError(t, err)
			}
		})
	}
}

func TestSet(t *testing.T) {
	s, err := NewSet(NamedArea{Name: "a", Width: 5, Height: 5})
	require.NoError(t, err)

	require.NoError(t, s.Add(NamedArea{Name: "b", X: 1, Y: 2, Width: 3, Height: 4}))
	assert.ErrorIs(t, s.Add(NamedArea{Name: "a", Width: 1, Height: 1}), ErrDuplicateArea)
	assert.ErrorIs(t, s.Add(NamedArea{Name: "c"}), ErrInvalidArea)

	snap := s.Snapshot()
	require.Len(t, snap, 2)
	assert.Equal(t, "a", snap[0].Name)
	assert.Equal(t, "b", snap[1].Name)

	// Snapshot is a copy.
	snap[0].Name = "changed"
	got, ok := s.Get("a")
	require.True(t, ok)
	assert.Equal(t, 5, got.Width)

	require.NoError(t, s.Remove("a"))
	assert.ErrorIs(t, s.Remove("a"), ErrAreaNotFound)
	assert.Equal(t, 1, s.Len())
}

func TestNewSet_RejectsDuplicates(t *testing.T) {
	_, err := NewSet(NamedArea{Name: "a", Width: 1, Height: 1}, NamedArea{Name: "a", Width: 2, Height: 2})
	assert.ErrorIs(t, err, ErrDuplicateArea)
}
