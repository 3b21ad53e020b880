// Package areas holds the user-defined rectangles that scope dot counting
// and the center-point membership test.
package areas

import (
	"errors"
	"fmt"
	"image"
	"sync"
)

var (
	// ErrInvalidArea is returned for areas with an empty name, a negative
	// origin, or a size below one pixel.
	ErrInvalidArea = errors.New("invalid area")
	// ErrDuplicateArea is returned when adding an area whose name exists.
	ErrDuplicateArea = errors.New("area already exists")
	// ErrAreaNotFound is returned when removing an unknown area.
	ErrAreaNotFound = errors.New("area not found")
)

// NamedArea is an axis-aligned rectangle in frame pixel coordinates.
type NamedArea struct {
	Name   string `json:"name"`
	X      int    `json:"x"`
	Y      int    `json:"y"`
	Width  int    `json:"width"`
	Height int    `json:"height"`
}

// Validate checks the area's name and geometry.
func (a NamedArea) Validate() error {
	switch {
	case a.Name == "":
		return fmt.Errorf("%w: empty name", ErrInvalidArea)
	case a.X < 0 || a.Y < 0:
		return fmt.Errorf("%w: %q origin (%d,%d) is negative", ErrInvalidArea, a.Name, a.X, a.Y)
	case a.Width < 1 || a.Height < 1:
		return fmt.Errorf("%w: %q size %dx%d", ErrInvalidArea, a.Name, a.Width, a.Height)
	}
	return nil
}

// Rect returns the area as an image rectangle. Max is the far edge
// (X+Width, Y+Height), which Contains treats as inside.
func (a NamedArea) Rect() image.Rectangle {
	return image.Rect(a.X, a.Y, a.X+a.Width, a.Y+a.Height)
}

// Contains reports whether (x, y) lies in the area, boundary included on
// all four sides.
func (a NamedArea) Contains(x, y float64) bool {
	return float64(a.X) <= x && x <= float64(a.X+a.Width) &&
		float64(a.Y) <= y && y <= float64(a.Y+a.Height)
}

// Centered is anything with a center point.
type Centered interface {
	Center() (float64, float64)
}

// GroupByArea assigns each mark to every area containing its center.
//
// The result has a key for every area, with an empty slice when nothing falls
// inside, so downstream code never has to check for missing names. Marks
// keep their input order and are not modified; a mark in overlapping areas
// appears under each of them.
func GroupByArea[T Centered](marks []T, areas []NamedArea) map[string][]T {
	groups := make(map[string][]T, len(areas))
	for _, a := range areas {
		in := make([]T, 0)
		for _, m := range marks {
			if a.Contains(m.Center()) {
				in = append(in, m)
			}
		}
		groups[a.Name] = in
	}
	return groups
}

// Counts returns the number of marks per area.
func Counts[T any](groups map[string][]T) map[string]int {
	out := make(map[string]int, len(groups))
	for name, g := range groups {
		out[name] = len(g)
	}
	return out
}

// Set is an ordered collection of areas with unique names. It is safe for
// concurrent use; batch runs read it through Snapshot.
type Set struct {
	mu    sync.RWMutex
	areas []NamedArea
}

// NewSet builds a set from areas, rejecting invalid or duplicate entries.
func NewSet(list ...NamedArea) (*Set, error) {
	s := &Set{}
	for _, a := range list {
		if err := s.Add(a); err != nil {
			return nil, err
		}
	}
	return s, nil
}

// Add appends an area.
func (s *Set) Add(a NamedArea) error {
	if err := a.Validate(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, existing := range s.areas {
		if existing.Name == a.Name {
			return fmt.Errorf("%w: %q", ErrDuplicateArea, a.Name)
		}
	}
	s.areas = append(s.areas, a)
	return nil
}

// Remove deletes the area with the given name.
func (s *Set) Remove(name string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for i, a := range s.areas {
		if a.Name == name {
			s.areas = append(s.areas[:i], s.areas[i+1:]...)
			return nil
		}
	}
	return fmt.Errorf("%w: %q", ErrAreaNotFound, name)
}

// Get returns the named area.
func (s *Set) Get(name string) (NamedArea, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	for _, a := range s.areas {
		if a.Name == name {
			return a, true
		}
	}
	return NamedArea{}, false
}

// Len returns the number of areas.
func (s *Set) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.areas)
}

// Snapshot returns a copy of the areas in insertion order.
func (s *Set) Snapshot() []NamedArea {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]NamedArea, len(s.areas))
	copy(out, s.areas)
	return out
}
