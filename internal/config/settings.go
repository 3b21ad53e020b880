// Package config holds the persisted analysis settings and the process
// environment.
//
// Settings are stored as a small JSON document. Reading is lenient: a value of
// the wrong type is ignored (the default stays), numbers are clamped into
// range and malformed areas are skipped, so a hand-edited file never prevents
// startup.
package config

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"sort"

	"github.com/tidwall/gjson"
	"github.com/tidwall/sjson"

	"github.com/ironsheep/thermal-dots-mcp/internal/areas"
	"github.com/ironsheep/thermal-dots-mcp/internal/detection"
	"github.com/ironsheep/thermal-dots-mcp/internal/render"
	"github.com/ironsheep/thermal-dots-mcp/internal/sampler"
)

// Version is the settings format version written by Save.
const Version = 1

// Render temperature window limits in degrees Celsius.
const (
	MinRenderTemp = -40
	MaxRenderTemp = 400
)

// Percentile limits.
const (
	MinPercentile = 1
	MaxPercentile = 100
)

const maxCoord = 1_000_000_000

var (
	// ErrUnknownSetting is returned by Patch for keys that are not settings.
	ErrUnknownSetting = errors.New("unknown setting")

	// ErrInvalidSettings is returned when a settings file is not a JSON object.
	// The accompanying Settings are the defaults.
	ErrInvalidSettings = errors.New("invalid settings file")
)

// Settings is the versioned configuration of the analysis pipeline.
type Settings struct {
	Version int `json:"version"`

	// BaseX and BaseY locate the reference point. Both must be set for
	// analysis to run.
	BaseX *int `json:"base_x"`
	BaseY *int `json:"base_y"`

	DetectionMode  detection.Mode `json:"detection_mode"`
	TargetColor    *[3]int        `json:"target_color"`
	ColorTolerance int            `json:"color_tolerance"`
	MinArea        int            `json:"min_area"`
	MaxArea        int            `json:"max_area"`
	MinCircularity float64        `json:"min_circularity"`
	Morphology     bool           `json:"morphology"`

	BatchSamplingRate int               `json:"batch_sampling_rate"`
	Percentiles       []int             `json:"percentiles"`
	NamedAreas        []areas.NamedArea `json:"named_areas"`

	RenderTempMin    float64 `json:"render_temp_min"`
	RenderTempMax    float64 `json:"render_temp_max"`
	RenderColormap   string  `json:"render_colormap"`
	RenderEmissivity float64 `json:"render_emissivity"`
	RenderReflectedC float64 `json:"render_reflected_temp"`
}

// Defaults returns the settings used when nothing is stored.
func Defaults() Settings {
	d := detection.DefaultParams()
	r := render.DefaultConfig()
	return Settings{
		Version:           Version,
		DetectionMode:     d.Mode,
		ColorTolerance:    d.Tolerance,
		MinArea:           int(d.MinArea),
		MaxArea:           int(d.MaxArea),
		MinCircularity:    d.MinCircularity,
		BatchSamplingRate: 10,
		Percentiles:       []int{10, 50, 90},
		NamedAreas:        []areas.NamedArea{},
		RenderTempMin:     r.TempMin,
		RenderTempMax:     r.TempMax,
		RenderColormap:    string(r.Colormap),
		RenderEmissivity:  r.Emissivity,
		RenderReflectedC:  r.ReflectedC,
	}
}

// keys lists every top-level settings field, for Patch.
var keys = map[string]bool{
	"base_x": true, "base_y": true, "detection_mode": true, "target_color": true,
	"color_tolerance": true, "min_area": true, "max_area": true, "min_circularity": true,
	"morphology": true, "batch_sampling_rate": true, "percentiles": true, "named_areas": true,
	"render_temp_min": true, "render_temp_max": true, "render_colormap": true,
	"render_emissivity": true, "render_reflected_temp": true,
}

// Keys returns the names of all settings, sorted.
func Keys() []string {
	out := make([]string, 0, len(keys))
	for k := range keys {
		out = append(out, k)
	}
	sort.Strings(out)
	return out
}

// Parse reads settings from JSON, starting from the defaults.
//
// Returns the defaults and ErrInvalidSettings when data is not a JSON object.
func Parse(data []byte) (Settings, error) {
	s := Defaults()
	if !gjson.ValidBytes(data) {
		return s, fmt.Errorf("%w: malformed JSON", ErrInvalidSettings)
	}
	doc := gjson.ParseBytes(data)
	if !doc.IsObject() {
		return s, fmt.Errorf("%w: not an object", ErrInvalidSettings)
	}

	if v := doc.Get("base_x"); v.Exists() {
		s.BaseX = optionalCoord(v)
	}
	if v := doc.Get("base_y"); v.Exists() {
		s.BaseY = optionalCoord(v)
	}
	if v := doc.Get("detection_mode"); v.Type == gjson.String {
		switch detection.Mode(v.String()) {
		case detection.ModeReference, detection.ModeColor:
			s.DetectionMode = detection.Mode(v.String())
		}
	}
	if v := doc.Get("target_color"); v.Exists() {
		s.TargetColor = parseColor(v)
	}
	if v := doc.Get("color_tolerance"); v.Type == gjson.Number {
		s.ColorTolerance = int(v.Int())
	}
	if v := doc.Get("min_area"); v.Type == gjson.Number {
		s.MinArea = int(v.Int())
	}
	if v := doc.Get("max_area"); v.Type == gjson.Number {
		s.MaxArea = int(v.Int())
	}
	if v := doc.Get("min_circularity"); v.Type == gjson.Number {
		s.MinCircularity = v.Float()
	}
	if v := doc.Get("morphology"); v.IsBool() {
		s.Morphology = v.Bool()
	}
	if v := doc.Get("batch_sampling_rate"); v.Type == gjson.Number {
		s.BatchSamplingRate = int(v.Int())
	}
	if v := doc.Get("percentiles"); v.IsArray() {
		s.Percentiles = parsePercentiles(v)
	}
	if v := doc.Get("named_areas"); v.Exists() {
		s.NamedAreas = parseAreas(v)
	}
	if v := doc.Get("render_temp_min"); v.Type == gjson.Number {
		s.RenderTempMin = v.Float()
	}
	if v := doc.Get("render_temp_max"); v.Type == gjson.Number {
		s.RenderTempMax = v.Float()
	}
	if v := doc.Get("render_colormap"); v.Type == gjson.String {
		if _, err := render.ParseColormap(v.String()); err == nil {
			s.RenderColormap = v.String()
		}
	}
	if v := doc.Get("render_emissivity"); v.Type == gjson.Number {
		s.RenderEmissivity = v.Float()
	}
	if v := doc.Get("render_reflected_temp"); v.Type == gjson.Number {
		s.RenderReflectedC = v.Float()
	}
	return s.Clamp(), nil
}

func optionalCoord(v gjson.Result) *int {
	if v.Type != gjson.Number {
		return nil
	}
	n := clampInt(int(v.Int()), 0, maxCoord)
	return &n
}

func parseColor(v gjson.Result) *[3]int {
	arr := v.Array()
	if !v.IsArray() || len(arr) != 3 {
		return nil
	}
	var c [3]int
	for i, e := range arr {
		if e.Type != gjson.Number {
			return nil
		}
		c[i] = clampInt(int(e.Int()), 0, 255)
	}
	return &c
}

func parsePercentiles(v gjson.Result) []int {
	out := make([]int, 0)
	v.ForEach(func(_, e gjson.Result) bool {
		if e.Type == gjson.Number {
			out = append(out, int(e.Int()))
		}
		return true
	})
	return out
}

// parseAreas keeps every well-formed entry. Coordinates are clamped; entries
// with a missing or non-numeric field, an empty name or a name already taken
// are skipped.
func parseAreas(v gjson.Result) []areas.NamedArea {
	out := make([]areas.NamedArea, 0)
	if !v.IsArray() {
		return out
	}
	seen := make(map[string]bool)
	v.ForEach(func(_, e gjson.Result) bool {
		if !e.IsObject() {
			return true
		}
		name := e.Get("name")
		x, y := e.Get("x"), e.Get("y")
		w, h := e.Get("width"), e.Get("height")
		if name.Type != gjson.String || name.String() == "" || seen[name.String()] {
			return true
		}
		for _, n := range []gjson.Result{x, y, w, h} {
			if n.Type != gjson.Number {
				return true
			}
		}
		seen[name.String()] = true
		out = append(out, areas.NamedArea{
			Name:   name.String(),
			X:      clampInt(int(x.Int()), 0, maxCoord),
			Y:      clampInt(int(y.Int()), 0, maxCoord),
			Width:  clampInt(int(w.Int()), 1, maxCoord),
			Height: clampInt(int(h.Int()), 1, maxCoord),
		})
		return true
	})
	return out
}

// Clamp returns a copy with every field in range.
//
// Ranges: color_tolerance 1-100, min_area 10-5000, max_area 0 or 10-5000
// (0 is unbounded), min_circularity 0-1, batch_sampling_rate 1-100,
// percentiles 1-100 deduplicated and sorted, render temperatures -40..400
// with min below max, emissivity 0.1-1, reflected temperature -100..1000.
func (s Settings) Clamp() Settings {
	s.Version = Version
	if s.DetectionMode != detection.ModeColor {
		s.DetectionMode = detection.ModeReference
	}
	s.ColorTolerance = clampInt(s.ColorTolerance, detection.MinTolerance, detection.MaxTolerance)
	s.MinArea = clampInt(s.MinArea, detection.MinAreaLimit, detection.MaxAreaLimit)
	if s.MaxArea > 0 {
		s.MaxArea = clampInt(s.MaxArea, detection.MinAreaLimit, detection.MaxAreaLimit)
	} else {
		s.MaxArea = 0
	}
	s.MinCircularity = clampFloat(s.MinCircularity, 0, 1)
	s.BatchSamplingRate = clampInt(s.BatchSamplingRate, sampler.MinStride, sampler.MaxStride)

	seen := make(map[int]bool)
	pcts := make([]int, 0, len(s.Percentiles))
	for _, p := range s.Percentiles {
		p = clampInt(p, MinPercentile, MaxPercentile)
		if !seen[p] {
			seen[p] = true
			pcts = append(pcts, p)
		}
	}
	sort.Ints(pcts)
	if len(pcts) == 0 {
		pcts = Defaults().Percentiles
	}
	s.Percentiles = pcts

	if s.NamedAreas == nil {
		s.NamedAreas = []areas.NamedArea{}
	}

	s.RenderTempMin = clampFloat(s.RenderTempMin, MinRenderTemp, MaxRenderTemp)
	s.RenderTempMax = clampFloat(s.RenderTempMax, MinRenderTemp, MaxRenderTemp)
	if s.RenderTempMin >= s.RenderTempMax {
		d := render.DefaultConfig()
		s.RenderTempMin, s.RenderTempMax = d.TempMin, d.TempMax
	}
	if _, err := render.ParseColormap(s.RenderColormap); err != nil {
		s.RenderColormap = string(render.WhiteHot)
	}
	s.RenderEmissivity = clampFloat(s.RenderEmissivity, 0.1, 1)
	s.RenderReflectedC = clampFloat(s.RenderReflectedC, -100, 1000)
	return s
}

// HasReference reports whether a reference point is set.
func (s Settings) HasReference() bool {
	return s.BaseX != nil && s.BaseY != nil
}

// DetectionParams converts the settings to detector parameters. Without a
// reference point the reference is (0, 0).
func (s Settings) DetectionParams() detection.Params {
	p := detection.DefaultParams().
		WithTolerance(s.ColorTolerance).
		WithArea(float64(s.MinArea), float64(s.MaxArea)).
		WithCircularity(s.MinCircularity)
	if s.HasReference() {
		p = p.WithReference(*s.BaseX, *s.BaseY)
	}
	p.Mode = s.DetectionMode
	if s.TargetColor != nil {
		p.TargetColor = &detection.RGB{
			R: uint8(s.TargetColor[0]),
			G: uint8(s.TargetColor[1]),
			B: uint8(s.TargetColor[2]),
		}
	}
	p.Morphology = s.Morphology
	return p.Clamp()
}

// RenderConfig converts the settings to a render configuration.
func (s Settings) RenderConfig() render.Config {
	c := render.DefaultConfig()
	c.TempMin = s.RenderTempMin
	c.TempMax = s.RenderTempMax
	c.Colormap = render.Colormap(s.RenderColormap)
	c.Emissivity = s.RenderEmissivity
	c.ReflectedC = s.RenderReflectedC
	return c
}

// Areas returns a copy of the named areas.
func (s Settings) Areas() []areas.NamedArea {
	out := make([]areas.NamedArea, len(s.NamedAreas))
	copy(out, s.NamedAreas)
	return out
}

// Load reads settings from path. A missing file yields the defaults without
// error.
func Load(path string) (Settings, error) {
	data, err := os.ReadFile(path)
	if errors.Is(err, os.ErrNotExist) {
		return Defaults(), nil
	}
	if err != nil {
		return Defaults(), fmt.Errorf("failed to read settings: %w", err)
	}
	return Parse(data)
}

// Save writes settings to path as indented JSON.
func Save(path string, s Settings) error {
	data, err := json.MarshalIndent(s.Clamp(), "", "  ")
	if err != nil {
		return fmt.Errorf("failed to encode settings: %w", err)
	}
	if err := os.WriteFile(path, append(data, '\n'), 0o644); err != nil {
		return fmt.Errorf("failed to write settings: %w", err)
	}
	return nil
}

// Patch sets one top-level key in the settings file and returns the result
// after re-reading and clamping. A nil value removes the key, restoring its
// default. A missing or unreadable file is treated as the defaults.
func Patch(path, key string, value any) (Settings, error) {
	if !keys[key] {
		return Settings{}, fmt.Errorf("%w: %q", ErrUnknownSetting, key)
	}

	current, err := Load(path)
	if err != nil && !errors.Is(err, ErrInvalidSettings) {
		return Settings{}, err
	}
	data, err := json.Marshal(current)
	if err != nil {
		return Settings{}, fmt.Errorf("failed to encode settings: %w", err)
	}

	if value == nil {
		data, err = sjson.DeleteBytes(data, key)
	} else {
		data, err = sjson.SetBytes(data, key, value)
	}
	if err != nil {
		return Settings{}, fmt.Errorf("failed to set %s: %w", key, err)
	}

	updated, err := Parse(data)
	if err != nil {
		return Settings{}, err
	}
	if err := Save(path, updated); err != nil {
		return Settings{}, err
	}
	return updated, nil
}

func clampInt(v, lo, hi int) int {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}

func clampFloat(v, lo, hi float64) float64 {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}
