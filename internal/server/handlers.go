package server

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"os"
	"path/filepath"
	"strconv"

	"github.com/ironsheep/thermal-dots-mcp/internal/aggregate"
	"github.com/ironsheep/thermal-dots-mcp/internal/analysis"
	"github.com/ironsheep/thermal-dots-mcp/internal/areas"
	"github.com/ironsheep/thermal-dots-mcp/internal/config"
	"github.com/ironsheep/thermal-dots-mcp/internal/imaging"
	"github.com/ironsheep/thermal-dots-mcp/internal/recording"
	"github.com/ironsheep/thermal-dots-mcp/internal/render"
	"github.com/ironsheep/thermal-dots-mcp/internal/report"
)

// ToolCallParams represents the parameters for a tools/call MCP request.
type ToolCallParams struct {
	// Name is the tool to invoke (e.g., "dots_recording_open").
	Name string `json:"name"`

	// Arguments contains the tool-specific parameters as JSON.
	Arguments json.RawMessage `json:"arguments"`

	// Meta carries the optional progress token of long-running calls.
	Meta *struct {
		ProgressToken interface{} `json:"progressToken"`
	} `json:"_meta,omitempty"`
}

// handleToolsCall processes a tools/call request and executes the specified tool.
//
// The response wraps the tool result in MCP's content format:
//
//	{
//	  "content": [{"type": "text", "text": "<JSON result>"}]
//	}
//
// Tool execution errors return a JSON-RPC error response with code -32000.
func (s *Server) handleToolsCall(ctx context.Context, req *MCPRequest) *MCPResponse {
	var params ToolCallParams
	if err := json.Unmarshal(req.Params, &params); err != nil {
		return s.errorResponse(req.ID, -32602, "Invalid params", err.Error())
	}
	if len(params.Arguments) == 0 {
		params.Arguments = json.RawMessage("{}")
	}

	var token interface{}
	if params.Meta != nil {
		token = params.Meta.ProgressToken
	}

	result, err := s.executeTool(ctx, params.Name, params.Arguments, token)
	if err != nil {
		s.log.WithField("tool", params.Name).WithError(err).Warn("tool failed")
		return s.errorResponse(req.ID, -32000, "Tool execution failed", err.Error())
	}

	return &MCPResponse{
		JSONRPC: "2.0",
		ID:      req.ID,
		Result: map[string]interface{}{
			"content": []map[string]interface{}{
				{
					"type": "text",
					"text": mustMarshalJSON(result),
				},
			},
		},
	}
}

// executeTool dispatches tool execution to the appropriate handler function.
//
// Each tool handler:
//  1. Unmarshals arguments from JSON
//  2. Applies default values for optional parameters
//  3. Reads the current settings and frames as needed
//  4. Calls the pipeline packages
//  5. Returns the result or error
func (s *Server) executeTool(ctx context.Context, name string, args json.RawMessage, token interface{}) (interface{}, error) {
	switch name {
	// Recording and frames
	case "dots_recording_open":
		return s.handleRecordingOpen(args)
	case "dots_frame_render":
		return s.handleFrameRender(ctx, args)
	case "dots_frame_detect":
		return s.handleFrameDetect(ctx, args)
	case "dots_temperature_at":
		return s.handleTemperatureAt(ctx, args)
	case "dots_sample_colors":
		return s.handleSampleColors(ctx, args)

	// Settings
	case "dots_settings_get":
		return s.handleSettingsGet()
	case "dots_settings_set":
		return s.handleSettingsSet(args)

	// Areas
	case "dots_areas_list":
		return s.handleAreasList()
	case "dots_area_add":
		return s.handleAreaAdd(args)
	case "dots_area_remove":
		return s.handleAreaRemove(args)
	case "dots_area_preview":
		return s.handleAreaPreview(ctx, args)

	// Batch analysis
	case "dots_batch_analyze":
		return s.handleBatchAnalyze(ctx, args, token)
	case "dots_batch_result":
		return s.handleBatchResult(ctx, args)
	case "dots_batch_chart":
		return s.handleBatchChart(ctx, args)
	case "dots_runs_list":
		return s.handleRunsList(ctx, args)
	case "dots_run_delete":
		return s.handleRunDelete(ctx, args)

	default:
		return nil, fmt.Errorf("unknown tool: %s", name)
	}
}

// errorResponse creates a JSON-RPC error response with the given details.
func (s *Server) errorResponse(id interface{}, code int, message, data string) *MCPResponse {
	return &MCPResponse{
		JSONRPC: "2.0",
		ID:      id,
		Error: &MCPError{
			Code:    code,
			Message: message,
			Data:    data,
		},
	}
}

// mustMarshalJSON converts a value to pretty-printed JSON string.
// Panics are suppressed; on marshal failure, returns an empty string.
func mustMarshalJSON(v interface{}) string {
	b, _ := json.MarshalIndent(v, "", "  ")
	return string(b)
}

// settings reads the settings file. A corrupt file is logged and replaced by
// the defaults.
func (s *Server) settings() config.Settings {
	st, err := config.Load(s.settingsPath)
	if err != nil {
		s.log.WithError(err).Warn("using default settings")
	}
	return st
}

// cachedSource serves single-frame tools from the frame cache.
type cachedSource struct {
	recording.Source
	cache *imaging.FrameCache
}

func (c cachedSource) ReadFrame(ctx context.Context, index int, cfg render.Config) (*imaging.Frame, error) {
	key := imaging.FrameKey(c.Path(), index, cfg.Key())
	return c.cache.Load(key, func() (*imaging.Frame, error) {
		return c.Source.ReadFrame(ctx, index, cfg)
	})
}

func (s *Server) frame(ctx context.Context, index int, cfg render.Config) (*imaging.Frame, error) {
	src, err := s.currentSource()
	if err != nil {
		return nil, err
	}
	return cachedSource{Source: src, cache: s.cache}.ReadFrame(ctx, index, cfg)
}

// === Recording and Frame Handlers ===

type recordingOpenArgs struct {
	Path string `json:"path"`
}

type recordingInfo struct {
	Path           string  `json:"path"`
	Frames         int     `json:"frames"`
	StartTimestamp float64 `json:"start_timestamp"`
	Duration       float64 `json:"duration_seconds"`
}

func (s *Server) handleRecordingOpen(args json.RawMessage) (interface{}, error) {
	var a recordingOpenArgs
	if err := json.Unmarshal(args, &a); err != nil {
		return nil, err
	}
	if a.Path == "" {
		return nil, errors.New("path is required")
	}
	path := a.Path
	if !filepath.IsAbs(path) && s.recordingsDir != "" {
		path = filepath.Join(s.recordingsDir, path)
	}

	src, err := recording.OpenSource(path)
	if err != nil {
		return nil, err
	}
	info := recordingInfo{
		Path:           src.Path(),
		Frames:         src.FrameCount(),
		StartTimestamp: src.StartTimestamp(),
	}
	if r, ok := src.(*recording.Reader); ok && r.FrameCount() > 0 {
		end, err := r.EndTimestamp()
		if err != nil {
			r.Close()
			return nil, err
		}
		info.Duration = end - r.StartTimestamp()
	} else if info.Frames > 0 {
		info.Duration = float64(info.Frames-1) / recording.DefaultFPS
	}

	s.setSource(src)
	s.log.WithField("path", info.Path).WithField("frames", info.Frames).Info("recording opened")
	return info, nil
}

type frameRenderArgs struct {
	Index   int     `json:"index"`
	Overlay bool    `json:"overlay"`
	Scale   float64 `json:"scale"`
}

func (s *Server) handleFrameRender(ctx context.Context, args json.RawMessage) (interface{}, error) {
	var a frameRenderArgs
	if err := json.Unmarshal(args, &a); err != nil {
		return nil, err
	}
	if a.Scale == 0 {
		a.Scale = 1.0
	}
	st := s.settings()
	f, err := s.frame(ctx, a.Index, st.RenderConfig())
	if err != nil {
		return nil, err
	}
	if !a.Overlay {
		return imaging.CropRegion(f, 0, 0, f.Width, f.Height, a.Scale)
	}

	list := st.Areas()
	overlayAreas := make([]imaging.OverlayArea, 0, len(list))
	for _, ar := range list {
		overlayAreas = append(overlayAreas, imaging.OverlayArea{Name: ar.Name, Rect: ar.Rect()})
	}
	var overlayMarks []imaging.OverlayMark
	if st.HasReference() {
		src, err := s.currentSource()
		if err != nil {
			return nil, err
		}
		fa, err := s.analysis.AnalyzeFrame(ctx, cachedSource{Source: src, cache: s.cache}, a.Index,
			st.DetectionParams(), st.RenderConfig(), nil, list)
		if err != nil {
			return nil, err
		}
		for i, m := range fa.Marks {
			overlayMarks = append(overlayMarks, imaging.OverlayMark{
				X:      m.CenterX,
				Y:      m.CenterY,
				Radius: math.Max(m.AxisA, m.AxisB),
				Label:  strconv.Itoa(i + 1),
			})
		}
	}
	return imaging.Overlay(f, overlayAreas, overlayMarks)
}

type frameIndexArgs struct {
	Index int `json:"index"`
}

func (s *Server) handleFrameDetect(ctx context.Context, args json.RawMessage) (interface{}, error) {
	var a frameIndexArgs
	if err := json.Unmarshal(args, &a); err != nil {
		return nil, err
	}
	st := s.settings()
	if !st.HasReference() {
		return nil, errors.New("no reference point set, use dots_settings_set for base_x and base_y")
	}
	src, err := s.currentSource()
	if err != nil {
		return nil, err
	}
	return s.analysis.AnalyzeFrame(ctx, cachedSource{Source: src, cache: s.cache}, a.Index,
		st.DetectionParams(), st.RenderConfig(), nil, st.Areas())
}

type temperatureAtArgs struct {
	Index int `json:"index"`
	X     int `json:"x"`
	Y     int `json:"y"`
}

type temperatureResult struct {
	X            int                  `json:"x"`
	Y            int                  `json:"y"`
	TemperatureC *float64             `json:"temperature_c"`
	Color        *imaging.ColorResult `json:"color"`
}

func (s *Server) handleTemperatureAt(ctx context.Context, args json.RawMessage) (interface{}, error) {
	var a temperatureAtArgs
	if err := json.Unmarshal(args, &a); err != nil {
		return nil, err
	}
	cfg := s.settings().RenderConfig()
	f, err := s.frame(ctx, a.Index, cfg)
	if err != nil {
		return nil, err
	}
	c, err := imaging.SampleColor(f, a.X, a.Y)
	if err != nil {
		return nil, err
	}
	res := temperatureResult{X: a.X, Y: a.Y, Color: c}
	if t, ok := render.NewLookup(cfg).TempAt(f, a.X, a.Y); ok {
		res.TemperatureC = &t
	}
	return res, nil
}

type sampleColorsArgs struct {
	Index  int                    `json:"index"`
	Points []imaging.LabeledPoint `json:"points"`
}

func (s *Server) handleSampleColors(ctx context.Context, args json.RawMessage) (interface{}, error) {
	var a sampleColorsArgs
	if err := json.Unmarshal(args, &a); err != nil {
		return nil, err
	}
	if len(a.Points) == 0 {
		return nil, errors.New("points is required")
	}
	f, err := s.frame(ctx, a.Index, s.settings().RenderConfig())
	if err != nil {
		return nil, err
	}
	return imaging.SampleColorsMulti(f, a.Points)
}

// === Settings Handlers ===

func (s *Server) handleSettingsGet() (interface{}, error) {
	return map[string]interface{}{
		"settings": s.settings(),
		"keys":     config.Keys(),
	}, nil
}

type settingsSetArgs struct {
	Key   string          `json:"key"`
	Value json.RawMessage `json:"value"`
}

func (s *Server) handleSettingsSet(args json.RawMessage) (interface{}, error) {
	var a settingsSetArgs
	if err := json.Unmarshal(args, &a); err != nil {
		return nil, err
	}
	var value interface{}
	if len(a.Value) > 0 {
		value = a.Value
	}
	st, err := config.Patch(s.settingsPath, a.Key, value)
	if err != nil {
		return nil, err
	}
	s.cache.Clear()
	return st, nil
}

// === Area Handlers ===

func (s *Server) areaSet() (*areas.Set, error) {
	return areas.NewSet(s.settings().Areas()...)
}

func (s *Server) saveAreas(set *areas.Set) ([]areas.NamedArea, error) {
	st, err := config.Patch(s.settingsPath, "named_areas", set.Snapshot())
	if err != nil {
		return nil, err
	}
	return st.NamedAreas, nil
}

func (s *Server) handleAreasList() (interface{}, error) {
	return s.settings().Areas(), nil
}

func (s *Server) handleAreaAdd(args json.RawMessage) (interface{}, error) {
	var a areas.NamedArea
	if err := json.Unmarshal(args, &a); err != nil {
		return nil, err
	}
	set, err := s.areaSet()
	if err != nil {
		return nil, err
	}
	if err := set.Add(a); err != nil {
		return nil, err
	}
	return s.saveAreas(set)
}

type areaNameArgs struct {
	Name string `json:"name"`
}

func (s *Server) handleAreaRemove(args json.RawMessage) (interface{}, error) {
	var a areaNameArgs
	if err := json.Unmarshal(args, &a); err != nil {
		return nil, err
	}
	set, err := s.areaSet()
	if err != nil {
		return nil, err
	}
	if err := set.Remove(a.Name); err != nil {
		return nil, err
	}
	return s.saveAreas(set)
}

type areaPreviewArgs struct {
	Name  string  `json:"name"`
	Index int     `json:"index"`
	Scale float64 `json:"scale"`
}

func (s *Server) handleAreaPreview(ctx context.Context, args json.RawMessage) (interface{}, error) {
	var a areaPreviewArgs
	if err := json.Unmarshal(args, &a); err != nil {
		return nil, err
	}
	if a.Scale == 0 {
		a.Scale = 2.0
	}
	set, err := s.areaSet()
	if err != nil {
		return nil, err
	}
	ar, ok := set.Get(a.Name)
	if !ok {
		return nil, fmt.Errorf("%w: %q", areas.ErrAreaNotFound, a.Name)
	}
	f, err := s.frame(ctx, a.Index, s.settings().RenderConfig())
	if err != nil {
		return nil, err
	}
	// Area bounds are inclusive on the far edge.
	return imaging.CropRegion(f, ar.X, ar.Y, ar.Width+1, ar.Height+1, a.Scale)
}

// === Batch Handlers ===

type batchAnalyzeArgs struct {
	Stride int `json:"stride"`
}

func (s *Server) handleBatchAnalyze(ctx context.Context, args json.RawMessage, token interface{}) (interface{}, error) {
	var a batchAnalyzeArgs
	if err := json.Unmarshal(args, &a); err != nil {
		return nil, err
	}
	src, err := s.currentSource()
	if err != nil {
		return nil, err
	}
	st := s.settings()
	req := analysis.Request{
		Source:       src,
		SourceName:   src.Path(),
		HasReference: st.HasReference(),
		Params:       st.DetectionParams(),
		Areas:        st.Areas(),
		Percentiles:  st.Percentiles,
		Render:       st.RenderConfig(),
		Stride:       st.BatchSamplingRate,
	}
	if a.Stride > 0 {
		req.Stride = a.Stride
	}

	var progress func(done, total int)
	if token != nil {
		progress = func(done, total int) {
			s.notify("notifications/progress", map[string]interface{}{
				"progressToken": token,
				"progress":      done,
				"total":         total,
			})
		}
	}
	return s.analysis.RunBatch(ctx, req, progress)
}

type runArgs struct {
	RunID string `json:"run_id"`
}

// result returns a stored run when id is set and the last in-memory result
// otherwise.
func (s *Server) result(ctx context.Context, id string) (*aggregate.Result, string, error) {
	if id == "" {
		res, last := s.analysis.Last()
		if res == nil {
			return nil, "", errors.New("no batch result yet, run dots_batch_analyze first")
		}
		return res, last, nil
	}
	if s.runs == nil {
		return nil, "", errors.New("run persistence is disabled")
	}
	run, err := s.runs.LoadRun(ctx, id)
	if err != nil {
		return nil, "", err
	}
	return run.Result, run.ID, nil
}

func (s *Server) handleBatchResult(ctx context.Context, args json.RawMessage) (interface{}, error) {
	var a runArgs
	if err := json.Unmarshal(args, &a); err != nil {
		return nil, err
	}
	res, id, err := s.result(ctx, a.RunID)
	if err != nil {
		return nil, err
	}
	return map[string]interface{}{"run_id": id, "result": res}, nil
}

type batchChartArgs struct {
	RunID      string `json:"run_id"`
	Format     string `json:"format"`
	OutputPath string `json:"output_path"`
}

type chartResult struct {
	Format      string `json:"format"`
	Path        string `json:"path,omitempty"`
	HTML        string `json:"html,omitempty"`
	ImageBase64 string `json:"image_base64,omitempty"`
	MimeType    string `json:"mime_type,omitempty"`
}

func (s *Server) handleBatchChart(ctx context.Context, args json.RawMessage) (interface{}, error) {
	var a batchChartArgs
	if err := json.Unmarshal(args, &a); err != nil {
		return nil, err
	}
	if a.Format == "" {
		a.Format = "png"
	}
	if a.Format != "png" && a.Format != "html" {
		return nil, fmt.Errorf("unknown chart format: %s", a.Format)
	}
	res, id, err := s.result(ctx, a.RunID)
	if err != nil {
		return nil, err
	}
	title := "Dots per area"
	if id != "" {
		title += " (" + id + ")"
	}

	var buf bytes.Buffer
	if a.Format == "html" {
		err = report.RenderHTML(&buf, res, title)
	} else {
		err = report.RenderPNG(&buf, res, title)
	}
	if err != nil {
		return nil, err
	}

	out := chartResult{Format: a.Format}
	switch {
	case a.OutputPath != "":
		if err := os.WriteFile(a.OutputPath, buf.Bytes(), 0o644); err != nil {
			return nil, fmt.Errorf("failed to write chart: %w", err)
		}
		out.Path = a.OutputPath
	case a.Format == "html":
		out.HTML = buf.String()
	default:
		out.ImageBase64 = base64.StdEncoding.EncodeToString(buf.Bytes())
		out.MimeType = "image/png"
	}
	return out, nil
}

type runsListArgs struct {
	Limit int `json:"limit"`
}

func (s *Server) handleRunsList(ctx context.Context, args json.RawMessage) (interface{}, error) {
	var a runsListArgs
	if err := json.Unmarshal(args, &a); err != nil {
		return nil, err
	}
	if s.runs == nil {
		return nil, errors.New("run persistence is disabled")
	}
	return s.runs.ListRuns(ctx, a.Limit)
}

func (s *Server) handleRunDelete(ctx context.Context, args json.RawMessage) (interface{}, error) {
	var a runArgs
	if err := json.Unmarshal(args, &a); err != nil {
		return nil, err
	}
	if s.runs == nil {
		return nil, errors.New("run persistence is disabled")
	}
	if err := s.runs.DeleteRun(ctx, a.RunID); err != nil {
		return nil, err
	}
	return map[string]interface{}{"deleted": a.RunID}, nil
}
