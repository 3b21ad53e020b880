package server

import (
	"bufio"
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"image"
	"image/color"
	"math"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/ironsheep/thermal-dots-mcp/internal/analysis"
	"github.com/ironsheep/thermal-dots-mcp/internal/imaging"
	"github.com/ironsheep/thermal-dots-mcp/internal/recording"
	"github.com/ironsheep/thermal-dots-mcp/internal/render"
	"github.com/ironsheep/thermal-dots-mcp/internal/store"
)

// Sensor-pixel centers of the dots; frame i of the test recording shows the
// first i+1 of them.
var sensorDots = [][2]int{{40, 96}, {128, 96}, {216, 96}}

// writeDotRecording writes a 4-frame recording with a 20 °C background and
// 34 °C dots of radius 8 sensor pixels, frames 500 ms apart.
func writeDotRecording(t *testing.T) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "dots.bin")
	w, err := recording.Create(path)
	if err != nil {
		t.Fatalf("failed to create recording: %v", err)
	}
	bg, hot := render.CelsiusToRaw(20), render.CelsiusToRaw(34)
	for i := 0; i < 4; i++ {
		raw := image.NewGray16(image.Rect(0, 0, render.SensorWidth, render.SensorHeight))
		for y := 0; y < render.SensorHeight; y++ {
			for x := 0; x < render.SensorWidth; x++ {
				v := bg
				for _, d := range sensorDots[:min(i+1, len(sensorDots))] {
					dx, dy := x-d[0], y-d[1]
					if dx*dx+dy*dy <= 64 {
						v = hot
					}
				}
				raw.SetGray16(x, y, color.Gray16{Y: v})
			}
		}
		if err := w.Append(1_700_000_000_000+int64(i)*500, raw); err != nil {
			t.Fatalf("failed to append frame: %v", err)
		}
	}
	if err := w.Close(); err != nil {
		t.Fatalf("failed to close recording: %v", err)
	}
	return path
}

// callTool runs a tools/call request and returns the text content or the
// JSON-RPC error.
func callTool(t *testing.T, s *Server, name string, args interface{}) (string, *MCPError) {
	t.Helper()
	params, err := json.Marshal(map[string]interface{}{"name": name, "arguments": args})
	if err != nil {
		t.Fatalf("failed to marshal params: %v", err)
	}
	resp := s.handleRequest(context.Background(), &MCPRequest{JSONRPC: "2.0", ID: 1, Method: "tools/call", Params: params})
	if resp == nil {
		t.Fatal("handleRequest returned nil")
	}
	if resp.Error != nil {
		return "", resp.Error
	}
	result, ok := resp.Result.(map[string]interface{})
	if !ok {
		t.Fatal("Result should be a map")
	}
	content, ok := result["content"].([]map[string]interface{})
	if !ok || len(content) != 1 {
		t.Fatalf("unexpected content: %v", result["content"])
	}
	return content[0]["text"].(string), nil
}

// mustCall is callTool that fails the test on a tool error and decodes the
// result into out when out is non-nil.
func mustCall(t *testing.T, s *Server, name string, args interface{}, out interface{}) {
	t.Helper()
	text, mcpErr := callTool(t, s, name, args)
	if mcpErr != nil {
		t.Fatalf("%s failed: %s: %v", name, mcpErr.Message, mcpErr.Data)
	}
	if out != nil {
		if err := json.Unmarshal([]byte(text), out); err != nil {
			t.Fatalf("%s: failed to decode result: %v", name, err)
		}
	}
}

// readyServer opens the dot recording with a reference point and one area
// spanning the whole rendered frame.
func readyServer(t *testing.T, s *Server) {
	t.Helper()
	mustCall(t, s, "dots_recording_open", map[string]interface{}{"path": writeDotRecording(t)}, nil)
	mustCall(t, s, "dots_settings_set", map[string]interface{}{"key": "base_x", "value": 8}, nil)
	mustCall(t, s, "dots_settings_set", map[string]interface{}{"key": "base_y", "value": 8}, nil)
	mustCall(t, s, "dots_area_add", map[string]interface{}{"name": "all", "x": 0, "y": 0, "width": 511, "height": 383}, nil)
}

func TestHandleToolsCall_UnknownTool(t *testing.T) {
	s := newTestServer(t)
	_, mcpErr := callTool(t, s, "image_load", map[string]interface{}{})
	if mcpErr == nil {
		t.Fatal("expected error for unknown tool")
	}
	if mcpErr.Code != -32000 {
		t.Errorf("Error code: got %d, want -32000", mcpErr.Code)
	}
}

func TestHandleToolsCall_InvalidParams(t *testing.T) {
	s := newTestServer(t)
	resp := s.handleToolsCall(context.Background(), &MCPRequest{JSONRPC: "2.0", ID: 1, Params: json.RawMessage(`[1,2]`)})
	if resp.Error == nil || resp.Error.Code != -32602 {
		t.Fatalf("expected -32602, got %+v", resp.Error)
	}
}

func TestRecordingOpen(t *testing.T) {
	s := newTestServer(t)
	var info recordingInfo
	mustCall(t, s, "dots_recording_open", map[string]interface{}{"path": writeDotRecording(t)}, &info)

	if info.Frames != 4 {
		t.Errorf("Frames: got %d, want 4", info.Frames)
	}
	if math.Abs(info.Duration-1.5) > 1e-6 {
		t.Errorf("Duration: got %v, want 1.5", info.Duration)
	}

	_, mcpErr := callTool(t, s, "dots_recording_open", map[string]interface{}{"path": "/nonexistent/dots.bin"})
	if mcpErr == nil {
		t.Error("expected error for missing recording")
	}
}

func TestRecordingOpen_RelativeToRecordingsDir(t *testing.T) {
	path := writeDotRecording(t)
	s := New(Options{
		SettingsPath:  filepath.Join(t.TempDir(), "settings.json"),
		RecordingsDir: filepath.Dir(path),
	})
	var info recordingInfo
	mustCall(t, s, "dots_recording_open", map[string]interface{}{"path": filepath.Base(path)}, &info)
	if info.Path != path {
		t.Errorf("Path: got %s, want %s", info.Path, path)
	}
}

func TestFrameTools_RequireRecording(t *testing.T) {
	s := newTestServer(t)
	for _, name := range []string{"dots_frame_render", "dots_temperature_at", "dots_batch_analyze"} {
		t.Run(name, func(t *testing.T) {
			_, mcpErr := callTool(t, s, name, map[string]interface{}{"index": 0})
			if mcpErr == nil {
				t.Fatal("expected error without an open recording")
			}
			if !strings.Contains(fmt.Sprint(mcpErr.Data), "no recording open") {
				t.Errorf("unexpected error data: %v", mcpErr.Data)
			}
		})
	}
}

func TestSettingsSetGet(t *testing.T) {
	s := newTestServer(t)
	mustCall(t, s, "dots_settings_set", map[string]interface{}{"key": "color_tolerance", "value": 500}, nil)

	var got struct {
		Settings struct {
			ColorTolerance int `json:"color_tolerance"`
		} `json:"settings"`
		Keys []string `json:"keys"`
	}
	mustCall(t, s, "dots_settings_get", map[string]interface{}{}, &got)
	if got.Settings.ColorTolerance != 100 {
		t.Errorf("color_tolerance: got %d, want clamped 100", got.Settings.ColorTolerance)
	}
	if len(got.Keys) == 0 {
		t.Error("keys should not be empty")
	}

	if _, mcpErr := callTool(t, s, "dots_settings_set", map[string]interface{}{"key": "bogus", "value": 1}); mcpErr == nil {
		t.Error("expected error for unknown key")
	}
}

func TestAreaAddListRemove(t *testing.T) {
	s := newTestServer(t)
	mustCall(t, s, "dots_area_add", map[string]interface{}{"name": "left", "x": 0, "y": 0, "width": 10, "height": 10}, nil)
	mustCall(t, s, "dots_area_add", map[string]interface{}{"name": "right", "x": 20, "y": 0, "width": 10, "height": 10}, nil)

	if _, mcpErr := callTool(t, s, "dots_area_add", map[string]interface{}{"name": "left", "x": 1, "y": 1, "width": 1, "height": 1}); mcpErr == nil {
		t.Error("expected error for duplicate area")
	}
	if _, mcpErr := callTool(t, s, "dots_area_add", map[string]interface{}{"name": "bad", "x": 1, "y": 1, "width": 0, "height": 1}); mcpErr == nil {
		t.Error("expected error for zero width")
	}

	var list []struct {
		Name string `json:"name"`
	}
	mustCall(t, s, "dots_areas_list", map[string]interface{}{}, &list)
	if len(list) != 2 || list[0].Name != "left" || list[1].Name != "right" {
		t.Fatalf("areas: got %+v", list)
	}

	mustCall(t, s, "dots_area_remove", map[string]interface{}{"name": "left"}, &list)
	if len(list) != 1 || list[0].Name != "right" {
		t.Errorf("after remove: got %+v", list)
	}
	if _, mcpErr := callTool(t, s, "dots_area_remove", map[string]interface{}{"name": "left"}); mcpErr == nil {
		t.Error("expected error removing unknown area")
	}
}

func TestFrameRender(t *testing.T) {
	s := newTestServer(t)
	readyServer(t, s)

	var plain struct {
		Width       int    `json:"width"`
		Height      int    `json:"height"`
		ImageBase64 string `json:"image_base64"`
	}
	mustCall(t, s, "dots_frame_render", map[string]interface{}{"index": 0, "scale": 0.5}, &plain)
	if plain.Width != 256 || plain.Height != 192 {
		t.Errorf("size: got %dx%d, want 256x192", plain.Width, plain.Height)
	}
	if plain.ImageBase64 == "" {
		t.Error("image should not be empty")
	}

	var overlay struct {
		Width  int               `json:"width"`
		Legend map[string]string `json:"legend"`
	}
	mustCall(t, s, "dots_frame_render", map[string]interface{}{"index": 2, "overlay": true}, &overlay)
	if overlay.Width != 512 {
		t.Errorf("overlay width: got %d, want 512", overlay.Width)
	}
	if overlay.Legend["1"] != "all" {
		t.Errorf("legend: got %v", overlay.Legend)
	}
	if s.cache.Len() != 2 {
		t.Errorf("cache: got %d frames, want 2", s.cache.Len())
	}
}

func TestFrameDetect(t *testing.T) {
	s := newTestServer(t)
	readyServer(t, s)

	var fa analysis.FrameAnalysis
	mustCall(t, s, "dots_frame_detect", map[string]interface{}{"index": 2}, &fa)
	if len(fa.Marks) != 3 {
		t.Fatalf("marks: got %d, want 3", len(fa.Marks))
	}
	for i, m := range fa.Marks {
		wantX := float64(2 * sensorDots[i][0])
		if math.Abs(m.CenterX-wantX) > 2 {
			t.Errorf("mark %d CenterX: got %.1f, want about %.0f", i, m.CenterX, wantX)
		}
	}
	if fa.Counts["all"] != 3 {
		t.Errorf("counts: got %v", fa.Counts)
	}
	if fa.BaseTempC == nil || math.Abs(*fa.BaseTempC-20) > 0.02 {
		t.Errorf("base temperature: got %v, want 20", fa.BaseTempC)
	}
}

func TestFrameDetect_NoReference(t *testing.T) {
	s := newTestServer(t)
	mustCall(t, s, "dots_recording_open", map[string]interface{}{"path": writeDotRecording(t)}, nil)
	if _, mcpErr := callTool(t, s, "dots_frame_detect", map[string]interface{}{"index": 0}); mcpErr == nil {
		t.Error("expected error without reference point")
	}
}

func TestTemperatureAt(t *testing.T) {
	s := newTestServer(t)
	mustCall(t, s, "dots_recording_open", map[string]interface{}{"path": writeDotRecording(t)}, nil)

	var res temperatureResult
	mustCall(t, s, "dots_temperature_at", map[string]interface{}{"index": 0, "x": 80, "y": 192}, &res)
	if res.TemperatureC == nil || math.Abs(*res.TemperatureC-34) > 0.02 {
		t.Errorf("dot temperature: got %v, want 34", res.TemperatureC)
	}
	if res.Color == nil {
		t.Error("color should be set")
	}

	if _, mcpErr := callTool(t, s, "dots_temperature_at", map[string]interface{}{"index": 0, "x": 9999, "y": 0}); mcpErr == nil {
		t.Error("expected error outside the frame")
	}
}

func TestSampleColors(t *testing.T) {
	s := newTestServer(t)
	mustCall(t, s, "dots_recording_open", map[string]interface{}{"path": writeDotRecording(t)}, nil)

	var res []imaging.LabeledColorResult
	mustCall(t, s, "dots_sample_colors", map[string]interface{}{
		"index":  0,
		"points": []map[string]interface{}{{"x": 80, "y": 192, "label": "dot"}, {"x": 8, "y": 8}},
	}, &res)
	if len(res) != 2 || res[0].Label != "dot" {
		t.Fatalf("samples: got %+v", res)
	}
	if res[0].Color.HSV.V <= res[1].Color.HSV.V {
		t.Errorf("dot should be brighter than background: %d vs %d", res[0].Color.HSV.V, res[1].Color.HSV.V)
	}

	if _, mcpErr := callTool(t, s, "dots_sample_colors", map[string]interface{}{"index": 0}); mcpErr == nil {
		t.Error("expected error without points")
	}
}

func TestAreaPreview(t *testing.T) {
	s := newTestServer(t)
	mustCall(t, s, "dots_recording_open", map[string]interface{}{"path": writeDotRecording(t)}, nil)
	mustCall(t, s, "dots_area_add", map[string]interface{}{"name": "dot", "x": 60, "y": 172, "width": 39, "height": 39}, nil)

	var crop struct {
		X      int `json:"x"`
		Width  int `json:"width"`
		Height int `json:"height"`
	}
	mustCall(t, s, "dots_area_preview", map[string]interface{}{"name": "dot", "index": 0}, &crop)
	if crop.X != 60 || crop.Width != 80 || crop.Height != 80 {
		t.Errorf("preview: got %+v, want x=60 80x80", crop)
	}

	if _, mcpErr := callTool(t, s, "dots_area_preview", map[string]interface{}{"name": "nope", "index": 0}); mcpErr == nil {
		t.Error("expected error for unknown area")
	}
}

func TestBatchAnalyze_NoOpWithoutReference(t *testing.T) {
	s := newTestServer(t)
	mustCall(t, s, "dots_recording_open", map[string]interface{}{"path": writeDotRecording(t)}, nil)
	mustCall(t, s, "dots_area_add", map[string]interface{}{"name": "all", "x": 0, "y": 0, "width": 511, "height": 383}, nil)

	var out analysis.Outcome
	mustCall(t, s, "dots_batch_analyze", map[string]interface{}{}, &out)
	if out.Ran {
		t.Error("batch should not run without a reference point")
	}
	if out.Result != nil {
		t.Error("no previous result expected")
	}
	if _, mcpErr := callTool(t, s, "dots_batch_result", map[string]interface{}{}); mcpErr == nil {
		t.Error("expected error without a result")
	}
}

func TestBatchAnalyze(t *testing.T) {
	s := newTestServer(t)
	readyServer(t, s)

	var out analysis.Outcome
	mustCall(t, s, "dots_batch_analyze", map[string]interface{}{"stride": 1}, &out)
	if !out.Ran {
		t.Fatal("batch should have run")
	}
	if out.Frames != 4 {
		t.Errorf("frames: got %d, want 4", out.Frames)
	}
	want := []int{33, 66, 100, 100}
	got := out.Result.AreaCounts["all"]
	if fmt.Sprint(got) != fmt.Sprint(want) {
		t.Errorf("curve: got %v, want %v", got, want)
	}
	if p := out.Result.PercentileForArea[50]["all"]; p.FrameIndex != 1 || p.CountCur != 2 || p.CountMax != 3 {
		t.Errorf("p50 crossing: got %+v", p)
	}

	var res struct {
		RunID  string `json:"run_id"`
		Result struct {
			Timestamps []float64 `json:"timestamps"`
		} `json:"result"`
	}
	mustCall(t, s, "dots_batch_result", map[string]interface{}{}, &res)
	if fmt.Sprint(res.Result.Timestamps) != "[0 0.5 1 1.5]" {
		t.Errorf("timestamps: got %v", res.Result.Timestamps)
	}
}

func TestBatchAnalyze_ProgressNotifications(t *testing.T) {
	path := writeDotRecording(t)
	dir := t.TempDir()
	lines := []string{
		fmt.Sprintf(`{"jsonrpc":"2.0","id":1,"method":"tools/call","params":{"name":"dots_recording_open","arguments":{"path":%q}}}`, path),
		`{"jsonrpc":"2.0","id":2,"method":"tools/call","params":{"name":"dots_settings_set","arguments":{"key":"base_x","value":8}}}`,
		`{"jsonrpc":"2.0","id":3,"method":"tools/call","params":{"name":"dots_settings_set","arguments":{"key":"base_y","value":8}}}`,
		`{"jsonrpc":"2.0","id":4,"method":"tools/call","params":{"name":"dots_area_add","arguments":{"name":"all","x":0,"y":0,"width":511,"height":383}}}`,
		`{"jsonrpc":"2.0","id":5,"method":"tools/call","params":{"name":"dots_batch_analyze","arguments":{"stride":1},"_meta":{"progressToken":"p1"}}}`,
	}
	var out bytes.Buffer
	s := New(Options{
		In:           strings.NewReader(strings.Join(lines, "\n")),
		Out:          &out,
		SettingsPath: filepath.Join(dir, "settings.json"),
	})
	if err := s.Run(context.Background()); err != nil {
		t.Fatalf("Run failed: %v", err)
	}

	var progress []float64
	var last MCPResponse
	scanner := bufio.NewScanner(&out)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	for scanner.Scan() {
		var msg map[string]interface{}
		if err := json.Unmarshal(scanner.Bytes(), &msg); err != nil {
			t.Fatalf("bad output line: %v", err)
		}
		if msg["method"] == "notifications/progress" {
			params := msg["params"].(map[string]interface{})
			if params["progressToken"] != "p1" || params["total"] != float64(4) {
				t.Errorf("unexpected progress params: %v", params)
			}
			progress = append(progress, params["progress"].(float64))
			continue
		}
		if err := json.Unmarshal(scanner.Bytes(), &last); err != nil {
			t.Fatalf("bad response: %v", err)
		}
	}
	if len(progress) == 0 || progress[len(progress)-1] != 4 {
		t.Errorf("progress: got %v, want final 4", progress)
	}
	if last.ID != float64(5) || last.Error != nil {
		t.Errorf("last response: got %+v", last)
	}
}

func TestBatchChart(t *testing.T) {
	s := newTestServer(t)
	readyServer(t, s)
	mustCall(t, s, "dots_batch_analyze", map[string]interface{}{"stride": 1}, nil)

	var png chartResult
	mustCall(t, s, "dots_batch_chart", map[string]interface{}{}, &png)
	data, err := base64.StdEncoding.DecodeString(png.ImageBase64)
	if err != nil {
		t.Fatalf("invalid base64: %v", err)
	}
	if !bytes.HasPrefix(data, []byte("\x89PNG")) {
		t.Error("chart is not a PNG")
	}

	var html chartResult
	mustCall(t, s, "dots_batch_chart", map[string]interface{}{"format": "html"}, &html)
	if !strings.Contains(html.HTML, "echarts") {
		t.Error("html chart should reference echarts")
	}

	target := filepath.Join(t.TempDir(), "chart.html")
	var written chartResult
	mustCall(t, s, "dots_batch_chart", map[string]interface{}{"format": "html", "output_path": target}, &written)
	if _, err := os.Stat(target); err != nil {
		t.Errorf("chart file not written: %v", err)
	}

	if _, mcpErr := callTool(t, s, "dots_batch_chart", map[string]interface{}{"format": "svg"}); mcpErr == nil {
		t.Error("expected error for unknown format")
	}
}

func TestRuns_WithStore(t *testing.T) {
	st, err := store.Open(filepath.Join(t.TempDir(), "runs.db"), nil)
	if err != nil {
		t.Fatalf("failed to open store: %v", err)
	}
	defer st.Close()
	s := New(Options{SettingsPath: filepath.Join(t.TempDir(), "settings.json"), Store: st})
	readyServer(t, s)

	var out analysis.Outcome
	mustCall(t, s, "dots_batch_analyze", map[string]interface{}{"stride": 2}, &out)
	if out.RunID == "" {
		t.Fatal("run should be persisted")
	}

	var runs []store.RunSummary
	mustCall(t, s, "dots_runs_list", map[string]interface{}{}, &runs)
	if len(runs) != 1 || runs[0].ID != out.RunID || runs[0].Frames != 2 {
		t.Fatalf("runs: got %+v", runs)
	}

	var res struct {
		RunID string `json:"run_id"`
	}
	mustCall(t, s, "dots_batch_result", map[string]interface{}{"run_id": out.RunID}, &res)
	if res.RunID != out.RunID {
		t.Errorf("run id: got %s, want %s", res.RunID, out.RunID)
	}

	mustCall(t, s, "dots_run_delete", map[string]interface{}{"run_id": out.RunID}, nil)
	if _, mcpErr := callTool(t, s, "dots_batch_result", map[string]interface{}{"run_id": out.RunID}); mcpErr == nil {
		t.Error("expected error for deleted run")
	}
}

func TestRuns_WithoutStore(t *testing.T) {
	s := newTestServer(t)
	if _, mcpErr := callTool(t, s, "dots_runs_list", map[string]interface{}{}); mcpErr == nil {
		t.Error("expected error without a store")
	}
	if _, mcpErr := callTool(t, s, "dots_batch_result", map[string]interface{}{"run_id": "x"}); mcpErr == nil {
		t.Error("expected error without a store")
	}
}
