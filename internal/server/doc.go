// Package server implements the MCP (Model Context Protocol) server for
// thermal dot analysis.
//
// This package provides a JSON-RPC 2.0 server that exposes the dot pipeline
// through the MCP protocol: open a thermal recording, pick a reference point
// and named areas, inspect single frames, then run the batch analysis that
// tracks dots over time and reports per-area curves.
//
// # Protocol
//
// The server communicates over stdio using JSON-RPC 2.0:
//   - Input: JSON-RPC requests on stdin (one per line)
//   - Output: JSON-RPC responses and notifications on stdout
//
// Supported MCP methods:
//   - initialize: Protocol handshake
//   - tools/list: Enumerate available tools
//   - tools/call: Execute a tool with arguments
//   - ping: Health check
//
// # Available Tools
//
// Recording and frames:
//   - dots_recording_open: Open a recording file or frame directory
//   - dots_frame_render: Render a frame, optionally with areas and dots drawn
//   - dots_frame_detect: Detect dots on one frame and count them per area
//   - dots_temperature_at: Temperature and color under a pixel
//   - dots_sample_colors: Colors at several labelled pixels
//
// Settings:
//   - dots_settings_get, dots_settings_set
//
// Areas:
//   - dots_areas_list, dots_area_add, dots_area_remove
//   - dots_area_preview: Crop an area out of a frame
//
// Batch analysis:
//   - dots_batch_analyze: Sample, track and aggregate the whole recording
//   - dots_batch_result: Last or stored result
//   - dots_batch_chart: PNG or HTML chart of a result
//   - dots_runs_list, dots_run_delete: Stored runs (needs a results database)
//
// # Progress
//
// A dots_batch_analyze call carrying "_meta": {"progressToken": ...} gets
// notifications/progress messages with progress and total frame counts while
// it runs. Notifications are written to the same stream as responses.
//
// # Frame Caching
//
// Rendered frames used by the single-frame tools are cached by recording,
// frame index and render settings. Opening another recording or changing a
// setting clears the cache. Batch runs read frames directly.
//
// # Error Handling
//
// Tool execution errors are returned as JSON-RPC error responses with:
//   - code: -32000 (tool execution failure) or standard JSON-RPC codes
//   - message: Human-readable error description
//   - data: The Go error string
//
// # Usage
//
//	srv := server.New(server.Options{Logger: log, Store: runs})
//	if err := srv.Run(ctx); err != nil {
//	    log.Fatal(err)
//	}
package server
