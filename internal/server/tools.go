package server

// Tool represents an MCP tool definition
type Tool struct {
	Name        string                 `json:"name"`
	Description string                 `json:"description"`
	InputSchema map[string]interface{} `json:"inputSchema"`
}

func objectSchema(props map[string]interface{}, required ...string) map[string]interface{} {
	schema := map[string]interface{}{
		"type":       "object",
		"properties": props,
	}
	if len(required) > 0 {
		schema["required"] = required
	}
	return schema
}

var frameIndexProp = map[string]interface{}{
	"type":        "integer",
	"description": "Frame index in the open recording (0-based)",
}

var runIDProp = map[string]interface{}{
	"type":        "string",
	"description": "Stored run ID. Omit to use the last batch of this session",
}

// GetToolDefinitions returns all available tools
func GetToolDefinitions() []Tool {
	return []Tool{
		// Recording and frames
		{
			Name:        "dots_recording_open",
			Description: "Open a thermal recording file or a directory of PNG/JPEG frames. Replaces the currently open recording.",
			InputSchema: objectSchema(map[string]interface{}{
				"path": map[string]interface{}{
					"type":        "string",
					"description": "Path to the recording file or frame directory. Relative paths resolve against the recordings directory",
				},
			}, "path"),
		},
		{
			Name:        "dots_frame_render",
			Description: "Render one frame as base64-encoded PNG using the current render settings. With overlay, named areas and detected dots are drawn on top.",
			InputSchema: objectSchema(map[string]interface{}{
				"index": frameIndexProp,
				"overlay": map[string]interface{}{
					"type":        "boolean",
					"description": "Draw areas and detected dots. Default false",
					"default":     false,
				},
				"scale": map[string]interface{}{
					"type":        "number",
					"description": "Optional scale factor. Default 1.0",
					"default":     1.0,
				},
			}, "index"),
		},
		{
			Name:        "dots_frame_detect",
			Description: "Detect dots on one frame with the current detection settings and count them per named area.",
			InputSchema: objectSchema(map[string]interface{}{
				"index": frameIndexProp,
			}, "index"),
		},
		{
			Name:        "dots_temperature_at",
			Description: "Get the temperature in degrees Celsius and the rendered color at a pixel of a frame.",
			InputSchema: objectSchema(map[string]interface{}{
				"index": frameIndexProp,
				"x": map[string]interface{}{
					"type":        "integer",
					"description": "X coordinate in the rendered frame (0-based, from left)",
				},
				"y": map[string]interface{}{
					"type":        "integer",
					"description": "Y coordinate in the rendered frame (0-based, from top)",
				},
			}, "index", "x", "y"),
		},
		{
			Name:        "dots_sample_colors",
			Description: "Sample the rendered color at several pixels of a frame, for picking a target color in color detection mode.",
			InputSchema: objectSchema(map[string]interface{}{
				"index": frameIndexProp,
				"points": map[string]interface{}{
					"type":        "array",
					"description": "Points to sample",
					"items": map[string]interface{}{
						"type": "object",
						"properties": map[string]interface{}{
							"x":     map[string]interface{}{"type": "integer"},
							"y":     map[string]interface{}{"type": "integer"},
							"label": map[string]interface{}{"type": "string"},
						},
						"required": []string{"x", "y"},
					},
				},
			}, "index", "points"),
		},

		// Settings
		{
			Name:        "dots_settings_get",
			Description: "Return the current analysis settings and the list of settable keys.",
			InputSchema: objectSchema(map[string]interface{}{}),
		},
		{
			Name:        "dots_settings_set",
			Description: "Set one settings key (for example base_x, color_tolerance, batch_sampling_rate). Values are clamped to their valid range; null restores the default.",
			InputSchema: objectSchema(map[string]interface{}{
				"key": map[string]interface{}{
					"type":        "string",
					"description": "Settings key, see dots_settings_get",
				},
				"value": map[string]interface{}{
					"description": "New value (any JSON type)",
				},
			}, "key", "value"),
		},

		// Areas
		{
			Name:        "dots_areas_list",
			Description: "List the named areas dots are counted in.",
			InputSchema: objectSchema(map[string]interface{}{}),
		},
		{
			Name:        "dots_area_add",
			Description: "Add a named rectangular area. Its far edges (x+width, y+height) are inside the area.",
			InputSchema: objectSchema(map[string]interface{}{
				"name": map[string]interface{}{
					"type":        "string",
					"description": "Unique area name",
				},
				"x": map[string]interface{}{
					"type":        "integer",
					"description": "Left edge X coordinate",
				},
				"y": map[string]interface{}{
					"type":        "integer",
					"description": "Top edge Y coordinate",
				},
				"width": map[string]interface{}{
					"type":        "integer",
					"description": "Width in pixels (at least 1)",
				},
				"height": map[string]interface{}{
					"type":        "integer",
					"description": "Height in pixels (at least 1)",
				},
			}, "name", "x", "y", "width", "height"),
		},
		{
			Name:        "dots_area_remove",
			Description: "Remove a named area.",
			InputSchema: objectSchema(map[string]interface{}{
				"name": map[string]interface{}{
					"type":        "string",
					"description": "Area name",
				},
			}, "name"),
		},
		{
			Name:        "dots_area_preview",
			Description: "Crop a named area from a frame and return it as base64-encoded PNG.",
			InputSchema: objectSchema(map[string]interface{}{
				"name": map[string]interface{}{
					"type":        "string",
					"description": "Area name",
				},
				"index": frameIndexProp,
				"scale": map[string]interface{}{
					"type":        "number",
					"description": "Optional scale factor. Default 2.0",
					"default":     2.0,
				},
			}, "name", "index"),
		},

		// Batch analysis
		{
			Name:        "dots_batch_analyze",
			Description: "Run the batch analysis over the open recording: detect dots on every Nth frame, track them over time and report per-area curves and percentile crossings. Does nothing unless a reference point and at least one area are set.",
			InputSchema: objectSchema(map[string]interface{}{
				"stride": map[string]interface{}{
					"type":        "integer",
					"description": "Analyze every Nth frame (1-100). Defaults to batch_sampling_rate",
				},
			}),
		},
		{
			Name:        "dots_batch_result",
			Description: "Return a batch result: the last one of this session or a stored run.",
			InputSchema: objectSchema(map[string]interface{}{
				"run_id": runIDProp,
			}),
		},
		{
			Name:        "dots_batch_chart",
			Description: "Chart a batch result as PNG (base64) or interactive HTML, optionally written to a file.",
			InputSchema: objectSchema(map[string]interface{}{
				"run_id": runIDProp,
				"format": map[string]interface{}{
					"type":        "string",
					"enum":        []string{"png", "html"},
					"description": "Chart format. Default png",
					"default":     "png",
				},
				"output_path": map[string]interface{}{
					"type":        "string",
					"description": "Optional file to write the chart to",
				},
			}),
		},
		{
			Name:        "dots_runs_list",
			Description: "List stored batch runs, newest first.",
			InputSchema: objectSchema(map[string]interface{}{
				"limit": map[string]interface{}{
					"type":        "integer",
					"description": "Maximum number of runs. Default all",
				},
			}),
		},
		{
			Name:        "dots_run_delete",
			Description: "Delete a stored batch run.",
			InputSchema: objectSchema(map[string]interface{}{
				"run_id": map[string]interface{}{
					"type":        "string",
					"description": "Stored run ID",
				},
			}, "run_id"),
		},
	}
}
