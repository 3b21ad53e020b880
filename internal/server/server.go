package server

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"sync"

	"github.com/sirupsen/logrus"

	"github.com/ironsheep/thermal-dots-mcp/internal/analysis"
	"github.com/ironsheep/thermal-dots-mcp/internal/config"
	"github.com/ironsheep/thermal-dots-mcp/internal/detection"
	"github.com/ironsheep/thermal-dots-mcp/internal/imaging"
	"github.com/ironsheep/thermal-dots-mcp/internal/logging"
	"github.com/ironsheep/thermal-dots-mcp/internal/recording"
	"github.com/ironsheep/thermal-dots-mcp/internal/store"
)

// Name and Version are reported in the initialize handshake.
const (
	Name    = "thermal-dots-mcp"
	Version = "0.1.0"
)

// DefaultCacheSize is the number of rendered frames kept between tool calls.
const DefaultCacheSize = 64

// Server handles MCP protocol communication
type Server struct {
	in  io.Reader
	out io.Writer

	writeMu sync.Mutex
	encoder *json.Encoder

	log           logrus.FieldLogger
	cache         *imaging.FrameCache
	analysis      *analysis.Service
	runs          *store.Store
	settingsPath  string
	recordingsDir string

	srcMu  sync.RWMutex
	source recording.Source
}

// Options configures a Server. Zero values select stdin/stdout, a discarding
// logger, settings.json in the working directory and no persistence.
type Options struct {
	In            io.Reader
	Out           io.Writer
	Logger        logrus.FieldLogger
	SettingsPath  string
	RecordingsDir string
	Store         *store.Store
	Detector      detection.Detector
	Workers       int
	CacheSize     int
}

// MCPRequest represents an incoming JSON-RPC request
type MCPRequest struct {
	JSONRPC string          `json:"jsonrpc"`
	ID      interface{}     `json:"id"`
	Method  string          `json:"method"`
	Params  json.RawMessage `json:"params,omitempty"`
}

// MCPResponse represents an outgoing JSON-RPC response
type MCPResponse struct {
	JSONRPC string      `json:"jsonrpc"`
	ID      interface{} `json:"id"`
	Result  interface{} `json:"result,omitempty"`
	Error   *MCPError   `json:"error,omitempty"`
}

// MCPError represents a JSON-RPC error
type MCPError struct {
	Code    int         `json:"code"`
	Message string      `json:"message"`
	Data    interface{} `json:"data,omitempty"`
}

// MCPNotification represents an outgoing notification (no ID)
type MCPNotification struct {
	JSONRPC string      `json:"jsonrpc"`
	Method  string      `json:"method"`
	Params  interface{} `json:"params,omitempty"`
}

// New creates a new MCP server instance
func New(opts Options) *Server {
	if opts.In == nil {
		opts.In = os.Stdin
	}
	if opts.Out == nil {
		opts.Out = os.Stdout
	}
	if opts.Logger == nil {
		opts.Logger = logging.Discard()
	}
	if opts.SettingsPath == "" {
		opts.SettingsPath = config.DefaultSettingsPath
	}
	if opts.CacheSize == 0 {
		opts.CacheSize = DefaultCacheSize
	}

	s := &Server{
		in:            opts.In,
		out:           opts.Out,
		encoder:       json.NewEncoder(opts.Out),
		log:           opts.Logger,
		cache:         imaging.NewFrameCache(opts.CacheSize),
		settingsPath:  opts.SettingsPath,
		recordingsDir: opts.RecordingsDir,
	}
	// Assigning a nil *store.Store to the interface field would make it non-nil.
	var runs analysis.RunStore
	if opts.Store != nil {
		runs = opts.Store
		s.runs = opts.Store
	}
	s.analysis = analysis.NewService(opts.Logger, opts.Detector, runs, opts.Workers)
	return s
}

// Run reads requests until the input ends or ctx is cancelled. Requests are
// handled one at a time in arrival order.
func (s *Server) Run(ctx context.Context) error {
	scanner := bufio.NewScanner(s.in)
	// Increase buffer size for large requests
	buf := make([]byte, 0, 64*1024)
	scanner.Buffer(buf, 1024*1024)

	defer s.closeSource()

	for scanner.Scan() {
		if err := ctx.Err(); err != nil {
			return err
		}
		line := scanner.Bytes()
		if len(line) == 0 {
			continue
		}

		var req MCPRequest
		if err := json.Unmarshal(line, &req); err != nil {
			s.log.WithError(err).Warn("failed to parse request")
			continue
		}

		resp := s.handleRequest(ctx, &req)
		if resp != nil {
			s.write(resp)
		}
	}

	if err := scanner.Err(); err != nil {
		return fmt.Errorf("scanner error: %w", err)
	}

	return nil
}

// write encodes one message. Progress notifications and responses share the
// output stream.
func (s *Server) write(v interface{}) {
	s.writeMu.Lock()
	defer s.writeMu.Unlock()
	if err := s.encoder.Encode(v); err != nil {
		s.log.WithError(err).Error("failed to encode response")
	}
}

// notify sends a JSON-RPC notification.
func (s *Server) notify(method string, params interface{}) {
	s.write(&MCPNotification{JSONRPC: "2.0", Method: method, Params: params})
}

// handleRequest routes requests to appropriate handlers
func (s *Server) handleRequest(ctx context.Context, req *MCPRequest) *MCPResponse {
	switch req.Method {
	case "initialize":
		return s.handleInitialize(req)
	case "notifications/initialized":
		// Client acknowledgment, no response needed
		return nil
	case "tools/list":
		return s.handleToolsList(req)
	case "tools/call":
		return s.handleToolsCall(ctx, req)
	case "ping":
		return &MCPResponse{
			JSONRPC: "2.0",
			ID:      req.ID,
			Result:  map[string]interface{}{},
		}
	default:
		return &MCPResponse{
			JSONRPC: "2.0",
			ID:      req.ID,
			Error: &MCPError{
				Code:    -32601,
				Message: fmt.Sprintf("Method not found: %s", req.Method),
			},
		}
	}
}

// handleInitialize responds to the initialize request
func (s *Server) handleInitialize(req *MCPRequest) *MCPResponse {
	return &MCPResponse{
		JSONRPC: "2.0",
		ID:      req.ID,
		Result: map[string]interface{}{
			"protocolVersion": "2024-11-05",
			"capabilities": map[string]interface{}{
				"tools": map[string]interface{}{},
			},
			"serverInfo": map[string]interface{}{
				"name":    Name,
				"version": Version,
			},
		},
	}
}

// handleToolsList returns the tool catalogue.
func (s *Server) handleToolsList(req *MCPRequest) *MCPResponse {
	return &MCPResponse{
		JSONRPC: "2.0",
		ID:      req.ID,
		Result: map[string]interface{}{
			"tools": GetToolDefinitions(),
		},
	}
}

// currentSource returns the open recording, or an error when none is open.
func (s *Server) currentSource() (recording.Source, error) {
	s.srcMu.RLock()
	defer s.srcMu.RUnlock()
	if s.source == nil {
		return nil, fmt.Errorf("no recording open, call dots_recording_open first")
	}
	return s.source, nil
}

// setSource replaces the open recording and drops cached frames of the old one.
func (s *Server) setSource(src recording.Source) {
	s.srcMu.Lock()
	old := s.source
	s.source = src
	s.srcMu.Unlock()

	s.cache.Clear()
	if old != nil {
		if err := old.Close(); err != nil {
			s.log.WithError(err).Warn("failed to close previous recording")
		}
	}
}

func (s *Server) closeSource() {
	s.srcMu.Lock()
	defer s.srcMu.Unlock()
	if s.source != nil {
		s.source.Close()
		s.source = nil
	}
}
