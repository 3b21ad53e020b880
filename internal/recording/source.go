package recording

import (
	"context"
	"fmt"
	"os"

	"github.com/ironsheep/thermal-dots-mcp/internal/imaging"
	"github.com/ironsheep/thermal-dots-mcp/internal/render"
)

// Source is an opened recording or image directory.
type Source interface {
	Path() string
	FrameCount() int
	StartTimestamp() float64
	ReadFrame(ctx context.Context, index int, cfg render.Config) (*imaging.Frame, error)
	Close() error
}

// OpenSource opens path as an image directory when it is a directory and as
// a recording file otherwise.
func OpenSource(path string) (Source, error) {
	info, err := os.Stat(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open source: %w", err)
	}
	if info.IsDir() {
		return OpenDir(path, DefaultFPS)
	}
	return Open(path)
}
