package recording

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	disimaging "github.com/disintegration/imaging"

	"github.com/ironsheep/thermal-dots-mcp/internal/imaging"
	"github.com/ironsheep/thermal-dots-mcp/internal/render"
)

// DefaultFPS is the frame rate assumed for image directories.
const DefaultFPS = 1.0

// DirSource serves the PNG and JPEG files of a directory as frames, in file
// name order. Frame i has timestamp i / FPS.
//
// Images are already rendered, so the render configuration is ignored and the
// frames carry no raw data.
type DirSource struct {
	dir   string
	files []string
	fps   float64
}

// OpenDir lists the images of dir. fps <= 0 selects DefaultFPS.
func OpenDir(dir string, fps float64) (*DirSource, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, fmt.Errorf("failed to read image directory: %w", err)
	}
	if fps <= 0 {
		fps = DefaultFPS
	}
	files := make([]string, 0, len(entries))
	for _, e := range entries {
		if e.IsDir() {
			continue
		}
		switch strings.ToLower(filepath.Ext(e.Name())) {
		case ".png", ".jpg", ".jpeg":
			files = append(files, filepath.Join(dir, e.Name()))
		}
	}
	sort.Strings(files)
	return &DirSource{dir: dir, files: files, fps: fps}, nil
}

// Path returns the directory.
func (d *DirSource) Path() string { return d.dir }

// FrameCount returns the number of images.
func (d *DirSource) FrameCount() int { return len(d.files) }

// StartTimestamp is always 0; image timestamps are already relative.
func (d *DirSource) StartTimestamp() float64 { return 0 }

// ReadFrame decodes one image.
func (d *DirSource) ReadFrame(ctx context.Context, index int, _ render.Config) (*imaging.Frame, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if index < 0 || index >= len(d.files) {
		return nil, fmt.Errorf("%w: %d of %d", ErrIndexOutOfRange, index, len(d.files))
	}
	img, err := disimaging.Open(d.files[index])
	if err != nil {
		return nil, fmt.Errorf("failed to decode %s: %w", filepath.Base(d.files[index]), err)
	}
	return imaging.FrameFromImage(img, float64(index)/d.fps), nil
}

// Close is a no-op; images are opened per read.
func (d *DirSource) Close() error { return nil }
