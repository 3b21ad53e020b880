//go:build !gocv
// +build !gocv

package detection

import (
	"errors"

	"github.com/ironsheep/thermal-dots-mcp/internal/imaging"
)

// ErrCVUnavailable is returned when the binary was built without the gocv tag.
var ErrCVUnavailable = errors.New("gocv build tag is not enabled")

// CVDetector is unavailable in builds without OpenCV.
type CVDetector struct{}

// NewCVDetector returns ErrCVUnavailable in builds without the gocv tag.
func NewCVDetector() (*CVDetector, error) {
	return nil, ErrCVUnavailable
}

// Detect returns ErrCVUnavailable.
func (d *CVDetector) Detect(f *imaging.Frame, p Params) ([]DetectedMark, error) {
	_ = f
	_ = p
	return nil, ErrCVUnavailable
}
