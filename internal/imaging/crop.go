package imaging

import (
	"bytes"
	"encoding/base64"
	"fmt"
	"image"
	"image/png"

	"github.com/disintegration/imaging"
)

// CropResult contains the cropped image data
type CropResult struct {
	X           int    `json:"x"`
	Y           int    `json:"y"`
	Width       int    `json:"width"`
	Height      int    `json:"height"`
	ImageBase64 string `json:"image_base64"`
	MimeType    string `json:"mime_type"`
}

// CropRegion extracts a rectangle of the frame as a PNG, scaled by scale.
//
// The rectangle is clipped to the frame; a rectangle that does not overlap the
// frame at all is an error. X and Y in the result are the clipped origin so
// callers can map preview pixels back to frame coordinates.
func CropRegion(f *Frame, x, y, width, height int, scale float64) (*CropResult, error) {
	if width < 1 || height < 1 {
		return nil, fmt.Errorf("invalid crop size %dx%d", width, height)
	}
	r := image.Rect(x, y, x+width, y+height).Intersect(f.Bounds())
	if r.Empty() {
		return nil, fmt.Errorf("crop region (%d,%d) %dx%d outside frame bounds %dx%d",
			x, y, width, height, f.Width, f.Height)
	}

	cropped := imaging.Crop(f.ToNRGBA(), r)
	if scale != 1.0 && scale > 0 {
		newWidth := int(float64(cropped.Bounds().Dx()) * scale)
		newHeight := int(float64(cropped.Bounds().Dy()) * scale)
		if newWidth < 1 {
			newWidth = 1
		}
		if newHeight < 1 {
			newHeight = 1
		}
		cropped = imaging.Resize(cropped, newWidth, newHeight, imaging.Lanczos)
	}

	data, err := EncodePNG(cropped)
	if err != nil {
		return nil, err
	}
	return &CropResult{
		X:           r.Min.X,
		Y:           r.Min.Y,
		Width:       cropped.Bounds().Dx(),
		Height:      cropped.Bounds().Dy(),
		ImageBase64: data,
		MimeType:    "image/png",
	}, nil
}

// EncodePNG encodes an image as base64 PNG.
func EncodePNG(img image.Image) (string, error) {
	var buf bytes.Buffer
	if err := png.Encode(&buf, img); err != nil {
		return "", fmt.Errorf("failed to encode image: %w", err)
	}
	return base64.StdEncoding.EncodeToString(buf.Bytes()), nil
}
