// Package imaging holds the frame model shared by the analysis pipeline and
// the pixel-level helpers built on it.
//
// A Frame is a rendered thermal image: RGBA samples normalized to [0,1], plus
// optionally the raw sensor counts it was rendered from. Everything downstream
// (detection, temperature lookup, overlays, previews) works on frames rather
// than on image.Image so the float buffer produced by the renderer is used
// without an extra conversion per step.
//
// # Coordinate System
//
// All pixel coordinates in this package are 0-based:
//   - X: horizontal position (0 = leftmost pixel)
//   - Y: vertical position (0 = topmost pixel)
//
// # Color Representation
//
// HSV values follow the 8-bit OpenCV convention used by the detector:
// hue 0-179, saturation 0-255, value 0-255. Conversion goes through
// go-colorful; value is always the exact maximum RGB component.
//
// # Thread Safety
//
// Frames are read-only once constructed. FrameCache is safe for concurrent
// use. The drawing helpers allocate their own output images.
package imaging
