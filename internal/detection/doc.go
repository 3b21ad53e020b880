// Package detection finds dot-like blobs in rendered thermal frames.
//
// A dot is a small bright disk or ellipse. Detection thresholds the frame,
// extracts the outer contour of every connected blob, filters the contours by
// area and circularity, and fits an ellipse (or, for tiny contours, a circle)
// to each survivor.
//
// # Threshold Modes
//
// Two ways of building the foreground mask are supported behind the same
// Detect call:
//
//   - Reference mode (default): a pixel is foreground when its HSV value is at
//     least the reference pixel's value plus the tolerance. The cutoff is
//     one-sided; everything darker is background.
//   - Color mode: a pixel is foreground when its hue lies within the
//     tolerance of the target hue on the hue circle and its saturation lies
//     within the tolerance of the target saturation. Hue ranges that cross 0
//     or 179 are split into two ranges.
//
// # Coordinate System
//
// All coordinates use the standard image convention:
//   - Origin (0, 0) at top-left corner
//   - X increases rightward
//   - Y increases downward
//
// Mark angles are in degrees in [0, 180), measured from +X towards +Y.
//
// # Backends
//
// PureDetector is always available. CVDetector runs the same pipeline on
// OpenCV and is only functional in binaries built with the gocv tag.
package detection
