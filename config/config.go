// Package config holds the typed tuning shared by the relay server, the
// sandbox peer and the inspector.
package config

import "image/color"

// InspectorConfig controls the debug viewer window.
type InspectorConfig struct {
	Width, Height int
	PixelsPerUnit float64 // World units to screen pixels
	BodySize      float32 // Side of the square drawn per body, in pixels
	ShowStale     bool
}

var Inspector = InspectorConfig{
	Width:         960,
	Height:        540,
	PixelsPerUnit: 32,
	BodySize:      12,
	ShowStale:     true,
}

// Palette
var (
	White       = color.RGBA{R: 255, G: 255, B: 255, A: 255}
	Yellow      = color.RGBA{R: 255, G: 255, B: 0, A: 255}
	Orange      = color.RGBA{R: 255, G: 140, B: 0, A: 255}
	Red         = color.RGBA{R: 255, G: 0, B: 0, A: 255}
	BrightGreen = color.RGBA{R: 0, G: 255, B: 60, A: 255}
	LightGreen  = color.RGBA{R: 100, G: 255, B: 100, A: 255}
	Blue        = color.RGBA{R: 0, G: 100, B: 255, A: 255}
	LightBlue   = color.RGBA{R: 100, G: 180, B: 255, A: 255}
	DarkBlue    = color.RGBA{R: 60, G: 100, B: 160, A: 255}
	Grey        = color.RGBA{R: 120, G: 120, B: 120, A: 255}
	Background  = color.RGBA{R: 15, G: 25, B: 50, A: 255}
)

// MotionColors maps a body's last reported motion type to its fill colour.
var MotionColors = [...]color.RGBA{
	LightGreen, // dynamic
	Orange,     // keyframed
	LightBlue,  // sleeping
}
