package mediagrid

import (
	"fmt"
	"image"
	"image/color"
	"strconv"
	"strings"
)

// Rect is a rectangle in canvas coordinates.
type Rect struct {
	X, Y          float64
	Width, Height float64
}

// RectFrom converts a tile rectangle to canvas coordinates.
func RectFrom(r TileRect) Rect {
	return Rect{X: float64(r.X), Y: float64(r.Y), Width: float64(r.Width), Height: float64(r.Height)}
}

// DrawSurface is the 2-D raster canvas tiles are painted onto.
// Implementations need not be safe for concurrent use.
type DrawSurface interface {
	Width() int
	Height() int

	// FillRect fills r with c.
	FillRect(r Rect, c color.Color)

	// StrokeRect outlines r with c.
	StrokeRect(r Rect, c color.Color, lineWidth float64)

	// DrawImage scales the src region of img into dst.
	DrawImage(img image.Image, src image.Rectangle, dst Rect)

	// DrawImageCircle scales the src region of img into dst, keeping only
	// the disc inscribed in dst.
	DrawImageCircle(img image.Image, src image.Rectangle, dst Rect)

	// FillText draws s with its bottom edge at y, truncated to maxWidth.
	FillText(s string, x, y, maxWidth float64, c color.Color)

	// Snapshot returns a copy of the current canvas contents.
	Snapshot() *image.RGBA
}

// ParseHexColor parses "#rgb", "#rrggbb" or "#rrggbbaa".
func ParseHexColor(s string) (color.NRGBA, error) {
	hex := strings.TrimPrefix(strings.TrimSpace(s), "#")
	if len(hex) == 3 {
		hex = string([]byte{hex[0], hex[0], hex[1], hex[1], hex[2], hex[2]})
	}
	if len(hex) == 6 {
		hex += "ff"
	}
	if len(hex) != 8 {
		return color.NRGBA{}, fmt.Errorf("invalid color %q", s)
	}
	v, err := strconv.ParseUint(hex, 16, 32)
	if err != nil {
		return color.NRGBA{}, fmt.Errorf("invalid color %q: %w", s, err)
	}
	return color.NRGBA{
		R: uint8(v >> 24),
		G: uint8(v >> 16),
		B: uint8(v >> 8),
		A: uint8(v),
	}, nil
}

// MustParseHexColor is like ParseHexColor but panics on malformed input.
// It is meant for package-level defaults.
func MustParseHexColor(s string) color.NRGBA {
	c, err := ParseHexColor(s)
	if err != nil {
		panic(err)
	}
	return c
}
