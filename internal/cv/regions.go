package cv

import (
	"fmt"
	"image"
	"strconv"
	"strings"
)

// Region is a capture rectangle in physical pixels
type Region struct {
	X, Y          int
	Width, Height int
}

// Direction selects the scroll axis
type Direction int

const (
	// Vertical scrolls grow the canvas downwards
	Vertical Direction = iota
	// Horizontal scrolls grow the canvas to the right
	Horizontal
)

// String returns the config name of the direction
func (d Direction) String() string {
	switch d {
	case Vertical:
		return "vertical"
	case Horizontal:
		return "horizontal"
	default:
		return fmt.Sprintf("direction(%d)", int(d))
	}
}

// ParseDirection converts a config string to a Direction
func ParseDirection(s string) (Direction, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "vertical", "v", "down":
		return Vertical, nil
	case "horizontal", "h", "right":
		return Horizontal, nil
	default:
		return Vertical, fmt.Errorf("unknown scroll direction %q", s)
	}
}

// NewRegion creates a new region
func NewRegion(x, y, width, height int) Region {
	return Region{X: x, Y: y, Width: width, Height: height}
}

// ParseRegion parses "x,y,width,height"
func ParseRegion(s string) (Region, error) {
	parts := strings.Split(s, ",")
	if len(parts) != 4 {
		return Region{}, fmt.Errorf("region %q: expected x,y,width,height", s)
	}

	var vals [4]int
	for i, p := range parts {
		v, err := strconv.Atoi(strings.TrimSpace(p))
		if err != nil {
			return Region{}, fmt.Errorf("region %q: %w", s, err)
		}
		vals[i] = v
	}

	r := NewRegion(vals[0], vals[1], vals[2], vals[3])
	return r, r.Validate()
}

// Validate rejects empty regions
func (r Region) Validate() error {
	if r.Width <= 0 || r.Height <= 0 {
		return fmt.Errorf("%w: %dx%d", ErrEmptyRegion, r.Width, r.Height)
	}
	return nil
}

// Rect converts Region to an image.Rectangle in screen coordinates
func (r Region) Rect() image.Rectangle {
	return image.Rect(r.X, r.Y, r.X+r.Width, r.Y+r.Height)
}

// Length returns the region size along the scroll axis
func (r Region) Length(dir Direction) int {
	if dir == Horizontal {
		return r.Width
	}
	return r.Height
}

// Cross returns the region size perpendicular to the scroll axis
func (r Region) Cross(dir Direction) int {
	if dir == Horizontal {
		return r.Height
	}
	return r.Width
}

func (r Region) String() string {
	return fmt.Sprintf("%d,%d,%d,%d", r.X, r.Y, r.Width, r.Height)
}

// AxisLength returns the size of img along the scroll axis
func AxisLength(img *image.RGBA, dir Direction) int {
	if dir == Horizontal {
		return img.Bounds().Dx()
	}
	return img.Bounds().Dy()
}

// CrossLength returns the size of img perpendicular to the scroll axis
func CrossLength(img *image.RGBA, dir Direction) int {
	if dir == Horizontal {
		return img.Bounds().Dy()
	}
	return img.Bounds().Dx()
}

// PixOffset returns the Pix index of the pixel at line a (scroll axis) and
// position c (cross axis), both relative to the image origin.
func PixOffset(img *image.RGBA, dir Direction, a, c int) int {
	if dir == Horizontal {
		return c*img.Stride + a*4
	}
	return a*img.Stride + c*4
}
