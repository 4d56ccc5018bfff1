package cv

import (
	"context"
	"image"
)

// FrameSource grabs the pixels of a screen region
type FrameSource interface {
	// Grab returns the region as RGBA at the region's physical size.
	Grab(ctx context.Context, region Region) (*image.RGBA, error)
}

// Display describes the physical monitor backing a region
type Display struct {
	Index  int
	Bounds image.Rectangle
	Scale  float64
}

// DisplayResolver finds the display a region lives on
type DisplayResolver interface {
	ResolveDisplay(region Region) (Display, error)
}

// FrameSourceFunc adapts a function to FrameSource
type FrameSourceFunc func(ctx context.Context, region Region) (*image.RGBA, error)

// Grab calls f(ctx, region)
func (f FrameSourceFunc) Grab(ctx context.Context, region Region) (*image.RGBA, error) {
	return f(ctx, region)
}

// StaticDisplay resolves every region to the same display. Useful when the
// caller already knows which monitor is in use.
type StaticDisplay Display

// ResolveDisplay returns d, failing when the region lies outside its bounds
func (d StaticDisplay) ResolveDisplay(region Region) (Display, error) {
	if !d.Bounds.Empty() && !region.Rect().In(d.Bounds) {
		return Display{}, ErrRegionOffscreen
	}
	return Display(d), nil
}
