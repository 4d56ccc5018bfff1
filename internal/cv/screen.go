package cv

import (
	"context"
	"fmt"
	"image"

	"github.com/kbinani/screenshot"
)

// ScreenCapturer captures regions of the desktop. It implements both
// FrameSource and DisplayResolver.
type ScreenCapturer struct {
	// Scale is reported on resolved displays; the capture backend already
	// works in physical pixels.
	Scale float64
}

// NewScreenCapturer creates a desktop capturer
func NewScreenCapturer() *ScreenCapturer {
	return &ScreenCapturer{Scale: 1.0}
}

// Grab captures region from the screen
func (s *ScreenCapturer) Grab(ctx context.Context, region Region) (*image.RGBA, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if err := region.Validate(); err != nil {
		return nil, err
	}

	img, err := screenshot.CaptureRect(region.Rect())
	if err != nil {
		return nil, fmt.Errorf("capture %s: %w", region, err)
	}

	return normalizeOrigin(img), nil
}

// ResolveDisplay returns the active display containing region
func (s *ScreenCapturer) ResolveDisplay(region Region) (Display, error) {
	n := screenshot.NumActiveDisplays()
	if n == 0 {
		return Display{}, fmt.Errorf("no active displays")
	}

	rect := region.Rect()
	for i := 0; i < n; i++ {
		bounds := screenshot.GetDisplayBounds(i)
		if rect.In(bounds) {
			return Display{Index: i, Bounds: bounds, Scale: s.scale()}, nil
		}
	}

	return Display{}, fmt.Errorf("%w: %s", ErrRegionOffscreen, region)
}

func (s *ScreenCapturer) scale() float64 {
	if s.Scale <= 0 {
		return 1.0
	}
	return s.Scale
}

// normalizeOrigin moves img so its bounds start at (0,0)
func normalizeOrigin(img *image.RGBA) *image.RGBA {
	if img.Bounds().Min == (image.Point{}) {
		return img
	}
	return CropRegion(img, img.Bounds())
}
