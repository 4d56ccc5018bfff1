package scroll

import (
	"context"
	"errors"
	"image"
	"sync"

	"jordanella.com/scroll-stitch/internal/cv"
)

// documentFrame renders lines [start, start+length) of an endless document
// whose pixels are pseudo-random colors derived from their position.
func documentFrame(dir cv.Direction, length, cross, start int) *image.RGBA {
	w, h := cross, length
	if dir == cv.Horizontal {
		w, h = length, cross
	}
	img := image.NewRGBA(image.Rect(0, 0, w, h))

	for a := 0; a < length; a++ {
		for c := 0; c < cross; c++ {
			v := uint32(start+a)*2654435761 ^ uint32(c)*2246822519
			v ^= v >> 15
			v *= 2246822519
			v ^= v >> 13

			idx := cv.PixOffset(img, dir, a, c)
			img.Pix[idx] = uint8(v)
			img.Pix[idx+1] = uint8(v >> 8)
			img.Pix[idx+2] = uint8(v >> 16)
			img.Pix[idx+3] = 255
		}
	}

	return img
}

// corruptColumns flips every fifth column so a true match scores 80% at
// the default sample stride.
func corruptColumns(img *image.RGBA) {
	b := img.Bounds()
	for y := 0; y < b.Dy(); y++ {
		for x := 0; x < b.Dx(); x += 5 {
			idx := img.PixOffset(x, y)
			img.Pix[idx] ^= 0x80
			img.Pix[idx+1] ^= 0x80
			img.Pix[idx+2] ^= 0x80
		}
	}
}

var errScreenLocked = errors.New("screen locked")

// scrollingSource serves successive windows of a document, advancing step
// lines per grab. After stopAfter grabs (when positive) the view stops
// scrolling. failing makes every grab return errScreenLocked. afterGrab,
// when set, runs on the capturing goroutine with the grab count.
type scrollingSource struct {
	mu        sync.Mutex
	dir       cv.Direction
	step      int
	stopAfter int
	failing   bool
	grabs     int
	afterGrab func(n int)
}

func (s *scrollingSource) Grab(ctx context.Context, region cv.Region) (*image.RGBA, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s.grabs++
	if s.failing {
		return nil, errScreenLocked
	}

	pos := s.grabs - 1
	if s.stopAfter > 0 && pos >= s.stopAfter {
		pos = s.stopAfter - 1
	}

	img := documentFrame(s.dir, region.Length(s.dir), region.Cross(s.dir), pos*s.step)
	if s.afterGrab != nil {
		s.afterGrab(s.grabs)
	}
	return img, nil
}

func (s *scrollingSource) Grabs() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.grabs
}

// testOptions returns options with a fast sample rate
func testOptions() Options {
	opts := DefaultOptions()
	opts.SampleRate = 200
	opts.QueueCapacity = 64
	return opts
}
