// Package stitch grows a composite image from overlapping scroll frames.
package stitch

import (
	"errors"
	"fmt"
	"image"

	"jordanella.com/scroll-stitch/internal/cv"
)

// DefaultChunkLines is the number of lines stored per chunk
const DefaultChunkLines = 256

var (
	ErrNotSeeded     = errors.New("canvas has not been seeded")
	ErrCrossMismatch = errors.New("frame does not match canvas cross length")
	ErrInvalidOffset = errors.New("offset outside frame length")
	ErrInvalidPixels = errors.New("frame pixel buffer is corrupt")
)

// Canvas is a composite that only grows along the scroll axis.
//
// Pixels are stored line by line (rows when scrolling vertically, columns
// when scrolling horizontally) in fixed-size chunks. Appending never moves
// lines that are already stored.
type Canvas struct {
	dir        cv.Direction
	cross      int
	lineBytes  int
	chunkLines int

	chunks [][]byte
	lines  int
}

// NewCanvas creates an empty canvas whose lines are cross pixels long
func NewCanvas(dir cv.Direction, cross int) *Canvas {
	return NewCanvasWithChunk(dir, cross, DefaultChunkLines)
}

// NewCanvasWithChunk creates an empty canvas with a custom chunk size
func NewCanvasWithChunk(dir cv.Direction, cross, chunkLines int) *Canvas {
	if chunkLines < 1 {
		chunkLines = DefaultChunkLines
	}
	return &Canvas{
		dir:        dir,
		cross:      cross,
		lineBytes:  cross * 4,
		chunkLines: chunkLines,
	}
}

// Seed discards any content and fills the canvas with the whole frame
func (c *Canvas) Seed(frame *image.RGBA) (width, height int, err error) {
	if err := c.check(frame); err != nil {
		return 0, 0, err
	}

	c.Reset()
	c.appendLines(frame, 0, cv.AxisLength(frame, c.dir))

	width, height = c.Size()
	return width, height, nil
}

// Append adds the part of frame not covered by the previous frame. offset
// is the overlap in lines; frame length minus offset new lines are added.
func (c *Canvas) Append(frame *image.RGBA, offset int) (width, height int, err error) {
	if c.lines == 0 {
		return 0, 0, ErrNotSeeded
	}
	if err := c.check(frame); err != nil {
		return 0, 0, err
	}

	length := cv.AxisLength(frame, c.dir)
	if offset < 0 || offset > length {
		return 0, 0, fmt.Errorf("%w: %d not in [0, %d]", ErrInvalidOffset, offset, length)
	}

	c.appendLines(frame, offset, length)

	width, height = c.Size()
	return width, height, nil
}

// Size returns the canvas dimensions
func (c *Canvas) Size() (width, height int) {
	if c.lines == 0 {
		return 0, 0
	}
	if c.dir == cv.Horizontal {
		return c.lines, c.cross
	}
	return c.cross, c.lines
}

// Lines returns the canvas length along the scroll axis
func (c *Canvas) Lines() int {
	return c.lines
}

// Direction returns the scroll axis of the canvas
func (c *Canvas) Direction() cv.Direction {
	return c.dir
}

// Reset drops all stored lines
func (c *Canvas) Reset() {
	c.chunks = nil
	c.lines = 0
}

// Image copies the canvas into a new RGBA image
func (c *Canvas) Image() *image.RGBA {
	width, height := c.Size()
	img := image.NewRGBA(image.Rect(0, 0, width, height))
	if c.lines == 0 {
		return img
	}

	a := 0
	for _, chunk := range c.chunks {
		for off := 0; off < len(chunk); off += c.lineBytes {
			line := chunk[off : off+c.lineBytes]
			if c.dir == cv.Horizontal {
				for i := 0; i < c.cross; i++ {
					dst := img.PixOffset(a, i)
					copy(img.Pix[dst:dst+4], line[i*4:i*4+4])
				}
			} else {
				dst := a * img.Stride
				copy(img.Pix[dst:dst+c.lineBytes], line)
			}
			a++
		}
	}

	return img
}

func (c *Canvas) check(frame *image.RGBA) error {
	if frame == nil || frame.Bounds().Empty() {
		return ErrInvalidPixels
	}
	if frame.Bounds().Min != (image.Point{}) {
		return fmt.Errorf("%w: frame origin %v", ErrInvalidPixels, frame.Bounds().Min)
	}
	if got := cv.CrossLength(frame, c.dir); got != c.cross {
		return fmt.Errorf("%w: got %d, want %d", ErrCrossMismatch, got, c.cross)
	}
	if len(frame.Pix) < frame.Bounds().Dy()*frame.Stride {
		return ErrInvalidPixels
	}
	return nil
}

// appendLines copies lines [from, to) of frame onto the end of the canvas
func (c *Canvas) appendLines(frame *image.RGBA, from, to int) {
	for a := from; a < to; a++ {
		chunk := c.tail()
		start := len(chunk)
		chunk = chunk[:start+c.lineBytes]

		if c.dir == cv.Horizontal {
			for i := 0; i < c.cross; i++ {
				src := cv.PixOffset(frame, c.dir, a, i)
				copy(chunk[start+i*4:start+i*4+4], frame.Pix[src:src+4])
			}
		} else {
			src := cv.PixOffset(frame, c.dir, a, 0)
			copy(chunk[start:], frame.Pix[src:src+c.lineBytes])
		}

		c.chunks[len(c.chunks)-1] = chunk
		c.lines++
	}
}

// tail returns the last chunk, starting a new one when it is full
func (c *Canvas) tail() []byte {
	if n := len(c.chunks); n > 0 {
		last := c.chunks[n-1]
		if len(last)+c.lineBytes <= cap(last) {
			return last
		}
	}
	c.chunks = append(c.chunks, make([]byte, 0, c.chunkLines*c.lineBytes))
	return c.chunks[len(c.chunks)-1]
}
