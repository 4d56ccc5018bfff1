package stitch

import (
	"image"
	"image/color"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"jordanella.com/scroll-stitch/internal/cv"
)

// lineFrame renders lines [start, start+length) where every line has a color
// derived from its absolute index, so stitched output can be checked line by
// line.
func lineFrame(dir cv.Direction, length, cross, start int) *image.RGBA {
	w, h := cross, length
	if dir == cv.Horizontal {
		w, h = length, cross
	}
	img := image.NewRGBA(image.Rect(0, 0, w, h))
	for a := 0; a < length; a++ {
		c := lineColor(start + a)
		for i := 0; i < cross; i++ {
			if dir == cv.Horizontal {
				img.SetRGBA(a, i, c)
			} else {
				img.SetRGBA(i, a, c)
			}
		}
	}
	return img
}

func lineColor(line int) color.RGBA {
	return color.RGBA{R: uint8(line), G: uint8(line >> 8), B: uint8(line * 7), A: 255}
}

func TestCanvasScenarioA(t *testing.T) {
	// 100x50 region, three frames each revealing 20 new rows
	canvas := NewCanvas(cv.Vertical, 100)

	w, h, err := canvas.Seed(lineFrame(cv.Vertical, 50, 100, 0))
	require.NoError(t, err)
	assert.Equal(t, 100, w)
	assert.Equal(t, 50, h)

	_, _, err = canvas.Append(lineFrame(cv.Vertical, 50, 100, 20), 30)
	require.NoError(t, err)
	w, h, err = canvas.Append(lineFrame(cv.Vertical, 50, 100, 40), 30)
	require.NoError(t, err)

	assert.Equal(t, 100, w)
	assert.Equal(t, 90, h)

	img := canvas.Image()
	require.Equal(t, image.Rect(0, 0, 100, 90), img.Bounds())
	for y := 0; y < 90; y++ {
		assert.Equal(t, lineColor(y), img.RGBAAt(0, y), "row %d", y)
		assert.Equal(t, lineColor(y), img.RGBAAt(99, y), "row %d", y)
	}
}

func TestCanvasHorizontal(t *testing.T) {
	canvas := NewCanvas(cv.Horizontal, 30)

	_, _, err := canvas.Seed(lineFrame(cv.Horizontal, 60, 30, 0))
	require.NoError(t, err)
	w, h, err := canvas.Append(lineFrame(cv.Horizontal, 60, 30, 25), 35)
	require.NoError(t, err)

	assert.Equal(t, 85, w)
	assert.Equal(t, 30, h)

	img := canvas.Image()
	for x := 0; x < 85; x++ {
		assert.Equal(t, lineColor(x), img.RGBAAt(x, 29), "column %d", x)
	}
}

func TestCanvasLengthLaw(t *testing.T) {
	const length = 40
	offsets := []int{39, 10, 25, 1, 40, 33}

	// Small chunks force many chunk boundaries
	canvas := NewCanvasWithChunk(cv.Vertical, 16, 7)
	_, _, err := canvas.Seed(lineFrame(cv.Vertical, length, 16, 0))
	require.NoError(t, err)

	want := length
	start := 0
	for _, o := range offsets {
		start += length - o
		_, _, err := canvas.Append(lineFrame(cv.Vertical, length, 16, start), o)
		require.NoError(t, err)
		want += length - o
	}

	assert.Equal(t, want, canvas.Lines())

	img := canvas.Image()
	for y := 0; y < want; y++ {
		require.Equal(t, lineColor(y), img.RGBAAt(3, y), "row %d", y)
	}
}

func TestCanvasZeroGrowthOnFullOverlap(t *testing.T) {
	canvas := NewCanvas(cv.Vertical, 10)
	frame := lineFrame(cv.Vertical, 20, 10, 0)

	_, _, err := canvas.Seed(frame)
	require.NoError(t, err)
	w, h, err := canvas.Append(frame, 20)
	require.NoError(t, err)

	assert.Equal(t, 10, w)
	assert.Equal(t, 20, h)
}

func TestCanvasErrors(t *testing.T) {
	canvas := NewCanvas(cv.Vertical, 10)

	_, _, err := canvas.Append(lineFrame(cv.Vertical, 20, 10, 0), 5)
	assert.ErrorIs(t, err, ErrNotSeeded)

	_, _, err = canvas.Seed(lineFrame(cv.Vertical, 20, 12, 0))
	assert.ErrorIs(t, err, ErrCrossMismatch)

	_, _, err = canvas.Seed(nil)
	assert.ErrorIs(t, err, ErrInvalidPixels)

	_, _, err = canvas.Seed(lineFrame(cv.Vertical, 20, 10, 0))
	require.NoError(t, err)
	_, _, err = canvas.Append(lineFrame(cv.Vertical, 20, 10, 0), 21)
	assert.ErrorIs(t, err, ErrInvalidOffset)

	// Failed appends leave the canvas untouched
	_, h := canvas.Size()
	assert.Equal(t, 20, h)
}

func TestCanvasReset(t *testing.T) {
	canvas := NewCanvas(cv.Vertical, 10)
	_, _, err := canvas.Seed(lineFrame(cv.Vertical, 20, 10, 0))
	require.NoError(t, err)

	canvas.Reset()
	w, h := canvas.Size()
	assert.Zero(t, w)
	assert.Zero(t, h)
	assert.Equal(t, image.Rect(0, 0, 0, 0), canvas.Image().Bounds())
}
