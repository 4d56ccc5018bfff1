package cv

import (
	"image"
	"image/color"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// texturedFrame renders lines [start, start+length) of an endless document
// whose every pixel is a pseudo-random color derived from its position.
func texturedFrame(dir Direction, length, cross, start int) *image.RGBA {
	w, h := cross, length
	if dir == Horizontal {
		w, h = length, cross
	}
	img := image.NewRGBA(image.Rect(0, 0, w, h))

	for a := 0; a < length; a++ {
		for c := 0; c < cross; c++ {
			r, g, b := documentColor(start+a, c)
			idx := PixOffset(img, dir, a, c)
			img.Pix[idx] = r
			img.Pix[idx+1] = g
			img.Pix[idx+2] = b
			img.Pix[idx+3] = 255
		}
	}

	return img
}

func documentColor(line, col int) (uint8, uint8, uint8) {
	h := uint32(line)*2654435761 ^ uint32(col)*2246822519
	h ^= h >> 15
	h *= 2246822519
	h ^= h >> 13
	return uint8(h), uint8(h >> 8), uint8(h >> 16)
}

// stripedFrame repeats the same pattern every period lines
func stripedFrame(length, cross, start, period int) *image.RGBA {
	img := image.NewRGBA(image.Rect(0, 0, cross, length))
	for y := 0; y < length; y++ {
		v := uint8(((start + y) % period) * 25)
		for x := 0; x < cross; x++ {
			img.SetRGBA(x, y, rgba(v, v, v))
		}
	}
	return img
}

func rgba(r, g, b uint8) color.RGBA {
	return color.RGBA{R: r, G: g, B: b, A: 255}
}

func TestFindScrollOffsetVertical(t *testing.T) {
	const length, cross = 50, 100

	for _, shift := range []int{1, 5, 20, 37, 49} {
		previous := texturedFrame(Vertical, length, cross, 0)
		candidate := texturedFrame(Vertical, length, cross, shift)

		result, err := FindScrollOffset(previous, candidate, Vertical, nil)
		require.NoError(t, err)

		assert.True(t, result.Matched, "shift %d should match", shift)
		assert.False(t, result.Duplicate)
		assert.Equal(t, shift, result.Shift, "shift")
		assert.Equal(t, length-shift, result.Offset, "overlap")
		assert.InDelta(t, 100.0, result.Similarity, 0.001)
	}
}

func TestFindScrollOffsetHorizontal(t *testing.T) {
	const length, cross = 80, 40

	previous := texturedFrame(Horizontal, length, cross, 100)
	candidate := texturedFrame(Horizontal, length, cross, 112)
	require.Equal(t, length, previous.Bounds().Dx())

	result, err := FindScrollOffset(previous, candidate, Horizontal, nil)
	require.NoError(t, err)

	assert.True(t, result.Matched)
	assert.Equal(t, 12, result.Shift)
	assert.Equal(t, 68, result.Offset)
}

func TestFindScrollOffsetDuplicate(t *testing.T) {
	frame := texturedFrame(Vertical, 50, 100, 7)

	result, err := FindScrollOffset(frame, frame, Vertical, nil)
	require.NoError(t, err)

	assert.True(t, result.Duplicate)
	assert.False(t, result.Matched)
	assert.Equal(t, 50, result.Offset)
	assert.Equal(t, 0, result.Shift)
}

func TestFindScrollOffsetBelowThreshold(t *testing.T) {
	const length, cross = 50, 100

	previous := texturedFrame(Vertical, length, cross, 0)
	candidate := texturedFrame(Vertical, length, cross, 20)

	// Corrupt every fifth column so the true offset only reaches 80%
	for y := 0; y < length; y++ {
		for x := 0; x < cross; x += 5 {
			idx := candidate.PixOffset(x, y)
			candidate.Pix[idx] ^= 0x80
			candidate.Pix[idx+1] ^= 0x80
			candidate.Pix[idx+2] ^= 0x80
		}
	}

	config := NewScrollMatchConfig(WithThreshold(95), WithStride(1))
	result, err := FindScrollOffset(previous, candidate, Vertical, config)
	require.NoError(t, err)

	assert.False(t, result.Matched)
	assert.False(t, result.Duplicate)
	assert.Less(t, result.Similarity, 95.0)

	// The same pair is accepted once the threshold admits 80%
	config.Threshold = 75
	result, err = FindScrollOffset(previous, candidate, Vertical, config)
	require.NoError(t, err)
	assert.True(t, result.Matched)
	assert.Equal(t, 20, result.Shift)
	assert.InDelta(t, 80.0, result.Similarity, 0.001)
}

func TestFindScrollOffsetReverseScroll(t *testing.T) {
	previous := texturedFrame(Vertical, 50, 100, 20)
	candidate := texturedFrame(Vertical, 50, 100, 0)

	result, err := FindScrollOffset(previous, candidate, Vertical, nil)
	require.NoError(t, err)

	assert.False(t, result.Matched)
	assert.False(t, result.Duplicate)
}

func TestFindScrollOffsetPrefersSmallestShift(t *testing.T) {
	// Period 10: shifts 3, 13, 23, 33 and 43 all align perfectly
	previous := stripedFrame(50, 30, 0, 10)
	candidate := stripedFrame(50, 30, 3, 10)

	result, err := FindScrollOffset(previous, candidate, Vertical, nil)
	require.NoError(t, err)

	assert.True(t, result.Matched)
	assert.Equal(t, 3, result.Shift)
	assert.Equal(t, 47, result.Offset)
}

func TestFindScrollOffsetMinOverlap(t *testing.T) {
	previous := texturedFrame(Vertical, 50, 100, 0)
	candidate := texturedFrame(Vertical, 50, 100, 45)

	// Overlap of 5 lines is below the configured minimum
	config := NewScrollMatchConfig(WithMinOverlap(10))
	result, err := FindScrollOffset(previous, candidate, Vertical, config)
	require.NoError(t, err)
	assert.False(t, result.Matched)
	assert.Equal(t, 40, result.Evaluated)
}

func TestFindScrollOffsetErrors(t *testing.T) {
	a := texturedFrame(Vertical, 50, 100, 0)
	b := texturedFrame(Vertical, 40, 100, 0)

	_, err := FindScrollOffset(a, b, Vertical, nil)
	assert.ErrorIs(t, err, ErrDimensionMismatch)

	_, err = FindScrollOffset(nil, a, Vertical, nil)
	assert.ErrorIs(t, err, ErrInvalidImage)

	shifted := image.NewRGBA(image.Rect(5, 5, 105, 55))
	_, err = FindScrollOffset(shifted, a, Vertical, nil)
	assert.ErrorIs(t, err, ErrInvalidImage)
}

func TestFrameSimilarityEarlyExit(t *testing.T) {
	a := texturedFrame(Vertical, 50, 100, 0)
	b := texturedFrame(Vertical, 50, 100, 1000)
	config := DefaultScrollMatchConfig()

	full := FrameSimilarity(a, b, Vertical, 50, config, 0)
	pruned := FrameSimilarity(a, b, Vertical, 50, config, 99)

	assert.Less(t, full, 5.0)
	assert.LessOrEqual(t, pruned, full)
}

func TestCropRegion(t *testing.T) {
	src := texturedFrame(Vertical, 20, 20, 0)

	cropped := CropRegion(src, image.Rect(5, 6, 15, 10))
	require.Equal(t, image.Rect(0, 0, 10, 4), cropped.Bounds())
	assert.Equal(t, src.RGBAAt(5, 6), cropped.RGBAAt(0, 0))
	assert.Equal(t, src.RGBAAt(14, 9), cropped.RGBAAt(9, 3))
}
