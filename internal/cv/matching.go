package cv

import (
	"errors"
	"fmt"
	"image"
)

// OffsetMatch contains the result of a frame-to-frame offset search
type OffsetMatch struct {
	Matched    bool
	Duplicate  bool    // Candidate shows the same content as previous
	Offset     int     // Overlap in lines along the scroll axis
	Shift      int     // Lines of new content (axis length - Offset)
	Similarity float64 // 0-100
	Evaluated  int     // Offsets scored
}

// ScrollMatchConfig configures offset search
type ScrollMatchConfig struct {
	Threshold           float64 // 0-100, minimum similarity to accept
	Tolerance           uint8   // Max mean RGB distance for a pixel to count as equal
	SampleStride        int     // Sample every Nth line and column
	MinOverlap          int     // Smallest overlap searched
	DuplicateSimilarity float64 // 0-100, zero-shift similarity treated as a stall
}

// Offsets whose score lies within this many percentage points of the best
// are considered equivalent; the smallest shift wins among them.
const tieWindow = 0.5

// DefaultScrollMatchConfig returns recommended settings
func DefaultScrollMatchConfig() *ScrollMatchConfig {
	return &ScrollMatchConfig{
		Threshold:           90,
		Tolerance:           8,
		SampleStride:        2,
		MinOverlap:          1,
		DuplicateSimilarity: 99.5,
	}
}

func (c *ScrollMatchConfig) stride() int {
	if c.SampleStride < 1 {
		return 1
	}
	return c.SampleStride
}

func (c *ScrollMatchConfig) minOverlap() int {
	if c.MinOverlap < 1 {
		return 1
	}
	return c.MinOverlap
}

// FindScrollOffset finds how far candidate has scrolled relative to previous.
//
// Every overlap o in [MinOverlap, L-1] is scored by comparing the trailing o
// lines of previous with the leading o lines of candidate. The best score must
// reach Threshold; among offsets within tieWindow of the best, the one with the
// largest overlap (smallest scroll) is chosen. The minimised quantity is the
// shift L-o, not o itself. Content scrolled backwards is never searched and
// therefore reported as unmatched.
func FindScrollOffset(previous, candidate *image.RGBA, dir Direction, config *ScrollMatchConfig) (*OffsetMatch, error) {
	if config == nil {
		config = DefaultScrollMatchConfig()
	}
	if err := checkPair(previous, candidate); err != nil {
		return nil, err
	}

	length := AxisLength(previous, dir)

	// Zero shift: nothing new has scrolled into view yet
	dup := FrameSimilarity(previous, candidate, dir, length, config, config.DuplicateSimilarity)
	if dup >= config.DuplicateSimilarity {
		return &OffsetMatch{
			Duplicate:  true,
			Offset:     length,
			Similarity: dup,
		}, nil
	}

	minOverlap := config.minOverlap()
	if length-1 < minOverlap {
		return &OffsetMatch{Similarity: dup}, nil
	}

	// scores[s-1] holds the similarity for shift s (overlap length-s)
	maxShift := length - minOverlap
	scores := make([]float64, maxShift)
	floor := config.Threshold - tieWindow

	best := -1.0
	for shift := 1; shift <= maxShift; shift++ {
		score := FrameSimilarity(previous, candidate, dir, length-shift, config, floor)
		scores[shift-1] = score
		if score > best {
			best = score
		}
	}

	result := &OffsetMatch{
		Similarity: best,
		Evaluated:  maxShift,
	}
	if best < config.Threshold {
		return result, nil
	}

	for shift := 1; shift <= maxShift; shift++ {
		if scores[shift-1] >= best-tieWindow {
			result.Matched = true
			result.Shift = shift
			result.Offset = length - shift
			result.Similarity = scores[shift-1]
			break
		}
	}

	return result, nil
}

// FrameSimilarity returns the percentage of sampled pixels that agree when the
// trailing overlap lines of previous are laid over the leading overlap lines
// of candidate. Scoring stops early once floor can no longer be reached; the
// value returned in that case is a lower bound.
func FrameSimilarity(previous, candidate *image.RGBA, dir Direction, overlap int, config *ScrollMatchConfig, floor float64) float64 {
	length := AxisLength(previous, dir)
	cross := CrossLength(previous, dir)
	if overlap <= 0 || overlap > length || cross == 0 {
		return 0
	}

	stride := config.stride()
	lines := (overlap + stride - 1) / stride
	perLine := (cross + stride - 1) / stride
	total := lines * perLine

	needed := int(floor / 100 * float64(total))
	start := length - overlap
	hits := 0

	for i, done := 0, 0; i < overlap; i, done = i+stride, done+1 {
		if hits+(lines-done)*perLine < needed {
			break
		}

		for c := 0; c < cross; c += stride {
			pIdx := PixOffset(previous, dir, start+i, c)
			cIdx := PixOffset(candidate, dir, i, c)

			p := previous.Pix[pIdx : pIdx+3 : pIdx+3]
			q := candidate.Pix[cIdx : cIdx+3 : cIdx+3]
			if colorDistance(p[0], p[1], p[2], q[0], q[1], q[2]) <= config.Tolerance {
				hits++
			}
		}
	}

	return float64(hits) * 100 / float64(total)
}

func checkPair(previous, candidate *image.RGBA) error {
	if previous == nil || candidate == nil {
		return ErrInvalidImage
	}
	pb, cb := previous.Bounds(), candidate.Bounds()
	if pb.Empty() || cb.Empty() {
		return ErrInvalidImage
	}
	if pb.Min != (image.Point{}) || cb.Min != (image.Point{}) {
		return fmt.Errorf("%w: frames must start at the origin", ErrInvalidImage)
	}
	if pb.Dx() != cb.Dx() || pb.Dy() != cb.Dy() {
		return fmt.Errorf("%w: %dx%d vs %dx%d", ErrDimensionMismatch, pb.Dx(), pb.Dy(), cb.Dx(), cb.Dy())
	}
	if len(previous.Pix) < pb.Dy()*previous.Stride || len(candidate.Pix) < cb.Dy()*candidate.Stride {
		return fmt.Errorf("%w: pixel buffer shorter than bounds", ErrInvalidImage)
	}
	return nil
}

// Helper functions

func abs(x int) int {
	if x < 0 {
		return -x
	}
	return x
}

func colorDistance(r1, g1, b1, r2, g2, b2 uint8) uint8 {
	dr := abs(int(r1) - int(r2))
	dg := abs(int(g1) - int(g2))
	db := abs(int(b1) - int(b2))
	return uint8((dr + dg + db) / 3)
}

// CropRegion copies a rectangle out of img into a new image at the origin
func CropRegion(img *image.RGBA, rect image.Rectangle) *image.RGBA {
	rect = rect.Intersect(img.Bounds())
	cropped := image.NewRGBA(image.Rect(0, 0, rect.Dx(), rect.Dy()))
	if rect.Empty() {
		return cropped
	}

	rowBytes := rect.Dx() * 4
	for y := 0; y < rect.Dy(); y++ {
		src := img.PixOffset(rect.Min.X, rect.Min.Y+y)
		dst := y * cropped.Stride
		copy(cropped.Pix[dst:dst+rowBytes], img.Pix[src:src+rowBytes])
	}

	return cropped
}

// Error types
var (
	ErrInvalidImage      = errors.New("invalid image provided")
	ErrDimensionMismatch = errors.New("frame dimensions differ")
	ErrEmptyRegion       = errors.New("region must have positive width and height")
	ErrRegionOffscreen   = errors.New("region is not on a single display")
)
