package encode

import (
	"bytes"
	"image"
	"image/color"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/image/bmp"
	"golang.org/x/image/tiff"
)

func gradient(w, h int) *image.RGBA {
	img := image.NewRGBA(image.Rect(0, 0, w, h))
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			img.SetRGBA(x, y, color.RGBA{R: uint8(x * 8), G: uint8(y * 8), B: 128, A: 255})
		}
	}
	return img
}

func TestParseFormat(t *testing.T) {
	for in, want := range map[string]Format{
		"png": PNG, ".PNG": PNG, "jpg": JPEG, "jpeg": JPEG, "bmp": BMP, "tif": TIFF, "tiff": TIFF,
	} {
		got, err := ParseFormat(in)
		require.NoError(t, err, in)
		assert.Equal(t, want, got, in)
	}

	_, err := ParseFormat("webp")
	assert.ErrorIs(t, err, ErrUnsupportedFormat)

	_, err = FormatFromPath("capture")
	assert.ErrorIs(t, err, ErrUnsupportedFormat)

	assert.Equal(t, ".jpg", JPEG.Extension())
	assert.Equal(t, ".tiff", TIFF.Extension())
}

func TestSaveLosslessFormats(t *testing.T) {
	img := gradient(16, 24)
	dir := t.TempDir()

	for _, name := range []string{"out.png", "nested/out.bmp", "out.tiff"} {
		path := filepath.Join(dir, name)
		require.NoError(t, Save(path, img), name)

		data, err := os.ReadFile(path)
		require.NoError(t, err)

		var decoded image.Image
		switch filepath.Ext(name) {
		case ".bmp":
			decoded, err = bmp.Decode(bytes.NewReader(data))
		case ".tiff":
			decoded, err = tiff.Decode(bytes.NewReader(data))
		default:
			decoded, _, err = image.Decode(bytes.NewReader(data))
		}
		require.NoError(t, err, name)

		assert.Equal(t, img.Bounds(), decoded.Bounds(), name)
		r, g, b, _ := decoded.At(3, 5).RGBA()
		assert.Equal(t, uint32(24), r>>8, name)
		assert.Equal(t, uint32(40), g>>8, name)
		assert.Equal(t, uint32(128), b>>8, name)
	}
}

func TestEncodeJPEG(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, Encode(&buf, gradient(32, 32), JPEG))
	assert.Equal(t, []byte{0xFF, 0xD8}, buf.Bytes()[:2])
}

func TestSaveUnknownExtension(t *testing.T) {
	path := filepath.Join(t.TempDir(), "out.webp")
	assert.ErrorIs(t, Save(path, gradient(2, 2)), ErrUnsupportedFormat)

	_, err := os.Stat(path)
	assert.True(t, os.IsNotExist(err))
}
