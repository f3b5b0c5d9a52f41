package imaging

import (
	"bytes"
	"fmt"
	"image"
	"image/color"
	"image/jpeg"
	"image/png"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/veriscope/veriscope/internal/domain/vision"
)

func encodeJPEG(t *testing.T, w, h int, c color.Color) []byte {
	t.Helper()
	img := image.NewRGBA(image.Rect(0, 0, w, h))
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			img.Set(x, y, c)
		}
	}
	var buf bytes.Buffer
	require.NoError(t, jpeg.Encode(&buf, img, nil))
	return buf.Bytes()
}

func encodePNG(t *testing.T, w, h int) []byte {
	t.Helper()
	img := image.NewRGBA(image.Rect(0, 0, w, h))
	var buf bytes.Buffer
	require.NoError(t, png.Encode(&buf, img))
	return buf.Bytes()
}

func sourcesOf(t *testing.T, n int) []vision.GridSource {
	t.Helper()
	out := make([]vision.GridSource, 0, n)
	for i := 0; i < n; i++ {
		out = append(out, vision.GridSource{
			FileID: fmt.Sprintf("file-%d", i),
			Data:   encodeJPEG(t, 64, 48, color.RGBA{R: uint8(i * 20), G: 120, B: 40, A: 255}),
		})
	}
	return out
}

func TestBuildGridsSingleImage(t *testing.T) {
	grids, err := BuildGrids(sourcesOf(t, 1), 20)
	require.NoError(t, err)
	require.Len(t, grids, 1)

	assert.Equal(t, map[string]string{"0": "file-0"}, grids[0].Positions)

	img, format, err := image.Decode(bytes.NewReader(grids[0].JPEG))
	require.NoError(t, err)
	assert.Equal(t, "jpeg", format)
	assert.LessOrEqual(t, img.Bounds().Dx(), maxGridDimension)
	assert.LessOrEqual(t, img.Bounds().Dy(), maxGridDimension)
}

func TestBuildGridsChunksWithGlobalIndices(t *testing.T) {
	grids, err := BuildGrids(sourcesOf(t, 5), 2)
	require.NoError(t, err)
	require.Len(t, grids, 3)

	assert.Equal(t, map[string]string{"0": "file-0", "1": "file-1"}, grids[0].Positions)
	assert.Equal(t, map[string]string{"2": "file-2", "3": "file-3"}, grids[1].Positions)
	assert.Equal(t, map[string]string{"4": "file-4"}, grids[2].Positions)

	// Cell IDs must be unique across the whole batch.
	seen := map[string]bool{}
	for _, g := range grids {
		for id := range g.Positions {
			assert.False(t, seen[id], "cell id %s repeated", id)
			seen[id] = true
		}
	}
	assert.Len(t, seen, 5)
}

func TestBuildGridsMixedFormats(t *testing.T) {
	sources := []vision.GridSource{
		{FileID: "a", Data: encodeJPEG(t, 40, 40, color.White)},
		{FileID: "b", Data: encodePNG(t, 30, 50)},
	}
	grids, err := BuildGrids(sources, 20)
	require.NoError(t, err)
	require.Len(t, grids, 1)
	assert.Equal(t, map[string]string{"0": "a", "1": "b"}, grids[0].Positions)
}

func TestBuildGridsSkipsUndecodableData(t *testing.T) {
	sources := []vision.GridSource{
		{FileID: "good", Data: encodeJPEG(t, 40, 40, color.White)},
		{FileID: "bad", Data: []byte("not an image")},
		{FileID: "good2", Data: encodeJPEG(t, 40, 40, color.Black)},
	}
	grids, err := BuildGrids(sources, 20)
	require.NoError(t, err)
	require.Len(t, grids, 1)

	// Skipped sources leave no gap in the cell numbering.
	assert.Equal(t, map[string]string{"0": "good", "1": "good2"}, grids[0].Positions)
}

func TestBuildGridsAllUndecodable(t *testing.T) {
	sources := []vision.GridSource{
		{FileID: "bad", Data: []byte("not an image")},
	}
	grids, err := BuildGrids(sources, 20)
	require.NoError(t, err)
	assert.Nil(t, grids)
}

func TestBuildGridsEmptyInput(t *testing.T) {
	grids, err := BuildGrids(nil, 20)
	require.NoError(t, err)
	assert.Nil(t, grids)
}

func TestComposerSatisfiesPort(t *testing.T) {
	var _ vision.GridBuilder = Composer{}

	grids, err := Composer{}.Build(sourcesOf(t, 2), 0)
	require.NoError(t, err)
	require.Len(t, grids, 1)
	assert.Len(t, grids[0].Positions, 2)
}
