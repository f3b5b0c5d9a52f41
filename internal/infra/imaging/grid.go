package imaging

import (
	"bytes"
	"fmt"
	"image"
	"image/color"
	"image/jpeg"
	_ "image/png"
	"math"
	"strconv"

	xdraw "golang.org/x/image/draw"
	"golang.org/x/image/font"
	"golang.org/x/image/font/basicfont"
	"golang.org/x/image/math/fixed"

	"github.com/veriscope/veriscope/internal/domain/vision"
)

const (
	maxGridDimension = 2000
	imageSpacing     = 40
	labelFraction    = 0.25
	jpegQuality      = 85
)

// Composer implements grid composition over decoded collection files.
type Composer struct{}

// Build satisfies the pipeline's grid port.
func (Composer) Build(sources []vision.GridSource, maxPerGrid int) ([]vision.GridImage, error) {
	return BuildGrids(sources, maxPerGrid)
}

// BuildGrids decodes the sources and packs them into composite JPEG grids
// of at most maxPerGrid cells each. Sources whose bytes do not decode are
// skipped; the caller detects them by their absence from every Positions
// map. Cell labels number the placed images globally across grids so the
// reasoning service sees unique IDs.
func BuildGrids(sources []vision.GridSource, maxPerGrid int) ([]vision.GridImage, error) {
	if maxPerGrid <= 0 {
		maxPerGrid = 20
	}

	kept := make([]vision.GridSource, 0, len(sources))
	decoded := make([]image.Image, 0, len(sources))
	for _, s := range sources {
		img, _, err := image.Decode(bytes.NewReader(s.Data))
		if err != nil {
			continue
		}
		kept = append(kept, s)
		decoded = append(decoded, img)
	}
	if len(kept) == 0 {
		return nil, nil
	}

	var grids []vision.GridImage
	index := 0
	for start := 0; start < len(kept); start += maxPerGrid {
		end := start + maxPerGrid
		if end > len(kept) {
			end = len(kept)
		}
		g, err := buildGrid(kept[start:end], decoded[start:end], index)
		if err != nil {
			return nil, err
		}
		grids = append(grids, g)
		index += end - start
	}
	return grids, nil
}

func buildGrid(sources []vision.GridSource, imgs []image.Image, indexTotal int) (vision.GridImage, error) {
	n := len(sources)
	rows := int(math.Sqrt(float64(n)))
	if rows < 1 {
		rows = 1
	}
	cols := (n + rows - 1) / rows

	cellWidth := maxGridDimension / cols
	labelHeight := int(float64(maxGridDimension/rows) * labelFraction)
	imageHeight := maxGridDimension/rows - labelHeight
	cellHeight := imageHeight + labelHeight

	canvas := image.NewRGBA(image.Rect(0, 0, cellWidth*cols, cellHeight*rows))
	xdraw.Draw(canvas, canvas.Bounds(), image.NewUniform(color.Black), image.Point{}, xdraw.Src)

	positions := make(map[string]string, n)
	for idx, img := range imgs {
		row := idx / cols
		col := idx % cols

		contentX0 := col*cellWidth + imageSpacing
		contentY0 := row*cellHeight + imageSpacing
		contentX1 := (col+1)*cellWidth - imageSpacing
		contentY1 := row*cellHeight + imageHeight - imageSpacing

		fitInto(canvas, img, image.Rect(contentX0, contentY0, contentX1, contentY1))

		cellID := strconv.Itoa(idx + indexTotal)
		labelRect := image.Rect(col*cellWidth, row*cellHeight+imageHeight, (col+1)*cellWidth, (row+1)*cellHeight)
		drawLabel(canvas, "ID: "+cellID, labelRect)

		positions[cellID] = sources[idx].FileID
	}

	var buf bytes.Buffer
	if err := jpeg.Encode(&buf, canvas, &jpeg.Options{Quality: jpegQuality}); err != nil {
		return vision.GridImage{}, fmt.Errorf("encoding grid: %w", err)
	}
	return vision.GridImage{JPEG: buf.Bytes(), Positions: positions}, nil
}

// fitInto scales img to fit the rect, preserving aspect ratio, centered.
func fitInto(dst *image.RGBA, img image.Image, rect image.Rectangle) {
	sw, sh := img.Bounds().Dx(), img.Bounds().Dy()
	if sw == 0 || sh == 0 {
		return
	}
	scale := math.Min(float64(rect.Dx())/float64(sw), float64(rect.Dy())/float64(sh))
	if scale > 1 {
		scale = 1
	}
	w := int(float64(sw) * scale)
	h := int(float64(sh) * scale)
	x0 := rect.Min.X + (rect.Dx()-w)/2
	y0 := rect.Min.Y + (rect.Dy()-h)/2
	xdraw.CatmullRom.Scale(dst, image.Rect(x0, y0, x0+w, y0+h), img, img.Bounds(), xdraw.Over, nil)
}

// drawLabel renders the cell ID centered in the label band. The bitmap
// face is rendered small and scaled up so the label stays legible on a
// downscaled grid.
func drawLabel(dst *image.RGBA, text string, rect image.Rectangle) {
	face := basicfont.Face7x13
	textWidth := font.MeasureString(face, text).Ceil()
	small := image.NewRGBA(image.Rect(0, 0, textWidth+2, face.Height+2))

	d := font.Drawer{
		Dst:  small,
		Src:  image.NewUniform(color.White),
		Face: face,
		Dot:  fixed.P(1, face.Ascent+1),
	}
	d.DrawString(text)

	scale := float64(rect.Dy()) * 0.6 / float64(face.Height)
	w := int(float64(small.Bounds().Dx()) * scale)
	h := int(float64(small.Bounds().Dy()) * scale)
	if w > rect.Dx() {
		scale = float64(rect.Dx()) / float64(small.Bounds().Dx())
		w = rect.Dx()
		h = int(float64(small.Bounds().Dy()) * scale)
	}
	x0 := rect.Min.X + (rect.Dx()-w)/2
	y0 := rect.Min.Y + (rect.Dy()-h)/2
	xdraw.NearestNeighbor.Scale(dst, image.Rect(x0, y0, x0+w, y0+h), small, small.Bounds(), xdraw.Over, nil)
}
