// Package raster provides the in-memory band tile representation and the
// pure merge, crop and coverage algorithms the dataspace operations are
// built on. On-disk format readers for external products are consumed
// through the Decoder interface; the package itself only understands its
// own framed tile files.
package raster

import (
	"fmt"
	"math"

	"github.com/tessera-io/tessera/internal/geocode"
)

// Tile is a decoded raster tile: one or more bands of byte samples over
// a geographic footprint. Row 0 is the northern edge. A pixel is valid
// when every band carries a non-nodata sample.
type Tile struct {
	Width  int
	Height int
	Bands  [][]byte
	Nodata byte
	Bounds geocode.Bounds
}

// NewTile allocates a tile with every pixel set to nodata.
func NewTile(width, height, bands int, nodata byte, bounds geocode.Bounds) *Tile {
	t := &Tile{
		Width:  width,
		Height: height,
		Bands:  make([][]byte, bands),
		Nodata: nodata,
		Bounds: bounds,
	}
	for i := range t.Bands {
		band := make([]byte, width*height)
		if nodata != 0 {
			for j := range band {
				band[j] = nodata
			}
		}
		t.Bands[i] = band
	}
	return t
}

// Valid reports whether the pixel at (x, y) carries data in every band.
func (t *Tile) Valid(x, y int) bool {
	off := y*t.Width + x
	for _, band := range t.Bands {
		if band[off] == t.Nodata {
			return false
		}
	}
	return true
}

// Coverage returns the fraction of valid pixels in [0, 1].
func (t *Tile) Coverage() float64 {
	if t.Width == 0 || t.Height == 0 {
		return 0
	}
	valid := 0
	for y := 0; y < t.Height; y++ {
		for x := 0; x < t.Width; x++ {
			if t.Valid(x, y) {
				valid++
			}
		}
	}
	return float64(valid) / float64(t.Width*t.Height)
}

// Clone returns a deep copy of the tile.
func (t *Tile) Clone() *Tile {
	c := &Tile{
		Width:  t.Width,
		Height: t.Height,
		Bands:  make([][]byte, len(t.Bands)),
		Nodata: t.Nodata,
		Bounds: t.Bounds,
	}
	for i, band := range t.Bands {
		c.Bands[i] = append([]byte(nil), band...)
	}
	return c
}

// Merge fills nodata pixels of t with pixels from src. For every pixel
// position the first tile with valid data wins, so merging sources in a
// fixed order is deterministic. Merging never overwrites valid pixels,
// which makes the resulting coverage the union of the input coverages.
func (t *Tile) Merge(src *Tile) error {
	if src.Width != t.Width || src.Height != t.Height {
		return fmt.Errorf("merge dimension mismatch: %dx%d vs %dx%d",
			t.Width, t.Height, src.Width, src.Height)
	}
	if len(src.Bands) != len(t.Bands) {
		return fmt.Errorf("merge band count mismatch: %d vs %d",
			len(t.Bands), len(src.Bands))
	}
	if src.Nodata != t.Nodata {
		return fmt.Errorf("merge nodata mismatch: %d vs %d", t.Nodata, src.Nodata)
	}
	for y := 0; y < t.Height; y++ {
		for x := 0; x < t.Width; x++ {
			if t.Valid(x, y) || !src.Valid(x, y) {
				continue
			}
			off := y*t.Width + x
			for i := range t.Bands {
				t.Bands[i][off] = src.Bands[i][off]
			}
		}
	}
	return nil
}

// Subdivide crops the tile to the intersection of its footprint with the
// given bounds, returning nil when they do not overlap. The returned
// tile's footprint is the requested bounds, so subdividing a tile to a
// child geocode's cell yields the child tile directly.
func (t *Tile) Subdivide(b geocode.Bounds) *Tile {
	if !t.Bounds.Intersects(b) {
		return nil
	}

	lonRes := (t.Bounds.MaxLon - t.Bounds.MinLon) / float64(t.Width)
	latRes := (t.Bounds.MaxLat - t.Bounds.MinLat) / float64(t.Height)

	x0 := int(math.Floor((math.Max(b.MinLon, t.Bounds.MinLon) - t.Bounds.MinLon) / lonRes))
	x1 := int(math.Ceil((math.Min(b.MaxLon, t.Bounds.MaxLon) - t.Bounds.MinLon) / lonRes))
	// row 0 is the northern edge
	y0 := int(math.Floor((t.Bounds.MaxLat - math.Min(b.MaxLat, t.Bounds.MaxLat)) / latRes))
	y1 := int(math.Ceil((t.Bounds.MaxLat - math.Max(b.MinLat, t.Bounds.MinLat)) / latRes))

	x0 = clamp(x0, 0, t.Width)
	x1 = clamp(x1, 0, t.Width)
	y0 = clamp(y0, 0, t.Height)
	y1 = clamp(y1, 0, t.Height)
	if x1 <= x0 || y1 <= y0 {
		return nil
	}

	out := &Tile{
		Width:  x1 - x0,
		Height: y1 - y0,
		Bands:  make([][]byte, len(t.Bands)),
		Nodata: t.Nodata,
		Bounds: b,
	}
	for i, band := range t.Bands {
		sub := make([]byte, out.Width*out.Height)
		for y := y0; y < y1; y++ {
			copy(sub[(y-y0)*out.Width:(y-y0+1)*out.Width],
				band[y*t.Width+x0:y*t.Width+x1])
		}
		out.Bands[i] = sub
	}
	return out
}

func clamp(v, lo, hi int) int {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}
