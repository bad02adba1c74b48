package raster

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tessera-io/tessera/internal/errdefs"
	"github.com/tessera-io/tessera/internal/geocode"
)

func testBounds() geocode.Bounds {
	return geocode.Bounds{MinLat: 0, MaxLat: 45, MinLon: 0, MaxLon: 90}
}

// checkerTile fills alternating pixels with data.
func checkerTile(nodata byte) *Tile {
	t := NewTile(8, 8, 2, nodata, testBounds())
	for y := 0; y < 8; y++ {
		for x := 0; x < 8; x++ {
			if (x+y)%2 == 0 {
				off := y*8 + x
				t.Bands[0][off] = 10
				t.Bands[1][off] = 20
			}
		}
	}
	return t
}

func TestCoverage(t *testing.T) {
	full := NewTile(4, 4, 1, 0, testBounds())
	for i := range full.Bands[0] {
		full.Bands[0][i] = 1
	}
	assert.Equal(t, 1.0, full.Coverage())

	empty := NewTile(4, 4, 1, 0, testBounds())
	assert.Equal(t, 0.0, empty.Coverage())

	assert.InDelta(t, 0.5, checkerTile(0).Coverage(), 1e-9)
}

func TestMergeFillsOnlyNodata(t *testing.T) {
	dst := checkerTile(0)
	src := NewTile(8, 8, 2, 0, testBounds())
	for i := range src.Bands[0] {
		src.Bands[0][i] = 99
		src.Bands[1][i] = 88
	}

	require.NoError(t, dst.Merge(src))
	assert.Equal(t, 1.0, dst.Coverage())

	// valid pixels kept their original samples
	assert.Equal(t, byte(10), dst.Bands[0][0])
	assert.Equal(t, byte(99), dst.Bands[0][1])
}

func TestMergeMonotone(t *testing.T) {
	a := checkerTile(0)
	b := NewTile(8, 8, 2, 0, testBounds())
	// one extra valid pixel at an a-nodata position
	b.Bands[0][1] = 5
	b.Bands[1][1] = 5

	before := a.Coverage()
	require.NoError(t, a.Merge(b))
	assert.GreaterOrEqual(t, a.Coverage(), before)
	assert.GreaterOrEqual(t, a.Coverage(), b.Coverage())
}

func TestMergeDeterministicOrder(t *testing.T) {
	mk := func(val byte) *Tile {
		t := NewTile(2, 2, 1, 0, testBounds())
		t.Bands[0][0] = val
		return t
	}

	dst := NewTile(2, 2, 1, 0, testBounds())
	require.NoError(t, dst.Merge(mk(7)))
	require.NoError(t, dst.Merge(mk(9)))
	// first source with data wins
	assert.Equal(t, byte(7), dst.Bands[0][0])
}

func TestMergeMismatch(t *testing.T) {
	a := NewTile(2, 2, 1, 0, testBounds())
	assert.Error(t, a.Merge(NewTile(4, 4, 1, 0, testBounds())))
	assert.Error(t, a.Merge(NewTile(2, 2, 2, 0, testBounds())))
	assert.Error(t, a.Merge(NewTile(2, 2, 1, 255, testBounds())))
}

func TestSubdivideQuadrants(t *testing.T) {
	tile := NewTile(8, 8, 1, 0, testBounds())
	for i := range tile.Bands[0] {
		tile.Bands[0][i] = 1
	}

	// west half of the footprint
	west := tile.Subdivide(geocode.Bounds{MinLat: 0, MaxLat: 45, MinLon: 0, MaxLon: 45})
	require.NotNil(t, west)
	assert.Equal(t, 4, west.Width)
	assert.Equal(t, 8, west.Height)
	assert.Equal(t, 1.0, west.Coverage())

	// disjoint bounds
	assert.Nil(t, tile.Subdivide(geocode.Bounds{MinLat: 50, MaxLat: 60, MinLon: 100, MaxLon: 120}))
}

func TestSubdivideCoverageIndependent(t *testing.T) {
	tile := NewTile(8, 8, 1, 0, testBounds())
	// only the eastern half carries data
	for y := 0; y < 8; y++ {
		for x := 4; x < 8; x++ {
			tile.Bands[0][y*8+x] = 1
		}
	}
	assert.InDelta(t, 0.5, tile.Coverage(), 1e-9)

	east := tile.Subdivide(geocode.Bounds{MinLat: 0, MaxLat: 45, MinLon: 45, MaxLon: 90})
	require.NotNil(t, east)
	assert.Equal(t, 1.0, east.Coverage())

	west := tile.Subdivide(geocode.Bounds{MinLat: 0, MaxLat: 45, MinLon: 0, MaxLon: 45})
	require.NotNil(t, west)
	assert.Equal(t, 0.0, west.Coverage())
}

func TestCodecRoundTrip(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "tile.bin")

	tile := checkerTile(0)
	cc := 0.25
	hdr := Header{
		ID:            "rec-1",
		Platform:      "MOD11A1",
		Subdataset:    2,
		Geocode:       "0123",
		Timestamp:     1591056000,
		PixelCoverage: 0.5,
		CloudCoverage: &cc,
		Source:        "raw",
	}
	require.NoError(t, WriteFile(path, hdr, tile))

	gotHdr, gotTile, err := ReadFile(path)
	require.NoError(t, err)
	assert.Equal(t, "MOD11A1", gotHdr.Platform)
	assert.Equal(t, uint8(2), gotHdr.Subdataset)
	assert.Equal(t, "0123", gotHdr.Geocode)
	require.NotNil(t, gotHdr.CloudCoverage)
	assert.Equal(t, 0.25, *gotHdr.CloudCoverage)
	assert.Equal(t, tile.Bands, gotTile.Bands)
	assert.Equal(t, tile.Bounds, gotTile.Bounds)

	// header-only read agrees
	onlyHdr, err := ReadHeader(path)
	require.NoError(t, err)
	assert.Equal(t, gotHdr, onlyHdr)
}

func TestReadFileRejectsGarbage(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "garbage.bin")
	require.NoError(t, os.WriteFile(path, []byte("not a tile"), 0o644))

	_, _, err := ReadFile(path)
	require.Error(t, err)
	assert.Equal(t, errdefs.CodeDecodeFailed, errdefs.GetCode(err))
}

func TestDecoderRegistry(t *testing.T) {
	for _, format := range []string{"generic", "modis", "naip", "sentinel2"} {
		dec, err := LookupDecoder(format)
		require.NoError(t, err)
		assert.NotNil(t, dec)
	}

	_, err := LookupDecoder("hdf5")
	require.Error(t, err)
	assert.Equal(t, errdefs.CodeUnsupportedFormat, errdefs.GetCode(err))
}

func TestModisDecoderParsesAcquisition(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "MOD11A1.A2020153.h09v05.006.bin")

	tile := checkerTile(0)
	require.NoError(t, WriteFile(path, Header{Platform: "x"}, tile))

	dec, err := LookupDecoder("modis")
	require.NoError(t, err)
	subs, err := dec.Decode(path)
	require.NoError(t, err)
	require.Len(t, subs, 1)
	assert.Equal(t, "MOD11A1", subs[0].Platform)

	// 2020 day 153 is June 1st
	assert.Equal(t, int64(1590969600), subs[0].Timestamp)
}

func TestSentinel2DecoderParsesDatatake(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "S2A_MSIL1C_20200613T173901_N0209_R098.bin")

	require.NoError(t, WriteFile(path, Header{Platform: "x"}, checkerTile(0)))

	dec, err := LookupDecoder("sentinel2")
	require.NoError(t, err)
	subs, err := dec.Decode(path)
	require.NoError(t, err)
	require.Len(t, subs, 1)
	assert.Equal(t, "Sentinel-2", subs[0].Platform)
}
