package geocode

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tessera-io/tessera/internal/errdefs"
)

func TestEncodeGeohashKnownPoints(t *testing.T) {
	tests := []struct {
		name      string
		lat, lon  float64
		precision int
		want      string
	}{
		{"jutland", 57.64911, 10.40744, 9, "u4pruydqq"},
		{"jutland short", 57.64911, 10.40744, 5, "u4pru"},
		{"origin", 0, 0, 4, "s000"},
		{"fort collins", 40.5853, -105.0844, 6, "9xjqbs"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := EncodePoint(tt.lat, tt.lon, tt.precision, Geohash)
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestGeohashDecodeContainsPoint(t *testing.T) {
	code, err := EncodePoint(57.64911, 10.40744, 7, Geohash)
	require.NoError(t, err)

	b, err := Decode(code, Geohash)
	require.NoError(t, err)
	assert.LessOrEqual(t, b.MinLat, 57.64911)
	assert.Greater(t, b.MaxLat, 57.64911)
	assert.LessOrEqual(t, b.MinLon, 10.40744)
	assert.Greater(t, b.MaxLon, 10.40744)
}

func TestQuadtileRoundTrip(t *testing.T) {
	tests := []struct {
		name     string
		lat, lon float64
	}{
		{"northeast", 45.0, 90.0},
		{"southwest", -45.0, -90.0},
		{"near origin", 0.1, 0.1},
		{"high lat", 80.0, -170.0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			code, err := EncodePoint(tt.lat, tt.lon, 8, Quadtile)
			require.NoError(t, err)
			require.Len(t, code, 8)

			b, err := Decode(code, Quadtile)
			require.NoError(t, err)
			assert.LessOrEqual(t, b.MinLat, tt.lat)
			assert.GreaterOrEqual(t, b.MaxLat, tt.lat)
			assert.LessOrEqual(t, b.MinLon, tt.lon)
			assert.GreaterOrEqual(t, b.MaxLon, tt.lon)
		})
	}
}

func TestQuadtileQuadrants(t *testing.T) {
	nw, _ := EncodePoint(45, -90, 1, Quadtile)
	ne, _ := EncodePoint(45, 90, 1, Quadtile)
	sw, _ := EncodePoint(-45, -90, 1, Quadtile)
	se, _ := EncodePoint(-45, 90, 1, Quadtile)

	assert.Equal(t, "0", nw)
	assert.Equal(t, "1", ne)
	assert.Equal(t, "2", sw)
	assert.Equal(t, "3", se)
}

func TestChildCodesExtendParent(t *testing.T) {
	parent := "0123"
	pb, err := Decode(parent, Quadtile)
	require.NoError(t, err)

	for _, c := range Alphabet(Quadtile) {
		child := parent + string(c)
		cb, err := Decode(child, Quadtile)
		require.NoError(t, err)
		assert.True(t, pb.Intersects(cb), "child %q outside parent", child)
	}
}

func TestRoutingKey(t *testing.T) {
	tests := []struct {
		name      string
		geocode   string
		keyLength int
		want      string
	}{
		{"zero keeps full geocode", "9xjq4h", 0, "9xjq4h"},
		{"positive takes prefix", "9xjq4h", 2, "9x"},
		{"positive full length", "9xjq4h", 6, "9xjq4h"},
		{"negative drops suffix", "9xjq4h", -2, "9xjq"},
		{"negative full length", "9xjq4h", -6, ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := RoutingKey(tt.geocode, tt.keyLength)
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestRoutingKeyIsPrefix(t *testing.T) {
	geocodes := []string{"0", "0123", "9xjq4h", "u4pruydqq"}
	for _, g := range geocodes {
		for k := -len(g); k <= len(g); k++ {
			key, err := RoutingKey(g, k)
			require.NoError(t, err)
			assert.True(t, PrefixMatch(g, key, true),
				"routing key %q is not a prefix of %q", key, g)

			switch {
			case k > 0:
				assert.Len(t, key, k)
			case k < 0:
				assert.Len(t, key, len(g)+k)
			default:
				assert.Len(t, key, len(g))
			}
		}
	}
}

func TestRoutingKeyInvalidLength(t *testing.T) {
	_, err := RoutingKey("0123", 5)
	require.Error(t, err)
	assert.Equal(t, errdefs.CodeInvalidKeyLength, errdefs.GetCode(err))

	_, err = RoutingKey("0123", -5)
	require.Error(t, err)
	assert.Equal(t, errdefs.CodeInvalidKeyLength, errdefs.GetCode(err))
}

func TestPrefixMatch(t *testing.T) {
	assert.True(t, PrefixMatch("0123", "0123", false))
	assert.False(t, PrefixMatch("01234", "0123", false))
	assert.True(t, PrefixMatch("01234", "0123", true))
	assert.True(t, PrefixMatch("0123", "", true))
	assert.False(t, PrefixMatch("1123", "0", true))
}

func TestValidate(t *testing.T) {
	assert.NoError(t, Validate("0123", Quadtile))
	assert.Error(t, Validate("0124", Quadtile))
	assert.NoError(t, Validate("9xjq4h", Geohash))
	assert.Error(t, Validate("9xjq4a", Geohash))
}

func TestAlgorithmParse(t *testing.T) {
	for _, alg := range []Algorithm{Geohash, Quadtile} {
		parsed, err := ParseAlgorithm(alg.String())
		require.NoError(t, err)
		assert.Equal(t, alg, parsed)
	}

	_, err := ParseAlgorithm("hilbert")
	assert.Error(t, err)
}

func TestCoverQuadtileQuadrants(t *testing.T) {
	codes, err := Cover(Bounds{MinLat: -90, MaxLat: 90, MinLon: -180, MaxLon: 180}, "", 1, Quadtile)
	require.NoError(t, err)
	assert.Equal(t, []string{"0", "1", "2", "3"}, codes)

	// strictly inside the north-east quadrant
	ne := Bounds{MinLat: 10, MaxLat: 20, MinLon: 10, MaxLon: 20}
	codes, err = Cover(ne, "", 1, Quadtile)
	require.NoError(t, err)
	assert.Equal(t, []string{"1"}, codes)
}

func TestCoverRefinesUnderPrefix(t *testing.T) {
	parent, err := Decode("0123", Quadtile)
	require.NoError(t, err)

	codes, err := Cover(parent, "0123", 6, Quadtile)
	require.NoError(t, err)
	assert.Len(t, codes, 16)
	for _, code := range codes {
		assert.True(t, PrefixMatch(code, "0123", true))
		assert.Len(t, code, 6)
	}
}

func TestCoverDisjointPrefix(t *testing.T) {
	ne := Bounds{MinLat: 10, MaxLat: 20, MinLon: 10, MaxLon: 20}
	codes, err := Cover(ne, "2", 3, Quadtile)
	require.NoError(t, err)
	assert.Empty(t, codes)
}

func TestCoverCodesTileTheFootprint(t *testing.T) {
	b := Bounds{MinLat: 40, MaxLat: 41, MinLon: -105, MaxLon: -104}
	codes, err := Cover(b, "", 4, Geohash)
	require.NoError(t, err)
	require.NotEmpty(t, codes)

	for _, code := range codes {
		cb, err := Decode(code, Geohash)
		require.NoError(t, err)
		assert.True(t, cb.Intersects(b), code)
	}
}
