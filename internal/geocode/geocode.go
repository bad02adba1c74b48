// Package geocode converts geographic footprints to geocode strings and
// derives DHT routing keys from them. All functions are pure.
package geocode

import (
	"fmt"
	"strings"

	"github.com/tessera-io/tessera/internal/errdefs"
)

// Algorithm selects the geocode encoding. The numeric values are part of
// the on-disk album metadata and must not change.
type Algorithm uint8

const (
	Geohash  Algorithm = 1
	Quadtile Algorithm = 2
)

// String returns the stable identifier used on the wire and in the CLI.
func (a Algorithm) String() string {
	switch a {
	case Geohash:
		return "geohash"
	case Quadtile:
		return "quadtile"
	default:
		return fmt.Sprintf("algorithm(%d)", uint8(a))
	}
}

// ParseAlgorithm parses a stable algorithm identifier.
func ParseAlgorithm(s string) (Algorithm, error) {
	switch s {
	case "geohash":
		return Geohash, nil
	case "quadtile":
		return Quadtile, nil
	default:
		return 0, fmt.Errorf("unknown geocode algorithm %q", s)
	}
}

// Bounds is a geographic footprint in degrees.
type Bounds struct {
	MinLat, MaxLat float64
	MinLon, MaxLon float64
}

// Intersects reports whether two footprints overlap with positive area.
func (b Bounds) Intersects(o Bounds) bool {
	return b.MinLat < o.MaxLat && o.MinLat < b.MaxLat &&
		b.MinLon < o.MaxLon && o.MinLon < b.MaxLon
}

// Center returns the footprint's midpoint.
func (b Bounds) Center() (lat, lon float64) {
	return (b.MinLat + b.MaxLat) / 2, (b.MinLon + b.MaxLon) / 2
}

// world is the full coordinate domain both algorithms subdivide.
var world = Bounds{MinLat: -90, MaxLat: 90, MinLon: -180, MaxLon: 180}

// Encode returns the geocode of the footprint's center point at the given
// precision.
func Encode(b Bounds, precision int, alg Algorithm) (string, error) {
	lat, lon := b.Center()
	return EncodePoint(lat, lon, precision, alg)
}

// EncodePoint returns the geocode of a point at the given precision.
func EncodePoint(lat, lon float64, precision int, alg Algorithm) (string, error) {
	if precision <= 0 {
		return "", fmt.Errorf("geocode precision must be positive, got %d", precision)
	}
	switch alg {
	case Geohash:
		return encodeGeohash(lat, lon, precision), nil
	case Quadtile:
		return encodeQuadtile(lat, lon, precision), nil
	default:
		return "", fmt.Errorf("unknown geocode algorithm %d", alg)
	}
}

// Decode returns the footprint covered by a geocode.
func Decode(code string, alg Algorithm) (Bounds, error) {
	switch alg {
	case Geohash:
		return decodeGeohash(code)
	case Quadtile:
		return decodeQuadtile(code)
	default:
		return Bounds{}, fmt.Errorf("unknown geocode algorithm %d", alg)
	}
}

// Alphabet returns the ordered digit set of the algorithm. Appending one
// alphabet character to a geocode enumerates its children at the next
// precision.
func Alphabet(alg Algorithm) string {
	switch alg {
	case Geohash:
		return geohashBase32
	case Quadtile:
		return "0123"
	default:
		return ""
	}
}

// Validate checks that a geocode or geocode filter only uses characters
// of the algorithm's alphabet.
func Validate(code string, alg Algorithm) error {
	alphabet := Alphabet(alg)
	for _, c := range code {
		if !strings.ContainsRune(alphabet, c) {
			return errdefs.InvalidGeocodeFilter(code)
		}
	}
	return nil
}

// RoutingKey derives the DHT routing key from a geocode under the signed
// key-length convention: positive n takes the first n characters,
// negative n drops the trailing |n| characters and zero keeps the full
// geocode. The key is always a prefix of the geocode.
func RoutingKey(code string, keyLength int) (string, error) {
	n := keyLength
	if n < 0 {
		n = -n
	}
	if n > len(code) {
		return "", errdefs.InvalidKeyLength(keyLength, code)
	}
	switch {
	case keyLength > 0:
		return code[:keyLength], nil
	case keyLength < 0:
		return code[:len(code)+keyLength], nil
	default:
		return code, nil
	}
}

// Cover enumerates the geocodes that intersect a footprint, refining from
// prefix onto the requested precision. An empty prefix starts at the
// world. Precision counts total geocode length, so it must not be shorter
// than the prefix.
func Cover(b Bounds, prefix string, precision int, alg Algorithm) ([]string, error) {
	if precision <= 0 || precision < len(prefix) {
		return nil, fmt.Errorf("cover precision %d invalid for prefix %q", precision, prefix)
	}
	if prefix != "" {
		pb, err := Decode(prefix, alg)
		if err != nil {
			return nil, err
		}
		if !pb.Intersects(b) {
			return nil, nil
		}
	}

	alphabet := Alphabet(alg)
	if alphabet == "" {
		return nil, fmt.Errorf("unknown geocode algorithm %d", alg)
	}

	codes := []string{prefix}
	for depth := len(prefix); depth < precision; depth++ {
		next := codes[:0:0]
		for _, code := range codes {
			for _, c := range alphabet {
				child := code + string(c)
				cb, err := Decode(child, alg)
				if err != nil {
					return nil, err
				}
				if cb.Intersects(b) {
					next = append(next, child)
				}
			}
		}
		codes = next
	}
	if len(codes) == 1 && codes[0] == "" {
		return nil, nil
	}
	return codes, nil
}

// PrefixMatch reports whether a candidate geocode satisfies a filter:
// exact equality when recursive is false, a string-prefix test when true.
func PrefixMatch(candidate, filter string, recursive bool) bool {
	if recursive {
		return strings.HasPrefix(candidate, filter)
	}
	return candidate == filter
}
