package geocode

import (
	"fmt"
	"strings"
)

// geohashBase32 is the standard geohash alphabet (no a, i, l, o).
const geohashBase32 = "0123456789bcdefghjkmnpqrstuvwxyz"

// encodeGeohash implements base-32 interleaved lat/lon bit encoding. Bits
// alternate starting with longitude; every five bits emit one character.
func encodeGeohash(lat, lon float64, precision int) string {
	var sb strings.Builder
	sb.Grow(precision)

	latMin, latMax := world.MinLat, world.MaxLat
	lonMin, lonMax := world.MinLon, world.MaxLon

	var bits, ch int
	even := true
	for sb.Len() < precision {
		if even {
			mid := (lonMin + lonMax) / 2
			if lon >= mid {
				ch = ch<<1 | 1
				lonMin = mid
			} else {
				ch <<= 1
				lonMax = mid
			}
		} else {
			mid := (latMin + latMax) / 2
			if lat >= mid {
				ch = ch<<1 | 1
				latMin = mid
			} else {
				ch <<= 1
				latMax = mid
			}
		}
		even = !even

		bits++
		if bits == 5 {
			sb.WriteByte(geohashBase32[ch])
			bits, ch = 0, 0
		}
	}

	return sb.String()
}

// decodeGeohash returns the cell bounds of a geohash.
func decodeGeohash(code string) (Bounds, error) {
	b := world
	even := true
	for _, c := range code {
		idx := strings.IndexRune(geohashBase32, c)
		if idx < 0 {
			return Bounds{}, fmt.Errorf("invalid geohash character %q in %q", c, code)
		}
		for bit := 4; bit >= 0; bit-- {
			set := idx>>bit&1 == 1
			if even {
				mid := (b.MinLon + b.MaxLon) / 2
				if set {
					b.MinLon = mid
				} else {
					b.MaxLon = mid
				}
			} else {
				mid := (b.MinLat + b.MaxLat) / 2
				if set {
					b.MinLat = mid
				} else {
					b.MaxLat = mid
				}
			}
			even = !even
		}
	}
	return b, nil
}
