package geocode

import "fmt"

// encodeQuadtile implements recursive quadrant subdivision producing a
// base-4 digit string. Digit layout per level: 0 = northwest,
// 1 = northeast, 2 = southwest, 3 = southeast.
func encodeQuadtile(lat, lon float64, precision int) string {
	buf := make([]byte, 0, precision)
	b := world
	for len(buf) < precision {
		digit := byte('0')
		midLon := (b.MinLon + b.MaxLon) / 2
		midLat := (b.MinLat + b.MaxLat) / 2
		if lon >= midLon {
			digit += 1
			b.MinLon = midLon
		} else {
			b.MaxLon = midLon
		}
		if lat < midLat {
			digit += 2
			b.MaxLat = midLat
		} else {
			b.MinLat = midLat
		}
		buf = append(buf, digit)
	}
	return string(buf)
}

// decodeQuadtile returns the cell bounds of a quadtile code.
func decodeQuadtile(code string) (Bounds, error) {
	b := world
	for _, c := range code {
		if c < '0' || c > '3' {
			return Bounds{}, fmt.Errorf("invalid quadtile character %q in %q", c, code)
		}
		digit := c - '0'
		midLon := (b.MinLon + b.MaxLon) / 2
		midLat := (b.MinLat + b.MaxLat) / 2
		if digit&1 == 1 {
			b.MinLon = midLon
		} else {
			b.MaxLon = midLon
		}
		if digit&2 == 2 {
			b.MaxLat = midLat
		} else {
			b.MinLat = midLat
		}
	}
	return b, nil
}
