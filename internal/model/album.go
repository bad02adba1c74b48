package model

import "github.com/tessera-io/tessera/internal/geocode"

// AlbumState is the lifecycle state of an album.
type AlbumState string

const (
	// AlbumOpen means the album's spatial index is resident and queryable.
	AlbumOpen AlbumState = "open"
	// AlbumClosed means only the album's on-disk data exists.
	AlbumClosed AlbumState = "closed"
)

// Album is a named dataspace. Geocode algorithm and key length are fixed at
// creation; only the lifecycle state changes afterwards.
type Album struct {
	Name      string            `json:"name"`
	Algorithm geocode.Algorithm `json:"geocode"`
	KeyLength int               `json:"key_length"`
	State     AlbumState        `json:"state"`
}

// RoutingKey derives the DHT routing key for a geocode stored in this album.
func (a *Album) RoutingKey(code string) (string, error) {
	return geocode.RoutingKey(code, a.KeyLength)
}
