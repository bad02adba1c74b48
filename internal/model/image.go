package model

// Source values record how an image entered the dataspace.
const (
	SourceRaw      = "raw"
	SourceSplit    = "split"
	SourceFill     = "fill"
	SourceCoalesce = "coalesce"
)

// ImageRecord is the metadata for a single stored tile. Records are
// immutable once written; split and fill supersede them by creating new
// records and retiring the old ones.
type ImageRecord struct {
	ID            string   `json:"id"`
	Platform      string   `json:"platform"`
	Subdataset    uint8    `json:"subdataset"`
	Geocode       string   `json:"geocode"`
	Timestamp     int64    `json:"timestamp"`
	PixelCoverage float64  `json:"pixel_coverage"`
	CloudCoverage *float64 `json:"cloud_coverage,omitempty"`
	Source        string   `json:"source"`
	Provenance    []string `json:"provenance,omitempty"`
	Path          string   `json:"path"`
}

// Filter selects image records in index queries and task input selection.
// Nil pointer fields are unset.
type Filter struct {
	Platform         *string  `json:"platform,omitempty"`
	Geocode          *string  `json:"geocode,omitempty"`
	Recurse          bool     `json:"recurse"`
	Source           *string  `json:"source,omitempty"`
	StartTimestamp   *int64   `json:"start_timestamp,omitempty"`
	EndTimestamp     *int64   `json:"end_timestamp,omitempty"`
	MinPixelCoverage *float64 `json:"min_pixel_coverage,omitempty"`
	MaxCloudCoverage *float64 `json:"max_cloud_coverage,omitempty"`
}

// Extent is one row of an aggregated index search: the number of stored
// records sharing a geocode prefix, platform, stored precision and source.
type Extent struct {
	Count     int64  `json:"count"`
	Geocode   string `json:"geocode"`
	Platform  string `json:"platform"`
	Precision int    `json:"precision"`
	Source    string `json:"source"`
}
