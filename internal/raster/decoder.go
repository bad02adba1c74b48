package raster

import (
	"fmt"
	"path/filepath"
	"strings"
	"time"

	"github.com/tessera-io/tessera/internal/errdefs"
)

// Subdataset is one decoded band group of an input file together with
// its acquisition metadata.
type Subdataset struct {
	ID            uint8
	Platform      string
	Timestamp     int64
	CloudCoverage *float64
	Tile          *Tile
}

// Decoder turns an input file into band tiles with geospatial
// footprints. Decoders for external product formats are collaborators;
// they parse product naming conventions and delegate pixel decoding to
// the framed tile codec.
type Decoder interface {
	Decode(path string) ([]Subdataset, error)
}

var decoders = map[string]Decoder{
	"generic":   genericDecoder{},
	"modis":     modisDecoder{},
	"naip":      naipDecoder{},
	"sentinel2": sentinel2Decoder{},
}

// LookupDecoder resolves a declared input format.
func LookupDecoder(format string) (Decoder, error) {
	dec, ok := decoders[strings.ToLower(format)]
	if !ok {
		return nil, errdefs.UnsupportedFormat(format)
	}
	return dec, nil
}

// Formats lists the registered format identifiers.
func Formats() []string {
	out := make([]string, 0, len(decoders))
	for name := range decoders {
		out = append(out, name)
	}
	return out
}

// genericDecoder reads a framed tile file whose header already names the
// platform and timestamp.
type genericDecoder struct{}

func (genericDecoder) Decode(path string) ([]Subdataset, error) {
	hdr, tile, err := ReadFile(path)
	if err != nil {
		return nil, err
	}
	if hdr.Platform == "" {
		return nil, errdefs.Newf(errdefs.CodeDecodeFailed,
			"%s has no platform metadata", path)
	}
	return []Subdataset{{
		ID:            hdr.Subdataset,
		Platform:      hdr.Platform,
		Timestamp:     hdr.Timestamp,
		CloudCoverage: hdr.CloudCoverage,
		Tile:          tile,
	}}, nil
}

// modisDecoder parses MODIS product names, e.g.
// MOD11A1.A2020153.h09v05.006.bin: product, acquisition day-of-year,
// tile reference, collection.
type modisDecoder struct{}

func (modisDecoder) Decode(path string) ([]Subdataset, error) {
	fields := strings.Split(filepath.Base(path), ".")
	if len(fields) < 2 || !strings.HasPrefix(fields[1], "A") {
		return nil, errdefs.Newf(errdefs.CodeDecodeFailed,
			"%s does not follow MODIS naming", path)
	}
	acquired, err := time.Parse("2006002", fields[1][1:])
	if err != nil {
		return nil, errdefs.Wrap(errdefs.CodeDecodeFailed,
			fmt.Sprintf("bad MODIS acquisition date in %s", path), err)
	}

	subs, err := genericDecoder{}.Decode(path)
	if err != nil {
		return nil, err
	}
	for i := range subs {
		subs[i].Platform = fields[0]
		subs[i].Timestamp = acquired.Unix()
	}
	return subs, nil
}

// naipDecoder parses NAIP quarter-quad names, e.g.
// m_4010503_ne_13_1_20200613.bin: the trailing field is the flight date.
type naipDecoder struct{}

func (naipDecoder) Decode(path string) ([]Subdataset, error) {
	base := strings.TrimSuffix(filepath.Base(path), filepath.Ext(path))
	fields := strings.Split(base, "_")
	acquired, err := time.Parse("20060102", fields[len(fields)-1])
	if err != nil {
		return nil, errdefs.Wrap(errdefs.CodeDecodeFailed,
			fmt.Sprintf("bad NAIP flight date in %s", path), err)
	}

	subs, err := genericDecoder{}.Decode(path)
	if err != nil {
		return nil, err
	}
	for i := range subs {
		subs[i].Platform = "NAIP"
		subs[i].Timestamp = acquired.Unix()
	}
	return subs, nil
}

// sentinel2Decoder parses Sentinel-2 SAFE-style names, e.g.
// S2A_MSIL1C_20200613T173901_....bin: the third field is the datatake
// start time.
type sentinel2Decoder struct{}

func (sentinel2Decoder) Decode(path string) ([]Subdataset, error) {
	fields := strings.Split(filepath.Base(path), "_")
	if len(fields) < 3 || !strings.HasPrefix(fields[0], "S2") {
		return nil, errdefs.Newf(errdefs.CodeDecodeFailed,
			"%s does not follow Sentinel-2 naming", path)
	}
	acquired, err := time.Parse("20060102T150405", fields[2])
	if err != nil {
		return nil, errdefs.Wrap(errdefs.CodeDecodeFailed,
			fmt.Sprintf("bad Sentinel-2 datatake time in %s", path), err)
	}

	subs, err := genericDecoder{}.Decode(path)
	if err != nil {
		return nil, err
	}
	for i := range subs {
		subs[i].Platform = "Sentinel-2"
		subs[i].Timestamp = acquired.Unix()
	}
	return subs, nil
}
