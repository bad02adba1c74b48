package raster

import (
	"bufio"
	"encoding/binary"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/tessera-io/tessera/internal/errdefs"
	"github.com/tessera-io/tessera/internal/geocode"
)

// magic identifies a framed tile file.
var magic = [4]byte{'T', 'S', 'R', '1'}

// Header carries the metadata stored alongside the pixel data in a
// framed tile file. Open-time index rebuilds read only the header.
type Header struct {
	ID            string         `json:"id,omitempty"`
	Platform      string         `json:"platform"`
	Subdataset    uint8          `json:"subdataset"`
	Geocode       string         `json:"geocode,omitempty"`
	Timestamp     int64          `json:"timestamp"`
	PixelCoverage float64        `json:"pixel_coverage"`
	CloudCoverage *float64       `json:"cloud_coverage,omitempty"`
	Source        string         `json:"source,omitempty"`
	Provenance    []string       `json:"provenance,omitempty"`
	Width         int            `json:"width"`
	Height        int            `json:"height"`
	BandCount     int            `json:"band_count"`
	Nodata        byte           `json:"nodata"`
	Bounds        geocode.Bounds `json:"bounds"`
}

// WriteFile writes a framed tile file atomically: frame into a temp file
// in the target directory, then rename over the destination.
func WriteFile(path string, hdr Header, tile *Tile) error {
	hdr.Width = tile.Width
	hdr.Height = tile.Height
	hdr.BandCount = len(tile.Bands)
	hdr.Nodata = tile.Nodata
	hdr.Bounds = tile.Bounds

	tmp, err := os.CreateTemp(filepath.Dir(path), ".tile-*")
	if err != nil {
		return errdefs.IoFailure("create temp tile file", err)
	}
	defer os.Remove(tmp.Name())

	w := bufio.NewWriter(tmp)
	if err := writeFrame(w, hdr, tile); err != nil {
		tmp.Close()
		return errdefs.IoFailure("write tile frame", err)
	}
	if err := w.Flush(); err != nil {
		tmp.Close()
		return errdefs.IoFailure("flush tile frame", err)
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		return errdefs.IoFailure("sync tile file", err)
	}
	if err := tmp.Close(); err != nil {
		return errdefs.IoFailure("close tile file", err)
	}
	if err := os.Rename(tmp.Name(), path); err != nil {
		return errdefs.IoFailure("rename tile file", err)
	}
	return nil
}

func writeFrame(w io.Writer, hdr Header, tile *Tile) error {
	if _, err := w.Write(magic[:]); err != nil {
		return err
	}
	meta, err := json.Marshal(hdr)
	if err != nil {
		return err
	}
	if err := binary.Write(w, binary.BigEndian, uint32(len(meta))); err != nil {
		return err
	}
	if _, err := w.Write(meta); err != nil {
		return err
	}
	for _, band := range tile.Bands {
		if _, err := w.Write(band); err != nil {
			return err
		}
	}
	return nil
}

// ReadHeader reads only the metadata frame of a tile file.
func ReadHeader(path string) (Header, error) {
	f, err := os.Open(path)
	if err != nil {
		return Header{}, errdefs.IoFailure("open tile file", err)
	}
	defer f.Close()
	return readHeader(bufio.NewReader(f), path)
}

func readHeader(r io.Reader, path string) (Header, error) {
	var got [4]byte
	if _, err := io.ReadFull(r, got[:]); err != nil {
		return Header{}, errdefs.IoFailure("read tile magic", err)
	}
	if got != magic {
		return Header{}, errdefs.Wrap(errdefs.CodeDecodeFailed,
			fmt.Sprintf("%s is not a tile file", path), nil)
	}
	var metaLen uint32
	if err := binary.Read(r, binary.BigEndian, &metaLen); err != nil {
		return Header{}, errdefs.IoFailure("read tile header length", err)
	}
	meta := make([]byte, metaLen)
	if _, err := io.ReadFull(r, meta); err != nil {
		return Header{}, errdefs.IoFailure("read tile header", err)
	}
	var hdr Header
	if err := json.Unmarshal(meta, &hdr); err != nil {
		return Header{}, errdefs.Wrap(errdefs.CodeDecodeFailed,
			fmt.Sprintf("corrupt tile header in %s", path), err)
	}
	return hdr, nil
}

// ReadFile reads a framed tile file in full.
func ReadFile(path string) (Header, *Tile, error) {
	f, err := os.Open(path)
	if err != nil {
		return Header{}, nil, errdefs.IoFailure("open tile file", err)
	}
	defer f.Close()

	r := bufio.NewReader(f)
	hdr, err := readHeader(r, path)
	if err != nil {
		return Header{}, nil, err
	}
	if hdr.Width <= 0 || hdr.Height <= 0 || hdr.BandCount <= 0 {
		return Header{}, nil, errdefs.Wrap(errdefs.CodeDecodeFailed,
			fmt.Sprintf("invalid tile dimensions in %s", path), nil)
	}

	tile := &Tile{
		Width:  hdr.Width,
		Height: hdr.Height,
		Bands:  make([][]byte, hdr.BandCount),
		Nodata: hdr.Nodata,
		Bounds: hdr.Bounds,
	}
	for i := 0; i < hdr.BandCount; i++ {
		band := make([]byte, hdr.Width*hdr.Height)
		if _, err := io.ReadFull(r, band); err != nil {
			return Header{}, nil, errdefs.IoFailure(
				fmt.Sprintf("read band %d of %s", i, path), err)
		}
		tile.Bands[i] = band
	}
	return hdr, tile, nil
}
