package task

import (
	"fmt"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/tessera-io/tessera/internal/geocode"
	"github.com/tessera-io/tessera/internal/model"
	"github.com/tessera-io/tessera/internal/raster"
)

// runSplit subdivides selected records into child tiles at a finer
// precision. A parent is retired only after every child is durably
// written, so a unit failure leaves the parent untouched.
func (c *Coordinator) runSplit(e *entry) error {
	idx, a, err := c.albums.Index(e.params.Album)
	if err != nil {
		return err
	}
	if err := validFilter(e.params.Filter, a.Algorithm); err != nil {
		return err
	}

	records := idx.List(e.params.Filter)
	e.progress.Total.Store(uint32(len(records)))

	target := e.params.TargetPrecision
	c.forEach(e, len(records), func(i int) {
		rec := records[i]
		if len(rec.Geocode) >= target {
			c.unitSkipped(e, fmt.Errorf("record %s already at precision %d", rec.ID, len(rec.Geocode)))
			return
		}
		if err := c.splitRecord(a, rec, target); err != nil {
			c.unitFailed(e, err, zap.String("record_id", rec.ID))
			return
		}
		e.progress.Completed.Add(1)
	})
	return nil
}

// splitRecord writes all child tiles of one parent without indexing them,
// then swaps the children in and the parent out of the index in a single
// mutation. Readers either see the parent or the full set of children,
// never both.
func (c *Coordinator) splitRecord(a model.Album, rec *model.ImageRecord, target int) error {
	_, tile, err := raster.ReadFile(rec.Path)
	if err != nil {
		return err
	}

	codes, err := geocode.Cover(tile.Bounds, rec.Geocode, target, a.Algorithm)
	if err != nil {
		return err
	}
	var children []*model.ImageRecord
	for _, code := range codes {
		bounds, err := geocode.Decode(code, a.Algorithm)
		if err != nil {
			return err
		}
		child := tile.Subdivide(bounds)
		if child == nil {
			continue
		}
		coverage := child.Coverage()
		if coverage == 0 {
			continue
		}

		childRec := &model.ImageRecord{
			ID:            uuid.NewString(),
			Platform:      rec.Platform,
			Subdataset:    rec.Subdataset,
			Geocode:       code,
			Timestamp:     rec.Timestamp,
			PixelCoverage: coverage,
			CloudCoverage: rec.CloudCoverage,
			Source:        model.SourceSplit,
			Provenance:    []string{rec.ID},
		}
		if err := c.albums.WriteDetached(a.Name, childRec, child); err != nil {
			return err
		}
		children = append(children, childRec)
	}

	return c.albums.Retire(a.Name, children, []*model.ImageRecord{rec})
}
