package task

import (
	"fmt"
	"sort"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/tessera-io/tessera/internal/geocode"
	"github.com/tessera-io/tessera/internal/model"
	"github.com/tessera-io/tessera/internal/raster"
)

// runCoalesce aligns source-platform tiles to the scope of every query
// record passing the filter, producing spatially and temporally paired
// records. Query records are never altered and sources are never retired.
func (c *Coordinator) runCoalesce(e *entry) error {
	idx, a, err := c.albums.Index(e.params.Album)
	if err != nil {
		return err
	}
	if err := validFilter(e.params.Filter, a.Algorithm); err != nil {
		return err
	}

	queries := idx.List(e.params.Filter)
	e.progress.Total.Store(uint32(len(queries)))

	srcPlatform := e.params.SourcePlatform
	sources := idx.List(model.Filter{Platform: &srcPlatform})

	c.forEach(e, len(queries), func(i int) {
		query := queries[i]
		overlapping := overlappingSources(query, sources, e.params.WindowSeconds)
		if len(overlapping) == 0 {
			c.unitSkipped(e, fmt.Errorf("no %s records overlap %s", srcPlatform, query.Geocode))
			return
		}
		if err := c.coalesceRecord(a, query, overlapping); err != nil {
			c.unitFailed(e, err,
				zap.String("record_id", query.ID),
				zap.String("geocode", query.Geocode))
			return
		}
		e.progress.Completed.Add(1)
	})
	return nil
}

// overlappingSources returns source records covering the query record's
// geocode within the time window, coarsest first so the aligned tile is
// seeded at the coarse resolution and refined by closer matches.
func overlappingSources(query *model.ImageRecord, sources []*model.ImageRecord, windowSeconds int64) []*model.ImageRecord {
	var out []*model.ImageRecord
	for _, src := range sources {
		if src.Source == model.SourceCoalesce {
			continue
		}
		if !geocode.PrefixMatch(query.Geocode, src.Geocode, true) {
			continue
		}
		delta := src.Timestamp - query.Timestamp
		if delta < 0 {
			delta = -delta
		}
		if windowSeconds > 0 && delta > windowSeconds {
			continue
		}
		if windowSeconds == 0 && delta != 0 {
			continue
		}
		out = append(out, src)
	}
	sort.Slice(out, func(i, j int) bool {
		if len(out[i].Geocode) != len(out[j].Geocode) {
			return len(out[i].Geocode) < len(out[j].Geocode)
		}
		return out[i].ID < out[j].ID
	})
	return out
}

// coalesceRecord crops the overlapping source tiles to exactly the query
// record's footprint and writes the aligned result as a new record per
// source subdataset.
func (c *Coordinator) coalesceRecord(a model.Album, query *model.ImageRecord, sources []*model.ImageRecord) error {
	bounds, err := geocode.Decode(query.Geocode, a.Algorithm)
	if err != nil {
		return err
	}

	bySubdataset := make(map[uint8][]*model.ImageRecord)
	var order []uint8
	for _, src := range sources {
		if _, ok := bySubdataset[src.Subdataset]; !ok {
			order = append(order, src.Subdataset)
		}
		bySubdataset[src.Subdataset] = append(bySubdataset[src.Subdataset], src)
	}
	sort.Slice(order, func(i, j int) bool { return order[i] < order[j] })

	for _, sub := range order {
		group := bySubdataset[sub]

		var aligned *raster.Tile
		var used []*model.ImageRecord
		for _, src := range group {
			_, tile, err := raster.ReadFile(src.Path)
			if err != nil {
				return err
			}
			cropped := tile.Subdivide(bounds)
			if cropped == nil {
				continue
			}
			if aligned == nil {
				aligned = cropped
				used = append(used, src)
				continue
			}
			if err := aligned.Merge(cropped); err != nil {
				// resolution differs from the seed tile, skip this source
				c.logger.Debug("Skipping misaligned coalesce source",
					zap.String("source_id", src.ID),
					zap.Error(err))
				continue
			}
			used = append(used, src)
		}
		if aligned == nil || aligned.Coverage() == 0 {
			continue
		}

		provenance := make([]string, len(used))
		for i, src := range used {
			provenance[i] = src.ID
		}
		rec := &model.ImageRecord{
			ID:            uuid.NewString(),
			Platform:      used[0].Platform,
			Subdataset:    sub,
			Geocode:       query.Geocode,
			Timestamp:     query.Timestamp,
			PixelCoverage: aligned.Coverage(),
			CloudCoverage: mergedCloudCoverage(used),
			Source:        model.SourceCoalesce,
			Provenance:    provenance,
		}
		if err := c.albums.Write(a.Name, rec, aligned); err != nil {
			return err
		}
	}
	return nil
}
