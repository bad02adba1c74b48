package task

import (
	"sort"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/tessera-io/tessera/internal/errdefs"
	"github.com/tessera-io/tessera/internal/model"
	"github.com/tessera-io/tessera/internal/raster"
)

// fillKey groups records that describe the same tile scope. With a
// positive window, timestamps are bucketed; otherwise they must match
// exactly.
type fillKey struct {
	platform   string
	geocode    string
	subdataset uint8
	bucket     int64
}

func groupForFill(records []*model.ImageRecord, windowSeconds int64) [][]*model.ImageRecord {
	byKey := make(map[fillKey][]*model.ImageRecord)
	for _, rec := range records {
		bucket := rec.Timestamp
		if windowSeconds > 0 {
			bucket = rec.Timestamp / windowSeconds
		}
		key := fillKey{
			platform:   rec.Platform,
			geocode:    rec.Geocode,
			subdataset: rec.Subdataset,
			bucket:     bucket,
		}
		byKey[key] = append(byKey[key], rec)
	}

	var groups [][]*model.ImageRecord
	for _, group := range byKey {
		// merge order is increasing record id, so repeated fills of the
		// same group produce identical pixels
		sort.Slice(group, func(i, j int) bool { return group[i].ID < group[j].ID })
		groups = append(groups, group)
	}
	sort.Slice(groups, func(i, j int) bool { return groups[i][0].ID < groups[j][0].ID })
	return groups
}

// runFill merges partially covered tiles that share a scope into a
// single tile covering the union of their valid pixels. Sources are
// retired only when the merge strictly improves coverage.
func (c *Coordinator) runFill(e *entry) error {
	idx, a, err := c.albums.Index(e.params.Album)
	if err != nil {
		return err
	}
	if err := validFilter(e.params.Filter, a.Algorithm); err != nil {
		return err
	}

	var partial []*model.ImageRecord
	for _, rec := range idx.List(e.params.Filter) {
		if rec.PixelCoverage < 1.0 {
			partial = append(partial, rec)
		}
	}
	groups := groupForFill(partial, e.params.WindowSeconds)
	e.progress.Total.Store(uint32(len(groups)))

	c.forEach(e, len(groups), func(i int) {
		group := groups[i]
		err := c.fillGroup(a, group)
		switch {
		case err == nil:
			e.progress.Completed.Add(1)
		case errdefs.GetCode(err) == errdefs.CodeNoImprovementFromFill:
			c.unitSkipped(e, err)
		default:
			c.unitFailed(e, err, zap.String("geocode", group[0].Geocode))
		}
	})
	return nil
}

// fillGroup merges one group. The merged record's coverage must strictly
// exceed every input's, otherwise nothing changes. A partial record with
// no overlapping partner cannot improve, so it reports that without the
// read.
func (c *Coordinator) fillGroup(a model.Album, group []*model.ImageRecord) error {
	if len(group) < 2 {
		return errdefs.NoImprovementFromFill(group[0].Geocode)
	}

	_, merged, err := raster.ReadFile(group[0].Path)
	if err != nil {
		return err
	}
	maxCoverage := group[0].PixelCoverage
	minTimestamp := group[0].Timestamp

	for _, rec := range group[1:] {
		_, tile, err := raster.ReadFile(rec.Path)
		if err != nil {
			return err
		}
		if err := merged.Merge(tile); err != nil {
			return err
		}
		if rec.PixelCoverage > maxCoverage {
			maxCoverage = rec.PixelCoverage
		}
		if rec.Timestamp < minTimestamp {
			minTimestamp = rec.Timestamp
		}
	}

	coverage := merged.Coverage()
	if coverage <= maxCoverage {
		return errdefs.NoImprovementFromFill(group[0].Geocode)
	}

	provenance := make([]string, len(group))
	for i, rec := range group {
		provenance[i] = rec.ID
	}
	rec := &model.ImageRecord{
		ID:            uuid.NewString(),
		Platform:      group[0].Platform,
		Subdataset:    group[0].Subdataset,
		Geocode:       group[0].Geocode,
		Timestamp:     minTimestamp,
		PixelCoverage: coverage,
		CloudCoverage: mergedCloudCoverage(group),
		Source:        model.SourceFill,
		Provenance:    provenance,
	}
	// durable first, then one index mutation swapping sources for the
	// merge so readers never see both
	if err := c.albums.WriteDetached(a.Name, rec, merged); err != nil {
		return err
	}
	return c.albums.Retire(a.Name, []*model.ImageRecord{rec}, group)
}

// mergedCloudCoverage is the worst-case cloud coverage of the sources,
// or absent when any source lacks the measurement.
func mergedCloudCoverage(group []*model.ImageRecord) *float64 {
	var worst float64
	for _, rec := range group {
		if rec.CloudCoverage == nil {
			return nil
		}
		if *rec.CloudCoverage > worst {
			worst = *rec.CloudCoverage
		}
	}
	return &worst
}
