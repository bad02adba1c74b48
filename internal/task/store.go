package task

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/tessera-io/tessera/internal/errdefs"
	"github.com/tessera-io/tessera/internal/geocode"
	"github.com/tessera-io/tessera/internal/model"
	"github.com/tessera-io/tessera/internal/raster"
	"github.com/tessera-io/tessera/internal/util/workerpool"
)

// poolStopTimeout bounds worker pool shutdown at the end of a task.
const poolStopTimeout = time.Minute

// newPool builds the per-task worker pool sized by the thread-count
// parameter.
func (c *Coordinator) newPool(e *entry, queue int) *workerpool.Pool {
	return workerpool.New(&workerpool.Config{
		Name:       string(e.kind) + "-" + e.id,
		MaxWorkers: e.params.ThreadCount,
		QueueSize:  queue,
		Logger:     c.logger,
	})
}

// forEach runs one job per unit on the task's worker pool and waits for
// all of them.
func (c *Coordinator) forEach(e *entry, n int, unit func(i int)) {
	pool := c.newPool(e, n)
	defer pool.Stop(poolStopTimeout)

	var wg sync.WaitGroup
	for i := 0; i < n; i++ {
		i := i
		wg.Add(1)
		err := pool.SubmitWait(context.Background(), workerpool.Job{
			ID: e.id,
			Fn: func(context.Context) error {
				defer wg.Done()
				unit(i)
				return nil
			},
		})
		if err != nil {
			wg.Done()
		}
	}
	wg.Wait()
}

// runStore decodes staged dataset files and writes their tiles at the
// requested geocode precision. Files fail independently.
func (c *Coordinator) runStore(e *entry) error {
	dec, err := raster.LookupDecoder(e.params.Format)
	if err != nil {
		return err
	}
	a, err := c.albums.Get(e.params.Album)
	if err != nil {
		return err
	}

	pattern := e.params.Glob
	if !filepath.IsAbs(pattern) {
		pattern = filepath.Join(c.staging, pattern)
	}
	paths, err := filepath.Glob(pattern)
	if err != nil {
		return errdefs.IoFailure("expand file glob", err)
	}
	e.progress.Total.Store(uint32(len(paths)))

	c.forEach(e, len(paths), func(i int) {
		if err := c.storeFile(a, dec, paths[i], e.params.Precision); err != nil {
			c.unitFailed(e, err, zap.String("path", paths[i]))
			return
		}
		e.progress.Completed.Add(1)
	})
	return nil
}

// storeFile decodes one file and writes each of its tiles at the target
// precision. Staged uploads are removed once stored.
func (c *Coordinator) storeFile(a model.Album, dec raster.Decoder, path string, precision int) error {
	subs, err := dec.Decode(path)
	if err != nil {
		return err
	}

	for _, sub := range subs {
		codes, err := geocode.Cover(sub.Tile.Bounds, "", precision, a.Algorithm)
		if err != nil {
			return err
		}
		for _, code := range codes {
			bounds, err := geocode.Decode(code, a.Algorithm)
			if err != nil {
				return err
			}
			tile := sub.Tile.Subdivide(bounds)
			if tile == nil {
				continue
			}
			coverage := tile.Coverage()
			if coverage == 0 {
				continue
			}

			rec := &model.ImageRecord{
				ID:            uuid.NewString(),
				Platform:      sub.Platform,
				Subdataset:    sub.ID,
				Geocode:       code,
				Timestamp:     sub.Timestamp,
				PixelCoverage: coverage,
				CloudCoverage: sub.CloudCoverage,
				Source:        model.SourceRaw,
			}
			if err := c.albums.Write(a.Name, rec, tile); err != nil {
				return err
			}
		}
	}

	if c.staging != "" && strings.HasPrefix(path, c.staging+string(filepath.Separator)) {
		if err := os.Remove(path); err != nil {
			c.logger.Warn("Failed to remove staged file",
				zap.String("path", path),
				zap.Error(err))
		}
	}
	return nil
}

// validFilter checks the geocode filter characters against the album's
// alphabet before any selection runs.
func validFilter(f model.Filter, alg geocode.Algorithm) error {
	if f.Geocode == nil {
		return nil
	}
	return geocode.Validate(*f.Geocode, alg)
}
