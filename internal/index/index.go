// Package index implements the per-album in-memory spatial metadata
// index: a geocode-ordered tree supporting prefix search with
// aggregation and exact listing. An index exists only while its album is
// open.
package index

import (
	"sort"
	"strings"
	"sync"

	"github.com/google/btree"

	"github.com/tessera-io/tessera/internal/model"
)

// degree is the btree branching factor.
const degree = 32

// Index is one album's spatial index. Multiple readers may query
// concurrently; mutation batches take the exclusive section so that
// partially-applied split or fill results are never observable.
type Index struct {
	mu   sync.RWMutex
	tree *btree.BTreeG[*model.ImageRecord]
	byID map[string]*model.ImageRecord
}

// less orders records by geocode, then platform, then subdataset, then
// id, giving prefix scans a contiguous range.
func less(a, b *model.ImageRecord) bool {
	if a.Geocode != b.Geocode {
		return a.Geocode < b.Geocode
	}
	if a.Platform != b.Platform {
		return a.Platform < b.Platform
	}
	if a.Subdataset != b.Subdataset {
		return a.Subdataset < b.Subdataset
	}
	return a.ID < b.ID
}

// New creates an empty index.
func New() *Index {
	return &Index{
		tree: btree.NewG(degree, less),
		byID: make(map[string]*model.ImageRecord),
	}
}

// Len returns the number of records in the index.
func (idx *Index) Len() int {
	idx.mu.RLock()
	defer idx.mu.RUnlock()
	return len(idx.byID)
}

// Insert adds a single record.
func (idx *Index) Insert(rec *model.ImageRecord) {
	idx.mu.Lock()
	defer idx.mu.Unlock()
	idx.insertLocked(rec)
}

func (idx *Index) insertLocked(rec *model.ImageRecord) {
	if prev, ok := idx.byID[rec.ID]; ok {
		idx.tree.Delete(prev)
	}
	idx.tree.ReplaceOrInsert(rec)
	idx.byID[rec.ID] = rec
}

// Apply inserts and retires records in one exclusive section. Split and
// fill use this so readers never observe a parent alongside a partial
// set of its children.
func (idx *Index) Apply(add []*model.ImageRecord, retire []string) {
	idx.mu.Lock()
	defer idx.mu.Unlock()
	for _, id := range retire {
		if rec, ok := idx.byID[id]; ok {
			idx.tree.Delete(rec)
			delete(idx.byID, id)
		}
	}
	for _, rec := range add {
		idx.insertLocked(rec)
	}
}

// Get returns the record with the given id, or nil.
func (idx *Index) Get(id string) *model.ImageRecord {
	idx.mu.RLock()
	defer idx.mu.RUnlock()
	return idx.byID[id]
}

// List returns the records satisfying the filter, ordered by timestamp,
// geocode, platform and subdataset.
func (idx *Index) List(f model.Filter) []*model.ImageRecord {
	idx.mu.RLock()
	defer idx.mu.RUnlock()

	var out []*model.ImageRecord
	idx.scan(f, func(rec *model.ImageRecord) {
		out = append(out, rec)
	})

	sort.Slice(out, func(i, j int) bool {
		a, b := out[i], out[j]
		if a.Timestamp != b.Timestamp {
			return a.Timestamp < b.Timestamp
		}
		if a.Geocode != b.Geocode {
			return a.Geocode < b.Geocode
		}
		if a.Platform != b.Platform {
			return a.Platform < b.Platform
		}
		return a.Subdataset < b.Subdataset
	})
	return out
}

// Search aggregates the records satisfying the filter by truncated
// geocode prefix, platform, stored precision and source. The truncation
// length is one character past the filter prefix, or one character when
// no geocode filter is given, which visualizes dataspace density one
// level below the queried cell.
func (idx *Index) Search(f model.Filter) []model.Extent {
	idx.mu.RLock()
	defer idx.mu.RUnlock()

	truncate := 1
	if f.Geocode != nil {
		truncate = len(*f.Geocode) + 1
	}

	type groupKey struct {
		geocode   string
		platform  string
		precision int
		source    string
	}
	groups := make(map[groupKey]int64)
	idx.scan(f, func(rec *model.ImageRecord) {
		n := truncate
		if n > len(rec.Geocode) {
			n = len(rec.Geocode)
		}
		key := groupKey{
			geocode:   rec.Geocode[:n],
			platform:  rec.Platform,
			precision: len(rec.Geocode),
			source:    rec.Source,
		}
		groups[key]++
	})

	out := make([]model.Extent, 0, len(groups))
	for key, count := range groups {
		out = append(out, model.Extent{
			Count:     count,
			Geocode:   key.geocode,
			Platform:  key.platform,
			Precision: key.precision,
			Source:    key.source,
		})
	}
	sort.Slice(out, func(i, j int) bool {
		a, b := out[i], out[j]
		if a.Geocode != b.Geocode {
			return a.Geocode < b.Geocode
		}
		if a.Platform != b.Platform {
			return a.Platform < b.Platform
		}
		if a.Precision != b.Precision {
			return a.Precision < b.Precision
		}
		return a.Source < b.Source
	})
	return out
}

// scan visits records matching the filter. Callers hold at least a read
// lock. A geocode filter narrows the visit to the tree range sharing the
// prefix; other filters are applied per record.
func (idx *Index) scan(f model.Filter, visit func(*model.ImageRecord)) {
	emit := func(rec *model.ImageRecord) bool {
		if matches(f, rec) {
			visit(rec)
		}
		return true
	}

	if f.Geocode == nil || *f.Geocode == "" {
		idx.tree.Ascend(emit)
		return
	}

	prefix := *f.Geocode
	pivot := &model.ImageRecord{Geocode: prefix}
	idx.tree.AscendGreaterOrEqual(pivot, func(rec *model.ImageRecord) bool {
		if !strings.HasPrefix(rec.Geocode, prefix) {
			return false
		}
		return emit(rec)
	})
}

// matches applies every filter field to a record.
func matches(f model.Filter, rec *model.ImageRecord) bool {
	if f.Platform != nil && rec.Platform != *f.Platform {
		return false
	}
	if f.Source != nil && rec.Source != *f.Source {
		return false
	}
	if f.Geocode != nil && *f.Geocode != "" &&
		rec.Geocode != *f.Geocode &&
		!(f.Recurse && strings.HasPrefix(rec.Geocode, *f.Geocode)) {
		return false
	}
	if f.StartTimestamp != nil && rec.Timestamp < *f.StartTimestamp {
		return false
	}
	if f.EndTimestamp != nil && rec.Timestamp > *f.EndTimestamp {
		return false
	}
	if f.MinPixelCoverage != nil && rec.PixelCoverage < *f.MinPixelCoverage {
		return false
	}
	if f.MaxCloudCoverage != nil &&
		(rec.CloudCoverage == nil || *rec.CloudCoverage > *f.MaxCloudCoverage) {
		return false
	}
	return true
}
