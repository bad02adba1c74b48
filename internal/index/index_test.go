package index

import (
	"fmt"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tessera-io/tessera/internal/model"
)

func rec(id, geocode, platform string, ts int64, coverage float64) *model.ImageRecord {
	return &model.ImageRecord{
		ID:            id,
		Platform:      platform,
		Geocode:       geocode,
		Timestamp:     ts,
		PixelCoverage: coverage,
		Source:        model.SourceRaw,
	}
}

func strPtr(s string) *string   { return &s }
func f64Ptr(f float64) *float64 { return &f }
func i64Ptr(i int64) *int64     { return &i }

func TestInsertAndList(t *testing.T) {
	idx := New()
	idx.Insert(rec("a", "0123", "MOD11A1", 100, 0.6))
	idx.Insert(rec("b", "0231", "MOD11A1", 200, 0.9))
	idx.Insert(rec("c", "0123", "Sentinel-2", 150, 1.0))

	all := idx.List(model.Filter{})
	require.Len(t, all, 3)
	// ordered by timestamp
	assert.Equal(t, "a", all[0].ID)
	assert.Equal(t, "c", all[1].ID)
	assert.Equal(t, "b", all[2].ID)
}

func TestListFilters(t *testing.T) {
	idx := New()
	idx.Insert(rec("a", "0123", "MOD11A1", 100, 0.6))
	idx.Insert(rec("b", "01234", "MOD11A1", 200, 0.9))
	idx.Insert(rec("c", "0231", "Sentinel-2", 150, 1.0))

	tests := []struct {
		name   string
		filter model.Filter
		want   []string
	}{
		{"platform", model.Filter{Platform: strPtr("MOD11A1")}, []string{"a", "b"}},
		{"geocode exact", model.Filter{Geocode: strPtr("0123")}, []string{"a"}},
		{"geocode recursive", model.Filter{Geocode: strPtr("0123"), Recurse: true}, []string{"a", "b"}},
		{"geocode prefix recursive", model.Filter{Geocode: strPtr("0"), Recurse: true}, []string{"a", "c", "b"}},
		{"time range", model.Filter{StartTimestamp: i64Ptr(120), EndTimestamp: i64Ptr(180)}, []string{"c"}},
		{"min coverage", model.Filter{MinPixelCoverage: f64Ptr(0.8)}, []string{"c", "b"}},
		{"no match", model.Filter{Platform: strPtr("NAIP")}, nil},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := idx.List(tt.filter)
			ids := make([]string, 0, len(got))
			for _, r := range got {
				ids = append(ids, r.ID)
			}
			if tt.want == nil {
				assert.Empty(t, ids)
			} else {
				assert.Equal(t, tt.want, ids)
			}
		})
	}
}

func TestCloudCoverageFilterExcludesUnknown(t *testing.T) {
	idx := New()
	withCloud := rec("a", "0123", "Sentinel-2", 100, 1.0)
	cc := 0.1
	withCloud.CloudCoverage = &cc
	idx.Insert(withCloud)
	idx.Insert(rec("b", "0124", "Sentinel-2", 100, 1.0))

	got := idx.List(model.Filter{MaxCloudCoverage: f64Ptr(0.5)})
	require.Len(t, got, 1)
	assert.Equal(t, "a", got[0].ID)
}

func TestSearchAggregation(t *testing.T) {
	idx := New()
	for i, g := range []string{"0120", "0121", "0122", "0130", "0210"} {
		idx.Insert(rec(fmt.Sprintf("r%d", i), g, "MOD11A1", 100, 0.5))
	}

	// no geocode filter: grouped at precision 1
	extents := idx.Search(model.Filter{})
	require.Len(t, extents, 1)
	assert.Equal(t, "0", extents[0].Geocode)
	assert.Equal(t, int64(5), extents[0].Count)
	assert.Equal(t, 4, extents[0].Precision)

	// filter "01" recursive: grouped one level below the filter
	extents = idx.Search(model.Filter{Geocode: strPtr("01"), Recurse: true})
	require.Len(t, extents, 2)
	assert.Equal(t, "012", extents[0].Geocode)
	assert.Equal(t, int64(3), extents[0].Count)
	assert.Equal(t, "013", extents[1].Geocode)
	assert.Equal(t, int64(1), extents[1].Count)
}

func TestSearchGroupsByPlatformAndSource(t *testing.T) {
	idx := New()
	idx.Insert(rec("a", "0120", "MOD11A1", 100, 0.5))
	idx.Insert(rec("b", "0121", "Sentinel-2", 100, 0.5))
	split := rec("c", "0122", "MOD11A1", 100, 0.5)
	split.Source = model.SourceSplit
	idx.Insert(split)

	extents := idx.Search(model.Filter{Geocode: strPtr("01"), Recurse: true})
	require.Len(t, extents, 3)
	for _, e := range extents {
		assert.Equal(t, int64(1), e.Count)
	}
}

func TestSearchSingleRecordScenario(t *testing.T) {
	// store one record at "0123", search prefix "01" recursive: one
	// extent of count 1 at precision 2
	idx := New()
	idx.Insert(rec("a", "0123", "quad", 100, 0.6))

	extents := idx.Search(model.Filter{Geocode: strPtr("01"), Recurse: true})
	require.Len(t, extents, 1)
	assert.Equal(t, int64(1), extents[0].Count)
	assert.Equal(t, "012", extents[0].Geocode)
	assert.Len(t, extents[0].Geocode, 3)
}

func TestApplyAtomicRetire(t *testing.T) {
	idx := New()
	parent := rec("p", "0123", "MOD11A1", 100, 0.6)
	idx.Insert(parent)

	children := []*model.ImageRecord{
		rec("c1", "012300", "MOD11A1", 100, 0.4),
		rec("c2", "012301", "MOD11A1", 100, 0.8),
	}
	idx.Apply(children, []string{"p"})

	assert.Nil(t, idx.Get("p"))
	assert.NotNil(t, idx.Get("c1"))
	assert.NotNil(t, idx.Get("c2"))
	assert.Equal(t, 2, idx.Len())

	got := idx.List(model.Filter{Geocode: strPtr("0123"), Recurse: true})
	require.Len(t, got, 2)
}

func TestInsertReplacesByID(t *testing.T) {
	idx := New()
	idx.Insert(rec("a", "0123", "MOD11A1", 100, 0.6))
	idx.Insert(rec("a", "0124", "MOD11A1", 100, 0.7))

	assert.Equal(t, 1, idx.Len())
	assert.Equal(t, "0124", idx.Get("a").Geocode)
	assert.Empty(t, idx.List(model.Filter{Geocode: strPtr("0123")}))
}

func TestConcurrentReadersDuringMutation(t *testing.T) {
	idx := New()
	for i := 0; i < 100; i++ {
		idx.Insert(rec(fmt.Sprintf("r%d", i), fmt.Sprintf("%04d", i), "MOD11A1", int64(i), 0.5))
	}

	var wg sync.WaitGroup
	for w := 0; w < 4; w++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for i := 0; i < 200; i++ {
				idx.Search(model.Filter{})
				idx.List(model.Filter{Platform: strPtr("MOD11A1")})
			}
		}()
	}
	for i := 0; i < 100; i++ {
		idx.Apply([]*model.ImageRecord{
			rec(fmt.Sprintf("n%d", i), fmt.Sprintf("1%03d", i), "MOD11A1", int64(i), 0.5),
		}, []string{fmt.Sprintf("r%d", i)})
	}
	wg.Wait()

	assert.Equal(t, 100, idx.Len())
}
