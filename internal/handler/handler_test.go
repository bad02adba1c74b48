package handler

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"

	"github.com/tessera-io/tessera/internal/album"
	"github.com/tessera-io/tessera/internal/geocode"
	"github.com/tessera-io/tessera/internal/model"
	"github.com/tessera-io/tessera/internal/raster"
	"github.com/tessera-io/tessera/internal/ring"
	"github.com/tessera-io/tessera/internal/task"
	"github.com/tessera-io/tessera/pkg/proto"
)

// ownAll owns every routing key, keeping single-node tests simple.
type ownAll struct{}

func (ownAll) OwnsLocally(string) (bool, error) { return true, nil }

type harness struct {
	albums  *album.Manager
	members *ring.Membership
	coord   *task.Coordinator
}

func newHarness(t *testing.T) *harness {
	t.Helper()

	albums, err := album.NewManager(t.TempDir(), ownAll{}, 2, zap.NewNop())
	require.NoError(t, err)

	local := model.Node{ID: 1, Host: "127.0.0.1", Tokens: []uint64{0}}
	members := ring.NewMembership(local, ring.DefaultConfig(), zap.NewNop())

	coord := task.NewCoordinator(&task.Config{
		Local:      local,
		Members:    members,
		Albums:     albums,
		StagingDir: t.TempDir(),
		Logger:     zap.NewNop(),
	})
	return &harness{albums: albums, members: members, coord: coord}
}

func (h *harness) write(t *testing.T, albumName string, rec *model.ImageRecord) {
	t.Helper()
	b, err := geocode.Decode(rec.Geocode, geocode.Quadtile)
	require.NoError(t, err)
	tile := raster.NewTile(2, 2, 1, 0, b)
	for i := range tile.Bands[0] {
		tile.Bands[0][i] = 7
	}
	require.NoError(t, h.albums.Write(albumName, rec, tile))
}

func TestAlbumHandlerCreateOpenClose(t *testing.T) {
	h := newHarness(t)
	ah := NewAlbumHandler(h.albums, h.members, nil, nil, zap.NewNop())
	ctx := context.Background()

	created, err := ah.Create(ctx, &proto.AlbumCreateRequest{
		Name: "modis", Geocode: "quadtile", KeyLength: 2, Propagate: true,
	})
	require.NoError(t, err)
	assert.Equal(t, "modis", created.Album.Name)
	assert.Equal(t, geocode.Quadtile, created.Album.Algorithm)

	opened, err := ah.Open(ctx, &proto.AlbumOpenRequest{Name: "modis"})
	require.NoError(t, err)
	assert.Equal(t, 0, opened.Records)

	_, err = ah.Close(ctx, &proto.AlbumCloseRequest{Name: "modis"})
	require.NoError(t, err)

	listed, err := ah.List(ctx, &proto.AlbumListRequest{})
	require.NoError(t, err)
	require.Len(t, listed.Albums, 1)
	assert.Equal(t, model.AlbumClosed, listed.Albums[0].State)
}

func TestAlbumHandlerCreateValidation(t *testing.T) {
	h := newHarness(t)
	ah := NewAlbumHandler(h.albums, h.members, nil, nil, zap.NewNop())
	ctx := context.Background()

	cases := []struct {
		name string
		req  *proto.AlbumCreateRequest
	}{
		{"missing name", &proto.AlbumCreateRequest{Geocode: "quadtile", KeyLength: 2}},
		{"bad algorithm", &proto.AlbumCreateRequest{Name: "a", Geocode: "hilbert", KeyLength: 2}},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := ah.Create(ctx, tc.req)
			require.Error(t, err)
			assert.Equal(t, codes.InvalidArgument, status.Code(err))
		})
	}
}

func TestAlbumHandlerBroadcastCountsUnreachablePeers(t *testing.T) {
	h := newHarness(t)
	ah := NewAlbumHandler(h.albums, h.members, nil, nil, zap.NewNop())
	ctx := context.Background()

	h.members.Merge(model.Node{
		ID: 2, Host: "127.0.0.2", Tokens: []uint64{1 << 32}, State: model.NodeDead,
	})

	_, err := ah.Create(ctx, &proto.AlbumCreateRequest{
		Name: "modis", Geocode: "quadtile", KeyLength: 2, Propagate: true,
	})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "node 2 is dead")

	// the local apply still happened before the fan-out failed
	_, err = h.albums.Get("modis")
	require.NoError(t, err)
}

func TestAlbumHandlerCreateDuplicate(t *testing.T) {
	h := newHarness(t)
	ah := NewAlbumHandler(h.albums, h.members, nil, nil, zap.NewNop())
	ctx := context.Background()

	req := &proto.AlbumCreateRequest{Name: "modis", Geocode: "geohash", KeyLength: 3}
	_, err := ah.Create(ctx, req)
	require.NoError(t, err)
	_, err = ah.Create(ctx, req)
	require.Error(t, err)
}

func TestAlbumHandlerOpenCountsRecords(t *testing.T) {
	h := newHarness(t)
	ah := NewAlbumHandler(h.albums, h.members, nil, nil, zap.NewNop())
	ctx := context.Background()

	_, err := ah.Create(ctx, &proto.AlbumCreateRequest{Name: "modis", Geocode: "quadtile", KeyLength: 2})
	require.NoError(t, err)
	h.write(t, "modis", &model.ImageRecord{
		ID: "r1", Platform: "modis", Geocode: "0123", Timestamp: 100,
		PixelCoverage: 1.0, Source: model.SourceRaw,
	})

	opened, err := ah.Open(ctx, &proto.AlbumOpenRequest{Name: "modis"})
	require.NoError(t, err)
	assert.Equal(t, 1, opened.Records)
}

func TestClusterHandlerListNodes(t *testing.T) {
	h := newHarness(t)
	ch := NewClusterHandler(h.members, zap.NewNop())

	resp, err := ch.ListNodes(context.Background(), &proto.NodeListRequest{})
	require.NoError(t, err)
	require.Len(t, resp.Nodes, 1)
	assert.Equal(t, uint32(1), resp.Nodes[0].ID)
	assert.Equal(t, model.NodeAlive, resp.Nodes[0].State)
}

func TestDataHandlerSearchAndList(t *testing.T) {
	h := newHarness(t)
	ah := NewAlbumHandler(h.albums, h.members, nil, nil, zap.NewNop())
	dh := NewDataHandler(h.albums, h.members, nil, nil, zap.NewNop())
	ctx := context.Background()

	_, err := ah.Create(ctx, &proto.AlbumCreateRequest{Name: "modis", Geocode: "quadtile", KeyLength: 2})
	require.NoError(t, err)
	for i, code := range []string{"0120", "0121", "0300"} {
		h.write(t, "modis", &model.ImageRecord{
			ID: string(rune('a' + i)), Platform: "modis", Geocode: code,
			Timestamp: int64(100 + i), PixelCoverage: 1.0, Source: model.SourceRaw,
		})
	}
	_, err = ah.Open(ctx, &proto.AlbumOpenRequest{Name: "modis"})
	require.NoError(t, err)

	root := "0"
	searched, err := dh.Search(ctx, &proto.SearchRequest{
		Album:  "modis",
		Filter: model.Filter{Geocode: &root, Recurse: true},
	})
	require.NoError(t, err)
	require.Len(t, searched.Extents, 2)
	assert.Equal(t, "01", searched.Extents[0].Geocode)
	assert.Equal(t, int64(2), searched.Extents[0].Count)
	assert.Equal(t, "03", searched.Extents[1].Geocode)
	assert.Equal(t, int64(1), searched.Extents[1].Count)

	branch := "012"
	listed, err := dh.List(ctx, &proto.ListRequest{Album: "modis", Filter: model.Filter{Geocode: &branch, Recurse: true}})
	require.NoError(t, err)
	require.Len(t, listed.Records, 2)
	assert.Equal(t, "0120", listed.Records[0].Geocode)
	assert.Equal(t, "0121", listed.Records[1].Geocode)
}

func TestDataHandlerRequiresOpenAlbum(t *testing.T) {
	h := newHarness(t)
	ah := NewAlbumHandler(h.albums, h.members, nil, nil, zap.NewNop())
	dh := NewDataHandler(h.albums, h.members, nil, nil, zap.NewNop())
	ctx := context.Background()

	_, err := dh.Search(ctx, &proto.SearchRequest{Album: "missing"})
	require.Error(t, err)

	_, err = ah.Create(ctx, &proto.AlbumCreateRequest{Name: "modis", Geocode: "quadtile", KeyLength: 2})
	require.NoError(t, err)
	_, err = dh.List(ctx, &proto.ListRequest{Album: "modis"})
	require.Error(t, err)
}

func TestMergeExtentsSumsAcrossNodes(t *testing.T) {
	merged := mergeExtents([]model.Extent{
		{Count: 2, Geocode: "03", Platform: "modis", Precision: 2, Source: model.SourceRaw},
		{Count: 1, Geocode: "01", Platform: "modis", Precision: 2, Source: model.SourceRaw},
		{Count: 3, Geocode: "01", Platform: "modis", Precision: 2, Source: model.SourceRaw},
		{Count: 1, Geocode: "01", Platform: "modis", Precision: 2, Source: model.SourceFill},
	})
	require.Len(t, merged, 3)
	assert.Equal(t, model.Extent{Count: 1, Geocode: "01", Platform: "modis", Precision: 2, Source: model.SourceFill}, merged[0])
	assert.Equal(t, model.Extent{Count: 4, Geocode: "01", Platform: "modis", Precision: 2, Source: model.SourceRaw}, merged[1])
	assert.Equal(t, model.Extent{Count: 2, Geocode: "03", Platform: "modis", Precision: 2, Source: model.SourceRaw}, merged[2])
}

func TestTaskHandlerDispatchAndShow(t *testing.T) {
	h := newHarness(t)
	ah := NewAlbumHandler(h.albums, h.members, nil, nil, zap.NewNop())
	th := NewTaskHandler(h.coord, h.members, nil, nil, zap.NewNop())
	ctx := context.Background()

	_, err := ah.Create(ctx, &proto.AlbumCreateRequest{Name: "modis", Geocode: "quadtile", KeyLength: 2})
	require.NoError(t, err)

	resp, err := th.Dispatch(ctx, &proto.TaskDispatchRequest{
		Kind: model.TaskStore,
		Params: model.TaskParams{
			Album: "modis", Glob: "*.hdf", Format: "generic", Precision: 4,
		},
		Propagate: true,
	})
	require.NoError(t, err)
	require.Len(t, resp.Tasks, 1)
	id := resp.Tasks[0].TaskID
	require.NotEmpty(t, id)

	require.Eventually(t, func() bool {
		shown, err := th.Show(ctx, &proto.TaskShowRequest{ID: id})
		return err == nil && shown.Task.State.Terminal()
	}, 5*time.Second, 10*time.Millisecond)
}

func TestTaskHandlerShowValidation(t *testing.T) {
	h := newHarness(t)
	th := NewTaskHandler(h.coord, h.members, nil, nil, zap.NewNop())
	ctx := context.Background()

	_, err := th.Show(ctx, &proto.TaskShowRequest{})
	require.Error(t, err)
	assert.Equal(t, codes.InvalidArgument, status.Code(err))

	_, err = th.Show(ctx, &proto.TaskShowRequest{ID: "nope"})
	require.Error(t, err)
	assert.Equal(t, codes.NotFound, status.Code(err))
}

func TestTaskHandlerListAndClear(t *testing.T) {
	h := newHarness(t)
	ah := NewAlbumHandler(h.albums, h.members, nil, nil, zap.NewNop())
	th := NewTaskHandler(h.coord, h.members, nil, nil, zap.NewNop())
	ctx := context.Background()

	_, err := ah.Create(ctx, &proto.AlbumCreateRequest{Name: "modis", Geocode: "quadtile", KeyLength: 2})
	require.NoError(t, err)
	_, err = th.Dispatch(ctx, &proto.TaskDispatchRequest{
		Kind:   model.TaskStore,
		Params: model.TaskParams{Album: "modis", Glob: "*.hdf", Format: "generic", Precision: 4},
	})
	require.NoError(t, err)

	listed, err := th.List(ctx, &proto.TaskListRequest{Propagate: true})
	require.NoError(t, err)
	require.Len(t, listed.Tasks, 1)

	require.Eventually(t, func() bool {
		l, err := th.List(ctx, &proto.TaskListRequest{})
		return err == nil && len(l.Tasks) == 1 && l.Tasks[0].State.Terminal()
	}, 5*time.Second, 10*time.Millisecond)

	cleared, err := th.Clear(ctx, &proto.TaskClearRequest{Propagate: true})
	require.NoError(t, err)
	assert.Equal(t, 1, cleared.Cleared)

	listed, err = th.List(ctx, &proto.TaskListRequest{})
	require.NoError(t, err)
	assert.Empty(t, listed.Tasks)
}
