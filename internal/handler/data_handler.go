package handler

import (
	"context"
	"sort"
	"sync"

	"go.uber.org/zap"

	"github.com/tessera-io/tessera/internal/album"
	"github.com/tessera-io/tessera/internal/client"
	"github.com/tessera-io/tessera/internal/metrics"
	"github.com/tessera-io/tessera/internal/model"
	"github.com/tessera-io/tessera/internal/ring"
	"github.com/tessera-io/tessera/pkg/proto"
)

// DataHandler implements the gRPC data service.
type DataHandler struct {
	albums  *album.Manager
	members *ring.Membership
	peers   *client.Pool
	metrics *metrics.Metrics
	logger  *zap.Logger
}

// NewDataHandler creates a data handler.
func NewDataHandler(albums *album.Manager, members *ring.Membership, peers *client.Pool, m *metrics.Metrics, logger *zap.Logger) *DataHandler {
	return &DataHandler{
		albums:  albums,
		members: members,
		peers:   peers,
		metrics: m,
		logger:  logger,
	}
}

func (h *DataHandler) count(method string, err error) {
	if h.metrics == nil {
		return
	}
	h.metrics.RPCRequests.WithLabelValues(method).Inc()
	if err != nil {
		h.metrics.RPCErrors.WithLabelValues(method).Inc()
	}
}

// Search aggregates index counts by truncated geocode prefix. A
// broadcast search merges the aggregation of every live node; each node
// only ever reports the records it owns, so counts add without
// double-counting.
func (h *DataHandler) Search(ctx context.Context, req *proto.SearchRequest) (resp *proto.SearchResponse, err error) {
	defer func() { h.count("data.search", err) }()

	idx, _, err := h.albums.Index(req.Album)
	if err != nil {
		return nil, err
	}
	extents := idx.Search(req.Filter)

	if req.Broadcast {
		var mu sync.Mutex
		forward := &proto.SearchRequest{Album: req.Album, Filter: req.Filter}
		err = eachPeer(ctx, h.members, func(ctx context.Context, node model.Node) error {
			peerResp, err := h.peers.Search(ctx, node, forward)
			if err != nil {
				return err
			}
			mu.Lock()
			extents = append(extents, peerResp.Extents...)
			mu.Unlock()
			return nil
		})
		if err != nil {
			return nil, err
		}
		extents = mergeExtents(extents)
	}
	return &proto.SearchResponse{Extents: extents}, nil
}

// List returns the image records matching a filter, merged across the
// cluster when broadcast is requested.
func (h *DataHandler) List(ctx context.Context, req *proto.ListRequest) (resp *proto.ListResponse, err error) {
	defer func() { h.count("data.list", err) }()

	idx, _, err := h.albums.Index(req.Album)
	if err != nil {
		return nil, err
	}
	records := idx.List(req.Filter)

	if req.Broadcast {
		var mu sync.Mutex
		forward := &proto.ListRequest{Album: req.Album, Filter: req.Filter}
		err = eachPeer(ctx, h.members, func(ctx context.Context, node model.Node) error {
			peerResp, err := h.peers.List(ctx, node, forward)
			if err != nil {
				return err
			}
			mu.Lock()
			records = append(records, peerResp.Records...)
			mu.Unlock()
			return nil
		})
		if err != nil {
			return nil, err
		}
		sortRecords(records)
	}
	return &proto.ListResponse{Records: records}, nil
}

// mergeExtents sums counts sharing (geocode, platform, precision,
// source) and restores the canonical ordering.
func mergeExtents(extents []model.Extent) []model.Extent {
	type key struct {
		geocode   string
		platform  string
		precision int
		source    string
	}
	sums := make(map[key]int64)
	for _, e := range extents {
		sums[key{e.Geocode, e.Platform, e.Precision, e.Source}] += e.Count
	}

	out := make([]model.Extent, 0, len(sums))
	for k, count := range sums {
		out = append(out, model.Extent{
			Count:     count,
			Geocode:   k.geocode,
			Platform:  k.platform,
			Precision: k.precision,
			Source:    k.source,
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

// sortRecords restores the per-node listing order on a merged result.
func sortRecords(records []*model.ImageRecord) {
	sort.Slice(records, func(i, j int) bool {
		a, b := records[i], records[j]
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
}
