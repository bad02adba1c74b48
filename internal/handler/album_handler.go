// Package handler binds the RPC services to the node's album manager,
// membership ring and task coordinator, and fans propagated operations
// out to peer nodes.
package handler

import (
	"context"
	"fmt"
	"sync"

	"github.com/hashicorp/go-multierror"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"

	"github.com/tessera-io/tessera/internal/album"
	"github.com/tessera-io/tessera/internal/client"
	"github.com/tessera-io/tessera/internal/errdefs"
	"github.com/tessera-io/tessera/internal/geocode"
	"github.com/tessera-io/tessera/internal/metrics"
	"github.com/tessera-io/tessera/internal/model"
	"github.com/tessera-io/tessera/internal/ring"
	"github.com/tessera-io/tessera/pkg/proto"
)

// peerLimit bounds concurrent fan-out RPCs per request.
const peerLimit = 16

// eachPeer calls fn once per peer node, concurrently, and collects the
// failures. The local node is skipped. Suspected and dead peers count as
// failures rather than being silently left out of the broadcast.
func eachPeer(ctx context.Context, members *ring.Membership, fn func(ctx context.Context, node model.Node) error) error {
	var mu sync.Mutex
	var merr *multierror.Error

	g, ctx := errgroup.WithContext(ctx)
	g.SetLimit(peerLimit)
	for _, node := range members.Snapshot() {
		if node.ID == members.LocalID() {
			continue
		}
		if node.State != model.NodeAlive {
			merr = multierror.Append(merr,
				errdefs.NodeUnreachable(node.ID, string(node.State)))
			continue
		}
		node := node
		g.Go(func() error {
			if err := fn(ctx, node); err != nil {
				mu.Lock()
				merr = multierror.Append(merr, fmt.Errorf("node %d: %w", node.ID, err))
				mu.Unlock()
			}
			return nil
		})
	}
	g.Wait()
	return merr.ErrorOrNil()
}

// AlbumHandler implements the gRPC album service.
type AlbumHandler struct {
	albums  *album.Manager
	members *ring.Membership
	peers   *client.Pool
	metrics *metrics.Metrics
	logger  *zap.Logger
}

// NewAlbumHandler creates an album handler.
func NewAlbumHandler(albums *album.Manager, members *ring.Membership, peers *client.Pool, m *metrics.Metrics, logger *zap.Logger) *AlbumHandler {
	return &AlbumHandler{
		albums:  albums,
		members: members,
		peers:   peers,
		metrics: m,
		logger:  logger,
	}
}

func (h *AlbumHandler) count(method string, err error) {
	if h.metrics == nil {
		return
	}
	h.metrics.RPCRequests.WithLabelValues(method).Inc()
	if err != nil {
		h.metrics.RPCErrors.WithLabelValues(method).Inc()
	}
}

// Create handles album creation, applying it locally and on every live
// peer when the request asks for propagation.
func (h *AlbumHandler) Create(ctx context.Context, req *proto.AlbumCreateRequest) (resp *proto.AlbumCreateResponse, err error) {
	defer func() { h.count("album.create", err) }()

	if req.Name == "" {
		return nil, status.Error(codes.InvalidArgument, "album name is required")
	}
	alg, err := geocode.ParseAlgorithm(req.Geocode)
	if err != nil {
		return nil, status.Error(codes.InvalidArgument, err.Error())
	}

	a, err := h.albums.Create(req.Name, alg, req.KeyLength)
	if err != nil {
		return nil, err
	}

	if req.Propagate {
		forward := &proto.AlbumCreateRequest{Name: req.Name, Geocode: req.Geocode, KeyLength: req.KeyLength}
		err = eachPeer(ctx, h.members, func(ctx context.Context, node model.Node) error {
			_, err := h.peers.CreateAlbum(ctx, node, forward)
			return err
		})
		if err != nil {
			return nil, err
		}
	}
	return &proto.AlbumCreateResponse{Album: a}, nil
}

// openCount counts the albums currently open on this node.
func (h *AlbumHandler) openCount() int {
	n := 0
	for _, a := range h.albums.List() {
		if a.State == model.AlbumOpen {
			n++
		}
	}
	return n
}

// Open handles album opening.
func (h *AlbumHandler) Open(ctx context.Context, req *proto.AlbumOpenRequest) (resp *proto.AlbumOpenResponse, err error) {
	defer func() { h.count("album.open", err) }()

	if err := h.albums.Open(ctx, req.Name); err != nil {
		return nil, err
	}
	idx, _, err := h.albums.Index(req.Name)
	if err != nil {
		return nil, err
	}
	if h.metrics != nil {
		h.metrics.OpenAlbums.Set(float64(h.openCount()))
		h.metrics.IndexedRecords.WithLabelValues(req.Name).Set(float64(idx.Len()))
	}

	if req.Propagate {
		forward := &proto.AlbumOpenRequest{Name: req.Name}
		err = eachPeer(ctx, h.members, func(ctx context.Context, node model.Node) error {
			_, err := h.peers.OpenAlbum(ctx, node, forward)
			return err
		})
		if err != nil {
			return nil, err
		}
	}
	return &proto.AlbumOpenResponse{Records: idx.Len()}, nil
}

// Close handles album closing.
func (h *AlbumHandler) Close(ctx context.Context, req *proto.AlbumCloseRequest) (resp *proto.AlbumCloseResponse, err error) {
	defer func() { h.count("album.close", err) }()

	if err := h.albums.Close(req.Name); err != nil {
		return nil, err
	}
	if h.metrics != nil {
		h.metrics.OpenAlbums.Set(float64(h.openCount()))
		h.metrics.IndexedRecords.WithLabelValues(req.Name).Set(0)
	}

	if req.Propagate {
		forward := &proto.AlbumCloseRequest{Name: req.Name}
		err = eachPeer(ctx, h.members, func(ctx context.Context, node model.Node) error {
			_, err := h.peers.CloseAlbum(ctx, node, forward)
			return err
		})
		if err != nil {
			return nil, err
		}
	}
	return &proto.AlbumCloseResponse{}, nil
}

// List returns the albums known to this node.
func (h *AlbumHandler) List(ctx context.Context, req *proto.AlbumListRequest) (resp *proto.AlbumListResponse, err error) {
	defer func() { h.count("album.list", err) }()
	return &proto.AlbumListResponse{Albums: h.albums.List()}, nil
}
