// Package client maintains gRPC connections to peer nodes and wraps the
// cluster-internal RPC surface.
package client

import (
	"context"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"
	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials/insecure"

	"github.com/tessera-io/tessera/internal/model"
	"github.com/tessera-io/tessera/pkg/proto"
)

// Pool caches one gRPC connection per peer node.
type Pool struct {
	timeout time.Duration
	logger  *zap.Logger

	mu    sync.Mutex
	conns map[string]*grpc.ClientConn // rpc address -> connection
}

// NewPool creates a connection pool. timeout bounds every RPC issued
// through the pool.
func NewPool(timeout time.Duration, logger *zap.Logger) *Pool {
	if timeout == 0 {
		timeout = 30 * time.Second
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Pool{
		timeout: timeout,
		logger:  logger,
		conns:   make(map[string]*grpc.ClientConn),
	}
}

func (p *Pool) conn(node model.Node) (*grpc.ClientConn, error) {
	addr := node.RPCAddr()

	p.mu.Lock()
	defer p.mu.Unlock()

	if conn, ok := p.conns[addr]; ok {
		return conn, nil
	}

	conn, err := grpc.NewClient(addr,
		grpc.WithTransportCredentials(insecure.NewCredentials()),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to node %d at %s: %w", node.ID, addr, err)
	}
	p.conns[addr] = conn

	p.logger.Debug("Created gRPC client for node",
		zap.Uint32("node_id", node.ID),
		zap.String("target", addr))
	return conn, nil
}

func (p *Pool) callCtx(ctx context.Context) (context.Context, context.CancelFunc) {
	return context.WithTimeout(ctx, p.timeout)
}

// DispatchTask starts a task on a peer node.
func (p *Pool) DispatchTask(ctx context.Context, node model.Node, req *proto.TaskDispatchRequest) (*proto.TaskDispatchResponse, error) {
	conn, err := p.conn(node)
	if err != nil {
		return nil, err
	}
	ctx, cancel := p.callCtx(ctx)
	defer cancel()
	return proto.NewTaskServiceClient(conn).Dispatch(ctx, req)
}

// ListTasks lists tasks on a peer node.
func (p *Pool) ListTasks(ctx context.Context, node model.Node, req *proto.TaskListRequest) (*proto.TaskListResponse, error) {
	conn, err := p.conn(node)
	if err != nil {
		return nil, err
	}
	ctx, cancel := p.callCtx(ctx)
	defer cancel()
	return proto.NewTaskServiceClient(conn).List(ctx, req)
}

// ClearTasks clears terminal tasks on a peer node.
func (p *Pool) ClearTasks(ctx context.Context, node model.Node, req *proto.TaskClearRequest) (*proto.TaskClearResponse, error) {
	conn, err := p.conn(node)
	if err != nil {
		return nil, err
	}
	ctx, cancel := p.callCtx(ctx)
	defer cancel()
	return proto.NewTaskServiceClient(conn).Clear(ctx, req)
}

// Search queries a peer node's spatial index aggregation.
func (p *Pool) Search(ctx context.Context, node model.Node, req *proto.SearchRequest) (*proto.SearchResponse, error) {
	conn, err := p.conn(node)
	if err != nil {
		return nil, err
	}
	ctx, cancel := p.callCtx(ctx)
	defer cancel()
	return proto.NewDataServiceClient(conn).Search(ctx, req)
}

// List queries a peer node's image records.
func (p *Pool) List(ctx context.Context, node model.Node, req *proto.ListRequest) (*proto.ListResponse, error) {
	conn, err := p.conn(node)
	if err != nil {
		return nil, err
	}
	ctx, cancel := p.callCtx(ctx)
	defer cancel()
	return proto.NewDataServiceClient(conn).List(ctx, req)
}

// CreateAlbum creates an album on a peer node.
func (p *Pool) CreateAlbum(ctx context.Context, node model.Node, req *proto.AlbumCreateRequest) (*proto.AlbumCreateResponse, error) {
	conn, err := p.conn(node)
	if err != nil {
		return nil, err
	}
	ctx, cancel := p.callCtx(ctx)
	defer cancel()
	return proto.NewAlbumServiceClient(conn).Create(ctx, req)
}

// OpenAlbum opens an album on a peer node.
func (p *Pool) OpenAlbum(ctx context.Context, node model.Node, req *proto.AlbumOpenRequest) (*proto.AlbumOpenResponse, error) {
	conn, err := p.conn(node)
	if err != nil {
		return nil, err
	}
	ctx, cancel := p.callCtx(ctx)
	defer cancel()
	return proto.NewAlbumServiceClient(conn).Open(ctx, req)
}

// CloseAlbum closes an album on a peer node.
func (p *Pool) CloseAlbum(ctx context.Context, node model.Node, req *proto.AlbumCloseRequest) (*proto.AlbumCloseResponse, error) {
	conn, err := p.conn(node)
	if err != nil {
		return nil, err
	}
	ctx, cancel := p.callCtx(ctx)
	defer cancel()
	return proto.NewAlbumServiceClient(conn).Close(ctx, req)
}

// Close tears down every cached connection.
func (p *Pool) Close() {
	p.mu.Lock()
	defer p.mu.Unlock()

	for addr, conn := range p.conns {
		if err := conn.Close(); err != nil {
			p.logger.Warn("Failed to close node connection",
				zap.String("target", addr),
				zap.Error(err))
		}
	}
	p.conns = make(map[string]*grpc.ClientConn)
}
