package handler

import (
	"context"

	"go.uber.org/zap"

	"github.com/tessera-io/tessera/internal/ring"
	"github.com/tessera-io/tessera/pkg/proto"
)

// ClusterHandler implements the gRPC cluster service.
type ClusterHandler struct {
	members *ring.Membership
	logger  *zap.Logger
}

// NewClusterHandler creates a cluster handler.
func NewClusterHandler(members *ring.Membership, logger *zap.Logger) *ClusterHandler {
	return &ClusterHandler{members: members, logger: logger}
}

// ListNodes returns every known node with its liveness state, including
// suspected and dead ones, ordered by node id.
func (h *ClusterHandler) ListNodes(ctx context.Context, req *proto.NodeListRequest) (*proto.NodeListResponse, error) {
	return &proto.NodeListResponse{Nodes: h.members.Snapshot()}, nil
}
