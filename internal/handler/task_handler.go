package handler

import (
	"context"
	"sort"
	"sync"

	"go.uber.org/zap"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"

	"github.com/tessera-io/tessera/internal/client"
	"github.com/tessera-io/tessera/internal/metrics"
	"github.com/tessera-io/tessera/internal/model"
	"github.com/tessera-io/tessera/internal/ring"
	"github.com/tessera-io/tessera/internal/task"
	"github.com/tessera-io/tessera/pkg/proto"
)

// TaskHandler implements the gRPC task service on top of the
// coordinator.
type TaskHandler struct {
	coord   *task.Coordinator
	members *ring.Membership
	peers   *client.Pool
	metrics *metrics.Metrics
	logger  *zap.Logger
}

// NewTaskHandler creates a task handler.
func NewTaskHandler(coord *task.Coordinator, members *ring.Membership, peers *client.Pool, m *metrics.Metrics, logger *zap.Logger) *TaskHandler {
	return &TaskHandler{
		coord:   coord,
		members: members,
		peers:   peers,
		metrics: m,
		logger:  logger,
	}
}

func (h *TaskHandler) count(method string, err error) {
	if h.metrics == nil {
		return
	}
	h.metrics.RPCRequests.WithLabelValues(method).Inc()
	if err != nil {
		h.metrics.RPCErrors.WithLabelValues(method).Inc()
	}
}

// Dispatch spawns a task, fanning it to the cluster when the request
// originates here. Fan-out and parameter validation live in the
// coordinator.
func (h *TaskHandler) Dispatch(ctx context.Context, req *proto.TaskDispatchRequest) (resp *proto.TaskDispatchResponse, err error) {
	defer func() { h.count("task.dispatch", err) }()

	tasks, err := h.coord.Dispatch(ctx, req.Kind, req.Params, req.Propagate)
	if err != nil {
		return nil, err
	}
	return &proto.TaskDispatchResponse{Tasks: tasks}, nil
}

// List returns task snapshots, cluster-wide when the request originates
// here.
func (h *TaskHandler) List(ctx context.Context, req *proto.TaskListRequest) (resp *proto.TaskListResponse, err error) {
	defer func() { h.count("task.list", err) }()

	tasks := h.coord.List()

	if req.Propagate {
		var mu sync.Mutex
		forward := &proto.TaskListRequest{}
		err = eachPeer(ctx, h.members, func(ctx context.Context, node model.Node) error {
			peerResp, err := h.peers.ListTasks(ctx, node, forward)
			if err != nil {
				return err
			}
			mu.Lock()
			tasks = append(tasks, peerResp.Tasks...)
			mu.Unlock()
			return nil
		})
		if err != nil {
			return nil, err
		}
		sort.Slice(tasks, func(i, j int) bool {
			if tasks[i].NodeID != tasks[j].NodeID {
				return tasks[i].NodeID < tasks[j].NodeID
			}
			return tasks[i].ID < tasks[j].ID
		})
	}
	return &proto.TaskListResponse{Tasks: tasks}, nil
}

// Show returns a single local task snapshot.
func (h *TaskHandler) Show(ctx context.Context, req *proto.TaskShowRequest) (resp *proto.TaskShowResponse, err error) {
	defer func() { h.count("task.show", err) }()

	if req.ID == "" {
		return nil, status.Error(codes.InvalidArgument, "task id is required")
	}
	st, err := h.coord.Show(req.ID)
	if err != nil {
		return nil, err
	}
	return &proto.TaskShowResponse{Task: st}, nil
}

// Clear drops terminal tasks, cluster-wide when the request originates
// here.
func (h *TaskHandler) Clear(ctx context.Context, req *proto.TaskClearRequest) (resp *proto.TaskClearResponse, err error) {
	defer func() { h.count("task.clear", err) }()

	cleared := h.coord.Clear()

	if req.Propagate {
		var mu sync.Mutex
		forward := &proto.TaskClearRequest{}
		err = eachPeer(ctx, h.members, func(ctx context.Context, node model.Node) error {
			peerResp, err := h.peers.ClearTasks(ctx, node, forward)
			if err != nil {
				return err
			}
			mu.Lock()
			cleared += peerResp.Cleared
			mu.Unlock()
			return nil
		})
		if err != nil {
			return nil, err
		}
	}
	return &proto.TaskClearResponse{Cleared: cleared}, nil
}
