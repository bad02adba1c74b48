// Package task runs the dataspace-reshaping operations: store, split,
// fill, and coalesce. Dispatch fans tasks out across the cluster; each
// task executes against local data only.
package task

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/tessera-io/tessera/internal/album"
	"github.com/tessera-io/tessera/internal/client"
	"github.com/tessera-io/tessera/internal/errdefs"
	"github.com/tessera-io/tessera/internal/metrics"
	"github.com/tessera-io/tessera/internal/model"
	"github.com/tessera-io/tessera/internal/ring"
	"github.com/tessera-io/tessera/pkg/proto"
)

// fanoutLimit bounds concurrent per-node dispatch RPCs.
const fanoutLimit = 16

type entry struct {
	id       string
	kind     model.TaskKind
	params   model.TaskParams
	progress *model.ProgressCounters

	mu      sync.Mutex
	state   model.TaskState
	lastErr string
}

func (e *entry) setState(s model.TaskState) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.state = s
}

func (e *entry) fail(err error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.state = model.TaskFailed
	e.lastErr = err.Error()
}

// unitErr records a per-unit failure without changing the task state.
func (e *entry) unitErr(err error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.lastErr = err.Error()
}

func (e *entry) snapshot(nodeID uint32) model.TaskStatus {
	e.mu.Lock()
	defer e.mu.Unlock()
	return model.TaskStatus{
		ID:        e.id,
		Kind:      e.kind,
		NodeID:    nodeID,
		Params:    e.params,
		State:     e.state,
		Progress:  e.progress.Snapshot(),
		LastError: e.lastErr,
	}
}

// Coordinator tracks this node's tasks and fans cluster operations out to
// live peers.
type Coordinator struct {
	local   model.Node
	members *ring.Membership
	albums  *album.Manager
	peers   *client.Pool
	staging string
	metrics *metrics.Metrics
	logger  *zap.Logger

	mu    sync.Mutex
	tasks map[string]*entry
}

// Config wires a Coordinator.
type Config struct {
	Local      model.Node
	Members    *ring.Membership
	Albums     *album.Manager
	Peers      *client.Pool
	StagingDir string
	Metrics    *metrics.Metrics
	Logger     *zap.Logger
}

// NewCoordinator creates a task coordinator.
func NewCoordinator(cfg *Config) *Coordinator {
	if cfg.Logger == nil {
		cfg.Logger = zap.NewNop()
	}
	return &Coordinator{
		local:   cfg.Local,
		members: cfg.Members,
		albums:  cfg.Albums,
		peers:   cfg.Peers,
		staging: cfg.StagingDir,
		metrics: cfg.Metrics,
		logger:  cfg.Logger,
		tasks:   make(map[string]*entry),
	}
}

// Dispatch starts a task. Store always runs only on the receiving node,
// where the staged files are. For the other kinds, propagate spreads the
// task to every known node; each node's task works its local data, and a
// node's failure to accept never aborts its siblings. Suspected and dead
// nodes get an unreachable entry in the result instead of being silently
// dropped, so the caller sees which data went unprocessed.
func (c *Coordinator) Dispatch(ctx context.Context, kind model.TaskKind, params model.TaskParams, propagate bool) ([]proto.NodeTask, error) {
	switch kind {
	case model.TaskStore, model.TaskSplit, model.TaskFill, model.TaskCoalesce:
	default:
		return nil, errdefs.UnknownTaskKind(string(kind))
	}
	if _, err := c.albums.Get(params.Album); err != nil {
		return nil, err
	}

	if kind == model.TaskStore || !propagate {
		id, err := c.spawn(kind, params)
		nt := proto.NodeTask{NodeID: c.local.ID, TaskID: id}
		if err != nil {
			nt.Error = err.Error()
		}
		return []proto.NodeTask{nt}, err
	}

	nodes := c.members.Snapshot()
	results := make([]proto.NodeTask, len(nodes))

	g, ctx := errgroup.WithContext(ctx)
	g.SetLimit(fanoutLimit)
	for i, node := range nodes {
		if node.State != model.NodeAlive {
			results[i] = proto.NodeTask{
				NodeID: node.ID,
				Error:  errdefs.NodeUnreachable(node.ID, string(node.State)).Error(),
			}
			continue
		}
		i, node := i, node
		g.Go(func() error {
			results[i] = c.dispatchOne(ctx, node, kind, params)
			return nil
		})
	}
	g.Wait()

	return results, nil
}

func (c *Coordinator) dispatchOne(ctx context.Context, node model.Node, kind model.TaskKind, params model.TaskParams) proto.NodeTask {
	nt := proto.NodeTask{NodeID: node.ID}

	if node.ID == c.local.ID {
		id, err := c.spawn(kind, params)
		nt.TaskID = id
		if err != nil {
			nt.Error = err.Error()
		}
		return nt
	}

	resp, err := c.peers.DispatchTask(ctx, node, &proto.TaskDispatchRequest{
		Kind:   kind,
		Params: params,
	})
	if err != nil {
		c.logger.Warn("Task dispatch to node failed",
			zap.Uint32("node_id", node.ID),
			zap.String("kind", string(kind)),
			zap.Error(err))
		nt.Error = err.Error()
		return nt
	}
	if len(resp.Tasks) > 0 {
		nt.TaskID = resp.Tasks[0].TaskID
		nt.Error = resp.Tasks[0].Error
	}
	return nt
}

func validateParams(kind model.TaskKind, params model.TaskParams) error {
	switch kind {
	case model.TaskStore:
		if params.Glob == "" {
			return fmt.Errorf("store requires a file glob")
		}
		if params.Precision <= 0 {
			return fmt.Errorf("store requires a positive geocode precision")
		}
	case model.TaskSplit:
		if params.TargetPrecision <= 0 {
			return fmt.Errorf("split requires a positive target precision")
		}
	case model.TaskCoalesce:
		if params.SourcePlatform == "" {
			return fmt.Errorf("coalesce requires a source platform")
		}
	}
	return nil
}

// spawn registers a local task and starts it in the background.
func (c *Coordinator) spawn(kind model.TaskKind, params model.TaskParams) (string, error) {
	if err := validateParams(kind, params); err != nil {
		return "", err
	}

	e := &entry{
		id:       uuid.NewString(),
		kind:     kind,
		params:   params,
		progress: &model.ProgressCounters{},
		state:    model.TaskQueued,
	}

	c.mu.Lock()
	c.tasks[e.id] = e
	c.mu.Unlock()

	if c.metrics != nil {
		c.metrics.TasksDispatched.WithLabelValues(string(kind)).Inc()
	}
	c.logger.Info("Task queued",
		zap.String("task_id", e.id),
		zap.String("kind", string(kind)),
		zap.String("album", params.Album))

	go c.run(e)
	return e.id, nil
}

func (c *Coordinator) run(e *entry) {
	e.setState(model.TaskRunning)
	start := time.Now()

	var err error
	switch e.kind {
	case model.TaskStore:
		err = c.runStore(e)
	case model.TaskSplit:
		err = c.runSplit(e)
	case model.TaskFill:
		err = c.runFill(e)
	case model.TaskCoalesce:
		err = c.runCoalesce(e)
	}

	duration := time.Since(start)
	state := model.TaskCompleted
	if err != nil {
		state = model.TaskFailed
		e.fail(err)
	} else {
		e.setState(model.TaskCompleted)
	}

	if c.metrics != nil {
		c.metrics.TasksCompleted.WithLabelValues(string(e.kind), string(state)).Inc()
		c.metrics.TaskDuration.WithLabelValues(string(e.kind)).Observe(duration.Seconds())
	}

	p := e.progress.Snapshot()
	c.logger.Info("Task finished",
		zap.String("task_id", e.id),
		zap.String("kind", string(e.kind)),
		zap.String("state", string(state)),
		zap.Duration("duration", duration),
		zap.Uint32("total", p.Total),
		zap.Uint32("completed", p.Completed),
		zap.Uint32("skipped", p.Skipped),
		zap.Uint32("failed", p.Failed),
		zap.Error(err))
}

// List returns snapshots of this node's tasks ordered by id.
func (c *Coordinator) List() []model.TaskStatus {
	c.mu.Lock()
	entries := make([]*entry, 0, len(c.tasks))
	for _, e := range c.tasks {
		entries = append(entries, e)
	}
	c.mu.Unlock()

	out := make([]model.TaskStatus, len(entries))
	for i, e := range entries {
		out[i] = e.snapshot(c.local.ID)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

// Show returns the snapshot of one task.
func (c *Coordinator) Show(id string) (model.TaskStatus, error) {
	c.mu.Lock()
	e, ok := c.tasks[id]
	c.mu.Unlock()
	if !ok {
		return model.TaskStatus{}, errdefs.TaskNotFound(id)
	}
	return e.snapshot(c.local.ID), nil
}

// Clear drops terminal tasks from the tracking set. Applied index and
// storage mutations are untouched.
func (c *Coordinator) Clear() int {
	c.mu.Lock()
	defer c.mu.Unlock()

	cleared := 0
	for id, e := range c.tasks {
		e.mu.Lock()
		terminal := e.state.Terminal()
		e.mu.Unlock()
		if terminal {
			delete(c.tasks, id)
			cleared++
		}
	}
	return cleared
}

// unitFailed counts a per-unit failure and keeps the task going.
func (c *Coordinator) unitFailed(e *entry, err error, fields ...zap.Field) {
	e.progress.Failed.Add(1)
	e.unitErr(err)
	if c.metrics != nil {
		c.metrics.TaskUnitsFailed.WithLabelValues(string(e.kind)).Inc()
	}
	c.logger.Warn("Task unit failed", append(fields,
		zap.String("task_id", e.id),
		zap.String("kind", string(e.kind)),
		zap.Error(err))...)
}

// unitSkipped counts a unit that produced no work, such as a fill group
// with no coverage improvement.
func (c *Coordinator) unitSkipped(e *entry, reason error) {
	e.progress.Skipped.Add(1)
	if reason != nil {
		if errdefs.GetCode(reason) == errdefs.CodeNoImprovementFromFill {
			e.unitErr(reason)
		}
		c.logger.Debug("Task unit skipped",
			zap.String("task_id", e.id),
			zap.Error(reason))
	}
}
