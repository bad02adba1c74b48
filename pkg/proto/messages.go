// Package proto defines the RPC surface shared by the daemon, the CLI,
// and node-to-node calls: message types, service descriptors, and the
// wire codec. Messages travel as JSON frames inside gRPC.
package proto

import (
	"github.com/tessera-io/tessera/internal/model"
)

// AlbumCreateRequest creates an album cluster-wide.
type AlbumCreateRequest struct {
	Name      string `json:"name"`
	Geocode   string `json:"geocode"`
	KeyLength int    `json:"key_length"`
	// Propagate is set on the originating call; nodes clear it before
	// forwarding so a broadcast never loops.
	Propagate bool `json:"propagate"`
}

// AlbumCreateResponse returns the created album.
type AlbumCreateResponse struct {
	Album model.Album `json:"album"`
}

// AlbumOpenRequest builds the album's spatial index on the receiving
// node (and, when Propagate is set, on every live node).
type AlbumOpenRequest struct {
	Name      string `json:"name"`
	Propagate bool   `json:"propagate"`
}

// AlbumOpenResponse reports the number of locally indexed records.
type AlbumOpenResponse struct {
	Records int `json:"records"`
}

// AlbumCloseRequest discards the album's spatial index.
type AlbumCloseRequest struct {
	Name      string `json:"name"`
	Propagate bool   `json:"propagate"`
}

// AlbumCloseResponse is empty.
type AlbumCloseResponse struct{}

// AlbumListRequest lists albums known to the receiving node.
type AlbumListRequest struct{}

// AlbumListResponse returns albums ordered by name.
type AlbumListResponse struct {
	Albums []model.Album `json:"albums"`
}

// NodeListRequest lists the cluster membership as seen by the receiving
// node.
type NodeListRequest struct{}

// NodeListResponse returns nodes ordered by node id.
type NodeListResponse struct {
	Nodes []model.Node `json:"nodes"`
}

// SearchRequest aggregates index counts by truncated geocode prefix.
// When Broadcast is set the receiving node also queries every other live
// node and merges the results.
type SearchRequest struct {
	Album     string       `json:"album"`
	Filter    model.Filter `json:"filter"`
	Broadcast bool         `json:"broadcast"`
}

// SearchResponse returns aggregated extents.
type SearchResponse struct {
	Extents []model.Extent `json:"extents"`
}

// ListRequest lists image records matching a filter, with the same
// Broadcast semantics as SearchRequest.
type ListRequest struct {
	Album     string       `json:"album"`
	Filter    model.Filter `json:"filter"`
	Broadcast bool         `json:"broadcast"`
}

// ListResponse returns matching image records.
type ListResponse struct {
	Records []*model.ImageRecord `json:"records"`
}

// TaskDispatchRequest starts a task. When Propagate is set the receiving
// node fans the task out to every live node (except for store, which
// always runs only where the staged files are).
type TaskDispatchRequest struct {
	Kind      model.TaskKind   `json:"kind"`
	Params    model.TaskParams `json:"params"`
	Propagate bool             `json:"propagate"`
}

// NodeTask names the per-node task spawned by a dispatch, or the error
// that prevented it.
type NodeTask struct {
	NodeID uint32 `json:"node_id"`
	TaskID string `json:"task_id,omitempty"`
	Error  string `json:"error,omitempty"`
}

// TaskDispatchResponse returns one entry per node the dispatch reached.
type TaskDispatchResponse struct {
	Tasks []NodeTask `json:"tasks"`
}

// TaskListRequest lists tasks on the receiving node.
type TaskListRequest struct {
	Propagate bool `json:"propagate"`
}

// TaskListResponse returns task snapshots.
type TaskListResponse struct {
	Tasks []model.TaskStatus `json:"tasks"`
}

// TaskShowRequest fetches one task by id.
type TaskShowRequest struct {
	ID string `json:"id"`
}

// TaskShowResponse returns the task snapshot.
type TaskShowResponse struct {
	Task model.TaskStatus `json:"task"`
}

// TaskClearRequest removes terminal tasks from the registry.
type TaskClearRequest struct {
	Propagate bool `json:"propagate"`
}

// TaskClearResponse reports how many tasks were removed.
type TaskClearResponse struct {
	Cleared int `json:"cleared"`
}
