package model

import "sync/atomic"

// TaskKind identifies one of the dataspace-reshaping operations.
type TaskKind string

const (
	TaskStore    TaskKind = "store"
	TaskSplit    TaskKind = "split"
	TaskFill     TaskKind = "fill"
	TaskCoalesce TaskKind = "coalesce"
)

// TaskState is the lifecycle state of a per-node task.
type TaskState string

const (
	TaskQueued    TaskState = "queued"
	TaskRunning   TaskState = "running"
	TaskCompleted TaskState = "completed"
	TaskFailed    TaskState = "failed"
)

// Terminal reports whether the state is completed or failed.
func (s TaskState) Terminal() bool {
	return s == TaskCompleted || s == TaskFailed
}

// TaskParams carries the parameters of a dispatched task. Fields are
// interpreted per kind; unused fields are ignored.
type TaskParams struct {
	Album       string `json:"album"`
	Filter      Filter `json:"filter"`
	ThreadCount int    `json:"thread_count"`

	// store
	Glob      string `json:"glob,omitempty"`
	Format    string `json:"format,omitempty"`
	Precision int    `json:"precision,omitempty"`

	// split: target precision strictly greater than the stored one.
	TargetPrecision int `json:"target_precision,omitempty"`

	// fill and coalesce: timestamps within this window are grouped.
	WindowSeconds int64 `json:"window_seconds,omitempty"`

	// coalesce
	SourcePlatform string `json:"source_platform,omitempty"`
}

// TaskProgress tracks per-unit outcomes of a running task. Counters are
// updated atomically by worker goroutines.
type TaskProgress struct {
	Total     uint32 `json:"total"`
	Completed uint32 `json:"completed"`
	Skipped   uint32 `json:"skipped"`
	Failed    uint32 `json:"failed"`
}

// TaskStatus is a point-in-time snapshot of a task.
type TaskStatus struct {
	ID        string       `json:"id"`
	Kind      TaskKind     `json:"kind"`
	NodeID    uint32       `json:"node_id"`
	Params    TaskParams   `json:"params"`
	State     TaskState    `json:"state"`
	Progress  TaskProgress `json:"progress"`
	LastError string       `json:"last_error,omitempty"`
}

// ProgressCounters is the live, shared counter set behind a TaskStatus.
type ProgressCounters struct {
	Total     atomic.Uint32
	Completed atomic.Uint32
	Skipped   atomic.Uint32
	Failed    atomic.Uint32
}

// Snapshot copies the counters into a TaskProgress value.
func (p *ProgressCounters) Snapshot() TaskProgress {
	return TaskProgress{
		Total:     p.Total.Load(),
		Completed: p.Completed.Load(),
		Skipped:   p.Skipped.Load(),
		Failed:    p.Failed.Load(),
	}
}
