// Package ring maintains the gossip-replicated cluster membership view
// and resolves routing keys to owning nodes over a token ring.
package ring

import (
	"sort"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/tessera-io/tessera/internal/model"
)

// Config holds the failure-detection thresholds of the membership table.
type Config struct {
	// SuspectTimeout is how long a node may stay silent before it is
	// marked suspected.
	SuspectTimeout time.Duration
	// DeadTimeout is how long a suspected node may stay silent before
	// it is marked dead. Measured from last contact, not from the
	// suspicion transition.
	DeadTimeout time.Duration
}

// DefaultConfig returns the thresholds used when none are configured.
func DefaultConfig() Config {
	return Config{
		SuspectTimeout: 5 * time.Second,
		DeadTimeout:    30 * time.Second,
	}
}

type member struct {
	node     model.Node
	lastSeen time.Time
}

// Membership is the local node's view of the cluster: one entry per known
// node with liveness driven by an incarnation counter and silence
// timeouts. All updates flow through Merge and Tick so that failure
// detection stays deterministic.
type Membership struct {
	mu      sync.RWMutex
	localID uint32
	members map[uint32]*member
	cfg     Config
	logger  *zap.Logger

	// now is injectable for tests.
	now func() time.Time

	// token ring cache, rebuilt when membership changes.
	ring      []tokenEntry
	ringDirty bool
}

// NewMembership creates a membership table seeded with the local node.
func NewMembership(local model.Node, cfg Config, logger *zap.Logger) *Membership {
	if logger == nil {
		logger = zap.NewNop()
	}
	local.State = model.NodeAlive
	m := &Membership{
		localID:   local.ID,
		members:   make(map[uint32]*member),
		cfg:       cfg,
		logger:    logger,
		now:       time.Now,
		ringDirty: true,
	}
	m.members[local.ID] = &member{node: local, lastSeen: m.now()}
	return m
}

// SetClock replaces the time source. Tests use this to drive the
// suspicion state machine deterministically.
func (m *Membership) SetClock(now func() time.Time) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.now = now
}

// LocalID returns the local node's ordinal.
func (m *Membership) LocalID() uint32 {
	return m.localID
}

// Local returns a copy of the local node entry.
func (m *Membership) Local() model.Node {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.members[m.localID].node
}

// Merge applies a remotely observed node entry. Higher incarnations win
// outright; within the same incarnation a worse liveness state overrides
// a better one. A remote claim that the local node is suspected or dead
// is refuted by bumping the local incarnation.
func (m *Membership) Merge(remote model.Node) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if remote.ID == m.localID {
		local := m.members[m.localID]
		if remote.Incarnation >= local.node.Incarnation &&
			remote.State != model.NodeAlive {
			local.node.Incarnation = remote.Incarnation + 1
			m.logger.Info("refuted remote suspicion",
				zap.Uint32("node_id", m.localID),
				zap.Uint64("incarnation", local.node.Incarnation))
		}
		return
	}

	existing, ok := m.members[remote.ID]
	if !ok {
		if remote.State == "" {
			remote.State = model.NodeAlive
		}
		m.members[remote.ID] = &member{node: remote, lastSeen: m.now()}
		m.ringDirty = true
		m.logger.Info("node joined membership",
			zap.Uint32("node_id", remote.ID),
			zap.String("addr", remote.GossipAddr()),
			zap.Int("tokens", len(remote.Tokens)))
		return
	}

	switch {
	case remote.Incarnation > existing.node.Incarnation:
		prev := existing.node.State
		existing.node = remote
		existing.lastSeen = m.now()
		if prev != remote.State {
			m.ringDirty = true
		}
	case remote.Incarnation == existing.node.Incarnation:
		if stateRank(remote.State) > stateRank(existing.node.State) {
			existing.node.State = remote.State
			m.ringDirty = true
		} else if remote.State == model.NodeAlive &&
			existing.node.State == model.NodeAlive {
			existing.lastSeen = m.now()
		}
	}
}

// Observe records direct contact with a node, resetting its silence
// timer. Contact does not resurrect a dead node; only a Merge with a
// higher incarnation does.
func (m *Membership) Observe(nodeID uint32) {
	m.mu.Lock()
	defer m.mu.Unlock()

	entry, ok := m.members[nodeID]
	if !ok || entry.node.State == model.NodeDead {
		return
	}
	entry.lastSeen = m.now()
	if entry.node.State == model.NodeSuspected {
		entry.node.State = model.NodeAlive
		m.ringDirty = true
	}
}

// Tick advances the suspicion state machine: alive nodes silent past
// SuspectTimeout become suspected, suspected nodes silent past
// DeadTimeout become dead. The local node never times out.
func (m *Membership) Tick() {
	m.mu.Lock()
	defer m.mu.Unlock()

	now := m.now()
	for id, entry := range m.members {
		if id == m.localID {
			continue
		}
		silent := now.Sub(entry.lastSeen)
		switch entry.node.State {
		case model.NodeAlive:
			if silent >= m.cfg.SuspectTimeout {
				entry.node.State = model.NodeSuspected
				m.ringDirty = true
				m.logger.Warn("node suspected",
					zap.Uint32("node_id", id),
					zap.Duration("silent", silent))
			}
		case model.NodeSuspected:
			if silent >= m.cfg.DeadTimeout {
				entry.node.State = model.NodeDead
				m.ringDirty = true
				m.logger.Warn("node dead",
					zap.Uint32("node_id", id),
					zap.Duration("silent", silent))
			}
		}
	}
}

// Snapshot returns all known nodes ordered by node id.
func (m *Membership) Snapshot() []model.Node {
	m.mu.RLock()
	defer m.mu.RUnlock()

	nodes := make([]model.Node, 0, len(m.members))
	for _, entry := range m.members {
		nodes = append(nodes, entry.node)
	}
	sort.Slice(nodes, func(i, j int) bool { return nodes[i].ID < nodes[j].ID })
	return nodes
}

// LiveNodes returns the alive nodes ordered by node id, used for task
// fan-out.
func (m *Membership) LiveNodes() []model.Node {
	nodes := m.Snapshot()
	live := nodes[:0]
	for _, n := range nodes {
		if n.State == model.NodeAlive {
			live = append(live, n)
		}
	}
	return live
}

// stateRank orders liveness states by badness for same-incarnation merges.
func stateRank(s model.NodeState) int {
	switch s {
	case model.NodeAlive:
		return 0
	case model.NodeSuspected:
		return 1
	case model.NodeDead:
		return 2
	default:
		return -1
	}
}
