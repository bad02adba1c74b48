package ring

import (
	"fmt"
	"sort"

	"github.com/cespare/xxhash/v2"

	"github.com/tessera-io/tessera/internal/errdefs"
	"github.com/tessera-io/tessera/internal/model"
)

type tokenEntry struct {
	token  uint64
	nodeID uint32
}

// rebuildRing recomputes the sorted token ring from the membership table.
// Dead and suspected nodes keep their tokens: ownership is never migrated
// on node loss, lookups targeting a lost owner fail instead.
// Callers must hold m.mu.
func (m *Membership) rebuildRing() {
	m.ring = m.ring[:0]
	for _, entry := range m.members {
		for _, token := range entry.node.Tokens {
			m.ring = append(m.ring, tokenEntry{token: token, nodeID: entry.node.ID})
		}
	}
	sort.Slice(m.ring, func(i, j int) bool {
		return m.ring[i].token < m.ring[j].token
	})
	m.ringDirty = false
}

// HashKey maps a routing key into the token space.
func HashKey(key string) uint64 {
	return xxhash.Sum64String(key)
}

// DefaultTokens derives a deterministic token set for a node that has
// none configured. Every node must derive the same tokens for a given
// id, so the seed uses only the id and the vnode ordinal.
func DefaultTokens(nodeID uint32, count int) []uint64 {
	tokens := make([]uint64, count)
	for i := range tokens {
		tokens[i] = xxhash.Sum64String(fmt.Sprintf("node-%d-vnode-%d", nodeID, i))
	}
	return tokens
}

// OwnerOf resolves a routing key to the owning node: the node holding the
// first ring token greater than or equal to the key's hash, wrapping
// around to the minimum token. If the owner is not alive the node is
// still returned together with a NodeUnreachable error so callers can
// report the unreachable owner.
func (m *Membership) OwnerOf(key string) (model.Node, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.ringDirty {
		m.rebuildRing()
	}
	ring := m.ring

	if len(ring) == 0 {
		return model.Node{}, errdefs.Newf(errdefs.CodeUnresolvableToken,
			"token ring is empty, cannot resolve key %q", key)
	}

	hash := HashKey(key)
	idx := sort.Search(len(ring), func(i int) bool {
		return ring[i].token >= hash
	})
	if idx == len(ring) {
		idx = 0
	}

	entry, ok := m.members[ring[idx].nodeID]
	if !ok {
		return model.Node{}, errdefs.Newf(errdefs.CodeUnresolvableToken,
			"ring token %d names unknown node %d", ring[idx].token, ring[idx].nodeID)
	}

	node := entry.node
	if node.State != model.NodeAlive {
		return node, errdefs.NodeUnreachable(node.ID, string(node.State))
	}
	return node, nil
}

// OwnsLocally reports whether the local node owns the routing key,
// regardless of whether other owners are reachable.
func (m *Membership) OwnsLocally(key string) (bool, error) {
	node, err := m.OwnerOf(key)
	if err != nil && errdefs.GetCode(err) != errdefs.CodeNodeUnreachable {
		return false, err
	}
	return node.ID == m.localID, nil
}
