package ring

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tessera-io/tessera/internal/errdefs"
	"github.com/tessera-io/tessera/internal/model"
)

func testNode(id uint32, tokens ...uint64) model.Node {
	return model.Node{
		ID:         id,
		Host:       "127.0.0.1",
		GossipPort: uint16(15605 + id),
		RPCPort:    uint16(15705 + id),
		XferPort:   uint16(15805 + id),
		Tokens:     tokens,
		State:      model.NodeAlive,
	}
}

// fakeClock drives the suspicion state machine deterministically.
type fakeClock struct {
	t time.Time
}

func (c *fakeClock) now() time.Time          { return c.t }
func (c *fakeClock) advance(d time.Duration) { c.t = c.t.Add(d) }

func newTestMembership(t *testing.T) (*Membership, *fakeClock) {
	t.Helper()
	clock := &fakeClock{t: time.Unix(1000, 0)}
	m := NewMembership(testNode(0, 100), DefaultConfig(), nil)
	m.SetClock(clock.now)
	return m, clock
}

func TestMergeAddsNodes(t *testing.T) {
	m, _ := newTestMembership(t)
	m.Merge(testNode(1, 200))
	m.Merge(testNode(2, 300))

	nodes := m.Snapshot()
	require.Len(t, nodes, 3)
	assert.Equal(t, uint32(0), nodes[0].ID)
	assert.Equal(t, uint32(1), nodes[1].ID)
	assert.Equal(t, uint32(2), nodes[2].ID)
}

func TestSuspicionStateMachine(t *testing.T) {
	m, clock := newTestMembership(t)
	m.Merge(testNode(1, 200))

	// silent past the suspect threshold
	clock.advance(6 * time.Second)
	m.Tick()
	nodes := m.Snapshot()
	assert.Equal(t, model.NodeSuspected, nodes[1].State)
	assert.Len(t, m.LiveNodes(), 1, "suspected node must not be live")

	// contact clears suspicion
	m.Observe(1)
	m.Tick()
	assert.Equal(t, model.NodeAlive, m.Snapshot()[1].State)

	// silence all the way to dead
	clock.advance(6 * time.Second)
	m.Tick()
	clock.advance(31 * time.Second)
	m.Tick()
	assert.Equal(t, model.NodeDead, m.Snapshot()[1].State)

	// contact does not resurrect a dead node
	m.Observe(1)
	assert.Equal(t, model.NodeDead, m.Snapshot()[1].State)
}

func TestMergeIncarnationRules(t *testing.T) {
	m, _ := newTestMembership(t)
	n := testNode(1, 200)
	m.Merge(n)

	// same incarnation, worse state wins
	suspected := n
	suspected.State = model.NodeSuspected
	m.Merge(suspected)
	assert.Equal(t, model.NodeSuspected, m.Snapshot()[1].State)

	// same incarnation, better state does not override
	m.Merge(n)
	assert.Equal(t, model.NodeSuspected, m.Snapshot()[1].State)

	// higher incarnation resurrects
	revived := n
	revived.Incarnation = 1
	m.Merge(revived)
	assert.Equal(t, model.NodeAlive, m.Snapshot()[1].State)
}

func TestRefuteRemoteSuspicion(t *testing.T) {
	m, _ := newTestMembership(t)

	claim := testNode(0, 100)
	claim.State = model.NodeSuspected
	m.Merge(claim)

	local := m.Local()
	assert.Equal(t, model.NodeAlive, local.State)
	assert.Equal(t, uint64(1), local.Incarnation)
}

func TestLocalNodeNeverTimesOut(t *testing.T) {
	m, clock := newTestMembership(t)
	clock.advance(time.Hour)
	m.Tick()
	assert.Equal(t, model.NodeAlive, m.Local().State)
}

func TestOwnerOfSuccessorAndWraparound(t *testing.T) {
	m := NewMembership(testNode(0, 1000), DefaultConfig(), nil)
	m.Merge(testNode(1, 2000))

	// keys hash somewhere in the uint64 space; with tokens 1000 and
	// 2000 nearly every hash wraps around to node 0's minimum token
	var sawWraparound bool
	for _, key := range []string{"0123", "01", "9xj", "u4pru"} {
		node, err := m.OwnerOf(key)
		require.NoError(t, err)
		if HashKey(key) > 2000 {
			assert.Equal(t, uint32(0), node.ID, "expected wraparound to minimum token")
			sawWraparound = true
		}
	}
	assert.True(t, sawWraparound)
}

func TestOwnerOfDistributesByToken(t *testing.T) {
	m := NewMembership(testNode(0, 0x4000000000000000), DefaultConfig(), nil)
	m.Merge(testNode(1, 0xC000000000000000))

	// find keys landing on each side of the ring
	owners := map[uint32]bool{}
	for _, key := range []string{"a", "b", "c", "d", "e", "f", "g", "h"} {
		node, err := m.OwnerOf(key)
		require.NoError(t, err)
		owners[node.ID] = true
	}
	assert.True(t, owners[0])
	assert.True(t, owners[1])
}

func TestOwnerOfDeadNodeUnreachable(t *testing.T) {
	clock := &fakeClock{t: time.Unix(1000, 0)}
	m := NewMembership(testNode(0, 0x4000000000000000), DefaultConfig(), nil)
	m.SetClock(clock.now)
	m.Merge(testNode(1, 0xC000000000000000))

	// find a key owned by node 1
	var key string
	for _, k := range []string{"a", "b", "c", "d", "e", "f", "g", "h"} {
		if n, err := m.OwnerOf(k); err == nil && n.ID == 1 {
			key = k
			break
		}
	}
	require.NotEmpty(t, key)

	// kill node 1; ownership must not migrate
	clock.advance(6 * time.Second)
	m.Tick()
	clock.advance(31 * time.Second)
	m.Tick()

	node, err := m.OwnerOf(key)
	require.Error(t, err)
	assert.Equal(t, errdefs.CodeNodeUnreachable, errdefs.GetCode(err))
	assert.Equal(t, uint32(1), node.ID)
}

func TestOwnerOfEmptyRing(t *testing.T) {
	m := NewMembership(testNode(0), DefaultConfig(), nil)
	_, err := m.OwnerOf("0123")
	require.Error(t, err)
	assert.Equal(t, errdefs.CodeUnresolvableToken, errdefs.GetCode(err))
}

func TestOwnsLocally(t *testing.T) {
	m := NewMembership(testNode(0, 0x4000000000000000), DefaultConfig(), nil)
	owned, err := m.OwnsLocally("anything")
	require.NoError(t, err)
	assert.True(t, owned, "single node owns the whole key space")
}

func TestDefaultTokensDeterministic(t *testing.T) {
	a := DefaultTokens(3, 16)
	b := DefaultTokens(3, 16)
	require.Len(t, a, 16)
	assert.Equal(t, a, b, "same id must derive the same tokens")
	assert.NotEqual(t, a, DefaultTokens(4, 16), "distinct ids must derive distinct tokens")
}
