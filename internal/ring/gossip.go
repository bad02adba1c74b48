package ring

import (
	"encoding/json"
	"fmt"
	"strconv"
	"time"

	"github.com/hashicorp/memberlist"
	"go.uber.org/zap"

	"github.com/tessera-io/tessera/internal/model"
)

// GossipConfig holds gossip protocol configuration.
type GossipConfig struct {
	BindAddr       string
	BindPort       int
	Seeds          []string
	GossipInterval time.Duration
	ProbeInterval  time.Duration
	ProbeTimeout   time.Duration
	TickInterval   time.Duration
}

// Gossip replicates the membership table across the cluster using
// memberlist as transport. Node tokens, ports and incarnation travel in
// the member metadata; full-state exchange happens on push/pull.
type Gossip struct {
	membership *Membership
	memberlist *memberlist.Memberlist
	logger     *zap.Logger
	stopChan   chan struct{}
}

// NewGossip starts the gossip layer for the local node and joins the
// given seed addresses.
func NewGossip(m *Membership, cfg *GossipConfig, logger *zap.Logger) (*Gossip, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	g := &Gossip{
		membership: m,
		logger:     logger,
		stopChan:   make(chan struct{}),
	}

	mlConfig := memberlist.DefaultLANConfig()
	mlConfig.Name = strconv.FormatUint(uint64(m.LocalID()), 10)
	mlConfig.BindAddr = cfg.BindAddr
	mlConfig.BindPort = cfg.BindPort
	mlConfig.AdvertisePort = cfg.BindPort
	if cfg.GossipInterval > 0 {
		mlConfig.GossipInterval = cfg.GossipInterval
	}
	if cfg.ProbeInterval > 0 {
		mlConfig.ProbeInterval = cfg.ProbeInterval
	}
	if cfg.ProbeTimeout > 0 {
		mlConfig.ProbeTimeout = cfg.ProbeTimeout
	}
	mlConfig.Delegate = g
	mlConfig.Events = &gossipEvents{gossip: g}
	mlConfig.LogOutput = zapLogWriter{logger: logger}

	ml, err := memberlist.Create(mlConfig)
	if err != nil {
		return nil, fmt.Errorf("failed to create memberlist: %w", err)
	}
	g.memberlist = ml

	if len(cfg.Seeds) > 0 {
		if _, err := ml.Join(cfg.Seeds); err != nil {
			logger.Warn("failed to join some seed nodes", zap.Error(err))
		}
	}

	tick := cfg.TickInterval
	if tick <= 0 {
		tick = time.Second
	}
	go g.tickLoop(tick)

	return g, nil
}

// tickLoop drives the suspicion state machine.
func (g *Gossip) tickLoop(interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-g.stopChan:
			return
		case <-ticker.C:
			g.membership.Tick()
		}
	}
}

// Shutdown leaves the cluster and stops background loops.
func (g *Gossip) Shutdown() error {
	close(g.stopChan)
	return g.memberlist.Shutdown()
}

// NodeMeta implements memberlist.Delegate.
func (g *Gossip) NodeMeta(limit int) []byte {
	data, err := json.Marshal(g.membership.Local())
	if err != nil || len(data) > limit {
		g.logger.Warn("node meta does not fit gossip limit",
			zap.Int("size", len(data)), zap.Int("limit", limit))
		return nil
	}
	return data
}

// NotifyMsg implements memberlist.Delegate.
func (g *Gossip) NotifyMsg(data []byte) {
	var node model.Node
	if err := json.Unmarshal(data, &node); err != nil {
		g.logger.Warn("failed to unmarshal gossip message", zap.Error(err))
		return
	}
	g.membership.Merge(node)
}

// GetBroadcasts implements memberlist.Delegate.
func (g *Gossip) GetBroadcasts(overhead, limit int) [][]byte {
	return nil
}

// LocalState implements memberlist.Delegate. The full membership table is
// exchanged on push/pull so that late joiners converge in one round.
func (g *Gossip) LocalState(join bool) []byte {
	data, _ := json.Marshal(g.membership.Snapshot())
	return data
}

// MergeRemoteState implements memberlist.Delegate.
func (g *Gossip) MergeRemoteState(buf []byte, join bool) {
	var nodes []model.Node
	if err := json.Unmarshal(buf, &nodes); err != nil {
		g.logger.Warn("failed to unmarshal remote state", zap.Error(err))
		return
	}
	for _, node := range nodes {
		g.membership.Merge(node)
	}
}

// gossipEvents feeds memberlist liveness events into the membership table.
type gossipEvents struct {
	gossip *Gossip
}

// NotifyJoin is called when a node joins.
func (d *gossipEvents) NotifyJoin(node *memberlist.Node) {
	d.gossip.mergeMeta(node)
}

// NotifyUpdate is called when a node's metadata changes.
func (d *gossipEvents) NotifyUpdate(node *memberlist.Node) {
	d.gossip.mergeMeta(node)
}

// NotifyLeave is called when a node leaves or fails probing. The entry is
// marked suspected at its current incarnation; the silence timeouts take
// it the rest of the way to dead.
func (d *gossipEvents) NotifyLeave(node *memberlist.Node) {
	var n model.Node
	if err := json.Unmarshal(node.Meta, &n); err != nil {
		d.gossip.logger.Warn("failed to unmarshal leaving node meta",
			zap.String("name", node.Name), zap.Error(err))
		return
	}
	n.State = model.NodeSuspected
	d.gossip.membership.Merge(n)
}

func (g *Gossip) mergeMeta(node *memberlist.Node) {
	if len(node.Meta) == 0 {
		return
	}
	var n model.Node
	if err := json.Unmarshal(node.Meta, &n); err != nil {
		g.logger.Warn("failed to unmarshal node meta",
			zap.String("name", node.Name), zap.Error(err))
		return
	}
	n.State = model.NodeAlive
	g.membership.Merge(n)
	g.membership.Observe(n.ID)
}

// zapLogWriter adapts memberlist's log output onto zap.
type zapLogWriter struct {
	logger *zap.Logger
}

func (w zapLogWriter) Write(p []byte) (int, error) {
	w.logger.Debug("memberlist", zap.ByteString("msg", p))
	return len(p), nil
}
