package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tessera-io/tessera/internal/model"
)

func nodeAt(host string, gossipPort uint16) model.Node {
	return model.Node{Host: host, GossipPort: gossipPort, State: model.NodeAlive}
}

func writeFile(t *testing.T, name, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

func TestLoadDefaults(t *testing.T) {
	path := writeFile(t, "config.yaml", `
server:
  node_id: 2
cluster:
  topology_file: /etc/tessera/topology
`)

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, uint32(2), cfg.Server.NodeID)
	assert.Equal(t, "127.0.0.1", cfg.Server.Host)
	assert.Equal(t, uint16(15605), cfg.Server.GossipPort)
	assert.Equal(t, uint16(15606), cfg.Server.RPCPort)
	assert.Equal(t, uint16(15607), cfg.Server.XferPort)
	assert.Equal(t, "/var/lib/tessera", cfg.Storage.DataDir)
	assert.Equal(t, "/var/lib/tessera/staging", cfg.Storage.StagingDir)
	assert.Equal(t, 5*time.Second, cfg.Cluster.SuspectTimeout.Std())
	assert.Equal(t, 30*time.Second, cfg.Cluster.DeadTimeout.Std())
	assert.Equal(t, "/metrics", cfg.Metrics.Path)
	assert.Equal(t, "info", cfg.Logging.Level)
}

func TestLoadExplicitValues(t *testing.T) {
	path := writeFile(t, "config.yaml", `
server:
  node_id: 0
  host: 10.0.0.5
  gossip_port: 7000
  rpc_port: 7001
  xfer_port: 7002
storage:
  data_dir: /data/tessera
cluster:
  topology_file: /data/topology
  suspect_timeout: 2s
  dead_timeout: 20s
logging:
  level: debug
`)

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, "10.0.0.5", cfg.Server.Host)
	assert.Equal(t, uint16(7000), cfg.Server.GossipPort)
	assert.Equal(t, "/data/tessera", cfg.Storage.DataDir)
	assert.Equal(t, "/data/tessera/staging", cfg.Storage.StagingDir)
	assert.Equal(t, 2*time.Second, cfg.Cluster.SuspectTimeout.Std())
	assert.Equal(t, "debug", cfg.Logging.Level)
}

func TestLoadRejectsInvalid(t *testing.T) {
	tests := []struct {
		name string
		yaml string
	}{
		{
			name: "missing topology file",
			yaml: "server:\n  node_id: 0\n",
		},
		{
			name: "duplicate ports",
			yaml: `
server:
  gossip_port: 7000
  rpc_port: 7000
cluster:
  topology_file: /etc/tessera/topology
`,
		},
		{
			name: "dead timeout not after suspect timeout",
			yaml: `
cluster:
  topology_file: /etc/tessera/topology
  suspect_timeout: 10s
  dead_timeout: 10s
`,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Load(writeFile(t, "config.yaml", tt.yaml))
			assert.Error(t, err)
		})
	}
}

func TestLoadTopology(t *testing.T) {
	path := writeFile(t, "topology", `
# three node cluster
127.0.0.1 15605 15606 15607 -d /data/n0 -t 0 -t 6148914691236517205
127.0.0.1 15615 15616 15617 -t 3074457345618258602
10.0.0.7 15605 15606 15607
`)

	entries, err := LoadTopology(path)
	require.NoError(t, err)
	require.Len(t, entries, 3)

	assert.Equal(t, uint32(0), entries[0].Node.ID)
	assert.Equal(t, "/data/n0", entries[0].DataDir)
	assert.Equal(t, []uint64{0, 6148914691236517205}, entries[0].Node.Tokens)

	assert.Equal(t, uint32(1), entries[1].Node.ID)
	assert.Equal(t, uint16(15615), entries[1].Node.GossipPort)
	assert.Equal(t, []uint64{3074457345618258602}, entries[1].Node.Tokens)

	assert.Equal(t, uint32(2), entries[2].Node.ID)
	assert.Equal(t, "10.0.0.7", entries[2].Node.Host)
	assert.Empty(t, entries[2].Node.Tokens)
}

func TestLoadTopologyRejectsMalformed(t *testing.T) {
	tests := []struct {
		name string
		line string
	}{
		{"too few fields", "127.0.0.1 15605 15606"},
		{"bad ip", "localhost 15605 15606 15607"},
		{"bad port", "127.0.0.1 99999 15606 15607"},
		{"bad token", "127.0.0.1 15605 15606 15607 -t abc"},
		{"dangling flag", "127.0.0.1 15605 15606 15607 -t"},
		{"unknown flag", "127.0.0.1 15605 15606 15607 -x 1"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := LoadTopology(writeFile(t, "topology", tt.line+"\n"))
			assert.Error(t, err)
		})
	}
}

func TestLoadTopologyEmpty(t *testing.T) {
	_, err := LoadTopology(writeFile(t, "topology", "# comment only\n"))
	assert.Error(t, err)
}

func TestFindLocal(t *testing.T) {
	entries := []TopologyEntry{
		{Node: nodeAt("10.0.0.1", 15605)},
		{Node: nodeAt("10.0.0.2", 15605)},
	}
	entries[1].Node.ID = 1

	e, err := FindLocal(entries, ServerConfig{Host: "10.0.0.2", GossipPort: 15605})
	require.NoError(t, err)
	assert.Equal(t, uint32(1), e.Node.ID)

	_, err = FindLocal(entries, ServerConfig{Host: "10.0.0.3", GossipPort: 15605})
	assert.Error(t, err)
}
