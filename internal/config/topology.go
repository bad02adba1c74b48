package config

import (
	"bufio"
	"fmt"
	"net"
	"os"
	"strconv"
	"strings"

	"github.com/tessera-io/tessera/internal/model"
)

// TopologyEntry is one node line from the cluster topology file.
type TopologyEntry struct {
	Node    model.Node
	DataDir string
}

// LoadTopology parses a line-oriented cluster topology file. Each node occupies
// one line:
//
//	ip_address gossip_port rpc_port xfer_port [-d data_dir] [-t token]...
//
// Blank lines and lines starting with '#' are skipped. Node ids are assigned by
// line position, starting at zero.
func LoadTopology(path string) ([]TopologyEntry, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open topology file: %w", err)
	}
	defer f.Close()

	var entries []TopologyEntry
	scanner := bufio.NewScanner(f)
	lineno := 0
	for scanner.Scan() {
		lineno++
		line := strings.TrimSpace(scanner.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}

		entry, err := parseTopologyLine(line, uint32(len(entries)))
		if err != nil {
			return nil, fmt.Errorf("topology line %d: %w", lineno, err)
		}
		entries = append(entries, entry)
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("failed to read topology file: %w", err)
	}
	if len(entries) == 0 {
		return nil, fmt.Errorf("topology file %s lists no nodes", path)
	}
	return entries, nil
}

func parseTopologyLine(line string, id uint32) (TopologyEntry, error) {
	fields := strings.Fields(line)
	if len(fields) < 4 {
		return TopologyEntry{}, fmt.Errorf("expected 'ip gossip_port rpc_port xfer_port [flags]', got %q", line)
	}
	if net.ParseIP(fields[0]) == nil {
		return TopologyEntry{}, fmt.Errorf("invalid ip address %q", fields[0])
	}

	ports := make([]uint16, 3)
	for i, name := range []string{"gossip_port", "rpc_port", "xfer_port"} {
		p, err := strconv.ParseUint(fields[i+1], 10, 16)
		if err != nil {
			return TopologyEntry{}, fmt.Errorf("invalid %s %q", name, fields[i+1])
		}
		ports[i] = uint16(p)
	}

	entry := TopologyEntry{
		Node: model.Node{
			ID:         id,
			Host:       fields[0],
			GossipPort: ports[0],
			RPCPort:    ports[1],
			XferPort:   ports[2],
			State:      model.NodeAlive,
		},
	}

	for i := 4; i < len(fields); i++ {
		switch fields[i] {
		case "-d":
			if i+1 >= len(fields) {
				return TopologyEntry{}, fmt.Errorf("-d requires a directory argument")
			}
			i++
			entry.DataDir = fields[i]
		case "-t":
			if i+1 >= len(fields) {
				return TopologyEntry{}, fmt.Errorf("-t requires a token argument")
			}
			i++
			token, err := strconv.ParseUint(fields[i], 10, 64)
			if err != nil {
				return TopologyEntry{}, fmt.Errorf("invalid token %q", fields[i])
			}
			entry.Node.Tokens = append(entry.Node.Tokens, token)
		default:
			return TopologyEntry{}, fmt.Errorf("unknown flag %q", fields[i])
		}
	}
	return entry, nil
}

// FindLocal locates the topology entry matching the local server configuration
// by gossip address.
func FindLocal(entries []TopologyEntry, server ServerConfig) (TopologyEntry, error) {
	for _, e := range entries {
		if e.Node.Host == server.Host && e.Node.GossipPort == server.GossipPort {
			return e, nil
		}
	}
	return TopologyEntry{}, fmt.Errorf("no topology entry matches %s:%d", server.Host, server.GossipPort)
}
