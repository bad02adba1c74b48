package model

import "fmt"

// NodeState is the liveness state of a cluster node as observed by the
// local membership table.
type NodeState string

const (
	// NodeAlive indicates the node is gossiping normally.
	NodeAlive NodeState = "alive"
	// NodeSuspected indicates the node has been silent past the
	// suspicion threshold but is not yet considered dead.
	NodeSuspected NodeState = "suspected"
	// NodeDead indicates the node has been silent past the death
	// threshold. Its ring ranges are not reassigned.
	NodeDead NodeState = "dead"
)

// Node is one member of the cluster. Tokens are fixed at node startup and
// define the key-space intervals the node owns.
type Node struct {
	ID          uint32    `json:"id"`
	Host        string    `json:"host"`
	GossipPort  uint16    `json:"gossip_port"`
	RPCPort     uint16    `json:"rpc_port"`
	XferPort    uint16    `json:"xfer_port"`
	Tokens      []uint64  `json:"tokens"`
	State       NodeState `json:"state"`
	Incarnation uint64    `json:"incarnation"`
}

// GossipAddr returns the host:port address of the node's gossip listener.
func (n *Node) GossipAddr() string {
	return fmt.Sprintf("%s:%d", n.Host, n.GossipPort)
}

// RPCAddr returns the host:port address of the node's RPC listener.
func (n *Node) RPCAddr() string {
	return fmt.Sprintf("%s:%d", n.Host, n.RPCPort)
}

// XferAddr returns the host:port address of the node's transfer listener.
func (n *Node) XferAddr() string {
	return fmt.Sprintf("%s:%d", n.Host, n.XferPort)
}
