package flow

import (
	"encoding/json"
	"fmt"
)

// Status is the lifecycle state of a flow definition.
type Status string

const (
	StatusDraft    Status = "draft"
	StatusActive   Status = "active"
	StatusArchived Status = "archived"
)

// EdgeLabel tags an outgoing edge for routing. Most nodes carry a single
// unlabeled edge; condition and webhook nodes route by label.
type EdgeLabel string

const (
	EdgeDefault EdgeLabel = ""
	EdgeTrue    EdgeLabel = "true"
	EdgeFalse   EdgeLabel = "false"
	EdgeError   EdgeLabel = "error"
)

// Edge is a directed, optionally labeled connection between two nodes.
type Edge struct {
	ID     string    `json:"id"`
	Source string    `json:"source"`
	Target string    `json:"target"`
	Label  EdgeLabel `json:"label,omitempty"`
}

// Node is one typed step in a flow.
type Node struct {
	ID     string     `json:"id"`
	Type   NodeType   `json:"type"`
	Config NodeConfig `json:"-"`

	// RawConfig preserves the stored JSON for round-tripping to the editor.
	RawConfig json.RawMessage `json:"config,omitempty"`
}

// Definition is the versioned dialogue graph authored for a bot. It is
// immutable once loaded; the engine never mutates it.
type Definition struct {
	ID      string  `json:"id"`
	BotID   string  `json:"botId"`
	Version int     `json:"version"`
	Status  Status  `json:"status"`
	Nodes   []*Node `json:"nodes"`
	Edges   []*Edge `json:"edges"`

	nodesByID map[string]*Node
	outgoing  map[string][]*Edge
}

// ParseDefinition decodes a stored flow definition, decoding each node's
// typed config and building lookup indexes.
func ParseDefinition(data []byte) (*Definition, error) {
	var def Definition
	if err := json.Unmarshal(data, &def); err != nil {
		return nil, fmt.Errorf("failed to parse flow definition: %w", err)
	}
	for _, node := range def.Nodes {
		cfg, err := DecodeConfig(node.Type, node.RawConfig)
		if err != nil {
			return nil, fmt.Errorf("node %s: %w", node.ID, err)
		}
		node.Config = cfg
	}
	def.buildIndexes()
	return &def, nil
}

// NewDefinition builds a definition from already-typed nodes, primarily for
// construction in tests and fixtures.
func NewDefinition(id, botID string, nodes []*Node, edges []*Edge) *Definition {
	def := &Definition{
		ID:     id,
		BotID:  botID,
		Status: StatusActive,
		Nodes:  nodes,
		Edges:  edges,
	}
	def.buildIndexes()
	return def
}

func (d *Definition) buildIndexes() {
	d.nodesByID = make(map[string]*Node, len(d.Nodes))
	for _, node := range d.Nodes {
		d.nodesByID[node.ID] = node
	}
	d.outgoing = make(map[string][]*Edge)
	for _, edge := range d.Edges {
		d.outgoing[edge.Source] = append(d.outgoing[edge.Source], edge)
	}
}

// Node returns a node by ID.
func (d *Definition) Node(id string) (*Node, bool) {
	node, ok := d.nodesByID[id]
	return node, ok
}

// StartNode returns the flow's single start node.
func (d *Definition) StartNode() (*Node, bool) {
	for _, node := range d.Nodes {
		if node.Type == NodeStart {
			return node, true
		}
	}
	return nil, false
}

// OutgoingEdges returns all edges leaving a node.
func (d *Definition) OutgoingEdges(nodeID string) []*Edge {
	return d.outgoing[nodeID]
}

// EdgeByLabel returns the outgoing edge with the given label, if any.
func (d *Definition) EdgeByLabel(nodeID string, label EdgeLabel) (*Edge, bool) {
	for _, edge := range d.outgoing[nodeID] {
		if edge.Label == label {
			return edge, true
		}
	}
	return nil, false
}

// SingleTarget returns the target of the node's sole unlabeled outgoing
// edge. Nodes with no (or only labeled) outgoing edges return false.
func (d *Definition) SingleTarget(nodeID string) (string, bool) {
	if edge, ok := d.EdgeByLabel(nodeID, EdgeDefault); ok {
		return edge.Target, true
	}
	return "", false
}
