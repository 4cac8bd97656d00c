package flow

import "fmt"

// IssueSeverity distinguishes hard errors from advisory warnings.
type IssueSeverity string

const (
	SeverityError   IssueSeverity = "error"
	SeverityWarning IssueSeverity = "warning"
)

// ValidationIssue is one problem found in a definition.
type ValidationIssue struct {
	Severity IssueSeverity `json:"severity"`
	NodeID   string        `json:"nodeId,omitempty"`
	Message  string        `json:"message"`
}

// Validate checks structural invariants of the graph. Errors make the
// definition unexecutable; warnings (unreachable nodes) do not — execution
// simply never visits them.
func (d *Definition) Validate() []ValidationIssue {
	var issues []ValidationIssue

	startCount := 0
	for _, node := range d.Nodes {
		if node.Type == NodeStart {
			startCount++
		}
	}
	if startCount != 1 {
		issues = append(issues, ValidationIssue{
			Severity: SeverityError,
			Message:  fmt.Sprintf("flow must have exactly one start node, found %d", startCount),
		})
	}

	for _, node := range d.Nodes {
		if node.Type == NodeEnd && len(d.OutgoingEdges(node.ID)) > 0 {
			issues = append(issues, ValidationIssue{
				Severity: SeverityError,
				NodeID:   node.ID,
				Message:  "end node must have no outgoing edges",
			})
		}
		issues = append(issues, d.validateConfig(node)...)
	}

	for _, edge := range d.Edges {
		if _, ok := d.Node(edge.Source); !ok {
			issues = append(issues, ValidationIssue{
				Severity: SeverityError,
				Message:  fmt.Sprintf("edge %s references missing source node %s", edge.ID, edge.Source),
			})
		}
		if _, ok := d.Node(edge.Target); !ok {
			issues = append(issues, ValidationIssue{
				Severity: SeverityError,
				Message:  fmt.Sprintf("edge %s references missing target node %s", edge.ID, edge.Target),
			})
		}
	}

	if startCount == 1 {
		for _, node := range d.unreachableNodes() {
			issues = append(issues, ValidationIssue{
				Severity: SeverityWarning,
				NodeID:   node.ID,
				Message:  "node is unreachable from start",
			})
		}
	}

	return issues
}

// HasErrors reports whether any issue is a hard error.
func HasErrors(issues []ValidationIssue) bool {
	for _, issue := range issues {
		if issue.Severity == SeverityError {
			return true
		}
	}
	return false
}

func (d *Definition) validateConfig(node *Node) []ValidationIssue {
	var issues []ValidationIssue
	bad := func(msg string) {
		issues = append(issues, ValidationIssue{Severity: SeverityError, NodeID: node.ID, Message: msg})
	}

	switch cfg := node.Config.(type) {
	case MessageConfig:
		if cfg.Text == "" && cfg.MediaURL == "" {
			bad("message node requires text or media")
		}
	case KeyboardConfig:
		if len(cfg.Buttons) == 0 {
			bad("keyboard node requires at least one button")
		}
	case ConditionConfig:
		if cfg.Field == "" {
			bad("condition node requires a field")
		}
		if cfg.Operator == "" {
			bad("condition node requires an operator")
		}
	case WebhookConfig:
		if cfg.URL == "" {
			bad("webhook node requires a url")
		}
	case FormConfig:
		if len(cfg.Fields) == 0 {
			bad("form node requires at least one field")
		}
		for _, field := range cfg.Fields {
			if field.Name == "" {
				bad("form field requires a name")
			}
		}
	case DelayConfig:
		if cfg.Value <= 0 {
			bad("delay node requires a positive value")
		}
	case VariableConfig:
		if cfg.Name == "" {
			bad("variable node requires a name")
		}
	case RandomConfig:
		if len(cfg.Options) == 0 {
			bad("random node requires at least one option")
		}
	case EndpointConfig:
		if cfg.AccessKey == "" {
			bad("endpoint node requires an access key")
		}
	case BroadcastConfig:
		if cfg.Audience == AudienceList && len(cfg.ParticipantIDs) == 0 {
			bad("broadcast list audience requires participant ids")
		}
	}

	return issues
}

// unreachableNodes returns non-start nodes with no path from start.
func (d *Definition) unreachableNodes() []*Node {
	start, ok := d.StartNode()
	if !ok {
		return nil
	}

	visited := make(map[string]bool, len(d.Nodes))
	stack := []string{start.ID}
	for len(stack) > 0 {
		id := stack[len(stack)-1]
		stack = stack[:len(stack)-1]
		if visited[id] {
			continue
		}
		visited[id] = true
		for _, edge := range d.OutgoingEdges(id) {
			stack = append(stack, edge.Target)
		}
	}

	var unreachable []*Node
	for _, node := range d.Nodes {
		if !visited[node.ID] {
			unreachable = append(unreachable, node)
		}
	}
	return unreachable
}
