package models

import (
	"errors"
	"fmt"
	"time"
)

// NodeType is the kind of step a node represents.
type NodeType string

const (
	NodeTypeTrigger   NodeType = "trigger"
	NodeTypeAction    NodeType = "action"
	NodeTypeCondition NodeType = "condition"
	NodeTypeDelay     NodeType = "delay"
)

// BranchLabel tags a condition node's outgoing edge with the boolean result
// that selects it. Labels are mandatory on condition edges; positional
// conventions are not honored.
type BranchLabel string

const (
	BranchTrue  BranchLabel = "true"
	BranchFalse BranchLabel = "false"
)

// Position is canvas placement from the authoring editor. Irrelevant to
// execution, persisted for round-tripping.
type Position struct {
	X int `json:"x"`
	Y int `json:"y"`
}

// Node is one step in a journey graph. Data carries exactly one config
// variant, matching Type.
type Node struct {
	ID       string   `json:"id"   validate:"required"`
	Type     NodeType `json:"type" validate:"required,oneof=trigger action condition delay"`
	Position Position `json:"position"`
	Data     NodeData `json:"data"`
}

// NodeData is a tagged variant: one pointer per node type, only the one
// matching Node.Type may be set.
type NodeData struct {
	Trigger   *TriggerConfig   `json:"trigger,omitempty"`
	Action    *ActionConfig    `json:"action,omitempty"`
	Condition *ConditionConfig `json:"condition,omitempty"`
	Delay     *DelayConfig     `json:"delay,omitempty"`
}

// TriggerConfig names the external event kind that enrolls subjects into
// the journey, e.g. "new_customer".
type TriggerConfig struct {
	Event string `json:"event" validate:"required"`
}

// DelayConfig parks an enrollment either for a relative duration or until
// an absolute time. Exactly one of the two must be set.
type DelayConfig struct {
	Duration string     `json:"duration,omitempty"`
	Until    *time.Time `json:"until,omitempty"`
}

// ResumeAt computes when an enrollment parked at this delay becomes due.
func (d *DelayConfig) ResumeAt(from time.Time) (time.Time, error) {
	if d.Until != nil {
		return *d.Until, nil
	}

	if d.Duration == "" {
		return time.Time{}, errors.New("delay node has neither duration nor until")
	}

	dur, err := time.ParseDuration(d.Duration)
	if err != nil {
		return time.Time{}, fmt.Errorf("invalid delay duration %q: %w", d.Duration, err)
	}

	return from.Add(dur), nil
}

// Edge is a directed transition between two nodes. SourceHandle is only
// meaningful when the source is a condition node.
type Edge struct {
	ID           string      `json:"id"     validate:"required"`
	Source       string      `json:"source" validate:"required"`
	Target       string      `json:"target" validate:"required"`
	SourceHandle BranchLabel `json:"source_handle,omitempty"`
}

// Graph is the persisted wire shape of a journey version.
type Graph struct {
	Nodes []*Node `json:"nodes"`
	Edges []*Edge `json:"edges"`
}

// Structural definition errors. These are fatal to an enrollment that hits
// them at execution time and reject a version at save time.
var (
	ErrNoTriggerNode          = errors.New("graph has no trigger node")
	ErrMultipleTriggerNodes   = errors.New("graph has more than one trigger node")
	ErrTriggerHasIncoming     = errors.New("trigger node has incoming edges")
	ErrDanglingEdge           = errors.New("edge references a missing node")
	ErrDuplicateNodeID        = errors.New("duplicate node id")
	ErrAmbiguousBranch        = errors.New("condition node has multiple edges for the same branch")
	ErrUnlabeledBranch        = errors.New("condition node edge is missing a branch label")
	ErrMultipleOutgoingEdges  = errors.New("non-condition node has more than one outgoing edge")
	ErrNodeConfigMismatch     = errors.New("node config does not match node type")
)

func (g *Graph) NodeByID(id string) *Node {
	for _, n := range g.Nodes {
		if n.ID == id {
			return n
		}
	}

	return nil
}

// TriggerNode returns the graph's single entry node.
func (g *Graph) TriggerNode() (*Node, error) {
	var trigger *Node

	for _, n := range g.Nodes {
		if n.Type != NodeTypeTrigger {
			continue
		}

		if trigger != nil {
			return nil, ErrMultipleTriggerNodes
		}

		trigger = n
	}

	if trigger == nil {
		return nil, ErrNoTriggerNode
	}

	return trigger, nil
}

func (g *Graph) OutgoingEdges(nodeID string) []*Edge {
	var edges []*Edge

	for _, e := range g.Edges {
		if e.Source == nodeID {
			edges = append(edges, e)
		}
	}

	return edges
}

func (g *Graph) IncomingEdges(nodeID string) []*Edge {
	var edges []*Edge

	for _, e := range g.Edges {
		if e.Target == nodeID {
			edges = append(edges, e)
		}
	}

	return edges
}

// BranchEdge returns the outgoing edge of a condition node labeled with the
// given boolean result, or nil when the branch is an intentional dead end.
func (g *Graph) BranchEdge(nodeID string, result bool) *Edge {
	label := BranchFalse
	if result {
		label = BranchTrue
	}

	for _, e := range g.OutgoingEdges(nodeID) {
		if e.SourceHandle == label {
			return e
		}
	}

	return nil
}

// CheckBranches validates the branch labeling of a single condition node's
// outgoing edges. The executor calls it before following a branch, so graphs
// saved before label validation existed still fail cleanly.
func (g *Graph) CheckBranches(nodeID string) error {
	return validateBranches(nodeID, g.OutgoingEdges(nodeID))
}

// Validate checks the structural invariants of a journey graph: exactly one
// trigger with no incoming edges, per-type node configs, no dangling edges,
// explicit unambiguous branch labels on condition edges, and single outgoing
// edges everywhere else.
func (g *Graph) Validate() error {
	seen := make(map[string]bool, len(g.Nodes))

	for _, n := range g.Nodes {
		if seen[n.ID] {
			return fmt.Errorf("%w: %s", ErrDuplicateNodeID, n.ID)
		}

		seen[n.ID] = true

		if err := n.validateData(); err != nil {
			return err
		}
	}

	trigger, err := g.TriggerNode()
	if err != nil {
		return err
	}

	for _, e := range g.Edges {
		if !seen[e.Source] || !seen[e.Target] {
			return fmt.Errorf("%w: %s -> %s", ErrDanglingEdge, e.Source, e.Target)
		}
	}

	if len(g.IncomingEdges(trigger.ID)) > 0 {
		return ErrTriggerHasIncoming
	}

	for _, n := range g.Nodes {
		outgoing := g.OutgoingEdges(n.ID)

		if n.Type == NodeTypeCondition {
			if err := validateBranches(n.ID, outgoing); err != nil {
				return err
			}

			continue
		}

		if len(outgoing) > 1 {
			return fmt.Errorf("%w: node %s", ErrMultipleOutgoingEdges, n.ID)
		}
	}

	return nil
}

func validateBranches(nodeID string, outgoing []*Edge) error {
	counts := make(map[BranchLabel]int, 2)

	for _, e := range outgoing {
		switch e.SourceHandle {
		case BranchTrue, BranchFalse:
			counts[e.SourceHandle]++
		default:
			return fmt.Errorf("%w: node %s edge %s", ErrUnlabeledBranch, nodeID, e.ID)
		}
	}

	for label, count := range counts {
		if count > 1 {
			return fmt.Errorf("%w: node %s branch %q", ErrAmbiguousBranch, nodeID, label)
		}
	}

	return nil
}

// validateData enforces the tagged-variant rule: exactly the config matching
// the node type is present.
func (n *Node) validateData() error {
	var (
		want int
		got  int
	)

	configs := []bool{
		n.Data.Trigger != nil,
		n.Data.Action != nil,
		n.Data.Condition != nil,
		n.Data.Delay != nil,
	}
	for _, present := range configs {
		if present {
			got++
		}
	}

	var matched bool

	switch n.Type {
	case NodeTypeTrigger:
		matched = n.Data.Trigger != nil
		want = 1
	case NodeTypeAction:
		matched = n.Data.Action != nil
		want = 1

		if matched {
			if err := n.Data.Action.validate(); err != nil {
				return fmt.Errorf("%w: node %s: %v", ErrNodeConfigMismatch, n.ID, err)
			}
		}
	case NodeTypeCondition:
		matched = n.Data.Condition != nil
		want = 1
	case NodeTypeDelay:
		matched = n.Data.Delay != nil
		want = 1
	default:
		return fmt.Errorf("%w: node %s has unknown type %q", ErrNodeConfigMismatch, n.ID, n.Type)
	}

	if !matched || got != want {
		return fmt.Errorf("%w: node %s (type %s)", ErrNodeConfigMismatch, n.ID, n.Type)
	}

	return nil
}
