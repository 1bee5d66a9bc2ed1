package engine

import (
	"encoding/json"
	"fmt"

	"gopkg.in/yaml.v3"
)

// NodeStatus represents the state of a node within one Make call.
type NodeStatus string

const (
	// StatusInitial indicates the node has not been processed yet in this run.
	StatusInitial NodeStatus = "Initial"

	// StatusMountedChanged indicates a root was copied and its content differs
	// from the previous run.
	StatusMountedChanged NodeStatus = "MountedChanged"

	// StatusMountedNotChanged indicates a root was copied with unchanged content.
	StatusMountedNotChanged NodeStatus = "MountedNotChanged"

	// StatusMountedFailed indicates a root could not be copied from the source tree.
	StatusMountedFailed NodeStatus = "MountedFailed"

	// StatusScanIncomplete indicates some discovered dependency is not available yet.
	StatusScanIncomplete NodeStatus = "ScanIncomplete"

	// StatusRunning indicates a build is in flight.
	StatusRunning NodeStatus = "Running"

	// StatusBuildSuccess indicates the node was built and its output changed.
	StatusBuildSuccess NodeStatus = "BuildSuccess"

	// StatusBuildNotChanged indicates the node was built and its output is
	// identical to the previous run.
	StatusBuildNotChanged NodeStatus = "BuildNotChanged"

	// StatusBuildNotRequired indicates the build was skipped because nothing
	// it depends on changed.
	StatusBuildNotRequired NodeStatus = "BuildNotRequired"

	// StatusBuildFailed indicates the build action failed or left no output.
	StatusBuildFailed NodeStatus = "BuildFailed"

	// StatusAncestorFailed indicates a transitive dependency failed.
	StatusAncestorFailed NodeStatus = "AncestorFailed"
)

// AllStatuses lists every status in state machine order.
var AllStatuses = []NodeStatus{
	StatusInitial,
	StatusMountedChanged,
	StatusMountedNotChanged,
	StatusMountedFailed,
	StatusScanIncomplete,
	StatusRunning,
	StatusBuildSuccess,
	StatusBuildNotChanged,
	StatusBuildNotRequired,
	StatusBuildFailed,
	StatusAncestorFailed,
}

// IsSuccess returns true for terminal success states.
func (s NodeStatus) IsSuccess() bool {
	switch s {
	case StatusMountedChanged, StatusMountedNotChanged,
		StatusBuildSuccess, StatusBuildNotChanged, StatusBuildNotRequired:
		return true
	default:
		return false
	}
}

// IsFailure returns true for states that fail dependents.
func (s NodeStatus) IsFailure() bool {
	return s == StatusMountedFailed || s == StatusBuildFailed || s == StatusAncestorFailed
}

// IsUnchanged returns true for success states whose content matches the previous run.
func (s NodeStatus) IsUnchanged() bool {
	return s == StatusMountedNotChanged || s == StatusBuildNotChanged || s == StatusBuildNotRequired
}

// IsTerminal returns true if the status is final for the current run.
func (s NodeStatus) IsTerminal() bool {
	return s.IsSuccess() || s.IsFailure()
}

// Short returns a compact code used in summaries.
func (s NodeStatus) Short() string {
	switch s {
	case StatusInitial:
		return "I"
	case StatusMountedChanged:
		return "MC"
	case StatusMountedNotChanged:
		return "MNC"
	case StatusMountedFailed:
		return "MF"
	case StatusScanIncomplete:
		return "SI"
	case StatusRunning:
		return "R"
	case StatusBuildSuccess:
		return "BS"
	case StatusBuildNotChanged:
		return "BNC"
	case StatusBuildNotRequired:
		return "BNR"
	case StatusBuildFailed:
		return "BF"
	case StatusAncestorFailed:
		return "AF"
	default:
		return "?"
	}
}

// Validate checks if the node status is valid.
func (s NodeStatus) Validate() error {
	for _, known := range AllStatuses {
		if s == known {
			return nil
		}
	}
	return fmt.Errorf("invalid node status: %s", s)
}

// MarshalJSON implements custom JSON marshaling for type-safe enum serialization.
func (s NodeStatus) MarshalJSON() ([]byte, error) {
	return json.Marshal(string(s))
}

// UnmarshalJSON implements custom JSON unmarshaling with validation.
func (s *NodeStatus) UnmarshalJSON(data []byte) error {
	var str string
	if err := json.Unmarshal(data, &str); err != nil {
		return err
	}
	*s = NodeStatus(str)
	return s.Validate()
}

// UnmarshalYAML implements yaml.Unmarshaler with validation.
func (s *NodeStatus) UnmarshalYAML(value *yaml.Node) error {
	var str string
	if err := value.Decode(&str); err != nil {
		return err
	}
	*s = NodeStatus(str)
	return s.Validate()
}

// EdgeKind records how an edge entered the graph.
type EdgeKind string

const (
	// EdgeExplicit is declared by whoever constructed the graph.
	EdgeExplicit EdgeKind = "explicit"

	// EdgeScanned is discovered from content inspection.
	EdgeScanned EdgeKind = "scanned"

	// EdgeExpanded is injected by a node's Expand.
	EdgeExpanded EdgeKind = "expanded"
)

// Validate checks if the edge kind is valid.
func (k EdgeKind) Validate() error {
	switch k {
	case EdgeExplicit, EdgeScanned, EdgeExpanded:
		return nil
	default:
		return fmt.Errorf("invalid edge kind: %s", k)
	}
}

// RootPolicy selects the predicate deciding which nodes are mounted instead of built.
type RootPolicy string

const (
	// RootPolicyDeclared treats a node as a root unless an explicit or
	// expanded edge points at it. Scanned edges alone never make a node buildable.
	RootPolicyDeclared RootPolicy = "declared"

	// RootPolicyNoIncoming treats a node as a root only if no edge of any
	// kind points at it.
	RootPolicyNoIncoming RootPolicy = "no-incoming"
)

// Validate checks if the root policy is valid.
func (p RootPolicy) Validate() error {
	switch p {
	case RootPolicyDeclared, RootPolicyNoIncoming:
		return nil
	default:
		return fmt.Errorf("invalid root policy: %s", p)
	}
}
