package diagram

// NodeKind classifies a diagram node.
type NodeKind string

const (
	// NodeKindEmpty is the "no control" state every lifecycle starts and ends in.
	NodeKindEmpty   NodeKind = "empty"
	NodeKindControl NodeKind = "control"
)

// DiagramModel is the intermediate representation used by all renderers.
type DiagramModel struct {
	Title  string
	Nodes  []*Node
	Edges  []Edge
	Levels [][]string
}

// Node is one control kind seen in the lifecycle log.
type Node struct {
	ID    string
	Label string
	Kind  NodeKind
	// Cells is how many cells currently hold a control of this kind.
	Cells int
}

// Edge is an observed transition between two control kinds.
type Edge struct {
	From  string
	To    string
	Label string
	Count int
}
