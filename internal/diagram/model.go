package diagram

// NodeKind classifies a diagram node by the activity it stands for.
type NodeKind string

const (
	NodeKindTask     NodeKind = "task"
	NodeKindDecision NodeKind = "decision"
	NodeKindFork     NodeKind = "fork"
	NodeKindJoin     NodeKind = "join"
	NodeKindBlocking NodeKind = "blocking"
	NodeKindFault    NodeKind = "fault"
	NodeKindStart    NodeKind = "start"
	NodeKindEnd      NodeKind = "end"
)

// Runtime statuses a node can be overlaid with.
const (
	StatusExecuted  = "executed"
	StatusSuspended = "suspended"
	StatusFaulted   = "faulted"
)

// DiagramModel is the intermediate representation used by all renderers.
type DiagramModel struct {
	Title  string
	Nodes  []*Node
	Edges  []Edge
	Levels [][]string
}

// Node represents one activity in the diagram.
type Node struct {
	ID     string
	Label  string
	Kind   NodeKind
	Status *StatusOverlay
}

// StatusOverlay carries what an instance did at a node.
type StatusOverlay struct {
	Status   string
	Runs     int
	Outcomes []string // distinct, in the order they fired
	Error    string
}

// Edge is a transition. Label holds the outcome; Taken is set when the
// instance's execution log shows the outcome fired.
type Edge struct {
	From  string
	To    string
	Label string
	Taken bool
}
