package types

// DagNode is one node of a QueryDag: a CTE or the final SELECT. Nodes are addressed by integer id within their owning
// QueryDag's arena; ownership is per-request and discarded after.
type DagNode struct {
	ID          int
	Name        string // CTE name, or "" for the final SELECT
	SQL         string // the node's SQL fragment
	Inputs      []int  // referenced input node ids
	Columns     []string
	UsageCount  int
	CostWeight  float64 // best-effort cost attribution; 0 if unavailable
}

// QueryDag is an arena of DagNode plus a separate edge list, acyclic by
// construction.
type QueryDag struct {
	Nodes []DagNode
	Edges [][2]int // [from, to] pairs, from depends on to
	Root  int       // id of the final SELECT node
}
