// Package querydag builds the feature extractor's companion structure, the QueryDag: an
// arena of CTE/final-SELECT nodes with an explicit edge list. The optimize
// command builds it before any LLM call so that an unparseable query or a
// cyclic CTE graph fails the request early.
package querydag

import (
	"fmt"

	"github.com/dolthub/vitess/go/vt/sqlparser"

	"github.com/JKR8/querytorque-v8-sub011/internal/types"
)

// Build parses sql and constructs its QueryDag. Cycle detection always
// fails with ErrorKind.ParseError: "Cycles must never
// occur; if detected, fail with ParseError."
func Build(sql string) (types.QueryDag, error) {
	stmt, err := sqlparser.Parse(sql)
	if err != nil {
		return types.QueryDag{}, types.NewError(types.ErrParseError, "querydag.Build", err)
	}
	sel, ok := stmt.(*sqlparser.Select)
	if !ok {
		// Non-SELECT statements (DML, SET, SHOW, ...) have no CTE graph;
		// represented as a single-node DAG so callers need not special-case.
		return types.QueryDag{
			Nodes: []types.DagNode{{ID: 0, Name: "", SQL: sql}},
			Root:  0,
		}, nil
	}
	return buildFromSelect(sel, sql)
}

func buildFromSelect(sel *sqlparser.Select, originalSQL string) (types.QueryDag, error) {
	var dag types.QueryDag
	nameToID := map[string]int{}

	nextID := 0
	newNode := func(name, fragment string) int {
		id := nextID
		nextID++
		dag.Nodes = append(dag.Nodes, types.DagNode{ID: id, Name: name, SQL: fragment})
		if name != "" {
			nameToID[name] = id
		}
		return id
	}

	if sel.With != nil {
		for _, cte := range sel.With.Ctes {
			name := cte.ID.String()
			fragment := sqlparser.String(cte.Subquery)
			newNode(name, fragment)
		}
	}

	rootFragment := sqlparser.String(withoutWith(sel))
	rootID := newNode("", rootFragment)
	dag.Root = rootID

	// Now that every node exists, wire edges: each node's referenced
	// table names that match a CTE name become an Inputs/Edges entry.
	if sel.With != nil {
		for i, cte := range sel.With.Ctes {
			name := cte.ID.String()
			id := nameToID[name]
			refs := referencedNames(cte.Subquery)
			wireEdges(&dag, id, refs, nameToID)
			_ = i
		}
	}
	wireEdges(&dag, rootID, referencedTableExprs(sel.From), nameToID)

	if cyclePath, ok := detectCycle(dag); ok {
		return types.QueryDag{}, types.NewError(types.ErrParseError, "querydag.Build",
			fmt.Errorf("cycle detected in CTE graph: %v", cyclePath))
	}

	for i := range dag.Nodes {
		dag.Nodes[i].UsageCount = countUsages(dag.Nodes[i].ID, dag.Edges)
	}

	return dag, nil
}

// withoutWith returns a shallow copy of sel with its With clause cleared,
// so the root node's SQL fragment is just the final SELECT body.
func withoutWith(sel *sqlparser.Select) *sqlparser.Select {
	clone := *sel
	clone.With = nil
	return &clone
}

func referencedNames(sub *sqlparser.Subquery) []string {
	inner, ok := sub.Select.(*sqlparser.Select)
	if !ok {
		return nil
	}
	return referencedTableExprs(inner.From)
}

func referencedTableExprs(exprs sqlparser.TableExprs) []string {
	var names []string
	var walk func(sqlparser.TableExpr)
	walk = func(te sqlparser.TableExpr) {
		switch t := te.(type) {
		case *sqlparser.AliasedTableExpr:
			if tn, ok := t.Expr.(sqlparser.TableName); ok {
				names = append(names, tn.Name.String())
			}
		case *sqlparser.JoinTableExpr:
			walk(t.LeftExpr)
			walk(t.RightExpr)
		case *sqlparser.ParenTableExpr:
			for _, e := range t.Exprs {
				walk(e)
			}
		}
	}
	for _, te := range exprs {
		walk(te)
	}
	return names
}

func wireEdges(dag *types.QueryDag, fromID int, refNames []string, nameToID map[string]int) {
	for _, n := range refNames {
		toID, ok := nameToID[n]
		if !ok || toID == fromID {
			continue
		}
		for i := range dag.Nodes {
			if dag.Nodes[i].ID == fromID {
				dag.Nodes[i].Inputs = append(dag.Nodes[i].Inputs, toID)
			}
		}
		dag.Edges = append(dag.Edges, [2]int{fromID, toID})
	}
}

func countUsages(id int, edges [][2]int) int {
	count := 0
	for _, e := range edges {
		if e[1] == id {
			count++
		}
	}
	return count
}

// detectCycle runs a DFS over the edge list (from depends-on to) looking
// for a back edge into the current recursion stack.
func detectCycle(dag types.QueryDag) ([]int, bool) {
	adj := map[int][]int{}
	for _, e := range dag.Edges {
		adj[e[0]] = append(adj[e[0]], e[1])
	}

	const (
		white = 0
		gray  = 1
		black = 2
	)
	color := map[int]int{}
	var path []int

	var visit func(id int) bool
	visit = func(id int) bool {
		color[id] = gray
		path = append(path, id)
		for _, next := range adj[id] {
			switch color[next] {
			case gray:
				path = append(path, next)
				return true
			case white:
				if visit(next) {
					return true
				}
			}
		}
		path = path[:len(path)-1]
		color[id] = black
		return false
	}

	for _, n := range dag.Nodes {
		if color[n.ID] == white {
			if visit(n.ID) {
				return path, true
			}
		}
	}
	return nil, false
}
