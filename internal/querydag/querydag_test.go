package querydag

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/JKR8/querytorque-v8-sub011/internal/types"
)

func TestBuildSimpleSelectSingleNode(t *testing.T) {
	dag, err := Build("SELECT a FROM t")
	require.NoError(t, err)
	require.Len(t, dag.Nodes, 1)
	assert.Equal(t, dag.Root, dag.Nodes[0].ID)
	assert.Empty(t, dag.Edges)
}

func TestBuildSingleCTEWiresEdgeToRoot(t *testing.T) {
	dag, err := Build("WITH c AS (SELECT a FROM t) SELECT a FROM c")
	require.NoError(t, err)
	require.Len(t, dag.Nodes, 2)

	var cteID, rootID int = -1, dag.Root
	for _, n := range dag.Nodes {
		if n.Name == "c" {
			cteID = n.ID
		}
	}
	require.NotEqual(t, -1, cteID)
	require.Len(t, dag.Edges, 1)
	assert.Equal(t, [2]int{rootID, cteID}, dag.Edges[0])
}

func TestBuildChainedCTEsWireTransitively(t *testing.T) {
	dag, err := Build("WITH a AS (SELECT 1), b AS (SELECT * FROM a) SELECT * FROM b")
	require.NoError(t, err)
	require.Len(t, dag.Nodes, 3)
	require.Len(t, dag.Edges, 2)
}

func TestBuildNonSelectStatementIsSingleOpaqueNode(t *testing.T) {
	dag, err := Build("SET @x = 1")
	require.NoError(t, err)
	require.Len(t, dag.Nodes, 1)
	assert.Equal(t, "SET @x = 1", dag.Nodes[0].SQL)
}

func TestBuildParseErrorOnInvalidSQL(t *testing.T) {
	_, err := Build("SELECT FROM WHERE")
	require.Error(t, err)
	kind, ok := types.KindOf(err)
	require.True(t, ok)
	assert.Equal(t, types.ErrParseError, kind)
}

func TestBuildUsageCountTracksReferences(t *testing.T) {
	dag, err := Build("WITH c AS (SELECT 1) SELECT * FROM c JOIN c AS c2 ON 1=1")
	require.NoError(t, err)
	var cte types.DagNode
	for _, n := range dag.Nodes {
		if n.Name == "c" {
			cte = n
		}
	}
	assert.Equal(t, 2, cte.UsageCount) // "c" appears twice in one FROM (JOIN c AS c2), each is an edge
}
