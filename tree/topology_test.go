package tree

import (
	"context"
	"fmt"
	"testing"

	"github.com/leanovate/gopter"
	"github.com/leanovate/gopter/gen"
	"github.com/leanovate/gopter/prop"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/BaSui01/bstflow/types"
)

func TestBuild_ReferenceShape(t *testing.T) {
	tr, err := Build(5, 2)
	require.NoError(t, err)

	assert.Equal(t, 31, tr.Size())
	assert.Len(t, tr.Leaves(), 16)
	assert.Equal(t, "5_0", tr.Root().ID)
	assert.True(t, tr.Root().IsRoot())
	assert.Equal(t, 16, tr.Root().LeafCount())

	leaves := tr.Leaves()
	for i, leaf := range leaves {
		assert.Equal(t, fmt.Sprintf("1_%d", i), leaf.ID)
		assert.True(t, leaf.IsLeaf())
		assert.Len(t, leaf.Ancestors(), 4)
	}

	assert.Equal(t, []string{"4_0", "4_1"}, ids(tr.NodesAtLevel(4)))
	n, ok := tr.Node("2_3")
	require.True(t, ok)
	assert.Equal(t, "3_1", n.ParentID())
	assert.Equal(t, []string{"1_6", "1_7"}, ids(n.Children))
}

func TestBuild_Deterministic(t *testing.T) {
	a, err := Build(5, 2)
	require.NoError(t, err)
	b, err := Build(5, 2)
	require.NoError(t, err)

	var namesA, namesB []string
	a.Walk(func(n *Node) bool { namesA = append(namesA, n.ID); return true })
	b.Walk(func(n *Node) bool { namesB = append(namesB, n.ID); return true })
	assert.Equal(t, namesA, namesB)
}

func TestBuild_InvalidParameters(t *testing.T) {
	_, err := Build(1, 2)
	assert.True(t, types.IsConfigError(err))

	_, err = Build(5, 1)
	assert.True(t, types.IsConfigError(err))
}

func TestTree_Handlers(t *testing.T) {
	tr, err := Build(3, 3)
	require.NoError(t, err)

	h := func(context.Context, types.Input) types.Outcome { return &types.Success{} }
	require.NoError(t, tr.SetHandler("1_4", h))
	assert.Error(t, tr.SetHandler("2_0", h))
	assert.Error(t, tr.SetHandler("9_9", h))

	tr.SetHandlerAll(h)
	for _, leaf := range tr.Leaves() {
		assert.NotNil(t, leaf.Handler)
	}

	require.NoError(t, tr.MarkOptional("1_0", "1_8"))
	assert.Error(t, tr.MarkOptional("3_0"))
	n, _ := tr.Node("1_8")
	assert.True(t, n.Optional)
}

// Property: every complete tree has fanout^(levels-1) leaves and every
// internal node has exactly fanout children.
func TestProperty_TopologyShape(t *testing.T) {
	parameters := gopter.DefaultTestParameters()
	parameters.MinSuccessfulTests = 50

	properties := gopter.NewProperties(parameters)

	properties.Property("complete tree shape", prop.ForAll(
		func(levels, fanout int) bool {
			tr, err := Build(levels, fanout)
			if err != nil {
				return false
			}
			wantLeaves := 1
			for i := 1; i < levels; i++ {
				wantLeaves *= fanout
			}
			if len(tr.Leaves()) != wantLeaves || tr.Root().LeafCount() != wantLeaves {
				return false
			}
			ok := true
			tr.Walk(func(n *Node) bool {
				if !n.IsLeaf() && len(n.Children) != fanout {
					ok = false
				}
				if n.IsLeaf() && n.Level != 1 {
					ok = false
				}
				return true
			})
			return ok
		},
		gen.IntRange(2, 6),
		gen.IntRange(2, 4),
	))

	properties.TestingRun(t)
}

func ids(nodes []*Node) []string {
	out := make([]string, len(nodes))
	for i, n := range nodes {
		out[i] = n.ID
	}
	return out
}
