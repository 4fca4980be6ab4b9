package outline

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// settableGraph is what both host implementations actually provide.
type settableGraph interface {
	Graph
	SetProperty(id, key, value string) error
	setCurrent(page, node string)
}

type memoryAdapter struct{ *MemoryGraph }

func (m memoryAdapter) setCurrent(page, node string) { m.SetCurrent(page, node) }

type sqliteAdapter struct{ *SQLiteGraph }

func (s sqliteAdapter) setCurrent(page, node string) { _ = s.SetCurrent(page, node) }

func eachGraph(t *testing.T, fn func(t *testing.T, g settableGraph)) {
	t.Run("memory", func(t *testing.T) {
		fn(t, memoryAdapter{NewMemoryGraph()})
	})
	t.Run("sqlite", func(t *testing.T) {
		g, err := NewSQLiteGraph(":memory:")
		require.NoError(t, err)
		t.Cleanup(func() { g.Close() })
		fn(t, sqliteAdapter{g})
	})
}

func TestCreateAndRead(t *testing.T) {
	eachGraph(t, func(t *testing.T, g settableGraph) {
		root, err := g.Create(CreateTarget{Page: "notes"}, "root block")
		require.NoError(t, err)

		child, err := g.Create(CreateTarget{ParentUUID: root}, "child block")
		require.NoError(t, err)

		n, ok := g.Node(root)
		require.True(t, ok)
		assert.Equal(t, "root block", n.Content)
		assert.Equal(t, "notes", n.Page)
		assert.Equal(t, []string{child}, n.Children)
		assert.Empty(t, n.Parent)

		c, ok := g.Node(child)
		require.True(t, ok)
		assert.Equal(t, root, c.Parent)
		assert.Equal(t, "notes", c.Page)
	})
}

func TestChildOrderIsStable(t *testing.T) {
	eachGraph(t, func(t *testing.T, g settableGraph) {
		root, err := g.Create(CreateTarget{Page: "notes"}, "root")
		require.NoError(t, err)

		var want []string
		for _, text := range []string{"a", "b", "c", "d"} {
			id, err := g.Create(CreateTarget{ParentUUID: root}, text)
			require.NoError(t, err)
			want = append(want, id)
		}

		n, ok := g.Node(root)
		require.True(t, ok)
		assert.Equal(t, want, n.Children)
	})
}

func TestPageTreeOrder(t *testing.T) {
	eachGraph(t, func(t *testing.T, g settableGraph) {
		first, err := g.Create(CreateTarget{Page: "p"}, "first")
		require.NoError(t, err)
		second, err := g.Create(CreateTarget{Page: "p"}, "second")
		require.NoError(t, err)

		roots := g.PageTree("p")
		require.Len(t, roots, 2)
		assert.Equal(t, first, roots[0].UUID)
		assert.Equal(t, second, roots[1].UUID)

		assert.Empty(t, g.PageTree("unknown"))
	})
}

func TestMissingNode(t *testing.T) {
	eachGraph(t, func(t *testing.T, g settableGraph) {
		_, ok := g.Node("no-such-uuid")
		assert.False(t, ok)

		assert.Error(t, g.SetContent("no-such-uuid", "x"))
		assert.Error(t, g.Remove("no-such-uuid"))
		_, err := g.Create(CreateTarget{ParentUUID: "no-such-uuid"}, "x")
		assert.Error(t, err)
	})
}

func TestCreateWithoutTargetPage(t *testing.T) {
	eachGraph(t, func(t *testing.T, g settableGraph) {
		_, err := g.Create(CreateTarget{}, "orphan")
		assert.Error(t, err)

		// Falls back to the current page when one is set.
		g.setCurrent("daily", "")
		id, err := g.Create(CreateTarget{}, "appended")
		require.NoError(t, err)
		n, ok := g.Node(id)
		require.True(t, ok)
		assert.Equal(t, "daily", n.Page)
	})
}

func TestProperties(t *testing.T) {
	eachGraph(t, func(t *testing.T, g settableGraph) {
		id, err := g.Create(CreateTarget{Page: "p"}, "block")
		require.NoError(t, err)

		require.NoError(t, g.SetProperty(id, "reflect-model", "mistral"))
		require.NoError(t, g.SetProperty(id, "reflect-temperature", "0.4"))

		n, ok := g.Node(id)
		require.True(t, ok)
		v, ok := n.Prop("reflect-model")
		assert.True(t, ok)
		assert.Equal(t, "mistral", v)
		_, ok = n.Prop("reflect-top-p")
		assert.False(t, ok)
	})
}

func TestRemoveSubtree(t *testing.T) {
	eachGraph(t, func(t *testing.T, g settableGraph) {
		root, err := g.Create(CreateTarget{Page: "p"}, "root")
		require.NoError(t, err)
		child, err := g.Create(CreateTarget{ParentUUID: root}, "child")
		require.NoError(t, err)
		grand, err := g.Create(CreateTarget{ParentUUID: child}, "grandchild")
		require.NoError(t, err)

		require.NoError(t, g.Remove(child))

		_, ok := g.Node(child)
		assert.False(t, ok)
		_, ok = g.Node(grand)
		assert.False(t, ok)

		n, ok := g.Node(root)
		require.True(t, ok)
		assert.Empty(t, n.Children)
	})
}

func TestCurrentPageAndNode(t *testing.T) {
	eachGraph(t, func(t *testing.T, g settableGraph) {
		assert.Empty(t, g.CurrentPage())
		_, ok := g.CurrentNode()
		assert.False(t, ok)

		id, err := g.Create(CreateTarget{Page: "today"}, "focus me")
		require.NoError(t, err)
		g.setCurrent("today", id)

		assert.Equal(t, "today", g.CurrentPage())
		n, ok := g.CurrentNode()
		require.True(t, ok)
		assert.Equal(t, id, n.UUID)
	})
}

func TestImportMarkdown(t *testing.T) {
	g := NewMemoryGraph()

	src := `
- Project plan
  reflect-model:: llama3
  - Research phase
    - Read papers
  - Build phase
- Meeting notes
`
	roots, err := ImportMarkdown(g, "plan", strings.NewReader(src))
	require.NoError(t, err)
	require.Len(t, roots, 2)

	top, ok := g.Node(roots[0])
	require.True(t, ok)
	assert.Equal(t, "Project plan", top.Content)
	v, _ := top.Prop("reflect-model")
	assert.Equal(t, "llama3", v)
	require.Len(t, top.Children, 2)

	research, ok := g.Node(top.Children[0])
	require.True(t, ok)
	assert.Equal(t, "Research phase", research.Content)
	require.Len(t, research.Children, 1)

	second, ok := g.Node(roots[1])
	require.True(t, ok)
	assert.Equal(t, "Meeting notes", second.Content)
}
