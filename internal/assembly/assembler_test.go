package assembly

import (
	"strings"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kadaliao/logseq-reflect-sub001/internal/outline"
)

// buildPage creates:
//
//	page "notes":
//	- alpha
//	  - beta
//	    - gamma
//	  - delta
//	- epsilon
func buildPage(t *testing.T) (*outline.MemoryGraph, map[string]string) {
	t.Helper()
	g := outline.NewMemoryGraph()
	ids := map[string]string{}

	var err error
	ids["alpha"], err = g.Create(outline.CreateTarget{Page: "notes"}, "alpha")
	require.NoError(t, err)
	ids["beta"], err = g.Create(outline.CreateTarget{ParentUUID: ids["alpha"]}, "beta")
	require.NoError(t, err)
	ids["gamma"], err = g.Create(outline.CreateTarget{ParentUUID: ids["beta"]}, "gamma")
	require.NoError(t, err)
	ids["delta"], err = g.Create(outline.CreateTarget{ParentUUID: ids["alpha"]}, "delta")
	require.NoError(t, err)
	ids["epsilon"], err = g.Create(outline.CreateTarget{Page: "notes"}, "epsilon")
	require.NoError(t, err)

	return g, ids
}

func TestFromPageDepthFirstOrder(t *testing.T) {
	g, ids := buildPage(t)
	a := New(g)

	ctx := a.FromPage("notes")

	assert.Equal(t, KindPage, ctx.Kind)
	assert.Equal(t, "alpha\nbeta\ngamma\ndelta\nepsilon", ctx.Content)

	want := []string{ids["alpha"], ids["beta"], ids["gamma"], ids["delta"], ids["epsilon"]}
	if diff := cmp.Diff(want, ctx.SourceUUIDs); diff != "" {
		t.Errorf("SourceUUIDs order mismatch (-want +got):\n%s", diff)
	}
	assert.Equal(t, "notes", ctx.Metadata["page"])
	assert.False(t, ctx.WasTruncated)
}

func TestFromPageNoDuplicates(t *testing.T) {
	g, _ := buildPage(t)
	a := New(g)

	ctx := a.FromPage("notes")
	seen := map[string]bool{}
	for _, id := range ctx.SourceUUIDs {
		assert.False(t, seen[id], "duplicate source UUID %s", id)
		seen[id] = true
	}
}

func TestFromPageEmpty(t *testing.T) {
	g := outline.NewMemoryGraph()
	a := New(g)

	ctx := a.FromPage("nothing-here")
	assert.Empty(t, ctx.Content)
	assert.Empty(t, ctx.SourceUUIDs)
	assert.Zero(t, ctx.EstimatedTokens)
}

func TestFromSubtree(t *testing.T) {
	g, ids := buildPage(t)
	a := New(g)

	ctx := a.FromSubtree(ids["alpha"])
	assert.Equal(t, KindSubtree, ctx.Kind)
	assert.Equal(t, "alpha\nbeta\ngamma\ndelta", ctx.Content)
	assert.Equal(t, []string{ids["alpha"], ids["beta"], ids["gamma"], ids["delta"]}, ctx.SourceUUIDs)
}

func TestFromSubtreeMissingNode(t *testing.T) {
	g, _ := buildPage(t)
	a := New(g)

	ctx := a.FromSubtree("no-such-node")
	assert.Empty(t, ctx.Content)
	assert.Empty(t, ctx.SourceUUIDs)
	assert.Zero(t, ctx.EstimatedTokens)
}

func TestFromSelection(t *testing.T) {
	g, ids := buildPage(t)
	a := New(g)

	// Children are not recursed into, order is the caller's, missing
	// nodes are skipped silently.
	ctx := a.FromSelection([]string{ids["epsilon"], "missing", ids["alpha"]})
	assert.Equal(t, KindSelection, ctx.Kind)
	assert.Equal(t, "epsilon\nalpha", ctx.Content)
	assert.Equal(t, []string{ids["epsilon"], ids["alpha"]}, ctx.SourceUUIDs)
}

func TestTokenEstimateConsistency(t *testing.T) {
	g, _ := buildPage(t)
	a := New(g)

	ctx := a.FromPage("notes")
	counter := NewTokenCounter()
	assert.Equal(t, counter.CountString(ctx.Content), ctx.EstimatedTokens)
}

func TestCountString(t *testing.T) {
	counter := NewTokenCounter()
	assert.Zero(t, counter.CountString(""))
	assert.Equal(t, 1, counter.CountString("abcd"))
	assert.Equal(t, 25, counter.CountString(strings.Repeat("x", 100)))
	// Rune-based, not byte-based.
	assert.Equal(t, 1, counter.CountString("日本語forす"))
}
