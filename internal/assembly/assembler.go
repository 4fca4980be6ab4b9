package assembly

import (
	"strings"
	"time"

	"github.com/kadaliao/logseq-reflect-sub001/internal/logging"
	"github.com/kadaliao/logseq-reflect-sub001/internal/outline"
)

// Assembler builds request contexts from the outline. Missing nodes and
// pages degrade to empty results, never errors: a request proceeds with
// whatever context could be read.
type Assembler struct {
	reader  outline.Reader
	counter *TokenCounter
}

// New creates an assembler over the given outline reader.
func New(reader outline.Reader) *Assembler {
	return &Assembler{reader: reader, counter: NewTokenCounter()}
}

// FromPage concatenates every block of a page depth-first in document
// order, one block per line.
func (a *Assembler) FromPage(name string) Context {
	timer := logging.StartTimer(logging.CategoryContext, "FromPage")
	defer timer.StopWithThreshold(200 * time.Millisecond)

	var parts []string
	var sources []string
	for _, root := range a.reader.PageTree(name) {
		a.visit(root, &parts, &sources)
	}

	ctx := a.finish(KindPage, parts, sources)
	ctx.Metadata = map[string]string{"page": name}
	logging.ContextDebug("assembled page %q: %d nodes, ~%d tokens", name, len(sources), ctx.EstimatedTokens)
	return ctx
}

// FromSubtree concatenates one node's content and its descendants
// depth-first. A non-existent node yields an empty context.
func (a *Assembler) FromSubtree(uuid string) Context {
	var parts []string
	var sources []string
	if node, ok := a.reader.Node(uuid); ok {
		a.visit(node, &parts, &sources)
	}

	ctx := a.finish(KindSubtree, parts, sources)
	logging.ContextDebug("assembled subtree %s: %d nodes, ~%d tokens", uuid, len(sources), ctx.EstimatedTokens)
	return ctx
}

// FromSelection reads each listed node independently (no recursion) and
// concatenates in the given order. Unresolvable UUIDs are skipped and do
// not appear in SourceUUIDs.
func (a *Assembler) FromSelection(uuids []string) Context {
	var parts []string
	var sources []string
	for _, id := range uuids {
		node, ok := a.reader.Node(id)
		if !ok {
			logging.ContextDebug("selection skips unresolvable node %s", id)
			continue
		}
		parts = append(parts, node.Content)
		sources = append(sources, node.UUID)
	}

	return a.finish(KindSelection, parts, sources)
}

// visit appends a node's content and recurses into its children.
func (a *Assembler) visit(node *outline.Node, parts *[]string, sources *[]string) {
	*parts = append(*parts, node.Content)
	*sources = append(*sources, node.UUID)
	for _, childID := range node.Children {
		child, ok := a.reader.Node(childID)
		if !ok {
			continue
		}
		a.visit(child, parts, sources)
	}
}

func (a *Assembler) finish(kind Kind, parts, sources []string) Context {
	content := strings.Join(parts, "\n")
	return Context{
		Kind:            kind,
		Content:         content,
		SourceUUIDs:     sources,
		EstimatedTokens: a.counter.CountString(content),
	}
}
