package outline

import (
	"fmt"
	"sync"

	"github.com/google/uuid"

	"github.com/kadaliao/logseq-reflect-sub001/internal/logging"
)

// MemoryGraph is an in-memory outline host. It backs the test suite and
// the markdown importer; all methods are safe for concurrent use.
type MemoryGraph struct {
	mu          sync.RWMutex
	nodes       map[string]*Node
	pages       map[string][]string // page name -> ordered root UUIDs
	currentPage string
	currentNode string
}

// NewMemoryGraph creates an empty in-memory outline.
func NewMemoryGraph() *MemoryGraph {
	return &MemoryGraph{
		nodes: make(map[string]*Node),
		pages: make(map[string][]string),
	}
}

// Node returns a copy of the stored node so callers cannot mutate graph state.
func (g *MemoryGraph) Node(id string) (*Node, bool) {
	g.mu.RLock()
	defer g.mu.RUnlock()

	n, ok := g.nodes[id]
	if !ok {
		return nil, false
	}
	return cloneNode(n), true
}

// PageTree returns the root nodes of a page in document order.
func (g *MemoryGraph) PageTree(name string) []*Node {
	g.mu.RLock()
	defer g.mu.RUnlock()

	roots := g.pages[name]
	out := make([]*Node, 0, len(roots))
	for _, id := range roots {
		if n, ok := g.nodes[id]; ok {
			out = append(out, cloneNode(n))
		}
	}
	return out
}

// CurrentPage returns the active page name.
func (g *MemoryGraph) CurrentPage() string {
	g.mu.RLock()
	defer g.mu.RUnlock()
	return g.currentPage
}

// CurrentNode returns the focused node, if any.
func (g *MemoryGraph) CurrentNode() (*Node, bool) {
	g.mu.RLock()
	id := g.currentNode
	g.mu.RUnlock()
	if id == "" {
		return nil, false
	}
	return g.Node(id)
}

// SetCurrent marks the active page and focused node. Either may be empty.
func (g *MemoryGraph) SetCurrent(page, node string) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.currentPage = page
	g.currentNode = node
}

// Create inserts a new node at the target and returns its UUID.
func (g *MemoryGraph) Create(target CreateTarget, text string) (string, error) {
	g.mu.Lock()
	defer g.mu.Unlock()

	id := uuid.NewString()
	n := &Node{UUID: id, Content: text, Properties: map[string]string{}}

	if target.ParentUUID != "" {
		parent, ok := g.nodes[target.ParentUUID]
		if !ok {
			return "", fmt.Errorf("parent node %s not found", target.ParentUUID)
		}
		n.Parent = parent.UUID
		n.Page = parent.Page
		parent.Children = append(parent.Children, id)
	} else {
		page := target.Page
		if page == "" {
			page = g.currentPage
		}
		if page == "" {
			return "", fmt.Errorf("no target page for new node")
		}
		n.Page = page
		g.pages[page] = append(g.pages[page], id)
	}

	g.nodes[id] = n
	logging.OutlineDebug("created node %s under parent=%q page=%q", id, target.ParentUUID, n.Page)
	return id, nil
}

// SetContent overwrites the text of an existing node.
func (g *MemoryGraph) SetContent(id, text string) error {
	g.mu.Lock()
	defer g.mu.Unlock()

	n, ok := g.nodes[id]
	if !ok {
		return fmt.Errorf("node %s not found", id)
	}
	n.Content = text
	return nil
}

// SetProperty sets a property on an existing node.
func (g *MemoryGraph) SetProperty(id, key, value string) error {
	g.mu.Lock()
	defer g.mu.Unlock()

	n, ok := g.nodes[id]
	if !ok {
		return fmt.Errorf("node %s not found", id)
	}
	if n.Properties == nil {
		n.Properties = map[string]string{}
	}
	n.Properties[key] = value
	return nil
}

// Remove deletes a node and its whole subtree.
func (g *MemoryGraph) Remove(id string) error {
	g.mu.Lock()
	defer g.mu.Unlock()

	n, ok := g.nodes[id]
	if !ok {
		return fmt.Errorf("node %s not found", id)
	}

	// Detach from parent or page roots.
	if n.Parent != "" {
		if parent, ok := g.nodes[n.Parent]; ok {
			parent.Children = removeID(parent.Children, id)
		}
	} else {
		g.pages[n.Page] = removeID(g.pages[n.Page], id)
	}

	g.removeSubtree(id)
	return nil
}

func (g *MemoryGraph) removeSubtree(id string) {
	n, ok := g.nodes[id]
	if !ok {
		return
	}
	for _, child := range n.Children {
		g.removeSubtree(child)
	}
	delete(g.nodes, id)
	if g.currentNode == id {
		g.currentNode = ""
	}
}

func removeID(ids []string, id string) []string {
	out := ids[:0]
	for _, v := range ids {
		if v != id {
			out = append(out, v)
		}
	}
	return out
}

func cloneNode(n *Node) *Node {
	c := *n
	c.Children = append([]string(nil), n.Children...)
	if n.Properties != nil {
		c.Properties = make(map[string]string, len(n.Properties))
		for k, v := range n.Properties {
			c.Properties[k] = v
		}
	}
	return &c
}
