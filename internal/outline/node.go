// Package outline models the host document tree: nested text blocks with
// ordered children and string properties. The engine consumes the host
// through the narrow Reader/Writer contract; two implementations are
// provided, an in-memory graph and a SQLite-backed one.
package outline

// Node is one unit of text in the document tree.
type Node struct {
	UUID       string
	Content    string
	Children   []string // ordered child UUIDs
	Parent     string   // empty at page roots
	Page       string
	Properties map[string]string
}

// Prop returns a property value and whether it is present.
func (n *Node) Prop(key string) (string, bool) {
	if n.Properties == nil {
		return "", false
	}
	v, ok := n.Properties[key]
	return v, ok
}

// CreateTarget selects where a new node is attached: as the last child of
// ParentUUID when set, otherwise appended to the roots of Page.
type CreateTarget struct {
	ParentUUID string
	Page       string
}

// Reader is the read half of the outline host contract. Missing nodes and
// pages are reported through the boolean / empty results, never as errors:
// the engine degrades to empty context rather than failing a request.
type Reader interface {
	// Node returns one node by UUID, or false if it does not exist.
	Node(uuid string) (*Node, bool)
	// PageTree returns the root nodes of a page in document order, with
	// child UUID lists populated. An unknown page yields an empty slice.
	PageTree(name string) []*Node
	// CurrentPage returns the page the host considers active.
	CurrentPage() string
	// CurrentNode returns the block the host considers focused, if any.
	CurrentNode() (*Node, bool)
}

// Writer is the write half of the contract. The engine only creates nodes
// it owns (placeholders, results) and rewrites or removes those.
type Writer interface {
	// Create inserts a new node at the target and returns its UUID.
	Create(target CreateTarget, text string) (string, error)
	// SetContent overwrites the text of an existing node.
	SetContent(uuid, text string) error
	// Remove deletes a node and its subtree.
	Remove(uuid string) error
}

// Graph combines both halves; host implementations satisfy it.
type Graph interface {
	Reader
	Writer
}
