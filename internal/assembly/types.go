// Package assembly extracts textual content from the outline and bounds it
// to a token budget before it is sent to the model.
package assembly

// Kind identifies what the context was assembled from.
type Kind string

const (
	KindPage      Kind = "page"
	KindSubtree   Kind = "node-subtree"
	KindSelection Kind = "explicit-selection"
)

// Context is the assembled input to a model call.
type Context struct {
	Kind            Kind
	Content         string
	// SourceUUIDs lists every node whose content appears in Content, in
	// visit order. Truncation shortens Content but never revises this list.
	SourceUUIDs     []string
	EstimatedTokens int
	WasTruncated    bool
	Metadata        map[string]string
}
