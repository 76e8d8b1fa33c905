// Package ontology indexes ontology class trees by URI.
package ontology

import "sync"

// Node is one class of an ontology tree.
type Node struct {
	URI      string `json:"uri"`
	Name     string `json:"name"`
	Children []Node `json:"children,omitempty"`
}

// Index is a flat URI lookup over class trees.
type Index struct {
	mu    sync.RWMutex
	nodes map[string]Node
}

// NewIndex returns an empty index.
func NewIndex() *Index {
	return &Index{nodes: map[string]Node{}}
}

// SetClasses indexes every node of the trees. Nodes already indexed under
// the same URI are replaced.
func (i *Index) SetClasses(trees []Node) {
	i.mu.Lock()
	defer i.mu.Unlock()
	i.indexLocked(trees)
}

func (i *Index) indexLocked(trees []Node) {
	for _, node := range trees {
		i.nodes[node.URI] = node
		i.indexLocked(node.Children)
	}
}

// Node returns the class indexed under uri.
func (i *Index) Node(uri string) (Node, bool) {
	i.mu.RLock()
	defer i.mu.RUnlock()
	node, ok := i.nodes[uri]
	return node, ok
}

// Label returns the class name, or uri itself when unknown.
func (i *Index) Label(uri string) string {
	if node, ok := i.Node(uri); ok {
		return node.Name
	}
	return uri
}

// Len returns the number of indexed classes.
func (i *Index) Len() int {
	i.mu.RLock()
	defer i.mu.RUnlock()
	return len(i.nodes)
}
