package prefixdb

// treeNode represents a node in the prefix trie. The bit following the
// node's depth selects the child: 0 goes left, 1 goes right.
type treeNode[V any] struct {
	left  *treeNode[V]
	right *treeNode[V]

	terminal bool
	value    V
}

func newNode[V any]() *treeNode[V] {
	return &treeNode[V]{}
}

func (node *treeNode[V]) isLeaf() bool {
	return nil != node && nil == node.right && nil == node.left
}

func (node *treeNode[V]) isTerminal() bool {
	return nil != node && node.terminal
}

func (node *treeNode[V]) markTerminal() {
	if nil != node {
		node.terminal = true
	}
}

func (node *treeNode[V]) unmarkTerminal() {
	if nil != node {
		var zero V
		node.terminal = false
		node.value = zero
	}
}

func (node *treeNode[V]) saveAndMarkTerminal(value V) {
	node.value = value
	node.markTerminal()
}

// child returns the child selected by bit.
func (node *treeNode[V]) child(bit uint32) *treeNode[V] {
	if 0 == bit {
		return node.left
	}
	return node.right
}

// childSlot returns the address of the child pointer selected by bit.
func (node *treeNode[V]) childSlot(bit uint32) **treeNode[V] {
	if 0 == bit {
		return &node.left
	}
	return &node.right
}

// nodeStack is a simple stack of tree nodes used by the iterative
// traversals. Every entry remembers the key of the prefix it represents.
type nodeStack[V any] struct {
	entries []stackEntry[V]
}

type stackEntry[V any] struct {
	node *treeNode[V]
	key  Key
}

func newNodeStack[V any](capacity int) *nodeStack[V] {
	return &nodeStack[V]{
		entries: make([]stackEntry[V], 0, capacity),
	}
}

func (s *nodeStack[V]) Push(node *treeNode[V], key Key) {
	s.entries = append(s.entries, stackEntry[V]{node: node, key: key})
}

func (s *nodeStack[V]) Pop() (*treeNode[V], Key) {
	if len(s.entries) == 0 {
		return nil, Key{}
	}

	entry := s.entries[len(s.entries)-1]
	s.entries = s.entries[:len(s.entries)-1]
	return entry.node, entry.key
}

func (s *nodeStack[V]) Peek() *treeNode[V] {
	if len(s.entries) == 0 {
		return nil
	}
	return s.entries[len(s.entries)-1].node
}

func (s *nodeStack[V]) IsEmpty() bool {
	return len(s.entries) == 0
}

func (s *nodeStack[V]) Size() int {
	return len(s.entries)
}
