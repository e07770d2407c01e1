package prefixdb

import (
	"testing"
)

func TestTreeNode(t *testing.T) {
	var missing *treeNode[uint32]
	if missing.isLeaf() || missing.isTerminal() {
		t.Fatalf("isLeaf/isTerminal: nil node reported as leaf or terminal")
	}

	node := newNode[uint32]()
	if !node.isLeaf() {
		t.Fatalf("isLeaf: failed to recognize leaf node")
	}

	node.right = newNode[uint32]()
	if node.isLeaf() {
		t.Fatalf("isLeaf: incorrectly identified node as leaf")
	}
	if node.child(1) != node.right || node.child(0) != nil {
		t.Fatalf("child: wrong child selected")
	}

	*node.childSlot(0) = newNode[uint32]()
	if node.left == nil || node.isLeaf() {
		t.Fatalf("childSlot: left child not installed")
	}

	if node.isTerminal() {
		t.Fatalf("isTerminal: incorrectly identified node a terminal")
	}

	node.saveAndMarkTerminal(42)
	if !node.isTerminal() || node.value != 42 {
		t.Fatalf("saveAndMarkTerminal: failed to store value, got %v", node.value)
	}

	node.unmarkTerminal()
	if node.isTerminal() {
		t.Fatalf("isTerminal: incorrectly identified node a terminal")
	}
	if node.value != 0 {
		t.Fatalf("unmarkTerminal: value %v not cleared", node.value)
	}
}

func TestTreeNodeStack(t *testing.T) {
	stack := newNodeStack[string](2)
	if stack == nil {
		t.Fatalf("newNodeStack: returned nil stack")
	}

	if !stack.IsEmpty() {
		t.Fatalf("IsEmpty: stack incorrectly identified as non-empty")
	}

	if stack.Peek() != nil {
		t.Fatalf("Peek: expected nil on empty stack, got %v", stack.Peek())
	}

	if stack.Size() != 0 {
		t.Fatalf("Size: expected size 0 on empty stack, got %d", stack.Size())
	}

	node1 := newNode[string]()
	node2 := newNode[string]()
	key1 := Key{Addr: 0x80000000, Bits: 1}
	key2 := Key{Addr: 0xC0000000, Bits: 2}

	stack.Push(node1, key1)
	if stack.IsEmpty() {
		t.Fatalf("IsEmpty: stack incorrectly identified as empty")
	}
	if stack.Peek() != node1 {
		t.Fatalf("Peek: top of stack does not match expected node1")
	}

	stack.Push(node2, key2)
	if stack.Peek() != node2 {
		t.Fatalf("Peek: top of stack does not match expected node2")
	}
	if stack.Size() != 2 {
		t.Fatalf("Size: stack length incorrect, expected 2 got %d", stack.Size())
	}

	popped, key := stack.Pop()
	if popped != node2 || key != key2 {
		t.Fatalf("Pop: popped entry does not match expected node2 %v, got %v", key2, key)
	}

	popped, key = stack.Pop()
	if popped != node1 || key != key1 {
		t.Fatalf("Pop: popped entry does not match expected node1 %v, got %v", key1, key)
	}
	if !stack.IsEmpty() {
		t.Fatalf("IsEmpty: stack incorrectly identified as non-empty after pops")
	}

	popped, _ = stack.Pop()
	if popped != nil {
		t.Fatalf("Pop: expected nil when popping from empty stack, got %v", popped)
	}
}
