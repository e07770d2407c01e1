package prefixdb

import (
	"context"
	"fmt"
)

// Tree is a binary trie over the 32 bit IPv4 key space. Each level consumes
// one address bit, most significant first, so every path is at most 32
// edges long and all operations are bounded independent of the number of
// stored prefixes.
//
// A Tree does no locking on its own. Lock handlers may be installed to let
// the owner impose a readers-writer discipline.
type Tree[V any] struct {
	root *treeNode[V]

	numPrefixes uint64
	numNodes    uint64

	rlockFn   ReadLockFn
	runlockFn ReadUnlockFn
	wlockFn   WriteLockFn
	unlockFn  UnlockFn
}

// Returns a new, empty prefix tree holding only the root node (0.0.0.0/0)
func NewTree[V any]() *Tree[V] {
	return &Tree[V]{
		root:     newNode[V](),
		numNodes: 1,
	}
}

// Returns a new prefix tree with custom lock handlers
// Arguments:
//
//	rlockFn   - read lock function
//	runlockFn - read unlock function
//	wlockFn   - write lock function
//	unlockFn  - unlock function
func NewTreeWithLockHandlers[V any](rlockFn ReadLockFn, runlockFn ReadUnlockFn, wlockFn WriteLockFn, unlockFn UnlockFn) *Tree[V] {
	t := NewTree[V]()
	t.SetLockHandlers(rlockFn, runlockFn, wlockFn, unlockFn)
	return t
}

func (t *Tree[V]) SetLockHandlers(rlockFn ReadLockFn, runlockFn ReadUnlockFn, wlockFn WriteLockFn, unlockFn UnlockFn) {
	if nil != t {
		t.rlockFn = rlockFn
		t.runlockFn = runlockFn
		t.wlockFn = wlockFn
		t.unlockFn = unlockFn
	}
}

func (t *Tree[V]) rlock(ctx context.Context) {
	if nil != t.rlockFn {
		t.rlockFn(ctx)
	}
}

func (t *Tree[V]) runlock(ctx context.Context) {
	if nil != t.runlockFn {
		t.runlockFn(ctx)
	}
}

func (t *Tree[V]) wlock(ctx context.Context) {
	if nil != t.wlockFn {
		t.wlockFn(ctx)
	}
}

func (t *Tree[V]) unlock(ctx context.Context) {
	if nil != t.unlockFn {
		t.unlockFn(ctx)
	}
}

// Len returns the number of stored prefixes.
func (t *Tree[V]) Len() uint64 {
	if nil == t {
		return 0
	}

	ctx := context.Background()
	t.rlock(ctx)
	defer t.runlock(ctx)
	return t.numPrefixes
}

// Nodes returns the number of trie nodes, root included.
func (t *Tree[V]) Nodes() uint64 {
	if nil == t {
		return 0
	}

	ctx := context.Background()
	t.rlock(ctx)
	defer t.runlock(ctx)
	return t.numNodes
}

// Inserts the given prefix into the tree
// Arguments:
//
//	ctx   - context for the operation, passed to the lock handlers
//	key   - prefix to store; host bits beyond key.Bits are ignored
//	value - value to be associated with the prefix
//
// Returns:
//
//	OpResult - Ok for a new prefix, Dup if the prefix was already stored
//	           and its value was overwritten, Error otherwise
//	error    - error, if any
func (t *Tree[V]) Insert(ctx context.Context, key Key, value V) (OpResult, error) {
	if nil == t {
		return Error, ErrInvalidPrefixTree
	}

	if key.Bits > MaxBits {
		return Error, fmt.Errorf("prefix length %d out of range: %w", key.Bits, ErrInvalidKey)
	}

	t.wlock(ctx)
	defer t.unlock(ctx)

	node := t.root
	for depth := 0; depth < int(key.Bits); depth++ {
		slot := node.childSlot(key.bitAt(depth))
		if nil == *slot {
			*slot = newNode[V]()
			t.numNodes++
		}
		node = *slot
	}

	res := Ok
	if node.isTerminal() {
		res = Dup
	} else {
		t.numPrefixes++
	}

	node.saveAndMarkTerminal(value)
	return res, nil
}

// Performs a longest prefix match for the given address
// Arguments:
//
//	ctx  - context for the operation
//	addr - IPv4 address
//
// Returns:
//
//	OpResult - Match or NoMatch
//	V        - value of the most specific prefix containing addr, if any
//	error    - error, if any
func (t *Tree[V]) Lookup(ctx context.Context, addr uint32) (OpResult, V, error) {
	_, res, value, err := t.LookupKey(ctx, addr)
	return res, value, err
}

// LookupKey is like Lookup but also returns the prefix that matched.
func (t *Tree[V]) LookupKey(ctx context.Context, addr uint32) (Key, OpResult, V, error) {
	var zero V
	if nil == t {
		return Key{}, Error, zero, ErrInvalidPrefixTree
	}

	t.rlock(ctx)
	defer t.runlock(ctx)

	var (
		best  V
		bits  uint8
		found bool
	)

	key := HostKey(addr)
	node := t.root
	for depth := 0; nil != node; depth++ {
		if node.isTerminal() {
			best, bits, found = node.value, uint8(depth), true
		}
		if depth == MaxBits {
			break
		}
		node = node.child(key.bitAt(depth))
	}

	if !found {
		return Key{}, NoMatch, zero, nil
	}
	return Key{Addr: addr & maskOf(bits), Bits: bits}, Match, best, nil
}

// Searches for a prefix stored exactly as given. Shorter covering
// prefixes do not match.
// Arguments:
//
//	ctx - context for the operation
//	key - prefix to search
//
// Returns:
//
//	OpResult - Match or NoMatch
//	V        - value associated with the prefix, if any
//	error    - error, if any
func (t *Tree[V]) SearchExact(ctx context.Context, key Key) (OpResult, V, error) {
	var zero V
	if nil == t {
		return Error, zero, ErrInvalidPrefixTree
	}

	if key.Bits > MaxBits {
		return Error, zero, fmt.Errorf("prefix length %d out of range: %w", key.Bits, ErrInvalidKey)
	}

	t.rlock(ctx)
	defer t.runlock(ctx)

	node := t.root
	for depth := 0; depth < int(key.Bits) && nil != node; depth++ {
		node = node.child(key.bitAt(depth))
	}

	if node.isTerminal() {
		return Match, node.value, nil
	}
	return NoMatch, zero, nil
}

// Walk the tree and call the passed function for every stored prefix.
// Prefixes are visited in pre-order: ascending address, and a covering
// prefix before the prefixes it contains.
// Arguments:
//
//	ctx      - context for the operation
//	callback - function to be called for every prefix in the tree
//
// Returns:
//
//	err - nil if successful, else the first error returned by callback
func (t *Tree[V]) Walk(ctx context.Context, callback WalkerFn[V]) error {
	if nil == t {
		return ErrInvalidPrefixTree
	}

	if nil == callback {
		return ErrNoWalkerFunction
	}

	t.rlock(ctx)
	defer t.runlock(ctx)

	stack := newNodeStack[V](MaxBits + 1)
	stack.Push(t.root, Key{})

	for !stack.IsEmpty() {
		node, key := stack.Pop()

		if node.isTerminal() {
			if err := callback(ctx, key, node.value); err != nil {
				return err
			}
		}

		if nil != node.right {
			stack.Push(node.right, key.child(1))
		}
		if nil != node.left {
			stack.Push(node.left, key.child(0))
		}
	}

	return nil
}

// Compact removes stored prefixes that cannot change any lookup result:
// a prefix whose nearest stored ancestor carries an equal value, and a
// pair of sibling leaf prefixes with equal values, which is replaced by
// their parent prefix. Empty nodes left behind are released.
// Arguments:
//
//	ctx   - context for the operation
//	equal - reports whether two values are interchangeable
//
// Returns:
//
//	int   - net number of stored prefixes removed
//	error - error, if any
func (t *Tree[V]) Compact(ctx context.Context, equal func(a, b V) bool) (int, error) {
	if nil == t {
		return 0, ErrInvalidPrefixTree
	}

	t.wlock(ctx)
	defer t.unlock(ctx)

	before := t.numPrefixes
	for {
		changed := t.dropShadowed(equal)
		if t.mergeSiblings(equal) {
			changed = true
		}
		if !changed {
			break
		}
	}

	return int(before - t.numPrefixes), nil
}

// dropShadowed unmarks prefixes whose nearest stored ancestor holds an
// equal value. Caller must hold the write lock.
func (t *Tree[V]) dropShadowed(equal func(a, b V) bool) bool {
	type frame struct {
		node     *treeNode[V]
		covered  bool
		ancestor V
	}

	changed := false
	stack := make([]frame, 0, MaxBits+1)
	stack = append(stack, frame{node: t.root})

	for len(stack) > 0 {
		f := stack[len(stack)-1]
		stack = stack[:len(stack)-1]

		if f.node.isTerminal() {
			if f.covered && equal(f.ancestor, f.node.value) {
				f.node.unmarkTerminal()
				t.numPrefixes--
				changed = true
			} else {
				f.covered, f.ancestor = true, f.node.value
			}
		}

		if nil != f.node.right {
			stack = append(stack, frame{node: f.node.right, covered: f.covered, ancestor: f.ancestor})
		}
		if nil != f.node.left {
			stack = append(stack, frame{node: f.node.left, covered: f.covered, ancestor: f.ancestor})
		}
	}

	return changed
}

// mergeSiblings releases empty leaves and folds pairs of equal sibling
// leaf prefixes into their parent. Nodes are visited in reverse pre-order
// so that children are always settled before their parent. Caller must
// hold the write lock.
func (t *Tree[V]) mergeSiblings(equal func(a, b V) bool) bool {
	order := make([]*treeNode[V], 0, t.numNodes)
	stack := newNodeStack[V](MaxBits + 1)
	stack.Push(t.root, Key{})
	for !stack.IsEmpty() {
		node, _ := stack.Pop()
		order = append(order, node)
		if nil != node.right {
			stack.Push(node.right, Key{})
		}
		if nil != node.left {
			stack.Push(node.left, Key{})
		}
	}

	changed := false
	for i := len(order) - 1; i >= 0; i-- {
		node := order[i]

		for _, slot := range []**treeNode[V]{&node.left, &node.right} {
			if child := *slot; nil != child && child.isLeaf() && !child.isTerminal() {
				*slot = nil
				t.numNodes--
			}
		}

		left, right := node.left, node.right
		if !left.isLeaf() || !right.isLeaf() || !left.isTerminal() || !right.isTerminal() {
			continue
		}
		if !equal(left.value, right.value) {
			continue
		}

		// Both halves are covered, so the node's own value is never
		// returned and may be replaced.
		if !node.isTerminal() {
			t.numPrefixes++
		}
		node.saveAndMarkTerminal(left.value)
		node.left, node.right = nil, nil
		t.numNodes -= 2
		t.numPrefixes -= 2
		changed = true
	}

	return changed
}
