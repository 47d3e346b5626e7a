package cache

// lruNode is a node in a doubly-linked recency list. It stores the key so the
// owning map entry can be deleted when the node is evicted.
type lruNode[K comparable] struct {
	key  K
	prev *lruNode[K]
	next *lruNode[K]
}

// lruList orders keys by recency: head is most recently used, tail is least.
// The list is not thread-safe; callers must handle synchronization.
type lruList[K comparable] struct {
	head *lruNode[K]
	tail *lruNode[K]
	len  int
}

// pushFront inserts key as the most recently used entry.
func (l *lruList[K]) pushFront(key K) *lruNode[K] {
	node := &lruNode[K]{key: key}
	l.linkFront(node)
	return node
}

// touch marks node as the most recently used entry.
func (l *lruList[K]) touch(node *lruNode[K]) {
	if node == l.head {
		return
	}
	l.unlink(node)
	l.linkFront(node)
}

// popBack removes the least recently used key.
func (l *lruList[K]) popBack() (K, bool) {
	if l.tail == nil {
		var zero K
		return zero, false
	}
	node := l.tail
	l.unlink(node)
	return node.key, true
}

func (l *lruList[K]) linkFront(node *lruNode[K]) {
	node.prev = nil
	node.next = l.head
	if l.head != nil {
		l.head.prev = node
	}
	l.head = node
	if l.tail == nil {
		l.tail = node
	}
	l.len++
}

func (l *lruList[K]) unlink(node *lruNode[K]) {
	if node.prev != nil {
		node.prev.next = node.next
	} else {
		l.head = node.next
	}
	if node.next != nil {
		node.next.prev = node.prev
	} else {
		l.tail = node.prev
	}
	node.prev = nil
	node.next = nil
	l.len--
}
