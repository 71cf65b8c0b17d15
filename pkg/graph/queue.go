package graph

// WorkQueue is the FIFO of nodes waiting to run in one traversal.
type WorkQueue struct {
	items []*Node
}

// NewWorkQueue creates an empty queue.
func NewWorkQueue() *WorkQueue {
	return &WorkQueue{}
}

// Push appends n unless the same node is already queued.
func (q *WorkQueue) Push(n *Node) bool {
	if q.Contains(n) {
		return false
	}
	q.items = append(q.items, n)
	return true
}

// Pop removes and returns the oldest node, or nil when empty.
func (q *WorkQueue) Pop() *Node {
	if len(q.items) == 0 {
		return nil
	}
	n := q.items[0]
	q.items[0] = nil
	q.items = q.items[1:]
	return n
}

// Contains reports whether n is queued. Nodes are compared by identity.
func (q *WorkQueue) Contains(n *Node) bool {
	for _, item := range q.items {
		if item == n || item.UID == n.UID {
			return true
		}
	}
	return false
}

// Len returns the number of queued nodes.
func (q *WorkQueue) Len() int { return len(q.items) }
