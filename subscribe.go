package vitrine

import "fmt"

// SubscribeOptions sets parameters for a subscription.
type SubscribeOptions struct {
	// Immediate invokes the callback synchronously once per mutating
	// operation, right after the operation completes, instead of
	// coalescing deliveries per turn.
	Immediate bool
}

type subscription struct {
	node      *Node
	callback  func()
	immediate bool
	active    bool
	queued    bool
}

// Subscribe registers callback to run after any mutation affecting n,
// including mutations of descendants, and returns an unsubscribe
// function that is idempotent on repeated calls.
//
// In the default batched mode all mutations within one turn (one
// Batch(), or one mutating operation outside any Batch) are coalesced:
// the callback runs at most once per turn, after every mutation in the
// turn has been applied.  For a single node, callbacks fire in
// registration order.  Unsubscribing during delivery suppresses the
// in-flight invocation if it has not already run.
func (n *Node) Subscribe(callback func(), options *SubscribeOptions) func() {
	sub := &subscription{
		node:     n,
		callback: callback,
		active:   true,
	}
	if options != nil {
		sub.immediate = options.Immediate
	}
	n.subs = append(n.subs, sub)
	return func() {
		if !sub.active {
			return
		}
		sub.active = false
		for i, s := range n.subs {
			if s == sub {
				n.subs = append(n.subs[:i], n.subs[i+1:]...)
				break
			}
		}
	}
}

// Batch demarcates one turn: every mutation performed inside fn is
// applied as it happens, but batched subscribers are notified at most
// once, after the outermost Batch returns.  Batches nest.
func (n *Node) Batch(fn func()) {
	s := &n.rt.sched
	s.batchDepth++
	defer func() {
		s.batchDepth--
		if s.batchDepth == 0 {
			s.flush(n.rt)
		}
	}()
	fn()
}

// scheduler coalesces batched notification delivery per turn.  One
// scheduler serves all nodes under a root.
type scheduler struct {
	batchDepth int
	notifying  bool
	pending    []*subscription
}

// enqueue queues the batched subscribers of a freshly-bumped node.
// Subscribers already queued in the current turn are not queued again.
func (s *scheduler) enqueue(n *Node) {
	for _, sub := range n.subs {
		if sub.immediate || sub.queued {
			continue
		}
		sub.queued = true
		s.pending = append(s.pending, sub)
	}
}

// fireImmediate invokes a node's immediate subscribers, once per
// mutating operation, after the operation has fully applied.  Iterates
// a copy: a callback may subscribe or unsubscribe on this node.
func (s *scheduler) fireImmediate(n *Node) {
	subs := append([]*subscription(nil), n.subs...)
	for _, sub := range subs {
		if sub.immediate && sub.active {
			sub.callback()
		}
	}
}

// opDone runs at the end of every mutating operation.  Outside a batch,
// an operation is its own turn.
func (s *scheduler) opDone(rt *root) {
	if s.batchDepth == 0 {
		s.flush(rt)
	}
}

// flush delivers pending batched notifications.  Mutations performed
// inside a callback queue for a following round rather than reentering
// the in-flight one.
func (s *scheduler) flush(rt *root) {
	if s.notifying {
		return
	}
	s.notifying = true
	defer func() { s.notifying = false }()
	for len(s.pending) > 0 {
		round := s.pending
		s.pending = nil
		for _, sub := range round {
			sub.queued = false
			if !sub.active {
				continue
			}
			before := sub.node.version
			sub.callback()
			if sub.node.version != before && rt.debug {
				// The callback mutated state it observes; a fresh
				// notification is already queued for the next round.
				fmt.Printf("stale delivery on %p: version %d -> %d during callback\n",
					sub.node, before, sub.node.version)
			}
		}
	}
}
