package blockchain

// TipChangeEvent is published whenever activate_best_chain moves the
// tip, per spec.md §4.5.3/§5: copied under chainstate_lock and fired
// after release, so listeners never block the chain-selection path.
type TipChangeEvent struct {
	NewTip *Node
	Reorg  bool
}

// NotificationListener receives tip-change events. Implementations must
// not block; the chain signals listeners synchronously on publish.
type NotificationListener func(TipChangeEvent)

// notifier is a minimal fan-out list, intentionally simpler than a
// generic pub/sub bus: the chainstate manager has exactly one kind of
// event to publish (spec.md §2 C15).
type notifier struct {
	listeners []NotificationListener
}

func (n *notifier) subscribe(l NotificationListener) {
	n.listeners = append(n.listeners, l)
}

func (n *notifier) publish(ev TipChangeEvent) {
	for _, l := range n.listeners {
		l(ev)
	}
}
