package module

// Notifier wakes up a single worker routine when new work arrives. It
// behaves like a channel in that it can be passed by value while sharing
// internal state.
//
// Notify is level-triggered with memory: notifying an already-notified
// Notifier is a no-op, and a notification sent while nobody is waiting is
// delivered to the next receiver. This is implemented as a buffered channel
// of capacity one, so the notifying routine never blocks.
type Notifier struct {
	ch chan struct{} // buffered, capacity 1
}

// NewNotifier instantiates a Notifier.
func NewNotifier() Notifier {
	return Notifier{ch: make(chan struct{}, 1)}
}

// Notify signals that work is available. Never blocks.
func (n Notifier) Notify() {
	select {
	case n.ch <- struct{}{}:
	default:
		// already pending; the worker will run anyway
	}
}

// Channel returns the channel to receive notifications from.
func (n Notifier) Channel() <-chan struct{} {
	return n.ch
}
