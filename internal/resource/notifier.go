package resource

import "sync"

// Notifier broadcasts change pings to subscribers. A ping carries no payload;
// listeners re-read whatever state they depend on.
type Notifier struct {
	mu        sync.RWMutex
	listeners map[int64]chan struct{}
	nextID    int64
}

// NewNotifier creates an empty notifier.
func NewNotifier() *Notifier {
	return &Notifier{listeners: make(map[int64]chan struct{})}
}

// Subscribe returns a channel receiving pings and a function that removes the
// subscription. Pings coalesce: a listener that has not drained its channel
// sees one pending ping no matter how many broadcasts happened.
func (n *Notifier) Subscribe() (<-chan struct{}, func()) {
	ch := make(chan struct{}, 1)
	n.mu.Lock()
	n.nextID++
	id := n.nextID
	n.listeners[id] = ch
	n.mu.Unlock()

	var once sync.Once
	return ch, func() {
		once.Do(func() {
			n.mu.Lock()
			delete(n.listeners, id)
			n.mu.Unlock()
		})
	}
}

// Broadcast pings every subscriber without blocking.
func (n *Notifier) Broadcast() {
	n.mu.RLock()
	defer n.mu.RUnlock()
	for _, ch := range n.listeners {
		select {
		case ch <- struct{}{}:
		default:
		}
	}
}
