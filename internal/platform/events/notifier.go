// Package events provides the process-wide session-expired signal. It is a
// fire-and-forget broadcast: publishers never wait on listeners and a
// publish with no subscribers is dropped.
package events

import "sync"

// Notifier is a subject with zero or more subscribers.
type Notifier struct {
	mu     sync.RWMutex
	nextID int
	subs   map[int]func()
}

func NewNotifier() *Notifier {
	return &Notifier{subs: make(map[int]func())}
}

// Subscribe registers fn and returns a function that removes it.
func (n *Notifier) Subscribe(fn func()) (unsubscribe func()) {
	n.mu.Lock()
	id := n.nextID
	n.nextID++
	n.subs[id] = fn
	n.mu.Unlock()

	var once sync.Once
	return func() {
		once.Do(func() {
			n.mu.Lock()
			delete(n.subs, id)
			n.mu.Unlock()
		})
	}
}

// Publish calls every subscriber synchronously, outside the lock, so a
// subscriber may unsubscribe from within its callback.
func (n *Notifier) Publish() {
	n.mu.RLock()
	fns := make([]func(), 0, len(n.subs))
	for _, fn := range n.subs {
		fns = append(fns, fn)
	}
	n.mu.RUnlock()

	for _, fn := range fns {
		fn()
	}
}

// Subscribers returns the current number of subscribers.
func (n *Notifier) Subscribers() int {
	n.mu.RLock()
	defer n.mu.RUnlock()
	return len(n.subs)
}
