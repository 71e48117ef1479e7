// Package notifier provides a simple broadcast mechanism for SSE updates.
package notifier

import "sync"

// Topics broadcast by the server.
const (
	TopicDatasources = "datasources"
	TopicHistory     = "history"
)

// Notifier broadcasts topic names to all subscribed listeners.
// Listeners receive the name of what changed and should re-query it.
type Notifier struct {
	mu        sync.RWMutex
	listeners map[chan string]struct{}
}

// New creates a new Notifier instance.
func New() *Notifier {
	return &Notifier{
		listeners: make(map[chan string]struct{}),
	}
}

// Subscribe returns a channel that receives topics when updates are available.
// The caller must call Unsubscribe when done to prevent goroutine leaks.
func (n *Notifier) Subscribe() chan string {
	ch := make(chan string, 4)
	n.mu.Lock()
	n.listeners[ch] = struct{}{}
	n.mu.Unlock()
	return ch
}

// Unsubscribe removes a listener channel and closes it.
func (n *Notifier) Unsubscribe(ch chan string) {
	n.mu.Lock()
	defer n.mu.Unlock()
	if _, ok := n.listeners[ch]; !ok {
		return
	}
	delete(n.listeners, ch)
	close(ch)
}

// Broadcast sends topic to all listeners.
// Non-blocking: if a listener's channel is full, the topic is skipped.
func (n *Notifier) Broadcast(topic string) {
	n.mu.RLock()
	defer n.mu.RUnlock()

	for ch := range n.listeners {
		select {
		case ch <- topic:
		default:
			// Channel full, skip (listener will catch up on next broadcast)
		}
	}
}
