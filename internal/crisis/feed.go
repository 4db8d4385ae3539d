package crisis

import (
	"sync"
	"time"
)

// Alert is one escalation on the responder feed.
type Alert struct {
	Severity    string    `json:"severity"`
	SessionID   string    `json:"sessionId,omitempty"`
	PrincipalID string    `json:"principalId,omitempty"`
	Timestamp   time.Time `json:"timestamp"`
}

// Feed fans escalations out to subscribed responder clients. Publishing
// never blocks: a subscriber that cannot keep up loses alerts rather than
// stalling the escalation path.
type Feed struct {
	mu   sync.RWMutex
	subs map[int]chan Alert
	next int
}

// NewFeed initialises an empty feed.
func NewFeed() *Feed {
	return &Feed{subs: make(map[int]chan Alert)}
}

// Subscribe registers a feed consumer. The returned cancel func must be
// called when the consumer goes away.
func (f *Feed) Subscribe() (<-chan Alert, func()) {
	f.mu.Lock()
	id := f.next
	f.next++
	ch := make(chan Alert, 16)
	f.subs[id] = ch
	f.mu.Unlock()

	cancel := func() {
		f.mu.Lock()
		if sub, ok := f.subs[id]; ok {
			delete(f.subs, id)
			close(sub)
		}
		f.mu.Unlock()
	}
	return ch, cancel
}

// Publish delivers the alert to every live subscriber.
func (f *Feed) Publish(a Alert) {
	f.mu.RLock()
	defer f.mu.RUnlock()
	for _, ch := range f.subs {
		select {
		case ch <- a:
		default:
		}
	}
}
