package notify

import "sync"

// Guard suppresses repeat delivery of identical notification content
// within one session. The key is the explicit tag when set, otherwise
// "title-body".
type Guard struct {
	mu   sync.Mutex
	seen map[string]struct{}
}

func NewGuard() *Guard {
	return &Guard{seen: make(map[string]struct{})}
}

// Key derives the dedup key for a notification.
func Key(tag, title, body string) string {
	if tag != "" {
		return tag
	}
	return title + "-" + body
}

// Mark records the key and reports whether this is its first use.
func (g *Guard) Mark(key string) bool {
	g.mu.Lock()
	defer g.mu.Unlock()
	if _, ok := g.seen[key]; ok {
		return false
	}
	g.seen[key] = struct{}{}
	return true
}

// Reset clears all recorded keys. Called when a new session begins.
func (g *Guard) Reset() {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.seen = make(map[string]struct{})
}
