package client

import "sync"

// IgnoredMessages remembers which model messages the player chose to
// ignore, and on which turn. An entry hides its message for the turn it was
// ignored and the following span-1 turns.
type IgnoredMessages struct {
	mu   sync.Mutex
	span int
	keys map[string]int
}

// NewIgnoredMessages returns an empty set. span < 1 is treated as 1.
func NewIgnoredMessages(span int) *IgnoredMessages {
	return &IgnoredMessages{span: max(span, 1), keys: make(map[string]int)}
}

// Ignore hides key from turn on.
func (im *IgnoredMessages) Ignore(key string, turn int) {
	im.mu.Lock()
	defer im.mu.Unlock()
	im.keys[key] = turn
}

// IsIgnored reports whether key is hidden on turn.
func (im *IgnoredMessages) IsIgnored(key string, turn int) bool {
	im.mu.Lock()
	defer im.mu.Unlock()
	at, ok := im.keys[key]
	return ok && turn >= at && turn < at+im.span
}

// Prune drops entries that can no longer hide anything on currentTurn or
// later, and returns how many were dropped.
func (im *IgnoredMessages) Prune(currentTurn int) int {
	im.mu.Lock()
	defer im.mu.Unlock()
	n := 0
	for k, at := range im.keys {
		if at+im.span <= currentTurn {
			delete(im.keys, k)
			n++
		}
	}
	return n
}

// Len returns the number of entries.
func (im *IgnoredMessages) Len() int {
	im.mu.Lock()
	defer im.mu.Unlock()
	return len(im.keys)
}
