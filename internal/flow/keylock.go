package flow

import "sync"

// chatLocker serializes processing per chat identity. The state machine has
// no optimistic-concurrency mechanism, so each event for a chat must run
// load → mutate → save to completion before the next one starts. Events for
// different chats proceed independently.
type chatLocker struct {
	mu    sync.Mutex
	locks map[string]*sync.Mutex
}

func newChatLocker() *chatLocker {
	return &chatLocker{locks: make(map[string]*sync.Mutex)}
}

// Lock acquires the per-chat lock and returns the unlock function.
func (l *chatLocker) Lock(chatID string) func() {
	l.mu.Lock()
	lock, ok := l.locks[chatID]
	if !ok {
		lock = &sync.Mutex{}
		l.locks[chatID] = lock
	}
	l.mu.Unlock()

	lock.Lock()
	return lock.Unlock
}
