package telegram

import (
	"context"
	"sync"
	"time"

	"tg-eventbot/internal/platform"
)

type waiterKey struct {
	chatID int64
	userID int64
}

// ReplyRouter hands incoming private messages to whoever is waiting for
// them. The wizard registers one wait per turn; the message handler calls
// Dispatch for every private text message and falls through to normal
// command handling when nobody consumed it.
type ReplyRouter struct {
	mu      sync.Mutex
	waiters map[waiterKey]chan string
}

func NewReplyRouter() *ReplyRouter {
	return &ReplyRouter{waiters: make(map[waiterKey]chan string)}
}

// Dispatch offers a message to a pending waiter. Returns true when consumed.
func (r *ReplyRouter) Dispatch(chatID, userID int64, text string) bool {
	r.mu.Lock()
	ch, ok := r.waiters[waiterKey{chatID, userID}]
	if ok {
		delete(r.waiters, waiterKey{chatID, userID})
	}
	r.mu.Unlock()
	if !ok {
		return false
	}
	ch <- text
	return true
}

// Await blocks for the next message from the user in the chat.
func (r *ReplyRouter) Await(ctx context.Context, chatID, userID int64, timeout time.Duration) (string, error) {
	key := waiterKey{chatID, userID}
	// Buffered so Dispatch never blocks on a waiter that lost the race
	// against its own timeout.
	ch := make(chan string, 1)

	r.mu.Lock()
	if _, exists := r.waiters[key]; exists {
		r.mu.Unlock()
		return "", platform.ErrReplyPending
	}
	r.waiters[key] = ch
	r.mu.Unlock()

	timer := time.NewTimer(timeout)
	defer timer.Stop()

	select {
	case text := <-ch:
		return text, nil
	case <-timer.C:
		r.drop(key)
		return "", platform.ErrReplyTimeout
	case <-ctx.Done():
		r.drop(key)
		return "", ctx.Err()
	}
}

func (r *ReplyRouter) drop(key waiterKey) {
	r.mu.Lock()
	delete(r.waiters, key)
	r.mu.Unlock()
}
