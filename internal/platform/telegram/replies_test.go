package telegram

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"tg-eventbot/internal/platform"
)

func TestReplyRouterDeliversToWaiter(t *testing.T) {
	r := NewReplyRouter()

	got := make(chan string, 1)
	ready := make(chan struct{})
	go func() {
		close(ready)
		text, err := r.Await(context.Background(), 1, 42, time.Second)
		assert.NoError(t, err)
		got <- text
	}()
	<-ready

	// The waiter needs a moment to register.
	deadline := time.Now().Add(time.Second)
	for !r.Dispatch(1, 42, "hello") {
		if time.Now().After(deadline) {
			t.Fatal("dispatch never found the waiter")
		}
		time.Sleep(time.Millisecond)
	}

	select {
	case text := <-got:
		assert.Equal(t, "hello", text)
	case <-time.After(time.Second):
		t.Fatal("waiter never received the reply")
	}
}

func TestReplyRouterDispatchWithoutWaiter(t *testing.T) {
	r := NewReplyRouter()
	assert.False(t, r.Dispatch(1, 42, "hello"))
}

func TestReplyRouterTimeout(t *testing.T) {
	r := NewReplyRouter()
	_, err := r.Await(context.Background(), 1, 42, 10*time.Millisecond)
	assert.ErrorIs(t, err, platform.ErrReplyTimeout)

	// The waiter slot is released after the timeout.
	assert.False(t, r.Dispatch(1, 42, "late"))
}

func TestReplyRouterRejectsSecondWaiter(t *testing.T) {
	r := NewReplyRouter()

	started := make(chan struct{})
	done := make(chan struct{})
	go func() {
		close(started)
		r.Await(context.Background(), 1, 42, 500*time.Millisecond)
		close(done)
	}()
	<-started
	time.Sleep(10 * time.Millisecond)

	_, err := r.Await(context.Background(), 1, 42, time.Second)
	assert.ErrorIs(t, err, platform.ErrReplyPending)

	r.Dispatch(1, 42, "bye")
	<-done
}

func TestReplyRouterContextCancel(t *testing.T) {
	r := NewReplyRouter()
	ctx, cancel := context.WithCancel(context.Background())

	errCh := make(chan error, 1)
	go func() {
		_, err := r.Await(ctx, 1, 42, time.Minute)
		errCh <- err
	}()
	time.Sleep(10 * time.Millisecond)
	cancel()

	select {
	case err := <-errCh:
		assert.ErrorIs(t, err, context.Canceled)
	case <-time.After(time.Second):
		t.Fatal("Await did not return after cancel")
	}
}

func TestReplyRouterKeysByChatAndUser(t *testing.T) {
	r := NewReplyRouter()

	go r.Await(context.Background(), 1, 42, 200*time.Millisecond)
	time.Sleep(10 * time.Millisecond)

	assert.False(t, r.Dispatch(2, 42, "wrong chat"))
	assert.False(t, r.Dispatch(1, 43, "wrong user"))
	assert.True(t, r.Dispatch(1, 42, "right"))
}
