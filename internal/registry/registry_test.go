package registry

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestAttachAndBroadcast(t *testing.T) {
	r := New()
	host := &Connection{Code: "ABC123", UserID: "host-1", IsHost: true, Send: make(chan []byte, 4)}
	player := &Connection{Code: "ABC123", UserID: "player-1", IsHost: false, Send: make(chan []byte, 4)}

	r.Attach(host)
	r.Attach(player)

	assert.Equal(t, 2, r.Count("ABC123"))
	assert.True(t, r.IsHost("ABC123", "host-1"))
	assert.False(t, r.IsHost("ABC123", "player-1"))

	r.Broadcast("ABC123", []byte("hello"))
	assertReceives(t, host.Send, "hello")
	assertReceives(t, player.Send, "hello")
}

func TestBroadcastParticipantsExcludesHost(t *testing.T) {
	r := New()
	host := &Connection{Code: "ABC123", UserID: "host-1", IsHost: true, Send: make(chan []byte, 4)}
	player := &Connection{Code: "ABC123", UserID: "player-1", IsHost: false, Send: make(chan []byte, 4)}
	r.Attach(host)
	r.Attach(player)

	r.BroadcastParticipants("ABC123", []byte("question"))

	assertReceives(t, player.Send, "question")
	assertNoMessage(t, host.Send)
}

func TestBroadcastExceptSkipsExcludedUser(t *testing.T) {
	r := New()
	a := &Connection{Code: "ABC123", UserID: "a", Send: make(chan []byte, 4)}
	b := &Connection{Code: "ABC123", UserID: "b", Send: make(chan []byte, 4)}
	r.Attach(a)
	r.Attach(b)

	r.BroadcastExcept("ABC123", "a", []byte("ping"))

	assertNoMessage(t, a.Send)
	assertReceives(t, b.Send, "ping")
}

func TestAttachReplacesExistingConnectionOnReconnect(t *testing.T) {
	r := New()
	first := &Connection{Code: "ABC123", UserID: "player-1", Send: make(chan []byte, 4)}
	r.Attach(first)

	second := &Connection{Code: "ABC123", UserID: "player-1", Send: make(chan []byte, 4)}
	r.Attach(second)

	// The first connection's Send channel must be closed by the replace.
	_, open := <-first.Send
	assert.False(t, open)

	assert.Equal(t, 1, r.Count("ABC123"))
	code, ok := r.SessionOf("player-1")
	require.True(t, ok)
	assert.Equal(t, "ABC123", code)
}

func TestDetachIsIdentityComparedAgainstStaleConnection(t *testing.T) {
	r := New()
	first := &Connection{Code: "ABC123", UserID: "player-1", Send: make(chan []byte, 4)}
	r.Attach(first)

	second := &Connection{Code: "ABC123", UserID: "player-1", Send: make(chan []byte, 4)}
	r.Attach(second)

	// A deferred Detach from the now-stale first connection must not evict
	// the second, newer connection.
	r.Detach(first)

	assert.Equal(t, 1, r.Count("ABC123"))
	_, ok := r.SessionOf("player-1")
	assert.True(t, ok)
}

func TestDetachRemovesEmptySessionBucket(t *testing.T) {
	r := New()
	conn := &Connection{Code: "ABC123", UserID: "player-1", Send: make(chan []byte, 4)}
	r.Attach(conn)
	r.Detach(conn)

	assert.Equal(t, 0, r.Count("ABC123"))
	_, ok := r.SessionOf("player-1")
	assert.False(t, ok)
}

func assertReceives(t *testing.T, ch chan []byte, want string) {
	t.Helper()
	select {
	case msg := <-ch:
		assert.Equal(t, want, string(msg))
	case <-time.After(time.Second):
		t.Fatalf("expected message %q, got none", want)
	}
}

func assertNoMessage(t *testing.T, ch chan []byte) {
	t.Helper()
	select {
	case msg := <-ch:
		t.Fatalf("expected no message, got %q", string(msg))
	case <-time.After(50 * time.Millisecond):
	}
}
