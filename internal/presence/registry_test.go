package presence

import (
	"fmt"
	"sync"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/whitechapel007/chat-app-pern/internal/event"
)

type fakeConn struct {
	id     string
	full   bool
	mu     sync.Mutex
	got    []event.Event
	closed atomic.Bool
}

func (c *fakeConn) ID() string { return c.id }

func (c *fakeConn) Send(ev event.Event) bool {
	if c.full {
		return false
	}
	c.mu.Lock()
	c.got = append(c.got, ev)
	c.mu.Unlock()
	return true
}

func (c *fakeConn) Close() { c.closed.Store(true) }

func (c *fakeConn) count() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.got)
}

func TestRegisterSupersedes(t *testing.T) {
	r := NewRegistry()
	first := &fakeConn{id: "c1"}
	second := &fakeConn{id: "c2"}

	assert.Nil(t, r.Register("u1", first))
	assert.Equal(t, first, r.Register("u1", second))
	assert.Nil(t, r.Register("u1", second), "re-registering the same conn supersedes nothing")

	c, ok := r.ConnectionFor("u1")
	require.True(t, ok)
	assert.Equal(t, "c2", c.ID())
	assert.Equal(t, 1, r.Len())
}

func TestUnregisterOnlyMatchingConn(t *testing.T) {
	r := NewRegistry()
	old := &fakeConn{id: "old"}
	fresh := &fakeConn{id: "fresh"}
	r.Register("u1", old)
	r.Register("u1", fresh)

	assert.False(t, r.Unregister("u1", old), "late disconnect of a superseded conn")
	assert.True(t, r.IsOnline("u1"))

	assert.True(t, r.Unregister("u1", fresh))
	assert.False(t, r.IsOnline("u1"))
	assert.False(t, r.Unregister("u1", fresh))
}

func TestSendToOfflineUser(t *testing.T) {
	r := NewRegistry()
	assert.False(t, r.SendToUser("ghost", event.New(event.UserLeft{UserID: "x"})))
	assert.Empty(t, r.SendToMany([]string{"ghost", "other"}, event.New(event.UserLeft{UserID: "x"})))
	assert.Zero(t, r.BroadcastAll(event.New(event.UserLeft{UserID: "x"})))
}

func TestSendToMany(t *testing.T) {
	r := NewRegistry()
	a, b, full := &fakeConn{id: "a"}, &fakeConn{id: "b"}, &fakeConn{id: "f", full: true}
	r.Register("ua", a)
	r.Register("ub", b)
	r.Register("uf", full)

	got := r.SendToMany([]string{"ua", "ub", "ua", "uf", "offline"}, event.New(event.UserLeft{UserID: "x"}))
	assert.ElementsMatch(t, []string{"ua", "ub"}, got)
	assert.Equal(t, 1, a.count(), "duplicate ids deliver once")
	assert.Equal(t, 1, b.count())
}

func TestBroadcastAllExcept(t *testing.T) {
	r := NewRegistry()
	a, b, c := &fakeConn{id: "a"}, &fakeConn{id: "b"}, &fakeConn{id: "c"}
	r.Register("ua", a)
	r.Register("ub", b)
	r.Register("uc", c)

	n := r.BroadcastAll(event.New(event.UserLeft{UserID: "x"}), "ub")
	assert.Equal(t, 2, n)
	assert.Equal(t, 1, a.count())
	assert.Equal(t, 0, b.count())
	assert.Equal(t, 1, c.count())
}

func TestSnapshotAndListOnline(t *testing.T) {
	r := NewRegistry()
	r.Register("ub", &fakeConn{id: "cb"})
	r.Register("ua", &fakeConn{id: "ca"})

	assert.Equal(t, []string{"ua", "ub"}, r.ListOnline())
	assert.Equal(t, []event.OnlineUser{
		{UserID: "ua", ConnectionID: "ca", IsOnline: true},
		{UserID: "ub", ConnectionID: "cb", IsOnline: true},
	}, r.Snapshot())
}

func TestRegistryConcurrentAccess(t *testing.T) {
	r := NewRegistry()
	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			uid := fmt.Sprintf("u%d", i%10)
			c := &fakeConn{id: fmt.Sprintf("c%d", i)}
			r.Register(uid, c)
			for j := 0; j < 20; j++ {
				r.IsOnline(uid)
				r.SendToUser(uid, event.New(event.UserLeft{UserID: uid}))
				r.BroadcastAll(event.New(event.UserLeft{UserID: uid}), uid)
			}
			r.Unregister(uid, c)
		}(i)
	}
	wg.Wait()
	assert.LessOrEqual(t, r.Len(), 10)
}
