// Package presence хранит, кто из пользователей сейчас подключён.
// Один пользователь — одно активное подключение; новое вытесняет старое.
package presence

import (
	"slices"
	"sync"

	"github.com/samber/lo"

	"github.com/whitechapel007/chat-app-pern/internal/event"
)

// Conn — живое подключение. Send не блокирует и сообщает, принят ли кадр транспортом.
type Conn interface {
	ID() string
	Send(ev event.Event) bool
	Close()
}

type Registry struct {
	mu    sync.RWMutex
	conns map[string]Conn
}

func NewRegistry() *Registry {
	return &Registry{conns: make(map[string]Conn)}
}

// Register записывает подключение пользователя и возвращает вытесненное (или nil).
func (r *Registry) Register(userID string, c Conn) Conn {
	r.mu.Lock()
	prev := r.conns[userID]
	r.conns[userID] = c
	r.mu.Unlock()
	if prev == c {
		return nil
	}
	return prev
}

// Unregister удаляет запись, только если она всё ещё указывает на c.
// Запоздалое отключение старого подключения не трогает новое.
func (r *Registry) Unregister(userID string, c Conn) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	cur, ok := r.conns[userID]
	if !ok || cur != c {
		return false
	}
	delete(r.conns, userID)
	return true
}

func (r *Registry) IsOnline(userID string) bool {
	r.mu.RLock()
	_, ok := r.conns[userID]
	r.mu.RUnlock()
	return ok
}

func (r *Registry) ConnectionFor(userID string) (Conn, bool) {
	r.mu.RLock()
	c, ok := r.conns[userID]
	r.mu.RUnlock()
	return c, ok
}

func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.conns)
}

// ListOnline возвращает отсортированные id пользователей онлайн.
func (r *Registry) ListOnline() []string {
	r.mu.RLock()
	ids := lo.Keys(r.conns)
	r.mu.RUnlock()
	slices.Sort(ids)
	return ids
}

func (r *Registry) Snapshot() []event.OnlineUser {
	r.mu.RLock()
	out := make([]event.OnlineUser, 0, len(r.conns))
	for uid, c := range r.conns {
		out = append(out, event.OnlineUser{UserID: uid, ConnectionID: c.ID(), IsOnline: true})
	}
	r.mu.RUnlock()
	slices.SortFunc(out, func(a, b event.OnlineUser) int {
		switch {
		case a.UserID < b.UserID:
			return -1
		case a.UserID > b.UserID:
			return 1
		}
		return 0
	})
	return out
}

// SendToUser отдаёт событие подключению пользователя. false — пользователь офлайн
// или его буфер отправки переполнен; это не ошибка.
func (r *Registry) SendToUser(userID string, ev event.Event) bool {
	c, ok := r.ConnectionFor(userID)
	if !ok {
		return false
	}
	return c.Send(ev)
}

// SendToMany возвращает id тех, кому событие было передано.
func (r *Registry) SendToMany(userIDs []string, ev event.Event) []string {
	targets := make(map[string]Conn, len(userIDs))
	r.mu.RLock()
	for _, uid := range userIDs {
		if c, ok := r.conns[uid]; ok {
			targets[uid] = c
		}
	}
	r.mu.RUnlock()

	delivered := make([]string, 0, len(targets))
	for _, uid := range lo.Uniq(userIDs) {
		c, ok := targets[uid]
		if ok && c.Send(ev) {
			delivered = append(delivered, uid)
		}
	}
	return delivered
}

// BroadcastAll рассылает событие всем подключениям, кроме except. Возвращает число доставленных.
func (r *Registry) BroadcastAll(ev event.Event, except ...string) int {
	r.mu.RLock()
	targets := make([]Conn, 0, len(r.conns))
	for uid, c := range r.conns {
		if slices.Contains(except, uid) {
			continue
		}
		targets = append(targets, c)
	}
	r.mu.RUnlock()

	n := 0
	for _, c := range targets {
		if c.Send(ev) {
			n++
		}
	}
	return n
}
