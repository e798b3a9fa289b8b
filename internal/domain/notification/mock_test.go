package notification

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
)

type mockRepo struct {
	mu    sync.Mutex
	items map[uuid.UUID]*Notification
	clock time.Time
}

func newMockRepo() *mockRepo {
	return &mockRepo{items: map[uuid.UUID]*Notification{}, clock: time.Date(2024, 6, 1, 8, 0, 0, 0, time.UTC)}
}

func (m *mockRepo) Create(_ context.Context, n *Notification) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if n.ID == uuid.Nil {
		n.ID = uuid.New()
	}
	m.clock = m.clock.Add(time.Minute)
	n.CreatedAt = m.clock
	cp := *n
	m.items[n.ID] = &cp
	return nil
}

func (m *mockRepo) ListByUser(_ context.Context, userID uuid.UUID, unreadOnly bool) ([]*Notification, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	items := []*Notification{}
	for _, n := range m.items {
		if n.UserID != userID || (unreadOnly && n.IsRead) {
			continue
		}
		cp := *n
		items = append(items, &cp)
	}
	sort.Slice(items, func(i, j int) bool { return items[i].CreatedAt.After(items[j].CreatedAt) })
	return items, nil
}

func (m *mockRepo) MarkRead(_ context.Context, id, userID uuid.UUID) (*Notification, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	n, ok := m.items[id]
	if !ok || n.UserID != userID {
		return nil, ErrNotFound
	}
	n.IsRead = true
	cp := *n
	return &cp, nil
}

func (m *mockRepo) MarkAllRead(_ context.Context, userID uuid.UUID) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var count int64
	for _, n := range m.items {
		if n.UserID == userID && !n.IsRead {
			n.IsRead = true
			count++
		}
	}
	return count, nil
}

func (m *mockRepo) Delete(_ context.Context, id, userID uuid.UUID) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	n, ok := m.items[id]
	if !ok || n.UserID != userID {
		return ErrNotFound
	}
	delete(m.items, id)
	return nil
}

func (m *mockRepo) CountUnread(_ context.Context, userID uuid.UUID) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	count := 0
	for _, n := range m.items {
		if n.UserID == userID && !n.IsRead {
			count++
		}
	}
	return count, nil
}
