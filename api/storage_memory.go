package main

import (
	"context"
	"sort"
	"sync"
	"time"
)

// memoryStore keeps everything in process memory. It backs the service when
// no database is configured and is what the handler tests run against.
type memoryStore struct {
	mu         sync.RWMutex
	users      map[int64]user
	emails     map[string]int64
	todos      map[int64]todo
	nextUserID int64
	nextTodoID int64
}

func newMemoryStore() *memoryStore {
	return &memoryStore{
		users:  make(map[int64]user),
		emails: make(map[string]int64),
		todos:  make(map[int64]todo),
	}
}

func (s *memoryStore) insertUser(_ context.Context, u *user) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, exists := s.emails[u.Email]; exists {
		return errDuplicateIdentity
	}
	s.nextUserID++
	u.ID = s.nextUserID
	u.CreatedAt = time.Now().UTC()
	s.users[u.ID] = *u
	s.emails[u.Email] = u.ID
	return nil
}

func (s *memoryStore) getUserByEmail(_ context.Context, email string) (*user, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	id, ok := s.emails[email]
	if !ok {
		return nil, nil
	}
	u := s.users[id]
	return &u, nil
}

func (s *memoryStore) getUserByID(_ context.Context, id int64) (*user, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	u, ok := s.users[id]
	if !ok {
		return nil, nil
	}
	return &u, nil
}

func (s *memoryStore) getUsersByRole(_ context.Context, role string) ([]*user, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	users := []*user{}
	for _, u := range s.users {
		if u.Role == role {
			u := u
			users = append(users, &u)
		}
	}
	sort.Slice(users, func(i, j int) bool { return users[i].ID < users[j].ID })
	return users, nil
}

func (s *memoryStore) insertTodo(_ context.Context, t *todo) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.nextTodoID++
	t.ID = s.nextTodoID
	t.CreatedAt = time.Now().UTC()
	stored := *t
	stored.User = nil
	s.todos[t.ID] = stored
	return nil
}

func (f todoFilter) matches(t todo) bool {
	if f.ID != 0 && t.ID != f.ID {
		return false
	}
	if f.OwnerID != 0 && t.UserID != f.OwnerID {
		return false
	}
	return true
}

func (s *memoryStore) getTodos(_ context.Context, f todoFilter) ([]*todo, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	todos := []*todo{}
	for _, t := range s.todos {
		if !f.matches(t) {
			continue
		}
		u, ok := s.users[t.UserID]
		if !ok {
			continue
		}
		t := t
		t.User = &owner{Username: u.Username, Email: u.Email}
		todos = append(todos, &t)
	}
	sort.Slice(todos, func(i, j int) bool {
		if !todos[i].CreatedAt.Equal(todos[j].CreatedAt) {
			return todos[i].CreatedAt.After(todos[j].CreatedAt)
		}
		return todos[i].ID > todos[j].ID
	})
	return todos, nil
}

func (s *memoryStore) updateTodo(_ context.Context, f todoFilter, p todoPatch) (*todo, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if f.ID == 0 {
		return nil, nil
	}
	t, ok := s.todos[f.ID]
	if !ok || !f.matches(t) {
		return nil, nil
	}
	if p.Text != nil {
		t.Text = *p.Text
	}
	if p.Completed != nil {
		t.Completed = *p.Completed
	}
	if p.Priority != nil {
		t.Priority = *p.Priority
	}
	if p.SetDueTime {
		if p.DueTime == nil {
			t.DueTime = nil
		} else {
			due := p.DueTime.UTC()
			t.DueTime = &due
		}
	}
	s.todos[t.ID] = t
	return &t, nil
}

func (s *memoryStore) deleteTodo(_ context.Context, f todoFilter) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if f.ID == 0 {
		return false, nil
	}
	t, ok := s.todos[f.ID]
	if !ok || !f.matches(t) {
		return false, nil
	}
	delete(s.todos, t.ID)
	return true, nil
}
