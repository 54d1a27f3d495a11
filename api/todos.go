package main

import (
	"bytes"
	"context"
	"encoding/json"
	"strings"
	"time"
)

// dueTimeLayouts are tried in order. The last one is what a browser
// datetime-local input produces; it carries no zone and is read as UTC.
var dueTimeLayouts = []string{
	time.RFC3339Nano,
	"2006-01-02T15:04:05",
	"2006-01-02T15:04",
}

func parseDueTime(s string) (*time.Time, error) {
	for _, layout := range dueTimeLayouts {
		t, err := time.Parse(layout, s)
		if err == nil {
			t = t.UTC()
			return &t, nil
		}
	}
	return nil, newInputError("dueTime", "must be an RFC 3339 timestamp")
}

type createTodoInput struct {
	Text      string  `json:"text"`
	Completed bool    `json:"completed"`
	Priority  string  `json:"priority"`
	DueTime   *string `json:"dueTime"`
}

// nullableString tells an absent JSON key apart from an explicit null.
type nullableString struct {
	Set   bool
	Value *string
}

func (n *nullableString) UnmarshalJSON(data []byte) error {
	n.Set = true
	if bytes.Equal(data, []byte("null")) {
		n.Value = nil
		return nil
	}
	var s string
	err := json.Unmarshal(data, &s)
	if err != nil {
		return err
	}
	n.Value = &s
	return nil
}

type updateTodoInput struct {
	Text      *string        `json:"text"`
	Completed *bool          `json:"completed"`
	Priority  *string        `json:"priority"`
	DueTime   nullableString `json:"dueTime"`
}

// todoRepository applies the caller's access filter to every todo
// operation before storage is touched.
type todoRepository struct {
	store store
}

// accessFilter limits non-admins to their own todos. id 0 means every todo
// the caller may see.
func accessFilter(u *user, id int64) todoFilter {
	f := todoFilter{ID: id}
	if !u.isAdmin() {
		f.OwnerID = u.ID
	}
	return f
}

func (r *todoRepository) list(ctx context.Context, u *user) ([]*todo, error) {
	todos, err := r.store.getTodos(ctx, accessFilter(u, 0))
	if err != nil {
		return nil, err
	}
	if !u.isAdmin() {
		for _, t := range todos {
			t.User = nil
		}
	}
	return todos, nil
}

func (r *todoRepository) create(ctx context.Context, u *user, input createTodoInput) (*todo, error) {
	t := &todo{
		UserID:    u.ID,
		Text:      strings.TrimSpace(input.Text),
		Completed: input.Completed,
		Priority:  input.Priority,
	}
	if t.Priority == "" {
		t.Priority = priorityMedium
	}

	v := newValidator()
	v.checkText(t.Text)
	v.checkPriority(t.Priority)
	if input.DueTime != nil && *input.DueTime != "" {
		due, err := parseDueTime(*input.DueTime)
		if err != nil {
			v.checkCond(false, "dueTime", "must be an RFC 3339 timestamp")
		}
		t.DueTime = due
	}
	if v.hasErrors() {
		return nil, v.toError()
	}

	err := r.store.insertTodo(ctx, t)
	if err != nil {
		return nil, err
	}
	return t, nil
}

func (input updateTodoInput) patch() (todoPatch, error) {
	var p todoPatch
	v := newValidator()
	if input.Text != nil {
		text := strings.TrimSpace(*input.Text)
		v.checkText(text)
		p.Text = &text
	}
	if input.Priority != nil {
		v.checkPriority(*input.Priority)
		p.Priority = input.Priority
	}
	p.Completed = input.Completed
	if input.DueTime.Set {
		p.SetDueTime = true
		if input.DueTime.Value != nil && *input.DueTime.Value != "" {
			due, err := parseDueTime(*input.DueTime.Value)
			if err != nil {
				v.checkCond(false, "dueTime", "must be an RFC 3339 timestamp")
			}
			p.DueTime = due
		}
	}
	if v.hasErrors() {
		return todoPatch{}, v.toError()
	}
	return p, nil
}

// update reports errNotFound both for missing todos and for todos the
// caller does not own.
func (r *todoRepository) update(ctx context.Context, u *user, id int64, input updateTodoInput) (*todo, error) {
	p, err := input.patch()
	if err != nil {
		return nil, err
	}
	t, err := r.store.updateTodo(ctx, accessFilter(u, id), p)
	if err != nil {
		return nil, err
	}
	if t == nil {
		return nil, errNotFound
	}
	t.User = nil
	return t, nil
}

func (r *todoRepository) delete(ctx context.Context, u *user, id int64) error {
	deleted, err := r.store.deleteTodo(ctx, accessFilter(u, id))
	if err != nil {
		return err
	}
	if !deleted {
		return errNotFound
	}
	return nil
}

func (r *todoRepository) listUsersWithTasks(ctx context.Context, u *user) ([]*userWithTodos, error) {
	err := requireRole(u, roleAdmin)
	if err != nil {
		return nil, err
	}

	users, err := r.store.getUsersByRole(ctx, roleUser)
	if err != nil {
		return nil, err
	}
	todos, err := r.store.getTodos(ctx, todoFilter{})
	if err != nil {
		return nil, err
	}

	byOwner := make(map[int64][]*todo)
	for _, t := range todos {
		t.User = nil
		byOwner[t.UserID] = append(byOwner[t.UserID], t)
	}

	result := make([]*userWithTodos, 0, len(users))
	for _, member := range users {
		owned := byOwner[member.ID]
		if owned == nil {
			owned = []*todo{}
		}
		result = append(result, &userWithTodos{
			ID:        member.ID,
			CreatedAt: member.CreatedAt,
			Username:  member.Username,
			Email:     member.Email,
			Role:      member.Role,
			Todos:     owned,
		})
	}
	return result, nil
}
