package main

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/harlequingg/todo-tracker/client"
)

func TestEndToEndScenario(t *testing.T) {
	app := newTestApp(t)
	srv := httptest.NewServer(composeRoutes(app))
	defer srv.Close()

	ctx := context.Background()
	c := client.New(srv.URL)

	a, err := c.Register(ctx, client.RegisterRequest{Username: "userA", Email: "a@example.com", Password: "password123"})
	if err != nil {
		t.Fatalf("register A failed: %v", err)
	}
	if _, err := c.CreateTodo(ctx, a.Token, client.CreateTodoRequest{Text: "older task", Completed: true}); err != nil {
		t.Fatalf("create failed: %v", err)
	}
	milk, err := c.CreateTodo(ctx, a.Token, client.CreateTodoRequest{Text: "buy milk", Priority: "high"})
	if err != nil {
		t.Fatalf("create failed: %v", err)
	}

	aTodos, err := c.ListTodos(ctx, a.Token)
	if err != nil {
		t.Fatalf("list A failed: %v", err)
	}
	if len(aTodos) != 2 || aTodos[0].ID != milk.ID || aTodos[0].Priority != "high" {
		t.Errorf("Expected 'buy milk' first in A's list, got %+v", aTodos)
	}
	if len(aTodos) == 2 && !aTodos[1].Completed {
		t.Errorf("Expected completed flag to be kept on create, got %+v", aTodos[1])
	}

	b, err := c.Register(ctx, client.RegisterRequest{Username: "userB", Email: "b@example.com", Password: "password123"})
	if err != nil {
		t.Fatalf("register B failed: %v", err)
	}
	bTodos, err := c.ListTodos(ctx, b.Token)
	if err != nil {
		t.Fatalf("list B failed: %v", err)
	}
	if len(bTodos) != 0 {
		t.Errorf("Expected B's list to be empty, got %d", len(bTodos))
	}

	// Tokens travel with each call, so A and B keep working side by side.
	_, err = c.UpdateTodo(ctx, b.Token, milk.ID, client.UpdateTodoRequest{Completed: boolPtr(true)})
	var apiErr *client.APIError
	if !errors.As(err, &apiErr) || apiErr.StatusCode != http.StatusNotFound {
		t.Errorf("Expected 404 for B updating A's todo, got %v", err)
	}
	done, err := c.UpdateTodo(ctx, a.Token, milk.ID, client.UpdateTodoRequest{Completed: boolPtr(true)})
	if err != nil || !done.Completed || done.Text != "buy milk" {
		t.Errorf("Expected A's update to succeed, got %+v, %v", done, err)
	}

	if _, err := app.auth.seedAdmin(ctx, "admin", "admin@example.com", "admin-password"); err != nil {
		t.Fatalf("seedAdmin failed: %v", err)
	}
	admin, err := c.Login(ctx, "admin@example.com", "admin-password")
	if err != nil {
		t.Fatalf("admin login failed: %v", err)
	}

	users, err := c.ListUsers(ctx, admin.Token)
	if err != nil {
		t.Fatalf("list users failed: %v", err)
	}
	if len(users) != 2 {
		t.Fatalf("Expected A and B, got %d users", len(users))
	}
	if users[0].Email != "a@example.com" || len(users[0].Todos) != 2 || users[0].Todos[0].Text != "buy milk" {
		t.Errorf("Expected A's tasks listed under A, got %+v", users[0])
	}
	if users[1].Email != "b@example.com" || len(users[1].Todos) != 0 {
		t.Errorf("Expected B with no tasks, got %+v", users[1])
	}

	_, err = c.ListUsers(ctx, a.Token)
	if !errors.As(err, &apiErr) || apiErr.StatusCode != http.StatusForbidden {
		t.Errorf("Expected 403 for non-admin listing users, got %v", err)
	}

	if err := c.DeleteTodo(ctx, admin.Token, milk.ID); err != nil {
		t.Errorf("admin delete failed: %v", err)
	}
	err = c.DeleteTodo(ctx, admin.Token, milk.ID)
	if !errors.As(err, &apiErr) || apiErr.StatusCode != http.StatusNotFound {
		t.Errorf("Expected 404 on second delete, got %v", err)
	}
}
