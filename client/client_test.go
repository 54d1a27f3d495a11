package client

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"
)

type recorded struct {
	method string
	path   string
	auth   string
	body   string
}

func newRecordingServer(t *testing.T, status int, response string) (*httptest.Server, *[]recorded) {
	t.Helper()
	var (
		mu   sync.Mutex
		reqs []recorded
	)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		body, _ := io.ReadAll(r.Body)
		mu.Lock()
		reqs = append(reqs, recorded{r.Method, r.URL.Path, r.Header.Get("Authorization"), string(body)})
		mu.Unlock()
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(status)
		io.WriteString(w, response)
	}))
	t.Cleanup(srv.Close)
	return srv, &reqs
}

func TestTokenIsPerRequest(t *testing.T) {
	srv, reqs := newRecordingServer(t, http.StatusOK, `[]`)
	c := New(srv.URL + "/")
	ctx := context.Background()

	if _, err := c.ListTodos(ctx, "token-a"); err != nil {
		t.Fatalf("ListTodos failed: %v", err)
	}
	if _, err := c.ListTodos(ctx, "token-b"); err != nil {
		t.Fatalf("ListTodos failed: %v", err)
	}

	got := *reqs
	if len(got) != 2 {
		t.Fatalf("Expected 2 requests, got %d", len(got))
	}
	if got[0].auth != "Bearer token-a" || got[1].auth != "Bearer token-b" {
		t.Errorf("Expected each call to carry its own token, got %q and %q", got[0].auth, got[1].auth)
	}
	if got[0].path != "/api/todos" {
		t.Errorf("Expected path /api/todos, got %q", got[0].path)
	}
}

func TestLoginSendsNoToken(t *testing.T) {
	srv, reqs := newRecordingServer(t, http.StatusOK, `{"token":"t","user":{"id":1,"username":"a","email":"a@example.com","role":"user"}}`)
	c := New(srv.URL)

	sess, err := c.Login(context.Background(), "a@example.com", "password123")
	if err != nil {
		t.Fatalf("Login failed: %v", err)
	}
	if sess.Token != "t" || sess.User.ID != 1 || sess.User.Role != "user" {
		t.Errorf("unexpected session %+v", sess)
	}
	got := (*reqs)[0]
	if got.auth != "" {
		t.Errorf("Expected no Authorization header, got %q", got.auth)
	}
	if got.method != http.MethodPost || got.path != "/api/login" {
		t.Errorf("unexpected request %s %s", got.method, got.path)
	}
}

func TestAPIError(t *testing.T) {
	srv, _ := newRecordingServer(t, http.StatusBadRequest, `{"error":"invalid input","fields":{"text":"must be provided"}}`)
	c := New(srv.URL)

	_, err := c.CreateTodo(context.Background(), "tok", CreateTodoRequest{})
	var apiErr *APIError
	if !errors.As(err, &apiErr) {
		t.Fatalf("Expected *APIError, got %v", err)
	}
	if apiErr.StatusCode != http.StatusBadRequest || apiErr.Message != "invalid input" || apiErr.Fields["text"] == "" {
		t.Errorf("unexpected error %+v", apiErr)
	}
}

func TestCreateTodoBody(t *testing.T) {
	srv, reqs := newRecordingServer(t, http.StatusCreated, `{"id":1,"text":"done already","completed":true,"priority":"low","createdAt":"2030-01-01T00:00:00Z"}`)
	c := New(srv.URL)

	td, err := c.CreateTodo(context.Background(), "tok", CreateTodoRequest{Text: "done already", Completed: true, Priority: "low"})
	if err != nil {
		t.Fatalf("CreateTodo failed: %v", err)
	}
	if !td.Completed {
		t.Errorf("Expected completed todo, got %+v", td)
	}

	var body map[string]any
	if err := json.Unmarshal([]byte((*reqs)[0].body), &body); err != nil {
		t.Fatalf("request body is not JSON: %v", err)
	}
	if body["completed"] != true || body["text"] != "done already" || body["priority"] != "low" {
		t.Errorf("unexpected request body %v", body)
	}
	if _, ok := body["dueTime"]; ok {
		t.Errorf("Expected unset dueTime to be omitted, got %v", body)
	}
}

func TestAPIErrorNonJSON(t *testing.T) {
	srv, _ := newRecordingServer(t, http.StatusBadGateway, "upstream down\n")
	c := New(srv.URL)

	err := c.DeleteTodo(context.Background(), "tok", 3)
	var apiErr *APIError
	if !errors.As(err, &apiErr) || apiErr.Message != "upstream down" {
		t.Errorf("Expected raw body as message, got %v", err)
	}
}

func TestDeleteNoContent(t *testing.T) {
	srv, reqs := newRecordingServer(t, http.StatusNoContent, "")
	c := New(srv.URL)

	if err := c.DeleteTodo(context.Background(), "tok", 7); err != nil {
		t.Fatalf("DeleteTodo failed: %v", err)
	}
	got := (*reqs)[0]
	if got.method != http.MethodDelete || got.path != "/api/todos/7" {
		t.Errorf("unexpected request %s %s", got.method, got.path)
	}
}

func TestUpdateTodoRequestJSON(t *testing.T) {
	text := "edited"
	done := true
	due := time.Date(2030, 1, 2, 3, 4, 5, 0, time.UTC)

	tests := []struct {
		name string
		req  UpdateTodoRequest
		want map[string]any
	}{
		{"empty", UpdateTodoRequest{}, map[string]any{}},
		{"completed only", UpdateTodoRequest{Completed: &done}, map[string]any{"completed": true}},
		{"text and due", UpdateTodoRequest{Text: &text, DueTime: &due}, map[string]any{"text": "edited", "dueTime": "2030-01-02T03:04:05Z"}},
		{"clear due", UpdateTodoRequest{ClearDueTime: true}, map[string]any{"dueTime": nil}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			data, err := json.Marshal(tt.req)
			if err != nil {
				t.Fatalf("Marshal failed: %v", err)
			}
			var got map[string]any
			json.Unmarshal(data, &got)
			if len(got) != len(tt.want) {
				t.Fatalf("Expected %v, got %s", tt.want, data)
			}
			for k, v := range tt.want {
				gv, ok := got[k]
				if !ok || gv != v {
					t.Errorf("key %q: expected %v, got %v (present=%v)", k, v, gv, ok)
				}
			}
		})
	}

	srv, reqs := newRecordingServer(t, http.StatusOK, `{"id":5,"text":"edited","completed":true,"priority":"medium","createdAt":"2030-01-01T00:00:00Z"}`)
	c := New(srv.URL)
	td, err := c.UpdateTodo(context.Background(), "tok", 5, UpdateTodoRequest{Completed: &done})
	if err != nil || !td.Completed {
		t.Fatalf("UpdateTodo: %+v, %v", td, err)
	}
	got := (*reqs)[0]
	if got.method != http.MethodPut || got.path != "/api/todos/5" || !strings.Contains(got.body, `"completed":true`) {
		t.Errorf("unexpected request %+v", got)
	}
}
