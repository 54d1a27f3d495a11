// Package client talks to the todo tracker HTTP API.
//
// A Client holds no credentials. Every call that needs authentication takes
// the bearer token as an argument, so one Client can serve many users at
// once.
package client

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"
)

// User is the public view of an account.
type User struct {
	ID       int64  `json:"id"`
	Username string `json:"username"`
	Email    string `json:"email"`
	Role     string `json:"role"`
}

// Session is returned by Register and Login.
type Session struct {
	Token string `json:"token"`
	User  User   `json:"user"`
}

// Owner identifies who a todo belongs to. Only admin listings carry it.
type Owner struct {
	Username string `json:"username"`
	Email    string `json:"email"`
}

// Todo is a task as the API returns it.
type Todo struct {
	ID        int64      `json:"id"`
	Text      string     `json:"text"`
	Completed bool       `json:"completed"`
	Priority  string     `json:"priority"`
	DueTime   *time.Time `json:"dueTime,omitempty"`
	CreatedAt time.Time  `json:"createdAt"`
	User      *Owner     `json:"user,omitempty"`
}

// UserWithTodos is one entry of the admin user listing.
type UserWithTodos struct {
	ID        int64     `json:"id"`
	CreatedAt time.Time `json:"createdAt"`
	Username  string    `json:"username"`
	Email     string    `json:"email"`
	Role      string    `json:"role"`
	Todos     []Todo    `json:"todos"`
}

// RegisterRequest creates an account. Role may be left empty for a regular
// user.
type RegisterRequest struct {
	Username string `json:"username"`
	Email    string `json:"email"`
	Password string `json:"password"`
	Role     string `json:"role,omitempty"`
}

// CreateTodoRequest is the body of CreateTodo. Priority defaults to medium
// on the server.
type CreateTodoRequest struct {
	Text      string     `json:"text"`
	Completed bool       `json:"completed,omitempty"`
	Priority  string     `json:"priority,omitempty"`
	DueTime   *time.Time `json:"dueTime,omitempty"`
}

// UpdateTodoRequest only sends the fields that are set. ClearDueTime sends
// an explicit null for dueTime.
type UpdateTodoRequest struct {
	Text         *string
	Completed    *bool
	Priority     *string
	DueTime      *time.Time
	ClearDueTime bool
}

func (u UpdateTodoRequest) MarshalJSON() ([]byte, error) {
	body := make(map[string]any)
	if u.Text != nil {
		body["text"] = *u.Text
	}
	if u.Completed != nil {
		body["completed"] = *u.Completed
	}
	if u.Priority != nil {
		body["priority"] = *u.Priority
	}
	switch {
	case u.ClearDueTime:
		body["dueTime"] = nil
	case u.DueTime != nil:
		body["dueTime"] = u.DueTime.UTC().Format(time.RFC3339Nano)
	}
	return json.Marshal(body)
}

// APIError is returned for every non-2xx response.
type APIError struct {
	StatusCode int               `json:"-"`
	Message    string            `json:"error"`
	Fields     map[string]string `json:"fields,omitempty"`
}

func (e *APIError) Error() string {
	return fmt.Sprintf("client: %d: %s", e.StatusCode, e.Message)
}

// Client is safe for concurrent use.
type Client struct {
	baseURL    string
	httpClient *http.Client
}

// Option configures a Client in New.
type Option func(*Client)

// WithHTTPClient replaces the default http.Client.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) {
		c.httpClient = hc
	}
}

// New returns a Client for the API rooted at baseURL, for example
// "http://localhost:8000".
func New(baseURL string, opts ...Option) *Client {
	c := &Client{
		baseURL:    strings.TrimRight(baseURL, "/"),
		httpClient: &http.Client{Timeout: 30 * time.Second},
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

func (c *Client) Register(ctx context.Context, req RegisterRequest) (*Session, error) {
	var sess Session
	err := c.do(ctx, http.MethodPost, "/api/register", "", req, &sess)
	if err != nil {
		return nil, err
	}
	return &sess, nil
}

// Login exchanges credentials for a fresh token.
func (c *Client) Login(ctx context.Context, email, password string) (*Session, error) {
	req := struct {
		Email    string `json:"email"`
		Password string `json:"password"`
	}{email, password}
	var sess Session
	err := c.do(ctx, http.MethodPost, "/api/login", "", req, &sess)
	if err != nil {
		return nil, err
	}
	return &sess, nil
}

// ListTodos returns the caller's todos, newest first. Admin tokens see every
// todo with its owner attached.
func (c *Client) ListTodos(ctx context.Context, token string) ([]Todo, error) {
	var todos []Todo
	err := c.do(ctx, http.MethodGet, "/api/todos", token, nil, &todos)
	if err != nil {
		return nil, err
	}
	return todos, nil
}

func (c *Client) CreateTodo(ctx context.Context, token string, req CreateTodoRequest) (*Todo, error) {
	var t Todo
	err := c.do(ctx, http.MethodPost, "/api/todos", token, req, &t)
	if err != nil {
		return nil, err
	}
	return &t, nil
}

func (c *Client) UpdateTodo(ctx context.Context, token string, id int64, req UpdateTodoRequest) (*Todo, error) {
	var t Todo
	err := c.do(ctx, http.MethodPut, "/api/todos/"+strconv.FormatInt(id, 10), token, req, &t)
	if err != nil {
		return nil, err
	}
	return &t, nil
}

func (c *Client) DeleteTodo(ctx context.Context, token string, id int64) error {
	return c.do(ctx, http.MethodDelete, "/api/todos/"+strconv.FormatInt(id, 10), token, nil, nil)
}

// ListUsers needs an admin token.
func (c *Client) ListUsers(ctx context.Context, token string) ([]UserWithTodos, error) {
	var users []UserWithTodos
	err := c.do(ctx, http.MethodGet, "/api/admin/users", token, nil, &users)
	if err != nil {
		return nil, err
	}
	return users, nil
}

// do sends one request. token may be empty for unauthenticated endpoints
// and out may be nil when the response has no body.
func (c *Client) do(ctx context.Context, method, path, token string, in, out any) error {
	var body io.Reader
	if in != nil {
		encoded, err := json.Marshal(in)
		if err != nil {
			return fmt.Errorf("client: encode request body: %w", err)
		}
		body = bytes.NewReader(encoded)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, body)
	if err != nil {
		return fmt.Errorf("client: create request: %w", err)
	}
	if in != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("client: %s %s: %w", method, path, err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(io.LimitReader(resp.Body, 10<<20))
	if err != nil {
		return fmt.Errorf("client: read response body: %w", err)
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		apiErr := &APIError{StatusCode: resp.StatusCode}
		if jsonErr := json.Unmarshal(data, apiErr); jsonErr != nil || apiErr.Message == "" {
			apiErr.Message = strings.TrimSpace(string(data))
		}
		return apiErr
	}

	if out == nil || len(bytes.TrimSpace(data)) == 0 {
		return nil
	}
	err = json.Unmarshal(data, out)
	if err != nil {
		return fmt.Errorf("client: decode %s %s response: %w", method, path, err)
	}
	return nil
}
