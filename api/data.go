package main

import "time"

const (
	roleUser  = "user"
	roleAdmin = "admin"
)

const (
	priorityLow    = "low"
	priorityMedium = "medium"
	priorityHigh   = "high"
)

type user struct {
	ID           int64     `json:"id"`
	CreatedAt    time.Time `json:"createdAt"`
	Username     string    `json:"username"`
	Email        string    `json:"email"`
	PasswordHash []byte    `json:"-"`
	Role         string    `json:"role"`
}

func (u *user) isAdmin() bool {
	return u != nil && u.Role == roleAdmin
}

// publicUser is the view of a user returned by register and login.
type publicUser struct {
	ID       int64  `json:"id"`
	Username string `json:"username"`
	Email    string `json:"email"`
	Role     string `json:"role"`
}

func (u *user) public() publicUser {
	return publicUser{
		ID:       u.ID,
		Username: u.Username,
		Email:    u.Email,
		Role:     u.Role,
	}
}

// owner is the projection of a user attached to todos in admin listings.
type owner struct {
	Username string `json:"username"`
	Email    string `json:"email"`
}

type todo struct {
	ID        int64      `json:"id"`
	UserID    int64      `json:"-"`
	Text      string     `json:"text"`
	Completed bool       `json:"completed"`
	Priority  string     `json:"priority"`
	DueTime   *time.Time `json:"dueTime,omitempty"`
	CreatedAt time.Time  `json:"createdAt"`
	User      *owner     `json:"user,omitempty"`
}

// todoFilter selects the todos an operation may touch. Zero fields match
// anything.
type todoFilter struct {
	ID      int64
	OwnerID int64
}

// todoPatch holds the fields of an update. Nil fields are left alone;
// when SetDueTime is true DueTime replaces the stored value, nil clearing it.
type todoPatch struct {
	Text       *string
	Completed  *bool
	Priority   *string
	SetDueTime bool
	DueTime    *time.Time
}

func (p todoPatch) empty() bool {
	return p.Text == nil && p.Completed == nil && p.Priority == nil && !p.SetDueTime
}

type userWithTodos struct {
	ID        int64     `json:"id"`
	CreatedAt time.Time `json:"createdAt"`
	Username  string    `json:"username"`
	Email     string    `json:"email"`
	Role      string    `json:"role"`
	Todos     []*todo   `json:"todos"`
}
