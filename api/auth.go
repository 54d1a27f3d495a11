package main

import (
	"context"
	"errors"
	"fmt"
	"log"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v4"
	"golang.org/x/crypto/bcrypt"
)

// dummyHash is compared against when a login names an unknown email so
// both failure paths do the same bcrypt work.
var dummyHash, _ = bcrypt.GenerateFromPassword([]byte("dummy-password-for-timing"), bcrypt.DefaultCost)

type tokenClaims struct {
	UserID int64 `json:"id"`
	jwt.RegisteredClaims
}

type authService struct {
	store      store
	secret     []byte
	tokenTTL   time.Duration
	bcryptCost int
	// allowRoleSelfAssign lets registrations pick the admin role. Turning it
	// off restricts new principals to the user role.
	allowRoleSelfAssign bool
}

type registerInput struct {
	Username string `json:"username"`
	Email    string `json:"email"`
	Password string `json:"password"`
	Role     string `json:"role"`
}

type session struct {
	Token string     `json:"token"`
	User  publicUser `json:"user"`
}

func (s *authService) register(ctx context.Context, input registerInput) (*session, *user, error) {
	return s.createUser(ctx, input, s.allowRoleSelfAssign)
}

func (s *authService) createUser(ctx context.Context, input registerInput, allowAdmin bool) (*session, *user, error) {
	input.Email = normalizeEmail(input.Email)
	input.Username = strings.TrimSpace(input.Username)
	if input.Role == "" {
		input.Role = roleUser
	}

	v := newValidator()
	v.checkUsername(input.Username)
	v.checkEmail(input.Email)
	v.checkPassword(input.Password)
	switch input.Role {
	case roleUser:
	case roleAdmin:
		v.checkCond(allowAdmin, "role", "self-assigned admin role is not permitted")
	default:
		v.checkCond(false, "role", "must be one of user, admin")
	}
	if v.hasErrors() {
		return nil, nil, v.toError()
	}

	cost := s.bcryptCost
	if cost == 0 {
		cost = bcrypt.DefaultCost
	}
	hash, err := bcrypt.GenerateFromPassword([]byte(input.Password), cost)
	if err != nil {
		return nil, nil, fmt.Errorf("hash password: %w", err)
	}

	u := &user{
		Username:     input.Username,
		Email:        input.Email,
		PasswordHash: hash,
		Role:         input.Role,
	}
	err = s.store.insertUser(ctx, u)
	if err != nil {
		return nil, nil, err
	}

	sess, err := s.issue(u)
	if err != nil {
		return nil, nil, err
	}
	return sess, u, nil
}

func (s *authService) authenticate(ctx context.Context, email, password string) (*session, error) {
	u, err := s.store.getUserByEmail(ctx, normalizeEmail(email))
	if err != nil {
		return nil, err
	}
	hash := dummyHash
	if u != nil {
		hash = u.PasswordHash
	}
	err = bcrypt.CompareHashAndPassword(hash, []byte(password))
	if u == nil || err != nil {
		return nil, errInvalidCredentials
	}
	return s.issue(u)
}

func (s *authService) issue(u *user) (*session, error) {
	token, err := s.signToken(u.ID)
	if err != nil {
		return nil, err
	}
	return &session{Token: token, User: u.public()}, nil
}

func (s *authService) signToken(userID int64) (string, error) {
	now := time.Now()
	claims := tokenClaims{
		UserID: userID,
		RegisteredClaims: jwt.RegisteredClaims{
			IssuedAt: jwt.NewNumericDate(now),
		},
	}
	if s.tokenTTL > 0 {
		claims.ExpiresAt = jwt.NewNumericDate(now.Add(s.tokenTTL))
	}
	token, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(s.secret)
	if err != nil {
		return "", fmt.Errorf("sign token: %w", err)
	}
	return token, nil
}

// validateToken verifies the signature and resolves the embedded id to a
// live user. The user is fetched on every call.
func (s *authService) validateToken(ctx context.Context, tokenStr string) (*user, error) {
	if tokenStr == "" {
		return nil, errUnauthenticated
	}
	var claims tokenClaims
	token, err := jwt.ParseWithClaims(tokenStr, &claims, func(t *jwt.Token) (any, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", t.Header["alg"])
		}
		return s.secret, nil
	})
	if err != nil {
		if errors.Is(err, jwt.ErrTokenExpired) {
			return nil, errTokenExpired
		}
		log.Printf("rejected token: %v", err)
		return nil, errUnauthenticated
	}
	if !token.Valid || claims.UserID == 0 {
		return nil, errUnauthenticated
	}

	u, err := s.store.getUserByID(ctx, claims.UserID)
	if err != nil {
		return nil, err
	}
	if u == nil {
		log.Printf("rejected token: user %d no longer exists", claims.UserID)
		return nil, errUnauthenticated
	}
	return u, nil
}

func requireRole(u *user, role string) error {
	if u == nil || u.Role != role {
		return errForbidden
	}
	return nil
}

// seedAdmin creates an admin principal unless the email is already taken.
func (s *authService) seedAdmin(ctx context.Context, username, email, password string) (bool, error) {
	existing, err := s.store.getUserByEmail(ctx, normalizeEmail(email))
	if err != nil {
		return false, err
	}
	if existing != nil {
		return false, nil
	}
	_, _, err = s.createUser(ctx, registerInput{
		Username: username,
		Email:    email,
		Password: password,
		Role:     roleAdmin,
	}, true)
	if err != nil {
		return false, err
	}
	return true, nil
}
