package identity

import (
	"context"
	"strings"
	"time"

	"github.com/haontuhcmut/chat-app/cmd/identity/ids"
)

// RoleUser is the default role assigned at sign-up.
const RoleUser = "user"

// User is the chat service's security principal.
type User struct {
	ID         string
	Email      string
	Username   string
	FirstName  string
	LastName   string
	Role       string
	IsVerified bool
	CreatedAt  time.Time
}

// UserAuth pairs a user with its stored password hash. It never leaves the auth flow.
type UserAuth struct {
	User         User
	PasswordHash string
}

// CreateUserInput describes a sign-up request. Email, Username and Password are required.
type CreateUserInput struct {
	Email     string
	Username  string
	FirstName string
	LastName  string
	Password  string
	Now       time.Time
}

// Store is the identity persistence boundary.
//
// The refresh pointer methods back the single-active-refresh-token rule:
// SetRefreshJTI overwrites atomically (last writer wins) and an empty jti clears it.
// ClearRefreshJTI is a compare-and-clear: it only clears the pointer while it
// still names jti, and reports whether it did.
type Store interface {
	CreateUser(ctx context.Context, in CreateUserInput) (User, error)
	GetUserByID(ctx context.Context, id string) (User, error)
	// GetUserAuthByLogin resolves login as an email when it looks like one, otherwise as a username.
	GetUserAuthByLogin(ctx context.Context, login string) (UserAuth, error)

	SetRefreshJTI(ctx context.Context, userID, jti string) error
	ClearRefreshJTI(ctx context.Context, userID, jti string) (cleared bool, err error)
	RefreshJTI(ctx context.Context, userID string) (jti string, ok bool, err error)
}

// newUserRecord validates input and produces the row to insert plus its password hash.
func newUserRecord(op string, in CreateUserInput, params PasswordParams) (User, string, error) {
	email := strings.TrimSpace(in.Email)
	username := strings.TrimSpace(in.Username)
	if email == "" || !LooksLikeEmail(email) {
		return User{}, "", invalid(op, "valid email is required")
	}
	if username == "" || strings.ContainsRune(username, '@') || len(username) > 64 {
		return User{}, "", invalid(op, "valid username is required")
	}
	if len(in.FirstName) > 32 || len(in.LastName) > 32 {
		return User{}, "", invalid(op, "name too long")
	}

	hash, err := HashPassword(in.Password, params)
	if err != nil {
		return User{}, "", invalid(op, err.Error())
	}

	now := in.Now
	if now.IsZero() {
		now = time.Now().UTC()
	}

	return User{
		ID:        ids.NewUserID(),
		Email:     email,
		Username:  username,
		FirstName: strings.TrimSpace(in.FirstName),
		LastName:  strings.TrimSpace(in.LastName),
		Role:      RoleUser,
		CreatedAt: now,
	}, hash, nil
}
