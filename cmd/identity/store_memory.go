package identity

import (
	"context"
	"strings"
	"sync"
)

// MemoryStore is an in-process Store used when no database is configured and in tests.
type MemoryStore struct {
	params PasswordParams

	mu         sync.RWMutex
	byID       map[string]*memUser
	byEmail    map[string]string
	byUsername map[string]string
}

type memUser struct {
	user       User
	hash       string
	refreshJTI string
}

var _ Store = (*MemoryStore)(nil)

// NewMemoryStore constructs an empty MemoryStore hashing passwords with params.
func NewMemoryStore(params PasswordParams) *MemoryStore {
	return &MemoryStore{
		params:     params,
		byID:       make(map[string]*memUser),
		byEmail:    make(map[string]string),
		byUsername: make(map[string]string),
	}
}

func (s *MemoryStore) CreateUser(ctx context.Context, in CreateUserInput) (User, error) {
	const op = "identity.CreateUser"
	if err := ctx.Err(); err != nil {
		return User{}, err
	}

	u, hash, err := newUserRecord(op, in, s.params)
	if err != nil {
		return User{}, err
	}
	emailNorm := NormalizeEmail(u.Email)
	usernameNorm := NormalizeUsername(u.Username)

	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.byUsername[usernameNorm]; ok {
		return User{}, ConflictError{Op: op, Field: "username"}
	}
	if _, ok := s.byEmail[emailNorm]; ok {
		return User{}, ConflictError{Op: op, Field: "email"}
	}

	s.byID[u.ID] = &memUser{user: u, hash: hash}
	s.byEmail[emailNorm] = u.ID
	s.byUsername[usernameNorm] = u.ID
	return u, nil
}

func (s *MemoryStore) GetUserByID(ctx context.Context, id string) (User, error) {
	if err := ctx.Err(); err != nil {
		return User{}, err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()

	m, ok := s.byID[strings.TrimSpace(id)]
	if !ok {
		return User{}, NotFoundError{Op: "identity.GetUserByID", Resource: "user"}
	}
	return m.user, nil
}

func (s *MemoryStore) GetUserAuthByLogin(ctx context.Context, login string) (UserAuth, error) {
	if err := ctx.Err(); err != nil {
		return UserAuth{}, err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()

	var (
		id string
		ok bool
	)
	if LooksLikeEmail(login) {
		id, ok = s.byEmail[NormalizeEmail(login)]
	} else {
		id, ok = s.byUsername[NormalizeUsername(login)]
	}
	if !ok {
		return UserAuth{}, NotFoundError{Op: "identity.GetUserAuthByLogin", Resource: "user"}
	}
	m := s.byID[id]
	return UserAuth{User: m.user, PasswordHash: m.hash}, nil
}

func (s *MemoryStore) SetRefreshJTI(ctx context.Context, userID, jti string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	m, ok := s.byID[userID]
	if !ok {
		return NotFoundError{Op: "identity.SetRefreshJTI", Resource: "user"}
	}
	m.refreshJTI = jti
	return nil
}

func (s *MemoryStore) ClearRefreshJTI(ctx context.Context, userID, jti string) (bool, error) {
	if err := ctx.Err(); err != nil {
		return false, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	m, ok := s.byID[userID]
	if !ok {
		return false, NotFoundError{Op: "identity.ClearRefreshJTI", Resource: "user"}
	}
	if jti == "" || m.refreshJTI != jti {
		return false, nil
	}
	m.refreshJTI = ""
	return true, nil
}

func (s *MemoryStore) RefreshJTI(ctx context.Context, userID string) (string, bool, error) {
	if err := ctx.Err(); err != nil {
		return "", false, err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()

	m, ok := s.byID[userID]
	if !ok {
		return "", false, NotFoundError{Op: "identity.RefreshJTI", Resource: "user"}
	}
	if m.refreshJTI == "" {
		return "", false, nil
	}
	return m.refreshJTI, true, nil
}
