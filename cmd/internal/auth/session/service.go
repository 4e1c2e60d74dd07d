package session

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/haontuhcmut/chat-app/cmd/identity"
	"github.com/haontuhcmut/chat-app/cmd/identity/ids"
)

// Users is the slice of the identity store the session service needs.
type Users interface {
	GetUserAuthByLogin(ctx context.Context, login string) (identity.UserAuth, error)
}

// Token is a signed token together with the claims it encodes.
type Token struct {
	Raw    string
	Claims Claims
}

// Pair is the result of a sign-in.
type Pair struct {
	Access  Token
	Refresh Token
	User    identity.User
}

// Service implements sign-in, token validation, access refresh and sign-out.
//
// State per logical session moves Anonymous -> Authenticated (access valid) ->
// AccessExpired (refresh valid) -> FullyExpired. Every validation re-reads the
// store; nothing is cached across requests.
type Service struct {
	cfg   Config
	codec *Codec
	store Store
	users Users
	log   *slog.Logger
	now   func() time.Time

	dummyParams identity.PasswordParams
	dummyOnce   sync.Once
	dummyHash   string
}

// Option configures a Service.
type Option func(*Service)

// WithClock overrides the time source.
func WithClock(now func() time.Time) Option {
	return func(s *Service) {
		if now != nil {
			s.now = now
		}
	}
}

// WithLogger sets the logger used for best-effort failures.
func WithLogger(l *slog.Logger) Option {
	return func(s *Service) {
		if l != nil {
			s.log = l
		}
	}
}

// WithPasswordParams sets the argon2id cost of the dummy hash verified for
// unknown logins. It should match the cost used for real users.
func WithPasswordParams(p identity.PasswordParams) Option {
	return func(s *Service) { s.dummyParams = p }
}

// NewService constructs a Service.
func NewService(cfg Config, codec *Codec, store Store, users Users, opts ...Option) *Service {
	s := &Service{
		cfg:         cfg,
		codec:       codec,
		store:       store,
		users:       users,
		log:         slog.Default(),
		now:         time.Now,
		dummyParams: identity.DefaultPasswordParams(),
	}
	for _, opt := range opts {
		if opt != nil {
			opt(s)
		}
	}
	return s
}

// Config returns the service configuration.
func (s *Service) Config() Config { return s.cfg }

// SignIn verifies credentials and issues a fresh token pair.
// Unknown logins and wrong passwords both yield ErrInvalidCredentials after
// comparable hashing work.
func (s *Service) SignIn(ctx context.Context, login, password string) (Pair, error) {
	ua, err := s.users.GetUserAuthByLogin(ctx, login)
	if err != nil {
		if identity.IsNotFound(err) {
			_, _ = identity.VerifyPassword(password, s.dummy())
			return Pair{}, ErrInvalidCredentials
		}
		return Pair{}, fmt.Errorf("session.SignIn: %w", err)
	}

	ok, err := identity.VerifyPassword(password, ua.PasswordHash)
	if err != nil {
		s.log.Warn("auth.signin.hash.invalid", "user_id", ua.User.ID, "err", err)
		return Pair{}, ErrInvalidCredentials
	}
	if !ok {
		return Pair{}, ErrInvalidCredentials
	}

	return s.IssuePair(ctx, ua.User)
}

// IssuePair mints an access/refresh pair for u and makes the refresh jti the
// user's current one, superseding any earlier refresh token.
func (s *Service) IssuePair(ctx context.Context, u identity.User) (Pair, error) {
	now := s.now()

	refreshJTI, err := ids.NewULID(now)
	if err != nil {
		return Pair{}, err
	}
	base := identityClaims(u)

	refresh := base
	refresh.Kind = KindRefresh
	refresh.JTI = refreshJTI
	refreshRaw, refreshClaims, err := s.codec.Issue(refresh, s.cfg.RefreshTokenTTL, now)
	if err != nil {
		return Pair{}, err
	}

	base.RefreshJTI = refreshJTI
	access, err := s.issueAccess(base, now)
	if err != nil {
		return Pair{}, err
	}

	// The pointer is written last so a failure leaves the previous session intact.
	if err := s.store.SetCurrentRefreshJTI(ctx, u.ID, refreshJTI); err != nil {
		return Pair{}, storeUnavailable("session.IssuePair", err)
	}

	return Pair{
		Access:  access,
		Refresh: Token{Raw: refreshRaw, Claims: refreshClaims},
		User:    u,
	}, nil
}

// ValidateAccess decodes an access token and checks kind, expiry and the denylist.
func (s *Service) ValidateAccess(ctx context.Context, raw string) (Claims, error) {
	c, err := s.codec.Decode(raw)
	if err != nil {
		return Claims{}, err
	}
	if c.Kind != KindAccess {
		return Claims{}, invalidToken("wrong kind")
	}
	if c.Expired(s.now()) {
		return Claims{}, invalidToken("expired")
	}

	denied, err := s.store.IsDenylisted(ctx, c.JTI)
	if err != nil {
		return Claims{}, storeUnavailable("session.ValidateAccess", err)
	}
	if denied {
		return Claims{}, invalidToken("revoked")
	}
	return c, nil
}

// ValidateRefresh decodes a refresh token and checks that its jti is still the
// user's current one. Expiry is left to RefreshAccess.
func (s *Service) ValidateRefresh(ctx context.Context, raw string) (Claims, error) {
	c, err := s.codec.Decode(raw)
	if err != nil {
		return Claims{}, err
	}
	if c.Kind != KindRefresh {
		return Claims{}, invalidToken("wrong kind")
	}

	cur, ok, err := s.store.CurrentRefreshJTI(ctx, c.UserID)
	if err != nil {
		if identity.IsNotFound(err) {
			return Claims{}, invalidToken("unknown subject")
		}
		return Claims{}, storeUnavailable("session.ValidateRefresh", err)
	}
	if !ok || cur != c.JTI {
		return Claims{}, invalidToken("superseded")
	}
	return c, nil
}

// RefreshAccess mints a new access token carrying the identity claims of rc.
// The refresh pointer is not touched, so the refresh token stays reusable.
func (s *Service) RefreshAccess(ctx context.Context, rc Claims) (Token, error) {
	if err := ctx.Err(); err != nil {
		return Token{}, err
	}
	if rc.Kind != KindRefresh {
		return Token{}, invalidToken("wrong kind")
	}
	now := s.now()
	if rc.Expired(now) {
		return Token{}, ErrTokenExpired
	}

	base := rc
	base.RefreshJTI = rc.JTI
	base.JTI, base.Kind = "", ""
	return s.issueAccess(base, now)
}

// SignOut revokes the access token for the rest of its lifetime and, when
// configured, clears the refresh pointer if it still names the refresh token
// ac was minted from. A newer sign-in elsewhere keeps its refresh token.
// Store failures are logged, not returned.
func (s *Service) SignOut(ctx context.Context, ac Claims) {
	if ttl := ac.Remaining(s.now()); ttl > 0 {
		if err := s.store.DenylistAdd(ctx, ac.JTI, ttl); err != nil {
			s.log.Warn("auth.signout.denylist.fail", "user_id", ac.UserID, "err", err)
		}
	}

	if !s.cfg.RevokeRefreshOnSignOut || ac.RefreshJTI == "" {
		return
	}
	cleared, err := s.store.ClearCurrentRefreshJTI(ctx, ac.UserID, ac.RefreshJTI)
	if err != nil && !identity.IsNotFound(err) {
		s.log.Warn("auth.signout.refresh.clear.fail", "user_id", ac.UserID, "err", err)
		return
	}
	if !cleared {
		s.log.Debug("auth.signout.refresh.kept", "user_id", ac.UserID)
	}
}

func (s *Service) issueAccess(base Claims, now time.Time) (Token, error) {
	jti, err := ids.NewULID(now)
	if err != nil {
		return Token{}, err
	}
	base.Kind = KindAccess
	base.JTI = jti

	raw, c, err := s.codec.Issue(base, s.cfg.AccessTokenTTL, now)
	if err != nil {
		return Token{}, err
	}
	return Token{Raw: raw, Claims: c}, nil
}

func (s *Service) dummy() string {
	s.dummyOnce.Do(func() {
		h, err := identity.HashPassword("dummy-password-for-timing", s.dummyParams)
		if err != nil {
			s.log.Error("auth.dummy_hash.fail", "err", err)
			return
		}
		s.dummyHash = h
	})
	return s.dummyHash
}

func identityClaims(u identity.User) Claims {
	return Claims{
		UserID:   u.ID,
		Email:    u.Email,
		Username: u.Username,
		Role:     u.Role,
	}
}

// IsAuthError reports whether err is one of the 401-class session errors.
func IsAuthError(err error) bool {
	return errors.Is(err, ErrInvalidToken) ||
		errors.Is(err, ErrInvalidCredentials) ||
		errors.Is(err, ErrTokenExpired)
}
