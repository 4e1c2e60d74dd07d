package authapi

import (
	"context"
	"errors"
	"log/slog"
	"net"
	"net/http"
	"strings"
	"time"

	"github.com/haontuhcmut/chat-app/cmd/identity"
	"github.com/haontuhcmut/chat-app/cmd/internal/auth/session"
)

// Users is the identity store surface the handlers need.
type Users interface {
	CreateUser(ctx context.Context, in identity.CreateUserInput) (identity.User, error)
	GetUserByID(ctx context.Context, id string) (identity.User, error)
}

// Handshakes issues one-time socket session ids.
type Handshakes interface {
	Issue(ctx context.Context, userID string) (string, error)
	TTL() time.Duration
}

// Handler wires HTTP auth endpoints to the session service.
type Handler struct {
	log *slog.Logger
	cfg Config

	sessions   *session.Service
	users      Users
	handshakes Handshakes

	credLimiter      *ipLimiter
	handshakeLimiter *ipLimiter

	now func() time.Time
}

// HandlerOption configures optional handler dependencies.
type HandlerOption func(*Handler)

// WithHandlerClock overrides the time source used for limiters and expiry hints.
func WithHandlerClock(now func() time.Time) HandlerOption {
	return func(h *Handler) {
		if now != nil {
			h.now = now
		}
	}
}

// NewHandler constructs an auth Handler.
func NewHandler(log *slog.Logger, cfg Config, sessions *session.Service, users Users, handshakes Handshakes, opts ...HandlerOption) (*Handler, error) {
	if sessions == nil || users == nil || handshakes == nil {
		return nil, errors.New("authapi: nil dependency")
	}
	if log == nil {
		log = slog.Default()
	}
	if cfg.MaxBodyBytes <= 0 {
		cfg.MaxBodyBytes = DefaultConfig().MaxBodyBytes
	}
	if strings.TrimSpace(cfg.RefreshCookieName) == "" {
		cfg.RefreshCookieName = DefaultConfig().RefreshCookieName
	}

	h := &Handler{
		log:              log,
		cfg:              cfg,
		sessions:         sessions,
		users:            users,
		handshakes:       handshakes,
		credLimiter:      newIPLimiter(cfg.CredentialsPerMinute, cfg.CredentialsBurst),
		handshakeLimiter: newIPLimiter(cfg.HandshakePerMinute, cfg.HandshakeBurst),
		now:              time.Now,
	}
	for _, opt := range opts {
		if opt != nil {
			opt(h)
		}
	}
	return h, nil
}

// Register wires auth routes onto the provided mux.
func (h *Handler) Register(mux *http.ServeMux) {
	mux.HandleFunc("POST /auth/signup", h.handleSignUp)
	mux.HandleFunc("POST /auth/signin", h.handleSignIn)
	mux.HandleFunc("POST /auth/refresh", h.handleRefresh)
	mux.HandleFunc("POST /auth/signout", h.handleSignOut)
	mux.HandleFunc("GET /auth/me", h.handleMe)
	mux.HandleFunc("GET /ws/handshake", h.handleHandshake)
}

// ---- handlers ----

func (h *Handler) handleSignUp(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	ip := clientIP(r, h.cfg.TrustProxy)
	ua := strings.TrimSpace(r.UserAgent())

	if ok, retry := h.credLimiter.allow(ipKey(ip), h.now()); !ok {
		h.auditRateLimited(ctx, "signup", ip, ua)
		writeRateLimited(w, retry)
		return
	}

	var req signUpRequest
	if err := decodeJSON(w, r, h.cfg.MaxBodyBytes, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid_json", "Invalid request body")
		return
	}
	if err := identity.ValidatePassword(req.Password); err != nil {
		writeError(w, http.StatusBadRequest, "invalid_request", err.Error())
		return
	}

	u, err := h.users.CreateUser(ctx, identity.CreateUserInput{
		Email:     req.Email,
		Username:  req.Username,
		FirstName: req.FirstName,
		LastName:  req.LastName,
		Password:  req.Password,
		Now:       h.now().UTC(),
	})
	if err != nil {
		if field, ok := identity.IsConflict(err); ok {
			detail := "Username or email already exists"
			switch field {
			case "username":
				detail = "Username already exists"
			case "email":
				detail = "Email already exists"
			}
			writeError(w, http.StatusConflict, "conflict", detail)
			return
		}
		if identity.IsInvalidInput(err) {
			writeError(w, http.StatusBadRequest, "invalid_request", "Invalid sign-up data")
			return
		}
		h.log.Error("auth.signup.fail", "err", err)
		writeError(w, http.StatusInternalServerError, "server_error", "Internal error")
		return
	}

	h.auditSignUp(ctx, u.ID, ip, ua)
	writeJSON(w, http.StatusCreated, toUserResponse(u))
}

func (h *Handler) handleSignIn(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	ip := clientIP(r, h.cfg.TrustProxy)
	ua := strings.TrimSpace(r.UserAgent())

	if ok, retry := h.credLimiter.allow(ipKey(ip), h.now()); !ok {
		h.auditRateLimited(ctx, "signin", ip, ua)
		writeRateLimited(w, retry)
		return
	}

	var req signInRequest
	if err := decodeJSON(w, r, h.cfg.MaxBodyBytes, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid_json", "Invalid request body")
		return
	}
	login := strings.TrimSpace(req.Login)
	if login == "" || req.Password == "" {
		writeError(w, http.StatusBadRequest, "invalid_request", "login and password are required")
		return
	}

	pair, err := h.sessions.SignIn(ctx, login, req.Password)
	if err != nil {
		switch {
		case errors.Is(err, session.ErrInvalidCredentials):
			h.auditSignInFailed(ctx, ip, ua, "invalid_credentials")
			writeUnauthorized(w)
		case errors.Is(err, session.ErrStoreUnavailable):
			h.log.Error("auth.signin.store.fail", "err", err)
			writeStoreUnavailable(w)
		default:
			h.log.Error("auth.signin.fail", "err", err)
			writeError(w, http.StatusInternalServerError, "server_error", "Internal error")
		}
		return
	}

	h.auditSignInSuccess(ctx, pair.User.ID, ip, ua)
	h.setRefreshCookie(w, pair.Refresh.Raw)

	resp := toTokenResponse(pair.Access, h.now())
	user := toUserResponse(pair.User)
	resp.User = &user
	writeJSON(w, http.StatusOK, resp)
}

func (h *Handler) handleRefresh(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	ip := clientIP(r, h.cfg.TrustProxy)
	ua := strings.TrimSpace(r.UserAgent())

	raw, ok := h.refreshTokenFromCookie(r)
	if !ok {
		h.auditRefreshRejected(ctx, ip, ua, "missing")
		writeUnauthorized(w)
		return
	}

	rc, err := h.sessions.ValidateRefresh(ctx, raw)
	if err != nil {
		h.refreshFailed(w, r, err)
		return
	}
	access, err := h.sessions.RefreshAccess(ctx, rc)
	if err != nil {
		h.refreshFailed(w, r, err)
		return
	}

	writeJSON(w, http.StatusOK, toTokenResponse(access, h.now()))
}

func (h *Handler) refreshFailed(w http.ResponseWriter, r *http.Request, err error) {
	ctx := r.Context()
	if errors.Is(err, session.ErrStoreUnavailable) {
		h.log.Error("auth.refresh.store.fail", "err", err)
		writeStoreUnavailable(w)
		return
	}
	if !session.IsAuthError(err) {
		h.log.Error("auth.refresh.fail", "err", err)
		writeError(w, http.StatusInternalServerError, "server_error", "Internal error")
		return
	}

	reason := session.Reason(err)
	if errors.Is(err, session.ErrTokenExpired) {
		reason = "expired"
	}
	h.auditRefreshRejected(ctx, clientIP(r, h.cfg.TrustProxy), strings.TrimSpace(r.UserAgent()), reason)
	h.clearRefreshCookie(w)
	writeUnauthorized(w)
}

func (h *Handler) handleSignOut(w http.ResponseWriter, r *http.Request) {
	claims, ok := h.requireAuth(w, r)
	if !ok {
		return
	}

	ctx := r.Context()
	h.sessions.SignOut(ctx, claims)
	h.auditSignOut(ctx, claims.UserID, clientIP(r, h.cfg.TrustProxy), strings.TrimSpace(r.UserAgent()))

	h.clearRefreshCookie(w)
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) handleMe(w http.ResponseWriter, r *http.Request) {
	claims, ok := h.requireAuth(w, r)
	if !ok {
		return
	}

	u, err := h.users.GetUserByID(r.Context(), claims.UserID)
	if err != nil {
		if identity.IsNotFound(err) {
			writeError(w, http.StatusNotFound, "not_found", "User not found")
			return
		}
		h.log.Error("auth.me.fail", "err", err)
		writeError(w, http.StatusInternalServerError, "server_error", "Internal error")
		return
	}

	writeJSON(w, http.StatusOK, toUserResponse(u))
}

func (h *Handler) handleHandshake(w http.ResponseWriter, r *http.Request) {
	ip := clientIP(r, h.cfg.TrustProxy)
	if ok, retry := h.handshakeLimiter.allow(ipKey(ip), h.now()); !ok {
		h.auditRateLimited(r.Context(), "handshake", ip, strings.TrimSpace(r.UserAgent()))
		writeRateLimited(w, retry)
		return
	}

	claims, ok := h.requireAuth(w, r)
	if !ok {
		return
	}

	sid, err := h.handshakes.Issue(r.Context(), claims.UserID)
	if err != nil {
		h.log.Error("ws.handshake.issue.fail", "user_id", claims.UserID, "err", err)
		writeStoreUnavailable(w)
		return
	}

	writeJSON(w, http.StatusOK, handshakeResponse{
		SID:       sid,
		ExpiresIn: int64(h.handshakes.TTL().Seconds()),
	})
}

// ---- helpers ----

// requireAuth validates the bearer access token. Any token failure is the same
// generic 401; a denylist outage is 503 rather than a silent pass.
func (h *Handler) requireAuth(w http.ResponseWriter, r *http.Request) (session.Claims, bool) {
	token := bearerToken(r)
	if token == "" {
		writeUnauthorized(w)
		return session.Claims{}, false
	}

	claims, err := h.sessions.ValidateAccess(r.Context(), token)
	if err != nil {
		if errors.Is(err, session.ErrStoreUnavailable) {
			h.log.Error("auth.validate.store.fail", "err", err)
			writeStoreUnavailable(w)
			return session.Claims{}, false
		}
		h.log.Debug("auth.validate.reject", "reason", session.Reason(err))
		writeUnauthorized(w)
		return session.Claims{}, false
	}
	return claims, true
}

func ipKey(ip net.IP) string {
	if ip == nil {
		return ""
	}
	return ip.String()
}
