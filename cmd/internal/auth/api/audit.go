package authapi

import (
	"context"
	"log/slog"
	"net"
)

// Audit events go to the structured log; they never carry tokens or passwords.

func (h *Handler) auditSignInFailed(ctx context.Context, ip net.IP, ua, reason string) {
	h.audit(ctx, "audit.auth.signin.failed", ip, ua, slog.String("reason", reason))
}

func (h *Handler) auditSignInSuccess(ctx context.Context, userID string, ip net.IP, ua string) {
	h.audit(ctx, "audit.auth.signin.success", ip, ua, slog.String("user_id", userID))
}

func (h *Handler) auditSignUp(ctx context.Context, userID string, ip net.IP, ua string) {
	h.audit(ctx, "audit.auth.signup", ip, ua, slog.String("user_id", userID))
}

func (h *Handler) auditRateLimited(ctx context.Context, route string, ip net.IP, ua string) {
	h.audit(ctx, "audit.auth.rate_limited", ip, ua, slog.String("route", route))
}

func (h *Handler) auditRefreshRejected(ctx context.Context, ip net.IP, ua, reason string) {
	h.audit(ctx, "audit.auth.refresh.rejected", ip, ua, slog.String("reason", reason))
}

func (h *Handler) auditSignOut(ctx context.Context, userID string, ip net.IP, ua string) {
	h.audit(ctx, "audit.auth.signout", ip, ua, slog.String("user_id", userID))
}

func (h *Handler) audit(ctx context.Context, action string, ip net.IP, ua string, attrs ...slog.Attr) {
	base := make([]slog.Attr, 0, len(attrs)+2)
	if ip != nil {
		base = append(base, slog.String("ip", ip.String()))
	}
	if ua != "" {
		base = append(base, slog.String("user_agent", ua))
	}
	h.log.LogAttrs(ctx, slog.LevelInfo, action, append(base, attrs...)...)
}
