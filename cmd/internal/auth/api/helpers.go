package authapi

import (
	"time"

	"github.com/haontuhcmut/chat-app/cmd/identity"
	"github.com/haontuhcmut/chat-app/cmd/internal/auth/session"
)

func toUserResponse(u identity.User) userResponse {
	return userResponse{
		ID:         u.ID,
		Email:      u.Email,
		Username:   u.Username,
		FirstName:  u.FirstName,
		LastName:   u.LastName,
		Role:       u.Role,
		IsVerified: u.IsVerified,
		CreatedAt:  u.CreatedAt,
	}
}

func toTokenResponse(t session.Token, now time.Time) tokenResponse {
	return tokenResponse{
		AccessToken: t.Raw,
		TokenType:   "bearer",
		ExpiresIn:   int64(t.Claims.Remaining(now).Seconds()),
	}
}
