package session

import (
	"errors"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// Kind tags a token as access or refresh. One verification path exists per kind.
type Kind string

const (
	KindAccess  Kind = "access"
	KindRefresh Kind = "refresh"
)

func (k Kind) valid() bool { return k == KindAccess || k == KindRefresh }

// maxTokenLen bounds decode input to avoid pathological parsing work.
const maxTokenLen = 4096

// Claims is the decoded claim set of an access or refresh token.
// Timestamps carry whole-second precision, as encoded.
type Claims struct {
	UserID     string
	Email      string
	Username   string
	Role       string
	JTI        string
	Kind       Kind
	// RefreshJTI names the refresh token an access token was minted from.
	// Empty on refresh tokens.
	RefreshJTI string
	IssuedAt   time.Time
	ExpiresAt  time.Time
}

// Expired reports whether the token is past its exp at now.
func (c Claims) Expired(now time.Time) bool { return !now.Before(c.ExpiresAt) }

// Remaining returns the lifetime left at now (zero once expired).
func (c Claims) Remaining(now time.Time) time.Duration {
	if d := c.ExpiresAt.Sub(now); d > 0 {
		return d
	}
	return 0
}

type jwtClaims struct {
	jwt.RegisteredClaims
	Email    string `json:"email,omitempty"`
	Username string `json:"username"`
	Role     string `json:"role"`
	Kind     Kind   `json:"kind"`
	RJTI     string `json:"rjti,omitempty"`
}

// Codec signs and verifies HS256 tokens. It is safe for concurrent use.
type Codec struct {
	secret []byte
	issuer string
	parser *jwt.Parser
}

// NewCodec constructs a Codec. An empty secret is rejected with ErrConfig.
func NewCodec(secret []byte, issuer string) (*Codec, error) {
	if len(secret) == 0 {
		return nil, ErrConfig
	}
	return &Codec{
		secret: append([]byte(nil), secret...),
		issuer: issuer,
		// Expiry is checked by Service so that access and refresh flows can
		// report it differently.
		parser: jwt.NewParser(
			jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
			jwt.WithoutClaimsValidation(),
		),
	}, nil
}

// Issue stamps iat=now and exp=now+ttl onto c and signs it.
// It returns the token and the claims exactly as a later Decode will see them.
func (c *Codec) Issue(cl Claims, ttl time.Duration, now time.Time) (string, Claims, error) {
	if ttl <= 0 || cl.UserID == "" || cl.JTI == "" || !cl.Kind.valid() {
		return "", Claims{}, errors.New("session: incomplete claims")
	}

	now = now.UTC().Truncate(time.Second)
	cl.IssuedAt = now
	cl.ExpiresAt = now.Add(ttl)

	tok := jwt.NewWithClaims(jwt.SigningMethodHS256, jwtClaims{
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   cl.UserID,
			Issuer:    c.issuer,
			ID:        cl.JTI,
			IssuedAt:  jwt.NewNumericDate(cl.IssuedAt),
			ExpiresAt: jwt.NewNumericDate(cl.ExpiresAt),
		},
		Email:    cl.Email,
		Username: cl.Username,
		Role:     cl.Role,
		Kind:     cl.Kind,
		RJTI:     cl.RefreshJTI,
	})

	signed, err := tok.SignedString(c.secret)
	if err != nil {
		return "", Claims{}, err
	}
	return signed, cl, nil
}

// Decode verifies signature, algorithm and claim structure. It does not check exp.
// Every failure is reported as ErrInvalidToken.
func (c *Codec) Decode(raw string) (Claims, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" || len(raw) > maxTokenLen {
		return Claims{}, invalidToken("malformed")
	}

	var jc jwtClaims
	tok, err := c.parser.ParseWithClaims(raw, &jc, func(*jwt.Token) (any, error) {
		return c.secret, nil
	})
	if err != nil {
		switch {
		case errors.Is(err, jwt.ErrTokenSignatureInvalid):
			return Claims{}, invalidToken("signature")
		case errors.Is(err, jwt.ErrTokenUnverifiable):
			return Claims{}, invalidToken("algorithm")
		default:
			return Claims{}, invalidToken("malformed")
		}
	}
	if !tok.Valid {
		return Claims{}, invalidToken("malformed")
	}

	if jc.Subject == "" || jc.ID == "" || jc.IssuedAt == nil || jc.ExpiresAt == nil || !jc.Kind.valid() {
		return Claims{}, invalidToken("claims")
	}
	if c.issuer != "" && jc.Issuer != c.issuer {
		return Claims{}, invalidToken("issuer")
	}

	return Claims{
		UserID:     jc.Subject,
		Email:      jc.Email,
		Username:   jc.Username,
		Role:       jc.Role,
		JTI:        jc.ID,
		Kind:       jc.Kind,
		RefreshJTI: jc.RJTI,
		IssuedAt:   jc.IssuedAt.UTC(),
		ExpiresAt:  jc.ExpiresAt.UTC(),
	}, nil
}
