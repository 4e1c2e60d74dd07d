package identity

import (
	"context"
	"errors"
	"fmt"
	"regexp"
	"strings"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/haontuhcmut/chat-app/cmd/identity/ids"
)

// PostgresStore implements Store over PostgreSQL.
//
// The pgx pool is owned by the caller; this store never closes it.
// Schema/table identifiers are quoted through pgx.Identifier.
type PostgresStore struct {
	pool   *pgxpool.Pool
	schema string
	params PasswordParams
}

var _ Store = (*PostgresStore)(nil)

// PostgresOption configures the store.
type PostgresOption func(*PostgresStore) error

var pgIdentRe = regexp.MustCompile(`^[a-zA-Z_][a-zA-Z0-9_]*$`)

// WithSchema sets the Postgres schema used by the store (default "chat").
func WithSchema(schema string) PostgresOption {
	return func(s *PostgresStore) error {
		schema = strings.TrimSpace(schema)
		if schema == "" || !pgIdentRe.MatchString(schema) {
			return fmt.Errorf("identity: invalid schema identifier %q", schema)
		}
		s.schema = schema
		return nil
	}
}

// WithPasswordParams overrides the argon2id cost used when creating users.
func WithPasswordParams(p PasswordParams) PostgresOption {
	return func(s *PostgresStore) error {
		s.params = p
		return nil
	}
}

// NewPostgresStore constructs a PostgresStore.
func NewPostgresStore(pool *pgxpool.Pool, opts ...PostgresOption) (*PostgresStore, error) {
	st := &PostgresStore{
		pool:   pool,
		schema: "chat",
		params: DefaultPasswordParams(),
	}
	for _, opt := range opts {
		if opt == nil {
			continue
		}
		if err := opt(st); err != nil {
			return nil, err
		}
	}
	if st.pool == nil {
		return nil, errors.New("identity: nil pool")
	}
	return st, nil
}

const userColumns = `id::text, email, username, first_name, last_name, role, is_verified, created_at`

func (s *PostgresStore) users() string {
	return pgx.Identifier{s.schema, "users"}.Sanitize()
}

func (s *PostgresStore) CreateUser(ctx context.Context, in CreateUserInput) (User, error) {
	const op = "identity.CreateUser"

	u, hash, err := newUserRecord(op, in, s.params)
	if err != nil {
		return User{}, err
	}

	_, err = s.pool.Exec(ctx,
		`INSERT INTO `+s.users()+` (
		     id, email, email_norm, username, username_norm,
		     first_name, last_name, hashed_password, role, created_at, updated_at
		   ) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $10)`,
		u.ID, u.Email, NormalizeEmail(u.Email), u.Username, NormalizeUsername(u.Username),
		u.FirstName, u.LastName, hash, u.Role, u.CreatedAt,
	)
	if err != nil {
		if field, ok := pgClassifyUniqueViolation(err); ok {
			return User{}, ConflictError{Op: op, Field: field}
		}
		return User{}, fmt.Errorf("%s: %w", op, err)
	}
	return u, nil
}

func (s *PostgresStore) GetUserByID(ctx context.Context, id string) (User, error) {
	const op = "identity.GetUserByID"

	id = strings.TrimSpace(id)
	if !ids.ValidUserID(id) {
		return User{}, NotFoundError{Op: op, Resource: "user"}
	}
	row := s.pool.QueryRow(ctx,
		`SELECT `+userColumns+` FROM `+s.users()+` WHERE id = $1::uuid`,
		id,
	)
	u, err := scanUser(row)
	if err != nil {
		return User{}, pgWrapNotFound(op, err)
	}
	return u, nil
}

func (s *PostgresStore) GetUserAuthByLogin(ctx context.Context, login string) (UserAuth, error) {
	const op = "identity.GetUserAuthByLogin"

	col, val := "username_norm", NormalizeUsername(login)
	if LooksLikeEmail(login) {
		col, val = "email_norm", NormalizeEmail(login)
	}

	var (
		u    User
		hash string
	)
	err := s.pool.QueryRow(ctx,
		`SELECT `+userColumns+`, hashed_password FROM `+s.users()+` WHERE `+col+` = $1`,
		val,
	).Scan(&u.ID, &u.Email, &u.Username, &u.FirstName, &u.LastName, &u.Role, &u.IsVerified, &u.CreatedAt, &hash)
	if err != nil {
		return UserAuth{}, pgWrapNotFound(op, err)
	}
	return UserAuth{User: u, PasswordHash: hash}, nil
}

// SetRefreshJTI overwrites jti_current_token in a single UPDATE; concurrent
// writers are serialized by the row lock and the last one wins.
func (s *PostgresStore) SetRefreshJTI(ctx context.Context, userID, jti string) error {
	const op = "identity.SetRefreshJTI"

	if !ids.ValidUserID(userID) {
		return NotFoundError{Op: op, Resource: "user"}
	}
	var val any
	if jti != "" {
		val = jti
	}
	tag, err := s.pool.Exec(ctx,
		`UPDATE `+s.users()+` SET jti_current_token = $2, updated_at = now() WHERE id = $1::uuid`,
		userID, val,
	)
	if err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}
	if tag.RowsAffected() == 0 {
		return NotFoundError{Op: op, Resource: "user"}
	}
	return nil
}

// ClearRefreshJTI clears jti_current_token only while it still equals jti.
// The comparison and the write happen in one UPDATE.
func (s *PostgresStore) ClearRefreshJTI(ctx context.Context, userID, jti string) (bool, error) {
	const op = "identity.ClearRefreshJTI"

	if !ids.ValidUserID(userID) {
		return false, NotFoundError{Op: op, Resource: "user"}
	}
	if jti == "" {
		return false, nil
	}
	tag, err := s.pool.Exec(ctx,
		`UPDATE `+s.users()+` SET jti_current_token = NULL, updated_at = now()
		 WHERE id = $1::uuid AND jti_current_token = $2`,
		userID, jti,
	)
	if err != nil {
		return false, fmt.Errorf("%s: %w", op, err)
	}
	return tag.RowsAffected() == 1, nil
}

func (s *PostgresStore) RefreshJTI(ctx context.Context, userID string) (string, bool, error) {
	const op = "identity.RefreshJTI"

	if !ids.ValidUserID(userID) {
		return "", false, NotFoundError{Op: op, Resource: "user"}
	}
	var jti *string
	err := s.pool.QueryRow(ctx,
		`SELECT jti_current_token FROM `+s.users()+` WHERE id = $1::uuid`,
		userID,
	).Scan(&jti)
	if err != nil {
		return "", false, pgWrapNotFound(op, err)
	}
	if jti == nil || *jti == "" {
		return "", false, nil
	}
	return *jti, true, nil
}

func scanUser(row pgx.Row) (User, error) {
	var u User
	err := row.Scan(&u.ID, &u.Email, &u.Username, &u.FirstName, &u.LastName, &u.Role, &u.IsVerified, &u.CreatedAt)
	return u, err
}

func pgWrapNotFound(op string, err error) error {
	if errors.Is(err, pgx.ErrNoRows) {
		return NotFoundError{Op: op, Resource: "user"}
	}
	return fmt.Errorf("%s: %w", op, err)
}

func pgClassifyUniqueViolation(err error) (field string, ok bool) {
	var pgErr *pgconn.PgError
	if !errors.As(err, &pgErr) || pgErr.Code != "23505" { // unique_violation
		return "", false
	}

	// Prefer stable constraint names; fall back to substring matching.
	c := strings.ToLower(strings.TrimSpace(pgErr.ConstraintName))
	switch {
	case c == "uq_users_username_norm", strings.Contains(c, "username"):
		return "username", true
	case c == "uq_users_email_norm", strings.Contains(c, "email"):
		return "email", true
	default:
		return "unique", true
	}
}
