package identity

import (
	"context"
	"errors"
	"net"
	"os"
	"strings"
	"testing"
	"time"

	"github.com/haontuhcmut/chat-app/cmd/identity/ids"
	"github.com/haontuhcmut/chat-app/cmd/identity/migrations"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// Integration tests are opt-in and require CHAT_TEST_DATABASE_URL.
// Unreachable Postgres skips these tests outside CI.

func TestPostgresStore_CreateUser_ConflictUsername_CaseInsensitive(t *testing.T) {
	t.Parallel()

	s := mustNewTestStore(t)
	ctx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()

	if _, err := s.CreateUser(ctx, CreateUserInput{Email: "one@example.com", Username: "Navid", Password: "very-strong-password-1"}); err != nil {
		t.Fatalf("create user 1: %v", err)
	}

	_, err := s.CreateUser(ctx, CreateUserInput{Email: "two@example.com", Username: "nAvId", Password: "very-strong-password-2"})
	field, ok := IsConflict(err)
	if !ok || field != "username" {
		t.Fatalf("expected username conflict, got field=%q err=%v", field, err)
	}
}

func TestPostgresStore_CreateUser_ConflictEmail_CaseInsensitive(t *testing.T) {
	t.Parallel()

	s := mustNewTestStore(t)
	ctx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()

	if _, err := s.CreateUser(ctx, CreateUserInput{Email: "User@Example.com", Username: "one", Password: "very-strong-password-1"}); err != nil {
		t.Fatalf("create user 1: %v", err)
	}

	_, err := s.CreateUser(ctx, CreateUserInput{Email: "user@example.COM", Username: "two", Password: "very-strong-password-2"})
	field, ok := IsConflict(err)
	if !ok || field != "email" {
		t.Fatalf("expected email conflict, got field=%q err=%v", field, err)
	}
}

func TestPostgresStore_LoginLookup_And_RefreshPointer(t *testing.T) {
	t.Parallel()

	s := mustNewTestStore(t)
	ctx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()

	u, err := s.CreateUser(ctx, CreateUserInput{Email: "alice@example.com", Username: "alice", Password: "very-strong-password"})
	if err != nil {
		t.Fatalf("create user: %v", err)
	}

	ua, err := s.GetUserAuthByLogin(ctx, "ALICE@example.com")
	if err != nil {
		t.Fatalf("login by email: %v", err)
	}
	if ua.User.ID != u.ID {
		t.Fatalf("id mismatch: %s != %s", ua.User.ID, u.ID)
	}
	if ok, err := VerifyPassword("very-strong-password", ua.PasswordHash); err != nil || !ok {
		t.Fatalf("verify stored hash: ok=%v err=%v", ok, err)
	}

	if _, ok, err := s.RefreshJTI(ctx, u.ID); err != nil || ok {
		t.Fatalf("fresh user should have no pointer: ok=%v err=%v", ok, err)
	}
	if err := s.SetRefreshJTI(ctx, u.ID, "01JTESTJTI"); err != nil {
		t.Fatalf("set pointer: %v", err)
	}
	if jti, ok, err := s.RefreshJTI(ctx, u.ID); err != nil || !ok || jti != "01JTESTJTI" {
		t.Fatalf("pointer mismatch: jti=%q ok=%v err=%v", jti, ok, err)
	}
	if err := s.SetRefreshJTI(ctx, u.ID, ""); err != nil {
		t.Fatalf("clear pointer: %v", err)
	}
	if _, ok, _ := s.RefreshJTI(ctx, u.ID); ok {
		t.Fatalf("pointer should be cleared")
	}

	if err := s.SetRefreshJTI(ctx, ids.NewUserID(), "x"); !IsNotFound(err) {
		t.Fatalf("expected not found for unknown user, got %v", err)
	}
	if _, err := s.GetUserByID(ctx, ids.NewUserID()); !IsNotFound(err) {
		t.Fatalf("expected not found, got %v", err)
	}
}

func TestPostgresStore_NonUUIDIDIsNotFound(t *testing.T) {
	s := mustNewTestStore(t)
	ctx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()

	u, err := s.CreateUser(ctx, CreateUserInput{Email: "bob@example.com", Username: "bob", Password: "very-strong-password"})
	if err != nil {
		t.Fatalf("create user: %v", err)
	}

	// Textual variants of a real id must not match a row either.
	for _, id := range []string{"not-a-uuid", "", "' OR 1=1 --", u.ID + "x"} {
		if _, err := s.GetUserByID(ctx, id); !IsNotFound(err) {
			t.Fatalf("GetUserByID(%q): expected not found, got %v", id, err)
		}
		if err := s.SetRefreshJTI(ctx, id, "x"); !IsNotFound(err) {
			t.Fatalf("SetRefreshJTI(%q): expected not found, got %v", id, err)
		}
		if _, _, err := s.RefreshJTI(ctx, id); !IsNotFound(err) {
			t.Fatalf("RefreshJTI(%q): expected not found, got %v", id, err)
		}
	}

	got, err := s.GetUserByID(ctx, strings.ToUpper(u.ID))
	if err != nil || got.ID != u.ID {
		t.Fatalf("upper-case id should resolve: got=%+v err=%v", got, err)
	}
}

func TestPostgresStore_ClearRefreshJTI_OnlyWhenCurrent(t *testing.T) {
	s := mustNewTestStore(t)
	ctx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()

	u, err := s.CreateUser(ctx, CreateUserInput{Email: "carol@example.com", Username: "carol", Password: "very-strong-password"})
	if err != nil {
		t.Fatalf("create user: %v", err)
	}
	if err := s.SetRefreshJTI(ctx, u.ID, "jti-2"); err != nil {
		t.Fatalf("set pointer: %v", err)
	}

	if cleared, err := s.ClearRefreshJTI(ctx, u.ID, "jti-1"); err != nil || cleared {
		t.Fatalf("stale jti must not clear: cleared=%v err=%v", cleared, err)
	}
	if jti, ok, err := s.RefreshJTI(ctx, u.ID); err != nil || !ok || jti != "jti-2" {
		t.Fatalf("pointer mismatch: jti=%q ok=%v err=%v", jti, ok, err)
	}
	if cleared, err := s.ClearRefreshJTI(ctx, u.ID, "jti-2"); err != nil || !cleared {
		t.Fatalf("current jti should clear: cleared=%v err=%v", cleared, err)
	}
	if _, ok, _ := s.RefreshJTI(ctx, u.ID); ok {
		t.Fatalf("pointer should be cleared")
	}
}

func mustNewTestStore(t *testing.T) *PostgresStore {
	t.Helper()

	pool := mustOpenTestPool(t)
	t.Cleanup(pool.Close)

	schema := "chat_it_" + strings.ReplaceAll(ids.NewUserID()[:8], "-", "")
	mustApplySchema(t, pool, schema)
	t.Cleanup(func() {
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		_, _ = pool.Exec(ctx, `DROP SCHEMA IF EXISTS `+pgx.Identifier{schema}.Sanitize()+` CASCADE`)
	})

	s, err := NewPostgresStore(pool, WithSchema(schema), WithPasswordParams(cheapParams()))
	if err != nil {
		t.Fatalf("new store: %v", err)
	}
	return s
}

func mustOpenTestPool(t *testing.T) *pgxpool.Pool {
	t.Helper()

	raw := strings.TrimSpace(os.Getenv("CHAT_TEST_DATABASE_URL"))
	if raw == "" {
		t.Skip("integration test skipped: CHAT_TEST_DATABASE_URL is not set")
	}

	ctx, cancel := context.WithTimeout(context.Background(), 12*time.Second)
	defer cancel()

	pool, err := pgxpool.New(ctx, raw)
	if err != nil {
		t.Fatalf("connect postgres: %v", err)
	}

	pingCtx, pingCancel := context.WithTimeout(context.Background(), 3*time.Second)
	defer pingCancel()
	if err := pool.Ping(pingCtx); err != nil {
		pool.Close()
		if shouldSkipIntegration(err) {
			t.Skipf("integration test skipped: Postgres unreachable: %v", err)
		}
		t.Fatalf("ping: %v", err)
	}
	return pool
}

// mustApplySchema runs the embedded users migration inside an isolated schema.
func mustApplySchema(t *testing.T, pool *pgxpool.Pool, schema string) {
	t.Helper()

	raw, err := migrations.FS.ReadFile("0001_users.up.sql")
	if err != nil {
		t.Fatalf("read migration: %v", err)
	}
	sql := strings.ReplaceAll(string(raw), "chat.", schema+".")
	sql = strings.ReplaceAll(sql, "SCHEMA IF NOT EXISTS chat;", "SCHEMA IF NOT EXISTS "+schema+";")

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Second)
	defer cancel()
	if _, err := pool.Exec(ctx, sql); err != nil {
		t.Fatalf("apply schema: %v", err)
	}
}

func shouldSkipIntegration(err error) bool {
	if os.Getenv("CI") != "" {
		return false
	}
	var ne net.Error
	if errors.As(err, &ne) {
		return true
	}
	var oe *net.OpError
	return errors.As(err, &oe) || errors.Is(err, context.DeadlineExceeded)
}
