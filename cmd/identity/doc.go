// Package identity owns user accounts for the chat service.
//
// It stores users with their argon2id password hash and the per-user
// "current refresh token" pointer (jti) that enforces a single active refresh
// token. Postgres is the production store; MemoryStore backs dev runs and tests.
package identity
