// Package session implements the token lifecycle of the chat service.
//
// Access and refresh tokens are HS256 JWTs produced by one Codec and told apart
// by the "kind" claim. An access token is valid until its exp unless its jti is
// on the denylist. A refresh token is valid only while its jti equals the user's
// stored refresh pointer, so each sign-in supersedes every earlier refresh token.
//
// Transport (HTTP cookies, bearer headers) lives in package api.
package session
