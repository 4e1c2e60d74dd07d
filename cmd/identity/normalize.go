package identity

import "strings"

// NormalizeUsername performs case-insensitive canonicalization.
func NormalizeUsername(s string) string {
	return strings.ToLower(strings.TrimSpace(s))
}

// NormalizeEmail performs case-insensitive canonicalization.
func NormalizeEmail(s string) string {
	return strings.ToLower(strings.TrimSpace(s))
}

// LooksLikeEmail reports whether a sign-in login should be matched against email.
func LooksLikeEmail(login string) bool {
	login = strings.TrimSpace(login)
	at := strings.IndexByte(login, '@')
	return at > 0 && at < len(login)-1
}
