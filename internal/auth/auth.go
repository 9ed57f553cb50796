// Package auth maps opaque bearer tokens to user identities. The identity
// provider is a deliberate stub: a fixed in-memory table, optionally
// extended from configuration. The rest of the system only ever sees a
// user ID or a rejection.
package auth

import "strings"

// User is the identity attached to a validated token.
type User struct {
	ID       string `json:"id"`
	Username string `json:"username"`
	Email    string `json:"email"`
}

// Service validates bearer tokens against a fixed identity table.
type Service struct {
	users map[string]User
}

// defaultUsers is the built-in identity table used when no tokens are
// configured.
var defaultUsers = map[string]User{
	"token_user1": {ID: "user_1", Username: "alice", Email: "alice@example.com"},
	"token_user2": {ID: "user_2", Username: "bob", Email: "bob@example.com"},
	"token_user3": {ID: "user_3", Username: "charlie", Email: "charlie@example.com"},
}

// NewService builds the token table. extra holds configured token->userID
// pairs which are merged over the defaults; the username defaults to the
// user ID for configured entries.
func NewService(extra map[string]string) *Service {
	users := make(map[string]User, len(defaultUsers)+len(extra))
	for token, u := range defaultUsers {
		users[token] = u
	}
	for token, userID := range extra {
		users[token] = User{ID: userID, Username: userID}
	}
	return &Service{users: users}
}

// ValidateToken resolves a raw Authorization header value to a user.
// The "Bearer " prefix is optional. Unknown or empty tokens report false.
func (s *Service) ValidateToken(token string) (User, bool) {
	clean := strings.TrimSpace(strings.TrimPrefix(strings.TrimSpace(token), "Bearer "))
	if clean == "" {
		return User{}, false
	}
	u, ok := s.users[clean]
	return u, ok
}
