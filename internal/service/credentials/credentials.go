// Package credentials abstracts where the chat clients obtain their auth
// state. The channel clients treat the source as read-only; login and
// logout are managed elsewhere.
package credentials

// Source supplies the current auth token and user identity.
type Source interface {
	Token() string
	UserID() string
	IsPrivileged() bool
}

// Static is a fixed credential source, typically loaded from config.
type Static struct {
	token      string
	userID     string
	privileged bool
}

func NewStatic(token, userID string, privileged bool) *Static {
	return &Static{token: token, userID: userID, privileged: privileged}
}

func (s *Static) Token() string { return s.token }

func (s *Static) UserID() string { return s.userID }

func (s *Static) IsPrivileged() bool { return s.privileged }
