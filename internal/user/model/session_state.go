package model

// SessionPhase enumerates the authentication states.
type SessionPhase int

const (
	SessionInitializing SessionPhase = iota
	SessionAuthenticated
	SessionAnonymous
)

func (p SessionPhase) String() string {
	switch p {
	case SessionInitializing:
		return "initializing"
	case SessionAuthenticated:
		return "authenticated"
	case SessionAnonymous:
		return "anonymous"
	default:
		return "unknown"
	}
}

// SessionState is exactly one of Initializing, Authenticated(User) or Anonymous.
// User is non-nil only when Phase is SessionAuthenticated.
type SessionState struct {
	Phase SessionPhase
	User  *User
}

func Initializing() SessionState {
	return SessionState{Phase: SessionInitializing}
}

func Anonymous() SessionState {
	return SessionState{Phase: SessionAnonymous}
}

func Authenticated(u User) SessionState {
	return SessionState{Phase: SessionAuthenticated, User: &u}
}

// UserID returns the current user id or "" when not authenticated.
func (s SessionState) UserID() string {
	if s.Phase != SessionAuthenticated || s.User == nil {
		return ""
	}
	return s.User.ID.String()
}

func (s SessionState) IsAdmin() bool {
	return s.Phase == SessionAuthenticated && s.User != nil && s.User.IsAdmin()
}
