package session

import "github.com/jrsteele09/specranking-client/users"

// Phase is the position of a session in its lifecycle.
type Phase int

const (
	Unresolved Phase = iota
	Resolving
	Authenticated
	Anonymous
)

func (p Phase) String() string {
	switch p {
	case Unresolved:
		return "unresolved"
	case Resolving:
		return "resolving"
	case Authenticated:
		return "authenticated"
	case Anonymous:
		return "anonymous"
	default:
		return "unknown"
	}
}

// State is a consistent snapshot of the session.
type State struct {
	AccessToken string
	User        *users.Profile
	IsLoggedIn  bool
	Loading     bool
	Phase       Phase
	Generation  uint64
	TimerArmed  bool
}
