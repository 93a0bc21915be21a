package canvas

import (
	"sort"
	"time"

	"memoboard/api/internal/rbac"
)

// Session is one connected participant. IsAdmin is decided when the session
// registers and never changes afterwards.
type Session struct {
	ID       string    `json:"userId"`
	Name     string    `json:"userName"`
	JoinedAt time.Time `json:"joinedAt"`
	IsAdmin  bool      `json:"isAdmin"`
}

func (s Session) Role() rbac.Role {
	if s.IsAdmin {
		return rbac.RoleAdmin
	}
	return rbac.RoleParticipant
}

// DisplayName derives the public name of a session from its identifier.
func DisplayName(sessionID string) string {
	short := sessionID
	if len(short) > 6 {
		short = short[:6]
	}
	if short == "" {
		short = "anon"
	}
	return "User_" + short
}

type SessionRegistry struct {
	sessions map[string]Session
}

func NewSessionRegistry() *SessionRegistry {
	return &SessionRegistry{sessions: make(map[string]Session)}
}

func (r *SessionRegistry) Register(id string, isAdmin bool, now time.Time) Session {
	session := Session{
		ID:       id,
		Name:     DisplayName(id),
		JoinedAt: now,
		IsAdmin:  isAdmin,
	}
	r.sessions[id] = session
	return session
}

func (r *SessionRegistry) Unregister(id string) (Session, bool) {
	session, ok := r.sessions[id]
	if ok {
		delete(r.sessions, id)
	}
	return session, ok
}

func (r *SessionRegistry) Get(id string) (Session, bool) {
	session, ok := r.sessions[id]
	return session, ok
}

// IsAdmin reports the capability cached on the session. Unknown sessions are
// never administrators.
func (r *SessionRegistry) IsAdmin(id string) bool {
	return r.sessions[id].IsAdmin
}

func (r *SessionRegistry) Count() int {
	return len(r.sessions)
}

// All returns the sessions ordered by join time.
func (r *SessionRegistry) All() []Session {
	out := make([]Session, 0, len(r.sessions))
	for _, s := range r.sessions {
		out = append(out, s)
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].JoinedAt.Equal(out[j].JoinedAt) {
			return out[i].ID < out[j].ID
		}
		return out[i].JoinedAt.Before(out[j].JoinedAt)
	})
	return out
}
