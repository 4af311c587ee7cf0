package auth

import "sync"

// Session holds the signed-in identity. An empty user id means signed out.
type Session struct {
	mu     sync.RWMutex
	userID string
}

func NewSession(userID string) *Session {
	return &Session{userID: userID}
}

func (s *Session) SignIn(userID string) {
	s.mu.Lock()
	s.userID = userID
	s.mu.Unlock()
}

func (s *Session) SignOut() {
	s.SignIn("")
}

func (s *Session) CurrentUser() (string, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.userID, s.userID != ""
}
