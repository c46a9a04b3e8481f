// Package session holds the per-run UI state: the selected cat, the
// active view and the focused alert.
package session

import (
	"strings"
	"sync"
)

type View string

const (
	ViewNone          View = ""
	ViewAlerts        View = "alerts"
	ViewNotifications View = "notifications"
)

type Session struct {
	mu          sync.RWMutex
	subject     string
	view        View
	focusID     int64
	noticeShown bool
}

func New() *Session {
	return &Session{}
}

// Select sets the subject cat. A blank name clears it.
func (s *Session) Select(cat string) {
	s.mu.Lock()
	s.subject = strings.TrimSpace(cat)
	s.mu.Unlock()
}

func (s *Session) Subject() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.subject
}

func (s *Session) Show(view View) {
	s.mu.Lock()
	s.view = view
	s.mu.Unlock()
}

func (s *Session) View() View {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.view
}

// Focus selects the cat's alert view and highlights one alert.
func (s *Session) Focus(cat string, alertID int64) {
	s.mu.Lock()
	s.subject = strings.TrimSpace(cat)
	s.view = ViewAlerts
	s.focusID = alertID
	s.mu.Unlock()
}

func (s *Session) FocusID() int64 {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.focusID
}

func (s *Session) ClearFocus() {
	s.mu.Lock()
	s.focusID = 0
	s.mu.Unlock()
}

// ReportFailure returns true only for the first failure of the session;
// the caller shows the connectivity notice then.
func (s *Session) ReportFailure(err error) bool {
	if err == nil {
		return false
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.noticeShown {
		return false
	}
	s.noticeShown = true
	return true
}
