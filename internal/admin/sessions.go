package admin

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/debemdeboas/stand-admin/internal/editor"
	"github.com/debemdeboas/stand-admin/internal/model"
	"github.com/debemdeboas/stand-admin/internal/notify"
	"github.com/google/uuid"
)

var ErrSessionNotFound = errors.New("editing session not found")

type SessionID string

// Session is one admin client editing one record.
type Session struct {
	ID     SessionID
	Kind   model.Kind
	Editor *editor.Editor
	Notes  *notify.Recorder

	mu       sync.Mutex
	lastSeen time.Time
}

func (s *Session) touch(now time.Time) {
	s.mu.Lock()
	s.lastSeen = now
	s.mu.Unlock()
}

func (s *Session) idleSince(now time.Time) time.Duration {
	s.mu.Lock()
	defer s.mu.Unlock()
	return now.Sub(s.lastSeen)
}

// SessionStore keeps editing sessions in memory.
type SessionStore struct {
	sessions sync.Map // SessionID -> *Session
	idle     time.Duration
	now      func() time.Time
}

func NewSessionStore(idleTimeout time.Duration) *SessionStore {
	return &SessionStore{
		idle: idleTimeout,
		now:  time.Now,
	}
}

func (s *SessionStore) Create(kind model.Kind, ed *editor.Editor, notes *notify.Recorder) *Session {
	sess := &Session{
		ID:       SessionID(uuid.New().String()),
		Kind:     kind,
		Editor:   ed,
		Notes:    notes,
		lastSeen: s.now(),
	}
	s.sessions.Store(sess.ID, sess)
	return sess
}

func (s *SessionStore) Get(id SessionID) (*Session, error) {
	v, ok := s.sessions.Load(id)
	if !ok {
		return nil, ErrSessionNotFound
	}
	sess := v.(*Session)
	sess.touch(s.now())
	return sess, nil
}

// Delete ends a session and releases its previews.
func (s *SessionStore) Delete(id SessionID) error {
	v, ok := s.sessions.LoadAndDelete(id)
	if !ok {
		return ErrSessionNotFound
	}
	v.(*Session).Editor.Teardown()
	return nil
}

func (s *SessionStore) Len() int {
	n := 0
	s.sessions.Range(func(_, _ any) bool {
		n++
		return true
	})
	return n
}

// Refresh tells every session editing rec that it changed in the
// background. Drafts are kept; the editor only reseeds on a new record.
func (s *SessionStore) Refresh(rec *model.Record) int {
	n := 0
	s.sessions.Range(func(_, v any) bool {
		sess := v.(*Session)
		if sess.Kind != rec.Kind || sess.Editor.RecordID() != rec.ID || sess.Editor.TornDown() {
			return true
		}
		sess.Notes.Notify(notify.Notification{
			Level:   notify.LevelInfo,
			Message: "This record was changed elsewhere",
		})
		n++
		return true
	})
	return n
}

// SweepIdle ends sessions unused for longer than the idle timeout.
func (s *SessionStore) SweepIdle() int {
	if s.idle <= 0 {
		return 0
	}
	now := s.now()
	n := 0
	s.sessions.Range(func(k, v any) bool {
		sess := v.(*Session)
		if sess.idleSince(now) > s.idle && !sess.Editor.Committing() {
			if s.Delete(k.(SessionID)) == nil {
				n++
			}
		}
		return true
	})
	if n > 0 {
		adminLogger.Info().Int("sessions", n).Msg("Idle editing sessions ended")
	}
	return n
}

// Janitor sweeps idle sessions every interval until ctx is done, then ends
// every remaining session.
func (s *SessionStore) Janitor(ctx context.Context, interval time.Duration) {
	// Without an interval only shutdown ends sessions.
	var tick <-chan time.Time
	if interval > 0 {
		ticker := time.NewTicker(interval)
		defer ticker.Stop()
		tick = ticker.C
	}
	for {
		select {
		case <-ctx.Done():
			s.sessions.Range(func(k, _ any) bool {
				_ = s.Delete(k.(SessionID))
				return true
			})
			return
		case <-tick:
			s.SweepIdle()
		}
	}
}
