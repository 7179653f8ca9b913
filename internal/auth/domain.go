package auth

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/goccy/go-json"

	"github.com/odyssey-erp/inventory-portal/internal/platform/kv"
	"github.com/odyssey-erp/inventory-portal/internal/rbac"
	"github.com/odyssey-erp/inventory-portal/internal/users"
)

// Session is the signed-in identity held by the process.
type Session struct {
	UserID      string       `json:"id"`
	Name        string       `json:"name"`
	Email       string       `json:"email"`
	Role        rbac.Role    `json:"role"`
	Status      users.Status `json:"status"`
	Permissions []string     `json:"permissions"`
	Phone       string       `json:"phone,omitempty"`
	Company     string       `json:"company,omitempty"`
	Address     string       `json:"address,omitempty"`
	LoginAt     time.Time    `json:"loginAt"`
}

func newSession(a users.Account, loginAt time.Time) Session {
	return Session{
		UserID:      a.ID,
		Name:        a.Name,
		Email:       a.Email,
		Role:        a.Role,
		Status:      a.Status,
		Permissions: append([]string(nil), a.Permissions...),
		Phone:       a.Phone,
		Company:     a.Company,
		Address:     a.Address,
		LoginAt:     loginAt,
	}
}

// withProfile copies profile fields from a. Role and permissions stay as
// captured at login.
func (s Session) withProfile(a users.Account) Session {
	s.Name = a.Name
	s.Email = a.Email
	s.Status = a.Status
	s.Phone = a.Phone
	s.Company = a.Company
	s.Address = a.Address
	return s
}

func (s Session) clone() Session {
	s.Permissions = append([]string(nil), s.Permissions...)
	return s
}

// SessionStore holds the current Session, mirrors it to the key-value store
// and notifies subscribers on every change.
type SessionStore struct {
	store kv.Store

	mu      sync.RWMutex
	current *Session
	subs    []sessionSub
	nextID  int
}

type sessionSub struct {
	id int
	fn func(Session, bool)
}

// NewSessionStore constructs an empty store backed by store.
func NewSessionStore(store kv.Store) *SessionStore {
	return &SessionStore{store: store}
}

// Current returns the session, if any.
func (s *SessionStore) Current() (Session, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.current == nil {
		return Session{}, false
	}
	return s.current.clone(), true
}

// Set replaces the session and persists it.
func (s *SessionStore) Set(ctx context.Context, session Session) error {
	data, err := json.Marshal(session)
	if err != nil {
		return fmt.Errorf("auth: encode session: %w", err)
	}
	if err := s.store.Set(ctx, kv.KeyCurrentUser, data); err != nil {
		return fmt.Errorf("auth: persist session: %w", err)
	}
	s.mu.Lock()
	cp := session.clone()
	s.current = &cp
	s.mu.Unlock()
	s.notify()
	return nil
}

// Update applies fn to the current session when present.
func (s *SessionStore) Update(ctx context.Context, fn func(*Session)) (Session, bool, error) {
	s.mu.Lock()
	if s.current == nil {
		s.mu.Unlock()
		return Session{}, false, nil
	}
	next := s.current.clone()
	fn(&next)
	s.mu.Unlock()
	if err := s.Set(ctx, next); err != nil {
		return Session{}, true, err
	}
	return next, true, nil
}

// Clear drops the session. It returns the previous session when one existed.
// The in-memory session is cleared even when the persisted copy cannot be
// removed.
func (s *SessionStore) Clear(ctx context.Context) (Session, bool, error) {
	s.mu.Lock()
	prev := s.current
	s.current = nil
	s.mu.Unlock()

	err := s.store.Delete(ctx, kv.KeyCurrentUser)
	if err != nil && !errors.Is(err, kv.ErrNotFound) {
		err = fmt.Errorf("auth: remove session: %w", err)
	} else {
		err = nil
	}
	if prev == nil {
		return Session{}, false, err
	}
	s.notify()
	return *prev, true, err
}

// Load restores the persisted session, if any.
func (s *SessionStore) Load(ctx context.Context) (Session, bool, error) {
	data, err := s.store.Get(ctx, kv.KeyCurrentUser)
	if err != nil {
		if errors.Is(err, kv.ErrNotFound) {
			return Session{}, false, nil
		}
		return Session{}, false, err
	}
	var session Session
	if err := json.Unmarshal(data, &session); err != nil {
		return Session{}, false, fmt.Errorf("auth: decode %s: %w", kv.KeyCurrentUser, err)
	}
	s.mu.Lock()
	cp := session.clone()
	s.current = &cp
	s.mu.Unlock()
	s.notify()
	return session, true, nil
}

// Subscribe registers fn for session changes. fn receives false after logout
// or expiry.
func (s *SessionStore) Subscribe(fn func(Session, bool)) (unsubscribe func()) {
	s.mu.Lock()
	s.nextID++
	id := s.nextID
	s.subs = append(s.subs, sessionSub{id: id, fn: fn})
	s.mu.Unlock()
	return func() {
		s.mu.Lock()
		defer s.mu.Unlock()
		for i, sub := range s.subs {
			if sub.id == id {
				s.subs = append(s.subs[:i:i], s.subs[i+1:]...)
				return
			}
		}
	}
}

func (s *SessionStore) notify() {
	s.mu.RLock()
	subs := make([]sessionSub, len(s.subs))
	copy(subs, s.subs)
	var current Session
	ok := s.current != nil
	if ok {
		current = s.current.clone()
	}
	s.mu.RUnlock()
	for _, sub := range subs {
		sub.fn(current, ok)
	}
}
