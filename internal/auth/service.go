package auth

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/go-playground/validator/v10"

	"github.com/odyssey-erp/inventory-portal/internal/audit"
	"github.com/odyssey-erp/inventory-portal/internal/rbac"
	"github.com/odyssey-erp/inventory-portal/internal/realtime"
	"github.com/odyssey-erp/inventory-portal/internal/shared"
	"github.com/odyssey-erp/inventory-portal/internal/users"
)

// ActivityRecorder appends entries to the activity log.
type ActivityRecorder interface {
	Record(ctx context.Context, userID, action, details string) error
}

// AccountFactory materialises new accounts from drafts.
type AccountFactory interface {
	NewAccount(draft users.Draft) users.Account
}

// RealtimeClient is the part of the notification client the core drives.
type RealtimeClient interface {
	Authenticate()
	Subscribe(fn func(realtime.Message)) (unsubscribe func())
	SetIdentitySource(src realtime.IdentitySource)
}

// Service wraps authentication and authorization rules for the portal.
type Service struct {
	accounts users.RepositoryPort
	factory  AccountFactory
	table    *rbac.Table
	sessions *SessionStore
	activity ActivityRecorder
	validate *validator.Validate
	logger   *slog.Logger
	now      func() time.Time

	rtMu     sync.RWMutex
	realtime RealtimeClient
}

// NewService constructs a new Service.
func NewService(accounts users.RepositoryPort, factory AccountFactory, table *rbac.Table, sessions *SessionStore, activity ActivityRecorder, logger *slog.Logger) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{
		accounts: accounts,
		factory:  factory,
		table:    table,
		sessions: sessions,
		activity: activity,
		validate: validator.New(),
		logger:   logger,
		now:      time.Now,
	}
}

// Sessions exposes the observable session store.
func (s *Service) Sessions() *SessionStore {
	return s.sessions
}

// Session returns the current session, if any.
func (s *Service) Session() (Session, bool) {
	return s.sessions.Current()
}

// Identity reports the signed-in user for the realtime AUTH frame.
func (s *Service) Identity() (realtime.Identity, bool) {
	session, ok := s.sessions.Current()
	if !ok {
		return realtime.Identity{}, false
	}
	return realtime.Identity{UserID: session.UserID, Role: string(session.Role)}, true
}

// Restore reloads the persisted session at startup.
func (s *Service) Restore(ctx context.Context) (Session, bool, error) {
	return s.sessions.Load(ctx)
}

// Login authenticates email/password against active accounts. When
// expectedRole is non-empty the account must hold that role.
func (s *Service) Login(ctx context.Context, email, password string, expectedRole rbac.Role) (Session, error) {
	account, err := s.accounts.FindByEmail(ctx, email)
	if err != nil {
		if errors.Is(err, shared.ErrUserNotFound) {
			return Session{}, shared.ErrInvalidCredentials
		}
		return Session{}, err
	}
	if !account.IsActive() || account.Password != password {
		return Session{}, shared.ErrInvalidCredentials
	}
	if expectedRole != "" && account.Role != expectedRole {
		return Session{}, shared.ErrRoleMismatch
	}

	now := s.now().UTC()
	account, err = s.accounts.Update(ctx, account.ID, func(a *users.Account) error {
		a.LastLoginAt = &now
		return nil
	})
	if err != nil {
		return Session{}, fmt.Errorf("auth: stamp last login: %w", err)
	}
	session := newSession(account, now)
	if err := s.sessions.Set(ctx, session); err != nil {
		return Session{}, err
	}
	s.record(ctx, account.ID, audit.ActionLogin, fmt.Sprintf("Logged in as %s", account.Role))
	s.logger.Info("login", slog.String("user_id", account.ID), slog.String("role", string(account.Role)))

	if client := s.realtimeClient(); client != nil {
		client.Authenticate()
	}
	return session, nil
}

// Logout clears the session. It is safe to call when nobody is signed in.
func (s *Service) Logout(ctx context.Context) error {
	prev, ok, err := s.sessions.Clear(ctx)
	if ok {
		s.record(ctx, prev.UserID, audit.ActionLogout, "Logged out")
	}
	return err
}

// ExpireSession forces the session to anonymous.
func (s *Service) ExpireSession(ctx context.Context, reason string) error {
	prev, ok, err := s.sessions.Clear(ctx)
	if ok {
		s.logger.Warn("session expired", slog.String("user_id", prev.UserID), slog.String("reason", reason))
		s.record(ctx, prev.UserID, audit.ActionSessionExpired, reason)
	}
	return err
}

// Register creates an active account. It does not sign the user in.
func (s *Service) Register(ctx context.Context, draft users.Draft) (users.Account, error) {
	account, err := s.insert(ctx, draft)
	if err != nil {
		return users.Account{}, err
	}
	s.record(ctx, account.ID, audit.ActionRegister, fmt.Sprintf("Registered as %s", account.Role))
	return account.Public(), nil
}

// EmailExists reports whether any account, active or not, uses email.
func (s *Service) EmailExists(ctx context.Context, email string) bool {
	_, err := s.accounts.FindByEmail(ctx, email)
	if err != nil && !errors.Is(err, shared.ErrUserNotFound) {
		s.logger.Error("email lookup", slog.Any("error", err))
	}
	return err == nil
}

// HasPermission reports whether the session role grants perm.
func (s *Service) HasPermission(perm string) bool {
	session, ok := s.sessions.Current()
	if !ok {
		return false
	}
	return s.table.Allows(session.Role, perm)
}

// HasAnyPermission reports whether at least one of perms is granted.
func (s *Service) HasAnyPermission(perms ...string) bool {
	for _, perm := range perms {
		if s.HasPermission(perm) {
			return true
		}
	}
	return false
}

// HasAllPermissions reports whether every perm is granted. An empty list
// requires only a session.
func (s *Service) HasAllPermissions(perms ...string) bool {
	if _, ok := s.sessions.Current(); !ok {
		return false
	}
	for _, perm := range perms {
		if !s.HasPermission(perm) {
			return false
		}
	}
	return true
}

// HasRole reports whether the session holds role.
func (s *Service) HasRole(role rbac.Role) bool {
	session, ok := s.sessions.Current()
	return ok && session.Role == role
}

// HasAnyRole reports whether the session holds one of roles.
func (s *Service) HasAnyRole(roles ...rbac.Role) bool {
	for _, role := range roles {
		if s.HasRole(role) {
			return true
		}
	}
	return false
}

// ListUsers returns every account without credentials.
func (s *Service) ListUsers(ctx context.Context) ([]users.Account, error) {
	if !s.HasPermission(shared.PermUsersView) {
		return nil, shared.ErrUnauthorized
	}
	accounts, err := s.accounts.ListUsers(ctx)
	if err != nil {
		return nil, err
	}
	out := make([]users.Account, len(accounts))
	for i, a := range accounts {
		out[i] = a.Public()
	}
	return out, nil
}

// CreateUser adds an account on behalf of an administrator.
func (s *Service) CreateUser(ctx context.Context, draft users.Draft) (users.Account, error) {
	actor, ok := s.authorize(shared.PermUsersCreate)
	if !ok {
		return users.Account{}, shared.ErrUnauthorized
	}
	account, err := s.insert(ctx, draft)
	if err != nil {
		return users.Account{}, err
	}
	s.record(ctx, actor.UserID, audit.ActionUserCreated, fmt.Sprintf("Created %s (%s)", account.Email, account.Role))
	return account.Public(), nil
}

// UpdateUser applies an administrative edit. Roles cannot be changed.
func (s *Service) UpdateUser(ctx context.Context, id string, update users.AdminUpdate) (users.Account, error) {
	actor, ok := s.authorize(shared.PermUsersEdit)
	if !ok {
		return users.Account{}, shared.ErrUnauthorized
	}
	if err := s.check(update); err != nil {
		return users.Account{}, err
	}
	account, err := s.accounts.Update(ctx, id, func(a *users.Account) error {
		update.Apply(a)
		a.UpdatedAt = s.now().UTC()
		return nil
	})
	if err != nil {
		return users.Account{}, err
	}
	if err := s.refreshSession(ctx, account); err != nil {
		return users.Account{}, err
	}
	s.record(ctx, actor.UserID, audit.ActionUserUpdated, fmt.Sprintf("Updated %s", account.Email))
	return account.Public(), nil
}

// DeleteUser removes an account. Deleting one's own account is always
// refused.
func (s *Service) DeleteUser(ctx context.Context, id string) error {
	actor, signedIn := s.sessions.Current()
	if signedIn && actor.UserID == id {
		return shared.ErrSelfDeleteForbidden
	}
	if !s.HasPermission(shared.PermUsersDelete) {
		return shared.ErrUnauthorized
	}
	target, err := s.accounts.FindByID(ctx, id)
	if err != nil {
		return err
	}
	if err := s.accounts.Delete(ctx, id); err != nil {
		return err
	}
	s.record(ctx, actor.UserID, audit.ActionUserDeleted, fmt.Sprintf("Deleted %s", target.Email))
	return nil
}

// UpdateProfile merges self-service changes into the account with userID.
func (s *Service) UpdateProfile(ctx context.Context, userID string, update users.ProfileUpdate) (users.Account, error) {
	if err := s.check(update); err != nil {
		return users.Account{}, err
	}
	account, err := s.accounts.Update(ctx, userID, func(a *users.Account) error {
		update.Apply(a)
		a.UpdatedAt = s.now().UTC()
		return nil
	})
	if err != nil {
		return users.Account{}, err
	}
	if err := s.refreshSession(ctx, account); err != nil {
		return users.Account{}, err
	}
	s.record(ctx, account.ID, audit.ActionProfileUpdated, "Profile updated")
	return account.Public(), nil
}

// AttachRealtime makes client announce this service's identity and feeds its
// AUTH_UPDATE pushes back into the session.
func (s *Service) AttachRealtime(client RealtimeClient) (detach func()) {
	s.rtMu.Lock()
	s.realtime = client
	s.rtMu.Unlock()
	client.SetIdentitySource(s)
	unsubscribe := client.Subscribe(s.HandleRealtime)
	return func() {
		unsubscribe()
		s.rtMu.Lock()
		s.realtime = nil
		s.rtMu.Unlock()
	}
}

// HandleRealtime applies AUTH_UPDATE pushes addressed to the signed-in user.
func (s *Service) HandleRealtime(msg realtime.Message) {
	update, ok := msg.(realtime.AuthUpdate)
	if !ok {
		return
	}
	session, signedIn := s.sessions.Current()
	if !signedIn || session.UserID != update.UserID {
		return
	}
	ctx := context.Background()
	switch update.Action {
	case realtime.ActionSessionExpired:
		if err := s.ExpireSession(ctx, "Session revoked by server"); err != nil {
			s.logger.Error("expire session", slog.Any("error", err))
		}
	case realtime.ActionPermissionsUpdated:
		perms := append([]string(nil), update.Permissions...)
		_, _, err := s.sessions.Update(ctx, func(sess *Session) {
			sess.Permissions = perms
		})
		if err != nil {
			s.logger.Error("update session permissions", slog.Any("error", err))
			return
		}
		s.logger.Info("session permissions updated", slog.String("user_id", update.UserID), slog.Int("count", len(perms)))
	default:
		s.logger.Warn("unknown auth update", slog.String("action", string(update.Action)))
	}
}

func (s *Service) realtimeClient() RealtimeClient {
	s.rtMu.RLock()
	defer s.rtMu.RUnlock()
	return s.realtime
}

func (s *Service) authorize(perm string) (Session, bool) {
	session, ok := s.sessions.Current()
	if !ok || !s.table.Allows(session.Role, perm) {
		return Session{}, false
	}
	return session, true
}

func (s *Service) insert(ctx context.Context, draft users.Draft) (users.Account, error) {
	if err := s.check(draft); err != nil {
		return users.Account{}, err
	}
	account := s.factory.NewAccount(draft)
	if err := s.accounts.Insert(ctx, account); err != nil {
		return users.Account{}, err
	}
	return account, nil
}

func (s *Service) refreshSession(ctx context.Context, account users.Account) error {
	session, ok := s.sessions.Current()
	if !ok || session.UserID != account.ID {
		return nil
	}
	if !account.IsActive() {
		return s.ExpireSession(ctx, "Account deactivated")
	}
	return s.sessions.Set(ctx, session.withProfile(account))
}

func (s *Service) check(v any) error {
	if err := s.validate.Struct(v); err != nil {
		var verrs validator.ValidationErrors
		if errors.As(err, &verrs) {
			fields := make([]string, 0, len(verrs))
			for _, fe := range verrs {
				fields = append(fields, fmt.Sprintf("%s (%s)", fe.Field(), fe.Tag()))
			}
			return fmt.Errorf("%w: %s", shared.ErrValidation, strings.Join(fields, ", "))
		}
		return fmt.Errorf("%w: %v", shared.ErrValidation, err)
	}
	return nil
}

func (s *Service) record(ctx context.Context, userID, action, details string) {
	if s.activity == nil {
		return
	}
	if err := s.activity.Record(ctx, userID, action, details); err != nil {
		s.logger.Warn("record activity", slog.String("action", action), slog.Any("error", err))
	}
}
