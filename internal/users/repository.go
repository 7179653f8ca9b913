package users

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/goccy/go-json"

	"github.com/odyssey-erp/inventory-portal/internal/platform/kv"
	"github.com/odyssey-erp/inventory-portal/internal/shared"
)

// Repository persists the ordered account list under a single key.
type Repository struct {
	store kv.Store
	mu    sync.Mutex
}

// NewRepository constructs a repository.
func NewRepository(store kv.Store) *Repository {
	return &Repository{store: store}
}

// ListUsers returns all accounts in registration order.
func (r *Repository) ListUsers(ctx context.Context) ([]Account, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.load(ctx)
}

// FindByEmail returns the account with exactly matching email.
func (r *Repository) FindByEmail(ctx context.Context, email string) (Account, error) {
	accounts, err := r.ListUsers(ctx)
	if err != nil {
		return Account{}, err
	}
	for _, a := range accounts {
		if a.Email == email {
			return a, nil
		}
	}
	return Account{}, shared.ErrUserNotFound
}

// FindByID returns the account with id.
func (r *Repository) FindByID(ctx context.Context, id string) (Account, error) {
	accounts, err := r.ListUsers(ctx)
	if err != nil {
		return Account{}, err
	}
	for _, a := range accounts {
		if a.ID == id {
			return a, nil
		}
	}
	return Account{}, shared.ErrUserNotFound
}

// Insert appends account, rejecting duplicate emails regardless of status.
func (r *Repository) Insert(ctx context.Context, account Account) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	accounts, err := r.load(ctx)
	if err != nil {
		return err
	}
	for _, a := range accounts {
		if a.Email == account.Email {
			return shared.ErrEmailInUse
		}
		if a.ID == account.ID {
			return fmt.Errorf("users: duplicate id %s", account.ID)
		}
	}
	return r.save(ctx, append(accounts, account))
}

// Update applies fn to the account with id and persists the result.
// The email must stay unique across accounts.
func (r *Repository) Update(ctx context.Context, id string, fn func(*Account) error) (Account, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	accounts, err := r.load(ctx)
	if err != nil {
		return Account{}, err
	}
	idx := -1
	for i := range accounts {
		if accounts[i].ID == id {
			idx = i
			break
		}
	}
	if idx < 0 {
		return Account{}, shared.ErrUserNotFound
	}
	updated := accounts[idx]
	if err := fn(&updated); err != nil {
		return Account{}, err
	}
	updated.ID = id
	for i, a := range accounts {
		if i != idx && a.Email == updated.Email {
			return Account{}, shared.ErrEmailInUse
		}
	}
	accounts[idx] = updated
	if err := r.save(ctx, accounts); err != nil {
		return Account{}, err
	}
	return updated, nil
}

// Delete removes the account with id.
func (r *Repository) Delete(ctx context.Context, id string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	accounts, err := r.load(ctx)
	if err != nil {
		return err
	}
	kept := accounts[:0]
	found := false
	for _, a := range accounts {
		if a.ID == id {
			found = true
			continue
		}
		kept = append(kept, a)
	}
	if !found {
		return shared.ErrUserNotFound
	}
	return r.save(ctx, kept)
}

func (r *Repository) load(ctx context.Context) ([]Account, error) {
	data, err := r.store.Get(ctx, kv.KeyRegisteredUsers)
	if err != nil {
		if errors.Is(err, kv.ErrNotFound) {
			return []Account{}, nil
		}
		return nil, err
	}
	var accounts []Account
	if err := json.Unmarshal(data, &accounts); err != nil {
		return nil, fmt.Errorf("users: decode %s: %w", kv.KeyRegisteredUsers, err)
	}
	return accounts, nil
}

func (r *Repository) save(ctx context.Context, accounts []Account) error {
	data, err := json.Marshal(accounts)
	if err != nil {
		return fmt.Errorf("users: encode accounts: %w", err)
	}
	return r.store.Set(ctx, kv.KeyRegisteredUsers, data)
}
