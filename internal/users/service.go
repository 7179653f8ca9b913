package users

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/odyssey-erp/inventory-portal/internal/rbac"
)

// RepositoryPort defines data access methods for accounts.
type RepositoryPort interface {
	ListUsers(ctx context.Context) ([]Account, error)
	FindByEmail(ctx context.Context, email string) (Account, error)
	FindByID(ctx context.Context, id string) (Account, error)
	Insert(ctx context.Context, account Account) error
	Update(ctx context.Context, id string, fn func(*Account) error) (Account, error)
	Delete(ctx context.Context, id string) error
}

var _ RepositoryPort = (*Repository)(nil)

// Service handles account directory chores such as seeding defaults.
type Service struct {
	repo   RepositoryPort
	table  *rbac.Table
	logger *slog.Logger
	now    func() time.Time
}

// NewService builds Service instance.
func NewService(repo RepositoryPort, table *rbac.Table, logger *slog.Logger) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{repo: repo, table: table, logger: logger, now: time.Now}
}

// ListUsers returns all users.
func (s *Service) ListUsers(ctx context.Context) ([]Account, error) {
	return s.repo.ListUsers(ctx)
}

// DefaultAccounts returns the demo accounts seeded into an empty store,
// one per role: <role>@inventory.com with password <role>123.
func DefaultAccounts() []Draft {
	return []Draft{
		{Name: "System Administrator", Email: "admin@inventory.com", Password: "admin123", Role: rbac.RoleAdmin},
		{Name: "Warehouse Staff", Email: "staff@inventory.com", Password: "staff123", Role: rbac.RoleStaff},
		{Name: "Demo Customer", Email: "customer@inventory.com", Password: "customer123", Role: rbac.RoleCustomer, Company: "Acme Retail"},
		{Name: "Demo Supplier", Email: "supplier@inventory.com", Password: "supplier123", Role: rbac.RoleSupplier, Company: "Northwind Supply"},
	}
}

// SeedDefaults inserts DefaultAccounts when no account exists yet.
// It returns the number of accounts created.
func (s *Service) SeedDefaults(ctx context.Context) (int, error) {
	existing, err := s.repo.ListUsers(ctx)
	if err != nil {
		return 0, err
	}
	if len(existing) > 0 {
		return 0, nil
	}
	created := 0
	for _, draft := range DefaultAccounts() {
		account := s.NewAccount(draft)
		if err := s.repo.Insert(ctx, account); err != nil {
			return created, fmt.Errorf("users: seed %s: %w", draft.Email, err)
		}
		created++
	}
	s.logger.Info("seeded default accounts", slog.Int("count", created))
	return created, nil
}

// NewAccount materialises an active account from draft, assigning a fresh id
// and the role's default permissions. Missing roles default to customer.
func (s *Service) NewAccount(draft Draft) Account {
	role := draft.Role
	if role == "" {
		role = rbac.RoleCustomer
	}
	now := s.now().UTC()
	return Account{
		ID:          uuid.NewString(),
		Name:        draft.Name,
		Email:       draft.Email,
		Password:    draft.Password,
		Role:        role,
		Status:      StatusActive,
		Permissions: s.table.Permissions(role),
		Phone:       draft.Phone,
		Company:     draft.Company,
		Address:     draft.Address,
		CreatedAt:   now,
		UpdatedAt:   now,
	}
}
