package users

import (
	"time"

	"github.com/odyssey-erp/inventory-portal/internal/rbac"
)

// Status marks whether an account may log in.
type Status string

// Account statuses.
const (
	StatusActive   Status = "active"
	StatusInactive Status = "inactive"
)

// Account represents a registered user account.
type Account struct {
	ID          string     `json:"id"`
	Name        string     `json:"name"`
	Email       string     `json:"email"`
	Password    string     `json:"password"`
	Role        rbac.Role  `json:"role"`
	Status      Status     `json:"status"`
	Permissions []string   `json:"permissions,omitempty"`
	Phone       string     `json:"phone,omitempty"`
	Company     string     `json:"company,omitempty"`
	Address     string     `json:"address,omitempty"`
	CreatedAt   time.Time  `json:"createdAt"`
	UpdatedAt   time.Time  `json:"updatedAt"`
	LastLoginAt *time.Time `json:"lastLogin,omitempty"`
}

// IsActive reports whether the account may authenticate.
func (a Account) IsActive() bool {
	return a.Status == StatusActive
}

// Public returns a copy without the credential.
func (a Account) Public() Account {
	a.Password = ""
	a.Permissions = append([]string(nil), a.Permissions...)
	return a
}

// Draft carries the fields needed to create an account.
type Draft struct {
	Name     string    `json:"name" validate:"required,max=120"`
	Email    string    `json:"email" validate:"required,email"`
	Password string    `json:"password" validate:"required,min=6"`
	Role     rbac.Role `json:"role" validate:"omitempty,oneof=admin staff customer supplier"`
	Phone    string    `json:"phone,omitempty" validate:"omitempty,max=40"`
	Company  string    `json:"company,omitempty" validate:"omitempty,max=120"`
	Address  string    `json:"address,omitempty" validate:"omitempty,max=255"`
}

// ProfileUpdate holds self-service changes. Nil fields are left untouched.
type ProfileUpdate struct {
	Name     *string `json:"name,omitempty" validate:"omitempty,min=1,max=120"`
	Email    *string `json:"email,omitempty" validate:"omitempty,email"`
	Password *string `json:"password,omitempty" validate:"omitempty,min=6"`
	Phone    *string `json:"phone,omitempty" validate:"omitempty,max=40"`
	Company  *string `json:"company,omitempty" validate:"omitempty,max=120"`
	Address  *string `json:"address,omitempty" validate:"omitempty,max=255"`
}

// AdminUpdate extends ProfileUpdate with fields only administrators may change.
// Role is deliberately absent: roles are immutable once assigned.
type AdminUpdate struct {
	ProfileUpdate
	Status      *Status   `json:"status,omitempty" validate:"omitempty,oneof=active inactive"`
	Permissions *[]string `json:"permissions,omitempty"`
}

// Apply merges u into a.
func (u ProfileUpdate) Apply(a *Account) {
	if u.Name != nil {
		a.Name = *u.Name
	}
	if u.Email != nil {
		a.Email = *u.Email
	}
	if u.Password != nil {
		a.Password = *u.Password
	}
	if u.Phone != nil {
		a.Phone = *u.Phone
	}
	if u.Company != nil {
		a.Company = *u.Company
	}
	if u.Address != nil {
		a.Address = *u.Address
	}
}

// Apply merges u into a.
func (u AdminUpdate) Apply(a *Account) {
	u.ProfileUpdate.Apply(a)
	if u.Status != nil {
		a.Status = *u.Status
	}
	if u.Permissions != nil {
		a.Permissions = append([]string(nil), (*u.Permissions)...)
	}
}
