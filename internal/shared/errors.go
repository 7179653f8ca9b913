package shared

import "errors"

var (
	// ErrNotFound indicates resource not found.
	ErrNotFound = errors.New("not found")
	// ErrInvalidCredentials indicates login failure.
	ErrInvalidCredentials = errors.New("invalid credentials")
	// ErrRoleMismatch occurs when the account role differs from the role selected at login.
	ErrRoleMismatch = errors.New("role mismatch")
	// ErrEmailInUse occurs when registering an email that already belongs to an account.
	ErrEmailInUse = errors.New("email already registered")
	// ErrUserNotFound indicates the target account does not exist.
	ErrUserNotFound = errors.New("user not found")
	// ErrUnauthorized indicates the current session lacks the governing permission.
	ErrUnauthorized = errors.New("unauthorized")
	// ErrSelfDeleteForbidden occurs when a user tries to delete their own account.
	ErrSelfDeleteForbidden = errors.New("cannot delete own account")
	// ErrValidation indicates a rejected account draft.
	ErrValidation = errors.New("validation failed")
)

// UserSafeMessage returns a message suitable for rendering to end users.
func UserSafeMessage(err error) string {
	switch {
	case err == nil:
		return ""
	case errors.Is(err, ErrInvalidCredentials):
		return "Invalid email or password"
	case errors.Is(err, ErrRoleMismatch):
		return "This account does not belong to the selected role"
	case errors.Is(err, ErrEmailInUse):
		return "Email is already registered"
	case errors.Is(err, ErrUserNotFound):
		return "User not found"
	case errors.Is(err, ErrUnauthorized):
		return "You do not have permission to perform this action"
	case errors.Is(err, ErrSelfDeleteForbidden):
		return "You cannot delete your own account"
	case errors.Is(err, ErrValidation):
		return err.Error()
	default:
		return "Something went wrong, please try again"
	}
}
