package identity

import "errors"

// Error kinds surfaced by the identity core. Lower layers wrap these with
// fmt.Errorf("...: %w") so callers classify with errors.Is.
var (
	ErrValidation            = errors.New("validation failed")
	ErrEmailInUse            = errors.New("email is already registered")
	ErrNotFound              = errors.New("member not found")
	ErrInvalidCredential     = errors.New("invalid credential")
	ErrNoCredentialOnFile    = errors.New("no password credential on file")
	ErrFederatedSignInFailed = errors.New("federated sign-in failed")
	ErrStorageUnavailable    = errors.New("storage unavailable")
	ErrAlreadyExists         = errors.New("member id already exists")
	ErrDataIntegrity         = errors.New("duplicate member records for email")
	ErrAuthInProgress        = errors.New("another sign-in attempt is in progress")
	ErrAccountLocked         = errors.New("account is locked due to too many failed attempts")
	ErrNotAuthenticated      = errors.New("not signed in")
)

// Generic sign-in failure text. NotFound, InvalidCredential and
// NoCredentialOnFile all render this so a caller cannot tell which emails
// are registered.
const MsgInvalidSignIn = "Invalid email or password."

// IsCredentialFailure reports whether err is one of the sign-in failures
// that share MsgInvalidSignIn.
func IsCredentialFailure(err error) bool {
	return errors.Is(err, ErrNotFound) ||
		errors.Is(err, ErrInvalidCredential) ||
		errors.Is(err, ErrNoCredentialOnFile)
}

// UserMessage maps an error to the text shown next to a form.
// Validation errors carry their own detail after the kind prefix.
func UserMessage(err error) string {
	switch {
	case err == nil:
		return ""
	case errors.Is(err, ErrValidation):
		return validationDetail(err)
	case errors.Is(err, ErrEmailInUse):
		return "An account with this email already exists. Try signing in instead."
	case IsCredentialFailure(err):
		return MsgInvalidSignIn
	case errors.Is(err, ErrAccountLocked):
		return "Too many failed attempts. Try again in a few minutes."
	case errors.Is(err, ErrFederatedSignInFailed):
		return "Sign-in with your provider did not complete. Please try again."
	case errors.Is(err, ErrAuthInProgress):
		return "A sign-in is already in progress."
	case errors.Is(err, ErrNotAuthenticated):
		return "Please sign in to continue."
	default:
		return "Something went wrong. Please try again."
	}
}

// validationDetail returns the innermost message of a validation error,
// e.g. "full name is required".
func validationDetail(err error) string {
	var detail *ValidationError
	if errors.As(err, &detail) {
		return detail.Msg
	}
	return "Please check the form and try again."
}

// ValidationError describes one rejected input field.
type ValidationError struct {
	Field string
	Msg   string
}

// Error implements error.
func (e *ValidationError) Error() string {
	return ErrValidation.Error() + ": " + e.Msg
}

// Unwrap lets errors.Is(err, ErrValidation) match.
func (e *ValidationError) Unwrap() error {
	return ErrValidation
}

// Invalid builds a ValidationError for field.
func Invalid(field, msg string) error {
	return &ValidationError{Field: field, Msg: msg}
}
