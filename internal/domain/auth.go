package domain

import "errors"

// AuthErrorCode identifies why the authentication provider rejected a request.
type AuthErrorCode string

const (
	AuthInvalidEmail    AuthErrorCode = "auth/invalid-email"
	AuthUserNotFound    AuthErrorCode = "auth/user-not-found"
	AuthWrongPassword   AuthErrorCode = "auth/wrong-password"
	AuthEmailInUse      AuthErrorCode = "auth/email-already-in-use"
	AuthWeakPassword    AuthErrorCode = "auth/weak-password"
	AuthTooManyRequests AuthErrorCode = "auth/too-many-requests"
	AuthInvalidToken    AuthErrorCode = "auth/invalid-token"
)

var authMessages = map[AuthErrorCode]string{
	AuthInvalidEmail:    "Please enter a valid email address.",
	AuthUserNotFound:    "No account found with this email.",
	AuthWrongPassword:   "Incorrect email or password.",
	AuthEmailInUse:      "This email is already registered. Please login instead.",
	AuthWeakPassword:    "Password should be at least 6 characters.",
	AuthTooManyRequests: "Too many attempts. Please try again later.",
	AuthInvalidToken:    "Your session has expired. Please sign in again.",
}

const authFallbackMessage = "Something went wrong. Please try again."

// AuthError is returned by the authentication provider.
type AuthError struct {
	Code AuthErrorCode
}

func NewAuthError(code AuthErrorCode) *AuthError {
	return &AuthError{Code: code}
}

func (e *AuthError) Error() string {
	return string(e.Code)
}

func (e *AuthError) Is(target error) bool {
	return target == ErrUnauthorized
}

// AuthMessage maps an authentication failure to the sentence shown on the login form.
func AuthMessage(err error) string {
	var authErr *AuthError
	if errors.As(err, &authErr) {
		if msg, ok := authMessages[authErr.Code]; ok {
			return msg
		}
	}
	var validation *ValidationError
	if errors.As(err, &validation) {
		return validation.Message
	}
	return authFallbackMessage
}
