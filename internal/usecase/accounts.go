package usecase

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"hearme/internal/domain"
	"hearme/internal/ports"
)

// Session is a signed-in identity plus its bearer token.
type Session struct {
	Identity domain.Identity `json:"identity"`
	Token    string          `json:"token"`
}

// Accounts handles sign-up, sign-in and the auth-state lookup.
type Accounts struct {
	auth  ports.Authenticator
	users ports.UserStore
	log   zerolog.Logger
	now   func() time.Time
}

func NewAccounts(auth ports.Authenticator, users ports.UserStore, logger zerolog.Logger) *Accounts {
	return &Accounts{
		auth:  auth,
		users: users,
		log:   logger.With().Str("component", "accounts").Logger(),
		now:   time.Now,
	}
}

func (a *Accounts) SignUp(ctx context.Context, email, password, confirm string) (Session, error) {
	email = strings.TrimSpace(email)
	if password != confirm {
		return Session{}, domain.NewValidationError("confirm", "Passwords do not match.")
	}

	identity, err := a.auth.SignUp(ctx, email, password)
	if err != nil {
		return Session{}, err
	}

	user := domain.User{
		ID:          identity.UserID,
		Email:       identity.Email,
		DisplayName: domain.DefaultDisplayName(identity.Email),
		Role:        domain.RoleStudent,
		CreatedAt:   a.now(),
	}
	if err := a.users.PutUser(ctx, user); err != nil {
		return Session{}, domain.NewBackendError("create user document", err)
	}
	identity.Role = user.Role
	a.log.Info().Str("uid", identity.UserID).Msg("account created")

	return a.issue(identity)
}

func (a *Accounts) SignIn(ctx context.Context, email, password string) (Session, error) {
	identity, err := a.auth.SignIn(ctx, strings.TrimSpace(email), password)
	if err != nil {
		return Session{}, err
	}
	identity.Role = a.roleOf(ctx, identity.UserID)
	return a.issue(identity)
}

// SignInExternal completes a federated sign-in. The first login creates the
// user document.
func (a *Accounts) SignInExternal(ctx context.Context, identity domain.Identity, displayName string) (Session, error) {
	user, err := a.users.GetUser(ctx, identity.UserID)
	switch {
	case errors.Is(err, domain.ErrNotFound):
		if displayName == "" {
			displayName = domain.DefaultDisplayName(identity.Email)
		}
		user = domain.User{
			ID:          identity.UserID,
			Email:       identity.Email,
			DisplayName: displayName,
			Role:        domain.RoleStudent,
			CreatedAt:   a.now(),
		}
		if err := a.users.PutUser(ctx, user); err != nil {
			return Session{}, domain.NewBackendError("create user document", err)
		}
	case err != nil:
		return Session{}, domain.NewBackendError("load user document", err)
	}

	identity.Role = user.Role
	if identity.Role == "" {
		identity.Role = domain.RoleUser
	}
	return a.issue(identity)
}

func (a *Accounts) SignOut(ctx context.Context, token string) error {
	return a.auth.SignOut(ctx, token)
}

// Current resolves a token to the signed-in identity with its current role.
func (a *Accounts) Current(ctx context.Context, token string) (domain.Identity, error) {
	identity, err := a.auth.Verify(ctx, token)
	if err != nil {
		return domain.Identity{}, err
	}
	identity.Role = a.roleOf(ctx, identity.UserID)
	return identity, nil
}

// roleOf defaults to user when the document is missing or unreadable.
func (a *Accounts) roleOf(ctx context.Context, uid string) domain.Role {
	user, err := a.users.GetUser(ctx, uid)
	if err != nil {
		if !errors.Is(err, domain.ErrNotFound) {
			a.log.Warn().Err(err).Str("uid", uid).Msg("role lookup failed")
		}
		return domain.RoleUser
	}
	if !domain.ValidRole(user.Role) {
		return domain.RoleUser
	}
	return user.Role
}

func (a *Accounts) issue(identity domain.Identity) (Session, error) {
	token, err := a.auth.IssueToken(identity)
	if err != nil {
		return Session{}, domain.NewBackendError("issue token", err)
	}
	return Session{Identity: identity, Token: token}, nil
}
