package auth

import (
	"context"
	"crypto/rand"
	"errors"
	"fmt"
	"regexp"
	"strings"
	"sync"
	"time"

	"github.com/golang-jwt/jwt"
	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"golang.org/x/crypto/bcrypt"

	"hearme/internal/domain"
	"hearme/internal/ports"
)

const (
	minPasswordLength = 6
	tokenIssuer       = "hearme"

	ProviderPassword = "password"
	ProviderGoogle   = "google"
)

var emailPattern = regexp.MustCompile(`^[^@\s]+@[^@\s]+\.[^@\s]+$`)

// Config controls token signing and sign-in throttling.
type Config struct {
	Secret        []byte
	TokenTTL      time.Duration
	MaxAttempts   int
	AttemptWindow time.Duration
	BcryptCost    int
}

// Provider is the email/password authentication provider. Tokens are
// HS256 JWTs; sign-out revokes a token until it would have expired.
type Provider struct {
	creds   ports.CredentialStore
	secret  []byte
	ttl     time.Duration
	cost    int
	limiter *attemptLimiter
	log     zerolog.Logger
	now     func() time.Time

	mu      sync.Mutex
	revoked map[string]time.Time
}

type claims struct {
	Email string      `json:"email"`
	Role  domain.Role `json:"role,omitempty"`
	jwt.StandardClaims
}

func NewProvider(creds ports.CredentialStore, cfg Config, logger zerolog.Logger) (*Provider, error) {
	logger = logger.With().Str("component", "auth").Logger()
	secret := cfg.Secret
	if len(secret) == 0 {
		secret = make([]byte, 32)
		if _, err := rand.Read(secret); err != nil {
			return nil, fmt.Errorf("generate signing secret: %w", err)
		}
		logger.Warn().Msg("no JWT secret configured; sessions will not survive a restart")
	}
	if cfg.TokenTTL <= 0 {
		cfg.TokenTTL = 7 * 24 * time.Hour
	}
	if cfg.BcryptCost == 0 {
		cfg.BcryptCost = bcrypt.DefaultCost
	}

	p := &Provider{
		creds:   creds,
		secret:  secret,
		ttl:     cfg.TokenTTL,
		cost:    cfg.BcryptCost,
		log:     logger,
		now:     time.Now,
		revoked: make(map[string]time.Time),
	}
	p.limiter = newAttemptLimiter(cfg.MaxAttempts, cfg.AttemptWindow, func() time.Time { return p.now() })
	return p, nil
}

func normalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}

func (p *Provider) SignUp(ctx context.Context, email, password string) (domain.Identity, error) {
	email = normalizeEmail(email)
	if !emailPattern.MatchString(email) {
		return domain.Identity{}, domain.NewAuthError(domain.AuthInvalidEmail)
	}
	if len(password) < minPasswordLength {
		return domain.Identity{}, domain.NewAuthError(domain.AuthWeakPassword)
	}

	_, err := p.creds.GetCredentialByEmail(ctx, email)
	switch {
	case err == nil:
		return domain.Identity{}, domain.NewAuthError(domain.AuthEmailInUse)
	case !errors.Is(err, domain.ErrNotFound):
		return domain.Identity{}, domain.NewBackendError("lookup credential", err)
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(password), p.cost)
	if err != nil {
		return domain.Identity{}, fmt.Errorf("hash password: %w", err)
	}
	credential := domain.Credential{
		UserID:       uuid.NewString(),
		Email:        email,
		PasswordHash: string(hash),
		Provider:     ProviderPassword,
		CreatedAt:    p.now(),
	}
	if err := p.creds.CreateCredential(ctx, credential); err != nil {
		return domain.Identity{}, domain.NewBackendError("create credential", err)
	}
	p.log.Debug().Str("uid", credential.UserID).Msg("credential created")
	return domain.Identity{UserID: credential.UserID, Email: email}, nil
}

func (p *Provider) SignIn(ctx context.Context, email, password string) (domain.Identity, error) {
	email = normalizeEmail(email)
	if !emailPattern.MatchString(email) {
		return domain.Identity{}, domain.NewAuthError(domain.AuthInvalidEmail)
	}
	if !p.limiter.Allow(email) {
		return domain.Identity{}, domain.NewAuthError(domain.AuthTooManyRequests)
	}

	credential, err := p.creds.GetCredentialByEmail(ctx, email)
	if err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			p.limiter.Fail(email)
			return domain.Identity{}, domain.NewAuthError(domain.AuthUserNotFound)
		}
		return domain.Identity{}, domain.NewBackendError("lookup credential", err)
	}
	if credential.PasswordHash == "" ||
		bcrypt.CompareHashAndPassword([]byte(credential.PasswordHash), []byte(password)) != nil {
		p.limiter.Fail(email)
		return domain.Identity{}, domain.NewAuthError(domain.AuthWrongPassword)
	}

	p.limiter.Reset(email)
	return domain.Identity{UserID: credential.UserID, Email: credential.Email}, nil
}

// SignInFederated resolves an externally verified email to an identity,
// registering a credential on first use.
func (p *Provider) SignInFederated(ctx context.Context, email, provider string) (domain.Identity, error) {
	email = normalizeEmail(email)
	if !emailPattern.MatchString(email) {
		return domain.Identity{}, domain.NewAuthError(domain.AuthInvalidEmail)
	}

	credential, err := p.creds.GetCredentialByEmail(ctx, email)
	if err == nil {
		return domain.Identity{UserID: credential.UserID, Email: credential.Email}, nil
	}
	if !errors.Is(err, domain.ErrNotFound) {
		return domain.Identity{}, domain.NewBackendError("lookup credential", err)
	}

	credential = domain.Credential{
		UserID:    uuid.NewString(),
		Email:     email,
		Provider:  provider,
		CreatedAt: p.now(),
	}
	if err := p.creds.CreateCredential(ctx, credential); err != nil {
		return domain.Identity{}, domain.NewBackendError("create credential", err)
	}
	return domain.Identity{UserID: credential.UserID, Email: email}, nil
}

func (p *Provider) IssueToken(identity domain.Identity) (string, error) {
	now := p.now()
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims{
		Email: identity.Email,
		Role:  identity.Role,
		StandardClaims: jwt.StandardClaims{
			Id:        uuid.NewString(),
			Subject:   identity.UserID,
			Issuer:    tokenIssuer,
			IssuedAt:  now.Unix(),
			ExpiresAt: now.Add(p.ttl).Unix(),
		},
	})
	return token.SignedString(p.secret)
}

func (p *Provider) Verify(_ context.Context, token string) (domain.Identity, error) {
	c, err := p.parse(token)
	if err != nil {
		return domain.Identity{}, domain.NewAuthError(domain.AuthInvalidToken)
	}
	if !c.validAt(p.now()) {
		return domain.Identity{}, domain.NewAuthError(domain.AuthInvalidToken)
	}
	if p.isRevoked(c.Id) {
		return domain.Identity{}, domain.NewAuthError(domain.AuthInvalidToken)
	}
	return domain.Identity{UserID: c.Subject, Email: c.Email, Role: c.Role}, nil
}

// SignOut revokes token. Unknown or malformed tokens are ignored.
func (p *Provider) SignOut(_ context.Context, token string) error {
	c, err := p.parse(token)
	if err != nil || c.Id == "" {
		return nil
	}

	p.mu.Lock()
	defer p.mu.Unlock()
	p.revoked[c.Id] = time.Unix(c.ExpiresAt, 0)
	p.pruneLocked()
	return nil
}

// parse checks the signature only; expiry is checked against p.now by the caller.
func (p *Provider) parse(token string) (*claims, error) {
	c := &claims{}
	parser := &jwt.Parser{SkipClaimsValidation: true}
	_, err := parser.ParseWithClaims(token, c, func(t *jwt.Token) (interface{}, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method %v", t.Header["alg"])
		}
		return p.secret, nil
	})
	if err != nil {
		return nil, err
	}
	if c.Issuer != tokenIssuer || c.Subject == "" {
		return nil, errors.New("token is not a session token")
	}
	return c, nil
}

func (c *claims) validAt(now time.Time) bool {
	return c.VerifyExpiresAt(now.Unix(), true)
}

func (p *Provider) isRevoked(id string) bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	_, ok := p.revoked[id]
	return ok
}

func (p *Provider) pruneLocked() {
	now := p.now()
	for id, expires := range p.revoked {
		if now.After(expires) {
			delete(p.revoked, id)
		}
	}
}
