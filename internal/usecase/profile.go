package usecase

import (
	"context"
	"encoding/base64"
	"errors"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"hearme/internal/domain"
	"hearme/internal/ports"
)

const MaxAvatarBytes = 1 << 20

type Profiles struct {
	users ports.UserStore
	posts ports.PostStore
	log   zerolog.Logger
	now   func() time.Time
}

func NewProfiles(users ports.UserStore, posts ports.PostStore, logger zerolog.Logger) *Profiles {
	return &Profiles{
		users: users,
		posts: posts,
		log:   logger.With().Str("component", "profile").Logger(),
		now:   time.Now,
	}
}

// Load returns the caller's user document, creating it on first access.
func (p *Profiles) Load(ctx context.Context, identity domain.Identity) (domain.User, error) {
	user, err := p.users.GetUser(ctx, identity.UserID)
	if err == nil {
		return user, nil
	}
	if !errors.Is(err, domain.ErrNotFound) {
		return domain.User{}, domain.NewBackendError("load profile", err)
	}

	user = domain.User{
		ID:          identity.UserID,
		Email:       identity.Email,
		DisplayName: domain.DefaultDisplayName(identity.Email),
		Role:        domain.RoleUser,
		CreatedAt:   p.now(),
	}
	if err := p.users.PutUser(ctx, user); err != nil {
		return domain.User{}, domain.NewBackendError("create profile", err)
	}
	return user, nil
}

// Rename updates the display name and rewrites it on every post by uid.
func (p *Profiles) Rename(ctx context.Context, uid, name string) (int, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return 0, domain.NewValidationError("displayName", "Name cannot be empty")
	}

	if err := p.users.UpdateUser(ctx, uid, domain.UserPatch{DisplayName: &name}); err != nil {
		return 0, domain.NewBackendError("update display name", err)
	}
	updated, err := p.posts.RenameAuthor(ctx, uid, name)
	if err != nil {
		return updated, domain.NewBackendError("rename posts", err)
	}
	p.log.Info().Str("uid", uid).Int("posts", updated).Msg("display name changed")
	return updated, nil
}

// SetAvatar stores an image as a data URL on the user document.
func (p *Profiles) SetAvatar(ctx context.Context, uid, contentType string, data []byte) (string, error) {
	if !strings.HasPrefix(contentType, "image/") {
		return "", domain.NewValidationError("avatar", "Please choose an image file")
	}
	if len(data) == 0 {
		return "", domain.NewValidationError("avatar", "Image is empty")
	}
	if len(data) > MaxAvatarBytes {
		return "", domain.NewValidationError("avatar", "Image must be 1 MB or smaller")
	}

	url := "data:" + contentType + ";base64," + base64.StdEncoding.EncodeToString(data)
	if err := p.users.UpdateUser(ctx, uid, domain.UserPatch{PhotoData: &url}); err != nil {
		return "", domain.NewBackendError("update avatar", err)
	}
	return url, nil
}
