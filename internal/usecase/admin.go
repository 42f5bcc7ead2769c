package usecase

import (
	"context"
	"sort"
	"time"

	"github.com/rs/zerolog"
	"github.com/samber/lo"

	"hearme/internal/domain"
	"hearme/internal/ports"
)

type Admin struct {
	users ports.UserStore
	posts ports.PostStore
	log   zerolog.Logger
	now   func() time.Time
}

func NewAdmin(users ports.UserStore, posts ports.PostStore, logger zerolog.Logger) *Admin {
	return &Admin{
		users: users,
		posts: posts,
		log:   logger.With().Str("component", "admin").Logger(),
		now:   time.Now,
	}
}

func requireAdmin(identity domain.Identity) error {
	if identity.Role != domain.RoleAdmin {
		return domain.ErrForbidden
	}
	return nil
}

func (a *Admin) Overview(ctx context.Context, caller domain.Identity) (domain.AdminOverview, error) {
	if err := requireAdmin(caller); err != nil {
		return domain.AdminOverview{}, err
	}

	users, err := a.users.ListUsers(ctx)
	if err != nil {
		return domain.AdminOverview{}, domain.NewBackendError("list users", err)
	}
	posts, err := a.posts.ListPosts(ctx)
	if err != nil {
		return domain.AdminOverview{}, domain.NewBackendError("list posts", err)
	}
	sort.SliceStable(posts, func(i, j int) bool {
		return posts[i].CreatedAt.After(posts[j].CreatedAt)
	})

	now := a.now()
	midnight := time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, now.Location())
	today := lo.CountBy(posts, func(p domain.Post) bool {
		return !p.CreatedAt.Before(midnight)
	})

	return domain.AdminOverview{
		Users: users,
		Posts: posts,
		Stats: domain.AdminStats{
			TotalUsers: len(users),
			TotalPosts: len(posts),
			TodayPosts: today,
		},
	}, nil
}

func (a *Admin) DeletePost(ctx context.Context, caller domain.Identity, id string) error {
	if err := requireAdmin(caller); err != nil {
		return err
	}
	if err := a.posts.DeletePost(ctx, id); err != nil {
		return domain.NewBackendError("delete post", err)
	}
	a.log.Info().Str("admin", caller.UserID).Str("post", id).Msg("post deleted")
	return nil
}

func (a *Admin) ChangeRole(ctx context.Context, caller domain.Identity, uid string, role domain.Role) error {
	if err := requireAdmin(caller); err != nil {
		return err
	}
	if !domain.ValidRole(role) {
		return domain.NewValidationError("role", "Role must be admin, student or user")
	}
	if err := a.users.UpdateUser(ctx, uid, domain.UserPatch{Role: &role}); err != nil {
		return domain.NewBackendError("change role", err)
	}
	a.log.Info().Str("admin", caller.UserID).Str("uid", uid).Str("role", string(role)).Msg("role changed")
	return nil
}
