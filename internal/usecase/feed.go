package usecase

import (
	"context"
	"errors"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/samber/lo"

	"hearme/internal/domain"
	"hearme/internal/ports"
)

const DefaultPulseDuration = 400 * time.Millisecond

var ErrFeedClosed = errors.New("feed is closed")

// FeedConfig controls a feed view bound to one signed-in user.
type FeedConfig struct {
	Author        domain.Identity
	PulseDuration time.Duration
}

// FeedSynchronizer keeps a locally ordered view of community posts that
// follows the store subscription and applies optimistic local mutations.
type FeedSynchronizer struct {
	users  ports.UserStore
	posts  ports.PostStore
	events ports.FeedSink
	log    zerolog.Logger
	cfg    FeedConfig
	now    func() time.Time

	mu        sync.Mutex
	confirmed []domain.Post
	pending   []pendingPost
	pulsing   map[string]bool
	sub       ports.PostSubscription
	subDone   chan struct{}
	closed    bool
}

func NewFeedSynchronizer(
	users ports.UserStore,
	posts ports.PostStore,
	events ports.FeedSink,
	logger zerolog.Logger,
	cfg FeedConfig,
) *FeedSynchronizer {
	if cfg.PulseDuration <= 0 {
		cfg.PulseDuration = DefaultPulseDuration
	}
	return &FeedSynchronizer{
		users:   users,
		posts:   posts,
		events:  events,
		log:     logger.With().Str("component", "feed").Str("uid", cfg.Author.UserID).Logger(),
		cfg:     cfg,
		now:     time.Now,
		pulsing: make(map[string]bool),
	}
}

// Subscribe opens the push subscription on posts ordered newest first.
func (f *FeedSynchronizer) Subscribe(ctx context.Context) error {
	f.mu.Lock()
	if f.closed {
		f.mu.Unlock()
		return ErrFeedClosed
	}
	if f.sub != nil {
		f.mu.Unlock()
		return nil
	}
	f.mu.Unlock()

	sub, err := f.posts.SubscribePosts(ctx)
	if err != nil {
		return domain.NewBackendError("subscribe posts", err)
	}

	done := make(chan struct{})
	f.mu.Lock()
	f.sub = sub
	f.subDone = done
	f.mu.Unlock()

	go f.listen(ctx, sub, done)
	return nil
}

func (f *FeedSynchronizer) listen(ctx context.Context, sub ports.PostSubscription, done chan struct{}) {
	defer close(done)

	for snapshot := range sub.Snapshots() {
		if snapshot.Err != nil {
			f.log.Error().Err(snapshot.Err).Msg("posts subscription push failed")
			f.events.FeedError(domain.ErrorCodeFeedLoad, "Failed to load posts")
			continue
		}
		f.applySnapshot(f.resolveAvatars(ctx, snapshot.Posts))
	}
}

// resolveAvatars looks up each author once per push. A failed lookup leaves
// that author's posts without an avatar.
func (f *FeedSynchronizer) resolveAvatars(ctx context.Context, posts []domain.Post) []domain.Post {
	authors := lo.Uniq(lo.Map(posts, func(p domain.Post, _ int) string { return p.AuthorID }))
	avatars := make(map[string]string, len(authors))
	for _, uid := range authors {
		user, err := f.users.GetUser(ctx, uid)
		if err != nil {
			if !errors.Is(err, domain.ErrNotFound) {
				f.log.Debug().Err(err).Str("author", uid).Msg("avatar lookup failed")
			}
			continue
		}
		avatars[uid] = user.PhotoData
	}

	return lo.Map(posts, func(p domain.Post, _ int) domain.Post {
		p.Avatar = avatars[p.AuthorID]
		return p
	})
}

func (f *FeedSynchronizer) applySnapshot(posts []domain.Post) {
	f.mu.Lock()
	if f.closed {
		f.mu.Unlock()
		return
	}
	f.confirmed = posts
	f.pending = reconcilePending(f.pending, posts)
	view := f.viewLocked()
	f.mu.Unlock()

	f.events.FeedChanged(view)
}

// CreatePost inserts an optimistic entry and issues the durable create. A
// failed create removes the optimistic entry again.
func (f *FeedSynchronizer) CreatePost(ctx context.Context, text string) (domain.Post, error) {
	text = strings.TrimSpace(text)
	if text == "" {
		return domain.Post{}, domain.NewValidationError("text", "Post cannot be empty")
	}

	author := f.cfg.Author
	profile, err := f.users.GetUser(ctx, author.UserID)
	if err != nil && !errors.Is(err, domain.ErrNotFound) {
		return domain.Post{}, domain.NewBackendError("load author profile", err)
	}
	name := profile.DisplayName
	if name == "" {
		name = domain.DefaultDisplayName(author.Email)
	}

	correlationID := uuid.NewString()
	post := domain.Post{
		ID:            domain.PlaceholderPrefix + correlationID,
		CorrelationID: correlationID,
		AuthorID:      author.UserID,
		AuthorName:    name,
		Text:          text,
		Avatar:        profile.PhotoData,
		Pending:       true,
	}

	f.mu.Lock()
	optimistic := newPendingPost(post, f.now(), f.confirmed)
	f.pending = append([]pendingPost{optimistic}, f.pending...)
	view := f.viewLocked()
	f.mu.Unlock()
	f.events.FeedChanged(view)

	created, err := f.posts.CreatePost(ctx, domain.NewPost{
		AuthorID:   author.UserID,
		AuthorName: name,
		Text:       text,
	})
	if err != nil {
		f.mu.Lock()
		f.pending = removePending(f.pending, correlationID)
		view = f.viewLocked()
		f.mu.Unlock()
		f.events.FeedChanged(view)
		f.log.Error().Err(err).Msg("create post failed; optimistic entry rolled back")
		return domain.Post{}, domain.NewBackendError("create post", err)
	}

	f.mu.Lock()
	for i := range f.pending {
		if f.pending[i].post.CorrelationID == correlationID {
			f.pending[i].confirmedID = created.ID
		}
	}
	before := len(f.pending)
	f.pending = reconcilePending(f.pending, f.confirmed)
	changed := len(f.pending) != before
	view = f.viewLocked()
	f.mu.Unlock()
	if changed {
		f.events.FeedChanged(view)
	}

	created.Avatar = profile.PhotoData
	return created, nil
}

// Like adds one like to a confirmed post. Placeholder posts are ignored.
func (f *FeedSynchronizer) Like(ctx context.Context, post domain.Post) error {
	if post.ID == "" || domain.IsPlaceholderID(post.ID) {
		return nil
	}

	f.setPulse(post.ID, true)
	timer := time.AfterFunc(f.cfg.PulseDuration, func() {
		f.setPulse(post.ID, false)
	})

	if err := f.incrementLikes(ctx, post.ID); err != nil {
		timer.Stop()
		f.setPulse(post.ID, false)
		f.log.Error().Err(err).Str("post", post.ID).Msg("like failed")
		return domain.NewBackendError("like post", err)
	}
	return nil
}

// incrementLikes prefers the store's atomic increment. Without one it reads
// the current count and writes count+1, so concurrent likers can lose updates.
func (f *FeedSynchronizer) incrementLikes(ctx context.Context, id string) error {
	if incrementer, ok := f.posts.(ports.LikeIncrementer); ok {
		_, err := incrementer.IncrementLikes(ctx, id)
		return err
	}

	current, err := f.posts.GetPost(ctx, id)
	if err != nil {
		return err
	}
	return f.posts.UpdatePostLikes(ctx, id, current.Likes+1)
}

func (f *FeedSynchronizer) setPulse(id string, on bool) {
	f.mu.Lock()
	if f.closed {
		f.mu.Unlock()
		return
	}
	if on {
		f.pulsing[id] = true
	} else {
		delete(f.pulsing, id)
	}
	view := f.viewLocked()
	f.mu.Unlock()

	f.events.FeedChanged(view)
}

// View returns the current ordered feed.
func (f *FeedSynchronizer) View() []domain.Post {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.viewLocked()
}

// Find returns the post with id from the current view.
func (f *FeedSynchronizer) Find(id string) (domain.Post, bool) {
	return lo.Find(f.View(), func(p domain.Post) bool { return p.ID == id })
}

// Close releases the subscription.
func (f *FeedSynchronizer) Close() error {
	f.mu.Lock()
	if f.closed {
		f.mu.Unlock()
		return nil
	}
	f.closed = true
	sub, done := f.sub, f.subDone
	f.mu.Unlock()

	if sub == nil {
		return nil
	}
	err := sub.Close()
	<-done
	return err
}

func (f *FeedSynchronizer) viewLocked() []domain.Post {
	return mergeFeedView(f.pending, f.confirmed, f.pulsing)
}
