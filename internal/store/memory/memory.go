// Package memory is an in-process document store. Nothing survives a restart.
package memory

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/samber/lo"

	"hearme/internal/domain"
	"hearme/internal/ports"
	"hearme/internal/store"
)

var _ ports.DocumentStore = (*Store)(nil)

type storedPost struct {
	post domain.Post
	seq  uint64
}

type Store struct {
	hub *store.Hub
	now func() time.Time

	mu          sync.RWMutex
	seq         uint64
	users       map[string]domain.User
	posts       map[string]storedPost
	transcripts []domain.Transcript
	credentials map[string]domain.Credential
}

func New(logger zerolog.Logger) *Store {
	s := &Store{
		now:         time.Now,
		users:       make(map[string]domain.User),
		posts:       make(map[string]storedPost),
		credentials: make(map[string]domain.Credential),
	}
	s.hub = store.NewHub(s.ListPosts, logger)
	return s
}

func (s *Store) Close() error {
	s.hub.Close()
	return nil
}

func (s *Store) GetUser(_ context.Context, uid string) (domain.User, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	user, ok := s.users[uid]
	if !ok {
		return domain.User{}, domain.ErrNotFound
	}
	return user, nil
}

func (s *Store) PutUser(_ context.Context, user domain.User) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.users[user.ID] = user
	return nil
}

func (s *Store) UpdateUser(_ context.Context, uid string, patch domain.UserPatch) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	user, ok := s.users[uid]
	if !ok {
		return domain.ErrNotFound
	}
	if patch.DisplayName != nil {
		user.DisplayName = *patch.DisplayName
	}
	if patch.Role != nil {
		user.Role = *patch.Role
	}
	if patch.PhotoData != nil {
		user.PhotoData = *patch.PhotoData
	}
	s.users[uid] = user
	return nil
}

func (s *Store) ListUsers(_ context.Context) ([]domain.User, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	users := lo.Values(s.users)
	sort.Slice(users, func(i, j int) bool { return users[i].CreatedAt.Before(users[j].CreatedAt) })
	return users, nil
}

func (s *Store) CreatePost(_ context.Context, input domain.NewPost) (domain.Post, error) {
	s.mu.Lock()
	s.seq++
	post := domain.Post{
		ID:         uuid.NewString(),
		AuthorID:   input.AuthorID,
		AuthorName: input.AuthorName,
		Text:       input.Text,
		CreatedAt:  s.now().UTC(),
	}
	s.posts[post.ID] = storedPost{post: post, seq: s.seq}
	s.mu.Unlock()

	s.hub.Notify()
	return post, nil
}

func (s *Store) GetPost(_ context.Context, id string) (domain.Post, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	stored, ok := s.posts[id]
	if !ok {
		return domain.Post{}, domain.ErrNotFound
	}
	return stored.post, nil
}

// ListPosts returns posts newest first.
func (s *Store) ListPosts(_ context.Context) ([]domain.Post, error) {
	s.mu.RLock()
	stored := lo.Values(s.posts)
	s.mu.RUnlock()

	sort.Slice(stored, func(i, j int) bool {
		a, b := stored[i], stored[j]
		if !a.post.CreatedAt.Equal(b.post.CreatedAt) {
			return a.post.CreatedAt.After(b.post.CreatedAt)
		}
		return a.seq > b.seq
	})
	return lo.Map(stored, func(p storedPost, _ int) domain.Post { return p.post }), nil
}

func (s *Store) UpdatePostLikes(_ context.Context, id string, likes int) error {
	if err := s.mutatePost(id, func(p *domain.Post) { p.Likes = likes }); err != nil {
		return err
	}
	s.hub.Notify()
	return nil
}

func (s *Store) IncrementLikes(_ context.Context, id string) (int, error) {
	var likes int
	if err := s.mutatePost(id, func(p *domain.Post) {
		p.Likes++
		likes = p.Likes
	}); err != nil {
		return 0, err
	}
	s.hub.Notify()
	return likes, nil
}

func (s *Store) mutatePost(id string, fn func(*domain.Post)) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	stored, ok := s.posts[id]
	if !ok {
		return domain.ErrNotFound
	}
	fn(&stored.post)
	s.posts[id] = stored
	return nil
}

func (s *Store) RenameAuthor(_ context.Context, uid string, name string) (int, error) {
	s.mu.Lock()
	count := 0
	for id, stored := range s.posts {
		if stored.post.AuthorID != uid {
			continue
		}
		stored.post.AuthorName = name
		s.posts[id] = stored
		count++
	}
	s.mu.Unlock()

	if count > 0 {
		s.hub.Notify()
	}
	return count, nil
}

func (s *Store) DeletePost(_ context.Context, id string) error {
	s.mu.Lock()
	_, ok := s.posts[id]
	delete(s.posts, id)
	s.mu.Unlock()

	if !ok {
		return domain.ErrNotFound
	}
	s.hub.Notify()
	return nil
}

func (s *Store) SubscribePosts(ctx context.Context) (ports.PostSubscription, error) {
	return s.hub.Subscribe(ctx)
}

func (s *Store) SaveTranscript(_ context.Context, transcript domain.Transcript) (domain.Transcript, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if transcript.ID == "" {
		transcript.ID = uuid.NewString()
	}
	if transcript.CreatedAt.IsZero() {
		transcript.CreatedAt = s.now().UTC()
	}
	s.transcripts = append(s.transcripts, transcript)
	return transcript, nil
}

// ListTranscripts returns the owner's transcripts newest first.
func (s *Store) ListTranscripts(_ context.Context, ownerID string) ([]domain.Transcript, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	owned := lo.Filter(s.transcripts, func(t domain.Transcript, _ int) bool { return t.OwnerID == ownerID })
	return lo.Reverse(owned), nil
}

func (s *Store) CreateCredential(_ context.Context, credential domain.Credential) error {
	key := strings.ToLower(credential.Email)
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, exists := s.credentials[key]; exists {
		return fmt.Errorf("credential for %q already exists", credential.Email)
	}
	s.credentials[key] = credential
	return nil
}

func (s *Store) GetCredentialByEmail(_ context.Context, email string) (domain.Credential, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	credential, ok := s.credentials[strings.ToLower(email)]
	if !ok {
		return domain.Credential{}, domain.ErrNotFound
	}
	return credential, nil
}
