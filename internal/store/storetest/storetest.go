// Package storetest is the behavioural contract every document store backend
// runs in its own tests.
package storetest

import (
	"context"
	"errors"
	"testing"
	"time"

	"hearme/internal/domain"
	"hearme/internal/ports"
)

// Opener returns an empty store. The suite closes it.
type Opener func(t *testing.T) ports.DocumentStore

// Run exercises every collection of the store returned by open.
func Run(t *testing.T, open Opener) {
	t.Run("users", func(t *testing.T) { testUsers(t, open(t)) })
	t.Run("posts", func(t *testing.T) { testPosts(t, open(t)) })
	t.Run("likes", func(t *testing.T) { testLikes(t, open(t)) })
	t.Run("subscription", func(t *testing.T) { testSubscription(t, open(t)) })
	t.Run("transcripts", func(t *testing.T) { testTranscripts(t, open(t)) })
	t.Run("credentials", func(t *testing.T) { testCredentials(t, open(t)) })
}

func testUsers(t *testing.T, s ports.DocumentStore) {
	defer s.Close()
	ctx := context.Background()

	if _, err := s.GetUser(ctx, "missing"); !errors.Is(err, domain.ErrNotFound) {
		t.Fatalf("expected not found, got %v", err)
	}

	user := domain.User{ID: "u1", Email: "ana@example.com", DisplayName: "ana", Role: domain.RoleStudent, CreatedAt: time.Now()}
	if err := s.PutUser(ctx, user); err != nil {
		t.Fatalf("put user: %v", err)
	}
	got, err := s.GetUser(ctx, "u1")
	if err != nil {
		t.Fatalf("get user: %v", err)
	}
	if got.Email != user.Email || got.DisplayName != "ana" || got.Role != domain.RoleStudent {
		t.Fatalf("unexpected user: %+v", got)
	}

	name := "Ana Cruz"
	role := domain.RoleAdmin
	photo := "data:image/png;base64,AAAA"
	if err := s.UpdateUser(ctx, "u1", domain.UserPatch{DisplayName: &name}); err != nil {
		t.Fatalf("update name: %v", err)
	}
	if err := s.UpdateUser(ctx, "u1", domain.UserPatch{Role: &role, PhotoData: &photo}); err != nil {
		t.Fatalf("update role: %v", err)
	}
	got, _ = s.GetUser(ctx, "u1")
	if got.DisplayName != name || got.Role != role || got.PhotoData != photo {
		t.Fatalf("patch not applied: %+v", got)
	}
	if err := s.UpdateUser(ctx, "missing", domain.UserPatch{DisplayName: &name}); !errors.Is(err, domain.ErrNotFound) {
		t.Fatalf("expected not found on update, got %v", err)
	}

	if err := s.PutUser(ctx, domain.User{ID: "u2", Email: "ben@example.com", DisplayName: "ben", CreatedAt: time.Now()}); err != nil {
		t.Fatalf("put second user: %v", err)
	}
	users, err := s.ListUsers(ctx)
	if err != nil {
		t.Fatalf("list users: %v", err)
	}
	if len(users) != 2 {
		t.Fatalf("expected 2 users, got %d", len(users))
	}
}

func createPost(t *testing.T, s ports.PostStore, author, text string) domain.Post {
	t.Helper()
	post, err := s.CreatePost(context.Background(), domain.NewPost{AuthorID: author, AuthorName: author + "-name", Text: text})
	if err != nil {
		t.Fatalf("create post: %v", err)
	}
	time.Sleep(2 * time.Millisecond)
	return post
}

func testPosts(t *testing.T, s ports.DocumentStore) {
	defer s.Close()
	ctx := context.Background()

	first := createPost(t, s, "u1", "first")
	if first.ID == "" || domain.IsPlaceholderID(first.ID) || first.Likes != 0 || first.CreatedAt.IsZero() {
		t.Fatalf("unexpected created post: %+v", first)
	}
	second := createPost(t, s, "u2", "second")
	third := createPost(t, s, "u1", "third")

	posts, err := s.ListPosts(ctx)
	if err != nil {
		t.Fatalf("list posts: %v", err)
	}
	if len(posts) != 3 || posts[0].ID != third.ID || posts[1].ID != second.ID || posts[2].ID != first.ID {
		t.Fatalf("expected newest first, got %+v", posts)
	}

	got, err := s.GetPost(ctx, second.ID)
	if err != nil {
		t.Fatalf("get post: %v", err)
	}
	if got.Text != "second" || got.AuthorID != "u2" || got.AuthorName != "u2-name" {
		t.Fatalf("unexpected post: %+v", got)
	}
	if _, err := s.GetPost(ctx, "missing"); !errors.Is(err, domain.ErrNotFound) {
		t.Fatalf("expected not found, got %v", err)
	}

	renamed, err := s.RenameAuthor(ctx, "u1", "Renamed")
	if err != nil {
		t.Fatalf("rename author: %v", err)
	}
	if renamed != 2 {
		t.Fatalf("expected 2 renamed posts, got %d", renamed)
	}
	got, _ = s.GetPost(ctx, first.ID)
	if got.AuthorName != "Renamed" {
		t.Fatalf("expected renamed author, got %q", got.AuthorName)
	}

	if err := s.DeletePost(ctx, second.ID); err != nil {
		t.Fatalf("delete post: %v", err)
	}
	if err := s.DeletePost(ctx, second.ID); !errors.Is(err, domain.ErrNotFound) {
		t.Fatalf("expected not found on second delete, got %v", err)
	}
	posts, _ = s.ListPosts(ctx)
	if len(posts) != 2 {
		t.Fatalf("expected 2 posts after delete, got %d", len(posts))
	}
}

func testLikes(t *testing.T, s ports.DocumentStore) {
	defer s.Close()
	ctx := context.Background()
	post := createPost(t, s, "u1", "hello")

	if err := s.UpdatePostLikes(ctx, post.ID, 5); err != nil {
		t.Fatalf("update likes: %v", err)
	}
	if err := s.UpdatePostLikes(ctx, "missing", 1); !errors.Is(err, domain.ErrNotFound) {
		t.Fatalf("expected not found, got %v", err)
	}

	inc, ok := s.(ports.LikeIncrementer)
	if !ok {
		t.Fatalf("store does not support atomic likes")
	}
	done := make(chan error, 2)
	for i := 0; i < 2; i++ {
		go func() {
			_, err := inc.IncrementLikes(ctx, post.ID)
			done <- err
		}()
	}
	for i := 0; i < 2; i++ {
		if err := <-done; err != nil {
			t.Fatalf("increment: %v", err)
		}
	}
	got, _ := s.GetPost(ctx, post.ID)
	if got.Likes != 7 {
		t.Fatalf("expected 7 likes, got %d", got.Likes)
	}
	if _, err := inc.IncrementLikes(ctx, "missing"); !errors.Is(err, domain.ErrNotFound) {
		t.Fatalf("expected not found, got %v", err)
	}
}

func testSubscription(t *testing.T, s ports.DocumentStore) {
	defer s.Close()
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sub, err := s.SubscribePosts(ctx)
	if err != nil {
		t.Fatalf("subscribe: %v", err)
	}
	defer sub.Close()

	initial := next(t, sub)
	if initial.Err != nil || len(initial.Posts) != 0 {
		t.Fatalf("unexpected initial snapshot: %+v", initial)
	}

	post := createPost(t, s, "u1", "pushed")
	for {
		snap := next(t, sub)
		if snap.Err != nil {
			t.Fatalf("snapshot error: %v", snap.Err)
		}
		if len(snap.Posts) == 1 && snap.Posts[0].ID == post.ID {
			return
		}
	}
}

func next(t *testing.T, sub ports.PostSubscription) ports.PostSnapshot {
	t.Helper()
	select {
	case snap, ok := <-sub.Snapshots():
		if !ok {
			t.Fatalf("subscription closed")
		}
		return snap
	case <-time.After(3 * time.Second):
		t.Fatalf("timed out waiting for snapshot")
	}
	return ports.PostSnapshot{}
}

func testTranscripts(t *testing.T, s ports.DocumentStore) {
	defer s.Close()
	ctx := context.Background()

	saved, err := s.SaveTranscript(ctx, domain.Transcript{
		OwnerID:        "u1",
		SourceLanguage: "en-US",
		TargetLanguage: "tl",
		Text:           "Good morning",
		Translation:    "Magandang umaga",
		Origin:         domain.TranscriptOriginCaption,
	})
	if err != nil {
		t.Fatalf("save transcript: %v", err)
	}
	if saved.ID == "" || saved.CreatedAt.IsZero() {
		t.Fatalf("expected id and timestamp, got %+v", saved)
	}
	time.Sleep(2 * time.Millisecond)
	later, err := s.SaveTranscript(ctx, domain.Transcript{OwnerID: "u1", Text: "later", Origin: domain.TranscriptOriginRecording})
	if err != nil {
		t.Fatalf("save transcript: %v", err)
	}
	if _, err := s.SaveTranscript(ctx, domain.Transcript{OwnerID: "u2", Text: "other"}); err != nil {
		t.Fatalf("save transcript: %v", err)
	}

	list, err := s.ListTranscripts(ctx, "u1")
	if err != nil {
		t.Fatalf("list transcripts: %v", err)
	}
	if len(list) != 2 || list[0].ID != later.ID || list[1].Translation != "Magandang umaga" {
		t.Fatalf("unexpected transcripts: %+v", list)
	}
	if list[0].Origin != domain.TranscriptOriginRecording {
		t.Fatalf("expected origin to round trip, got %q", list[0].Origin)
	}
}

func testCredentials(t *testing.T, s ports.DocumentStore) {
	defer s.Close()
	ctx := context.Background()

	if _, err := s.GetCredentialByEmail(ctx, "a@b.co"); !errors.Is(err, domain.ErrNotFound) {
		t.Fatalf("expected not found, got %v", err)
	}
	cred := domain.Credential{UserID: "u1", Email: "a@b.co", PasswordHash: "hash", Provider: "password", CreatedAt: time.Now()}
	if err := s.CreateCredential(ctx, cred); err != nil {
		t.Fatalf("create credential: %v", err)
	}
	got, err := s.GetCredentialByEmail(ctx, "a@b.co")
	if err != nil {
		t.Fatalf("get credential: %v", err)
	}
	if got.UserID != "u1" || got.PasswordHash != "hash" || got.Provider != "password" {
		t.Fatalf("unexpected credential: %+v", got)
	}
	if err := s.CreateCredential(ctx, cred); err == nil {
		t.Fatalf("expected duplicate email to fail")
	}
}
