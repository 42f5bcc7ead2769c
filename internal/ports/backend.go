package ports

import (
	"context"
	"io"

	"hearme/internal/domain"
)

// UserStore is the users collection.
type UserStore interface {
	GetUser(ctx context.Context, uid string) (domain.User, error)
	PutUser(ctx context.Context, user domain.User) error
	UpdateUser(ctx context.Context, uid string, patch domain.UserPatch) error
	ListUsers(ctx context.Context) ([]domain.User, error)
}

// PostSnapshot is one push of a posts subscription.
type PostSnapshot struct {
	Posts []domain.Post
	Err   error
}

// PostSubscription delivers ordered post snapshots until closed.
type PostSubscription interface {
	Snapshots() <-chan PostSnapshot
	Close() error
}

// PostStore is the posts collection.
type PostStore interface {
	CreatePost(ctx context.Context, post domain.NewPost) (domain.Post, error)
	GetPost(ctx context.Context, id string) (domain.Post, error)
	ListPosts(ctx context.Context) ([]domain.Post, error)
	UpdatePostLikes(ctx context.Context, id string, likes int) error
	RenameAuthor(ctx context.Context, uid string, name string) (int, error)
	DeletePost(ctx context.Context, id string) error
	SubscribePosts(ctx context.Context) (PostSubscription, error)
}

// LikeIncrementer is implemented by stores with an atomic server-side increment.
type LikeIncrementer interface {
	IncrementLikes(ctx context.Context, id string) (int, error)
}

// TranscriptStore is the transcripts collection.
type TranscriptStore interface {
	SaveTranscript(ctx context.Context, transcript domain.Transcript) (domain.Transcript, error)
	ListTranscripts(ctx context.Context, ownerID string) ([]domain.Transcript, error)
}

// CredentialStore keeps the auth provider's sign-in records.
type CredentialStore interface {
	CreateCredential(ctx context.Context, credential domain.Credential) error
	GetCredentialByEmail(ctx context.Context, email string) (domain.Credential, error)
}

// DocumentStore bundles every collection of the managed database.
type DocumentStore interface {
	UserStore
	PostStore
	TranscriptStore
	CredentialStore
	Close() error
}

// Authenticator is the authentication provider.
type Authenticator interface {
	SignUp(ctx context.Context, email, password string) (domain.Identity, error)
	SignIn(ctx context.Context, email, password string) (domain.Identity, error)
	SignOut(ctx context.Context, token string) error
	IssueToken(identity domain.Identity) (string, error)
	Verify(ctx context.Context, token string) (domain.Identity, error)
}

// FileStore keeps exported files.
type FileStore interface {
	Save(ctx context.Context, name string, r io.Reader) (int64, error)
	Open(ctx context.Context, name string) (io.ReadCloser, error)
}

// Backend is the capability object handed to services instead of process-wide singletons.
type Backend struct {
	Auth  Authenticator
	Store DocumentStore
	Files FileStore
}
