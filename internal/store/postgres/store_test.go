package postgres

import (
	"errors"
	"os"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"gorm.io/gorm"

	"hearme/internal/domain"
	"hearme/internal/ports"
	"hearme/internal/store/storetest"
)

func TestStoreContract(t *testing.T) {
	dsn := os.Getenv("HEARME_TEST_POSTGRES_DSN")
	if dsn == "" {
		t.Skip("HEARME_TEST_POSTGRES_DSN not set")
	}

	storetest.Run(t, func(t *testing.T) ports.DocumentStore {
		s, err := Open(dsn, zerolog.Nop())
		if err != nil {
			t.Fatalf("open: %v", err)
		}
		for _, table := range []string{"posts", "users", "transcripts", "credentials"} {
			if err := s.db.Exec("DELETE FROM " + table).Error; err != nil {
				t.Fatalf("truncate %s: %v", table, err)
			}
		}
		return s
	})
}

func TestNotFoundMapping(t *testing.T) {
	t.Parallel()

	if err := notFound(gorm.ErrRecordNotFound, "get"); !errors.Is(err, domain.ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
	err := notFound(errors.New("conn reset"), "get post")
	if errors.Is(err, domain.ErrNotFound) || err.Error() != "get post: conn reset" {
		t.Fatalf("unexpected wrapped error: %v", err)
	}
}

func TestModelConversions(t *testing.T) {
	t.Parallel()

	now := time.Date(2024, 3, 1, 8, 0, 0, 0, time.UTC)
	user := domain.User{ID: "u1", Email: "a@b.co", DisplayName: "ana", Role: domain.RoleAdmin, PhotoData: "data:x", CreatedAt: now}
	if got := userFromDomain(user).toDomain(); got != user {
		t.Fatalf("user did not survive conversion: %+v", got)
	}

	post := postModel{ID: "p1", UID: "u1", Name: "ana", Text: "hi", Likes: 3, CreatedAt: now}.toDomain()
	if post.AuthorID != "u1" || post.AuthorName != "ana" || post.Likes != 3 {
		t.Fatalf("unexpected post: %+v", post)
	}

	tr := transcriptModel{ID: "t1", OwnerID: "u1", Origin: "recording"}.toDomain()
	if tr.Origin != domain.TranscriptOriginRecording {
		t.Fatalf("unexpected origin: %q", tr.Origin)
	}
}
