// Package postgres is the document store backed by PostgreSQL through gorm.
package postgres

import (
	"context"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/pkg/errors"
	"github.com/rs/zerolog"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
	"gorm.io/gorm/logger"

	"hearme/internal/domain"
	"hearme/internal/ports"
	"hearme/internal/store"
)

var _ ports.DocumentStore = (*Store)(nil)

type Store struct {
	db  *gorm.DB
	hub *store.Hub
	now func() time.Time
}

// Open connects to dsn and migrates the schema.
func Open(dsn string, log zerolog.Logger) (*Store, error) {
	db, err := gorm.Open(postgres.Open(dsn), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Warn),
	})
	if err != nil {
		return nil, errors.Wrap(err, "connect postgres")
	}
	if err := db.AutoMigrate(&userModel{}, &postModel{}, &transcriptModel{}, &credentialModel{}); err != nil {
		return nil, errors.Wrap(err, "migrate schema")
	}

	s := &Store{db: db, now: time.Now}
	s.hub = store.NewHub(s.ListPosts, log)
	return s, nil
}

func (s *Store) Close() error {
	s.hub.Close()
	sqlDB, err := s.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}

// notFound maps gorm's missing-record error to domain.ErrNotFound.
func notFound(err error, op string) error {
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return domain.ErrNotFound
	}
	return errors.Wrap(err, op)
}

func (s *Store) GetUser(ctx context.Context, uid string) (domain.User, error) {
	var m userModel
	if err := s.db.WithContext(ctx).First(&m, "uid = ?", uid).Error; err != nil {
		return domain.User{}, notFound(err, "get user")
	}
	return m.toDomain(), nil
}

func (s *Store) PutUser(ctx context.Context, user domain.User) error {
	if user.CreatedAt.IsZero() {
		user.CreatedAt = s.now()
	}
	m := userFromDomain(user)
	err := s.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "uid"}},
		DoUpdates: clause.AssignmentColumns([]string{"email", "display_name", "role", "photo_data"}),
	}).Create(&m).Error
	return errors.Wrap(err, "put user")
}

func (s *Store) UpdateUser(ctx context.Context, uid string, patch domain.UserPatch) error {
	updates := map[string]any{}
	if patch.DisplayName != nil {
		updates["display_name"] = *patch.DisplayName
	}
	if patch.Role != nil {
		updates["role"] = string(*patch.Role)
	}
	if patch.PhotoData != nil {
		updates["photo_data"] = *patch.PhotoData
	}
	if len(updates) == 0 {
		_, err := s.GetUser(ctx, uid)
		return err
	}

	res := s.db.WithContext(ctx).Model(&userModel{}).Where("uid = ?", uid).Updates(updates)
	if res.Error != nil {
		return errors.Wrap(res.Error, "update user")
	}
	if res.RowsAffected == 0 {
		return domain.ErrNotFound
	}
	return nil
}

func (s *Store) ListUsers(ctx context.Context) ([]domain.User, error) {
	var models []userModel
	if err := s.db.WithContext(ctx).Order("created_at").Find(&models).Error; err != nil {
		return nil, errors.Wrap(err, "list users")
	}
	users := make([]domain.User, len(models))
	for i, m := range models {
		users[i] = m.toDomain()
	}
	return users, nil
}

func (s *Store) CreatePost(ctx context.Context, input domain.NewPost) (domain.Post, error) {
	m := postModel{
		ID:        uuid.NewString(),
		UID:       input.AuthorID,
		Name:      input.AuthorName,
		Text:      input.Text,
		CreatedAt: s.now().UTC(),
	}
	if err := s.db.WithContext(ctx).Create(&m).Error; err != nil {
		return domain.Post{}, errors.Wrap(err, "create post")
	}
	s.hub.Notify()
	return m.toDomain(), nil
}

func (s *Store) GetPost(ctx context.Context, id string) (domain.Post, error) {
	var m postModel
	if err := s.db.WithContext(ctx).First(&m, "id = ?", id).Error; err != nil {
		return domain.Post{}, notFound(err, "get post")
	}
	return m.toDomain(), nil
}

func (s *Store) ListPosts(ctx context.Context) ([]domain.Post, error) {
	var models []postModel
	if err := s.db.WithContext(ctx).Order("created_at DESC").Order("seq DESC").Find(&models).Error; err != nil {
		return nil, errors.Wrap(err, "list posts")
	}
	posts := make([]domain.Post, len(models))
	for i, m := range models {
		posts[i] = m.toDomain()
	}
	return posts, nil
}

func (s *Store) UpdatePostLikes(ctx context.Context, id string, likes int) error {
	res := s.db.WithContext(ctx).Model(&postModel{}).Where("id = ?", id).Update("likes", likes)
	if res.Error != nil {
		return errors.Wrap(res.Error, "update likes")
	}
	if res.RowsAffected == 0 {
		return domain.ErrNotFound
	}
	s.hub.Notify()
	return nil
}

func (s *Store) IncrementLikes(ctx context.Context, id string) (int, error) {
	var m postModel
	res := s.db.WithContext(ctx).Model(&m).
		Clauses(clause.Returning{Columns: []clause.Column{{Name: "likes"}}}).
		Where("id = ?", id).
		Update("likes", gorm.Expr("likes + 1"))
	if res.Error != nil {
		return 0, errors.Wrap(res.Error, "increment likes")
	}
	if res.RowsAffected == 0 {
		return 0, domain.ErrNotFound
	}
	s.hub.Notify()
	return m.Likes, nil
}

func (s *Store) RenameAuthor(ctx context.Context, uid string, name string) (int, error) {
	res := s.db.WithContext(ctx).Model(&postModel{}).Where("uid = ?", uid).Update("name", name)
	if res.Error != nil {
		return 0, errors.Wrap(res.Error, "rename author")
	}
	if res.RowsAffected > 0 {
		s.hub.Notify()
	}
	return int(res.RowsAffected), nil
}

func (s *Store) DeletePost(ctx context.Context, id string) error {
	res := s.db.WithContext(ctx).Delete(&postModel{}, "id = ?", id)
	if res.Error != nil {
		return errors.Wrap(res.Error, "delete post")
	}
	if res.RowsAffected == 0 {
		return domain.ErrNotFound
	}
	s.hub.Notify()
	return nil
}

func (s *Store) SubscribePosts(ctx context.Context) (ports.PostSubscription, error) {
	return s.hub.Subscribe(ctx)
}

func (s *Store) SaveTranscript(ctx context.Context, t domain.Transcript) (domain.Transcript, error) {
	if t.ID == "" {
		t.ID = uuid.NewString()
	}
	if t.CreatedAt.IsZero() {
		t.CreatedAt = s.now().UTC()
	}
	if t.Origin == "" {
		t.Origin = domain.TranscriptOriginCaption
	}
	m := transcriptModel{
		ID:             t.ID,
		OwnerID:        t.OwnerID,
		SourceLanguage: t.SourceLanguage,
		TargetLanguage: t.TargetLanguage,
		Text:           t.Text,
		Translation:    t.Translation,
		Origin:         string(t.Origin),
		CreatedAt:      t.CreatedAt,
	}
	if err := s.db.WithContext(ctx).Create(&m).Error; err != nil {
		return domain.Transcript{}, errors.Wrap(err, "save transcript")
	}
	return t, nil
}

func (s *Store) ListTranscripts(ctx context.Context, ownerID string) ([]domain.Transcript, error) {
	var models []transcriptModel
	err := s.db.WithContext(ctx).
		Where("owner_id = ?", ownerID).
		Order("created_at DESC").Order("seq DESC").
		Find(&models).Error
	if err != nil {
		return nil, errors.Wrap(err, "list transcripts")
	}
	out := make([]domain.Transcript, len(models))
	for i, m := range models {
		out[i] = m.toDomain()
	}
	return out, nil
}

func (s *Store) CreateCredential(ctx context.Context, c domain.Credential) error {
	if c.CreatedAt.IsZero() {
		c.CreatedAt = s.now()
	}
	m := credentialModel{
		Email:        strings.ToLower(c.Email),
		UID:          c.UserID,
		PasswordHash: c.PasswordHash,
		Provider:     c.Provider,
		CreatedAt:    c.CreatedAt,
	}
	return errors.Wrap(s.db.WithContext(ctx).Create(&m).Error, "create credential")
}

func (s *Store) GetCredentialByEmail(ctx context.Context, email string) (domain.Credential, error) {
	var m credentialModel
	if err := s.db.WithContext(ctx).First(&m, "email = ?", strings.ToLower(email)).Error; err != nil {
		return domain.Credential{}, notFound(err, "get credential")
	}
	return domain.Credential{
		UserID:       m.UID,
		Email:        m.Email,
		PasswordHash: m.PasswordHash,
		Provider:     m.Provider,
		CreatedAt:    m.CreatedAt,
	}, nil
}
