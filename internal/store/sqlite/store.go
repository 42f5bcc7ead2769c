// Package sqlite is the document store backed by a local SQLite file.
package sqlite

import (
	"context"
	"database/sql"
	"strings"
	"time"

	sq "github.com/Masterminds/squirrel"
	"github.com/google/uuid"
	"github.com/pkg/errors"
	"github.com/rs/zerolog"

	"hearme/internal/domain"
	"hearme/internal/ports"
	"hearme/internal/store"
)

var _ ports.DocumentStore = (*Store)(nil)

var postColumns = []string{"id", "uid", "name", "text", "likes", "created_at"}

type Store struct {
	db  *sql.DB
	sq  sq.StatementBuilderType
	hub *store.Hub
	now func() time.Time
}

// Open opens (creating if needed) the database file at path.
func Open(path string, logger zerolog.Logger) (*Store, error) {
	db, err := openDB(path)
	if err != nil {
		return nil, err
	}
	s := &Store{db: db, sq: sq.StatementBuilder, now: time.Now}
	s.hub = store.NewHub(s.ListPosts, logger)
	return s, nil
}

func (s *Store) Close() error {
	s.hub.Close()
	return s.db.Close()
}

func (s *Store) exec(ctx context.Context, q sq.Sqlizer) (sql.Result, error) {
	query, args, err := q.ToSql()
	if err != nil {
		return nil, errors.Wrap(err, "build query")
	}
	return s.db.ExecContext(ctx, query, args...)
}

func (s *Store) queryRow(ctx context.Context, q sq.Sqlizer) (*sql.Row, error) {
	query, args, err := q.ToSql()
	if err != nil {
		return nil, errors.Wrap(err, "build query")
	}
	return s.db.QueryRowContext(ctx, query, args...), nil
}

func (s *Store) query(ctx context.Context, q sq.Sqlizer) (*sql.Rows, error) {
	query, args, err := q.ToSql()
	if err != nil {
		return nil, errors.Wrap(err, "build query")
	}
	return s.db.QueryContext(ctx, query, args...)
}

// requireAffected maps a write that touched no row to ErrNotFound.
func requireAffected(res sql.Result) error {
	n, err := res.RowsAffected()
	if err != nil {
		return errors.Wrap(err, "rows affected")
	}
	if n == 0 {
		return domain.ErrNotFound
	}
	return nil
}

func (s *Store) GetUser(ctx context.Context, uid string) (domain.User, error) {
	row, err := s.queryRow(ctx, s.sq.Select("uid", "email", "display_name", "role", "photo_data", "created_at").
		From("users").Where(sq.Eq{"uid": uid}))
	if err != nil {
		return domain.User{}, err
	}
	user, err := scanUser(row)
	if errors.Is(err, sql.ErrNoRows) {
		return domain.User{}, domain.ErrNotFound
	}
	return user, errors.Wrap(err, "get user")
}

type scanner interface {
	Scan(dest ...any) error
}

func scanUser(row scanner) (domain.User, error) {
	var user domain.User
	var role, created string
	if err := row.Scan(&user.ID, &user.Email, &user.DisplayName, &role, &user.PhotoData, &created); err != nil {
		return domain.User{}, err
	}
	user.Role = domain.Role(role)
	user.CreatedAt = parseTime(created)
	return user, nil
}

func (s *Store) PutUser(ctx context.Context, user domain.User) error {
	if user.CreatedAt.IsZero() {
		user.CreatedAt = s.now()
	}
	_, err := s.exec(ctx, s.sq.Insert("users").
		Columns("uid", "email", "display_name", "role", "photo_data", "created_at").
		Values(user.ID, user.Email, user.DisplayName, string(user.Role), user.PhotoData, formatTime(user.CreatedAt)).
		Suffix("ON CONFLICT(uid) DO UPDATE SET email = excluded.email, display_name = excluded.display_name, role = excluded.role, photo_data = excluded.photo_data"))
	return errors.Wrap(err, "put user")
}

func (s *Store) UpdateUser(ctx context.Context, uid string, patch domain.UserPatch) error {
	q := s.sq.Update("users").Where(sq.Eq{"uid": uid})
	fields := 0
	if patch.DisplayName != nil {
		q = q.Set("display_name", *patch.DisplayName)
		fields++
	}
	if patch.Role != nil {
		q = q.Set("role", string(*patch.Role))
		fields++
	}
	if patch.PhotoData != nil {
		q = q.Set("photo_data", *patch.PhotoData)
		fields++
	}
	if fields == 0 {
		_, err := s.GetUser(ctx, uid)
		return err
	}

	res, err := s.exec(ctx, q)
	if err != nil {
		return errors.Wrap(err, "update user")
	}
	return requireAffected(res)
}

func (s *Store) ListUsers(ctx context.Context) ([]domain.User, error) {
	rows, err := s.query(ctx, s.sq.Select("uid", "email", "display_name", "role", "photo_data", "created_at").
		From("users").OrderBy("created_at"))
	if err != nil {
		return nil, errors.Wrap(err, "list users")
	}
	defer rows.Close()

	var users []domain.User
	for rows.Next() {
		user, err := scanUser(rows)
		if err != nil {
			return nil, errors.Wrap(err, "scan user")
		}
		users = append(users, user)
	}
	return users, errors.Wrap(rows.Err(), "list users")
}

func scanPost(row scanner) (domain.Post, error) {
	var post domain.Post
	var created string
	if err := row.Scan(&post.ID, &post.AuthorID, &post.AuthorName, &post.Text, &post.Likes, &created); err != nil {
		return domain.Post{}, err
	}
	post.CreatedAt = parseTime(created)
	return post, nil
}

func (s *Store) CreatePost(ctx context.Context, input domain.NewPost) (domain.Post, error) {
	post := domain.Post{
		ID:         uuid.NewString(),
		AuthorID:   input.AuthorID,
		AuthorName: input.AuthorName,
		Text:       input.Text,
		CreatedAt:  s.now().UTC(),
	}
	_, err := s.exec(ctx, s.sq.Insert("posts").Columns(postColumns...).
		Values(post.ID, post.AuthorID, post.AuthorName, post.Text, 0, formatTime(post.CreatedAt)))
	if err != nil {
		return domain.Post{}, errors.Wrap(err, "create post")
	}
	s.hub.Notify()
	return post, nil
}

func (s *Store) GetPost(ctx context.Context, id string) (domain.Post, error) {
	row, err := s.queryRow(ctx, s.sq.Select(postColumns...).From("posts").Where(sq.Eq{"id": id}))
	if err != nil {
		return domain.Post{}, err
	}
	post, err := scanPost(row)
	if errors.Is(err, sql.ErrNoRows) {
		return domain.Post{}, domain.ErrNotFound
	}
	return post, errors.Wrap(err, "get post")
}

// ListPosts returns posts newest first; rowid breaks timestamp ties.
func (s *Store) ListPosts(ctx context.Context) ([]domain.Post, error) {
	rows, err := s.query(ctx, s.sq.Select(postColumns...).From("posts").OrderBy("created_at DESC", "rowid DESC"))
	if err != nil {
		return nil, errors.Wrap(err, "list posts")
	}
	defer rows.Close()

	posts := []domain.Post{}
	for rows.Next() {
		post, err := scanPost(rows)
		if err != nil {
			return nil, errors.Wrap(err, "scan post")
		}
		posts = append(posts, post)
	}
	return posts, errors.Wrap(rows.Err(), "list posts")
}

func (s *Store) UpdatePostLikes(ctx context.Context, id string, likes int) error {
	res, err := s.exec(ctx, s.sq.Update("posts").Set("likes", likes).Where(sq.Eq{"id": id}))
	if err != nil {
		return errors.Wrap(err, "update likes")
	}
	if err := requireAffected(res); err != nil {
		return err
	}
	s.hub.Notify()
	return nil
}

func (s *Store) IncrementLikes(ctx context.Context, id string) (int, error) {
	row, err := s.queryRow(ctx, s.sq.Update("posts").
		Set("likes", sq.Expr("likes + 1")).
		Where(sq.Eq{"id": id}).
		Suffix("RETURNING likes"))
	if err != nil {
		return 0, err
	}
	var likes int
	if err := row.Scan(&likes); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return 0, domain.ErrNotFound
		}
		return 0, errors.Wrap(err, "increment likes")
	}
	s.hub.Notify()
	return likes, nil
}

func (s *Store) RenameAuthor(ctx context.Context, uid string, name string) (int, error) {
	res, err := s.exec(ctx, s.sq.Update("posts").Set("name", name).Where(sq.Eq{"uid": uid}))
	if err != nil {
		return 0, errors.Wrap(err, "rename author")
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, errors.Wrap(err, "rows affected")
	}
	if n > 0 {
		s.hub.Notify()
	}
	return int(n), nil
}

func (s *Store) DeletePost(ctx context.Context, id string) error {
	res, err := s.exec(ctx, s.sq.Delete("posts").Where(sq.Eq{"id": id}))
	if err != nil {
		return errors.Wrap(err, "delete post")
	}
	if err := requireAffected(res); err != nil {
		return err
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
	_, err := s.exec(ctx, s.sq.Insert("transcripts").
		Columns("id", "owner_id", "source_language", "target_language", "text", "translation", "origin", "created_at").
		Values(t.ID, t.OwnerID, t.SourceLanguage, t.TargetLanguage, t.Text, t.Translation, string(t.Origin), formatTime(t.CreatedAt)))
	if err != nil {
		return domain.Transcript{}, errors.Wrap(err, "save transcript")
	}
	return t, nil
}

func (s *Store) ListTranscripts(ctx context.Context, ownerID string) ([]domain.Transcript, error) {
	rows, err := s.query(ctx, s.sq.
		Select("id", "owner_id", "source_language", "target_language", "text", "translation", "origin", "created_at").
		From("transcripts").
		Where(sq.Eq{"owner_id": ownerID}).
		OrderBy("created_at DESC", "rowid DESC"))
	if err != nil {
		return nil, errors.Wrap(err, "list transcripts")
	}
	defer rows.Close()

	var out []domain.Transcript
	for rows.Next() {
		var t domain.Transcript
		var origin, created string
		if err := rows.Scan(&t.ID, &t.OwnerID, &t.SourceLanguage, &t.TargetLanguage, &t.Text, &t.Translation, &origin, &created); err != nil {
			return nil, errors.Wrap(err, "scan transcript")
		}
		t.Origin = domain.TranscriptOrigin(origin)
		t.CreatedAt = parseTime(created)
		out = append(out, t)
	}
	return out, errors.Wrap(rows.Err(), "list transcripts")
}

func (s *Store) CreateCredential(ctx context.Context, c domain.Credential) error {
	if c.CreatedAt.IsZero() {
		c.CreatedAt = s.now()
	}
	_, err := s.exec(ctx, s.sq.Insert("credentials").
		Columns("email", "uid", "password_hash", "provider", "created_at").
		Values(strings.ToLower(c.Email), c.UserID, c.PasswordHash, c.Provider, formatTime(c.CreatedAt)))
	return errors.Wrap(err, "create credential")
}

func (s *Store) GetCredentialByEmail(ctx context.Context, email string) (domain.Credential, error) {
	row, err := s.queryRow(ctx, s.sq.Select("email", "uid", "password_hash", "provider", "created_at").
		From("credentials").Where(sq.Eq{"email": strings.ToLower(email)}))
	if err != nil {
		return domain.Credential{}, err
	}
	var c domain.Credential
	var created string
	if err := row.Scan(&c.Email, &c.UserID, &c.PasswordHash, &c.Provider, &created); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return domain.Credential{}, domain.ErrNotFound
		}
		return domain.Credential{}, errors.Wrap(err, "get credential")
	}
	c.CreatedAt = parseTime(created)
	return c, nil
}
