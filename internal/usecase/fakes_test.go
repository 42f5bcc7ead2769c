package usecase

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strings"
	"sync"
	"testing"
	"time"

	"hearme/internal/domain"
	"hearme/internal/ports"
)

func waitFor(t *testing.T, what string, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatalf("timed out waiting for %s", what)
}

type stateChange struct {
	state  domain.CaptionState
	reason domain.CaptionStateReason
}

type sinkError struct {
	code   domain.ErrorCode
	detail string
}

type fakeCaptionSink struct {
	mu           sync.Mutex
	states       []stateChange
	captions     []string
	interims     []string
	translations []string
	errors       []sinkError
}

func (s *fakeCaptionSink) CaptionStateChanged(state domain.CaptionState, reason domain.CaptionStateReason) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.states = append(s.states, stateChange{state: state, reason: reason})
}

func (s *fakeCaptionSink) InterimCaption(text string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.interims = append(s.interims, text)
}

func (s *fakeCaptionSink) CaptionChanged(text string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.captions = append(s.captions, text)
}

func (s *fakeCaptionSink) TranslationChanged(text string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.translations = append(s.translations, text)
}

func (s *fakeCaptionSink) CaptionError(code domain.ErrorCode, detail string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.errors = append(s.errors, sinkError{code: code, detail: detail})
}

func (s *fakeCaptionSink) snapshotErrors() []sinkError {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]sinkError(nil), s.errors...)
}

func (s *fakeCaptionSink) snapshotStates() []stateChange {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]stateChange(nil), s.states...)
}

func (s *fakeCaptionSink) lastCaption() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	if len(s.captions) == 0 {
		return ""
	}
	return s.captions[len(s.captions)-1]
}

func (s *fakeCaptionSink) lastTranslation() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	if len(s.translations) == 0 {
		return ""
	}
	return s.translations[len(s.translations)-1]
}

// pipeAudioSession blocks reads until Stop, like a live microphone.
type pipeAudioSession struct {
	r    *io.PipeReader
	w    *io.PipeWriter
	once sync.Once
}

func newPipeAudioSession() *pipeAudioSession {
	r, w := io.Pipe()
	return &pipeAudioSession{r: r, w: w}
}

func (s *pipeAudioSession) Read(p []byte) (int, error) { return s.r.Read(p) }
func (s *pipeAudioSession) Close() error               { return s.r.Close() }
func (s *pipeAudioSession) Stop() error {
	s.once.Do(func() { _ = s.w.Close() })
	return nil
}

type fakeAudioCapture struct {
	mu       sync.Mutex
	sessions []*pipeAudioSession
	err      error
}

func (c *fakeAudioCapture) Start(_ context.Context, _ ports.AudioConfig) (ports.AudioSession, error) {
	if c.err != nil {
		return nil, c.err
	}
	session := newPipeAudioSession()
	c.mu.Lock()
	c.sessions = append(c.sessions, session)
	c.mu.Unlock()
	return session, nil
}

// fakeAudioSession yields fixed chunks and then EOF.
type fakeAudioSession struct {
	chunks [][]byte
}

func (s *fakeAudioSession) Read(p []byte) (int, error) {
	if len(s.chunks) == 0 {
		return 0, io.EOF
	}
	n := copy(p, s.chunks[0])
	s.chunks = s.chunks[1:]
	return n, nil
}
func (s *fakeAudioSession) Close() error { return nil }
func (s *fakeAudioSession) Stop() error  { return nil }

type fakeStream struct {
	events  chan domain.RecognitionEvent
	done    chan struct{}
	once    sync.Once
	waitErr error

	mu   sync.Mutex
	sent int
}

func newFakeStream() *fakeStream {
	return &fakeStream{
		events: make(chan domain.RecognitionEvent, 16),
		done:   make(chan struct{}),
	}
}

func (s *fakeStream) emit(kind domain.RecognitionKind, text string) {
	s.events <- domain.RecognitionEvent{Kind: kind, Text: text}
}

func (s *fakeStream) SendAudio(chunk []byte) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.sent += len(chunk)
	return nil
}

func (s *fakeStream) finish() {
	s.once.Do(func() {
		close(s.events)
		close(s.done)
	})
}

func (s *fakeStream) CloseSend() error                        { s.finish(); return nil }
func (s *fakeStream) Events() <-chan domain.RecognitionEvent { return s.events }
func (s *fakeStream) Wait() error                             { <-s.done; return s.waitErr }
func (s *fakeStream) Close() error                            { s.finish(); return nil }

type fakeRecognizer struct {
	mu      sync.Mutex
	streams []*fakeStream
	configs []ports.StreamingConfig
	err     error
}

func (r *fakeRecognizer) StartStreaming(_ context.Context, cfg ports.StreamingConfig) (ports.StreamingSession, error) {
	if r.err != nil {
		return nil, r.err
	}
	stream := newFakeStream()
	r.mu.Lock()
	defer r.mu.Unlock()
	r.streams = append(r.streams, stream)
	r.configs = append(r.configs, cfg)
	return stream, nil
}

func (r *fakeRecognizer) stream(i int) *fakeStream {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.streams[i]
}

type translateCall struct {
	source, target, text string
}

type fakeTranslator struct {
	mu    sync.Mutex
	calls []translateCall
	err   error
}

func (f *fakeTranslator) Translate(_ context.Context, source, target, text string) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls = append(f.calls, translateCall{source: source, target: target, text: text})
	if f.err != nil {
		return "", f.err
	}
	return target + ":" + text, nil
}

func (f *fakeTranslator) snapshotCalls() []translateCall {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]translateCall(nil), f.calls...)
}

type fakeRules struct {
	transform string
	err       error
}

func (r *fakeRules) Apply(text string) (string, error) {
	if r.err != nil {
		return "", r.err
	}
	if r.transform != "" {
		return r.transform, nil
	}
	return text, nil
}

type fakeTranscriptStore struct {
	mu    sync.Mutex
	saved []domain.Transcript
	err   error
}

func (s *fakeTranscriptStore) SaveTranscript(_ context.Context, tr domain.Transcript) (domain.Transcript, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.err != nil {
		return domain.Transcript{}, s.err
	}
	tr.ID = fmt.Sprintf("tr-%d", len(s.saved)+1)
	s.saved = append(s.saved, tr)
	return tr, nil
}

func (s *fakeTranscriptStore) ListTranscripts(_ context.Context, ownerID string) ([]domain.Transcript, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []domain.Transcript
	for _, tr := range s.saved {
		if tr.OwnerID == ownerID {
			out = append(out, tr)
		}
	}
	return out, s.err
}

type fakeUserStore struct {
	mu      sync.Mutex
	users   map[string]domain.User
	getErr  map[string]error
	gets    map[string]int
	putErr  error
	updates []domain.UserPatch
}

func newFakeUserStore(users ...domain.User) *fakeUserStore {
	s := &fakeUserStore{
		users:  make(map[string]domain.User),
		getErr: make(map[string]error),
		gets:   make(map[string]int),
	}
	for _, u := range users {
		s.users[u.ID] = u
	}
	return s
}

func (s *fakeUserStore) GetUser(_ context.Context, uid string) (domain.User, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.gets[uid]++
	if err := s.getErr[uid]; err != nil {
		return domain.User{}, err
	}
	u, ok := s.users[uid]
	if !ok {
		return domain.User{}, domain.ErrNotFound
	}
	return u, nil
}

func (s *fakeUserStore) PutUser(_ context.Context, user domain.User) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.putErr != nil {
		return s.putErr
	}
	s.users[user.ID] = user
	return nil
}

func (s *fakeUserStore) UpdateUser(_ context.Context, uid string, patch domain.UserPatch) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	u, ok := s.users[uid]
	if !ok {
		return domain.ErrNotFound
	}
	if patch.DisplayName != nil {
		u.DisplayName = *patch.DisplayName
	}
	if patch.Role != nil {
		u.Role = *patch.Role
	}
	if patch.PhotoData != nil {
		u.PhotoData = *patch.PhotoData
	}
	s.users[uid] = u
	s.updates = append(s.updates, patch)
	return nil
}

func (s *fakeUserStore) ListUsers(_ context.Context) ([]domain.User, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]domain.User, 0, len(s.users))
	for _, u := range s.users {
		out = append(out, u)
	}
	return out, nil
}

func (s *fakeUserStore) user(uid string) domain.User {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.users[uid]
}

type fakeSubscription struct {
	ch   chan ports.PostSnapshot
	once sync.Once
}

func (s *fakeSubscription) Snapshots() <-chan ports.PostSnapshot { return s.ch }
func (s *fakeSubscription) Close() error {
	s.once.Do(func() { close(s.ch) })
	return nil
}

// fakePostStore has no atomic increment, so likes go through read-modify-write.
type fakePostStore struct {
	mu        sync.Mutex
	posts     map[string]domain.Post
	nextID    int
	createErr error
	gate      chan struct{}
	likeErr   error
	readers   *sync.WaitGroup
	writes    []int
	gets      int
	renamed   map[string]string
	deleted   []string
	sub       *fakeSubscription
	now       func() time.Time
}

func newFakePostStore(posts ...domain.Post) *fakePostStore {
	s := &fakePostStore{
		posts:   make(map[string]domain.Post),
		renamed: make(map[string]string),
		sub:     &fakeSubscription{ch: make(chan ports.PostSnapshot, 8)},
		now:     time.Now,
	}
	for _, p := range posts {
		s.posts[p.ID] = p
	}
	return s
}

func (s *fakePostStore) CreatePost(_ context.Context, post domain.NewPost) (domain.Post, error) {
	if s.gate != nil {
		<-s.gate
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.createErr != nil {
		return domain.Post{}, s.createErr
	}
	s.nextID++
	created := domain.Post{
		ID:         fmt.Sprintf("post-%d", s.nextID),
		AuthorID:   post.AuthorID,
		AuthorName: post.AuthorName,
		Text:       post.Text,
		CreatedAt:  s.now(),
	}
	s.posts[created.ID] = created
	return created, nil
}

func (s *fakePostStore) GetPost(_ context.Context, id string) (domain.Post, error) {
	s.mu.Lock()
	s.gets++
	p, ok := s.posts[id]
	readers := s.readers
	s.mu.Unlock()

	if readers != nil {
		readers.Done()
		readers.Wait()
	}
	if !ok {
		return domain.Post{}, domain.ErrNotFound
	}
	return p, nil
}

func (s *fakePostStore) ListPosts(_ context.Context) ([]domain.Post, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]domain.Post, 0, len(s.posts))
	for _, p := range s.posts {
		out = append(out, p)
	}
	return out, nil
}

func (s *fakePostStore) UpdatePostLikes(_ context.Context, id string, likes int) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.likeErr != nil {
		return s.likeErr
	}
	p, ok := s.posts[id]
	if !ok {
		return domain.ErrNotFound
	}
	p.Likes = likes
	s.posts[id] = p
	s.writes = append(s.writes, likes)
	return nil
}

func (s *fakePostStore) RenameAuthor(_ context.Context, uid, name string) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	n := 0
	for id, p := range s.posts {
		if p.AuthorID == uid {
			p.AuthorName = name
			s.posts[id] = p
			n++
		}
	}
	s.renamed[uid] = name
	return n, nil
}

func (s *fakePostStore) DeletePost(_ context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.posts[id]; !ok {
		return domain.ErrNotFound
	}
	delete(s.posts, id)
	s.deleted = append(s.deleted, id)
	return nil
}

func (s *fakePostStore) SubscribePosts(_ context.Context) (ports.PostSubscription, error) {
	return s.sub, nil
}

func (s *fakePostStore) push(posts ...domain.Post) {
	s.sub.ch <- ports.PostSnapshot{Posts: posts}
}

func (s *fakePostStore) post(id string) domain.Post {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.posts[id]
}

func (s *fakePostStore) snapshotWrites() []int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]int(nil), s.writes...)
}

type atomicPostStore struct {
	*fakePostStore
}

func (s atomicPostStore) IncrementLikes(_ context.Context, id string) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	p, ok := s.posts[id]
	if !ok {
		return 0, domain.ErrNotFound
	}
	p.Likes++
	s.posts[id] = p
	return p.Likes, nil
}

type fakeFeedSink struct {
	mu     sync.Mutex
	views  [][]domain.Post
	errors []sinkError
}

func (s *fakeFeedSink) FeedChanged(posts []domain.Post) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.views = append(s.views, posts)
}

func (s *fakeFeedSink) FeedError(code domain.ErrorCode, detail string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.errors = append(s.errors, sinkError{code: code, detail: detail})
}

func (s *fakeFeedSink) viewCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.views)
}

type fakeAuthenticator struct {
	mu       sync.Mutex
	accounts map[string]string
	ids      map[string]string
	revoked  map[string]bool
	signUp   error
}

func newFakeAuthenticator() *fakeAuthenticator {
	return &fakeAuthenticator{
		accounts: make(map[string]string),
		ids:      make(map[string]string),
		revoked:  make(map[string]bool),
	}
}

func (a *fakeAuthenticator) SignUp(_ context.Context, email, password string) (domain.Identity, error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.signUp != nil {
		return domain.Identity{}, a.signUp
	}
	if _, ok := a.accounts[email]; ok {
		return domain.Identity{}, domain.NewAuthError(domain.AuthEmailInUse)
	}
	a.accounts[email] = password
	a.ids[email] = "uid-" + strings.Split(email, "@")[0]
	return domain.Identity{UserID: a.ids[email], Email: email}, nil
}

func (a *fakeAuthenticator) SignIn(_ context.Context, email, password string) (domain.Identity, error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	stored, ok := a.accounts[email]
	if !ok {
		return domain.Identity{}, domain.NewAuthError(domain.AuthUserNotFound)
	}
	if stored != password {
		return domain.Identity{}, domain.NewAuthError(domain.AuthWrongPassword)
	}
	return domain.Identity{UserID: a.ids[email], Email: email}, nil
}

func (a *fakeAuthenticator) SignOut(_ context.Context, token string) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.revoked[token] = true
	return nil
}

func (a *fakeAuthenticator) IssueToken(identity domain.Identity) (string, error) {
	return identity.UserID + "|" + identity.Email, nil
}

func (a *fakeAuthenticator) Verify(_ context.Context, token string) (domain.Identity, error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	uid, email, ok := strings.Cut(token, "|")
	if !ok || a.revoked[token] {
		return domain.Identity{}, domain.NewAuthError(domain.AuthInvalidToken)
	}
	return domain.Identity{UserID: uid, Email: email}, nil
}

var errBoom = errors.New("boom")
