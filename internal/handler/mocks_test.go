package handler

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"net/url"
	"sort"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/hitoshi/taskboard/internal/auth"
	"github.com/hitoshi/taskboard/internal/form"
	"github.com/hitoshi/taskboard/internal/middleware"
	"github.com/hitoshi/taskboard/internal/model"
	"github.com/hitoshi/taskboard/internal/repository"
	"github.com/hitoshi/taskboard/internal/task"
)

// --- モック定義 ---

type mockAuthService struct {
	getLoginURLFn    func(state, verifier string) string
	handleCallbackFn func(ctx context.Context, code, verifier string) (*model.Session, error)
	logoutFn         func(ctx context.Context, sessionID string) error
}

func (m *mockAuthService) GetLoginURL(state, verifier string) string {
	if m.getLoginURLFn != nil {
		return m.getLoginURLFn(state, verifier)
	}
	return ""
}

func (m *mockAuthService) HandleCallback(ctx context.Context, code, verifier string) (*model.Session, error) {
	if m.handleCallbackFn != nil {
		return m.handleCallbackFn(ctx, code, verifier)
	}
	return nil, nil
}

func (m *mockAuthService) Logout(ctx context.Context, sessionID string) error {
	if m.logoutFn != nil {
		return m.logoutFn(ctx, sessionID)
	}
	return nil
}

type mockTokenEncoder struct {
	encodeFn func(session *model.Session) (string, error)
}

func (m *mockTokenEncoder) Encode(session *model.Session) (string, error) {
	if m.encodeFn != nil {
		return m.encodeFn(session)
	}
	return "token-" + session.ID, nil
}

// mockSessions はCookieの値をそのままセッションIDとして扱うSessionProvider。
type mockSessions struct {
	users map[string]*model.UserIdentity // sessionID -> user
	err   error
}

func (m *mockSessions) SessionID(r *http.Request) (string, bool) {
	c, err := r.Cookie(auth.SessionCookieName)
	if err != nil || c.Value == "" {
		return "", false
	}
	return c.Value, true
}

func (m *mockSessions) CurrentUser(r *http.Request) (*model.UserIdentity, error) {
	if m.err != nil {
		return nil, m.err
	}
	id, ok := m.SessionID(r)
	if !ok {
		return nil, nil
	}
	return m.users[id], nil
}

type mockTaskService struct {
	createTaskFn    func(ctx context.Context, ownerID string, draft form.TaskDraft) (*model.Task, error)
	listTasksFn     func(ctx context.Context, ownerID string) ([]*model.Task, error)
	getTaskFn       func(ctx context.Context, taskID string) (*model.Task, error)
	getPublicTaskFn func(ctx context.Context, taskID string) (*model.Task, error)
	deleteTaskFn    func(ctx context.Context, userID, taskID string) (*model.Task, error)
	listCommentsFn  func(ctx context.Context, taskID string) ([]*model.Comment, error)
	createCommentFn func(ctx context.Context, author *model.UserIdentity, taskID string, draft form.CommentDraft) (*model.Comment, error)
	deleteCommentFn func(ctx context.Context, userID, taskID, commentID string) (*model.Comment, error)
}

func (m *mockTaskService) CreateTask(ctx context.Context, ownerID string, draft form.TaskDraft) (*model.Task, error) {
	if m.createTaskFn != nil {
		return m.createTaskFn(ctx, ownerID, draft)
	}
	return nil, nil
}

func (m *mockTaskService) ListTasks(ctx context.Context, ownerID string) ([]*model.Task, error) {
	if m.listTasksFn != nil {
		return m.listTasksFn(ctx, ownerID)
	}
	return nil, nil
}

func (m *mockTaskService) GetTask(ctx context.Context, taskID string) (*model.Task, error) {
	if m.getTaskFn != nil {
		return m.getTaskFn(ctx, taskID)
	}
	return nil, nil
}

func (m *mockTaskService) GetPublicTask(ctx context.Context, taskID string) (*model.Task, error) {
	if m.getPublicTaskFn != nil {
		return m.getPublicTaskFn(ctx, taskID)
	}
	return nil, model.NewTaskNotFoundError(taskID)
}

func (m *mockTaskService) DeleteTask(ctx context.Context, userID, taskID string) (*model.Task, error) {
	if m.deleteTaskFn != nil {
		return m.deleteTaskFn(ctx, userID, taskID)
	}
	return nil, nil
}

func (m *mockTaskService) ListComments(ctx context.Context, taskID string) ([]*model.Comment, error) {
	if m.listCommentsFn != nil {
		return m.listCommentsFn(ctx, taskID)
	}
	return nil, nil
}

func (m *mockTaskService) CreateComment(ctx context.Context, author *model.UserIdentity, taskID string, draft form.CommentDraft) (*model.Comment, error) {
	if m.createCommentFn != nil {
		return m.createCommentFn(ctx, author, taskID, draft)
	}
	return nil, nil
}

func (m *mockTaskService) DeleteComment(ctx context.Context, userID, taskID, commentID string) (*model.Comment, error) {
	if m.deleteCommentFn != nil {
		return m.deleteCommentFn(ctx, userID, taskID, commentID)
	}
	return nil, nil
}

// --- インメモリストア ---

// memoryStore はタスクとコメントのインメモリストア。
// 実際のtask.Serviceを通した統合テストで使用する。
type memoryStore struct {
	mu       sync.Mutex
	seq      int
	tasks    map[string]*model.Task
	comments map[string]*model.Comment
	failNext error // 次の書き込みで返すエラー
	writes   int
}

func newMemoryStore() *memoryStore {
	return &memoryStore{
		tasks:    make(map[string]*model.Task),
		comments: make(map[string]*model.Comment),
	}
}

func (s *memoryStore) nextID(prefix string) string {
	s.seq++
	return fmt.Sprintf("%s-%d", prefix, s.seq)
}

func (s *memoryStore) beginWrite() error {
	s.writes++
	err := s.failNext
	s.failNext = nil
	return err
}

func (s *memoryStore) putTask(t *model.Task) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if t.CreatedAt.IsZero() {
		t.CreatedAt = time.Date(2024, 5, 1, 9, 0, 0, 0, time.UTC)
	}
	s.tasks[t.ID] = t
}

func (s *memoryStore) commentCount(taskID string) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	n := 0
	for _, c := range s.comments {
		if c.TaskID == taskID {
			n++
		}
	}
	return n
}

func (s *memoryStore) writeCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.writes
}

func (s *memoryStore) failNextWrite(err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.failNext = err
}

// memoryTaskRepo はmemoryStoreのタスク側ビュー。
type memoryTaskRepo struct{ *memoryStore }

func (r memoryTaskRepo) FindByID(ctx context.Context, id string) (*model.Task, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.tasks[id], nil
}

func (r memoryTaskRepo) Create(ctx context.Context, t *model.Task) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if err := r.beginWrite(); err != nil {
		return err
	}
	t.ID = r.nextID("task")
	t.CreatedAt = time.Now()
	r.tasks[t.ID] = t
	return nil
}

func (r memoryTaskRepo) ListByOwner(ctx context.Context, ownerID string) ([]*model.Task, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []*model.Task
	for _, t := range r.tasks {
		if t.OwnerID == ownerID {
			out = append(out, t)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.After(out[j].CreatedAt) })
	return out, nil
}

func (r memoryTaskRepo) DeleteByID(ctx context.Context, id string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if err := r.beginWrite(); err != nil {
		return err
	}
	if _, ok := r.tasks[id]; !ok {
		return repository.ErrNotFound
	}
	delete(r.tasks, id)
	return nil
}

// memoryCommentRepo はmemoryStoreのコメント側ビュー。
type memoryCommentRepo struct{ *memoryStore }

func (r memoryCommentRepo) FindByID(ctx context.Context, id string) (*model.Comment, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.comments[id], nil
}

func (r memoryCommentRepo) ListByTaskID(ctx context.Context, taskID string) ([]*model.Comment, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []*model.Comment
	for _, c := range r.comments {
		if c.TaskID == taskID {
			out = append(out, c)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (r memoryCommentRepo) Create(ctx context.Context, c *model.Comment) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if err := r.beginWrite(); err != nil {
		return err
	}
	c.ID = r.nextID("comment")
	c.CreatedAt = time.Now()
	r.comments[c.ID] = c
	return nil
}

func (r memoryCommentRepo) DeleteByID(ctx context.Context, id string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if err := r.beginWrite(); err != nil {
		return err
	}
	if _, ok := r.comments[id]; !ok {
		return repository.ErrNotFound
	}
	delete(r.comments, id)
	return nil
}

// --- compile-time interface checks ---
var _ AuthServiceInterface = (*mockAuthService)(nil)
var _ TaskServiceInterface = (*mockTaskService)(nil)
var _ TaskServiceInterface = (*task.Service)(nil)
var _ auth.SessionProvider = (*mockSessions)(nil)
var _ SessionIDReader = (*mockSessions)(nil)
var _ repository.TaskRepository = memoryTaskRepo{}
var _ repository.CommentRepository = memoryCommentRepo{}

// --- テスト用ルーター ---

const testCSRFToken = "test-csrf-token"

var (
	userU1 = &model.UserIdentity{ID: "u1", Email: "alice@example.com", Name: "Alice"}
	userU2 = &model.UserIdentity{ID: "u2", Email: "bob@example.com", Name: "Bob"}
)

// testSessions はセッションCookie "s-u1" / "s-u2" をそれぞれu1 / u2に解決する。
func testSessions() *mockSessions {
	return &mockSessions{users: map[string]*model.UserIdentity{
		"s-u1": userU1,
		"s-u2": userU2,
	}}
}

// newTestRouter はテスト用の完全なルーターを構築する。
func newTestRouter(t *testing.T, svc TaskServiceInterface, sessions *mockSessions) http.Handler {
	t.Helper()

	rl := middleware.NewRateLimiter(middleware.NewRateLimiterConfig(6000, 6000))
	t.Cleanup(rl.Stop)

	return NewRouter(&RouterDeps{
		SessionProvider: sessions,
		RateLimiter:     rl,
		AuthService:     &mockAuthService{},
		SessionTokens:   &mockTokenEncoder{},
		SessionIDs:      sessions,
		AuthConfig:      AuthHandlerConfig{BaseURL: "http://localhost:8080", SessionMaxAge: 86400},
		TaskService:     svc,
		Renderer:        MustNewRenderer(),
	})
}

// newServiceRouter は実際のtask.Serviceとインメモリストアでルーターを構築する。
func newServiceRouter(t *testing.T) (http.Handler, *memoryStore) {
	t.Helper()
	store := newMemoryStore()
	svc := task.NewService(memoryTaskRepo{store}, memoryCommentRepo{store}, nil)
	return newTestRouter(t, svc, testSessions()), store
}

// doGet はセッションCookie付きでGETリクエストを送る。sessionが空なら未ログイン。
func doGet(h http.Handler, path, session string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(http.MethodGet, path, nil)
	if session != "" {
		req.AddCookie(&http.Cookie{Name: auth.SessionCookieName, Value: session})
	}
	w := httptest.NewRecorder()
	h.ServeHTTP(w, req)
	return w
}

// doPostForm はCSRFトークン付きでフォームを送信する。
func doPostForm(h http.Handler, path, session string, values url.Values) *httptest.ResponseRecorder {
	if values == nil {
		values = url.Values{}
	}
	values.Set(middleware.CSRFFormField, testCSRFToken)

	req := httptest.NewRequest(http.MethodPost, path, strings.NewReader(values.Encode()))
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	req.AddCookie(&http.Cookie{Name: "csrf_token", Value: testCSRFToken})
	if session != "" {
		req.AddCookie(&http.Cookie{Name: auth.SessionCookieName, Value: session})
	}
	w := httptest.NewRecorder()
	h.ServeHTTP(w, req)
	return w
}

// doJSON はCSRFヘッダー付きでJSON APIを呼び出す。
func doJSON(h http.Handler, method, path, session, body string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(method, path, strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("X-CSRF-Token", testCSRFToken)
	req.AddCookie(&http.Cookie{Name: "csrf_token", Value: testCSRFToken})
	if session != "" {
		req.AddCookie(&http.Cookie{Name: auth.SessionCookieName, Value: session})
	}
	w := httptest.NewRecorder()
	h.ServeHTTP(w, req)
	return w
}

// httptestFormRequest はCSRFトークンを付けないフォームリクエストを生成する。
func httptestFormRequest(path string, values url.Values) *http.Request {
	req := httptest.NewRequest(http.MethodPost, path, strings.NewReader(values.Encode()))
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	return req
}

func serveRequest(h http.Handler, req *http.Request) *httptest.ResponseRecorder {
	w := httptest.NewRecorder()
	h.ServeHTTP(w, req)
	return w
}
