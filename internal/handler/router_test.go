package handler

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"testing"
	"time"

	"github.com/hitoshi/taskboard/internal/form"
	"github.com/hitoshi/taskboard/internal/metrics"
	"github.com/hitoshi/taskboard/internal/middleware"
	"github.com/hitoshi/taskboard/internal/model"
	"github.com/prometheus/client_golang/prometheus"
)

type mockHealthChecker struct {
	err error
}

func (m *mockHealthChecker) PingContext(ctx context.Context) error {
	return m.err
}

func TestNewRouter_Health(t *testing.T) {
	tests := []struct {
		name       string
		checker    HealthChecker
		wantStatus int
	}{
		{"no checker", nil, http.StatusOK},
		{"db ok", &mockHealthChecker{}, http.StatusOK},
		{"db down", &mockHealthChecker{err: errors.New("connection refused")}, http.StatusServiceUnavailable},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rl := middleware.NewRateLimiter(middleware.DefaultRateLimiterConfig())
			defer rl.Stop()
			router := NewRouter(&RouterDeps{
				HealthChecker:   tt.checker,
				SessionProvider: testSessions(),
				RateLimiter:     rl,
				TaskService:     &mockTaskService{},
			})

			w := doGet(router, "/health", "")
			if w.Code != tt.wantStatus {
				t.Errorf("status = %d, want %d", w.Code, tt.wantStatus)
			}
		})
	}
}

func TestNewRouter_MetricsEndpoint(t *testing.T) {
	reg := prometheus.NewRegistry()
	collector := metrics.NewCollector(reg)
	rl := middleware.NewRateLimiter(middleware.DefaultRateLimiterConfig())
	defer rl.Stop()

	router := NewRouter(&RouterDeps{
		Gatherer:        reg,
		Metrics:         collector,
		SessionProvider: testSessions(),
		RateLimiter:     rl,
		TaskService:     &mockTaskService{},
	})

	// 非公開タスクへのアクセスでリダイレクトを記録させる
	doGet(router, "/task/missing", "")

	w := doGet(router, "/metrics", "")
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, want %d", w.Code, http.StatusOK)
	}
	body := w.Body.String()
	for _, want := range []string{"taskboard_page_redirects_total", "taskboard_http_status_total"} {
		if !strings.Contains(body, want) {
			t.Errorf("metrics output should contain %q", want)
		}
	}
}

func TestNewRouter_SecurityHeaders(t *testing.T) {
	router := newTestRouter(t, &mockTaskService{}, testSessions())

	w := doGet(router, "/", "")

	if w.Header().Get("X-Frame-Options") != "DENY" {
		t.Error("expected X-Frame-Options header")
	}
	if w.Header().Get("Content-Security-Policy") == "" {
		t.Error("expected Content-Security-Policy header")
	}
}

// TestNewRouter_CORSPreflight はOPTIONSのルートがなくてもプリフライトに応答することを検証する。
func TestNewRouter_CORSPreflight(t *testing.T) {
	rl := middleware.NewRateLimiter(middleware.DefaultRateLimiterConfig())
	defer rl.Stop()
	router := NewRouter(&RouterDeps{
		SessionProvider:    testSessions(),
		RateLimiter:        rl,
		TaskService:        &mockTaskService{},
		CORSAllowedOrigins: []string{"https://app.example.com"},
	})

	req := httptest.NewRequest(http.MethodOptions, "/api/tasks", nil)
	req.Header.Set("Origin", "https://app.example.com")
	req.Header.Set("Access-Control-Request-Method", http.MethodPost)
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)

	if w.Code != http.StatusNoContent {
		t.Errorf("status = %d, want %d", w.Code, http.StatusNoContent)
	}
	if got := w.Header().Get("Access-Control-Allow-Origin"); got != "https://app.example.com" {
		t.Errorf("Access-Control-Allow-Origin = %q", got)
	}
}

func TestNewRouter_PageGETSetsCSRFCookieAndFormField(t *testing.T) {
	router := newTestRouter(t, &mockTaskService{}, testSessions())

	w := doGet(router, "/", "s-u1")

	var token string
	for _, c := range w.Result().Cookies() {
		if c.Name == "csrf_token" {
			token = c.Value
		}
	}
	if token == "" {
		t.Fatal("expected csrf_token cookie")
	}
	if !strings.Contains(w.Body.String(), `value="`+token+`"`) {
		t.Error("rendered form should embed the CSRF token")
	}
}

func TestNewRouter_CommentRateLimit(t *testing.T) {
	rl := middleware.NewRateLimiter(middleware.RateLimiterConfig{
		GeneralRate:     100,
		GeneralBurst:    100,
		CommentRate:     0.001,
		CommentBurst:    1,
		CleanupInterval: time.Minute,
	})
	defer rl.Stop()

	svc := &mockTaskService{
		getTaskFn: func(ctx context.Context, taskID string) (*model.Task, error) {
			return &model.Task{ID: taskID, IsPublic: true, OwnerID: "u1"}, nil
		},
		createCommentFn: func(ctx context.Context, author *model.UserIdentity, taskID string, draft form.CommentDraft) (*model.Comment, error) {
			return &model.Comment{ID: "c1", TaskID: taskID, Text: draft.Text, AuthorID: author.ID}, nil
		},
	}
	router := NewRouter(&RouterDeps{
		SessionProvider: testSessions(),
		RateLimiter:     rl,
		TaskService:     svc,
	})

	if w := doPostForm(router, "/task/t1/comments", "s-u2", url.Values{"text": {"ok"}}); w.Code != http.StatusOK {
		t.Fatalf("first comment: status = %d, want %d", w.Code, http.StatusOK)
	}
	if w := doPostForm(router, "/task/t1/comments", "s-u2", url.Values{"text": {"ok"}}); w.Code != http.StatusTooManyRequests {
		t.Errorf("second comment: status = %d, want %d", w.Code, http.StatusTooManyRequests)
	}
	// ページ閲覧は制限されない
	if w := doGet(router, "/task/t1", "s-u2"); w.Code != http.StatusOK {
		t.Errorf("page view: status = %d, want %d", w.Code, http.StatusOK)
	}
}

func TestNewRouter_CSRFTokenEndpoint(t *testing.T) {
	router := newTestRouter(t, &mockTaskService{}, testSessions())

	w := doGet(router, "/api/csrf-token", "")

	if w.Code != http.StatusOK {
		t.Errorf("status = %d, want %d", w.Code, http.StatusOK)
	}
	if !strings.Contains(w.Body.String(), `"token"`) {
		t.Errorf("body = %s, want token field", w.Body.String())
	}
}
