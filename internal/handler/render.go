package handler

import (
	"bytes"
	"embed"
	"fmt"
	"html/template"
	"log/slog"
	"net/http"
	"net/url"
	"time"

	"github.com/hitoshi/taskboard/internal/form"
	"github.com/hitoshi/taskboard/internal/middleware"
	"github.com/hitoshi/taskboard/internal/model"
)

//go:embed templates/*.html
var templateFS embed.FS

// ページ名（templates/ 配下のファイル名）
const (
	pageHome      = "home.html"
	pageDashboard = "dashboard.html"
	pageTask      = "task.html"
	pageError     = "error.html"
)

// pageData はレイアウトに渡す描画データ。
type pageData[V any] struct {
	Viewer    *model.UserIdentity
	CSRFToken string
	// LoginURL はログイン後に今のページへ戻るログインリンク。
	LoginURL string
	View     V
}

// Renderer はHTMLページを描画する。
// ページごとにレイアウトと組み合わせたテンプレートを起動時に1回だけ解析する。
type Renderer struct {
	pages map[string]*template.Template
}

var templateFuncs = template.FuncMap{
	"formatDate": func(t time.Time) string { return t.Format("Jan 2, 2006") },
	"isoDate":    func(t time.Time) string { return t.Format("2006-01-02") },
	"canDelete":  form.CanDelete,
}

// NewRenderer は埋め込みテンプレートを解析してRendererを生成する。
func NewRenderer() (*Renderer, error) {
	r := &Renderer{pages: make(map[string]*template.Template)}
	for _, name := range []string{pageHome, pageDashboard, pageTask, pageError} {
		tmpl, err := template.New(name).Funcs(templateFuncs).ParseFS(templateFS, "templates/layout.html", "templates/"+name)
		if err != nil {
			return nil, fmt.Errorf("failed to parse template %s: %w", name, err)
		}
		r.pages[name] = tmpl
	}
	return r, nil
}

// MustNewRenderer はNewRendererのエラー時にpanicする版。
func MustNewRenderer() *Renderer {
	r, err := NewRenderer()
	if err != nil {
		panic(err)
	}
	return r
}

// render はページをバッファに描画してから書き込む。描画に失敗した場合はエラーページを返す。
func render[V any](rd *Renderer, w http.ResponseWriter, r *http.Request, status int, name string, viewer *model.UserIdentity, view V) {
	data := &pageData[V]{
		Viewer:    viewer,
		CSRFToken: middleware.CSRFTokenFromContext(r.Context()),
		LoginURL:  loginPath + "?" + url.Values{nextParam: {r.URL.RequestURI()}}.Encode(),
		View:      view,
	}

	var buf bytes.Buffer
	if err := rd.pages[name].ExecuteTemplate(&buf, "layout", data); err != nil {
		slog.Error("failed to render page",
			slog.String("page", name),
			slog.String("path", r.URL.Path),
			slog.String("error", err.Error()),
		)
		if name != pageError {
			rd.renderError(w, r, viewer)
			return
		}
		http.Error(w, "internal server error", http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.WriteHeader(status)
	if _, err := buf.WriteTo(w); err != nil {
		slog.Warn("failed to write page",
			slog.String("page", name),
			slog.String("path", r.URL.Path),
			slog.String("error", err.Error()),
		)
	}
}

// renderError はストア障害などで描画できない場合の500ページを返す。
func (rd *Renderer) renderError(w http.ResponseWriter, r *http.Request, viewer *model.UserIdentity) {
	render(rd, w, r, http.StatusInternalServerError, pageError, viewer, struct{}{})
}
