// Package handler はHTTPハンドラーを提供する。
package handler

import (
	"bytes"
	"embed"
	"html/template"
	"log/slog"
	"net/http"

	"github.com/hitoshi/signbook/internal/middleware"
	"github.com/hitoshi/signbook/internal/model"
	"github.com/hitoshi/signbook/internal/session"
)

// ページテンプレート名
const (
	pageRegister  = "register.html"
	pageLogin     = "login.html"
	pageDashboard = "dashboard.html"
	pageUser      = "user.html"
	pageError     = "error.html"
)

//go:embed templates/*.html
var templateFS embed.FS

// pages はページ名ごとにbase.htmlと組み合わせてパース済みのテンプレート。
var pages = mustParsePages(pageRegister, pageLogin, pageDashboard, pageUser, pageError)

func mustParsePages(names ...string) map[string]*template.Template {
	m := make(map[string]*template.Template, len(names))
	for _, name := range names {
		m[name] = template.Must(template.ParseFS(templateFS, "templates/base.html", "templates/"+name))
	}
	return m
}

// FormValues はフォーム再表示用の入力値。パスワードは保持しない。
type FormValues struct {
	Name  string
	DOB   string
	Email string
}

// PageData はテンプレートに渡す値。
type PageData struct {
	Title     string
	Error     string
	Notice    string
	CSRFToken string
	Identity  session.Identity
	Form      FormValues
	User      *model.User
	Users     []model.User

	MaintenanceLinks bool
}

// render はテンプレートをバッファに描画してからステータスと共に書き込む。
// 描画に失敗した場合は途中までのHTMLを送らずに500を返す。
func render(w http.ResponseWriter, r *http.Request, status int, page string, data PageData) {
	tmpl, ok := pages[page]
	if !ok {
		slog.Error("unknown page template", slog.String("page", page))
		http.Error(w, http.StatusText(http.StatusInternalServerError), http.StatusInternalServerError)
		return
	}

	data.CSRFToken = middleware.CSRFTokenFromContext(r.Context())
	data.Identity = middleware.IdentityFromContext(r.Context())

	var buf bytes.Buffer
	if err := tmpl.ExecuteTemplate(&buf, "base", data); err != nil {
		slog.Error("failed to render page",
			slog.String("page", page),
			slog.String("error", err.Error()),
			slog.String("request_id", middleware.RequestIDFromContext(r.Context())),
		)
		http.Error(w, http.StatusText(http.StatusInternalServerError), http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.Header().Set("Cache-Control", "no-store")
	w.WriteHeader(status)
	_, _ = buf.WriteTo(w)
}

// renderError は汎用エラーページを描画する。
// StorageErrorなどの内部原因はログにのみ出力し、ページには定型メッセージを表示する。
func renderError(w http.ResponseWriter, r *http.Request, err error) {
	status := middleware.StatusForError(err)
	apiErr := model.NewStorageError(err)
	if status != http.StatusInternalServerError {
		apiErr = asAPIError(err)
	}

	if status >= http.StatusInternalServerError {
		slog.Error("request failed",
			slog.String("path", r.URL.Path),
			slog.String("error", err.Error()),
			slog.String("request_id", middleware.RequestIDFromContext(r.Context())),
		)
	}

	render(w, r, status, pageError, PageData{
		Title: http.StatusText(status),
		Error: apiErr.Message,
	})
}
