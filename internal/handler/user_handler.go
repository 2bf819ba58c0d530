package handler

import (
	"context"
	"log/slog"
	"net/http"

	"github.com/hitoshi/signbook/internal/middleware"
	"github.com/hitoshi/signbook/internal/model"
)

// UserServiceInterface はページハンドラーが必要とするサービスインターフェース。
type UserServiceInterface interface {
	ListUsers(ctx context.Context) ([]model.User, error)
	FindUser(ctx context.Context, id int64) (*model.User, error)
}

// SessionClearer はセッションの破棄を行う。
type SessionClearer interface {
	Clear(ctx context.Context, w http.ResponseWriter, r *http.Request) error
}

// UserHandler はログイン後のページを提供するHTTPハンドラー。
type UserHandler struct {
	service  UserServiceInterface
	sessions SessionClearer

	// MaintenanceLinks はダッシュボードにCSRFトークン付きのメンテナンス操作リンクを表示する。
	// メンテナンス操作をオーナーセッションで認可する場合に有効にする。
	MaintenanceLinks bool
}

// NewUserHandler はUserHandlerを生成する。
func NewUserHandler(service UserServiceInterface, sessions SessionClearer) *UserHandler {
	return &UserHandler{
		service:  service,
		sessions: sessions,
	}
}

// Index はロールに応じたページへ303で遷移する。
// GET /
func (h *UserHandler) Index(w http.ResponseWriter, r *http.Request) {
	id := middleware.IdentityFromContext(r.Context())
	switch {
	case id.IsOwner():
		http.Redirect(w, r, pathDashboard, http.StatusSeeOther)
	case id.IsUser():
		http.Redirect(w, r, pathUser, http.StatusSeeOther)
	default:
		http.Redirect(w, r, pathLogin, http.StatusSeeOther)
	}
}

// UserPage はログイン中の登録ユーザー自身の情報を表示する。
// ユーザー行が削除済みの場合はセッションを破棄して/loginへ遷移する。
// GET /user
func (h *UserHandler) UserPage(w http.ResponseWriter, r *http.Request) {
	id := middleware.IdentityFromContext(r.Context())

	u, err := h.service.FindUser(r.Context(), id.UserID)
	if err != nil {
		renderError(w, r, err)
		return
	}
	if u == nil {
		slog.Info("session refers to a deleted user",
			slog.Int64("user_id", id.UserID),
			slog.String("request_id", middleware.RequestIDFromContext(r.Context())),
		)
		if err := h.sessions.Clear(r.Context(), w, r); err != nil {
			slog.Error("failed to clear session", slog.String("error", err.Error()))
		}
		http.Redirect(w, r, pathLogin, http.StatusSeeOther)
		return
	}

	render(w, r, http.StatusOK, pageUser, PageData{
		Title: "My page",
		User:  u,
	})
}

// Dashboard はオーナー向けに全登録ユーザーを一覧表示する。
// GET /dashboard
func (h *UserHandler) Dashboard(w http.ResponseWriter, r *http.Request) {
	users, err := h.service.ListUsers(r.Context())
	if err != nil {
		renderError(w, r, err)
		return
	}

	render(w, r, http.StatusOK, pageDashboard, PageData{
		Title:            "Owner dashboard",
		Users:            users,
		MaintenanceLinks: h.MaintenanceLinks,
	})
}
