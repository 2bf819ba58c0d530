package handler

import (
	"context"
	"crypto/subtle"
	"encoding/json"
	"log/slog"
	"net/http"

	"github.com/hitoshi/signbook/internal/middleware"
	"github.com/hitoshi/signbook/internal/model"
)

// MaintenanceServiceInterface はメンテナンスハンドラーが必要とするサービスインターフェース。
type MaintenanceServiceInterface interface {
	PrintUsers(ctx context.Context) (int, error)
	DeleteAllUsers(ctx context.Context) (int64, error)
}

// MaintenanceGuard はメンテナンス操作を許可するかどうかを判定する。
type MaintenanceGuard func(r *http.Request) bool

// SecretGuard はクエリパラメータsecretが共有シークレットと一致する場合に許可する。
// ブラウザのセッションとは独立に判定する。シークレットが空の場合は常に拒否する。
func SecretGuard(secret string) MaintenanceGuard {
	return func(r *http.Request) bool {
		if secret == "" {
			return false
		}
		given := r.URL.Query().Get("secret")
		return subtle.ConstantTimeCompare([]byte(given), []byte(secret)) == 1
	}
}

// OwnerSessionGuard はオーナーとしてログイン中の場合に許可する。
// セッションCookieはクロスサイトの遷移でも送信されるため、
// クエリパラメータcsrf_tokenの一致と同一オリジンからの遷移であることも要求する。
func OwnerSessionGuard() MaintenanceGuard {
	return func(r *http.Request) bool {
		if !middleware.IdentityFromContext(r.Context()).IsOwner() {
			return false
		}
		if middleware.IsCrossSiteRequest(r) {
			return false
		}
		return middleware.ValidCSRFQuery(r)
	}
}

// countResponse はメンテナンス操作の結果。
type countResponse struct {
	Count int64 `json:"count"`
}

// AdminHandler はオーナー向けメンテナンス操作のHTTPハンドラー。
type AdminHandler struct {
	service MaintenanceServiceInterface
	guard   MaintenanceGuard
}

// NewAdminHandler はAdminHandlerを生成する。
func NewAdminHandler(service MaintenanceServiceInterface, guard MaintenanceGuard) *AdminHandler {
	return &AdminHandler{
		service: service,
		guard:   guard,
	}
}

// PrintUsers は全ユーザーをサーバーログに出力し、件数を返す。
// GET /print_users
func (h *AdminHandler) PrintUsers(w http.ResponseWriter, r *http.Request) {
	if !h.authorize(w, r) {
		return
	}

	n, err := h.service.PrintUsers(r.Context())
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	writeCount(w, int64(n))
}

// DeleteUsers は全ユーザーを削除し、削除件数を返す。
// GET /delete_users
func (h *AdminHandler) DeleteUsers(w http.ResponseWriter, r *http.Request) {
	if !h.authorize(w, r) {
		return
	}

	n, err := h.service.DeleteAllUsers(r.Context())
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	writeCount(w, n)
}

func (h *AdminHandler) authorize(w http.ResponseWriter, r *http.Request) bool {
	if h.guard != nil && h.guard(r) {
		return true
	}
	slog.Warn("maintenance access denied",
		slog.String("path", r.URL.Path),
		slog.String("ip", middleware.ClientIP(r)),
		slog.String("request_id", middleware.RequestIDFromContext(r.Context())),
	)
	middleware.WriteErrorResponse(w, http.StatusForbidden, model.NewAuthorizationError())
	return false
}

// writeServiceError はサービス層のエラーをJSONで返す。内部原因はログにのみ出力する。
func writeServiceError(w http.ResponseWriter, r *http.Request, err error) {
	status := middleware.StatusForError(err)
	if status >= http.StatusInternalServerError {
		slog.Error("maintenance operation failed",
			slog.String("path", r.URL.Path),
			slog.String("error", err.Error()),
			slog.String("request_id", middleware.RequestIDFromContext(r.Context())),
		)
		middleware.WriteInternalServerError(w)
		return
	}
	middleware.WriteErrorResponse(w, status, asAPIError(err))
}

func writeCount(w http.ResponseWriter, n int64) {
	w.Header().Set("Content-Type", "application/json")
	w.Header().Set("Cache-Control", "no-store")
	json.NewEncoder(w).Encode(countResponse{Count: n})
}
