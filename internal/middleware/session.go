// Package middleware はHTTPミドルウェアを提供する。
package middleware

import (
	"context"
	"log/slog"
	"net/http"

	"github.com/hitoshi/signbook/internal/model"
	"github.com/hitoshi/signbook/internal/session"
)

// contextKey はコンテキストに値を格納するための型安全なキー。
type contextKey string

// identityContextKey はリクエストコンテキストに識別状態を格納するためのキー。
var identityContextKey = contextKey("identity")

// IdentityResolver はリクエストから訪問者の識別状態を解決する。
// session.Managerが実装する。
type IdentityResolver interface {
	Current(r *http.Request) (session.Identity, error)
}

// NewSessionMiddleware はCookieからセッションを解決し、
// 識別状態をリクエストコンテキストに注入するミドルウェアを返す。
// 匿名リクエストも拒否せずに通過させる。認可はRequireOwner/RequireUserが行う。
func NewSessionMiddleware(resolver IdentityResolver) func(next http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			id, err := resolver.Current(r)
			if err != nil {
				// ストア障害時は匿名として扱い、保護ページはログインへ誘導される
				slog.Error("failed to resolve session",
					slog.String("error", err.Error()),
					slog.String("request_id", RequestIDFromContext(r.Context())),
				)
			}

			annotateIdentity(r.Context(), id)
			ctx := ContextWithIdentity(r.Context(), id)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// RequireOwner はオーナー以外を/loginへリダイレクトするミドルウェアを返す。
func RequireOwner(loginPath string) func(next http.Handler) http.Handler {
	return requireRole(loginPath, session.Identity.IsOwner)
}

// RequireUser は登録ユーザー以外を/loginへリダイレクトするミドルウェアを返す。
func RequireUser(loginPath string) func(next http.Handler) http.Handler {
	return requireRole(loginPath, session.Identity.IsUser)
}

func requireRole(loginPath string, allowed func(session.Identity) bool) func(next http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if !allowed(IdentityFromContext(r.Context())) {
				http.Redirect(w, r, loginPath, http.StatusSeeOther)
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

// IdentityFromContext はリクエストコンテキストから識別状態を取得する。
// セッションミドルウェアを通過していない場合は匿名を返す。
func IdentityFromContext(ctx context.Context) session.Identity {
	if id, ok := ctx.Value(identityContextKey).(session.Identity); ok {
		return id
	}
	return session.Identity{Role: model.RoleAnonymous}
}

// ContextWithIdentity はコンテキストに識別状態を注入する。
// テストやミドルウェア以外のコンテキスト生成で使用する。
func ContextWithIdentity(ctx context.Context, id session.Identity) context.Context {
	return context.WithValue(ctx, identityContextKey, id)
}
