package middleware

import (
	"context"
	"net"
	"net/http"

	"github.com/tomasen/realip"
)

var clientIPContextKey = contextKey("client_ip")

// NewClientIPMiddleware はクライアントアドレスを解決してコンテキストに格納するミドルウェアを返す。
// trustProxyがtrueの場合はX-Real-IP / X-Forwarded-Forを参照する。
// リバースプロキシを経由しない構成ではヘッダーを偽装できるためfalseにする。
func NewClientIPMiddleware(trustProxy bool) func(next http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ip := resolveClientIP(r, trustProxy)
			ctx := context.WithValue(r.Context(), clientIPContextKey, ip)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// ClientIP はリクエストのクライアントアドレスを返す。
// NewClientIPMiddlewareを通過していない場合はRemoteAddrのホスト部を返す。
func ClientIP(r *http.Request) string {
	if ip, ok := r.Context().Value(clientIPContextKey).(string); ok && ip != "" {
		return ip
	}
	return resolveClientIP(r, false)
}

func resolveClientIP(r *http.Request, trustProxy bool) string {
	if trustProxy {
		if ip := realip.FromRequest(r); ip != "" {
			return ip
		}
	}
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}
