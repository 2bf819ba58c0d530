package session

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"

	"github.com/hitoshi/signbook/internal/model"
)

// Claims はクライアント保持型セッションのJWTクレーム。
type Claims struct {
	jwt.RegisteredClaims
	Role   string `json:"role"`
	UserID int64  `json:"uid,omitempty"`
}

// RevocationList はログアウト済みトークンのIDを有効期限まで保持する。
// repository.RevokedSessionRepositoryが満たす。
type RevocationList interface {
	Revoke(ctx context.Context, id string, expiresAt time.Time) error
	IsRevoked(ctx context.Context, id string) (bool, error)
}

// JWTStore はHS256で署名したJWTをCookieに格納するStore。
// セッション本体はサーバーに保存せず、ログアウトしたトークンのIDだけをRevocationListに記録する。
type JWTStore struct {
	secret  []byte
	revoked RevocationList
}

// NewJWTStore はJWTStoreを生成する。
func NewJWTStore(secret string, revoked RevocationList) (*JWTStore, error) {
	if secret == "" {
		return nil, errors.New("session secret is required")
	}
	if revoked == nil {
		return nil, errors.New("revocation list is required")
	}
	return &JWTStore{secret: []byte(secret), revoked: revoked}, nil
}

// Save はセッションを署名済みトークンに変換する。
func (s *JWTStore) Save(_ context.Context, sess *model.Session) (string, error) {
	sess.ID = uuid.NewString()

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, Claims{
		RegisteredClaims: jwt.RegisteredClaims{
			ID:        sess.ID,
			IssuedAt:  jwt.NewNumericDate(sess.CreatedAt),
			ExpiresAt: jwt.NewNumericDate(sess.ExpiresAt),
		},
		Role:   string(sess.Role),
		UserID: sess.UserID,
	})

	signed, err := token.SignedString(s.secret)
	if err != nil {
		return "", fmt.Errorf("failed to sign session token: %w", err)
	}
	return signed, nil
}

// Load はトークンの署名・有効期限・失効状態を検証してセッションを復元する。
func (s *JWTStore) Load(ctx context.Context, token string) (*model.Session, error) {
	claims, ok := s.parse(token)
	if !ok {
		return nil, nil
	}

	revoked, err := s.revoked.IsRevoked(ctx, claims.ID)
	if err != nil {
		return nil, err
	}
	if revoked {
		return nil, nil
	}

	sess := &model.Session{
		ID:        claims.ID,
		Role:      model.Role(claims.Role),
		UserID:    claims.UserID,
		ExpiresAt: claims.ExpiresAt.Time,
	}
	if claims.IssuedAt != nil {
		sess.CreatedAt = claims.IssuedAt.Time
	}
	return sess, nil
}

// Delete はトークンIDを有効期限まで失効済みとして記録する。
// 検証できないトークンはすでに無効なため記録しない。
func (s *JWTStore) Delete(ctx context.Context, token string) error {
	claims, ok := s.parse(token)
	if !ok {
		return nil
	}
	return s.revoked.Revoke(ctx, claims.ID, claims.ExpiresAt.Time)
}

// parse は署名・アルゴリズム・有効期限とロールの整合性を検証する。
func (s *JWTStore) parse(token string) (*Claims, bool) {
	claims := &Claims{}
	parsed, err := jwt.ParseWithClaims(token, claims, func(t *jwt.Token) (interface{}, error) {
		return s.secret, nil
	},
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithExpirationRequired(),
	)
	if err != nil || !parsed.Valid || claims.ID == "" {
		return nil, false
	}
	if !validSessionRole(model.Role(claims.Role), claims.UserID) {
		return nil, false
	}
	return claims, true
}

// validSessionRole はセッションとして保存できるロールとユーザーIDの組み合わせかどうかを判定する。
// 匿名訪問者のセッションは保存しない。
func validSessionRole(role model.Role, userID int64) bool {
	if !role.Valid() || role == model.RoleAnonymous {
		return false
	}
	if role == model.RoleOwner {
		return userID == 0
	}
	return userID > 0
}

// compile-time interface check
var _ Store = (*JWTStore)(nil)
