package auth

import (
	"golang.org/x/crypto/bcrypt"

	"github.com/hitoshi/signbook/internal/model"
)

// maxPasswordBytes はbcryptが入力として扱える最大バイト数。
const maxPasswordBytes = 72

// PasswordHasher はパスワードの一方向ハッシュ化と照合を行う。
type PasswordHasher interface {
	// Hash は平文パスワードからソルト付きダイジェストを生成する。
	Hash(plaintext string) (string, error)
	// Verify は平文がダイジェストの元になった入力と一致する場合にtrueを返す。
	// 不正な形式のダイジェストに対してはfalseを返す。
	Verify(plaintext, digest string) bool
}

// BcryptHasher はbcryptによるPasswordHasherの実装。
type BcryptHasher struct {
	cost int
}

// NewBcryptHasher はBcryptHasherを生成する。
// costがbcryptの許容範囲外の場合はbcrypt.DefaultCostを使用する。
func NewBcryptHasher(cost int) *BcryptHasher {
	if cost < bcrypt.MinCost || cost > bcrypt.MaxCost {
		cost = bcrypt.DefaultCost
	}
	return &BcryptHasher{cost: cost}
}

// Cost は設定されたコストを返す。
func (h *BcryptHasher) Cost() int {
	return h.cost
}

// Hash は平文パスワードからbcryptダイジェストを生成する。
// 空のパスワードと72バイトを超えるパスワードはValidationErrorを返す。
func (h *BcryptHasher) Hash(plaintext string) (string, error) {
	if plaintext == "" {
		return "", model.NewValidationError("password", "Password is required.")
	}
	if len(plaintext) > maxPasswordBytes {
		return "", model.NewValidationError("password", "Password must be at most 72 bytes.")
	}

	digest, err := bcrypt.GenerateFromPassword([]byte(plaintext), h.cost)
	if err != nil {
		return "", err
	}
	return string(digest), nil
}

// Verify は平文とダイジェストを照合する。
func (h *BcryptHasher) Verify(plaintext, digest string) bool {
	if digest == "" {
		return false
	}
	return bcrypt.CompareHashAndPassword([]byte(digest), []byte(plaintext)) == nil
}

// NeedsRehash はダイジェストのコストが現在の設定と異なる場合にtrueを返す。
// bcryptとして解釈できないダイジェストもtrueになる。
func (h *BcryptHasher) NeedsRehash(digest string) bool {
	cost, err := bcrypt.Cost([]byte(digest))
	if err != nil {
		return true
	}
	return cost != h.cost
}

// compile-time interface check
var _ PasswordHasher = (*BcryptHasher)(nil)
