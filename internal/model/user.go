// Package model はドメインモデルを定義する。
package model

import "time"

// DateLayout は生年月日の入出力フォーマット（HTMLのdate入力と同じ）。
const DateLayout = "2006-01-02"

// User は自己登録したユーザーを表す。
type User struct {
	ID           int64     `db:"id"`
	Name         string    `db:"name"`
	DOB          time.Time `db:"dob"`
	Email        string    `db:"email"`
	PasswordHash string    `db:"password_hash"`
	CreatedAt    time.Time `db:"created_at"`
}

// DOBString は生年月日をYYYY-MM-DD形式で返す。
func (u User) DOBString() string {
	return u.DOB.Format(DateLayout)
}

// Role は訪問者の識別状態を表す。
type Role string

const (
	// RoleAnonymous は未ログインの訪問者。
	RoleAnonymous Role = "anonymous"
	// RoleUser は登録ユーザーとしてログイン中の訪問者。
	RoleUser Role = "user"
	// RoleOwner はオーナーとしてログイン中の訪問者。
	RoleOwner Role = "owner"
)

// Valid はRoleが既知の値かどうかを返す。
func (r Role) Valid() bool {
	switch r {
	case RoleAnonymous, RoleUser, RoleOwner:
		return true
	default:
		return false
	}
}

// Session はログインセッションを表す。
// RoleUserの場合のみUserIDが設定され、RoleOwnerの場合は0。
type Session struct {
	ID        string
	Role      Role
	UserID    int64
	ExpiresAt time.Time
	CreatedAt time.Time
}

// Expired はセッションが期限切れかどうかを返す。
func (s *Session) Expired(now time.Time) bool {
	return !now.Before(s.ExpiresAt)
}
