// Package model はドメインモデルを定義する。
package model

import (
	"errors"
	"fmt"
)

// APIError は統一エラーフォーマットを表す。
// UIに表示する原因カテゴリと対処方法を含む。
type APIError struct {
	Code     string // エラーコード
	Message  string // エラーメッセージ
	Category string // カテゴリ: auth, validation, system
	Action   string // ユーザー向け対処方法
	Field    string // バリデーションエラーの対象フィールド（任意）
	Cause    error  // 内部原因。ログ専用でクライアントには返さない
}

// Error はerrorインターフェースを実装する。
func (e *APIError) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("[%s] %s: %v", e.Code, e.Message, e.Cause)
	}
	return fmt.Sprintf("[%s] %s", e.Code, e.Message)
}

// Unwrap は内部原因を返す。
func (e *APIError) Unwrap() error {
	return e.Cause
}

// 定義済みエラーコード
const (
	ErrCodeValidation = "VALIDATION_ERROR"
	ErrCodeConflict   = "CONFLICT"
	ErrCodeAuth       = "AUTH_FAILED"
	ErrCodeForbidden  = "FORBIDDEN"
	ErrCodeRateLimit  = "RATE_LIMITED"
	ErrCodeStorage    = "STORAGE_ERROR"
)

// HasCode はerrのチェーン中に指定コードのAPIErrorが含まれるかを返す。
func HasCode(err error, code string) bool {
	var apiErr *APIError
	return errors.As(err, &apiErr) && apiErr.Code == code
}

// NewValidationError はフォーム入力の検証エラーを生成する。
func NewValidationError(field, message string) *APIError {
	return &APIError{
		Code:     ErrCodeValidation,
		Message:  message,
		Category: "validation",
		Action:   "Check the highlighted field and submit again.",
		Field:    field,
	}
}

// NewConflictError はメールアドレス重複エラーを生成する。
func NewConflictError() *APIError {
	return &APIError{
		Code:     ErrCodeConflict,
		Message:  "Registration failed. Email may already exist.",
		Category: "validation",
		Action:   "Use another email address or log in.",
		Field:    "email",
	}
}

// NewAuthError は認証失敗エラーを生成する。
// メールアドレスの存在有無を推測できないよう、原因にかかわらず同一のメッセージを返す。
func NewAuthError() *APIError {
	return &APIError{
		Code:     ErrCodeAuth,
		Message:  "Incorrect credentials.",
		Category: "auth",
		Action:   "Check your email and password.",
	}
}

// NewAuthorizationError は権限不足エラーを生成する。
func NewAuthorizationError() *APIError {
	return &APIError{
		Code:     ErrCodeForbidden,
		Message:  "Access Denied",
		Category: "auth",
		Action:   "Log in as the owner.",
	}
}

// NewRateLimitError はログイン試行回数超過エラーを生成する。
func NewRateLimitError() *APIError {
	return &APIError{
		Code:     ErrCodeRateLimit,
		Message:  "Too many login attempts. Please try again later.",
		Category: "system",
		Action:   "Wait a minute and try again.",
	}
}

// NewStorageError はデータベース障害エラーを生成する。
// causeはログにのみ出力する。
func NewStorageError(cause error) *APIError {
	return &APIError{
		Code:     ErrCodeStorage,
		Message:  "Something went wrong. Please try again later.",
		Category: "system",
		Action:   "Wait a minute and try again.",
		Cause:    cause,
	}
}
