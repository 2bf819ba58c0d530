// Package auth は認証情報の検証とユーザー登録を提供する。
package auth

import (
	"context"
	"fmt"
	"log/slog"
	"net/mail"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/hitoshi/signbook/internal/model"
	"github.com/hitoshi/signbook/internal/repository"
	"github.com/hitoshi/signbook/internal/security"
)

const (
	maxNameLength  = 100
	maxEmailLength = 254
)

// minDOB より前の生年月日は入力誤りとみなす。
var minDOB = time.Date(1900, 1, 1, 0, 0, 0, 0, time.UTC)

// OwnerCredentials はオーナーアカウントの認証情報。
// パスワードはハッシュのみを保持する。
type OwnerCredentials struct {
	Email        string
	PasswordHash string
}

// Principal は認証に成功した主体を表す。
// RoleOwnerの場合UserIDは0。
type Principal struct {
	Role   model.Role
	UserID int64
}

// RegisterInput は登録フォームの入力値。
type RegisterInput struct {
	Name     string
	DOB      string // YYYY-MM-DD
	Email    string
	Password string
}

// Service は登録と認証のビジネスロジックを提供する。
type Service struct {
	users     repository.UserRepository
	hasher    PasswordHasher
	sanitizer security.TextSanitizer
	owner     OwnerCredentials
	// dummyHash は存在しないメールアドレスでも照合処理を行うためのダイジェスト
	dummyHash string
	now       func() time.Time
}

// NewService はServiceを生成する。
func NewService(
	users repository.UserRepository,
	hasher PasswordHasher,
	sanitizer security.TextSanitizer,
	owner OwnerCredentials,
) (*Service, error) {
	dummy, err := hasher.Hash("signbook-timing-equalizer")
	if err != nil {
		return nil, fmt.Errorf("failed to prepare dummy hash: %w", err)
	}

	return &Service{
		users:     users,
		hasher:    hasher,
		sanitizer: sanitizer,
		owner: OwnerCredentials{
			Email:        NormalizeEmail(owner.Email),
			PasswordHash: owner.PasswordHash,
		},
		dummyHash: dummy,
		now:       time.Now,
	}, nil
}

// NormalizeEmail は前後の空白を除去し小文字化する。
// 登録時と検索時の両方で同じ正規化を行う。
func NormalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}

// Register は入力を検証してユーザーを登録し、採番されたIDを返す。
// 登録後のログインは行わない。
func (s *Service) Register(ctx context.Context, in RegisterInput) (int64, error) {
	name := s.sanitizer.Sanitize(in.Name)
	if name == "" {
		return 0, model.NewValidationError("name", "Name is required.")
	}
	if utf8.RuneCountInString(name) > maxNameLength {
		return 0, model.NewValidationError("name", fmt.Sprintf("Name must be at most %d characters.", maxNameLength))
	}

	dob, err := s.parseDOB(in.DOB)
	if err != nil {
		return 0, err
	}

	email, err := validateEmail(in.Email)
	if err != nil {
		return 0, err
	}
	// オーナーのメールアドレスは一般ユーザーとして登録させない
	if email == s.owner.Email {
		return 0, model.NewConflictError()
	}

	digest, err := s.hasher.Hash(in.Password)
	if err != nil {
		if model.HasCode(err, model.ErrCodeValidation) {
			return 0, err
		}
		return 0, fmt.Errorf("failed to hash password: %w", err)
	}

	id, err := s.users.Create(ctx, &model.User{
		Name:         name,
		DOB:          dob,
		Email:        email,
		PasswordHash: digest,
	})
	if err != nil {
		return 0, err
	}

	slog.Info("user registered", slog.Int64("user_id", id))
	return id, nil
}

// Authenticate はメールアドレスとパスワードを検証する。
// オーナーを先に判定し、該当しなければ登録ユーザーとして照合する。
// 失敗理由にかかわらず同一のAuthErrorを返し、どの経路でも照合は1回だけ行う。
func (s *Service) Authenticate(ctx context.Context, email, password string) (Principal, error) {
	email = NormalizeEmail(email)
	if email == "" || password == "" {
		s.hasher.Verify(password, s.dummyHash)
		return Principal{}, model.NewAuthError()
	}

	// オーナーのメールアドレスはユーザー登録できないため、照合に失敗したらユーザー検索は不要
	if email == s.owner.Email {
		if s.hasher.Verify(password, s.owner.PasswordHash) {
			return Principal{Role: model.RoleOwner}, nil
		}
		return Principal{}, model.NewAuthError()
	}

	user, err := s.users.FindByEmail(ctx, email)
	if err != nil {
		return Principal{}, err
	}
	if user == nil {
		// 照合時間からメールアドレスの存在有無を推測されないようにする
		s.hasher.Verify(password, s.dummyHash)
		return Principal{}, model.NewAuthError()
	}
	if !s.hasher.Verify(password, user.PasswordHash) {
		return Principal{}, model.NewAuthError()
	}

	return Principal{Role: model.RoleUser, UserID: user.ID}, nil
}

func (s *Service) parseDOB(raw string) (time.Time, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return time.Time{}, model.NewValidationError("dob", "Date of birth is required.")
	}
	dob, err := time.Parse(model.DateLayout, raw)
	if err != nil {
		return time.Time{}, model.NewValidationError("dob", "Date of birth must be a date (YYYY-MM-DD).")
	}
	if dob.After(s.now()) {
		return time.Time{}, model.NewValidationError("dob", "Date of birth must not be in the future.")
	}
	if dob.Before(minDOB) {
		return time.Time{}, model.NewValidationError("dob", "Date of birth is out of range.")
	}
	return dob, nil
}

func validateEmail(raw string) (string, error) {
	email := NormalizeEmail(raw)
	if email == "" {
		return "", model.NewValidationError("email", "Email is required.")
	}
	if len(email) > maxEmailLength {
		return "", model.NewValidationError("email", "Email is too long.")
	}
	addr, err := mail.ParseAddress(email)
	if err != nil || addr.Address != email {
		return "", model.NewValidationError("email", "Email address is not valid.")
	}
	return email, nil
}
