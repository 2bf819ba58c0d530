package auth

import (
	"strings"
	"testing"

	"golang.org/x/crypto/bcrypt"

	"github.com/hitoshi/signbook/internal/model"
)

func TestBcryptHasher_HashAndVerify(t *testing.T) {
	h := NewBcryptHasher(bcrypt.MinCost)

	digest, err := h.Hash("correct horse")
	if err != nil {
		t.Fatalf("Hash failed: %v", err)
	}
	if digest == "correct horse" {
		t.Fatal("digest must not equal plaintext")
	}
	if !h.Verify("correct horse", digest) {
		t.Error("Verify should accept the original password")
	}
	if h.Verify("wrong horse", digest) {
		t.Error("Verify should reject a different password")
	}
}

func TestBcryptHasher_Hash_Salted(t *testing.T) {
	h := NewBcryptHasher(bcrypt.MinCost)

	a, err := h.Hash("same-password")
	if err != nil {
		t.Fatalf("Hash failed: %v", err)
	}
	b, err := h.Hash("same-password")
	if err != nil {
		t.Fatalf("Hash failed: %v", err)
	}
	if a == b {
		t.Error("two hashes of the same password should differ")
	}
	if !h.Verify("same-password", a) || !h.Verify("same-password", b) {
		t.Error("both digests should verify")
	}
}

func TestBcryptHasher_Hash_InvalidInput(t *testing.T) {
	h := NewBcryptHasher(bcrypt.MinCost)

	tests := []struct {
		name     string
		password string
	}{
		{"empty", ""},
		{"too long", strings.Repeat("a", 73)},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := h.Hash(tt.password)
			if !model.HasCode(err, model.ErrCodeValidation) {
				t.Errorf("expected validation error, got %v", err)
			}
		})
	}
}

func TestBcryptHasher_Verify_MalformedDigest(t *testing.T) {
	h := NewBcryptHasher(bcrypt.MinCost)

	for _, digest := range []string{"", "plaintext-password", "$2a$10$short", "$argon2id$v=19$m=65536"} {
		if h.Verify("plaintext-password", digest) {
			t.Errorf("Verify should return false for malformed digest %q", digest)
		}
	}
}

func TestBcryptHasher_NeedsRehash(t *testing.T) {
	low := NewBcryptHasher(bcrypt.MinCost)
	digest, err := low.Hash("password")
	if err != nil {
		t.Fatalf("Hash failed: %v", err)
	}

	if low.NeedsRehash(digest) {
		t.Error("digest with the configured cost should not need rehash")
	}
	if !NewBcryptHasher(bcrypt.MinCost + 1).NeedsRehash(digest) {
		t.Error("digest with a different cost should need rehash")
	}
	if !low.NeedsRehash("not-a-bcrypt-digest") {
		t.Error("malformed digest should need rehash")
	}
}

func TestNewBcryptHasher_OutOfRangeCost(t *testing.T) {
	if got := NewBcryptHasher(0).Cost(); got != bcrypt.DefaultCost {
		t.Errorf("Cost() = %d, want %d", got, bcrypt.DefaultCost)
	}
	if got := NewBcryptHasher(99).Cost(); got != bcrypt.DefaultCost {
		t.Errorf("Cost() = %d, want %d", got, bcrypt.DefaultCost)
	}
}
