package encryption

import (
	"strings"
	"testing"

	"golang.org/x/crypto/bcrypt"
)

func TestHashVerify(t *testing.T) {
	s := NewService(bcrypt.MinCost)

	hash, err := s.Hash("password123")
	if err != nil {
		t.Fatalf("hash: %v", err)
	}
	if hash == "password123" {
		t.Fatal("hash must not equal the plain text")
	}

	testCases := []struct {
		input    string
		expected bool
	}{
		{input: "password123", expected: true},
		{input: "password124", expected: false},
		{input: "", expected: false},
	}
	for _, tc := range testCases {
		if got := s.Verify(hash, tc.input); got != tc.expected {
			t.Errorf("Verify(%q) = %v, want %v", tc.input, got, tc.expected)
		}
	}
}

func TestHashSecretLongInput(t *testing.T) {
	s := NewService(bcrypt.MinCost)

	// два секрета, различающиеся только после 72-го байта
	prefix := strings.Repeat("a", 100)
	first, second := prefix+"first", prefix+"second"

	hash, err := s.HashSecret(first)
	if err != nil {
		t.Fatalf("hash secret: %v", err)
	}
	if !s.VerifySecret(hash, first) {
		t.Error("expected the original secret to verify")
	}
	if s.VerifySecret(hash, second) {
		t.Error("secrets differing past 72 bytes must not verify")
	}
}

func TestRandomToken(t *testing.T) {
	a, err := RandomToken(32)
	if err != nil {
		t.Fatalf("random token: %v", err)
	}
	b, _ := RandomToken(32)

	if len(a) != 64 {
		t.Errorf("expected 64 hex chars, got %d", len(a))
	}
	if a == b {
		t.Error("expected distinct tokens")
	}
}

func TestNewServiceInvalidCost(t *testing.T) {
	if s := NewService(100); s.cost != bcrypt.DefaultCost {
		t.Errorf("expected default cost, got %d", s.cost)
	}
}
