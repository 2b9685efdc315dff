// Package encryption хеширует пароли и секреты через bcrypt.
package encryption

import (
	"crypto/rand"
	"crypto/sha256"
	"encoding/hex"
	"fmt"

	"golang.org/x/crypto/bcrypt"
)

type Service struct {
	cost int
}

// NewService создает сервис с заданной стоимостью bcrypt;
// cost вне допустимого диапазона заменяется на bcrypt.DefaultCost.
func NewService(cost int) *Service {
	if cost < bcrypt.MinCost || cost > bcrypt.MaxCost {
		cost = bcrypt.DefaultCost
	}
	return &Service{cost: cost}
}

func (s *Service) Hash(plain string) (string, error) {
	hash, err := bcrypt.GenerateFromPassword([]byte(plain), s.cost)
	if err != nil {
		return "", fmt.Errorf("failed to hash: %w", err)
	}
	return string(hash), nil
}

func (s *Service) Verify(hash, plain string) bool {
	return bcrypt.CompareHashAndPassword([]byte(hash), []byte(plain)) == nil
}

// HashSecret хеширует длинный секрет (например refresh JWT). bcrypt
// принимает не больше 72 байт, поэтому сначала берется SHA-256.
func (s *Service) HashSecret(secret string) (string, error) {
	return s.Hash(digest(secret))
}

func (s *Service) VerifySecret(hash, secret string) bool {
	return s.Verify(hash, digest(secret))
}

func digest(secret string) string {
	sum := sha256.Sum256([]byte(secret))
	return hex.EncodeToString(sum[:])
}

// RandomToken возвращает n случайных байт в hex.
func RandomToken(n int) (string, error) {
	buf := make([]byte, n)
	if _, err := rand.Read(buf); err != nil {
		return "", fmt.Errorf("failed to read random bytes: %w", err)
	}
	return hex.EncodeToString(buf), nil
}
