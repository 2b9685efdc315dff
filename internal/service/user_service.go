package service

import (
	"context"
	"errors"

	"clouddrive/internal/domain"
	"clouddrive/internal/repository"
)

const (
	defaultPageLimit = 10
	maxPageLimit     = 100
)

type UserService struct {
	users *repository.UserRepository
}

func NewUserService(users *repository.UserRepository) *UserService {
	return &UserService{users: users}
}

func (s *UserService) lookup(ctx context.Context, get func(context.Context, string) (*domain.User, error), key string) (*domain.User, error) {
	user, err := get(ctx, key)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, domain.NotFound(msgUserNotFound)
		}
		return nil, domain.Internal("failed to load user", err)
	}
	return user, nil
}

func (s *UserService) Me(ctx context.Context, userID string) (*domain.User, error) {
	return s.lookup(ctx, s.users.GetByID, userID)
}

func (s *UserService) ByUsername(ctx context.Context, username string) (*domain.User, error) {
	return s.lookup(ctx, s.users.GetByUsername, username)
}

// List возвращает страницу пользователей. Доступно только администраторам.
func (s *UserService) List(ctx context.Context, role domain.Role, page, limit int) (*domain.UserPage, error) {
	if role != domain.RoleAdmin {
		return nil, domain.Forbidden("Forbidden resource")
	}

	if page < 1 {
		page = 1
	}
	if limit < 1 {
		limit = defaultPageLimit
	}
	if limit > maxPageLimit {
		limit = maxPageLimit
	}

	users, err := s.users.List(ctx, limit, (page-1)*limit)
	if err != nil {
		return nil, domain.Internal("failed to list users", err)
	}
	total, err := s.users.Count(ctx)
	if err != nil {
		return nil, domain.Internal("failed to count users", err)
	}

	return &domain.UserPage{Users: users, Page: page, Limit: limit, Total: total}, nil
}

// SetRole меняет роль пользователя по почте.
func (s *UserService) SetRole(ctx context.Context, email string, role domain.Role) (*domain.User, error) {
	if !role.Valid() {
		return nil, domain.Validation("role must be USER or ADMIN")
	}
	user, err := s.lookup(ctx, s.users.GetByEmail, normalizeEmail(email))
	if err != nil {
		return nil, err
	}
	if err := s.users.UpdateRole(ctx, user.ID, role); err != nil {
		return nil, domain.Internal("failed to update role", err)
	}
	user.Role = role
	return user, nil
}
