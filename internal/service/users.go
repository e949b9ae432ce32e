package service

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/google/uuid"

	"github.com/mkozyreva/accounts-service/internal/models"
	"github.com/mkozyreva/accounts-service/internal/storage"
)

const (
	defaultListLimit = 50
	maxListLimit     = 200
)

// ProfileUpdateInput — изменяемые пользователем поля профиля.
// nil-указатель означает "поле не трогать".
type ProfileUpdateInput struct {
	Username  *string
	FirstName *string
	LastName  *string
}

// AdminUpdateInput — поля, изменяемые администратором.
type AdminUpdateInput struct {
	Role   *models.Role
	Active *bool
}

// ProfileByID возвращает профиль пользователя.
func (s *Service) ProfileByID(ctx context.Context, userID uuid.UUID) (*models.User, error) {
	const op = "service.users.ProfileByID"

	user, err := s.storage.UserByID(ctx, userID)
	if err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			return nil, fmt.Errorf("%s: %w", op, ErrNotFound)
		}

		return nil, fmt.Errorf("%s: %w", op, err)
	}

	return user, nil
}

// UpdateProfile применяет пользовательский патч профиля.
func (s *Service) UpdateProfile(ctx context.Context, userID uuid.UUID, in ProfileUpdateInput) (*models.User, error) {
	const op = "service.users.UpdateProfile"

	patch := storage.ProfilePatch{}

	if in.Username != nil {
		username, err := validateUsername(*in.Username)
		if err != nil {
			return nil, fmt.Errorf("%s: %w", op, err)
		}
		patch.Username = &username
	}

	if in.FirstName != nil {
		name := strings.TrimSpace(*in.FirstName)
		if name == "" {
			return nil, fmt.Errorf("%s: %w", op, ErrInvalidName)
		}
		patch.FirstName = &name
	}

	if in.LastName != nil {
		name := strings.TrimSpace(*in.LastName)
		if name == "" {
			return nil, fmt.Errorf("%s: %w", op, ErrInvalidName)
		}
		patch.LastName = &name
	}

	if patch.Username == nil && patch.FirstName == nil && patch.LastName == nil {
		return nil, fmt.Errorf("%s: %w", op, ErrInvalidArgument)
	}

	user, err := s.storage.UpdateProfile(ctx, userID, patch)
	if err != nil {
		switch {
		case errors.Is(err, storage.ErrNotFound):
			return nil, fmt.Errorf("%s: %w", op, ErrNotFound)
		case errors.Is(err, storage.ErrUsernameExists):
			return nil, fmt.Errorf("%s: %w", op, ErrUsernameTaken)
		}

		return nil, fmt.Errorf("%s: %w", op, err)
	}

	return user, nil
}

// DeactivateAccount — самодеактивация: учётная запись помечается
// неактивной, данные не удаляются.
func (s *Service) DeactivateAccount(ctx context.Context, userID uuid.UUID) error {
	const op = "service.users.DeactivateAccount"

	if err := s.storage.SetActive(ctx, userID, false); err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			return fmt.Errorf("%s: %w", op, ErrNotFound)
		}

		return fmt.Errorf("%s: %w", op, err)
	}

	return nil
}

// ListUsers возвращает страницу пользователей (административная операция).
func (s *Service) ListUsers(ctx context.Context, limit, offset int) ([]models.User, error) {
	const op = "service.users.ListUsers"

	if limit <= 0 {
		limit = defaultListLimit
	}
	if limit > maxListLimit {
		limit = maxListLimit
	}
	if offset < 0 {
		offset = 0
	}

	users, err := s.storage.ListUsers(ctx, limit, offset)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	return users, nil
}

// AdminUpdateUser применяет административный патч (роль/активность).
func (s *Service) AdminUpdateUser(ctx context.Context, userID uuid.UUID, in AdminUpdateInput) (*models.User, error) {
	const op = "service.users.AdminUpdateUser"

	if in.Role == nil && in.Active == nil {
		return nil, fmt.Errorf("%s: %w", op, ErrInvalidArgument)
	}

	if in.Role != nil && !in.Role.Valid() {
		return nil, fmt.Errorf("%s: %w", op, ErrInvalidArgument)
	}

	user, err := s.storage.UpdateUserAdmin(ctx, userID, storage.AdminPatch{
		Role:   in.Role,
		Active: in.Active,
	})
	if err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			return nil, fmt.Errorf("%s: %w", op, ErrNotFound)
		}

		return nil, fmt.Errorf("%s: %w", op, err)
	}

	return user, nil
}

// AdminDeleteUser физически удаляет пользователя вместе с его
// refresh-токенами (ON DELETE CASCADE).
func (s *Service) AdminDeleteUser(ctx context.Context, userID uuid.UUID) error {
	const op = "service.users.AdminDeleteUser"

	if err := s.storage.DeleteUser(ctx, userID); err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			return fmt.Errorf("%s: %w", op, ErrNotFound)
		}

		return fmt.Errorf("%s: %w", op, err)
	}

	return nil
}
