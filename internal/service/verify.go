package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/mkozyreva/accounts-service/internal/models"
	"github.com/mkozyreva/accounts-service/internal/storage"
)

// issueVerifyToken выпускает одноразовый токен подтверждения email
// и отправляет его письмом.
func (s *Service) issueVerifyToken(ctx context.Context, user *models.User) error {
	const op = "service.verify.issueVerifyToken"

	plain, hash, err := newOneTimeToken()
	if err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}

	expiresAt := time.Now().UTC().Add(s.cfg.VerifyTokenTTL)
	if err := s.storage.SetVerifyToken(ctx, user.ID, hash, expiresAt); err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}

	if err := s.mailer.SendEmailVerification(ctx, user.Email, plain); err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}

	return nil
}

// RequestEmailVerification повторно отправляет письмо с токеном
// подтверждения. Уже подтверждённый email — ошибка; деактивированная
// учётная запись неотличима от несуществующей.
func (s *Service) RequestEmailVerification(ctx context.Context, userID uuid.UUID) error {
	const op = "service.verify.RequestEmailVerification"

	user, err := s.storage.UserByID(ctx, userID)
	if err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			return fmt.Errorf("%s: %w", op, ErrNotFound)
		}

		return fmt.Errorf("%s: %w", op, err)
	}

	if !user.Active {
		return fmt.Errorf("%s: %w", op, ErrNotFound)
	}

	if user.EmailVerified {
		return fmt.Errorf("%s: %w", op, ErrEmailAlreadyVerified)
	}

	if err := s.issueVerifyToken(ctx, user); err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}

	return nil
}

// VerifyEmail подтверждает email по одноразовому токену.
// Сработавший токен атомарно гасится в хранилище; токен деактивированной
// учётной записи недействителен.
func (s *Service) VerifyEmail(ctx context.Context, plainToken string) (uuid.UUID, error) {
	const op = "service.verify.VerifyEmail"

	if plainToken == "" {
		return uuid.Nil, fmt.Errorf("%s: %w", op, ErrInvalidToken)
	}

	hash := hashOneTimeToken(plainToken)
	now := time.Now().UTC()

	userID, err := s.storage.ConsumeVerifyToken(ctx, hash, now)
	if err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			return uuid.Nil, fmt.Errorf("%s: %w", op, ErrInvalidToken)
		}

		return uuid.Nil, fmt.Errorf("%s: %w", op, err)
	}

	return userID, nil
}
