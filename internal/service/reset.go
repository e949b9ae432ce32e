package service

import (
	"context"
	"crypto/rand"
	"crypto/sha256"
	"encoding/base64"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/mkozyreva/accounts-service/internal/models"
	logctx "github.com/mkozyreva/accounts-service/internal/pkg/log"
	"github.com/mkozyreva/accounts-service/internal/pkg/redact"
	"github.com/mkozyreva/accounts-service/internal/storage"
)

// ForgotPassword выпускает одноразовый токен сброса пароля для владельца
// email и отправляет его письмом. В БД сохраняется только SHA-256 хэш.
// Неизвестный email возвращает ErrNotFound; деактивированная учётная
// запись неотличима от несуществующей.
func (s *Service) ForgotPassword(ctx context.Context, email string) error {
	const op = "service.reset.ForgotPassword"

	lg := logctx.From(ctx)

	normEmail, err := validateEmail(email)
	if err != nil {
		return fmt.Errorf("%s: %w", op, ErrInvalidEmail)
	}

	user, err := s.storage.UserByEmail(ctx, normEmail)
	if err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			return fmt.Errorf("%s: %w", op, ErrNotFound)
		}

		return fmt.Errorf("%s: %w", op, err)
	}

	if !user.Active {
		return fmt.Errorf("%s: %w", op, ErrNotFound)
	}

	plain, hash, err := newOneTimeToken()
	if err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}

	expiresAt := time.Now().UTC().Add(s.cfg.ResetTokenTTL)
	if err := s.storage.SetResetToken(ctx, user.ID, hash, expiresAt); err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}

	if err := s.mailer.SendPasswordReset(ctx, user.Email, plain); err != nil {
		// Хэш уже записан, но письмо не ушло — токен бесполезен,
		// сбрасываем его, чтобы не висела «слепая» запись.
		lg.Error("reset_mail_failed",
			slog.String("op", op),
			slog.String("email", redact.Email(user.Email)),
			slog.String("err", err.Error()),
		)

		if cerr := s.storage.ClearResetToken(ctx, user.ID); cerr != nil {
			lg.Error("reset_token_cleanup_failed",
				slog.String("op", op),
				slog.String("err", cerr.Error()),
			)
		}

		return fmt.Errorf("%s: %w", op, err)
	}

	return nil
}

// ResetPassword устанавливает новый пароль по одноразовому токену сброса.
// Токен одноразовый: UpdatePassword очищает reset-поля, повторное
// использование того же токена вернёт ErrInvalidToken. Для
// деактивированной учётной записи токен недействителен.
func (s *Service) ResetPassword(ctx context.Context, plainToken, newPassword, confirm string) (*models.TokenPair, *models.User, error) {
	const op = "service.reset.ResetPassword"

	if plainToken == "" {
		return nil, nil, fmt.Errorf("%s: %w", op, ErrInvalidToken)
	}

	hash := hashOneTimeToken(plainToken)
	now := time.Now().UTC()

	user, err := s.storage.UserByResetTokenHash(ctx, hash, now)
	if err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			return nil, nil, fmt.Errorf("%s: %w", op, ErrInvalidToken)
		}

		return nil, nil, fmt.Errorf("%s: %w", op, err)
	}

	if !user.Active {
		return nil, nil, fmt.Errorf("%s: %w", op, ErrInvalidToken)
	}

	if err := s.applyNewPassword(ctx, user, newPassword, confirm); err != nil {
		return nil, nil, fmt.Errorf("%s: %w", op, err)
	}

	pair, err := s.issueTokenPair(ctx, user)
	if err != nil {
		return nil, nil, fmt.Errorf("%s: %w", op, err)
	}

	return pair, user, nil
}

// newOneTimeToken генерирует одноразовый токен: plaintext для письма
// и SHA-256 хэш для хранения.
func newOneTimeToken() (plain, hash string, err error) {
	b := make([]byte, 32)
	if _, err = rand.Read(b); err != nil {
		return "", "", err
	}

	plain = base64.RawURLEncoding.EncodeToString(b)
	return plain, hashOneTimeToken(plain), nil
}

// hashOneTimeToken возвращает base64url(SHA-256) от plaintext-токена.
func hashOneTimeToken(plain string) string {
	sum := sha256.Sum256([]byte(plain))
	return base64.RawURLEncoding.EncodeToString(sum[:])
}
