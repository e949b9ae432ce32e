package service

import (
	"context"
	"crypto/sha256"
	"encoding/base64"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"

	"github.com/mkozyreva/accounts-service/internal/models"
	logctx "github.com/mkozyreva/accounts-service/internal/pkg/log"
	"github.com/mkozyreva/accounts-service/internal/storage"
)

type accessClaims struct {
	UserID string `json:"uid"`
	jwt.RegisteredClaims
}

// refreshClaims — полезная нагрузка refresh-токена. Токен подписывается
// отдельным секретом; сервер дополнительно хранит SHA-256 хэш подписанной
// строки, так что криптографически корректный, но не сохранённый токен
// отклоняется.
type refreshClaims struct {
	UserID string `json:"uid"`
	jwt.RegisteredClaims
}

// generateAccessToken генерирует access-токен.
func (s *Service) generateAccessToken(ctx context.Context, userID uuid.UUID, now time.Time) (string, error) {
	const op = "service.token.generateAccessToken"

	lg := logctx.From(ctx)

	claims := accessClaims{
		UserID: userID.String(),
		RegisteredClaims: jwt.RegisteredClaims{
			ExpiresAt: jwt.NewNumericDate(now.Add(s.cfg.AccessTokenTTL)),
			IssuedAt:  jwt.NewNumericDate(now),
			Issuer:    s.cfg.Issuer,
			Subject:   userID.String(),
			Audience:  jwt.ClaimStrings(s.cfg.Audience),
		},
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	signed, err := token.SignedString([]byte(s.cfg.JWTSecret))
	if err != nil {
		lg.Error("access_token_sign_failed",
			slog.String("op", op),
			slog.String("err", err.Error()),
		)
		return "", fmt.Errorf("%s: %w", op, err)
	}

	return signed, nil
}

// ValidateAccessToken валидирует access-токен и возвращает идентификатор
// пользователя и момент выпуска (нужен для проверки «пароль сменён после
// выпуска токена» на стороне middleware).
func (s *Service) ValidateAccessToken(tokenStr string) (uuid.UUID, time.Time, error) {
	const op = "service.token.ValidateAccessToken"

	token, err := jwt.ParseWithClaims(tokenStr, &accessClaims{},
		func(t *jwt.Token) (interface{}, error) {
			if t.Method != jwt.SigningMethodHS256 {
				return nil, fmt.Errorf("%s: %w", op, ErrInvalidToken)
			}

			return []byte(s.cfg.JWTSecret), nil
		},
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithLeeway(5*time.Second),
		jwt.WithIssuer(s.cfg.Issuer),
		jwt.WithAudience(s.cfg.Audience...),
	)

	if err != nil {
		if errors.Is(err, jwt.ErrTokenExpired) {
			return uuid.Nil, time.Time{}, fmt.Errorf("%s: %w", op, ErrTokenExpired)
		}

		return uuid.Nil, time.Time{}, fmt.Errorf("%s: %w", op, ErrInvalidToken)
	}

	claims, ok := token.Claims.(*accessClaims)
	if !ok || !token.Valid {
		return uuid.Nil, time.Time{}, fmt.Errorf("%s: %w", op, ErrInvalidToken)
	}

	uid, err := uuid.Parse(claims.UserID)
	if err != nil {
		return uuid.Nil, time.Time{}, fmt.Errorf("%s: %w", op, ErrInvalidToken)
	}

	var issuedAt time.Time
	if claims.IssuedAt != nil {
		issuedAt = claims.IssuedAt.Time
	}

	return uid, issuedAt, nil
}

// generateRefreshToken выпускает refresh-токен: подписывает JWT отдельным
// секретом, персистит SHA-256 хэш подписанной строки (с FIFO-ограничением
// на пользователя) и прогревает кэш.
func (s *Service) generateRefreshToken(ctx context.Context, userID uuid.UUID, now time.Time) (string, error) {
	const op = "service.token.generateRefreshToken"

	lg := logctx.From(ctx)

	expiresAt := now.Add(s.cfg.RefreshTokenTTL)
	claims := refreshClaims{
		UserID: userID.String(),
		RegisteredClaims: jwt.RegisteredClaims{
			ID:        uuid.NewString(),
			ExpiresAt: jwt.NewNumericDate(expiresAt),
			IssuedAt:  jwt.NewNumericDate(now),
			Issuer:    s.cfg.Issuer,
			Subject:   userID.String(),
		},
	}

	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).
		SignedString([]byte(s.cfg.RefreshSecret))
	if err != nil {
		lg.Error("refresh_token_sign_failed",
			slog.String("op", op),
			slog.String("err", err.Error()),
		)
		return "", fmt.Errorf("%s: %w", op, err)
	}

	hash := hashRefreshToken(signed)

	token := &models.RefreshToken{
		RefreshTokenHash: hash,
		UserID:           userID,
		CreatedAt:        now,
		ExpiresAt:        expiresAt,
		Revoked:          false,
	}

	if err := s.storage.SaveRefreshToken(ctx, token, s.cfg.RefreshTokenLimit); err != nil {
		lg.Error("save_refresh_token_failed",
			slog.String("op", op),
			slog.String("err", err.Error()),
		)
		return "", fmt.Errorf("%s: %w", op, err)
	}

	if s.rcache != nil {
		if cerr := s.rcache.Set(ctx, token, time.Until(expiresAt)); cerr != nil {
			// Кэш — оптимизация, источник истины в БД.
			lg.Warn("refresh_cache_set_failed",
				slog.String("op", op),
				slog.String("err", cerr.Error()),
			)
		}
	}

	return signed, nil
}

// validateRefreshToken валидирует refresh-токен: сначала подпись и срок
// самого JWT, затем наличие его хэша на сервере (кэш, при промахе — БД).
func (s *Service) validateRefreshToken(ctx context.Context, plain string) (*models.RefreshToken, error) {
	const op = "service.token.validateRefreshToken"

	lg := logctx.From(ctx)

	token, err := jwt.ParseWithClaims(plain, &refreshClaims{},
		func(t *jwt.Token) (interface{}, error) {
			if t.Method != jwt.SigningMethodHS256 {
				return nil, fmt.Errorf("%s: %w", op, ErrInvalidToken)
			}

			return []byte(s.cfg.RefreshSecret), nil
		},
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithLeeway(5*time.Second),
		jwt.WithIssuer(s.cfg.Issuer),
	)

	if err != nil {
		if errors.Is(err, jwt.ErrTokenExpired) {
			return nil, fmt.Errorf("%s: %w", op, ErrTokenExpired)
		}

		return nil, fmt.Errorf("%s: %w", op, ErrInvalidToken)
	}

	claims, ok := token.Claims.(*refreshClaims)
	if !ok || !token.Valid {
		return nil, fmt.Errorf("%s: %w", op, ErrInvalidToken)
	}

	uid, err := uuid.Parse(claims.UserID)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, ErrInvalidToken)
	}

	hash := hashRefreshToken(plain)
	now := time.Now().UTC()

	if s.rcache != nil {
		cached, found, cerr := s.rcache.Get(ctx, hash)
		if cerr != nil {
			lg.Warn("refresh_cache_get_failed",
				slog.String("op", op),
				slog.String("err", cerr.Error()),
			)
		} else if found {
			if cached.Revoked {
				return nil, fmt.Errorf("%s: %w", op, ErrTokenRevoked)
			}
			if now.After(cached.ExpiresAt) {
				return nil, fmt.Errorf("%s: %w", op, ErrTokenExpired)
			}
			if cached.UserID != uid {
				return nil, fmt.Errorf("%s: %w", op, ErrInvalidToken)
			}

			return cached, nil
		}
	}

	stored, err := s.storage.RefreshTokenByHash(ctx, hash)
	if err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			lg.Warn("refresh_lookup_not_found",
				slog.String("op", op),
			)
			return nil, fmt.Errorf("%s: %w", op, ErrInvalidToken)
		}

		lg.Error("refresh_lookup_failed",
			slog.String("op", op),
			slog.String("err", err.Error()),
		)
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	if stored.Revoked {
		lg.Warn("refresh_revoked",
			slog.String("op", op),
			slog.String("user_id", stored.UserID.String()),
		)
		return nil, fmt.Errorf("%s: %w", op, ErrTokenRevoked)
	}

	if now.After(stored.ExpiresAt) {
		lg.Warn("refresh_expired",
			slog.String("op", op),
			slog.String("user_id", stored.UserID.String()),
		)
		return nil, fmt.Errorf("%s: %w", op, ErrTokenExpired)
	}

	if stored.UserID != uid {
		return nil, fmt.Errorf("%s: %w", op, ErrInvalidToken)
	}

	return stored, nil
}

// RefreshToken обновляет пару токенов по refresh-токену.
// Старый refresh-токен при ротации не отзывается: per-user
// FIFO-ограничение в хранилище само вытесняет самые старые записи.
func (s *Service) RefreshToken(ctx context.Context, refreshToken string) (*models.TokenPair, *models.User, error) {
	const op = "service.auth.RefreshToken"

	token, err := s.validateRefreshToken(ctx, refreshToken)
	if err != nil {
		return nil, nil, fmt.Errorf("%s: %w", op, err)
	}

	user, err := s.storage.UserByID(ctx, token.UserID)
	if err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			return nil, nil, fmt.Errorf("%s: %w", op, ErrInvalidToken)
		}

		return nil, nil, fmt.Errorf("%s: %w", op, err)
	}

	if !user.Active {
		return nil, nil, fmt.Errorf("%s: %w", op, ErrInvalidToken)
	}

	pair, err := s.issueTokenPair(ctx, user)
	if err != nil {
		return nil, nil, fmt.Errorf("%s: %w", op, err)
	}

	return pair, user, nil
}

// RevokeToken отзывает refresh-токен (logout).
func (s *Service) RevokeToken(ctx context.Context, refreshToken string) error {
	const op = "service.auth.RevokeToken"

	hash := hashRefreshToken(refreshToken)

	revoked, err := s.storage.RevokeRefreshTokenIfActive(ctx, hash)
	if err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			return fmt.Errorf("%s: %w", op, ErrInvalidToken)
		}

		return fmt.Errorf("%s: %w", op, err)
	}

	if !revoked {
		return fmt.Errorf("%s: %w", op, ErrTokenRevoked)
	}

	if s.rcache != nil {
		if cerr := s.rcache.MarkRevoked(ctx, hash); cerr != nil {
			logctx.From(ctx).Warn("refresh_cache_revoke_failed",
				slog.String("op", op),
				slog.String("err", cerr.Error()),
			)
		}
	}

	return nil
}

// hashRefreshToken возвращает base64url(SHA-256) от подписанной строки токена.
func hashRefreshToken(plain string) string {
	sum := sha256.Sum256([]byte(plain))
	return base64.RawURLEncoding.EncodeToString(sum[:])
}
