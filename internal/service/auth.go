package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/mail"
	"strings"
	"time"
	"unicode"

	"github.com/google/uuid"
	"golang.org/x/crypto/bcrypt"

	"github.com/mkozyreva/accounts-service/internal/models"
	logctx "github.com/mkozyreva/accounts-service/internal/pkg/log"
	"github.com/mkozyreva/accounts-service/internal/pkg/redact"
	"github.com/mkozyreva/accounts-service/internal/storage"
)

// passwordChangedSkew — сдвиг password_changed_at в прошлое при смене пароля,
// чтобы токены, выпущенные в ту же секунду, гарантированно инвалидировались.
const passwordChangedSkew = time.Second

// RegisterInput — входные данные регистрации.
type RegisterInput struct {
	FirstName       string
	LastName        string
	Email           string
	Username        string
	Password        string
	PasswordConfirm string
}

// RegisterUser регистрирует нового пользователя, выпускает пару токенов
// и инициирует подтверждение email (plaintext токена уходит мейлеру,
// в БД остаётся только хэш).
func (s *Service) RegisterUser(ctx context.Context, in RegisterInput) (*models.TokenPair, *models.User, error) {
	const op = "service.auth.RegisterUser"

	lg := logctx.From(ctx)

	normEmail, err := validateEmail(in.Email)
	if err != nil {
		return nil, nil, fmt.Errorf("%s: %w", op, ErrInvalidEmail)
	}

	username, err := validateUsername(in.Username)
	if err != nil {
		return nil, nil, fmt.Errorf("%s: %w", op, err)
	}

	firstName := strings.TrimSpace(in.FirstName)
	lastName := strings.TrimSpace(in.LastName)
	if firstName == "" || lastName == "" {
		return nil, nil, fmt.Errorf("%s: %w", op, ErrInvalidName)
	}

	if err := validatePassword(in.Password); err != nil {
		return nil, nil, fmt.Errorf("%s: %w", op, err)
	}

	if in.Password != in.PasswordConfirm {
		return nil, nil, fmt.Errorf("%s: %w", op, ErrPasswordMismatch)
	}

	hashedPassword, err := hashPassword(in.Password)
	if err != nil {
		return nil, nil, fmt.Errorf("%s: %w", op, err)
	}

	now := time.Now().UTC()
	user := &models.User{
		ID:                uuid.New(),
		Email:             normEmail,
		Username:          username,
		FirstName:         firstName,
		LastName:          lastName,
		Role:              models.RoleUser,
		PasswordHash:      hashedPassword,
		PasswordChangedAt: now,
		Active:            true,
		EmailVerified:     false,
		CreatedAt:         now,
		UpdatedAt:         now,
	}

	if err := s.storage.SaveUser(ctx, user); err != nil {
		switch {
		case errors.Is(err, storage.ErrEmailExists):
			return nil, nil, fmt.Errorf("%s: %w", op, ErrEmailTaken)
		case errors.Is(err, storage.ErrUsernameExists):
			return nil, nil, fmt.Errorf("%s: %w", op, ErrUsernameTaken)
		}

		return nil, nil, fmt.Errorf("%s: %w", op, err)
	}

	// Подтверждение email не блокирует регистрацию: при сбое почты
	// пользователь сможет запросить повторную отправку.
	if err := s.issueVerifyToken(ctx, user); err != nil {
		lg.Warn("verification_mail_failed",
			slog.String("op", op),
			slog.String("email", redact.Email(user.Email)),
			slog.String("err", err.Error()),
		)
	}

	pair, err := s.issueTokenPair(ctx, user)
	if err != nil {
		return nil, nil, fmt.Errorf("%s: %w", op, err)
	}

	return pair, user, nil
}

// LoginUser выполняет вход по email+пароль с учётом политики блокировки.
//
// Порядок проверок:
//  1. активная блокировка (lock_until в будущем) — ErrAccountLocked
//     ещё до сравнения пароля;
//  2. флаг активности учётной записи;
//  3. bcrypt-сравнение; на несовпадении счётчик неудач атомарно
//     инкрементируется, достижение лимита ставит блокировку.
func (s *Service) LoginUser(ctx context.Context, email, password string) (*models.TokenPair, *models.User, error) {
	const op = "service.auth.LoginUser"

	lg := logctx.From(ctx)

	normEmail, err := validateEmail(email)
	if err != nil {
		return nil, nil, fmt.Errorf("%s: %w", op, ErrInvalidCredentials)
	}

	if len(password) == 0 {
		return nil, nil, fmt.Errorf("%s: %w", op, ErrInvalidCredentials)
	}

	user, err := s.storage.UserByEmail(ctx, normEmail)
	if err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			return nil, nil, fmt.Errorf("%s: %w", op, ErrInvalidCredentials)
		}

		return nil, nil, fmt.Errorf("%s: %w", op, err)
	}

	now := time.Now().UTC()

	if user.Locked(now) {
		lg.Warn("login_blocked_locked",
			slog.String("op", op),
			slog.String("email", redact.Email(normEmail)),
		)
		return nil, nil, fmt.Errorf("%s: %w", op, ErrAccountLocked)
	}

	if !user.Active {
		return nil, nil, fmt.Errorf("%s: %w", op, ErrInvalidCredentials)
	}

	if !checkPassword(user.PasswordHash, password) {
		attempts, lockedUntil, ferr := s.storage.RegisterLoginFailure(
			ctx, user.ID, s.cfg.MaxLoginAttempts, s.cfg.LockDuration, now,
		)
		if ferr != nil {
			lg.Error("login_failure_counter_failed",
				slog.String("op", op),
				slog.String("err", ferr.Error()),
			)
		} else if lockedUntil != nil && lockedUntil.After(now) {
			lg.Warn("account_locked",
				slog.String("op", op),
				slog.String("email", redact.Email(normEmail)),
				slog.Time("lock_until", *lockedUntil),
			)
		} else {
			lg.Debug("login_attempt_failed",
				slog.String("op", op),
				slog.Int("attempts", attempts),
			)
		}

		return nil, nil, fmt.Errorf("%s: %w", op, ErrInvalidCredentials)
	}

	if err := s.storage.RegisterLoginSuccess(ctx, user.ID, now); err != nil {
		return nil, nil, fmt.Errorf("%s: %w", op, err)
	}

	pair, err := s.issueTokenPair(ctx, user)
	if err != nil {
		return nil, nil, fmt.Errorf("%s: %w", op, err)
	}

	return pair, user, nil
}

// ChangePassword меняет пароль аутентифицированного пользователя:
// требует текущий пароль, после смены выпускает свежую пару токенов.
// password_changed_at сдвигается на passwordChangedSkew в прошлое,
// чтобы все ранее выпущенные access-токены стали недействительными.
func (s *Service) ChangePassword(ctx context.Context, userID uuid.UUID, current, newPassword, confirm string) (*models.TokenPair, error) {
	const op = "service.auth.ChangePassword"

	user, err := s.storage.UserByID(ctx, userID)
	if err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			return nil, fmt.Errorf("%s: %w", op, ErrInvalidCredentials)
		}

		return nil, fmt.Errorf("%s: %w", op, err)
	}

	if !checkPassword(user.PasswordHash, current) {
		return nil, fmt.Errorf("%s: %w", op, ErrInvalidCredentials)
	}

	if err := s.applyNewPassword(ctx, user, newPassword, confirm); err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	pair, err := s.issueTokenPair(ctx, user)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	return pair, nil
}

// applyNewPassword — единственный путь мутации password_hash: валидирует
// политику, перехэширует и персистит со сдвинутым password_changed_at;
// заодно гасятся незакрытые reset-токены (на уровне storage.UpdatePassword).
func (s *Service) applyNewPassword(ctx context.Context, user *models.User, newPassword, confirm string) error {
	if err := validatePassword(newPassword); err != nil {
		return err
	}

	if newPassword != confirm {
		return ErrPasswordMismatch
	}

	hash, err := hashPassword(newPassword)
	if err != nil {
		return err
	}

	changedAt := time.Now().UTC().Add(-passwordChangedSkew)
	if err := s.storage.UpdatePassword(ctx, user.ID, hash, changedAt); err != nil {
		return err
	}

	user.PasswordHash = hash
	user.PasswordChangedAt = changedAt

	return nil
}

// hashPassword хэширует пароль с помощью bcrypt (фиксированная стоимость).
func hashPassword(password string) (string, error) {
	const op = "service.auth.hashPassword"

	bytes, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return "", fmt.Errorf("%s: %w", op, err)
	}

	return string(bytes), nil
}

// checkPassword сравнивает пароль с хэшем.
func checkPassword(hash, password string) bool {
	return bcrypt.CompareHashAndPassword([]byte(hash), []byte(password)) == nil
}

// validateEmail проверяет базовый формат email и обрезает пробелы снаружи.
func validateEmail(raw string) (string, error) {
	const op = "service.auth.validateEmail"

	email := strings.TrimSpace(raw)
	if email == "" {
		return "", fmt.Errorf("%s: %w", op, ErrInvalidEmail)
	}

	if _, err := mail.ParseAddress(email); err != nil {
		return "", fmt.Errorf("%s: %w", op, ErrInvalidEmail)
	}

	return strings.ToLower(email), nil
}

// validateUsername нормализует username и проверяет длину/алфавит:
// 3..32 символа, латиница/цифры/._-.
func validateUsername(raw string) (string, error) {
	const op = "service.auth.validateUsername"

	username := strings.TrimSpace(raw)
	if n := len([]rune(username)); n < 3 || n > 32 {
		return "", fmt.Errorf("%s: %w", op, ErrInvalidUsername)
	}

	for _, r := range username {
		switch {
		case r >= 'a' && r <= 'z':
		case r >= 'A' && r <= 'Z':
		case r >= '0' && r <= '9':
		case r == '_' || r == '.' || r == '-':
		default:
			return "", fmt.Errorf("%s: %w", op, ErrInvalidUsername)
		}
	}

	return username, nil
}

// validatePassword проверяет минимальные требования к паролю.
// Политика по умолчанию: длина >= 8, хотя бы одна строчная, заглавная, цифра и спецсимвол.
func validatePassword(pw string) error {
	const op = "service.auth.validatePassword"

	if len(pw) == 0 {
		return fmt.Errorf("%s: %w", op, ErrEmptyPassword)
	}

	if len([]rune(pw)) < 8 {
		return fmt.Errorf("%s: %w", op, ErrWeakPassword)
	}

	var hasLower, hasUpper, hasDigit, hasSpecial bool
	for _, r := range pw {
		switch {
		case unicode.IsLower(r):
			hasLower = true
		case unicode.IsUpper(r):
			hasUpper = true
		case unicode.IsDigit(r):
			hasDigit = true
		case unicode.IsPunct(r) || unicode.IsSymbol(r):
			hasSpecial = true
		}
	}

	if !(hasLower && hasUpper && hasDigit && hasSpecial) {
		return fmt.Errorf("%s: %w", op, ErrWeakPassword)
	}

	return nil
}

// issueTokenPair выпускает новую пару access+refresh токенов.
func (s *Service) issueTokenPair(ctx context.Context, user *models.User) (*models.TokenPair, error) {
	const op = "service.auth.issueTokenPair"

	now := time.Now().UTC()

	accessToken, err := s.generateAccessToken(ctx, user.ID, now)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	refreshToken, err := s.generateRefreshToken(ctx, user.ID, now)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	return &models.TokenPair{
		AccessToken:     accessToken,
		RefreshToken:    refreshToken,
		AccessExpiresAt: now.Add(s.cfg.AccessTokenTTL),
	}, nil
}
