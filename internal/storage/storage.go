// storage задаёт контракт персистентного слоя accounts-сервиса
// и сентинельные ошибки, на которые маппятся ошибки конкретных реализаций.
package storage

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"

	"github.com/mkozyreva/accounts-service/internal/models"
)

var (
	// ErrNotFound — запись не найдена (пользователь/токен).
	ErrNotFound = errors.New("not found")
	// ErrAlreadyExists — нарушение уникальности (хэш refresh-токена).
	ErrAlreadyExists = errors.New("already exists")
	// ErrEmailExists — email уже занят другим пользователем.
	ErrEmailExists = errors.New("email already exists")
	// ErrUsernameExists — username уже занят другим пользователем.
	ErrUsernameExists = errors.New("username already exists")
)

// ProfilePatch — статически объявленный набор изменяемых полей профиля.
// nil-указатель означает "поле не трогать".
type ProfilePatch struct {
	Username  *string
	FirstName *string
	LastName  *string
}

// AdminPatch — поля, изменяемые администратором.
type AdminPatch struct {
	Role   *models.Role
	Active *bool
}

// UserStorage выполняет операции над пользователями.
type UserStorage interface {
	// SaveUser создаёт нового пользователя в БД.
	SaveUser(ctx context.Context, user *models.User) error
	// UserByEmail находит пользователя по email (без учёта регистра).
	UserByEmail(ctx context.Context, email string) (*models.User, error)
	// UserByID находит пользователя по ID.
	UserByID(ctx context.Context, id uuid.UUID) (*models.User, error)
	// UpdateProfile применяет патч профиля и возвращает обновлённую запись.
	UpdateProfile(ctx context.Context, id uuid.UUID, patch ProfilePatch) (*models.User, error)
	// UpdatePassword заменяет хэш пароля, сдвигает password_changed_at
	// и инвалидирует незакрытые reset-токены.
	UpdatePassword(ctx context.Context, id uuid.UUID, hash string, changedAt time.Time) error
	// RegisterLoginFailure атомарно инкрементирует счётчик неудачных попыток;
	// при достижении maxAttempts выставляет lock_until=now+lockFor и обнуляет счётчик.
	// Возвращает новое значение счётчика и момент блокировки (nil — блокировки нет).
	RegisterLoginFailure(ctx context.Context, id uuid.UUID, maxAttempts int, lockFor time.Duration, now time.Time) (int, *time.Time, error)
	// RegisterLoginSuccess сбрасывает счётчик/блокировку и фиксирует last_login_at.
	RegisterLoginSuccess(ctx context.Context, id uuid.UUID, now time.Time) error
	// SetResetToken сохраняет хэш одноразового reset-токена и срок действия.
	SetResetToken(ctx context.Context, id uuid.UUID, hash string, expiresAt time.Time) error
	// ClearResetToken обнуляет (NULL) поля reset-токена пользователя.
	ClearResetToken(ctx context.Context, id uuid.UUID) error
	// UserByResetTokenHash находит пользователя по непросроченному reset-хэшу.
	UserByResetTokenHash(ctx context.Context, hash string, now time.Time) (*models.User, error)
	// SetVerifyToken сохраняет хэш токена подтверждения email и срок действия.
	SetVerifyToken(ctx context.Context, id uuid.UUID, hash string, expiresAt time.Time) error
	// ConsumeVerifyToken атомарно гасит непросроченный verify-токен активной
	// учётной записи, выставляя email_verified=true; возвращает ID пользователя.
	ConsumeVerifyToken(ctx context.Context, hash string, now time.Time) (uuid.UUID, error)
	// SetActive переключает флаг активности (логическое удаление).
	SetActive(ctx context.Context, id uuid.UUID, active bool) error
	// ListUsers возвращает страницу пользователей (limit/offset, по created_at).
	ListUsers(ctx context.Context, limit, offset int) ([]models.User, error)
	// UpdateUserAdmin применяет административный патч (роль/активность).
	UpdateUserAdmin(ctx context.Context, id uuid.UUID, patch AdminPatch) (*models.User, error)
	// DeleteUser физически удаляет пользователя (только административный путь).
	DeleteUser(ctx context.Context, id uuid.UUID) error
}

// RefreshTokenStorage выполняет операции над refresh-токенами.
type RefreshTokenStorage interface {
	// SaveRefreshToken сохраняет новый refresh-токен, оставляя у пользователя
	// не более keep последних записей (FIFO-вытеснение).
	SaveRefreshToken(ctx context.Context, token *models.RefreshToken, keep int) error
	// RefreshTokenByHash находит refresh-токен по его хэшу.
	RefreshTokenByHash(ctx context.Context, hash string) (*models.RefreshToken, error)
	// RevokeRefreshTokenIfActive пытается отозвать refresh-токен, если он ещё
	// не был отозван. Возвращает:
	//
	//	(true, nil)  — токен был активен и успешно отозван сейчас;
	//	(false, nil) — токен существует, но уже был отозван;
	//	(false, ErrNotFound) — токен не найден.
	RevokeRefreshTokenIfActive(ctx context.Context, hash string) (bool, error)
	// DeleteExpiredTokens удаляет все просроченные токены.
	DeleteExpiredTokens(ctx context.Context, now time.Time) error
}

// Storage задаёт контракт работы с БД.
type Storage interface {
	UserStorage
	RefreshTokenStorage
	Close()
}
