// models содержит доменные сущности accounts-сервиса.
// Эти типы используются слоями бизнес-логики, хранилища и транспорта.
package models

import (
	"time"

	"github.com/google/uuid"
)

// Role — роль пользователя в системе.
type Role string

const (
	RoleUser  Role = "user"
	RoleAdmin Role = "admin"
)

// Valid сообщает, известна ли роль системе.
func (r Role) Valid() bool {
	return r == RoleUser || r == RoleAdmin
}

// User — модель пользователя (учётная запись).
//
// Инварианты:
//   - PasswordHash меняется только явными операциями смены/сброса пароля,
//     и каждая такая операция сдвигает PasswordChangedAt (см. service);
//   - Active=false — логическое удаление: запись не удаляется физически
//     при самостоятельной деактивации;
//   - ResetToken*/VerifyToken* хранят только SHA-256-хэш одноразового токена
//     и срок его действия; plaintext никогда не персистится.
type User struct {
	ID                  uuid.UUID
	Email               string
	Username            string
	FirstName           string
	LastName            string
	Role                Role
	PasswordHash        string
	PasswordChangedAt   time.Time
	FailedLoginAttempts int
	LockUntil           *time.Time
	LastLoginAt         *time.Time
	Active              bool
	EmailVerified       bool
	ResetTokenHash      *string
	ResetTokenExpiresAt *time.Time
	VerifyTokenHash     *string
	VerifyTokenExpires  *time.Time
	CreatedAt           time.Time
	UpdatedAt           time.Time
}

// Locked сообщает, заблокирована ли учётная запись на момент now.
func (u *User) Locked(now time.Time) bool {
	return u.LockUntil != nil && u.LockUntil.After(now)
}
