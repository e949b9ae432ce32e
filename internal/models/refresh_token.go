package models

import (
	"time"

	"github.com/google/uuid"
)

// RefreshToken — серверная запись о выданном refresh-токене.
//
// В БД хранится только SHA-256-хэш подписанного токена: предъявление
// криптографически валидного refresh-токена, хэша которого нет в хранилище,
// отклоняется. На пользователя одновременно живёт не более 5 записей
// (FIFO-вытеснение старейших при вставке).
type RefreshToken struct {
	RefreshTokenHash string
	UserID           uuid.UUID
	CreatedAt        time.Time
	ExpiresAt        time.Time
	Revoked          bool
}
