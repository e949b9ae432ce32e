// Входные/выходные модели REST-слоя. Хэш пароля и служебные
// токен-поля наружу не сериализуются никогда.
package models

import (
	"github.com/mkozyreva/accounts-service/internal/models"
)

type SignupRequest struct {
	FirstName       string `json:"firstName"`
	LastName        string `json:"lastName"`
	Email           string `json:"email"`
	Username        string `json:"username"`
	Password        string `json:"password"`
	PasswordConfirm string `json:"passwordConfirm"`
}

type LoginRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

// RefreshRequest — тело опционально: токен обычно приходит cookie.
type RefreshRequest struct {
	RefreshToken string `json:"refreshToken,omitempty"`
}

type ForgotPasswordRequest struct {
	Email string `json:"email"`
}

type ResetPasswordRequest struct {
	Password        string `json:"password"`
	PasswordConfirm string `json:"passwordConfirm"`
}

type UpdatePasswordRequest struct {
	CurrentPassword string `json:"currentPassword"`
	Password        string `json:"password"`
	PasswordConfirm string `json:"passwordConfirm"`
}

// UpdateProfileRequest — поля опциональные: nil означает "не менять".
type UpdateProfileRequest struct {
	Username  *string `json:"username,omitempty"`
	FirstName *string `json:"firstName,omitempty"`
	LastName  *string `json:"lastName,omitempty"`
}

// AdminUpdateUserRequest — административный патч.
type AdminUpdateUserRequest struct {
	Role   *string `json:"role,omitempty"`
	Active *bool   `json:"active,omitempty"`
}

// User — публичное представление учётной записи.
type User struct {
	ID            string `json:"id"`
	Email         string `json:"email"`
	Username      string `json:"username"`
	FirstName     string `json:"firstName"`
	LastName      string `json:"lastName"`
	Role          string `json:"role"`
	Active        bool   `json:"active"`
	EmailVerified bool   `json:"emailVerified"`
	CreatedAt     int64  `json:"createdAt"` // Unix UTC
	UpdatedAt     int64  `json:"updatedAt"` // Unix UTC
	LastLoginAt   int64  `json:"lastLoginAt,omitempty"`
}

// AuthResponse — ответ signup/login/refresh/reset.
type AuthResponse struct {
	Token           string `json:"token"`
	RefreshToken    string `json:"refreshToken"`
	AccessExpiresAt int64  `json:"accessExpiresAt"` // Unix UTC
	User            *User  `json:"user,omitempty"`
}

// StatusResponse — ответ операций без полезной нагрузки.
type StatusResponse struct {
	Status  string `json:"status"`
	Message string `json:"message,omitempty"`
}

type ListUsersResponse struct {
	Users []User `json:"users"`
}

// UserFromModel конвертирует доменную модель в публичное представление.
func UserFromModel(u *models.User) *User {
	if u == nil {
		return nil
	}

	out := &User{
		ID:            u.ID.String(),
		Email:         u.Email,
		Username:      u.Username,
		FirstName:     u.FirstName,
		LastName:      u.LastName,
		Role:          string(u.Role),
		Active:        u.Active,
		EmailVerified: u.EmailVerified,
		CreatedAt:     u.CreatedAt.UTC().Unix(),
		UpdatedAt:     u.UpdatedAt.UTC().Unix(),
	}

	if u.LastLoginAt != nil {
		out.LastLoginAt = u.LastLoginAt.UTC().Unix()
	}

	return out
}

// AuthResponseFromPair собирает ответ из пары токенов и (опционально) пользователя.
func AuthResponseFromPair(pair *models.TokenPair, user *models.User) AuthResponse {
	resp := AuthResponse{
		Token:           pair.AccessToken,
		RefreshToken:    pair.RefreshToken,
		AccessExpiresAt: pair.AccessExpiresAt.UTC().Unix(),
	}
	if user != nil {
		resp.User = UserFromModel(user)
	}

	return resp
}
