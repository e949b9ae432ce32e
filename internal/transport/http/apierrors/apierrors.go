// apierrors стандартизирует ответы об ошибках HTTP-слоя accounts-сервиса.
// На вход он принимает ошибку сервисного слоя (сентинели пакета service),
// а на выход даёт:
//   - корректный HTTP-статус;
//   - краткое безопасное message без утечки деталей.
package apierrors

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"

	"github.com/mkozyreva/accounts-service/internal/service"
)

// Нестандартный код часто используемый для "клиент закрыл соединение".
const StatusClientClosedRequest = 499

// StatusLocked — 423: учётная запись временно заблокирована.
const StatusLocked = http.StatusLocked

// APIError — единый формат для фронта.
// Code — короткий стабильный код для машиночитаемой обработки на FE.
// Message — безопасное человекочитаемое описание.
// RequestID — прокидывается из X-Request-Id, если есть (для трассировки).
type APIError struct {
	Code      string `json:"code"`
	Message   string `json:"message"`
	RequestID string `json:"request_id,omitempty"`
}

// ErrorResponse — корневой объект в ответе.
type ErrorResponse struct {
	Error APIError `json:"error"`
}

// ToHTTP конвертирует ошибку сервисного слоя в HTTP-статус и
// унифицированный ответ для фронта.
//
// Поведение:
//   - err == nil - это программная ошибка вызова: возвращаем 500/internal,
//     чтобы не послать "200 OK" с телом ошибки и не маскировать баг.
//   - известный сентинель - маппим по таблице ниже;
//   - прочее - 500/internal (без утечки деталей).
//
// Таблица маппинга:
//   - валидация/дубликаты (email, username, пароль, аргументы) -> 400
//   - invalid credentials / invalid|expired|revoked token -> 401
//   - учётная запись заблокирована -> 423
//   - not found -> 404
//   - context.Canceled -> 499, context.DeadlineExceeded -> 504
func ToHTTP(err error) (int, ErrorResponse) {
	if err == nil {
		return http.StatusInternalServerError, errResp("internal", "internal error")
	}

	switch {
	case errors.Is(err, service.ErrInvalidCredentials):
		return http.StatusUnauthorized, errResp("invalid_credentials", "invalid email or password")
	case errors.Is(err, service.ErrAccountLocked):
		return StatusLocked, errResp("account_locked", "account temporarily locked, try again later")
	case errors.Is(err, service.ErrTokenExpired):
		return http.StatusUnauthorized, errResp("token_expired", "token has expired")
	case errors.Is(err, service.ErrTokenRevoked):
		return http.StatusUnauthorized, errResp("token_revoked", "token has been revoked")
	case errors.Is(err, service.ErrInvalidToken):
		return http.StatusUnauthorized, errResp("invalid_token", "token is invalid")
	case errors.Is(err, service.ErrEmailTaken):
		return http.StatusBadRequest, errResp("email_taken", "email already in use")
	case errors.Is(err, service.ErrUsernameTaken):
		return http.StatusBadRequest, errResp("username_taken", "username already in use")
	case errors.Is(err, service.ErrInvalidEmail):
		return http.StatusBadRequest, errResp("invalid_email", "invalid email format")
	case errors.Is(err, service.ErrWeakPassword):
		return http.StatusBadRequest, errResp("weak_password", "password does not meet complexity requirements")
	case errors.Is(err, service.ErrEmptyPassword):
		return http.StatusBadRequest, errResp("empty_password", "password must not be empty")
	case errors.Is(err, service.ErrPasswordMismatch):
		return http.StatusBadRequest, errResp("password_mismatch", "passwords do not match")
	case errors.Is(err, service.ErrInvalidUsername):
		return http.StatusBadRequest, errResp("invalid_username", "invalid username")
	case errors.Is(err, service.ErrInvalidName):
		return http.StatusBadRequest, errResp("invalid_name", "first and last name must not be empty")
	case errors.Is(err, service.ErrEmailAlreadyVerified):
		return http.StatusBadRequest, errResp("already_verified", "email already verified")
	case errors.Is(err, service.ErrInvalidArgument):
		return http.StatusBadRequest, errResp("invalid_argument", "invalid argument")
	case errors.Is(err, service.ErrNotFound):
		return http.StatusNotFound, errResp("not_found", "not found")
	case errors.Is(err, context.Canceled):
		return StatusClientClosedRequest, errResp("canceled", "canceled")
	case errors.Is(err, context.DeadlineExceeded):
		return http.StatusGatewayTimeout, errResp("deadline_exceeded", "deadline exceeded")
	default:
		return http.StatusInternalServerError, errResp("internal", "internal error")
	}
}

// WriteError — хелпер для HTTP-хендлеров.
// Пишет корректный статус/тело, добавляет request_id из заголовка, если он есть.
func WriteError(w http.ResponseWriter, r *http.Request, err error) {
	status, resp := ToHTTP(err)
	write(w, r, status, resp)
}

// WriteCode пишет ответ с явно заданным статусом/кодом/сообщением.
// Нужен там, где один и тот же сентинель маппится по-разному
// (невалидный одноразовый токен в reset/verify — 400, а не 401).
func WriteCode(w http.ResponseWriter, r *http.Request, status int, code, message string) {
	write(w, r, status, errResp(code, message))
}

func write(w http.ResponseWriter, r *http.Request, status int, resp ErrorResponse) {
	// Прокидываем request_id для фронта, чтобы он мог репортить баги с привязкой.
	if rid := r.Header.Get("X-Request-Id"); rid != "" {
		resp.Error.RequestID = rid
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(resp)
}

func errResp(code, message string) ErrorResponse {
	return ErrorResponse{Error: APIError{Code: code, Message: message}}
}
