// service содержит бизнес-логику accounts-сервиса:
// регистрацию/аутентификацию пользователей, выпуск/проверку токенов,
// политику блокировки, одноразовые токены (сброс пароля, подтверждение
// email) и операции над профилями через интерфейсы из пакета storage.
//
// Основные аспекты:
//   - Пакет не хранит состояние запроса внутри Service; экземпляр Service
//     безопасен для конкурентного использования из разных горутин при условии,
//     что переданное хранилище (storage.Storage) потокобезопасно.
//   - Ошибки возвращаются сентинелами и далее маппятся HTTP-транспортом
//     на статусы (см. комментарии к переменным ошибок ниже).
package service

import (
	"errors"

	"github.com/mkozyreva/accounts-service/internal/cache"
	"github.com/mkozyreva/accounts-service/internal/config"
	"github.com/mkozyreva/accounts-service/internal/mail"
	"github.com/mkozyreva/accounts-service/internal/storage"
)

var (
	// ErrInvalidCredentials — пара логин/пароль неверна, пользователь не найден
	// или учётная запись неактивна. Транспорт: HTTP 401.
	ErrInvalidCredentials = errors.New("invalid credentials")

	// ErrAccountLocked — учётная запись временно заблокирована после серии
	// неудачных входов; проверка идёт до сравнения пароля. Транспорт: HTTP 423.
	ErrAccountLocked = errors.New("account temporarily locked")

	// ErrInvalidToken — токен (access/refresh/одноразовый) некорректен по
	// формату/подписи или отсутствует в хранилище. Транспорт: HTTP 401
	// (для одноразовых токенов — HTTP 400).
	ErrInvalidToken = errors.New("invalid token")

	// ErrTokenExpired — срок действия токена истёк. Транспорт: HTTP 401.
	ErrTokenExpired = errors.New("token expired")

	// ErrTokenRevoked — токен отозван (logout/compromise) и недействителен
	// независимо от срока. Транспорт: HTTP 401.
	ErrTokenRevoked = errors.New("token revoked")

	// ErrEmailTaken — e-mail уже занят другим пользователем. Транспорт: HTTP 400.
	ErrEmailTaken = errors.New("email already taken")

	// ErrUsernameTaken — username уже занят другим пользователем. Транспорт: HTTP 400.
	ErrUsernameTaken = errors.New("username already taken")

	// ErrInvalidEmail — e-mail имеет некорректный формат. Транспорт: HTTP 400.
	ErrInvalidEmail = errors.New("invalid email format")

	// ErrWeakPassword — пароль не удовлетворяет политикам сложности. Транспорт: HTTP 400.
	ErrWeakPassword = errors.New("password is too weak")

	// ErrEmptyPassword — пароль пустой. Транспорт: HTTP 400.
	ErrEmptyPassword = errors.New("password is empty")

	// ErrPasswordMismatch — пароль и подтверждение не совпадают. Транспорт: HTTP 400.
	ErrPasswordMismatch = errors.New("passwords do not match")

	// ErrInvalidUsername — username не проходит валидацию. Транспорт: HTTP 400.
	ErrInvalidUsername = errors.New("invalid username")

	// ErrInvalidName — имя/фамилия пустые. Транспорт: HTTP 400.
	ErrInvalidName = errors.New("invalid name")

	// ErrEmailAlreadyVerified — адрес уже подтверждён. Транспорт: HTTP 400.
	ErrEmailAlreadyVerified = errors.New("email already verified")

	// ErrNotFound — запрошенная сущность не найдена. Транспорт: HTTP 404.
	ErrNotFound = errors.New("not found")

	// ErrInvalidArgument — некорректные аргументы операции. Транспорт: HTTP 400.
	ErrInvalidArgument = errors.New("invalid argument")
)

// Service описывает бизнес-логику accounts-сервиса.
type Service struct {
	storage storage.Storage
	cfg     config.AuthConfig
	mailer  mail.Mailer
	rcache  cache.RefreshCache // может быть nil, если кэш не сконфигурирован
}

// New создаёт новый экземпляр Service.
func New(storage storage.Storage, cfg config.AuthConfig, mailer mail.Mailer) *Service {
	if mailer == nil {
		mailer = mail.LogMailer{}
	}

	return &Service{
		storage: storage,
		cfg:     cfg,
		mailer:  mailer,
	}
}

// SetRefreshCache устанавливает кэш refresh-токенов (опционально).
func (s *Service) SetRefreshCache(c cache.RefreshCache) {
	s.rcache = c
}
