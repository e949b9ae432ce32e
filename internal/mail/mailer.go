// mail — контракт внешнего отправителя уведомлений.
// Сервису доставка писем не принадлежит: он лишь передаёт получателя и
// plaintext одноразового токена; конкретный канал (SMTP, провайдер API)
// подключается реализацией интерфейса в main.
package mail

import (
	"context"
	"log/slog"

	logctx "github.com/mkozyreva/accounts-service/internal/pkg/log"
	"github.com/mkozyreva/accounts-service/internal/pkg/redact"
)

// Mailer отправляет пользователю одноразовые токены.
type Mailer interface {
	// SendPasswordReset отправляет письмо со ссылкой сброса пароля.
	SendPasswordReset(ctx context.Context, email, token string) error
	// SendEmailVerification отправляет письмо подтверждения адреса.
	SendEmailVerification(ctx context.Context, email, token string) error
}

// LogMailer — реализация для local/dev: пишет факт отправки в лог.
// Сам токен в лог не попадает.
type LogMailer struct{}

func (LogMailer) SendPasswordReset(ctx context.Context, email, _ string) error {
	logctx.From(ctx).Info("password_reset_mail_sent",
		slog.String("email", redact.Email(email)),
		slog.String("token", redact.Token()),
	)

	return nil
}

func (LogMailer) SendEmailVerification(ctx context.Context, email, _ string) error {
	logctx.From(ctx).Info("verification_mail_sent",
		slog.String("email", redact.Email(email)),
		slog.String("token", redact.Token()),
	)

	return nil
}

var _ Mailer = LogMailer{}
