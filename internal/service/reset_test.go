package service

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/golang/mock/gomock"
	"github.com/google/uuid"
	"github.com/stretchr/testify/require"

	"github.com/mkozyreva/accounts-service/internal/models"
	"github.com/mkozyreva/accounts-service/internal/storage"
	"github.com/mkozyreva/accounts-service/mocks"
)

// captureMailer запоминает последние отправленные токены.
type captureMailer struct {
	resetEmail  string
	resetToken  string
	verifyToken string
	failReset   bool
}

func (m *captureMailer) SendPasswordReset(_ context.Context, email, token string) error {
	if m.failReset {
		return errors.New("smtp down")
	}
	m.resetEmail = email
	m.resetToken = token
	return nil
}

func (m *captureMailer) SendEmailVerification(_ context.Context, _, token string) error {
	m.verifyToken = token
	return nil
}

func newSvcWithMailer(t *testing.T, mailer *captureMailer) (*Service, *mocks.MockStorage, *gomock.Controller) {
	t.Helper()
	ctrl := gomock.NewController(t)
	st := mocks.NewMockStorage(ctrl)
	svc := New(st, testCfg(), mailer)
	return svc, st, ctrl
}

func TestForgotPassword_OK(t *testing.T) {
	t.Parallel()

	mailer := &captureMailer{}
	svc, st, ctrl := newSvcWithMailer(t, mailer)
	defer ctrl.Finish()

	userID := uuid.New()
	user := &models.User{ID: userID, Email: "user@example.com", Active: true}

	var storedHash string
	var storedExpires time.Time
	st.EXPECT().UserByEmail(gomock.Any(), "user@example.com").Return(user, nil)
	st.EXPECT().SetResetToken(gomock.Any(), userID, gomock.Any(), gomock.Any()).
		DoAndReturn(func(_ context.Context, _ uuid.UUID, hash string, expiresAt time.Time) error {
			storedHash = hash
			storedExpires = expiresAt
			return nil
		})

	err := svc.ForgotPassword(context.Background(), "User@Example.com")
	require.NoError(t, err)

	// В письме plaintext, в хранилище — его хэш; TTL из конфигурации.
	require.Equal(t, "user@example.com", mailer.resetEmail)
	require.NotEmpty(t, mailer.resetToken)
	require.Equal(t, hashOneTimeToken(mailer.resetToken), storedHash)
	require.NotEqual(t, mailer.resetToken, storedHash)
	require.WithinDuration(t, time.Now().Add(10*time.Minute), storedExpires, 2*time.Second)
}

func TestForgotPassword_UnknownEmail_NotFound(t *testing.T) {
	t.Parallel()

	svc, st, ctrl := newSvc(t)
	defer ctrl.Finish()

	st.EXPECT().UserByEmail(gomock.Any(), "ghost@example.com").
		Return(nil, storage.ErrNotFound)

	err := svc.ForgotPassword(context.Background(), "ghost@example.com")
	require.Error(t, err)
	require.ErrorIs(t, err, ErrNotFound)
}

func TestForgotPassword_MailFailure_ClearsToken(t *testing.T) {
	t.Parallel()

	mailer := &captureMailer{failReset: true}
	svc, st, ctrl := newSvcWithMailer(t, mailer)
	defer ctrl.Finish()

	userID := uuid.New()
	user := &models.User{ID: userID, Email: "user@example.com", Active: true}

	st.EXPECT().UserByEmail(gomock.Any(), "user@example.com").Return(user, nil)
	// Сначала пишется токен, после сбоя почты reset-поля обнуляются.
	st.EXPECT().SetResetToken(gomock.Any(), userID, gomock.Any(), gomock.Any()).Return(nil)
	st.EXPECT().ClearResetToken(gomock.Any(), userID).Return(nil)

	err := svc.ForgotPassword(context.Background(), "user@example.com")
	require.Error(t, err)
}

func TestForgotPassword_DeactivatedAccount_NotFound(t *testing.T) {
	t.Parallel()

	mailer := &captureMailer{}
	svc, st, ctrl := newSvcWithMailer(t, mailer)
	defer ctrl.Finish()

	// Логически удалённая учётная запись неотличима от несуществующей:
	// токен не выпускается, письмо не уходит.
	st.EXPECT().UserByEmail(gomock.Any(), "gone@example.com").
		Return(&models.User{ID: uuid.New(), Email: "gone@example.com", Active: false}, nil)

	err := svc.ForgotPassword(context.Background(), "gone@example.com")
	require.Error(t, err)
	require.ErrorIs(t, err, ErrNotFound)
	require.Empty(t, mailer.resetToken)
}

func TestResetPassword_OK(t *testing.T) {
	t.Parallel()

	svc, st, ctrl := newSvc(t)
	defer ctrl.Finish()

	userID := uuid.New()
	user := &models.User{
		ID:           userID,
		Email:        "user@example.com",
		PasswordHash: mustHashPW(t, "Oldpass1!"),
		Active:       true,
	}

	plain, hash, err := newOneTimeToken()
	require.NoError(t, err)

	st.EXPECT().UserByResetTokenHash(gomock.Any(), hash, gomock.Any()).Return(user, nil)
	st.EXPECT().UpdatePassword(gomock.Any(), userID, gomock.Any(), gomock.Any()).Return(nil)
	st.EXPECT().SaveRefreshToken(gomock.Any(), gomock.Any(), 5).Return(nil)

	tp, got, err := svc.ResetPassword(context.Background(), plain, "Newpass1!", "Newpass1!")
	require.NoError(t, err)
	require.Equal(t, userID, got.ID)
	require.NotEmpty(t, tp.AccessToken)
	require.NotEmpty(t, tp.RefreshToken)
}

func TestResetPassword_InvalidOrExpiredToken(t *testing.T) {
	t.Parallel()

	svc, st, ctrl := newSvc(t)
	defer ctrl.Finish()

	// Пустой токен.
	_, _, err := svc.ResetPassword(context.Background(), "", "Newpass1!", "Newpass1!")
	require.Error(t, err)
	require.ErrorIs(t, err, ErrInvalidToken)

	// Неизвестный/просроченный/уже использованный хэш.
	st.EXPECT().UserByResetTokenHash(gomock.Any(), gomock.Any(), gomock.Any()).
		Return(nil, storage.ErrNotFound)

	_, _, err = svc.ResetPassword(context.Background(), "some-token", "Newpass1!", "Newpass1!")
	require.Error(t, err)
	require.ErrorIs(t, err, ErrInvalidToken)
}

func TestResetPassword_DeactivatedAccount_InvalidToken(t *testing.T) {
	t.Parallel()

	svc, st, ctrl := newSvc(t)
	defer ctrl.Finish()

	// Даже живой токен деактивированной учётной записи недействителен:
	// пароль не меняется, новая пара не выпускается.
	st.EXPECT().UserByResetTokenHash(gomock.Any(), gomock.Any(), gomock.Any()).
		Return(&models.User{ID: uuid.New(), Active: false}, nil)

	_, _, err := svc.ResetPassword(context.Background(), "some-token", "Newpass1!", "Newpass1!")
	require.Error(t, err)
	require.ErrorIs(t, err, ErrInvalidToken)
}

func TestResetPassword_WeakPassword_NoMutation(t *testing.T) {
	t.Parallel()

	svc, st, ctrl := newSvc(t)
	defer ctrl.Finish()

	user := &models.User{ID: uuid.New(), Active: true}

	st.EXPECT().UserByResetTokenHash(gomock.Any(), gomock.Any(), gomock.Any()).Return(user, nil)

	_, _, err := svc.ResetPassword(context.Background(), "some-token", "weak", "weak")
	require.Error(t, err)
	require.ErrorIs(t, err, ErrWeakPassword)
}

func TestNewOneTimeToken_HashDiffersFromPlain(t *testing.T) {
	t.Parallel()

	plain, hash, err := newOneTimeToken()
	require.NoError(t, err)
	require.NotEmpty(t, plain)
	require.NotEmpty(t, hash)
	require.NotEqual(t, plain, hash)
	require.Equal(t, hashOneTimeToken(plain), hash)

	// Одноразовые токены не повторяются.
	plain2, _, err := newOneTimeToken()
	require.NoError(t, err)
	require.NotEqual(t, plain, plain2)
}
