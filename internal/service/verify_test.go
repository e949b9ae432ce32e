package service

import (
	"context"
	"testing"
	"time"

	"github.com/golang/mock/gomock"
	"github.com/google/uuid"
	"github.com/stretchr/testify/require"

	"github.com/mkozyreva/accounts-service/internal/models"
	"github.com/mkozyreva/accounts-service/internal/storage"
)

func TestVerifyEmail_OK(t *testing.T) {
	t.Parallel()

	svc, st, ctrl := newSvc(t)
	defer ctrl.Finish()

	userID := uuid.New()
	plain, hash, err := newOneTimeToken()
	require.NoError(t, err)

	st.EXPECT().ConsumeVerifyToken(gomock.Any(), hash, gomock.Any()).Return(userID, nil)

	got, err := svc.VerifyEmail(context.Background(), plain)
	require.NoError(t, err)
	require.Equal(t, userID, got)
}

func TestVerifyEmail_InvalidOrConsumed(t *testing.T) {
	t.Parallel()

	svc, st, ctrl := newSvc(t)
	defer ctrl.Finish()

	// Пустой токен — без обращения к хранилищу.
	_, err := svc.VerifyEmail(context.Background(), "")
	require.Error(t, err)
	require.ErrorIs(t, err, ErrInvalidToken)

	// Неизвестный/просроченный/погашенный.
	st.EXPECT().ConsumeVerifyToken(gomock.Any(), gomock.Any(), gomock.Any()).
		Return(uuid.Nil, storage.ErrNotFound)

	_, err = svc.VerifyEmail(context.Background(), "some-token")
	require.Error(t, err)
	require.ErrorIs(t, err, ErrInvalidToken)
}

func TestRequestEmailVerification_OK(t *testing.T) {
	t.Parallel()

	mailer := &captureMailer{}
	svc, st, ctrl := newSvcWithMailer(t, mailer)
	defer ctrl.Finish()

	userID := uuid.New()
	user := &models.User{ID: userID, Email: "user@example.com", Active: true}

	var storedHash string
	st.EXPECT().UserByID(gomock.Any(), userID).Return(user, nil)
	st.EXPECT().SetVerifyToken(gomock.Any(), userID, gomock.Any(), gomock.Any()).
		DoAndReturn(func(_ context.Context, _ uuid.UUID, hash string, expiresAt time.Time) error {
			storedHash = hash
			require.WithinDuration(t, time.Now().Add(24*time.Hour), expiresAt, 2*time.Second)
			return nil
		})

	err := svc.RequestEmailVerification(context.Background(), userID)
	require.NoError(t, err)
	require.NotEmpty(t, mailer.verifyToken)
	require.Equal(t, hashOneTimeToken(mailer.verifyToken), storedHash)
}

func TestRequestEmailVerification_AlreadyVerified(t *testing.T) {
	t.Parallel()

	svc, st, ctrl := newSvc(t)
	defer ctrl.Finish()

	userID := uuid.New()
	st.EXPECT().UserByID(gomock.Any(), userID).
		Return(&models.User{ID: userID, EmailVerified: true}, nil)

	err := svc.RequestEmailVerification(context.Background(), userID)
	require.Error(t, err)
	require.ErrorIs(t, err, ErrEmailAlreadyVerified)
}

func TestRequestEmailVerification_DeactivatedAccount(t *testing.T) {
	t.Parallel()

	svc, st, ctrl := newSvc(t)
	defer ctrl.Finish()

	userID := uuid.New()
	st.EXPECT().UserByID(gomock.Any(), userID).
		Return(&models.User{ID: userID, Active: false}, nil)

	err := svc.RequestEmailVerification(context.Background(), userID)
	require.Error(t, err)
	require.ErrorIs(t, err, ErrNotFound)
}

func TestRequestEmailVerification_UserMissing(t *testing.T) {
	t.Parallel()

	svc, st, ctrl := newSvc(t)
	defer ctrl.Finish()

	userID := uuid.New()
	st.EXPECT().UserByID(gomock.Any(), userID).Return(nil, storage.ErrNotFound)

	err := svc.RequestEmailVerification(context.Background(), userID)
	require.Error(t, err)
	require.ErrorIs(t, err, ErrNotFound)
}
