package service

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/golang/mock/gomock"
	"github.com/google/uuid"
	"github.com/stretchr/testify/require"

	"github.com/mkozyreva/accounts-service/internal/config"
	"github.com/mkozyreva/accounts-service/internal/models"
	"github.com/mkozyreva/accounts-service/internal/storage"
	"github.com/mkozyreva/accounts-service/mocks"
)

func testCfg() config.AuthConfig {
	return config.AuthConfig{
		JWTSecret:         "unit-secret",
		RefreshSecret:     "unit-refresh-secret",
		AccessTokenTTL:    30 * time.Second,
		RefreshTokenTTL:   24 * time.Hour,
		Issuer:            "accounts-service",
		Audience:          []string{"web-client"},
		RefreshTokenLimit: 5,
		MaxLoginAttempts:  5,
		LockDuration:      2 * time.Hour,
		ResetTokenTTL:     10 * time.Minute,
		VerifyTokenTTL:    24 * time.Hour,
	}
}

func newSvc(t *testing.T) (*Service, *mocks.MockStorage, *gomock.Controller) {
	t.Helper()
	ctrl := gomock.NewController(t)
	st := mocks.NewMockStorage(ctrl)
	svc := New(st, testCfg(), nil)
	return svc, st, ctrl
}

func mustHashPW(t *testing.T, pw string) string {
	t.Helper()
	h, err := hashPassword(pw)
	require.NoError(t, err)
	return h
}

func validRegisterInput() RegisterInput {
	return RegisterInput{
		FirstName:       "Anna",
		LastName:        "Smith",
		Email:           "User@Example.com",
		Username:        "anna.smith",
		Password:        "Abcdef1!",
		PasswordConfirm: "Abcdef1!",
	}
}

func TestRegisterUser_OK(t *testing.T) {
	t.Parallel()

	svc, st, ctrl := newSvc(t)
	defer ctrl.Finish()

	ctx := context.Background()

	var saved *models.User
	st.EXPECT().SaveUser(gomock.Any(), gomock.Any()).
		DoAndReturn(func(_ context.Context, u *models.User) error {
			saved = u
			return nil
		})
	st.EXPECT().SetVerifyToken(gomock.Any(), gomock.Any(), gomock.Any(), gomock.Any()).Return(nil)
	st.EXPECT().SaveRefreshToken(gomock.Any(), gomock.Any(), 5).Return(nil)

	tp, user, err := svc.RegisterUser(ctx, validRegisterInput())
	require.NoError(t, err)
	require.NotNil(t, user)
	require.NotEqual(t, uuid.Nil, user.ID)
	require.NotEmpty(t, tp.AccessToken)
	require.NotEmpty(t, tp.RefreshToken)

	// email нормализован, роль и флаги выставлены.
	require.NotNil(t, saved)
	require.Equal(t, "user@example.com", saved.Email)
	require.Equal(t, models.RoleUser, saved.Role)
	require.True(t, saved.Active)
	require.False(t, saved.EmailVerified)
	require.NotEqual(t, "Abcdef1!", saved.PasswordHash)

	require.WithinDuration(t, time.Now().Add(svc.cfg.AccessTokenTTL), tp.AccessExpiresAt, 2*time.Second)
}

func TestRegisterUser_ValidationErrors(t *testing.T) {
	t.Parallel()

	svc, _, ctrl := newSvc(t)
	defer ctrl.Finish()

	ctx := context.Background()

	tests := []struct {
		name    string
		mutate  func(*RegisterInput)
		wantErr error
	}{
		{"invalid_email", func(in *RegisterInput) { in.Email = "not-an-email" }, ErrInvalidEmail},
		{"empty_password", func(in *RegisterInput) { in.Password, in.PasswordConfirm = "", "" }, ErrEmptyPassword},
		{"short_password", func(in *RegisterInput) { in.Password, in.PasswordConfirm = "Ab1!", "Ab1!" }, ErrWeakPassword},
		{"no_special", func(in *RegisterInput) { in.Password, in.PasswordConfirm = "Abcdefg1", "Abcdefg1" }, ErrWeakPassword},
		{"mismatch", func(in *RegisterInput) { in.PasswordConfirm = "Other1!x" }, ErrPasswordMismatch},
		{"short_username", func(in *RegisterInput) { in.Username = "ab" }, ErrInvalidUsername},
		{"bad_username_chars", func(in *RegisterInput) { in.Username = "anna smith" }, ErrInvalidUsername},
		{"empty_first_name", func(in *RegisterInput) { in.FirstName = "  " }, ErrInvalidName},
		{"empty_last_name", func(in *RegisterInput) { in.LastName = "" }, ErrInvalidName},
	}

	for _, tc := range tests {
		tc := tc
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()

			in := validRegisterInput()
			tc.mutate(&in)

			_, _, err := svc.RegisterUser(ctx, in)
			require.Error(t, err)
			require.ErrorIs(t, err, tc.wantErr)
		})
	}
}

func TestRegisterUser_DuplicateMapping(t *testing.T) {
	t.Parallel()

	svc, st, ctrl := newSvc(t)
	defer ctrl.Finish()

	st.EXPECT().SaveUser(gomock.Any(), gomock.Any()).Return(storage.ErrEmailExists)
	_, _, err := svc.RegisterUser(context.Background(), validRegisterInput())
	require.Error(t, err)
	require.ErrorIs(t, err, ErrEmailTaken)

	st.EXPECT().SaveUser(gomock.Any(), gomock.Any()).Return(storage.ErrUsernameExists)
	_, _, err = svc.RegisterUser(context.Background(), validRegisterInput())
	require.Error(t, err)
	require.ErrorIs(t, err, ErrUsernameTaken)
}

func TestRegisterUser_SaveUserOtherError_Propagated(t *testing.T) {
	t.Parallel()

	svc, st, ctrl := newSvc(t)
	defer ctrl.Finish()

	st.EXPECT().SaveUser(gomock.Any(), gomock.Any()).Return(errors.New("insert failed"))

	_, _, err := svc.RegisterUser(context.Background(), validRegisterInput())
	require.Error(t, err)
}

func TestRegisterUser_VerifyMailFailure_DoesNotBlock(t *testing.T) {
	t.Parallel()

	svc, st, ctrl := newSvc(t)
	defer ctrl.Finish()

	// SetVerifyToken падает — регистрация всё равно успешна.
	st.EXPECT().SaveUser(gomock.Any(), gomock.Any()).Return(nil)
	st.EXPECT().SetVerifyToken(gomock.Any(), gomock.Any(), gomock.Any(), gomock.Any()).
		Return(errors.New("db down"))
	st.EXPECT().SaveRefreshToken(gomock.Any(), gomock.Any(), 5).Return(nil)

	tp, user, err := svc.RegisterUser(context.Background(), validRegisterInput())
	require.NoError(t, err)
	require.NotNil(t, user)
	require.NotEmpty(t, tp.AccessToken)
}

func TestLoginUser_OK(t *testing.T) {
	t.Parallel()

	svc, st, ctrl := newSvc(t)
	defer ctrl.Finish()

	ctx := context.Background()
	email := "user@example.com"
	pw := "Abcdef1!"
	user := &models.User{
		ID:           uuid.New(),
		Email:        email,
		PasswordHash: mustHashPW(t, pw),
		Active:       true,
	}

	st.EXPECT().UserByEmail(gomock.Any(), email).Return(user, nil)
	st.EXPECT().RegisterLoginSuccess(gomock.Any(), user.ID, gomock.Any()).Return(nil)
	st.EXPECT().SaveRefreshToken(gomock.Any(), gomock.Any(), 5).Return(nil)

	tp, got, err := svc.LoginUser(ctx, email, pw)
	require.NoError(t, err)
	require.Equal(t, user.ID, got.ID)
	require.NotEmpty(t, tp.AccessToken)
	require.NotEmpty(t, tp.RefreshToken)
}

func TestLoginUser_InvalidEmail_OrEmptyPassword(t *testing.T) {
	t.Parallel()

	svc, _, ctrl := newSvc(t)
	defer ctrl.Finish()

	_, _, err := svc.LoginUser(context.Background(), "bad", "Abcdef1!")
	require.Error(t, err)
	require.ErrorIs(t, err, ErrInvalidCredentials)

	_, _, err = svc.LoginUser(context.Background(), "user@example.com", "")
	require.Error(t, err)
	require.ErrorIs(t, err, ErrInvalidCredentials)
}

func TestLoginUser_UserNotFound_OrWrongPassword(t *testing.T) {
	t.Parallel()

	svc, st, ctrl := newSvc(t)
	defer ctrl.Finish()

	st.EXPECT().UserByEmail(gomock.Any(), "user@example.com").
		Return(nil, storage.ErrNotFound)

	_, _, err := svc.LoginUser(context.Background(), "user@example.com", "Abcdef1!")
	require.Error(t, err)
	require.ErrorIs(t, err, ErrInvalidCredentials)

	// wrong password: счётчик неудач инкрементируется.
	user := &models.User{
		ID:           uuid.New(),
		Email:        "user@example.com",
		PasswordHash: mustHashPW(t, "Abcdef1!"),
		Active:       true,
	}
	st.EXPECT().UserByEmail(gomock.Any(), "user@example.com").Return(user, nil)
	st.EXPECT().RegisterLoginFailure(gomock.Any(), user.ID, 5, 2*time.Hour, gomock.Any()).
		Return(1, nil, nil)

	_, _, err = svc.LoginUser(context.Background(), "user@example.com", "WRONG1!x")
	require.Error(t, err)
	require.ErrorIs(t, err, ErrInvalidCredentials)
}

func TestLoginUser_LockedAccount_RejectsBeforePasswordCheck(t *testing.T) {
	t.Parallel()

	svc, st, ctrl := newSvc(t)
	defer ctrl.Finish()

	lockUntil := time.Now().UTC().Add(time.Hour)
	user := &models.User{
		ID:           uuid.New(),
		Email:        "user@example.com",
		PasswordHash: mustHashPW(t, "Abcdef1!"),
		Active:       true,
		LockUntil:    &lockUntil,
	}

	// Даже верный пароль внутри окна блокировки — ErrAccountLocked,
	// без вызовов RegisterLoginFailure/RegisterLoginSuccess.
	st.EXPECT().UserByEmail(gomock.Any(), "user@example.com").Return(user, nil)

	_, _, err := svc.LoginUser(context.Background(), "user@example.com", "Abcdef1!")
	require.Error(t, err)
	require.ErrorIs(t, err, ErrAccountLocked)
}

func TestLoginUser_LockExpired_AllowsLogin(t *testing.T) {
	t.Parallel()

	svc, st, ctrl := newSvc(t)
	defer ctrl.Finish()

	lockUntil := time.Now().UTC().Add(-time.Minute)
	user := &models.User{
		ID:           uuid.New(),
		Email:        "user@example.com",
		PasswordHash: mustHashPW(t, "Abcdef1!"),
		Active:       true,
		LockUntil:    &lockUntil,
	}

	st.EXPECT().UserByEmail(gomock.Any(), "user@example.com").Return(user, nil)
	st.EXPECT().RegisterLoginSuccess(gomock.Any(), user.ID, gomock.Any()).Return(nil)
	st.EXPECT().SaveRefreshToken(gomock.Any(), gomock.Any(), 5).Return(nil)

	_, _, err := svc.LoginUser(context.Background(), "user@example.com", "Abcdef1!")
	require.NoError(t, err)
}

func TestLoginUser_FifthFailure_SetsLock(t *testing.T) {
	t.Parallel()

	svc, st, ctrl := newSvc(t)
	defer ctrl.Finish()

	user := &models.User{
		ID:           uuid.New(),
		Email:        "user@example.com",
		PasswordHash: mustHashPW(t, "Abcdef1!"),
		Active:       true,
	}

	lockUntil := time.Now().UTC().Add(2 * time.Hour)
	st.EXPECT().UserByEmail(gomock.Any(), "user@example.com").Return(user, nil)
	st.EXPECT().RegisterLoginFailure(gomock.Any(), user.ID, 5, 2*time.Hour, gomock.Any()).
		Return(0, &lockUntil, nil)

	// Сама попытка, поставившая блокировку, отвечает invalid credentials.
	_, _, err := svc.LoginUser(context.Background(), "user@example.com", "WRONG1!x")
	require.Error(t, err)
	require.ErrorIs(t, err, ErrInvalidCredentials)
}

func TestLoginUser_InactiveAccount(t *testing.T) {
	t.Parallel()

	svc, st, ctrl := newSvc(t)
	defer ctrl.Finish()

	user := &models.User{
		ID:           uuid.New(),
		Email:        "user@example.com",
		PasswordHash: mustHashPW(t, "Abcdef1!"),
		Active:       false,
	}

	st.EXPECT().UserByEmail(gomock.Any(), "user@example.com").Return(user, nil)

	_, _, err := svc.LoginUser(context.Background(), "user@example.com", "Abcdef1!")
	require.Error(t, err)
	require.ErrorIs(t, err, ErrInvalidCredentials)
}

func TestChangePassword_OK(t *testing.T) {
	t.Parallel()

	svc, st, ctrl := newSvc(t)
	defer ctrl.Finish()

	userID := uuid.New()
	user := &models.User{
		ID:           userID,
		Email:        "user@example.com",
		PasswordHash: mustHashPW(t, "Abcdef1!"),
		Active:       true,
	}

	var changedAt time.Time
	st.EXPECT().UserByID(gomock.Any(), userID).Return(user, nil)
	st.EXPECT().UpdatePassword(gomock.Any(), userID, gomock.Any(), gomock.Any()).
		DoAndReturn(func(_ context.Context, _ uuid.UUID, _ string, at time.Time) error {
			changedAt = at
			return nil
		})
	st.EXPECT().SaveRefreshToken(gomock.Any(), gomock.Any(), 5).Return(nil)

	tp, err := svc.ChangePassword(context.Background(), userID, "Abcdef1!", "Newpass1!", "Newpass1!")
	require.NoError(t, err)
	require.NotEmpty(t, tp.AccessToken)

	// password_changed_at сдвинут в прошлое относительно "сейчас".
	require.True(t, changedAt.Before(time.Now().UTC()))
}

func TestChangePassword_WrongCurrent(t *testing.T) {
	t.Parallel()

	svc, st, ctrl := newSvc(t)
	defer ctrl.Finish()

	userID := uuid.New()
	user := &models.User{
		ID:           userID,
		PasswordHash: mustHashPW(t, "Abcdef1!"),
		Active:       true,
	}

	st.EXPECT().UserByID(gomock.Any(), userID).Return(user, nil)

	_, err := svc.ChangePassword(context.Background(), userID, "WRONG1!x", "Newpass1!", "Newpass1!")
	require.Error(t, err)
	require.ErrorIs(t, err, ErrInvalidCredentials)
}

func TestChangePassword_WeakNew_OrMismatch(t *testing.T) {
	t.Parallel()

	svc, st, ctrl := newSvc(t)
	defer ctrl.Finish()

	userID := uuid.New()
	user := &models.User{
		ID:           userID,
		PasswordHash: mustHashPW(t, "Abcdef1!"),
		Active:       true,
	}

	st.EXPECT().UserByID(gomock.Any(), userID).Return(user, nil)
	_, err := svc.ChangePassword(context.Background(), userID, "Abcdef1!", "weak", "weak")
	require.Error(t, err)
	require.ErrorIs(t, err, ErrWeakPassword)

	st.EXPECT().UserByID(gomock.Any(), userID).Return(user, nil)
	_, err = svc.ChangePassword(context.Background(), userID, "Abcdef1!", "Newpass1!", "Other1!xx")
	require.Error(t, err)
	require.ErrorIs(t, err, ErrPasswordMismatch)
}
