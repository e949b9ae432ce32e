package service

import (
	"context"
	"testing"

	"github.com/golang/mock/gomock"
	"github.com/google/uuid"
	"github.com/stretchr/testify/require"

	"github.com/mkozyreva/accounts-service/internal/models"
	"github.com/mkozyreva/accounts-service/internal/storage"
)

func strPtr(s string) *string { return &s }

func TestUpdateProfile_OK(t *testing.T) {
	t.Parallel()

	svc, st, ctrl := newSvc(t)
	defer ctrl.Finish()

	userID := uuid.New()
	updated := &models.User{ID: userID, Username: "new.name", Active: true}

	st.EXPECT().UpdateProfile(gomock.Any(), userID, gomock.Any()).
		DoAndReturn(func(_ context.Context, _ uuid.UUID, patch storage.ProfilePatch) (*models.User, error) {
			require.NotNil(t, patch.Username)
			require.Equal(t, "new.name", *patch.Username)
			require.Nil(t, patch.FirstName)
			return updated, nil
		})

	got, err := svc.UpdateProfile(context.Background(), userID, ProfileUpdateInput{
		Username: strPtr("new.name"),
	})
	require.NoError(t, err)
	require.Equal(t, updated, got)
}

func TestUpdateProfile_Validation(t *testing.T) {
	t.Parallel()

	svc, _, ctrl := newSvc(t)
	defer ctrl.Finish()

	userID := uuid.New()

	// Пустой патч.
	_, err := svc.UpdateProfile(context.Background(), userID, ProfileUpdateInput{})
	require.Error(t, err)
	require.ErrorIs(t, err, ErrInvalidArgument)

	// Невалидный username.
	_, err = svc.UpdateProfile(context.Background(), userID, ProfileUpdateInput{Username: strPtr("x")})
	require.Error(t, err)
	require.ErrorIs(t, err, ErrInvalidUsername)

	// Пустое имя.
	_, err = svc.UpdateProfile(context.Background(), userID, ProfileUpdateInput{FirstName: strPtr("  ")})
	require.Error(t, err)
	require.ErrorIs(t, err, ErrInvalidName)
}

func TestUpdateProfile_UsernameTaken(t *testing.T) {
	t.Parallel()

	svc, st, ctrl := newSvc(t)
	defer ctrl.Finish()

	userID := uuid.New()
	st.EXPECT().UpdateProfile(gomock.Any(), userID, gomock.Any()).
		Return(nil, storage.ErrUsernameExists)

	_, err := svc.UpdateProfile(context.Background(), userID, ProfileUpdateInput{
		Username: strPtr("taken.name"),
	})
	require.Error(t, err)
	require.ErrorIs(t, err, ErrUsernameTaken)
}

func TestDeactivateAccount(t *testing.T) {
	t.Parallel()

	svc, st, ctrl := newSvc(t)
	defer ctrl.Finish()

	userID := uuid.New()

	st.EXPECT().SetActive(gomock.Any(), userID, false).Return(nil)
	require.NoError(t, svc.DeactivateAccount(context.Background(), userID))

	st.EXPECT().SetActive(gomock.Any(), userID, false).Return(storage.ErrNotFound)
	err := svc.DeactivateAccount(context.Background(), userID)
	require.Error(t, err)
	require.ErrorIs(t, err, ErrNotFound)
}

func TestListUsers_ClampsLimits(t *testing.T) {
	t.Parallel()

	svc, st, ctrl := newSvc(t)
	defer ctrl.Finish()

	// limit<=0 -> default, limit>max -> max, offset<0 -> 0.
	st.EXPECT().ListUsers(gomock.Any(), defaultListLimit, 0).Return([]models.User{}, nil)
	_, err := svc.ListUsers(context.Background(), 0, -5)
	require.NoError(t, err)

	st.EXPECT().ListUsers(gomock.Any(), maxListLimit, 10).Return([]models.User{}, nil)
	_, err = svc.ListUsers(context.Background(), 1000, 10)
	require.NoError(t, err)
}

func TestAdminUpdateUser(t *testing.T) {
	t.Parallel()

	svc, st, ctrl := newSvc(t)
	defer ctrl.Finish()

	userID := uuid.New()

	// Пустой патч.
	_, err := svc.AdminUpdateUser(context.Background(), userID, AdminUpdateInput{})
	require.Error(t, err)
	require.ErrorIs(t, err, ErrInvalidArgument)

	// Неизвестная роль.
	badRole := models.Role("superuser")
	_, err = svc.AdminUpdateUser(context.Background(), userID, AdminUpdateInput{Role: &badRole})
	require.Error(t, err)
	require.ErrorIs(t, err, ErrInvalidArgument)

	// Ok.
	role := models.RoleAdmin
	updated := &models.User{ID: userID, Role: role}
	st.EXPECT().UpdateUserAdmin(gomock.Any(), userID, gomock.Any()).Return(updated, nil)

	got, err := svc.AdminUpdateUser(context.Background(), userID, AdminUpdateInput{Role: &role})
	require.NoError(t, err)
	require.Equal(t, updated, got)

	// Not found.
	st.EXPECT().UpdateUserAdmin(gomock.Any(), userID, gomock.Any()).
		Return(nil, storage.ErrNotFound)
	_, err = svc.AdminUpdateUser(context.Background(), userID, AdminUpdateInput{Role: &role})
	require.Error(t, err)
	require.ErrorIs(t, err, ErrNotFound)
}

func TestAdminDeleteUser(t *testing.T) {
	t.Parallel()

	svc, st, ctrl := newSvc(t)
	defer ctrl.Finish()

	userID := uuid.New()

	st.EXPECT().DeleteUser(gomock.Any(), userID).Return(nil)
	require.NoError(t, svc.AdminDeleteUser(context.Background(), userID))

	st.EXPECT().DeleteUser(gomock.Any(), userID).Return(storage.ErrNotFound)
	err := svc.AdminDeleteUser(context.Background(), userID)
	require.Error(t, err)
	require.ErrorIs(t, err, ErrNotFound)
}
