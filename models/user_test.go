package models_test

import (
	"context"
	"testing"
	"time"

	"bitbucket.org/easyadvisor/fingov_backend/config"
	"bitbucket.org/easyadvisor/fingov_backend/models"
	"bitbucket.org/easyadvisor/fingov_backend/testutil"
	"bitbucket.org/easyadvisor/fingov_backend/utils"
	"github.com/stretchr/testify/require"
)

func TestRegisterFirstUserOnlyOnce(t *testing.T) {
	testutil.NewDB(t)
	ctx := context.Background()

	admin, err := models.RegisterFirstUser(ctx, models.NewUser{Username: "root", Password: "s3cret", Role: "AGENT"})
	require.NoError(t, err)
	require.Equal(t, models.UserRoleAdmin, admin.Role)
	require.Equal(t, "root", admin.FullName)

	_, err = models.RegisterFirstUser(ctx, models.NewUser{Username: "second", Password: "pw"})
	require.ErrorIs(t, err, models.ErrRegistrationDisabled)
}

func TestCreateUserValidatesRoleAndUsername(t *testing.T) {
	testutil.NewDB(t)
	ctx := context.Background()

	u, err := models.CreateUser(ctx, models.NewUser{Username: "asha", Password: "pw", Email: "asha@example.in"})
	require.NoError(t, err)
	require.Equal(t, models.UserRoleAgent, u.Role)
	require.NotNil(t, u.Email)

	m, err := models.CreateUser(ctx, models.NewUser{Username: "mgr", Password: "pw", Role: "manager"})
	require.NoError(t, err)
	require.Equal(t, models.UserRoleManager, m.Role)

	_, err = models.CreateUser(ctx, models.NewUser{Username: "x", Password: "pw", Role: "OWNER"})
	require.ErrorIs(t, err, models.ErrInvalidRole)

	_, err = models.CreateUser(ctx, models.NewUser{Username: "asha", Password: "other"})
	require.ErrorIs(t, err, models.ErrUsernameTaken)

	users, err := models.ListUsers(ctx)
	require.NoError(t, err)
	require.Len(t, users, 2)
}

func TestLoginRefreshLogout(t *testing.T) {
	testutil.NewDB(t)
	ctx := context.Background()

	u, err := models.CreateUser(ctx, models.NewUser{Username: "asha", Password: "pw", Role: "AGENT"})
	require.NoError(t, err)

	_, err = models.Login(ctx, "asha", "wrong", "")
	require.ErrorIs(t, err, models.ErrInvalidCredentials)
	_, err = models.Login(ctx, "nobody", "pw", "")
	require.ErrorIs(t, err, models.ErrInvalidCredentials)

	pair, err := models.Login(ctx, "asha", "pw", "tab-7")
	require.NoError(t, err)
	require.Equal(t, "bearer", pair.TokenType)
	require.NotEmpty(t, pair.RefreshToken)

	claims, err := utils.JwtValidate(pair.AccessToken)
	require.NoError(t, err)
	require.Equal(t, "asha", claims.Subject)
	require.Equal(t, u.ID, claims.UserID)
	require.Equal(t, "AGENT", claims.Role)

	stored, err := models.GetUserByUsername(ctx, "asha")
	require.NoError(t, err)
	require.NotNil(t, stored.LastLogin)

	refreshed, err := models.RefreshAccessToken(ctx, pair.RefreshToken)
	require.NoError(t, err)
	require.NotEmpty(t, refreshed.AccessToken)
	require.Empty(t, refreshed.RefreshToken)

	require.NoError(t, models.Logout(ctx, pair.RefreshToken))
	_, err = models.RefreshAccessToken(ctx, pair.RefreshToken)
	require.ErrorIs(t, err, models.ErrInvalidRefreshToken)

	require.ErrorIs(t, models.Logout(ctx, "unknown-token"), utils.ErrorRecordNotFound)
}

func TestRefreshTokenExpired(t *testing.T) {
	testutil.NewDB(t)
	ctx := context.Background()

	_, err := models.CreateUser(ctx, models.NewUser{Username: "asha", Password: "pw"})
	require.NoError(t, err)
	pair, err := models.Login(ctx, "asha", "pw", "")
	require.NoError(t, err)

	require.NoError(t, config.GetDB().Model(&models.RefreshToken{}).
		Where("token = ?", pair.RefreshToken).
		Update("expires_at", time.Now().UTC().Add(-time.Minute)).Error)

	_, err = models.RefreshAccessToken(ctx, pair.RefreshToken)
	require.ErrorIs(t, err, models.ErrRefreshTokenExpired)
}

func TestInactiveUserCannotLogin(t *testing.T) {
	testutil.NewDB(t)
	ctx := context.Background()

	_, err := models.CreateUser(ctx, models.NewUser{Username: "gone", Password: "pw"})
	require.NoError(t, err)
	require.NoError(t, config.GetDB().Model(&models.User{}).Where("username = ?", "gone").Update("is_active", false).Error)

	_, err = models.Login(ctx, "gone", "pw", "")
	require.ErrorIs(t, err, models.ErrUserInactive)
}

func TestLogAdminAction(t *testing.T) {
	testutil.NewDB(t)
	ctx := utils.SetUsernameInContext(context.Background(), "root")
	ctx = utils.SetClientIPInContext(ctx, "10.0.0.9")

	models.LogAdminAction(ctx, "create_user", "asha", map[string]string{"role": "AGENT"})

	var rows []models.AdminAudit
	require.NoError(t, config.GetDB().Find(&rows).Error)
	require.Len(t, rows, 1)
	require.Equal(t, "root", rows[0].ActorUsername)
	require.Equal(t, "10.0.0.9", rows[0].IpAddress)
	require.JSONEq(t, `{"role":"AGENT"}`, rows[0].Details)
}

func TestEnsureAdmin(t *testing.T) {
	testutil.NewDB(t)
	ctx := context.Background()

	created, err := models.EnsureAdmin(ctx, "fingovAdmin", "first")
	require.NoError(t, err)
	require.True(t, created)

	_, err = models.CreateUser(ctx, models.NewUser{Username: "asha", Password: "pw"})
	require.NoError(t, err)
	require.NoError(t, config.GetDB().Model(&models.User{}).Where("username = ?", "asha").Update("is_active", false).Error)

	created, err = models.EnsureAdmin(ctx, "asha", "second")
	require.NoError(t, err)
	require.False(t, created)

	u, err := models.GetUserByUsername(ctx, "asha")
	require.NoError(t, err)
	require.Equal(t, models.UserRoleAdmin, u.Role)
	require.True(t, u.Active())
	_, err = models.Login(ctx, "asha", "second", "")
	require.NoError(t, err)
}
