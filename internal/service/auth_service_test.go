package service

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/workshop-scheduler/internal/models"
	appErrors "github.com/noah-isme/workshop-scheduler/pkg/errors"
)

func newAuthServiceForTest() *AuthService {
	return NewAuthService(AuthConfig{AccessTokenSecret: "secret", AccessTokenExpiry: time.Hour, Issuer: "workshop-scheduler"})
}

func TestValidateToken(t *testing.T) {
	svc := newAuthServiceForTest()
	token, expiresAt, err := svc.IssueToken("planner-1", models.RolePlanner, "Ops Planner")
	require.NoError(t, err)
	assert.WithinDuration(t, time.Now().Add(time.Hour), expiresAt, 5*time.Second)

	claims, err := svc.ValidateToken(token)
	require.NoError(t, err)
	assert.Equal(t, "planner-1", claims.UserID)
	assert.Equal(t, models.RolePlanner, claims.Role)
	assert.Equal(t, "Ops Planner", claims.FullName)
	assert.NotEmpty(t, claims.ID)
}

func TestIssueTokenValidatesInput(t *testing.T) {
	svc := newAuthServiceForTest()

	_, _, err := svc.IssueToken("", models.RoleAdmin, "")
	assert.Equal(t, appErrors.ErrValidation.Code, appErrors.FromError(err).Code)

	_, _, err = svc.IssueToken("u1", models.UserRole("OWNER"), "")
	assert.Equal(t, appErrors.ErrValidation.Code, appErrors.FromError(err).Code)
}

func TestValidateTokenRejections(t *testing.T) {
	svc := newAuthServiceForTest()
	token, _, err := svc.IssueToken("u1", models.RoleViewer, "")
	require.NoError(t, err)

	other := NewAuthService(AuthConfig{AccessTokenSecret: "other", Issuer: "workshop-scheduler"})
	_, err = other.ValidateToken(token)
	assert.Equal(t, appErrors.ErrUnauthorized.Code, appErrors.FromError(err).Code)

	foreign := NewAuthService(AuthConfig{AccessTokenSecret: "secret", Issuer: "someone-else"})
	_, err = foreign.ValidateToken(token)
	assert.Equal(t, appErrors.ErrUnauthorized.Code, appErrors.FromError(err).Code)

	later := newAuthServiceForTest()
	later.now = func() time.Time { return time.Now().Add(2 * time.Hour) }
	_, err = later.ValidateToken(token)
	assert.Equal(t, appErrors.ErrUnauthorized.Code, appErrors.FromError(err).Code)
}
