package auth_test

import (
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	goerrors "github.com/goliatone/go-errors"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/vetcee/portal/internal/auth"
	"github.com/vetcee/portal/internal/model"
)

var signingKey = []byte("test-signing-key-better-than-nothing")

func newTokenService(opts ...auth.TokenServiceOption) *auth.TokenService {
	return auth.NewTokenService(
		signingKey,
		"vetcee-portal",
		jwt.ClaimStrings{"vetcee-portal"},
		24*time.Hour,
		8*time.Hour,
		opts...,
	)
}

func testUser(roles ...model.Role) *model.User {
	return &model.User{
		ID:     uuid.New(),
		Email:  "vet@clinic.example",
		Roles:  model.RoleSet(roles),
		Status: model.UserStatusApproved,
	}
}

func TestMintAndValidate(t *testing.T) {
	service := newTokenService()
	user := testUser(model.RoleProvider)
	orgID := uuid.New()
	user.OrganizationID = &orgID

	signed, minted, err := service.Mint(user, nil)
	require.NoError(t, err)
	require.NotEmpty(t, signed)

	claims, err := service.Validate(signed)
	require.NoError(t, err)

	assert.Equal(t, user.ID.String(), claims.UserID())
	assert.Equal(t, []string{"Provider"}, claims.Roles)
	assert.Equal(t, "approved", claims.Status)
	assert.Equal(t, orgID.String(), claims.OrganizationID)
	assert.True(t, claims.Approved())
	assert.False(t, claims.Impersonated())
	assert.Equal(t, minted.ID, claims.ID)

	parsed, err := claims.UserUUID()
	require.NoError(t, err)
	assert.Equal(t, user.ID, parsed)
}

func TestMintCredentialLifetimes(t *testing.T) {
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	service := newTokenService(auth.WithTokenClock(func() time.Time { return now }))

	tests := []struct {
		name  string
		roles []model.Role
		want  time.Duration
	}{
		{"provider gets the base lifetime", []model.Role{model.RoleProvider}, 24 * time.Hour},
		{"reviewer gets the base lifetime", []model.Role{model.RoleReviewer}, 24 * time.Hour},
		{"full admin gets the short lifetime", []model.Role{model.RoleAdminFull}, 8 * time.Hour},
		{"read only admin gets the short lifetime", []model.Role{model.RoleAdminReadOnly}, 8 * time.Hour},
		{"mixed set with admin gets the short lifetime", []model.Role{model.RoleProvider, model.RoleAdminFull}, 8 * time.Hour},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, claims, err := service.Mint(testUser(tt.roles...), nil)
			require.NoError(t, err)
			assert.Equal(t, now.Add(tt.want), claims.ExpiresAt.Time)
		})
	}
}

func TestMintFreshNoncePerCredential(t *testing.T) {
	service := newTokenService()
	user := testUser(model.RoleProvider)

	_, first, err := service.Mint(user, nil)
	require.NoError(t, err)
	_, second, err := service.Mint(user, nil)
	require.NoError(t, err)

	assert.NotEqual(t, first.ID, second.ID, "each credential carries its own nonce")
}

func TestMintImpersonation(t *testing.T) {
	service := newTokenService()
	adminID := uuid.New()

	signed, _, err := service.Mint(testUser(model.RoleProvider), &adminID)
	require.NoError(t, err)

	claims, err := service.Validate(signed)
	require.NoError(t, err)
	assert.True(t, claims.Impersonated())
	assert.Equal(t, adminID.String(), claims.ImpersonatorID)
}

func TestValidateExpired(t *testing.T) {
	past := time.Now().Add(-48 * time.Hour)
	service := newTokenService(auth.WithTokenClock(func() time.Time { return past }))

	signed, _, err := service.Mint(testUser(model.RoleProvider), nil)
	require.NoError(t, err)

	claims, err := newTokenService().Validate(signed)
	assert.Nil(t, claims)
	assert.ErrorIs(t, err, auth.ErrTokenExpired)
}

func TestValidateFailsClosed(t *testing.T) {
	service := newTokenService()

	t.Run("malformed credential", func(t *testing.T) {
		claims, err := service.Validate("not.a.credential")
		assert.Nil(t, claims)

		var richErr *goerrors.Error
		if assert.ErrorAs(t, err, &richErr) {
			assert.Equal(t, auth.TextCodeBadSession, richErr.TextCode)
		}
	})

	t.Run("wrong signing key", func(t *testing.T) {
		other := auth.NewTokenService([]byte("some-other-key"), "vetcee-portal",
			jwt.ClaimStrings{"vetcee-portal"}, 24*time.Hour, 8*time.Hour)
		signed, _, err := other.Mint(testUser(model.RoleProvider), nil)
		require.NoError(t, err)

		claims, err := service.Validate(signed)
		assert.Nil(t, claims)
		assert.Error(t, err)
	})

	t.Run("unexpected signing method", func(t *testing.T) {
		token := jwt.NewWithClaims(jwt.SigningMethodNone, jwt.MapClaims{
			"iss": "vetcee-portal",
			"aud": "vetcee-portal",
			"sub": uuid.NewString(),
		})
		signed, err := token.SignedString(jwt.UnsafeAllowNoneSignatureType)
		require.NoError(t, err)

		claims, err := service.Validate(signed)
		assert.Nil(t, claims)
		assert.Error(t, err)
	})

	t.Run("wrong issuer", func(t *testing.T) {
		other := auth.NewTokenService(signingKey, "someone-else",
			jwt.ClaimStrings{"vetcee-portal"}, 24*time.Hour, 8*time.Hour)
		signed, _, err := other.Mint(testUser(model.RoleProvider), nil)
		require.NoError(t, err)

		claims, err := service.Validate(signed)
		assert.Nil(t, claims)
		assert.Error(t, err)
	})

	t.Run("wrong audience", func(t *testing.T) {
		other := auth.NewTokenService(signingKey, "vetcee-portal",
			jwt.ClaimStrings{"someone-else"}, 24*time.Hour, 8*time.Hour)
		signed, _, err := other.Mint(testUser(model.RoleProvider), nil)
		require.NoError(t, err)

		claims, err := service.Validate(signed)
		assert.Nil(t, claims)

		var richErr *goerrors.Error
		if assert.ErrorAs(t, err, &richErr) {
			assert.Equal(t, auth.TextCodeBadSession, richErr.TextCode)
		}
	})
}

func TestPolicySubjectProjection(t *testing.T) {
	service := newTokenService()
	user := testUser(model.RoleAdminFull)
	orgID := uuid.New()
	user.OrganizationID = &orgID

	signed, _, err := service.Mint(user, nil)
	require.NoError(t, err)
	claims, err := service.Validate(signed)
	require.NoError(t, err)

	sub := claims.PolicySubject()
	assert.True(t, sub.Roles.HasAdmin())
	assert.Equal(t, model.UserStatusApproved, sub.Status)
	require.NotNil(t, sub.OrganizationID)
	assert.Equal(t, orgID, *sub.OrganizationID)
}
