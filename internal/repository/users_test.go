package repository

import (
	"context"
	"testing"

	"github.com/goliatone/go-repository-bun"
	"github.com/goliatone/hashid/pkg/hashid"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/vetcee/portal/internal/model"
)

func TestUsersRegisterDefaults(t *testing.T) {
	db := newTestDB(t)
	repo := NewUsersRepository(db)
	ctx := context.Background()

	created, err := repo.Register(ctx, &model.User{
		Email: "  Dr.Smith@Clinic.Example  ",
		Roles: model.RoleSet{model.RoleProvider},
	})
	require.NoError(t, err)

	assert.Equal(t, "dr.smith@clinic.example", created.Email)
	assert.Equal(t, "dr.smith", created.Name)
	assert.Equal(t, model.UserStatusPending, created.Status)

	want, err := hashid.NewUUID("dr.smith@clinic.example")
	require.NoError(t, err)
	assert.Equal(t, want, created.ID, "id derives from the normalized email")
}

func TestUsersGetByEmailNormalizes(t *testing.T) {
	db := newTestDB(t)
	repo := NewUsersRepository(db)
	ctx := context.Background()

	_, err := repo.Register(ctx, &model.User{Email: "vet@clinic.example"})
	require.NoError(t, err)

	found, err := repo.GetByEmail(ctx, "VET@clinic.example")
	require.NoError(t, err)
	assert.Equal(t, "vet@clinic.example", found.Email)

	_, err = repo.GetByEmail(ctx, "nobody@clinic.example")
	require.Error(t, err)
	assert.True(t, repository.IsRecordNotFound(err))
}

func TestUsersUpdateStatusAndRoles(t *testing.T) {
	db := newTestDB(t)
	repo := NewUsersRepository(db)
	ctx := context.Background()

	created, err := repo.Register(ctx, &model.User{Email: "pending@clinic.example"})
	require.NoError(t, err)
	require.Equal(t, model.UserStatusPending, created.Status)

	_, err = repo.UpdateStatus(ctx, created.ID, "APPROVED")
	require.NoError(t, err)

	found, err := repo.GetByEmail(ctx, "pending@clinic.example")
	require.NoError(t, err)
	assert.Equal(t, model.UserStatusApproved, found.Status, "legacy casing normalized on write")
	assert.True(t, found.IsApproved())

	_, err = repo.UpdateRoles(ctx, created.ID, model.RoleSet{model.RoleProvider, model.RoleReviewer})
	require.NoError(t, err)

	found, err = repo.GetByEmail(ctx, "pending@clinic.example")
	require.NoError(t, err)
	assert.True(t, found.Roles.Has(model.RoleProvider))
	assert.True(t, found.Roles.Has(model.RoleReviewer))
	assert.False(t, found.Roles.HasAdmin())
}

func TestUsersListAll(t *testing.T) {
	db := newTestDB(t)
	repo := NewUsersRepository(db)
	ctx := context.Background()

	for _, email := range []string{"one@clinic.example", "two@clinic.example"} {
		_, err := repo.Register(ctx, &model.User{Email: email})
		require.NoError(t, err)
	}

	all, err := repo.ListAll(ctx)
	require.NoError(t, err)
	assert.Len(t, all, 2)
	for _, u := range all {
		assert.NotEqual(t, uuid.Nil, u.ID)
		assert.NotEmpty(t, u.Status)
	}
}
