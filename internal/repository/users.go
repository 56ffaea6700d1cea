package repository

import (
	"context"
	"strings"

	"github.com/goliatone/go-repository-bun"
	"github.com/goliatone/hashid/pkg/hashid"
	"github.com/google/uuid"
	"github.com/uptrace/bun"

	"github.com/vetcee/portal/internal/model"
)

// Users is the user store surface the rest of the portal consumes.
type Users interface {
	repository.Repository[*model.User]

	GetByEmail(ctx context.Context, email string) (*model.User, error)
	GetByEmailTx(ctx context.Context, tx bun.IDB, email string) (*model.User, error)
	GetUser(ctx context.Context, id uuid.UUID) (*model.User, error)
	UpdateProfile(ctx context.Context, id uuid.UUID, name string) (*model.User, error)
	Register(ctx context.Context, user *model.User) (*model.User, error)
	RegisterTx(ctx context.Context, tx bun.IDB, user *model.User) (*model.User, error)
	UpdateStatus(ctx context.Context, id uuid.UUID, status model.UserStatus) (*model.User, error)
	UpdateStatusTx(ctx context.Context, tx bun.IDB, id uuid.UUID, status model.UserStatus) (*model.User, error)
	UpdateRoles(ctx context.Context, id uuid.UUID, roles model.RoleSet) (*model.User, error)
	UpdateRolesTx(ctx context.Context, tx bun.IDB, id uuid.UUID, roles model.RoleSet) (*model.User, error)
	ListAll(ctx context.Context) ([]*model.User, error)
}

type users struct {
	repository.Repository[*model.User]
	db *bun.DB
}

var _ Users = (*users)(nil)

func NewUsersRepository(db *bun.DB) Users {
	repo := repository.NewRepository[*model.User](db, repository.ModelHandlers[*model.User]{
		NewRecord: func() *model.User { return &model.User{} },
		GetID: func(u *model.User) uuid.UUID {
			if u == nil {
				return uuid.Nil
			}
			return u.ID
		},
		SetID: func(u *model.User, id uuid.UUID) {
			if u != nil {
				u.ID = id
			}
		},
	})

	return &users{Repository: repo, db: db}
}

func (a *users) GetByEmail(ctx context.Context, email string) (*model.User, error) {
	return a.GetByEmailTx(ctx, a.db, email)
}

func (a *users) GetByEmailTx(ctx context.Context, tx bun.IDB, email string) (*model.User, error) {
	record := &model.User{}

	err := tx.NewSelect().
		Model(record).
		Where("?TableAlias.email = ?", normalizeEmail(email)).
		Limit(1).
		Scan(ctx)
	if err != nil {
		if repository.IsRecordNotFound(err) {
			return nil, repository.NewRecordNotFound().
				WithMetadata(map[string]any{"email": email})
		}
		return nil, err
	}

	record.EnsureStatus()
	return record, nil
}

func (a *users) GetUser(ctx context.Context, id uuid.UUID) (*model.User, error) {
	record := &model.User{}

	err := a.db.NewSelect().
		Model(record).
		Relation("Organization").
		Where("?TableAlias.id = ?", id).
		Limit(1).
		Scan(ctx)
	if err != nil {
		if repository.IsRecordNotFound(err) {
			return nil, repository.NewRecordNotFound().
				WithMetadata(map[string]any{"id": id.String()})
		}
		return nil, err
	}

	record.EnsureStatus()
	return record, nil
}

func (a *users) UpdateProfile(ctx context.Context, id uuid.UUID, name string) (*model.User, error) {
	record := &model.User{
		ID:   id,
		Name: name,
	}
	return a.Repository.UpdateTx(ctx, a.db, record, repository.UpdateByID(id.String()))
}

func (a *users) Register(ctx context.Context, user *model.User) (*model.User, error) {
	return a.RegisterTx(ctx, a.db, user)
}

// RegisterTx inserts a user, deriving a deterministic ID from the email when
// none is set so retried registrations stay idempotent.
func (a *users) RegisterTx(ctx context.Context, tx bun.IDB, user *model.User) (*model.User, error) {
	prepareUserDefaults(user)
	return a.Repository.CreateTx(ctx, tx, user)
}

func (a *users) UpdateStatus(ctx context.Context, id uuid.UUID, status model.UserStatus) (*model.User, error) {
	return a.UpdateStatusTx(ctx, a.db, id, status)
}

func (a *users) UpdateStatusTx(ctx context.Context, tx bun.IDB, id uuid.UUID, status model.UserStatus) (*model.User, error) {
	record := &model.User{
		ID:     id,
		Status: model.NormalizeStatus(status),
	}
	return a.Repository.UpdateTx(ctx, tx, record, repository.UpdateByID(id.String()))
}

func (a *users) UpdateRoles(ctx context.Context, id uuid.UUID, roles model.RoleSet) (*model.User, error) {
	return a.UpdateRolesTx(ctx, a.db, id, roles)
}

func (a *users) UpdateRolesTx(ctx context.Context, tx bun.IDB, id uuid.UUID, roles model.RoleSet) (*model.User, error) {
	record := &model.User{
		ID:    id,
		Roles: roles,
	}
	return a.Repository.UpdateTx(ctx, tx, record, repository.UpdateByID(id.String()))
}

func (a *users) ListAll(ctx context.Context) ([]*model.User, error) {
	var records []*model.User

	err := a.db.NewSelect().
		Model(&records).
		Order("created_at DESC").
		Scan(ctx)
	if err != nil {
		return nil, err
	}

	for _, u := range records {
		u.EnsureStatus()
	}
	return records, nil
}

func prepareUserDefaults(user *model.User) {
	user.Email = normalizeEmail(user.Email)
	user.EnsureStatus()

	if user.ID == uuid.Nil {
		if id, err := hashid.NewUUID(user.Email); err == nil {
			user.ID = id
		} else {
			user.ID = uuid.New()
		}
	}

	if user.Name == "" {
		// temporary display name until the profile is completed
		if at := strings.IndexByte(user.Email, '@'); at > 0 {
			user.Name = user.Email[:at]
		} else {
			user.Name = user.Email
		}
	}
}

func normalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}
