package repository

import (
	"context"
	"time"

	"github.com/goliatone/go-repository-bun"
	"github.com/google/uuid"
	"github.com/uptrace/bun"

	"github.com/vetcee/portal/internal/model"
)

// Tokens is the verification-token store. Redemption safety lives here:
// Consume is a single conditional DELETE so two concurrent redemptions of the
// same token can never both succeed.
type Tokens interface {
	repository.Repository[*model.VerificationToken]

	CreateToken(ctx context.Context, record *model.VerificationToken) (*model.VerificationToken, error)
	CreateTokenTx(ctx context.Context, tx bun.IDB, record *model.VerificationToken) (*model.VerificationToken, error)
	FindActiveByEmail(ctx context.Context, email string, now time.Time) (*model.VerificationToken, error)
	FindByToken(ctx context.Context, token string) (*model.VerificationToken, error)
	Consume(ctx context.Context, id uuid.UUID, email string, now time.Time) (bool, error)
	ConsumeTx(ctx context.Context, tx bun.IDB, id uuid.UUID, email string, now time.Time) (bool, error)
	DeleteByID(ctx context.Context, id uuid.UUID) (bool, error)
	DeleteAllTokens(ctx context.Context) (int64, error)
	ListInactive(ctx context.Context, now time.Time) ([]*model.VerificationToken, error)
	ReapExpired(ctx context.Context, now time.Time) (int64, error)
}

type tokens struct {
	repository.Repository[*model.VerificationToken]
	db *bun.DB
}

var _ Tokens = (*tokens)(nil)

func NewTokensRepository(db *bun.DB) Tokens {
	repo := repository.NewRepository[*model.VerificationToken](db, repository.ModelHandlers[*model.VerificationToken]{
		NewRecord: func() *model.VerificationToken { return &model.VerificationToken{} },
		GetID: func(t *model.VerificationToken) uuid.UUID {
			if t == nil {
				return uuid.Nil
			}
			return t.ID
		},
		SetID: func(t *model.VerificationToken, id uuid.UUID) {
			if t != nil {
				t.ID = id
			}
		},
	})

	return &tokens{Repository: repo, db: db}
}

func (a *tokens) CreateToken(ctx context.Context, record *model.VerificationToken) (*model.VerificationToken, error) {
	return a.CreateTokenTx(ctx, a.db, record)
}

func (a *tokens) CreateTokenTx(ctx context.Context, tx bun.IDB, record *model.VerificationToken) (*model.VerificationToken, error) {
	if record.ID == uuid.Nil {
		record.ID = uuid.New()
	}
	if record.Status == "" {
		record.Status = model.TokenStatusActive
	}
	// SetEmail is the only writer of the identifier/email pair
	record.SetEmail(normalizeEmail(record.Email))

	return a.Repository.CreateTx(ctx, tx, record)
}

func (a *tokens) FindActiveByEmail(ctx context.Context, email string, now time.Time) (*model.VerificationToken, error) {
	record := &model.VerificationToken{}

	err := a.db.NewSelect().
		Model(record).
		Where("?TableAlias.email = ?", normalizeEmail(email)).
		Where("?TableAlias.status = ?", model.TokenStatusActive).
		Where("?TableAlias.expires_at > ?", now).
		Limit(1).
		Scan(ctx)
	if err != nil {
		if repository.IsRecordNotFound(err) {
			return nil, repository.NewRecordNotFound().
				WithMetadata(map[string]any{"email": email})
		}
		return nil, err
	}
	return record, nil
}

func (a *tokens) FindByToken(ctx context.Context, token string) (*model.VerificationToken, error) {
	record := &model.VerificationToken{}

	err := a.db.NewSelect().
		Model(record).
		Where("?TableAlias.token = ?", token).
		Limit(1).
		Scan(ctx)
	if err != nil {
		if repository.IsRecordNotFound(err) {
			return nil, repository.NewRecordNotFound()
		}
		return nil, err
	}
	return record, nil
}

func (a *tokens) Consume(ctx context.Context, id uuid.UUID, email string, now time.Time) (bool, error) {
	return a.ConsumeTx(ctx, a.db, id, email, now)
}

// ConsumeTx deletes the token iff it is still present, bound to the email and
// unexpired. The conditional delete is the commit point for redemption: of
// two concurrent calls exactly one observes RowsAffected == 1.
func (a *tokens) ConsumeTx(ctx context.Context, tx bun.IDB, id uuid.UUID, email string, now time.Time) (bool, error) {
	res, err := tx.NewDelete().
		Model((*model.VerificationToken)(nil)).
		Where("id = ?", id).
		Where("email = ?", normalizeEmail(email)).
		Where("status = ?", model.TokenStatusActive).
		Where("expires_at > ?", now).
		Exec(ctx)
	if err != nil {
		return false, err
	}

	rows, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	return rows == 1, nil
}

func (a *tokens) DeleteByID(ctx context.Context, id uuid.UUID) (bool, error) {
	res, err := a.db.NewDelete().
		Model((*model.VerificationToken)(nil)).
		Where("id = ?", id).
		Exec(ctx)
	if err != nil {
		return false, err
	}

	rows, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	return rows == 1, nil
}

func (a *tokens) DeleteAllTokens(ctx context.Context) (int64, error) {
	res, err := a.db.NewDelete().
		Model((*model.VerificationToken)(nil)).
		Where("1 = 1").
		Exec(ctx)
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}

// ListInactive returns expired or already-consumed tokens for the admin view.
func (a *tokens) ListInactive(ctx context.Context, now time.Time) ([]*model.VerificationToken, error) {
	var records []*model.VerificationToken

	err := a.db.NewSelect().
		Model(&records).
		WhereGroup(" AND ", func(q *bun.SelectQuery) *bun.SelectQuery {
			return q.
				Where("?TableAlias.expires_at < ?", now).
				WhereOr("?TableAlias.status IN (?)", bun.In([]string{model.TokenStatusUsed, model.TokenStatusExpired}))
		}).
		Order("expires_at DESC").
		Scan(ctx)
	if err != nil {
		return nil, err
	}
	return records, nil
}

// ReapExpired marks overdue active tokens as expired.
func (a *tokens) ReapExpired(ctx context.Context, now time.Time) (int64, error) {
	res, err := a.db.NewUpdate().
		Model((*model.VerificationToken)(nil)).
		Set("status = ?", model.TokenStatusExpired).
		Where("status = ?", model.TokenStatusActive).
		Where("expires_at <= ?", now).
		Exec(ctx)
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}
