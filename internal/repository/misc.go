package repository

import (
	"context"
	"time"

	"github.com/goliatone/go-repository-bun"
	"github.com/google/uuid"
	"github.com/uptrace/bun"

	"github.com/vetcee/portal/internal/model"
)

// Organizations stores provider organizations.
type Organizations interface {
	repository.Repository[*model.Organization]

	CreateOrg(ctx context.Context, record *model.Organization) (*model.Organization, error)
	CreateOrgTx(ctx context.Context, tx bun.IDB, record *model.Organization) (*model.Organization, error)
	GetOrg(ctx context.Context, id uuid.UUID) (*model.Organization, error)
}

type organizations struct {
	repository.Repository[*model.Organization]
	db *bun.DB
}

func NewOrganizationsRepository(db *bun.DB) Organizations {
	repo := repository.NewRepository[*model.Organization](db, repository.ModelHandlers[*model.Organization]{
		NewRecord: func() *model.Organization { return &model.Organization{} },
		GetID: func(o *model.Organization) uuid.UUID {
			if o == nil {
				return uuid.Nil
			}
			return o.ID
		},
		SetID: func(o *model.Organization, id uuid.UUID) {
			if o != nil {
				o.ID = id
			}
		},
	})
	return &organizations{Repository: repo, db: db}
}

func (a *organizations) CreateOrg(ctx context.Context, record *model.Organization) (*model.Organization, error) {
	return a.CreateOrgTx(ctx, a.db, record)
}

func (a *organizations) CreateOrgTx(ctx context.Context, tx bun.IDB, record *model.Organization) (*model.Organization, error) {
	if record.ID == uuid.Nil {
		record.ID = uuid.New()
	}
	return a.Repository.CreateTx(ctx, tx, record)
}

func (a *organizations) GetOrg(ctx context.Context, id uuid.UUID) (*model.Organization, error) {
	record := &model.Organization{}

	err := a.db.NewSelect().
		Model(record).
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
	return record, nil
}

// Sessions stores the minted-credential bookkeeping rows.
type Sessions interface {
	CreateSession(ctx context.Context, record *model.StoredSession) error
	DeleteAllExcept(ctx context.Context, keep uuid.UUID) (int64, error)
	DeleteAllSessions(ctx context.Context) (int64, error)
	DeleteExpired(ctx context.Context, now time.Time) (int64, error)
}

type sessions struct {
	db *bun.DB
}

func NewSessionsRepository(db *bun.DB) Sessions {
	return &sessions{db: db}
}

func (a *sessions) CreateSession(ctx context.Context, record *model.StoredSession) error {
	if record.ID == uuid.Nil {
		record.ID = uuid.New()
	}
	_, err := a.db.NewInsert().Model(record).Exec(ctx)
	return err
}

func (a *sessions) DeleteAllExcept(ctx context.Context, keep uuid.UUID) (int64, error) {
	res, err := a.db.NewDelete().
		Model((*model.StoredSession)(nil)).
		Where("id != ?", keep).
		Exec(ctx)
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}

func (a *sessions) DeleteAllSessions(ctx context.Context) (int64, error) {
	res, err := a.db.NewDelete().
		Model((*model.StoredSession)(nil)).
		Where("1 = 1").
		Exec(ctx)
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}

func (a *sessions) DeleteExpired(ctx context.Context, now time.Time) (int64, error) {
	res, err := a.db.NewDelete().
		Model((*model.StoredSession)(nil)).
		Where("expires_at <= ?", now).
		Exec(ctx)
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}

// AuditLogs appends administrative action records.
type AuditLogs interface {
	Append(ctx context.Context, record *model.AuditLog) error
	AppendTx(ctx context.Context, tx bun.IDB, record *model.AuditLog) error
	ListRecent(ctx context.Context, limit int) ([]*model.AuditLog, error)
}

type auditLogs struct {
	db *bun.DB
}

func NewAuditLogsRepository(db *bun.DB) AuditLogs {
	return &auditLogs{db: db}
}

func (a *auditLogs) Append(ctx context.Context, record *model.AuditLog) error {
	return a.AppendTx(ctx, a.db, record)
}

func (a *auditLogs) AppendTx(ctx context.Context, tx bun.IDB, record *model.AuditLog) error {
	if record.ID == uuid.Nil {
		record.ID = uuid.New()
	}
	_, err := tx.NewInsert().Model(record).Exec(ctx)
	return err
}

func (a *auditLogs) ListRecent(ctx context.Context, limit int) ([]*model.AuditLog, error) {
	if limit <= 0 {
		limit = 100
	}

	var records []*model.AuditLog
	err := a.db.NewSelect().
		Model(&records).
		Order("created_at DESC").
		Limit(limit).
		Scan(ctx)
	if err != nil {
		return nil, err
	}
	return records, nil
}
