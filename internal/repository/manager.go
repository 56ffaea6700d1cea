package repository

import (
	"context"
	"database/sql"
	"errors"
	"log"

	"github.com/uptrace/bun"
)

// Manager aggregates the portal repositories and transaction scope.
type Manager interface {
	Users() Users
	Tokens() Tokens
	Organizations() Organizations
	Courses() Courses
	Sessions() Sessions
	AuditLogs() AuditLogs

	RunInTx(ctx context.Context, opts *sql.TxOptions, f func(ctx context.Context, tx bun.Tx) error) error
	Ping(ctx context.Context) error
	Validate() error
	MustValidate()
}

type mngr struct {
	db       *bun.DB
	users    Users
	tokens   Tokens
	orgs     Organizations
	courses  Courses
	sessions Sessions
	audit    AuditLogs
}

// NewManager wires every repository over a shared bun handle.
func NewManager(db *bun.DB) Manager {
	return &mngr{
		db:       db,
		users:    NewUsersRepository(db),
		tokens:   NewTokensRepository(db),
		orgs:     NewOrganizationsRepository(db),
		courses:  NewCoursesRepository(db),
		sessions: NewSessionsRepository(db),
		audit:    NewAuditLogsRepository(db),
	}
}

func (m *mngr) Validate() error {
	if m.users == nil {
		return errors.New("repository users should be initialized")
	}
	if m.tokens == nil {
		return errors.New("repository tokens should be initialized")
	}
	if m.orgs == nil {
		return errors.New("repository organizations should be initialized")
	}
	if m.courses == nil {
		return errors.New("repository courses should be initialized")
	}
	if m.sessions == nil {
		return errors.New("repository sessions should be initialized")
	}
	if m.audit == nil {
		return errors.New("repository audit logs should be initialized")
	}
	return nil
}

func (m *mngr) MustValidate() {
	if err := m.Validate(); err != nil {
		log.Panic(err)
	}
}

func (m *mngr) RunInTx(ctx context.Context, opts *sql.TxOptions, f func(ctx context.Context, tx bun.Tx) error) error {
	select {
	case <-ctx.Done():
		return ctx.Err()
	default:
		return m.db.RunInTx(ctx, opts, f)
	}
}

func (m *mngr) Ping(ctx context.Context) error {
	return m.db.PingContext(ctx)
}

func (m *mngr) Users() Users                 { return m.users }
func (m *mngr) Tokens() Tokens               { return m.tokens }
func (m *mngr) Organizations() Organizations { return m.orgs }
func (m *mngr) Courses() Courses             { return m.courses }
func (m *mngr) Sessions() Sessions           { return m.sessions }
func (m *mngr) AuditLogs() AuditLogs         { return m.audit }
