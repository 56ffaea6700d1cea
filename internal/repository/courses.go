package repository

import (
	"context"

	"github.com/goliatone/go-repository-bun"
	"github.com/google/uuid"
	"github.com/uptrace/bun"

	"github.com/vetcee/portal/internal/model"
)

// Courses stores submitted courses with their sessions and reviews.
type Courses interface {
	repository.Repository[*model.Course]

	CreateWithSessions(ctx context.Context, tx bun.IDB, course *model.Course, sessions []*model.CourseSession) (*model.Course, error)
	GetCourse(ctx context.Context, id uuid.UUID) (*model.Course, error)
	ListByOrganization(ctx context.Context, orgID uuid.UUID) ([]*model.Course, error)
	ListByStatus(ctx context.Context, statuses ...model.CourseStatus) ([]*model.Course, error)
	UpdateStatusTx(ctx context.Context, tx bun.IDB, id uuid.UUID, status model.CourseStatus) error
	AddReviewTx(ctx context.Context, tx bun.IDB, review *model.CourseReview) error
}

type courses struct {
	repository.Repository[*model.Course]
	db *bun.DB
}

var _ Courses = (*courses)(nil)

func NewCoursesRepository(db *bun.DB) Courses {
	repo := repository.NewRepository[*model.Course](db, repository.ModelHandlers[*model.Course]{
		NewRecord: func() *model.Course { return &model.Course{} },
		GetID: func(c *model.Course) uuid.UUID {
			if c == nil {
				return uuid.Nil
			}
			return c.ID
		},
		SetID: func(c *model.Course, id uuid.UUID) {
			if c != nil {
				c.ID = id
			}
		},
	})
	return &courses{Repository: repo, db: db}
}

func (a *courses) CreateWithSessions(ctx context.Context, tx bun.IDB, course *model.Course, sessions []*model.CourseSession) (*model.Course, error) {
	if course.ID == uuid.Nil {
		course.ID = uuid.New()
	}
	if course.Status == "" {
		course.Status = model.CourseStatusDraft
	}

	created, err := a.Repository.CreateTx(ctx, tx, course)
	if err != nil {
		return nil, err
	}

	for _, s := range sessions {
		if s.ID == uuid.Nil {
			s.ID = uuid.New()
		}
		s.CourseID = created.ID
		if _, err := tx.NewInsert().Model(s).Exec(ctx); err != nil {
			return nil, err
		}
	}

	created.Sessions = sessions
	return created, nil
}

func (a *courses) GetCourse(ctx context.Context, id uuid.UUID) (*model.Course, error) {
	record := &model.Course{}

	err := a.db.NewSelect().
		Model(record).
		Relation("Sessions").
		Where("?TableAlias.id = ?", id).
		Limit(1).
		Scan(ctx)
	if err != nil {
		if repository.IsRecordNotFound(err) {
			return nil, repository.NewRecordNotFound().
				WithMetadata(map[string]any{"course_id": id.String()})
		}
		return nil, err
	}
	return record, nil
}

func (a *courses) ListByOrganization(ctx context.Context, orgID uuid.UUID) ([]*model.Course, error) {
	var records []*model.Course

	err := a.db.NewSelect().
		Model(&records).
		Where("?TableAlias.organization_id = ?", orgID).
		Order("created_at DESC").
		Scan(ctx)
	if err != nil {
		return nil, err
	}
	return records, nil
}

func (a *courses) ListByStatus(ctx context.Context, statuses ...model.CourseStatus) ([]*model.Course, error) {
	var records []*model.Course

	q := a.db.NewSelect().
		Model(&records).
		Order("created_at DESC")

	if len(statuses) > 0 {
		q = q.Where("?TableAlias.status IN (?)", bun.In(statuses))
	}

	if err := q.Scan(ctx); err != nil {
		return nil, err
	}
	return records, nil
}

func (a *courses) UpdateStatusTx(ctx context.Context, tx bun.IDB, id uuid.UUID, status model.CourseStatus) error {
	_, err := tx.NewUpdate().
		Model((*model.Course)(nil)).
		Set("status = ?", status).
		Where("id = ?", id).
		Exec(ctx)
	return err
}

func (a *courses) AddReviewTx(ctx context.Context, tx bun.IDB, review *model.CourseReview) error {
	if review.ID == uuid.Nil {
		review.ID = uuid.New()
	}
	_, err := tx.NewInsert().Model(review).Exec(ctx)
	return err
}
