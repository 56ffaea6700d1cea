package repository

import (
	"context"

	"github.com/uptrace/bun"

	"github.com/vetcee/portal/internal/model"
)

// portalModels lists every persisted model in dependency order.
var portalModels = []any{
	(*model.Organization)(nil),
	(*model.User)(nil),
	(*model.VerificationToken)(nil),
	(*model.StoredSession)(nil),
	(*model.Course)(nil),
	(*model.CourseSession)(nil),
	(*model.CourseReview)(nil),
	(*model.AuditLog)(nil),
}

// CreateSchema creates the portal tables when they do not already exist.
// Schema evolution beyond bootstrap is handled out of band.
func CreateSchema(ctx context.Context, db *bun.DB) error {
	for _, m := range portalModels {
		if _, err := db.NewCreateTable().
			Model(m).
			IfNotExists().
			Exec(ctx); err != nil {
			return err
		}
	}
	return nil
}
