package httpapi

import (
	"context"
	"fmt"

	validation "github.com/go-ozzo/ozzo-validation"
	"github.com/gofiber/fiber/v2"
	goerrors "github.com/goliatone/go-errors"
	"github.com/google/uuid"
	"github.com/uptrace/bun"

	"github.com/vetcee/portal/internal/model"
)

// CourseSessionPayload is one teaching session within a submission.
type CourseSessionPayload struct {
	Title           string `json:"title"`
	Teacher         string `json:"teacher"`
	DurationMinutes int    `json:"durationMinutes"`
	Description     string `json:"description"`
}

// Validate will run validation rules
func (r CourseSessionPayload) Validate() error {
	return validation.ValidateStruct(&r,
		validation.Field(&r.Title, validation.Required, validation.Length(1, 300)),
		validation.Field(&r.DurationMinutes, validation.Min(0)),
	)
}

// CoursePayload is a continuing-education course submission.
type CoursePayload struct {
	Title          string                 `json:"title"`
	Description    string                 `json:"description"`
	Outcomes       string                 `json:"outcomes"`
	Summary        string                 `json:"summary"`
	CourseType     string                 `json:"courseType"`
	DeliveryType   string                 `json:"deliveryType"`
	Species        string                 `json:"species"`
	Subject        string                 `json:"subject"`
	Language       string                 `json:"language"`
	Audience       string                 `json:"audience"`
	HoursLecture   float64                `json:"hoursLecture"`
	HoursPractical float64                `json:"hoursPractical"`
	HoursOnline    float64                `json:"hoursOnline"`
	ECTS           float64                `json:"ects"`
	Cost           float64                `json:"cost"`
	Submit         bool                   `json:"submit"`
	Sessions       []CourseSessionPayload `json:"sessions"`
}

// Validate will run validation rules
func (r CoursePayload) Validate() error {
	return validation.ValidateStruct(&r,
		validation.Field(&r.Title, validation.Required, validation.Length(3, 300)),
		validation.Field(&r.Description, validation.Required),
		validation.Field(&r.Outcomes, validation.Required),
		validation.Field(&r.HoursLecture, validation.Min(0.0)),
		validation.Field(&r.HoursPractical, validation.Min(0.0)),
		validation.Field(&r.HoursOnline, validation.Min(0.0)),
		validation.Field(&r.ECTS, validation.Min(0.0)),
		validation.Field(&r.Cost, validation.Min(0.0)),
	)
}

func (s *Server) createCourse(c *fiber.Ctx) error {
	claims := CurrentSession(c)

	payload := new(CoursePayload)
	if err := c.BodyParser(payload); err != nil {
		return s.renderError(c, goerrors.Wrap(err, goerrors.CategoryBadInput, "invalid request body").
			WithCode(goerrors.CodeBadRequest))
	}
	if err := payload.Validate(); err != nil {
		return s.renderError(c, goerrors.Wrap(err, goerrors.CategoryValidation, "invalid course").
			WithCode(goerrors.CodeBadRequest))
	}
	for i, sess := range payload.Sessions {
		if err := sess.Validate(); err != nil {
			return s.renderError(c, goerrors.Wrap(err, goerrors.CategoryValidation,
				fmt.Sprintf("invalid session %d", i+1)).WithCode(goerrors.CodeBadRequest))
		}
	}

	userID, err := claims.UserUUID()
	if err != nil {
		return s.renderError(c, err)
	}
	sub := claims.PolicySubject()

	status := model.CourseStatusDraft
	if payload.Submit {
		status = model.CourseStatusSubmitted
	}

	course := &model.Course{
		Title:          payload.Title,
		Description:    payload.Description,
		Outcomes:       payload.Outcomes,
		Summary:        payload.Summary,
		CourseType:     payload.CourseType,
		DeliveryType:   payload.DeliveryType,
		Species:        payload.Species,
		Subject:        payload.Subject,
		Language:       payload.Language,
		Audience:       payload.Audience,
		HoursLecture:   payload.HoursLecture,
		HoursPractical: payload.HoursPractical,
		HoursOnline:    payload.HoursOnline,
		ECTS:           payload.ECTS,
		Cost:           payload.Cost,
		Status:         status,
		UserID:         userID,
		OrganizationID: *sub.OrganizationID,
	}

	sessions := make([]*model.CourseSession, 0, len(payload.Sessions))
	for _, sess := range payload.Sessions {
		sessions = append(sessions, &model.CourseSession{
			Title:           sess.Title,
			Teacher:         sess.Teacher,
			DurationMinutes: sess.DurationMinutes,
			Description:     sess.Description,
		})
	}

	var created *model.Course
	err = s.repos.RunInTx(c.Context(), nil, func(ctx context.Context, tx bun.Tx) error {
		var txErr error
		created, txErr = s.repos.Courses().CreateWithSessions(ctx, tx, course, sessions)
		return txErr
	})
	if err != nil {
		return s.renderError(c, err)
	}

	return c.Status(fiber.StatusCreated).JSON(fiber.Map{"course": created})
}

func (s *Server) listCourses(c *fiber.Ctx) error {
	claims := CurrentSession(c)
	sub := claims.PolicySubject()

	switch {
	case sub.Roles.HasAdmin():
		courses, err := s.repos.Courses().ListByStatus(c.Context())
		if err != nil {
			return s.renderError(c, err)
		}
		return c.JSON(fiber.Map{"courses": courses})

	case sub.Roles.Has(model.RoleReviewer):
		courses, err := s.repos.Courses().ListByStatus(c.Context(),
			model.CourseStatusSubmitted, model.CourseStatusUnderReview)
		if err != nil {
			return s.renderError(c, err)
		}
		return c.JSON(fiber.Map{"courses": courses})

	case sub.Roles.Has(model.RoleProvider) && sub.OrganizationID != nil:
		courses, err := s.repos.Courses().ListByOrganization(c.Context(), *sub.OrganizationID)
		if err != nil {
			return s.renderError(c, err)
		}
		return c.JSON(fiber.Map{"courses": courses})

	default:
		return c.JSON(fiber.Map{"courses": []*model.Course{}})
	}
}

// ReviewPayload records a reviewer verdict on a submitted course.
type ReviewPayload struct {
	CourseID string `json:"courseId"`
	Decision string `json:"decision"`
	Comment  string `json:"comment"`
}

// Validate will run validation rules
func (r ReviewPayload) Validate() error {
	return validation.ValidateStruct(&r,
		validation.Field(&r.CourseID, validation.Required),
		validation.Field(&r.Decision, validation.Required,
			validation.In(string(model.CourseStatusApproved), string(model.CourseStatusRejected))),
		validation.Field(&r.Comment, validation.Required),
	)
}

func (s *Server) reviewCourse(c *fiber.Ctx) error {
	claims := CurrentSession(c)

	payload := new(ReviewPayload)
	if err := c.BodyParser(payload); err != nil {
		return s.renderError(c, goerrors.Wrap(err, goerrors.CategoryBadInput, "invalid request body").
			WithCode(goerrors.CodeBadRequest))
	}
	if err := payload.Validate(); err != nil {
		return s.renderError(c, goerrors.Wrap(err, goerrors.CategoryValidation, "invalid review").
			WithCode(goerrors.CodeBadRequest))
	}

	courseID, err := uuid.Parse(payload.CourseID)
	if err != nil {
		return s.renderError(c, goerrors.Wrap(err, goerrors.CategoryValidation, "invalid course id").
			WithCode(goerrors.CodeBadRequest))
	}
	reviewerID, err := claims.UserUUID()
	if err != nil {
		return s.renderError(c, err)
	}

	if _, err := s.repos.Courses().GetCourse(c.Context(), courseID); err != nil {
		return s.renderError(c, err)
	}

	verdict := model.CourseStatus(payload.Decision)
	err = s.repos.RunInTx(c.Context(), nil, func(ctx context.Context, tx bun.Tx) error {
		if err := s.repos.Courses().AddReviewTx(ctx, tx, &model.CourseReview{
			CourseID:   courseID,
			ReviewerID: reviewerID,
			Status:     verdict,
			Comment:    payload.Comment,
		}); err != nil {
			return err
		}
		return s.repos.Courses().UpdateStatusTx(ctx, tx, courseID, verdict)
	})
	if err != nil {
		return s.renderError(c, err)
	}

	course, err := s.repos.Courses().GetCourse(c.Context(), courseID)
	if err != nil {
		return s.renderError(c, err)
	}
	return c.JSON(fiber.Map{"course": course})
}

// CourseStatusPayload moves a course through the accreditation pipeline.
type CourseStatusPayload struct {
	CourseID string `json:"courseId"`
	Status   string `json:"status"`
}

// Validate will run validation rules
func (r CourseStatusPayload) Validate() error {
	return validation.ValidateStruct(&r,
		validation.Field(&r.CourseID, validation.Required),
		validation.Field(&r.Status, validation.Required),
	)
}

func (s *Server) updateCourseStatus(c *fiber.Ctx) error {
	payload := new(CourseStatusPayload)
	if err := c.BodyParser(payload); err != nil {
		return s.renderError(c, goerrors.Wrap(err, goerrors.CategoryBadInput, "invalid request body").
			WithCode(goerrors.CodeBadRequest))
	}
	if err := payload.Validate(); err != nil {
		return s.renderError(c, goerrors.Wrap(err, goerrors.CategoryValidation, "invalid status change").
			WithCode(goerrors.CodeBadRequest))
	}
	if !model.ValidCourseStatus(payload.Status) {
		return s.renderError(c, goerrors.New(fmt.Sprintf("unknown status %q", payload.Status), goerrors.CategoryValidation).
			WithCode(goerrors.CodeBadRequest))
	}

	courseID, err := uuid.Parse(payload.CourseID)
	if err != nil {
		return s.renderError(c, goerrors.Wrap(err, goerrors.CategoryValidation, "invalid course id").
			WithCode(goerrors.CodeBadRequest))
	}

	if _, err := s.repos.Courses().GetCourse(c.Context(), courseID); err != nil {
		return s.renderError(c, err)
	}

	err = s.repos.RunInTx(c.Context(), nil, func(ctx context.Context, tx bun.Tx) error {
		return s.repos.Courses().UpdateStatusTx(ctx, tx, courseID, model.CourseStatus(payload.Status))
	})
	if err != nil {
		return s.renderError(c, err)
	}

	course, err := s.repos.Courses().GetCourse(c.Context(), courseID)
	if err != nil {
		return s.renderError(c, err)
	}
	return c.JSON(fiber.Map{"course": course})
}
