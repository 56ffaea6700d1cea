package httpapi

import (
	"fmt"

	validation "github.com/go-ozzo/ozzo-validation"
	"github.com/gofiber/fiber/v2"
	goerrors "github.com/goliatone/go-errors"
	"github.com/google/uuid"

	"github.com/vetcee/portal/internal/auth"
	"github.com/vetcee/portal/internal/model"
)

// ApproveUserPayload grants an account admission to the portal.
type ApproveUserPayload struct {
	UserID string `json:"userId"`
}

// Validate will run validation rules
func (r ApproveUserPayload) Validate() error {
	return validation.ValidateStruct(&r,
		validation.Field(&r.UserID, validation.Required),
	)
}

func (s *Server) approveUser(c *fiber.Ctx) error {
	claims := CurrentSession(c)

	payload := new(ApproveUserPayload)
	if err := c.BodyParser(payload); err != nil {
		return s.renderError(c, goerrors.Wrap(err, goerrors.CategoryBadInput, "invalid request body").
			WithCode(goerrors.CodeBadRequest))
	}
	if err := payload.Validate(); err != nil {
		return s.renderError(c, goerrors.Wrap(err, goerrors.CategoryValidation, "invalid approval").
			WithCode(goerrors.CodeBadRequest))
	}

	targetID, err := uuid.Parse(payload.UserID)
	if err != nil {
		return s.renderError(c, goerrors.Wrap(err, goerrors.CategoryValidation, "invalid user id").
			WithCode(goerrors.CodeBadRequest))
	}

	user, err := s.repos.Users().UpdateStatus(c.Context(), targetID, model.UserStatusApproved)
	if err != nil {
		return s.renderError(c, err)
	}

	s.audit(c, claims, model.AuditActionApproveUser, "approved account", &targetID)

	return c.JSON(fiber.Map{"user": user})
}

// UpdateRolesPayload replaces an account's role set.
type UpdateRolesPayload struct {
	UserID string   `json:"userId"`
	Roles  []string `json:"roles"`
}

// Validate will run validation rules
func (r UpdateRolesPayload) Validate() error {
	return validation.ValidateStruct(&r,
		validation.Field(&r.UserID, validation.Required),
		validation.Field(&r.Roles, validation.Required),
	)
}

func (s *Server) updateUserRoles(c *fiber.Ctx) error {
	claims := CurrentSession(c)

	payload := new(UpdateRolesPayload)
	if err := c.BodyParser(payload); err != nil {
		return s.renderError(c, goerrors.Wrap(err, goerrors.CategoryBadInput, "invalid request body").
			WithCode(goerrors.CodeBadRequest))
	}
	if err := payload.Validate(); err != nil {
		return s.renderError(c, goerrors.Wrap(err, goerrors.CategoryValidation, "invalid roles update").
			WithCode(goerrors.CodeBadRequest))
	}

	targetID, err := uuid.Parse(payload.UserID)
	if err != nil {
		return s.renderError(c, goerrors.Wrap(err, goerrors.CategoryValidation, "invalid user id").
			WithCode(goerrors.CodeBadRequest))
	}

	roles := make(model.RoleSet, 0, len(payload.Roles))
	for _, raw := range payload.Roles {
		role, ok := model.ParseRole(raw)
		if !ok {
			return s.renderError(c, goerrors.New(fmt.Sprintf("unknown role %q", raw), goerrors.CategoryValidation).
				WithCode(goerrors.CodeBadRequest))
		}
		roles = append(roles, role)
	}

	user, err := s.repos.Users().UpdateRoles(c.Context(), targetID, roles)
	if err != nil {
		return s.renderError(c, err)
	}

	s.audit(c, claims, model.AuditActionUpdateUserRoles,
		fmt.Sprintf("roles set to %v", payload.Roles), &targetID)

	return c.JSON(fiber.Map{"user": user})
}

func (s *Server) listUsers(c *fiber.Ctx) error {
	users, err := s.repos.Users().ListAll(c.Context())
	if err != nil {
		return s.renderError(c, err)
	}
	return c.JSON(fiber.Map{"users": users})
}

func (s *Server) listTokens(c *fiber.Ctx) error {
	tokens, err := s.repos.Tokens().ListInactive(c.Context(), s.now())
	if err != nil {
		return s.renderError(c, err)
	}
	return c.JSON(fiber.Map{"tokens": tokens})
}

func (s *Server) deleteToken(c *fiber.Ctx) error {
	claims := CurrentSession(c)

	id, err := uuid.Parse(c.Query("id"))
	if err != nil {
		return s.renderError(c, goerrors.Wrap(err, goerrors.CategoryValidation, "invalid token id").
			WithCode(goerrors.CodeBadRequest))
	}

	deleted, err := s.repos.Tokens().DeleteByID(c.Context(), id)
	if err != nil {
		return s.renderError(c, err)
	}
	if !deleted {
		return s.renderError(c, goerrors.New("token not found", goerrors.CategoryNotFound).
			WithCode(goerrors.CodeNotFound))
	}

	s.audit(c, claims, model.AuditActionDeleteToken, "deleted verification token", &id)

	return c.JSON(fiber.Map{"deleted": true})
}

func (s *Server) audit(c *fiber.Ctx, claims *auth.SessionClaims, action, details string, target *uuid.UUID) {
	var actor *uuid.UUID
	if claims != nil {
		if id, err := claims.UserUUID(); err == nil {
			actor = &id
		}
	}
	if err := s.repos.AuditLogs().Append(c.Context(), &model.AuditLog{
		Action:   action,
		Details:  details,
		UserID:   actor,
		TargetID: target,
	}); err != nil {
		s.logger.Error("failed to append audit log for %s: %v", action, err)
	}
}
