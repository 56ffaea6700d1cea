package httpapi

import (
	"fmt"

	validation "github.com/go-ozzo/ozzo-validation"
	"github.com/go-ozzo/ozzo-validation/is"
	"github.com/gofiber/fiber/v2"
	goerrors "github.com/goliatone/go-errors"
	"github.com/google/uuid"
	"github.com/nyaruka/phonenumbers"

	"github.com/vetcee/portal/internal/auth"
	"github.com/vetcee/portal/internal/model"
)

// RequestLinkPayload asks for a sign-in magic link.
type RequestLinkPayload struct {
	Email        string `json:"email"`
	Continuation string `json:"continuation"`
}

// Validate will run validation rules
func (r RequestLinkPayload) Validate() error {
	return validation.ValidateStruct(&r,
		validation.Field(&r.Email, validation.Required, is.Email),
	)
}

func (s *Server) requestLink(c *fiber.Ctx) error {
	payload := new(RequestLinkPayload)
	if err := c.BodyParser(payload); err != nil {
		return s.renderError(c, goerrors.Wrap(err, goerrors.CategoryBadInput, "invalid request body").
			WithCode(goerrors.CodeBadRequest))
	}
	if err := payload.Validate(); err != nil {
		return s.renderError(c, goerrors.Wrap(err, goerrors.CategoryValidation, "invalid email").
			WithCode(goerrors.CodeBadRequest))
	}

	result, err := s.engine.Issue(c.Context(), auth.IssueRequest{
		Email:        payload.Email,
		Continuation: payload.Continuation,
	})
	if err != nil {
		return s.renderError(c, err)
	}

	response := fiber.Map{
		"accepted":  true,
		"isNewUser": result.NewUser,
	}
	if s.cfg.DevRoutes {
		response["link"] = result.Link
	}
	return c.JSON(response)
}

// callback error codes the frontend error page understands.
const (
	callbackErrMissing  = "MissingParameters"
	callbackErrInvalid  = "InvalidToken"
	callbackErrExpired  = "TokenExpired"
	callbackErrMismatch = "TokenMismatch"
	callbackErrGeneric  = "CallbackError"
)

func (s *Server) callback(c *fiber.Ctx) error {
	token := c.Query("token")
	email := c.Query("email")
	continuation := c.Query("continuation")

	if token == "" || email == "" {
		return s.redirectError(c, callbackErrMissing)
	}

	result, err := s.engine.Redeem(c.Context(), token, email)
	if err != nil {
		switch {
		case goerrors.Is(err, auth.ErrInvalidToken):
			return s.redirectError(c, callbackErrInvalid)
		case goerrors.Is(err, auth.ErrTokenExpired):
			return s.redirectError(c, callbackErrExpired)
		case goerrors.Is(err, auth.ErrTokenMismatch):
			return s.redirectError(c, callbackErrMismatch)
		default:
			s.logger.Error("magic link callback failed: %v", err)
			return s.redirectError(c, callbackErrGeneric)
		}
	}

	s.setSessionCookie(c, result.Credential, sessionExpiry(result.Claims))

	target := s.cfg.FrontendURL + "/"
	if continuation != "" {
		target = s.cfg.FrontendURL + continuation
	}
	return c.Redirect(target, fiber.StatusFound)
}

func (s *Server) redirectError(c *fiber.Ctx, code string) error {
	return c.Redirect(s.cfg.FrontendURL+"/auth/error?error="+code, fiber.StatusFound)
}

// CheckEmailPayload asks whether an account exists.
type CheckEmailPayload struct {
	Email string `json:"email"`
}

// Validate will run validation rules
func (r CheckEmailPayload) Validate() error {
	return validation.ValidateStruct(&r,
		validation.Field(&r.Email, validation.Required, is.Email),
	)
}

func (s *Server) checkEmail(c *fiber.Ctx) error {
	payload := new(CheckEmailPayload)
	if err := c.BodyParser(payload); err != nil {
		return s.renderError(c, goerrors.Wrap(err, goerrors.CategoryBadInput, "invalid request body").
			WithCode(goerrors.CodeBadRequest))
	}
	if err := payload.Validate(); err != nil {
		return s.renderError(c, goerrors.Wrap(err, goerrors.CategoryValidation, "invalid email").
			WithCode(goerrors.CodeBadRequest))
	}

	user, exists, err := s.engine.LookupAccount(c.Context(), payload.Email)
	if err != nil {
		return s.renderError(c, err)
	}

	response := fiber.Map{"exists": exists}
	if exists {
		response["roles"] = user.Roles
		response["status"] = user.Status
	}
	return c.JSON(response)
}

// OrganizationPayload carries the provider organization details supplied at
// registration.
type OrganizationPayload struct {
	Name         string `json:"name"`
	Details      string `json:"details"`
	ContactEmail string `json:"contactEmail"`
	ContactPhone string `json:"contactPhone"`
}

// Validate will run validation rules
func (r OrganizationPayload) Validate() error {
	return validation.ValidateStruct(&r,
		validation.Field(&r.Name, validation.Required, validation.Length(2, 200)),
		validation.Field(&r.ContactEmail, is.Email),
		validation.Field(&r.ContactPhone, validation.By(validatePhone)),
	)
}

func validatePhone(value any) error {
	raw, _ := value.(string)
	if raw == "" {
		return nil
	}
	num, err := phonenumbers.Parse(raw, "GB")
	if err != nil {
		return err
	}
	if !phonenumbers.IsValidNumber(num) {
		return fmt.Errorf("must be a valid phone number")
	}
	return nil
}

// RegisterPayload starts a provider registration: it issues a long-lived
// magic link carrying the role and organization context.
type RegisterPayload struct {
	Email          string               `json:"email"`
	Role           string               `json:"role"`
	OrganizationID string               `json:"organizationId"`
	Organization   *OrganizationPayload `json:"organization"`
	Continuation   string               `json:"continuation"`
}

// Validate will run validation rules
func (r RegisterPayload) Validate() error {
	return validation.ValidateStruct(&r,
		validation.Field(&r.Email, validation.Required, is.Email),
		validation.Field(&r.OrganizationID, is.UUIDv4),
	)
}

func (s *Server) register(c *fiber.Ctx) error {
	payload := new(RegisterPayload)
	if err := c.BodyParser(payload); err != nil {
		return s.renderError(c, goerrors.Wrap(err, goerrors.CategoryBadInput, "invalid request body").
			WithCode(goerrors.CodeBadRequest))
	}
	if err := payload.Validate(); err != nil {
		return s.renderError(c, goerrors.Wrap(err, goerrors.CategoryValidation, "invalid registration").
			WithCode(goerrors.CodeBadRequest))
	}

	role := model.RoleProvider
	if payload.Role != "" {
		parsed, ok := model.ParseRole(payload.Role)
		if !ok || parsed.IsAdmin() {
			// admin roles can only be granted by an admin initiated flow
			return s.renderError(c, goerrors.New("invalid role", goerrors.CategoryValidation).
				WithCode(goerrors.CodeBadRequest))
		}
		role = parsed
	}

	var orgID *uuid.UUID
	if payload.OrganizationID != "" {
		id, err := uuid.Parse(payload.OrganizationID)
		if err != nil {
			return s.renderError(c, goerrors.Wrap(err, goerrors.CategoryValidation, "invalid organization id").
				WithCode(goerrors.CodeBadRequest))
		}
		orgID = &id
	} else if payload.Organization != nil {
		if err := payload.Organization.Validate(); err != nil {
			return s.renderError(c, goerrors.Wrap(err, goerrors.CategoryValidation, "invalid organization").
				WithCode(goerrors.CodeBadRequest))
		}
		org, err := s.repos.Organizations().CreateOrg(c.Context(), &model.Organization{
			Name:         payload.Organization.Name,
			Details:      payload.Organization.Details,
			ContactEmail: payload.Organization.ContactEmail,
			ContactPhone: payload.Organization.ContactPhone,
		})
		if err != nil {
			return s.renderError(c, err)
		}
		orgID = &org.ID
	}

	result, err := s.engine.Issue(c.Context(), auth.IssueRequest{
		Email:        payload.Email,
		Continuation: payload.Continuation,
		RoleHint:     role,
		OrgID:        orgID,
		Invite:       true,
	})
	if err != nil {
		return s.renderError(c, err)
	}

	response := fiber.Map{
		"accepted":  true,
		"isNewUser": result.NewUser,
	}
	if s.cfg.DevRoutes {
		response["link"] = result.Link
	}
	return c.JSON(response)
}

// RegisterCompletePayload redeems a registration link and fills the profile.
type RegisterCompletePayload struct {
	Token string `json:"token"`
	Email string `json:"email"`
	Name  string `json:"name"`
}

// Validate will run validation rules
func (r RegisterCompletePayload) Validate() error {
	return validation.ValidateStruct(&r,
		validation.Field(&r.Token, validation.Required),
		validation.Field(&r.Email, validation.Required, is.Email),
		validation.Field(&r.Name, validation.Length(1, 200)),
	)
}

func (s *Server) registerComplete(c *fiber.Ctx) error {
	payload := new(RegisterCompletePayload)
	if err := c.BodyParser(payload); err != nil {
		return s.renderError(c, goerrors.Wrap(err, goerrors.CategoryBadInput, "invalid request body").
			WithCode(goerrors.CodeBadRequest))
	}
	if err := payload.Validate(); err != nil {
		return s.renderError(c, goerrors.Wrap(err, goerrors.CategoryValidation, "invalid registration").
			WithCode(goerrors.CodeBadRequest))
	}

	result, err := s.engine.Redeem(c.Context(), payload.Token, payload.Email)
	if err != nil {
		return s.renderError(c, err)
	}

	user := result.User
	if payload.Name != "" {
		if updated, err := s.repos.Users().UpdateProfile(c.Context(), user.ID, payload.Name); err == nil {
			user = updated
		} else {
			s.logger.Error("failed to store profile name for %s: %v", user.ID, err)
		}
	}

	s.setSessionCookie(c, result.Credential, sessionExpiry(result.Claims))

	return c.JSON(fiber.Map{
		"user":    user,
		"created": result.Created,
	})
}

func (s *Server) logout(c *fiber.Ctx) error {
	s.clearSessionCookie(c)
	return c.JSON(fiber.Map{"ok": true})
}

func (s *Server) devMagicLink(c *fiber.Ctx) error {
	payload := new(RequestLinkPayload)
	if err := c.BodyParser(payload); err != nil {
		return s.renderError(c, goerrors.Wrap(err, goerrors.CategoryBadInput, "invalid request body").
			WithCode(goerrors.CodeBadRequest))
	}
	if err := payload.Validate(); err != nil {
		return s.renderError(c, goerrors.Wrap(err, goerrors.CategoryValidation, "invalid email").
			WithCode(goerrors.CodeBadRequest))
	}

	result, err := s.engine.Issue(c.Context(), auth.IssueRequest{
		Email:        payload.Email,
		Continuation: payload.Continuation,
	})
	if err != nil {
		return s.renderError(c, err)
	}

	return c.JSON(fiber.Map{"link": result.Link})
}

// InvitePayload invites a colleague into the caller's organization.
type InvitePayload struct {
	Email string `json:"email"`
	Role  string `json:"role"`
}

// Validate will run validation rules
func (r InvitePayload) Validate() error {
	return validation.ValidateStruct(&r,
		validation.Field(&r.Email, validation.Required, is.Email),
	)
}

func (s *Server) invite(c *fiber.Ctx) error {
	claims := CurrentSession(c)

	payload := new(InvitePayload)
	if err := c.BodyParser(payload); err != nil {
		return s.renderError(c, goerrors.Wrap(err, goerrors.CategoryBadInput, "invalid request body").
			WithCode(goerrors.CodeBadRequest))
	}
	if err := payload.Validate(); err != nil {
		return s.renderError(c, goerrors.Wrap(err, goerrors.CategoryValidation, "invalid invite").
			WithCode(goerrors.CodeBadRequest))
	}

	role := model.RoleProvider
	if payload.Role != "" {
		parsed, ok := model.ParseRole(payload.Role)
		if !ok || parsed.IsAdmin() {
			return s.renderError(c, goerrors.New("invalid role", goerrors.CategoryValidation).
				WithCode(goerrors.CodeBadRequest))
		}
		role = parsed
	}

	inviterID, err := claims.UserUUID()
	if err != nil {
		return s.renderError(c, auth.ErrUnableToDecodeSession)
	}

	sub := claims.PolicySubject()
	orgName := ""
	if org, err := s.repos.Organizations().GetOrg(c.Context(), *sub.OrganizationID); err == nil {
		orgName = org.Name
	} else {
		// the invitation still goes out with a neutral subject
		s.logger.Error("failed to load organization %s for invite: %v", sub.OrganizationID, err)
	}

	result, err := s.engine.Issue(c.Context(), auth.IssueRequest{
		Email:     payload.Email,
		RoleHint:  role,
		OrgID:     sub.OrganizationID,
		InvitedBy: &inviterID,
		OrgName:   orgName,
		Invite:    true,
	})
	if err != nil {
		return s.renderError(c, err)
	}

	if err := s.repos.AuditLogs().Append(c.Context(), &model.AuditLog{
		Action:  model.AuditActionInviteTeamMember,
		Details: "invited " + result.Record.Email,
		UserID:  &inviterID,
	}); err != nil {
		s.logger.Error("failed to record invite: %v", err)
	}

	return c.JSON(fiber.Map{"accepted": true})
}

func (s *Server) clearTokens(c *fiber.Ctx) error {
	claims := CurrentSession(c)

	actorID, err := claims.UserUUID()
	if err != nil {
		return s.renderError(c, auth.ErrUnableToDecodeSession)
	}
	keep, err := uuid.Parse(claims.SessionID())
	if err != nil {
		return s.renderError(c, auth.ErrUnableToDecodeSession)
	}

	purged, err := s.engine.ClearTokens(c.Context(), actorID, keep)
	if err != nil {
		return s.renderError(c, err)
	}

	return c.JSON(fiber.Map{"purged": purged})
}

// ImpersonatePayload asks for a session as another account.
type ImpersonatePayload struct {
	Email string `json:"email"`
}

// Validate will run validation rules
func (r ImpersonatePayload) Validate() error {
	return validation.ValidateStruct(&r,
		validation.Field(&r.Email, validation.Required, is.Email),
	)
}

func (s *Server) impersonate(c *fiber.Ctx) error {
	claims := CurrentSession(c)

	payload := new(ImpersonatePayload)
	if err := c.BodyParser(payload); err != nil {
		return s.renderError(c, goerrors.Wrap(err, goerrors.CategoryBadInput, "invalid request body").
			WithCode(goerrors.CodeBadRequest))
	}
	if err := payload.Validate(); err != nil {
		return s.renderError(c, goerrors.Wrap(err, goerrors.CategoryValidation, "invalid email").
			WithCode(goerrors.CodeBadRequest))
	}

	adminID, err := claims.UserUUID()
	if err != nil {
		return s.renderError(c, auth.ErrUnableToDecodeSession)
	}

	result, err := s.engine.Impersonate(c.Context(), adminID, payload.Email)
	if err != nil {
		return s.renderError(c, err)
	}

	s.setSessionCookie(c, result.Credential, sessionExpiry(result.Claims))

	return c.JSON(fiber.Map{
		"user":         result.User,
		"impersonator": adminID,
	})
}
