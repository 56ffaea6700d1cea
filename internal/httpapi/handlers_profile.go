package httpapi

import (
	validation "github.com/go-ozzo/ozzo-validation"
	"github.com/gofiber/fiber/v2"
	goerrors "github.com/goliatone/go-errors"
)

func (s *Server) getProfile(c *fiber.Ctx) error {
	claims := CurrentSession(c)

	userID, err := claims.UserUUID()
	if err != nil {
		return s.renderError(c, err)
	}

	user, err := s.repos.Users().GetUser(c.Context(), userID)
	if err != nil {
		return s.renderError(c, err)
	}

	response := fiber.Map{"user": user}
	if claims.Impersonated() {
		response["impersonator"] = claims.ImpersonatorID
	}
	return c.JSON(response)
}

// ProfilePayload updates the caller's own display name.
type ProfilePayload struct {
	Name string `json:"name"`
}

// Validate will run validation rules
func (r ProfilePayload) Validate() error {
	return validation.ValidateStruct(&r,
		validation.Field(&r.Name, validation.Required, validation.Length(1, 200)),
	)
}

func (s *Server) updateProfile(c *fiber.Ctx) error {
	claims := CurrentSession(c)

	payload := new(ProfilePayload)
	if err := c.BodyParser(payload); err != nil {
		return s.renderError(c, goerrors.Wrap(err, goerrors.CategoryBadInput, "invalid request body").
			WithCode(goerrors.CodeBadRequest))
	}
	if err := payload.Validate(); err != nil {
		return s.renderError(c, goerrors.Wrap(err, goerrors.CategoryValidation, "invalid profile").
			WithCode(goerrors.CodeBadRequest))
	}

	userID, err := claims.UserUUID()
	if err != nil {
		return s.renderError(c, err)
	}

	user, err := s.repos.Users().UpdateProfile(c.Context(), userID, payload.Name)
	if err != nil {
		return s.renderError(c, err)
	}
	return c.JSON(fiber.Map{"user": user})
}
