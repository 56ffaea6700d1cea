package auth

import (
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"

	"github.com/vetcee/portal/internal/model"
	"github.com/vetcee/portal/internal/policy"
)

// SessionClaims is the portal session credential payload.
type SessionClaims struct {
	jwt.RegisteredClaims
	UID            string   `json:"uid,omitempty"`
	Roles          []string `json:"roles,omitempty"`
	Status         string   `json:"status,omitempty"`
	OrganizationID string   `json:"org,omitempty"`
	ImpersonatorID string   `json:"impersonator,omitempty"`
}

// UserID returns the account id carried by the credential.
func (c *SessionClaims) UserID() string {
	if c.UID != "" {
		return c.UID
	}
	return c.RegisteredClaims.Subject
}

// UserUUID parses the account id.
func (c *SessionClaims) UserUUID() (uuid.UUID, error) {
	return uuid.Parse(c.UserID())
}

// SessionID returns the credential nonce.
func (c *SessionClaims) SessionID() string {
	return c.RegisteredClaims.ID
}

// RoleSet converts the string roles back into the domain type.
func (c *SessionClaims) RoleSet() model.RoleSet {
	roles := make(model.RoleSet, 0, len(c.Roles))
	for _, r := range c.Roles {
		roles = append(roles, model.Role(r))
	}
	return roles
}

// Approved reports whether the credential was minted for an approved account.
func (c *SessionClaims) Approved() bool {
	return model.IsApproved(model.UserStatus(c.Status))
}

// Impersonated reports whether an admin is acting as this account.
func (c *SessionClaims) Impersonated() bool {
	return c.ImpersonatorID != ""
}

// Expires returns the credential expiry, zero when absent.
func (c *SessionClaims) Expires() time.Time {
	if c.ExpiresAt == nil {
		return time.Time{}
	}
	return c.ExpiresAt.Time
}

// PolicySubject projects the claims into the shape the authorization rules consume.
func (c *SessionClaims) PolicySubject() policy.Subject {
	sub := policy.Subject{
		Roles:  c.RoleSet(),
		Status: model.NormalizeStatus(model.UserStatus(c.Status)),
	}
	if c.OrganizationID != "" {
		if id, err := uuid.Parse(c.OrganizationID); err == nil {
			sub.OrganizationID = &id
		}
	}
	return sub
}
