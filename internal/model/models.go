package model

import (
	"time"

	"github.com/google/uuid"
	"github.com/uptrace/bun"
)

// User is the portal account model
type User struct {
	bun.BaseModel  `bun:"table:users,alias:usr"`
	ID             uuid.UUID  `bun:"id,pk,nullzero,type:uuid" json:"id,omitempty"`
	Email          string     `bun:"email,notnull,unique" json:"email,omitempty"`
	Name           string     `bun:"name,notnull" json:"name,omitempty"`
	Roles          RoleSet    `bun:"roles,type:jsonb" json:"roles,omitempty"`
	Status         UserStatus `bun:"status,notnull" json:"status,omitempty"`
	OrganizationID *uuid.UUID `bun:"organization_id,nullzero,type:uuid" json:"organization_id,omitempty"`

	Organization *Organization `bun:"rel:belongs-to,join:organization_id=id" json:"organization,omitempty"`

	CreatedAt *time.Time `bun:"created_at,nullzero,default:current_timestamp" json:"created_at,omitempty"`
	UpdatedAt *time.Time `bun:"updated_at,nullzero,default:current_timestamp" json:"updated_at,omitempty"`
	DeletedAt *time.Time `bun:"deleted_at,soft_delete,nullzero" json:"deleted_at,omitempty"`
}

// EnsureStatus backfills the default status on records created before the
// status column existed, normalizing legacy uppercase values along the way.
func (u *User) EnsureStatus() {
	if u.Status == "" {
		u.Status = UserStatusPending
		return
	}
	u.Status = NormalizeStatus(u.Status)
}

// IsApproved reports whether the account passed admission.
func (u *User) IsApproved() bool {
	return IsApproved(u.Status)
}

// Organization is an accredited training provider organization
type Organization struct {
	bun.BaseModel `bun:"table:organizations,alias:org"`
	ID            uuid.UUID `bun:"id,pk,nullzero,type:uuid" json:"id,omitempty"`
	Name          string    `bun:"name,notnull" json:"name,omitempty"`
	Details       string    `bun:"details" json:"details,omitempty"`
	ContactEmail  string    `bun:"contact_email" json:"contact_email,omitempty"`
	ContactPhone  string    `bun:"contact_phone" json:"contact_phone,omitempty"`

	CreatedAt *time.Time `bun:"created_at,nullzero,default:current_timestamp" json:"created_at,omitempty"`
	UpdatedAt *time.Time `bun:"updated_at,nullzero,default:current_timestamp" json:"updated_at,omitempty"`
	DeletedAt *time.Time `bun:"deleted_at,soft_delete,nullzero" json:"deleted_at,omitempty"`
}

// VerificationToken is a one-time magic-link token.
//
// Identifier and Email are a historical duplication carried for schema
// compatibility; SetEmail is the single write path that keeps them equal.
type VerificationToken struct {
	bun.BaseModel  `bun:"table:verification_tokens,alias:vtk"`
	ID             uuid.UUID  `bun:"id,pk,nullzero,type:uuid" json:"id,omitempty"`
	Token          string     `bun:"token,notnull,unique" json:"token,omitempty"`
	Identifier     string     `bun:"identifier,notnull" json:"identifier,omitempty"`
	Email          string     `bun:"email,notnull" json:"email,omitempty"`
	Status         TokenStatus `bun:"status,notnull" json:"status,omitempty"`
	ExpiresAt      time.Time  `bun:"expires_at,notnull" json:"expires_at,omitempty"`
	RoleHint       Role       `bun:"role_hint,nullzero" json:"role_hint,omitempty"`
	OrgID          *uuid.UUID `bun:"org_id,nullzero,type:uuid" json:"org_id,omitempty"`
	InvitedBy      *uuid.UUID `bun:"invited_by,nullzero,type:uuid" json:"invited_by,omitempty"`
	AdminInitiated bool       `bun:"admin_initiated" json:"admin_initiated,omitempty"`

	CreatedAt *time.Time `bun:"created_at,nullzero,default:current_timestamp" json:"created_at,omitempty"`
}

// SetEmail writes both legacy columns, preserving the identifier == email
// invariant. No other code assigns either field.
func (t *VerificationToken) SetEmail(email string) {
	t.Identifier = email
	t.Email = email
}

// Expired checks the token expiry against now.
func (t *VerificationToken) Expired(now time.Time) bool {
	return !t.ExpiresAt.After(now)
}

// StoredSession is the bookkeeping row recorded at credential mint time. The
// credential itself stays stateless; these rows exist only so the bulk
// clear-tokens action has something to invalidate.
type StoredSession struct {
	bun.BaseModel `bun:"table:sessions,alias:ses"`
	ID            uuid.UUID `bun:"id,pk,nullzero,type:uuid" json:"id,omitempty"`
	UserID        uuid.UUID `bun:"user_id,notnull,type:uuid" json:"user_id,omitempty"`
	ExpiresAt     time.Time `bun:"expires_at,notnull" json:"expires_at,omitempty"`

	CreatedAt *time.Time `bun:"created_at,nullzero,default:current_timestamp" json:"created_at,omitempty"`
}

// AuditLog records administrative and security-relevant actions
type AuditLog struct {
	bun.BaseModel `bun:"table:audit_logs,alias:aud"`
	ID            uuid.UUID  `bun:"id,pk,nullzero,type:uuid" json:"id,omitempty"`
	Action        string     `bun:"action,notnull" json:"action,omitempty"`
	Details       string     `bun:"details" json:"details,omitempty"`
	UserID        *uuid.UUID `bun:"user_id,nullzero,type:uuid" json:"user_id,omitempty"`
	TargetID      *uuid.UUID `bun:"target_id,nullzero,type:uuid" json:"target_id,omitempty"`

	CreatedAt *time.Time `bun:"created_at,nullzero,default:current_timestamp" json:"created_at,omitempty"`
}

// Audit actions recorded by the portal.
const (
	AuditActionApproveUser      = "APPROVE_USER"
	AuditActionUpdateUserRoles  = "UPDATE_USER_ROLES"
	AuditActionCreateUser       = "CREATE_USER"
	AuditActionInviteTeamMember = "INVITE_TEAM_MEMBER"
	AuditActionDeleteToken      = "DELETE_TOKEN"
	AuditActionClearTokens      = "CLEAR_TOKENS"
	AuditActionImpersonateUser  = "IMPERSONATE_USER"
)
