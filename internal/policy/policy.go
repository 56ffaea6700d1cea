// Package policy centralizes every authorization decision in the portal.
// Handlers never test role membership inline; they ask Allows with an Action
// so the full rule set stays in one table, testable without any transport.
package policy

import (
	"github.com/google/uuid"

	"github.com/vetcee/portal/internal/model"
)

// Action names a protected operation.
type Action string

const (
	ActionApproveUser  Action = "users.approve"
	ActionMutateRoles  Action = "users.roles"
	ActionListUsers    Action = "users.list"
	ActionViewTokens   Action = "tokens.view"
	ActionDeleteToken  Action = "tokens.delete"
	ActionClearTokens  Action = "tokens.clear"
	ActionImpersonate  Action = "users.impersonate"
	ActionCreateCourse Action = "courses.create"
	ActionReviewCourse Action = "courses.review"
	ActionInviteMember Action = "team.invite"
)

// rules maps each action to the role set that may perform it. Membership in
// any listed role grants the action; extra constraints (approved status, org
// requirement) are applied uniformly by Allows.
var rules = map[Action][]model.Role{
	ActionApproveUser:  {model.RoleAdminFull},
	ActionMutateRoles:  {model.RoleAdminFull},
	ActionListUsers:    {model.RoleAdminFull, model.RoleAdminReadOnly},
	ActionViewTokens:   {model.RoleAdminFull, model.RoleAdminReadOnly},
	ActionDeleteToken:  {model.RoleAdminFull},
	ActionClearTokens:  {model.RoleAdminFull},
	ActionImpersonate:  {model.RoleAdminFull},
	ActionCreateCourse: {model.RoleProvider},
	ActionReviewCourse: {model.RoleReviewer},
	ActionInviteMember: {model.RoleProvider},
}

// orgRequired lists actions that additionally require an organization
// association on the acting identity.
var orgRequired = map[Action]bool{
	ActionInviteMember: true,
	ActionCreateCourse: true,
}

// Subject is the minimal identity surface the policy decides on.
type Subject struct {
	Roles          model.RoleSet
	Status         model.UserStatus
	OrganizationID *uuid.UUID
}

// Allows is the single authorization decision function: (roles, status,
// action) -> allow/deny. Status gating is included so the policy is safe to
// call from paths the admission middleware does not cover.
func Allows(sub Subject, action Action) bool {
	if !model.IsApproved(sub.Status) {
		return false
	}

	allowed, known := rules[action]
	if !known {
		return false
	}

	if !sub.Roles.HasAny(allowed...) {
		return false
	}

	if orgRequired[action] && sub.OrganizationID == nil {
		return false
	}

	return true
}

// Actions returns the known actions, mostly for exhaustiveness tests.
func Actions() []Action {
	out := make([]Action, 0, len(rules))
	for a := range rules {
		out = append(out, a)
	}
	return out
}

// AutoApproveInput captures the persisted token context consulted by the
// auto-approval predicate. Only token-record fields appear here: flags
// supplied by the registration form are deliberately not part of the input.
type AutoApproveInput struct {
	Role           model.Role
	InvitedBy      *uuid.UUID
	OrgID          *uuid.UUID
	AdminInitiated bool
}

// AutoApprove decides whether a freshly registered user skips manual
// approval. Exactly two combinations qualify:
//
//  1. team invitation joining an existing organization (inviter and org both
//     recorded on the token), and
//  2. admin-initiated creation of an administrative account.
//
// Everything else starts pending.
func AutoApprove(in AutoApproveInput) bool {
	if in.InvitedBy != nil && in.OrgID != nil {
		return true
	}
	if in.AdminInitiated && in.Role.IsAdmin() {
		return true
	}
	return false
}

// StatusForNewUser maps the auto-approval decision onto a user status.
func StatusForNewUser(in AutoApproveInput) model.UserStatus {
	if AutoApprove(in) {
		return model.UserStatusApproved
	}
	return model.UserStatusPending
}
