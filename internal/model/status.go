package model

import "strings"

// UserStatus is the account lifecycle status.
type UserStatus = string

const (
	// UserStatusPending is the default status for self-registered accounts
	UserStatusPending UserStatus = "pending"
	// UserStatusApproved accounts pass the admission gate
	UserStatusApproved UserStatus = "approved"
)

// NormalizeStatus collapses the historical casing variants ("PENDING",
// "APPROVED") onto the canonical lowercase values. Unknown strings are
// returned lowercased so comparisons stay case-insensitive everywhere.
func NormalizeStatus(s string) UserStatus {
	return UserStatus(strings.ToLower(strings.TrimSpace(s)))
}

// IsApproved checks a raw status value against the canonical approved status.
func IsApproved(s string) bool {
	return NormalizeStatus(s) == UserStatusApproved
}

// TokenStatus is the verification-token lifecycle status.
type TokenStatus = string

const (
	TokenStatusActive  TokenStatus = "active"
	TokenStatusUsed    TokenStatus = "used"
	TokenStatusExpired TokenStatus = "expired"
)

// CourseStatus tracks a course through the accreditation pipeline.
type CourseStatus = string

const (
	CourseStatusDraft       CourseStatus = "draft"
	CourseStatusSubmitted   CourseStatus = "submitted"
	CourseStatusUnderReview CourseStatus = "under_review"
	CourseStatusApproved    CourseStatus = "approved"
	CourseStatusRejected    CourseStatus = "rejected"
)

// ValidCourseStatus reports whether s is a known course status.
func ValidCourseStatus(s string) bool {
	switch CourseStatus(s) {
	case CourseStatusDraft, CourseStatusSubmitted, CourseStatusUnderReview,
		CourseStatusApproved, CourseStatusRejected:
		return true
	default:
		return false
	}
}
