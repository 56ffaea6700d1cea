package auth

import "github.com/goliatone/go-errors"

const (
	TextCodeTooManyRequests = "TOO_MANY_LINK_REQUESTS"
	TextCodeActiveLink      = "ACTIVE_LINK_EXISTS"
	TextCodeInvalidToken    = "INVALID_TOKEN"
	TextCodeTokenExpired    = "TOKEN_EXPIRED"
	TextCodeTokenMismatch   = "TOKEN_MISMATCH"
	TextCodeDeliveryFailed  = "LINK_DELIVERY_FAILED"
	TextCodeNotApproved     = "ACCOUNT_NOT_APPROVED"
	TextCodeNoSession       = "NO_SESSION"
	TextCodeBadSession      = "UNABLE_TO_DECODE_SESSION"
	TextCodeForbidden       = "FORBIDDEN"
)

// ErrTooManyRequests is returned when an email exceeds the link request window.
var ErrTooManyRequests = errors.New("too many magic link requests", errors.CategoryRateLimit).
	WithTextCode(TextCodeTooManyRequests)

// ErrActiveLinkExists is returned when an unexpired link is already pending for the email.
var ErrActiveLinkExists = errors.New("an active magic link already exists", errors.CategoryConflict).
	WithTextCode(TextCodeActiveLink).
	WithCode(errors.CodeConflict)

// ErrInvalidToken is returned when a presented token does not match any record.
var ErrInvalidToken = errors.New("invalid or already used token", errors.CategoryAuth).
	WithTextCode(TextCodeInvalidToken).
	WithCode(errors.CodeUnauthorized)

// ErrTokenExpired is returned when the token exists but its window has passed.
var ErrTokenExpired = errors.New("token expired", errors.CategoryAuth).
	WithTextCode(TextCodeTokenExpired).
	WithCode(errors.CodeUnauthorized)

// ErrTokenMismatch is returned when the email does not match the token record.
// The token record is left untouched so the legitimate owner can still redeem it.
var ErrTokenMismatch = errors.New("token does not belong to this email", errors.CategoryAuth).
	WithTextCode(TextCodeTokenMismatch).
	WithCode(errors.CodeUnauthorized)

// ErrDeliveryFailed is returned when the magic link email could not be sent.
var ErrDeliveryFailed = errors.New("could not deliver magic link", errors.CategoryOperation).
	WithTextCode(TextCodeDeliveryFailed)

// ErrNotApproved is returned when a pending account reaches a protected surface.
var ErrNotApproved = errors.New("account pending approval", errors.CategoryAuthz).
	WithTextCode(TextCodeNotApproved).
	WithCode(errors.CodeForbidden)

// ErrNoSession is returned when a request carries no usable credential.
var ErrNoSession = errors.New("unable to find session", errors.CategoryAuth).
	WithTextCode(TextCodeNoSession).
	WithCode(errors.CodeUnauthorized)

// ErrUnableToDecodeSession is returned for credentials that fail verification
// for any reason other than expiry.
var ErrUnableToDecodeSession = errors.New("unable to decode session", errors.CategoryAuth).
	WithTextCode(TextCodeBadSession).
	WithCode(errors.CodeUnauthorized)

// ErrForbidden is returned when an authenticated caller lacks the role for an action.
var ErrForbidden = errors.New("insufficient role for this action", errors.CategoryAuthz).
	WithTextCode(TextCodeForbidden).
	WithCode(errors.CodeForbidden)
