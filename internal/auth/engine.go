package auth

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"net/url"
	"strings"
	"time"

	goerrors "github.com/goliatone/go-errors"
	repository "github.com/goliatone/go-repository-bun"
	"github.com/google/uuid"
	"github.com/uptrace/bun"

	"github.com/vetcee/portal/internal/mailer"
	"github.com/vetcee/portal/internal/model"
	"github.com/vetcee/portal/internal/policy"
	repos "github.com/vetcee/portal/internal/repository"
	"github.com/vetcee/portal/internal/ratelimit"
)

// Engine drives the magic link lifecycle: issue a single use token, deliver
// it, redeem it at most once, and mint the session credential.
type Engine struct {
	repos     repos.Manager
	tokens    *TokenService
	limiter   ratelimit.Admitter
	sender    mailer.Sender
	baseURL   string
	linkTTL   time.Duration
	inviteTTL time.Duration
	logger    Logger
	now       func() time.Time
	newToken  func() (string, error)
}

// EngineOption configures an Engine.
type EngineOption func(*Engine)

// WithBaseURL sets the public URL magic links point at.
func WithBaseURL(u string) EngineOption {
	return func(e *Engine) { e.baseURL = strings.TrimRight(u, "/") }
}

// WithLinkTTL sets the lifetime of self-service magic links.
func WithLinkTTL(d time.Duration) EngineOption {
	return func(e *Engine) { e.linkTTL = d }
}

// WithInviteTTL sets the lifetime of invitation links.
func WithInviteTTL(d time.Duration) EngineOption {
	return func(e *Engine) { e.inviteTTL = d }
}

// WithLogger sets the engine logger.
func WithLogger(logger Logger) EngineOption {
	return func(e *Engine) { e.logger = logger }
}

// WithClock overrides the clock, used in tests.
func WithClock(now func() time.Time) EngineOption {
	return func(e *Engine) { e.now = now }
}

// WithTokenGenerator overrides the raw token source, used in tests.
func WithTokenGenerator(gen func() (string, error)) EngineOption {
	return func(e *Engine) { e.newToken = gen }
}

// NewEngine wires the magic link engine.
func NewEngine(manager repos.Manager, tokens *TokenService, limiter ratelimit.Admitter, sender mailer.Sender, opts ...EngineOption) *Engine {
	e := &Engine{
		repos:     manager,
		tokens:    tokens,
		limiter:   limiter,
		sender:    sender,
		baseURL:   "http://localhost:3000",
		linkTTL:   10 * time.Minute,
		inviteTTL: 24 * time.Hour,
		logger:    defLogger{},
		now:       time.Now,
		newToken:  randomToken,
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

func randomToken() (string, error) {
	buf := make([]byte, 32)
	if _, err := rand.Read(buf); err != nil {
		return "", goerrors.Wrap(err, goerrors.CategoryInternal, "failed to generate token")
	}
	return hex.EncodeToString(buf), nil
}

func normalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}

// IssueRequest describes a magic link request. The invitation fields come
// from persisted server-side state or an authenticated admin call, never from
// the anonymous request body.
type IssueRequest struct {
	Email          string
	Continuation   string
	RoleHint       model.Role
	OrgID          *uuid.UUID
	InvitedBy      *uuid.UUID
	OrgName        string
	AdminInitiated bool
	Invite         bool
}

// IssueResult reports an issued magic link.
type IssueResult struct {
	Record  *model.VerificationToken
	Link    string
	NewUser bool
}

// Issue creates and delivers a single use magic link for the email. It
// refuses when the email is inside the rate limit window or already has an
// active unexpired link pending.
func (e *Engine) Issue(ctx context.Context, req IssueRequest) (*IssueResult, error) {
	email := normalizeEmail(req.Email)
	if email == "" {
		return nil, goerrors.New("email is required", goerrors.CategoryBadInput).
			WithCode(goerrors.CodeBadRequest)
	}

	res := e.limiter.Admit(email)
	if !res.Allowed {
		e.logger.Info("magic link request rate limited for %s", email)
		return nil, goerrors.New(ErrTooManyRequests.Message, goerrors.CategoryRateLimit).
			WithTextCode(TextCodeTooManyRequests).
			WithMetadata(map[string]any{
				"retry_after_seconds": int(res.ResetIn.Seconds()),
				"remaining":           res.Remaining,
			})
	}

	now := e.now()
	if pending, err := e.repos.Tokens().FindActiveByEmail(ctx, email, now); err == nil {
		return nil, goerrors.New(ErrActiveLinkExists.Message, ErrActiveLinkExists.Category).
			WithTextCode(TextCodeActiveLink).
			WithCode(goerrors.CodeConflict).
			WithMetadata(map[string]any{"expires_at": pending.ExpiresAt})
	} else if !repository.IsRecordNotFound(err) {
		return nil, err
	}

	newUser := false
	if _, err := e.repos.Users().GetByEmail(ctx, email); err != nil {
		if !repository.IsRecordNotFound(err) {
			return nil, err
		}
		newUser = true
	}

	raw, err := e.newToken()
	if err != nil {
		return nil, err
	}

	ttl := e.linkTTL
	if req.Invite {
		ttl = e.inviteTTL
	}

	rec := &model.VerificationToken{
		Token:          raw,
		ExpiresAt:      now.Add(ttl),
		RoleHint:       req.RoleHint,
		OrgID:          req.OrgID,
		InvitedBy:      req.InvitedBy,
		AdminInitiated: req.AdminInitiated,
	}
	rec.SetEmail(email)

	rec, err = e.repos.Tokens().CreateToken(ctx, rec)
	if err != nil {
		return nil, err
	}

	link := e.CallbackURL(raw, email, req.Continuation)

	msg := mailer.MagicLinkEmail(email, link, newUser)
	if req.Invite {
		msg = mailer.InviteEmail(email, req.OrgName, link)
	}

	if err := e.deliver(ctx, msg); err != nil {
		// the undeliverable token would lock the email out until expiry,
		// so roll it back before reporting the failure
		if _, delErr := e.repos.Tokens().DeleteByID(ctx, rec.ID); delErr != nil {
			e.logger.Error("failed to roll back undelivered token %s: %v", rec.ID, delErr)
		}
		return nil, goerrors.Wrap(err, ErrDeliveryFailed.Category, ErrDeliveryFailed.Message).
			WithTextCode(TextCodeDeliveryFailed)
	}

	e.logger.Info("magic link issued for %s invite=%v new_user=%v", email, req.Invite, newUser)

	return &IssueResult{Record: rec, Link: link, NewUser: newUser}, nil
}

// LookupAccount reports whether an account exists for the email. It shares
// the issuance rate limit window so it cannot be used to probe faster than
// links can be requested.
func (e *Engine) LookupAccount(ctx context.Context, email string) (*model.User, bool, error) {
	email = normalizeEmail(email)

	res := e.limiter.Admit(email)
	if !res.Allowed {
		return nil, false, goerrors.New(ErrTooManyRequests.Message, goerrors.CategoryRateLimit).
			WithTextCode(TextCodeTooManyRequests).
			WithMetadata(map[string]any{
				"retry_after_seconds": int(res.ResetIn.Seconds()),
				"remaining":           res.Remaining,
			})
	}

	user, err := e.repos.Users().GetByEmail(ctx, email)
	if err != nil {
		if repository.IsRecordNotFound(err) {
			return nil, false, nil
		}
		return nil, false, err
	}
	return user, true, nil
}

func (e *Engine) deliver(ctx context.Context, msg mailer.Message) error {
	err := e.sender.Send(ctx, msg)
	if err == nil {
		return nil
	}
	e.logger.Error("magic link delivery to %s failed, retrying once: %v", msg.To, err)
	return e.sender.Send(ctx, msg)
}

// CallbackURL builds the link a recipient follows to redeem a token.
func (e *Engine) CallbackURL(token, email, continuation string) string {
	q := url.Values{}
	q.Set("token", token)
	q.Set("email", email)
	if continuation != "" {
		q.Set("continuation", continuation)
	}
	return fmt.Sprintf("%s/api/auth/callback?%s", e.baseURL, q.Encode())
}

// RedeemResult reports a successful redemption.
type RedeemResult struct {
	User       *model.User
	Claims     *SessionClaims
	Credential string
	Created    bool
}

// Redeem validates and consumes a magic link token, creating the account on
// first sign-in, and mints a session credential. A token redeems at most
// once: concurrent redemptions race on a conditional delete and all but one
// observe the token as already gone.
func (e *Engine) Redeem(ctx context.Context, token, email string) (*RedeemResult, error) {
	if token == "" || email == "" {
		return nil, goerrors.New("token and email are required", goerrors.CategoryBadInput).
			WithCode(goerrors.CodeBadRequest)
	}

	rec, err := e.repos.Tokens().FindByToken(ctx, token)
	if err != nil {
		if repository.IsRecordNotFound(err) {
			return nil, ErrInvalidToken
		}
		return nil, err
	}

	now := e.now()
	if rec.Expired(now) {
		// keep the row so admin listings show it as expired
		if _, reapErr := e.repos.Tokens().ReapExpired(ctx, now); reapErr != nil {
			e.logger.Error("failed to mark expired tokens: %v", reapErr)
		}
		return nil, ErrTokenExpired
	}

	// a mismatch leaves the token untouched for the legitimate owner
	if normalizeEmail(email) != rec.Email {
		e.logger.Info("token redemption email mismatch for token %s", rec.ID)
		return nil, ErrTokenMismatch
	}

	var user *model.User
	var created bool

	err = e.repos.RunInTx(ctx, nil, func(ctx context.Context, tx bun.Tx) error {
		ok, err := e.repos.Tokens().ConsumeTx(ctx, tx, rec.ID, rec.Email, now)
		if err != nil {
			return err
		}
		if !ok {
			return ErrInvalidToken
		}

		user, err = e.repos.Users().GetByEmailTx(ctx, tx, rec.Email)
		if err == nil {
			return nil
		}
		if !repository.IsRecordNotFound(err) {
			return err
		}

		roles := model.RoleSet{model.RoleProvider}
		if rec.RoleHint.IsValid() {
			roles = model.RoleSet{rec.RoleHint}
		}
		status := policy.StatusForNewUser(policy.AutoApproveInput{
			Role:           rec.RoleHint,
			InvitedBy:      rec.InvitedBy,
			OrgID:          rec.OrgID,
			AdminInitiated: rec.AdminInitiated,
		})

		user, err = e.repos.Users().RegisterTx(ctx, tx, &model.User{
			Email:          rec.Email,
			Roles:          roles,
			Status:         status,
			OrganizationID: rec.OrgID,
		})
		if err != nil {
			return err
		}
		created = true

		return e.repos.AuditLogs().AppendTx(ctx, tx, &model.AuditLog{
			Action:   model.AuditActionCreateUser,
			Details:  fmt.Sprintf("account created via magic link, status %s", user.Status),
			UserID:   rec.InvitedBy,
			TargetID: &user.ID,
		})
	})
	if err != nil {
		return nil, err
	}

	result, err := e.mintSession(ctx, user, nil)
	if err != nil {
		return nil, err
	}
	result.Created = created

	e.logger.Info("magic link redeemed for user %s created=%v", user.ID, created)
	return result, nil
}

// Impersonate mints a credential for the target account, tagged with the
// acting admin so the session stays attributable.
func (e *Engine) Impersonate(ctx context.Context, adminID uuid.UUID, targetEmail string) (*RedeemResult, error) {
	user, err := e.repos.Users().GetByEmail(ctx, targetEmail)
	if err != nil {
		return nil, err
	}

	result, err := e.mintSession(ctx, user, &adminID)
	if err != nil {
		return nil, err
	}

	if err := e.repos.AuditLogs().Append(ctx, &model.AuditLog{
		Action:   model.AuditActionImpersonateUser,
		Details:  fmt.Sprintf("admin assumed session for %s", user.Email),
		UserID:   &adminID,
		TargetID: &user.ID,
	}); err != nil {
		e.logger.Error("failed to record impersonation: %v", err)
	}

	return result, nil
}

func (e *Engine) mintSession(ctx context.Context, user *model.User, impersonator *uuid.UUID) (*RedeemResult, error) {
	signed, claims, err := e.tokens.Mint(user, impersonator)
	if err != nil {
		return nil, err
	}

	sessionID, err := uuid.Parse(claims.ID)
	if err != nil {
		return nil, goerrors.Wrap(err, goerrors.CategoryInternal, "invalid session nonce")
	}

	if err := e.repos.Sessions().CreateSession(ctx, &model.StoredSession{
		ID:        sessionID,
		UserID:    user.ID,
		ExpiresAt: claims.ExpiresAt.Time,
	}); err != nil {
		return nil, err
	}

	return &RedeemResult{User: user, Claims: claims, Credential: signed}, nil
}

// ClearTokens removes every verification token and invalidates every stored
// session except the caller's own.
func (e *Engine) ClearTokens(ctx context.Context, actorID uuid.UUID, keepSession uuid.UUID) (int64, error) {
	purged, err := e.repos.Tokens().DeleteAllTokens(ctx)
	if err != nil {
		return 0, err
	}

	if _, err := e.repos.Sessions().DeleteAllExcept(ctx, keepSession); err != nil {
		return purged, err
	}

	if err := e.repos.AuditLogs().Append(ctx, &model.AuditLog{
		Action:  model.AuditActionClearTokens,
		Details: fmt.Sprintf("purged %d verification tokens", purged),
		UserID:  &actorID,
	}); err != nil {
		e.logger.Error("failed to record token purge: %v", err)
	}

	return purged, nil
}

// Cleanup marks expired tokens and drops expired session rows. Intended to
// run periodically.
func (e *Engine) Cleanup(ctx context.Context) error {
	now := e.now()
	if _, err := e.repos.Tokens().ReapExpired(ctx, now); err != nil {
		return err
	}
	_, err := e.repos.Sessions().DeleteExpired(ctx, now)
	return err
}
