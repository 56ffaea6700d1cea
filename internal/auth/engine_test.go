package auth_test

import (
	"context"
	"database/sql"
	"fmt"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	goerrors "github.com/goliatone/go-errors"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/uptrace/bun"
	"github.com/uptrace/bun/dialect/sqlitedialect"
	"github.com/uptrace/bun/driver/sqliteshim"

	"github.com/vetcee/portal/internal/auth"
	"github.com/vetcee/portal/internal/mailer"
	"github.com/vetcee/portal/internal/model"
	"github.com/vetcee/portal/internal/ratelimit"
	"github.com/vetcee/portal/internal/repository"
)

var engineDBSeq atomic.Int64

func newTestManager(t *testing.T) repository.Manager {
	t.Helper()

	dsn := fmt.Sprintf("file:engine_test_%d?mode=memory&cache=shared", engineDBSeq.Add(1))
	sqldb, err := sql.Open(sqliteshim.ShimName, dsn)
	require.NoError(t, err)
	sqldb.SetMaxOpenConns(1)

	db := bun.NewDB(sqldb, sqlitedialect.New())
	require.NoError(t, repository.CreateSchema(context.Background(), db))
	t.Cleanup(func() { db.Close() })

	return repository.NewManager(db)
}

// captureSender records outgoing messages and can fail a configured number
// of sends before recovering.
type captureSender struct {
	mu       sync.Mutex
	messages []mailer.Message
	failures int
	attempts int
}

func (s *captureSender) Send(ctx context.Context, msg mailer.Message) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.attempts++
	if s.failures > 0 {
		s.failures--
		return fmt.Errorf("smtp unavailable")
	}
	s.messages = append(s.messages, msg)
	return nil
}

func (s *captureSender) last(t *testing.T) mailer.Message {
	s.mu.Lock()
	defer s.mu.Unlock()
	require.NotEmpty(t, s.messages)
	return s.messages[len(s.messages)-1]
}

type engineFixture struct {
	engine  *auth.Engine
	manager repository.Manager
	sender  *captureSender
	now     time.Time
}

func newEngineFixture(t *testing.T, opts ...auth.EngineOption) *engineFixture {
	t.Helper()

	f := &engineFixture{
		manager: newTestManager(t),
		sender:  &captureSender{},
		now:     time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC),
	}

	service := auth.NewTokenService(signingKey, "vetcee-portal", nil,
		24*time.Hour, 8*time.Hour,
		auth.WithTokenClock(func() time.Time { return f.now }))

	limiter := ratelimit.New(10*time.Minute, 3,
		ratelimit.WithClock(func() time.Time { return f.now }))

	base := []auth.EngineOption{
		auth.WithBaseURL("https://portal.vetcee.example"),
		auth.WithClock(func() time.Time { return f.now }),
	}

	f.engine = auth.NewEngine(f.manager, service, limiter, f.sender, append(base, opts...)...)
	return f
}

func textCode(t *testing.T, err error) string {
	t.Helper()
	var richErr *goerrors.Error
	require.ErrorAs(t, err, &richErr)
	return richErr.TextCode
}

func TestIssueAndRedeemNewUser(t *testing.T) {
	f := newEngineFixture(t)
	ctx := context.Background()

	issued, err := f.engine.Issue(ctx, auth.IssueRequest{Email: "New.Vet@Clinic.Example"})
	require.NoError(t, err)
	assert.True(t, issued.NewUser)
	assert.Contains(t, issued.Link, "https://portal.vetcee.example/api/auth/callback?")
	assert.Contains(t, issued.Link, issued.Record.Token)
	assert.Equal(t, "new.vet@clinic.example", issued.Record.Email)
	assert.Equal(t, issued.Record.Email, issued.Record.Identifier)

	msg := f.sender.last(t)
	assert.Equal(t, "new.vet@clinic.example", msg.To)
	assert.Contains(t, msg.TextBody, issued.Link)

	redeemed, err := f.engine.Redeem(ctx, issued.Record.Token, "new.vet@clinic.example")
	require.NoError(t, err)
	assert.True(t, redeemed.Created)
	assert.Equal(t, model.UserStatusPending, redeemed.User.Status)
	assert.True(t, redeemed.User.Roles.Has(model.RoleProvider))
	assert.NotEmpty(t, redeemed.Credential)
	assert.False(t, redeemed.Claims.Approved())

	// the link is gone after redemption
	_, err = f.engine.Redeem(ctx, issued.Record.Token, "new.vet@clinic.example")
	assert.ErrorIs(t, err, auth.ErrInvalidToken)
}

func TestRedeemExistingUserKeepsAccount(t *testing.T) {
	f := newEngineFixture(t)
	ctx := context.Background()

	existing, err := f.manager.Users().Register(ctx, &model.User{
		Email:  "vet@clinic.example",
		Roles:  model.RoleSet{model.RoleReviewer},
		Status: model.UserStatusApproved,
	})
	require.NoError(t, err)

	issued, err := f.engine.Issue(ctx, auth.IssueRequest{Email: "vet@clinic.example"})
	require.NoError(t, err)
	assert.False(t, issued.NewUser)

	redeemed, err := f.engine.Redeem(ctx, issued.Record.Token, "vet@clinic.example")
	require.NoError(t, err)
	assert.False(t, redeemed.Created)
	assert.Equal(t, existing.ID, redeemed.User.ID)
	assert.True(t, redeemed.Claims.Approved())
}

func TestRedeemUnknownToken(t *testing.T) {
	f := newEngineFixture(t)

	_, err := f.engine.Redeem(context.Background(), "no-such-token", "vet@clinic.example")
	assert.ErrorIs(t, err, auth.ErrInvalidToken)
}

func TestRedeemMismatchPreservesToken(t *testing.T) {
	f := newEngineFixture(t)
	ctx := context.Background()

	issued, err := f.engine.Issue(ctx, auth.IssueRequest{Email: "owner@clinic.example"})
	require.NoError(t, err)

	_, err = f.engine.Redeem(ctx, issued.Record.Token, "intruder@clinic.example")
	assert.ErrorIs(t, err, auth.ErrTokenMismatch)

	// the rightful owner can still redeem
	redeemed, err := f.engine.Redeem(ctx, issued.Record.Token, "owner@clinic.example")
	require.NoError(t, err)
	assert.Equal(t, "owner@clinic.example", redeemed.User.Email)
}

func TestRedeemExpiredToken(t *testing.T) {
	f := newEngineFixture(t)
	ctx := context.Background()

	issued, err := f.engine.Issue(ctx, auth.IssueRequest{Email: "late@clinic.example"})
	require.NoError(t, err)

	f.now = f.now.Add(11 * time.Minute)

	_, err = f.engine.Redeem(ctx, issued.Record.Token, "late@clinic.example")
	assert.ErrorIs(t, err, auth.ErrTokenExpired)

	// the record is kept but marked expired
	inactive, err := f.manager.Tokens().ListInactive(ctx, f.now)
	require.NoError(t, err)
	require.Len(t, inactive, 1)
	assert.Equal(t, model.TokenStatusExpired, inactive[0].Status)
}

func TestRedeemConcurrentSingleWinner(t *testing.T) {
	f := newEngineFixture(t)
	ctx := context.Background()

	issued, err := f.engine.Issue(ctx, auth.IssueRequest{Email: "race@clinic.example"})
	require.NoError(t, err)

	const attempts = 6
	var wg sync.WaitGroup
	var wins atomic.Int32
	for i := 0; i < attempts; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if _, err := f.engine.Redeem(ctx, issued.Record.Token, "race@clinic.example"); err == nil {
				wins.Add(1)
			}
		}()
	}
	wg.Wait()

	assert.EqualValues(t, 1, wins.Load(), "exactly one redemption mints a session")
}

func TestIssueDuplicateActiveLink(t *testing.T) {
	f := newEngineFixture(t)
	ctx := context.Background()

	_, err := f.engine.Issue(ctx, auth.IssueRequest{Email: "vet@clinic.example"})
	require.NoError(t, err)

	_, err = f.engine.Issue(ctx, auth.IssueRequest{Email: "vet@clinic.example"})
	require.Error(t, err)
	assert.Equal(t, auth.TextCodeActiveLink, textCode(t, err))
}

func TestIssueRateLimited(t *testing.T) {
	f := newEngineFixture(t)
	ctx := context.Background()

	// failed deliveries roll the token back, so every attempt reaches the
	// limiter without tripping the duplicate link check
	f.sender.failures = 100

	for i := 0; i < 3; i++ {
		_, err := f.engine.Issue(ctx, auth.IssueRequest{Email: "busy@clinic.example"})
		require.Error(t, err)
		assert.Equal(t, auth.TextCodeDeliveryFailed, textCode(t, err))
	}

	_, err := f.engine.Issue(ctx, auth.IssueRequest{Email: "busy@clinic.example"})
	require.Error(t, err)
	assert.Equal(t, auth.TextCodeTooManyRequests, textCode(t, err))

	// a different email is unaffected
	_, err = f.engine.Issue(ctx, auth.IssueRequest{Email: "calm@clinic.example"})
	require.Error(t, err)
	assert.Equal(t, auth.TextCodeDeliveryFailed, textCode(t, err))

	// the window eventually reopens
	f.now = f.now.Add(11 * time.Minute)
	f.sender.failures = 0
	_, err = f.engine.Issue(ctx, auth.IssueRequest{Email: "busy@clinic.example"})
	assert.NoError(t, err)
}

func TestIssueDeliveryRetry(t *testing.T) {
	f := newEngineFixture(t)
	ctx := context.Background()

	// first send fails, the retry succeeds
	f.sender.failures = 1

	issued, err := f.engine.Issue(ctx, auth.IssueRequest{Email: "flaky@clinic.example"})
	require.NoError(t, err)
	assert.Equal(t, 2, f.sender.attempts)

	// both sends failing rolls the token back
	f.sender.failures = 2
	_, err = f.engine.Issue(ctx, auth.IssueRequest{Email: "other@clinic.example"})
	require.Error(t, err)
	assert.Equal(t, auth.TextCodeDeliveryFailed, textCode(t, err))

	_, err = f.manager.Tokens().FindActiveByEmail(ctx, "other@clinic.example", f.now)
	assert.Error(t, err, "undelivered token must not survive")

	// the first email's token is untouched
	_, err = f.manager.Tokens().FindActiveByEmail(ctx, "flaky@clinic.example", f.now)
	assert.NoError(t, err)
	_ = issued
}

func TestRedeemInvitationAutoApproves(t *testing.T) {
	f := newEngineFixture(t)
	ctx := context.Background()

	inviter := uuid.New()
	org, err := f.manager.Organizations().CreateOrg(ctx, &model.Organization{Name: "Alpine Vet Academy"})
	require.NoError(t, err)

	issued, err := f.engine.Issue(ctx, auth.IssueRequest{
		Email:     "colleague@clinic.example",
		RoleHint:  model.RoleProvider,
		OrgID:     &org.ID,
		InvitedBy: &inviter,
		OrgName:   org.Name,
		Invite:    true,
	})
	require.NoError(t, err)

	msg := f.sender.last(t)
	assert.Contains(t, msg.Subject, "Alpine Vet Academy")

	// invitation links last longer than self-service links
	assert.WithinDuration(t, f.now.Add(24*time.Hour), issued.Record.ExpiresAt, time.Second)

	redeemed, err := f.engine.Redeem(ctx, issued.Record.Token, "colleague@clinic.example")
	require.NoError(t, err)
	assert.True(t, redeemed.Created)
	assert.Equal(t, model.UserStatusApproved, redeemed.User.Status)
	require.NotNil(t, redeemed.User.OrganizationID)
	assert.Equal(t, org.ID, *redeemed.User.OrganizationID)
	assert.True(t, redeemed.Claims.Approved())
}

func TestRedeemAdminInitiatedAutoApproves(t *testing.T) {
	f := newEngineFixture(t)
	ctx := context.Background()

	tests := []struct {
		name       string
		role       model.Role
		wantStatus model.UserStatus
	}{
		{"full admin", model.RoleAdminFull, model.UserStatusApproved},
		{"read only admin", model.RoleAdminReadOnly, model.UserStatusApproved},
		{"domain role stays pending", model.RoleReviewer, model.UserStatusPending},
	}

	for i, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			email := fmt.Sprintf("admin%d@clinic.example", i)
			issued, err := f.engine.Issue(ctx, auth.IssueRequest{
				Email:          email,
				RoleHint:       tt.role,
				AdminInitiated: true,
			})
			require.NoError(t, err)

			redeemed, err := f.engine.Redeem(ctx, issued.Record.Token, email)
			require.NoError(t, err)
			assert.Equal(t, tt.wantStatus, redeemed.User.Status)
			assert.True(t, redeemed.User.Roles.Has(tt.role))
		})
	}
}

func TestImpersonate(t *testing.T) {
	f := newEngineFixture(t)
	ctx := context.Background()

	target, err := f.manager.Users().Register(ctx, &model.User{
		Email:  "target@clinic.example",
		Roles:  model.RoleSet{model.RoleProvider},
		Status: model.UserStatusApproved,
	})
	require.NoError(t, err)

	adminID := uuid.New()
	result, err := f.engine.Impersonate(ctx, adminID, "target@clinic.example")
	require.NoError(t, err)

	assert.Equal(t, target.ID, result.User.ID)
	assert.Equal(t, adminID.String(), result.Claims.ImpersonatorID)
	assert.True(t, result.Claims.Impersonated())

	logs, err := f.manager.AuditLogs().ListRecent(ctx, 10)
	require.NoError(t, err)
	require.NotEmpty(t, logs)
	assert.Equal(t, model.AuditActionImpersonateUser, logs[0].Action)
}

func TestClearTokensKeepsCallerSession(t *testing.T) {
	f := newEngineFixture(t)
	ctx := context.Background()

	issued, err := f.engine.Issue(ctx, auth.IssueRequest{Email: "vet@clinic.example"})
	require.NoError(t, err)
	redeemed, err := f.engine.Redeem(ctx, issued.Record.Token, "vet@clinic.example")
	require.NoError(t, err)

	other, err := f.engine.Issue(ctx, auth.IssueRequest{Email: "other@clinic.example"})
	require.NoError(t, err)

	keep := uuid.MustParse(redeemed.Claims.ID)
	actorID := redeemed.User.ID

	purged, err := f.engine.ClearTokens(ctx, actorID, keep)
	require.NoError(t, err)
	assert.EqualValues(t, 1, purged)

	// the outstanding link is gone
	_, err = f.engine.Redeem(ctx, other.Record.Token, "other@clinic.example")
	assert.ErrorIs(t, err, auth.ErrInvalidToken)
}

func TestCleanup(t *testing.T) {
	f := newEngineFixture(t)
	ctx := context.Background()

	_, err := f.engine.Issue(ctx, auth.IssueRequest{Email: "old@clinic.example"})
	require.NoError(t, err)

	f.now = f.now.Add(48 * time.Hour)
	require.NoError(t, f.engine.Cleanup(ctx))

	inactive, err := f.manager.Tokens().ListInactive(ctx, f.now)
	require.NoError(t, err)
	require.Len(t, inactive, 1)
	assert.Equal(t, model.TokenStatusExpired, inactive[0].Status)
}
