package auth

import (
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/goliatone/go-errors"
	"github.com/google/uuid"

	"github.com/vetcee/portal/internal/model"
)

// TokenService mints and validates portal session credentials.
type TokenService struct {
	signingKey []byte
	issuer     string
	audience   jwt.ClaimStrings
	baseTTL    time.Duration
	adminTTL   time.Duration
	logger     Logger
	now        func() time.Time
}

// TokenServiceOption configures a TokenService.
type TokenServiceOption func(*TokenService)

// WithTokenClock overrides the clock, used in tests.
func WithTokenClock(now func() time.Time) TokenServiceOption {
	return func(ts *TokenService) { ts.now = now }
}

// WithTokenLogger sets the service logger.
func WithTokenLogger(logger Logger) TokenServiceOption {
	return func(ts *TokenService) { ts.logger = logger }
}

// NewTokenService creates a session credential service. Credentials for
// accounts holding an admin role get the shorter admin TTL.
func NewTokenService(signingKey []byte, issuer string, audience jwt.ClaimStrings, baseTTL, adminTTL time.Duration, opts ...TokenServiceOption) *TokenService {
	ts := &TokenService{
		signingKey: signingKey,
		issuer:     issuer,
		audience:   audience,
		baseTTL:    baseTTL,
		adminTTL:   adminTTL,
		logger:     defLogger{},
		now:        time.Now,
	}
	for _, opt := range opts {
		opt(ts)
	}
	if ts.baseTTL <= 0 {
		ts.baseTTL = 24 * time.Hour
	}
	if ts.adminTTL <= 0 || ts.adminTTL > ts.baseTTL {
		ts.adminTTL = 8 * time.Hour
	}
	return ts
}

// TTLFor returns the credential lifetime for the given role set.
func (ts *TokenService) TTLFor(roles model.RoleSet) time.Duration {
	if roles.HasAdmin() {
		return ts.adminTTL
	}
	return ts.baseTTL
}

// Mint issues a signed session credential for the user. Each credential
// carries a fresh nonce so concurrent sessions stay distinguishable.
func (ts *TokenService) Mint(user *model.User, impersonator *uuid.UUID) (string, *SessionClaims, error) {
	if user == nil {
		return "", nil, errors.New("user must not be nil", errors.CategoryInternal)
	}

	now := ts.now()
	claims := &SessionClaims{
		RegisteredClaims: jwt.RegisteredClaims{
			ID:        uuid.NewString(),
			Issuer:    ts.issuer,
			Subject:   user.ID.String(),
			Audience:  ts.audience,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(ts.TTLFor(user.Roles))),
		},
		UID:    user.ID.String(),
		Roles:  user.Roles.Strings(),
		Status: string(model.NormalizeStatus(user.Status)),
	}
	if user.OrganizationID != nil {
		claims.OrganizationID = user.OrganizationID.String()
	}
	if impersonator != nil {
		claims.ImpersonatorID = impersonator.String()
	}

	signed, err := ts.SignClaims(claims)
	if err != nil {
		return "", nil, err
	}
	return signed, claims, nil
}

// SignClaims signs arbitrary session claims using the configured signing key.
func (ts *TokenService) SignClaims(claims *SessionClaims) (string, error) {
	if claims == nil {
		return "", errors.New("claims must not be nil", errors.CategoryInternal)
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)

	signed, err := token.SignedString(ts.signingKey)
	if err != nil {
		return "", errors.Wrap(err, errors.CategoryInternal, "failed to sign session credential")
	}
	return signed, nil
}

// Validate parses and verifies a credential string. Any verification failure
// yields an error and never partially decoded claims.
func (ts *TokenService) Validate(tokenString string) (*SessionClaims, error) {
	parserOptions := make([]jwt.ParserOption, 0, 2)
	if ts.issuer != "" {
		parserOptions = append(parserOptions, jwt.WithIssuer(ts.issuer))
	}
	if len(ts.audience) > 0 {
		parserOptions = append(parserOptions, jwt.WithAudience(ts.audience...))
	}

	token, err := jwt.ParseWithClaims(tokenString, &SessionClaims{}, func(t *jwt.Token) (any, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			ts.logger.Error("token service encountered unexpected signing method", "alg", t.Header["alg"])
			return nil, fmt.Errorf("unexpected signing method: %v", t.Header["alg"])
		}
		return ts.signingKey, nil
	}, parserOptions...)

	if err != nil {
		if errors.Is(err, jwt.ErrTokenExpired) {
			return nil, ErrTokenExpired
		}
		return nil, errors.Wrap(err, ErrUnableToDecodeSession.Category, ErrUnableToDecodeSession.Message).
			WithTextCode(ErrUnableToDecodeSession.TextCode)
	}

	if claims, ok := token.Claims.(*SessionClaims); ok && token.Valid {
		return claims, nil
	}

	ts.logger.Error("token service could not decode or validate claims")
	return nil, ErrUnableToDecodeSession
}
