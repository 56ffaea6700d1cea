package repository

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/vetcee/portal/internal/model"
)

func makeToken(email, token string, expiresAt time.Time) *model.VerificationToken {
	rec := &model.VerificationToken{
		Token:     token,
		ExpiresAt: expiresAt,
	}
	rec.SetEmail(email)
	return rec
}

func TestTokensCreateAndLookup(t *testing.T) {
	db := newTestDB(t)
	repo := NewTokensRepository(db)
	ctx := context.Background()
	now := time.Now()

	rec, err := repo.CreateToken(ctx, makeToken("vet@clinic.example", "tok-abc", now.Add(10*time.Minute)))
	require.NoError(t, err)
	require.NotEqual(t, uuid.Nil, rec.ID)
	assert.Equal(t, model.TokenStatusActive, rec.Status)
	assert.Equal(t, rec.Email, rec.Identifier)

	found, err := repo.FindByToken(ctx, "tok-abc")
	require.NoError(t, err)
	assert.Equal(t, rec.ID, found.ID)

	active, err := repo.FindActiveByEmail(ctx, "vet@clinic.example", now)
	require.NoError(t, err)
	assert.Equal(t, rec.ID, active.ID)

	_, err = repo.FindActiveByEmail(ctx, "other@clinic.example", now)
	require.Error(t, err)
}

func TestTokensConsumeOnce(t *testing.T) {
	db := newTestDB(t)
	repo := NewTokensRepository(db)
	ctx := context.Background()
	now := time.Now()

	rec, err := repo.CreateToken(ctx, makeToken("vet@clinic.example", "tok-once", now.Add(10*time.Minute)))
	require.NoError(t, err)

	ok, err := repo.Consume(ctx, rec.ID, rec.Email, now)
	require.NoError(t, err)
	assert.True(t, ok)

	ok, err = repo.Consume(ctx, rec.ID, rec.Email, now)
	require.NoError(t, err)
	assert.False(t, ok, "second redemption must lose")

	_, err = repo.FindByToken(ctx, "tok-once")
	require.Error(t, err)
}

func TestTokensConsumeConcurrent(t *testing.T) {
	db := newTestDB(t)
	repo := NewTokensRepository(db)
	ctx := context.Background()
	now := time.Now()

	rec, err := repo.CreateToken(ctx, makeToken("race@clinic.example", "tok-race", now.Add(10*time.Minute)))
	require.NoError(t, err)

	const attempts = 8
	wins := make(chan bool, attempts)
	var wg sync.WaitGroup
	for i := 0; i < attempts; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			ok, err := repo.Consume(ctx, rec.ID, rec.Email, now)
			if err == nil {
				wins <- ok
			}
		}()
	}
	wg.Wait()
	close(wins)

	won := 0
	for ok := range wins {
		if ok {
			won++
		}
	}
	assert.Equal(t, 1, won, "exactly one redemption wins")
}

func TestTokensConsumeWrongEmailLeavesToken(t *testing.T) {
	db := newTestDB(t)
	repo := NewTokensRepository(db)
	ctx := context.Background()
	now := time.Now()

	rec, err := repo.CreateToken(ctx, makeToken("owner@clinic.example", "tok-mismatch", now.Add(10*time.Minute)))
	require.NoError(t, err)

	ok, err := repo.Consume(ctx, rec.ID, "intruder@clinic.example", now)
	require.NoError(t, err)
	assert.False(t, ok)

	// the token survives the failed attempt and is still redeemable
	found, err := repo.FindByToken(ctx, "tok-mismatch")
	require.NoError(t, err)
	assert.Equal(t, model.TokenStatusActive, found.Status)

	ok, err = repo.Consume(ctx, rec.ID, rec.Email, now)
	require.NoError(t, err)
	assert.True(t, ok)
}

func TestTokensConsumeExpired(t *testing.T) {
	db := newTestDB(t)
	repo := NewTokensRepository(db)
	ctx := context.Background()
	now := time.Now()

	rec, err := repo.CreateToken(ctx, makeToken("late@clinic.example", "tok-late", now.Add(-time.Minute)))
	require.NoError(t, err)

	ok, err := repo.Consume(ctx, rec.ID, rec.Email, now)
	require.NoError(t, err)
	assert.False(t, ok)

	_, err = repo.FindActiveByEmail(ctx, "late@clinic.example", now)
	require.Error(t, err)
}

func TestTokensReapAndListInactive(t *testing.T) {
	db := newTestDB(t)
	repo := NewTokensRepository(db)
	ctx := context.Background()
	now := time.Now()

	_, err := repo.CreateToken(ctx, makeToken("a@clinic.example", "tok-a", now.Add(-time.Hour)))
	require.NoError(t, err)
	_, err = repo.CreateToken(ctx, makeToken("b@clinic.example", "tok-b", now.Add(time.Hour)))
	require.NoError(t, err)

	reaped, err := repo.ReapExpired(ctx, now)
	require.NoError(t, err)
	assert.EqualValues(t, 1, reaped)

	inactive, err := repo.ListInactive(ctx, now)
	require.NoError(t, err)
	require.Len(t, inactive, 1)
	assert.Equal(t, "tok-a", inactive[0].Token)
	assert.Equal(t, model.TokenStatusExpired, inactive[0].Status)

	// the live token stays active
	active, err := repo.FindActiveByEmail(ctx, "b@clinic.example", now)
	require.NoError(t, err)
	assert.Equal(t, "tok-b", active.Token)
}

func TestTokensDelete(t *testing.T) {
	db := newTestDB(t)
	repo := NewTokensRepository(db)
	ctx := context.Background()
	now := time.Now()

	rec, err := repo.CreateToken(ctx, makeToken("del@clinic.example", "tok-del", now.Add(time.Hour)))
	require.NoError(t, err)

	ok, err := repo.DeleteByID(ctx, rec.ID)
	require.NoError(t, err)
	assert.True(t, ok)

	ok, err = repo.DeleteByID(ctx, rec.ID)
	require.NoError(t, err)
	assert.False(t, ok)

	_, err = repo.CreateToken(ctx, makeToken("x@clinic.example", "tok-x", now.Add(time.Hour)))
	require.NoError(t, err)
	_, err = repo.CreateToken(ctx, makeToken("y@clinic.example", "tok-y", now.Add(time.Hour)))
	require.NoError(t, err)

	purged, err := repo.DeleteAllTokens(ctx)
	require.NoError(t, err)
	assert.EqualValues(t, 2, purged)
}
