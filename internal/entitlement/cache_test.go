package entitlement

import (
	"context"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tabmangment/tabsync/internal/domain"
)

func newTestCache() *Cache {
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	cache := NewCache(NewMemoryKV(), logger)
	cache.now = func() time.Time { return time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC) }
	return cache
}

func TestCache_Record_MissingResolvesToFree(t *testing.T) {
	cache := newTestCache()

	record, err := cache.Record(context.Background())
	require.NoError(t, err)

	assert.False(t, record.IsPremium)
	assert.False(t, record.SubscriptionActive)
	assert.Equal(t, domain.PlanFree, record.PlanType)
}

func TestCache_PutRecord_RoundTrip(t *testing.T) {
	cache := newTestCache()
	ctx := context.Background()

	end := time.Date(2025, 7, 1, 0, 0, 0, 0, time.UTC)
	record := domain.ProEntitlement("sub_123", end, time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC))

	require.NoError(t, cache.PutRecord(ctx, record))

	got, err := cache.Record(ctx)
	require.NoError(t, err)
	assert.True(t, got.IsPremium)
	assert.True(t, got.SubscriptionActive)
	assert.Equal(t, domain.PlanPro, got.PlanType)
	assert.Equal(t, "sub_123", got.SubscriptionID)
	require.NotNil(t, got.CurrentPeriodEnd)
	assert.True(t, got.CurrentPeriodEnd.Equal(end))
}

func TestCache_PutRecord_RejectsInvalid(t *testing.T) {
	cache := newTestCache()

	// Pro plan without the premium flag violates the record invariant.
	bad := domain.EntitlementRecord{
		PlanType:           domain.PlanPro,
		SubscriptionActive: true,
	}

	err := cache.PutRecord(context.Background(), bad)
	assert.Error(t, err)
}

func TestCache_Record_CorruptFallsBackToFree(t *testing.T) {
	cache := newTestCache()
	ctx := context.Background()

	require.NoError(t, cache.kv.Set(ctx, keyRecord, "{not json"))

	record, err := cache.Record(ctx)
	require.NoError(t, err)
	assert.Equal(t, domain.PlanFree, record.PlanType)
}

func TestCache_ResetToFree_OverwritesAndClearsMarkers(t *testing.T) {
	cache := newTestCache()
	ctx := context.Background()

	end := time.Date(2025, 7, 1, 0, 0, 0, 0, time.UTC)
	require.NoError(t, cache.PutRecord(ctx, domain.ProEntitlement("sub_123", end, time.Now())))
	require.NoError(t, cache.PutEmail(ctx, "a@x.com"))
	require.NoError(t, cache.MarkPaymentCompleted(ctx))
	require.NoError(t, cache.StampActivationSignal(ctx))

	require.NoError(t, cache.ResetToFree(ctx))

	record, err := cache.Record(ctx)
	require.NoError(t, err)
	assert.False(t, record.IsPro())
	assert.Equal(t, domain.PlanFree, record.PlanType)

	flagged, err := cache.PaymentFlags(ctx)
	require.NoError(t, err)
	assert.False(t, flagged)

	_, stamped, err := cache.ActivationSignal(ctx)
	require.NoError(t, err)
	assert.False(t, stamped)

	// The downgrade keeps the user email.
	email, err := cache.Email(ctx)
	require.NoError(t, err)
	assert.Equal(t, "a@x.com", email)
}

func TestCache_Email_MissingIsEmpty(t *testing.T) {
	cache := newTestCache()

	email, err := cache.Email(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "", email)
}

func TestCache_ActivationSignal(t *testing.T) {
	cache := newTestCache()
	ctx := context.Background()

	_, stamped, err := cache.ActivationSignal(ctx)
	require.NoError(t, err)
	assert.False(t, stamped)

	require.NoError(t, cache.StampActivationSignal(ctx))

	at, stamped, err := cache.ActivationSignal(ctx)
	require.NoError(t, err)
	assert.True(t, stamped)
	assert.Equal(t, time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC), at)
}

func TestCache_PaymentFlags(t *testing.T) {
	cache := newTestCache()
	ctx := context.Background()

	flagged, err := cache.PaymentFlags(ctx)
	require.NoError(t, err)
	assert.False(t, flagged)

	require.NoError(t, cache.MarkCheckoutCompleted(ctx))

	flagged, err = cache.PaymentFlags(ctx)
	require.NoError(t, err)
	assert.True(t, flagged)

	require.NoError(t, cache.ClearPaymentFlags(ctx))

	flagged, err = cache.PaymentFlags(ctx)
	require.NoError(t, err)
	assert.False(t, flagged)
}
