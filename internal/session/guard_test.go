package session

import (
	"context"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tabmangment/tabsync/internal/entitlement"
)

func newTestGuard() (*Guard, *entitlement.MemoryKV) {
	kv := entitlement.NewMemoryKV()
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	guard := NewGuard(kv, time.Minute, logger)
	guard.now = func() time.Time { return time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC) }
	return guard, kv
}

func TestGuard_Check_TruthTable(t *testing.T) {
	tests := []struct {
		name     string
		user     string
		token    string
		remember string
		want     bool
	}{
		{name: "no keys", want: false},
		{name: "user only", user: `{"email":"a@x.com"}`, want: false},
		{name: "token only", token: "tok_1", want: false},
		{name: "user and token", user: `{"email":"a@x.com"}`, token: "tok_1", want: true},
		{name: "user and token, remember false", user: `{"email":"a@x.com"}`, token: "tok_1", remember: "false", want: true},
		{name: "user and token, remember true", user: `{"email":"a@x.com"}`, token: "tok_1", remember: "true", want: true},
		{name: "remember alone is not a session", remember: "true", want: false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			guard, kv := newTestGuard()
			ctx := context.Background()

			if tt.user != "" {
				require.NoError(t, kv.Set(ctx, UserKey, tt.user))
			}
			if tt.token != "" {
				require.NoError(t, kv.Set(ctx, TokenKey, tt.token))
			}
			if tt.remember != "" {
				require.NoError(t, kv.Set(ctx, RememberKey, tt.remember))
			}

			assert.Equal(t, tt.want, guard.Check(ctx))
		})
	}
}

func TestGuard_Check_RefreshesMarker(t *testing.T) {
	guard, _ := newTestGuard()
	ctx := context.Background()

	require.NoError(t, guard.Save(ctx, `{"email":"a@x.com"}`, "tok_1", true))

	later := time.Date(2025, 6, 1, 13, 0, 0, 0, time.UTC)
	guard.now = func() time.Time { return later }

	require.True(t, guard.Check(ctx))

	state := guard.State(ctx)
	assert.True(t, state.Active)
	assert.True(t, state.Remember)
	assert.Equal(t, later, state.LastCheck)
}

func TestGuard_SaveThenCheck(t *testing.T) {
	guard, _ := newTestGuard()
	ctx := context.Background()

	require.NoError(t, guard.Save(ctx, `{"email":"a@x.com"}`, "tok_1", false))

	assert.True(t, guard.Check(ctx))
	assert.Equal(t, "tok_1", guard.Token(ctx))

	state := guard.State(ctx)
	assert.True(t, state.Active)
	assert.False(t, state.Remember)
}

func TestGuard_Clear_Idempotent(t *testing.T) {
	guard, _ := newTestGuard()
	ctx := context.Background()

	require.NoError(t, guard.Save(ctx, `{"email":"a@x.com"}`, "tok_1", true))
	require.True(t, guard.Check(ctx))

	// Clearing twice in a row leaves the session logged out both times.
	require.NoError(t, guard.Clear(ctx))
	assert.False(t, guard.Check(ctx))

	require.NoError(t, guard.Clear(ctx))
	assert.False(t, guard.Check(ctx))

	assert.Equal(t, "", guard.Token(ctx))
	assert.False(t, guard.State(ctx).Active)
}

func TestGuard_State_MissingIsZero(t *testing.T) {
	guard, _ := newTestGuard()

	state := guard.State(context.Background())
	assert.False(t, state.Active)
	assert.True(t, state.LastCheck.IsZero())
}
