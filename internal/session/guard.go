package session

import (
	"context"
	"encoding/json"
	"log/slog"
	"strconv"
	"sync"
	"time"

	"github.com/tabmangment/tabsync/internal/domain"
	"github.com/tabmangment/tabsync/internal/entitlement"
)

// Guard owns the session keys in the shared KV space. A session is valid iff
// both the user and token keys are present; the remember flag never affects
// validity. Sessions have no TTL and survive until Clear.
type Guard struct {
	kv       entitlement.KV
	logger   *slog.Logger
	interval time.Duration
	now      func() time.Time

	wg     sync.WaitGroup
	stopCh chan struct{}
}

// NewGuard creates a session guard checking at the given interval.
// A non-positive interval selects DefaultCheckInterval.
func NewGuard(kv entitlement.KV, interval time.Duration, logger *slog.Logger) *Guard {
	if interval <= 0 {
		interval = DefaultCheckInterval
	}
	return &Guard{
		kv:       kv,
		logger:   logger,
		interval: interval,
		now:      time.Now,
		stopCh:   make(chan struct{}),
	}
}

// Save stores the session. The user value is stored as given, with no shape
// validation: the guard only cares about presence.
func (g *Guard) Save(ctx context.Context, user, token string, remember bool) error {
	if err := g.kv.Set(ctx, UserKey, user); err != nil {
		return err
	}
	if err := g.kv.Set(ctx, TokenKey, token); err != nil {
		return err
	}
	if err := g.kv.Set(ctx, RememberKey, strconv.FormatBool(remember)); err != nil {
		return err
	}
	return g.writeState(ctx, remember)
}

// Check reports whether a session is active: both user and token present.
// As a side effect a passing check refreshes the session marker, keeping the
// session alive.
func (g *Guard) Check(ctx context.Context) bool {
	if _, err := g.kv.Get(ctx, UserKey); err != nil {
		return false
	}
	if _, err := g.kv.Get(ctx, TokenKey); err != nil {
		return false
	}

	remember := false
	if raw, err := g.kv.Get(ctx, RememberKey); err == nil {
		remember = raw == "true"
	}

	if err := g.writeState(ctx, remember); err != nil {
		g.logger.Warn("failed to refresh session marker", "error", err)
	}
	return true
}

// Clear removes all session keys unconditionally. Clearing an already
// cleared session is a no-op.
func (g *Guard) Clear(ctx context.Context) error {
	return g.kv.Delete(ctx, UserKey, TokenKey, RememberKey, StateKey)
}

// State returns the stored session marker. Missing or unreadable markers
// resolve to the zero state.
func (g *Guard) State(ctx context.Context) domain.SessionState {
	raw, err := g.kv.Get(ctx, StateKey)
	if err != nil {
		return domain.SessionState{}
	}

	var state domain.SessionState
	if err := json.Unmarshal([]byte(raw), &state); err != nil {
		return domain.SessionState{}
	}
	return state
}

// Token returns the stored auth token, or "" when logged out.
func (g *Guard) Token(ctx context.Context) string {
	token, err := g.kv.Get(ctx, TokenKey)
	if err != nil {
		return ""
	}
	return token
}

// Start launches the periodic session refresher.
func (g *Guard) Start(ctx context.Context) {
	g.wg.Add(1)
	go g.run(ctx)
	g.logger.Info("session guard started", "interval", g.interval)
}

// Stop signals the refresher to stop and waits for it to finish.
func (g *Guard) Stop() {
	close(g.stopCh)
	g.wg.Wait()
	g.logger.Info("session guard stopped")
}

func (g *Guard) run(ctx context.Context) {
	defer g.wg.Done()

	ticker := time.NewTicker(g.interval)
	defer ticker.Stop()

	for {
		select {
		case <-g.stopCh:
			return
		case <-ctx.Done():
			return
		case <-ticker.C:
			g.Check(ctx)
		}
	}
}

func (g *Guard) writeState(ctx context.Context, remember bool) error {
	state := domain.SessionState{
		Active:    true,
		Remember:  remember,
		LastCheck: g.now().UTC(),
	}

	raw, err := json.Marshal(state)
	if err != nil {
		return err
	}
	return g.kv.Set(ctx, StateKey, string(raw))
}
