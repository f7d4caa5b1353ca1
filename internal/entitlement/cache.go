package entitlement

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"strconv"
	"time"

	"github.com/tabmangment/tabsync/internal/domain"
)

// Cache keys. The entitlement record is stored as one JSON document so
// writers always replace the whole record; the remaining keys are scalar
// markers read and written independently.
const (
	keyRecord            = "entitlement"
	keyUserEmail         = "userEmail"
	keyActivationSignal  = "proActivationSignal"
	keyPaymentCompleted  = "paymentCompleted"
	keyCheckoutCompleted = "checkoutCompleted"
)

// Cache provides typed access to the entitlement KV space. All components of
// the agent share one Cache; writes never overlap because each concern has a
// single writer (last write wins).
type Cache struct {
	kv     KV
	logger *slog.Logger
	now    func() time.Time
}

// NewCache creates a cache over the given store.
func NewCache(kv KV, logger *slog.Logger) *Cache {
	return &Cache{
		kv:     kv,
		logger: logger,
		now:    time.Now,
	}
}

// Record returns the cached entitlement record. A missing or unreadable
// record resolves to the free default so callers never branch on absence.
func (c *Cache) Record(ctx context.Context) (domain.EntitlementRecord, error) {
	raw, err := c.kv.Get(ctx, keyRecord)
	if errors.Is(err, ErrNotFound) {
		return domain.FreeEntitlement(c.now().UTC()), nil
	}
	if err != nil {
		return domain.EntitlementRecord{}, err
	}

	var record domain.EntitlementRecord
	if err := json.Unmarshal([]byte(raw), &record); err != nil {
		c.logger.Warn("corrupt entitlement record, falling back to free", "error", err)
		return domain.FreeEntitlement(c.now().UTC()), nil
	}
	return record, nil
}

// PutRecord validates and stores the record, replacing any previous one.
func (c *Cache) PutRecord(ctx context.Context, record domain.EntitlementRecord) error {
	if err := record.Validate(); err != nil {
		return err
	}

	raw, err := json.Marshal(record)
	if err != nil {
		return err
	}
	return c.kv.Set(ctx, keyRecord, string(raw))
}

// ResetToFree writes the free-tier record and clears the payment markers.
// This is the explicit downgrade action; the user email survives it.
func (c *Cache) ResetToFree(ctx context.Context) error {
	if err := c.PutRecord(ctx, domain.FreeEntitlement(c.now().UTC())); err != nil {
		return err
	}
	return c.kv.Delete(ctx, keyActivationSignal, keyPaymentCompleted, keyCheckoutCompleted)
}

// Email returns the cached user email, or "" when none is stored.
func (c *Cache) Email(ctx context.Context) (string, error) {
	email, err := c.kv.Get(ctx, keyUserEmail)
	if errors.Is(err, ErrNotFound) {
		return "", nil
	}
	return email, err
}

// PutEmail stores the user email for later reconciliation runs.
func (c *Cache) PutEmail(ctx context.Context, email string) error {
	return c.kv.Set(ctx, keyUserEmail, email)
}

// StampActivationSignal records the moment pro features were activated so
// other agent components can react to the upgrade.
func (c *Cache) StampActivationSignal(ctx context.Context) error {
	ms := c.now().UTC().UnixMilli()
	return c.kv.Set(ctx, keyActivationSignal, strconv.FormatInt(ms, 10))
}

// ActivationSignal returns the activation timestamp, if one was stamped.
func (c *Cache) ActivationSignal(ctx context.Context) (time.Time, bool, error) {
	raw, err := c.kv.Get(ctx, keyActivationSignal)
	if errors.Is(err, ErrNotFound) {
		return time.Time{}, false, nil
	}
	if err != nil {
		return time.Time{}, false, err
	}

	ms, err := strconv.ParseInt(raw, 10, 64)
	if err != nil {
		return time.Time{}, false, nil
	}
	return time.UnixMilli(ms).UTC(), true, nil
}

// MarkPaymentCompleted sets the payment flag the flag watcher polls for.
func (c *Cache) MarkPaymentCompleted(ctx context.Context) error {
	return c.kv.Set(ctx, keyPaymentCompleted, "true")
}

// MarkCheckoutCompleted sets the checkout flag the flag watcher polls for.
func (c *Cache) MarkCheckoutCompleted(ctx context.Context) error {
	return c.kv.Set(ctx, keyCheckoutCompleted, "true")
}

// PaymentFlags reports whether either payment marker is set.
func (c *Cache) PaymentFlags(ctx context.Context) (bool, error) {
	for _, key := range []string{keyPaymentCompleted, keyCheckoutCompleted} {
		raw, err := c.kv.Get(ctx, key)
		if errors.Is(err, ErrNotFound) {
			continue
		}
		if err != nil {
			return false, err
		}
		if raw == "true" {
			return true, nil
		}
	}
	return false, nil
}

// ClearPaymentFlags removes both payment markers after a signal was handled.
func (c *Cache) ClearPaymentFlags(ctx context.Context) error {
	return c.kv.Delete(ctx, keyPaymentCompleted, keyCheckoutCompleted)
}
