// Package repository provides database access for users and search usage.
//
// Queries are hand-written against database/sql using the pgx stdlib driver.
// The users table is the authoritative subscription record; search_usage is
// an append-only event log consulted for quota decisions.
package repository

import (
	"context"
	"database/sql"
	"time"

	"github.com/google/uuid"
)

// Queries holds a database handle and exposes typed query methods.
type Queries struct {
	db DBTX
}

// DBTX is satisfied by both *sql.DB and *sql.Tx.
type DBTX interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

// New creates a Queries instance backed by the given handle.
func New(db DBTX) *Queries {
	return &Queries{db: db}
}

// WithTx returns a Queries instance bound to the transaction.
func (q *Queries) WithTx(tx *sql.Tx) *Queries {
	return &Queries{db: tx}
}

// User is a row in the users table.
type User struct {
	ID                   uuid.UUID
	Email                string
	IsPro                bool
	IsPremium            bool
	PlanType             string
	SubscriptionStatus   string
	StripeCustomerID     sql.NullString
	StripeSubscriptionID sql.NullString
	CurrentPeriodEnd     sql.NullTime
	ProActivatedAt       sql.NullTime
	CreatedAt            time.Time
	UpdatedAt            time.Time
}

// UserPlan is the minimal projection used for quota decisions.
type UserPlan struct {
	IsPro     bool
	IsPremium bool
}

const getUserPlanByEmail = `
SELECT is_pro, is_premium FROM users WHERE email = $1
`

// GetUserPlanByEmail returns the pro/premium flags for a user.
// Returns sql.ErrNoRows for unknown emails.
func (q *Queries) GetUserPlanByEmail(ctx context.Context, email string) (UserPlan, error) {
	var plan UserPlan
	err := q.db.QueryRowContext(ctx, getUserPlanByEmail, email).Scan(&plan.IsPro, &plan.IsPremium)
	return plan, err
}

const getUserByEmail = `
SELECT id, email, is_pro, is_premium, plan_type, subscription_status,
       stripe_customer_id, stripe_subscription_id, current_period_end,
       pro_activated_at, created_at, updated_at
FROM users WHERE email = $1
`

// GetUserByEmail returns the full user row for an email.
func (q *Queries) GetUserByEmail(ctx context.Context, email string) (User, error) {
	var u User
	err := q.db.QueryRowContext(ctx, getUserByEmail, email).Scan(
		&u.ID, &u.Email, &u.IsPro, &u.IsPremium, &u.PlanType, &u.SubscriptionStatus,
		&u.StripeCustomerID, &u.StripeSubscriptionID, &u.CurrentPeriodEnd,
		&u.ProActivatedAt, &u.CreatedAt, &u.UpdatedAt,
	)
	return u, err
}

const getUserByStripeCustomerID = `
SELECT id, email, is_pro, is_premium, plan_type, subscription_status,
       stripe_customer_id, stripe_subscription_id, current_period_end,
       pro_activated_at, created_at, updated_at
FROM users WHERE stripe_customer_id = $1
`

// GetUserByStripeCustomerID returns the user owning a Stripe customer.
func (q *Queries) GetUserByStripeCustomerID(ctx context.Context, customerID string) (User, error) {
	var u User
	err := q.db.QueryRowContext(ctx, getUserByStripeCustomerID, customerID).Scan(
		&u.ID, &u.Email, &u.IsPro, &u.IsPremium, &u.PlanType, &u.SubscriptionStatus,
		&u.StripeCustomerID, &u.StripeSubscriptionID, &u.CurrentPeriodEnd,
		&u.ProActivatedAt, &u.CreatedAt, &u.UpdatedAt,
	)
	return u, err
}

const upsertUserByEmail = `
INSERT INTO users (email, stripe_customer_id)
VALUES ($1, $2)
ON CONFLICT (email) DO UPDATE
SET stripe_customer_id = COALESCE(EXCLUDED.stripe_customer_id, users.stripe_customer_id),
    updated_at = now()
`

// UpsertUserByEmail ensures a user row exists for the email, attaching the
// Stripe customer ID when known.
func (q *Queries) UpsertUserByEmail(ctx context.Context, email string, stripeCustomerID sql.NullString) error {
	_, err := q.db.ExecContext(ctx, upsertUserByEmail, email, stripeCustomerID)
	return err
}

// UpdateSubscriptionParams is the full subscription state written on every
// billing event. The subset is documented: quota flags, plan, status, Stripe
// identifiers and period end are always written together.
type UpdateSubscriptionParams struct {
	StripeCustomerID     string
	IsPro                bool
	IsPremium            bool
	PlanType             string
	SubscriptionStatus   string
	StripeSubscriptionID sql.NullString
	CurrentPeriodEnd     sql.NullTime
	ProActivatedAt       sql.NullTime
}

const updateSubscriptionByCustomerID = `
UPDATE users
SET is_pro = $2,
    is_premium = $3,
    plan_type = $4,
    subscription_status = $5,
    stripe_subscription_id = $6,
    current_period_end = $7,
    pro_activated_at = COALESCE($8, pro_activated_at),
    updated_at = now()
WHERE stripe_customer_id = $1
`

// UpdateSubscriptionByCustomerID replaces the subscription state for the
// user owning the Stripe customer.
func (q *Queries) UpdateSubscriptionByCustomerID(ctx context.Context, p UpdateSubscriptionParams) error {
	_, err := q.db.ExecContext(ctx, updateSubscriptionByCustomerID,
		p.StripeCustomerID, p.IsPro, p.IsPremium, p.PlanType, p.SubscriptionStatus,
		p.StripeSubscriptionID, p.CurrentPeriodEnd, p.ProActivatedAt,
	)
	return err
}

const insertSearchUsage = `
INSERT INTO search_usage (user_email, searched_at) VALUES ($1, $2)
`

// InsertSearchUsage appends one search event. Rows are never updated.
func (q *Queries) InsertSearchUsage(ctx context.Context, userEmail string, searchedAt time.Time) error {
	_, err := q.db.ExecContext(ctx, insertSearchUsage, userEmail, searchedAt)
	return err
}

const countSearchesSince = `
SELECT count(*) FROM search_usage WHERE user_email = $1 AND searched_at >= $2
`

// CountSearchesSince counts search events for the email at or after the
// given cutoff.
func (q *Queries) CountSearchesSince(ctx context.Context, userEmail string, since time.Time) (int64, error) {
	var count int64
	err := q.db.QueryRowContext(ctx, countSearchesSince, userEmail, since).Scan(&count)
	return count, err
}

const oldestSearchSince = `
SELECT searched_at FROM search_usage
WHERE user_email = $1 AND searched_at >= $2
ORDER BY searched_at ASC
LIMIT 1
`

// OldestSearchSince returns the earliest in-window search time.
// Returns sql.ErrNoRows when the window is empty.
func (q *Queries) OldestSearchSince(ctx context.Context, userEmail string, since time.Time) (time.Time, error) {
	var at time.Time
	err := q.db.QueryRowContext(ctx, oldestSearchSince, userEmail, since).Scan(&at)
	return at, err
}
