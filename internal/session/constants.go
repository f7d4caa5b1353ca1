// Package session keeps users logged in across agent restarts until they
// explicitly log out.
package session

import "time"

const (
	// StateKey holds the serialized session marker.
	StateKey = "tabmangment_session"

	// UserKey holds the serialized user object.
	UserKey = "tabmangment_user"

	// TokenKey holds the auth token.
	TokenKey = "tabmangment_token"

	// RememberKey records the remember-me choice as "true"/"false".
	RememberKey = "tabmangment_remember"

	// DefaultCheckInterval is how often the background refresher re-checks
	// the session.
	DefaultCheckInterval = time.Minute
)
