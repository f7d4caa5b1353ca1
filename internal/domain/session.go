// Package domain contains core business types and interfaces.
//
// This file defines the local session liveness marker maintained by the
// session guard.
package domain

import "time"

// SessionState is the coarse "logged in" marker stored alongside the user
// and token values. Active is derived: it is true iff both the user object
// and the token are present.
type SessionState struct {
	Active    bool      `json:"active"`
	Remember  bool      `json:"remember"`
	LastCheck time.Time `json:"lastCheck"`
}
