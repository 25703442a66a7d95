package models

import "time"

// LimitConfig describes the quotas for one principal. Values are immutable
// once resolved; absent-from-store principals receive the defaults.
type LimitConfig struct {
	PerMinute  int  `json:"per_minute"`
	PerHour    int  `json:"per_hour"`
	PerDay     int  `json:"per_day"`
	Concurrent int  `json:"concurrent"`
	Priority   int  `json:"priority"`
	Unlimited  bool `json:"unlimited"`
}

// DefaultLimitConfig returns the limits applied when the store has no row
// for a principal (or cannot be reached).
func DefaultLimitConfig() LimitConfig {
	return LimitConfig{
		PerMinute:  20,
		PerHour:    300,
		PerDay:     2000,
		Concurrent: 5,
		Priority:   0,
	}
}

// RequestLogEntry is the best-effort audit row written for every recorded
// request. Failures to persist it never fail the request itself.
type RequestLogEntry struct {
	ID        string    `json:"id"`
	UserID    string    `json:"user_id,omitempty"`
	APIKeyID  string    `json:"api_key_id,omitempty"`
	Endpoint  string    `json:"endpoint"`
	Status    string    `json:"status"`
	CreatedAt time.Time `json:"created_at"`
}

// AuthSession is the persisted session row consulted during principal
// extraction. The store is authoritative; nothing here is cached.
type AuthSession struct {
	Token     string    `json:"token"`
	UserID    string    `json:"user_id"`
	IsAdmin   bool      `json:"is_admin"`
	ExpiresAt time.Time `json:"expires_at"`
}

// Expired reports whether the session is past its expiry at the given time.
func (s AuthSession) Expired(now time.Time) bool {
	return !s.ExpiresAt.IsZero() && now.After(s.ExpiresAt)
}

// APICredential is a persisted API key record, looked up by SHA-256 hash.
type APICredential struct {
	ID     string `json:"id"`
	UserID string `json:"user_id"`
	Name   string `json:"name"`
	Active bool   `json:"active"`
}
