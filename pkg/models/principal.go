// Package models contains the shared domain types for the admission and
// coordination layer: principals, limit configuration, and permission rules.
package models

// PrincipalKind discriminates the tagged Principal value.
type PrincipalKind string

const (
	PrincipalAdmin     PrincipalKind = "admin"
	PrincipalAPIClient PrincipalKind = "api_client"
	PrincipalUser      PrincipalKind = "user"
	PrincipalAnonymous PrincipalKind = "anonymous"
)

// Principal is the identity against which quotas and queue slots are tracked.
// Exactly one of APIKeyID, UserID, or Nonce is meaningful, depending on Kind.
type Principal struct {
	Kind     PrincipalKind `json:"kind"`
	APIKeyID string        `json:"api_key_id,omitempty"`
	UserID   string        `json:"user_id,omitempty"`
	Nonce    string        `json:"nonce,omitempty"`
}

// AdminPrincipal returns the admin sentinel principal.
func AdminPrincipal() Principal {
	return Principal{Kind: PrincipalAdmin}
}

// APIClientPrincipal returns a principal keyed by an API credential id.
func APIClientPrincipal(apiKeyID string) Principal {
	return Principal{Kind: PrincipalAPIClient, APIKeyID: apiKeyID}
}

// UserPrincipal returns a principal keyed by a user id.
func UserPrincipal(userID string) Principal {
	return Principal{Kind: PrincipalUser, UserID: userID}
}

// AnonymousPrincipal returns a principal for an unauthenticated caller.
// The nonce keeps distinct anonymous connections from sharing a quota.
func AnonymousPrincipal(nonce string) Principal {
	return Principal{Kind: PrincipalAnonymous, Nonce: nonce}
}

// Key derives the canonical bookkeeping key for the principal.
// Priority: API credential id > user id > admin default > anonymous nonce.
func (p Principal) Key() string {
	switch {
	case p.Kind == PrincipalAPIClient && p.APIKeyID != "":
		return "api_key:" + p.APIKeyID
	case p.UserID != "":
		return "user:" + p.UserID
	case p.Kind == PrincipalAdmin:
		return "admin:default"
	default:
		return "anonymous:" + p.Nonce
	}
}

// IsAPIClient reports whether the principal is keyed by an API credential.
// An admin holding an API key is rate-limited as that API client.
func (p Principal) IsAPIClient() bool {
	return p.Kind == PrincipalAPIClient && p.APIKeyID != ""
}
