package models

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestPrincipalKey(t *testing.T) {
	tests := []struct {
		name string
		p    Principal
		want string
	}{
		{"api client", APIClientPrincipal("key-1"), "api_key:key-1"},
		{"user", UserPrincipal("u1"), "user:u1"},
		{"admin", AdminPrincipal(), "admin:default"},
		{"anonymous", AnonymousPrincipal("10.0.0.7"), "anonymous:10.0.0.7"},
		{"api key wins over user id", Principal{Kind: PrincipalAPIClient, APIKeyID: "key-1", UserID: "u1"}, "api_key:key-1"},
		{"admin with user id keys as user", Principal{Kind: PrincipalAdmin, UserID: "root"}, "user:root"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, tt.p.Key())
		})
	}
}

func TestIsAPIClient(t *testing.T) {
	assert.True(t, APIClientPrincipal("key-1").IsAPIClient())
	assert.False(t, UserPrincipal("u1").IsAPIClient())
	assert.False(t, Principal{Kind: PrincipalAPIClient}.IsAPIClient())
}
