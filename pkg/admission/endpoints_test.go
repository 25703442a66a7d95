package admission

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestClassify(t *testing.T) {
	tests := []struct {
		path string
		want Class
	}{
		{"/health", ClassSkip},
		{"/healthz", ClassSkip},
		{"/metrics", ClassSkip},
		{"/docs", ClassSkip},
		{"/docs/usage", ClassSkip},
		{"/static/app.js", ClassSkip},
		{"/assets/logo.png", ClassSkip},
		{"/api/v1/chat", ClassLimited},
		{"/api/v1/chat/completions", ClassLimited},
		{"/api/v1/sessions/abc/permissions/request", ClassInformational},
		{"/api/v1/stream", ClassLimited},
		{"/ws", ClassLimited},
		{"/api/v1/queue/position", ClassInformational},
		{"/api/v1/profiles", ClassInformational},
		{"/", ClassInformational},
	}

	for _, tt := range tests {
		t.Run(tt.path, func(t *testing.T) {
			assert.Equal(t, tt.want, Classify(tt.path))
		})
	}
}
