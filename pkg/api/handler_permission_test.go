package api

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/relayops/agentgate/pkg/models"
	"github.com/relayops/agentgate/pkg/permission"
)

func jsonRequest(t *testing.T, method, path string, body any) *http.Request {
	t.Helper()
	var buf bytes.Buffer
	require.NoError(t, json.NewEncoder(&buf).Encode(body))
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	return req
}

// startPermissionRequest fires a blocking permission request through the
// HTTP surface and returns the pending request once the broker has it.
func startPermissionRequest(t *testing.T, env *testEnv, sessionID, command string) (permission.Request, chan PermissionOutcomeResponse) {
	t.Helper()
	outCh := make(chan PermissionOutcomeResponse, 1)
	before := len(env.broker.Pending(sessionID))

	go func() {
		req := jsonRequest(t, http.MethodPost, "/api/v1/sessions/"+sessionID+"/permissions/request",
			RequestPermissionBody{ToolName: "bash", ToolInput: map[string]any{"command": command}})
		rec := doRequest(env, req)
		var out PermissionOutcomeResponse
		if json.Unmarshal(rec.Body.Bytes(), &out) == nil {
			outCh <- out
		}
	}()

	var pending []permission.Request
	require.Eventually(t, func() bool {
		pending = env.broker.Pending(sessionID)
		return len(pending) > before
	}, time.Second, 5*time.Millisecond)
	return pending[len(pending)-1], outCh
}

func TestPermissionRequestRespondFlow(t *testing.T) {
	env := newTestServer(t)

	pending, outCh := startPermissionRequest(t, env, "sess-1", "rm -rf /tmp/scratch")

	rec := doRequest(env, jsonRequest(t, http.MethodPost,
		"/api/v1/sessions/sess-1/permissions/"+pending.ID+"/respond",
		RespondPermissionBody{Decision: models.DecisionAllow}))
	require.Equal(t, http.StatusOK, rec.Code)

	resp := decodeBody[RespondResponse](t, rec)
	assert.True(t, resp.Resolved)
	assert.Empty(t, resp.AutoResolvedIDs)

	select {
	case out := <-outCh:
		assert.Equal(t, pending.ID, out.RequestID)
		assert.Equal(t, models.DecisionAllow, out.Decision)
		assert.Equal(t, pending.ToolInput, out.UpdatedInput)
	case <-time.After(time.Second):
		t.Fatal("blocked request never resolved")
	}
}

func TestPermissionRequestValidation(t *testing.T) {
	env := newTestServer(t)

	rec := doRequest(env, jsonRequest(t, http.MethodPost,
		"/api/v1/sessions/sess-1/permissions/request",
		RequestPermissionBody{ToolInput: map[string]any{"command": "ls"}}))
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestRespondValidation(t *testing.T) {
	env := newTestServer(t)

	rec := doRequest(env, jsonRequest(t, http.MethodPost,
		"/api/v1/sessions/sess-1/permissions/req-1/respond",
		map[string]string{"decision": "maybe"}))
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = doRequest(env, jsonRequest(t, http.MethodPost,
		"/api/v1/sessions/sess-1/permissions/req-1/respond",
		map[string]string{"decision": "allow", "remember": "forever"}))
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestRespondUnknownRequest(t *testing.T) {
	env := newTestServer(t)

	rec := doRequest(env, jsonRequest(t, http.MethodPost,
		"/api/v1/sessions/sess-1/permissions/nope/respond",
		RespondPermissionBody{Decision: models.DecisionDeny}))
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestPermissionRuleFastPath(t *testing.T) {
	env := newTestServer(t)

	pending, _ := startPermissionRequest(t, env, "sess-1", "npm install")
	rec := doRequest(env, jsonRequest(t, http.MethodPost,
		"/api/v1/sessions/sess-1/permissions/"+pending.ID+"/respond",
		RespondPermissionBody{Decision: models.DecisionAllow, Remember: models.ScopeSession, Pattern: "npm *"}))
	require.Equal(t, http.StatusOK, rec.Code)

	// The rule resolves a matching request without blocking.
	rec = doRequest(env, jsonRequest(t, http.MethodPost,
		"/api/v1/sessions/sess-1/permissions/request",
		RequestPermissionBody{ToolName: "bash", ToolInput: map[string]any{"command": "npm test"}}))
	require.Equal(t, http.StatusOK, rec.Code)
	out := decodeBody[PermissionOutcomeResponse](t, rec)
	assert.Equal(t, models.DecisionAllow, out.Decision)
	assert.NotEmpty(t, out.RuleID)

	// And the installed rule is visible on the rules endpoint.
	rec = doRequest(env, httptest.NewRequest(http.MethodGet, "/api/v1/sessions/sess-1/rules", nil))
	require.Equal(t, http.StatusOK, rec.Code)
	rules := decodeBody[[]models.PermissionRule](t, rec)
	require.Len(t, rules, 1)
	assert.Equal(t, "npm *", rules[0].ToolPattern)
}

func TestCancelPermissionRequest(t *testing.T) {
	env := newTestServer(t)

	pending, outCh := startPermissionRequest(t, env, "sess-1", "pip install")

	rec := doRequest(env, jsonRequest(t, http.MethodPost,
		"/api/v1/sessions/sess-1/permissions/"+pending.ID+"/cancel", nil))
	require.Equal(t, http.StatusOK, rec.Code)

	select {
	case out := <-outCh:
		assert.Equal(t, models.DecisionDeny, out.Decision)
		assert.Equal(t, permission.ReasonCancelled, out.Message)
	case <-time.After(time.Second):
		t.Fatal("cancelled request never resolved")
	}

	rec = doRequest(env, jsonRequest(t, http.MethodPost,
		"/api/v1/sessions/sess-1/permissions/"+pending.ID+"/cancel", nil))
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestPendingPermissionsEndpoint(t *testing.T) {
	env := newTestServer(t)

	rec := doRequest(env, httptest.NewRequest(http.MethodGet, "/api/v1/sessions/sess-1/permissions", nil))
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Len(t, decodeBody[[]PendingPermissionSummary](t, rec), 0)

	pending, _ := startPermissionRequest(t, env, "sess-1", "ls")

	rec = doRequest(env, httptest.NewRequest(http.MethodGet, "/api/v1/sessions/sess-1/permissions", nil))
	summaries := decodeBody[[]PendingPermissionSummary](t, rec)
	require.Len(t, summaries, 1)
	assert.Equal(t, pending.ID, summaries[0].ID)
	assert.Equal(t, "bash", summaries[0].ToolName)

	env.broker.CancelSession("sess-1")
}

func TestCancelSessionEndpoint(t *testing.T) {
	env := newTestServer(t)

	_, outA := startPermissionRequest(t, env, "sess-1", "cmd-a")
	_, outB := startPermissionRequest(t, env, "sess-1", "cmd-b")

	rec := doRequest(env, jsonRequest(t, http.MethodPost, "/api/v1/sessions/sess-1/cancel", nil))
	require.Equal(t, http.StatusOK, rec.Code)
	body := decodeBody[map[string]any](t, rec)
	assert.Equal(t, float64(2), body["cancelled"])

	for _, ch := range []chan PermissionOutcomeResponse{outA, outB} {
		select {
		case out := <-ch:
			assert.Equal(t, models.DecisionDeny, out.Decision)
		case <-time.After(time.Second):
			t.Fatal("request not drained by session cancel")
		}
	}
}

func TestQueueStatsAndHealth(t *testing.T) {
	env := newTestServer(t)

	rec := doRequest(env, httptest.NewRequest(http.MethodGet, "/api/v1/queue", nil))
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, 0, decodeBody[QueueStatsResponse](t, rec).Size)

	rec = doRequest(env, httptest.NewRequest(http.MethodGet, "/health", nil))
	require.Equal(t, http.StatusOK, rec.Code)
	health := decodeBody[map[string]any](t, rec)
	assert.Equal(t, "healthy", health["status"])
	// No database client wired, so only the queue check is present.
	checks := health["checks"].(map[string]any)
	assert.NotContains(t, checks, "database")
	assert.Contains(t, checks, "queue")
}
