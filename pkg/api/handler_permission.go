package api

import (
	"errors"
	"net/http"

	"github.com/google/uuid"
	echo "github.com/labstack/echo/v5"

	"github.com/relayops/agentgate/pkg/events"
	"github.com/relayops/agentgate/pkg/models"
	"github.com/relayops/agentgate/pkg/permission"
)

// requestPermissionHandler handles POST /api/v1/sessions/:id/permissions/request.
// Called by the agent runtime; blocks until the request is decided, times
// out, or the client disconnects.
func (s *Server) requestPermissionHandler(c *echo.Context) error {
	sessionID := c.Param("id")
	if sessionID == "" {
		return echo.NewHTTPError(http.StatusBadRequest, "session id is required")
	}

	var body RequestPermissionBody
	if err := c.Bind(&body); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid request body")
	}
	if body.ToolName == "" {
		return echo.NewHTTPError(http.StatusBadRequest, "tool_name is required")
	}

	req := permission.Request{
		ID:        uuid.New().String(),
		SessionID: sessionID,
		ProfileID: body.ProfileID,
		ToolName:  body.ToolName,
		ToolInput: body.ToolInput,
	}
	out := s.broker.Request(c.Request().Context(), req, s.sessionBroadcast(sessionID))
	s.observePermission(out)

	return c.JSON(http.StatusOK, PermissionOutcomeResponse{
		RequestID:    req.ID,
		Decision:     out.Decision,
		Message:      out.Message,
		UpdatedInput: out.UpdatedInput,
		RuleID:       out.RuleID,
	})
}

// respondPermissionHandler handles
// POST /api/v1/sessions/:id/permissions/:request_id/respond.
func (s *Server) respondPermissionHandler(c *echo.Context) error {
	sessionID := c.Param("id")
	requestID := c.Param("request_id")
	if sessionID == "" || requestID == "" {
		return echo.NewHTTPError(http.StatusBadRequest, "session id and request id are required")
	}

	var body RespondPermissionBody
	if err := c.Bind(&body); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid request body")
	}
	if body.Decision != models.DecisionAllow && body.Decision != models.DecisionDeny {
		return echo.NewHTTPError(http.StatusBadRequest, "decision must be allow or deny")
	}
	switch body.Remember {
	case "", models.ScopeSession, models.ScopeProfile, models.ScopeGlobal:
	default:
		return echo.NewHTTPError(http.StatusBadRequest, "remember must be session, profile, or global")
	}

	res, err := s.broker.Respond(c.Request().Context(), sessionID, requestID,
		body.Decision, body.Remember, body.Pattern, body.UpdatedInput, s.sessionBroadcast(sessionID))
	if err != nil {
		return mapDomainError(err)
	}
	if s.collector != nil {
		s.collector.ObservePermission(string(body.Decision), "respond")
	}

	return c.JSON(http.StatusOK, RespondResponse{
		Resolved:        res.Resolved,
		AutoResolvedIDs: emptyIfNil(res.AutoResolvedIDs),
	})
}

// cancelPermissionHandler handles
// POST /api/v1/sessions/:id/permissions/:request_id/cancel.
func (s *Server) cancelPermissionHandler(c *echo.Context) error {
	sessionID := c.Param("id")
	requestID := c.Param("request_id")

	if !s.broker.Cancel(sessionID, requestID) {
		return echo.NewHTTPError(http.StatusNotFound, "permission request not found")
	}
	if s.collector != nil {
		s.collector.ObservePermission(string(models.DecisionDeny), "cancel")
	}
	return c.JSON(http.StatusOK, map[string]string{"status": "cancelled"})
}

// pendingPermissionsHandler handles GET /api/v1/sessions/:id/permissions.
func (s *Server) pendingPermissionsHandler(c *echo.Context) error {
	sessionID := c.Param("id")
	return c.JSON(http.StatusOK, pendingSummaries(s.broker.Pending(sessionID)))
}

// sessionRulesHandler handles GET /api/v1/sessions/:id/rules.
func (s *Server) sessionRulesHandler(c *echo.Context) error {
	sessionID := c.Param("id")
	rules := s.broker.SessionRules(sessionID)
	if rules == nil {
		rules = []models.PermissionRule{}
	}
	return c.JSON(http.StatusOK, rules)
}

// cancelSessionHandler handles POST /api/v1/sessions/:id/cancel. Drains all
// pending permission requests and drops the session's in-memory rules.
func (s *Server) cancelSessionHandler(c *echo.Context) error {
	sessionID := c.Param("id")

	cancelled := s.broker.CancelSession(sessionID)
	s.broker.ClearSessionRules(sessionID)

	return c.JSON(http.StatusOK, map[string]any{
		"status":    "cancelled",
		"cancelled": cancelled,
	})
}

// sessionBroadcast adapts broker events onto the session's WebSocket
// channel.
func (s *Server) sessionBroadcast(sessionID string) permission.BroadcastFunc {
	if s.hub == nil {
		return nil
	}
	return func(e permission.Event) {
		s.hub.BroadcastJSON(events.SessionChannel(sessionID), e)
	}
}

func (s *Server) observePermission(out permission.Outcome) {
	if s.collector == nil {
		return
	}
	source := "respond"
	switch {
	case out.RuleID != "":
		source = "rule"
	case out.Message == permission.ReasonTimedOut:
		source = "timeout"
	case out.Message == permission.ReasonCancelled:
		source = "cancel"
	}
	s.collector.ObservePermission(string(out.Decision), source)
}

func mapDomainError(err error) *echo.HTTPError {
	if errors.Is(err, permission.ErrNotFound) {
		return echo.NewHTTPError(http.StatusNotFound, "permission request not found")
	}
	return echo.NewHTTPError(http.StatusInternalServerError, "internal server error")
}

func emptyIfNil(ids []string) []string {
	if ids == nil {
		return []string{}
	}
	return ids
}
