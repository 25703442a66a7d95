package api

import (
	"net/http"

	echo "github.com/labstack/echo/v5"

	"github.com/relayops/agentgate/pkg/events"
	"github.com/relayops/agentgate/pkg/models"
)

// queuePositionHandler handles GET /api/v1/queue/position. Reports the
// calling principal's wait-queue placement.
func (s *Server) queuePositionHandler(c *echo.Context) error {
	principal, _ := c.Get("principal").(models.Principal)

	pos := s.gateway.QueuePosition(principal)
	resp := QueuePositionResponse{
		Queued: pos.Queued,
		Total:  pos.Total,
	}
	if pos.Queued {
		resp.Rank = pos.Rank
		resp.ETASeconds = int(pos.ETA.Seconds())
	}
	return c.JSON(http.StatusOK, resp)
}

// queueStatsHandler handles GET /api/v1/queue.
func (s *Server) queueStatsHandler(c *echo.Context) error {
	return c.JSON(http.StatusOK, QueueStatsResponse{Size: s.gateway.QueueSize()})
}

// leaveQueueHandler handles DELETE /api/v1/queue/:id. Best-effort removal
// of a parked request.
func (s *Server) leaveQueueHandler(c *echo.Context) error {
	id := c.Param("id")
	if id == "" {
		return echo.NewHTTPError(http.StatusBadRequest, "queue entry id is required")
	}

	if !s.gateway.LeaveQueue(id) {
		return echo.NewHTTPError(http.StatusNotFound, "queue entry not found")
	}
	s.broadcastQueueDepth()
	return c.JSON(http.StatusOK, map[string]string{"status": "removed"})
}

// broadcastQueueDepth publishes the current wait-queue size to queue-channel
// subscribers.
func (s *Server) broadcastQueueDepth() {
	if s.hub == nil {
		return
	}
	s.hub.BroadcastJSON(events.QueueChannel, events.QueueEvent{
		Kind: events.KindQueueDepth,
		Size: s.gateway.QueueSize(),
	})
}
