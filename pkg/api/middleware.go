package api

import (
	"net/http"
	"strconv"
	"time"

	echo "github.com/labstack/echo/v5"

	"github.com/relayops/agentgate/pkg/admission"
	"github.com/relayops/agentgate/pkg/ratelimit"
)

// securityHeaders returns middleware that sets standard security response headers.
func securityHeaders() echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c *echo.Context) error {
			h := c.Response().Header()
			h.Set("X-Frame-Options", "DENY")
			h.Set("X-Content-Type-Options", "nosniff")
			h.Set("Referrer-Policy", "strict-origin-when-cross-origin")
			h.Set("Permissions-Policy", "camera=(), microphone=(), geolocation=()")
			return next(c)
		}
	}
}

// admissionMiddleware classifies every request path and routes limited
// endpoints through the admission gateway. Skip and informational paths
// receive best-effort snapshot headers only.
//
// For admitted requests Complete is deferred before the handler runs, so
// the concurrency slot is released on every exit path, panics included.
func (s *Server) admissionMiddleware() echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c *echo.Context) error {
			path := c.Request().URL.Path
			principal, isAdmin := s.authenticate(c)
			c.Set("principal", principal)
			c.Set("is_admin", isAdmin)

			class := admission.Classify(path)
			if class != admission.ClassLimited {
				snap := s.gateway.Snapshot(c.Request().Context(), principal, isAdmin)
				setRateLimitHeaders(c, snap)
				return next(c)
			}

			decision := s.gateway.Admit(c.Request().Context(), principal, path, isAdmin)
			setRateLimitHeaders(c, decision.Snapshot)
			if s.collector != nil {
				s.collector.ObserveAdmission(string(decision.Outcome))
			}

			switch decision.Outcome {
			case admission.OutcomeQueued:
				s.broadcastQueueDepth()
				c.Response().Header().Set("Retry-After", strconv.Itoa(decision.RetryAfter))
				return c.JSON(http.StatusTooManyRequests, QueuedResponse{
					Detail:     "request queued",
					RetryAfter: decision.RetryAfter,
					Limits:     limitsFromSnapshot(decision.Snapshot),
					QueueID:    decision.QueueID,
					Rank:       decision.Rank,
					QueueTotal: decision.QueueTotal,
					ETASeconds: int(decision.ETA.Seconds()),
				})

			case admission.OutcomeThrottled:
				c.Response().Header().Set("Retry-After", strconv.Itoa(decision.RetryAfter))
				return c.JSON(http.StatusTooManyRequests, ThrottledResponse{
					Detail:     "rate limit exceeded",
					RetryAfter: decision.RetryAfter,
					Limits:     limitsFromSnapshot(decision.Snapshot),
				})
			}

			start := time.Now()
			defer func() {
				s.gateway.Complete(c.Request().Context(), principal, decision.RequestID, time.Since(start))
				if s.collector != nil {
					s.collector.ObserveRequestDuration("limited", time.Since(start))
				}
			}()
			return next(c)
		}
	}
}

// setRateLimitHeaders emits the per-window quota headers on every response.
func setRateLimitHeaders(c *echo.Context, snap ratelimit.Snapshot) {
	h := c.Response().Header()
	h.Set("X-RateLimit-Limit", strconv.Itoa(snap.LimitMinute))
	h.Set("X-RateLimit-Remaining", strconv.Itoa(snap.RemainingMinute))
	h.Set("X-RateLimit-Reset", strconv.FormatInt(snap.ResetMinute.Unix(), 10))
	h.Set("X-RateLimit-Limit-Hour", strconv.Itoa(snap.LimitHour))
	h.Set("X-RateLimit-Remaining-Hour", strconv.Itoa(snap.RemainingHour))
	h.Set("X-RateLimit-Limit-Day", strconv.Itoa(snap.LimitDay))
	h.Set("X-RateLimit-Remaining-Day", strconv.Itoa(snap.RemainingDay))
}

func limitsFromSnapshot(snap ratelimit.Snapshot) LimitsBody {
	return LimitsBody{
		Minute: snap.LimitMinute,
		Hour:   snap.LimitHour,
		Day:    snap.LimitDay,
	}
}
