package api

import (
	"crypto/sha256"
	"encoding/hex"
	"strings"
	"time"

	echo "github.com/labstack/echo/v5"

	"github.com/relayops/agentgate/pkg/models"
)

// sessionCookieName is the trusted session cookie set by the auth frontend.
const sessionCookieName = "agentgate_session"

// authenticate extracts a principal from the request. Priority: trusted
// session cookie, bearer API credential, bearer session token, then the
// query-parameter session token used by the WebSocket path. Anything else
// is anonymous, keyed by client IP so limits still apply.
func (s *Server) authenticate(c *echo.Context) (models.Principal, bool) {
	ctx := c.Request().Context()

	if cookie, err := c.Cookie(sessionCookieName); err == nil && cookie.Value != "" {
		if p, isAdmin, ok := s.principalFromSessionToken(c, cookie.Value); ok {
			return p, isAdmin
		}
	}

	if token := bearerToken(c); token != "" {
		// An API credential takes precedence: an admin presenting an API
		// key is limited as that API client.
		hash := sha256.Sum256([]byte(token))
		cred, err := s.store.GetAPICredentialByHash(ctx, hex.EncodeToString(hash[:]))
		if err == nil && cred.Active {
			p := models.APIClientPrincipal(cred.ID)
			p.UserID = cred.UserID
			return p, false
		}

		if p, isAdmin, ok := s.principalFromSessionToken(c, token); ok {
			return p, isAdmin
		}
	}

	if token := c.QueryParam("token"); token != "" {
		if p, isAdmin, ok := s.principalFromSessionToken(c, token); ok {
			return p, isAdmin
		}
	}

	return models.AnonymousPrincipal(c.RealIP()), false
}

func (s *Server) principalFromSessionToken(c *echo.Context, token string) (models.Principal, bool, bool) {
	sess, err := s.store.GetAuthSession(c.Request().Context(), token)
	if err != nil || sess.Expired(time.Now()) {
		return models.Principal{}, false, false
	}
	if sess.IsAdmin {
		return models.AdminPrincipal(), true, true
	}
	return models.UserPrincipal(sess.UserID), false, true
}

func bearerToken(c *echo.Context) string {
	auth := c.Request().Header.Get("Authorization")
	const prefix = "Bearer "
	if len(auth) > len(prefix) && strings.EqualFold(auth[:len(prefix)], prefix) {
		return auth[len(prefix):]
	}
	return ""
}
