package server

import (
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/clearancehq/tiergate/internal/access"
	"github.com/clearancehq/tiergate/internal/admin"
	"github.com/clearancehq/tiergate/internal/audit"
	"github.com/clearancehq/tiergate/internal/credential"
	"github.com/clearancehq/tiergate/internal/observability"
	"github.com/clearancehq/tiergate/internal/ratelimit"
	"github.com/clearancehq/tiergate/internal/session"
)

type loginRequest struct {
	Email    string `json:"email" binding:"required"`
	Password string `json:"password" binding:"required"`
}

type userPayload struct {
	ID    string `json:"id"`
	Email string `json:"email"`
	Name  string `json:"name"`
	Role  string `json:"role"`
	Tier  string `json:"tier"`
}

type tokenResponse struct {
	Token string      `json:"token"`
	User  userPayload `json:"user"`
}

func userFromPrincipal(p *credential.Principal) userPayload {
	return userPayload{
		ID:    p.ID,
		Email: p.Email,
		Name:  p.Name,
		Role:  p.Role,
		Tier:  string(p.Tier),
	}
}

func userFromClaims(claims *credential.Claims) userPayload {
	return userPayload{
		ID:    claims.ID,
		Email: claims.Email,
		Name:  claims.Name,
		Role:  claims.Role,
		Tier:  string(claims.Tier),
	}
}

// handleLogin authenticates a principal, issues a credential and
// establishes a session. Login attempts are throttled per client IP on
// the anonymous profile.
func (s *Server) handleLogin(c *gin.Context) {
	ctx := c.Request.Context()

	res, err := s.deps.Limits.Allow(ctx, ratelimit.ProfileAnonymous,
		ratelimit.AnonymousKeyFor(c.ClientIP(), c.Request.URL.Path))
	if err != nil {
		s.logger.Error("rate limit check failed", observability.Error(err))
	}
	setRateHeaders(c, res)
	if res != nil && !res.Allowed {
		s.auditLogin(c, "", audit.OutcomeDenied, "rate_limited")
		c.JSON(http.StatusTooManyRequests, gin.H{
			"error":       "Too Many Requests",
			"retry_after": res.RetryAfterSeconds(),
		})
		return
	}

	var req loginRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "email and password are required"})
		return
	}

	principal, err := s.deps.Directory.Authenticate(ctx, req.Email, req.Password)
	if err != nil {
		// One response for unknown email and wrong password.
		s.auditLogin(c, req.Email, audit.OutcomeFailure, "invalid_login")
		c.JSON(http.StatusUnauthorized, gin.H{"error": "invalid credentials"})
		return
	}

	token, err := s.deps.Credentials.Issue(ctx, principal)
	if err != nil {
		s.logger.Error("credential issuance failed", observability.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "could not issue credential"})
		return
	}

	now := time.Now()
	handle := session.NewHandle()
	rec := &session.Record{
		PrincipalID: principal.ID,
		Tier:        principal.Tier,
		Role:        principal.Role,
		CreatedAt:   now,
		ExpiresAt:   now.Add(s.deps.SessionTTL),
	}
	if err := s.deps.Sessions.Put(ctx, handle, rec, s.deps.SessionTTL); err != nil {
		s.logger.Error("session creation failed", observability.Error(err))
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "session store unavailable"})
		return
	}

	s.setSessionCookie(c, handle, int(s.deps.SessionTTL.Seconds()))

	event := audit.NewEvent(audit.EventTypeAuthentication, audit.ActionLogin, audit.OutcomeSuccess)
	event.Subject = &audit.Subject{
		ID:        principal.ID,
		Email:     principal.Email,
		Tier:      string(principal.Tier),
		Role:      principal.Role,
		IPAddress: c.ClientIP(),
	}
	s.deps.Audit.LogEvent(ctx, event)

	c.JSON(http.StatusOK, tokenResponse{Token: token, User: userFromPrincipal(principal)})
}

// handleRefresh exchanges a valid bearer credential for a fresh one.
func (s *Server) handleRefresh(c *gin.Context) {
	ctx := c.Request.Context()

	token := bearerSecret(c)
	if token == "" {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "missing bearer credential"})
		return
	}

	claims, err := s.deps.Credentials.Verify(ctx, token)
	if err != nil {
		reason := "invalid_credential"
		if errors.Is(err, credential.ErrExpiredCredential) {
			reason = "expired_credential"
		}
		event := audit.NewEvent(audit.EventTypeAuthentication, audit.ActionTokenRefresh, audit.OutcomeFailure)
		event.Reason = reason
		event.Subject = &audit.Subject{IPAddress: c.ClientIP()}
		s.deps.Audit.LogEvent(ctx, event)
		c.JSON(http.StatusUnauthorized, gin.H{"error": "invalid credential"})
		return
	}

	fresh, err := s.deps.Credentials.Issue(ctx, &credential.Principal{
		ID:    claims.ID,
		Email: claims.Email,
		Name:  claims.Name,
		Role:  claims.Role,
		Tier:  claims.Tier,
	})
	if err != nil {
		s.logger.Error("credential reissue failed", observability.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "could not issue credential"})
		return
	}

	event := audit.NewEvent(audit.EventTypeAuthentication, audit.ActionTokenRefresh, audit.OutcomeSuccess)
	event.Subject = &audit.Subject{
		ID:        claims.ID,
		Email:     claims.Email,
		Tier:      string(claims.Tier),
		Role:      claims.Role,
		IPAddress: c.ClientIP(),
	}
	s.deps.Audit.LogEvent(ctx, event)

	c.JSON(http.StatusOK, tokenResponse{Token: fresh, User: userFromClaims(claims)})
}

// handleLogout invalidates the session and clears the cookie. Logout is
// idempotent: no cookie, or an already dead session, still succeeds.
func (s *Server) handleLogout(c *gin.Context) {
	ctx := c.Request.Context()

	handle := sessionHandle(c)
	if handle != "" {
		if err := s.deps.Sessions.Invalidate(ctx, handle); err != nil {
			s.logger.Warn("session invalidation failed", observability.Error(err))
		}
	}
	s.setSessionCookie(c, "", -1)

	event := audit.NewEvent(audit.EventTypeAuthentication, audit.ActionLogout, audit.OutcomeSuccess)
	event.Subject = &audit.Subject{IPAddress: c.ClientIP()}
	s.deps.Audit.LogEvent(ctx, event)

	c.Status(http.StatusNoContent)
}

// handleContent authorizes access to a content item and serves its
// metadata. The decision chain sets the rate limit headers whether the
// request is admitted or throttled.
func (s *Server) handleContent(c *gin.Context) {
	ctx := c.Request.Context()

	slug := strings.TrimPrefix(c.Param("slug"), "/")
	required, err := s.deps.Content.RequiredTier(ctx, slug)
	if err != nil {
		s.logger.Error("tier resolution failed",
			observability.String("slug", slug), observability.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "could not resolve content"})
		return
	}

	decision := s.deps.Access.Authorize(ctx, access.Request{
		SessionHandle: sessionHandle(c),
		RequiredTier:  required,
		Path:          c.Request.URL.Path,
		ClientIP:      c.ClientIP(),
	})
	setRateHeaders(c, decision.Rate())

	if decision.Allowed() {
		c.JSON(http.StatusOK, gin.H{
			"slug":          slug,
			"required_tier": string(required),
		})
		return
	}

	body := gin.H{"error": string(decision.Reason())}
	if decision.Reason() == access.ReasonRateLimited {
		body["retry_after"] = decision.RetryAfterSeconds()
	}
	c.JSON(decision.StatusCode(), body)
}

// adminGuard throttles administrative requests and runs the
// elevated-access chain before any admin handler.
func (s *Server) adminGuard() gin.HandlerFunc {
	return func(c *gin.Context) {
		ctx := c.Request.Context()

		var rec *session.Record
		if handle := sessionHandle(c); handle != "" {
			if r, err := s.deps.Sessions.Get(ctx, handle); err == nil {
				rec = r
			} else if !errors.Is(err, session.ErrSessionNotFound) {
				s.logger.Warn("session store unavailable on admin route",
					observability.Error(err))
			}
		}

		actor := c.ClientIP()
		if rec != nil {
			actor = rec.PrincipalID
		}
		res, err := s.deps.Limits.Allow(ctx, ratelimit.ProfileAdmin, ratelimit.AdminKeyFor(actor))
		if err != nil {
			s.logger.Error("rate limit check failed", observability.Error(err))
		}
		setRateHeaders(c, res)
		if res != nil && !res.Allowed {
			c.AbortWithStatusJSON(http.StatusTooManyRequests, gin.H{
				"error":       "Too Many Requests",
				"retry_after": res.RetryAfterSeconds(),
			})
			return
		}

		result := s.deps.Admin.Validate(ctx, admin.Input{
			Session:      rec,
			BearerSecret: bearerSecret(c),
			ClientIP:     c.ClientIP(),
		})
		if !result.Granted {
			c.AbortWithStatusJSON(http.StatusForbidden, gin.H{"error": result.Reason})
			return
		}

		c.Set("adminMethod", string(result.Method))
		c.Next()
	}
}

// handleAdminStatus reports that the caller holds elevated access and how
// it was granted.
func (s *Server) handleAdminStatus(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"status": "ok",
		"method": c.GetString("adminMethod"),
	})
}

// handleAdminSession returns the live session record for a handle.
func (s *Server) handleAdminSession(c *gin.Context) {
	ctx := c.Request.Context()
	handle := c.Param("handle")

	rec, err := s.deps.Sessions.Get(ctx, handle)
	switch {
	case err == nil:
		c.JSON(http.StatusOK, rec)
	case errors.Is(err, session.ErrSessionNotFound):
		c.JSON(http.StatusNotFound, gin.H{"error": "session not found"})
	default:
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "session store unavailable"})
	}
}

// handleAdminRevoke invalidates a session by handle.
func (s *Server) handleAdminRevoke(c *gin.Context) {
	ctx := c.Request.Context()
	handle := c.Param("handle")

	if err := s.deps.Sessions.Invalidate(ctx, handle); err != nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "session store unavailable"})
		return
	}

	event := audit.NewEvent(audit.EventTypeAdministrative, audit.ActionElevatedAccess, audit.OutcomeSuccess)
	event.Reason = "session_revoked"
	event.Metadata = map[string]any{"method": c.GetString("adminMethod")}
	event.Subject = &audit.Subject{IPAddress: c.ClientIP()}
	s.deps.Audit.LogEvent(ctx, event)

	c.Status(http.StatusNoContent)
}

func (s *Server) auditLogin(c *gin.Context, email string, outcome audit.Outcome, reason string) {
	event := audit.NewEvent(audit.EventTypeAuthentication, audit.ActionLogin, outcome)
	event.Reason = reason
	event.Subject = &audit.Subject{Email: email, IPAddress: c.ClientIP()}
	s.deps.Audit.LogEvent(c.Request.Context(), event)
}

func (s *Server) setSessionCookie(c *gin.Context, value string, maxAge int) {
	c.SetSameSite(http.SameSiteLaxMode)
	c.SetCookie(SessionCookie, value, maxAge, "/", "", s.config.SecureCookies, true)
}
