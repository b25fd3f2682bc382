package http

import (
	"net/http"
	"strings"
	"time"

	"github.com/bcromer77/prooftimelines/internal/domain"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
)

const (
	principalContextKey = "principal"
	requestIDHeader     = "X-Request-Id"
)

func (s *Server) requireAuth() gin.HandlerFunc {
	return func(c *gin.Context) {
		if s.authenticator == nil {
			writeErrorCode(c, http.StatusInternalServerError, "AUTH_CONFIG_ERROR", "auth configuration error")
			c.Abort()
			return
		}
		principal, err := s.authenticator.Authenticate(c)
		if err != nil || principal.UserID == "" {
			writeErrorCode(c, http.StatusUnauthorized, "UNAUTHORIZED", "unauthorized")
			c.Abort()
			return
		}
		c.Set(principalContextKey, principal)
		c.Next()
	}
}

func getPrincipal(c *gin.Context) (domain.Principal, bool) {
	raw, ok := c.Get(principalContextKey)
	if !ok {
		return domain.Principal{}, false
	}
	principal, ok := raw.(domain.Principal)
	return principal, ok
}

func userID(c *gin.Context) string {
	principal, _ := getPrincipal(c)
	return principal.UserID
}

func (s *Server) requestLogger() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		requestID := strings.TrimSpace(c.GetHeader(requestIDHeader))
		if requestID == "" || len(requestID) > 128 {
			requestID = uuid.NewString()
		}
		c.Header(requestIDHeader, requestID)

		c.Next()

		route := c.FullPath()
		if route == "" {
			route = "unmatched"
		}
		args := []any{
			"method", c.Request.Method,
			"route", route,
			"status", c.Writer.Status(),
			"latency_ms", time.Since(start).Milliseconds(),
			"request_id", requestID,
		}
		if principal, ok := getPrincipal(c); ok {
			args = append(args, "user_id", principal.UserID)
		}
		ctx := c.Request.Context()
		switch status := c.Writer.Status(); {
		case status >= http.StatusInternalServerError:
			s.logger.Error(ctx, "http request", args...)
		case status >= http.StatusBadRequest:
			s.logger.Warn(ctx, "http request", args...)
		default:
			s.logger.Info(ctx, "http request", args...)
		}
	}
}
