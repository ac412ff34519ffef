// Package web serves the vote redirect and health endpoints.
package web

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/MrDDream/ReminderVoteBot/internal/reminder"
	"github.com/MrDDream/ReminderVoteBot/internal/token"
)

type Verifier interface {
	Verify(tok string) (token.Payload, error)
}

// Visits records a redirect hit and returns where to send the user.
type Visits interface {
	RecordVisit(ctx context.Context, p token.Payload) (string, error)
}

// NewRouter builds the gin engine with the redirect and health routes.
func NewRouter(v Verifier, visits Visits, log *zap.Logger) *gin.Engine {
	r := gin.New()
	r.Use(requestLogger(log), gin.Recovery())

	h := &redirectHandler{verifier: v, visits: visits, log: log}
	r.GET("/", func(c *gin.Context) { c.String(http.StatusOK, "OK") })
	r.GET("/health", func(c *gin.Context) { c.JSON(http.StatusOK, gin.H{"ok": true}) })
	r.GET("/v", h.Redirect)
	return r
}

// NewServer wraps handler in an http.Server with conservative timeouts.
func NewServer(addr string, handler http.Handler) *http.Server {
	return &http.Server{
		Addr:              addr,
		Handler:           handler,
		ReadHeaderTimeout: 3 * time.Second,
		ReadTimeout:       5 * time.Second,
		WriteTimeout:      10 * time.Second,
	}
}

type redirectHandler struct {
	verifier Verifier
	visits   Visits
	log      *zap.Logger
}

// Redirect handles GET /v?t=<token>. The token is checked before any lookup.
func (h *redirectHandler) Redirect(c *gin.Context) {
	t := c.Query("t")
	if t == "" {
		c.String(http.StatusBadRequest, "Missing token")
		return
	}
	p, err := h.verifier.Verify(t)
	if err != nil || p.UID == "" {
		c.String(http.StatusBadRequest, "Invalid token")
		return
	}

	target, err := h.visits.RecordVisit(c.Request.Context(), p)
	switch {
	case err == nil:
		c.Redirect(http.StatusFound, target)
	case errors.Is(err, reminder.ErrTokenExpired), errors.Is(err, token.ErrInvalid):
		c.String(http.StatusBadRequest, "Invalid token")
	case errors.Is(err, reminder.ErrNotSubscribed):
		c.String(http.StatusNotFound, "Not subscribed")
	case errors.Is(err, reminder.ErrNoVoteURL):
		c.String(http.StatusServiceUnavailable, "Vote URL not configured")
	default:
		h.log.Error("vote redirect failed", zap.String("userId", p.UID), zap.Error(err))
		c.String(http.StatusInternalServerError, "Server error (redirect)")
	}
}

// requestLogger logs each request through zap. The query string is left out
// because it carries the token.
func requestLogger(log *zap.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()
		log.Info("http request",
			zap.String("method", c.Request.Method),
			zap.String("path", c.Request.URL.Path),
			zap.Int("status", c.Writer.Status()),
			zap.Duration("latency", time.Since(start)),
			zap.String("ip", c.ClientIP()),
		)
	}
}
