package server

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	"github.com/sirupsen/logrus"
	"golang.org/x/time/rate"

	"github.com/brettboylen/social-analytics/api"
	"github.com/brettboylen/social-analytics/models"
)

// StatusProvider exposes the polling collector to HTTP handlers
type StatusProvider interface {
	GetStatus() models.Status
	Refresh() bool
	DismissError() bool
}

// Authenticator is the auth collaborator
type Authenticator interface {
	Login(ctx context.Context, creds api.LoginCredentials) bool
	Logout()
	CheckAuth(ctx context.Context) bool
}

// Server serves the derived views and collector state as JSON
type Server struct {
	echo      *echo.Echo
	collector StatusProvider
	auth      Authenticator
	log       *logrus.Logger
}

// New creates a new server. Clients are limited to maxRequestsPerMinute each.
func New(collector StatusProvider, auth Authenticator, maxRequestsPerMinute int, log *logrus.Logger) *Server {
	e := echo.New()
	e.HideBanner = true
	e.HidePort = true

	s := &Server{
		echo:      e,
		collector: collector,
		auth:      auth,
		log:       log,
	}

	// middleware
	e.Use(middleware.Logger())
	e.Use(middleware.Recover())

	requestsPerSecond := float64(maxRequestsPerMinute) / 60.0
	rateLimiterConfig := middleware.RateLimiterConfig{
		Skipper: middleware.DefaultSkipper,
		Store: middleware.NewRateLimiterMemoryStoreWithConfig(
			middleware.RateLimiterMemoryStoreConfig{
				Rate:      rate.Limit(requestsPerSecond),
				Burst:     maxRequestsPerMinute,
				ExpiresIn: 3 * time.Minute,
			},
		),
		IdentifierExtractor: func(ctx echo.Context) (string, error) {
			return ctx.RealIP(), nil
		},
		ErrorHandler: func(ctx echo.Context, err error) error {
			return ctx.JSON(http.StatusForbidden, map[string]string{
				"error": "Unable to identify client",
			})
		},
		DenyHandler: func(ctx echo.Context, identifier string, err error) error {
			return ctx.JSON(http.StatusTooManyRequests, map[string]string{
				"error": "Rate limit exceeded, please try again later",
			})
		},
	}
	e.Use(middleware.RateLimiterWithConfig(rateLimiterConfig))

	e.GET("/api/status", s.handleStatus)
	e.GET("/api/top-users", s.viewHandler(func(v *models.Views) any { return v.TopUsers }))
	e.GET("/api/trending-posts", s.viewHandler(func(v *models.Views) any { return v.TrendingPosts }))
	e.GET("/api/feed", s.viewHandler(func(v *models.Views) any { return v.Feed }))
	e.GET("/api/analytics/posts", s.viewHandler(func(v *models.Views) any { return v.Posts }))
	e.GET("/api/analytics/users", s.viewHandler(func(v *models.Views) any { return v.Users }))
	e.GET("/api/analytics/engagement", s.viewHandler(func(v *models.Views) any { return v.Engagement }))
	e.POST("/api/refresh", s.handleRefresh)
	e.POST("/api/error/dismiss", s.handleDismissError)

	e.POST("/api/auth/login", s.handleLogin)
	e.POST("/api/auth/logout", s.handleLogout)
	e.GET("/api/auth/check", s.handleCheckAuth)

	e.GET("/healthz", func(c echo.Context) error {
		return c.String(http.StatusOK, "OK")
	})

	return s
}

// Handler returns the underlying http.Handler
func (s *Server) Handler() http.Handler {
	return s.echo
}

// Run serves on port until ctx is cancelled, then shuts down gracefully
func (s *Server) Run(ctx context.Context, port int) error {
	errCh := make(chan error, 1)
	go func() {
		serverAddr := fmt.Sprintf(":%d", port)
		s.log.WithField("port", port).Info("Starting API server")
		if err := s.echo.Start(serverAddr); err != nil && err != http.ErrServerClosed {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		if err != nil {
			return fmt.Errorf("api server failed: %w", err)
		}
		return nil
	case <-ctx.Done():
	}

	s.log.Info("Shutting down API server")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := s.echo.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("api server shutdown failed: %w", err)
	}
	return nil
}

func (s *Server) handleStatus(c echo.Context) error {
	return c.JSON(http.StatusOK, s.collector.GetStatus())
}

// viewHandler serves one part of the latest views, or 503 until the first
// successful cycle
func (s *Server) viewHandler(pick func(*models.Views) any) echo.HandlerFunc {
	return func(c echo.Context) error {
		status := s.collector.GetStatus()
		if status.Views == nil {
			body := map[string]string{"state": string(status.State)}
			if status.Error != "" {
				body["error"] = status.Error
			}
			return c.JSON(http.StatusServiceUnavailable, body)
		}
		return c.JSON(http.StatusOK, pick(status.Views))
	}
}

func (s *Server) handleRefresh(c echo.Context) error {
	queued := s.collector.Refresh()
	return c.JSON(http.StatusAccepted, map[string]bool{"queued": queued})
}

func (s *Server) handleDismissError(c echo.Context) error {
	s.collector.DismissError()
	return c.NoContent(http.StatusNoContent)
}

func (s *Server) handleLogin(c echo.Context) error {
	var creds api.LoginCredentials
	if err := c.Bind(&creds); err != nil {
		return c.JSON(http.StatusBadRequest, map[string]string{
			"error": "Invalid login request",
		})
	}
	if creds.Username == "" || creds.Password == "" {
		return c.JSON(http.StatusBadRequest, map[string]string{
			"error": "Username and password are required",
		})
	}

	if !s.auth.Login(c.Request().Context(), creds) {
		return c.JSON(http.StatusUnauthorized, map[string]bool{"authenticated": false})
	}

	// pick up the new token right away
	s.collector.Refresh()
	return c.JSON(http.StatusOK, map[string]bool{"authenticated": true})
}

func (s *Server) handleLogout(c echo.Context) error {
	s.auth.Logout()
	return c.NoContent(http.StatusNoContent)
}

func (s *Server) handleCheckAuth(c echo.Context) error {
	return c.JSON(http.StatusOK, map[string]bool{
		"authenticated": s.auth.CheckAuth(c.Request().Context()),
	})
}
