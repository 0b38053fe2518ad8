package server

import (
	"context"
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/danmuck/netspeed/internal/logging"
	"github.com/danmuck/netspeed/internal/observability"
	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const Version = "0.1.0"

// AdminRouter builds the admin HTTP surface: health, readiness, admission
// counters and prometheus metrics.
func (s *Service) AdminRouter() *gin.Engine {
	gin.SetMode(gin.ReleaseMode)
	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(s.adminAccess())
	r.Use(cors.New(cors.Config{
		AllowOrigins: normalizeOrigins(s.cfg.CorsOrigins),
		AllowMethods: []string{"GET"},
		AllowHeaders: []string{"Origin", "Content-Type"},
		MaxAge:       12 * time.Hour,
	}))

	r.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{
			"status":  "ok",
			"uptime":  time.Since(s.started).String(),
			"version": Version,
		})
	})

	r.GET("/ready", func(c *gin.Context) {
		stats := s.admission.Stats()
		status := http.StatusOK
		if stats.Active >= int64(stats.Capacity) {
			status = http.StatusServiceUnavailable
		}
		c.JSON(status, gin.H{
			"ready":    status == http.StatusOK,
			"active":   stats.Active,
			"capacity": stats.Capacity,
		})
	})

	r.GET("/sessions", func(c *gin.Context) {
		c.JSON(http.StatusOK, s.admission.Stats())
	})

	r.GET("/metrics", gin.WrapH(promhttp.Handler()))
	return r
}

// unmatchedRoute labels admin requests that hit no route, keeping the metric
// label set bounded.
const unmatchedRoute = "unmatched"

// adminAccess logs and counts every admin request together with the admission
// snapshot at the time the response was written.
func (s *Service) adminAccess() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()

		route := c.FullPath()
		if route == "" {
			route = unmatchedRoute
		}
		status := c.Writer.Status()
		elapsed := time.Since(start)
		observability.RecordAdminRequest(c.Request.Method, route, status, elapsed)

		logf := logging.Debugf
		switch {
		case status == http.StatusServiceUnavailable:
			// /ready at capacity is an expected answer
			logf = logging.Infof
		case status >= http.StatusInternalServerError:
			logf = logging.Errf
		case status >= http.StatusBadRequest:
			logf = logging.Warnf
		}
		stats := s.admission.Stats()
		logf(
			"server.Service.adminAccess method=%s route=%q status=%d elapsed=%s remote=%q active=%d capacity=%d",
			c.Request.Method,
			route,
			status,
			elapsed,
			c.ClientIP(),
			stats.Active,
			stats.Capacity,
		)
	}
}

// serveAdmin runs the admin router on addr until ctx is done.
func (s *Service) serveAdmin(ctx context.Context, addr string) error {
	srv := &http.Server{
		Addr:              addr,
		Handler:           s.AdminRouter(),
		ReadHeaderTimeout: 5 * time.Second,
	}
	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		_ = srv.Shutdown(shutdownCtx)
	}()
	logging.Infof("server.Service.serveAdmin listening addr=%q", addr)
	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

func normalizeOrigins(origins []string) []string {
	seen := make(map[string]struct{}, len(origins))
	out := make([]string, 0, len(origins))
	for _, origin := range origins {
		origin = strings.TrimSpace(origin)
		if origin == "" {
			continue
		}
		if _, ok := seen[origin]; ok {
			continue
		}
		seen[origin] = struct{}{}
		out = append(out, origin)
	}
	if len(out) == 0 {
		return []string{"http://localhost:3000"}
	}
	return out
}
