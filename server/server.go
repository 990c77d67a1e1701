package server

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/FrenchMajesty/chat-widget/utils/logger"
	"github.com/gin-gonic/gin"
)

const shutdownTimeout = 5 * time.Second

func newEngine(l logger.Logger) *gin.Engine {
	gin.SetMode(gin.ReleaseMode)

	engine := gin.New()
	engine.Use(loggerMiddleware(l))
	engine.Use(gin.Recovery())
	return engine
}

func loggerMiddleware(l logger.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		path := c.Request.URL.Path
		if raw := c.Request.URL.RawQuery; raw != "" {
			path = path + "?" + raw
		}

		c.Next()

		status := c.Writer.Status()
		if status >= 400 {
			l.Errorf("[server] %s %s %d %v %s", c.Request.Method, path, status, time.Since(start), c.ClientIP())
			return
		}
		l.Printf("[server] %s %s %d %v %s", c.Request.Method, path, status, time.Since(start), c.ClientIP())
	}
}

// ListenAndServe serves handler on addr until ctx is cancelled, then shuts down gracefully.
func ListenAndServe(ctx context.Context, addr string, handler http.Handler, l logger.Logger) error {
	l = logger.OrNoop(l)
	srv := &http.Server{
		Addr:        addr,
		Handler:     handler,
		ReadTimeout: 30 * time.Second,
		// Event streams stay open, so writes are not bounded.
		WriteTimeout: 0,
		IdleTimeout:  300 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		l.Printf("[server] listening on %s", addr)
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return fmt.Errorf("listen on %s: %w", addr, err)
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()

	l.Printf("[server] shutting down %s", addr)
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("shutdown %s: %w", addr, err)
	}
	return nil
}
