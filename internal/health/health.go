// Package health keeps the process observable while it idles after a
// successful run. Instead of a sleep loop, daemon mode serves a small
// HTTP surface an orchestrator can probe.
package health

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
)

// Snapshot is what the endpoints report about the completed run.
type Snapshot struct {
	RunID       string `json:"run_id"`
	Org         string `json:"org"`
	Repo        string `json:"repo"`
	Branch      string `json:"branch"`
	Commit      string `json:"commit"`
	PushedTag   string `json:"pushed_tag"`
	CompletedAt string `json:"completed_at"`
}

type Server struct {
	addr string
	srv  *http.Server
}

// New builds the server; snapshot is read per request so the handler
// stays decoupled from the pipeline types.
func New(addr string, snapshot func() Snapshot) *Server {
	gin.SetMode(gin.ReleaseMode)
	router := gin.New()
	router.Use(gin.Recovery())

	router.GET("/healthz", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok", "run_id": snapshot().RunID})
	})
	router.GET("/status", func(c *gin.Context) {
		c.JSON(http.StatusOK, snapshot())
	})

	return &Server{
		addr: addr,
		srv:  &http.Server{Addr: addr, Handler: router},
	}
}

// Serve blocks until ctx is cancelled, then shuts the listener down.
func (s *Server) Serve(ctx context.Context) error {
	errc := make(chan error, 1)
	go func() {
		if err := s.srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errc <- err
		}
	}()
	slog.Info("health endpoint up", "addr", s.addr)

	select {
	case err := <-errc:
		return err
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	return s.srv.Shutdown(shutdownCtx)
}
