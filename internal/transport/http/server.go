package transporthttp

import (
	"context"
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"

	"tapeflow/internal/execution"
	"tapeflow/internal/logger"
	"tapeflow/internal/types"
)

// StateFuncs supplies dashboard snapshots without coupling the server to
// the pipeline internals.
type StateFuncs struct {
	Engine     func() map[string]any
	Router     func() map[string]any
	Execution  func() map[string]any
	Statistics func() execution.Stats
	Session    func() map[string]any
	Profile    func() map[string]any
	Positions  func() []*execution.Position
	Trades     func() []*execution.Trade
	RecentBars func(limit int) []*types.FootprintBar
}

// Server exposes the dashboard REST surface and the websocket event
// stream.
type Server struct {
	addr   string
	router *gin.Engine
	hub    *Hub
}

func NewServer(addr string, state StateFuncs) (*Server, error) {
	if addr == "" {
		addr = ":8080"
	}
	gin.SetMode(gin.ReleaseMode)
	router := gin.New()
	router.Use(gin.Recovery(), requestLogger())

	hub := NewHub()
	s := &Server{addr: addr, router: router, hub: hub}

	router.GET("/healthz", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})
	api := router.Group("/api")
	api.GET("/state", func(c *gin.Context) {
		out := gin.H{}
		if state.Engine != nil {
			out["engine"] = state.Engine()
		}
		if state.Router != nil {
			out["router"] = state.Router()
		}
		if state.Execution != nil {
			out["execution"] = state.Execution()
		}
		c.JSON(http.StatusOK, out)
	})
	api.GET("/statistics", func(c *gin.Context) {
		if state.Statistics == nil {
			c.JSON(http.StatusOK, gin.H{})
			return
		}
		c.JSON(http.StatusOK, state.Statistics())
	})
	api.GET("/session", func(c *gin.Context) {
		if state.Session == nil {
			c.JSON(http.StatusOK, gin.H{})
			return
		}
		c.JSON(http.StatusOK, state.Session())
	})
	api.GET("/profile", func(c *gin.Context) {
		if state.Profile == nil {
			c.JSON(http.StatusOK, gin.H{})
			return
		}
		c.JSON(http.StatusOK, state.Profile())
	})
	api.GET("/positions", func(c *gin.Context) {
		if state.Positions == nil {
			c.JSON(http.StatusOK, []any{})
			return
		}
		c.JSON(http.StatusOK, state.Positions())
	})
	api.GET("/trades", func(c *gin.Context) {
		if state.Trades == nil {
			c.JSON(http.StatusOK, []any{})
			return
		}
		c.JSON(http.StatusOK, state.Trades())
	})
	api.GET("/bars", func(c *gin.Context) {
		if state.RecentBars == nil {
			c.JSON(http.StatusOK, []any{})
			return
		}
		limit := 100
		if raw := c.Query("limit"); raw != "" {
			if n, err := strconv.Atoi(raw); err == nil && n > 0 {
				limit = n
			}
		}
		c.JSON(http.StatusOK, state.RecentBars(limit))
	})
	router.GET("/ws", hub.Handle)

	return s, nil
}

// Broadcast fans an event out to every websocket client; slow clients
// are dropped rather than blocking.
func (s *Server) Broadcast(kind string, payload any) {
	s.hub.Broadcast(kind, payload)
}

func (s *Server) Addr() string { return s.addr }

// Start serves until ctx is cancelled.
func (s *Server) Start(ctx context.Context) error {
	srv := &http.Server{Addr: s.addr, Handler: s.router}
	errCh := make(chan error, 1)
	go func() {
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()
	logger.Infof("http: dashboard listening on %s", s.addr)

	select {
	case <-ctx.Done():
		s.hub.Close()
		shCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = srv.Shutdown(shCtx)
		return nil
	case err := <-errCh:
		return err
	}
}

func requestLogger() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()
		logger.Debugf("HTTP %s %s status=%d dur=%s",
			c.Request.Method, c.Request.URL.Path, c.Writer.Status(), time.Since(start))
	}
}
