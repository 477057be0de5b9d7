package http

import (
	"context"
	"errors"
	"net/http"
	"strings"
	"time"

	"talon/internal/exits"
	"talon/internal/logger"
	"talon/internal/types"

	"github.com/gin-gonic/gin"
)

// Core is the surface the transport exposes to external callers: the
// normalizer posts fragments, the router asks for decisions, the scheduler
// (or an operator) triggers sweeps.
type Core interface {
	UpdateContext(frag types.ContextFragment) error
	TryBuildDecision(ctx context.Context, symbol string) (*types.DecisionPacket, *types.NotReady, error)
	EvaluateOpenPositions(ctx context.Context) (exits.SweepResult, error)
}

// Server is the minimal HTTP facade over the core operations. It accepts only
// normalized fragments; raw producer payloads belong to the external
// normalizer and fail schema validation here.
type Server struct {
	addr   string
	router *gin.Engine
}

type ServerConfig struct {
	Addr string
	Core Core
}

func NewServer(cfg ServerConfig) (*Server, error) {
	if cfg.Core == nil {
		return nil, errors.New("http server requires core")
	}
	if cfg.Addr == "" {
		cfg.Addr = ":9982"
	}
	gin.SetMode(gin.ReleaseMode)
	router := gin.New()
	router.Use(gin.Recovery(), requestLogger())

	validator, err := newFragmentValidator()
	if err != nil {
		return nil, err
	}

	router.GET("/healthz", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})

	api := router.Group("/api")
	api.POST("/context", func(c *gin.Context) {
		body, err := c.GetRawData()
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}
		frag, err := validator.parse(body)
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}
		if err := cfg.Core.UpdateContext(*frag); err != nil {
			status := http.StatusInternalServerError
			if errors.Is(err, types.ErrValidation) {
				status = http.StatusBadRequest
			}
			c.JSON(status, gin.H{"error": err.Error()})
			return
		}
		c.JSON(http.StatusAccepted, gin.H{"status": "accepted", "source": frag.Source, "symbol": frag.Symbol})
	})

	api.POST("/decide/:symbol", func(c *gin.Context) {
		symbol := strings.TrimSpace(c.Param("symbol"))
		pkt, notReady, err := cfg.Core.TryBuildDecision(c.Request.Context(), symbol)
		switch {
		case err != nil:
			c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		case notReady != nil:
			c.JSON(http.StatusConflict, gin.H{"status": "not_ready", "detail": notReady})
		default:
			c.JSON(http.StatusOK, pkt)
		}
	})

	api.POST("/exits/sweep", func(c *gin.Context) {
		result, err := cfg.Core.EvaluateOpenPositions(c.Request.Context())
		if err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
			return
		}
		c.JSON(http.StatusOK, result)
	})

	return &Server{addr: cfg.Addr, router: router}, nil
}

// Start serves until the context is cancelled, then shuts down gracefully.
func (s *Server) Start(ctx context.Context) error {
	srv := &http.Server{Addr: s.addr, Handler: s.router}

	errCh := make(chan error, 1)
	go func() {
		logger.Infof("http: listening on %s", s.addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
			return
		}
		errCh <- nil
	}()

	select {
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			return err
		}
		return <-errCh
	case err := <-errCh:
		return err
	}
}

// Handler exposes the router for tests.
func (s *Server) Handler() http.Handler {
	return s.router
}

func requestLogger() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()
		logger.Debugf("http: %s %s status=%d dur=%s",
			c.Request.Method, c.Request.URL.Path, c.Writer.Status(), time.Since(start).Truncate(time.Millisecond))
	}
}
