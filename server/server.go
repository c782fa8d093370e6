// Package server exposes the generation client and the task manager to the
// editor over HTTP.
package server

import (
	"context"
	"net"
	"net/http"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-contrib/pprof"
	ginzap "github.com/gin-contrib/zap"
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/feitianbubu/mediaflow"
	"github.com/feitianbubu/mediaflow/config"
	"github.com/feitianbubu/mediaflow/taskmanager"
	"github.com/feitianbubu/mediaflow/workspace"
)

const requestIDHeader = "X-Request-ID"

// CanvasSwitcher is implemented by live states that can change the open canvas
type CanvasSwitcher interface {
	SetActiveCanvas(canvasID string) error
}

// Server is the HTTP front of a mediaflow process
type Server struct {
	client *mediaflow.Client
	tasks  *taskmanager.Manager
	live   workspace.LiveState
	cfg    config.ServerConfig
	logger *zap.Logger

	router *gin.Engine
	http   *http.Server
}

// New creates a server and its routes. live may be nil.
func New(client *mediaflow.Client, tasks *taskmanager.Manager, live workspace.LiveState, cfg config.ServerConfig, logger *zap.Logger) *Server {
	if logger == nil {
		logger = zap.NewNop()
	}
	s := &Server{
		client: client,
		tasks:  tasks,
		live:   live,
		cfg:    cfg,
		logger: logger,
	}
	s.router = s.initRouter()
	return s
}

// Handler returns the HTTP handler
func (s *Server) Handler() http.Handler {
	return s.router
}

// Start listens on the configured address until Shutdown is called
func (s *Server) Start() error {
	s.http = &http.Server{
		Addr:              net.JoinHostPort(s.cfg.Host, s.cfg.Port),
		Handler:           s.router,
		ReadHeaderTimeout: 10 * time.Second,
	}
	s.logger.Info("server is starting", zap.String("addr", s.http.Addr))
	if err := s.http.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return err
	}
	return nil
}

// Shutdown stops accepting requests and waits for in-flight ones
func (s *Server) Shutdown(ctx context.Context) error {
	if s.http == nil {
		return nil
	}
	return s.http.Shutdown(ctx)
}

func (s *Server) initRouter() *gin.Engine {
	router := gin.New()
	router.Use(ginzap.RecoveryWithZap(s.logger, true))
	router.Use(ginzap.Ginzap(s.logger, time.RFC3339Nano, true))
	router.Use(requestIDMiddleware())
	router.Use(cors.New(s.corsConfig()))
	if s.cfg.Pprof {
		pprof.Register(router)
	}

	router.GET("/healthz", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})

	api := router.Group("/api", permissionCheckMiddleware(s.cfg.APIKey))
	api.POST("/images/generate", s.generateImage)
	api.GET("/images/capabilities/:nodeType", s.imageCapabilities)

	api.POST("/text/generate", s.generateText)

	api.POST("/videos/tasks", s.createVideoTask)
	api.GET("/videos/tasks/:taskId", s.videoTaskStatus)
	api.GET("/videos/tasks/:taskId/content", s.videoContent)
	api.GET("/videos/capabilities/:nodeType", s.videoCapabilities)

	api.GET("/tasks", s.listTasks)
	api.POST("/tasks/cleanup", s.cleanupTasks)
	api.GET("/canvases/:canvasId/nodes/:nodeId/task", s.getTask)
	api.DELETE("/canvases/:canvasId/nodes/:nodeId/task", s.cancelTask)
	api.PUT("/workspace/active", s.setActiveCanvas)
	return router
}

func (s *Server) corsConfig() cors.Config {
	cfg := cors.DefaultConfig()
	cfg.AllowHeaders = append(cfg.AllowHeaders, "API-KEY", requestIDHeader)
	cfg.ExposeHeaders = []string{requestIDHeader}
	if len(s.cfg.AllowedOrigins) == 0 || (len(s.cfg.AllowedOrigins) == 1 && s.cfg.AllowedOrigins[0] == "*") {
		cfg.AllowAllOrigins = true
	} else {
		cfg.AllowOrigins = s.cfg.AllowedOrigins
	}
	return cfg
}

// requestIDMiddleware echoes the caller's request id or assigns a new one
func requestIDMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		id := c.GetHeader(requestIDHeader)
		if id == "" {
			id = uuid.NewString()
		}
		c.Set("requestId", id)
		c.Header(requestIDHeader, id)
		c.Next()
	}
}

func permissionCheckMiddleware(apiKey string) gin.HandlerFunc {
	return func(c *gin.Context) {
		if apiKey != "" && c.GetHeader("API-KEY") != apiKey {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{
				"message": "Invalid API key",
			})
			return
		}
		c.Next()
	}
}
