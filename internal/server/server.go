package server

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	chargedomain "github.com/smallbiznis/dongi/internal/charge/domain"
	"github.com/smallbiznis/dongi/internal/config"
	eventdomain "github.com/smallbiznis/dongi/internal/event/domain"
	obslogger "github.com/smallbiznis/dongi/internal/observability/logger"
	obsmetrics "github.com/smallbiznis/dongi/internal/observability/metrics"
	obstracing "github.com/smallbiznis/dongi/internal/observability/tracing"
	selectiondomain "github.com/smallbiznis/dongi/internal/selection/domain"
	"go.uber.org/fx"
	"go.uber.org/zap"
)

var Module = fx.Module("http.server",
	fx.Provide(NewEngine),
	fx.Provide(NewServer),
	fx.Invoke(run),
)

func NewEngine(cfg config.Config, registry *prometheus.Registry, httpMetrics *obsmetrics.HTTPMetrics) *gin.Engine {
	if cfg.IsProduction() {
		gin.SetMode(gin.ReleaseMode)
	}

	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(obslogger.GinMiddleware(obslogger.MiddlewareConfig{
		ErrorClassifier: classifyErrorForLog,
	}))
	r.Use(obstracing.GinMiddleware())
	r.Use(httpMetrics.GinMiddleware())
	r.Use(ErrorHandlingMiddleware())

	r.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})
	if registry != nil {
		r.GET("/metrics", gin.WrapH(promhttp.HandlerFor(registry, promhttp.HandlerOpts{Registry: registry})))
	}

	return r
}

type Server struct {
	engine       *gin.Engine
	chargeSvc    chargedomain.Service
	eventSvc     eventdomain.Service
	selectionSvc selectiondomain.Service
}

type ServerParams struct {
	fx.In

	Gin          *gin.Engine
	ChargeSvc    chargedomain.Service
	EventSvc     eventdomain.Service
	SelectionSvc selectiondomain.Service
}

func NewServer(p ServerParams) *Server {
	s := &Server{
		engine:       p.Gin,
		chargeSvc:    p.ChargeSvc,
		eventSvc:     p.EventSvc,
		selectionSvc: p.SelectionSvc,
	}

	s.registerAdminRoutes()
	s.registerSelectionRoutes()
	return s
}

func (s *Server) Engine() *gin.Engine {
	return s.engine
}

func (s *Server) registerAdminRoutes() {
	admin := s.engine.Group("/api/v1/admin/events/:eventId")

	admin.GET("", s.GetEvent)
	admin.GET("/charges-preview", s.PreviewCharges)
	admin.GET("/charges", s.ListCharges)
	admin.POST("/transition", s.TransitionEvent)
	admin.POST("/state", s.SetEventState)
}

func (s *Server) registerSelectionRoutes() {
	api := s.engine.Group("/api/v1", ActorFromHeader())

	api.POST("/events/:eventId/selections", s.CreateSelection)
	api.PATCH("/selections/:selectionId", s.UpdateSelection)
	api.DELETE("/selections/:selectionId", s.DeleteSelection)
}

func run(lc fx.Lifecycle, cfg config.Config, s *Server, log *zap.Logger, shutdowner fx.Shutdowner) {
	srv := &http.Server{
		Addr:              fmt.Sprintf(":%d", cfg.HTTPPort),
		Handler:           s.Engine(),
		ReadHeaderTimeout: 10 * time.Second,
	}
	log = log.Named("http.server")

	lc.Append(fx.Hook{
		OnStart: func(ctx context.Context) error {
			ln, err := net.Listen("tcp", srv.Addr)
			if err != nil {
				return err
			}
			log.Info("http server listening", zap.String("addr", srv.Addr))
			go func() {
				if err := srv.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
					log.Error("http server stopped", zap.Error(err))
					_ = shutdowner.Shutdown(fx.ExitCode(1))
				}
			}()
			return nil
		},
		OnStop: func(ctx context.Context) error {
			shutdownCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
			defer cancel()
			return srv.Shutdown(shutdownCtx)
		},
	})
}
