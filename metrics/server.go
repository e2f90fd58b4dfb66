package metrics

import (
	"context"
	"errors"
	"log/slog"
	"net"
	"net/http"

	"github.com/Cyprinus12138/otelgin"
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	sloggin "github.com/samber/slog-gin"
	"github.com/spf13/viper"
	cachecontrol "go.eigsys.de/gin-cachecontrol/v2"
	"go.uber.org/fx"
	"umbasa.net/seraph-mounts/logging"
	"umbasa.net/seraph-mounts/tracing"
)

type ServerParams struct {
	fx.In

	Log     *logging.Logger
	Viper   *viper.Viper
	Metrics *Metrics
	Tracing *tracing.Tracing
	Lc      fx.Lifecycle
}

type ServerResult struct {
	fx.Out

	Server *Server
}

// Server exposes /metrics and /healthz. It is disabled when
// metrics.address is empty.
type Server struct {
	log     *slog.Logger
	address string
	engine  *gin.Engine
	server  *http.Server
}

func NewServer(p ServerParams) ServerResult {
	p.Viper.SetDefault("metrics.address", ":9090")

	log := p.Log.GetLogger("metrics")

	gin.SetMode(gin.ReleaseMode)
	engine := gin.New()
	engine.Use(
		gin.Recovery(),
		sloggin.New(log),
		otelgin.Middleware("metrics", otelgin.WithTracerProvider(p.Tracing.TracerProvider)),
		cachecontrol.New(cachecontrol.NoCachePreset),
	)
	engine.GET("/metrics", gin.WrapH(promhttp.HandlerFor(p.Metrics.Registry, promhttp.HandlerOpts{})))
	engine.GET("/healthz", func(ctx *gin.Context) {
		ctx.String(http.StatusOK, "ok")
	})

	server := &Server{
		log:     log,
		address: p.Viper.GetString("metrics.address"),
		engine:  engine,
	}

	p.Lc.Append(fx.StartHook(server.Start))
	p.Lc.Append(fx.StopHook(server.Stop))

	return ServerResult{Server: server}
}

func (s *Server) Handler() http.Handler {
	return s.engine.Handler()
}

func (s *Server) Start() error {
	if s.address == "" {
		return nil
	}
	listener, err := net.Listen("tcp", s.address)
	if err != nil {
		return err
	}
	s.server = &http.Server{
		Handler: s.engine.Handler(),
	}

	go func() {
		err := s.server.Serve(listener)
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			s.log.Error("metrics server failed", "error", err)
		}
	}()

	s.log.Info("HTTP Server listening on " + listener.Addr().String())
	return nil
}

func (s *Server) Stop(ctx context.Context) error {
	if s.server == nil {
		return nil
	}
	err := s.server.Shutdown(ctx)
	s.server = nil
	s.log.Info("HTTP Server closed")
	return err
}
