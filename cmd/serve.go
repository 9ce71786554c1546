package main

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"speaker-diarization-service/internal/acoustic/cluster"
	"speaker-diarization-service/internal/acoustic/energy"
	"speaker-diarization-service/internal/acoustic/fbank"
	grpcapi "speaker-diarization-service/internal/api/grpc"
	"speaker-diarization-service/internal/app"
	"speaker-diarization-service/internal/config"
	"speaker-diarization-service/internal/events"
	httpapi "speaker-diarization-service/internal/http"
	"speaker-diarization-service/internal/observability"
	"speaker-diarization-service/internal/observability/metrics"
	"speaker-diarization-service/internal/service/diarize"
	"speaker-diarization-service/internal/service/session"
	"speaker-diarization-service/internal/service/speaker"
)

type serveFlags struct {
	host              string
	port              int
	segmentationModel string
	embeddingModel    string
	maxSpeakers       int
	threshold         float32
	sessionTTLSec     int
}

func newServeCommand() *cobra.Command {
	var f serveFlags
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Serve the diarization HTTP API",
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg := config.Load()
			applyFlags(cmd, &f, cfg)
			return serve(cmd.Context(), cfg)
		},
	}

	fs := cmd.Flags()
	fs.StringVar(&f.host, "host", "127.0.0.1", "listen host (overrides HTTP_HOST)")
	fs.IntVar(&f.port, "port", 9705, "listen port (overrides HTTP_PORT)")
	fs.StringVar(&f.segmentationModel, "segmentation-model", "", "segmentation model file (default <binary dir>/models/segmentation.yaml)")
	fs.StringVar(&f.embeddingModel, "embedding-model", "", "embedding model file (default <binary dir>/models/embedding.yaml)")
	fs.IntVar(&f.maxSpeakers, "max-speakers", 8, "default speaker cap per session")
	fs.Float32Var(&f.threshold, "threshold", 0.52, "default similarity threshold in [0,1]")
	fs.IntVar(&f.sessionTTLSec, "session-ttl-sec", 3600, "idle session time-to-live in seconds (minimum 60)")
	return cmd
}

// applyFlags overlays explicitly set flags on the environment configuration.
func applyFlags(cmd *cobra.Command, f *serveFlags, cfg *config.Config) {
	fs := cmd.Flags()
	if fs.Changed("host") {
		cfg.Service.HTTPHost = f.host
	}
	if fs.Changed("port") {
		cfg.Service.HTTPPort = f.port
	}
	if fs.Changed("segmentation-model") {
		cfg.Models.Segmentation = f.segmentationModel
	}
	if fs.Changed("embedding-model") {
		cfg.Models.Embedding = f.embeddingModel
	}
	if fs.Changed("max-speakers") {
		cfg.Diarize.MaxSpeakers = f.maxSpeakers
	}
	if fs.Changed("threshold") {
		cfg.Diarize.Threshold = f.threshold
	}
	if fs.Changed("session-ttl-sec") {
		cfg.Diarize.SessionTTL = time.Duration(f.sessionTTLSec) * time.Second
	}
}

func serve(ctx context.Context, cfg *config.Config) error {
	exe, err := os.Executable()
	if err != nil {
		return fmt.Errorf("locate executable: %w", err)
	}
	cfg.ResolveModelPaths(filepath.Dir(exe))
	cfg.Normalize()
	if err := cfg.Validate(); err != nil {
		return fmt.Errorf("invalid configuration: %w", err)
	}

	application := app.New(cfg)
	m := metrics.DefaultMetrics

	segmenter, err := energy.Load(cfg.Models.Segmentation)
	if err != nil {
		return fmt.Errorf("load segmentation model: %w", err)
	}
	extractor, err := fbank.Load(cfg.Models.Embedding)
	if err != nil {
		return fmt.Errorf("load embedding model: %w", err)
	}

	store := session.New(cfg.Diarize.SessionTTL, cluster.Factory, session.WithMetrics(m))
	resolver := speaker.NewResolver(extractor, store, m)

	publisher := events.New(&events.Config{
		Enabled:   cfg.Kafka.Enabled,
		Brokers:   cfg.Kafka.Brokers,
		Topic:     cfg.Kafka.Topic,
		Principal: cfg.Kafka.Principal,
	}, m)
	defer publisher.Close()

	orch := diarize.New(segmenter, resolver,
		diarize.Defaults{MaxSpeakers: cfg.Diarize.MaxSpeakers, Threshold: cfg.Diarize.Threshold},
		diarize.WithMetrics(m),
		diarize.WithPublisher(publisher, cfg.Kafka.PublishTimeout),
	)

	httpServer := &http.Server{
		Addr:              cfg.HTTPAddr(),
		Handler:           httpapi.NewRouter(application, httpapi.NewHandler(application, orch, cfg.Service.MaxBodyBytes)),
		ReadHeaderTimeout: 10 * time.Second,
	}
	httpLis, err := net.Listen("tcp", httpServer.Addr)
	if err != nil {
		return fmt.Errorf("listen %s: %w", httpServer.Addr, err)
	}

	var grpcServer *grpcapi.Server
	var grpcLis net.Listener
	if cfg.Service.GRPCPort != "" {
		grpcLis, err = net.Listen("tcp", ":"+cfg.Service.GRPCPort)
		if err != nil {
			_ = httpLis.Close()
			return fmt.Errorf("listen grpc :%s: %w", cfg.Service.GRPCPort, err)
		}
		grpcServer = grpcapi.New(m)
	}

	var obsServer *observability.Server
	if cfg.Service.MetricsPort != "" {
		obsServer = observability.NewServer(":"+cfg.Service.MetricsPort, prometheus.DefaultGatherer, application.Ready)
	}

	ctx, stop := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer stop()
	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		log.Info().
			Str("addr", httpLis.Addr().String()).
			Str("segmentationModel", cfg.Models.Segmentation).
			Str("embeddingModel", cfg.Models.Embedding).
			Int("maxSpeakers", cfg.Diarize.MaxSpeakers).
			Float32("threshold", cfg.Diarize.Threshold).
			Dur("sessionTTL", store.TTL()).
			Msg("Speaker diarization service listening")
		if err := httpServer.Serve(httpLis); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("http server: %w", err)
		}
		return nil
	})
	if grpcServer != nil {
		g.Go(func() error { return grpcServer.Serve(grpcLis) })
	}
	if obsServer != nil {
		g.Go(obsServer.Serve)
	}

	g.Go(func() error {
		<-gctx.Done()
		application.Shutdown()
		if grpcServer != nil {
			grpcServer.SetServing(false)
		}

		shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(gctx), cfg.Service.ShutdownTimeout)
		defer cancel()

		if err := httpServer.Shutdown(shutdownCtx); err != nil {
			log.Warn().Err(err).Msg("HTTP server did not drain in time")
		}
		if grpcServer != nil {
			grpcServer.Shutdown(shutdownCtx)
		}
		if obsServer != nil {
			if err := obsServer.Shutdown(shutdownCtx); err != nil {
				log.Warn().Err(err).Msg("Observability server shutdown error")
			}
		}
		return nil
	})

	if err := application.Start(); err != nil {
		stop()
		return errors.Join(err, g.Wait())
	}
	if grpcServer != nil {
		grpcServer.SetServing(true)
	}

	return g.Wait()
}
