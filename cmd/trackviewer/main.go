// Command trackviewer consumes diarization tracks events from Kafka and shows
// them live in a browser over WebSocket.
package main

import (
	"context"
	"embed"
	"encoding/json"
	"errors"
	"io/fs"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"github.com/segmentio/kafka-go"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"speaker-diarization-service/internal/models"
)

//go:embed static/*
var staticFiles embed.FS

type options struct {
	port    string
	brokers string
	topic   string
	group   string
}

func main() {
	log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: time.Kitchen})

	var o options
	cmd := &cobra.Command{
		Use:          "trackviewer",
		Short:        "Live view of diarization tracks events",
		SilenceUsage: true,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return run(cmd.Context(), &o)
		},
	}

	flags := cmd.Flags()
	flags.StringVar(&o.port, "port", "8081", "HTTP server port")
	flags.StringVar(&o.brokers, "brokers", "localhost:9092", "Kafka brokers (comma-separated)")
	flags.StringVar(&o.topic, "topic", "diarization.tracks", "tracks topic")
	flags.StringVar(&o.group, "group", "", "consumer group (default: a fresh group per run)")

	if err := cmd.Execute(); err != nil {
		log.Fatal().Err(err).Msg("trackviewer failed")
	}
}

func run(ctx context.Context, o *options) error {
	ctx, stop := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	hub := newHub()
	go hub.run()
	defer hub.Close()

	staticFS, err := fs.Sub(staticFiles, "static")
	if err != nil {
		return err
	}
	r := chi.NewRouter()
	r.Get("/ws", wsHandler(hub))
	r.Handle("/*", http.FileServer(http.FS(staticFS)))

	srv := &http.Server{Addr: ":" + o.port, Handler: r, ReadHeaderTimeout: 10 * time.Second}

	group := o.group
	if group == "" {
		group = "trackviewer-" + uuid.NewString()
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		return consume(gctx, hub, strings.Split(o.brokers, ","), o.topic, group)
	})
	g.Go(func() error {
		log.Info().
			Str("url", "http://localhost:"+o.port).
			Str("brokers", o.brokers).
			Str("topic", o.topic).
			Msg("Track viewer starting")
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	})
	return g.Wait()
}

func consume(ctx context.Context, hub *Hub, brokers []string, topic, group string) error {
	reader := kafka.NewReader(kafka.ReaderConfig{
		Brokers:     brokers,
		Topic:       topic,
		GroupID:     group,
		StartOffset: kafka.LastOffset,
		MinBytes:    1,
		MaxBytes:    10e6,
	})
	defer reader.Close()

	log.Info().Str("topic", topic).Str("group", group).Msg("Consuming tracks events")

	for {
		msg, err := reader.ReadMessage(ctx)
		if err != nil {
			if ctx.Err() != nil {
				return nil
			}
			log.Warn().Err(err).Str("topic", topic).Msg("Kafka read error")
			select {
			case <-ctx.Done():
				return nil
			case <-time.After(time.Second):
			}
			continue
		}

		event, err := decodeEvent(msg)
		if err != nil {
			log.Warn().Err(err).Int64("offset", msg.Offset).Msg("Skipping malformed event")
			continue
		}

		log.Info().
			Str("sessionId", event.SessionID).
			Int64("windowStartMs", event.WindowStartMs).
			Int("tracks", len(event.Tracks)).
			Msg("Received tracks")

		select {
		case hub.broadcast <- event:
		case <-ctx.Done():
			return nil
		}
	}
}

func decodeEvent(msg kafka.Message) (*models.TracksEvent, error) {
	for _, h := range msg.Headers {
		if h.Key == "eventType" && string(h.Value) != models.EventTypeTracks {
			return nil, errors.New("unexpected event type " + string(h.Value))
		}
	}
	var event models.TracksEvent
	if err := json.Unmarshal(msg.Value, &event); err != nil {
		return nil, err
	}
	return &event, nil
}
