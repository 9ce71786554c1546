// Command diarizeclient posts a WAV file to the diarization service window by
// window under one session and prints the returned tracks.
package main

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"os"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"

	"speaker-diarization-service/internal/models"
)

type options struct {
	audioFile   string
	server      string
	sessionID   string
	windowMs    int64
	threshold   float32
	maxSpeakers int
	realtime    bool
}

func main() {
	log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: time.Kitchen})

	var o options
	cmd := &cobra.Command{
		Use:          "diarizeclient",
		Short:        "Diarize a 16-bit PCM mono WAV file against a running service",
		SilenceUsage: true,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return run(cmd.Context(), &o, cmd.Flags().Changed("threshold"), cmd.Flags().Changed("max-speakers"))
		},
	}

	fs := cmd.Flags()
	fs.StringVar(&o.audioFile, "audio", "testdata/sample-16khz.wav", "path to WAV file (16-bit PCM mono)")
	fs.StringVar(&o.server, "server", "http://127.0.0.1:9705", "diarization service base URL")
	fs.StringVar(&o.sessionID, "session", "", "session id (default: random UUID)")
	fs.Int64Var(&o.windowMs, "window-ms", 5000, "window length in milliseconds")
	fs.Float32Var(&o.threshold, "threshold", 0.52, "similarity threshold sent with each request")
	fs.IntVar(&o.maxSpeakers, "max-speakers", 8, "speaker cap sent with each request")
	fs.BoolVar(&o.realtime, "realtime", false, "pace requests at the audio's real-time rate")

	if err := cmd.Execute(); err != nil {
		log.Fatal().Err(err).Msg("diarizeclient failed")
	}
}

func run(ctx context.Context, o *options, sendThreshold, sendMaxSpeakers bool) error {
	f, err := os.Open(o.audioFile)
	if err != nil {
		return fmt.Errorf("open audio file: %w", err)
	}
	defer f.Close()

	wav, err := readWAV(f)
	if err != nil {
		return err
	}
	log.Info().
		Int("channels", wav.Channels).
		Int("sampleRate", wav.SampleRate).
		Int("bitsPerSample", wav.BitsPerSample).
		Int("bytes", len(wav.Data)).
		Msg("WAV file loaded")
	if wav.Channels != 1 || wav.BitsPerSample != 16 {
		return fmt.Errorf("expected 16-bit mono PCM, got %d-bit %d-channel", wav.BitsPerSample, wav.Channels)
	}

	if o.sessionID == "" {
		o.sessionID = uuid.NewString()
	}
	client := &http.Client{Timeout: 60 * time.Second}
	sampleRate := wav.SampleRate

	for i, w := range splitWindows(wav.Data, sampleRate, o.windowMs) {
		req := models.DiarizeRequest{
			SessionID:  o.sessionID,
			ContentB64: base64.StdEncoding.EncodeToString(w.PCM),
			SampleRate: &sampleRate,
			StartEndMs: []int64{w.StartMs, w.EndMs},
		}
		if sendThreshold {
			req.Threshold = &o.threshold
		}
		if sendMaxSpeakers {
			req.MaxSpeakers = &o.maxSpeakers
		}

		sent := time.Now()
		resp, err := post(ctx, client, o.server+"/diarize", &req)
		if err != nil {
			return fmt.Errorf("window %d [%d,%d]: %w", i, w.StartMs, w.EndMs, err)
		}

		for _, t := range resp.Tracks {
			fmt.Printf("%s\t%8d\t%8d\t%6d ms\n", t.SpeakerID, t.StartMs, t.EndMs, t.DurationMs)
		}
		for _, warning := range resp.Warnings {
			log.Warn().Int("window", i).Str("warning", warning).Msg("Server warning")
		}

		if o.realtime {
			pace := time.Duration(w.EndMs-w.StartMs)*time.Millisecond - time.Since(sent)
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(max(pace, 0)):
			}
		}
	}

	log.Info().Str("session", o.sessionID).Msg("Finished")
	return nil
}

func post(ctx context.Context, client *http.Client, url string, req *models.DiarizeRequest) (*models.DiarizeResponse, error) {
	body, err := json.Marshal(req)
	if err != nil {
		return nil, err
	}
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return nil, err
	}
	httpReq.Header.Set("Content-Type", "application/json")

	httpResp, err := client.Do(httpReq)
	if err != nil {
		return nil, err
	}
	defer httpResp.Body.Close()

	raw, err := io.ReadAll(httpResp.Body)
	if err != nil {
		return nil, err
	}
	if httpResp.StatusCode != http.StatusOK {
		var e models.ErrorResponse
		if json.Unmarshal(raw, &e) == nil && e.Detail != "" {
			return nil, fmt.Errorf("server returned %d: %s", httpResp.StatusCode, e.Detail)
		}
		return nil, fmt.Errorf("server returned %d", httpResp.StatusCode)
	}

	var out models.DiarizeResponse
	if err := json.Unmarshal(raw, &out); err != nil {
		return nil, fmt.Errorf("decode response: %w", err)
	}
	return &out, nil
}
