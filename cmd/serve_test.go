package main

import (
	"testing"
	"time"

	"speaker-diarization-service/internal/config"
)

func baseConfig() *config.Config {
	cfg := &config.Config{}
	cfg.Service.HTTPHost = "0.0.0.0"
	cfg.Service.HTTPPort = 8080
	cfg.Models.Segmentation = "/env/seg.yaml"
	cfg.Diarize.MaxSpeakers = 4
	cfg.Diarize.Threshold = 0.3
	cfg.Diarize.SessionTTL = 10 * time.Minute
	return cfg
}

func TestApplyFlags_OnlyChangedFlagsOverride(t *testing.T) {
	cmd := newServeCommand()
	if err := cmd.Flags().Parse([]string{"--port", "9000", "--threshold", "0.7"}); err != nil {
		t.Fatalf("parse flags: %v", err)
	}

	cfg := baseConfig()
	var f serveFlags
	f.port = 9000
	f.threshold = 0.7
	applyFlags(cmd, &f, cfg)

	if cfg.Service.HTTPPort != 9000 {
		t.Errorf("expected port 9000, got %d", cfg.Service.HTTPPort)
	}
	if cfg.Diarize.Threshold != 0.7 {
		t.Errorf("expected threshold 0.7, got %v", cfg.Diarize.Threshold)
	}
	if cfg.Service.HTTPHost != "0.0.0.0" {
		t.Errorf("expected host from environment to be kept, got %q", cfg.Service.HTTPHost)
	}
	if cfg.Models.Segmentation != "/env/seg.yaml" {
		t.Errorf("expected segmentation model from environment to be kept, got %q", cfg.Models.Segmentation)
	}
	if cfg.Diarize.MaxSpeakers != 4 {
		t.Errorf("expected max speakers 4, got %d", cfg.Diarize.MaxSpeakers)
	}
	if cfg.Diarize.SessionTTL != 10*time.Minute {
		t.Errorf("expected session TTL 10m, got %v", cfg.Diarize.SessionTTL)
	}
}

func TestApplyFlags_ParsedValues(t *testing.T) {
	cmd := newServeCommand()
	args := []string{
		"--host", "10.0.0.1",
		"--embedding-model", "/opt/emb.yaml",
		"--max-speakers", "3",
		"--session-ttl-sec", "120",
	}
	if err := cmd.Flags().Parse(args); err != nil {
		t.Fatalf("parse flags: %v", err)
	}

	// Read the bound values back through the flag set.
	var f serveFlags
	f.host, _ = cmd.Flags().GetString("host")
	f.embeddingModel, _ = cmd.Flags().GetString("embedding-model")
	f.maxSpeakers, _ = cmd.Flags().GetInt("max-speakers")
	f.sessionTTLSec, _ = cmd.Flags().GetInt("session-ttl-sec")

	cfg := baseConfig()
	applyFlags(cmd, &f, cfg)

	if cfg.Service.HTTPHost != "10.0.0.1" {
		t.Errorf("expected host 10.0.0.1, got %q", cfg.Service.HTTPHost)
	}
	if cfg.Models.Embedding != "/opt/emb.yaml" {
		t.Errorf("expected embedding model /opt/emb.yaml, got %q", cfg.Models.Embedding)
	}
	if cfg.Diarize.MaxSpeakers != 3 {
		t.Errorf("expected max speakers 3, got %d", cfg.Diarize.MaxSpeakers)
	}
	if cfg.Diarize.SessionTTL != 2*time.Minute {
		t.Errorf("expected session TTL 2m, got %v", cfg.Diarize.SessionTTL)
	}
	if cfg.Service.HTTPPort != 8080 {
		t.Errorf("expected port from environment to be kept, got %d", cfg.Service.HTTPPort)
	}
}
