package http

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"

	"github.com/rs/zerolog/hlog"

	"speaker-diarization-service/internal/app"
	"speaker-diarization-service/internal/models"
	"speaker-diarization-service/internal/service/diarize"
)

// Diarizer processes one diarize request.
type Diarizer interface {
	Diarize(ctx context.Context, req *models.DiarizeRequest) (*models.DiarizeResponse, error)
}

// Handler serves the diarization API.
type Handler struct {
	app          *app.Application
	diarizer     Diarizer
	maxBodyBytes int64
}

// NewHandler creates a Handler. Request bodies larger than maxBodyBytes are
// rejected.
func NewHandler(application *app.Application, d Diarizer, maxBodyBytes int64) *Handler {
	return &Handler{
		app:          application,
		diarizer:     d,
		maxBodyBytes: maxBodyBytes,
	}
}

// Health reports liveness together with the loaded model paths.
func (h *Handler) Health(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, models.HealthResponse{
		Status:            "ok",
		UptimeMs:          h.app.Uptime().Milliseconds(),
		SegmentationModel: h.app.Cfg.Models.Segmentation,
		EmbeddingModel:    h.app.Cfg.Models.Embedding,
	})
}

// Diarize decodes a DiarizeRequest and returns its tracks.
func (h *Handler) Diarize(w http.ResponseWriter, r *http.Request) {
	if h.maxBodyBytes > 0 {
		r.Body = http.MaxBytesReader(w, r.Body, h.maxBodyBytes)
	}

	var req models.DiarizeRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			writeError(w, http.StatusBadRequest, fmt.Sprintf("request body exceeds %d bytes", tooLarge.Limit))
			return
		}
		writeError(w, http.StatusBadRequest, fmt.Sprintf("invalid request body: %v", err))
		return
	}

	resp, err := h.diarizer.Diarize(r.Context(), &req)
	if err != nil {
		kind := diarize.KindOf(err)
		detail := err.Error()
		var de *diarize.Error
		if errors.As(err, &de) {
			detail = de.Detail
		}

		ev := hlog.FromRequest(r).Warn()
		if kind == diarize.KindInternal {
			ev = hlog.FromRequest(r).Error()
		}
		ev.Err(err).Str("sessionId", req.SessionID).Str("kind", kind.String()).Msg("Diarize request failed")

		writeError(w, kind.HTTPStatus(), detail)
		return
	}

	writeJSON(w, http.StatusOK, resp)
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, detail string) {
	writeJSON(w, status, models.ErrorResponse{Detail: detail})
}
