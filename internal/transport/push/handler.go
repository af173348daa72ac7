// Package push exposes the Pub/Sub push-subscription endpoint. It owns only
// envelope decoding and outcome-to-status translation; everything between
// raw bytes and sink delivery belongs to the engine.
package push

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/ttauveron/gcp-iam-watcher/internal/engine"
	"github.com/ttauveron/gcp-iam-watcher/internal/platform/config"
)

const maxBodyBytes = 10 << 20 // Pub/Sub caps messages at 10MB

// Processor is the engine boundary the transport depends on.
type Processor interface {
	Process(ctx context.Context, raw []byte) engine.Outcome
}

// Handler serves one push subscription.
type Handler struct {
	processor Processor
	log       *slog.Logger
}

func NewHandler(processor Processor, log *slog.Logger) *Handler {
	return &Handler{processor: processor, log: log}
}

// NewRouter wires the push endpoint plus health and metrics. When an auth
// secret is configured the push route requires a signed bearer token.
func NewRouter(h *Handler, push config.PushConfig, log *slog.Logger) http.Handler {
	r := chi.NewRouter()

	r.Get("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
	})
	r.Handle("/metrics", promhttp.Handler())

	r.Group(func(r chi.Router) {
		if push.AuthSecret != "" {
			r.Use(RequireToken(push, log))
		}
		r.Post("/push", h.HandlePush)
	})

	return r
}

type pushEnvelope struct {
	Message struct {
		Data        string `json:"data"`
		MessageID   string `json:"messageId"`
		PublishTime string `json:"publishTime"`
	} `json:"message"`
	Subscription string `json:"subscription"`
}

// HandlePush decodes the push envelope and maps the processing outcome onto
// Pub/Sub ack semantics: 2xx acknowledges, 5xx triggers redelivery.
func (h *Handler) HandlePush(w http.ResponseWriter, r *http.Request) {
	body, err := io.ReadAll(io.LimitReader(r.Body, maxBodyBytes))
	if err != nil {
		h.log.Warn("failed to read push body", "error", err)
		w.WriteHeader(http.StatusBadRequest)
		return
	}

	var env pushEnvelope
	if err := json.Unmarshal(body, &env); err != nil {
		h.log.Warn("malformed push envelope", "error", err)
		w.WriteHeader(http.StatusBadRequest)
		return
	}

	raw, err := base64.StdEncoding.DecodeString(env.Message.Data)
	if err != nil {
		// Unparsable input: acknowledge and drop, redelivery cannot fix it.
		h.log.Warn("push message data is not valid base64, ignoring",
			"message_id", env.Message.MessageID, "error", err)
		w.WriteHeader(http.StatusOK)
		return
	}

	ctx := r.Context()
	switch h.processor.Process(ctx, raw) {
	case engine.OutcomeProcessed:
		w.WriteHeader(http.StatusNoContent)
	case engine.OutcomeDropped:
		w.WriteHeader(http.StatusOK)
	case engine.OutcomeTransientFailure:
		w.WriteHeader(http.StatusInternalServerError)
	}
}
