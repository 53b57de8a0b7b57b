// Package server exposes RepoPal's single HTTP surface: one webhook
// endpoint per supported provider, each handed off to the pipeline
// orchestrator in a detached goroutine so the provider's own delivery
// timeout never blocks on a full invocation.
package server

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"net"
	"net/http"

	"github.com/rakunlabs/ada"
	mlog "github.com/rakunlabs/ada/middleware/log"
	mrecover "github.com/rakunlabs/ada/middleware/recover"
	mrequestid "github.com/rakunlabs/ada/middleware/requestid"
	"github.com/rakunlabs/logi"

	"github.com/repopal/repopal/internal/config"
	"github.com/repopal/repopal/internal/event"
	"github.com/repopal/repopal/internal/pipeline"
	"github.com/repopal/repopal/internal/provider"
)

// Server is RepoPal's HTTP entrypoint.
type Server struct {
	config config.Server

	server *ada.Server

	providers    *provider.Registry
	orchestrator *pipeline.Orchestrator
}

// New builds the webhook HTTP surface. providers resolves the incoming
// path segment to an Adapter for signature validation and normalization;
// orchestrator runs C2 through C6 for every validated event.
func New(cfg config.Server, providers *provider.Registry, orchestrator *pipeline.Orchestrator) *Server {
	mux := ada.New()
	mux.Use(
		mrecover.Middleware(),
		mrequestid.Middleware(),
		mlog.Middleware(),
	)

	s := &Server{
		config:       cfg,
		server:       mux,
		providers:    providers,
		orchestrator: orchestrator,
	}

	apiGroup := mux.Group("/api")
	apiGroup.POST("/webhooks/*", s.WebhookAPI)

	return s
}

// Start runs the HTTP server until ctx is cancelled.
func (s *Server) Start(ctx context.Context) error {
	return s.server.StartWithContext(ctx, net.JoinHostPort(s.config.Host, s.config.Port))
}

// WebhookAPI handles POST /api/webhooks/{provider}. The provider
// segment must name one of the closed enumeration {github, slack,
// linear}; anything else is a 400.
func (s *Server) WebhookAPI(w http.ResponseWriter, r *http.Request) {
	providerName := event.Provider(r.PathValue("*"))

	adapter, err := s.providers.Lookup(providerName)
	if err != nil {
		httpResponse(w, fmt.Sprintf("unsupported provider %q", providerName), http.StatusBadRequest)
		return
	}

	// Buffer the request body before responding, since r.Body is closed
	// once the handler returns and validation/normalization both need
	// the raw, unserialized bytes (P2, P3).
	bodyBytes, err := io.ReadAll(r.Body)
	if err != nil {
		httpResponse(w, "failed to read request body", http.StatusBadRequest)
		return
	}

	if !adapter.Validate(r.Header, bodyBytes) {
		httpResponse(w, "invalid signature", http.StatusUnauthorized)
		return
	}

	ev, err := adapter.Normalize(bodyBytes)
	if err != nil {
		httpResponse(w, fmt.Sprintf("could not normalize payload: %v", err), http.StatusBadRequest)
		return
	}
	ev.Provider = providerName

	// The pipeline run outlives this request; use a background context
	// carrying the structured logging fields so request-scoped
	// cancellation never kills an in-flight invocation.
	requestID := r.Header.Get(mrequestid.HeaderXRequestID)
	runCtx := logi.WithContext(context.Background(), slog.With(
		slog.String("provider", string(providerName)),
		slog.String("event_kind", string(ev.Kind)),
		slog.String("request_id", requestID),
	))

	go func() {
		if err := s.orchestrator.Run(runCtx, ev); err != nil {
			logi.Ctx(runCtx).Error("webhook: pipeline run failed", "error", err)
			return
		}
		logi.Ctx(runCtx).Info("webhook: pipeline run completed")
	}()

	httpResponseJSON(w, ev, http.StatusOK)
}
