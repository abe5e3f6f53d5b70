// Package hook is the HTTP transport agents push lifecycle events to. It
// validates the wire contract and hands accepted events to the orchestrator;
// everything past the transport boundary is best-effort.
package hook

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/oklog/ulid/v2"
	"github.com/rs/cors"
	"golang.org/x/net/http2"
	"golang.org/x/net/http2/h2c"

	"github.com/kazz187/chatbridge/internal/bridge"
	"github.com/kazz187/chatbridge/internal/push"
	"github.com/kazz187/chatbridge/internal/registry"
	"github.com/kazz187/chatbridge/pkg/cerr"
	"github.com/kazz187/chatbridge/pkg/clog"
)

// Pipeline is the orchestrator surface the transport forwards into.
type Pipeline interface {
	HandleEvent(ctx context.Context, ev bridge.Event)
}

type Server struct {
	pipeline Pipeline
	registry *registry.Service
	subs     push.Repository
}

func NewServer(pipeline Pipeline, reg *registry.Service, subs push.Repository) *Server {
	return &Server{pipeline: pipeline, registry: reg, subs: subs}
}

// Handler builds the chi router with logging, error extraction and CORS.
func (s *Server) Handler() http.Handler {
	r := chi.NewRouter()
	r.Use(clog.SlogChiMiddleware())
	r.Use(cerr.NewJSONResponseChiMiddleware())
	r.Post("/hooks/event", s.handleEvent)
	r.Post("/push/subscriptions", s.handleRegisterSubscription)
	r.Get("/healthz", func(w http.ResponseWriter, r *http.Request) {
		cerr.SetJSONResponse(r.Context(), http.StatusOK, map[string]string{"status": "ok"})
	})

	c := cors.New(cors.Options{
		AllowedOrigins: []string{"*"},
		AllowedMethods: []string{http.MethodGet, http.MethodPost},
		AllowedHeaders: []string{"Content-Type"},
	})
	return h2c.NewHandler(c.Handler(r), &http2.Server{})
}

type acceptedBody struct {
	Accepted bool `json:"accepted"`
}

func (s *Server) handleEvent(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	body, err := io.ReadAll(io.LimitReader(r.Body, 1<<20))
	if err != nil {
		cerr.SetNewJSONError(ctx, cerr.InvalidArgument, "invalid request body", err)
		return
	}

	// The payload must be a single JSON object; anything else is rejected at
	// the transport so no state is mutated.
	var raw json.RawMessage
	if err := json.Unmarshal(body, &raw); err != nil {
		cerr.SetNewJSONError(ctx, cerr.InvalidArgument, "invalid request body", err)
		return
	}
	var fields map[string]json.RawMessage
	if err := json.Unmarshal(raw, &fields); err != nil {
		cerr.SetNewJSONError(ctx, cerr.InvalidArgument, "invalid event", err)
		return
	}

	var ev bridge.Event
	if err := json.Unmarshal(raw, &ev); err != nil {
		cerr.SetNewJSONError(ctx, cerr.InvalidArgument, "invalid event", err)
		return
	}
	if ev.ProjectName == "" {
		cerr.SetNewJSONError(ctx, cerr.InvalidArgument, "projectName is required", nil)
		return
	}
	if ev.Type == "" {
		cerr.SetNewJSONError(ctx, cerr.InvalidArgument, "type is required", nil)
		return
	}
	if _, ok := s.registry.Get(ev.ProjectName); !ok {
		cerr.SetNewJSONError(ctx, cerr.NotFound, "unknown project", errors.New(ev.ProjectName))
		return
	}

	clog.AddAttributes(ctx, map[string]any{
		"project":    ev.ProjectName,
		"event_type": ev.Type,
	})
	s.pipeline.HandleEvent(ctx, ev)
	cerr.SetJSONResponse(ctx, http.StatusAccepted, acceptedBody{Accepted: true})
}

type subscriptionRequest struct {
	Endpoint  string `json:"endpoint"`
	P256dhKey string `json:"p256dh_key"`
	AuthKey   string `json:"auth_key"`
}

type subscriptionBody struct {
	ID string `json:"id"`
}

// handleRegisterSubscription registers an operator browser for web-push
// delivery. Re-registering an existing endpoint updates its keys in place.
func (s *Server) handleRegisterSubscription(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	var req subscriptionRequest
	if err := json.NewDecoder(io.LimitReader(r.Body, 1<<20)).Decode(&req); err != nil {
		cerr.SetNewJSONError(ctx, cerr.InvalidArgument, "invalid request body", err)
		return
	}
	if req.Endpoint == "" {
		cerr.SetNewJSONError(ctx, cerr.InvalidArgument, "endpoint is required", nil)
		return
	}
	if req.P256dhKey == "" {
		cerr.SetNewJSONError(ctx, cerr.InvalidArgument, "p256dh_key is required", nil)
		return
	}
	if req.AuthKey == "" {
		cerr.SetNewJSONError(ctx, cerr.InvalidArgument, "auth_key is required", nil)
		return
	}

	id := ulid.Make().String()
	if existing, err := s.subs.List(ctx); err == nil {
		for _, sub := range existing {
			if sub.Endpoint == req.Endpoint {
				id = sub.ID
				break
			}
		}
	}
	sub := &push.Subscription{
		ID:        id,
		Endpoint:  req.Endpoint,
		P256dhKey: req.P256dhKey,
		AuthKey:   req.AuthKey,
	}
	if err := s.subs.Upsert(ctx, sub); err != nil {
		cerr.SetNewJSONError(ctx, cerr.Internal, "failed to save subscription", err)
		return
	}
	cerr.SetJSONResponse(ctx, http.StatusCreated, subscriptionBody{ID: id})
}
