package api

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"

	"github.com/danielgtaylor/huma/v2"
	"github.com/danielgtaylor/huma/v2/adapters/humachi"
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/badhabitcaps/poker-web/domain"
)

// StatsSource reports the relay counters served by /stats and /metrics.
type StatsSource interface {
	Stats() domain.Stats
}

type publishInput struct {
	Body struct {
		Topic   string          `json:"topic" minLength:"1" doc:"Event topic, e.g. comment:new"`
		Payload json.RawMessage `json:"payload,omitempty" doc:"Topic-defined payload, forwarded unchanged"`
	}
}

type publishOutput struct {
	Body struct {
		Topic      string `json:"topic"`
		Recipients int    `json:"recipients"`
	}
}

type healthOutput struct {
	Body struct {
		Status string `json:"status"`
	}
}

type statsOutput struct {
	Body domain.Stats
}

// NewServer returns the relay's HTTP surface: the websocket endpoint at /ws,
// the publish operation for server-side producers, health, stats and
// metrics.
func NewServer(pub domain.Publisher, stats StatsSource, ws http.Handler) http.Handler {
	router := chi.NewMux()
	router.Use(middleware.RequestID)
	router.Use(requestLogger)
	router.Use(middleware.Recoverer)

	cfg := huma.DefaultConfig("Poker Relay API", "1.0.0")
	api := humachi.New(router, cfg)

	router.Handle("/ws", ws)
	router.Get("/metrics", metricsHandler(stats))

	registerHandlers(api, pub, stats)

	return router
}

func registerHandlers(api huma.API, pub domain.Publisher, stats StatsSource) {
	huma.Register(api, huma.Operation{OperationID: "publish-event", Method: http.MethodPost, Path: "/api/v1/events", DefaultStatus: http.StatusAccepted, Summary: "Broadcast an event to every connected client", Tags: []string{"Events"}},
		func(ctx context.Context, input *publishInput) (*publishOutput, error) {
			evt := domain.Event{Topic: input.Body.Topic, Payload: input.Body.Payload}
			n, err := pub.Publish(ctx, evt)
			if err != nil {
				return nil, mapErr(err)
			}
			out := &publishOutput{}
			out.Body.Topic = evt.Topic
			out.Body.Recipients = n
			return out, nil
		})

	huma.Register(api, huma.Operation{OperationID: "health", Method: http.MethodGet, Path: "/health", Summary: "Health check", Tags: []string{"Health"}},
		func(ctx context.Context, input *struct{}) (*healthOutput, error) {
			out := &healthOutput{}
			out.Body.Status = "ok"
			return out, nil
		})

	huma.Register(api, huma.Operation{OperationID: "stats", Method: http.MethodGet, Path: "/stats", Summary: "Relay counters", Tags: []string{"Health"}},
		func(ctx context.Context, input *struct{}) (*statsOutput, error) {
			return &statsOutput{Body: stats.Stats()}, nil
		})
}

func mapErr(err error) error {
	switch {
	case errors.Is(err, domain.ErrMalformedEvent):
		return huma.Error400BadRequest(err.Error())
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		return huma.Error503ServiceUnavailable(err.Error())
	default:
		slog.Error("publish failed", "error", err)
		return huma.Error500InternalServerError(err.Error())
	}
}
