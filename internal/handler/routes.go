package handler

import (
	"context"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"footprint/internal/hub"
	"footprint/internal/service"
)

// Routes mounts the API and the event stream on a chi router
func Routes(h *ScanHandler, events *hub.Hub) chi.Router {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.Recoverer)
	r.Use(CORS)
	r.Use(RequestLogger(h.logger))

	r.Get("/healthz", h.Healthz)

	r.Route("/api", func(r chi.Router) {
		r.Get("/modules", h.ListModules)

		r.Route("/scans", func(r chi.Router) {
			r.Get("/", h.ListScans)
			r.Post("/", h.CreateScan)

			r.Route("/{id}", func(r chi.Router) {
				r.Get("/", h.GetScan)
				r.Delete("/", h.DeleteScan)
				r.Post("/stop", h.StopScan)
				r.Get("/events", h.ListEvents)
				r.Get("/graph", h.GetGraph)
				r.Get("/tree", h.GetTree)
				r.Get("/config", h.GetConfig)
			})
		})

		if events != nil {
			r.Method(http.MethodGet, "/events/stream", events)
		}
	})
	return r
}

// Forward relays EventBus events to the SSE hub until ctx is done
func Forward(ctx context.Context, bus *service.EventBus, events *hub.Hub) {
	ch := make(chan service.Event, 256)
	bus.Subscribe(ch)
	defer bus.Unsubscribe(ch)

	for {
		select {
		case <-ctx.Done():
			return
		case evt := <-ch:
			events.Broadcast(hub.Message{Scan: evt.ScanID, Name: string(evt.Type), Data: evt})
		}
	}
}
