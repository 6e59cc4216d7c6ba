package www

import (
	"net/http"

	"roverd/engine"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
)

// Handlers holds dependencies for HTTP handlers.
type Handlers struct {
	engine   *engine.Engine
	eventHub *EventHub
	wsHub    *WSHub
}

// NewRouter creates the chi router and returns it along with a stop function.
func NewRouter(eng *engine.Engine) (http.Handler, func()) {
	h := &Handlers{
		engine:   eng,
		eventHub: NewEventHub(),
		wsHub:    NewWSHub(eng, eng.AppConfig().Web.BroadcastInterval),
	}

	h.eventHub.Start()
	h.eventHub.SetupEngineListeners(eng)
	h.wsHub.Start()

	r := chi.NewRouter()
	r.Use(middleware.Recoverer)

	r.Get("/health", h.apiHealth)

	// Live feeds
	r.Get("/events", h.eventHub.HandleSSE)
	r.Get("/ws/{robotID}", h.wsHub.HandleWS)

	r.Route("/api/v1", func(r chi.Router) {
		r.Post("/start_delivery", h.apiStartDelivery)
		r.Get("/robot_status", h.apiRobotStatus)
		r.Post("/robot/emergency_stop", h.apiEmergencyStop)
		r.Post("/robot/resume", h.apiResume)

		r.Get("/deliveries/active", h.apiActiveDeliveries)
		r.Get("/deliveries/history", h.apiDeliveryHistory)
		r.Get("/deliveries/{id}", h.apiGetDelivery)
		r.Get("/deliveries/{id}/path", h.apiDeliveryPath)

		r.Get("/route/compare", h.apiRouteCompare)
	})

	return r, func() {
		h.wsHub.Stop()
		h.eventHub.Stop()
	}
}
