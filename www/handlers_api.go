package www

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"

	"roverd/geo"
	"roverd/mission"
	"roverd/routing"

	"github.com/go-chi/chi/v5"
)

func writeJSON(w http.ResponseWriter, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(map[string]string{"error": msg})
}

func parseID(r *http.Request, param string) (int64, error) {
	s := chi.URLParam(r, param)
	return strconv.ParseInt(s, 10, 64)
}

func parseCoord(r *http.Request, param string) (float64, error) {
	return strconv.ParseFloat(r.URL.Query().Get(param), 64)
}

// --- Robot Operations ---

func (h *Handlers) apiStartDelivery(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Pickup   geo.Point `json:"pickup"`
		Delivery geo.Point `json:"delivery"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	delivery, result, err := h.engine.StartDelivery(r.Context(), req.Pickup, req.Delivery)
	switch {
	case errors.Is(err, mission.ErrValidation):
		writeError(w, http.StatusBadRequest, err.Error())
		return
	case errors.Is(err, mission.ErrInsufficientBattery):
		writeError(w, http.StatusConflict, err.Error())
		return
	case err != nil:
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}

	writeJSON(w, map[string]interface{}{
		"delivery": delivery,
		"mission":  result,
	})
}

func (h *Handlers) apiRobotStatus(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, h.engine.Controller().GetState())
}

func (h *Handlers) apiEmergencyStop(w http.ResponseWriter, r *http.Request) {
	h.engine.Controller().EmergencyStop()
	writeJSON(w, map[string]string{"status": "stopped"})
}

func (h *Handlers) apiResume(w http.ResponseWriter, r *http.Request) {
	h.engine.Controller().Resume()
	writeJSON(w, h.engine.Controller().GetState())
}

// --- Deliveries ---

func (h *Handlers) apiActiveDeliveries(w http.ResponseWriter, r *http.Request) {
	deliveries, err := h.engine.DB().ListActiveDeliveries()
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	writeJSON(w, map[string]interface{}{"deliveries": deliveries, "count": len(deliveries)})
}

func (h *Handlers) apiDeliveryHistory(w http.ResponseWriter, r *http.Request) {
	limit, _ := strconv.Atoi(r.URL.Query().Get("limit"))
	deliveries, err := h.engine.DB().ListDeliveryHistory(limit)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	writeJSON(w, map[string]interface{}{"deliveries": deliveries, "count": len(deliveries)})
}

func (h *Handlers) apiGetDelivery(w http.ResponseWriter, r *http.Request) {
	id, err := parseID(r, "id")
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid delivery ID")
		return
	}
	delivery, err := h.engine.DB().GetDelivery(id)
	if err != nil {
		writeError(w, http.StatusNotFound, "delivery not found")
		return
	}
	writeJSON(w, delivery)
}

func (h *Handlers) apiDeliveryPath(w http.ResponseWriter, r *http.Request) {
	id, err := parseID(r, "id")
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid delivery ID")
		return
	}
	points, err := h.engine.DB().ListPathHistory(id)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	writeJSON(w, map[string]interface{}{"delivery_id": id, "points": points, "count": len(points)})
}

// --- Routing ---

func (h *Handlers) apiRouteCompare(w http.ResponseWriter, r *http.Request) {
	fromLat, err1 := parseCoord(r, "from_lat")
	fromLon, err2 := parseCoord(r, "from_lon")
	toLat, err3 := parseCoord(r, "to_lat")
	toLon, err4 := parseCoord(r, "to_lon")
	if err1 != nil || err2 != nil || err3 != nil || err4 != nil {
		writeError(w, http.StatusBadRequest, "from_lat, from_lon, to_lat, to_lon are required")
		return
	}

	origin := geo.Point{Lat: fromLat, Lon: fromLon}
	dest := geo.Point{Lat: toLat, Lon: toLon}
	graph := h.engine.Roads().Fetch(r.Context(), origin, h.engine.AppConfig().Map.RadiusM)

	cmp, err := h.engine.Router().Compare(graph, origin, dest)
	if errors.Is(err, routing.ErrNoPathFound) {
		writeError(w, http.StatusNotFound, err.Error())
		return
	}
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	writeJSON(w, cmp)
}

// --- Health ---

func (h *Handlers) apiHealth(w http.ResponseWriter, r *http.Request) {
	snap := h.engine.Controller().GetState()
	writeJSON(w, map[string]interface{}{
		"status":   "ok",
		"robot_id": snap.RobotID,
		"mode":     snap.Mode,
		"battery":  snap.BatteryPercentage,
	})
}
