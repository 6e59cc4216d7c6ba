package www

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"roverd/config"
	"roverd/engine"
	"roverd/store"

	"github.com/go-chi/chi/v5"
	"github.com/gorilla/websocket"
)

func newTestEngine(t *testing.T) *engine.Engine {
	t.Helper()
	db, err := store.Open(filepath.Join(t.TempDir(), "test.db"))
	if err != nil {
		t.Fatalf("open db: %v", err)
	}
	t.Cleanup(func() { db.Close() })

	cfg := config.Defaults()
	cfg.Map.ProviderURL = ""
	cfg.Robot.SimulationSpeed = 50000
	cfg.Web.BroadcastInterval = 50 * time.Millisecond

	eng := engine.New(engine.Config{AppConfig: cfg, DB: db})
	eng.Start()
	t.Cleanup(eng.Stop)
	return eng
}

func newTestServer(t *testing.T) (*httptest.Server, *engine.Engine) {
	t.Helper()
	eng := newTestEngine(t)
	router, stop := NewRouter(eng)
	t.Cleanup(stop)

	srv := httptest.NewServer(router)
	t.Cleanup(srv.Close)
	return srv, eng
}

func postJSON(t *testing.T, url string, body interface{}) *http.Response {
	t.Helper()
	data, err := json.Marshal(body)
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	resp, err := http.Post(url, "application/json", bytes.NewReader(data))
	if err != nil {
		t.Fatalf("post %s: %v", url, err)
	}
	return resp
}

func decodeBody(t *testing.T, resp *http.Response, v interface{}) {
	t.Helper()
	defer resp.Body.Close()
	if err := json.NewDecoder(resp.Body).Decode(v); err != nil {
		t.Fatalf("decode response: %v", err)
	}
}

func TestStartDeliveryEndpoint(t *testing.T) {
	srv, _ := newTestServer(t)

	resp := postJSON(t, srv.URL+"/api/v1/start_delivery", map[string]interface{}{
		"pickup":   map[string]float64{"lat": 12.9716, "lon": 77.5946},
		"delivery": map[string]float64{"lat": 12.9736, "lon": 77.5966},
	})
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status = %d, want 200", resp.StatusCode)
	}

	var body struct {
		Delivery store.Delivery `json:"delivery"`
		Mission  struct {
			DistanceM float64 `json:"distance_m"`
		} `json:"mission"`
	}
	decodeBody(t, resp, &body)
	if body.Delivery.ID == 0 {
		t.Error("delivery id missing")
	}
	if body.Mission.DistanceM <= 0 {
		t.Errorf("mission distance = %f, want > 0", body.Mission.DistanceM)
	}

	// Malformed body is rejected.
	resp, err := http.Post(srv.URL+"/api/v1/start_delivery", "application/json", strings.NewReader("not json"))
	if err != nil {
		t.Fatalf("post: %v", err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusBadRequest {
		t.Errorf("malformed body status = %d, want 400", resp.StatusCode)
	}
}

func TestRobotStatusAndEmergency(t *testing.T) {
	srv, _ := newTestServer(t)

	resp, err := http.Get(srv.URL + "/api/v1/robot_status")
	if err != nil {
		t.Fatalf("get status: %v", err)
	}
	var snap struct {
		RobotID string `json:"robot_id"`
		Mode    string `json:"mode"`
	}
	decodeBody(t, resp, &snap)
	if snap.RobotID == "" || snap.Mode != "idle" {
		t.Errorf("snapshot = %+v, want idle with robot id", snap)
	}

	resp = postJSON(t, srv.URL+"/api/v1/robot/emergency_stop", nil)
	resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("emergency stop status = %d", resp.StatusCode)
	}

	resp, err = http.Get(srv.URL + "/api/v1/robot_status")
	if err != nil {
		t.Fatalf("get status: %v", err)
	}
	decodeBody(t, resp, &snap)
	if snap.Mode != "emergency" {
		t.Errorf("mode = %q, want emergency", snap.Mode)
	}

	resp = postJSON(t, srv.URL+"/api/v1/robot/resume", nil)
	decodeBody(t, resp, &snap)
	if snap.Mode != "transit" {
		t.Errorf("mode after resume = %q, want transit", snap.Mode)
	}
}

func TestDeliveryEndpoints(t *testing.T) {
	srv, _ := newTestServer(t)

	resp, err := http.Get(srv.URL + "/api/v1/deliveries/active")
	if err != nil {
		t.Fatalf("get active: %v", err)
	}
	var list struct {
		Count int `json:"count"`
	}
	decodeBody(t, resp, &list)
	if list.Count != 0 {
		t.Errorf("active count = %d, want 0", list.Count)
	}

	resp, err = http.Get(srv.URL + "/api/v1/deliveries/9999")
	if err != nil {
		t.Fatalf("get missing: %v", err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusNotFound {
		t.Errorf("missing delivery status = %d, want 404", resp.StatusCode)
	}

	resp, err = http.Get(srv.URL + "/api/v1/deliveries/abc")
	if err != nil {
		t.Fatalf("get bad id: %v", err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusBadRequest {
		t.Errorf("bad id status = %d, want 400", resp.StatusCode)
	}
}

func TestRouteCompareEndpoint(t *testing.T) {
	srv, _ := newTestServer(t)

	resp, err := http.Get(srv.URL + "/api/v1/route/compare?from_lat=12.9716&from_lon=77.5946&to_lat=12.9736&to_lon=77.5966")
	if err != nil {
		t.Fatalf("compare: %v", err)
	}
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("compare status = %d, want 200", resp.StatusCode)
	}
	var cmp struct {
		Recommended string `json:"recommended"`
	}
	decodeBody(t, resp, &cmp)
	if cmp.Recommended == "" {
		t.Error("recommendation missing")
	}

	resp, err = http.Get(srv.URL + "/api/v1/route/compare?from_lat=bogus")
	if err != nil {
		t.Fatalf("compare bad params: %v", err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusBadRequest {
		t.Errorf("bad params status = %d, want 400", resp.StatusCode)
	}
}

func TestHealthEndpoint(t *testing.T) {
	srv, _ := newTestServer(t)

	resp, err := http.Get(srv.URL + "/health")
	if err != nil {
		t.Fatalf("health: %v", err)
	}
	var body struct {
		Status  string `json:"status"`
		RobotID string `json:"robot_id"`
	}
	decodeBody(t, resp, &body)
	if body.Status != "ok" || body.RobotID == "" {
		t.Errorf("health = %+v", body)
	}
}

func TestWebSocketProtocol(t *testing.T) {
	srv, eng := newTestServer(t)

	wsURL := "ws" + strings.TrimPrefix(srv.URL, "http") + "/ws/" + eng.AppConfig().RobotID
	conn, _, err := websocket.DefaultDialer.Dial(wsURL, nil)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	defer conn.Close()

	readMsg := func() wsMessage {
		t.Helper()
		conn.SetReadDeadline(time.Now().Add(3 * time.Second))
		var msg wsMessage
		if err := conn.ReadJSON(&msg); err != nil {
			t.Fatalf("read: %v", err)
		}
		return msg
	}

	// Initial state arrives without being asked.
	if msg := readMsg(); msg.Type != "robot_update" {
		t.Fatalf("first message type = %q, want robot_update", msg.Type)
	}

	if err := conn.WriteJSON(wsMessage{Type: "ping"}); err != nil {
		t.Fatalf("write ping: %v", err)
	}
	// The periodic broadcaster interleaves robot_update frames.
	deadline := time.Now().Add(3 * time.Second)
	sawPong := false
	for time.Now().Before(deadline) && !sawPong {
		if msg := readMsg(); msg.Type == "pong" {
			sawPong = true
		}
	}
	if !sawPong {
		t.Fatal("never received pong")
	}

	if err := conn.WriteJSON(wsMessage{Type: "request_state"}); err != nil {
		t.Fatalf("write request_state: %v", err)
	}
	sawState := false
	deadline = time.Now().Add(3 * time.Second)
	for time.Now().Before(deadline) && !sawState {
		if msg := readMsg(); msg.Type == "state_update" {
			sawState = true
		}
	}
	if !sawState {
		t.Fatal("never received state_update")
	}
}

func TestWSHubMembership(t *testing.T) {
	eng := newTestEngine(t)
	hub := NewWSHub(eng, 50*time.Millisecond)
	hub.Start()
	t.Cleanup(hub.Stop)

	r := chi.NewRouter()
	r.Get("/ws/{robotID}", hub.HandleWS)
	srv := httptest.NewServer(r)
	t.Cleanup(srv.Close)

	robotID := eng.AppConfig().RobotID
	wsURL := "ws" + strings.TrimPrefix(srv.URL, "http") + "/ws/" + robotID

	conn1, _, err := websocket.DefaultDialer.Dial(wsURL, nil)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	defer conn1.Close()
	conn2, _, err := websocket.DefaultDialer.Dial(wsURL, nil)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}

	waitForCount := func(want int) {
		t.Helper()
		deadline := time.Now().Add(3 * time.Second)
		for time.Now().Before(deadline) {
			if hub.SubscriberCount(robotID) == want {
				return
			}
			time.Sleep(10 * time.Millisecond)
		}
		t.Fatalf("subscriber count = %d, want %d", hub.SubscriberCount(robotID), want)
	}

	waitForCount(2)
	conn2.Close()
	waitForCount(1)

	if got := hub.SubscriberCount("other-robot"); got != 0 {
		t.Errorf("count for unknown robot = %d, want 0", got)
	}

	// Closing the last connection removes the robot's registry entry entirely.
	conn1.Close()
	waitForCount(0)
	deadline := time.Now().Add(3 * time.Second)
	for time.Now().Before(deadline) {
		hub.mu.RLock()
		_, present := hub.clients[robotID]
		hub.mu.RUnlock()
		if !present {
			return
		}
		time.Sleep(10 * time.Millisecond)
	}
	t.Fatal("registry entry not removed after last disconnect")
}

func TestBroadcastDropsStalledSubscriber(t *testing.T) {
	eng := newTestEngine(t)
	hub := NewWSHub(eng, 20*time.Millisecond)
	hub.Start()
	t.Cleanup(hub.Stop)

	r := chi.NewRouter()
	r.Get("/ws/{robotID}", hub.HandleWS)
	srv := httptest.NewServer(r)
	t.Cleanup(srv.Close)

	robotID := eng.AppConfig().RobotID
	wsURL := "ws" + strings.TrimPrefix(srv.URL, "http") + "/ws/" + robotID

	healthy, _, err := websocket.DefaultDialer.Dial(wsURL, nil)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	defer healthy.Close()

	// A subscriber whose queue is full and never drained: no write pump,
	// capacity exhausted up front.
	spare, _, err := websocket.DefaultDialer.Dial(wsURL, nil)
	if err != nil {
		t.Fatalf("dial spare: %v", err)
	}
	stalled := &wsClient{conn: spare, send: make(chan wsMessage, 1)}
	stalled.send <- wsMessage{}
	hub.register(robotID, stalled)

	// The stalled subscriber is pruned on the next tick instead of
	// holding up the fan-out; closing its conn also tears down the
	// spare's server-side session.
	deadline := time.Now().Add(3 * time.Second)
	for hub.SubscriberCount(robotID) != 1 && time.Now().Before(deadline) {
		time.Sleep(10 * time.Millisecond)
	}
	if got := hub.SubscriberCount(robotID); got != 1 {
		t.Fatalf("subscriber count = %d, want 1 after prune", got)
	}

	// The healthy subscriber keeps receiving updates at the broadcast
	// cadence, not after a write-deadline stall.
	for i := 0; i < 3; i++ {
		healthy.SetReadDeadline(time.Now().Add(time.Second))
		var msg wsMessage
		if err := healthy.ReadJSON(&msg); err != nil {
			t.Fatalf("healthy subscriber starved on frame %d: %v", i, err)
		}
	}
}
