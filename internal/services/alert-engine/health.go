package alertengine

import (
	"context"
	"encoding/json"
	"net/http"
	"time"

	mqtt "github.com/eclipse/paho.mqtt.golang"
)

// Pinger is the slice of the primary store health probes need.
type Pinger interface {
	Ping(ctx context.Context) error
}

type healthHandler struct {
	mqtt  mqtt.Client
	store Pinger
}

// NewHealthHandler reports liveness: degraded while one dependency is
// down, down when both are.
func NewHealthHandler(m mqtt.Client, store Pinger) http.Handler {
	return &healthHandler{mqtt: m, store: store}
}

func (h *healthHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	type status struct {
		Status        string `json:"status"`
		MQTTConnected bool   `json:"mqtt_connected"`
		StoreOK       bool   `json:"store_ok"`
	}
	ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
	defer cancel()

	st := status{
		MQTTConnected: h.mqtt != nil && h.mqtt.IsConnectionOpen(),
		StoreOK:       h.store != nil && h.store.Ping(ctx) == nil,
	}
	switch {
	case st.MQTTConnected && st.StoreOK:
		st.Status = "ok"
	case st.MQTTConnected || st.StoreOK:
		st.Status = "degraded"
	default:
		st.Status = "down"
	}

	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(st)
}

type readyHandler struct {
	mqtt  mqtt.Client
	store Pinger
}

// NewReadyHandler returns 200 only when every dependency answers.
func NewReadyHandler(m mqtt.Client, store Pinger) http.Handler {
	return &readyHandler{mqtt: m, store: store}
}

func (h *readyHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
	defer cancel()

	ready := h.mqtt != nil && h.mqtt.IsConnectionOpen() &&
		h.store != nil && h.store.Ping(ctx) == nil
	w.Header().Set("Content-Type", "application/json")
	if !ready {
		w.WriteHeader(http.StatusServiceUnavailable)
	}
	_ = json.NewEncoder(w).Encode(struct {
		Ready bool `json:"ready"`
	}{Ready: ready})
}
