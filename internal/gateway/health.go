package gateway

import (
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/cuemby/itemstored/internal/health"
	"github.com/cuemby/itemstored/internal/metrics"
	"github.com/cuemby/itemstored/internal/store"
)

// HealthServer provides the HTTP /health, /ready, /healthz, and /metrics
// endpoints the server exposes alongside the wire-protocol listener.
type HealthServer struct {
	store     *store.Store
	resources *health.Registry
	mux       *http.ServeMux
}

// NewHealthServer creates a new health check HTTP server. st may be nil
// in tests that only exercise the liveness endpoint; resources may be
// nil when no resource-gateway connectivity probe is wired (/healthz
// then reports healthy with an empty resource list rather than 404ing).
func NewHealthServer(st *store.Store, resources *health.Registry) *HealthServer {
	mux := http.NewServeMux()
	hs := &HealthServer{
		store:     st,
		resources: resources,
		mux:       mux,
	}

	mux.HandleFunc("/health", hs.healthHandler)
	mux.HandleFunc("/ready", hs.readyHandler)
	mux.HandleFunc("/healthz", hs.healthzHandler)
	mux.Handle("/live", metrics.LivenessHandler())
	mux.Handle("/metrics", metrics.Handler())

	return hs
}

// Start starts the health check HTTP server.
func (hs *HealthServer) Start(addr string) error {
	server := &http.Server{
		Addr:         addr,
		Handler:      hs.mux,
		ReadTimeout:  5 * time.Second,
		WriteTimeout: 10 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	return server.ListenAndServe()
}

// HealthResponse is the part of the /health body (status, timestamp,
// version) that clients decode.
type HealthResponse struct {
	Status    string    `json:"status"`
	Timestamp time.Time `json:"timestamp"`
	Version   string    `json:"version,omitempty"`
}

// ReadyResponse is the /ready readiness response.
type ReadyResponse struct {
	Status    string            `json:"status"`
	Timestamp time.Time         `json:"timestamp"`
	Checks    map[string]string `json:"checks"`
	Message   string            `json:"message,omitempty"`
}

// healthHandler implements the /health endpoint, reporting the
// component states registered with internal/metrics during startup.
func (hs *HealthServer) healthHandler(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	health := metrics.GetHealth()
	statusCode := http.StatusOK
	if health.Status == "unhealthy" {
		statusCode = http.StatusServiceUnavailable
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	_ = json.NewEncoder(w).Encode(health)
}

// readyHandler implements the /ready endpoint: checks that the item
// store is open and answering.
func (hs *HealthServer) readyHandler(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	checks := make(map[string]string)
	ready := true
	var message string

	if hs.store != nil {
		if _, err := hs.store.Stats(r.Context()); err != nil {
			checks["store"] = fmt.Sprintf("error: %v", err)
			ready = false
			message = "store not accessible"
		} else {
			checks["store"] = "ok"
		}
	} else {
		checks["store"] = "not initialized"
		ready = false
		message = "store not initialized"
	}

	status := "ready"
	statusCode := http.StatusOK

	if !ready {
		status = "not ready"
		statusCode = http.StatusServiceUnavailable
	}

	response := ReadyResponse{
		Status:    status,
		Timestamp: time.Now(),
		Checks:    checks,
		Message:   message,
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	_ = json.NewEncoder(w).Encode(response)
}

// ResourceHealthResponse is the /healthz response: one entry per
// currently registered resource's gateway connectivity probe.
type ResourceHealthResponse struct {
	Status    string            `json:"status"`
	Timestamp time.Time         `json:"timestamp"`
	Resources map[string]string `json:"resources"`
}

// healthzHandler implements /healthz: the resource-gateway connectivity
// probe, distinct from /ready's local-store check. A
// resource stays healthy until hs.resources' retry threshold is
// exceeded, so one bad dial doesn't flap this endpoint.
func (hs *HealthServer) healthzHandler(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	resources := make(map[string]string)
	healthy := true
	if hs.resources != nil {
		for name, st := range hs.resources.CheckAll(r.Context()) {
			if st.Healthy {
				resources[name] = "ok"
			} else {
				resources[name] = st.LastResult.Message
				healthy = false
			}
		}
	}

	status := "healthy"
	statusCode := http.StatusOK
	if !healthy {
		status = "unhealthy"
		statusCode = http.StatusServiceUnavailable
	}

	response := ResourceHealthResponse{
		Status:    status,
		Timestamp: time.Now(),
		Resources: resources,
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	_ = json.NewEncoder(w).Encode(response)
}

// GetHandler returns the HTTP handler for embedding in other servers.
func (hs *HealthServer) GetHandler() http.Handler {
	return hs.mux
}
