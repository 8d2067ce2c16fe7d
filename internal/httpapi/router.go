// Package httpapi serves the sensor states, diagnostics and Prometheus
// metrics over plain HTTP.
package httpapi

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"

	"github.com/gorilla/handlers"
	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/sirupsen/logrus"

	"github.com/tejusbharadwaj/apavital/internal/api"
	"github.com/tejusbharadwaj/apavital/internal/coordinator"
	"github.com/tejusbharadwaj/apavital/internal/models"
	"github.com/tejusbharadwaj/apavital/internal/sensors"
)

const maxTokenBody = 8 << 10

// Service is the part of coordinator.Coordinator the HTTP surface needs.
type Service interface {
	Snapshot() (*models.Snapshot, bool)
	AuthFailed() bool
	UpdateToken(ctx context.Context, token string) error
	Diagnostics() coordinator.Diagnostics
}

type handler struct {
	svc    Service
	logger *logrus.Logger
}

func NewRouter(svc Service, gatherer prometheus.Gatherer, logger *logrus.Logger) *mux.Router {
	h := &handler{svc: svc, logger: logger}
	r := mux.NewRouter()

	r.HandleFunc("/healthz", h.health).Methods(http.MethodGet)
	r.Handle("/metrics", promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{})).Methods(http.MethodGet)

	apiRouter := r.PathPrefix("/api").Subrouter()
	apiRouter.HandleFunc("/sensors", h.listSensors).Methods(http.MethodGet)
	apiRouter.HandleFunc("/sensors/{key}", h.getSensor).Methods(http.MethodGet)
	apiRouter.HandleFunc("/diagnostics", h.diagnostics).Methods(http.MethodGet)
	apiRouter.HandleFunc("/token", h.updateToken).Methods(http.MethodPut)

	return r
}

// Wrap adds panic recovery and combined access logging to next.
func Wrap(next http.Handler, accessLog io.Writer, logger *logrus.Logger) http.Handler {
	recovered := handlers.RecoveryHandler(
		handlers.RecoveryLogger(logger),
		handlers.PrintRecoveryStack(false),
	)(next)
	return handlers.CombinedLoggingHandler(accessLog, recovered)
}

func (h *handler) health(w http.ResponseWriter, r *http.Request) {
	if h.svc.AuthFailed() {
		h.writeJSON(w, http.StatusServiceUnavailable, map[string]string{"status": "auth_expired"})
		return
	}
	h.writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (h *handler) listSensors(w http.ResponseWriter, r *http.Request) {
	h.writeJSON(w, http.StatusOK, sensors.States(h.svc))
}

func (h *handler) getSensor(w http.ResponseWriter, r *http.Request) {
	st, err := sensors.StateOf(h.svc, mux.Vars(r)["key"])
	if err != nil {
		h.writeError(w, err)
		return
	}
	h.writeJSON(w, http.StatusOK, st)
}

func (h *handler) diagnostics(w http.ResponseWriter, r *http.Request) {
	h.writeJSON(w, http.StatusOK, h.svc.Diagnostics())
}

type tokenRequest struct {
	Token string `json:"token"`
}

func (h *handler) updateToken(w http.ResponseWriter, r *http.Request) {
	var req tokenRequest
	if err := json.NewDecoder(io.LimitReader(r.Body, maxTokenBody)).Decode(&req); err != nil {
		h.writeJSON(w, http.StatusBadRequest, errorBody{Error: "invalid request body"})
		return
	}
	if err := h.svc.UpdateToken(r.Context(), req.Token); err != nil {
		h.writeError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

type errorBody struct {
	Error string `json:"error"`
}

func statusFor(err error) int {
	switch {
	case errors.Is(err, sensors.ErrUnknownSensor):
		return http.StatusNotFound
	case errors.Is(err, coordinator.ErrInvalidToken):
		return http.StatusBadRequest
	case errors.Is(err, api.ErrAuthExpired):
		return http.StatusUnauthorized
	case errors.Is(err, api.ErrFetch), errors.Is(err, api.ErrMalformedResponse):
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}

func (h *handler) writeError(w http.ResponseWriter, err error) {
	code := statusFor(err)
	if code >= http.StatusInternalServerError {
		h.logger.WithError(err).Error("HTTP request failed")
	}
	h.writeJSON(w, code, errorBody{Error: err.Error()})
}

func (h *handler) writeJSON(w http.ResponseWriter, code int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		h.logger.WithError(err).Warn("Failed to write response")
	}
}
