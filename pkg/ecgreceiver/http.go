package ecgreceiver

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/GanQiao1990/ecg-receiver-standalone/internal/app/orchestrator"
	"github.com/GanQiao1990/ecg-receiver-standalone/internal/domain"
)

// routes builds the HTTP surface: Prometheus metrics plus a small control
// API for the diagnosis lane.
func (r *Runtime) routes() http.Handler {
	router := mux.NewRouter()
	router.Handle("/metrics", promhttp.Handler()).Methods(http.MethodGet)
	router.HandleFunc("/healthz", r.handleHealthz).Methods(http.MethodGet)

	api := router.PathPrefix("/api/v1").Subrouter()
	api.HandleFunc("/status", r.handleStatus).Methods(http.MethodGet)
	api.HandleFunc("/history", r.handleHistory).Methods(http.MethodGet)
	api.HandleFunc("/diagnose", r.handleDiagnose).Methods(http.MethodPost)
	api.HandleFunc("/diagnose", r.handleCancel).Methods(http.MethodDelete)
	api.HandleFunc("/auto", r.handleAuto).Methods(http.MethodPost)
	return router
}

func (r *Runtime) startHTTP() {
	r.httpSrv = &http.Server{
		Addr:    r.cfg.Metrics.Addr,
		Handler: r.routes(),
	}

	go func() {
		if err := r.httpSrv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			r.obs.LogError("http_server_exited", err)
		}
	}()
}

func (r *Runtime) handleHealthz(w http.ResponseWriter, _ *http.Request) {
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("ok"))
}

type statusResponse struct {
	BufferLen       int     `json:"buffer_len"`
	BufferCapacity  int     `json:"buffer_capacity"`
	InFlightID      string  `json:"in_flight_id,omitempty"`
	AutoMode        bool    `json:"auto_mode"`
	CPUPercent      float64 `json:"cpu_percent"`
	MemoryRSSBytes  uint64  `json:"memory_rss_bytes"`
	LinesPerSec     float64 `json:"lines_per_sec"`
	DecodeErrorRate float64 `json:"decode_error_rate"`
}

func (r *Runtime) handleStatus(w http.ResponseWriter, _ *http.Request) {
	perf := r.mon.Last()
	resp := statusResponse{
		BufferLen:       r.buf.Len(),
		BufferCapacity:  r.buf.Capacity(),
		AutoMode:        r.orch.AutoMode(),
		CPUPercent:      perf.CPUPercent,
		MemoryRSSBytes:  perf.MemoryRSSBytes,
		LinesPerSec:     perf.LinesPerSec,
		DecodeErrorRate: perf.DecodeErrorRate,
	}
	if id, busy := r.orch.InFlight(); busy {
		resp.InFlightID = id
	}
	writeJSON(w, http.StatusOK, resp)
}

func (r *Runtime) handleHistory(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, r.orch.History())
}

func (r *Runtime) handleDiagnose(w http.ResponseWriter, req *http.Request) {
	var patient *domain.PatientContext
	if req.ContentLength != 0 {
		patient = &domain.PatientContext{}
		if err := json.NewDecoder(req.Body).Decode(patient); err != nil {
			writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid patient context"})
			return
		}
	}

	report, err := r.orch.Request(patient)
	switch {
	case errors.Is(err, orchestrator.ErrAlreadyInProgress):
		writeJSON(w, http.StatusConflict, map[string]string{"error": err.Error()})
	case errors.Is(err, orchestrator.ErrInsufficientData):
		writeJSON(w, http.StatusPreconditionFailed, map[string]string{"error": err.Error()})
	case err != nil:
		r.obs.LogError("diagnose_request_failed", err)
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": err.Error()})
	default:
		writeJSON(w, http.StatusAccepted, report)
	}
}

func (r *Runtime) handleCancel(w http.ResponseWriter, _ *http.Request) {
	r.orch.Cancel()
	w.WriteHeader(http.StatusNoContent)
}

type autoRequest struct {
	Enabled bool `json:"enabled"`
}

func (r *Runtime) handleAuto(w http.ResponseWriter, req *http.Request) {
	var body autoRequest
	if err := json.NewDecoder(req.Body).Decode(&body); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid body"})
		return
	}
	r.SetAutoMode(body.Enabled)
	writeJSON(w, http.StatusOK, map[string]bool{"auto_mode": r.orch.AutoMode()})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
