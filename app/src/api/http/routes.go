package httpapi

import (
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"head-monitor/app/src/domain"
	"head-monitor/app/src/infra"
	"head-monitor/app/src/shared/constants"

	"github.com/go-chi/chi/v5"
)

const (
	queryDataset     = "dataset"
	queryMeasurement = "measurement"
	queryFrom        = "from"
	queryTo          = "to"
)

// handler contains the HTTP handlers and shared dependencies for the REST API.
type handler struct {
	status domain.StatusReader
	delays domain.DelayArchive
	logger *infra.Logger
}

func registerRoutes(router chi.Router, h *handler) {
	router.Get("/health", func(w http.ResponseWriter, r *http.Request) {
		if h.logger != nil {
			h.logger.Println(r.Context(), "health check OK")
		}
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte(`{"status":"ok"}`))
	})
	router.Get("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte(`{"status":"ok"}`))
	})
	router.Get("/status", h.handleGetStatus)
	router.Get("/delays", h.handleGetDelays)
}

type statusResponse struct {
	Dataset     string `json:"dataset"`
	Measurement string `json:"measurement"`
	Phase       string `json:"phase"`
	LastBlock   uint64 `json:"last_block"`
	LastDelayMS *int64 `json:"last_delay_ms,omitempty"`
	UpdatedAt   string `json:"updated_at,omitempty"`
}

type sampleResponse struct {
	Block      uint64 `json:"block"`
	ObservedAt string `json:"observed_at"`
	DelayMS    int64  `json:"delay_ms"`
}

type summaryResponse struct {
	Count int     `json:"count"`
	MinMS int64   `json:"min_ms"`
	MaxMS int64   `json:"max_ms"`
	AvgMS float64 `json:"avg_ms"`
}

type delaysResponse struct {
	Dataset     string           `json:"dataset"`
	Measurement string           `json:"measurement"`
	Summary     summaryResponse  `json:"summary"`
	Samples     []sampleResponse `json:"samples"`
}

type errorResponse struct {
	Error string `json:"error"`
	Code  int    `json:"code"`
}

func (h *handler) handleGetStatus(w http.ResponseWriter, r *http.Request) {
	if h.status == nil {
		h.writeJSON(w, http.StatusOK, []statusResponse{})
		return
	}

	snapshot := h.status.Snapshot()
	payload := make([]statusResponse, len(snapshot))
	for i, status := range snapshot {
		payload[i] = toStatusResponse(status)
	}
	h.writeJSON(w, http.StatusOK, payload)
}

func (h *handler) handleGetDelays(w http.ResponseWriter, r *http.Request) {
	params := r.URL.Query()

	id := domain.MeasurementID{Dataset: params.Get(queryDataset), Name: params.Get(queryMeasurement)}
	if id.Dataset == "" || id.Name == "" {
		h.writeError(w, http.StatusBadRequest, "dataset and measurement parameters are required")
		return
	}

	fromParam := params.Get(queryFrom)
	toParam := params.Get(queryTo)
	if fromParam == "" || toParam == "" {
		h.writeError(w, http.StatusBadRequest, "both from and to parameters are required")
		return
	}

	from, err := time.Parse(constants.TimeFormat, fromParam)
	if err != nil {
		h.writeError(w, http.StatusBadRequest, "invalid from timestamp")
		return
	}

	to, err := time.Parse(constants.TimeFormat, toParam)
	if err != nil {
		h.writeError(w, http.StatusBadRequest, "invalid to timestamp")
		return
	}

	if from.After(to) {
		h.writeError(w, http.StatusBadRequest, "from must be before to")
		return
	}

	if h.delays == nil {
		h.respondServiceError(w, r, domain.ErrArchiveDisabled)
		return
	}

	samples, err := h.delays.SamplesInRange(r.Context(), id, from, to)
	if err != nil {
		h.respondServiceError(w, r, err)
		return
	}

	payload := delaysResponse{
		Dataset:     id.Dataset,
		Measurement: id.Name,
		Summary:     toSummaryResponse(domain.SummarizeDelays(samples)),
		Samples:     make([]sampleResponse, len(samples)),
	}
	for i, sample := range samples {
		payload.Samples[i] = toSampleResponse(sample)
	}

	h.writeJSON(w, http.StatusOK, payload)
}

func (h *handler) respondServiceError(w http.ResponseWriter, r *http.Request, err error) {
	switch {
	case errors.Is(err, domain.ErrArchiveDisabled):
		h.writeError(w, http.StatusNotFound, "delay archive is disabled")
	case errors.Is(err, domain.ErrNotFound):
		h.writeError(w, http.StatusNotFound, "delay samples not found")
	case errors.Is(err, domain.ErrInvalidRange):
		h.writeError(w, http.StatusBadRequest, "from must be before to")
	default:
		if h.logger != nil {
			h.logger.Errorf(r.Context(), "delay query failed: %v", err)
		}
		h.writeError(w, http.StatusInternalServerError, "internal server error")
	}
}

func (h *handler) writeError(w http.ResponseWriter, status int, message string) {
	h.writeJSON(w, status, errorResponse{Error: message, Code: status})
}

func (h *handler) writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}

func toStatusResponse(status domain.MeasurementStatus) statusResponse {
	resp := statusResponse{
		Dataset:     status.ID.Dataset,
		Measurement: status.ID.Name,
		Phase:       string(status.Phase),
		LastBlock:   status.LastBlock,
	}
	if status.HasDelay {
		delay := status.LastDelayMillis
		resp.LastDelayMS = &delay
	}
	if !status.UpdatedAt.IsZero() {
		resp.UpdatedAt = status.UpdatedAt.UTC().Format(constants.TimeFormat)
	}
	return resp
}

func toSampleResponse(sample domain.DelaySample) sampleResponse {
	return sampleResponse{
		Block:      sample.Block,
		ObservedAt: sample.ObservedAt.UTC().Format(constants.TimeFormat),
		DelayMS:    sample.DelayMillis,
	}
}

func toSummaryResponse(summary domain.DelaySummary) summaryResponse {
	return summaryResponse{
		Count: summary.Count,
		MinMS: summary.MinMillis,
		MaxMS: summary.MaxMillis,
		AvgMS: summary.AvgMillis,
	}
}
