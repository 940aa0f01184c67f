package transform

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
)

// pushEnvelope mirrors the Pub/Sub-style push delivery shape named by
// spec.md §6 ("Inbound transform trigger"): the job id arrives
// base64-encoded inside message.data rather than as a plain JSON field.
type pushEnvelope struct {
	Message struct {
		Data []byte `json:"data"`
	} `json:"message"`
}

type jobIDPayload struct {
	JobID string `json:"job_id"`
}

// Handler adapts Service to the HTTP push-trigger contract (§4.6, §6).
type Handler struct {
	Service *Service
}

// ServeHTTP decodes a push envelope, runs both transform algorithms (the
// trigger carries no indication of which staged table it completed, and
// each algorithm is already a no-op when its table is empty), and responds
// 201 on success or 400/500 on failure, matching spec.md §6 exactly.
func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	body, err := io.ReadAll(r.Body)
	if err != nil {
		http.Error(w, "failed to read request body", http.StatusBadRequest)
		return
	}

	var envelope pushEnvelope
	if err := json.Unmarshal(body, &envelope); err != nil {
		http.Error(w, "malformed push envelope", http.StatusBadRequest)
		return
	}

	var payload jobIDPayload
	if err := json.Unmarshal(envelope.Message.Data, &payload); err != nil {
		http.Error(w, "malformed message.data: expected {\"job_id\": ...}", http.StatusBadRequest)
		return
	}

	if err := h.Service.HandleJob(r.Context(), payload.JobID); err != nil {
		h.Service.Logger.Error().Err(err).Str("job_id", payload.JobID).Msg("Transform run failed")
		http.Error(w, fmt.Sprintf("transform failed: %v", err), http.StatusInternalServerError)
		return
	}

	w.WriteHeader(http.StatusCreated)
	_, _ = w.Write([]byte("success"))
}

// HandleJob runs both transform algorithms to exhaustion. It is exposed
// separately from ServeHTTP so the internal cleaning-queue poller (the
// local bus's stand-in for a real push subscription) can drive the same
// logic without round-tripping through HTTP.
func (s *Service) HandleJob(ctx context.Context, jobID string) error {
	s.Logger.Info().Str("job_id", jobID).Msg("Transform run starting")

	if err := s.RunDevelopmentProjects(ctx); err != nil {
		return fmt.Errorf("development-projects transform failed: %w", err)
	}
	if err := s.RunRegulatoryFilings(ctx); err != nil {
		return fmt.Errorf("regulatory-filing transform failed: %w", err)
	}

	s.Logger.Info().Str("job_id", jobID).Msg("Transform run completed")
	return nil
}
