// File: internal/infra/web/handlers.go
package web

import (
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"ai-stream-relay/internal/domain"
	"ai-stream-relay/internal/domain/model"
	"ai-stream-relay/internal/usecase"
)

// jobCreateRequest is the JSON body for POST /api/v1/jobs.
type jobCreateRequest struct {
	ConversationID string                 `json:"conversationId"`
	UserID         string                 `json:"userId"`
	Source         string                 `json:"source,omitempty"`
	SessionID      string                 `json:"sessionId,omitempty"`
	Provider       string                 `json:"provider,omitempty"`
	Model          string                 `json:"model"`
	Messages       []model.RequestMessage `json:"messages"`
	Options        model.SamplingOptions  `json:"options,omitempty"`
}

// jobView is the polling projection of a job. PollIntervalMs tells the client
// how soon to come back; ShouldContinuePolling goes false on terminal states.
type jobView struct {
	ID                    string              `json:"id"`
	ConversationID        string              `json:"conversationId"`
	Status                model.JobStatus     `json:"status"`
	PartialContent        string              `json:"partialContent"`
	Progress              model.ProgressInfo  `json:"progress"`
	Response              *model.ResponseData `json:"response,omitempty"`
	Error                 string              `json:"error,omitempty"`
	CreatedAt             time.Time           `json:"createdAt"`
	UpdatedAt             time.Time           `json:"updatedAt"`
	PollIntervalMs        int                 `json:"pollIntervalMs"`
	ShouldContinuePolling bool                `json:"shouldContinuePolling"`
}

func (s *Server) jobView(job *model.StreamingJob) jobView {
	interval, keepPolling := s.pollHint(job)
	return jobView{
		ID:                    job.ID,
		ConversationID:        job.ConversationID,
		Status:                job.Status,
		PartialContent:        job.PartialContent,
		Progress:              job.Progress,
		Response:              job.Response,
		Error:                 job.ErrorMessage,
		CreatedAt:             job.CreatedAt,
		UpdatedAt:             job.UpdatedAt,
		PollIntervalMs:        int(interval / time.Millisecond),
		ShouldContinuePolling: keepPolling,
	}
}

// pollHint derives the suggested client polling cadence from the job state
// and the model's latency class.
func (s *Server) pollHint(job *model.StreamingJob) (time.Duration, bool) {
	if job.Status.Terminal() {
		return 0, false
	}
	switch job.Status {
	case model.JobStatusPending:
		return time.Second, true
	case model.JobStatusProcessing:
		return 750 * time.Millisecond, true
	}
	// Streaming: faster models warrant tighter polling.
	if s.providers != nil {
		provider := job.Request.Provider
		if provider == "" {
			provider = s.providers.ResolveProvider(job.ModelID)
		}
		if ad, ok := s.providers.ForProvider(provider); ok {
			if caps, err := ad.Capabilities(job.ModelID); err == nil {
				switch caps.LatencyClass {
				case "fast":
					return 300 * time.Millisecond, true
				case "slow":
					return time.Second, true
				}
			}
		}
	}
	return 500 * time.Millisecond, true
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, domain.ErrInvalidArgument):
		http.Error(w, err.Error(), http.StatusBadRequest)
	case errors.Is(err, domain.ErrNotFound):
		http.Error(w, "Not found", http.StatusNotFound)
	case errors.Is(err, domain.ErrJobBusy), errors.Is(err, domain.ErrConflict):
		http.Error(w, err.Error(), http.StatusConflict)
	case errors.Is(err, domain.ErrRateLimited):
		http.Error(w, "Rate limit exceeded", http.StatusTooManyRequests)
	default:
		http.Error(w, "Internal error", http.StatusInternalServerError)
	}
}

func (s *Server) createJobHandler(w http.ResponseWriter, r *http.Request) {
	var req jobCreateRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "Invalid request body", http.StatusBadRequest)
		return
	}

	job, err := s.jobUC.Create(r.Context(), usecase.CreateJobInput{
		ConversationID: req.ConversationID,
		UserID:         req.UserID,
		Source:         req.Source,
		SessionID:      req.SessionID,
		Request: model.RequestData{
			Provider: req.Provider,
			Model:    req.Model,
			Messages: req.Messages,
			Options:  req.Options,
		},
	})
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, s.jobView(job))
}

func (s *Server) getJobHandler(w http.ResponseWriter, r *http.Request) {
	job, err := s.jobUC.Get(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, s.jobView(job))
}

func (s *Server) cancelJobHandler(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	if err := s.jobUC.Cancel(r.Context(), id); err != nil {
		writeError(w, err)
		return
	}
	job, err := s.jobUC.Get(r.Context(), id)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, s.jobView(job))
}

func (s *Server) activeJobHandler(w http.ResponseWriter, r *http.Request) {
	job, err := s.jobUC.ActiveForConversation(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, s.jobView(job))
}

// ===== Admin handlers =====

func (s *Server) loginHandler(w http.ResponseWriter, r *http.Request) {
	var req struct {
		APIKey string `json:"apiKey"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "Invalid request body", http.StatusBadRequest)
		return
	}
	if s.apiKey == "" {
		s.log.Error().Msg("admin API key is not configured")
		http.Error(w, "Forbidden", http.StatusForbidden)
		return
	}
	if req.APIKey != s.apiKey {
		http.Error(w, "Forbidden", http.StatusForbidden)
		return
	}
	token, err := s.auth.Mint(w)
	if err != nil {
		http.Error(w, "Internal error", http.StatusInternalServerError)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"token": token})
}

func (s *Server) statsHandler(w http.ResponseWriter, r *http.Request) {
	counts, err := s.jobUC.Stats(r.Context())
	if err != nil {
		http.Error(w, "Failed to get stats", http.StatusInternalServerError)
		return
	}
	breakers := map[string]string{}
	if s.breakers != nil {
		for provider, state := range s.breakers.States() {
			breakers[provider] = state.String()
		}
	}
	writeJSON(w, http.StatusOK, struct {
		Jobs     map[model.JobStatus]int `json:"jobs"`
		Breakers map[string]string       `json:"breakers"`
	}{Jobs: counts, Breakers: breakers})
}

func (s *Server) sweepHandler(w http.ResponseWriter, r *http.Request) {
	n, err := s.jobUC.Sweep(r.Context())
	if err != nil {
		http.Error(w, "Sweep failed", http.StatusInternalServerError)
		return
	}
	writeJSON(w, http.StatusOK, map[string]int{"swept": n})
}

func (s *Server) reapHandler(w http.ResponseWriter, r *http.Request) {
	n, err := s.jobUC.ReapStale(r.Context())
	if err != nil {
		http.Error(w, "Reap failed", http.StatusInternalServerError)
		return
	}
	writeJSON(w, http.StatusOK, map[string]int{"requeued": n})
}
