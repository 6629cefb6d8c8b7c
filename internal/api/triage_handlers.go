package api

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/medlinkhq/telehealth-triage/internal/triage"
)

func rootHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, map[string]string{"message": "Telehealth AI Triage Platform"})
	}
}

func startTriageHandler(svc TriageService) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		session, err := svc.StartSession(r.Context())
		if err != nil {
			writeError(w, http.StatusInternalServerError, "internal_error", err.Error())
			return
		}

		writeJSON(w, http.StatusOK, StartTriageResponse{
			SessionID: session.ID,
			Message:   "Triage session started",
		})
	}
}

func submitSymptomsHandler(svc TriageService) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		sessionID, err := uuid.Parse(chi.URLParam(r, "id"))
		if err != nil {
			writeError(w, http.StatusBadRequest, "invalid_session_id", "session id must be a valid UUID")
			return
		}

		var symptoms triage.SymptomInput
		if err := json.NewDecoder(r.Body).Decode(&symptoms); err != nil {
			writeError(w, http.StatusBadRequest, "invalid_request_body", "could not parse JSON")
			return
		}

		assessment, err := svc.SubmitSymptoms(r.Context(), sessionID, symptoms)
		if err != nil {
			writeError(w, http.StatusInternalServerError, "symptom_analysis_failed", err.Error())
			return
		}

		actions := assessment.RecommendedActions
		if actions == nil {
			actions = []string{}
		}
		questions := assessment.FollowUpQuestions
		if questions == nil {
			questions = []string{}
		}

		writeJSON(w, http.StatusOK, SymptomResponse{
			SessionID:          sessionID,
			UrgencyLevel:       assessment.UrgencyLevel,
			Analysis:           assessment.Analysis,
			RecommendedActions: actions,
			ConfidenceScore:    assessment.ConfidenceScore,
			FollowUpQuestions:  questions,
		})
	}
}

func chatHandler(svc TriageService) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		sessionID, err := uuid.Parse(chi.URLParam(r, "id"))
		if err != nil {
			writeError(w, http.StatusBadRequest, "invalid_session_id", "session id must be a valid UUID")
			return
		}

		var req ChatRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			writeError(w, http.StatusBadRequest, "invalid_request_body", "could not parse JSON")
			return
		}

		reply, err := svc.Chat(r.Context(), sessionID, req.Message)
		if err != nil {
			if errors.Is(err, triage.ErrEmptyMessage) {
				writeError(w, http.StatusBadRequest, "message_required", "message is required")
				return
			}
			writeError(w, http.StatusInternalServerError, "chat_failed", err.Error())
			return
		}

		writeJSON(w, http.StatusOK, ChatResponse{Response: reply})
	}
}

func getSessionHandler(svc TriageService) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		sessionID, err := uuid.Parse(chi.URLParam(r, "id"))
		if err != nil {
			writeError(w, http.StatusBadRequest, "invalid_session_id", "session id must be a valid UUID")
			return
		}

		session, history, err := svc.GetSession(r.Context(), sessionID)
		if err != nil {
			if errors.Is(err, triage.ErrSessionNotFound) {
				writeError(w, http.StatusNotFound, "session_not_found", "Session not found")
				return
			}
			writeError(w, http.StatusInternalServerError, "internal_error", err.Error())
			return
		}

		if history == nil {
			history = []triage.ChatMessage{}
		}

		writeJSON(w, http.StatusOK, SessionResponse{
			Session:     session,
			ChatHistory: history,
		})
	}
}

func urgencyStatsHandler(svc TriageService) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		stats, err := svc.UrgencyStats(r.Context())
		if err != nil {
			writeError(w, http.StatusInternalServerError, "internal_error", err.Error())
			return
		}

		if stats == nil {
			stats = []triage.UrgencyStat{}
		}

		writeJSON(w, http.StatusOK, UrgencyStatsResponse{UrgencyStats: stats})
	}
}
