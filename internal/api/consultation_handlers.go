package api

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/medlinkhq/telehealth-triage/internal/consultation"
	redisclient "github.com/medlinkhq/telehealth-triage/internal/redis"
	"github.com/medlinkhq/telehealth-triage/internal/triage"
)

func createConsultationHandler(svc ConsultationService) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req CreateConsultationRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			writeError(w, http.StatusBadRequest, "invalid_request_body", "could not parse JSON")
			return
		}

		sessionID, err := uuid.Parse(req.TriageSessionID)
		if err != nil {
			writeError(w, http.StatusBadRequest, "invalid_session_id", "triage_session_id must be a valid UUID")
			return
		}

		created, patient, wait, err := svc.CreateConsultation(r.Context(), sessionID, req.PatientName)
		if err != nil {
			handleCreateConsultationError(w, err)
			return
		}

		writeJSON(w, http.StatusOK, CreateConsultationResponse{
			ConsultationID: created.ID,
			PatientID:      patient.ID,
			Status:         string(created.Status),
			EstimatedWait:  wait,
		})
	}
}

func handleCreateConsultationError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, triage.ErrSessionNotFound):
		writeError(w, http.StatusNotFound, "session_not_found", "Triage session not found")
	case errors.Is(err, consultation.ErrNameRequired):
		writeError(w, http.StatusBadRequest, "patient_name_required", "patient_name must not be empty")
	case errors.Is(err, redisclient.ErrLockNotAcquired):
		writeError(w, http.StatusConflict, "consultation_being_created", "a consultation for this session is already being created, please retry shortly")
	default:
		writeError(w, http.StatusInternalServerError, "internal_error", err.Error())
	}
}

func queueHandler(svc ConsultationService) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		queue, err := svc.Queue(r.Context())
		if err != nil {
			writeError(w, http.StatusInternalServerError, "internal_error", err.Error())
			return
		}

		if queue == nil {
			queue = []consultation.QueueEntry{}
		}

		writeJSON(w, http.StatusOK, QueueResponse{Queue: queue})
	}
}

func getConsultationHandler(svc ConsultationService) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id, err := uuid.Parse(chi.URLParam(r, "id"))
		if err != nil {
			writeError(w, http.StatusBadRequest, "invalid_consultation_id", "id must be a valid UUID")
			return
		}

		c, err := svc.GetConsultation(r.Context(), id)
		if err != nil {
			if errors.Is(err, consultation.ErrConsultationNotFound) {
				writeError(w, http.StatusNotFound, "consultation_not_found", "Consultation not found")
				return
			}
			writeError(w, http.StatusInternalServerError, "internal_error", err.Error())
			return
		}

		writeJSON(w, http.StatusOK, c)
	}
}

type transitionRequest struct {
	ProviderID *string `json:"provider_id,omitempty"`
	Notes      *string `json:"notes,omitempty"`
}

func startConsultationHandler(svc ConsultationService) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id, err := uuid.Parse(chi.URLParam(r, "id"))
		if err != nil {
			writeError(w, http.StatusBadRequest, "invalid_consultation_id", "id must be a valid UUID")
			return
		}

		// Body is optional: a provider may claim the consultation here.
		var req transitionRequest
		_ = json.NewDecoder(r.Body).Decode(&req)

		var providerID *uuid.UUID
		if req.ProviderID != nil {
			pid, err := uuid.Parse(*req.ProviderID)
			if err != nil {
				writeError(w, http.StatusBadRequest, "invalid_provider_id", "provider_id must be a valid UUID")
				return
			}
			providerID = &pid
		}

		c, err := svc.Start(r.Context(), id, providerID)
		if err != nil {
			handleTransitionError(w, err)
			return
		}

		writeJSON(w, http.StatusOK, TransitionResponse{
			Message:        "Consultation started",
			ConsultationID: c.ID,
		})
	}
}

func endConsultationHandler(svc ConsultationService) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id, err := uuid.Parse(chi.URLParam(r, "id"))
		if err != nil {
			writeError(w, http.StatusBadRequest, "invalid_consultation_id", "id must be a valid UUID")
			return
		}

		var req transitionRequest
		_ = json.NewDecoder(r.Body).Decode(&req)

		c, err := svc.End(r.Context(), id, req.Notes)
		if err != nil {
			handleTransitionError(w, err)
			return
		}

		writeJSON(w, http.StatusOK, TransitionResponse{
			Message:        "Consultation ended",
			ConsultationID: c.ID,
		})
	}
}

func handleTransitionError(w http.ResponseWriter, err error) {
	if errors.Is(err, consultation.ErrConsultationNotFound) {
		writeError(w, http.StatusNotFound, "consultation_not_found", "no consultation in an eligible state")
		return
	}
	writeError(w, http.StatusInternalServerError, "internal_error", err.Error())
}

func createProviderHandler(svc ConsultationService) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req CreateProviderRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			writeError(w, http.StatusBadRequest, "invalid_request_body", "could not parse JSON")
			return
		}

		p, err := svc.CreateProvider(r.Context(), consultation.Provider{
			Name:           req.Name,
			Email:          req.Email,
			Specialization: req.Specialization,
			LicenseNumber:  req.LicenseNumber,
			Status:         consultation.ProviderAvailable,
		})
		if err != nil {
			if errors.Is(err, consultation.ErrNameRequired) {
				writeError(w, http.StatusBadRequest, "name_required", "name must not be empty")
				return
			}
			writeError(w, http.StatusInternalServerError, "internal_error", err.Error())
			return
		}

		writeJSON(w, http.StatusCreated, p)
	}
}

func listProvidersHandler(svc ConsultationService) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		providers, err := svc.ListProviders(r.Context())
		if err != nil {
			writeError(w, http.StatusInternalServerError, "internal_error", err.Error())
			return
		}
		if providers == nil {
			providers = []consultation.Provider{}
		}
		writeJSON(w, http.StatusOK, providers)
	}
}

func listAvailableProvidersHandler(svc ConsultationService) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		providers, err := svc.ListAvailableProviders(r.Context())
		if err != nil {
			writeError(w, http.StatusInternalServerError, "internal_error", err.Error())
			return
		}
		if providers == nil {
			providers = []consultation.Provider{}
		}
		writeJSON(w, http.StatusOK, providers)
	}
}
