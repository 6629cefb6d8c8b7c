package api

import (
	"time"

	"github.com/google/uuid"

	"github.com/medlinkhq/telehealth-triage/internal/consultation"
	"github.com/medlinkhq/telehealth-triage/internal/triage"
)

type StartTriageResponse struct {
	SessionID uuid.UUID `json:"session_id"`
	Message   string    `json:"message"`
}

type SymptomResponse struct {
	SessionID          uuid.UUID `json:"session_id"`
	UrgencyLevel       string    `json:"urgency_level"`
	Analysis           string    `json:"analysis"`
	RecommendedActions []string  `json:"recommended_actions"`
	ConfidenceScore    float64   `json:"confidence_score"`
	FollowUpQuestions  []string  `json:"follow_up_questions"`
}

type ChatRequest struct {
	Message string `json:"message"`
}

type ChatResponse struct {
	Response string `json:"response"`
}

type SessionResponse struct {
	Session     *triage.Session      `json:"session"`
	ChatHistory []triage.ChatMessage `json:"chat_history"`
}

type UrgencyStatsResponse struct {
	UrgencyStats []triage.UrgencyStat `json:"urgency_stats"`
}

type CreateConsultationRequest struct {
	TriageSessionID string `json:"triage_session_id"`
	PatientName     string `json:"patient_name"`
}

type CreateConsultationResponse struct {
	ConsultationID uuid.UUID `json:"consultation_id"`
	PatientID      uuid.UUID `json:"patient_id"`
	Status         string    `json:"status"`
	EstimatedWait  int       `json:"estimated_wait"`
}

type QueueResponse struct {
	Queue []consultation.QueueEntry `json:"queue"`
}

type TransitionResponse struct {
	Message        string    `json:"message"`
	ConsultationID uuid.UUID `json:"consultation_id"`
}

type CreateProviderRequest struct {
	Name           string  `json:"name"`
	Email          *string `json:"email,omitempty"`
	Specialization *string `json:"specialization,omitempty"`
	LicenseNumber  *string `json:"license_number,omitempty"`
}

type StatusCheckRequest struct {
	ClientName string `json:"client_name"`
}

type StatusCheck struct {
	ID         uuid.UUID `json:"id"`
	ClientName string    `json:"client_name"`
	Timestamp  time.Time `json:"timestamp"`
}

type ErrorResponse struct {
	Error   string `json:"error"`
	Details string `json:"details,omitempty"`
}
