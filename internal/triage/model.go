package triage

import (
	"time"

	"github.com/google/uuid"
)

type UrgencyLevel string

const (
	UrgencyEmergency UrgencyLevel = "Emergency"
	UrgencyUrgent    UrgencyLevel = "Urgent"
	UrgencyRoutine   UrgencyLevel = "Routine"
	UrgencySelfCare  UrgencyLevel = "Self-Care"
)

type SessionStatus string

const (
	StatusPending             SessionStatus = "pending"
	StatusWaitingConsultation SessionStatus = "waiting_consultation"
	StatusInConsultation      SessionStatus = "in_consultation"
	StatusCompleted           SessionStatus = "completed"
)

type Sender string

const (
	SenderUser Sender = "user"
	SenderAI   Sender = "ai"
)

// SymptomInput is the structured symptom report submitted by a patient.
type SymptomInput struct {
	Location           string   `json:"location"`
	Symptoms           []string `json:"symptoms"`
	Severity           int      `json:"severity"` // 1-10
	Duration           string   `json:"duration"`
	AssociatedSymptoms []string `json:"associated_symptoms"`
	MedicalHistory     []string `json:"medical_history"`
	Age                *int     `json:"age,omitempty"`
	Gender             *string  `json:"gender,omitempty"`
}

type Session struct {
	ID                 uuid.UUID     `json:"id"`
	PatientID          *uuid.UUID    `json:"patient_id,omitempty"`
	PatientName        *string       `json:"patient_name,omitempty"`
	Symptoms           *SymptomInput `json:"symptoms,omitempty"`
	UrgencyLevel       *UrgencyLevel `json:"urgency_level,omitempty"`
	AIAnalysis         *string       `json:"ai_analysis,omitempty"`
	RecommendedActions []string      `json:"recommended_actions,omitempty"`
	ConfidenceScore    *float64      `json:"confidence_score,omitempty"`
	Status             SessionStatus `json:"status"`
	CreatedAt          time.Time     `json:"created_at"`
	UpdatedAt          time.Time     `json:"updated_at"`
}

type ChatMessage struct {
	ID        int64     `json:"id"`
	SessionID uuid.UUID `json:"session_id"`
	Message   string    `json:"message"`
	Sender    Sender    `json:"sender"`
	CreatedAt time.Time `json:"timestamp"`
}

// Assessment is the urgency classification produced for a symptom report,
// either by the analysis service or by the local fallback. The JSON tags
// match the contract the system prompt asks the model to honour.
type Assessment struct {
	Analysis           string   `json:"analysis"`
	UrgencyLevel       string   `json:"urgency_level"`
	ConfidenceScore    float64  `json:"confidence_score"`
	RecommendedActions []string `json:"recommended_actions"`
	FollowUpQuestions  []string `json:"follow_up_questions,omitempty"`
}

// UrgencyStat is one bucket of the urgency-level aggregation. The field name
// "_id" is kept for compatibility with the dashboard consuming this endpoint.
type UrgencyStat struct {
	Level *string `json:"_id"`
	Count int     `json:"count"`
}
