package consultation

import (
	"time"

	"github.com/google/uuid"
)

type Status string

const (
	StatusWaiting    Status = "waiting"
	StatusInProgress Status = "in_progress"
	StatusCompleted  Status = "completed"
	StatusCancelled  Status = "cancelled"
)

type ProviderStatus string

const (
	ProviderAvailable ProviderStatus = "available"
	ProviderBusy      ProviderStatus = "busy"
	ProviderOffline   ProviderStatus = "offline"
)

// Consultation is the durable record of a requested video session. The
// signaling hub keeps the ephemeral call counterpart; this record is the
// source of truth for the queue view and history.
type Consultation struct {
	ID              uuid.UUID  `json:"id"`
	TriageSessionID uuid.UUID  `json:"triage_session_id"`
	PatientID       uuid.UUID  `json:"patient_id"`
	ProviderID      *uuid.UUID `json:"provider_id,omitempty"`
	Status          Status     `json:"status"`
	ScheduledAt     *time.Time `json:"scheduled_at,omitempty"`
	StartedAt       *time.Time `json:"started_at,omitempty"`
	EndedAt         *time.Time `json:"ended_at,omitempty"`
	Notes           *string    `json:"notes,omitempty"`
	CreatedAt       time.Time  `json:"created_at"`
	UpdatedAt       time.Time  `json:"updated_at"`
}

type Patient struct {
	ID        uuid.UUID `json:"id"`
	Name      string    `json:"name"`
	Email     *string   `json:"email,omitempty"`
	Age       *int      `json:"age,omitempty"`
	Gender    *string   `json:"gender,omitempty"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

type Provider struct {
	ID                uuid.UUID      `json:"id"`
	Name              string         `json:"name"`
	Email             *string        `json:"email,omitempty"`
	Specialization    *string        `json:"specialization,omitempty"`
	LicenseNumber     *string        `json:"license_number,omitempty"`
	Status            ProviderStatus `json:"status"`
	Rating            float64        `json:"rating"`
	ConsultationCount int            `json:"consultation_count"`
	CreatedAt         time.Time      `json:"created_at"`
	UpdatedAt         time.Time      `json:"updated_at"`
}

// QueueEntry is one row of the provider-facing queue view: a waiting or
// in-progress consultation joined with its triage session and patient.
type QueueEntry struct {
	ConsultationID  uuid.UUID `json:"consultation_id"`
	TriageSessionID uuid.UUID `json:"triage_session_id"`
	PatientID       uuid.UUID `json:"patient_id"`
	PatientName     string    `json:"patient_name"`
	UrgencyLevel    *string   `json:"urgency_level,omitempty"`
	Status          Status    `json:"status"`
	CreatedAt       time.Time `json:"created_at"`
	WaitMinutes     int       `json:"wait_minutes"`
}
