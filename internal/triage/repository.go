package triage

import (
	"context"
	"errors"

	"github.com/google/uuid"
)

var (
	ErrSessionNotFound = errors.New("triage session not found")
)

// Repository contains all DB interactions needed by the coordinator.
type Repository interface {
	CreateSession(ctx context.Context) (*Session, error)
	GetSessionByID(ctx context.Context, id uuid.UUID) (*Session, error)

	// Assessment persistence: symptoms plus the classification written in one update.
	UpdateAssessment(ctx context.Context, id uuid.UUID, symptoms SymptomInput, a Assessment) error

	// Consultation linkage
	LinkPatient(ctx context.Context, id, patientID uuid.UUID, patientName string) error
	SetStatus(ctx context.Context, id uuid.UUID, status SessionStatus) error

	// Chat history
	InsertChatMessage(ctx context.Context, msg ChatMessage) error
	ListChatMessages(ctx context.Context, sessionID uuid.UUID, limit int) ([]ChatMessage, error)

	// Dashboard aggregation
	UrgencyStats(ctx context.Context) ([]UrgencyStat, error)
}
