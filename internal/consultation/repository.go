package consultation

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
)

var (
	ErrConsultationNotFound = errors.New("consultation not found")
	ErrProviderNotFound     = errors.New("provider not found")
)

// Repository contains all DB interactions needed by the service.
type Repository interface {
	CreatePatient(ctx context.Context, name string) (*Patient, error)

	CreateConsultation(ctx context.Context, sessionID, patientID uuid.UUID) (*Consultation, error)
	GetConsultationByID(ctx context.Context, id uuid.UUID) (*Consultation, error)

	// Lifecycle transitions. Both are conditional updates: no row in an
	// eligible state means ErrConsultationNotFound.
	StartConsultation(ctx context.Context, id uuid.UUID, providerID *uuid.UUID) (*Consultation, error)
	EndConsultation(ctx context.Context, id uuid.UUID, notes *string) (*Consultation, error)
	CancelConsultation(ctx context.Context, id uuid.UUID) (*Consultation, error)

	// Queue view
	ListQueue(ctx context.Context) ([]QueueEntry, error)
	CountWaiting(ctx context.Context) (int, error)

	// Expiry worker
	FindStaleWaiting(ctx context.Context, olderThan time.Time) ([]Consultation, error)

	// Providers
	CreateProvider(ctx context.Context, p Provider) (*Provider, error)
	ListProviders(ctx context.Context) ([]Provider, error)
	ListAvailableProviders(ctx context.Context) ([]Provider, error)
}
