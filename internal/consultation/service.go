package consultation

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	redisclient "github.com/medlinkhq/telehealth-triage/internal/redis"
	"github.com/medlinkhq/telehealth-triage/internal/triage"
)

var (
	ErrNameRequired = errors.New("name is required")
)

// estimatedWaitPerPatient is the rough per-patient consult duration used for
// the wait estimate returned on consultation creation.
const estimatedWaitPerPatient = 15 * time.Minute

// TriageStore is the slice of the triage repository this service needs to
// validate and link sessions.
type TriageStore interface {
	GetSessionByID(ctx context.Context, id uuid.UUID) (*triage.Session, error)
	LinkPatient(ctx context.Context, id, patientID uuid.UUID, patientName string) error
	SetStatus(ctx context.Context, id uuid.UUID, status triage.SessionStatus) error
}

// Service owns the durable consultation lifecycle: creation from a triage
// session, the FIFO queue view, and the waiting -> in_progress -> completed
// transitions. The signaling hub drives the same transitions through
// MarkInProgress/MarkCompleted when calls are accepted and ended.
type Service struct {
	repo     Repository
	sessions TriageStore
	locker   redisclient.Locker
	log      zerolog.Logger
}

func NewService(repo Repository, sessions TriageStore, locker redisclient.Locker, log zerolog.Logger) *Service {
	return &Service{
		repo:     repo,
		sessions: sessions,
		locker:   locker,
		log:      log,
	}
}

// CreateConsultation converts a triage session into a waiting consultation.
// The session must exist; the patient record is created implicitly. A per
// session Redis lock keeps concurrent requests for the same session from
// both creating a consultation.
func (s *Service) CreateConsultation(ctx context.Context, sessionID uuid.UUID, patientName string) (*Consultation, *Patient, int, error) {
	if strings.TrimSpace(patientName) == "" {
		return nil, nil, 0, ErrNameRequired
	}

	if _, err := s.sessions.GetSessionByID(ctx, sessionID); err != nil {
		if errors.Is(err, triage.ErrSessionNotFound) {
			return nil, nil, 0, err
		}
		return nil, nil, 0, fmt.Errorf("load triage session: %w", err)
	}

	waiting, err := s.repo.CountWaiting(ctx)
	if err != nil {
		return nil, nil, 0, fmt.Errorf("count waiting: %w", err)
	}

	var (
		created *Consultation
		patient *Patient
	)

	err = s.locker.WithSessionLock(ctx, sessionID, func(lockCtx context.Context) error {
		p, err := s.repo.CreatePatient(lockCtx, patientName)
		if err != nil {
			return err
		}

		c, err := s.repo.CreateConsultation(lockCtx, sessionID, p.ID)
		if err != nil {
			return fmt.Errorf("create consultation: %w", err)
		}

		if err := s.sessions.LinkPatient(lockCtx, sessionID, p.ID, patientName); err != nil {
			return fmt.Errorf("link patient to session: %w", err)
		}

		created = c
		patient = p
		return nil
	})
	if err != nil {
		return nil, nil, 0, err
	}

	estimatedWait := int((time.Duration(waiting) * estimatedWaitPerPatient).Minutes())

	return created, patient, estimatedWait, nil
}

// Queue returns waiting and in-progress consultations joined with their
// session and patient, oldest first, with elapsed whole minutes as wait time.
func (s *Service) Queue(ctx context.Context) ([]QueueEntry, error) {
	entries, err := s.repo.ListQueue(ctx)
	if err != nil {
		return nil, fmt.Errorf("list queue: %w", err)
	}

	now := time.Now()
	for i := range entries {
		entries[i].WaitMinutes = int(now.Sub(entries[i].CreatedAt).Minutes())
	}

	return entries, nil
}

func (s *Service) GetConsultation(ctx context.Context, id uuid.UUID) (*Consultation, error) {
	return s.repo.GetConsultationByID(ctx, id)
}

// Start moves a consultation to in_progress and mirrors the transition onto
// the triage session.
func (s *Service) Start(ctx context.Context, id uuid.UUID, providerID *uuid.UUID) (*Consultation, error) {
	c, err := s.repo.StartConsultation(ctx, id, providerID)
	if err != nil {
		return nil, err
	}

	if err := s.sessions.SetStatus(ctx, c.TriageSessionID, triage.StatusInConsultation); err != nil {
		s.log.Warn().Err(err).Str("consultation_id", id.String()).
			Msg("failed to mark session in_consultation")
	}

	return c, nil
}

// End completes a consultation and its triage session.
func (s *Service) End(ctx context.Context, id uuid.UUID, notes *string) (*Consultation, error) {
	c, err := s.repo.EndConsultation(ctx, id, notes)
	if err != nil {
		return nil, err
	}

	if err := s.sessions.SetStatus(ctx, c.TriageSessionID, triage.StatusCompleted); err != nil {
		s.log.Warn().Err(err).Str("consultation_id", id.String()).
			Msg("failed to mark session completed")
	}

	return c, nil
}

// MarkInProgress is the hub-facing coupling: an accepted call implies the
// durable record reads in_progress. A consultation already past waiting is
// left alone.
func (s *Service) MarkInProgress(ctx context.Context, consultationID uuid.UUID) error {
	_, err := s.Start(ctx, consultationID, nil)
	if errors.Is(err, ErrConsultationNotFound) {
		s.log.Debug().Str("consultation_id", consultationID.String()).
			Msg("no eligible consultation to mark in_progress")
		return nil
	}
	return err
}

// MarkCompleted is the hub-facing coupling for call end.
func (s *Service) MarkCompleted(ctx context.Context, consultationID uuid.UUID) error {
	_, err := s.End(ctx, consultationID, nil)
	if errors.Is(err, ErrConsultationNotFound) {
		s.log.Debug().Str("consultation_id", consultationID.String()).
			Msg("no eligible consultation to mark completed")
		return nil
	}
	return err
}

// ExpireStaleWaiting cancels consultations that sat in the waiting queue
// longer than ttl. Intended to be called by the worker periodically.
func (s *Service) ExpireStaleWaiting(ctx context.Context, ttl time.Duration) error {
	cutoff := time.Now().Add(-ttl)

	stale, err := s.repo.FindStaleWaiting(ctx, cutoff)
	if err != nil {
		return fmt.Errorf("find stale waiting consultations: %w", err)
	}

	for _, c := range stale {
		if _, err := s.repo.CancelConsultation(ctx, c.ID); err != nil {
			if errors.Is(err, ErrConsultationNotFound) {
				continue
			}
			s.log.Error().Err(err).Str("consultation_id", c.ID.String()).
				Msg("failed to cancel stale consultation")
			continue
		}
		s.log.Info().Str("consultation_id", c.ID.String()).
			Time("created_at", c.CreatedAt).
			Msg("cancelled stale waiting consultation")
	}

	return nil
}

// Provider management

func (s *Service) CreateProvider(ctx context.Context, p Provider) (*Provider, error) {
	if strings.TrimSpace(p.Name) == "" {
		return nil, ErrNameRequired
	}
	return s.repo.CreateProvider(ctx, p)
}

func (s *Service) ListProviders(ctx context.Context) ([]Provider, error) {
	return s.repo.ListProviders(ctx)
}

func (s *Service) ListAvailableProviders(ctx context.Context) ([]Provider, error) {
	return s.repo.ListAvailableProviders(ctx)
}
