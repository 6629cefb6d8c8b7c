package consultation

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

type PgRepository struct {
	pool *pgxpool.Pool
}

func NewPgRepository(pool *pgxpool.Pool) *PgRepository {
	return &PgRepository{pool: pool}
}

// Helpers

func scanConsultation(row pgx.Row) (*Consultation, error) {
	var c Consultation

	err := row.Scan(
		&c.ID,
		&c.TriageSessionID,
		&c.PatientID,
		&c.ProviderID,
		&c.Status,
		&c.ScheduledAt,
		&c.StartedAt,
		&c.EndedAt,
		&c.Notes,
		&c.CreatedAt,
		&c.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrConsultationNotFound
		}
		return nil, err
	}

	return &c, nil
}

func scanProvider(row pgx.Row) (*Provider, error) {
	var p Provider

	err := row.Scan(
		&p.ID,
		&p.Name,
		&p.Email,
		&p.Specialization,
		&p.LicenseNumber,
		&p.Status,
		&p.Rating,
		&p.ConsultationCount,
		&p.CreatedAt,
		&p.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrProviderNotFound
		}
		return nil, err
	}

	return &p, nil
}

const consultationColumns = `id, triage_session_id, patient_id, provider_id, status, scheduled_at, started_at, ended_at, notes, created_at, updated_at`

const providerColumns = `id, name, email, specialization, license_number, status, rating, consultation_count, created_at, updated_at`

// Interface methods

func (r *PgRepository) CreatePatient(ctx context.Context, name string) (*Patient, error) {
	id := uuid.New()

	var p Patient
	row := r.pool.QueryRow(ctx, `
		INSERT INTO patients (id, name, created_at, updated_at)
		VALUES ($1, $2, now(), now())
		RETURNING id, name, email, age, gender, created_at, updated_at
	`, id, name)

	err := row.Scan(&p.ID, &p.Name, &p.Email, &p.Age, &p.Gender, &p.CreatedAt, &p.UpdatedAt)
	if err != nil {
		return nil, fmt.Errorf("create patient: %w", err)
	}

	return &p, nil
}

func (r *PgRepository) CreateConsultation(ctx context.Context, sessionID, patientID uuid.UUID) (*Consultation, error) {
	id := uuid.New()

	row := r.pool.QueryRow(ctx, `
		INSERT INTO consultations (id, triage_session_id, patient_id, status, created_at, updated_at)
		VALUES ($1, $2, $3, 'waiting', now(), now())
		RETURNING `+consultationColumns+`
	`, id, sessionID, patientID)

	return scanConsultation(row)
}

func (r *PgRepository) GetConsultationByID(ctx context.Context, id uuid.UUID) (*Consultation, error) {
	row := r.pool.QueryRow(ctx, `
		SELECT `+consultationColumns+`
		FROM consultations
		WHERE id = $1
	`, id)
	return scanConsultation(row)
}

func (r *PgRepository) StartConsultation(ctx context.Context, id uuid.UUID, providerID *uuid.UUID) (*Consultation, error) {
	row := r.pool.QueryRow(ctx, `
		UPDATE consultations
		SET status = 'in_progress',
		    provider_id = COALESCE($2, provider_id),
		    started_at = COALESCE(started_at, now()),
		    updated_at = now()
		WHERE id = $1
		  AND status IN ('waiting', 'in_progress')
		RETURNING `+consultationColumns+`
	`, id, providerID)

	return scanConsultation(row)
}

func (r *PgRepository) EndConsultation(ctx context.Context, id uuid.UUID, notes *string) (*Consultation, error) {
	row := r.pool.QueryRow(ctx, `
		UPDATE consultations
		SET status = 'completed',
		    ended_at = COALESCE(ended_at, now()),
		    notes = COALESCE($2, notes),
		    updated_at = now()
		WHERE id = $1
		  AND status IN ('waiting', 'in_progress')
		RETURNING `+consultationColumns+`
	`, id, notes)

	return scanConsultation(row)
}

func (r *PgRepository) CancelConsultation(ctx context.Context, id uuid.UUID) (*Consultation, error) {
	row := r.pool.QueryRow(ctx, `
		UPDATE consultations
		SET status = 'cancelled',
		    ended_at = COALESCE(ended_at, now()),
		    updated_at = now()
		WHERE id = $1
		  AND status = 'waiting'
		RETURNING `+consultationColumns+`
	`, id)

	return scanConsultation(row)
}

func (r *PgRepository) ListQueue(ctx context.Context) ([]QueueEntry, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT c.id, c.triage_session_id, c.patient_id, p.name, t.urgency_level, c.status, c.created_at
		FROM consultations c
		JOIN patients p ON p.id = c.patient_id
		JOIN triage_sessions t ON t.id = c.triage_session_id
		WHERE c.status IN ('waiting', 'in_progress')
		ORDER BY c.created_at ASC
	`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var result []QueueEntry
	for rows.Next() {
		var e QueueEntry
		if err := rows.Scan(&e.ConsultationID, &e.TriageSessionID, &e.PatientID, &e.PatientName, &e.UrgencyLevel, &e.Status, &e.CreatedAt); err != nil {
			return nil, err
		}
		result = append(result, e)
	}

	if err := rows.Err(); err != nil {
		return nil, err
	}

	return result, nil
}

func (r *PgRepository) CountWaiting(ctx context.Context) (int, error) {
	var n int
	err := r.pool.QueryRow(ctx, `
		SELECT COUNT(*) FROM consultations WHERE status = 'waiting'
	`).Scan(&n)
	if err != nil {
		return 0, err
	}
	return n, nil
}

func (r *PgRepository) FindStaleWaiting(ctx context.Context, olderThan time.Time) ([]Consultation, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT `+consultationColumns+`
		FROM consultations
		WHERE status = 'waiting'
		  AND created_at < $1
	`, olderThan)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var result []Consultation
	for rows.Next() {
		c, err := scanConsultation(rows)
		if err != nil {
			return nil, err
		}
		result = append(result, *c)
	}

	if err := rows.Err(); err != nil {
		return nil, err
	}

	return result, nil
}

func (r *PgRepository) CreateProvider(ctx context.Context, p Provider) (*Provider, error) {
	id := uuid.New()

	status := p.Status
	if status == "" {
		status = ProviderAvailable
	}

	row := r.pool.QueryRow(ctx, `
		INSERT INTO providers (id, name, email, specialization, license_number, status, rating, consultation_count, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, now(), now())
		RETURNING `+providerColumns+`
	`, id, p.Name, p.Email, p.Specialization, p.LicenseNumber, status, p.Rating, p.ConsultationCount)

	return scanProvider(row)
}

func (r *PgRepository) ListProviders(ctx context.Context) ([]Provider, error) {
	return r.listProviders(ctx, `
		SELECT `+providerColumns+`
		FROM providers
		ORDER BY created_at ASC
	`)
}

func (r *PgRepository) ListAvailableProviders(ctx context.Context) ([]Provider, error) {
	return r.listProviders(ctx, `
		SELECT `+providerColumns+`
		FROM providers
		WHERE status = 'available'
		ORDER BY created_at ASC
	`)
}

func (r *PgRepository) listProviders(ctx context.Context, query string) ([]Provider, error) {
	rows, err := r.pool.Query(ctx, query)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var result []Provider
	for rows.Next() {
		p, err := scanProvider(rows)
		if err != nil {
			return nil, err
		}
		result = append(result, *p)
	}

	if err := rows.Err(); err != nil {
		return nil, err
	}

	return result, nil
}
