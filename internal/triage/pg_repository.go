package triage

import (
	"context"
	"encoding/json"
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

func scanSession(row pgx.Row) (*Session, error) {
	var (
		s            Session
		symptomsJSON []byte
		urgency      *string
	)

	err := row.Scan(
		&s.ID,
		&s.PatientID,
		&s.PatientName,
		&symptomsJSON,
		&urgency,
		&s.AIAnalysis,
		&s.RecommendedActions,
		&s.ConfidenceScore,
		&s.Status,
		&s.CreatedAt,
		&s.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrSessionNotFound
		}
		return nil, err
	}

	if symptomsJSON != nil {
		var sym SymptomInput
		if err := json.Unmarshal(symptomsJSON, &sym); err != nil {
			return nil, fmt.Errorf("decode symptoms: %w", err)
		}
		s.Symptoms = &sym
	}
	if urgency != nil {
		lvl := UrgencyLevel(*urgency)
		s.UrgencyLevel = &lvl
	}

	return &s, nil
}

const sessionColumns = `id, patient_id, patient_name, symptoms, urgency_level, ai_analysis, recommended_actions, confidence_score, status, created_at, updated_at`

// Interface methods

func (r *PgRepository) CreateSession(ctx context.Context) (*Session, error) {
	id := uuid.New()

	row := r.pool.QueryRow(ctx, `
		INSERT INTO triage_sessions (id, status, created_at, updated_at)
		VALUES ($1, 'pending', now(), now())
		RETURNING `+sessionColumns+`
	`, id)

	return scanSession(row)
}

func (r *PgRepository) GetSessionByID(ctx context.Context, id uuid.UUID) (*Session, error) {
	row := r.pool.QueryRow(ctx, `
		SELECT `+sessionColumns+`
		FROM triage_sessions
		WHERE id = $1
	`, id)
	return scanSession(row)
}

func (r *PgRepository) UpdateAssessment(ctx context.Context, id uuid.UUID, symptoms SymptomInput, a Assessment) error {
	symptomsJSON, err := json.Marshal(symptoms)
	if err != nil {
		return fmt.Errorf("encode symptoms: %w", err)
	}

	_, err = r.pool.Exec(ctx, `
		UPDATE triage_sessions
		SET symptoms = $2,
		    urgency_level = $3,
		    ai_analysis = $4,
		    recommended_actions = $5,
		    confidence_score = $6,
		    updated_at = now()
		WHERE id = $1
	`, id, symptomsJSON, a.UrgencyLevel, a.Analysis, a.RecommendedActions, a.ConfidenceScore)
	if err != nil {
		return fmt.Errorf("update assessment: %w", err)
	}

	return nil
}

func (r *PgRepository) LinkPatient(ctx context.Context, id, patientID uuid.UUID, patientName string) error {
	tag, err := r.pool.Exec(ctx, `
		UPDATE triage_sessions
		SET patient_id = $2,
		    patient_name = $3,
		    status = 'waiting_consultation',
		    updated_at = now()
		WHERE id = $1
	`, id, patientID, patientName)
	if err != nil {
		return fmt.Errorf("link patient: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrSessionNotFound
	}

	return nil
}

func (r *PgRepository) SetStatus(ctx context.Context, id uuid.UUID, status SessionStatus) error {
	_, err := r.pool.Exec(ctx, `
		UPDATE triage_sessions
		SET status = $2,
		    updated_at = now()
		WHERE id = $1
	`, id, status)
	if err != nil {
		return fmt.Errorf("set session status: %w", err)
	}
	return nil
}

func (r *PgRepository) InsertChatMessage(ctx context.Context, msg ChatMessage) error {
	_, err := r.pool.Exec(ctx, `
		INSERT INTO chat_messages (session_id, message, sender, created_at)
		VALUES ($1, $2, $3, COALESCE($4, now()))
	`, msg.SessionID, msg.Message, msg.Sender, nullableTime(msg.CreatedAt))
	if err != nil {
		return fmt.Errorf("insert chat message: %w", err)
	}
	return nil
}

func (r *PgRepository) ListChatMessages(ctx context.Context, sessionID uuid.UUID, limit int) ([]ChatMessage, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT id, session_id, message, sender, created_at
		FROM chat_messages
		WHERE session_id = $1
		ORDER BY created_at ASC, id ASC
		LIMIT $2
	`, sessionID, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var result []ChatMessage
	for rows.Next() {
		var m ChatMessage
		if err := rows.Scan(&m.ID, &m.SessionID, &m.Message, &m.Sender, &m.CreatedAt); err != nil {
			return nil, err
		}
		result = append(result, m)
	}

	if err := rows.Err(); err != nil {
		return nil, err
	}

	return result, nil
}

func nullableTime(t time.Time) *time.Time {
	if t.IsZero() {
		return nil
	}
	return &t
}

func (r *PgRepository) UrgencyStats(ctx context.Context) ([]UrgencyStat, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT urgency_level, COUNT(*)
		FROM triage_sessions
		GROUP BY urgency_level
	`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var result []UrgencyStat
	for rows.Next() {
		var st UrgencyStat
		if err := rows.Scan(&st.Level, &st.Count); err != nil {
			return nil, err
		}
		result = append(result, st)
	}

	if err := rows.Err(); err != nil {
		return nil, err
	}

	return result, nil
}
