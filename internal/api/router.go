package api

import (
	"context"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"

	"github.com/medlinkhq/telehealth-triage/internal/consultation"
	"github.com/medlinkhq/telehealth-triage/internal/triage"
)

// TriageService is the coordinator surface the triage handlers need.
type TriageService interface {
	StartSession(ctx context.Context) (*triage.Session, error)
	SubmitSymptoms(ctx context.Context, sessionID uuid.UUID, symptoms triage.SymptomInput) (*triage.Assessment, error)
	Chat(ctx context.Context, sessionID uuid.UUID, message string) (string, error)
	GetSession(ctx context.Context, sessionID uuid.UUID) (*triage.Session, []triage.ChatMessage, error)
	UrgencyStats(ctx context.Context) ([]triage.UrgencyStat, error)
}

// ConsultationService is the lifecycle surface the consultation and provider
// handlers need.
type ConsultationService interface {
	CreateConsultation(ctx context.Context, sessionID uuid.UUID, patientName string) (*consultation.Consultation, *consultation.Patient, int, error)
	Queue(ctx context.Context) ([]consultation.QueueEntry, error)
	GetConsultation(ctx context.Context, id uuid.UUID) (*consultation.Consultation, error)
	Start(ctx context.Context, id uuid.UUID, providerID *uuid.UUID) (*consultation.Consultation, error)
	End(ctx context.Context, id uuid.UUID, notes *string) (*consultation.Consultation, error)
	CreateProvider(ctx context.Context, p consultation.Provider) (*consultation.Provider, error)
	ListProviders(ctx context.Context) ([]consultation.Provider, error)
	ListAvailableProviders(ctx context.Context) ([]consultation.Provider, error)
}

type RouterConfig struct {
	Triage        TriageService
	Consultations ConsultationService
	WS            http.Handler
	PgPool        *pgxpool.Pool
	Redis         *redis.Client
	Logger        zerolog.Logger
	Env           string
	Version       string
}

func NewRouter(cfg RouterConfig) http.Handler {
	r := chi.NewRouter()

	// Apply middleware
	r.Use(RequestIDMiddleware)
	r.Use(LoggingMiddleware(cfg.Logger))

	// Health endpoints
	if cfg.PgPool != nil && cfg.Redis != nil {
		health := NewHealthHandler(cfg.PgPool, cfg.Redis, cfg.Env, cfg.Version)
		r.Get("/health/live", health.Liveness)
		r.Get("/health/ready", health.Readiness)
	}

	// Real-time signaling channel
	if cfg.WS != nil {
		r.Handle("/ws", cfg.WS)
	}

	r.Route("/api", func(r chi.Router) {
		r.Get("/", rootHandler())

		if cfg.PgPool != nil {
			status := NewStatusHandler(cfg.PgPool)
			r.Post("/status", status.Create)
			r.Get("/status", status.List)
		}

		// AI triage
		r.Post("/triage/start", startTriageHandler(cfg.Triage))
		r.Post("/triage/symptoms/{id}", submitSymptomsHandler(cfg.Triage))
		r.Post("/triage/chat/{id}", chatHandler(cfg.Triage))
		r.Get("/triage/session/{id}", getSessionHandler(cfg.Triage))
		r.Get("/triage/urgency-stats", urgencyStatsHandler(cfg.Triage))

		// Consultation queue and lifecycle
		r.Post("/consultation/create", createConsultationHandler(cfg.Consultations))
		r.Get("/consultation/queue", queueHandler(cfg.Consultations))
		r.Post("/consultation/{id}/start", startConsultationHandler(cfg.Consultations))
		r.Post("/consultation/{id}/end", endConsultationHandler(cfg.Consultations))
		r.Get("/consultation/{id}", getConsultationHandler(cfg.Consultations))

		// Providers
		r.Post("/providers", createProviderHandler(cfg.Consultations))
		r.Get("/providers", listProvidersHandler(cfg.Consultations))
		r.Get("/providers/available", listAvailableProvidersHandler(cfg.Consultations))
	})

	return r
}
