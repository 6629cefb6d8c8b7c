package triage

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"

	"github.com/medlinkhq/telehealth-triage/internal/llm"
)

var (
	ErrEmptyMessage = errors.New("message is required")
)

// ChatCapacityReply is returned to the patient when the analysis service is
// rate limited during a chat turn. Chat degrades gracefully instead of
// surfacing an error.
const ChatCapacityReply = "I'm currently experiencing high demand. Please try again in a few moments, or consult with a healthcare professional if this is urgent."

const (
	statsCacheKey = "cache:urgency_stats"
	statsCacheTTL = 30 * time.Second

	chatHistoryLimit = 100
)

// emergencyKeywords force the capacity fallback to Urgent regardless of the
// reported severity score.
var emergencyKeywords = []string{"chest pain", "difficulty breathing", "severe bleeding"}

// Coordinator turns symptom reports into persisted urgency classifications
// and brokers the patient chat. It is stateless between calls except for what
// it reads and writes through the repository.
type Coordinator struct {
	repo Repository
	ai   llm.Client
	rdb  *redis.Client
	log  zerolog.Logger
}

func NewCoordinator(repo Repository, ai llm.Client, rdb *redis.Client, log zerolog.Logger) *Coordinator {
	return &Coordinator{
		repo: repo,
		ai:   ai,
		rdb:  rdb,
		log:  log,
	}
}

// StartSession creates a fresh pending triage session.
func (c *Coordinator) StartSession(ctx context.Context) (*Session, error) {
	s, err := c.repo.CreateSession(ctx)
	if err != nil {
		return nil, fmt.Errorf("create session: %w", err)
	}
	return s, nil
}

// SubmitSymptoms sends the symptom report to the analysis service and
// persists the resulting classification. Capacity failures never reach the
// caller: a deterministic rule-based assessment is computed instead, so this
// path always yields a usable urgency level.
func (c *Coordinator) SubmitSymptoms(ctx context.Context, sessionID uuid.UUID, symptoms SymptomInput) (*Assessment, error) {
	narrative := buildNarrative(symptoms)

	reply, err := c.ai.Complete(ctx, []llm.Message{
		{Role: "system", Content: llm.TriageSystemPrompt},
		{Role: "user", Content: narrative},
	})

	var assessment Assessment
	switch {
	case err == nil:
		assessment = parseAssessment(reply)
	case errors.Is(err, llm.ErrCapacity):
		c.log.Warn().Str("session_id", sessionID.String()).Err(err).
			Msg("analysis service over capacity, using rule-based fallback")
		assessment = fallbackAssessment(symptoms)
	default:
		return nil, fmt.Errorf("analyze symptoms: %w", err)
	}

	if err := c.repo.UpdateAssessment(ctx, sessionID, symptoms, assessment); err != nil {
		return nil, fmt.Errorf("persist assessment: %w", err)
	}

	return &assessment, nil
}

// Chat persists the patient message, replays the stored conversation to the
// analysis service, and persists the reply. A capacity failure returns a
// canned apology instead of an error.
func (c *Coordinator) Chat(ctx context.Context, sessionID uuid.UUID, message string) (string, error) {
	if strings.TrimSpace(message) == "" {
		return "", ErrEmptyMessage
	}

	userMsg := ChatMessage{
		SessionID: sessionID,
		Message:   message,
		Sender:    SenderUser,
		CreatedAt: time.Now().UTC(),
	}
	if err := c.repo.InsertChatMessage(ctx, userMsg); err != nil {
		return "", fmt.Errorf("save user message: %w", err)
	}

	history, err := c.repo.ListChatMessages(ctx, sessionID, chatHistoryLimit)
	if err != nil {
		return "", fmt.Errorf("load chat history: %w", err)
	}

	messages := make([]llm.Message, 0, len(history)+1)
	messages = append(messages, llm.Message{Role: "system", Content: llm.TriageSystemPrompt})
	for _, m := range history {
		role := "user"
		if m.Sender == SenderAI {
			role = "assistant"
		}
		messages = append(messages, llm.Message{Role: role, Content: m.Message})
	}

	reply, err := c.ai.Complete(ctx, messages)
	if err != nil {
		if errors.Is(err, llm.ErrCapacity) {
			c.log.Warn().Str("session_id", sessionID.String()).Err(err).
				Msg("analysis service over capacity during chat")
			return ChatCapacityReply, nil
		}
		return "", fmt.Errorf("chat completion: %w", err)
	}

	aiMsg := ChatMessage{
		SessionID: sessionID,
		Message:   reply,
		Sender:    SenderAI,
		CreatedAt: time.Now().UTC(),
	}
	if err := c.repo.InsertChatMessage(ctx, aiMsg); err != nil {
		return "", fmt.Errorf("save ai message: %w", err)
	}

	return reply, nil
}

// GetSession loads a session together with its chat history.
func (c *Coordinator) GetSession(ctx context.Context, sessionID uuid.UUID) (*Session, []ChatMessage, error) {
	session, err := c.repo.GetSessionByID(ctx, sessionID)
	if err != nil {
		return nil, nil, err
	}

	history, err := c.repo.ListChatMessages(ctx, sessionID, chatHistoryLimit)
	if err != nil {
		return nil, nil, fmt.Errorf("load chat history: %w", err)
	}

	return session, history, nil
}

// UrgencyStats returns per-level session counts, served from a short-lived
// Redis cache when available.
func (c *Coordinator) UrgencyStats(ctx context.Context) ([]UrgencyStat, error) {
	if c.rdb != nil {
		if cached, err := c.rdb.Get(ctx, statsCacheKey).Bytes(); err == nil {
			var stats []UrgencyStat
			if err := json.Unmarshal(cached, &stats); err == nil {
				return stats, nil
			}
		}
	}

	stats, err := c.repo.UrgencyStats(ctx)
	if err != nil {
		return nil, fmt.Errorf("urgency stats: %w", err)
	}

	if c.rdb != nil {
		if data, err := json.Marshal(stats); err == nil {
			if err := c.rdb.Set(ctx, statsCacheKey, data, statsCacheTTL).Err(); err != nil {
				c.log.Debug().Err(err).Msg("failed to cache urgency stats")
			}
		}
	}

	return stats, nil
}

// buildNarrative renders the structured report as the case narrative the
// system prompt expects.
func buildNarrative(s SymptomInput) string {
	age := "Not provided"
	if s.Age != nil {
		age = fmt.Sprintf("%d", *s.Age)
	}
	gender := "Not provided"
	if s.Gender != nil && *s.Gender != "" {
		gender = *s.Gender
	}

	return fmt.Sprintf(`
Patient presents with:
- Location: %s
- Primary symptoms: %s
- Severity: %d/10
- Duration: %s
- Associated symptoms: %s
- Medical history: %s
- Age: %s
- Gender: %s

Please provide your medical triage assessment.
`,
		s.Location,
		strings.Join(s.Symptoms, ", "),
		s.Severity,
		s.Duration,
		strings.Join(s.AssociatedSymptoms, ", "),
		strings.Join(s.MedicalHistory, ", "),
		age,
		gender,
	)
}

// parseAssessment decodes the model reply. A reply that is not JSON at all is
// wrapped verbatim into a default Routine assessment; a JSON reply keeps every
// field it carries and each missing field gets its default individually.
func parseAssessment(reply string) Assessment {
	var parsed struct {
		Analysis           *string  `json:"analysis"`
		UrgencyLevel       *string  `json:"urgency_level"`
		ConfidenceScore    *float64 `json:"confidence_score"`
		RecommendedActions []string `json:"recommended_actions"`
		FollowUpQuestions  []string `json:"follow_up_questions"`
	}
	if err := json.Unmarshal([]byte(reply), &parsed); err != nil {
		return Assessment{
			Analysis:           reply,
			UrgencyLevel:       string(UrgencyRoutine),
			ConfidenceScore:    0.7,
			RecommendedActions: []string{"Consult with a healthcare provider"},
		}
	}

	a := Assessment{
		Analysis:           reply,
		UrgencyLevel:       string(UrgencyRoutine),
		ConfidenceScore:    0.7,
		RecommendedActions: []string{"Consult with a healthcare provider"},
		FollowUpQuestions:  parsed.FollowUpQuestions,
	}
	if parsed.Analysis != nil {
		a.Analysis = *parsed.Analysis
	}
	if parsed.UrgencyLevel != nil && *parsed.UrgencyLevel != "" {
		a.UrgencyLevel = *parsed.UrgencyLevel
	}
	if parsed.ConfidenceScore != nil {
		a.ConfidenceScore = *parsed.ConfidenceScore
	}
	if parsed.RecommendedActions != nil {
		a.RecommendedActions = parsed.RecommendedActions
	}
	return a
}

// fallbackAssessment computes the rule-based classification used when the
// analysis service is over capacity. Confidence is fixed at 0.6.
func fallbackAssessment(s SymptomInput) Assessment {
	a := Assessment{
		UrgencyLevel:    string(UrgencyRoutine),
		Analysis:        "Our AI system is currently experiencing high demand. Based on your symptoms, please consider consulting with a healthcare provider.",
		ConfidenceScore: 0.6,
		RecommendedActions: []string{
			"Schedule an appointment with your healthcare provider",
			"Monitor your symptoms",
			"Seek immediate care if symptoms worsen",
		},
	}

	switch {
	case s.Severity >= 8 || hasEmergencyKeyword(s.Symptoms):
		a.UrgencyLevel = string(UrgencyUrgent)
		a.Analysis = "Based on your high severity symptoms, you should seek medical attention promptly."
		a.RecommendedActions = []string{
			"Seek immediate medical attention",
			"Call emergency services if symptoms are severe",
			"Do not delay medical care",
		}
	case s.Severity >= 6:
		a.UrgencyLevel = string(UrgencyUrgent)
		a.RecommendedActions = []string{
			"Schedule same-day appointment if possible",
			"Monitor symptoms closely",
			"Seek immediate care if symptoms worsen",
		}
	}

	return a
}

func hasEmergencyKeyword(symptoms []string) bool {
	for _, s := range symptoms {
		lower := strings.ToLower(s)
		for _, kw := range emergencyKeywords {
			if lower == kw {
				return true
			}
		}
	}
	return false
}
