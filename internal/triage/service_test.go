package triage

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/medlinkhq/telehealth-triage/internal/llm"
)

// fakeLLM returns a fixed reply or error for every completion.
type fakeLLM struct {
	reply string
	err   error
	calls int
	last  []llm.Message
}

func (f *fakeLLM) Complete(_ context.Context, messages []llm.Message) (string, error) {
	f.calls++
	f.last = messages
	if f.err != nil {
		return "", f.err
	}
	return f.reply, nil
}

// fakeRepo is an in-memory Repository for coordinator tests.
type fakeRepo struct {
	sessions map[uuid.UUID]*Session
	messages []ChatMessage

	lastAssessment *Assessment
	lastSymptoms   *SymptomInput
}

func newFakeRepo() *fakeRepo {
	return &fakeRepo{sessions: make(map[uuid.UUID]*Session)}
}

func (r *fakeRepo) CreateSession(context.Context) (*Session, error) {
	s := &Session{ID: uuid.New(), Status: StatusPending}
	r.sessions[s.ID] = s
	return s, nil
}

func (r *fakeRepo) GetSessionByID(_ context.Context, id uuid.UUID) (*Session, error) {
	s, ok := r.sessions[id]
	if !ok {
		return nil, ErrSessionNotFound
	}
	return s, nil
}

func (r *fakeRepo) UpdateAssessment(_ context.Context, id uuid.UUID, symptoms SymptomInput, a Assessment) error {
	r.lastAssessment = &a
	r.lastSymptoms = &symptoms
	if s, ok := r.sessions[id]; ok {
		lvl := UrgencyLevel(a.UrgencyLevel)
		s.Symptoms = &symptoms
		s.UrgencyLevel = &lvl
		s.AIAnalysis = &a.Analysis
		s.RecommendedActions = a.RecommendedActions
		s.ConfidenceScore = &a.ConfidenceScore
	}
	return nil
}

func (r *fakeRepo) LinkPatient(context.Context, uuid.UUID, uuid.UUID, string) error { return nil }
func (r *fakeRepo) SetStatus(context.Context, uuid.UUID, SessionStatus) error      { return nil }

func (r *fakeRepo) InsertChatMessage(_ context.Context, msg ChatMessage) error {
	r.messages = append(r.messages, msg)
	return nil
}

func (r *fakeRepo) ListChatMessages(_ context.Context, sessionID uuid.UUID, _ int) ([]ChatMessage, error) {
	var out []ChatMessage
	for _, m := range r.messages {
		if m.SessionID == sessionID {
			out = append(out, m)
		}
	}
	return out, nil
}

func (r *fakeRepo) UrgencyStats(context.Context) ([]UrgencyStat, error) {
	return nil, nil
}

func newTestCoordinator(repo Repository, ai llm.Client) *Coordinator {
	return NewCoordinator(repo, ai, nil, zerolog.Nop())
}

func TestSubmitSymptoms_CapacityFallback_HighSeverity(t *testing.T) {
	repo := newFakeRepo()
	ai := &fakeLLM{err: llm.ErrCapacity}
	coord := newTestCoordinator(repo, ai)

	a, err := coord.SubmitSymptoms(context.Background(), uuid.New(), SymptomInput{
		Symptoms: []string{"chest pain"},
		Severity: 9,
	})
	if err != nil {
		t.Fatalf("expected fallback, got error: %v", err)
	}
	if a.UrgencyLevel != string(UrgencyUrgent) {
		t.Fatalf("expected Urgent, got %s", a.UrgencyLevel)
	}
	if a.ConfidenceScore != 0.6 {
		t.Fatalf("expected confidence 0.6, got %v", a.ConfidenceScore)
	}
}

func TestSubmitSymptoms_CapacityFallback_EmergencyKeywordAlone(t *testing.T) {
	repo := newFakeRepo()
	ai := &fakeLLM{err: llm.ErrCapacity}
	coord := newTestCoordinator(repo, ai)

	// Low severity, but the keyword alone escalates.
	a, err := coord.SubmitSymptoms(context.Background(), uuid.New(), SymptomInput{
		Symptoms: []string{"Difficulty Breathing"},
		Severity: 2,
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if a.UrgencyLevel != string(UrgencyUrgent) {
		t.Fatalf("expected Urgent, got %s", a.UrgencyLevel)
	}
}

func TestSubmitSymptoms_CapacityFallback_MidSeverity(t *testing.T) {
	repo := newFakeRepo()
	ai := &fakeLLM{err: llm.ErrCapacity}
	coord := newTestCoordinator(repo, ai)

	a, err := coord.SubmitSymptoms(context.Background(), uuid.New(), SymptomInput{
		Symptoms: []string{"headache"},
		Severity: 6,
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if a.UrgencyLevel != string(UrgencyUrgent) {
		t.Fatalf("expected Urgent for severity 6, got %s", a.UrgencyLevel)
	}
}

func TestSubmitSymptoms_CapacityFallback_LowSeverity(t *testing.T) {
	repo := newFakeRepo()
	ai := &fakeLLM{err: llm.ErrCapacity}
	coord := newTestCoordinator(repo, ai)

	a, err := coord.SubmitSymptoms(context.Background(), uuid.New(), SymptomInput{
		Symptoms: []string{"runny nose"},
		Severity: 3,
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if a.UrgencyLevel != string(UrgencyRoutine) {
		t.Fatalf("expected Routine, got %s", a.UrgencyLevel)
	}
	if a.ConfidenceScore != 0.6 {
		t.Fatalf("expected confidence exactly 0.6, got %v", a.ConfidenceScore)
	}
}

func TestSubmitSymptoms_NonCapacityErrorPropagates(t *testing.T) {
	repo := newFakeRepo()
	ai := &fakeLLM{err: errors.New("connection refused")}
	coord := newTestCoordinator(repo, ai)

	_, err := coord.SubmitSymptoms(context.Background(), uuid.New(), SymptomInput{Severity: 2})
	if err == nil {
		t.Fatal("expected error to propagate")
	}
	if repo.lastAssessment != nil {
		t.Fatal("nothing should be persisted on hard failure")
	}
}

func TestSubmitSymptoms_ValidJSONReply(t *testing.T) {
	repo := newFakeRepo()
	ai := &fakeLLM{reply: `{"analysis":"Likely viral infection","urgency_level":"Self-Care","confidence_score":0.85,"recommended_actions":["Rest","Hydrate"],"follow_up_questions":["Any fever?"]}`}
	coord := newTestCoordinator(repo, ai)

	a, err := coord.SubmitSymptoms(context.Background(), uuid.New(), SymptomInput{Severity: 2})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if a.UrgencyLevel != string(UrgencySelfCare) {
		t.Fatalf("expected Self-Care, got %s", a.UrgencyLevel)
	}
	if a.ConfidenceScore != 0.85 {
		t.Fatalf("expected 0.85, got %v", a.ConfidenceScore)
	}
	if len(a.FollowUpQuestions) != 1 {
		t.Fatalf("expected 1 follow-up question, got %d", len(a.FollowUpQuestions))
	}
	if repo.lastAssessment == nil || repo.lastAssessment.UrgencyLevel != string(UrgencySelfCare) {
		t.Fatal("assessment was not persisted before returning")
	}
}

func TestSubmitSymptoms_MissingConfidenceDefaults(t *testing.T) {
	repo := newFakeRepo()
	ai := &fakeLLM{reply: `{"analysis":"Mild strain","urgency_level":"Self-Care","recommended_actions":["Rest"]}`}
	coord := newTestCoordinator(repo, ai)

	a, err := coord.SubmitSymptoms(context.Background(), uuid.New(), SymptomInput{Severity: 2})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if a.ConfidenceScore != 0.7 {
		t.Fatalf("missing confidence must default to 0.7, got %v", a.ConfidenceScore)
	}
	if a.UrgencyLevel != string(UrgencySelfCare) || a.Analysis != "Mild strain" {
		t.Fatalf("provided fields must be kept, got %+v", a)
	}
	if repo.lastAssessment == nil || repo.lastAssessment.ConfidenceScore != 0.7 {
		t.Fatal("defaulted confidence must be persisted")
	}
}

func TestSubmitSymptoms_EmptyUrgencyKeepsParsedFields(t *testing.T) {
	repo := newFakeRepo()
	ai := &fakeLLM{reply: `{"analysis":"Unclear presentation","urgency_level":"","confidence_score":0.4,"recommended_actions":["See a doctor"]}`}
	coord := newTestCoordinator(repo, ai)

	a, err := coord.SubmitSymptoms(context.Background(), uuid.New(), SymptomInput{Severity: 2})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if a.UrgencyLevel != string(UrgencyRoutine) {
		t.Fatalf("empty urgency must default to Routine, got %s", a.UrgencyLevel)
	}
	if a.Analysis != "Unclear presentation" {
		t.Fatalf("parsed analysis must survive the urgency default, got %q", a.Analysis)
	}
	if a.ConfidenceScore != 0.4 {
		t.Fatalf("parsed confidence must survive, got %v", a.ConfidenceScore)
	}
	if len(a.RecommendedActions) != 1 || a.RecommendedActions[0] != "See a doctor" {
		t.Fatalf("parsed actions must survive, got %v", a.RecommendedActions)
	}
}

func TestSubmitSymptoms_NonJSONReplyWrapped(t *testing.T) {
	repo := newFakeRepo()
	ai := &fakeLLM{reply: "Plain text answer without any structure."}
	coord := newTestCoordinator(repo, ai)

	a, err := coord.SubmitSymptoms(context.Background(), uuid.New(), SymptomInput{Severity: 2})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if a.UrgencyLevel != string(UrgencyRoutine) {
		t.Fatalf("expected Routine, got %s", a.UrgencyLevel)
	}
	if a.ConfidenceScore != 0.7 {
		t.Fatalf("expected 0.7, got %v", a.ConfidenceScore)
	}
	if a.Analysis != "Plain text answer without any structure." {
		t.Fatalf("raw reply should be preserved as analysis, got %q", a.Analysis)
	}
	if len(a.RecommendedActions) != 1 || a.RecommendedActions[0] != "Consult with a healthcare provider" {
		t.Fatalf("unexpected default actions: %v", a.RecommendedActions)
	}
}

func TestSubmitSymptoms_NarrativeContainsReport(t *testing.T) {
	repo := newFakeRepo()
	ai := &fakeLLM{reply: `{"analysis":"ok","urgency_level":"Routine","confidence_score":0.9,"recommended_actions":[]}`}
	coord := newTestCoordinator(repo, ai)

	age := 42
	_, err := coord.SubmitSymptoms(context.Background(), uuid.New(), SymptomInput{
		Location: "lower back",
		Symptoms: []string{"dull ache", "stiffness"},
		Severity: 4,
		Duration: "2 weeks",
		Age:      &age,
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if len(ai.last) != 2 {
		t.Fatalf("expected system + user messages, got %d", len(ai.last))
	}
	narrative := ai.last[1].Content
	for _, want := range []string{"lower back", "dull ache, stiffness", "4/10", "2 weeks", "42"} {
		if !strings.Contains(narrative, want) {
			t.Fatalf("narrative missing %q:\n%s", want, narrative)
		}
	}
}

func TestChat_EmptyMessageRejected(t *testing.T) {
	coord := newTestCoordinator(newFakeRepo(), &fakeLLM{})

	_, err := coord.Chat(context.Background(), uuid.New(), "   ")
	if !errors.Is(err, ErrEmptyMessage) {
		t.Fatalf("expected ErrEmptyMessage, got %v", err)
	}
}

func TestChat_SuccessPersistsBothMessages(t *testing.T) {
	repo := newFakeRepo()
	ai := &fakeLLM{reply: "Can you describe the pain?"}
	coord := newTestCoordinator(repo, ai)

	sessionID := uuid.New()
	reply, err := coord.Chat(context.Background(), sessionID, "My arm hurts")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if reply != "Can you describe the pain?" {
		t.Fatalf("unexpected reply: %q", reply)
	}
	if len(repo.messages) != 2 {
		t.Fatalf("expected user + ai messages persisted, got %d", len(repo.messages))
	}
	if repo.messages[0].Sender != SenderUser || repo.messages[1].Sender != SenderAI {
		t.Fatalf("unexpected senders: %s, %s", repo.messages[0].Sender, repo.messages[1].Sender)
	}
}

func TestChat_HistoryReplayedToModel(t *testing.T) {
	repo := newFakeRepo()
	ai := &fakeLLM{reply: "noted"}
	coord := newTestCoordinator(repo, ai)

	sessionID := uuid.New()
	if _, err := coord.Chat(context.Background(), sessionID, "first"); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if _, err := coord.Chat(context.Background(), sessionID, "second"); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	// system + first/reply + second
	if len(ai.last) != 4 {
		t.Fatalf("expected 4 messages on second turn, got %d", len(ai.last))
	}
	if ai.last[0].Role != "system" {
		t.Fatalf("first message must be the system prompt, got %s", ai.last[0].Role)
	}
	if ai.last[2].Role != "assistant" {
		t.Fatalf("prior reply should be replayed as assistant, got %s", ai.last[2].Role)
	}
}

func TestChat_CapacityReturnsApology(t *testing.T) {
	repo := newFakeRepo()
	ai := &fakeLLM{err: llm.ErrCapacity}
	coord := newTestCoordinator(repo, ai)

	reply, err := coord.Chat(context.Background(), uuid.New(), "hello")
	if err != nil {
		t.Fatalf("capacity failure must not surface an error, got %v", err)
	}
	if reply != ChatCapacityReply {
		t.Fatalf("unexpected reply: %q", reply)
	}
	// Only the user message is persisted; the apology is not stored as an AI turn.
	if len(repo.messages) != 1 {
		t.Fatalf("expected 1 persisted message, got %d", len(repo.messages))
	}
}

func TestGetSession_NotFound(t *testing.T) {
	coord := newTestCoordinator(newFakeRepo(), &fakeLLM{})

	_, _, err := coord.GetSession(context.Background(), uuid.New())
	if !errors.Is(err, ErrSessionNotFound) {
		t.Fatalf("expected ErrSessionNotFound, got %v", err)
	}
}
