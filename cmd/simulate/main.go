package main

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log"
	"math/rand"
	"net/http"
	"os"
	"sort"
	"strconv"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/brianvoe/gofakeit/v7"
	"github.com/google/uuid"
)

type SimConfig struct {
	APIBaseURL   string
	Duration     time.Duration
	Workers      int
	TriageRatio  float64
	ChatRatio    float64
	ConsultRatio float64
	ReadRatio    float64
}

// DataPool tracks ids created during the run so later operations can
// target real resources.
type DataPool struct {
	mu            sync.RWMutex
	sessions      []uuid.UUID
	consultations []uuid.UUID
}

func (dp *DataPool) AddSession(id uuid.UUID) {
	dp.mu.Lock()
	defer dp.mu.Unlock()
	dp.sessions = append(dp.sessions, id)
}

func (dp *DataPool) AddConsultation(id uuid.UUID) {
	dp.mu.Lock()
	defer dp.mu.Unlock()
	dp.consultations = append(dp.consultations, id)
}

func (dp *DataPool) GetRandomSession(rng *rand.Rand) (uuid.UUID, bool) {
	dp.mu.RLock()
	defer dp.mu.RUnlock()
	if len(dp.sessions) == 0 {
		return uuid.Nil, false
	}
	return dp.sessions[rng.Intn(len(dp.sessions))], true
}

func (dp *DataPool) GetRandomConsultation(rng *rand.Rand) (uuid.UUID, bool) {
	dp.mu.RLock()
	defer dp.mu.RUnlock()
	if len(dp.consultations) == 0 {
		return uuid.Nil, false
	}
	return dp.consultations[rng.Intn(len(dp.consultations))], true
}

type OperationMetrics struct {
	Total     int64
	Success   int64
	Conflict  int64
	Error     int64
	Latencies []time.Duration
	mu        sync.Mutex
}

func (om *OperationMetrics) Record(latency time.Duration, success bool, conflict bool) {
	atomic.AddInt64(&om.Total, 1)
	if success {
		atomic.AddInt64(&om.Success, 1)
	} else if conflict {
		atomic.AddInt64(&om.Conflict, 1)
	} else {
		atomic.AddInt64(&om.Error, 1)
	}

	om.mu.Lock()
	om.Latencies = append(om.Latencies, latency)
	om.mu.Unlock()
}

func (om *OperationMetrics) Stats() (avg, min, max, p50, p95 time.Duration) {
	om.mu.Lock()
	defer om.mu.Unlock()

	if len(om.Latencies) == 0 {
		return 0, 0, 0, 0, 0
	}

	latencies := make([]time.Duration, len(om.Latencies))
	copy(latencies, om.Latencies)

	sort.Slice(latencies, func(i, j int) bool {
		return latencies[i] < latencies[j]
	})

	var sum time.Duration
	for _, l := range latencies {
		sum += l
	}

	avg = sum / time.Duration(len(latencies))
	min = latencies[0]
	max = latencies[len(latencies)-1]

	p50Idx := len(latencies) * 50 / 100
	if p50Idx >= len(latencies) {
		p50Idx = len(latencies) - 1
	}
	p50 = latencies[p50Idx]

	p95Idx := len(latencies) * 95 / 100
	if p95Idx >= len(latencies) {
		p95Idx = len(latencies) - 1
	}
	p95 = latencies[p95Idx]

	return avg, min, max, p50, p95
}

type Metrics struct {
	Triage      OperationMetrics
	Chat        OperationMetrics
	Consult     OperationMetrics
	ReadSession OperationMetrics
	ReadQueue   OperationMetrics
}

type Simulator struct {
	config  SimConfig
	pool    *DataPool
	client  *http.Client
	metrics Metrics
}

var symptomSets = [][]string{
	{"headache", "fatigue"},
	{"cough", "sore throat", "fever"},
	{"chest pain", "shortness of breath"},
	{"nausea", "abdominal pain"},
	{"back pain"},
	{"dizziness", "blurred vision"},
	{"rash", "itching"},
	{"difficulty breathing"},
}

func main() {
	log.SetFlags(log.LstdFlags | log.Lshortfile)
	log.Println("simulator starting")

	cfg := loadConfig()
	if err := validateConfig(cfg); err != nil {
		log.Fatalf("invalid config: %v", err)
	}

	log.Printf("config: duration=%s workers=%d triage=%.2f chat=%.2f consult=%.2f read=%.2f",
		cfg.Duration, cfg.Workers, cfg.TriageRatio, cfg.ChatRatio, cfg.ConsultRatio, cfg.ReadRatio)

	gofakeit.Seed(time.Now().UnixNano())

	sim := &Simulator{
		config: cfg,
		pool:   &DataPool{},
		client: &http.Client{
			Timeout: 30 * time.Second,
		},
	}

	sim.Run()
	sim.PrintReport()
}

func loadConfig() SimConfig {
	cfg := SimConfig{
		APIBaseURL:   getEnv("SIM_API_BASE_URL", "http://localhost:8080"),
		Duration:     getDuration("SIM_DURATION", 30*time.Second),
		Workers:      getInt("SIM_WORKERS", 10),
		TriageRatio:  getFloat("SIM_TRIAGE_RATIO", 0.4),
		ChatRatio:    getFloat("SIM_CHAT_RATIO", 0.2),
		ConsultRatio: getFloat("SIM_CONSULT_RATIO", 0.1),
		ReadRatio:    getFloat("SIM_READ_RATIO", 0.3),
	}

	// Normalize ratios
	total := cfg.TriageRatio + cfg.ChatRatio + cfg.ConsultRatio + cfg.ReadRatio
	if total > 0 {
		cfg.TriageRatio /= total
		cfg.ChatRatio /= total
		cfg.ConsultRatio /= total
		cfg.ReadRatio /= total
	}

	return cfg
}

func validateConfig(cfg SimConfig) error {
	if cfg.Workers <= 0 {
		return fmt.Errorf("SIM_WORKERS must be > 0")
	}
	if cfg.Duration <= 0 {
		return fmt.Errorf("SIM_DURATION must be > 0")
	}
	return nil
}

func (s *Simulator) Run() {
	ctx, cancel := context.WithTimeout(context.Background(), s.config.Duration)
	defer cancel()

	log.Printf("starting simulation for %s with %d workers", s.config.Duration, s.config.Workers)

	var wg sync.WaitGroup
	for i := 0; i < s.config.Workers; i++ {
		wg.Add(1)
		go func(workerID int) {
			defer wg.Done()
			s.worker(ctx, workerID)
		}(i)
	}

	wg.Wait()
	log.Println("simulation complete")
}

func (s *Simulator) worker(ctx context.Context, workerID int) {
	rng := rand.New(rand.NewSource(time.Now().UnixNano() + int64(workerID)))

	for {
		select {
		case <-ctx.Done():
			return
		default:
			r := rng.Float64()
			switch {
			case r < s.config.TriageRatio:
				s.doTriage(ctx, rng)
			case r < s.config.TriageRatio+s.config.ChatRatio:
				s.doChat(ctx, rng)
			case r < s.config.TriageRatio+s.config.ChatRatio+s.config.ConsultRatio:
				s.doConsult(ctx, rng)
			default:
				if rng.Intn(2) == 0 {
					s.doReadSession(ctx, rng)
				} else {
					s.doReadQueue(ctx)
				}
			}
		}
	}
}

// doTriage runs a full intake: start a session, then submit a symptom report.
func (s *Simulator) doTriage(ctx context.Context, rng *rand.Rand) {
	start := time.Now()

	req, _ := http.NewRequestWithContext(ctx, "POST", s.config.APIBaseURL+"/api/triage/start", nil)
	resp, err := s.client.Do(req)
	if err != nil {
		s.metrics.Triage.Record(time.Since(start), false, false)
		return
	}

	var started struct {
		SessionID uuid.UUID `json:"session_id"`
	}
	bodyBytes, _ := io.ReadAll(resp.Body)
	resp.Body.Close()
	if resp.StatusCode != http.StatusOK || json.Unmarshal(bodyBytes, &started) != nil || started.SessionID == uuid.Nil {
		s.metrics.Triage.Record(time.Since(start), false, false)
		return
	}

	symptoms := symptomSets[rng.Intn(len(symptomSets))]
	reqBody := map[string]any{
		"symptoms": symptoms,
		"severity": rng.Intn(10) + 1,
		"duration": fmt.Sprintf("%d days", rng.Intn(7)+1),
		"age":      rng.Intn(72) + 18,
	}
	body, _ := json.Marshal(reqBody)

	req, _ = http.NewRequestWithContext(ctx, "POST",
		s.config.APIBaseURL+"/api/triage/symptoms/"+started.SessionID.String(), bytes.NewReader(body))
	req.Header.Set("Content-Type", "application/json")

	resp, err = s.client.Do(req)
	latency := time.Since(start)

	success := false
	if err == nil {
		io.Copy(io.Discard, resp.Body)
		resp.Body.Close()
		success = resp.StatusCode == http.StatusOK
	}

	if success {
		s.pool.AddSession(started.SessionID)
	}
	s.metrics.Triage.Record(latency, success, false)
}

func (s *Simulator) doChat(ctx context.Context, rng *rand.Rand) {
	sessionID, ok := s.pool.GetRandomSession(rng)
	if !ok {
		return
	}

	start := time.Now()

	reqBody := map[string]string{"message": gofakeit.Sentence(8)}
	body, _ := json.Marshal(reqBody)

	req, _ := http.NewRequestWithContext(ctx, "POST",
		s.config.APIBaseURL+"/api/triage/chat/"+sessionID.String(), bytes.NewReader(body))
	req.Header.Set("Content-Type", "application/json")

	resp, err := s.client.Do(req)
	latency := time.Since(start)

	success := false
	if err == nil {
		io.Copy(io.Discard, resp.Body)
		resp.Body.Close()
		success = resp.StatusCode == http.StatusOK
	}

	s.metrics.Chat.Record(latency, success, false)
}

func (s *Simulator) doConsult(ctx context.Context, rng *rand.Rand) {
	sessionID, ok := s.pool.GetRandomSession(rng)
	if !ok {
		return
	}

	start := time.Now()

	reqBody := map[string]string{
		"triage_session_id": sessionID.String(),
		"patient_name":      gofakeit.Name(),
	}
	body, _ := json.Marshal(reqBody)

	req, _ := http.NewRequestWithContext(ctx, "POST",
		s.config.APIBaseURL+"/api/consultation/create", bytes.NewReader(body))
	req.Header.Set("Content-Type", "application/json")

	resp, err := s.client.Do(req)
	latency := time.Since(start)

	success := false
	conflict := false

	if err == nil {
		bodyBytes, _ := io.ReadAll(resp.Body)
		resp.Body.Close()

		switch resp.StatusCode {
		case http.StatusOK:
			success = true
			var created struct {
				ConsultationID uuid.UUID `json:"consultation_id"`
			}
			if json.Unmarshal(bodyBytes, &created) == nil && created.ConsultationID != uuid.Nil {
				s.pool.AddConsultation(created.ConsultationID)
			}
		case http.StatusConflict:
			conflict = true
		}
	}

	s.metrics.Consult.Record(latency, success, conflict)
}

func (s *Simulator) doReadSession(ctx context.Context, rng *rand.Rand) {
	sessionID, ok := s.pool.GetRandomSession(rng)
	if !ok {
		return
	}

	start := time.Now()

	req, _ := http.NewRequestWithContext(ctx, "GET",
		s.config.APIBaseURL+"/api/triage/session/"+sessionID.String(), nil)

	resp, err := s.client.Do(req)
	latency := time.Since(start)

	success := false
	if err == nil {
		io.Copy(io.Discard, resp.Body)
		resp.Body.Close()
		success = resp.StatusCode == http.StatusOK
	}

	s.metrics.ReadSession.Record(latency, success, false)
}

func (s *Simulator) doReadQueue(ctx context.Context) {
	start := time.Now()

	req, _ := http.NewRequestWithContext(ctx, "GET", s.config.APIBaseURL+"/api/consultation/queue", nil)

	resp, err := s.client.Do(req)
	latency := time.Since(start)

	success := false
	if err == nil {
		io.Copy(io.Discard, resp.Body)
		resp.Body.Close()
		success = resp.StatusCode == http.StatusOK
	}

	s.metrics.ReadQueue.Record(latency, success, false)
}

func (s *Simulator) PrintReport() {
	fmt.Println("\n" + strings.Repeat("=", 80))
	fmt.Println("SIMULATION REPORT")
	fmt.Println(strings.Repeat("=", 80))
	fmt.Printf("Duration: %s\n", s.config.Duration)
	fmt.Printf("Workers: %d\n", s.config.Workers)
	fmt.Println()

	printOperationReport("Triage Intake", &s.metrics.Triage)
	printOperationReport("Chat", &s.metrics.Chat)
	printOperationReport("Create Consultation", &s.metrics.Consult)
	printOperationReport("Read Session", &s.metrics.ReadSession)
	printOperationReport("Read Queue", &s.metrics.ReadQueue)
}

func printOperationReport(name string, om *OperationMetrics) {
	total := atomic.LoadInt64(&om.Total)
	if total == 0 {
		return
	}

	success := atomic.LoadInt64(&om.Success)
	conflict := atomic.LoadInt64(&om.Conflict)
	errCount := atomic.LoadInt64(&om.Error)

	avg, min, max, p50, p95 := om.Stats()

	fmt.Printf("%s:\n", name)
	fmt.Printf("  Total: %d\n", total)
	fmt.Printf("  Success: %d (%.1f%%)\n", success, float64(success)/float64(total)*100)
	if conflict > 0 {
		fmt.Printf("  Conflicts: %d (%.1f%%)\n", conflict, float64(conflict)/float64(total)*100)
	}
	if errCount > 0 {
		fmt.Printf("  Errors: %d (%.1f%%)\n", errCount, float64(errCount)/float64(total)*100)
	}
	fmt.Printf("  Latency: avg=%s min=%s max=%s p50=%s p95=%s\n",
		avg.Round(time.Millisecond), min.Round(time.Millisecond), max.Round(time.Millisecond),
		p50.Round(time.Millisecond), p95.Round(time.Millisecond))
	fmt.Println()
}

func getEnv(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func getDuration(key string, def time.Duration) time.Duration {
	if v := os.Getenv(key); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			return d
		}
	}
	return def
}

func getInt(key string, def int) int {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			return n
		}
	}
	return def
}

func getFloat(key string, def float64) float64 {
	if v := os.Getenv(key); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			return f
		}
	}
	return def
}
