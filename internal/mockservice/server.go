package mockservice

import (
	"encoding/json"
	"log/slog"
	"math/rand"
	"net/http"
	"strings"
	"sync"
	"time"

	"drowsy/internal/detection"
	"drowsy/internal/logging"
)

// Pattern selects how status readings evolve while detection runs.
type Pattern string

const (
	// PatternCycle replays a fixed drive: alert, drowsy, face lost, recovery.
	PatternCycle Pattern = "cycle"
	// PatternRandom random-walks the score from a seed.
	PatternRandom Pattern = "random"
	// PatternDrowsy reports drowsy on every reading.
	PatternDrowsy Pattern = "drowsy"
	// PatternAlert reports alert on every reading.
	PatternAlert Pattern = "alert"
)

// Patterns lists the accepted pattern names.
var Patterns = []Pattern{PatternCycle, PatternRandom, PatternDrowsy, PatternAlert}

// ParsePattern resolves a pattern name, defaulting to PatternCycle.
func ParsePattern(name string) (Pattern, bool) {
	name = strings.ToLower(strings.TrimSpace(name))
	if name == "" {
		return PatternCycle, true
	}
	for _, p := range Patterns {
		if string(p) == name {
			return p, true
		}
	}
	return PatternCycle, false
}

var cycle = []detection.Status{
	{Status: "alert", Score: 92},
	{Status: "alert", Score: 90},
	{Status: "alert", Score: 88},
	{Status: "alert", Score: 81},
	{Status: "drowsy", Score: 46},
	{Status: "drowsy", Score: 38},
	{Status: "drowsy", Score: 33},
	{Status: "no_face", Score: 0},
	{Status: "no_eyes", Score: 12},
	{Status: "alert", Score: 85},
}

// Options configures a Server.
type Options struct {
	Pattern Pattern
	Seed    int64
	// RejectStart makes start-detection fail with this message.
	RejectStart string
	// Latency delays every response.
	Latency time.Duration
	Logger  *slog.Logger
}

// Server implements the detection service HTTP contract under /api.
type Server struct {
	opts   Options
	logger *slog.Logger

	mu      sync.Mutex
	running bool
	step    int
	score   float64
	rng     *rand.Rand
	starts  int
	stops   int
	polls   int
}

// New constructs a mock service.
func New(opts Options) *Server {
	if opts.Pattern == "" {
		opts.Pattern = PatternCycle
	}
	if opts.Seed == 0 {
		opts.Seed = time.Now().UnixNano()
	}
	logger := opts.Logger
	if logger == nil {
		logger = logging.NewNop()
	}
	return &Server{
		opts:   opts,
		logger: logger.With(logging.String(logging.FieldComponent, "mockservice")),
		rng:    rand.New(rand.NewSource(opts.Seed)),
		score:  90,
	}
}

// Handler returns the HTTP routes for the contract.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("POST /api/start-detection", s.handleStart)
	mux.HandleFunc("POST /api/stop-detection", s.handleStop)
	mux.HandleFunc("GET /api/status", s.handleStatus)
	return s.withLatency(mux)
}

// Counters reports how many start, stop and status requests were served.
func (s *Server) Counters() (starts, stops, polls int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.starts, s.stops, s.polls
}

// Running reports whether detection has been started and not stopped.
func (s *Server) Running() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.running
}

func (s *Server) withLatency(next http.Handler) http.Handler {
	if s.opts.Latency <= 0 {
		return next
	}
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-time.After(s.opts.Latency):
		case <-r.Context().Done():
			return
		}
		next.ServeHTTP(w, r)
	})
}

func (s *Server) handleStart(w http.ResponseWriter, _ *http.Request) {
	s.mu.Lock()
	s.starts++
	if msg := strings.TrimSpace(s.opts.RejectStart); msg != "" {
		s.mu.Unlock()
		s.logger.Info("rejecting start", logging.String("message", msg))
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": msg})
		return
	}
	s.running = true
	s.step = 0
	s.score = 90
	s.mu.Unlock()

	s.logger.Info("detection started", logging.String("pattern", string(s.opts.Pattern)))
	writeJSON(w, http.StatusOK, map[string]string{"message": "Detection started"})
}

func (s *Server) handleStop(w http.ResponseWriter, _ *http.Request) {
	s.mu.Lock()
	s.stops++
	s.running = false
	s.mu.Unlock()

	s.logger.Info("detection stopped")
	writeJSON(w, http.StatusOK, map[string]string{"message": "Detection stopped"})
}

func (s *Server) handleStatus(w http.ResponseWriter, _ *http.Request) {
	s.mu.Lock()
	s.polls++
	status := s.nextLocked()
	s.mu.Unlock()

	writeJSON(w, http.StatusOK, status)
}

func (s *Server) nextLocked() detection.Status {
	if !s.running {
		return detection.Status{Status: "no_face", Score: 0}
	}
	defer func() { s.step++ }()

	switch s.opts.Pattern {
	case PatternDrowsy:
		return detection.Status{Status: "drowsy", Score: 35}
	case PatternAlert:
		return detection.Status{Status: "alert", Score: 93}
	case PatternRandom:
		return s.randomLocked()
	default:
		return cycle[s.step%len(cycle)]
	}
}

// randomLocked drifts the score and derives a status from it. A small share
// of readings lose the face entirely.
func (s *Server) randomLocked() detection.Status {
	if s.rng.Float64() < 0.05 {
		return detection.Status{Status: "no_face", Score: 0}
	}
	s.score += s.rng.NormFloat64() * 8
	s.score = min(max(s.score, 0), 100)
	score := float64(int(s.score*10)) / 10

	switch {
	case score < 15:
		return detection.Status{Status: "no_eyes", Score: score}
	case score < 55:
		return detection.Status{Status: "drowsy", Score: score}
	default:
		return detection.Status{Status: "alert", Score: score}
	}
}

func writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(body)
}
