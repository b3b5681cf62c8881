// ABOUTME: Test doubles for the engine's capabilities, clock and random source
// ABOUTME: Each fake records its calls and can be scripted to fail or stall
package testutil

import (
	"context"
	"errors"
	"strings"
	"sync"
	"time"

	"github.com/harper/companion-engine/internal/capability"
	"github.com/harper/companion-engine/internal/models"
)

// ErrFake is returned by fakes configured to fail.
var ErrFake = errors.New("fake failure")

// Clock is a settable clock.
type Clock struct {
	mu  sync.Mutex
	now time.Time
}

// NewClock starts a clock at t.
func NewClock(t time.Time) *Clock {
	return &Clock{now: t}
}

// Now returns the current fake time.
func (c *Clock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

// Advance moves the clock forward.
func (c *Clock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

// Set moves the clock to t.
func (c *Clock) Set(t time.Time) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = t
}

// RNG replays scripted values, then falls back to the defaults.
type RNG struct {
	mu     sync.Mutex
	Floats []float64
	Ints   []int
	// DefaultFloat is returned once Floats is exhausted.
	DefaultFloat float64
}

// Float64 returns the next scripted float.
func (r *RNG) Float64() float64 {
	r.mu.Lock()
	defer r.mu.Unlock()
	if len(r.Floats) == 0 {
		return r.DefaultFloat
	}
	f := r.Floats[0]
	r.Floats = r.Floats[1:]
	return f
}

// IntN returns the next scripted int modulo n, or 0.
func (r *RNG) IntN(n int) int {
	r.mu.Lock()
	defer r.mu.Unlock()
	if len(r.Ints) == 0 {
		return 0
	}
	i := r.Ints[0]
	r.Ints = r.Ints[1:]
	return i % n
}

// Generator is a scripted TextGenerator.
type Generator struct {
	mu         sync.Mutex
	Reply      string
	Structured string
	Err        error
	Delay      time.Duration
	Requests   []capability.GenerationRequest
	Prompts    []string
}

// Generate records the request and returns Reply.
func (g *Generator) Generate(ctx context.Context, req capability.GenerationRequest) (string, error) {
	g.mu.Lock()
	g.Requests = append(g.Requests, req)
	reply, err, delay := g.Reply, g.Err, g.Delay
	g.mu.Unlock()
	if waitErr := wait(ctx, delay); waitErr != nil {
		return "", waitErr
	}
	if err != nil {
		return "", err
	}
	return reply, nil
}

// GenerateStructured records the prompt and returns Structured.
func (g *Generator) GenerateStructured(ctx context.Context, prompt string) (string, error) {
	g.mu.Lock()
	g.Prompts = append(g.Prompts, prompt)
	reply, err, delay := g.Structured, g.Err, g.Delay
	g.mu.Unlock()
	if waitErr := wait(ctx, delay); waitErr != nil {
		return "", waitErr
	}
	if err != nil {
		return "", err
	}
	return reply, nil
}

// Calls returns how many generation calls were made.
func (g *Generator) Calls() int {
	g.mu.Lock()
	defer g.mu.Unlock()
	return len(g.Requests) + len(g.Prompts)
}

// LastRequest returns the most recent Generate request.
func (g *Generator) LastRequest() (capability.GenerationRequest, bool) {
	g.mu.Lock()
	defer g.mu.Unlock()
	if len(g.Requests) == 0 {
		return capability.GenerationRequest{}, false
	}
	return g.Requests[len(g.Requests)-1], true
}

// Speech fakes both TTS and STT.
type Speech struct {
	mu          sync.Mutex
	Audio       []byte
	Transcript  capability.Transcript
	Err         error
	Synthesized []string
	Prosodies   []models.Prosody
}

// Synthesize records the text and returns Audio.
func (s *Speech) Synthesize(_ context.Context, text string, prosody models.Prosody) ([]byte, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.Synthesized = append(s.Synthesized, text)
	s.Prosodies = append(s.Prosodies, prosody)
	if s.Err != nil {
		return nil, s.Err
	}
	return s.Audio, nil
}

// Transcribe returns Transcript.
func (s *Speech) Transcribe(_ context.Context, _ []byte, _ bool) (capability.Transcript, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.Err != nil {
		return capability.Transcript{}, s.Err
	}
	return s.Transcript, nil
}

// SynthesisCount returns how many times Synthesize ran.
func (s *Speech) SynthesisCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.Synthesized)
}

// Safety marks any text containing one of Blocked as unsafe.
type Safety struct {
	mu      sync.Mutex
	Blocked []string
	Err     error
	Checked []string
}

// Check records the text and returns a verdict.
func (s *Safety) Check(_ context.Context, text string, _ int) (models.SafetyVerdict, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.Checked = append(s.Checked, text)
	if s.Err != nil {
		return models.SafetyVerdict{}, s.Err
	}
	for _, b := range s.Blocked {
		if containsFold(text, b) {
			return models.SafetyVerdict{Safe: false, Reason: "blocked: " + b}, nil
		}
	}
	return models.SafetyVerdict{Safe: true}, nil
}

// CheckCount returns how many checks ran.
func (s *Safety) CheckCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.Checked)
}

// Library returns fixed content per type.
type Library struct {
	Items map[models.ContentType]*models.LibraryContent
}

// Lookup returns the configured item or nil.
func (l *Library) Lookup(_ context.Context, contentType models.ContentType, _ *models.UserProfile) (*models.LibraryContent, error) {
	if l == nil || l.Items == nil {
		return nil, nil
	}
	return l.Items[contentType], nil
}

func wait(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return nil
	}
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-time.After(d):
		return nil
	}
}

func containsFold(s, sub string) bool {
	return sub != "" && strings.Contains(strings.ToLower(s), strings.ToLower(sub))
}
