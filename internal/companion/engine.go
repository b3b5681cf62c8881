// ABOUTME: Engine is the root orchestrator wiring sessions, classifiers, games, memory and telemetry
// ABOUTME: Construct it once per process from config, storage and the capability providers
package companion

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/harper/companion-engine/internal/capability"
	"github.com/harper/companion-engine/internal/config"
	"github.com/harper/companion-engine/internal/content"
	"github.com/harper/companion-engine/internal/core"
	"github.com/harper/companion-engine/internal/llm"
	"github.com/harper/companion-engine/internal/memory"
	"github.com/harper/companion-engine/internal/safety"
	"github.com/harper/companion-engine/internal/session"
	"github.com/harper/companion-engine/internal/storage/sqlite"
	"github.com/harper/companion-engine/internal/telemetry"
)

// ActivityLog lists the users who had turns in a time range.
type ActivityLog interface {
	UsersActiveBetween(ctx context.Context, from, to time.Time) ([]string, error)
}

// StatsSource reports storage row counts for status output.
type StatsSource interface {
	Stats(ctx context.Context) (map[string]int64, error)
}

// Engine serves turns and the operational queries around them.
type Engine struct {
	cfg *config.Config

	sessions  *session.Registry
	sensor    *core.DelegatingClassifier
	keywords  *core.DelegatingClassifier
	dialogue  *core.DialogueOrchestrator
	games     *core.GameEngine
	memory    *memory.Store
	telemetry *telemetry.Store
	enhancer  *content.Enhancer

	provider  string
	generator capability.TextGenerator
	stt       capability.SpeechToText
	tts       capability.TextToSpeech
	safety    capability.SafetyClassifier
	library   capability.ContentLibrary
	upstream  bool

	activity ActivityLog
	stats    StatsSource

	clock     capability.Clock
	rng       capability.RNG
	logger    *zap.Logger
	startedAt time.Time
}

type options struct {
	clock   capability.Clock
	rng     capability.RNG
	logger  *zap.Logger
	library capability.ContentLibrary
	safety  capability.SafetyClassifier
}

// Option customizes engine construction.
type Option func(*options)

// WithClock replaces the wall clock.
func WithClock(c capability.Clock) Option { return func(o *options) { o.clock = c } }

// WithRNG replaces the seeded random source.
func WithRNG(r capability.RNG) Option { return func(o *options) { o.rng = r } }

// WithLogger sets the logger.
func WithLogger(l *zap.Logger) Option { return func(o *options) { o.logger = l } }

// WithLibrary replaces the embedded content library.
func WithLibrary(l capability.ContentLibrary) Option { return func(o *options) { o.library = l } }

// WithSafety replaces the keyword screen and its upstream classifier.
func WithSafety(s capability.SafetyClassifier) Option { return func(o *options) { o.safety = s } }

// New wires an engine over SQLite storage and the configured providers.
func New(cfg *config.Config, store *sqlite.Storage, providers *llm.Providers, opts ...Option) (*Engine, error) {
	if cfg == nil {
		cfg = config.Default()
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}
	if providers == nil {
		providers = &llm.Providers{Name: "none", Generator: llm.Disabled{}, STT: llm.Disabled{}, TTS: llm.Disabled{}}
	}

	o := options{}
	for _, opt := range opts {
		opt(&o)
	}
	if o.clock == nil {
		o.clock = capability.SystemClock{}
	}
	if o.rng == nil {
		o.rng = capability.NewSeededRNG(cfg.Seed)
	}
	if o.logger == nil {
		o.logger = zap.NewNop()
	}
	if o.library == nil {
		lib, err := content.NewLibrary(o.rng)
		if err != nil {
			return nil, err
		}
		o.library = lib
	}
	if o.safety == nil {
		o.safety = safety.NewScreen(providers.Moderation, o.logger.Named("safety"))
	}

	dialogueCfg, err := dialogueConfig(cfg)
	if err != nil {
		return nil, err
	}

	e := &Engine{
		cfg:       cfg,
		sessions:  session.NewRegistry(o.clock, o.logger.Named("sessions"), cfg.Debug),
		sensor:    core.NewDelegatingClassifier(providers.Generator, cfg.LLMTimeout, o.logger.Named("emotion")),
		keywords:  core.NewDelegatingClassifier(nil, 0, o.logger.Named("emotion")),
		dialogue:  core.NewDialogueOrchestrator(dialogueCfg, o.rng),
		games:     core.NewGameEngine(gameConfig(cfg), o.rng),
		enhancer:  content.NewEnhancer(o.library),
		provider:  providers.Name,
		generator: providers.Generator,
		stt:       providers.STT,
		tts:       providers.TTS,
		safety:    o.safety,
		library:   o.library,
		upstream:  providers.Moderation != nil,
		clock:     o.clock,
		rng:       o.rng,
		logger:    o.logger,
		startedAt: o.clock.Now(),
	}
	e.memory = memory.NewStore(store.Turns, store.Snapshots, store.Profiles, providers.Generator, o.clock,
		o.logger.Named("memory"), memory.Config{
			TranscriptCharLimit: cfg.TranscriptCharLimit,
			SummaryTimeout:      cfg.LLMTimeout,
		})
	e.telemetry = telemetry.NewStore(store.Events, store.Daily, store.Flags, store.Sessions, cfg.ABTests, o.clock,
		o.logger.Named("telemetry"))
	e.activity = store.Turns
	e.stats = store
	return e, nil
}

func dialogueConfig(cfg *config.Config) (core.DialogueConfig, error) {
	start, err := config.ParseClock(cfg.BedtimeStart)
	if err != nil {
		return core.DialogueConfig{}, err
	}
	end, err := config.ParseClock(cfg.BedtimeEnd)
	if err != nil {
		return core.DialogueConfig{}, err
	}
	return core.DialogueConfig{
		BedtimeStart:      start,
		BedtimeEnd:        end,
		SilenceTimeout:    cfg.SilenceTimeout,
		BoredomGameWeight: cfg.BoredomGameWeight,
	}, nil
}

func gameConfig(cfg *config.Config) core.GameConfig {
	return core.GameConfig{
		SilenceThreshold:             cfg.GameSilenceThreshold,
		EngagementThreshold:          cfg.EngagementThreshold,
		ConsecutiveNeutralLimit:      cfg.ConsecutiveNeutralLimit,
		MinInteractionsForEngagement: cfg.MinInteractionsForEngagement,
	}
}
