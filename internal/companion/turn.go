// ABOUTME: The fixed turn pipeline: gates, sensing, repair, games, planning, safety, generation, speech, memory
// ABOUTME: Every turn runs under its session's lock and always produces a reply
package companion

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/harper/companion-engine/internal/capability"
	"github.com/harper/companion-engine/internal/core"
	"github.com/harper/companion-engine/internal/llm"
	"github.com/harper/companion-engine/internal/models"
	"github.com/harper/companion-engine/internal/safety"
	"github.com/harper/companion-engine/internal/session"
	"github.com/harper/companion-engine/internal/telemetry"
)

const replyTemperature = 0.7

// TurnRequest is one inbound utterance. A nil STTConfidence means typed
// text, which is treated as fully confident. Voice asks for a spoken reply.
type TurnRequest struct {
	SessionID     string
	UserID        string
	Utterance     string
	STTConfidence *float64
	Voice         bool
}

// VoiceTurnRequest is one inbound audio clip.
type VoiceTurnRequest struct {
	SessionID string
	UserID    string
	Audio     []byte
}

// GameMetadata describes the game a turn touched.
type GameMetadata struct {
	Type      models.GameType      `json:"type"`
	Trigger   models.GameTrigger   `json:"trigger,omitempty"`
	Correct   bool                 `json:"correct"`
	Score     int                  `json:"score"`
	Ended     bool                 `json:"ended"`
	EndReason models.GameEndReason `json:"end_reason,omitempty"`
}

// TurnMetadata explains how a reply was produced.
type TurnMetadata struct {
	SessionID   string                 `json:"session_id"`
	Mode        models.DialogueMode    `json:"mode"`
	Emotion     *models.EmotionalState `json:"emotion,omitempty"`
	Repair      *models.RepairInfo     `json:"repair,omitempty"`
	Game        *GameMetadata          `json:"game,omitempty"`
	Transition  *models.TransitionPlan `json:"transition,omitempty"`
	Content     *models.LibraryContent `json:"content,omitempty"`
	Achievement string                 `json:"achievement,omitempty"`
	// Degraded names capabilities that failed during the turn.
	Degraded []string `json:"degraded,omitempty"`
}

// TurnResult is the reply to one turn.
type TurnResult struct {
	Text        string             `json:"text"`
	Audio       []byte             `json:"-"`
	ContentType models.ContentType `json:"content_type"`
	Metadata    TurnMetadata       `json:"metadata"`
}

// turnInput is the validated request plus the timing computed at the gates.
type turnInput struct {
	utterance  string
	confidence float64
	voice      bool
	now        time.Time
	silence    time.Duration
}

// draft is a reply on its way through speech, memory and telemetry.
type draft struct {
	text       string
	content    models.ContentType
	mode       models.DialogueMode
	prosody    models.Prosody
	emotion    models.EmotionalState
	meta       TurnMetadata
	skipMemory bool
}

// HandleTurn runs the turn pipeline for a text or transcribed utterance.
func (e *Engine) HandleTurn(ctx context.Context, req TurnRequest) (*TurnResult, error) {
	if err := validateIDs(req.SessionID, req.UserID); err != nil {
		return nil, err
	}
	utterance := strings.TrimSpace(req.Utterance)
	if utterance == "" {
		return nil, inputErr("utterance", "must not be empty")
	}
	confidence := 1.0
	if req.STTConfidence != nil {
		if *req.STTConfidence < 0 || *req.STTConfidence > 1 {
			return nil, inputErr("stt_confidence", "must be between 0 and 1")
		}
		confidence = *req.STTConfidence
	}

	var result *TurnResult
	err := e.sessions.WithSession(ctx, req.SessionID, req.UserID, func(s *session.Session, created bool) error {
		e.refresh(ctx, s, created)
		result = e.runTurn(ctx, s, turnInput{utterance: utterance, confidence: confidence, voice: req.Voice})
		return nil
	})
	if err != nil {
		return nil, sessionErr(err)
	}
	return result, nil
}

// HandleVoiceTurn transcribes audio and runs the transcript through
// HandleTurn. Unusable audio gets a request to repeat.
func (e *Engine) HandleVoiceTurn(ctx context.Context, req VoiceTurnRequest) (*TurnResult, error) {
	if err := validateIDs(req.SessionID, req.UserID); err != nil {
		return nil, err
	}
	if len(req.Audio) == 0 {
		return nil, inputErr("audio", "must not be empty")
	}

	transcript, sttErr := capability.Call(ctx, "stt", e.cfg.SpeechTimeout, func(ctx context.Context) (capability.Transcript, error) {
		return e.stt.Transcribe(ctx, req.Audio, true)
	})
	transcript.Text = strings.TrimSpace(transcript.Text)
	if sttErr == nil && !transcript.Empty() {
		return e.HandleTurn(ctx, TurnRequest{
			SessionID:     req.SessionID,
			UserID:        req.UserID,
			Utterance:     transcript.Text,
			STTConfidence: &transcript.Confidence,
			Voice:         true,
		})
	}

	var result *TurnResult
	err := e.sessions.WithSession(ctx, req.SessionID, req.UserID, func(s *session.Session, created bool) error {
		e.refresh(ctx, s, created)
		if s.MicLocked(e.clock.Now()) {
			result = e.gateReply(s, listeningReply, models.ContentListening)
			return nil
		}
		result = e.gateReply(s, sayAgainReply, models.ContentRepair)
		if sttErr != nil {
			e.logger.Warn("speech recognition failed", zap.String("session_id", s.ID), zap.Error(sttErr))
			e.capabilityError(ctx, s, "stt", sttErr, &result.Metadata)
		}
		e.speak(ctx, s, result, core.ProsodyFor(models.ModeRepair, models.NeutralEmotion()))
		return nil
	})
	if err != nil {
		return nil, sessionErr(err)
	}
	return result, nil
}

// refresh reloads the profile and flags so updates apply to the next turn.
func (e *Engine) refresh(ctx context.Context, s *session.Session, created bool) {
	profile, err := e.memory.Profile(ctx, s.UserID)
	if err != nil {
		e.logger.Warn("failed to load profile", zap.String("user_id", s.UserID), zap.Error(err))
		if s.Profile == nil {
			profile = models.NewUserProfile(s.UserID)
		} else {
			profile = s.Profile
		}
	}
	s.Profile = profile
	s.Flags = e.telemetry.ResolveFlags(ctx, s.UserID)
	if created {
		e.track(ctx, s, models.EventSessionStart, nil)
	}
}

// runTurn applies the mic-lock, rate and break gates, then the pipeline.
func (e *Engine) runTurn(ctx context.Context, s *session.Session, in turnInput) *TurnResult {
	now := e.clock.Now()
	if s.MicLocked(now) {
		return e.gateReply(s, listeningReply, models.ContentListening)
	}

	if s.Flags.Enabled(telemetry.FlagRateLimiting) && e.cfg.RateLimitPerHour > 0 {
		if rate := s.InteractionsPerHour(now); rate > float64(e.cfg.RateLimitPerHour) {
			s.MicLockedUntil = now.Add(e.cfg.MicLockDuration)
			e.track(ctx, s, models.EventRateLimited, map[string]any{
				"interactions_per_hour": rate,
				"lock_seconds":          e.cfg.MicLockDuration.Seconds(),
			})
			e.logger.Info("session rate limited",
				zap.String("session_id", s.ID),
				zap.Float64("interactions_per_hour", rate))
			return e.gateReply(s, throttleReply, models.ContentThrottle)
		}
	}

	if s.Flags.Enabled(telemetry.FlagBreakReminders) && s.BreakDue(now, e.cfg.BreakThreshold) {
		s.LastBreakSuggestion = now
		e.track(ctx, s, models.EventBreakSuggested, map[string]any{
			"session_minutes": now.Sub(s.StartTime).Minutes(),
		})
		return e.gateReply(s, breakReply, models.ContentBreak)
	}

	s.InteractionCount++
	in.now = now
	if !s.LastTurnAt.IsZero() {
		in.silence = now.Sub(s.LastTurnAt)
	}
	s.LastTurnAt = now
	return e.pipeline(ctx, s, in)
}

func (e *Engine) gateReply(s *session.Session, text string, ct models.ContentType) *TurnResult {
	return &TurnResult{
		Text:        text,
		ContentType: ct,
		Metadata:    TurnMetadata{SessionID: s.ID, Mode: s.Dialogue.Current},
	}
}

// pipeline runs the recoverable part of a turn. Panics and unexpected errors
// become the apology reply.
func (e *Engine) pipeline(ctx context.Context, s *session.Session, in turnInput) (res *TurnResult) {
	defer func() {
		if r := recover(); r != nil {
			e.logger.Error("turn panicked",
				zap.String("session_id", s.ID),
				zap.Any("panic", r),
				zap.Stack("stack"))
			res = e.systemError(ctx, s, fmt.Errorf("panic: %v", r))
		}
	}()

	out, err := e.respond(ctx, s, in)
	if err != nil {
		e.logger.Error("turn failed", zap.String("session_id", s.ID), zap.Error(err))
		return e.systemError(ctx, s, err)
	}
	return out
}

func (e *Engine) systemError(ctx context.Context, s *session.Session, cause error) *TurnResult {
	e.track(ctx, s, models.EventSystemError, map[string]any{"error": cause.Error()})
	return e.gateReply(s, apologyReply, models.ContentFallback)
}

func (e *Engine) respond(ctx context.Context, s *session.Session, in turnInput) (*TurnResult, error) {
	flags := s.Flags
	profile := s.Profile
	age := profile.EffectiveAge()

	memCtx := models.EmptyMemoryContext(s.UserID, e.cfg.MemoryLookbackDays)
	if flags.Enabled(telemetry.FlagMemoryContext) {
		loaded, err := e.memory.GetMemoryContext(ctx, s.UserID, e.cfg.MemoryLookbackDays)
		if err != nil {
			return nil, fmt.Errorf("failed to load memory context: %w", err)
		}
		memCtx = loaded
	}

	emotion := models.NeutralEmotion()
	if flags.Enabled(telemetry.FlagEmotionalSensing) {
		if flags.Enabled(telemetry.FlagLLMEmotionFallback) {
			emotion = e.sensor.Classify(ctx, in.utterance)
		} else {
			emotion = e.keywords.Classify(ctx, in.utterance)
		}
		if emotion.Mood == models.MoodNeutral {
			s.ConsecutiveNeutral++
		} else {
			s.ConsecutiveNeutral = 0
		}
	}

	if flags.Enabled(telemetry.FlagConversationalRepair) {
		info := core.DetectRepair(in.utterance, in.confidence, core.RepairContext{
			LastAIResponse:    s.LastAIResponse,
			ExpectShortAnswer: s.ActiveGame != nil || strings.HasSuffix(strings.TrimSpace(s.LastAIResponse), "?"),
			Interests:         profile.Interests,
			Topics:            sortedKeys(s.Memory.Topics),
			Age:               age,
		})
		if info.Needed {
			plan := e.dialogue.Plan(&s.Dialogue, core.PlanInput{
				Utterance:    in.utterance,
				Emotion:      emotion,
				RepairNeeded: true,
				Profile:      profile,
				Now:          in.now,
				Silence:      in.silence,
			})
			e.track(ctx, s, models.EventRepairTriggered, map[string]any{
				"type":        string(info.Type),
				"suggestions": len(info.Suggestions),
			})
			e.trackTransition(ctx, s, plan.Transition)
			return e.finish(ctx, s, in, draft{
				text:    info.Response,
				content: models.ContentRepair,
				mode:    plan.Mode,
				prosody: plan.Prosody,
				emotion: emotion,
				meta:    TurnMetadata{Repair: &info, Transition: plan.Transition},
			})
		}
	}

	gamesOn := flags.Enabled(telemetry.FlagGamesEnabled) && flags.Enabled(telemetry.FlagMicroGames)
	if !gamesOn {
		s.ActiveGame = nil
	}
	if gamesOn {
		if res, ok, err := e.playGame(ctx, s, in, emotion, age); ok {
			return res, err
		}
	}

	disabled := map[models.DialogueMode]bool{
		models.ModeBedtime: !flags.Enabled(telemetry.FlagBedtimeMode),
		models.ModeStory:   !flags.Enabled(telemetry.FlagStoryMode),
		models.ModeGame:    !gamesOn,
	}
	plan := e.dialogue.Plan(&s.Dialogue, core.PlanInput{
		Utterance: in.utterance,
		Emotion:   emotion,
		Profile:   profile,
		Now:       in.now,
		Silence:   in.silence,
		Disabled:  disabled,
	})
	if !flags.Enabled(telemetry.FlagCulturalContext) {
		plan.Cultural.Hinglish = false
		plan.Cultural.Colloquialisms = false
	}
	e.trackTransition(ctx, s, plan.Transition)

	meta := TurnMetadata{Transition: plan.Transition}
	if flags.Enabled(telemetry.FlagSafetyFilter) {
		verdict, err := capability.Call(ctx, "safety", e.cfg.SafetyTimeout, func(ctx context.Context) (models.SafetyVerdict, error) {
			return e.safety.Check(ctx, in.utterance, age)
		})
		if err != nil {
			e.logger.Warn("safety check unavailable, redirecting", zap.String("session_id", s.ID), zap.Error(err))
			e.capabilityError(ctx, s, "safety", err, &meta)
		} else if !verdict.Safe {
			e.track(ctx, s, models.EventSafetyViolation, map[string]any{"reason": verdict.Reason})
		}
		if err != nil || !verdict.Safe {
			return e.finish(ctx, s, in, draft{
				text:       safety.Redirect(age),
				content:    models.ContentSafetyRedirect,
				mode:       plan.Mode,
				prosody:    plan.Prosody,
				emotion:    emotion,
				meta:       meta,
				skipMemory: true,
			})
		}
	}

	req := capability.GenerationRequest{
		SystemPrompt: buildSystemPrompt(promptInput{Profile: profile, Emotion: emotion, Plan: plan, Memory: memCtx}),
		History:      historyMessages(&s.Memory),
		UserMessage:  in.utterance,
		TokenBudget:  plan.TokenBudget,
		Temperature:  replyTemperature,
	}
	reply, err := capability.Call(ctx, "llm", e.cfg.LLMTimeout, func(ctx context.Context) (string, error) {
		return e.generator.Generate(ctx, req)
	})
	if err != nil {
		e.capabilityError(ctx, s, "llm", err, &meta)
		return e.finish(ctx, s, in, draft{
			text:    fallbackReply,
			content: models.ContentFallback,
			mode:    plan.Mode,
			prosody: plan.Prosody,
			emotion: emotion,
			meta:    meta,
		})
	}

	text, ct := strings.TrimSpace(reply), models.ContentConversation
	if flags.Enabled(telemetry.FlagContentEnhancement) {
		enhanced, err := e.enhancer.Enhance(ctx, text, plan.Mode, profile)
		if err != nil {
			e.logger.Warn("content enhancement failed", zap.String("session_id", s.ID), zap.Error(err))
		} else {
			text, ct, meta.Content = enhanced.Text, enhanced.ContentType, enhanced.Content
		}
		if (ct == models.ContentSong && !flags.Enabled(telemetry.FlagSongMode)) ||
			(ct == models.ContentStory && !flags.Enabled(telemetry.FlagStoryMode)) {
			ct, meta.Content = models.ContentConversation, nil
		}
	}
	if text == "" {
		text, ct = fallbackReply, models.ContentFallback
	}

	return e.finish(ctx, s, in, draft{
		text:    text,
		content: ct,
		mode:    plan.Mode,
		prosody: plan.Prosody,
		emotion: emotion,
		meta:    meta,
	})
}

// playGame routes the turn to the active game or starts one. ok is false when
// the turn is not a game turn.
func (e *Engine) playGame(ctx context.Context, s *session.Session, in turnInput, emotion models.EmotionalState, age int) (*TurnResult, bool, error) {
	if game := s.ActiveGame; game != nil {
		// a repair turn may have moved the session off Game mid-game
		if s.Dialogue.Current != models.ModeGame {
			s.Dialogue.Current = models.ModeGame
			s.Dialogue.Record(models.ModeRecord{Mode: models.ModeGame, At: in.now, Reason: "game_resumed"})
		}
		outcome := e.games.ProcessAnswer(game, in.utterance, in.now)
		e.track(ctx, s, models.EventGameAnswer, map[string]any{
			"game_type": string(game.Type),
			"correct":   outcome.Correct,
			"score":     outcome.Score,
		})
		gm := &GameMetadata{
			Type:      game.Type,
			Correct:   outcome.Correct,
			Score:     outcome.Score,
			Ended:     outcome.Ended,
			EndReason: outcome.EndReason,
		}
		if outcome.Ended {
			s.ActiveGame = nil
			s.Dialogue.Current = models.ModeChat
			s.Dialogue.Record(models.ModeRecord{Mode: models.ModeChat, At: in.now, Reason: "game_" + string(outcome.EndReason)})
			e.track(ctx, s, models.EventGameCompleted, map[string]any{
				"game_type": string(game.Type),
				"reason":    string(outcome.EndReason),
				"score":     outcome.Score,
			})
		}
		res, err := e.finish(ctx, s, in, draft{
			text:    outcome.Text,
			content: models.ContentGame,
			mode:    models.ModeGame,
			prosody: core.ProsodyFor(models.ModeGame, emotion),
			emotion: emotion,
			meta:    TurnMetadata{Game: gm, Achievement: outcome.Achievement},
		})
		return res, true, err
	}

	trigger := e.games.ShouldTrigger(core.TriggerInput{
		Silence:            in.silence,
		EngagementScore:    s.Telemetry.EngagementScore,
		Interactions:       s.InteractionCount,
		Utterance:          in.utterance,
		ConsecutiveNeutral: s.ConsecutiveNeutral,
		Emotion:            emotion,
	})
	if trigger == models.TriggerNone {
		return nil, false, nil
	}

	state, intro := e.games.StartGame(age, emotion, in.now)
	s.ActiveGame = state
	s.ConsecutiveNeutral = 0

	var transition *models.TransitionPlan
	if prev := s.Dialogue.Current; prev != models.ModeGame {
		transition = &models.TransitionPlan{From: prev, To: models.ModeGame, Reason: "game_" + string(trigger)}
	}
	s.Dialogue.Current = models.ModeGame
	s.Dialogue.Record(models.ModeRecord{Mode: models.ModeGame, At: in.now, Reason: "game_" + string(trigger)})
	e.trackTransition(ctx, s, transition)
	e.track(ctx, s, models.EventGameStarted, map[string]any{
		"game_type": string(state.Type),
		"trigger":   string(trigger),
	})

	res, err := e.finish(ctx, s, in, draft{
		text:    intro,
		content: models.ContentGame,
		mode:    models.ModeGame,
		prosody: core.ProsodyFor(models.ModeGame, emotion),
		emotion: emotion,
		meta:    TurnMetadata{Game: &GameMetadata{Type: state.Type, Trigger: trigger}, Transition: transition},
	})
	return res, true, err
}

// finish synthesizes speech, records the turn and emits the usage events.
func (e *Engine) finish(ctx context.Context, s *session.Session, in turnInput, d draft) (*TurnResult, error) {
	d.meta.SessionID = s.ID
	d.meta.Mode = d.mode
	emotion := d.emotion
	d.meta.Emotion = &emotion
	res := &TurnResult{Text: d.text, ContentType: d.content, Metadata: d.meta}

	e.speak(ctx, s, res, d.prosody)

	if !d.skipMemory {
		turn, err := models.NewTurn(s.UserID, s.ID, in.utterance, d.text, in.now)
		if err != nil {
			return nil, fmt.Errorf("failed to build turn: %w", err)
		}
		turn.Emotion = d.emotion
		turn.Mode = d.mode
		turn.ContentType = d.content
		turn.Achievement = d.meta.Achievement
		if err := e.memory.Record(ctx, &s.Memory, *turn); err != nil {
			e.logger.Warn("failed to record turn", zap.String("session_id", s.ID), zap.Error(err))
			e.track(ctx, s, models.EventError, map[string]any{"component": "memory", "error": err.Error()})
			res.Metadata.Degraded = append(res.Metadata.Degraded, "memory")
		}
	}

	e.track(ctx, s, models.EventInteraction, map[string]any{
		"mode":         d.mode.String(),
		"content_type": d.content.String(),
	})
	if in.voice {
		e.track(ctx, s, models.EventVoiceInteraction, nil)
	} else {
		e.track(ctx, s, models.EventTextInteraction, nil)
	}
	if ev, ok := contentEvent(d.content); ok {
		payload := map[string]any{}
		if item := d.meta.Content; item != nil {
			payload["content_id"] = item.ID
			payload["title"] = item.Title
		}
		e.track(ctx, s, ev, payload)
	}

	s.LastAIResponse = d.text
	return res, nil
}

// speak attaches audio when voice is on. Failures leave the text reply.
func (e *Engine) speak(ctx context.Context, s *session.Session, res *TurnResult, prosody models.Prosody) {
	if !s.Flags.Enabled(telemetry.FlagVoiceEnabled) || res.Text == "" {
		return
	}
	audio, err := capability.Call(ctx, "tts", e.cfg.SpeechTimeout, func(ctx context.Context) ([]byte, error) {
		return e.tts.Synthesize(ctx, res.Text, prosody)
	})
	if err != nil {
		if errors.Is(err, llm.ErrDisabled) {
			return
		}
		e.logger.Warn("speech synthesis failed, replying with text only", zap.String("session_id", s.ID), zap.Error(err))
		e.capabilityError(ctx, s, "tts", err, &res.Metadata)
		return
	}
	res.Audio = audio
}

func (e *Engine) capabilityError(ctx context.Context, s *session.Session, name string, err error, meta *TurnMetadata) {
	meta.Degraded = append(meta.Degraded, name)
	e.track(ctx, s, models.EventError, map[string]any{"capability": name, "error": err.Error()})
}

func (e *Engine) track(ctx context.Context, s *session.Session, eventType models.EventType, payload map[string]any) {
	e.telemetry.Track(ctx, &s.Telemetry, s.UserID, s.ID, eventType, payload)
}

func (e *Engine) trackTransition(ctx context.Context, s *session.Session, t *models.TransitionPlan) {
	if t == nil {
		return
	}
	e.track(ctx, s, models.EventModeChange, map[string]any{
		"from":   t.From.String(),
		"to":     t.To.String(),
		"reason": t.Reason,
	})
}

func contentEvent(ct models.ContentType) (models.EventType, bool) {
	switch ct {
	case models.ContentStory:
		return models.EventStoryPlayed, true
	case models.ContentSong:
		return models.EventSongPlayed, true
	case models.ContentJoke:
		return models.EventJokeTold, true
	case models.ContentFact:
		return models.EventFactShared, true
	case models.ContentConversation, models.ContentGame, models.ContentRepair, models.ContentBreak,
		models.ContentThrottle, models.ContentListening, models.ContentSafetyRedirect, models.ContentFallback:
		return "", false
	}
	return "", false
}

func sortedKeys(m map[string]int) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

func validateIDs(sessionID, userID string) error {
	if strings.TrimSpace(sessionID) == "" {
		return inputErr("session_id", "must not be empty")
	}
	if strings.TrimSpace(userID) == "" {
		return inputErr("user_id", "must not be empty")
	}
	return nil
}

func sessionErr(err error) error {
	if errors.Is(err, session.ErrOwnerMismatch) {
		return inputErr("session_id", "belongs to another user")
	}
	return err
}
