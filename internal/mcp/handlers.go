// ABOUTME: MCP tool handler implementations for the companion server
// ABOUTME: Each handler validates arguments, calls the engine and returns a JSON text result
package mcp

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/mark3labs/mcp-go/mcp"

	"github.com/harper/companion-engine/internal/companion"
	"github.com/harper/companion-engine/internal/models"
)

const (
	dateLayout           = "2006-01-02"
	defaultAnalyticsDays = 7
)

// Handlers contains the handler functions for all MCP tools
type Handlers struct {
	engine   Companion
	now      func() time.Time
	inflight sync.WaitGroup // calls still writing to storage
}

func (h *Handlers) begin() func() {
	h.inflight.Add(1)
	return h.inflight.Done
}

// Shutdown waits for in-flight tool calls to finish.
func (h *Handlers) Shutdown() {
	h.inflight.Wait()
}

func jsonResult(v any) (*mcp.CallToolResult, error) {
	responseJSON, err := json.Marshal(v)
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("failed to marshal response: %v", err)), nil
	}
	return mcp.NewToolResultText(string(responseJSON)), nil
}

// errorResult reports input errors by field and everything else as a failure
// of the named operation.
func errorResult(op string, err error) (*mcp.CallToolResult, error) {
	var inErr *companion.InputError
	if errors.As(err, &inErr) {
		return mcp.NewToolResultError(fmt.Sprintf("invalid %s: %s", inErr.Field, inErr.Reason)), nil
	}
	return mcp.NewToolResultError(fmt.Sprintf("%s failed: %v", op, err)), nil
}

func arguments(request mcp.CallToolRequest) map[string]any {
	args, ok := request.Params.Arguments.(map[string]any)
	if !ok {
		return map[string]any{}
	}
	return args
}

func numberArg(args map[string]any, key string) (float64, bool) {
	n, ok := args[key].(float64)
	return n, ok
}

func (h *Handlers) dateArg(request mcp.CallToolRequest, key string, fallback time.Time) (time.Time, error) {
	raw := request.GetString(key, "")
	if raw == "" {
		return fallback, nil
	}
	day, err := time.Parse(dateLayout, raw)
	if err != nil {
		return time.Time{}, fmt.Errorf("%s must be YYYY-MM-DD", key)
	}
	return day, nil
}

// HandleTurn handles the handle_turn tool
func (h *Handlers) HandleTurn(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	defer h.begin()()

	sessionID, err := request.RequireString("session_id")
	if err != nil {
		return mcp.NewToolResultError("session_id argument is required and must be a string"), nil
	}
	userID, err := request.RequireString("user_id")
	if err != nil {
		return mcp.NewToolResultError("user_id argument is required and must be a string"), nil
	}
	utterance, err := request.RequireString("utterance")
	if err != nil {
		return mcp.NewToolResultError("utterance argument is required and must be a string"), nil
	}

	var confidence *float64
	if n, ok := numberArg(arguments(request), "stt_confidence"); ok {
		confidence = &n
	}

	result, err := h.engine.HandleTurn(ctx, companion.TurnRequest{
		SessionID:     sessionID,
		UserID:        userID,
		Utterance:     utterance,
		STTConfidence: confidence,
	})
	if err != nil {
		return errorResult("turn", err)
	}
	return jsonResult(result)
}

// StartSession handles the start_session tool
func (h *Handlers) StartSession(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	defer h.begin()()

	sessionID, err := request.RequireString("session_id")
	if err != nil {
		return mcp.NewToolResultError("session_id argument is required and must be a string"), nil
	}
	userID, err := request.RequireString("user_id")
	if err != nil {
		return mcp.NewToolResultError("user_id argument is required and must be a string"), nil
	}

	info, err := h.engine.StartSession(ctx, sessionID, userID)
	if err != nil {
		return errorResult("start session", err)
	}
	return jsonResult(info)
}

// EndSession handles the end_session tool
func (h *Handlers) EndSession(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	defer h.begin()()

	sessionID, err := request.RequireString("session_id")
	if err != nil {
		return mcp.NewToolResultError("session_id argument is required and must be a string"), nil
	}

	ended, err := h.engine.EndSession(ctx, sessionID)
	if err != nil {
		return errorResult("end session", err)
	}
	return jsonResult(map[string]interface{}{
		"session_id": sessionID,
		"ended":      ended,
	})
}

// GenerateDailySnapshot handles the generate_daily_snapshot tool
func (h *Handlers) GenerateDailySnapshot(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	defer h.begin()()

	userID, err := request.RequireString("user_id")
	if err != nil {
		return mcp.NewToolResultError("user_id argument is required and must be a string"), nil
	}
	day, err := h.dateArg(request, "date", h.now())
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}

	snap, err := h.engine.GenerateDailySnapshot(ctx, userID, day)
	if errors.Is(err, companion.ErrFeatureDisabled) {
		return mcp.NewToolResultError("daily snapshots are disabled for this user"), nil
	}
	if err != nil {
		return errorResult("snapshot", err)
	}
	return jsonResult(snap)
}

// GetMemoryContext handles the get_memory_context tool
func (h *Handlers) GetMemoryContext(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	userID, err := request.RequireString("user_id")
	if err != nil {
		return mcp.NewToolResultError("user_id argument is required and must be a string"), nil
	}
	days := request.GetInt("days", 0)

	mc, err := h.engine.GetMemoryContext(ctx, userID, days)
	if err != nil {
		return errorResult("memory context", err)
	}
	return jsonResult(mc)
}

// GetUserFlags handles the get_user_flags tool
func (h *Handlers) GetUserFlags(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	userID, err := request.RequireString("user_id")
	if err != nil {
		return mcp.NewToolResultError("user_id argument is required and must be a string"), nil
	}

	flags, err := h.engine.GetUserFlags(ctx, userID)
	if err != nil {
		return errorResult("get flags", err)
	}
	return jsonResult(map[string]interface{}{
		"user_id": userID,
		"flags":   flags,
	})
}

// UpdateUserFlags handles the update_user_flags tool
func (h *Handlers) UpdateUserFlags(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	defer h.begin()()

	userID, err := request.RequireString("user_id")
	if err != nil {
		return mcp.NewToolResultError("user_id argument is required and must be a string"), nil
	}

	raw, ok := arguments(request)["flags"].(map[string]any)
	if !ok {
		return mcp.NewToolResultError("flags argument is required and must be an object"), nil
	}
	updates := make(map[string]bool, len(raw))
	for name, v := range raw {
		b, ok := v.(bool)
		if !ok {
			return mcp.NewToolResultError(fmt.Sprintf("flag %q must be true or false", name)), nil
		}
		updates[name] = b
	}

	flags, err := h.engine.UpdateUserFlags(ctx, userID, updates)
	if err != nil {
		return errorResult("update flags", err)
	}
	return jsonResult(map[string]interface{}{
		"user_id": userID,
		"flags":   flags,
	})
}

// GetAnalytics handles the get_analytics tool
func (h *Handlers) GetAnalytics(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	now := h.now()
	to, err := h.dateArg(request, "end_date", now)
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	from, err := h.dateArg(request, "start_date", to.AddDate(0, 0, -defaultAnalyticsDays))
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}

	report, err := h.engine.GetAnalytics(ctx, from, to, request.GetString("user_id", ""))
	if err != nil {
		return errorResult("analytics", err)
	}
	return jsonResult(report)
}

// CleanupOldData handles the cleanup_old_data tool
func (h *Handlers) CleanupOldData(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	defer h.begin()()

	report, err := h.engine.CleanupOldData(ctx)
	if err != nil {
		return errorResult("cleanup", err)
	}
	return jsonResult(report)
}

// GetAgentStatus handles the get_agent_status tool
func (h *Handlers) GetAgentStatus(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	status, err := h.engine.GetAgentStatus(ctx)
	if err != nil {
		return errorResult("status", err)
	}
	return jsonResult(status)
}

// GetProfile handles the get_profile tool
func (h *Handlers) GetProfile(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	userID, err := request.RequireString("user_id")
	if err != nil {
		return mcp.NewToolResultError("user_id argument is required and must be a string"), nil
	}

	profile, err := h.engine.GetProfile(ctx, userID)
	if err != nil {
		return errorResult("get profile", err)
	}
	return jsonResult(profile)
}

// SaveProfile handles the save_profile tool
func (h *Handlers) SaveProfile(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	defer h.begin()()

	userID, err := request.RequireString("user_id")
	if err != nil {
		return mcp.NewToolResultError("user_id argument is required and must be a string"), nil
	}

	profile, err := h.engine.GetProfile(ctx, userID)
	if err != nil {
		return errorResult("get profile", err)
	}

	args := arguments(request)
	applyProfileArgs(profile, args)

	if err := h.engine.SaveProfile(ctx, profile); err != nil {
		return errorResult("save profile", err)
	}
	return jsonResult(profile)
}

func applyProfileArgs(profile *models.UserProfile, args map[string]any) {
	if v, ok := args["name"].(string); ok {
		profile.Name = v
	}
	if n, ok := numberArg(args, "age"); ok {
		profile.Age = int(n)
	}
	if v, ok := args["location"].(string); ok {
		profile.Location = v
	}
	if v, ok := args["timezone"].(string); ok {
		profile.Timezone = v
	}
	if v, ok := args["language"].(string); ok {
		profile.Language = v
	}
	if raw, ok := args["interests"].([]interface{}); ok {
		interests := make([]string, 0, len(raw))
		for _, item := range raw {
			if s, ok := item.(string); ok && s != "" {
				interests = append(interests, s)
			}
		}
		profile.Interests = interests
	}
}
