// ABOUTME: MCP tool definitions and registration for the companion server
// ABOUTME: Declares the JSON input schemas for the turn, session, memory, flag and admin tools
package mcp

import (
	"context"
	"time"

	"github.com/mark3labs/mcp-go/mcp"
	mcpserver "github.com/mark3labs/mcp-go/server"

	"github.com/harper/companion-engine/internal/companion"
	"github.com/harper/companion-engine/internal/models"
	"github.com/harper/companion-engine/internal/session"
)

// Companion is the subset of the engine the tools call.
type Companion interface {
	HandleTurn(ctx context.Context, req companion.TurnRequest) (*companion.TurnResult, error)
	StartSession(ctx context.Context, sessionID, userID string) (session.Info, error)
	EndSession(ctx context.Context, sessionID string) (bool, error)
	GenerateDailySnapshot(ctx context.Context, userID string, day time.Time) (*models.MemorySnapshot, error)
	GetMemoryContext(ctx context.Context, userID string, days int) (models.MemoryContext, error)
	GetUserFlags(ctx context.Context, userID string) (models.FeatureFlags, error)
	UpdateUserFlags(ctx context.Context, userID string, updates map[string]bool) (models.FeatureFlags, error)
	GetAnalytics(ctx context.Context, from, to time.Time, userID string) (*models.Analytics, error)
	CleanupOldData(ctx context.Context) (companion.CleanupReport, error)
	GetAgentStatus(ctx context.Context) (companion.AgentStatus, error)
	GetProfile(ctx context.Context, userID string) (*models.UserProfile, error)
	SaveProfile(ctx context.Context, profile *models.UserProfile) error
}

func stringProp(description string) map[string]interface{} {
	return map[string]interface{}{
		"type":        "string",
		"description": description,
	}
}

// RegisterTools registers all MCP tools with the server
func RegisterTools(server *mcpserver.MCPServer, engine Companion) *Handlers {
	handlers := &Handlers{engine: engine, now: time.Now}

	// 1. handle_turn - one child utterance through the full pipeline
	server.AddTool(mcp.Tool{
		Name:        "handle_turn",
		Description: "Run one child utterance through the companion and return the reply text with emotion, mode, repair and game metadata.",
		InputSchema: mcp.ToolInputSchema{
			Type: "object",
			Properties: map[string]interface{}{
				"session_id": stringProp("Conversation session ID"),
				"user_id":    stringProp("Child's user ID"),
				"utterance":  stringProp("What the child said"),
				"stt_confidence": map[string]interface{}{
					"type":        "number",
					"description": "Speech recognition confidence between 0 and 1; omit for typed text",
					"default":     1,
				},
			},
			Required: []string{"session_id", "user_id", "utterance"},
		},
	}, handlers.HandleTurn)

	// 2. start_session
	server.AddTool(mcp.Tool{
		Name:        "start_session",
		Description: "Open a conversation session, or return the counters of an existing one.",
		InputSchema: mcp.ToolInputSchema{
			Type: "object",
			Properties: map[string]interface{}{
				"session_id": stringProp("Conversation session ID"),
				"user_id":    stringProp("Child's user ID"),
			},
			Required: []string{"session_id", "user_id"},
		},
	}, handlers.StartSession)

	// 3. end_session
	server.AddTool(mcp.Tool{
		Name:        "end_session",
		Description: "Close a session and persist its telemetry aggregate.",
		InputSchema: mcp.ToolInputSchema{
			Type: "object",
			Properties: map[string]interface{}{
				"session_id": stringProp("Conversation session ID"),
			},
			Required: []string{"session_id"},
		},
	}, handlers.EndSession)

	// 4. generate_daily_snapshot
	server.AddTool(mcp.Tool{
		Name:        "generate_daily_snapshot",
		Description: "Summarize one child's conversations for a UTC day into a stored memory snapshot with a parent summary.",
		InputSchema: mcp.ToolInputSchema{
			Type: "object",
			Properties: map[string]interface{}{
				"user_id": stringProp("Child's user ID"),
				"date":    stringProp("Day as YYYY-MM-DD (default: today)"),
			},
			Required: []string{"user_id"},
		},
	}, handlers.GenerateDailySnapshot)

	// 5. get_memory_context
	server.AddTool(mcp.Tool{
		Name:        "get_memory_context",
		Description: "Fold recent daily snapshots into the context used to personalize replies.",
		InputSchema: mcp.ToolInputSchema{
			Type: "object",
			Properties: map[string]interface{}{
				"user_id": stringProp("Child's user ID"),
				"days": map[string]interface{}{
					"type":        "number",
					"description": "Lookback window in days (default: configured lookback)",
				},
			},
			Required: []string{"user_id"},
		},
	}, handlers.GetMemoryContext)

	// 6. get_user_flags
	server.AddTool(mcp.Tool{
		Name:        "get_user_flags",
		Description: "Resolve a user's effective feature flags: defaults, overrides, then A/B variants.",
		InputSchema: mcp.ToolInputSchema{
			Type: "object",
			Properties: map[string]interface{}{
				"user_id": stringProp("Child's user ID"),
			},
			Required: []string{"user_id"},
		},
	}, handlers.GetUserFlags)

	// 7. update_user_flags
	server.AddTool(mcp.Tool{
		Name:        "update_user_flags",
		Description: "Store feature flag overrides for a user. They apply from the next turn.",
		InputSchema: mcp.ToolInputSchema{
			Type: "object",
			Properties: map[string]interface{}{
				"user_id": stringProp("Child's user ID"),
				"flags": map[string]interface{}{
					"type":                 "object",
					"description":          "Flag names mapped to true or false",
					"additionalProperties": map[string]interface{}{"type": "boolean"},
				},
			},
			Required: []string{"user_id", "flags"},
		},
	}, handlers.UpdateUserFlags)

	// 8. get_analytics
	server.AddTool(mcp.Tool{
		Name:        "get_analytics",
		Description: "Roll up daily telemetry between two dates, for one user or everyone.",
		InputSchema: mcp.ToolInputSchema{
			Type: "object",
			Properties: map[string]interface{}{
				"start_date": stringProp("First day as YYYY-MM-DD (default: 7 days ago)"),
				"end_date":   stringProp("Last day as YYYY-MM-DD (default: today)"),
				"user_id":    stringProp("Restrict to one user (optional)"),
			},
		},
	}, handlers.GetAnalytics)

	// 9. cleanup_old_data
	server.AddTool(mcp.Tool{
		Name:        "cleanup_old_data",
		Description: "Apply the snapshot and telemetry retention windows and evict idle sessions.",
		InputSchema: mcp.ToolInputSchema{
			Type:       "object",
			Properties: map[string]interface{}{},
		},
	}, handlers.CleanupOldData)

	// 10. get_agent_status
	server.AddTool(mcp.Tool{
		Name:        "get_agent_status",
		Description: "Report provider availability, live sessions, storage counts and uptime.",
		InputSchema: mcp.ToolInputSchema{
			Type:       "object",
			Properties: map[string]interface{}{},
		},
	}, handlers.GetAgentStatus)

	// 11. get_profile
	server.AddTool(mcp.Tool{
		Name:        "get_profile",
		Description: "Get a child's profile. Unknown users get the default profile.",
		InputSchema: mcp.ToolInputSchema{
			Type: "object",
			Properties: map[string]interface{}{
				"user_id": stringProp("Child's user ID"),
			},
			Required: []string{"user_id"},
		},
	}, handlers.GetProfile)

	// 12. save_profile
	server.AddTool(mcp.Tool{
		Name:        "save_profile",
		Description: "Create or update a child's profile. Omitted fields keep their stored values.",
		InputSchema: mcp.ToolInputSchema{
			Type: "object",
			Properties: map[string]interface{}{
				"user_id": stringProp("Child's user ID"),
				"name":    stringProp("Child's name"),
				"age": map[string]interface{}{
					"type":        "number",
					"description": "Age in years, 0 to 18",
				},
				"location": stringProp("City or country"),
				"timezone": stringProp("IANA timezone, e.g. America/Chicago"),
				"language": stringProp("Preferred language"),
				"interests": map[string]interface{}{
					"type":        "array",
					"description": "Topics the child likes",
					"items":       map[string]interface{}{"type": "string"},
				},
			},
			Required: []string{"user_id"},
		},
	}, handlers.SaveProfile)

	return handlers
}
