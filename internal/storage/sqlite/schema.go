// ABOUTME: SQLite database schema for companion storage
// ABOUTME: Timestamps are unix nanoseconds; dates are YYYY-MM-DD strings in UTC
package sqlite

// Schema contains all SQL statements for database initialization
const Schema = `
-- Child profiles, one row per user
CREATE TABLE IF NOT EXISTS profiles (
    user_id TEXT PRIMARY KEY,
    name TEXT,
    age INTEGER,
    location TEXT,
    timezone TEXT,
    language TEXT,
    interests TEXT,
    preferences TEXT,
    updated_at INTEGER NOT NULL
);

-- Durable interaction log, read back by daily snapshots
CREATE TABLE IF NOT EXISTS turns (
    id TEXT PRIMARY KEY,
    user_id TEXT NOT NULL,
    session_id TEXT,
    user_input TEXT NOT NULL,
    ai_response TEXT,
    emotion TEXT,
    mode TEXT,
    content_type TEXT,
    achievement TEXT,
    created_at INTEGER NOT NULL
);

-- Daily memory snapshots, one per user per day
CREATE TABLE IF NOT EXISTS snapshots (
    user_id TEXT NOT NULL,
    date TEXT NOT NULL,
    data TEXT NOT NULL,
    created_at INTEGER NOT NULL,
    PRIMARY KEY (user_id, date)
);

-- Append-only telemetry event log
CREATE TABLE IF NOT EXISTS events (
    id TEXT PRIMARY KEY,
    type TEXT NOT NULL,
    user_id TEXT NOT NULL,
    session_id TEXT,
    payload TEXT,
    created_at INTEGER NOT NULL
);

-- Per-user per-day telemetry rollups
CREATE TABLE IF NOT EXISTS daily_telemetry (
    user_id TEXT NOT NULL,
    date TEXT NOT NULL,
    counters TEXT NOT NULL,
    feature_usage TEXT NOT NULL,
    updated_at INTEGER NOT NULL,
    PRIMARY KEY (user_id, date)
);

-- Frozen per-session telemetry aggregates
CREATE TABLE IF NOT EXISTS session_summaries (
    session_id TEXT PRIMARY KEY,
    user_id TEXT NOT NULL,
    started_at INTEGER NOT NULL,
    ended_at INTEGER NOT NULL,
    counters TEXT NOT NULL,
    duration_seconds REAL NOT NULL,
    engagement_score REAL NOT NULL
);

-- Per-user feature flag overrides
CREATE TABLE IF NOT EXISTS flag_overrides (
    user_id TEXT PRIMARY KEY,
    flags TEXT NOT NULL,
    updated_at INTEGER NOT NULL
);

-- A/B assignments, written once per (test, user)
CREATE TABLE IF NOT EXISTS ab_assignments (
    test_name TEXT NOT NULL,
    user_id TEXT NOT NULL,
    variant TEXT NOT NULL,
    assigned_at INTEGER NOT NULL,
    PRIMARY KEY (test_name, user_id)
);

CREATE INDEX IF NOT EXISTS idx_turns_user_time ON turns(user_id, created_at);
CREATE INDEX IF NOT EXISTS idx_turns_time ON turns(created_at);
CREATE INDEX IF NOT EXISTS idx_snapshots_date ON snapshots(date);
CREATE INDEX IF NOT EXISTS idx_events_user_time ON events(user_id, created_at);
CREATE INDEX IF NOT EXISTS idx_events_time ON events(created_at);
CREATE INDEX IF NOT EXISTS idx_daily_date ON daily_telemetry(date);
CREATE INDEX IF NOT EXISTS idx_sessions_ended ON session_summaries(ended_at);
`

// SchemaVersion is the current schema version for migrations
const SchemaVersion = 1

var tables = []string{
	"profiles", "turns", "snapshots", "events",
	"daily_telemetry", "session_summaries", "flag_overrides", "ab_assignments",
}
