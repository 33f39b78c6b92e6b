// Package config defines all configuration for the Mietek assistant:
// the owner identity, bot persona, the WhatsApp bridge, the Claude
// invocation, and the heartbeat notification policy.
package config

import (
	"fmt"
	"path/filepath"
	"strings"
	"time"
)

// Config holds the full assistant configuration shared by the bridge,
// processor and heartbeat processes.
type Config struct {
	// OwnerJID is the owner's WhatsApp JID (e.g. "48123456789@s.whatsapp.net").
	// Messages from anyone else are ignored by the bridge.
	OwnerJID string `yaml:"owner_jid"`

	// OwnerName is how the assistant addresses the owner.
	OwnerName string `yaml:"owner_name"`

	// BotName is the assistant name shown in responses.
	BotName string `yaml:"bot_name"`

	// BotGender selects grammatical forms in gendered languages ("male", "female").
	BotGender string `yaml:"bot_gender"`

	// Language is the locale tag for responses and command parsing ("pl", "en").
	Language string `yaml:"language"`

	// TriggerWord activates the bot from external chats (e.g. "HeyMietek").
	TriggerWord string `yaml:"trigger_word"`

	// DataDir is the base directory for the database and WhatsApp session.
	DataDir string `yaml:"data_dir"`

	// DBPath is the SQLite database path. Defaults to {DataDir}/mietek.db.
	DBPath string `yaml:"db_path"`

	// Claude configures the AI invocation subprocess.
	Claude ClaudeConfig `yaml:"claude"`

	// Quiet configures quiet hours for heartbeat alerts.
	Quiet QuietConfig `yaml:"quiet_hours"`

	// PollInterval is the sleep between queue polls in the bridge and processor.
	PollInterval time.Duration `yaml:"poll_interval"`

	// HeartbeatInterval is the base tick of the heartbeat process.
	HeartbeatInterval time.Duration `yaml:"heartbeat_interval"`

	// MaxMessageLength is the WhatsApp chunk size for outgoing messages.
	MaxMessageLength int `yaml:"max_message_length"`

	// Logging configures log output.
	Logging LoggingConfig `yaml:"logging"`
}

// ClaudeConfig configures the claude CLI subprocess invocation.
type ClaudeConfig struct {
	// Bin is the claude executable name or path.
	Bin string `yaml:"bin"`

	// Timeout bounds a single invocation. A timeout is treated as a
	// normal invocation failure.
	Timeout time.Duration `yaml:"timeout"`

	// MaxTurns limits agentic turns per invocation.
	MaxTurns int `yaml:"max_turns"`

	// MCPConfigPath is passed to the CLI when the file exists.
	MCPConfigPath string `yaml:"mcp_config_path"`

	// AllowedTools is the restricted tool set for non-sudo invocations.
	AllowedTools string `yaml:"allowed_tools"`
}

// QuietConfig defines the nightly window in which non-critical alerts
// are deferred to the morning summary instead of being sent.
type QuietConfig struct {
	// StartHour is the first quiet hour (0-23). May wrap midnight.
	StartHour int `yaml:"start_hour"`

	// EndHour is the first non-quiet hour (0-23).
	EndHour int `yaml:"end_hour"`
}

// LoggingConfig configures logging.
type LoggingConfig struct {
	// Level is the log level ("debug", "info", "warn", "error").
	Level string `yaml:"level"`

	// Format is the log format ("json", "text").
	Format string `yaml:"format"`
}

// Default returns the default configuration.
func Default() *Config {
	return &Config{
		OwnerName:   "User",
		BotName:     "Mietek",
		BotGender:   "male",
		Language:    "pl",
		TriggerWord: "HeyMietek",
		DataDir:     "./data",
		Claude: ClaudeConfig{
			Bin:           "claude",
			Timeout:       20 * time.Minute,
			MaxTurns:      1000,
			MCPConfigPath: "mcp-config.json",
			AllowedTools:  "Read,Glob,Grep,WebSearch,WebFetch,mcp__*",
		},
		Quiet: QuietConfig{
			StartHour: 23,
			EndHour:   7,
		},
		PollInterval:      2 * time.Second,
		HeartbeatInterval: time.Minute,
		MaxMessageLength:  4000,
		Logging: LoggingConfig{
			Level:  "info",
			Format: "json",
		},
	}
}

// DatabasePath returns the resolved SQLite path.
func (c *Config) DatabasePath() string {
	if c.DBPath != "" {
		return c.DBPath
	}
	return filepath.Join(c.DataDir, "mietek.db")
}

// SessionStorePath returns the whatsmeow session database path.
func (c *Config) SessionStorePath() string {
	return filepath.Join(c.DataDir, "whatsapp.db")
}

// Validate checks invariants required by the long-running processes.
// The setup wizard skips this (the owner JID is not known yet).
func (c *Config) Validate() error {
	if c.OwnerJID == "" {
		return fmt.Errorf("owner_jid is not set; run 'mietek setup' to pair WhatsApp and discover it")
	}
	if !strings.HasSuffix(c.OwnerJID, "@s.whatsapp.net") {
		return fmt.Errorf("owner_jid %q has invalid format, expected <phone>@s.whatsapp.net", c.OwnerJID)
	}
	if c.PollInterval <= 0 {
		return fmt.Errorf("poll_interval must be positive")
	}
	if c.MaxMessageLength < 100 {
		return fmt.Errorf("max_message_length %d is too small", c.MaxMessageLength)
	}
	return nil
}
