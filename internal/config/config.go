// Package config defines service configuration structures and loading hooks.
//
// Conventions:
// - Defaults live in New; Load layers a YAML file and TTLINK_* env vars on top.
// - Validate reports every problem wrapped in ErrInvalidConfig.
package config

import (
	"fmt"
	"runtime"
	"strings"
	"time"
)

// IgnorableEvent is a configured ignore pattern.
type IgnorableEvent struct {
	Pattern   string `koanf:"pattern" yaml:"pattern"`
	MatchMode string `koanf:"match_mode" yaml:"match_mode"`
}

// TimeOff links vacation style events straight to a fixed work item.
type TimeOff struct {
	NamePatterns []IgnorableEvent `koanf:"name_patterns" yaml:"name_patterns"`
	WorkItemID   string           `koanf:"work_item_id" yaml:"work_item_id"`
}

// Config contains process configuration.
type Config struct {
	// LogLevel controls verbosity: debug, info, warn, error.
	LogLevel string `koanf:"log_level"`
	// LogFormat is text or json.
	LogFormat string `koanf:"log_format"`

	// Addr configures the HTTP listen address, e.g. ":9080".
	Addr string `koanf:"addr"`

	// Linking options.
	AutoLink               bool    `koanf:"auto_link"`
	DuplicateCheck         bool    `koanf:"duplicate_check"`
	DuplicateWindowMinutes int     `koanf:"duplicate_window_minutes"`
	UseAI                  bool    `koanf:"use_ai"`
	AIConfidenceThreshold  float64 `koanf:"ai_confidence_threshold"`
	AIModel                string  `koanf:"ai_model"`
	AIMaxConcurrent        int     `koanf:"ai_max_concurrent"`
	AnthropicAPIKey        string  `koanf:"anthropic_api_key"`

	// HistoryBackend is sqlite, file or memory.
	HistoryBackend            string `koanf:"history_backend"`
	HistoryPath               string `koanf:"history_path"`
	HistoryMaxSize            int    `koanf:"history_max_size"`
	HistoryRetentionDays      int    `koanf:"history_retention_days"`
	HistorySweepSchedule      string `koanf:"history_sweep_schedule"`
	HistorySignatureOrganizer bool   `koanf:"history_signature_organizer"`

	// Registration dispatch.
	RegistrationWorkers       int     `koanf:"registration_workers"`
	RegistrationRatePerSecond float64 `koanf:"registration_rate_per_second"`
	RegistrationQueueSize     int     `koanf:"registration_queue_size"`

	// TimeTracker endpoint.
	TimeTrackerBaseURL   string `koanf:"timetracker_base_url"`
	TimeTrackerUser      string `koanf:"timetracker_user"`
	TimeTrackerPassword  string `koanf:"timetracker_password"`
	TimeTrackerProjectID string `koanf:"timetracker_project_id"`
	// RoundingMethod moves entry bounds onto half hour slots: backward,
	// forward, round, half or stretch.
	RoundingMethod string `koanf:"rounding_method"`

	IgnorableEvents []IgnorableEvent `koanf:"ignorable_events"`
	TimeOff         TimeOff          `koanf:"time_off"`
	// WorkScheduleWorkItemID receives events carrying a working event type.
	WorkScheduleWorkItemID string `koanf:"work_schedule_work_item_id"`
}

// New creates a Config populated with defaults.
func New() *Config {
	return &Config{
		LogLevel:                  "info",
		LogFormat:                 "text",
		Addr:                      ":9080",
		AutoLink:                  true,
		DuplicateCheck:            true,
		DuplicateWindowMinutes:    0,
		UseAI:                     false,
		AIConfidenceThreshold:     0.7,
		AIModel:                   "claude-sonnet-4-5",
		AIMaxConcurrent:           2,
		HistoryBackend:            "sqlite",
		HistoryPath:               "ttlink-history.db",
		HistoryMaxSize:            300,
		HistoryRetentionDays:      0,
		HistorySweepSchedule:      "@hourly",
		RegistrationWorkers:       min(runtime.NumCPU(), 4),
		RegistrationRatePerSecond: 2,
		RegistrationQueueSize:     1_000,
		RoundingMethod:            "backward",
	}
}

// DuplicateWindow returns the duplicate gap tolerance.
func (c *Config) DuplicateWindow() time.Duration {
	return time.Duration(c.DuplicateWindowMinutes) * time.Minute
}

// Retention returns the history retention span; zero keeps entries forever.
func (c *Config) Retention() time.Duration {
	return time.Duration(c.HistoryRetentionDays) * 24 * time.Hour
}

// Validate checks value ranges.
func (c *Config) Validate() error {
	var problems []string
	if c.Addr == "" {
		problems = append(problems, "addr must not be empty")
	}
	switch c.LogFormat {
	case "text", "json":
	default:
		problems = append(problems, fmt.Sprintf("log_format %q is not text or json", c.LogFormat))
	}
	if c.DuplicateWindowMinutes < 0 {
		problems = append(problems, "duplicate_window_minutes must be >= 0")
	}
	if c.AIConfidenceThreshold < 0 || c.AIConfidenceThreshold > 1 {
		problems = append(problems, "ai_confidence_threshold must be within [0,1]")
	}
	if c.AIMaxConcurrent < 1 {
		problems = append(problems, "ai_max_concurrent must be >= 1")
	}
	switch c.HistoryBackend {
	case "sqlite", "file":
		if c.HistoryPath == "" {
			problems = append(problems, "history_path is required for the "+c.HistoryBackend+" backend")
		}
	case "memory":
	default:
		problems = append(problems, fmt.Sprintf("history_backend %q is not sqlite, file or memory", c.HistoryBackend))
	}
	if c.HistoryMaxSize < 0 {
		problems = append(problems, "history_max_size must be >= 0")
	}
	if c.HistoryRetentionDays < 0 {
		problems = append(problems, "history_retention_days must be >= 0")
	}
	if c.RegistrationWorkers < 1 {
		problems = append(problems, "registration_workers must be >= 1")
	}
	if c.RegistrationRatePerSecond < 0 {
		problems = append(problems, "registration_rate_per_second must be >= 0")
	}
	if c.RegistrationQueueSize < 1 {
		problems = append(problems, "registration_queue_size must be >= 1")
	}
	switch c.RoundingMethod {
	case "backward", "forward", "round", "half", "stretch":
	default:
		problems = append(problems, fmt.Sprintf("rounding_method %q is not backward, forward, round, half or stretch", c.RoundingMethod))
	}
	problems = append(problems, checkPatterns("ignorable_events", c.IgnorableEvents)...)
	problems = append(problems, checkPatterns("time_off.name_patterns", c.TimeOff.NamePatterns)...)
	if len(c.TimeOff.NamePatterns) > 0 && c.TimeOff.WorkItemID == "" {
		problems = append(problems, "time_off.work_item_id is required when name_patterns are set")
	}
	if len(problems) > 0 {
		return fmt.Errorf("%w: %s", ErrInvalidConfig, strings.Join(problems, "; "))
	}
	return nil
}

func checkPatterns(field string, patterns []IgnorableEvent) []string {
	var problems []string
	for i, p := range patterns {
		switch p.MatchMode {
		case "", "exact", "partial", "prefix", "suffix":
		default:
			problems = append(problems, fmt.Sprintf("%s[%d].match_mode %q is unknown", field, i, p.MatchMode))
		}
	}
	return problems
}
