// Package core contains the import pipeline for saved-sync: escaping,
// bounded retry, name resolution, pagination, formatting, the run state
// machine and configuration.
package core

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/viper"

	"github.com/valter-silva-au/saved-sync/pkg/models"
)

// EnvPrefix prefixes every environment override (SSYNC_SLACK_TOKEN, ...).
const EnvPrefix = "SSYNC"

// ErrConfigNotFound is returned when no configuration file exists at the
// resolved location.
var ErrConfigNotFound = errors.New("configuration file not found")

// ConfigurationManager loads and validates the tool configuration.
type ConfigurationManager interface {
	Load(path string) (*models.Config, error)
	ValidateConfig(cfg *models.Config) error
	// ConfigPath returns the file Load would read for path.
	ConfigPath(path string) string
}

// viperConfigManager implements ConfigurationManager using Viper for
// reading YAML (or JSON) configuration files.
type viperConfigManager struct {
	// homeDir is the directory holding config.yaml when no path is given.
	homeDir string
}

// NewConfigurationManager creates a ConfigurationManager that falls back
// to homeDir/config.yaml.
func NewConfigurationManager(homeDir string) ConfigurationManager {
	return &viperConfigManager{homeDir: homeDir}
}

// DefaultHome returns $SSYNC_HOME, or ~/.ssync.
func DefaultHome() string {
	if home := os.Getenv(EnvPrefix + "_HOME"); home != "" {
		return home
	}
	userHome, err := os.UserHomeDir()
	if err != nil {
		return ".ssync"
	}
	return filepath.Join(userHome, ".ssync")
}

// DefaultConfig returns a Config populated with defaults.
func DefaultConfig() *models.Config {
	return &models.Config{
		Slack: models.SlackConfig{
			TokenEnv:          "SLACK_USER_TOKEN",
			BaseURL:           "https://slack.com/api",
			RequestsPerSecond: 1,
		},
		OmniFocus: models.OmniFocusConfig{
			Interpreter: "osascript",
			Language:    models.LanguageAppleScript,
			Timeout:     DefaultScriptTimeout,
		},
		Options: models.OptionsConfig{
			TaskPrefix:       DefaultTaskPrefix,
			TitleStyle:       models.TitleStyleAuthor,
			AddSlackLink:     true,
			PageSize:         DefaultPageSize,
			PageDelay:        DefaultPageDelay,
			MaxAPIRetries:    3,
			RetryDefaultWait: DefaultRateLimitWait,
			BatchResolve:     true,
		},
		State: models.StateConfig{Dir: DefaultHome()},
		Notifications: models.NotificationsConfig{
			OnlyOnErrors: true,
		},
		Log: models.LogConfig{Level: "info", Format: "text"},
	}
}

func (cm *viperConfigManager) ConfigPath(path string) string {
	if path != "" {
		return expandHome(path)
	}
	return filepath.Join(cm.homeDir, "config.yaml")
}

// Load reads the configuration file at path (or the default location),
// applies defaults and SSYNC_* environment overrides, and validates it.
func (cm *viperConfigManager) Load(path string) (*models.Config, error) {
	file := cm.ConfigPath(path)
	if _, err := os.Stat(file); err != nil {
		if os.IsNotExist(err) {
			return nil, fmt.Errorf("%w: %s", ErrConfigNotFound, file)
		}
		return nil, fmt.Errorf("reading configuration %s: %w", file, err)
	}

	defaults := DefaultConfig()

	v := viper.New()
	v.SetConfigFile(file)
	if ext := strings.TrimPrefix(filepath.Ext(file), "."); ext == "" {
		v.SetConfigType("yaml")
	}
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	// Set Viper defaults so missing keys fall back gracefully and every key
	// is known to AutomaticEnv.
	v.SetDefault("slack.token", "")
	v.SetDefault("slack.token_env", defaults.Slack.TokenEnv)
	v.SetDefault("slack.token_command", "")
	v.SetDefault("slack.keychain_service", "")
	v.SetDefault("slack.base_url", defaults.Slack.BaseURL)
	v.SetDefault("slack.requests_per_second", defaults.Slack.RequestsPerSecond)
	v.SetDefault("omnifocus.interpreter", defaults.OmniFocus.Interpreter)
	v.SetDefault("omnifocus.language", string(defaults.OmniFocus.Language))
	v.SetDefault("omnifocus.default_project", "")
	v.SetDefault("omnifocus.default_tags", []string{})
	v.SetDefault("omnifocus.timeout", defaults.OmniFocus.Timeout)
	v.SetDefault("options.task_prefix", defaults.Options.TaskPrefix)
	v.SetDefault("options.title_style", string(defaults.Options.TitleStyle))
	v.SetDefault("options.add_slack_link", defaults.Options.AddSlackLink)
	v.SetDefault("options.page_size", defaults.Options.PageSize)
	v.SetDefault("options.page_delay", defaults.Options.PageDelay)
	v.SetDefault("options.max_api_retries", defaults.Options.MaxAPIRetries)
	v.SetDefault("options.retry_default_wait", defaults.Options.RetryDefaultWait)
	v.SetDefault("options.batch_resolve", defaults.Options.BatchResolve)
	v.SetDefault("options.remove_after_import", false)
	v.SetDefault("state.dir", defaults.State.Dir)
	v.SetDefault("notifications.webhook_url", "")
	v.SetDefault("notifications.only_on_errors", defaults.Notifications.OnlyOnErrors)
	v.SetDefault("metrics.textfile", "")
	v.SetDefault("log.level", defaults.Log.Level)
	v.SetDefault("log.format", defaults.Log.Format)

	if err := v.ReadInConfig(); err != nil {
		return nil, fmt.Errorf("reading configuration %s: %w", file, err)
	}

	cfg := &models.Config{}
	if err := v.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("decoding configuration %s: %w", file, err)
	}
	cfg.Path = file
	cfg.State.Dir = expandHome(cfg.State.Dir)
	cfg.Metrics.Textfile = expandHome(cfg.Metrics.Textfile)

	if err := cm.ValidateConfig(cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

var validLanguages = map[models.ScriptLanguage]bool{
	models.LanguageAppleScript: true,
	models.LanguageJavaScript:  true,
}

var validTitleStyles = map[models.TitleStyle]bool{
	models.TitleStyleAuthor: true,
	models.TitleStyleText:   true,
}

var validLogFormats = map[string]bool{"text": true, "json": true}

// ValidateConfig checks cfg for invalid values and reports every problem
// found at once.
func (cm *viperConfigManager) ValidateConfig(cfg *models.Config) error {
	if cfg == nil {
		return fmt.Errorf("configuration is nil")
	}

	var errs []string

	if cfg.Options.PageSize < 1 || cfg.Options.PageSize > 1000 {
		errs = append(errs, fmt.Sprintf("options.page_size %d is invalid, must be between 1 and 1000", cfg.Options.PageSize))
	}
	if cfg.Options.MaxAPIRetries < 1 {
		errs = append(errs, fmt.Sprintf("options.max_api_retries must be at least 1, got %d", cfg.Options.MaxAPIRetries))
	}
	if cfg.Options.PageDelay < 0 {
		errs = append(errs, fmt.Sprintf("options.page_delay must be non-negative, got %s", cfg.Options.PageDelay))
	}
	if cfg.Options.RetryDefaultWait < 0 {
		errs = append(errs, fmt.Sprintf("options.retry_default_wait must be non-negative, got %s", cfg.Options.RetryDefaultWait))
	}
	if !validTitleStyles[cfg.Options.TitleStyle] {
		errs = append(errs, fmt.Sprintf("options.title_style %q is invalid, must be one of: author, text", cfg.Options.TitleStyle))
	}
	if !validLanguages[cfg.OmniFocus.Language] {
		errs = append(errs, fmt.Sprintf("omnifocus.language %q is invalid, must be one of: applescript, javascript", cfg.OmniFocus.Language))
	}
	if cfg.OmniFocus.Interpreter == "" {
		errs = append(errs, "omnifocus.interpreter must not be empty")
	}
	if cfg.OmniFocus.Timeout <= 0 {
		errs = append(errs, fmt.Sprintf("omnifocus.timeout must be positive, got %s", cfg.OmniFocus.Timeout))
	}
	if cfg.Slack.BaseURL == "" {
		errs = append(errs, "slack.base_url must not be empty")
	}
	if cfg.Slack.RequestsPerSecond < 0 {
		errs = append(errs, fmt.Sprintf("slack.requests_per_second must be non-negative, got %v", cfg.Slack.RequestsPerSecond))
	}
	if cfg.State.Dir == "" {
		errs = append(errs, "state.dir must not be empty")
	}
	if cfg.Log.Format != "" && !validLogFormats[cfg.Log.Format] {
		errs = append(errs, fmt.Sprintf("log.format %q is invalid, must be one of: text, json", cfg.Log.Format))
	}

	if len(errs) > 0 {
		return fmt.Errorf("config validation failed:\n  - %s", strings.Join(errs, "\n  - "))
	}
	return nil
}

// expandHome replaces a leading "~/" with the user's home directory.
func expandHome(path string) string {
	if path != "~" && !strings.HasPrefix(path, "~/") {
		return path
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return path
	}
	return filepath.Join(home, strings.TrimPrefix(path, "~"))
}
