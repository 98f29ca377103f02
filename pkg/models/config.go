package models

import "time"

// TitleStyle selects how message task titles are built.
type TitleStyle string

const (
	// TitleStyleAuthor titles a message task after its author and channel.
	TitleStyleAuthor TitleStyle = "author"
	// TitleStyleText titles a message task with the first line of its text.
	TitleStyleText TitleStyle = "text"
)

// ScriptLanguage is the dialect of the script handed to the interpreter.
type ScriptLanguage string

const (
	LanguageAppleScript ScriptLanguage = "applescript"
	LanguageJavaScript  ScriptLanguage = "javascript"
)

// SlackConfig holds the remote service credential sources and endpoint.
type SlackConfig struct {
	Token             string  `yaml:"token,omitempty" mapstructure:"token"`
	TokenEnv          string  `yaml:"token_env,omitempty" mapstructure:"token_env"`
	TokenCommand      string  `yaml:"token_command,omitempty" mapstructure:"token_command"`
	KeychainService   string  `yaml:"keychain_service,omitempty" mapstructure:"keychain_service"`
	BaseURL           string  `yaml:"base_url" mapstructure:"base_url"`
	RequestsPerSecond float64 `yaml:"requests_per_second" mapstructure:"requests_per_second"`
}

// OmniFocusConfig holds the task target settings.
type OmniFocusConfig struct {
	Interpreter    string         `yaml:"interpreter" mapstructure:"interpreter"`
	Language       ScriptLanguage `yaml:"language" mapstructure:"language"`
	DefaultProject string         `yaml:"default_project,omitempty" mapstructure:"default_project"`
	DefaultTags    []string       `yaml:"default_tags,omitempty" mapstructure:"default_tags"`
	Timeout        time.Duration  `yaml:"timeout" mapstructure:"timeout"`
}

// OptionsConfig holds per-run behaviour.
type OptionsConfig struct {
	TaskPrefix        string        `yaml:"task_prefix" mapstructure:"task_prefix"`
	TitleStyle        TitleStyle    `yaml:"title_style" mapstructure:"title_style"`
	AddSlackLink      bool          `yaml:"add_slack_link" mapstructure:"add_slack_link"`
	PageSize          int           `yaml:"page_size" mapstructure:"page_size"`
	PageDelay         time.Duration `yaml:"page_delay" mapstructure:"page_delay"`
	MaxAPIRetries     int           `yaml:"max_api_retries" mapstructure:"max_api_retries"`
	RetryDefaultWait  time.Duration `yaml:"retry_default_wait" mapstructure:"retry_default_wait"`
	BatchResolve      bool          `yaml:"batch_resolve" mapstructure:"batch_resolve"`
	RemoveAfterImport bool          `yaml:"remove_after_import" mapstructure:"remove_after_import"`
}

// StateConfig locates persisted state.
type StateConfig struct {
	Dir string `yaml:"dir" mapstructure:"dir"`
}

// NotificationsConfig configures the run summary webhook.
type NotificationsConfig struct {
	WebhookURL   string `yaml:"webhook_url,omitempty" mapstructure:"webhook_url"`
	OnlyOnErrors bool   `yaml:"only_on_errors" mapstructure:"only_on_errors"`
}

// MetricsConfig configures the Prometheus textfile export.
type MetricsConfig struct {
	Textfile string `yaml:"textfile,omitempty" mapstructure:"textfile"`
}

// LogConfig configures the run logger.
type LogConfig struct {
	Level  string `yaml:"level" mapstructure:"level"`
	Format string `yaml:"format" mapstructure:"format"`
}

// Config is the full configuration read from config.yaml via Viper.
type Config struct {
	Slack         SlackConfig         `yaml:"slack" mapstructure:"slack"`
	OmniFocus     OmniFocusConfig     `yaml:"omnifocus" mapstructure:"omnifocus"`
	Options       OptionsConfig       `yaml:"options" mapstructure:"options"`
	State         StateConfig         `yaml:"state" mapstructure:"state"`
	Notifications NotificationsConfig `yaml:"notifications" mapstructure:"notifications"`
	Metrics       MetricsConfig       `yaml:"metrics" mapstructure:"metrics"`
	Log           LogConfig           `yaml:"log" mapstructure:"log"`

	// Path is the file the configuration was read from.
	Path string `yaml:"-" mapstructure:"-"`
}
