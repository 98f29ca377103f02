package integration

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/viper"

	"github.com/valter-silva-au/saved-sync/pkg/models"
)

// DefaultTokenEnv is the variable consulted when slack.token_env is unset.
const DefaultTokenEnv = "SLACK_USER_TOKEN"

// DotEnvFileName is the dotenv file looked up next to the config file.
const DotEnvFileName = ".env"

// ErrMissingCredential is returned when no credential source yields a token.
var ErrMissingCredential = errors.New("no Slack token found")

// Credential sources, reported with a resolved token.
const (
	SourceConfig   = "config"
	SourceEnv      = "env"
	SourceDotEnv   = "dotenv"
	SourceCommand  = "command"
	SourceKeychain = "keychain"
)

// CredentialResolver finds the Slack user token. Sources are tried in order:
// the configured token, the environment, a .env file in the config
// directory, a token command and finally the macOS keychain.
type CredentialResolver struct {
	Executor  CLIExecutor
	ConfigDir string
	Getenv    func(string) string
	Logger    *slog.Logger
}

// NewCredentialResolver creates a resolver reading the process environment.
func NewCredentialResolver(executor CLIExecutor, configDir string, logger *slog.Logger) *CredentialResolver {
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	return &CredentialResolver{
		Executor:  executor,
		ConfigDir: configDir,
		Getenv:    os.Getenv,
		Logger:    logger,
	}
}

// Resolve returns the token and the name of the source it came from.
func (r *CredentialResolver) Resolve(ctx context.Context, cfg models.SlackConfig) (string, string, error) {
	if tok := strings.TrimSpace(cfg.Token); tok != "" {
		return tok, SourceConfig, nil
	}

	envName := cfg.TokenEnv
	if envName == "" {
		envName = DefaultTokenEnv
	}
	getenv := r.Getenv
	if getenv == nil {
		getenv = os.Getenv
	}
	if tok := strings.TrimSpace(getenv(envName)); tok != "" {
		return tok, SourceEnv, nil
	}

	tok, err := r.fromDotEnv(envName)
	if err != nil {
		return "", "", err
	}
	if tok != "" {
		return tok, SourceDotEnv, nil
	}

	if cfg.TokenCommand != "" {
		tok, err := r.fromCommand(ctx, cfg.TokenCommand)
		if err != nil {
			return "", "", err
		}
		if tok != "" {
			return tok, SourceCommand, nil
		}
	}

	if cfg.KeychainService != "" {
		tok := r.fromKeychain(ctx, cfg.KeychainService)
		if tok != "" {
			return tok, SourceKeychain, nil
		}
	}

	return "", "", fmt.Errorf("%w: set slack.token, $%s, %s or slack.token_command",
		ErrMissingCredential, envName, filepath.Join(r.ConfigDir, DotEnvFileName))
}

// fromDotEnv reads key from the .env file in the config directory. A
// missing file yields "".
func (r *CredentialResolver) fromDotEnv(key string) (string, error) {
	if r.ConfigDir == "" {
		return "", nil
	}
	path := filepath.Join(r.ConfigDir, DotEnvFileName)
	if _, err := os.Stat(path); err != nil {
		if os.IsNotExist(err) {
			return "", nil
		}
		return "", fmt.Errorf("checking %s: %w", path, err)
	}

	v := viper.New()
	v.SetConfigFile(path)
	v.SetConfigType("env")
	if err := v.ReadInConfig(); err != nil {
		return "", fmt.Errorf("reading %s: %w", path, err)
	}
	return strings.Trim(strings.TrimSpace(v.GetString(key)), `"'`), nil
}

func (r *CredentialResolver) fromCommand(ctx context.Context, cmdLine string) (string, error) {
	if r.Executor == nil {
		return "", fmt.Errorf("running token command: no executor")
	}
	result, err := r.Executor.Shell(ctx, cmdLine)
	if err != nil {
		return "", fmt.Errorf("running token command: %w", err)
	}
	if result.ExitCode != 0 {
		return "", fmt.Errorf("token command exited with code %d: %s", result.ExitCode, strings.TrimSpace(result.Stderr))
	}
	return strings.TrimSpace(result.Stdout), nil
}

// fromKeychain queries the login keychain. Failures are logged and yield "".
func (r *CredentialResolver) fromKeychain(ctx context.Context, service string) string {
	if r.Executor == nil {
		return ""
	}
	result, err := r.Executor.Exec(ctx, CLIExecConfig{
		CLI:  "security",
		Args: []string{"find-generic-password", "-s", service, "-w"},
	})
	if err != nil || result.ExitCode != 0 {
		r.logger().Debug("keychain lookup failed", "service", service, "error", err)
		return ""
	}
	return strings.TrimSpace(result.Stdout)
}

func (r *CredentialResolver) logger() *slog.Logger {
	if r.Logger != nil {
		return r.Logger
	}
	return slog.New(slog.DiscardHandler)
}
