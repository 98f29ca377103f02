package core

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"testing"
	"time"

	"pgregory.net/rapid"

	"github.com/valter-silva-au/saved-sync/pkg/models"
)

// =============================================================================
// Generators
// =============================================================================

type optionValues struct {
	TaskPrefix    string
	TitleStyle    models.TitleStyle
	AddSlackLink  bool
	PageSize      int
	PageDelay     time.Duration
	MaxAPIRetries int
	Language      models.ScriptLanguage
}

func genOptionValues(t *rapid.T) optionValues {
	return optionValues{
		TaskPrefix:    rapid.StringMatching(`[A-Za-z]{1,10}`).Draw(t, "prefix"),
		TitleStyle:    rapid.SampledFrom([]models.TitleStyle{models.TitleStyleAuthor, models.TitleStyleText}).Draw(t, "style"),
		AddSlackLink:  rapid.Bool().Draw(t, "link"),
		PageSize:      rapid.IntRange(1, 1000).Draw(t, "pageSize"),
		PageDelay:     time.Duration(rapid.IntRange(0, 5000).Draw(t, "delayMs")) * time.Millisecond,
		MaxAPIRetries: rapid.IntRange(1, 10).Draw(t, "retries"),
		Language:      rapid.SampledFrom([]models.ScriptLanguage{models.LanguageAppleScript, models.LanguageJavaScript}).Draw(t, "language"),
	}
}

// mustWriteConfigYAML writes a config.yaml with the given values into dir.
func mustWriteConfigYAML(t *testing.T, dir string, v optionValues) string {
	t.Helper()
	content := fmt.Sprintf(`options:
  task_prefix: "%s"
  title_style: %s
  add_slack_link: %v
  page_size: %d
  page_delay: %s
  max_api_retries: %d
omnifocus:
  language: %s
state:
  dir: "%s"
`, v.TaskPrefix, v.TitleStyle, v.AddSlackLink, v.PageSize, v.PageDelay,
		v.MaxAPIRetries, v.Language, filepath.ToSlash(dir))

	path := filepath.Join(dir, "config.yaml")
	if err := os.WriteFile(path, []byte(content), 0o600); err != nil {
		t.Fatalf("failed to write config.yaml: %v", err)
	}
	return path
}

// =============================================================================
// Property 1: File values override defaults
// =============================================================================

// *For any* valid set of option values written to config.yaml, Load SHALL
// return exactly those values, and keys absent from the file SHALL keep
// their defaults.
func TestProperty1_FileOverridesDefaults(t *testing.T) {
	defaults := DefaultConfig()

	rapid.Check(t, func(rt *rapid.T) {
		v := genOptionValues(rt)
		path := mustWriteConfigYAML(t, t.TempDir(), v)

		cfg, err := NewConfigurationManager(t.TempDir()).Load(path)
		if err != nil {
			rt.Fatalf("Load failed: %v", err)
		}

		o := cfg.Options
		if o.TaskPrefix != v.TaskPrefix {
			rt.Errorf("TaskPrefix: got %q, want %q", o.TaskPrefix, v.TaskPrefix)
		}
		if o.TitleStyle != v.TitleStyle {
			rt.Errorf("TitleStyle: got %q, want %q", o.TitleStyle, v.TitleStyle)
		}
		if o.AddSlackLink != v.AddSlackLink {
			rt.Errorf("AddSlackLink: got %v, want %v", o.AddSlackLink, v.AddSlackLink)
		}
		if o.PageSize != v.PageSize {
			rt.Errorf("PageSize: got %d, want %d", o.PageSize, v.PageSize)
		}
		if o.PageDelay != v.PageDelay {
			rt.Errorf("PageDelay: got %s, want %s", o.PageDelay, v.PageDelay)
		}
		if o.MaxAPIRetries != v.MaxAPIRetries {
			rt.Errorf("MaxAPIRetries: got %d, want %d", o.MaxAPIRetries, v.MaxAPIRetries)
		}
		if cfg.OmniFocus.Language != v.Language {
			rt.Errorf("Language: got %q, want %q", cfg.OmniFocus.Language, v.Language)
		}

		// --- Untouched keys fall back to defaults ---
		if cfg.OmniFocus.Interpreter != defaults.OmniFocus.Interpreter {
			rt.Errorf("Interpreter: got %q, want default %q", cfg.OmniFocus.Interpreter, defaults.OmniFocus.Interpreter)
		}
		if cfg.Slack.BaseURL != defaults.Slack.BaseURL {
			rt.Errorf("BaseURL: got %q, want default %q", cfg.Slack.BaseURL, defaults.Slack.BaseURL)
		}
		if o.RetryDefaultWait != defaults.Options.RetryDefaultWait {
			rt.Errorf("RetryDefaultWait: got %s, want default %s", o.RetryDefaultWait, defaults.Options.RetryDefaultWait)
		}
	})
}

// =============================================================================
// Property 2: Environment overrides the file
// =============================================================================

// *For any* page size in config.yaml and any other valid page size in
// SSYNC_OPTIONS_PAGE_SIZE, Load SHALL use the environment value.
func TestProperty2_EnvironmentOverridesFile(t *testing.T) {
	rapid.Check(t, func(rt *rapid.T) {
		v := genOptionValues(rt)
		envSize := rapid.IntRange(1, 1000).Draw(rt, "envPageSize")
		path := mustWriteConfigYAML(t, t.TempDir(), v)

		t.Setenv(EnvPrefix+"_OPTIONS_PAGE_SIZE", strconv.Itoa(envSize))

		cfg, err := NewConfigurationManager(t.TempDir()).Load(path)
		if err != nil {
			rt.Fatalf("Load failed: %v", err)
		}
		if cfg.Options.PageSize != envSize {
			rt.Errorf("PageSize: got %d, want env value %d (file had %d)", cfg.Options.PageSize, envSize, v.PageSize)
		}
		if cfg.Options.TaskPrefix != v.TaskPrefix {
			rt.Errorf("TaskPrefix: got %q, want file value %q", cfg.Options.TaskPrefix, v.TaskPrefix)
		}
	})
}

// =============================================================================
// Property 3: Out-of-range page sizes are rejected
// =============================================================================

// *For any* page size outside 1..1000, Load SHALL fail and name the key.
func TestProperty3_InvalidPageSizeRejected(t *testing.T) {
	rapid.Check(t, func(rt *rapid.T) {
		v := genOptionValues(rt)
		v.PageSize = rapid.OneOf(rapid.IntRange(-100, 0), rapid.IntRange(1001, 5000)).Draw(rt, "badPageSize")
		path := mustWriteConfigYAML(t, t.TempDir(), v)

		_, err := NewConfigurationManager(t.TempDir()).Load(path)
		if err == nil {
			rt.Fatalf("Load accepted page_size %d", v.PageSize)
		}
		if !strings.Contains(err.Error(), "options.page_size") {
			rt.Errorf("error should name options.page_size: %v", err)
		}
	})
}
