package integration

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"log/slog"
	"strings"
	"text/template"
	"time"

	"github.com/valter-silva-au/saved-sync/internal/core"
	"github.com/valter-silva-au/saved-sync/pkg/models"
)

const appleScriptTemplate = `tell application "OmniFocus"
	tell default document
{{- if .Project}}
		set targetProject to first flattened project whose name is "{{esc .Project}}"
		set newTask to make new task at end of tasks of targetProject with properties {name:"{{esc .Title}}", note:"{{esc .Body}}"}
{{- else}}
		set newTask to make new inbox task with properties {name:"{{esc .Title}}", note:"{{esc .Body}}"}
{{- end}}
{{- range .Tags}}
		set tagObj to first flattened tag whose name is "{{esc .}}"
		add tagObj to tags of newTask
{{- end}}
	end tell
end tell
`

const javaScriptTemplate = `const app = Application("OmniFocus");
const doc = app.defaultDocument;
const props = {name: "{{esc .Title}}", note: "{{esc .Body}}"};
let newTask;
{{- if .Project}}
const targetProject = doc.flattenedProjects.whose({name: "{{esc .Project}}"})[0];
newTask = app.Task(props);
targetProject.tasks.push(newTask);
{{- else}}
newTask = app.InboxTask(props);
doc.inboxTasks.push(newTask);
{{- end}}
{{- range .Tags}}
app.add(doc.flattenedTags.whose({name: "{{esc .}}"})[0], {to: newTask.tags});
{{- end}}
`

var (
	appleScriptTmpl = newScriptTemplate("applescript", core.DialectAppleScript, appleScriptTemplate)
	javaScriptTmpl  = newScriptTemplate("javascript", core.DialectJavaScript, javaScriptTemplate)
)

func newScriptTemplate(name string, dialect core.Dialect, text string) *template.Template {
	return template.Must(template.New(name).Funcs(template.FuncMap{
		"esc": func(s string) string { return core.EscapeFor(dialect, s) },
	}).Parse(text))
}

// scriptData is the input of the task creation templates.
type scriptData struct {
	Title   string
	Body    string
	Project string
	Tags    []string
}

// OmniFocusSink creates tasks by running a generated script through the
// system script interpreter.
type OmniFocusSink struct {
	Executor    CLIExecutor
	Interpreter string
	Language    models.ScriptLanguage
	Project     string
	Tags        []string
	Timeout     time.Duration
	Logger      *slog.Logger
	// DryRunOut receives the script of every task a dry run would create.
	DryRunOut io.Writer
}

// NewOmniFocusSink creates an OmniFocusSink from the omnifocus configuration.
func NewOmniFocusSink(cfg models.OmniFocusConfig, executor CLIExecutor, logger *slog.Logger) *OmniFocusSink {
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	return &OmniFocusSink{
		Executor:    executor,
		Interpreter: cfg.Interpreter,
		Language:    cfg.Language,
		Project:     cfg.DefaultProject,
		Tags:        cfg.DefaultTags,
		Timeout:     cfg.Timeout,
		Logger:      logger,
	}
}

// Render returns the script that creates a task with title and body.
func (s *OmniFocusSink) Render(title, body string) (string, error) {
	tmpl := appleScriptTmpl
	if s.Language == models.LanguageJavaScript {
		tmpl = javaScriptTmpl
	}

	var buf bytes.Buffer
	data := scriptData{Title: title, Body: body, Project: s.Project, Tags: nonEmpty(s.Tags)}
	if err := tmpl.Execute(&buf, data); err != nil {
		return "", fmt.Errorf("rendering %s script: %w", tmpl.Name(), err)
	}
	return buf.String(), nil
}

// Argv returns the interpreter command line that runs script.
func (s *OmniFocusSink) Argv(script string) []string {
	interpreter := s.Interpreter
	if interpreter == "" {
		interpreter = "osascript"
	}
	if s.Language == models.LanguageJavaScript {
		return []string{interpreter, "-l", "JavaScript", "-e", script}
	}
	return []string{interpreter, "-e", script}
}

// CreateTask renders and runs the task script. Every failure is logged and
// reported as false. In a dry run no process is started.
func (s *OmniFocusSink) CreateTask(ctx context.Context, title, body string, dryRun bool) bool {
	logger := s.logger()

	script, err := s.Render(title, body)
	if err != nil {
		logger.Error("rendering task script failed", "title", title, "error", err)
		return false
	}

	if dryRun {
		if s.DryRunOut != nil {
			writeDryRun(s.DryRunOut, title, script)
		}
		logger.Debug("dry run, task script not executed", "title", title)
		return true
	}

	timeout := s.Timeout
	if timeout <= 0 {
		timeout = core.DefaultScriptTimeout
	}
	runCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	argv := s.Argv(script)
	result, err := s.Executor.Exec(runCtx, CLIExecConfig{CLI: argv[0], Args: argv[1:]})
	if err != nil {
		logger.Error("running task script failed", "title", title, "interpreter", argv[0], "error", err)
		return false
	}
	if result.ExitCode != 0 {
		logger.Error("task script exited with an error",
			"title", title,
			"exit_code", result.ExitCode,
			"stderr", strings.TrimSpace(result.Stderr),
		)
		return false
	}

	logger.Debug("task created", "title", title)
	return true
}

const dryRunRule = "============================================================"

func writeDryRun(w io.Writer, title, script string) {
	fmt.Fprintf(w, "[dry-run] would create task: %s\n", title)
	fmt.Fprintf(w, "Would execute script:\n%s\n%s", dryRunRule, script)
	if !strings.HasSuffix(script, "\n") {
		fmt.Fprintln(w)
	}
	fmt.Fprintln(w, dryRunRule)
}

func (s *OmniFocusSink) logger() *slog.Logger {
	if s.Logger != nil {
		return s.Logger
	}
	return slog.New(slog.DiscardHandler)
}

func nonEmpty(values []string) []string {
	var out []string
	for _, v := range values {
		if strings.TrimSpace(v) != "" {
			out = append(out, v)
		}
	}
	return out
}
