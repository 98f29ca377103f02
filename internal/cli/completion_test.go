package cli

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func TestCompletionCommand_DisablesDefault(t *testing.T) {
	if !rootCmd.CompletionOptions.DisableDefaultCmd {
		t.Error("expected Cobra default completion command to be disabled")
	}
}

func TestCompletionCommand_NoArgsShowsHelp(t *testing.T) {
	isolate(t)

	out, err := runCLI(t, "completion")
	if err != nil {
		t.Fatalf("completion with no args should show help, not error: %v", err)
	}
	if !strings.Contains(out, "Quick install") {
		t.Error("no-args output should show help with install instructions")
	}
}

func TestCompletionCommand_Scripts(t *testing.T) {
	tests := []struct {
		shell string
		want  string
	}{
		{"bash", "__start_ssync"},
		{"zsh", "compdef"},
		{"fish", "complete -c ssync"},
		{"powershell", "Register-ArgumentCompleter"},
	}
	for _, tt := range tests {
		t.Run(tt.shell, func(t *testing.T) {
			isolate(t)
			initialize = func(string, bool) error {
				t.Fatal("completion must not build the services")
				return nil
			}

			out, err := runCLI(t, "completion", tt.shell)
			if err != nil {
				t.Fatalf("completion %s: %v", tt.shell, err)
			}
			if !strings.Contains(out, tt.want) {
				t.Errorf("%s script should contain %q", tt.shell, tt.want)
			}
		})
	}
}

func TestCompletionCommand_UnsupportedShell(t *testing.T) {
	isolate(t)

	_, err := runCLI(t, "completion", "tcsh")
	if err == nil || !strings.Contains(err.Error(), "unsupported shell") {
		t.Errorf("err = %v", err)
	}
}

func TestCompletionCommand_Install(t *testing.T) {
	tests := []struct {
		shell string
		rel   string
	}{
		{"bash", ".local/share/bash-completion/completions/ssync"},
		{"zsh", ".local/share/zsh/site-functions/_ssync"},
		{"fish", ".config/fish/completions/ssync.fish"},
	}
	for _, tt := range tests {
		t.Run(tt.shell, func(t *testing.T) {
			isolate(t)
			home := t.TempDir()
			completionHome = home
			t.Cleanup(func() { completionHome = "" })

			out, err := runCLI(t, "completion", tt.shell, "--install")
			if err != nil {
				t.Fatalf("install: %v", err)
			}
			target := filepath.Join(home, filepath.FromSlash(tt.rel))
			data, err := os.ReadFile(target)
			if err != nil {
				t.Fatalf("script not written: %v", err)
			}
			if len(data) == 0 {
				t.Error("installed script is empty")
			}
			if !strings.Contains(out, target) {
				t.Errorf("output should name the target, got %q", out)
			}
		})
	}
}

func TestCompletionCommand_InstallPowerShellRefused(t *testing.T) {
	isolate(t)
	completionHome = t.TempDir()
	t.Cleanup(func() { completionHome = "" })

	_, err := runCLI(t, "completion", "powershell", "--install")
	if err == nil || !strings.Contains(err.Error(), "PowerShell") {
		t.Errorf("err = %v", err)
	}
}

func TestCompleteLedgerKeys(t *testing.T) {
	isolate(t)
	_, open := tempLedger(t, "C1/1.0", "C1/2.0", "C2/3.0")
	OpenLedger = open

	out, err := runCLI(t, "__complete", "ledger", "forget", "C1/")
	if err != nil {
		t.Fatal(err)
	}
	if !strings.Contains(out, "C1/1.0") || !strings.Contains(out, "C1/2.0") {
		t.Errorf("missing C1 keys:\n%s", out)
	}
	if strings.Contains(out, "C2/3.0") {
		t.Errorf("keys should be filtered by prefix:\n%s", out)
	}
}

func TestCompleteLedgerKeys_InitializesServices(t *testing.T) {
	isolate(t)
	_, open := tempLedger(t, "C9/1.0")
	calls := 0
	initialize = func(string, bool) error {
		calls++
		OpenLedger = open
		return nil
	}

	out, err := runCLI(t, "__complete", "ledger", "check", "")
	if err != nil {
		t.Fatal(err)
	}
	if calls != 1 {
		t.Errorf("initializer called %d times, want 1", calls)
	}
	if !strings.Contains(out, "C9/1.0") {
		t.Errorf("output = %q", out)
	}
}
