package cli

import (
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"
)

var completionInstall bool

// completionHome overrides the home directory for --install. Tests set it.
var completionHome string

var completionCmd = &cobra.Command{
	Use:   "completion <shell>",
	Short: "Set up shell completions for ssync",
	Long: `Set up shell tab-completions for ssync commands, flags and ledger keys.

Supported shells: bash, zsh, fish, powershell

Quick install (writes the script under your home directory):

  ssync completion bash --install
  ssync completion zsh --install
  ssync completion fish --install

Or print the completion script to stdout:

  ssync completion bash
  ssync completion powershell`,
	ValidArgs:   []string{"bash", "zsh", "fish", "powershell"},
	Args:        cobra.MaximumNArgs(1),
	Annotations: map[string]string{skipInitAnnotation: "true"},
	RunE:        runCompletion,
}

func init() {
	completionCmd.Flags().BoolVar(&completionInstall, "install", false,
		"Install completions into your shell's completion directory")

	rootCmd.CompletionOptions.DisableDefaultCmd = true
	rootCmd.AddCommand(completionCmd)
}

// completionScript writes the script for shell to w.
func completionScript(shell string, w io.Writer) error {
	switch shell {
	case "bash":
		return rootCmd.GenBashCompletionV2(w, true)
	case "zsh":
		return rootCmd.GenZshCompletion(w)
	case "fish":
		return rootCmd.GenFishCompletion(w, true)
	case "powershell":
		return rootCmd.GenPowerShellCompletionWithDesc(w)
	default:
		return fmt.Errorf("unsupported shell %q (supported: bash, zsh, fish, powershell)", shell)
	}
}

func runCompletion(cmd *cobra.Command, args []string) error {
	if len(args) == 0 {
		return cmd.Help()
	}
	shell := args[0]
	if completionInstall {
		return installCompletion(cmd, shell)
	}

	// Hints go to stderr so eval "$(ssync completion bash)" keeps working.
	switch shell {
	case "bash", "zsh":
		fmt.Fprintf(cmd.ErrOrStderr(), "# eval \"$(ssync completion %s)\" loads completions in this session\n", shell)
	case "fish":
		fmt.Fprintln(cmd.ErrOrStderr(), "# ssync completion fish | source")
	case "powershell":
		fmt.Fprintln(cmd.ErrOrStderr(), "# ssync completion powershell | Out-String | Invoke-Expression")
	}
	return completionScript(shell, cmd.OutOrStdout())
}

// completionTarget returns where --install writes the script for shell.
func completionTarget(home, shell string) (string, error) {
	switch shell {
	case "bash":
		return filepath.Join(home, ".local", "share", "bash-completion", "completions", "ssync"), nil
	case "zsh":
		return filepath.Join(home, ".local", "share", "zsh", "site-functions", "_ssync"), nil
	case "fish":
		return filepath.Join(home, ".config", "fish", "completions", "ssync.fish"), nil
	case "powershell":
		return "", fmt.Errorf("automatic install is not supported for PowerShell; add the output of 'ssync completion powershell' to your profile")
	default:
		return "", fmt.Errorf("unsupported shell %q", shell)
	}
}

func installCompletion(cmd *cobra.Command, shell string) error {
	home := completionHome
	if home == "" {
		h, err := os.UserHomeDir()
		if err != nil {
			return fmt.Errorf("detecting home directory: %w", err)
		}
		home = h
	}

	target, err := completionTarget(home, shell)
	if err != nil {
		return err
	}
	if err := os.MkdirAll(filepath.Dir(target), 0o750); err != nil {
		return fmt.Errorf("creating completion directory: %w", err)
	}

	f, err := os.Create(target)
	if err != nil {
		return fmt.Errorf("creating completion file %s: %w", target, err)
	}
	writeErr := completionScript(shell, f)
	closeErr := f.Close()
	if writeErr != nil {
		return writeErr
	}
	if closeErr != nil {
		return fmt.Errorf("closing completion file %s: %w", target, closeErr)
	}

	out := cmd.OutOrStdout()
	fmt.Fprintf(out, "Completions installed to %s\n", target)
	if shell == "zsh" {
		fmt.Fprintf(out, "Ensure %s is in your fpath, then run: autoload -Uz compinit && compinit\n", filepath.Dir(target))
	} else {
		fmt.Fprintln(out, "Restart your shell to pick them up.")
	}
	return nil
}
