package cli

import (
	"github.com/spf13/cobra"
)

var (
	configPath string
	logPath    string
	envMode    string
)

var rootCmd = &cobra.Command{
	Use:   "sysguard",
	Short: "Sysguard - Guardrail layer for sysadmin AI agents",
	Long: `Sysguard is the guardrail layer that wraps a multi-agent Linux
sysadmin assistant: it rate-limits model calls, screens user input, tool
calls, and agent output through layered pattern, command, and LLM-judge
checks, and records every decision in an append-only audit log.`,
}

func init() {
	rootCmd.PersistentFlags().StringVar(&configPath, "config", "", "Path to guardrail YAML file (default: ~/.sysguard/guardrails.yaml)")
	rootCmd.PersistentFlags().StringVar(&logPath, "log", "", "Path to audit log file (default: ~/.sysguard/audit.jsonl)")
	rootCmd.PersistentFlags().StringVar(&envMode, "env", "", "Execution mode: production, staging, or development")
}

func Execute() error {
	return rootCmd.Execute()
}
