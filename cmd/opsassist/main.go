// Package main provides the CLI entry point for opsassist, the ERP assistant
// service.
//
// opsassist answers store managers' questions about employees, schedules,
// payroll, attendance and sales by letting a language model call a fixed
// catalog of ERP operations.
//
// # Basic Usage
//
// Start the HTTP service:
//
//	opsassist serve --config opsassist.yaml
//
// Ask a single question from the terminal:
//
//	opsassist chat --store s1 "이번 달 매출 알려줘"
//
// Prepare a database:
//
//	opsassist migrate --config opsassist.yaml
//	opsassist seed fixtures.yaml --config opsassist.yaml
//
// # Environment Variables
//
//   - OPSASSIST_CONFIG: Path to the configuration file
//   - ANTHROPIC_API_KEY, OPENAI_API_KEY, GOOGLE_API_KEY: Provider API keys
//   - OPSASSIST_DATABASE_URL: Database connection string
//   - OPSASSIST_LOG_LEVEL: Log level override
package main

import (
	"fmt"
	"log/slog"
	"os"

	"github.com/spf13/cobra"
)

// Build information, populated by ldflags:
//
//	go build -ldflags "-X main.version=v1.0.0 -X main.commit=$(git rev-parse HEAD) -X main.date=$(date -u +%Y-%m-%dT%H:%M:%SZ)"
var (
	version = "dev"
	commit  = "none"
	date    = "unknown"
)

func main() {
	slog.SetDefault(slog.New(slog.NewJSONHandler(os.Stderr, &slog.HandlerOptions{
		Level: slog.LevelInfo,
	})))

	if err := buildRootCmd().Execute(); err != nil {
		slog.Error("command execution failed", "error", err)
		os.Exit(1)
	}
}

// buildRootCmd creates the root command with all subcommands attached.
func buildRootCmd() *cobra.Command {
	rootCmd := &cobra.Command{
		Use:   "opsassist",
		Short: "opsassist - conversational assistant for store operations",
		Long: `opsassist lets store managers ask questions about their ERP data in plain
language. A language model picks operations from a fixed catalog, the
service runs them against the store database and the model writes a short
answer from the results.

Supported LLM providers: Anthropic, OpenAI (and compatible endpoints), Google Gemini
Supported databases: PostgreSQL, SQLite, in-memory fixtures`,
		Version:      fmt.Sprintf("%s (commit: %s, built: %s)", version, commit, date),
		SilenceUsage: true,
	}

	rootCmd.AddCommand(
		buildServeCmd(),
		buildChatCmd(),
		buildOperationsCmd(),
		buildPeriodCmd(),
		buildMigrateCmd(),
		buildSeedCmd(),
		buildTokenCmd(),
		buildConfigCmd(),
	)
	return rootCmd
}
