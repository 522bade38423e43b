package main

import (
	"strings"
	"time"

	"github.com/spf13/cobra"
)

// =============================================================================
// Serve Command
// =============================================================================

// buildServeCmd creates the "serve" command that starts the HTTP service.
func buildServeCmd() *cobra.Command {
	var (
		configPath string
		debug      bool
	)

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Start the assistant HTTP service",
		Long: `Start the assistant HTTP service.

The server will:
1. Load configuration from the specified file (or OPSASSIST_CONFIG)
2. Open the store database and apply the schema
3. Initialize the configured LLM provider
4. Serve POST /api/chat, GET /api/operations, /healthz and metrics

Graceful shutdown is handled on SIGINT/SIGTERM signals.`,
		Example: `  # Start with defaults (in-memory store, Anthropic)
  opsassist serve

  # Start with a config file and debug logging
  opsassist serve --config /etc/opsassist/production.yaml --debug`,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServe(cmd.Context(), resolveConfigPath(configPath), debug)
		},
	}

	cmd.Flags().StringVarP(&configPath, "config", "c", "", "Path to YAML configuration file")
	cmd.Flags().BoolVarP(&debug, "debug", "d", false, "Enable debug logging")
	return cmd
}

// =============================================================================
// Chat Command
// =============================================================================

func buildChatCmd() *cobra.Command {
	var opts chatOptions

	cmd := &cobra.Command{
		Use:   "chat [message]",
		Short: "Ask the assistant one question",
		Long: `Run one conversation against the configured provider and store and print
the answer. The message is read from stdin when no argument is given.`,
		Example: `  opsassist chat --store s1 --store-name 강남점 "오늘 근무자 몇 명이야?"
  echo "지난달 급여 합계" | opsassist chat --json`,
		RunE: func(cmd *cobra.Command, args []string) error {
			opts.configPath = resolveConfigPath(opts.configPath)
			return runChat(cmd, strings.Join(args, " "), opts)
		},
	}

	cmd.Flags().StringVarP(&opts.configPath, "config", "c", "", "Path to YAML configuration file")
	cmd.Flags().StringVar(&opts.storeID, "store", "", "Store id of the caller (default: identity.default_store_id)")
	cmd.Flags().StringVar(&opts.storeName, "store-name", "", "Display name of the caller's store")
	cmd.Flags().StringVar(&opts.userID, "user", "", "User id of the caller")
	cmd.Flags().StringVar(&opts.historyFile, "history", "", "JSON file with prior conversation turns")
	cmd.Flags().BoolVar(&opts.jsonOutput, "json", false, "Print the full outcome as JSON")
	return cmd
}

// =============================================================================
// Operations Commands
// =============================================================================

func buildOperationsCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:     "operations",
		Aliases: []string{"ops"},
		Short:   "Inspect the operation catalog",
	}
	cmd.AddCommand(buildOperationsListCmd(), buildOperationsSchemaCmd(), buildOperationsRunCmd())
	return cmd
}

func buildOperationsListCmd() *cobra.Command {
	var jsonOutput bool
	cmd := &cobra.Command{
		Use:   "list",
		Short: "List every operation the model may call",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runOperationsList(cmd, jsonOutput)
		},
	}
	cmd.Flags().BoolVar(&jsonOutput, "json", false, "Print as JSON")
	return cmd
}

func buildOperationsSchemaCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "schema <operation>",
		Short: "Print the JSON schema of one operation's input",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runOperationsSchema(cmd, args[0])
		},
	}
}

func buildOperationsRunCmd() *cobra.Command {
	var (
		configPath string
		storeID    string
	)
	cmd := &cobra.Command{
		Use:   "run <operation> [input-json]",
		Short: "Execute one operation directly against the store",
		Example: `  opsassist operations run get_sales_summary '{"period":"this_month"}' --store s1
  opsassist operations run count_employees`,
		Args: cobra.RangeArgs(1, 2),
		RunE: func(cmd *cobra.Command, args []string) error {
			input := "{}"
			if len(args) == 2 {
				input = args[1]
			}
			return runOperationsRun(cmd, resolveConfigPath(configPath), storeID, args[0], input)
		},
	}
	cmd.Flags().StringVarP(&configPath, "config", "c", "", "Path to YAML configuration file")
	cmd.Flags().StringVar(&storeID, "store", "", "Store id of the caller")
	return cmd
}

// =============================================================================
// Period Command
// =============================================================================

func buildPeriodCmd() *cobra.Command {
	var (
		timezone string
		start    string
		end      string
		at       string
	)
	cmd := &cobra.Command{
		Use:   "period <token>",
		Short: "Resolve a period token to a date range",
		Long: `Resolve a period token (today, yesterday, this_week, last_week, this_month,
last_month, custom) to the inclusive date range operations would use.`,
		Example: `  opsassist period last_month
  opsassist period custom --start 03-01 --end 03-15
  opsassist period this_week --at 2025-03-16T10:00:00+09:00`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runPeriod(cmd, args[0], timezone, start, end, at)
		},
	}
	cmd.Flags().StringVar(&timezone, "timezone", "", "IANA zone or UTC offset (default: Asia/Seoul)")
	cmd.Flags().StringVar(&start, "start", "", "Start date for custom ranges")
	cmd.Flags().StringVar(&end, "end", "", "End date for custom ranges")
	cmd.Flags().StringVar(&at, "at", "", "Reference instant in RFC 3339 (default: now)")
	return cmd
}

// =============================================================================
// Database Commands
// =============================================================================

func buildMigrateCmd() *cobra.Command {
	var configPath string
	cmd := &cobra.Command{
		Use:   "migrate",
		Short: "Create or update the store database schema",
		Long: `Apply the schema for the configured SQL backend. Statements are idempotent,
so running migrate repeatedly is safe. The memory backend needs no schema.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runMigrate(cmd, resolveConfigPath(configPath))
		},
	}
	cmd.Flags().StringVarP(&configPath, "config", "c", "", "Path to YAML configuration file")
	return cmd
}

func buildSeedCmd() *cobra.Command {
	var configPath string
	cmd := &cobra.Command{
		Use:   "seed <fixtures.yaml>",
		Short: "Load fixture rows into the store database",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runSeed(cmd, resolveConfigPath(configPath), args[0])
		},
	}
	cmd.Flags().StringVarP(&configPath, "config", "c", "", "Path to YAML configuration file")
	return cmd
}

// =============================================================================
// Token Command
// =============================================================================

func buildTokenCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "token",
		Short: "Manage caller tokens",
	}

	var (
		configPath string
		opts       tokenOptions
	)
	issue := &cobra.Command{
		Use:     "issue",
		Short:   "Issue a signed caller token",
		Example: `  opsassist token issue --user u1 --store s1 --store-name 강남점`,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runTokenIssue(cmd, resolveConfigPath(configPath), opts)
		},
	}
	issue.Flags().StringVarP(&configPath, "config", "c", "", "Path to YAML configuration file")
	issue.Flags().StringVar(&opts.userID, "user", "", "User id")
	issue.Flags().StringVar(&opts.storeID, "store", "", "Store id")
	issue.Flags().StringVar(&opts.storeName, "store-name", "", "Store display name")
	issue.Flags().DurationVar(&opts.expiry, "expiry", 0, "Token lifetime (default: identity.token_expiry)")
	_ = issue.MarkFlagRequired("user")

	cmd.AddCommand(issue)
	return cmd
}

type tokenOptions struct {
	userID    string
	storeID   string
	storeName string
	expiry    time.Duration
}

// =============================================================================
// Config Commands
// =============================================================================

func buildConfigCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "config",
		Short: "Inspect configuration",
	}

	schema := &cobra.Command{
		Use:   "schema",
		Short: "Print the JSON schema of the configuration file",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runConfigSchema(cmd)
		},
	}

	var configPath string
	validate := &cobra.Command{
		Use:   "validate",
		Short: "Load and validate a configuration file",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runConfigValidate(cmd, resolveConfigPath(configPath))
		},
	}
	validate.Flags().StringVarP(&configPath, "config", "c", "", "Path to YAML configuration file")

	cmd.AddCommand(schema, validate)
	return cmd
}
