package cli

import (
	"github.com/spf13/cobra"

	"lsp-proxy/src/internal/common"
	versionpkg "lsp-proxy/src/internal/version"
)

// CLI Constants
const (
	CmdServe      = "serve"
	CmdStatus     = "status"
	CmdConfig     = "config"
	CmdConfigInit = "init"
	CmdConfigShow = "show"
	CmdVersion    = "version"
	FlagConfig    = "config"
	FlagListen    = "listen"
	FlagForce     = "force"
	FlagVerbose   = "verbose"
	FlagOut       = "out"
)

// CLI Variables
var (
	configPath string
	listenAddr string
	force      bool
	verbose    bool
	outPath    string
)

// Root command
var rootCmd = &cobra.Command{
	Use:   "lsp-proxy",
	Short: "LSP Proxy - a websocket gateway to per-workspace language servers",
	Long: `LSP Proxy lets browser editors talk to real language servers over a websocket.

Each connection opens a workspace. Language servers are started on first use,
run against a materialized copy of the workspace, and are shut down when the
connection closes. Open documents are tracked in Redis and written back to
project storage (local disk or S3) on close.

QUICK START:
  lsp-proxy config init                    # Write a default configuration
  lsp-proxy serve                          # Start the gateway on localhost:8080

ENDPOINTS:
  ws://<listen>/api/lsp?workspace=<name>   # Editor session
  http://<listen>/health                   # Liveness and session count
  http://<listen>/languages                # Extensions with a language server

Use 'lsp-proxy <command> --help' for detailed command information.`,
	SilenceUsage:  true,
	SilenceErrors: true,
}

// Command definitions
var (
	serveCmd = &cobra.Command{
		Use:   CmdServe,
		Short: "Start the websocket gateway",
		Long: `Start the websocket gateway.

Configuration is read from --config, then from the default path, and falls back
to built-in defaults. REDIS_URL, S3_BUCKET, S3_ENDPOINT, AWS_REGION,
AWS_ACCESS_KEY_ID and AWS_SECRET_ACCESS_KEY override the file.

Examples:
  lsp-proxy serve
  lsp-proxy serve --listen :9000 --config deploy.yaml`,
		RunE: runServeCmd,
	}

	statusCmd = &cobra.Command{
		Use:   CmdStatus,
		Short: "Show language server and store availability",
		Long:  `Check that every configured language server command is installed and that Redis and project storage are reachable.`,
		RunE:  runStatusCmd,
	}

	configCmd = &cobra.Command{
		Use:   CmdConfig,
		Short: "Manage the configuration file",
		RunE:  runConfigCmd,
	}

	versionCmd = &cobra.Command{
		Use:   CmdVersion,
		Short: "Show version information",
		Long: `Display version information for LSP Proxy.

Examples:
  lsp-proxy version              # Show version number
  lsp-proxy version --verbose    # Show detailed build information`,
		RunE: runVersionCmd,
	}
)

// Config subcommands
var (
	configInitCmd = &cobra.Command{
		Use:   CmdConfigInit,
		Short: "Write the default configuration",
		Long: `Write the built-in configuration, including every known language server,
to --out or the default configuration path.

Examples:
  lsp-proxy config init
  lsp-proxy config init --out ./lsp-proxy.yaml --force`,
		RunE: runConfigInitCmd,
	}

	configShowCmd = &cobra.Command{
		Use:   CmdConfigShow,
		Short: "Print the effective configuration",
		Long:  `Print the configuration the gateway would run with, after defaults and environment overrides.`,
		RunE:  runConfigShowCmd,
	}
)

func init() {
	serveCmd.Flags().StringVarP(&configPath, FlagConfig, "c", "", "Configuration file path (optional, will use defaults if not provided)")
	serveCmd.Flags().StringVarP(&listenAddr, FlagListen, "l", "", "Listen address, overrides the configuration")

	statusCmd.Flags().StringVarP(&configPath, FlagConfig, "c", "", "Configuration file path (optional)")

	versionCmd.Flags().BoolVarP(&verbose, FlagVerbose, "v", false, "Show detailed version information")

	configInitCmd.Flags().StringVarP(&outPath, FlagOut, "o", "", "Output path (defaults to the standard configuration path)")
	configInitCmd.Flags().BoolVarP(&force, FlagForce, "f", false, "Overwrite an existing file")
	configShowCmd.Flags().StringVarP(&configPath, FlagConfig, "c", "", "Configuration file path (optional)")

	configCmd.AddCommand(configInitCmd)
	configCmd.AddCommand(configShowCmd)

	rootCmd.AddCommand(serveCmd)
	rootCmd.AddCommand(statusCmd)
	rootCmd.AddCommand(configCmd)
	rootCmd.AddCommand(versionCmd)
}

func runServeCmd(cmd *cobra.Command, args []string) error {
	return RunServer(cmd.Context(), listenAddr, configPath)
}

func runStatusCmd(cmd *cobra.Command, args []string) error {
	return ShowStatus(cmd.Context(), configPath)
}

func runConfigCmd(cmd *cobra.Command, args []string) error {
	return cmd.Help()
}

func runConfigInitCmd(cmd *cobra.Command, args []string) error {
	return InitConfig(outPath, force)
}

func runConfigShowCmd(cmd *cobra.Command, args []string) error {
	return ShowConfig(cmd.OutOrStdout(), configPath)
}

func runVersionCmd(cmd *cobra.Command, args []string) error {
	if verbose {
		common.CLILogger.Info("%s", versionpkg.GetFullVersionInfo())
		return nil
	}
	common.CLILogger.Info("lsp-proxy %s", versionpkg.GetVersion())
	return nil
}

// Execute runs the root command
func Execute() error {
	return rootCmd.Execute()
}
