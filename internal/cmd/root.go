package cmd

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/cartolens/cartolens/internal/config"
	"github.com/cartolens/cartolens/internal/observability"
)

var (
	cfgFile string
	envFile string
	verbose bool

	// Version info set by main package
	versionInfo struct {
		Version   string
		Commit    string
		BuildDate string
	}
)

// SetVersionInfo is called by main package to set version information
func SetVersionInfo(version, commit, buildDate string) {
	versionInfo.Version = version
	versionInfo.Commit = commit
	versionInfo.BuildDate = buildDate
}

// rootCmd represents the base command when called without any subcommands
var rootCmd = &cobra.Command{
	Use:   config.AppName,
	Short: "Resolve mapbox:// locators into API request URLs",
	Long: `cartolens rewrites mapbox:// style, glyph, source, sprite and tile
locators into fully qualified API URLs, and reports the anonymous daily
usage event for the configured access token.

Use the subcommands to perform specific operations.`,
	SilenceUsage: true,
}

// Execute adds all child commands to the root command and sets flags appropriately.
// This is called by main.main(). It only needs to happen once to the rootCmd.
func Execute() error {
	return rootCmd.Execute()
}

func init() {
	// Library code must not emit metrics to stdout; serve installs the real
	// telemetry system later.
	observability.DisableMetrics()

	cobra.OnInitialize(initConfig)

	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "",
		fmt.Sprintf("config file (default is %s)", displayConfigPath()))
	rootCmd.PersistentFlags().StringVar(&envFile, "env-file", "", "env file to load before reading CARTOLENS_* variables (default ./.env when present)")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "verbose output (sets log level to debug)")
}

func initConfig() {
	observability.InitCLILogger(config.AppName, verbose)
	config.SetConfigFile(cfgFile)

	if err := config.LoadDotEnv(envFile); err != nil {
		observability.CLILogger.Warn("Env file not loaded", zap.Error(err))
	}

	if cfgFile != "" {
		observability.CLILogger.Debug("Using config file", zap.String("path", cfgFile))
	}
}

// loadConfig loads configuration with flag-derived overrides applied last.
func loadConfig(ctx context.Context, overrides map[string]any) (*config.Config, error) {
	if ctx == nil {
		ctx = context.Background()
	}
	if len(overrides) == 0 {
		return config.Load(ctx)
	}
	return config.Load(ctx, overrides)
}

func displayConfigPath() string {
	if path := config.DefaultConfigPath(); path != "" {
		return path
	}
	return "$XDG_CONFIG_HOME/" + config.AppName + "/config.yaml"
}
