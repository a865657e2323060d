package cmd

import (
	"fmt"
	"runtime"
	"strings"

	"github.com/fulmenhq/gofulmen/crucible"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/cartolens/cartolens/internal/config"
	"github.com/cartolens/cartolens/internal/observability"
)

var envInfoCmd = &cobra.Command{
	Use:   "envinfo",
	Short: "Display environment information",
	Long:  "Display environment, configuration, and version information.",
	Run: func(cmd *cobra.Command, args []string) {
		logger := observability.CLILogger
		version := crucible.GetVersion()

		logger.Info("=== cartolens Environment Information ===")
		logger.Info("")

		logger.Info("Application:")
		logger.Info("  Name:       " + config.AppName)
		logger.Info("  Version:    " + versionInfo.Version)
		logger.Info("  Commit:     " + versionInfo.Commit)
		logger.Info("  Built:      " + versionInfo.BuildDate)
		logger.Info("")

		logger.Info("SSOT:")
		logger.Info("  Gofulmen:   "+version.Gofulmen, zap.String("gofulmen_version", version.Gofulmen))
		logger.Info("  Crucible:   "+version.Crucible, zap.String("crucible_version", version.Crucible))
		logger.Info("")

		logger.Info("Runtime:")
		logger.Info("  Go Version: "+runtime.Version(), zap.String("go_version", runtime.Version()))
		logger.Info("  GOOS:       "+runtime.GOOS, zap.String("goos", runtime.GOOS))
		logger.Info("  GOARCH:     "+runtime.GOARCH, zap.String("goarch", runtime.GOARCH))
		logger.Info("")

		cfg, err := loadConfig(cmd.Context(), nil)
		if err != nil {
			logger.Warn("Config load failed", zap.Error(err))
			return
		}

		logger.Info("Resolver:")
		logger.Info("  API URL:        "+cfg.API.BaseURL, zap.String("api_url", cfg.API.BaseURL))
		logger.Info("  Access Token:   "+tokenSummary(cfg.API.AccessToken))
		logger.Info(fmt.Sprintf("  Require Token:  %t", cfg.API.RequireAccessToken))
		logger.Info(fmt.Sprintf("  Pixel Ratio:    %g", cfg.Device.PixelRatio), zap.Float64("pixel_ratio", cfg.Device.PixelRatio))
		logger.Info(fmt.Sprintf("  WebP:           %t", cfg.Device.SupportsWebP))
		logger.Info("")

		logger.Info("Turnstile:")
		logger.Info(fmt.Sprintf("  Enabled:        %t", cfg.Turnstile.Enabled))
		logger.Info("  Events URL:     "+cfg.API.EventsURL, zap.String("events_url", cfg.API.EventsURL))
		logger.Info("  SDK:            " + cfg.SDK.Identifier + " " + cfg.SDK.Version)
		logger.Info("")

		logger.Info("Configuration:")
		logger.Info("  Server Host:    "+cfg.Server.Host, zap.String("host", cfg.Server.Host))
		logger.Info(fmt.Sprintf("  Server Port:    %d", cfg.Server.Port), zap.Int("port", cfg.Server.Port))
		logger.Info("  Log Level:      "+cfg.Logging.Level, zap.String("log_level", cfg.Logging.Level))
		logger.Info("  Log Profile:    "+cfg.Logging.Profile, zap.String("log_profile", cfg.Logging.Profile))
		logger.Info("  DB Driver:      "+cfg.Store.Driver, zap.String("db_driver", cfg.Store.Driver))
		if strings.TrimSpace(cfg.Store.URL) != "" {
			logger.Info("  DB URL:         "+cfg.Store.URL, zap.String("db_url", cfg.Store.URL))
		} else {
			logger.Info("  DB Path:        "+cfg.Store.Path, zap.String("db_path", cfg.Store.Path))
		}
		logger.Info(fmt.Sprintf("  Metrics Port:   %d", cfg.Metrics.Port), zap.Int("metrics_port", cfg.Metrics.Port))
		logger.Info("  Config File:    "+config.DefaultConfigPath(), zap.String("config_file", config.DefaultConfigPath()))
		logger.Info("")
		logger.Info("=== End Environment Information ===")
	},
}

func init() {
	rootCmd.AddCommand(envInfoCmd)
}

func tokenSummary(token string) string {
	token = strings.TrimSpace(token)
	if token == "" {
		return "(not set)"
	}
	return maskToken(token)
}
