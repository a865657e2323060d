package cmd

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"runtime"
	"strings"
	"time"

	"github.com/fulmenhq/gofulmen/crucible"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/cartolens/cartolens/internal/config"
	"github.com/cartolens/cartolens/internal/core/resolver"
	"github.com/cartolens/cartolens/internal/core/turnstile"
	"github.com/cartolens/cartolens/internal/observability"
)

type checkStatus string

const (
	checkPass checkStatus = "pass"
	checkWarn checkStatus = "warn"
	checkFail checkStatus = "fail"
)

func (s checkStatus) icon() string {
	switch s {
	case checkPass:
		return "✅"
	case checkWarn:
		return "⚠️ "
	default:
		return "❌"
	}
}

// doctorResult is the outcome of one diagnostic check.
type doctorResult struct {
	Name   string
	Status checkStatus
	Detail string
}

var doctorCmd = &cobra.Command{
	Use:   "doctor",
	Short: "Run diagnostic checks",
	Long:  "Run diagnostic checks on configuration, access token, and local store, and suggest fixes for common issues.",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		logger := observability.CLILogger

		logger.Info("=== " + config.AppName + " doctor ===")
		logger.Info("")

		cfg, cfgErr := loadConfig(ctx, nil)
		results := runDoctorChecks(ctx, cfg, cfgErr)

		healthy := true
		for i, result := range results {
			line := fmt.Sprintf("[%d/%d] Checking %s... %s %s", i+1, len(results), result.Name, result.Status.icon(), result.Detail)
			fields := []zap.Field{zap.String("check", result.Name), zap.String("status", string(result.Status))}
			switch result.Status {
			case checkPass:
				logger.Info(line, fields...)
			case checkWarn:
				logger.Warn(line, fields...)
			default:
				logger.Error(line, fields...)
				healthy = false
			}
		}

		logger.Info("")
		if !healthy {
			logger.Warn("⚠️  Some checks failed. Review the output above for details.")
			return fmt.Errorf("doctor found problems")
		}
		logger.Info(fmt.Sprintf("✅ All checks passed! Your %s installation is healthy.", config.AppName))
		return nil
	},
}

func init() {
	rootCmd.AddCommand(doctorCmd)
}

func runDoctorChecks(ctx context.Context, cfg *config.Config, cfgErr error) []doctorResult {
	results := []doctorResult{
		{Name: "Go version", Status: checkPass, Detail: runtime.Version()},
		checkCrucible(),
		checkConfigDir(config.DefaultConfigPath()),
	}

	if cfgErr != nil || cfg == nil {
		detail := "config not loaded"
		if cfgErr != nil {
			detail = cfgErr.Error()
		}
		return append(results, doctorResult{Name: "configuration", Status: checkFail, Detail: detail})
	}

	results = append(results,
		checkAPIURL(cfg.API.BaseURL),
		checkAccessToken(cfg.API),
		checkStore(ctx, cfg),
	)
	return results
}

func checkCrucible() doctorResult {
	version := crucible.GetVersion()
	if version.Crucible == "" || version.Gofulmen == "" {
		return doctorResult{Name: "Crucible access", Status: checkFail, Detail: "cannot read embedded versions"}
	}
	return doctorResult{
		Name:   "Crucible access",
		Status: checkPass,
		Detail: fmt.Sprintf("crucible v%s, gofulmen v%s", version.Crucible, version.Gofulmen),
	}
}

func checkConfigDir(configPath string) doctorResult {
	if configPath == "" {
		return doctorResult{Name: "config directory", Status: checkWarn, Detail: "cannot resolve config directory"}
	}
	if _, err := os.Stat(configPath); err != nil {
		return doctorResult{Name: "config directory", Status: checkPass, Detail: configPath + " (not created, using defaults)"}
	}
	return doctorResult{Name: "config directory", Status: checkPass, Detail: configPath}
}

func checkAPIURL(baseURL string) doctorResult {
	parsed, err := resolver.ParseURL(baseURL)
	if err != nil {
		return doctorResult{Name: "API URL", Status: checkFail, Detail: fmt.Sprintf("%q is not scheme://host", baseURL)}
	}
	if parsed.Protocol != "https" {
		return doctorResult{Name: "API URL", Status: checkWarn, Detail: baseURL + " (not https)"}
	}
	return doctorResult{Name: "API URL", Status: checkPass, Detail: baseURL}
}

// checkAccessToken classifies the configured token by its prefix.
func checkAccessToken(api config.APIConfig) doctorResult {
	const name = "access token"
	token := strings.TrimSpace(api.AccessToken)

	switch {
	case token == "" && api.RequireAccessToken:
		return doctorResult{Name: name, Status: checkFail, Detail: "not set (set api.access_token or CARTOLENS_ACCESS_TOKEN)"}
	case token == "":
		return doctorResult{Name: name, Status: checkWarn, Detail: "not set (not required by api.require_access_token)"}
	case strings.HasPrefix(token, "sk."):
		return doctorResult{Name: name, Status: checkFail, Detail: "secret token (sk.*) cannot be embedded in URLs; see " + resolver.HelpURL}
	case strings.HasPrefix(token, "pk."):
		return doctorResult{Name: name, Status: checkPass, Detail: "public token " + maskToken(token)}
	default:
		return doctorResult{Name: name, Status: checkWarn, Detail: "unrecognized token prefix " + maskToken(token)}
	}
}

func maskToken(token string) string {
	if len(token) <= 8 {
		return "***"
	}
	return token[:6] + "…" + token[len(token)-2:]
}

func checkStore(ctx context.Context, cfg *config.Config) doctorResult {
	const name = "local store"

	location := cfg.Store.URL
	if location == "" {
		location, _ = filepath.Abs(cfg.Store.Path)
		if info, err := os.Stat(location); err == nil {
			location = fmt.Sprintf("%s (%s)", location, formatFileSize(info.Size()))
		}
	}

	db, err := openStore(ctx, cfg)
	if err != nil {
		return doctorResult{Name: name, Status: checkFail, Detail: err.Error()}
	}
	defer db.Close() //nolint:errcheck

	if err := db.CheckHealth(ctx); err != nil {
		return doctorResult{Name: name, Status: checkFail, Detail: err.Error()}
	}

	record, err := turnstile.LoadRecord(ctx, db.Settings())
	if err != nil {
		return doctorResult{Name: name, Status: checkWarn, Detail: location + ", turnstile state unreadable"}
	}
	return doctorResult{
		Name:   name,
		Status: checkPass,
		Detail: fmt.Sprintf("%s, last turnstile event %s", location, formatTimeAgo(record.LastSuccessTime())),
	}
}

// formatFileSize returns a human-readable file size
func formatFileSize(bytes int64) string {
	const (
		KB = 1024
		MB = KB * 1024
		GB = MB * 1024
	)
	switch {
	case bytes >= GB:
		return fmt.Sprintf("%.1f GB", float64(bytes)/float64(GB))
	case bytes >= MB:
		return fmt.Sprintf("%.1f MB", float64(bytes)/float64(MB))
	case bytes >= KB:
		return fmt.Sprintf("%.1f KB", float64(bytes)/float64(KB))
	default:
		return fmt.Sprintf("%d bytes", bytes)
	}
}

// formatTimeAgo returns a human-readable relative time
func formatTimeAgo(t time.Time) string {
	if t.IsZero() {
		return "never"
	}
	d := time.Since(t)
	switch {
	case d < time.Minute:
		return "just now"
	case d < time.Hour:
		mins := int(d.Minutes())
		if mins == 1 {
			return "1 min ago"
		}
		return fmt.Sprintf("%d mins ago", mins)
	case d < 24*time.Hour:
		hours := int(d.Hours())
		if hours == 1 {
			return "1 hour ago"
		}
		return fmt.Sprintf("%d hours ago", hours)
	default:
		days := int(d.Hours() / 24)
		if days == 1 {
			return "1 day ago"
		}
		return fmt.Sprintf("%d days ago", days)
	}
}
